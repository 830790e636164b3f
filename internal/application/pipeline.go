package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicechat/internal/domain"
)

type AudioTranscriber interface {
	Transcribe(ctx context.Context, in domain.AudioInput) (string, error)
}

type Replier interface {
	GetReply(ctx context.Context, userText string) domain.Reply
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*domain.Synthesis, error)
}

// TurnResult is what a completed turn hands back to the transport.
type TurnResult struct {
	RequestID  string
	Transcript string
	Reply      domain.Reply
	Persisted  bool
	AudioPath  string
	Audio      []byte
}

// Pipeline runs one voice turn: transcribe, reply, persist, synthesize and
// stream. Only transcription, reply and synthesis failures halt it.
type Pipeline struct {
	stt      AudioTranscriber
	chat     Replier
	history  HistoryStore
	tts      SpeechSynthesizer
	notifier Notifier
	observer Observer
	logger   *slog.Logger
}

func NewPipeline(
	stt AudioTranscriber,
	chat Replier,
	history HistoryStore,
	tts SpeechSynthesizer,
	notifier Notifier,
	observer Observer,
	logger *slog.Logger,
) *Pipeline {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Pipeline{
		stt:      stt,
		chat:     chat,
		history:  history,
		tts:      tts,
		notifier: notifier,
		observer: observer,
		logger:   logger,
	}
}

// Run executes a turn. The returned error, when not nil, is a *StageError.
// The turn is detached from ctx cancellation: once started it runs to the end
// and every upstream call relies on its own timeout.
func (p *Pipeline) Run(ctx context.Context, in domain.AudioInput) (*TurnResult, error) {
	ctx = context.WithoutCancel(ctx)
	requestID := uuid.NewString()
	logger := p.logger.With("request_id", requestID)

	result, err := p.run(ctx, logger, in)
	if err != nil {
		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			stageErr = failed(StageReceived, "unexpected", err)
		}
		logger.Error("turn failed", "stage", stageErr.Stage, "reason", stageErr.Reason, "error", stageErr.Err)
		p.observer.StageFailed(stageErr.Stage, stageErr.Reason)
		p.observer.TurnFinished("failed")
		if notifyErr := p.notifier.Notify(ctx, fmt.Sprintf("voice turn %s failed at %s: %s", requestID, stageErr.Stage, stageErr.Reason)); notifyErr != nil {
			logger.Error("notifying failure", "error", notifyErr)
		}
		return nil, stageErr
	}

	result.RequestID = requestID
	p.observer.TurnFinished("done")
	logger.Info("turn done", "bytes", len(result.Audio), "degraded", result.Reply.Degraded(), "persisted", result.Persisted)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, in domain.AudioInput) (*TurnResult, error) {
	if in.Empty() {
		return nil, failed(StageTranscribing, ReasonNotFound, ErrSourceNotFound)
	}
	if in.IsPath() {
		if _, err := os.Stat(in.Path); err != nil {
			return nil, failed(StageTranscribing, ReasonNotFound, fmt.Errorf("%w: %s", ErrSourceNotFound, in.Path))
		}
	}
	logger.Info("received audio", "name", in.Filename())

	start := time.Now()
	transcript, err := p.stt.Transcribe(ctx, in)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			return nil, failed(StageTranscribing, ReasonNotFound, err)
		}
		return nil, failed(StageTranscribing, ReasonUndecodable, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, failed(StageTranscribing, ReasonUndecodable, ErrNoTranscript)
	}
	p.observer.StageCompleted(StageTranscribing, time.Since(start))
	logger.Info("transcribed", "text", transcript)

	start = time.Now()
	reply := p.chat.GetReply(ctx, transcript)
	if reply.Degraded() {
		logger.Warn("reply degraded to fallback text", "kind", reply.Kind, "error", reply.Err)
		p.observer.ReplyDegraded(string(reply.Kind))
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, failed(StageReplying, ReasonNoReply, errors.New("empty chat reply"))
	}
	p.observer.StageCompleted(StageReplying, time.Since(start))
	logger.Info("replied", "text", reply.Text, "kind", reply.Kind)

	result := &TurnResult{Transcript: transcript, Reply: reply}

	start = time.Now()
	if err := p.history.AppendTurn(ctx, transcript, reply.Text); err != nil {
		logger.Error("storing turn", "error", err)
		p.observer.PersistFailed()
	} else {
		result.Persisted = true
		p.observer.StageCompleted(StagePersisting, time.Since(start))
	}

	start = time.Now()
	synthesis, err := p.tts.Synthesize(ctx, reply.Text)
	if err != nil {
		return nil, failed(StageSynthesizing, ReasonTTSFailure, err)
	}
	if synthesis == nil || (synthesis.Path == "" && len(synthesis.Audio) == 0) {
		return nil, failed(StageSynthesizing, ReasonTTSFailure, ErrNoAudio)
	}
	p.observer.StageCompleted(StageSynthesizing, time.Since(start))

	start = time.Now()
	audio := synthesis.Audio
	if len(audio) == 0 {
		audio, err = os.ReadFile(synthesis.Path)
		if err != nil {
			return nil, failed(StageStreaming, ReasonReadFailure, fmt.Errorf("reading reply audio: %w", err))
		}
		if len(audio) == 0 {
			return nil, failed(StageStreaming, ReasonReadFailure, ErrNoAudio)
		}
	}
	p.observer.StageCompleted(StageStreaming, time.Since(start))

	result.AudioPath = synthesis.Path
	result.Audio = audio
	return result, nil
}
