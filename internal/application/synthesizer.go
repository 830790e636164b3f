package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"voicechat/internal/domain"
)

// Synthesizer converts reply text to audio and keeps the latest reply on disk.
type Synthesizer struct {
	tts        TextToSpeech
	outputPath string
	logger     *slog.Logger
}

func NewSynthesizer(tts TextToSpeech, outputPath string, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{tts: tts, outputPath: outputPath, logger: logger}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*domain.Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if s.tts == nil {
		s.logger.Warn("text-to-speech not configured")
		return nil, domain.ErrUnavailable
	}

	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		s.logger.Error("text-to-speech failed", "cause", SynthesisCause(err), "error", err)
		return nil, fmt.Errorf("synthesizing: %w", err)
	}
	if len(audio) == 0 {
		s.logger.Error("text-to-speech returned no audio", "cause", "unexpected")
		return nil, ErrNoAudio
	}

	if err := writeFileAtomic(s.outputPath, audio); err != nil {
		s.logger.Error("saving reply audio", "path", s.outputPath, "cause", "unexpected", "error", err)
		return nil, fmt.Errorf("saving reply audio: %w", err)
	}

	s.logger.Debug("reply audio written", "path", s.outputPath, "bytes", len(audio))
	return &domain.Synthesis{Path: s.outputPath, Audio: audio}, nil
}

// SynthesisCause buckets a text-to-speech failure for operator logs.
func SynthesisCause(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "request"
	}
	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		return "request"
	}
	return "unexpected"
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
