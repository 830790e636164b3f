package application

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound         = errors.New("audio source not found")
	ErrTranscriberUnavailable = errors.New("speech-to-text not configured")
	ErrNoTranscript           = errors.New("no transcript")
	ErrEmptyText              = errors.New("empty text")
	ErrNoAudio                = errors.New("no audio produced")
)

type Stage string

const (
	StageReceived     Stage = "received"
	StageTranscribing Stage = "transcribing"
	StageReplying     Stage = "replying"
	StagePersisting   Stage = "persisting"
	StageSynthesizing Stage = "synthesizing"
	StageStreaming    Stage = "streaming"
	StageDone         Stage = "done"
)

const (
	ReasonNotFound    = "not found"
	ReasonUndecodable = "undecodable"
	ReasonNoReply     = "no reply"
	ReasonTTSFailure  = "tts failure"
	ReasonReadFailure = "read failure"
)

// StageError is the terminal Failed(stage, reason) state of a turn.
type StageError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func failed(stage Stage, reason string, err error) *StageError {
	return &StageError{Stage: stage, Reason: reason, Err: err}
}
