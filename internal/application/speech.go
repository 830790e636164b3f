package application

import (
	"context"
	"io"
)

// SpeechToText transcribes a readable audio stream. filename hints the
// container format to the capability.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// FileSpeechToText transcribes audio that has to live on disk, e.g. a local
// model driven through its command line.
type FileSpeechToText interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
