package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"voicechat/internal/domain"
)

// Transcriber turns any AudioInput into text using whichever speech-to-text
// capability is configured. A nil capability means transcription is
// unavailable.
type Transcriber struct {
	stream  SpeechToText
	file    FileSpeechToText
	tempDir string
	logger  *slog.Logger
}

func NewStreamTranscriber(stt SpeechToText, logger *slog.Logger) *Transcriber {
	return &Transcriber{stream: stt, logger: logger}
}

// NewFileTranscriber wraps a capability that needs a file on disk. Buffers and
// uploads are materialized under tempDir (os.TempDir when empty).
func NewFileTranscriber(stt FileSpeechToText, tempDir string, logger *slog.Logger) *Transcriber {
	return &Transcriber{file: stt, tempDir: tempDir, logger: logger}
}

func (t *Transcriber) Available() bool {
	return t != nil && (t.stream != nil || t.file != nil)
}

// Transcribe returns non-empty trimmed text or an error. Errors are the "no
// result" signal: ErrSourceNotFound, ErrTranscriberUnavailable,
// ErrNoTranscript or the wrapped capability failure.
func (t *Transcriber) Transcribe(ctx context.Context, in domain.AudioInput) (string, error) {
	if in.Empty() {
		return "", ErrSourceNotFound
	}

	if in.IsPath() {
		if _, err := os.Stat(in.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrSourceNotFound, in.Path)
			}
			return "", fmt.Errorf("checking audio file: %w", err)
		}
	}

	if !t.Available() {
		return "", ErrTranscriberUnavailable
	}

	var (
		text string
		err  error
	)
	if t.file != nil {
		text, err = t.transcribeFile(ctx, in)
	} else {
		text, err = t.transcribeStream(ctx, in)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoTranscript
	}
	return text, nil
}

func (t *Transcriber) transcribeStream(ctx context.Context, in domain.AudioInput) (string, error) {
	switch {
	case in.IsPath():
		f, err := os.Open(in.Path)
		if err != nil {
			return "", fmt.Errorf("opening audio file: %w", err)
		}
		defer f.Close()
		return t.call(ctx, f, in.Filename())
	case in.Reader != nil:
		return t.call(ctx, in.Reader, in.Filename())
	default:
		return t.call(ctx, bytes.NewReader(in.Data), in.Filename())
	}
}

func (t *Transcriber) call(ctx context.Context, r io.Reader, filename string) (string, error) {
	text, err := t.stream.Transcribe(ctx, r, filename)
	if err != nil {
		return "", fmt.Errorf("transcribing: %w", err)
	}
	return text, nil
}

func (t *Transcriber) transcribeFile(ctx context.Context, in domain.AudioInput) (string, error) {
	if in.IsPath() {
		path, err := filepath.Abs(in.Path)
		if err != nil {
			return "", fmt.Errorf("resolving audio path: %w", err)
		}
		text, err := t.file.TranscribeFile(ctx, path)
		if err != nil {
			return "", fmt.Errorf("transcribing: %w", err)
		}
		return text, nil
	}

	path, err := t.materialize(in)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.logger.Debug("removing temp audio", "path", path, "error", err)
		}
	}()

	text, err := t.file.TranscribeFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("transcribing: %w", err)
	}
	return text, nil
}

// materialize copies a buffer or upload into a temp file with the same
// extension so the capability can sniff the format.
func (t *Transcriber) materialize(in domain.AudioInput) (string, error) {
	ext := filepath.Ext(in.Filename())
	if ext == "" {
		ext = ".wav"
	}

	f, err := os.CreateTemp(t.tempDir, "whisper-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp audio: %w", err)
	}
	path := f.Name()

	var src io.Reader = bytes.NewReader(in.Data)
	if in.Reader != nil {
		if s, ok := in.Reader.(io.Seeker); ok {
			_, _ = s.Seek(0, io.SeekStart)
		}
		src = in.Reader
	}

	_, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("writing temp audio: %w", err)
	}
	return path, nil
}
