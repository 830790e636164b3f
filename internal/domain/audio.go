package domain

import (
	"io"
	"path/filepath"
)

// AudioInput references audio content by path, by an in-memory buffer, or by
// an open reader such as an uploaded file. Exactly one of Path, Data or Reader
// is expected to be set.
type AudioInput struct {
	Path   string
	Name   string
	Data   []byte
	Reader io.Reader
}

func PathInput(path string) AudioInput {
	return AudioInput{Path: path, Name: filepath.Base(path)}
}

func BytesInput(name string, data []byte) AudioInput {
	return AudioInput{Name: name, Data: data}
}

func ReaderInput(name string, r io.Reader) AudioInput {
	return AudioInput{Name: name, Reader: r}
}

func (a AudioInput) IsPath() bool {
	return a.Path != ""
}

// Empty reports whether the input references no audio at all.
func (a AudioInput) Empty() bool {
	return a.Path == "" && len(a.Data) == 0 && a.Reader == nil
}

// Filename is the name handed to capabilities that want one, e.g. for a
// multipart upload.
func (a AudioInput) Filename() string {
	if a.Name != "" {
		return filepath.Base(a.Name)
	}
	if a.Path != "" {
		return filepath.Base(a.Path)
	}
	return "audio.wav"
}
