// Package store persists the conversation log.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"voicechat/internal/domain"
)

// JSONStore keeps the whole log as a JSON array of {role, content} in one
// file. Writers are serialized and replace the file atomically, so readers
// never see a torn write.
type JSONStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	return &JSONStore{path: path, logger: logger}
}

// LoadWindow returns at most maxRecent entries from the tail of the log in
// stored order. Missing or unreadable files are an empty log.
func (s *JSONStore) LoadWindow(_ context.Context, maxRecent int) []domain.Turn {
	turns := s.read()
	if maxRecent <= 0 {
		return nil
	}
	if len(turns) > maxRecent {
		turns = turns[len(turns)-maxRecent:]
	}
	return turns
}

func (s *JSONStore) AppendTurn(_ context.Context, userText, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.read()
	turns = append(turns, domain.UserTurn(userText), domain.AssistantTurn(assistantText))

	if err := s.write(turns); err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

// Reset replaces the log with an empty array.
func (s *JSONStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write([]domain.Turn{}); err != nil {
		return fmt.Errorf("resetting history: %w", err)
	}
	return nil
}

func (s *JSONStore) read() []domain.Turn {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reading history", "path", s.path, "error", err)
		}
		return nil
	}

	var turns []domain.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		s.logger.Warn("history file unreadable, treating as empty", "path", s.path, "error", err)
		return nil
	}
	return turns
}

func (s *JSONStore) write(turns []domain.Turn) error {
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing history file: %w", err)
	}
	return nil
}
