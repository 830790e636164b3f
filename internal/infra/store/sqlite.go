package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"voicechat/internal/domain"
)

// SQLiteStore keeps the log as rows ordered by an autoincrement id.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes writers the same way the JSON store's mutex does.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadWindow(ctx context.Context, maxRecent int) []domain.Turn {
	if maxRecent <= 0 {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT id, role, content FROM history ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, maxRecent)
	if err != nil {
		s.logger.Warn("loading history window", "error", err)
		return nil
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			s.logger.Warn("scanning history row", "error", err)
			return nil
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("iterating history rows", "error", err)
		return nil
	}
	return turns
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, userText, assistantText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, t := range []domain.Turn{domain.UserTurn(userText), domain.AssistantTurn(assistantText)} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO history (role, content, created_at) VALUES (?, ?, ?)",
			string(t.Role), t.Content, now,
		); err != nil {
			return fmt.Errorf("inserting %s turn: %w", t.Role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history"); err != nil {
		return fmt.Errorf("resetting history: %w", err)
	}
	return nil
}
