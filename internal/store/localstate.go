// ABOUTME: SQLite-backed durable local state using modernc.org/sqlite
// ABOUTME: Persists which conversation was last open, keyed by application identity

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no state exists for the requested app.
var ErrNotFound = errors.New("not found")

// LocalState implements the convo.LastOpenStore hook on top of SQLite.
type LocalState struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLocalState opens (or creates) the local state database at the
// given path. Parent directories are created if needed.
func NewLocalState(path string) (*LocalState, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode: the TUI reads while the engine writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &LocalState{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("local state initialized", "path", path)
	return s, nil
}

func (s *LocalState) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS app_state (
			app_id               TEXT PRIMARY KEY,
			last_conversation_id TEXT NOT NULL,
			updated_at           DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetLastOpen returns the last-selected conversation id for the app.
// Returns ErrNotFound when nothing has been stored yet.
func (s *LocalState) GetLastOpen(ctx context.Context, appID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_conversation_id FROM app_state WHERE app_id = ?", appID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading last-open conversation: %w", err)
	}
	return id, nil
}

// SetLastOpen stores the last-selected conversation id for the app.
func (s *LocalState) SetLastOpen(ctx context.Context, appID, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_state (app_id, last_conversation_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET
			last_conversation_id = excluded.last_conversation_id,
			updated_at = excluded.updated_at`,
		appID, conversationID, time.Now())
	if err != nil {
		return fmt.Errorf("saving last-open conversation: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *LocalState) Close() error {
	return s.db.Close()
}
