package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// SQLiteStore persists conversation history in a single-table SQLite
// database. Each user maps to one row holding the full history as a JSON
// document; writes are whole-row upserts (last write wins).
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id       TEXT PRIMARY KEY,
	messages TEXT NOT NULL
);`

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(usersSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, userID string) ([]models.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT messages FROM users WHERE id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", userID, err)
	}

	var messages []models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", userID, err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

func (s *SQLiteStore) SetMessages(ctx context.Context, userID string, messages []models.Message) error {
	if messages == nil {
		s.logger.Warn("refusing to store nil history", "user_id", userID)
		return nil
	}

	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages for %s: %w", userID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, messages) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET messages = excluded.messages`,
		userID, string(raw))
	if err != nil {
		return fmt.Errorf("store messages for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	return s.SetMessages(ctx, userID, []models.Message{})
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
