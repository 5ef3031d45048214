package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hetulpatel/dbcheck/internal/conversations"
)

const (
	defaultPath = "data/conversations.db"

	// Fixed width keeps lexical order equal to chronological order.
	timeFormat = "2006-01-02 15:04:05.000000-07:00"
)

// Store wraps a SQLite DB used as a local stand-in for the bot database.
type Store struct {
	path string
	db   *sql.DB
}

// Open creates (if needed) and opens the SQLite database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := ensureWAL(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	return nil
}

func ensureWAL(db *sql.DB) error {
	const (
		maxAttempts = 5
		delay       = 200 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			if strings.Contains(err.Error(), "database is locked") {
				time.Sleep(delay)
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("database is locked after retries")
}

// Path returns the path backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the DB.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateTables ensures the conversations table exists.
func (s *Store) CreateTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, conversationsSchemaSQL)
	return err
}

// DropTables removes the conversations table.
func (s *Store) DropTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS conversations;`)
	return err
}

// ClearTables truncates the conversations table.
func (s *Store) ClearTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations;`)
	return err
}

// Declared types matter: the dialer reports them so JSONB and TIMESTAMP
// columns are decoded.
const conversationsSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	user_id TEXT PRIMARY KEY,
	stage TEXT DEFAULT 'greeting',
	history JSONB DEFAULT '[]',
	booking_data JSONB DEFAULT '{}',
	client_name TEXT,
	client_phone TEXT,
	is_admin_mode BOOLEAN DEFAULT FALSE,
	admin_chat_id TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS conversations_updated_idx ON conversations(updated_at);
`

const upsertConversationSQL = `
INSERT INTO conversations (user_id, stage, history, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	stage=excluded.stage,
	history=excluded.history,
	updated_at=excluded.updated_at;
`

// UpsertConversations inserts or replaces the given conversations in one transaction.
func (s *Store) UpsertConversations(ctx context.Context, convs []conversations.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, upsertConversationSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range convs {
		history := c.History
		if history == nil {
			history = []conversations.Message{}
		}
		historyJSON, err := json.Marshal(history)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal history %s: %w", c.UserID, err)
		}
		stage := c.Stage
		if stage == "" {
			stage = "greeting"
		}
		if _, err := stmt.ExecContext(ctx, c.UserID, stage, string(historyJSON), formatTime(c.UpdatedAt)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s: %w", c.UserID, err)
		}
	}
	return tx.Commit()
}

// CountConversations returns the number of rows in the conversations table.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeFormat)
}
