package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// SQLiteStore persists records as JSON documents in a local SQLite file.
// The state column is duplicated out of the document for listing.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
	opts   Options
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Initializing SQLiteStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path, opts: opts.withDefaults()}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.Store("SQLiteStore ready")
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			user_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			record_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_state ON conversations(state)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			handler TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user ON conversation_turns(user_id, id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) get(ctx context.Context, q querier, userID string) (*types.ConversationRecord, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT record_json FROM conversations WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var rec types.ConversationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) put(ctx context.Context, q querier, rec *types.ConversationRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO conversations (user_id, state, record_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			record_json = excluded.record_json,
			updated_at = excluded.updated_at`,
		rec.UserID, string(rec.State), string(raw), rec.LastActivityAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, userID string) (*types.ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(ctx, s.db, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rec = s.opts.newRecord(userID)
	if err := s.put(ctx, s.db, rec); err != nil {
		return nil, err
	}
	logging.StoreDebug("sqlite: created record for %s (persona %s)", userID, rec.PersonaName)
	return rec, nil
}

// Save applies patch inside a transaction so concurrent writers never lose
// each other's fields.
func (s *SQLiteStore) Save(ctx context.Context, userID string, patch types.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := s.get(ctx, tx, userID)
	if errors.Is(err, ErrNotFound) {
		rec = s.opts.newRecord(userID)
	} else if err != nil {
		return err
	}
	s.opts.apply(rec, patch)
	if err := s.put(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	logging.StoreDebug("sqlite: reset %s", userID)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, userID string, entry TurnEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.At.IsZero() {
		entry.At = s.opts.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (user_id, role, content, handler, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, entry.Role, entry.Content, entry.Handler, entry.At.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_turns WHERE user_id = ? AND id NOT IN (
			SELECT id FROM conversation_turns WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)`, userID, userID, s.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentTurns(ctx context.Context, userID string, limit int) ([]TurnEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, handler, created_at FROM conversation_turns
		WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []TurnEntry
	for rows.Next() {
		var e TurnEntry
		var at string
		if err := rows.Scan(&e.Role, &e.Content, &e.Handler, &at); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest first from the query; callers want oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) List(ctx context.Context, state types.State) ([]*types.ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT record_json FROM conversations`
	var args []any
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, string(state))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*types.ConversationRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec types.ConversationRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logging.Get(logging.CategoryStore).Warn("skipping undecodable record: %v", err)
			continue
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByActivity(out)
	return out, nil
}
