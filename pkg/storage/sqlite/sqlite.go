// Package sqlite provides a SQLite implementation of storage.TurnStore
// using the pure-Go modernc.org/sqlite driver. It suits single-node
// deployments that want turn history to survive restarts without a
// database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
)

// Store is a SQLite-backed TurnStore.
type Store struct {
	db *sql.DB
}

// Ensure Store implements storage.TurnStore at compile time.
var _ storage.TurnStore = (*Store)(nil)

const turnColumns = `id, session_id, idx, question, answer, status, attempts, image, transcript, created_at`

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	image TEXT,
	transcript TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, idx);
`

// New opens (creating if needed) the database at path and applies the
// schema.
func New(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers; a small pool avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveTurn persists a turn record.
func (s *Store) SaveTurn(ctx context.Context, turn *api.TurnRecord) error {
	transcript, err := json.Marshal(turn.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	var image any
	if turn.Image != "" {
		image = turn.Image
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (`+turnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Index, turn.Question, turn.Answer,
		string(turn.Status), turn.Attempts, image, string(transcript), turn.CreatedAt,
	)
	if err != nil {
		if isConstraint(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// GetTurn retrieves a turn record by ID.
func (s *Store) GetTurn(ctx context.Context, id string) (*api.TurnRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = ?`, id)
	turn, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan turn row: %w", err)
	}
	return turn, nil
}

// ListTurns returns a page of one session's records ordered by index.
func (s *Store) ListTurns(ctx context.Context, sessionID string, opts storage.ListOptions) (*api.TurnList, error) {
	limit := opts.EffectiveLimit()

	query := `SELECT ` + turnColumns + ` FROM turns WHERE session_id = ?`
	args := []any{sessionID}

	cmp, order := ">", "ASC"
	if opts.Descending() {
		cmp, order = "<", "DESC"
	}
	if opts.After != "" {
		query += ` AND idx ` + cmp + ` (SELECT idx FROM turns WHERE id = ? AND session_id = ?)`
		args = append(args, opts.After, sessionID)
	}
	query += ` ORDER BY idx ` + order + ` LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []*api.TurnRecord
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return storage.NewTurnList(turns, limit), nil
}

// DeleteSession removes every record of a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session turns: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(row scanner) (*api.TurnRecord, error) {
	var turn api.TurnRecord
	var status, transcript string
	var image sql.NullString

	if err := row.Scan(
		&turn.ID, &turn.SessionID, &turn.Index, &turn.Question, &turn.Answer,
		&status, &turn.Attempts, &image, &transcript, &turn.CreatedAt,
	); err != nil {
		return nil, err
	}

	turn.Status = api.TurnStatus(status)
	turn.Image = image.String
	if err := json.Unmarshal([]byte(transcript), &turn.Transcript); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return &turn, nil
}

// isConstraint reports a primary key or unique violation.
func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
