// Package postgres provides a PostgreSQL implementation of storage.TurnStore.
// It uses pgx/v5 for connection pooling and JSONB for the transcript.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
)

// Store is a PostgreSQL-backed TurnStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.TurnStore at compile time.
var _ storage.TurnStore = (*Store)(nil)

const turnColumns = `id, session_id, idx, question, answer, status, attempts, image, transcript, created_at`

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveTurn persists a turn record.
func (s *Store) SaveTurn(ctx context.Context, turn *api.TurnRecord) error {
	transcript, err := json.Marshal(turn.Transcript)
	if err != nil {
		return fmt.Errorf("marshaling transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO turns (`+turnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		turn.ID, turn.SessionID, turn.Index, turn.Question, turn.Answer,
		string(turn.Status), turn.Attempts, nullString(turn.Image), transcript, turn.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// GetTurn retrieves a turn record by ID.
func (s *Store) GetTurn(ctx context.Context, id string) (*api.TurnRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = $1`, id)
	turn, err := scanTurn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying turn: %w", err)
	}
	return turn, nil
}

// ListTurns returns a page of one session's records ordered by index.
func (s *Store) ListTurns(ctx context.Context, sessionID string, opts storage.ListOptions) (*api.TurnList, error) {
	limit := opts.EffectiveLimit()

	query := `SELECT ` + turnColumns + ` FROM turns WHERE session_id = $1`
	args := []any{sessionID}

	cmp, order := ">", "ASC"
	if opts.Descending() {
		cmp, order = "<", "DESC"
	}
	if opts.After != "" {
		query += fmt.Sprintf(" AND idx %s (SELECT idx FROM turns WHERE id = $2 AND session_id = $1)", cmp)
		args = append(args, opts.After)
	}
	query += fmt.Sprintf(" ORDER BY idx %s LIMIT %d", order, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	var turns []*api.TurnRecord
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	return storage.NewTurnList(turns, limit), nil
}

// DeleteSession removes every record of a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM turns WHERE session_id = $1", sessionID); err != nil {
		return fmt.Errorf("deleting session turns: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanTurn(row pgx.Row) (*api.TurnRecord, error) {
	var turn api.TurnRecord
	var status string
	var image *string
	var transcript []byte

	if err := row.Scan(
		&turn.ID, &turn.SessionID, &turn.Index, &turn.Question, &turn.Answer,
		&status, &turn.Attempts, &image, &transcript, &turn.CreatedAt,
	); err != nil {
		return nil, err
	}

	turn.Status = api.TurnStatus(status)
	if image != nil {
		turn.Image = *image
	}
	if err := json.Unmarshal(transcript, &turn.Transcript); err != nil {
		return nil, fmt.Errorf("unmarshaling transcript: %w", err)
	}
	return &turn, nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
