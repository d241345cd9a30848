package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS bookings (
    id          TEXT         PRIMARY KEY,
    call_id     TEXT         NOT NULL,
    job         JSONB        NOT NULL,
    transcript  TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookings_created_at
    ON bookings (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_bookings_call_id
    ON bookings (call_id);
`

// pgxDB is the subset of [pgxpool.Pool] the store uses.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

var _ pgxDB = (*pgxpool.Pool)(nil)

// PostgresStore keeps bookings in PostgreSQL.
type PostgresStore struct {
	db pgxDB
}

// OpenPostgres connects to dsn, verifies the connection and runs the
// migration.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("booking: postgres: dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("booking: postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("booking: postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("booking: postgres: ping: %w", err)
	}
	s := &PostgresStore{db: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the bookings table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("booking: postgres: migrate: %w", err)
	}
	return nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, b Booking) error {
	if err := b.validate(); err != nil {
		return err
	}
	job, err := json.Marshal(b.Job)
	if err != nil {
		return fmt.Errorf("booking: postgres: encode job: %w", err)
	}
	const q = `
		INSERT INTO bookings (id, call_id, job, transcript, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.Exec(ctx, q, b.ID, b.CallID, job, b.Transcript, b.CreatedAt); err != nil {
		return fmt.Errorf("booking: postgres: save: %w", err)
	}
	return nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Booking, error) {
	q := `
		SELECT id, call_id, job, transcript, created_at
		FROM   bookings
		ORDER  BY created_at DESC`
	var args []any
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("booking: postgres: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Booking, error) {
		var (
			b   Booking
			job []byte
		)
		if err := row.Scan(&b.ID, &b.CallID, &job, &b.Transcript, &b.CreatedAt); err != nil {
			return Booking{}, err
		}
		if err := json.Unmarshal(job, &b.Job); err != nil {
			return Booking{}, fmt.Errorf("decode job %s: %w", b.ID, err)
		}
		b.CreatedAt = b.CreatedAt.UTC()
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("booking: postgres: scan rows: %w", err)
	}
	if out == nil {
		out = []Booking{}
	}
	return out, nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close implements [Store].
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
