package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bookings (
    id          TEXT    PRIMARY KEY,
    call_id     TEXT    NOT NULL,
    job         TEXT    NOT NULL,
    transcript  TEXT    NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings (created_at);
`

// SQLiteStore keeps bookings in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("booking: sqlite: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("booking: sqlite: open: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("booking: sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("booking: sqlite: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements [Store].
func (s *SQLiteStore) Save(ctx context.Context, b Booking) error {
	if err := b.validate(); err != nil {
		return err
	}
	job, err := json.Marshal(b.Job)
	if err != nil {
		return fmt.Errorf("booking: sqlite: encode job: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, call_id, job, transcript, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.CallID, string(job), b.Transcript, b.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("booking: sqlite: save: %w", err)
	}
	return nil
}

// List implements [Store].
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Booking, error) {
	q := `SELECT id, call_id, job, transcript, created_at FROM bookings ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("booking: sqlite: list: %w", err)
	}
	defer rows.Close()

	out := []Booking{}
	for rows.Next() {
		var (
			b       Booking
			job     string
			created int64
		)
		if err := rows.Scan(&b.ID, &b.CallID, &job, &b.Transcript, &created); err != nil {
			return nil, fmt.Errorf("booking: sqlite: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(job), &b.Job); err != nil {
			return nil, fmt.Errorf("booking: sqlite: decode job %s: %w", b.ID, err)
		}
		b.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: sqlite: list: %w", err)
	}
	return out, nil
}

// Ping implements [Store].
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [Store].
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
