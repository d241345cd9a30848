// Package booking persists the bookings an operator accepts at the end of a
// call. A booking is the retained extraction plus the call transcript.
//
// Three backends implement [Store]: a JSON-lines file ([FileStore]), an
// embedded SQLite database ([SQLiteStore]) and PostgreSQL ([PostgresStore]).
// [Open] selects one from configuration.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/testcall/internal/config"
	"github.com/MrWong99/testcall/pkg/types"
)

// ErrInvalid is returned by Save for a booking without an ID or call ID.
var ErrInvalid = errors.New("booking: invalid booking")

// Booking is one accepted extraction.
type Booking struct {
	ID         string              `json:"id"`
	CallID     string              `json:"callId"`
	Job        types.JobExtraction `json:"job"`
	Transcript string              `json:"transcript"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// New returns a Booking with a fresh ID.
func New(callID string, job types.JobExtraction, transcript string, now time.Time) Booking {
	return Booking{
		ID:         uuid.NewString(),
		CallID:     callID,
		Job:        job,
		Transcript: transcript,
		CreatedAt:  now.UTC(),
	}
}

func (b Booking) validate() error {
	switch {
	case b.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalid)
	case b.CallID == "":
		return fmt.Errorf("%w: missing call id", ErrInvalid)
	}
	return nil
}

// Store persists bookings. Implementations are safe for concurrent use.
type Store interface {
	// Save appends b.
	Save(ctx context.Context, b Booking) error

	// List returns up to limit bookings, newest first. A limit of zero or
	// less returns all of them.
	List(ctx context.Context, limit int) ([]Booking, error)

	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.BookingsConfig) (Store, error) {
	switch cfg.Backend {
	case config.BookingFile, "":
		return NewFileStore(cfg.Path)
	case config.BookingSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case config.BookingPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("booking: unknown backend %q", cfg.Backend)
	}
}
