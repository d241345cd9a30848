package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ─── fake pgx ────────────────────────────────────────────────────────────────

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu       sync.Mutex
	execErr  error
	queryErr error
	rows     [][]any
	execs    []execCall
	queries  []execCall
	closed   bool
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, execCall{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows, pos: -1}, nil
}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// fakeRows serves canned values. Each value is assigned to the matching
// Scan destination by reflection.
type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.pos], nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	s := &PostgresStore{db: db}
	b := sampleBooking("call-1", 0)

	if err := s.Save(context.Background(), b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("want 1 exec, got %d", len(db.execs))
	}
	call := db.execs[0]
	if !strings.Contains(call.sql, "INSERT INTO bookings") {
		t.Errorf("unexpected sql %q", call.sql)
	}
	wantJob, _ := json.Marshal(b.Job)
	if call.args[0] != b.ID || call.args[1] != "call-1" || string(call.args[2].([]byte)) != string(wantJob) {
		t.Errorf("unexpected args %v", call.args)
	}
	if !call.args[4].(time.Time).Equal(b.CreatedAt) {
		t.Errorf("want created_at %v, got %v", b.CreatedAt, call.args[4])
	}
}

func TestPostgresStore_SaveErrors(t *testing.T) {
	t.Parallel()
	db := &fakeDB{execErr: errors.New("connection reset")}
	s := &PostgresStore{db: db}

	err := s.Save(context.Background(), sampleBooking("call-1", 0))
	if err == nil || !strings.Contains(err.Error(), "booking: postgres: save: connection reset") {
		t.Errorf("want wrapped save error, got %v", err)
	}
	if err := s.Save(context.Background(), Booking{ID: "x"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("want ErrInvalid, got %v", err)
	}
	if len(db.execs) != 1 {
		t.Errorf("invalid booking must not reach the database, got %d execs", len(db.execs))
	}
}

func TestPostgresStore_List(t *testing.T) {
	t.Parallel()
	b := sampleBooking("call-1", 0)
	job, _ := json.Marshal(b.Job)
	db := &fakeDB{rows: [][]any{{b.ID, b.CallID, job, b.Transcript, b.CreatedAt.In(time.FixedZone("X", 3600))}}}
	s := &PostgresStore{db: db}

	got, err := s.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 booking, got %d", len(got))
	}
	assertSameBooking(t, b, got[0])
	if got[0].CreatedAt.Location() != time.UTC {
		t.Errorf("want UTC timestamps, got %v", got[0].CreatedAt.Location())
	}
	q := db.queries[0]
	if !strings.Contains(q.sql, "LIMIT $1") || len(q.args) != 1 || q.args[0] != 10 {
		t.Errorf("want LIMIT $1 with 10, got %q %v", q.sql, q.args)
	}
}

func TestPostgresStore_ListEmptyAndErrors(t *testing.T) {
	t.Parallel()

	s := &PostgresStore{db: &fakeDB{}}
	got, err := s.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", got)
	}

	s = &PostgresStore{db: &fakeDB{queryErr: errors.New("timeout")}}
	if _, err := s.List(context.Background(), 0); err == nil || !strings.Contains(err.Error(), "booking: postgres: list") {
		t.Errorf("want wrapped list error, got %v", err)
	}

	s = &PostgresStore{db: &fakeDB{rows: [][]any{{"b1", "c1", []byte("{oops"), "", time.Now()}}}}
	if _, err := s.List(context.Background(), 0); err == nil || !strings.Contains(err.Error(), "decode job b1") {
		t.Errorf("want decode error, got %v", err)
	}
}

func TestPostgresStore_MigrateAndClose(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	s := &PostgresStore{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS bookings") {
		t.Errorf("unexpected migration sql %q", db.execs[0].sql)
	}
	if err := s.Close(); err != nil || !db.closed {
		t.Errorf("want pool closed, got err=%v closed=%v", err, db.closed)
	}
}

// TestPostgresStore_Integration runs against a real database when
// TESTCALL_TEST_POSTGRES_DSN is set.
func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("TESTCALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TESTCALL_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration test")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.db.Exec(ctx, "TRUNCATE bookings"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, s)
}
