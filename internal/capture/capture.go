// Package capture owns the microphone for the duration of one caller
// utterance.
//
// A [Session] hands out at most one live [Recording] at a time. Each
// recording writes a transient WAV file and ends exactly once, for one of
// these reasons: the caller stopped it, the maximum duration elapsed, the
// call was torn down, or the device stopped delivering audio. Whichever
// happens first wins; later triggers are no-ops.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/testcall/pkg/audio"
)

// ErrBusy is returned by Start while another recording is live.
var ErrBusy = errors.New("capture: recording already in progress")

// DefaultMaxDuration is the capture ceiling used when none is configured.
const DefaultMaxDuration = 10 * time.Second

// Reason records why a recording ended.
type Reason int

const (
	// ReasonNone means the recording is still live.
	ReasonNone Reason = iota

	// ReasonManual means Stop was called.
	ReasonManual

	// ReasonMaxDuration means the duration ceiling fired.
	ReasonMaxDuration

	// ReasonDiscarded means the recording was thrown away (call ended).
	ReasonDiscarded

	// ReasonDevice means the device stopped on its own.
	ReasonDevice
)

// String returns the reason name used in logs.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonManual:
		return "manual"
	case ReasonMaxDuration:
		return "max_duration"
	case ReasonDiscarded:
		return "discarded"
	case ReasonDevice:
		return "device"
	default:
		return "unknown"
	}
}

// timer is the part of *time.Timer the session uses.
type timer interface {
	Stop() bool
}

// Option configures a Session.
type Option func(*Session)

// WithMaxDuration sets the capture ceiling. Zero or negative disables it.
func WithMaxDuration(d time.Duration) Option {
	return func(s *Session) {
		s.maxDuration = d
	}
}

// WithDir sets the directory for transient recordings. Defaults to
// os.TempDir().
func WithDir(dir string) Option {
	return func(s *Session) {
		if dir != "" {
			s.dir = dir
		}
	}
}

// WithFormat sets the recording format. Defaults to audio.SpeechFormat.
func WithFormat(f audio.Format) Option {
	return func(s *Session) {
		s.format = f
	}
}

// Session guards the microphone.
type Session struct {
	recorder    audio.Recorder
	session     audio.Session
	dir         string
	format      audio.Format
	maxDuration time.Duration
	afterFunc   func(time.Duration, func()) timer

	mu   sync.Mutex
	live *Recording
}

// New creates a Session that records with rec and switches sess into record
// mode for every recording. sess may be nil on hosts without a shared session.
func New(rec audio.Recorder, sess audio.Session, opts ...Option) *Session {
	s := &Session{
		recorder:    rec,
		session:     sess,
		dir:         os.TempDir(),
		format:      audio.SpeechFormat,
		maxDuration: DefaultMaxDuration,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start acquires the microphone and begins recording to a new transient file.
// It returns ErrBusy while another recording is live.
func (s *Session) Start(ctx context.Context) (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != nil {
		return nil, ErrBusy
	}

	if s.session != nil {
		if err := s.session.Configure(ctx, audio.ModeRecord); err != nil {
			return nil, fmt.Errorf("capture: configure session: %w", err)
		}
	}

	path := filepath.Join(s.dir, "capture_"+uuid.NewString()+".wav")
	h, err := s.recorder.Record(ctx, path, s.format)
	if err != nil {
		s.idle()
		return nil, fmt.Errorf("capture: start recorder: %w", err)
	}

	r := &Recording{
		owner:   s,
		handle:  h,
		path:    path,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	if s.maxDuration > 0 {
		// finish takes r.mu, so a ceiling that fires at once waits for the
		// timer to be stored.
		r.mu.Lock()
		r.timer = s.afterFunc(s.maxDuration, func() { r.finish(ReasonMaxDuration) })
		r.mu.Unlock()
	}
	go func() {
		select {
		case <-h.Done():
			r.finish(ReasonDevice)
		case <-r.done:
		}
	}()
	s.live = r
	slog.Debug("capture: recording started", "path", path, "max_duration", s.maxDuration)
	return r, nil
}

// SetMaxDuration changes the capture ceiling for later recordings. A live
// recording keeps the ceiling it started with.
func (s *Session) SetMaxDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxDuration = d
}

// MaxDuration returns the ceiling the next recording will use.
func (s *Session) MaxDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxDuration
}

// Active reports whether a recording is live.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live != nil
}

func (s *Session) release(r *Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == r {
		s.live = nil
		s.idle()
	}
}

// idle returns the shared session to idle. Errors are logged only.
func (s *Session) idle() {
	if s.session == nil {
		return
	}
	if err := s.session.Configure(context.Background(), audio.ModeIdle); err != nil {
		slog.Warn("capture: release session", "err", err)
	}
}

// Recording is one live or finished capture.
type Recording struct {
	owner   *Session
	handle  audio.RecordHandle
	path    string
	started time.Time

	mu    sync.Mutex
	timer timer

	once     sync.Once
	done     chan struct{}
	reason   Reason
	err      error
	duration time.Duration
}

// finish ends the recording exactly once. The handle is always released, even
// when stopping it fails.
func (r *Recording) finish(reason Reason) {
	r.once.Do(func() {
		r.mu.Lock()
		t := r.timer
		r.mu.Unlock()
		if t != nil {
			t.Stop()
		}
		err := r.handle.Stop()
		if reason == ReasonDiscarded {
			err = nil
			_ = os.Remove(r.path)
		}
		r.owner.release(r)

		r.reason = reason
		r.err = err
		r.duration = time.Since(r.started)
		slog.Debug("capture: recording ended", "path", r.path, "reason", reason, "duration", r.duration, "err", err)
		close(r.done)
	})
}

// Stop finalises the file and releases the microphone. It is a no-op after
// the recording has already ended and then returns the first result.
func (r *Recording) Stop() error {
	r.finish(ReasonManual)
	<-r.done
	return r.err
}

// Discard stops the recording, ignores any error and deletes the file.
func (r *Recording) Discard() {
	r.finish(ReasonDiscarded)
	<-r.done
}

// Done is closed when the recording has ended for any reason.
func (r *Recording) Done() <-chan struct{} { return r.done }

// Reason reports why the recording ended, or ReasonNone while it is live.
func (r *Recording) Reason() Reason {
	select {
	case <-r.done:
		return r.reason
	default:
		return ReasonNone
	}
}

// Err returns the error from stopping the device, if any. Valid after Done.
func (r *Recording) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Duration returns how long the recording ran. Valid after Done.
func (r *Recording) Duration() time.Duration {
	select {
	case <-r.done:
		return r.duration
	default:
		return 0
	}
}

// Path returns the transient WAV file path.
func (r *Recording) Path() string { return r.path }

// Remove deletes the transient file. A missing file is not an error.
func (r *Recording) Remove() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("capture: remove %s: %w", r.path, err)
	}
	return nil
}
