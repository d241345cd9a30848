// Package mock provides in-memory implementations of the [audio.Permissions],
// [audio.Session], [audio.Recorder] and [audio.Player] interfaces for unit
// tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on ordering, and expose exported fields that control return values.
//
// Typical usage:
//
//	rec := &mock.Recorder{PCM: speech}
//	h, _ := rec.Record(ctx, "/tmp/utt.wav", audio.SpeechFormat)
//	_ = h.Stop() // writes /tmp/utt.wav
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/testcall/pkg/audio"
)

// ─── Permissions ─────────────────────────────────────────────────────────────

// Permissions is a mock implementation of [audio.Permissions].
type Permissions struct {
	mu sync.Mutex

	// Granted is returned by RequestMicrophone.
	Granted bool

	// Err is returned by RequestMicrophone.
	Err error

	// Calls counts RequestMicrophone invocations.
	Calls int
}

// RequestMicrophone implements [audio.Permissions].
func (p *Permissions) RequestMicrophone(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	return p.Granted, p.Err
}

// ─── Session ─────────────────────────────────────────────────────────────────

// Session is a mock implementation of [audio.Session]. It records each mode
// it was configured with.
type Session struct {
	mu sync.Mutex

	// Err is returned by Configure.
	Err error

	// Modes records every Configure call in order.
	Modes []audio.Mode
}

// Configure implements [audio.Session].
func (s *Session) Configure(_ context.Context, mode audio.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Modes = append(s.Modes, mode)
	return s.Err
}

// History returns a snapshot of the configured modes.
func (s *Session) History() []audio.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Mode, len(s.Modes))
	copy(out, s.Modes)
	return out
}

// ─── Recorder ────────────────────────────────────────────────────────────────

// Recorder is a mock implementation of [audio.Recorder]. On Stop each handle
// writes PCM to its path as a WAV file in the requested format.
type Recorder struct {
	mu sync.Mutex

	// PCM is the audio "captured" by every recording.
	PCM []byte

	// RecordErr is returned by Record.
	RecordErr error

	// StopErr is returned by the handle's Stop.
	StopErr error

	// Paths records the target path of every Record call.
	Paths []string

	handles []*RecordHandle
}

// Record implements [audio.Recorder].
func (r *Recorder) Record(_ context.Context, path string, f audio.Format) (audio.RecordHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Paths = append(r.Paths, path)
	if r.RecordErr != nil {
		return nil, r.RecordErr
	}
	h := &RecordHandle{path: path, format: f, pcm: r.PCM, stopErr: r.StopErr, done: make(chan struct{})}
	r.handles = append(r.handles, h)
	return h, nil
}

// Handles returns every handle created so far.
func (r *Recorder) Handles() []*RecordHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RecordHandle, len(r.handles))
	copy(out, r.handles)
	return out
}

// Last returns the most recent handle, or nil.
func (r *Recorder) Last() *RecordHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) == 0 {
		return nil
	}
	return r.handles[len(r.handles)-1]
}

// RecordHandle is the mock [audio.RecordHandle].
type RecordHandle struct {
	path    string
	format  audio.Format
	pcm     []byte
	stopErr error

	once  sync.Once
	done  chan struct{}
	mu    sync.Mutex
	stops int
	err   error
}

// Stop implements [audio.RecordHandle]. The first call writes the file.
func (h *RecordHandle) Stop() error {
	h.mu.Lock()
	h.stops++
	h.mu.Unlock()
	h.once.Do(func() {
		if h.stopErr != nil {
			h.err = h.stopErr
		} else {
			h.err = os.WriteFile(h.path, audio.EncodeWAV(h.pcm, h.format), 0o600)
		}
		close(h.done)
	})
	return h.err
}

// Fail simulates the device dropping out: Done closes without a file.
func (h *RecordHandle) Fail() {
	h.once.Do(func() { close(h.done) })
}

// Done implements [audio.RecordHandle].
func (h *RecordHandle) Done() <-chan struct{} { return h.done }

// Path returns the target file path.
func (h *RecordHandle) Path() string { return h.path }

// Stops returns how many times Stop was called.
func (h *RecordHandle) Stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

// ─── Player ──────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// Err is returned by Play.
	Err error

	// Block, when non-nil, makes Play wait until it is closed or ctx ends.
	Block chan struct{}

	// Played records the path of every Play call.
	Played []string

	// Contents records the bytes of each played file, read at call time.
	Contents [][]byte
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, path string) error {
	data, _ := os.ReadFile(path)
	p.mu.Lock()
	p.Played = append(p.Played, path)
	p.Contents = append(p.Contents, data)
	block, err := p.Block, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Count returns the number of Play calls.
func (p *Player) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

var (
	_ audio.Permissions  = (*Permissions)(nil)
	_ audio.Session      = (*Session)(nil)
	_ audio.Recorder     = (*Recorder)(nil)
	_ audio.RecordHandle = (*RecordHandle)(nil)
	_ audio.Player       = (*Player)(nil)
)
