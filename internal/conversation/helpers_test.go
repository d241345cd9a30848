package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/testcall/internal/capture"
	"github.com/MrWong99/testcall/internal/playback"
	"github.com/MrWong99/testcall/pkg/audio"
	audiomock "github.com/MrWong99/testcall/pkg/audio/mock"
	ttsmock "github.com/MrWong99/testcall/pkg/provider/tts/mock"
	"github.com/MrWong99/testcall/pkg/types"
)

// ─── devices ─────────────────────────────────────────────────────────────────

// exclusiveDevices wraps the mock recorder and player and counts every
// instant at which both were live.
type exclusiveDevices struct {
	rec    *audiomock.Recorder
	player *audiomock.Player

	mu         sync.Mutex
	recording  int
	playing    int
	violations int
}

func (d *exclusiveDevices) Record(ctx context.Context, path string, f audio.Format) (audio.RecordHandle, error) {
	h, err := d.rec.Record(ctx, path, f)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.playing > 0 {
		d.violations++
	}
	d.recording++
	d.mu.Unlock()
	return &trackedHandle{RecordHandle: h, d: d}, nil
}

func (d *exclusiveDevices) Play(ctx context.Context, path string) error {
	d.mu.Lock()
	if d.recording > 0 {
		d.violations++
	}
	d.playing++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.playing--
		d.mu.Unlock()
	}()
	return d.player.Play(ctx, path)
}

func (d *exclusiveDevices) Violations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violations
}

type trackedHandle struct {
	audio.RecordHandle
	d    *exclusiveDevices
	once sync.Once
}

func (h *trackedHandle) Stop() error {
	err := h.RecordHandle.Stop()
	h.once.Do(func() {
		h.d.mu.Lock()
		h.d.recording--
		h.d.mu.Unlock()
	})
	return err
}

// ─── collaborators ───────────────────────────────────────────────────────────

type transcribeResult struct {
	text string
	err  error
}

// fakeTranscriber returns scripted results, or "caller N" once they run out.
// A non-nil gate holds every call until closed, ignoring cancellation, to
// model a result that arrives late.
type fakeTranscriber struct {
	mu       sync.Mutex
	results  []transcribeResult
	gate     chan struct{}
	calls    int
	returned int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, _ []string) (string, error) {
	f.mu.Lock()
	f.calls++
	r := transcribeResult{text: fmt.Sprintf("caller %d", f.calls)}
	if len(f.results) > 0 {
		r = f.results[0]
		f.results = f.results[1:]
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	f.returned++
	f.mu.Unlock()
	return r.text, r.err
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTranscriber) Returned() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.returned
}

type replyCall struct {
	prompt    string
	history   []types.Turn
	utterance string
}

type fakeReplier struct {
	mu    sync.Mutex
	errs  []error
	calls []replyCall
}

func (f *fakeReplier) NextReply(_ context.Context, prompt string, history []types.Turn, utterance string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, replyCall{prompt: prompt, history: history, utterance: utterance})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "reply to " + utterance, nil
}

func (f *fakeReplier) Calls() []replyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]replyCall(nil), f.calls...)
}

type fakeExtractor struct {
	mu          sync.Mutex
	job         *types.JobExtraction
	err         error
	transcripts []string
}

func (f *fakeExtractor) Extract(_ context.Context, text string) (*types.JobExtraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.job == nil {
		return nil, nil
	}
	job := *f.job
	return &job, nil
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transcripts)
}

// ─── sink and timers ─────────────────────────────────────────────────────────

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) HandleEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) Transitions() []State {
	var out []State
	for _, e := range s.Events() {
		if sc, ok := e.(StateChanged); ok {
			out = append(out, sc.To)
		}
	}
	return out
}

func (s *recordingSink) Notices() []Notice {
	var out []Notice
	for _, e := range s.Events() {
		if n, ok := e.(Notice); ok {
			out = append(out, n)
		}
	}
	return out
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	was := !f.stopped
	f.stopped = true
	return was
}

// ─── harness ─────────────────────────────────────────────────────────────────

type harness struct {
	ctrl        *Controller
	perms       *audiomock.Permissions
	devices     *exclusiveDevices
	tts         *ttsmock.Provider
	transcriber *fakeTranscriber
	replier     *fakeReplier
	extractor   *fakeExtractor
	sink        *recordingSink

	timerMu sync.Mutex
	timers  []*fakeTimer
}

func flynnConfig() types.CallConfig {
	return types.CallConfig{
		Greeting:  "Hi, this is Flynn.",
		Questions: []string{"What's the issue?", "What's your address?"},
		VoiceID:   "rachel",
	}
}

// newHarness builds a controller over mock devices. maxCapture of zero
// disables the capture ceiling.
func newHarness(t *testing.T, maxCapture time.Duration, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		perms:       &audiomock.Permissions{Granted: true},
		devices:     &exclusiveDevices{rec: &audiomock.Recorder{PCM: make([]byte, 3200)}, player: &audiomock.Player{}},
		tts:         &ttsmock.Provider{},
		transcriber: &fakeTranscriber{},
		replier:     &fakeReplier{},
		extractor:   &fakeExtractor{},
		sink:        &recordingSink{},
	}
	deps := Deps{
		Permissions: h.perms,
		Capture:     capture.New(h.devices, nil, capture.WithDir(dir), capture.WithMaxDuration(maxCapture)),
		Speaker:     playback.New(h.tts, h.devices, nil, playback.WithDir(dir)),
		Transcriber: h.transcriber,
		Dialogue:    h.replier,
		Extractor:   h.extractor,
	}
	h.ctrl = New(deps, append([]Option{WithSink(h.sink)}, opts...)...)
	h.ctrl.afterFunc = func(d time.Duration, fn func()) timer {
		h.timerMu.Lock()
		defer h.timerMu.Unlock()
		ft := &fakeTimer{d: d, fn: fn}
		h.timers = append(h.timers, ft)
		return ft
	}
	t.Cleanup(func() { _ = h.ctrl.EndCall() })
	return h
}

func (h *harness) Timers() []*fakeTimer {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	return append([]*fakeTimer(nil), h.timers...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// listeningWith waits until the transcript holds n turns and the
// microphone is open again.
func (h *harness) listeningWith(t *testing.T, n int) {
	t.Helper()
	waitFor(t, fmt.Sprintf("listening with %d turns", n), func() bool {
		s := h.ctrl.Snapshot()
		return s.Listening && len(s.Turns) == n
	})
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.ctrl.StartCall(context.Background(), flynnConfig()); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	h.listeningWith(t, 1)
}

// exchange sends the current utterance and waits for the next listen.
func (h *harness) exchange(t *testing.T) {
	t.Helper()
	n := len(h.ctrl.Snapshot().Turns)
	if err := h.ctrl.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}
	h.listeningWith(t, n+2)
}

func conf(v float64) *float64 { return &v }
