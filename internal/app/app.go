// Package app wires the testcall subsystems into a running harness.
//
// The App owns the full lifecycle: New connects the booking store, builds the
// stage gateways around the configured providers and creates the
// conversation controller; Shutdown ends any live call and tears everything
// down in order.
//
// For testing, inject mock implementations via functional options
// (WithDevices, WithBookingStore, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/testcall/internal/booking"
	"github.com/MrWong99/testcall/internal/capture"
	"github.com/MrWong99/testcall/internal/config"
	"github.com/MrWong99/testcall/internal/conversation"
	"github.com/MrWong99/testcall/internal/dialogue"
	"github.com/MrWong99/testcall/internal/extraction"
	"github.com/MrWong99/testcall/internal/health"
	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/internal/playback"
	"github.com/MrWong99/testcall/internal/resilience"
	"github.com/MrWong99/testcall/internal/transcript"
	"github.com/MrWong99/testcall/internal/transcription"
	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/audio/ffmpeg"
	"github.com/MrWong99/testcall/pkg/provider/llm"
	"github.com/MrWong99/testcall/pkg/provider/stt"
	"github.com/MrWong99/testcall/pkg/provider/tts"
	"github.com/MrWong99/testcall/pkg/types"
)

// ErrNothingToAccept is returned by AcceptBooking when no extraction is
// under review.
var ErrNothingToAccept = errors.New("app: no booking under review")

// Providers holds one interface value per provider slot. Extraction may be
// nil, in which case the chat LLM is used. Populated by [BuildProviders] or
// by tests.
type Providers struct {
	LLM        llm.Provider
	Extraction llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
}

// Devices are the host audio primitives.
type Devices struct {
	Permissions audio.Permissions
	Session     audio.Session
	Recorder    audio.Recorder
	Player      audio.Player
}

// App owns all subsystem lifetimes for one harness process.
type App struct {
	cfg       *config.Config
	providers *Providers
	devices   *Devices
	store     booking.Store
	metrics   *observe.Metrics
	sink      conversation.EventSink
	observer  playback.Observer
	now       func() time.Time

	// Built once in New; shared by every controller generation.
	capture     *capture.Session
	speaker     *playback.Speaker
	transcriber *transcription.Gateway
	replier     *dialogue.Engine
	extractor   *extraction.Gateway

	mu           sync.Mutex
	receptionist config.ReceptionistConfig
	harness      config.HarnessConfig
	pending      *config.HarnessConfig
	ctrl         *conversation.Controller

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBookingStore injects a booking store instead of opening one from config.
// The App does not close an injected store.
func WithBookingStore(s booking.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDevices injects audio devices instead of the ffmpeg host devices.
func WithDevices(d Devices) Option {
	return func(a *App) { a.devices = &d }
}

// WithMetrics records stage, provider and call metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSink sets the receiver for conversation events.
func WithSink(s conversation.EventSink) Option {
	return func(a *App) { a.sink = s }
}

// WithSpeakingObserver registers a playback observer (speaking indicators).
func WithSpeakingObserver(o playback.Observer) Option {
	return func(a *App) { a.observer = o }
}

// WithClock overrides the clock used for booking timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders]. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: llm, stt and tts providers are required")
	}
	a := &App{
		cfg:          cfg,
		providers:    providers,
		now:          time.Now,
		receptionist: cfg.Receptionist,
		harness:      cfg.Harness,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Devices ───────────────────────────────────────────────────────
	if a.devices == nil {
		a.devices = defaultDevices(cfg.Audio)
	}

	// ── 2. Cache directory ───────────────────────────────────────────────
	if dir := cfg.Harness.CacheDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create cache dir: %w", err)
		}
	}

	// ── 3. Booking store ─────────────────────────────────────────────────
	if a.store == nil {
		store, err := booking.Open(ctx, cfg.Bookings)
		if err != nil {
			return nil, fmt.Errorf("app: open booking store: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	// ── 4. Stage gateways ────────────────────────────────────────────────
	if err := a.initGateways(); err != nil {
		a.closeAll()
		return nil, err
	}

	// ── 5. Conversation controller ───────────────────────────────────────
	a.ctrl = a.newController(a.harness)

	slog.Info("app initialised",
		"bookings", cfg.Bookings.Backend,
		"extraction_threshold", cfg.Harness.ExtractionThreshold,
		"max_capture", cfg.Harness.MaxCapture,
	)
	return a, nil
}

func defaultDevices(cfg config.AudioConfig) *Devices {
	host := ffmpeg.NewHost(cfg.MicrophoneConsent(), cfg.CaptureCommand)
	return &Devices{
		Permissions: host,
		Session:     host,
		Recorder: ffmpeg.NewRecorder(
			ffmpeg.WithCommand(cfg.CaptureCommand),
			ffmpeg.WithInput(cfg.InputFormat, cfg.InputDevice),
		),
		Player: ffmpeg.NewPlayer(cfg.PlayerCommand),
	}
}

func (a *App) initGateways() error {
	stages := a.cfg.Providers

	playOpts := []playback.Option{playback.WithDir(a.cfg.Harness.CacheDir)}
	if a.observer != nil {
		playOpts = append(playOpts, playback.WithObserver(a.observer))
	}
	if a.metrics != nil {
		playOpts = append(playOpts, playback.WithMetrics(a.metrics))
	}
	a.capture = capture.New(a.devices.Recorder, a.devices.Session,
		capture.WithDir(a.cfg.Harness.CacheDir),
		capture.WithMaxDuration(a.harness.MaxCapture),
	)
	a.speaker = playback.New(a.providers.TTS, a.devices.Player, a.devices.Session, playOpts...)

	sttOpts := []transcription.Option{transcription.WithCorrector(transcript.NewCorrector(nil))}
	if lang := optString(stages.STT.Options, "language"); lang != "" {
		sttOpts = append(sttOpts, transcription.WithLanguage(lang))
	}
	if a.metrics != nil {
		sttOpts = append(sttOpts, transcription.WithMetrics(a.metrics))
	}
	a.transcriber = transcription.New(a.providers.STT, sttOpts...)

	var dlgOpts []dialogue.Option
	if temp, ok := optFloat(stages.LLM.Options, "temperature"); ok {
		dlgOpts = append(dlgOpts, dialogue.WithTemperature(temp))
	}
	if n, ok := optFloat(stages.LLM.Options, "max_tokens"); ok {
		dlgOpts = append(dlgOpts, dialogue.WithMaxTokens(int(n)))
	}
	if a.metrics != nil {
		dlgOpts = append(dlgOpts, dialogue.WithMetrics(a.metrics))
	}
	a.replier = dialogue.NewEngine(a.providers.LLM, dlgOpts...)

	extractLLM := a.providers.Extraction
	if extractLLM == nil {
		extractLLM = a.providers.LLM
	}
	extOpts := []extraction.Option{extraction.WithClock(a.now)}
	if a.metrics != nil {
		extOpts = append(extOpts, extraction.WithMetrics(a.metrics))
	}
	gw, err := extraction.New(extractLLM, extOpts...)
	if err != nil {
		return fmt.Errorf("app: init extraction: %w", err)
	}
	a.extractor = gw
	return nil
}

// newController builds a controller for the given harness settings. Every
// generation shares the one capture session, so the microphone stays
// exclusive across reloads; only its ceiling follows h.
func (a *App) newController(h config.HarnessConfig) *conversation.Controller {
	a.capture.SetMaxDuration(h.MaxCapture)

	stageTimeout := h.StageTimeout
	if stageTimeout < 0 {
		stageTimeout = 0
	}
	opts := []conversation.Option{
		conversation.WithAutoCloseDelay(h.AutoCloseDelay),
		conversation.WithStageTimeout(stageTimeout),
		conversation.WithExtractionThreshold(h.ExtractionThreshold),
	}
	if a.sink != nil {
		opts = append(opts, conversation.WithSink(a.sink))
	}
	if a.metrics != nil {
		opts = append(opts, conversation.WithMetrics(a.metrics))
	}
	return conversation.New(conversation.Deps{
		Permissions: a.devices.Permissions,
		Capture:     a.capture,
		Speaker:     a.speaker,
		Transcriber: a.transcriber,
		Dialogue:    a.replier,
		Extractor:   a.extractor,
	}, opts...)
}

// ─── Calls ───────────────────────────────────────────────────────────────────

// Controller returns the current conversation controller. A harness change
// applied through ApplyConfig replaces it at the next StartCall.
func (a *App) Controller() *conversation.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctrl
}

// StartCall starts a call with a snapshot of the current receptionist
// config. ctx bounds the whole call.
func (a *App) StartCall(ctx context.Context) error {
	a.mu.Lock()
	if a.pending != nil && a.ctrl.State() == conversation.StateIdle {
		a.harness = *a.pending
		a.pending = nil
		a.ctrl = a.newController(a.harness)
		slog.Info("harness settings applied", "max_capture", a.harness.MaxCapture,
			"extraction_threshold", a.harness.ExtractionThreshold)
	}
	ctrl := a.ctrl
	cfg := a.receptionist.CallConfig()
	a.mu.Unlock()

	return ctrl.StartCall(ctx, cfg)
}

// ApplyConfig takes the receptionist and harness sections of a reloaded
// config. Both apply from the next call on; a live call keeps its snapshot.
// Other sections are ignored until restart.
func (a *App) ApplyConfig(next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.receptionist = next.Receptionist
	if next.Harness != a.harness {
		h := next.Harness
		a.pending = &h
	} else {
		a.pending = nil
	}
}

// AcceptBooking saves the booking under review and returns the harness to
// idle.
func (a *App) AcceptBooking(ctx context.Context) (booking.Booking, error) {
	ctrl := a.Controller()
	review, err := ctrl.Review()
	if errors.Is(err, conversation.ErrNoReview) {
		return booking.Booking{}, ErrNothingToAccept
	}
	if err != nil {
		return booking.Booking{}, fmt.Errorf("app: accept booking: %w", err)
	}

	b := booking.New(review.CallID, review.Job, review.Transcript, a.now())
	if err := a.store.Save(ctx, b); err != nil {
		return booking.Booking{}, fmt.Errorf("app: accept booking: %w", err)
	}
	if err := ctrl.Dismiss(); err != nil {
		slog.Warn("app: dismiss after accept", "call_id", review.CallID, "err", err)
	}
	observe.CallLogger(ctx, review.CallID).Info("booking saved",
		"booking_id", b.ID, "service", review.Job.ServiceType)
	return b, nil
}

// Bookings lists stored bookings, newest first. limit <= 0 returns all.
func (a *App) Bookings(ctx context.Context, limit int) ([]booking.Booking, error) {
	return a.store.List(ctx, limit)
}

// Voices lists the voices offered by the TTS provider.
func (a *App) Voices(ctx context.Context) ([]types.VoiceProfile, error) {
	voices, err := a.providers.TTS.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list voices: %w", err)
	}
	return voices, nil
}

// ─── Health ──────────────────────────────────────────────────────────────────

// HealthCheckers returns the readiness checks for the admin server.
func (a *App) HealthCheckers() []health.Checker {
	return []health.Checker{
		{Name: "bookings", Check: a.store.Ping},
	}
}

// breakerReporter is implemented by the resilience fallback wrappers.
type breakerReporter interface {
	States() map[string]resilience.State
}

// Status is the harness view reported on /readyz.
type Status struct {
	State    string                       `json:"state"`
	CallID   string                       `json:"call_id,omitempty"`
	Turns    int                          `json:"turns"`
	Breakers map[string]map[string]string `json:"breakers,omitempty"`
}

// Status returns the current harness status.
func (a *App) Status() any {
	snap := a.Controller().Snapshot()
	st := Status{
		State:  snap.State.String(),
		CallID: snap.CallID,
		Turns:  len(snap.Turns),
	}
	for kind, p := range map[string]any{
		"llm": a.providers.LLM,
		"stt": a.providers.STT,
		"tts": a.providers.TTS,
	} {
		r, ok := p.(breakerReporter)
		if !ok {
			continue
		}
		if st.Breakers == nil {
			st.Breakers = make(map[string]map[string]string)
		}
		states := make(map[string]string)
		for name, s := range r.States() {
			states[name] = s.String()
		}
		st.Breakers[kind] = states
	}
	return st
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends any live call and releases resources in order. It honours
// the context deadline: if ctx expires before all closers finish, Shutdown
// returns ctx.Err().
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if ctrl := a.Controller(); ctrl.State().Live() {
			if err := ctrl.EndCall(); err != nil && !errors.Is(err, conversation.ErrNoCall) {
				slog.Warn("app: end call on shutdown", "err", err)
			}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			a.closeAll()
		}()

		select {
		case <-done:
		case <-ctx.Done():
			shutdownErr = ctx.Err()
		}
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			slog.Warn("shutdown: closer error", "err", err)
		}
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a numeric value from a provider Options map. YAML
// decodes whole numbers as int, so both are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
