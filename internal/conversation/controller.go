// Package conversation drives one simulated receptionist call at a time.
//
// The [Controller] is the only component that changes the harness state. It
// asks for microphone permission, speaks the greeting, and then alternates
// between listening (capture) and speaking (playback): every captured
// utterance is transcribed, answered, recorded as an exchange in the
// transcript, possibly sent for booking extraction, and the reply is spoken.
// Capture and playback never overlap because the controller only starts one
// after the other has finished.
//
// Every asynchronous step carries the ID of the call it belongs to and is
// applied only if that call is still live, so a result arriving after
// [Controller.EndCall] never changes the transcript or the state.
//
// Problems are never returned from the background steps; they become state
// transitions or [Notice] events on the [EventSink].
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/testcall/internal/capture"
	"github.com/MrWong99/testcall/internal/dialogue"
	"github.com/MrWong99/testcall/internal/extraction"
	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/internal/transcript"
	"github.com/MrWong99/testcall/internal/transcription"
	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/types"
)

var (
	// ErrCallInProgress is returned when an operation needs no live call.
	ErrCallInProgress = errors.New("conversation: call already in progress")

	// ErrNoCall is returned when an operation needs a call and there is none.
	ErrNoCall = errors.New("conversation: no call in progress")

	// ErrNotListening is returned by Send while the microphone is closed.
	ErrNotListening = errors.New("conversation: not listening")

	// ErrBusy is returned by Listen while the harness is speaking, processing
	// or already listening.
	ErrBusy = errors.New("conversation: busy")

	// ErrNoReview is returned by Review outside StateReviewingExtraction.
	ErrNoReview = errors.New("conversation: no extraction under review")

	// ErrInvalidConfig is returned by StartCall for an unusable config.
	ErrInvalidConfig = errors.New("conversation: invalid call config")

	errPermissionDenied = errors.New("conversation: microphone permission denied")
	errCaptureDropped   = errors.New("conversation: microphone stopped delivering audio")
)

const (
	// DefaultAutoCloseDelay is how long an ended call without a booking
	// stays visible before the harness resets to idle.
	DefaultAutoCloseDelay = 3 * time.Second

	// DefaultStageTimeout bounds each transcription, reply and extraction.
	DefaultStageTimeout = 60 * time.Second
)

// Capturer opens the microphone. *capture.Session implements it.
type Capturer interface {
	Start(ctx context.Context) (*capture.Recording, error)
}

// Speaker plays assistant speech. *playback.Speaker implements it.
type Speaker interface {
	Speak(ctx context.Context, text string, voice types.VoiceProfile) bool
	Stop()
}

// Transcriber turns a captured file into caller text. *transcription.Gateway
// implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, vocabulary []string) (string, error)
}

// Replier produces the assistant's next utterance. *dialogue.Engine
// implements it.
type Replier interface {
	NextReply(ctx context.Context, systemPrompt string, history []types.Turn, utterance string) (string, error)
}

// Extractor derives a booking from a rendered transcript.
// *extraction.Gateway implements it.
type Extractor interface {
	Extract(ctx context.Context, transcriptText string) (*types.JobExtraction, error)
}

// Deps are the collaborators a Controller sequences. All are required.
type Deps struct {
	Permissions audio.Permissions
	Capture     Capturer
	Speaker     Speaker
	Transcriber Transcriber
	Dialogue    Replier
	Extractor   Extractor
}

// Option configures a Controller.
type Option func(*Controller)

// WithSink sets the event receiver.
func WithSink(s EventSink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithMetrics records call, turn, extraction and stale-result counts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTracer sets the tracer for call and stage spans. Defaults to
// [observe.Tracer].
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// WithAutoCloseDelay sets how long an ended call without a booking lingers.
func WithAutoCloseDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.autoCloseDelay = d
	}
}

// WithStageTimeout bounds each network-bound stage. Zero disables the bound.
func WithStageTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.stageTimeout = d
	}
}

// WithExtractionThreshold sets the caller-turn count that triggers
// extraction.
func WithExtractionThreshold(n int) Option {
	return func(c *Controller) {
		c.trigger = extraction.NewTrigger(n)
	}
}

type timer interface {
	Stop() bool
}

// call is the per-call state. Fields after log are guarded by Controller.mu.
type call struct {
	id      string
	cfg     types.CallConfig
	prompt  string
	ctx     context.Context
	cancel  context.CancelFunc
	span    trace.Span
	started time.Time
	log     *slog.Logger

	rec      *capture.Recording
	opening  bool
	speaking bool
	job      *types.JobExtraction
}

// Controller is the conversation state machine. All methods are safe for
// concurrent use.
type Controller struct {
	deps           Deps
	sink           EventSink
	metrics        *observe.Metrics
	tracer         trace.Tracer
	autoCloseDelay time.Duration
	stageTimeout   time.Duration
	afterFunc      func(time.Duration, func()) timer

	mu         sync.Mutex
	state      State
	call       *call
	transcript *transcript.Log
	trigger    *extraction.Trigger
	closeTimer timer

	queue    []Event
	draining bool
}

// New creates an idle Controller.
func New(deps Deps, opts ...Option) *Controller {
	c := &Controller{
		deps:           deps,
		tracer:         observe.Tracer(),
		autoCloseDelay: DefaultAutoCloseDelay,
		stageTimeout:   DefaultStageTimeout,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		transcript: transcript.NewLog(),
		trigger:    extraction.NewTrigger(extraction.DefaultThreshold),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ---- operator actions ----

// StartCall begins a call with a snapshot of cfg. Permission, greeting and
// the first capture happen in the background; progress is reported through
// the sink. ctx bounds the whole call.
func (c *Controller) StartCall(ctx context.Context, cfg types.CallConfig) error {
	if strings.TrimSpace(cfg.Greeting) == "" {
		return fmt.Errorf("%w: greeting is empty", ErrInvalidConfig)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	cl := &call{
		id:      uuid.NewString(),
		cfg:     cfg.Clone(),
		started: time.Now(),
	}
	cl.prompt = dialogue.BuildSystemPrompt(cl.cfg)
	cl.ctx, cl.cancel = context.WithCancel(ctx)
	cl.ctx, cl.span = c.tracer.Start(cl.ctx, "conversation.call",
		trace.WithAttributes(attribute.String("call.id", cl.id)))
	cl.log = observe.CallLogger(cl.ctx, cl.id)

	c.call = cl
	c.transcript.Reset()
	c.trigger.Reset()
	c.setState(StateRequestingPermission)
	c.withMetrics(func(m *observe.Metrics) { m.ActiveCalls.Add(context.Background(), 1) })
	c.mu.Unlock()

	cl.log.Info("conversation: call started",
		"questions", len(cl.cfg.Questions), "voice", cl.cfg.Voice().ResolvedID())
	go c.requestPermission(cl)
	return nil
}

// Listen opens the microphone for the next caller utterance. The harness
// listens on its own after every reply; Listen is for retrying after a
// notice.
func (c *Controller) Listen() error {
	c.mu.Lock()
	cl := c.call
	live := cl != nil && c.state.Live()
	c.mu.Unlock()
	if !live {
		return ErrNoCall
	}
	return c.listen(cl)
}

// Send closes the microphone and hands the utterance on for processing.
// Problems with the recording are reported as a [Notice].
func (c *Controller) Send() error {
	c.mu.Lock()
	if c.call == nil || !c.state.Live() {
		c.mu.Unlock()
		return ErrNoCall
	}
	rec := c.call.rec
	if c.state != StateActive || rec == nil {
		c.mu.Unlock()
		return ErrNotListening
	}
	c.mu.Unlock()

	_ = rec.Stop()
	return nil
}

// EndCall ends the live call from any state. Pending results are discarded,
// the microphone is released and playback stops. Ending an already ended
// call is a no-op.
func (c *Controller) EndCall() error {
	c.mu.Lock()
	cl := c.call
	if cl == nil || c.state == StateIdle {
		c.mu.Unlock()
		return ErrNoCall
	}
	if !c.state.Live() {
		c.mu.Unlock()
		return nil
	}

	rec := cl.rec
	cl.rec = nil
	cl.speaking = false
	cl.cancel()
	c.setState(StateEnded)
	if rec != nil {
		c.emit(ListeningChanged{CallID: cl.id})
	}

	outcome := observe.OutcomeEnded
	if cl.job != nil {
		c.setState(StateReviewingExtraction)
		outcome = observe.OutcomeReviewed
	} else {
		c.closeTimer = c.afterFunc(c.autoCloseDelay, func() { c.autoClose(cl.id) })
	}
	c.recordEnd(outcome)
	turns := c.transcript.Len()
	c.mu.Unlock()

	c.deps.Speaker.Stop()
	if rec != nil {
		rec.Discard()
	}
	cl.log.Info("conversation: call ended",
		"outcome", outcome, "turns", turns, "duration", time.Since(cl.started).Round(time.Millisecond))
	cl.span.SetAttributes(attribute.String("call.outcome", outcome), attribute.Int("call.turns", turns))
	cl.span.End()
	return nil
}

// Dismiss leaves an ended call or the booking review and resets to idle.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateEnded, StateReviewingExtraction:
		c.resetLocked()
		return nil
	case StateIdle:
		return ErrNoCall
	default:
		return ErrCallInProgress
	}
}

// Review is the booking handed to the operator at the end of a call.
type Review struct {
	CallID     string
	Job        types.JobExtraction
	Turns      []types.Turn
	Transcript string
}

// Review returns the booking under review.
func (c *Controller) Review() (Review, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewingExtraction || c.call == nil || c.call.job == nil {
		return Review{}, ErrNoReview
	}
	turns := c.transcript.Turns()
	return Review{
		CallID:     c.call.id,
		Job:        *c.call.job,
		Turns:      turns,
		Transcript: transcript.Render(turns),
	}, nil
}

// Snapshot is a consistent view of the harness.
type Snapshot struct {
	State      State
	CallID     string
	Turns      []types.Turn
	Listening  bool
	Speaking   bool
	Extraction *types.JobExtraction
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, Turns: c.transcript.Turns()}
	if cl := c.call; cl != nil {
		s.CallID = cl.id
		s.Listening = cl.rec != nil
		s.Speaking = cl.speaking
		if cl.job != nil {
			job := *cl.job
			s.Extraction = &job
		}
	}
	return s
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ---- call flow ----

func (c *Controller) requestPermission(cl *call) {
	ctx, span := c.tracer.Start(cl.ctx, "conversation.permission")
	granted, err := c.deps.Permissions.RequestMicrophone(ctx)
	span.SetAttributes(attribute.Bool("granted", granted))
	observe.EndSpan(span, err)

	c.mu.Lock()
	if !c.current(cl) {
		c.staleLocked(cl, "permission")
		c.mu.Unlock()
		return
	}
	if err != nil || !granted {
		if err == nil {
			err = errPermissionDenied
		}
		cl.cancel()
		c.recordEnd(observe.OutcomeDenied)
		c.setState(StateIdle)
		c.call = nil
		c.emit(Notice{CallID: cl.id, Kind: NoticePermissionDenied, Err: err})
		c.mu.Unlock()
		cl.log.Warn("conversation: microphone permission denied", "err", err)
		cl.span.SetAttributes(attribute.String("call.outcome", observe.OutcomeDenied))
		cl.span.End()
		return
	}

	c.setState(StateActive)
	c.appendLocked(cl, types.RoleAssistant, cl.cfg.Greeting)
	cl.speaking = true
	c.mu.Unlock()

	c.say(cl, cl.cfg.Greeting)
}

// say plays text and then opens the microphone if the call is still live.
// The caller has already set cl.speaking.
func (c *Controller) say(cl *call, text string) {
	ctx, span := c.tracer.Start(cl.ctx, "conversation.speak")
	audible := c.deps.Speaker.Speak(ctx, text, cl.cfg.Voice())
	span.SetAttributes(attribute.Bool("audible", audible))
	span.End()

	c.mu.Lock()
	cl.speaking = false
	if !c.current(cl) {
		c.mu.Unlock()
		return
	}
	if c.state == StateProcessing {
		c.setState(StateActive)
	}
	c.mu.Unlock()

	if !audible {
		cl.log.Debug("conversation: assistant turn was not audible")
	}
	_ = c.listen(cl)
}

func (c *Controller) listen(cl *call) error {
	c.mu.Lock()
	if !c.current(cl) {
		c.mu.Unlock()
		return ErrNoCall
	}
	if c.state != StateActive || cl.speaking || cl.opening || cl.rec != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	cl.opening = true
	c.mu.Unlock()

	rec, err := c.deps.Capture.Start(cl.ctx)

	c.mu.Lock()
	cl.opening = false
	if !c.current(cl) {
		c.staleLocked(cl, "capture")
		c.mu.Unlock()
		if rec != nil {
			rec.Discard()
		}
		return ErrNoCall
	}
	if err != nil {
		c.emit(Notice{CallID: cl.id, Kind: NoticeCaptureFailed, Err: err})
		c.mu.Unlock()
		cl.log.Warn("conversation: open microphone", "err", err)
		return err
	}
	cl.rec = rec
	c.emit(ListeningChanged{CallID: cl.id, Listening: true})
	c.mu.Unlock()

	go c.awaitCapture(cl, rec)
	return nil
}

// awaitCapture waits for the recording to end, by Send, the duration
// ceiling or a device dropout, and starts processing.
func (c *Controller) awaitCapture(cl *call, rec *capture.Recording) {
	<-rec.Done()

	c.mu.Lock()
	if !c.current(cl) || cl.rec != rec {
		c.mu.Unlock()
		_ = rec.Remove()
		return
	}
	cl.rec = nil
	c.emit(ListeningChanged{CallID: cl.id})

	if err := rec.Err(); err != nil || rec.Reason() == capture.ReasonDevice {
		if err == nil {
			err = errCaptureDropped
		}
		c.emit(Notice{CallID: cl.id, Kind: NoticeCaptureFailed, Err: err})
		c.mu.Unlock()
		cl.log.Warn("conversation: capture failed", "reason", rec.Reason(), "err", err)
		_ = rec.Remove()
		return
	}
	c.setState(StateProcessing)
	c.mu.Unlock()

	cl.log.Debug("conversation: utterance captured", "reason", rec.Reason(), "duration", rec.Duration())
	c.process(cl, rec)
}

// process runs one cycle: transcribe, reply, record, maybe extract, speak.
func (c *Controller) process(cl *call, rec *capture.Recording) {
	ctx, done := c.stage(cl, "transcribe")
	text, err := c.deps.Transcriber.Transcribe(ctx, rec.Path(), cl.cfg.Vocabulary)
	if errors.Is(err, transcription.ErrNoSpeech) {
		done(nil)
	} else {
		done(err)
	}
	if rmErr := rec.Remove(); rmErr != nil {
		cl.log.Warn("conversation: remove capture", "err", rmErr)
	}

	c.mu.Lock()
	if !c.current(cl) {
		c.staleLocked(cl, "transcribe")
		c.mu.Unlock()
		return
	}
	if errors.Is(err, transcription.ErrNoSpeech) {
		c.setState(StateActive)
		c.mu.Unlock()
		cl.log.Debug("conversation: no speech detected")
		_ = c.listen(cl)
		return
	}
	if err != nil {
		c.setState(StateActive)
		c.emit(Notice{CallID: cl.id, Kind: NoticeTranscriptionFailed, Err: err})
		c.mu.Unlock()
		cl.log.Warn("conversation: transcription failed", "err", err)
		return
	}
	history := c.transcript.Turns()
	c.mu.Unlock()

	ctx, done = c.stage(cl, "reply")
	reply, err := c.deps.Dialogue.NextReply(ctx, cl.prompt, history, text)
	done(err)

	c.mu.Lock()
	if !c.current(cl) {
		c.staleLocked(cl, "reply")
		c.mu.Unlock()
		return
	}
	if err == nil {
		var pair [2]types.Turn
		if pair, err = c.transcript.AppendExchange(text, reply); err == nil {
			for _, t := range pair {
				c.emit(TurnAppended{CallID: cl.id, Turn: t})
				c.withMetrics(func(m *observe.Metrics) { m.RecordTurn(context.Background(), string(t.Role)) })
			}
		}
	}
	if err != nil {
		c.setState(StateActive)
		c.emit(Notice{CallID: cl.id, Kind: NoticeReplyFailed, Err: err})
		c.mu.Unlock()
		cl.log.Warn("conversation: reply failed", "err", err)
		return
	}
	fire := c.trigger.Fire(c.transcript.CallerTurns())
	rendered := c.transcript.Render()
	c.mu.Unlock()

	if fire {
		c.extract(cl, rendered)
	}

	c.mu.Lock()
	if !c.current(cl) {
		c.mu.Unlock()
		return
	}
	cl.speaking = true
	c.mu.Unlock()

	c.say(cl, reply)
}

// extract runs the one-shot booking extraction. Every failure is swallowed.
func (c *Controller) extract(cl *call, rendered string) {
	ctx, done := c.stage(cl, "extract")
	job, err := c.deps.Extractor.Extract(ctx, rendered)
	done(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(cl) {
		c.staleLocked(cl, "extract")
		return
	}

	result := observe.ExtractionRejected
	switch {
	case err != nil:
		result = observe.ExtractionFailed
		cl.log.Warn("conversation: extraction failed", "err", err)
	case extraction.Passes(job):
		result = observe.ExtractionAccepted
		retained := *job
		cl.job = &retained
		c.emit(ExtractionRetained{CallID: cl.id, Job: retained})
	default:
		args := []any{"found", job != nil}
		if job != nil {
			if conf, ok := job.ConfidenceValue(); ok {
				args = append(args, "confidence", conf)
			}
		}
		cl.log.Info("conversation: extraction below confidence gate", args...)
	}
	c.withMetrics(func(m *observe.Metrics) { m.RecordExtraction(context.Background(), result) })
}

func (c *Controller) autoClose(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil || c.call.id != callID || c.state != StateEnded {
		return
	}
	c.resetLocked()
}

// ---- helpers (c.mu held unless noted) ----

// current reports whether cl is still the live call.
func (c *Controller) current(cl *call) bool {
	return c.call != nil && c.call.id == cl.id && c.state.Live()
}

func (c *Controller) staleLocked(cl *call, op string) {
	cl.log.Debug("conversation: discarding stale result", "op", op, "state", c.state)
	c.withMetrics(func(m *observe.Metrics) { m.RecordStale(context.Background(), op) })
}

func (c *Controller) appendLocked(cl *call, role types.Role, text string) {
	t, err := c.transcript.Append(role, text)
	if err != nil {
		cl.log.Error("conversation: append turn", "err", err)
		return
	}
	c.emit(TurnAppended{CallID: cl.id, Turn: t})
	c.withMetrics(func(m *observe.Metrics) { m.RecordTurn(context.Background(), string(role)) })
}

func (c *Controller) setState(to State) {
	from := c.state
	if !CanTransition(from, to) {
		slog.Error("conversation: invalid transition", "from", from, "to", to)
		return
	}
	c.state = to
	var id string
	if c.call != nil {
		id = c.call.id
	}
	c.emit(StateChanged{CallID: id, From: from, To: to})
}

func (c *Controller) resetLocked() {
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	c.setState(StateIdle)
	c.call = nil
}

func (c *Controller) recordEnd(outcome string) {
	c.withMetrics(func(m *observe.Metrics) {
		m.ActiveCalls.Add(context.Background(), -1)
		m.RecordCall(context.Background(), outcome)
	})
}

func (c *Controller) withMetrics(fn func(*observe.Metrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

// stage derives the context for one network-bound stage and starts its
// span. done cancels the context and ends the span with err. Safe without
// c.mu.
func (c *Controller) stage(cl *call, name string) (ctx context.Context, done func(err error)) {
	ctx, span := c.tracer.Start(cl.ctx, "conversation."+name)
	var cancel context.CancelFunc
	if c.stageTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.stageTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	return ctx, func(err error) {
		cancel()
		observe.EndSpan(span, err)
	}
}

// emit queues e for delivery. Events are delivered in order by a single
// drain goroutine that exits when the queue is empty.
func (c *Controller) emit(e Event) {
	if c.sink == nil {
		return
	}
	c.queue = append(c.queue, e)
	if !c.draining {
		c.draining = true
		go c.drain()
	}
}

// drain runs without c.mu held while delivering.
func (c *Controller) drain() {
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		if len(batch) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		for _, e := range batch {
			c.sink.HandleEvent(e)
		}
	}
}
