// Package playback speaks assistant replies through the speaker.
//
// [Speaker.Speak] synthesises the text, writes the clip to a transient file,
// plays it and always removes the file again. It resolves exactly once and
// never returns an error: a failed synthesis or playback is logged and
// reported as "not audible" so the caller can carry on with the text turn.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/provider/tts"
	"github.com/MrWong99/testcall/pkg/types"
)

// Observer is notified around every utterance. It is a side channel for
// presentation (speaking indicators, waveform animation) and has no say in
// the conversation flow. Implementations must not block.
type Observer interface {
	SpeakingStarted(text string)
	SpeakingFinished(text string, audible bool)
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithDir sets the directory for transient clips. Defaults to os.TempDir().
func WithDir(dir string) Option {
	return func(s *Speaker) {
		if dir != "" {
			s.dir = dir
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(s *Speaker) {
		s.observer = o
	}
}

// WithMetrics records synthesis latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) {
		s.metrics = m
	}
}

// Speaker renders text to the speaker. Only one utterance plays at a time;
// callers serialise Speak calls.
type Speaker struct {
	tts      tts.Provider
	player   audio.Player
	session  audio.Session
	dir      string
	observer Observer
	metrics  *observe.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Speaker. sess may be nil on hosts without a shared session.
func New(p tts.Provider, player audio.Player, sess audio.Session, opts ...Option) *Speaker {
	s := &Speaker{
		tts:     p,
		player:  player,
		session: sess,
		dir:     os.TempDir(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesises and plays text with voice. It returns once playback has
// finished, failed or been stopped, and reports whether the clip played to
// the end.
func (s *Speaker) Speak(ctx context.Context, text string, voice types.VoiceProfile) (audible bool) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	log := observe.Logger(ctx).With("voice", voice.ResolvedID())
	if s.observer != nil {
		s.observer.SpeakingStarted(text)
		defer func() { s.observer.SpeakingFinished(text, audible) }()
	}

	start := time.Now()
	clip, err := s.tts.Synthesize(ctx, text, voice)
	if s.metrics != nil {
		s.metrics.RecordStage(ctx, observe.StageTTS, time.Since(start), err)
	}
	if err != nil {
		logFailure(ctx, log, "playback: synthesis failed", err)
		return false
	}

	path := filepath.Join(s.dir, "tts_"+uuid.NewString()+"."+clip.Ext)
	if err := os.WriteFile(path, clip.Audio, 0o600); err != nil {
		log.Warn("playback: write clip", "err", err)
		return false
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("playback: remove clip", "path", path, "err", err)
		}
	}()

	if s.session != nil {
		if err := s.session.Configure(ctx, audio.ModePlayback); err != nil {
			log.Warn("playback: configure session", "err", err)
			return false
		}
		defer func() {
			if err := s.session.Configure(context.Background(), audio.ModeIdle); err != nil {
				log.Warn("playback: release session", "err", err)
			}
		}()
	}

	if err := s.player.Play(ctx, path); err != nil {
		logFailure(ctx, log, "playback: play failed", err)
		return false
	}
	return true
}

// Stop interrupts the utterance in flight, if any. It is safe to call at any
// time and more than once.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Speaking reports whether an utterance is in flight.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// logFailure logs at debug when the failure is the result of a stop.
func logFailure(ctx context.Context, log *slog.Logger, msg string, err error) {
	if ctx.Err() != nil {
		log.Debug(msg, "err", err, "cancelled", true)
		return
	}
	log.Warn(msg, "err", err)
}
