// Package audio defines the local audio primitives the test harness drives
// during a simulated phone call.
//
// The abstractions are deliberately file-based: a caller utterance is recorded
// to a transient WAV file and handed to speech-to-text as a whole, and
// assistant speech is synthesised to a file and played back. Four narrow
// interfaces cover the device side:
//
//   - [Permissions] asks for microphone access.
//   - [Session] switches the shared audio session between recording and playback.
//   - [Recorder] captures microphone audio into a file.
//   - [Player] plays an audio file to the speaker.
//
// Implementations live in sub-packages (audio/ffmpeg for desktop hosts,
// audio/mock for tests). This package lives under pkg/ so other front-ends
// can bring their own device adapters.
package audio

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned when no usable capture or playback device
// exists on the host.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// Mode is the routing mode of the shared audio session.
type Mode int

const (
	// ModeIdle releases the device.
	ModeIdle Mode = iota

	// ModeRecord routes the microphone in and keeps the speaker quiet.
	ModeRecord

	// ModePlayback routes audio to the loud speaker.
	ModePlayback
)

// String returns the human-readable name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRecord:
		return "record"
	case ModePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Permissions requests access to the microphone.
type Permissions interface {
	// RequestMicrophone reports whether recording is allowed. A false result
	// with a nil error means the user (or host policy) denied access.
	RequestMicrophone(ctx context.Context) (bool, error)
}

// Session switches the host audio session between modes. Recording and
// playback are never active at the same time.
type Session interface {
	Configure(ctx context.Context, mode Mode) error
}

// Recorder captures microphone audio into a WAV file.
type Recorder interface {
	// Record starts capturing into path using the given format. The returned
	// handle is live until Stop is called or the device fails.
	Record(ctx context.Context, path string, f Format) (RecordHandle, error)
}

// RecordHandle is a running microphone capture.
//
// All methods must be safe for concurrent use.
type RecordHandle interface {
	// Stop finalises the file and releases the device. Calling Stop more than
	// once is safe and returns the first result.
	Stop() error

	// Done is closed when the capture ends, either because Stop was called or
	// because the device stopped delivering audio.
	Done() <-chan struct{}
}

// Player plays an audio file to the speaker.
type Player interface {
	// Play blocks until playback finishes or ctx is cancelled. Cancelling ctx
	// stops playback immediately.
	Play(ctx context.Context, path string) error
}
