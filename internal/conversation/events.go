package conversation

import (
	"github.com/MrWong99/testcall/pkg/types"
)

// Event is something the controller reports to its [EventSink]. The concrete
// types are [StateChanged], [TurnAppended], [ListeningChanged],
// [ExtractionRetained] and [Notice].
type Event interface {
	event()
}

// StateChanged reports a state transition.
type StateChanged struct {
	CallID string
	From   State
	To     State
}

// TurnAppended reports a new transcript turn.
type TurnAppended struct {
	CallID string
	Turn   types.Turn
}

// ListeningChanged reports the microphone opening or closing.
type ListeningChanged struct {
	CallID    string
	Listening bool
}

// ExtractionRetained reports a booking that cleared the confidence gate.
// It is shown for review once the call ends.
type ExtractionRetained struct {
	CallID string
	Job    types.JobExtraction
}

// NoticeKind classifies a user-facing notice.
type NoticeKind int

const (
	// NoticePermissionDenied means microphone access was refused. The
	// harness is back in [StateIdle].
	NoticePermissionDenied NoticeKind = iota + 1

	// NoticeCaptureFailed means the microphone could not be opened or
	// dropped out. The call stays [StateActive]; Listen retries.
	NoticeCaptureFailed

	// NoticeTranscriptionFailed means "could not understand that, try
	// again". The call stays [StateActive].
	NoticeTranscriptionFailed

	// NoticeReplyFailed means "something went wrong generating a response,
	// try again". The caller turn was not recorded.
	NoticeReplyFailed
)

func (k NoticeKind) String() string {
	switch k {
	case NoticePermissionDenied:
		return "permission_denied"
	case NoticeCaptureFailed:
		return "capture_failed"
	case NoticeTranscriptionFailed:
		return "transcription_failed"
	case NoticeReplyFailed:
		return "reply_failed"
	default:
		return "unknown"
	}
}

// Message returns the operator-facing text for k.
func (k NoticeKind) Message() string {
	switch k {
	case NoticePermissionDenied:
		return "Microphone access was denied. Allow it and start the call again."
	case NoticeCaptureFailed:
		return "The microphone is not available. Press listen to try again."
	case NoticeTranscriptionFailed:
		return "Could not understand that. Try again."
	case NoticeReplyFailed:
		return "Something went wrong generating a response. Try again."
	default:
		return ""
	}
}

// Notice is a one-shot, non-fatal problem report.
type Notice struct {
	CallID string
	Kind   NoticeKind
	Err    error
}

func (StateChanged) event()       {}
func (TurnAppended) event()       {}
func (ListeningChanged) event()   {}
func (ExtractionRetained) event() {}
func (Notice) event()             {}

// EventSink receives controller events in the order they happened. Events
// are delivered from a dedicated goroutine, so a sink may call back into
// the controller, but a slow sink delays later events.
type EventSink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to [EventSink].
type SinkFunc func(Event)

// HandleEvent calls f(e).
func (f SinkFunc) HandleEvent(e Event) { f(e) }
