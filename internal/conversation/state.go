package conversation

// State is the top-level phase of the harness. Exactly one state is current.
type State int

const (
	// StateIdle means no call is in progress.
	StateIdle State = iota

	// StateRequestingPermission means microphone access is being requested.
	StateRequestingPermission

	// StateActive means the call is live and the harness is speaking the
	// greeting or waiting for (or capturing) caller speech.
	StateActive

	// StateProcessing means a caller utterance is being transcribed,
	// answered, possibly extracted and spoken.
	StateProcessing

	// StateEnded means the call was ended and its resources released.
	StateEnded

	// StateReviewingExtraction means a confident booking awaits review.
	StateReviewingExtraction
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateActive:
		return "active"
	case StateProcessing:
		return "processing"
	case StateEnded:
		return "ended"
	case StateReviewingExtraction:
		return "reviewing_extraction"
	default:
		return "unknown"
	}
}

// Live reports whether s belongs to a call that can still make progress.
func (s State) Live() bool {
	switch s {
	case StateRequestingPermission, StateActive, StateProcessing:
		return true
	}
	return false
}

// transitions lists every allowed state change.
var transitions = map[State][]State{
	StateIdle:                 {StateRequestingPermission},
	StateRequestingPermission: {StateIdle, StateActive, StateEnded},
	StateActive:               {StateProcessing, StateEnded},
	StateProcessing:           {StateActive, StateEnded},
	StateEnded:                {StateReviewingExtraction, StateIdle},
	StateReviewingExtraction:  {StateIdle},
}

// CanTransition reports whether the machine may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
