package conversation

import "testing"

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateRequestingPermission, true},
		{StateIdle, StateActive, false},
		{StateRequestingPermission, StateIdle, true},
		{StateRequestingPermission, StateActive, true},
		{StateRequestingPermission, StateEnded, true},
		{StateActive, StateProcessing, true},
		{StateActive, StateEnded, true},
		{StateActive, StateIdle, false},
		{StateProcessing, StateActive, true},
		{StateProcessing, StateReviewingExtraction, false},
		{StateEnded, StateReviewingExtraction, true},
		{StateEnded, StateIdle, true},
		{StateEnded, StateActive, false},
		{StateReviewingExtraction, StateIdle, true},
		{StateReviewingExtraction, StateEnded, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%v, %v): want %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestState_Live(t *testing.T) {
	t.Parallel()

	live := map[State]bool{
		StateIdle:                 false,
		StateRequestingPermission: true,
		StateActive:               true,
		StateProcessing:           true,
		StateEnded:                false,
		StateReviewingExtraction:  false,
	}
	for s, want := range live {
		if got := s.Live(); got != want {
			t.Errorf("%v.Live(): want %v, got %v", s, want, got)
		}
	}
}

func TestStrings(t *testing.T) {
	t.Parallel()

	if got := StateReviewingExtraction.String(); got != "reviewing_extraction" {
		t.Errorf("want reviewing_extraction, got %q", got)
	}
	if got := State(99).String(); got != "unknown" {
		t.Errorf("want unknown, got %q", got)
	}
	for _, k := range []NoticeKind{NoticePermissionDenied, NoticeCaptureFailed, NoticeTranscriptionFailed, NoticeReplyFailed} {
		if k.String() == "unknown" || k.Message() == "" {
			t.Errorf("notice kind %d lacks a name or message", k)
		}
	}
}
