package extraction

import "sync"

// DefaultThreshold is the caller-turn count that triggers extraction.
const DefaultThreshold = 3

// MinConfidence is the confidence an extraction must exceed to be kept.
const MinConfidence = 0.5

// Trigger fires once per call, the first time the caller-turn count reaches
// the threshold. A fired trigger stays fired until Reset, even if the
// extraction it started fails.
type Trigger struct {
	threshold int

	mu    sync.Mutex
	fired bool
}

// NewTrigger returns a Trigger for threshold caller turns. Values below 1 use
// DefaultThreshold.
func NewTrigger(threshold int) *Trigger {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Trigger{threshold: threshold}
}

// Fire reports whether extraction should start now.
func (t *Trigger) Fire(callerTurns int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || callerTurns < t.threshold {
		return false
	}
	t.fired = true
	return true
}

// Fired reports whether the trigger has fired.
func (t *Trigger) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Threshold returns the configured caller-turn threshold.
func (t *Trigger) Threshold() int { return t.threshold }

// Reset re-arms the trigger for a new call.
func (t *Trigger) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired = false
}
