// Package types defines the shared types used across all testcall packages.
//
// These types form the lingua franca between providers, gateways, the
// conversation controller and the booking hand-off. Each package defines its
// own domain types; cross-cutting data structures live here to avoid circular
// imports.
package types

import (
	"fmt"
	"slices"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	// RoleCaller is the simulated phone caller (the operator speaking into the mic).
	RoleCaller Role = "caller"

	// RoleAssistant is the AI receptionist under test.
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleCaller || r == RoleAssistant
}

// Label returns the transcript label used when rendering turns as text
// ("Caller" or "Assistant").
func (r Role) Label() string {
	switch r {
	case RoleCaller:
		return "Caller"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Turn is one recorded utterance in a call. Turns are immutable once appended
// to a transcript log.
type Turn struct {
	// Role is who spoke.
	Role Role `json:"role"`

	// Text is the utterance content.
	Text string `json:"text"`

	// Sequence is the zero-based position of the turn in the call. Sequences are
	// contiguous; the assistant greeting is always sequence 0.
	Sequence int `json:"sequence"`

	// Timestamp is the wall-clock time the turn was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// CallConfig is the receptionist configuration under test. The controller
// takes a deep copy at call start so edits made elsewhere never leak into an
// in-flight call.
type CallConfig struct {
	// Greeting is spoken by the assistant as turn 0.
	Greeting string `json:"greeting" yaml:"greeting"`

	// Questions are the follow-up questions the assistant should ask, in order.
	// When empty a generic intake script is used instead.
	Questions []string `json:"questions" yaml:"questions"`

	// VoiceID selects the TTS voice.
	VoiceID string `json:"voice_id" yaml:"voice_id"`

	// VoiceProfileID optionally selects a cloned or tuned profile of VoiceID.
	VoiceProfileID string `json:"voice_profile_id,omitempty" yaml:"voice_profile_id"`

	// Vocabulary lists domain words (business name, street names, services)
	// used to correct misheard caller speech.
	Vocabulary []string `json:"vocabulary,omitempty" yaml:"vocabulary"`
}

// Clone returns a deep copy of c.
func (c CallConfig) Clone() CallConfig {
	c.Questions = slices.Clone(c.Questions)
	c.Vocabulary = slices.Clone(c.Vocabulary)
	return c
}

// Voice returns the voice selector for c.
func (c CallConfig) Voice() VoiceProfile {
	return VoiceProfile{ID: c.VoiceID, ProfileID: c.VoiceProfileID}
}

// VoiceProfile selects a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// ProfileID optionally narrows ID to a specific profile (settings preset or
	// cloned variant). Providers that have no such concept ignore it.
	ProfileID string

	// Name is a human-readable voice name. Informational only.
	Name string

	// Provider is the TTS provider that owns this voice (e.g., "elevenlabs").
	Provider string

	// Metadata holds provider-specific labels (accent, gender, category).
	Metadata map[string]string
}

// ResolvedID returns the identifier to synthesise with: the profile when one
// is selected, the base voice otherwise.
func (v VoiceProfile) ResolvedID() string {
	if v.ProfileID != "" {
		return v.ProfileID
	}
	return v.ID
}

// Message is a single entry in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Transcript is a batch speech-to-text result.
type Transcript struct {
	// Text is the transcribed speech. May be empty when nothing was recognised.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Language is the detected or requested language code, if known.
	Language string

	// Duration is the length of the transcribed audio, if known.
	Duration time.Duration
}

// Urgency classifies how soon the caller needs the job done.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// IsValid reports whether u is a recognised urgency level.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// JobExtraction is the structured booking record derived from a call
// transcript. Every field is optional; empty strings mean "not mentioned".
type JobExtraction struct {
	ClientName    string  `json:"clientName,omitempty"`
	ClientPhone   string  `json:"clientPhone,omitempty"`
	ClientEmail   string  `json:"clientEmail,omitempty"`
	ServiceType   string  `json:"serviceType,omitempty"`
	ScheduledDate string  `json:"scheduledDate,omitempty"`
	ScheduledTime string  `json:"scheduledTime,omitempty"`
	Location      string  `json:"location,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	Urgency       Urgency `json:"urgency,omitempty"`

	// Confidence is the extractor's self-reported confidence in [0, 1].
	// Nil when the extractor did not report one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// ConfidenceValue returns the reported confidence and whether one was present.
func (j JobExtraction) ConfidenceValue() (float64, bool) {
	if j.Confidence == nil {
		return 0, false
	}
	return *j.Confidence, true
}

// Empty reports whether j carries no booking details. Urgency and
// confidence describe a booking but are not details of one.
func (j JobExtraction) Empty() bool {
	return j.ClientName == "" && j.ClientPhone == "" && j.ClientEmail == "" &&
		j.ServiceType == "" && j.ScheduledDate == "" && j.ScheduledTime == "" &&
		j.Location == "" && j.Notes == ""
}

// Fields returns the populated fields as ordered label/value pairs, suitable
// for display in a review screen.
func (j JobExtraction) Fields() [][2]string {
	var out [][2]string
	add := func(label, v string) {
		if v != "" {
			out = append(out, [2]string{label, v})
		}
	}
	add("Name", j.ClientName)
	add("Phone", j.ClientPhone)
	add("Email", j.ClientEmail)
	add("Service", j.ServiceType)
	add("Date", j.ScheduledDate)
	add("Time", j.ScheduledTime)
	add("Location", j.Location)
	add("Notes", j.Notes)
	add("Urgency", string(j.Urgency))
	if c, ok := j.ConfidenceValue(); ok {
		add("Confidence", fmt.Sprintf("%.2f", c))
	}
	return out
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the backend can be forced to emit a JSON object.
	SupportsJSONMode bool
}
