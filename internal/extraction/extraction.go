// Package extraction turns a finished transcript into a structured booking.
//
// A [Trigger] decides when to try (once per call, after enough caller turns),
// the [Gateway] asks the LLM for a JSON document and validates it against a
// JSON Schema, and [Passes] applies the confidence gate. Every failure mode
// (transport error, malformed JSON, schema violation, no job) is non-fatal to
// the call.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/pkg/provider/llm"
	"github.com/MrWong99/testcall/pkg/types"
)

// ErrInvalidDocument is returned when the model's reply is not a valid
// extraction document.
var ErrInvalidDocument = errors.New("extraction: invalid document")

const instructions = `You extract booking details from a phone call transcript between a caller and a receptionist.
Reply with a single JSON object and nothing else.
If the caller described a job, reply {"job": {...}} using these optional fields:
clientName, clientPhone, clientEmail, serviceType, scheduledDate (YYYY-MM-DD), scheduledTime (HH:MM, 24h),
location, notes, urgency ("low", "medium" or "high") and confidence (a number from 0 to 1 for how sure you are
the details are correct and complete).
Leave out anything the caller did not say. Do not guess phone numbers or emails.
If there is no job in the transcript, reply {}.`

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock sets the time source used to anchor relative dates ("tomorrow").
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// WithMetrics records extraction latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// Gateway calls the LLM for structured extraction.
type Gateway struct {
	llm     llm.Provider
	schema  *jsonschema.Schema
	now     func() time.Time
	metrics *observe.Metrics
}

// New creates a Gateway over p.
func New(p llm.Provider, opts ...Option) (*Gateway, error) {
	sch, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("extraction: compile schema: %w", err)
	}
	g := &Gateway{llm: p, schema: sch, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Extract returns the booking described by transcriptText, or nil when the
// transcript holds no job.
func (g *Gateway) Extract(ctx context.Context, transcriptText string) (job *types.JobExtraction, err error) {
	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.RecordStage(ctx, observe.StageExtraction, time.Since(start), err)
		}
	}()

	today := g.now()
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: instructions + "\nToday is " + today.Format("Monday, 2006-01-02") + ".",
		Messages:     []types.Message{{Role: "user", Content: transcriptText}},
		Temperature:  0,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidDocument)
	}
	return g.parse(resp.Content)
}

func (g *Gateway) parse(content string) (*types.JobExtraction, error) {
	raw := stripFences(content)
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := g.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var out struct {
		Job *types.JobExtraction `json:"job"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if out.Job == nil || out.Job.Empty() {
		return nil, nil
	}
	return out.Job, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// add even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Passes reports whether job clears the confidence gate. A missing or empty
// job or a missing confidence never passes.
func Passes(job *types.JobExtraction) bool {
	if job == nil || job.Empty() {
		return false
	}
	c, ok := job.ConfidenceValue()
	return ok && c > MinConfidence
}
