// Package mock provides a test double for the stt.Provider interface.
//
// Results can be fixed (Text/Err) or scripted per call (Results, consumed in
// order). Every request is recorded so tests can assert on the audio and
// keyword hints the caller sent.
//
// Example:
//
//	p := &mock.Provider{Text: "Hi, my hot water is out."}
//	tr, _ := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/testcall/pkg/provider/stt"
	"github.com/MrWong99/testcall/pkg/types"
)

// Result is one scripted outcome of Transcribe.
type Result struct {
	Text string
	Err  error
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results, when non-empty, are consumed in order, one per call.
	Results []Result

	// Text is returned once Results is exhausted.
	Text string

	// Err is returned once Results is exhausted.
	Err error

	// Block, when non-nil, makes Transcribe wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// Requests records every call.
	Requests []stt.Request
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*types.Transcript, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	res := Result{Text: p.Text, Err: p.Err}
	if len(p.Results) > 0 {
		res = p.Results[0]
		p.Results = p.Results[1:]
	}
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return &types.Transcript{Text: res.Text}, nil
}

// Calls returns the number of Transcribe calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Reset clears recorded requests.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = nil
}

var _ stt.Provider = (*Provider)(nil)
