package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/testcall/internal/app"
	"github.com/MrWong99/testcall/internal/conversation"
	"github.com/MrWong99/testcall/internal/playback"
	"github.com/MrWong99/testcall/pkg/types"
)

// console renders conversation events for the operator. It is the event sink
// and the speaking observer of the call command.
type console struct {
	mu  sync.Mutex
	w   io.Writer
	job *types.JobExtraction
}

var (
	_ conversation.EventSink = (*console)(nil)
	_ playback.Observer      = (*console)(nil)
)

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

// HandleEvent implements conversation.EventSink.
func (c *console) HandleEvent(e conversation.Event) {
	switch ev := e.(type) {
	case conversation.StateChanged:
		c.stateChanged(ev)
	case conversation.TurnAppended:
		c.printf("%-12s %s", ev.Turn.Role.Label()+":", ev.Turn.Text)
	case conversation.ListeningChanged:
		if ev.Listening {
			c.printf("  ● listening. Speak, then press Enter to send.")
		}
	case conversation.ExtractionRetained:
		c.mu.Lock()
		job := ev.Job
		c.job = &job
		c.mu.Unlock()
		c.printf("  (booking details captured)")
	case conversation.Notice:
		c.printf("! %s", ev.Kind.Message())
	}
}

func (c *console) stateChanged(ev conversation.StateChanged) {
	switch ev.To {
	case conversation.StateRequestingPermission:
		c.printf("Calling. Asking for microphone access...")
	case conversation.StateEnded:
		c.printf("Call ended.")
	case conversation.StateReviewingExtraction:
		c.mu.Lock()
		job := c.job
		c.job = nil
		c.mu.Unlock()
		c.printReview(job)
	case conversation.StateIdle:
		c.mu.Lock()
		c.job = nil
		c.mu.Unlock()
		if ev.From != conversation.StateIdle {
			c.printf("Ready. Press s to start a call, q to quit.")
		}
	}
}

func (c *console) printReview(job *types.JobExtraction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, "── Booking for review ──")
	if job != nil {
		for _, f := range job.Fields() {
			fmt.Fprintf(c.w, "  %-10s %s\n", f[0], f[1])
		}
	}
	fmt.Fprintln(c.w, "a = accept, d = dismiss")
}

// SpeakingStarted implements playback.Observer.
func (c *console) SpeakingStarted(string) {}

// SpeakingFinished implements playback.Observer.
func (c *console) SpeakingFinished(_ string, audible bool) {
	if !audible {
		c.printf("  (voice unavailable, reply shown as text only)")
	}
}

func (c *console) help() {
	c.printf(`Commands:
  <Enter>  send what you said
  l        listen again
  s        start a new call
  e        end the call
  a        accept the booking under review
  d        dismiss
  q        quit`)
}

// describe turns an operator-action error into a short hint.
func describe(err error) string {
	switch {
	case errors.Is(err, conversation.ErrNoCall):
		return "no call in progress; press s to start one"
	case errors.Is(err, conversation.ErrCallInProgress):
		return "a call is in progress; press e to end it first"
	case errors.Is(err, conversation.ErrNotListening):
		return "not listening right now"
	case errors.Is(err, conversation.ErrBusy):
		return "busy; wait for the receptionist to finish"
	case errors.Is(err, app.ErrNothingToAccept):
		return "there is no booking to accept"
	}
	return err.Error()
}
