// Package transcript holds the ordered turn record of one call and the
// vocabulary corrector applied to caller speech before it is recorded.
//
// A [Log] is append-only between resets. Turns carry contiguous sequence
// numbers starting at 0 and strictly alternate roles, with the assistant
// greeting always first.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/testcall/pkg/types"
)

var (
	// ErrOutOfTurn is returned when an append would break role alternation.
	ErrOutOfTurn = errors.New("transcript: out of turn")

	// ErrInvalidRole is returned for roles other than caller and assistant.
	ErrInvalidRole = errors.New("transcript: invalid role")
)

// Log is the turn record of a single call. It is safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	turns []types.Turn
	now   func() time.Time
}

// NewLog returns an empty Log that stamps turns with time.Now.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// next reports which role must speak next.
func (l *Log) next() types.Role {
	if len(l.turns)%2 == 0 {
		return types.RoleAssistant
	}
	return types.RoleCaller
}

func (l *Log) appendLocked(role types.Role, text string) (types.Turn, error) {
	if !role.IsValid() {
		return types.Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if want := l.next(); role != want {
		return types.Turn{}, fmt.Errorf("%w: want %s, got %s", ErrOutOfTurn, want, role)
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	t := types.Turn{Role: role, Text: text, Sequence: len(l.turns), Timestamp: now()}
	l.turns = append(l.turns, t)
	return t, nil
}

// Append records one turn.
func (l *Log) Append(role types.Role, text string) (types.Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(role, text)
}

// AppendExchange records a caller turn and the assistant's reply together, so
// readers never observe the caller turn without its reply.
func (l *Log) AppendExchange(callerText, assistantText string) ([2]types.Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out [2]types.Turn
	c, err := l.appendLocked(types.RoleCaller, callerText)
	if err != nil {
		return out, err
	}
	a, err := l.appendLocked(types.RoleAssistant, assistantText)
	if err != nil {
		l.turns = l.turns[:len(l.turns)-1]
		return out, err
	}
	out[0], out[1] = c, a
	return out, nil
}

// Turns returns a copy of the recorded turns in order.
func (l *Log) Turns() []types.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of recorded turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// CallerTurns returns how many caller turns have been recorded.
func (l *Log) CallerTurns() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns) / 2
}

// Render formats the transcript as "Caller: ..." / "Assistant: ..." lines in
// turn order.
func (l *Log) Render() string {
	return Render(l.Turns())
}

// Reset clears the log for a new call.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}

// Render formats turns as one "Label: text" line each.
func Render(turns []types.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Role.Label())
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}
