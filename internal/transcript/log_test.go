package transcript_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/testcall/internal/transcript"
	"github.com/MrWong99/testcall/pkg/types"
)

func TestLog_AlternatesFromAssistant(t *testing.T) {
	t.Parallel()
	l := transcript.NewLog()

	if _, err := l.Append(types.RoleCaller, "hello?"); !errors.Is(err, transcript.ErrOutOfTurn) {
		t.Fatalf("want ErrOutOfTurn for caller first, got %v", err)
	}
	if _, err := l.Append(types.RoleAssistant, "Hi, this is Flynn."); err != nil {
		t.Fatalf("Append greeting: %v", err)
	}
	if _, err := l.Append(types.RoleAssistant, "Anyone there?"); !errors.Is(err, transcript.ErrOutOfTurn) {
		t.Fatalf("want ErrOutOfTurn for two assistant turns, got %v", err)
	}
	if _, err := l.Append("operator", "x"); !errors.Is(err, transcript.ErrInvalidRole) {
		t.Fatalf("want ErrInvalidRole, got %v", err)
	}
	turn, err := l.Append(types.RoleCaller, "My tap is leaking")
	if err != nil {
		t.Fatalf("Append caller: %v", err)
	}
	if turn.Sequence != 1 || turn.Timestamp.IsZero() {
		t.Errorf("unexpected turn %+v", turn)
	}
	if l.Len() != 2 || l.CallerTurns() != 1 {
		t.Errorf("want 2 turns / 1 caller turn, got %d / %d", l.Len(), l.CallerTurns())
	}
}

func TestLog_AppendExchange(t *testing.T) {
	t.Parallel()
	l := transcript.NewLog()
	if _, err := l.AppendExchange("too early", "reply"); !errors.Is(err, transcript.ErrOutOfTurn) {
		t.Fatalf("want ErrOutOfTurn before greeting, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("failed exchange must not leave turns, got %d", l.Len())
	}

	_, _ = l.Append(types.RoleAssistant, "Hi, this is Flynn.")
	pair, err := l.AppendExchange("My tap is leaking", "What's your address?")
	if err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	if pair[0].Sequence != 1 || pair[1].Sequence != 2 {
		t.Errorf("want sequences 1,2, got %d,%d", pair[0].Sequence, pair[1].Sequence)
	}
	if pair[0].Role != types.RoleCaller || pair[1].Role != types.RoleAssistant {
		t.Errorf("unexpected roles %s,%s", pair[0].Role, pair[1].Role)
	}
}

func TestLog_RenderAndReset(t *testing.T) {
	t.Parallel()
	l := transcript.NewLog()
	_, _ = l.Append(types.RoleAssistant, "Hi, this is Flynn.")
	_, _ = l.AppendExchange("My tap is leaking", "What's your address?")

	want := "Assistant: Hi, this is Flynn.\nCaller: My tap is leaking\nAssistant: What's your address?"
	if got := l.Render(); got != want {
		t.Errorf("want\n%s\ngot\n%s", want, got)
	}

	turns := l.Turns()
	turns[0].Text = "mutated"
	if l.Turns()[0].Text == "mutated" {
		t.Error("Turns must return a copy")
	}

	l.Reset()
	if l.Len() != 0 || l.Render() != "" {
		t.Errorf("want empty log after Reset, got %d turns", l.Len())
	}
	if _, err := l.Append(types.RoleAssistant, "Hi again."); err != nil {
		t.Errorf("want greeting accepted after Reset, got %v", err)
	}
}

func TestLog_ConcurrentExchangesStayContiguous(t *testing.T) {
	t.Parallel()
	l := transcript.NewLog()
	_, _ = l.Append(types.RoleAssistant, "greeting")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.AppendExchange("caller", "assistant")
		}()
	}
	wg.Wait()

	for i, turn := range l.Turns() {
		if turn.Sequence != i {
			t.Fatalf("turn %d has sequence %d", i, turn.Sequence)
		}
		wantRole := types.RoleAssistant
		if i%2 == 1 {
			wantRole = types.RoleCaller
		}
		if turn.Role != wantRole {
			t.Fatalf("turn %d: want %s, got %s", i, wantRole, turn.Role)
		}
	}
	if l.CallerTurns() != 20 {
		t.Errorf("want 20 caller turns, got %d", l.CallerTurns())
	}
}
