package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/testcall/internal/app"
	"github.com/MrWong99/testcall/internal/booking"
	"github.com/MrWong99/testcall/internal/config"
	"github.com/MrWong99/testcall/internal/conversation"
	audiomock "github.com/MrWong99/testcall/pkg/audio/mock"
	llmmock "github.com/MrWong99/testcall/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/testcall/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/testcall/pkg/provider/tts/mock"
	"github.com/MrWong99/testcall/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testcall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func configYAML(bookingsPath string) string {
	return `
server:
  listen_addr: "off"
providers:
  llm: {name: ollama, model: llama3.2}
  stt: {name: whisper, base_url: "http://localhost:8080"}
  tts: {name: coqui, base_url: "http://localhost:5002"}
receptionist:
  greeting: "Hi, this is Flynn."
bookings:
  backend: file
  path: ` + bookingsPath + "\n"
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRootCmd(strings.NewReader(""), &out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	cmd := buildRootCmd(strings.NewReader(""), io.Discard)
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"call", "voices", "bookings", "check"} {
		if !names[name] {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
	if f := cmd.PersistentFlags().Lookup("config"); f == nil || f.DefValue != "testcall.yaml" {
		t.Errorf("want --config flag defaulting to testcall.yaml, got %+v", f)
	}
}

func TestCheck_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "providers:\n  llm: {name: ollama}\n")
	_, err := execute(t, "--config", path, "check")
	if err == nil {
		t.Fatal("want validation error, got nil")
	}
	if !strings.Contains(err.Error(), "receptionist.greeting is required") {
		t.Errorf("want greeting error, got %v", err)
	}
}

func TestCheck_MissingFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "check")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("want not found error, got %v", err)
	}
}

func TestBookings(t *testing.T) {
	dir := t.TempDir()
	bookingsPath := filepath.Join(dir, "bookings.jsonl")
	path := writeConfig(t, configYAML(bookingsPath))

	out, err := execute(t, "--config", path, "bookings")
	if err != nil {
		t.Fatalf("bookings: %v", err)
	}
	if !strings.Contains(out, "no bookings yet") {
		t.Errorf("want empty message, got %q", out)
	}

	store, err := booking.NewFileStore(bookingsPath)
	if err != nil {
		t.Fatal(err)
	}
	conf := 0.8
	b := booking.New("call-1", types.JobExtraction{ClientName: "Jordan Lee", ServiceType: "leak repair", Confidence: &conf},
		"Caller: hi", time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	if err := store.Save(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	out, err = execute(t, "--config", path, "bookings")
	if err != nil {
		t.Fatalf("bookings: %v", err)
	}
	for _, want := range []string{"CLIENT", "Jordan Lee", "leak repair", "0.80"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "--config", path, "bookings", "--json")
	if err != nil {
		t.Fatalf("bookings --json: %v", err)
	}
	var got booking.Booking
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.ID != b.ID {
		t.Errorf("want booking %s, got %s", b.ID, got.ID)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%q): want %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM:          config.ProviderEntry{Name: "anthropic", Model: "claude-3-5-haiku-latest"},
			LLMFallbacks: []config.ProviderEntry{{Name: "openai"}},
			STT:          config.ProviderEntry{Name: "deepgram"},
			TTS:          config.ProviderEntry{Name: "elevenlabs"},
		},
		Receptionist: config.ReceptionistConfig{Greeting: "Hi", Questions: []string{"a", "b"}},
	}
	cfg.ApplyDefaults()

	var out bytes.Buffer
	printStartupSummary(&out, cfg)
	s := out.String()
	for _, want := range []string{"deepgram", "(chat llm)", "3 caller turns", ":9090", "anthropic / claude…"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

// ─── Console ─────────────────────────────────────────────────────────────────

func newMockApp(t *testing.T) *app.App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "mock"},
			STT: config.ProviderEntry{Name: "mock"},
			TTS: config.ProviderEntry{Name: "mock"},
		},
		Receptionist: config.ReceptionistConfig{Greeting: "Hi, this is Flynn."},
		Harness:      config.HarnessConfig{CacheDir: dir},
		Bookings:     config.BookingsConfig{Path: filepath.Join(dir, "bookings.jsonl")},
	}
	cfg.ApplyDefaults()
	a, err := app.New(context.Background(), cfg, &app.Providers{
		LLM: &llmmock.Provider{}, STT: &sttmock.Provider{}, TTS: &ttsmock.Provider{},
	}, app.WithDevices(app.Devices{
		Permissions: &audiomock.Permissions{Granted: true},
		Session:     &audiomock.Session{},
		Recorder:    &audiomock.Recorder{},
		Player:      &audiomock.Player{},
	}))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestDispatch_Idle(t *testing.T) {
	t.Parallel()

	a := newMockApp(t)
	tests := []struct {
		line     string
		want     string
		wantQuit bool
	}{
		{line: "", want: "no call in progress"},
		{line: "e", want: "no call in progress"},
		{line: "d", want: "no call in progress"},
		{line: "a", want: "no booking to accept"},
		{line: "zz", want: `unknown command "zz"`},
		{line: "?", want: "Commands:"},
		{line: " Q ", wantQuit: true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		con := newConsole(&out)
		quit := dispatch(context.Background(), a, con, tt.line)
		if quit != tt.wantQuit {
			t.Errorf("%q: quit want %v, got %v", tt.line, tt.wantQuit, quit)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("%q: want output containing %q, got %q", tt.line, tt.want, out.String())
		}
	}
}

func TestConsole_HandleEvent(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	con := newConsole(&out)
	conf := 0.9
	job := types.JobExtraction{ClientName: "Jordan Lee", Confidence: &conf}

	con.HandleEvent(conversation.TurnAppended{Turn: types.Turn{Role: types.RoleAssistant, Text: "Hi, this is Flynn."}})
	con.HandleEvent(conversation.ListeningChanged{Listening: true})
	con.HandleEvent(conversation.Notice{Kind: conversation.NoticeTranscriptionFailed})
	con.HandleEvent(conversation.ExtractionRetained{Job: job})
	con.HandleEvent(conversation.StateChanged{From: conversation.StateEnded, To: conversation.StateReviewingExtraction})
	con.SpeakingFinished("Hi", false)

	s := out.String()
	for _, want := range []string{
		"Assistant:   Hi, this is Flynn.",
		"listening",
		"Could not understand that. Try again.",
		"Booking for review",
		"Jordan Lee",
		"0.90",
		"reply shown as text only",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("console output missing %q:\n%s", want, s)
		}
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	other := errors.New("boom")
	if got := describe(other); got != "boom" {
		t.Errorf("want passthrough, got %q", got)
	}
	if got := describe(conversation.ErrBusy); !strings.Contains(got, "busy") {
		t.Errorf("want busy hint, got %q", got)
	}
}

func TestApplyReload_LogLevel(t *testing.T) {
	t.Parallel()

	a := newMockApp(t)
	c := &cli{level: new(slog.LevelVar)}
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	next := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	c.applyReload(a, old, next)
	if got := c.level.Level(); got != slog.LevelDebug {
		t.Errorf("level: want debug, got %v", got)
	}
}
