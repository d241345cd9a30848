// Command testcall rehearses phone calls against an AI receptionist
// configuration. The operator plays the caller through the local microphone
// and speaker; the receptionist answers with the configured greeting,
// questions and voice, and a booking is extracted for review once enough of
// the call has been heard.
//
//	testcall call --config testcall.yaml
//	testcall voices
//	testcall bookings --limit 10
//	testcall check
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/testcall/internal/config"
)

// Build information, set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := buildRootCmd(os.Stdin, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "testcall: %v\n", err)
		return 1
	}
	return 0
}

// cli carries the state shared by all subcommands.
type cli struct {
	configPath string
	in         io.Reader
	out        io.Writer
	level      *slog.LevelVar
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:          "testcall",
		Short:        "Rehearse phone calls against an AI receptionist",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), c.level))
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "testcall.yaml", "path to the YAML configuration file")

	root.AddCommand(
		c.buildCallCmd(),
		c.buildVoicesCmd(),
		c.buildBookingsCmd(),
		c.buildCheckCmd(),
	)
	return root
}

// loadConfig loads the configuration file and applies its log level.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", c.configPath)
		}
		return nil, err
	}
	c.level.Set(slogLevel(cfg.Server.LogLevel))
	return cfg, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        testcall: startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model, len(cfg.Providers.LLMFallbacks))
	printProvider(w, "Extraction", cfg.Providers.Extraction.Name, cfg.Providers.Extraction.Model, 0)
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model, len(cfg.Providers.STTFallbacks))
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model, len(cfg.Providers.TTSFallbacks))
	printRow(w, "Voice", valueOr(cfg.Receptionist.VoiceID, "(provider default)"))
	printRow(w, "Questions", fmt.Sprint(len(cfg.Receptionist.Questions)))
	printRow(w, "Extract after", fmt.Sprintf("%d caller turns", cfg.Harness.ExtractionThreshold))
	printRow(w, "Bookings", string(cfg.Bookings.Backend))
	if cfg.Server.AdminEnabled() {
		printRow(w, "Admin addr", cfg.Server.ListenAddr)
	} else {
		printRow(w, "Admin addr", "(disabled)")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string, fallbacks int) {
	value := name
	switch {
	case value == "":
		value = "(chat llm)"
	case model != "":
		value = name + " / " + model
	}
	if fallbacks > 0 {
		value = fmt.Sprintf("%s +%d", value, fallbacks)
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", label, value)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
