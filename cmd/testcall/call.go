package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/testcall/internal/app"
	"github.com/MrWong99/testcall/internal/config"
	"github.com/MrWong99/testcall/internal/health"
	"github.com/MrWong99/testcall/internal/observe"
)

const shutdownTimeout = 15 * time.Second

// runCall runs the interactive harness until the operator quits or ctx ends.
func (c *cli) runCall(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg, tel.Metrics)
	if err != nil {
		return errors.Join(err, tel.Shutdown(context.Background()))
	}

	printStartupSummary(c.out, cfg)

	con := newConsole(c.out)
	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(tel.Metrics),
		app.WithSink(con),
		app.WithSpeakingObserver(con),
	)
	if err != nil {
		return errors.Join(err, tel.Shutdown(context.Background()))
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(c.configPath, func(old, next *config.Config) {
		c.applyReload(application, old, next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		// Catch edits made while the app was starting.
		c.applyReload(application, cfg, watcher.Current())
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Server.AdminEnabled() {
		handler := adminHandler(application, tel)
		g.Go(func() error {
			return serveAdmin(gctx, cfg.Server.ListenAddr, handler)
		})
	}
	g.Go(func() error {
		defer cancel()
		c.repl(gctx, application, con)
		return nil
	})
	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	slog.Info("shutting down")
	return errors.Join(
		runErr,
		application.Shutdown(shutdownCtx),
		tel.Shutdown(shutdownCtx),
	)
}

// applyReload hands a reloaded config to the app and adjusts the log level.
func (c *cli) applyReload(a *app.App, old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		c.level.Set(slogLevel(d.NewLogLevel))
	}
	a.ApplyConfig(next)
	slog.Info("configuration reloaded; changes apply to the next call",
		"receptionist", d.ReceptionistFields,
		"harness", d.HarnessChanged,
		"log_level", next.Server.LogLevel,
	)
	if len(d.RestartRequired) > 0 {
		slog.Warn("some configuration changes need a restart", "sections", d.RestartRequired)
	}
}

// ── Console loop ─────────────────────────────────────────────────────────────

// repl starts the first call and reads operator commands until quit, end of
// input or ctx ends.
func (c *cli) repl(ctx context.Context, a *app.App, con *console) {
	lines := make(chan string)
	// A blocked terminal read cannot be interrupted; this goroutine ends with
	// the process when the loop exits on ctx.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := a.StartCall(ctx); err != nil {
		con.printf("! %s", describe(err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if dispatch(ctx, a, con, line) {
				return
			}
		}
	}
}

// dispatch runs one operator command and reports whether to quit.
func dispatch(ctx context.Context, a *app.App, con *console, line string) (quit bool) {
	ctrl := a.Controller()
	var err error
	switch cmd := strings.ToLower(strings.TrimSpace(line)); cmd {
	case "":
		err = ctrl.Send()
	case "l":
		err = ctrl.Listen()
	case "s":
		err = a.StartCall(ctx)
	case "e":
		err = ctrl.EndCall()
	case "a":
		b, acceptErr := a.AcceptBooking(ctx)
		if err = acceptErr; err == nil {
			con.printf("Booking %s saved.", b.ID)
		}
	case "d":
		err = ctrl.Dismiss()
	case "q":
		if ctrl.State().Live() {
			_ = ctrl.EndCall()
		}
		return true
	case "?", "h", "help":
		con.help()
	default:
		con.printf("unknown command %q; type ? for help", cmd)
	}
	if err != nil {
		con.printf("! %s", describe(err))
	}
	return false
}

// ── Admin server ─────────────────────────────────────────────────────────────

// adminHandler serves /healthz, /readyz and /metrics.
func adminHandler(a *app.App, tel *observe.Telemetry) http.Handler {
	mux := http.NewServeMux()
	health.New(a.HealthCheckers(), health.WithStatus(a.Status)).Register(mux)
	mux.Handle("GET /metrics", tel.Handler())
	return observe.Middleware(tel.Metrics)(mux)
}

// serveAdmin runs the admin server until ctx ends.
func serveAdmin(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("admin server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
