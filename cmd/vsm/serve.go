package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rendis/vsm/internal/panel"
	"github.com/rendis/vsm/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

// buildHandler returns the HTTP surface: the panel with its JSON API when
// enabled, otherwise only the Prometheus endpoint.
func buildHandler(a *app, panelOn bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	if panelOn {
		ps := panel.NewPanelServer(panel.PanelDeps{
			Executor:  a.engine,
			Hub:       a.hub,
			Telemetry: a.telemetry,
			Logger:    a.logger,
		})
		mux.Handle("/", ps.Handler())
	} else {
		mux.Handle("GET /metrics", a.telemetry.Handler())
	}
	return mux
}

// runServe serves HTTP until ctx is cancelled. SIGHUP reloads settings:
// the panel toggle and log level apply live, anything else is logged as
// needing a restart.
func runServe(ctx context.Context, a *app, level *slog.LevelVar, args []string) error {
	fs := newFlagSet("serve", os.Stderr)
	listenAddr := fs.String("listen-addr", a.cfg.ListenAddr, "TCP listen address")
	panelFlag := fs.Bool("panel", a.cfg.Panel, "enable web panel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := a.cfg
	cfg.ListenAddr = *listenAddr
	cfg.Panel = *panelFlag

	swapper := newHandlerSwapper(buildHandler(a, cfg.Panel))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	if err := writePIDFile(); err != nil {
		a.logger.Warn("pid file not written", slog.String("error", err.Error()))
	}
	defer os.Remove(pidPath())

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("vsm listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("base_url", cfg.BaseURL),
			slog.Bool("panel", cfg.Panel),
		)
		errCh <- srv.ListenAndServe()
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-hup:
			cfg = reload(a, swapper, level, cfg)
		case <-ctx.Done():
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

// reload re-reads settings and applies what can change without a restart.
func reload(a *app, swapper *handlerSwapper, level *slog.LevelVar, current Config) Config {
	next, err := loadConfig()
	if err != nil {
		a.logger.Error("reload rejected", slog.String("error", err.Error()))
		return current
	}
	// The listener stays on the address it was started with.
	next.ListenAddr = current.ListenAddr

	d := diffConfigs(current, next)
	if d.LogLevelChanged {
		level.Set(parseLevel(next.LogLevel))
		a.logger.Info("log level changed", slog.String("level", next.LogLevel))
	}
	if d.PanelChanged {
		swapper.Swap(buildHandler(a, next.Panel))
		a.logger.Info("panel toggled", slog.Bool("panel", next.Panel))
	}
	if len(d.RestartNeeded) > 0 {
		a.logger.Warn("settings need a restart to apply", slog.Any("fields", d.RestartNeeded))
	}
	return next
}

// runMCP serves the MCP tools over stdio. Maintenance keeps running while
// the client is connected.
func runMCP(ctx context.Context, a *app) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	srv := mcp.NewVSMServer(mcp.VSMServerDeps{
		Executor:  a.engine,
		Hub:       a.hub,
		Telemetry: a.telemetry,
		Validator: a.validator,
		Logger:    a.logger,
	})
	a.logger.Info("vsm mcp server on stdio", slog.String("diagram_id", a.gate.Key()))
	return srv.Serve(ctx)
}

func writePIDFile() error {
	if err := os.MkdirAll(filepath.Dir(pidPath()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}
