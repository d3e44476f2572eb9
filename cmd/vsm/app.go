package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/vsm/internal/editor"
	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/graphstore"
	"github.com/rendis/vsm/internal/logging"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/internal/scheduler"
	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/streaming"
	"github.com/rendis/vsm/internal/telemetry"
	"github.com/rendis/vsm/internal/validation"
)

// app is one wired vsm process: a store, the persistence gate, the editing
// session and the engine every transport drives.
type app struct {
	cfg       Config
	logger    *slog.Logger
	store     store.Store
	hub       *streaming.MemoryHub
	telemetry *telemetry.Registry
	validator *validation.GraphValidator
	gate      *persistence.Gate
	session   *editor.Session
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
}

// newLogger builds the process logger. Context correlation ids are added to
// every record; the level can be changed at runtime through level.
func newLogger(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(logging.NewCorrelationHandler(h))
}

// openStore opens and migrates the libSQL database at cfg.DBPath.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
	}
	return s, nil
}

// newApp wires every component over st and hydrates the canvas.
func newApp(ctx context.Context, cfg Config, st store.Store, logger *slog.Logger) (*app, error) {
	reg := registry.Default()
	v, err := validation.NewGraphValidator(reg)
	if err != nil {
		return nil, fmt.Errorf("graph validator: %w", err)
	}
	tel := telemetry.NewRegistry()
	hub := streaming.NewMemoryHub()

	gate := persistence.New(persistence.Deps{
		Store:     st,
		Validator: v,
		Registry:  reg,
		Logger:    logger,
		CanvasKey: cfg.CanvasKey,
	})
	session := editor.New(ctx, editor.Deps{
		Graph:        graphstore.New(graphstore.WithRegistry(reg)),
		Gate:         gate,
		Hub:          hub,
		Telemetry:    tel,
		Logger:       logger,
		HistoryLimit: cfg.HistoryLimit,
		TaktTime:     cfg.TaktTime,
	})

	sched, err := scheduler.NewScheduler(scheduler.Deps{
		Store:      st,
		Telemetry:  tel,
		Logger:     logger,
		Key:        gate.Key(),
		BackupCron: cfg.BackupCron,
		VacuumCron: cfg.VacuumCron,
		Retention:  cfg.BackupRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	eng, err := engine.NewEngine(engine.Deps{
		Serial:          editor.NewSerial(session),
		Gate:            gate,
		Validator:       v,
		Scheduler:       sched,
		Logger:          logger,
		MermaidASCIIDir: binDir(),
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		hub:       hub,
		telemetry: tel,
		validator: v,
		gate:      gate,
		session:   session,
		engine:    eng,
		scheduler: sched,
	}, nil
}

// Close stops the scheduler and closes the store.
func (a *app) Close() error {
	if err := a.scheduler.Stop(); err != nil {
		a.logger.Warn("scheduler stop", slog.String("error", err.Error()))
	}
	return a.store.Close()
}
