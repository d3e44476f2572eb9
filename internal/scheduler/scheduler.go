// Package scheduler runs store maintenance on cron schedules: periodic
// backups of the canvas document with bounded retention, and VACUUM. It
// never touches the live graph held by the editor.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/telemetry"
	"github.com/rendis/vsm/pkg/schema"
)

// Job names.
const (
	JobBackup = "backup"
	JobVacuum = "vacuum"
)

// Defaults for Deps fields left empty.
const (
	DefaultBackupCron   = "0 * * * *"
	DefaultVacuumCron   = "30 3 * * 0"
	DefaultRetention    = 24
	DefaultTickInterval = 60 * time.Second
)

// backupTimeFormat sorts lexically in time order.
const backupTimeFormat = "20060102T150405.000000000Z"

// Deps holds the dependencies for creating a Scheduler.
type Deps struct {
	Store     store.Store
	Telemetry *telemetry.Registry // optional
	Logger    *slog.Logger
	// Key is the document backed up, normally the canvas key.
	Key string
	// BackupCron and VacuumCron are five-field cron expressions. "-" disables a job.
	BackupCron string
	VacuumCron string
	// Retention is how many backups are kept.
	Retention    int
	TickInterval time.Duration
	Now          func() time.Time
}

type job struct {
	name    string
	expr    string
	run     func(ctx context.Context) error
	nextRun time.Time
	lastRun *time.Time
	status  string
}

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	Name          string     `json:"name"`
	Cron          string     `json:"cron"`
	NextRunAt     time.Time  `json:"next_run_at"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// Scheduler polls its jobs on a ticker and runs those that are due.
type Scheduler struct {
	store     store.Store
	telemetry *telemetry.Registry
	parser    cron.Parser
	logger    *slog.Logger
	key       string
	retention int
	interval  time.Duration
	now       func() time.Time

	jobsMu sync.Mutex
	jobs   []*job

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler validates the cron expressions and creates a Scheduler.
func NewScheduler(deps Deps) (*Scheduler, error) {
	if deps.Store == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "scheduler needs a store")
	}
	if deps.Key == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "scheduler needs a document key")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	s := &Scheduler{
		store:     deps.Store,
		telemetry: deps.Telemetry,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:    logger,
		key:       deps.Key,
		retention: deps.Retention,
		interval:  deps.TickInterval,
		now:       deps.Now,
		inflight:  make(map[string]struct{}),
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.interval <= 0 {
		s.interval = DefaultTickInterval
	}
	if s.now == nil {
		s.now = time.Now
	}

	backupExpr, vacuumExpr := deps.BackupCron, deps.VacuumCron
	if backupExpr == "" {
		backupExpr = DefaultBackupCron
	}
	if vacuumExpr == "" {
		vacuumExpr = DefaultVacuumCron
	}

	now := s.now().UTC()
	for _, j := range []*job{
		{name: JobBackup, expr: backupExpr, run: func(ctx context.Context) error { _, err := s.Backup(ctx); return err }},
		{name: JobVacuum, expr: vacuumExpr, run: s.store.Vacuum},
	} {
		if j.expr == "-" {
			continue
		}
		next, err := s.CalculateNextRun(j.expr, now)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s schedule: %s", j.name, err.Error()).WithCause(err)
		}
		j.nextRun = next
		s.jobs = append(s.jobs, j)
	}
	return s, nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.Jobs())))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs every job whose next run is not after now and reschedules it.
// It returns the names of the jobs that ran.
func (s *Scheduler) RunDue(ctx context.Context) []string {
	now := s.now().UTC()

	s.jobsMu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			due = append(due, j)
		}
	}
	s.jobsMu.Unlock()

	var ran []string
	for _, j := range due {
		if !s.tryAcquire(j.name) {
			continue // already running (dedup)
		}
		s.runJob(ctx, j, now)
		s.releaseJob(j.name)
		ran = append(ran, j.name)
	}
	return ran
}

// RunNow runs the named job immediately without changing its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j := s.find(name)
	if j == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "unknown maintenance job %q", name)
	}
	if !s.tryAcquire(name) {
		return schema.NewErrorf(schema.ErrCodeValidation, "maintenance job %q is already running", name)
	}
	defer s.releaseJob(name)

	err := j.run(ctx)
	s.record(name, err)
	return err
}

func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) {
	s.logger.InfoContext(ctx, "running maintenance job", slog.String("job", j.name))

	err := j.run(ctx)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.ErrorContext(ctx, "maintenance job failed",
			slog.String("job", j.name),
			slog.String("error", err.Error()),
		)
	}
	s.record(j.name, err)

	next, perr := s.CalculateNextRun(j.expr, now)
	s.jobsMu.Lock()
	j.lastRun = &now
	j.status = status
	if perr == nil {
		j.nextRun = next
	}
	s.jobsMu.Unlock()
}

func (s *Scheduler) record(name string, err error) {
	if s.telemetry != nil {
		s.telemetry.RecordMaintenance(name, err)
	}
}

func (s *Scheduler) find(name string) *job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j
		}
	}
	return nil
}

// Jobs returns the state of every enabled job.
func (s *Scheduler) Jobs() []JobStatus {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStatus{Name: j.name, Cron: j.expr, NextRunAt: j.nextRun, LastRunAt: j.lastRun, LastRunStatus: j.status})
	}
	return out
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// backupPrefix is the key prefix shared by every backup of the document.
func (s *Scheduler) backupPrefix() string {
	return s.key + ".backup."
}

// Backup copies the document to a timestamped key and prunes backups
// beyond the retention limit, oldest first. It returns the new key, or ""
// when there is nothing to back up.
func (s *Scheduler) Backup(ctx context.Context) (string, error) {
	doc, err := s.store.GetDocument(ctx, s.key)
	if err != nil {
		if schema.HasCode(err, schema.ErrCodeNotFound) {
			s.logger.DebugContext(ctx, "nothing to back up", slog.String("key", s.key))
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", s.key, err)
	}

	key := s.backupPrefix() + s.now().UTC().Format(backupTimeFormat)
	if _, err := s.store.PutDocument(ctx, key, doc.Body); err != nil {
		return "", fmt.Errorf("write backup %s: %w", key, err)
	}

	backups, err := s.Backups(ctx)
	if err != nil {
		return key, err
	}
	pruned := 0
	for len(backups) > s.retention {
		if err := s.store.DeleteDocument(ctx, backups[0].Key); err != nil && !schema.HasCode(err, schema.ErrCodeNotFound) {
			return key, fmt.Errorf("prune backup %s: %w", backups[0].Key, err)
		}
		backups = backups[1:]
		pruned++
	}

	s.logger.InfoContext(ctx, "canvas backed up",
		slog.String("backup", key),
		slog.Int64("revision", doc.Revision),
		slog.Int("pruned", pruned),
	)
	return key, nil
}

// Backups lists the stored backups oldest first, without bodies.
func (s *Scheduler) Backups(ctx context.Context) ([]*store.Document, error) {
	docs, err := s.store.ListDocuments(ctx, store.DocumentFilter{Prefix: s.backupPrefix()})
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// ReadBackup returns the body of one backup of the document. Restoring it
// is the editor's job, so the live key is never written here.
func (s *Scheduler) ReadBackup(ctx context.Context, backupKey string) ([]byte, error) {
	if !strings.HasPrefix(backupKey, s.backupPrefix()) || backupKey == s.backupPrefix() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%q is not a backup of %s", backupKey, s.key)
	}
	doc, err := s.store.GetDocument(ctx, backupKey)
	if err != nil {
		return nil, err
	}
	return doc.Body, nil
}
