package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/telemetry"
	"github.com/rendis/vsm/pkg/schema"
)

const canvasKey = "vsm-canvas-state"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// vacuumStore counts Vacuum calls and can be told to fail them.
type vacuumStore struct {
	*store.MemoryStore
	vacuums atomic.Int32
	fail    bool
}

func (v *vacuumStore) Vacuum(context.Context) error {
	v.vacuums.Add(1)
	if v.fail {
		return errors.New("database is locked")
	}
	return nil
}

func newTestScheduler(t *testing.T, s store.Store, clock *fakeClock, mutate func(*Deps)) *Scheduler {
	t.Helper()
	deps := Deps{
		Store:  s,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Key:    canvasKey,
		Now:    clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	sched, err := NewScheduler(deps)
	require.NoError(t, err)
	return sched
}

func putCanvas(t *testing.T, s store.Store, body string) {
	t.Helper()
	_, err := s.PutDocument(context.Background(), canvasKey, []byte(body))
	require.NoError(t, err)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewScheduler_Validation(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no store", Deps{Key: canvasKey}},
		{"no key", Deps{Store: store.NewMemoryStore()}},
		{"bad backup cron", Deps{Store: store.NewMemoryStore(), Key: canvasKey, BackupCron: "every hour"}},
		{"bad vacuum cron", Deps{Store: store.NewMemoryStore(), Key: canvasKey, VacuumCron: "61 * * * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduler(tt.deps)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
		})
	}
}

func TestJobs_DefaultSchedules(t *testing.T) {
	clock := newClock()
	sched := newTestScheduler(t, store.NewMemoryStore(), clock, nil)

	jobs := sched.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, JobBackup, jobs[0].Name)
	assert.Equal(t, DefaultBackupCron, jobs[0].Cron)
	assert.Equal(t, time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC), jobs[0].NextRunAt)
	assert.Equal(t, JobVacuum, jobs[1].Name)
	assert.Equal(t, time.Date(2026, 1, 11, 3, 30, 0, 0, time.UTC), jobs[1].NextRunAt)
	assert.Nil(t, jobs[0].LastRunAt)
}

func TestJobs_DashDisables(t *testing.T) {
	sched := newTestScheduler(t, store.NewMemoryStore(), newClock(), func(d *Deps) { d.VacuumCron = "-" })
	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobBackup, jobs[0].Name)
}

func TestRunDue(t *testing.T) {
	clock := newClock()
	s := store.NewMemoryStore()
	putCanvas(t, s, `{"nodes":[],"edges":[]}`)
	reg := telemetry.NewRegistry()
	sched := newTestScheduler(t, s, clock, func(d *Deps) { d.Telemetry = reg })
	ctx := context.Background()

	assert.Empty(t, sched.RunDue(ctx), "nothing due yet")

	clock.Advance(time.Hour)
	assert.Equal(t, []string{JobBackup}, sched.RunDue(ctx))

	backups, err := sched.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, canvasKey+".backup.20260105T110000.000000000Z", backups[0].Key)

	jobs := sched.Jobs()
	assert.Equal(t, time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), jobs[0].NextRunAt)
	require.NotNil(t, jobs[0].LastRunAt)
	assert.Equal(t, "success", jobs[0].LastRunStatus)
	assert.Equal(t, 1.0, counterValue(t, reg.MaintenanceRunsTotal.WithLabelValues(JobBackup, "ok")))

	assert.Empty(t, sched.RunDue(ctx), "rescheduled")
}

func TestBackup_NothingStored(t *testing.T) {
	s := store.NewMemoryStore()
	sched := newTestScheduler(t, s, newClock(), nil)

	key, err := sched.Backup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, key)

	backups, err := sched.Backups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestBackup_Retention(t *testing.T) {
	clock := newClock()
	s := store.NewMemoryStore()
	putCanvas(t, s, `{"nodes":[],"edges":[]}`)
	sched := newTestScheduler(t, s, clock, func(d *Deps) { d.Retention = 3 })
	ctx := context.Background()

	var keys []string
	for range 5 {
		key, err := sched.Backup(ctx)
		require.NoError(t, err)
		keys = append(keys, key)
		clock.Advance(time.Second)
	}

	backups, err := sched.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	for i, b := range backups {
		assert.Equal(t, keys[i+2], b.Key, "oldest backups pruned first")
	}

	doc, err := s.GetDocument(ctx, canvasKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(doc.Body), "live document untouched")
}

func TestVacuumFailureIsRecorded(t *testing.T) {
	clock := newClock()
	vs := &vacuumStore{MemoryStore: store.NewMemoryStore(), fail: true}
	reg := telemetry.NewRegistry()
	sched := newTestScheduler(t, vs, clock, func(d *Deps) {
		d.Telemetry = reg
		d.BackupCron = "-"
		d.VacuumCron = "*/5 * * * *"
	})

	clock.Advance(5 * time.Minute)
	assert.Equal(t, []string{JobVacuum}, sched.RunDue(context.Background()))
	assert.Equal(t, int32(1), vs.vacuums.Load())

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "error", jobs[0].LastRunStatus)
	assert.Equal(t, time.Date(2026, 1, 5, 10, 10, 0, 0, time.UTC), jobs[0].NextRunAt, "failures still reschedule")
	assert.Equal(t, 1.0, counterValue(t, reg.MaintenanceRunsTotal.WithLabelValues(JobVacuum, "error")))
}

func TestRunNow(t *testing.T) {
	vs := &vacuumStore{MemoryStore: store.NewMemoryStore()}
	sched := newTestScheduler(t, vs, newClock(), nil)
	ctx := context.Background()

	require.NoError(t, sched.RunNow(ctx, JobVacuum))
	assert.Equal(t, int32(1), vs.vacuums.Load())
	assert.Nil(t, sched.Jobs()[1].LastRunAt, "manual runs leave the schedule alone")

	err := sched.RunNow(ctx, "defrag")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestReadBackup(t *testing.T) {
	clock := newClock()
	s := store.NewMemoryStore()
	putCanvas(t, s, `{"nodes":[{"id":"p1"}],"edges":[]}`)
	sched := newTestScheduler(t, s, clock, nil)
	ctx := context.Background()

	key, err := sched.Backup(ctx)
	require.NoError(t, err)
	putCanvas(t, s, `{"nodes":[],"edges":[]}`)

	body, err := sched.ReadBackup(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[{"id":"p1"}],"edges":[]}`, string(body))

	doc, err := s.GetDocument(ctx, canvasKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(doc.Body), "live document untouched")

	_, err = sched.ReadBackup(ctx, "vsm-custom-icons")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = sched.ReadBackup(ctx, canvasKey+".backup.19990101T000000.000000000Z")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestStartStop(t *testing.T) {
	clock := newClock()
	s := store.NewMemoryStore()
	putCanvas(t, s, `{"nodes":[],"edges":[]}`)
	sched := newTestScheduler(t, s, clock, func(d *Deps) { d.TickInterval = 10 * time.Millisecond })

	require.NoError(t, sched.Start(context.Background()))
	assert.Error(t, sched.Start(context.Background()), "already started")

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		backups, err := sched.Backups(context.Background())
		return err == nil && len(backups) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop(), "second stop is a no-op")
}
