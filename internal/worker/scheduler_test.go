package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/sweep"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	cronEngine := cron.New(cron.WithLocation(time.UTC))
	t.Cleanup(func() { cronEngine.Stop() })
	base := []Option{
		WithCron(cronEngine),
		WithLogger(zap.NewNop()),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}
	return NewScheduler(append(base, opts...)...)
}

func TestRunNowReturnsReport(t *testing.T) {
	s := newTestScheduler(t, WithMetrics(observability.NewMetrics()))
	require.NoError(t, s.RegisterHandler("auto-close", "", func(ctx context.Context) (*sweep.Report, error) {
		return &sweep.Report{Sweep: "auto-close", Counts: map[string]int{"closed": 2}}, nil
	}))

	report, err := s.RunNow(context.Background(), "auto-close")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Counts["closed"])
}

func TestRunNowRetriesInfrastructureFailures(t *testing.T) {
	s := newTestScheduler(t, WithMaxTries(3))
	var calls int32
	require.NoError(t, s.RegisterHandler("daily-rollup", "", func(ctx context.Context) (*sweep.Report, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, apperrors.NewDependencyUnavailable("ticket store", errors.New("connection reset"))
		}
		return &sweep.Report{Sweep: "daily-rollup"}, nil
	}))

	report, err := s.RunNow(context.Background(), "daily-rollup")
	require.NoError(t, err)
	assert.Equal(t, "daily-rollup", report.Sweep)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRunNowGivesUpAfterMaxTries(t *testing.T) {
	s := newTestScheduler(t, WithMaxTries(2))
	var calls int32
	require.NoError(t, s.RegisterHandler("sla-warning", "", func(ctx context.Context) (*sweep.Report, error) {
		atomic.AddInt32(&calls, 1)
		return nil, apperrors.NewDependencyUnavailable("ticket store", errors.New("timeout"))
	}))

	_, err := s.RunNow(context.Background(), "sla-warning")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRunNowDoesNotRetryDomainErrors(t *testing.T) {
	s := newTestScheduler(t, WithMaxTries(5))
	var calls int32
	require.NoError(t, s.RegisterHandler("customer-reminder", "", func(ctx context.Context) (*sweep.Report, error) {
		atomic.AddInt32(&calls, 1)
		return nil, apperrors.NewValidationError("bad input", nil)
	}))

	_, err := s.RunNow(context.Background(), "customer-reminder")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRunNowSkipsWhenLocked(t *testing.T) {
	locker := NewLocalLocker()
	s := newTestScheduler(t, WithLocker(locker))
	var calls int32
	require.NoError(t, s.RegisterHandler("auto-close", "", func(ctx context.Context) (*sweep.Report, error) {
		atomic.AddInt32(&calls, 1)
		return &sweep.Report{}, nil
	}))

	unlock, ok, err := locker.TryLock(context.Background(), "sweep:auto-close", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.RunNow(context.Background(), "auto-close")
	require.Error(t, err)
	assert.Equal(t, "CONCURRENT_UPDATE_CONFLICT", apperrors.ToDomainError(err).Code)
	assert.Zero(t, atomic.LoadInt32(&calls))

	require.NoError(t, unlock(context.Background()))
	_, err = s.RunNow(context.Background(), "auto-close")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRunNowUnknownJob(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.RunNow(context.Background(), "vacuum")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestRegisterHandlerValidation(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(ctx context.Context) (*sweep.Report, error) { return nil, nil }

	require.Error(t, s.RegisterHandler("bad", "not a cron", noop))
	require.NoError(t, s.RegisterHandler("ok", "0 2 * * *", noop))
	require.Error(t, s.RegisterHandler("ok", "0 3 * * *", noop))
	assert.Equal(t, []string{"ok"}, s.Jobs())
}

func TestScheduledJobFires(t *testing.T) {
	s := newTestScheduler(t)
	var calls int32
	require.NoError(t, s.RegisterHandler("tick", "@every 1s", func(ctx context.Context) (*sweep.Report, error) {
		atomic.AddInt32(&calls, 1)
		return &sweep.Report{}, nil
	}))

	s.Start()
	next, ok := s.Next("tick")
	require.True(t, ok)
	assert.False(t, next.IsZero())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestLocalLockerExpiry(t *testing.T) {
	locker := NewLocalLocker()
	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return clock }
	ctx := context.Background()

	staleUnlock, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	clock = clock.Add(2 * time.Minute)
	unlock, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired holder must not release the new lease.
	require.NoError(t, staleUnlock(ctx))
	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	require.NoError(t, unlock(ctx))
	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestRegisterSweeps(t *testing.T) {
	store := memory.NewStore()
	sweeper := sweep.NewSweeper(sweep.Dependencies{
		TicketRepo:      store.Tickets,
		DailyMetricRepo: store.DailyMetrics,
		Dispatcher:      events.NewInMemoryDispatcher(),
	})

	disabled := newTestScheduler(t)
	require.NoError(t, RegisterSweeps(disabled, sweeper, config.SweepConfig{Enabled: false, AutoCloseCron: "0 2 * * *"}))
	assert.Equal(t, []string{"auto-close", "customer-reminder", "daily-rollup", "sla-warning"}, disabled.Jobs())
	_, scheduled := disabled.Next(sweep.AutoCloseSweep)
	assert.False(t, scheduled)

	report, err := disabled.RunNow(context.Background(), sweep.DailyRollupSweep)
	require.NoError(t, err)
	assert.Equal(t, sweep.DailyRollupSweep, report.Sweep)

	enabled := newTestScheduler(t)
	require.NoError(t, RegisterSweeps(enabled, sweeper, config.SweepConfig{
		Enabled:        true,
		AutoCloseCron:  "0 2 * * *",
		SLAWarningCron: "0 */4 * * *",
		ReminderCron:   "0 9 * * *",
		RollupCron:     "0 23 * * *",
	}))
	assert.Len(t, enabled.Jobs(), 4)
}

func TestStartNotificationWorkerWithoutSink(t *testing.T) {
	assert.Nil(t, StartNotificationWorker(events.NewInMemoryDispatcher(), nil, nil, zap.NewNop()))
}
