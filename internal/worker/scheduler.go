package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/sweep"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Handler runs one job execution.
type Handler func(ctx context.Context) (*sweep.Report, error)

// ErrJobRunning is returned by RunNow when another run holds the job lock.
var ErrJobRunning = errors.New("job already running")

type job struct {
	name    string
	spec    string
	handler Handler
	entry   cron.EntryID
}

// Scheduler triggers registered handlers on cron schedules. A run takes the
// job's lock first, so across instances at most one run of a job is active.
// Runs failing on infrastructure are retried with exponential backoff.
type Scheduler struct {
	opts options
	cron *cron.Cron

	mu      sync.RWMutex
	jobs    map[string]*job
	started bool
}

// NewScheduler builds a Scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Locker == nil {
		o.Locker = NewLocalLocker()
	}
	engine := o.Cron
	if engine == nil {
		engine = cron.New(cron.WithLocation(o.Location), cron.WithParser(o.Parser))
	}
	return &Scheduler{
		opts: o,
		cron: engine,
		jobs: map[string]*job{},
	}
}

// RegisterHandler schedules fn under name. An empty spec registers the job
// for manual runs only.
func (s *Scheduler) RegisterHandler(name, spec string, fn Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, spec: spec, handler: fn}
	if spec != "" {
		schedule, err := s.opts.Parser.Parse(spec)
		if err != nil {
			return fmt.Errorf("job %q: invalid schedule %q: %w", name, spec, err)
		}
		j.entry = s.cron.Schedule(schedule, cron.FuncJob(func() {
			if _, err := s.execute(context.Background(), j); err != nil && !errors.Is(err, ErrJobRunning) {
				s.opts.Logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		}))
	}
	s.jobs[name] = j
	s.opts.Logger.Info("job registered", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Jobs returns registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next reports the next scheduled run of name.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok || j.spec == "" {
		return time.Time{}, false
	}
	entry := s.cron.Entry(j.entry)
	return entry.Next, entry.Valid()
}

// RunNow executes name immediately under the same lock and retry rules as a
// scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*sweep.Report, error) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("sweep", map[string]any{"name": name})
	}
	report, err := s.execute(ctx, j)
	if errors.Is(err, ErrJobRunning) {
		return nil, apperrors.NewConflict("sweep is already running", map[string]any{"name": name})
	}
	return report, err
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.opts.Logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop stops firing schedules and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.opts.Logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) (*sweep.Report, error) {
	logger := s.opts.Logger.With(zap.String("job", j.name))
	unlock, ok, err := s.opts.Locker.TryLock(ctx, "sweep:"+j.name, s.opts.LockTTL)
	if err != nil {
		s.opts.Metrics.RecordSweep(j.name, err, 0)
		return nil, apperrors.NewDependencyUnavailable("sweep lock", err)
	}
	if !ok {
		logger.Info("job skipped; lock held elsewhere")
		return nil, ErrJobRunning
	}
	defer func() {
		// The lease must go even when ctx was cancelled mid run.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			logger.Warn("releasing job lock failed", zap.Error(err))
		}
	}()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	attempt := 0
	report, err := backoff.Retry(ctx, func() (*sweep.Report, error) {
		attempt++
		report, err := j.handler(ctx)
		if err == nil {
			return report, nil
		}
		if retryable(err) {
			logger.Warn("job attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return report, backoff.Permanent(err)
	}, backoff.WithBackOff(s.opts.NewBackOff()), backoff.WithMaxTries(s.opts.MaxTries))

	elapsed := time.Since(start)
	s.opts.Metrics.RecordSweep(j.name, err, elapsed)
	if err != nil {
		logger.Error("job failed", zap.Int("attempts", attempt), zap.Duration("duration", elapsed), zap.Error(err))
		return report, err
	}
	logger.Info("job completed", zap.Int("attempts", attempt), zap.Duration("duration", elapsed))
	return report, nil
}

// retryable reports whether a later attempt may succeed.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, apperrors.ErrDependencyUnavailable) || errors.Is(err, apperrors.ErrConflict)
}

// RegisterSweeps schedules every sweep of sweeper with the crons in cfg.
// With sweeps disabled the jobs remain available for manual runs.
func RegisterSweeps(s *Scheduler, sweeper *sweep.Sweeper, cfg config.SweepConfig) error {
	specs := map[string]string{
		sweep.AutoCloseSweep:        cfg.AutoCloseCron,
		sweep.SLAWarningSweep:       cfg.SLAWarningCron,
		sweep.CustomerReminderSweep: cfg.ReminderCron,
		sweep.DailyRollupSweep:      cfg.RollupCron,
	}
	for _, name := range sweep.Names {
		name := name
		spec := specs[name]
		if !cfg.Enabled {
			spec = ""
		}
		if err := s.RegisterHandler(name, spec, func(ctx context.Context) (*sweep.Report, error) {
			return sweeper.Run(ctx, name)
		}); err != nil {
			return err
		}
	}
	return nil
}
