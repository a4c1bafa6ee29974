package worker

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
)

type options struct {
	Logger     *zap.Logger
	Cron       *cron.Cron
	Parser     cron.Parser
	Location   *time.Location
	Locker     Locker
	Metrics    *observability.Metrics
	LockTTL    time.Duration
	Timeout    time.Duration
	MaxTries   uint
	NewBackOff func() backoff.BackOff
}

// Option applies configuration to the scheduler.
type Option func(*options)

func defaultOptions() options {
	return options{
		Logger:   zap.NewNop(),
		Parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		Location: time.UTC,
		LockTTL:  5 * time.Minute,
		MaxTries: 3,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// WithLogger injects the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithCronParser allows replacing the cron expression parser.
func WithCronParser(p cron.Parser) Option {
	return func(o *options) {
		o.Parser = p
	}
}

// WithLocation sets the timezone schedules are evaluated in. It is ignored
// when WithCron supplies the engine.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.Location = loc
		}
	}
}

// WithLocker sets the lock shared by every scheduler instance.
func WithLocker(l Locker) Option {
	return func(o *options) {
		o.Locker = l
	}
}

// WithMetrics records run outcomes and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.Metrics = m
	}
}

// WithLockTTL bounds how long a crashed run can block the next one.
func WithLockTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.LockTTL = d
		}
	}
}

// WithTimeout caps a single run including retries. Zero means no cap.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.Timeout = d
	}
}

// WithMaxTries sets how often a run failing on infrastructure is attempted.
func WithMaxTries(n uint) Option {
	return func(o *options) {
		if n > 0 {
			o.MaxTries = n
		}
	}
}

// WithBackOff replaces the retry delay policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(o *options) {
		if fn != nil {
			o.NewBackOff = fn
		}
	}
}
