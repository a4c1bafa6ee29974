package sweep

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/agentmetrics"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Sweep names, shared by the scheduler, the metrics labels and the manual
// trigger endpoint.
const (
	AutoCloseSweep        = "auto-close"
	SLAWarningSweep       = "sla-warning"
	CustomerReminderSweep = "customer-reminder"
	DailyRollupSweep      = "daily-rollup"
)

// Names lists every sweep in a stable order.
var Names = []string{AutoCloseSweep, SLAWarningSweep, CustomerReminderSweep, DailyRollupSweep}

// Item outcomes reported in Report.Counts.
const (
	OutcomeClosed    = "closed"
	OutcomeWarned    = "warned"
	OutcomeReminded  = "reminded"
	OutcomeSkipped   = "skipped"
	OutcomeThrottled = "throttled"
	OutcomeFailed    = "failed"
	OutcomeOpened    = "opened"
	OutcomeResolved  = "resolved"
	OutcomeRecovered = "recovered"
)

// TicketOps is the slice of the ticket service the sweeps write through, so
// closures follow the regular transition path.
type TicketOps interface {
	CloseStale(ctx context.Context, ticketID string, cutoff time.Time) (*domain.Ticket, bool, error)
	RecordReminder(ctx context.Context, ticketID string, at time.Time) error
	ReconcileClosure(ctx context.Context, ticketID string) (bool, error)
}

// Marker records that a key was seen. Mark returns true the first time a key
// is set within ttl.
type Marker interface {
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Config holds sweep thresholds.
type Config struct {
	AutoCloseAfter   time.Duration
	ReminderAfter    time.Duration
	ReminderThrottle time.Duration
	BatchSize        int
	Location         *time.Location
	// ReconcileWindow is how far back AutoClose looks for closures whose
	// agent metrics were never recorded.
	ReconcileWindow  time.Duration
}

// ConfigFrom converts the environment configuration.
func ConfigFrom(cfg config.SweepConfig) Config {
	return Config{
		AutoCloseAfter:   time.Duration(cfg.AutoCloseAfterHours) * time.Hour,
		ReminderAfter:    time.Duration(cfg.ReminderAfterHours) * time.Hour,
		ReminderThrottle: time.Duration(cfg.ReminderThrottleHours) * time.Hour,
		BatchSize:        cfg.BatchSize,
		Location:         cfg.Location(),
		ReconcileWindow:  time.Duration(cfg.ReconcileHours) * time.Hour,
	}
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AutoCloseAfter:   7 * 24 * time.Hour,
		ReminderAfter:    24 * time.Hour,
		ReminderThrottle: 48 * time.Hour,
		BatchSize:        500,
		Location:         time.UTC,
		ReconcileWindow:  72 * time.Hour,
	}
}

// Dependencies wires a Sweeper.
type Dependencies struct {
	TicketRepo      repository.TicketRepository
	DailyMetricRepo repository.DailyMetricRepository
	Tickets         TicketOps
	SLA             *sla.Policy
	Dispatcher      events.Dispatcher
	Marker          Marker
	Clock           clock.Clock
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	Config          Config
}

// Sweeper runs the periodic ticket sweeps. Every sweep selects its candidates
// first and then re-checks each one at write time, so a run can be repeated
// for the same period without double effects.
type Sweeper struct {
	tickets    repository.TicketRepository
	daily      repository.DailyMetricRepository
	ops        TicketOps
	sla        *sla.Policy
	dispatcher events.Dispatcher
	marker     Marker
	clock      clock.Clock
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        Config
}

// NewSweeper builds a Sweeper.
func NewSweeper(deps Dependencies) *Sweeper {
	cfg := deps.Config
	def := DefaultConfig()
	if cfg.AutoCloseAfter <= 0 {
		cfg.AutoCloseAfter = def.AutoCloseAfter
	}
	if cfg.ReminderAfter <= 0 {
		cfg.ReminderAfter = def.ReminderAfter
	}
	if cfg.ReminderThrottle <= 0 {
		cfg.ReminderThrottle = def.ReminderThrottle
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = def.ReconcileWindow
	}
	policy := deps.SLA
	if policy == nil {
		policy = sla.DefaultPolicy()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		tickets:    deps.TicketRepo,
		daily:      deps.DailyMetricRepo,
		ops:        deps.Tickets,
		sla:        policy,
		dispatcher: deps.Dispatcher,
		marker:     deps.Marker,
		clock:      clk,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "sweep")),
		cfg:        cfg,
	}
}

// Report summarizes one sweep run.
type Report struct {
	Sweep  string         `json:"sweep"`
	Counts map[string]int `json:"counts"`
	Date   string         `json:"date,omitempty"`
}

func newReport(name string) *Report {
	return &Report{Sweep: name, Counts: map[string]int{}}
}

// Run executes the named sweep. The daily rollup covers the current day in
// the sweep timezone.
func (s *Sweeper) Run(ctx context.Context, name string) (*Report, error) {
	switch name {
	case AutoCloseSweep:
		return s.AutoClose(ctx)
	case SLAWarningSweep:
		return s.SLAWarnings(ctx)
	case CustomerReminderSweep:
		return s.CustomerReminders(ctx)
	case DailyRollupSweep:
		return s.DailyRollup(ctx, s.clock.Now())
	default:
		return nil, apperrors.NewNotFound("sweep", map[string]any{"name": name})
	}
}

// AutoClose closes every open ticket idle for longer than AutoCloseAfter.
// It then records the agent metrics of recent closures that missed them, so
// a closure stored during a performance store outage is picked up by the
// same run or a retry.
func (s *Sweeper) AutoClose(ctx context.Context) (*Report, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.AutoCloseAfter)
	report := newReport(AutoCloseSweep)
	s.logger.Info("sweep started", zap.String("sweep", AutoCloseSweep), zap.Time("cutoff", cutoff))

	candidates, err := s.collect(ctx, repository.TicketFilter{
		Statuses:      domain.ActiveStatuses,
		UpdatedBefore: &cutoff,
		OldestFirst:   true,
	})
	if err != nil {
		return report, err
	}

	var (
		numbers []string
		failed  error
	)
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		closed, ok, err := s.ops.CloseStale(ctx, candidate.ID, cutoff)
		switch {
		case err != nil && ok:
			report.Counts[OutcomeClosed]++
			numbers = append(numbers, closed.TicketNumber)
			s.logger.Warn("auto-closed without agent metrics; reconciling",
				zap.String("ticket_id", candidate.ID), zap.Error(err))
		case err != nil:
			report.Counts[OutcomeFailed]++
			failed = errors.Join(failed, fmt.Errorf("ticket %s: %w", candidate.ID, err))
			s.logger.Error("auto-close failed", zap.String("ticket_id", candidate.ID), zap.Error(err))
		case !ok:
			report.Counts[OutcomeSkipped]++
		default:
			report.Counts[OutcomeClosed]++
			numbers = append(numbers, closed.TicketNumber)
		}
	}

	if len(numbers) > 0 {
		s.publish(ctx, events.New(events.EventTicketsAutoClosed, "", events.ActorFrom(domain.SystemPrincipal), now,
			events.TicketsAutoClosedPayload{Count: len(numbers), TicketNumbers: numbers}))
	}
	if err := s.reconcileClosures(ctx, now, report); err != nil {
		failed = errors.Join(failed, err)
	}
	s.finish(report)
	return report, failed
}

// reconcileClosures retries the metrics of assigned tickets closed within
// ReconcileWindow. Recording is idempotent per ticket.
func (s *Sweeper) reconcileClosures(ctx context.Context, now time.Time, report *Report) error {
	since := now.Add(-s.cfg.ReconcileWindow)
	closed, err := s.collect(ctx, repository.TicketFilter{
		Statuses:     []domain.TicketStatus{domain.TicketStatusClosed},
		ResolvedFrom: &since,
		OldestFirst:  true,
	})
	if err != nil {
		return err
	}
	var failed error
	for _, t := range closed {
		if !t.Assigned() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(failed, err)
		}
		applied, err := s.ops.ReconcileClosure(ctx, t.ID)
		switch {
		case err != nil:
			report.Counts[OutcomeFailed]++
			failed = errors.Join(failed, fmt.Errorf("ticket %s metrics: %w", t.ID, err))
			s.logger.Error("closure metrics still failing", zap.String("ticket_id", t.ID), zap.Error(err))
		case applied:
			report.Counts[OutcomeRecovered]++
		}
	}
	return failed
}

// SLAWarnings warns about unanswered tickets whose deadline falls inside the
// warning window. Without a Marker every run re-notifies.
func (s *Sweeper) SLAWarnings(ctx context.Context) (*Report, error) {
	now := s.clock.Now()
	horizon := now.Add(s.sla.WarningWindow())
	report := newReport(SLAWarningSweep)
	s.logger.Info("sweep started", zap.String("sweep", SLAWarningSweep), zap.Time("horizon", horizon))

	candidates, err := s.collect(ctx, repository.TicketFilter{
		Statuses:          []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusInProgress},
		SLADeadlineAfter:  &now,
		SLADeadlineBefore: &horizon,
		OldestFirst:       true,
	})
	if err != nil {
		return report, err
	}

	var (
		digest []events.SLAWarningPayload
		failed error
	)
	for i := range candidates {
		t := &candidates[i]
		if t.SLADeadline == nil || !s.sla.InWarningWindow(now, *t.SLADeadline) {
			report.Counts[OutcomeSkipped]++
			continue
		}
		if s.marker != nil {
			key := "sla-warning:" + t.ID + ":" + strconv.FormatInt(t.SLADeadline.Unix(), 10)
			first, err := s.marker.Mark(ctx, key, t.SLADeadline.Sub(now)+s.sla.WarningWindow())
			if err != nil {
				// Notify anyway; a duplicate beats a missed warning.
				s.logger.Warn("sla warning marker unavailable", zap.String("ticket_id", t.ID), zap.Error(err))
			} else if !first {
				report.Counts[OutcomeSkipped]++
				continue
			}
		}

		warning := events.SLAWarningPayload{
			TicketNumber: t.TicketNumber,
			Subject:      t.Subject,
			Priority:     t.Priority,
			SLADeadline:  *t.SLADeadline,
			TimeLeft:     t.SLADeadline.Sub(now),
		}
		if t.Assigned() {
			warning.AgentID = *t.AgentID
			if t.AgentEmail != nil {
				warning.AgentEmail = *t.AgentEmail
			}
			event := events.New(events.EventSLAWarning, t.ID, events.ActorFrom(domain.SystemPrincipal), now, warning)
			if err := s.dispatch(ctx, event); err != nil {
				failed = errors.Join(failed, err)
			}
		}
		digest = append(digest, warning)
		report.Counts[OutcomeWarned]++
	}

	if len(digest) > 0 {
		s.publish(ctx, events.New(events.EventSLAWarningDigest, "", events.ActorFrom(domain.SystemPrincipal), now,
			events.SLAWarningDigestPayload{Tickets: digest}))
	}
	s.finish(report)
	if failed != nil {
		s.logger.Warn("sla warning delivery incomplete", zap.Error(failed))
	}
	return report, nil
}

// CustomerReminders nudges customers on tickets waiting for their reply.
// lastReminderAt only moves when the reminder went out.
func (s *Sweeper) CustomerReminders(ctx context.Context) (*Report, error) {
	now := s.clock.Now()
	idleCutoff := now.Add(-s.cfg.ReminderAfter)
	throttleCutoff := now.Add(-s.cfg.ReminderThrottle)
	report := newReport(CustomerReminderSweep)
	s.logger.Info("sweep started", zap.String("sweep", CustomerReminderSweep), zap.Time("cutoff", idleCutoff))

	candidates, err := s.collect(ctx, repository.TicketFilter{
		Statuses:      []domain.TicketStatus{domain.TicketStatusWaiting},
		UpdatedBefore: &idleCutoff,
		OldestFirst:   true,
	})
	if err != nil {
		return report, err
	}

	var failed error
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		t := &candidates[i]
		if t.LastReminderAt != nil && t.LastReminderAt.After(throttleCutoff) {
			report.Counts[OutcomeThrottled]++
			continue
		}
		event := events.New(events.EventCustomerReminder, t.ID, events.ActorFrom(domain.SystemPrincipal), now,
			events.CustomerReminderPayload{
				TicketNumber:  t.TicketNumber,
				Subject:       t.Subject,
				CustomerEmail: t.CustomerEmail,
				CustomerName:  t.CustomerName,
			})
		if err := s.dispatch(ctx, event); err != nil {
			report.Counts[OutcomeFailed]++
			continue
		}
		if err := s.ops.RecordReminder(ctx, t.ID, now); err != nil {
			report.Counts[OutcomeFailed]++
			failed = errors.Join(failed, fmt.Errorf("ticket %s: %w", t.ID, err))
			s.logger.Error("recording reminder failed", zap.String("ticket_id", t.ID), zap.Error(err))
			continue
		}
		report.Counts[OutcomeReminded]++
	}
	s.finish(report)
	return report, failed
}

// DailyRollup recomputes the DailyMetric for the calendar day containing day
// in the sweep timezone and merges it into the stored record.
func (s *Sweeper) DailyRollup(ctx context.Context, day time.Time) (*Report, error) {
	now := s.clock.Now()
	local := day.In(s.cfg.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
	end := start.AddDate(0, 0, 1)
	date := start.Format(domain.DateKeyLayout)

	report := newReport(DailyRollupSweep)
	report.Date = date
	s.logger.Info("sweep started", zap.String("sweep", DailyRollupSweep), zap.String("date", date))

	opened, err := s.collect(ctx, repository.TicketFilter{CreatedFrom: &start, CreatedTo: &end, OldestFirst: true})
	if err != nil {
		return report, err
	}
	resolved, err := s.collect(ctx, repository.TicketFilter{ResolvedFrom: &start, ResolvedTo: &end, OldestFirst: true})
	if err != nil {
		return report, err
	}
	open, err := s.collect(ctx, repository.TicketFilter{Statuses: domain.ActiveStatuses, OldestFirst: true})
	if err != nil {
		return report, err
	}

	buckets := map[string]domain.AgentDayMetric{}
	for i := range opened {
		key := bucketKey(&opened[i])
		b := buckets[key]
		b.TicketsOpened++
		buckets[key] = b
	}
	for i := range resolved {
		t := &resolved[i]
		key := bucketKey(t)
		b := buckets[key]
		b.TicketsClosed++
		if t.FirstResponseAt != nil {
			b.TotalResponseTime += agentmetrics.ResponseTimeMinutes(t)
			b.ResponseCount++
		}
		buckets[key] = b
	}

	metric := &domain.DailyMetric{
		Date:          date,
		TicketsOpened: len(opened),
		TicketsClosed: len(resolved),
		SLACompliance: compliance(now, open),
		AgentMetrics:  buckets,
		UpdatedAt:     now,
	}
	if err := s.daily.Upsert(ctx, metric); err != nil {
		return report, apperrors.NewDependencyUnavailable("daily metric store", err)
	}

	report.Counts[OutcomeOpened] = metric.TicketsOpened
	report.Counts[OutcomeResolved] = metric.TicketsClosed
	s.finish(report)
	return report, nil
}

// compliance is the fraction of open tickets not past their deadline; 1 when
// nothing is open.
func compliance(now time.Time, open []domain.Ticket) float64 {
	if len(open) == 0 {
		return 1
	}
	within := 0
	for i := range open {
		if open[i].SLADeadline == nil || open[i].SLADeadline.After(now) {
			within++
		}
	}
	return float64(within) / float64(len(open))
}

func bucketKey(t *domain.Ticket) string {
	if t.Assigned() {
		return *t.AgentID
	}
	return domain.UnassignedBucket
}

// collect pages through every ticket matching filter before any of them is
// modified, so writes made by the sweep cannot shift later pages.
func (s *Sweeper) collect(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	filter.Limit = s.cfg.BatchSize
	var all []domain.Ticket
	for offset := 0; ; offset += s.cfg.BatchSize {
		filter.Offset = offset
		batch, err := s.tickets.ListWithFilter(ctx, filter)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, apperrors.NewDependencyUnavailable("ticket store", err)
		}
		all = append(all, batch...)
		if len(batch) < s.cfg.BatchSize {
			return all, nil
		}
	}
}

// dispatch publishes event and reports delivery failures. They are already
// logged and counted by the notification handlers.
func (s *Sweeper) dispatch(ctx context.Context, event events.Event) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Publish(ctx, event)
}

func (s *Sweeper) publish(ctx context.Context, event events.Event) {
	if err := s.dispatch(ctx, event); err != nil {
		s.logger.Warn("event delivery failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func (s *Sweeper) finish(report *Report) {
	for outcome, n := range report.Counts {
		s.metrics.RecordSweepItems(report.Sweep, outcome, n)
	}
	fields := []zap.Field{zap.String("sweep", report.Sweep), zap.Any("counts", report.Counts)}
	if report.Date != "" {
		fields = append(fields, zap.String("date", report.Date))
	}
	s.logger.Info("sweep finished", fields...)
}
