package agentmetrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Recorder applies closures and ratings to stored agent aggregates,
// retrying when a concurrent writer wins the conditional update.
type Recorder struct {
	repo       repository.PerformanceRepository
	logger     *zap.Logger
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// NewRecorder builds a Recorder. maxTries below 1 means a single attempt.
func NewRecorder(repo repository.PerformanceRepository, logger *zap.Logger, maxTries int) *Recorder {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Recorder{
		repo:     repo,
		logger:   logger,
		maxTries: uint(maxTries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

// RecordClosure folds a closed ticket into its agent's aggregates exactly
// once. Unassigned tickets are skipped. The bool reports whether this call
// applied the closure.
func (r *Recorder) RecordClosure(ctx context.Context, t *domain.Ticket) (bool, error) {
	if t.Status != domain.TicketStatusClosed || t.ResolvedAt == nil {
		return false, fmt.Errorf("ticket %s is not closed", t.ID)
	}
	if !t.Assigned() {
		r.logger.Debug("closure without agent; metrics skipped", zap.String("ticket_id", t.ID))
		return false, nil
	}

	closure := ClosureFromTicket(t)
	rec := domain.TicketMetric{
		TicketID:           t.ID,
		TicketNumber:       t.TicketNumber,
		AgentID:            *t.AgentID,
		ResponseTime:       closure.ResponseTime,
		SatisfactionRating: t.SatisfactionRating,
		TimeSpent:          t.TimeSpent,
		ClosedAt:           *t.ResolvedAt,
	}

	applied, err := r.retry(ctx, func() (bool, error) {
		return r.repo.RecordClosure(ctx, rec, func(m domain.AgentMetrics) domain.AgentMetrics {
			return Accumulate(m, closure)
		})
	})
	if err != nil {
		return false, err
	}
	if !applied {
		r.logger.Info("duplicate closure ignored", zap.String("ticket_id", t.ID))
		return false, nil
	}

	r.logger.Info("agent metrics updated",
		zap.String("ticket_id", t.ID),
		zap.String("agent_id", rec.AgentID),
		zap.Float64("response_minutes", rec.ResponseTime),
		zap.String("response_rating", string(RateResponseTime(rec.ResponseTime))),
	)
	return true, nil
}

// Recorded reports whether the closure of ticketID is already in the
// per-ticket audit log.
func (r *Recorder) Recorded(ctx context.Context, ticketID string) (bool, error) {
	_, err := r.repo.GetByTicket(ctx, ticketID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	}
	return false, err
}

// RecordRating folds a rating attached after closure into the CSAT aggregates.
func (r *Recorder) RecordRating(ctx context.Context, agentID string, rating int) error {
	_, err := r.retry(ctx, func() (bool, error) {
		return true, r.repo.UpdateMetrics(ctx, agentID, func(m domain.AgentMetrics) domain.AgentMetrics {
			return AccumulateRating(m, rating)
		})
	})
	return err
}

func (r *Recorder) retry(ctx context.Context, op func() (bool, error)) (bool, error) {
	return backoff.Retry(ctx, func() (bool, error) {
		ok, err := op()
		if err == nil {
			return ok, nil
		}
		if errors.Is(err, repository.ErrConflict) {
			r.logger.Debug("agent metrics conflict; retrying", zap.Error(err))
			return false, err
		}
		return false, backoff.Permanent(err)
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(r.maxTries))
}
