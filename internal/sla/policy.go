// Package sla computes first-response deadlines from plan tiers and evaluates
// deadline status. Everything here is a pure function of its inputs.
package sla

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Status is the outcome of evaluating a ticket against its deadline.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusBreached Status = "breached"
)

// DefaultWarningWindow is how far ahead of the deadline a warning starts.
const DefaultWarningWindow = 4 * time.Hour

// Policy maps plan tiers to response windows.
type Policy struct {
	windows       map[domain.PlanTier]time.Duration
	defaultTier   domain.PlanTier
	warningWindow time.Duration
}

// DefaultPolicy returns the built-in table: standard 24h, professional 4h, enterprise 1h.
func DefaultPolicy() *Policy {
	return &Policy{
		windows: map[domain.PlanTier]time.Duration{
			domain.PlanStandard:     24 * time.Hour,
			domain.PlanProfessional: 4 * time.Hour,
			domain.PlanEnterprise:   time.Hour,
		},
		defaultTier:   domain.PlanStandard,
		warningWindow: DefaultWarningWindow,
	}
}

// NewPolicy builds a policy from configuration.
func NewPolicy(cfg config.SLAConfig) (*Policy, error) {
	if len(cfg.PlanHours) == 0 {
		return nil, fmt.Errorf("sla: empty plan table")
	}
	p := &Policy{
		windows:       make(map[domain.PlanTier]time.Duration, len(cfg.PlanHours)),
		defaultTier:   domain.PlanTier(strings.ToLower(cfg.DefaultPlan)),
		warningWindow: cfg.WarningWindow(),
	}
	for tier, hours := range cfg.PlanHours {
		if hours <= 0 {
			return nil, fmt.Errorf("sla: plan %q has non-positive window", tier)
		}
		p.windows[domain.PlanTier(strings.ToLower(tier))] = time.Duration(hours) * time.Hour
	}
	if _, ok := p.windows[p.defaultTier]; !ok {
		return nil, fmt.Errorf("sla: default plan %q not in table", cfg.DefaultPlan)
	}
	if p.warningWindow <= 0 {
		p.warningWindow = DefaultWarningWindow
	}
	return p, nil
}

// WarningWindow returns the configured warning window.
func (p *Policy) WarningWindow() time.Duration {
	return p.warningWindow
}

// ResolveTier maps unknown or empty tiers to the default tier.
func (p *Policy) ResolveTier(tier domain.PlanTier) domain.PlanTier {
	tier = domain.PlanTier(strings.ToLower(string(tier)))
	if _, ok := p.windows[tier]; ok {
		return tier
	}
	return p.defaultTier
}

// ResponseWindow returns the response window for tier.
func (p *Policy) ResponseWindow(tier domain.PlanTier) time.Duration {
	return p.windows[p.ResolveTier(tier)]
}

// ComputeDeadline returns createdAt plus the tier's response window.
func (p *Policy) ComputeDeadline(createdAt time.Time, tier domain.PlanTier) time.Time {
	return createdAt.Add(p.ResponseWindow(tier))
}

// Evaluate classifies a ticket against its deadline at now.
//
// Closed tickets, tickets answered by the deadline and tickets waiting on the
// customer are ok. An unmet deadline is breached once now reaches it and a
// warning inside the warning window before it.
func (p *Policy) Evaluate(now, deadline time.Time, firstResponseAt *time.Time, status domain.TicketStatus) Status {
	if status == domain.TicketStatusClosed {
		return StatusOK
	}
	if firstResponseAt != nil && !firstResponseAt.After(deadline) {
		return StatusOK
	}
	if status == domain.TicketStatusWaiting {
		return StatusOK
	}
	if !now.Before(deadline) {
		return StatusBreached
	}
	if deadline.Sub(now) <= p.warningWindow {
		return StatusWarning
	}
	return StatusOK
}

// EvaluateTicket evaluates t. Tickets without a deadline are ok.
func (p *Policy) EvaluateTicket(now time.Time, t *domain.Ticket) Status {
	if t == nil || t.SLADeadline == nil {
		return StatusOK
	}
	return p.Evaluate(now, *t.SLADeadline, t.FirstResponseAt, t.Status)
}

// InWarningWindow reports whether deadline lies strictly between now and
// now+warning window. The SLA warning sweep selects tickets with it.
func (p *Policy) InWarningWindow(now, deadline time.Time) bool {
	return deadline.After(now) && deadline.Before(now.Add(p.warningWindow))
}
