package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// NotificationService turns domain events into notifications. Delivery
// failures are logged and counted; the returned error only tells the
// publisher that delivery did not happen.
type NotificationService struct {
	dispatcher events.Dispatcher
	sink       notify.Sink
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sink notify.Sink, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sink:       sink,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketMessageAdded, n.handleTicketMessageAdded)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventSLAWarning, n.handleSLAWarning)
	n.dispatcher.Subscribe(events.EventSLAWarningDigest, n.handleSLAWarningDigest)
	n.dispatcher.Subscribe(events.EventCustomerReminder, n.handleCustomerReminder)
	n.dispatcher.Subscribe(events.EventTicketsAutoClosed, n.handleTicketsAutoClosed)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	out := []notify.Notification{{
		Channel:   notify.ChannelCustomerEmail,
		Recipient: payload.CustomerEmail,
		Subject:   fmt.Sprintf("[%s] We received your request: %s", payload.TicketNumber, payload.Subject),
		Body: fmt.Sprintf("Hi %s,\n\nYour ticket %s was created with %s priority. An agent will respond shortly.",
			firstNonEmpty(payload.CustomerName, "there"), payload.TicketNumber, payload.Priority),
		TicketID: event.TicketID,
		Data:     map[string]any{"ticket_number": payload.TicketNumber},
	}}
	if payload.Priority.Elevated() {
		out = append(out, notify.Notification{
			Channel:  notify.ChannelAgentAlerts,
			Subject:  fmt.Sprintf("New %s priority ticket", strings.ToUpper(string(payload.Priority))),
			Body:     fmt.Sprintf("%s: %s (customer %s)", payload.TicketNumber, payload.Subject, payload.CustomerEmail),
			TicketID: event.TicketID,
			Data:     map[string]any{"ticket_number": payload.TicketNumber, "priority": payload.Priority},
		})
	}
	return n.deliver(ctx, event, out...)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	if payload.Automatic {
		return n.deliver(ctx, event, notify.Notification{
			Channel:  notify.ChannelAgentAlerts,
			Subject:  "New ticket assigned",
			Body:     fmt.Sprintf("%s: %s\nAssigned to: %s\nPriority: %s", payload.TicketNumber, payload.Subject, payload.AgentName, payload.Priority),
			TicketID: event.TicketID,
			Data:     map[string]any{"ticket_number": payload.TicketNumber, "agent_id": payload.AgentID},
		})
	}
	if payload.AgentEmail == "" {
		return nil
	}
	return n.deliver(ctx, event, notify.Notification{
		Channel:   notify.ChannelAgentEmail,
		Recipient: payload.AgentEmail,
		Subject:   fmt.Sprintf("[%s] Ticket assigned to you", payload.TicketNumber),
		Body:      fmt.Sprintf("%s (%s priority) is now yours.", payload.Subject, payload.Priority),
		TicketID:  event.TicketID,
	})
}

func (n *NotificationService) handleTicketMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	if payload.IsInternalNote || !payload.SenderRole.Staff() {
		return nil
	}
	return n.deliver(ctx, event, notify.Notification{
		Channel:   notify.ChannelCustomerEmail,
		Recipient: payload.CustomerEmail,
		Subject:   fmt.Sprintf("[%s] New reply from support", payload.TicketNumber),
		Body:      payload.BodyPreview,
		TicketID:  event.TicketID,
	})
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	body := "Your ticket has been closed."
	if payload.AutoClosed {
		body = "Your ticket was closed after 7 days without activity."
	}
	if payload.SatisfactionRating == nil {
		body += " Let us know how we did by rating the conversation."
	}
	return n.deliver(ctx, event, notify.Notification{
		Channel:   notify.ChannelCustomerEmail,
		Recipient: payload.CustomerEmail,
		Subject:   fmt.Sprintf("[%s] Ticket closed", payload.TicketNumber),
		Body:      body,
		TicketID:  event.TicketID,
		Data:      map[string]any{"auto_closed": payload.AutoClosed},
	})
}

func (n *NotificationService) handleSLAWarning(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAWarningPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	if payload.AgentEmail == "" {
		return nil
	}
	return n.deliver(ctx, event, notify.Notification{
		Channel:   notify.ChannelAgentEmail,
		Recipient: payload.AgentEmail,
		Subject:   fmt.Sprintf("SLA warning: %s", payload.TicketNumber),
		Body: fmt.Sprintf("%s (%s priority) reaches its response deadline in %s at %s.",
			payload.Subject, payload.Priority, payload.TimeLeft.Round(time.Minute), payload.SLADeadline.Format(time.RFC3339)),
		TicketID: event.TicketID,
		Data:     map[string]any{"sla_deadline": payload.SLADeadline},
	})
}

func (n *NotificationService) handleSLAWarningDigest(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAWarningDigestPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	if len(payload.Tickets) == 0 {
		return nil
	}
	var b strings.Builder
	numbers := make([]string, 0, len(payload.Tickets))
	for _, w := range payload.Tickets {
		fmt.Fprintf(&b, "%s [%s] %s, due in %s\n", w.TicketNumber, w.Priority, w.Subject, w.TimeLeft.Round(time.Minute))
		numbers = append(numbers, w.TicketNumber)
	}
	return n.deliver(ctx, event, notify.Notification{
		Channel: notify.ChannelAgentAlerts,
		Subject: fmt.Sprintf("SLA warning: %d tickets approaching deadline", len(payload.Tickets)),
		Body:    strings.TrimRight(b.String(), "\n"),
		Data:    map[string]any{"ticket_numbers": numbers},
	})
}

func (n *NotificationService) handleCustomerReminder(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CustomerReminderPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	return n.deliver(ctx, event, notify.Notification{
		Channel:   notify.ChannelCustomerEmail,
		Recipient: payload.CustomerEmail,
		Subject:   fmt.Sprintf("[%s] We are waiting for your reply", payload.TicketNumber),
		Body: fmt.Sprintf("Hi %s,\n\nWe need a bit more information to continue with \"%s\". Reply to this ticket when you can.",
			firstNonEmpty(payload.CustomerName, "there"), payload.Subject),
		TicketID: event.TicketID,
	})
}

func (n *NotificationService) handleTicketsAutoClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketsAutoClosedPayload)
	if !ok {
		return n.unexpectedPayload(event)
	}
	if payload.Count == 0 {
		return nil
	}
	return n.deliver(ctx, event, notify.Notification{
		Channel: notify.ChannelAgentAlerts,
		Subject: fmt.Sprintf("Auto-closed %d inactive tickets", payload.Count),
		Body:    strings.Join(payload.TicketNumbers, ", "),
		Data:    map[string]any{"count": payload.Count},
	})
}

// deliver sends every notification and reports the first failure after
// attempting all of them.
func (n *NotificationService) deliver(ctx context.Context, event events.Event, out ...notify.Notification) error {
	if n.sink == nil {
		return nil
	}
	var first error
	for _, msg := range out {
		err := n.sink.Send(ctx, msg)
		if err == nil {
			continue
		}
		wrapped := apperrors.NewNotificationFailed(string(msg.Channel), err)
		n.logger.Warn("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.String("channel", string(msg.Channel)),
			zap.Error(err))
		n.metrics.RecordNotificationFailure(string(event.Type))
		if first == nil {
			first = wrapped
		}
	}
	return first
}

func (n *NotificationService) unexpectedPayload(event events.Event) error {
	n.logger.Error("unexpected event payload",
		zap.String("event_type", string(event.Type)),
		zap.String("payload_type", fmt.Sprintf("%T", event.Payload)))
	return fmt.Errorf("%s: unexpected payload %T", event.Type, event.Payload)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
