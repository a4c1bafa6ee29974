package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// WebhookSink posts agent alerts as JSON to a chat webhook. Other channels
// are ignored.
type WebhookSink struct {
	url          string
	alertChannel string
	timeout      time.Duration
}

// NewWebhookSink builds a sink; alertChannel names the chat room in the payload.
func NewWebhookSink(url, alertChannel string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{url: url, alertChannel: alertChannel, timeout: timeout}
}

type webhookPayload struct {
	Channel  string         `json:"channel,omitempty"`
	Text     string         `json:"text"`
	TicketID string         `json:"ticket_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (s *WebhookSink) Send(ctx context.Context, n Notification) error {
	if n.Channel != ChannelAgentAlerts {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(s.url)
	agent.JSON(webhookPayload{
		Channel:  s.alertChannel,
		Text:     n.Subject + "\n" + n.Body,
		TicketID: n.TicketID,
		Data:     n.Data,
	})
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook post: %w", errors.Join(errs...))
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("webhook post: status %d: %s", code, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
