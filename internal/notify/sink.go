// Package notify delivers outbound notifications to chat, email and pub/sub sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Channel is a logical notification destination.
type Channel string

const (
	ChannelAgentAlerts   Channel = "agent_alerts"
	ChannelCustomerEmail Channel = "customer_email"
	ChannelAgentEmail    Channel = "agent_email"
)

// Notification is one message handed to a sink.
type Notification struct {
	Channel   Channel        `json:"channel"`
	Recipient string         `json:"recipient,omitempty"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	TicketID  string         `json:"ticket_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink delivers notifications.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the structured log. It never fails.
type LogSink struct {
	logger *zap.Logger
	from   string
}

// NewLogSink builds a LogSink; from is the sender shown for email channels.
func NewLogSink(logger *zap.Logger, from string) *LogSink {
	return &LogSink{logger: logger, from: from}
}

func (s *LogSink) Send(ctx context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("channel", string(n.Channel)),
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject),
		zap.String("ticket_id", n.TicketID),
	}
	if n.Channel != ChannelAgentAlerts && s.from != "" {
		fields = append(fields, zap.String("from", s.from))
	}
	s.logger.Info("notification", fields...)
	return nil
}

// MultiSink fans a notification out to every sink and joins failures.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps notifications in memory. Channels listed in Fail return
// an error instead of being stored.
type MemorySink struct {
	mu   sync.Mutex
	sent []Notification
	Fail map[Channel]bool
}

func (s *MemorySink) Send(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail[n.Channel] {
		return fmt.Errorf("%s unavailable", n.Channel)
	}
	s.sent = append(s.sent, n)
	return nil
}

// Sent returns a copy of delivered notifications.
func (s *MemorySink) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.sent...)
}

// OnChannel returns delivered notifications for one channel.
func (s *MemorySink) OnChannel(ch Channel) []Notification {
	var out []Notification
	for _, n := range s.Sent() {
		if n.Channel == ch {
			out = append(out, n)
		}
	}
	return out
}
