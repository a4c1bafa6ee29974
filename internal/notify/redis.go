package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes every notification as JSON on <prefix>:<channel> so
// external mailers and chat bridges can subscribe.
type RedisSink struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSink builds a RedisSink.
func NewRedisSink(client redis.Cmdable, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Topic returns the pub/sub channel used for ch.
func (s *RedisSink) Topic(ch Channel) string {
	return fmt.Sprintf("%s:%s", s.prefix, ch)
}

func (s *RedisSink) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.Topic(n.Channel), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
