package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis is a feed over Redis pub/sub, shared by every server process that
// points at the same Redis.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

type redisSub struct {
	*queue
	ps   *redis.PubSub
	once sync.Once
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		s.queue.close()
		err = s.ps.Close()
	})
	return err
}

func (r *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no publish after Subscribe
	// returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	s := &redisSub{queue: newQueue(), ps: ps}
	go r.pump(ctx, channel, s)
	context.AfterFunc(ctx, func() { s.Close() })
	return s, nil
}

// pump forwards messages until the connection fails or the subscription is
// closed. go-redis would reconnect on its own, but messages published in
// the gap are lost, so a failure ends the subscription and the consumer
// resubscribes and re-reads.
func (r *Redis) pump(ctx context.Context, channel string, s *redisSub) {
	defer s.Close()
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("redis subscription ended", "channel", channel, "error", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			r.logger.Warn("dropping malformed feed message", "channel", channel, "error", err)
			continue
		}
		if !s.push(ev) {
			r.logger.Warn("feed subscriber too slow, dropping subscription", "channel", channel)
			return
		}
	}
}

func (r *Redis) Publish(ctx context.Context, channel string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Check pings Redis for the health endpoint.
func (r *Redis) Check(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
