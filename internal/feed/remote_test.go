package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "localhost:1",
		DialTimeout:  10 * time.Millisecond,
		ReadTimeout:  10 * time.Millisecond,
		WriteTimeout: 10 * time.Millisecond,
		MaxRetries:   0,
	})
}

func TestRedisUnreachable(t *testing.T) {
	rdb := deadRedis()
	defer rdb.Close()
	f := NewRedis(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := f.Subscribe(ctx, "game_room"); err == nil {
		t.Error("Subscribe succeeded against an unreachable server")
	}
	if err := f.Publish(ctx, "game_room", Event{Kind: Broadcast, Name: EventSystemAlert}); err == nil {
		t.Error("Publish succeeded against an unreachable server")
	}
	if err := f.Check(ctx); err == nil {
		t.Error("Check reported healthy")
	}
}

func TestNATSUnreachable(t *testing.T) {
	if _, err := DialNATS("nats://localhost:1", slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("DialNATS succeeded against an unreachable server")
	}
}
