package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS is a feed over core NATS subjects. Channel names are used as
// subjects.
type NATS struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*natsSub]struct{}
}

// DialNATS connects to url. Every disconnect drops the live subscriptions
// so their consumers resynchronize once the connection is back.
func DialNATS(url string, logger *slog.Logger) (*NATS, error) {
	n := &NATS{logger: logger, subs: make(map[*natsSub]struct{})}

	conn, err := nats.Connect(url,
		nats.Name("breachhunt"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error("nats disconnected", "error", err)
			n.dropAll()
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	n.conn = conn
	return n, nil
}

type natsSub struct {
	*queue
	owner *NATS
	sub   *nats.Subscription
	once  sync.Once
}

func (s *natsSub) Close() error {
	var err error
	s.once.Do(func() {
		s.queue.close()
		if sub := s.owner.forget(s); sub != nil {
			err = sub.Unsubscribe()
		}
	})
	return err
}

func (n *NATS) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	s := &natsSub{queue: newQueue(), owner: n}

	sub, err := n.conn.Subscribe(channel, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			n.logger.Warn("dropping malformed feed message", "channel", channel, "error", err)
			return
		}
		if !s.push(ev) {
			go s.Close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	// Flush so the server has registered the interest before we return.
	if err := n.conn.FlushWithContext(ctx); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}

	n.mu.Lock()
	s.sub = sub
	closed := s.queue.isClosed()
	if !closed {
		n.subs[s] = struct{}{}
	}
	n.mu.Unlock()
	if closed {
		sub.Unsubscribe()
		return nil, ErrClosed
	}

	context.AfterFunc(ctx, func() { s.Close() })
	return s, nil
}

func (n *NATS) Publish(_ context.Context, channel string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := n.conn.Publish(channel, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Check reports whether the connection is currently up.
func (n *NATS) Check(_ context.Context) error {
	if st := n.conn.Status(); st != nats.CONNECTED {
		return fmt.Errorf("nats status %s", st)
	}
	return nil
}

func (n *NATS) Close() error {
	n.dropAll()
	n.conn.Close()
	return nil
}

func (n *NATS) forget(s *natsSub) *nats.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, s)
	return s.sub
}

func (n *NATS) dropAll() {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[*natsSub]struct{})
	n.mu.Unlock()

	for s := range subs {
		s.Close()
	}
}
