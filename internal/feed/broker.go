package feed

import (
	"context"
	"sync"
)

// Broker is an in-process feed, keyed by channel name. It serves a single
// server process and the tests.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*brokerSub]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*brokerSub]struct{}),
	}
}

type brokerSub struct {
	*queue
	broker  *Broker
	channel string

	stopMu sync.Mutex
	stop   func() bool
}

func (s *brokerSub) Close() error {
	s.broker.remove(s)
	s.queue.close()

	s.stopMu.Lock()
	stop := s.stop
	s.stopMu.Unlock()
	if stop != nil {
		stop()
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	s := &brokerSub{queue: newQueue(), broker: b, channel: channel}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*brokerSub]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	s.stopMu.Lock()
	s.stop = stop
	s.stopMu.Unlock()
	return s, nil
}

// Publish hands ev to every subscriber of channel. Subscribers whose
// buffer is full are dropped.
func (b *Broker) Publish(_ context.Context, channel string, ev Event) error {
	var dead []*brokerSub

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	for s := range b.subs[channel] {
		if !s.push(ev) {
			dead = append(dead, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range dead {
		b.remove(s)
	}
	return nil
}

// Disconnect drops every subscriber of channel as a transport failure would.
func (b *Broker) Disconnect(channel string) {
	b.mu.Lock()
	subs := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()

	for s := range subs {
		s.queue.close()
	}
}

// Subscribers returns the number of live subscriptions on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	all := b.subs
	b.subs = make(map[string]map[*brokerSub]struct{})
	b.mu.Unlock()

	for _, subs := range all {
		for s := range subs {
			s.queue.close()
		}
	}
	return nil
}

func (b *Broker) remove(s *brokerSub) {
	b.mu.Lock()
	delete(b.subs[s.channel], s)
	if len(b.subs[s.channel]) == 0 {
		delete(b.subs, s.channel)
	}
	b.mu.Unlock()
}
