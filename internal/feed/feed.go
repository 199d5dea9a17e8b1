// Package feed carries row-change events and ephemeral broadcasts between
// the store and every running engine.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

type Kind string

const (
	RowChanged  Kind = "rowChanged"
	RowInserted Kind = "rowInserted"
	Broadcast   Kind = "broadcast"
)

const (
	TableTeams = "teams"
	TableGames = "games"
	TableLogs  = "system_logs"
)

// EventSystemAlert names the broadcast shown to every connected viewer.
const EventSystemAlert = "system_alert"

var ErrClosed = errors.New("feed closed")

// Event is either a row event (Table, Old, New) or a broadcast (Name,
// Payload). Delivery is per-row ordered at best and may repeat.
type Event struct {
	Kind    Kind            `json:"kind"`
	Table   string          `json:"table,omitempty"`
	Old     json.RawMessage `json:"old,omitempty"`
	New     json.RawMessage `json:"new,omitempty"`
	Name    string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscription delivers events until it is closed or the transport drops.
// A closed Events channel means events may have been missed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Feed interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Publish(ctx context.Context, channel string, ev Event) error
}

// RowEvent encodes old and new row images. A nil old is left out.
func RowEvent(kind Kind, table string, old, new any) (Event, error) {
	ev := Event{Kind: kind, Table: table}
	if old != nil {
		b, err := json.Marshal(old)
		if err != nil {
			return Event{}, fmt.Errorf("encoding old row: %w", err)
		}
		ev.Old = b
	}
	b, err := json.Marshal(new)
	if err != nil {
		return Event{}, fmt.Errorf("encoding new row: %w", err)
	}
	ev.New = b
	return ev, nil
}

// AlertPayload is the body of a system_alert broadcast.
type AlertPayload struct {
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

func PublishAlert(ctx context.Context, f Feed, channel string, p AlertPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	return f.Publish(ctx, channel, Event{Kind: Broadcast, Name: EventSystemAlert, Payload: b})
}

const queueSize = 256

// queue is the bounded buffer behind one subscription. A full queue closes
// itself: the consumer sees a dropped subscription and resynchronizes
// instead of silently missing a row.
type queue struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newQueue() *queue {
	return &queue{ch: make(chan Event, queueSize)}
}

func (q *queue) Events() <-chan Event { return q.ch }

// push reports false once the queue is closed, including when this push
// overflowed it.
func (q *queue) push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- ev:
		return true
	default:
		q.closed = true
		close(q.ch)
		return false
	}
}

func (q *queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
