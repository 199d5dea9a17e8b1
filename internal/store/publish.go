package store

import (
	"context"
	"log/slog"

	"github.com/playperu/breachhunt/internal/feed"
)

// publisher echoes committed rows on the change feed. A lost echo is only
// logged: the write already happened and engines re-read periodically.
type publisher struct {
	feed    feed.Feed
	channel string
	logger  *slog.Logger
}

func (p publisher) send(ctx context.Context, kind feed.Kind, table string, old, new any) {
	if p.feed == nil {
		return
	}
	ev, err := feed.RowEvent(kind, table, old, new)
	if err != nil {
		p.logger.Error("encoding row event", "table", table, "error", err)
		return
	}
	if err := p.feed.Publish(context.WithoutCancel(ctx), p.channel, ev); err != nil {
		p.logger.Warn("publishing row event", "table", table, "error", err)
	}
}
