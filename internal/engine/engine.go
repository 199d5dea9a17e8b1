// Package engine keeps a cache of the game mirrored from the store and the
// change feed, derives every viewer's state from it, and issues guarded
// mutations back to the store.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/breachhunt/internal/feed"
	"github.com/playperu/breachhunt/internal/hunt"
	"github.com/playperu/breachhunt/internal/store"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

type Config struct {
	Channel         string
	LivenessWindow  time.Duration
	AlertDuration   time.Duration
	ResyncInterval  time.Duration
	PredictionTTL   time.Duration
	ResetConfirmTTL time.Duration
	LogLimit        int
}

func (c Config) withDefaults() Config {
	if c.Channel == "" {
		c.Channel = "game_room"
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = 60 * time.Second
	}
	if c.AlertDuration <= 0 {
		c.AlertDuration = 8 * time.Second
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = time.Minute
	}
	if c.PredictionTTL <= 0 {
		c.PredictionTTL = 5 * time.Second
	}
	if c.ResetConfirmTTL <= 0 {
		c.ResetConfirmTTL = 30 * time.Second
	}
	if c.LogLimit <= 0 {
		c.LogLimit = 50
	}
	return c
}

type Alert struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type prediction struct {
	team  hunt.Team
	until time.Time
}

type Engine struct {
	store  store.Store
	feed   feed.Feed
	clock  clockwork.Clock
	logger *slog.Logger
	cfg    Config

	// writeMu serializes the mutations issued through this engine.
	writeMu sync.Mutex

	mu          sync.RWMutex
	ready       bool
	connected   bool
	game        hunt.Game
	teams       map[string]hunt.Team
	nodes       []hunt.Node
	logs        []hunt.LogEntry // newest first
	alert       *Alert
	predictions map[string]prediction
	resets      map[string]time.Time

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}
}

func New(st store.Store, f feed.Feed, clock clockwork.Clock, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		store:       st,
		feed:        f,
		clock:       clock,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		teams:       make(map[string]hunt.Team),
		predictions: make(map[string]prediction),
		resets:      make(map[string]time.Time),
		watchers:    make(map[chan struct{}]struct{}),
	}
}

// Run follows the change feed, drives the 1 Hz tick and the periodic
// resync until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.follow(gctx) })
	g.Go(func() error { return e.tick(gctx) })
	g.Go(func() error { return e.resync(gctx) })
	return g.Wait()
}

// follow subscribes, seeds the cache with a full read and applies events
// until the subscription drops, then starts over.
func (e *Engine) follow(ctx context.Context) error {
	backoff := minBackoff
	retry := func(msg string, err error) bool {
		e.logger.Warn(msg, "channel", e.cfg.Channel, "error", err, "retry_in", backoff.String())
		ok := e.sleep(ctx, backoff)
		backoff = min(backoff*2, maxBackoff)
		return ok
	}

	for {
		// Subscribe before reading so nothing committed during the read
		// is missed.
		sub, err := e.feed.Subscribe(ctx, e.cfg.Channel)
		if err != nil {
			if ctx.Err() != nil || !retry("subscribing to change feed", err) {
				return nil
			}
			continue
		}
		if err := e.Reload(ctx); err != nil {
			sub.Close()
			if ctx.Err() != nil || !retry("reading full state", err) {
				return nil
			}
			continue
		}
		backoff = minBackoff
		e.setConnected(true)
		e.logger.Info("following change feed", "channel", e.cfg.Channel)

		e.consume(ctx, sub)
		sub.Close()
		e.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		e.logger.Warn("change feed disconnected, resynchronizing", "channel", e.cfg.Channel)
	}
}

func (e *Engine) consume(ctx context.Context, sub feed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			e.apply(ev)
		}
	}
}

func (e *Engine) tick(ctx context.Context) error {
	t := e.clock.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			e.refresh(e.clock.Now())
			e.notify()
		}
	}
}

func (e *Engine) resync(ctx context.Context) error {
	t := e.clock.NewTicker(e.cfg.ResyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			if err := e.Reload(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("periodic resync failed, serving cached state", "error", err)
			}
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(d):
		return true
	}
}

// Reload re-reads everything from the store. Rows already cached at a
// newer version are kept, so a slow read never rolls the cache back.
func (e *Engine) Reload(ctx context.Context) error {
	game, err := e.store.GetGame(ctx)
	if err != nil {
		return fmt.Errorf("reading game: %w", err)
	}
	teams, err := e.store.ListTeams(ctx)
	if err != nil {
		return fmt.Errorf("reading teams: %w", err)
	}
	nodes, err := e.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("reading nodes: %w", err)
	}
	logs, err := e.store.ListLogs(ctx, e.cfg.LogLimit)
	if err != nil {
		return fmt.Errorf("reading logs: %w", err)
	}

	now := e.clock.Now()
	e.mu.Lock()
	if e.game.ID != game.ID || game.Version >= e.game.Version {
		e.game = game
	}
	fresh := make(map[string]hunt.Team, len(teams))
	for _, t := range teams {
		if cur, ok := e.teams[t.ID]; ok && cur.Version > t.Version {
			t = cur
		}
		fresh[t.ID] = t
		e.dropPredictionLocked(t)
	}
	e.teams = fresh
	e.nodes = nodes
	for _, l := range e.logs {
		logs = insertLog(logs, l, e.cfg.LogLimit)
	}
	e.logs = logs
	e.ready = true
	e.refreshLocked(now)
	e.mu.Unlock()

	e.logger.Debug("state reloaded", "teams", len(teams), "nodes", len(nodes))
	e.notify()
	return nil
}

// apply folds one feed event into the cache.
func (e *Engine) apply(ev feed.Event) {
	now := e.clock.Now()
	var changed bool
	switch ev.Kind {
	case feed.RowChanged, feed.RowInserted:
		switch ev.Table {
		case feed.TableTeams:
			changed = e.applyTeam(ev.New)
		case feed.TableGames:
			changed = e.applyGame(ev.New)
		case feed.TableLogs:
			changed = e.applyLog(ev.New)
		}
	case feed.Broadcast:
		if ev.Name == feed.EventSystemAlert {
			changed = e.applyAlert(ev.Payload, now)
		}
	}
	if changed {
		e.notify()
	}
}

// applyTeam replaces the cached row wholesale. Older versions than the
// cached one are echoes that arrived late and are skipped.
func (e *Engine) applyTeam(raw json.RawMessage) bool {
	var t hunt.Team
	if err := json.Unmarshal(raw, &t); err != nil {
		e.logger.Warn("dropping malformed team row", "error", err)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.game.ID != "" && t.GameID != e.game.ID {
		return false
	}
	if cur, ok := e.teams[t.ID]; ok && cur.Version > t.Version {
		return false
	}
	e.teams[t.ID] = t
	e.dropPredictionLocked(t)
	return true
}

// dropPredictionLocked forgets a prediction the confirmed row t has
// caught up with. Callers hold e.mu.
func (e *Engine) dropPredictionLocked(t hunt.Team) {
	if p, ok := e.predictions[t.ID]; ok && p.team.Version <= t.Version {
		delete(e.predictions, t.ID)
	}
}

func (e *Engine) applyGame(raw json.RawMessage) bool {
	var g hunt.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		e.logger.Warn("dropping malformed game row", "error", err)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if g.ID != e.game.ID || g.Version < e.game.Version {
		return false
	}
	e.game = g
	return true
}

func (e *Engine) applyLog(raw json.RawMessage) bool {
	var l hunt.LogEntry
	if err := json.Unmarshal(raw, &l); err != nil {
		e.logger.Warn("dropping malformed log row", "error", err)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.ContainsFunc(e.logs, func(x hunt.LogEntry) bool { return x.ID == l.ID }) {
		return false
	}
	e.logs = insertLog(e.logs, l, e.cfg.LogLimit)
	return true
}

func (e *Engine) applyAlert(raw json.RawMessage, now time.Time) bool {
	var p feed.AlertPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Message == "" {
		e.logger.Warn("dropping malformed alert", "error", err)
		return false
	}

	e.mu.Lock()
	e.alert = &Alert{Message: p.Message, ExpiresAt: now.Add(e.cfg.AlertDuration)}
	e.mu.Unlock()
	return true
}

// insertLog keeps logs ordered newest first, without duplicates, capped
// at limit.
func insertLog(logs []hunt.LogEntry, l hunt.LogEntry, limit int) []hunt.LogEntry {
	if slices.ContainsFunc(logs, func(x hunt.LogEntry) bool { return x.ID == l.ID }) {
		return logs
	}
	i := slices.IndexFunc(logs, func(x hunt.LogEntry) bool { return x.ID < l.ID })
	if i < 0 {
		i = len(logs)
	}
	logs = slices.Insert(logs, i, l)
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs
}

func (e *Engine) refresh(now time.Time) {
	e.mu.Lock()
	e.refreshLocked(now)
	e.mu.Unlock()
}

// refreshLocked expires time-bound state.
func (e *Engine) refreshLocked(now time.Time) {
	if e.alert != nil && !now.Before(e.alert.ExpiresAt) {
		e.alert = nil
	}
	for id, p := range e.predictions {
		if !now.Before(p.until) {
			delete(e.predictions, id)
		}
	}
	for tok, exp := range e.resets {
		if !now.Before(exp) {
			delete(e.resets, tok)
		}
	}
}

func (e *Engine) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

// Connected reports whether the engine is currently following the feed.
func (e *Engine) Connected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Check satisfies the health checker: the engine is healthy once it has
// loaded state and is following the feed.
func (e *Engine) Check(_ context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return ErrNotReady
	}
	if !e.connected {
		return fmt.Errorf("change feed %s not connected", e.cfg.Channel)
	}
	return nil
}

// Watch returns a channel that receives a signal whenever derived state may
// have changed, and a function to stop watching. Signals coalesce.
func (e *Engine) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	e.watchMu.Lock()
	e.watchers[ch] = struct{}{}
	e.watchMu.Unlock()

	return ch, func() {
		e.watchMu.Lock()
		delete(e.watchers, ch)
		e.watchMu.Unlock()
	}
}

func (e *Engine) notify() {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	for ch := range e.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
