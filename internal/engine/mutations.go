package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/breachhunt/internal/feed"
	"github.com/playperu/breachhunt/internal/hunt"
	"github.com/playperu/breachhunt/internal/store"
)

// resumeAttempts bounds the re-read and retry of one team's resume when
// its row changed between the read and the write.
const resumeAttempts = 3

// StartClock starts the countdown for the game and every team. A
// non-positive minutes keeps the configured duration.
func (e *Engine) StartClock(ctx context.Context, sess Session, minutes int) error {
	if !sess.is(RoleAdmin) {
		return ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if minutes <= 0 {
		g, err := e.store.GetGame(ctx)
		if err != nil {
			return e.fail(ctx, "start clock", "TIMER ERROR", err)
		}
		minutes = max(1, g.DurationMinutes)
	}
	p := hunt.GamePatch{
		DurationMinutes: &minutes,
		StartTime:       hunt.SetTime(e.now()),
		PausedAt:        hunt.ClearTime(),
	}
	if err := e.writeClock(ctx, p); err != nil {
		return e.fail(ctx, "start clock", "TIMER ERROR", err)
	}

	e.logger.Info("clock started", "minutes", minutes)
	e.audit(ctx, fmt.Sprintf("GAME STARTED: %d MIN TIMER ACTIVATED.", minutes), hunt.LogSystem)
	return nil
}

// StopClock moves the game back to standby.
func (e *Engine) StopClock(ctx context.Context, sess Session) error {
	if !sess.is(RoleAdmin) {
		return ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	p := hunt.GamePatch{StartTime: hunt.ClearTime(), PausedAt: hunt.ClearTime()}
	if err := e.writeClock(ctx, p); err != nil {
		return e.fail(ctx, "stop clock", "TIMER RESET ERROR", err)
	}

	e.logger.Info("clock stopped")
	e.audit(ctx, "TIMER RESET: GAME MOVED TO STANDBY PHASE.", hunt.LogSystem)
	return nil
}

// Pause freezes every running clock. Rows already paused keep their
// original pause instant.
func (e *Engine) Pause(ctx context.Context, sess Session) (Outcome, error) {
	if !sess.is(RoleAdmin) {
		return Refused, ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	g, err := e.store.GetGame(ctx)
	if err != nil {
		return Refused, e.fail(ctx, "pause", "PAUSE ERROR", err)
	}
	c := g.Clock()
	if !c.Started() {
		return Refused, nil
	}
	at := c.PausedAtFor(e.now())

	applied := false
	if !c.Paused() {
		if _, err := e.store.UpdateGame(ctx, hunt.GamePatch{PausedAt: hunt.SetTime(at)}); err != nil {
			return Refused, e.fail(ctx, "pause", "PAUSE ERROR", err)
		}
		applied = true
	}
	n, err := e.store.UpdateTeams(ctx, store.TeamFilter{Started: true, Unpaused: true}, hunt.TeamPatch{PausedAt: hunt.SetTime(at)})
	if err != nil {
		return Refused, e.fail(ctx, "pause", "PAUSE ERROR", err)
	}
	if !applied && n == 0 {
		return Refused, nil
	}

	e.logger.Info("clock paused", "teams", n)
	e.audit(ctx, "SYSTEM PAUSED", hunt.LogAlert)
	return Applied, nil
}

// Resume shifts every paused clock forward by its own pause length. Rows
// are read fresh from the store right before each shift is computed.
func (e *Engine) Resume(ctx context.Context, sess Session) (Outcome, error) {
	if !sess.is(RoleAdmin) {
		return Refused, ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	now := e.now()
	teams, err := e.store.ListTeams(ctx)
	if err != nil {
		return Refused, e.fail(ctx, "resume", "RESUME ERROR", err)
	}

	resumed := 0
	var errs []error
	for _, t := range teams {
		if t.PausedAt == nil {
			continue
		}
		ok, err := e.resumeTeam(ctx, t, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("team %s: %w", t.Name, err))
			continue
		}
		if ok {
			resumed++
		}
	}

	g, err := e.store.GetGame(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if c, ok := g.Clock().Resumed(now); ok {
		p := hunt.GamePatch{PausedAt: hunt.ClearTime()}
		if c.StartTime != nil {
			p.StartTime = hunt.SetTime(*c.StartTime)
		}
		if _, err := e.store.UpdateGame(ctx, p); err != nil {
			errs = append(errs, err)
		} else {
			resumed++
		}
	}

	if len(errs) > 0 {
		return Refused, e.fail(ctx, "resume", "RESUME ERROR", errors.Join(errs...))
	}
	if resumed == 0 {
		return Refused, nil
	}

	e.logger.Info("clock resumed", "rows", resumed)
	e.audit(ctx, "SYSTEM RESUMED. Timers adjusted.", hunt.LogSystem)
	return Applied, nil
}

func (e *Engine) resumeTeam(ctx context.Context, t hunt.Team, now time.Time) (bool, error) {
	for attempt := 0; ; attempt++ {
		c, ok := t.Clock().Resumed(now)
		if !ok {
			return false, nil
		}
		p := hunt.TeamPatch{PausedAt: hunt.ClearTime()}
		if c.StartTime != nil {
			p.StartTime = hunt.SetTime(*c.StartTime)
		}
		_, err := e.store.UpdateTeam(ctx, t.ID, t.Version, p)
		if !errors.Is(err, store.ErrConflict) || attempt+1 >= resumeAttempts {
			return err == nil, err
		}
		if t, err = e.store.GetTeam(ctx, t.ID); err != nil {
			return false, err
		}
	}
}

// AdjustTime changes the countdown length of the game and every team by
// delta minutes and returns the new length.
func (e *Engine) AdjustTime(ctx context.Context, sess Session, delta int) (int, error) {
	if !sess.is(RoleAdmin) {
		return 0, ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	g, err := e.store.GetGame(ctx)
	if err != nil {
		return 0, e.fail(ctx, "adjust time", "ADJUST ERROR", err)
	}
	total := hunt.AdjustDuration(g.DurationMinutes, delta)
	if err := e.writeClock(ctx, hunt.GamePatch{DurationMinutes: &total}); err != nil {
		return 0, e.fail(ctx, "adjust time", "ADJUST ERROR", err)
	}

	sign := ""
	if delta > 0 {
		sign = "+"
	}
	e.logger.Info("clock adjusted", "delta", delta, "total", total)
	e.audit(ctx, fmt.Sprintf("TIME ADJUSTED: %s%d MIN (Total: %dm)", sign, delta, total), hunt.LogSystem)
	return total, nil
}

// writeClock writes the same clock fields to the game and, through a
// match-all filter, to every team.
func (e *Engine) writeClock(ctx context.Context, p hunt.GamePatch) error {
	if _, err := e.store.UpdateGame(ctx, p); err != nil {
		return err
	}
	if _, err := e.store.UpdateTeams(ctx, store.TeamFilter{}, p.TeamPatch()); err != nil {
		return err
	}
	return nil
}

// Promote advances a team without an answer. Finished teams are refused.
func (e *Engine) Promote(ctx context.Context, sess Session, teamID string) (Outcome, error) {
	if !sess.is(RoleAdmin) {
		return Refused, ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	t, nodes, err := e.teamAndCatalog(ctx, teamID)
	if err != nil {
		return Refused, err
	}
	p, ok := hunt.Promote(t, len(nodes), e.now())
	if !ok {
		return Refused, nil
	}
	updated, err := e.store.UpdateTeam(ctx, t.ID, t.Version, p)
	if err != nil {
		return Refused, e.fail(ctx, "promote", "PROMOTE ERROR", err)
	}

	e.logger.Info("team promoted", "team", t.Name, "node", updated.CurrentNode, "finished", updated.IsFinished)
	if updated.IsFinished {
		e.audit(ctx, fmt.Sprintf("ADMIN: Promoted Team %s to FINISHED", t.Name), hunt.LogWin)
	} else {
		e.audit(ctx, fmt.Sprintf("ADMIN: Promoted Team %s to Node %d", t.Name, updated.CurrentNode), hunt.LogInfo)
	}
	return Applied, nil
}

// Demote steps a team back one node and one award.
func (e *Engine) Demote(ctx context.Context, sess Session, teamID string) (Outcome, error) {
	if !sess.is(RoleAdmin) {
		return Refused, ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	t, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return Refused, fmt.Errorf("team %s: %w", teamID, err)
	}
	p, ok := hunt.Demote(t)
	if !ok {
		return Refused, nil
	}
	updated, err := e.store.UpdateTeam(ctx, t.ID, t.Version, p)
	if err != nil {
		return Refused, e.fail(ctx, "demote", "DOWNGRADE ERROR", err)
	}

	e.logger.Info("team demoted", "team", t.Name, "node", updated.CurrentNode)
	e.audit(ctx, fmt.Sprintf("ADMIN: Downgraded Team %s to Node %d", t.Name, updated.CurrentNode), hunt.LogInfo)
	return Applied, nil
}

// RequestReset is the first step of a reset. The returned token must be
// handed to ConfirmReset before it expires.
func (e *Engine) RequestReset(sess Session) (string, time.Time, error) {
	if !sess.is(RoleAdmin) {
		return "", time.Time{}, ErrUnauthorized
	}
	token := uuid.NewString()
	expires := e.clock.Now().Add(e.cfg.ResetConfirmTTL)

	e.mu.Lock()
	e.resets[token] = expires
	e.mu.Unlock()
	return token, expires, nil
}

// ConfirmReset sends every team back to the first node with no score.
func (e *Engine) ConfirmReset(ctx context.Context, sess Session, token string) error {
	if !sess.is(RoleAdmin) {
		return ErrUnauthorized
	}

	e.mu.Lock()
	exp, ok := e.resets[token]
	delete(e.resets, token)
	e.mu.Unlock()
	if !ok || !e.clock.Now().Before(exp) {
		return ErrConfirmationRequired
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	n, err := e.store.UpdateTeams(ctx, store.TeamFilter{}, hunt.ResetPatch())
	if err != nil {
		return e.fail(ctx, "reset", "RESET FAILED", err)
	}

	e.logger.Warn("global reset executed", "teams", n)
	e.audit(ctx, "WARNING: GLOBAL RESET EXECUTED. ALL TEAMS REVERTED TO NODE 01.", hunt.LogAlert)
	return nil
}

// Broadcast publishes a system alert to every connected viewer and records
// it in the durable log.
func (e *Engine) Broadcast(ctx context.Context, sess Session, message string) error {
	if !sess.is(RoleAdmin, RoleVolunteer) {
		return ErrUnauthorized
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}
	return e.broadcast(ctx, sess, message)
}

func (e *Engine) broadcast(ctx context.Context, sess Session, message string) error {
	err := feed.PublishAlert(ctx, e.feed, e.cfg.Channel, feed.AlertPayload{Message: message, Sender: string(sess.Role)})
	if err != nil {
		e.logger.Error("broadcast failed", "error", err)
		e.audit(ctx, fmt.Sprintf("ERROR SENDING BROADCAST: %q", message), hunt.LogError)
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	e.logger.Info("broadcast sent", "role", sess.Role)
	e.audit(ctx, fmt.Sprintf("BROADCAST SENT: %q", message), hunt.LogAlert)
	return nil
}

// Submission is the result of an answer attempt.
type Submission struct {
	Outcome  Outcome `json:"outcome"`
	Correct  bool    `json:"correct"`
	Message  string  `json:"message,omitempty"`
	Node     int     `json:"node"`
	Finished bool    `json:"finished"`
}

// SubmitAnswer checks input against the team's current node and advances
// the team on a match. A mismatch changes nothing.
func (e *Engine) SubmitAnswer(ctx context.Context, sess Session, input string) (Submission, error) {
	if !sess.is(RoleCompetitor) || sess.TeamID == "" {
		return Submission{}, ErrUnauthorized
	}

	t, nodes, err := e.teamAndCatalog(ctx, sess.TeamID)
	if err != nil {
		return Submission{}, err
	}
	if t.IsFinished {
		return Submission{Outcome: Refused, Node: t.CurrentNode, Finished: true}, nil
	}
	c := t.Clock()
	if !c.Started() {
		return Submission{}, ErrClockNotStarted
	}
	if c.Paused() {
		return Submission{}, ErrClockPaused
	}

	node, ok := nodeByID(nodes, t.CurrentNode)
	if !ok || !node.Accepts(input) {
		return Submission{Outcome: Refused, Node: t.CurrentNode}, nil
	}

	p, _ := hunt.Advance(t, len(nodes), e.now())
	updated, err := e.store.UpdateTeam(ctx, t.ID, t.Version, p)
	if err != nil {
		e.logger.Error("answer write failed", "team", t.Name, "error", err)
		return Submission{}, &WriteError{Op: "submit answer", Err: err}
	}
	e.predict(updated)

	e.logger.Info("node solved", "team", t.Name, "node", t.CurrentNode, "finished", updated.IsFinished)
	e.audit(ctx, fmt.Sprintf("BREACH CONFIRMED: %s >> %s", t.Name, node.Name), hunt.LogSuccess)
	if updated.IsFinished {
		e.audit(ctx, fmt.Sprintf("BREACH CONFIRMED: Team %s opened the vault.", t.Name), hunt.LogWin)
	}
	return Submission{
		Outcome:  Applied,
		Correct:  true,
		Message:  node.SuccessMessage,
		Node:     updated.CurrentNode,
		Finished: updated.IsFinished,
	}, nil
}

// Heartbeat marks the competitor's team as seen now.
func (e *Engine) Heartbeat(ctx context.Context, sess Session) error {
	if !sess.is(RoleCompetitor) || sess.TeamID == "" {
		return ErrUnauthorized
	}
	if _, err := e.store.UpdateTeam(ctx, sess.TeamID, 0, hunt.TeamPatch{LastSeenAt: hunt.SetTime(e.now())}); err != nil {
		e.logger.Warn("heartbeat write failed", "team_id", sess.TeamID, "error", err)
		return &WriteError{Op: "heartbeat", Err: err}
	}
	return nil
}

// ManualAdvance lets field staff advance a team that solved its node on
// site, and announces it.
func (e *Engine) ManualAdvance(ctx context.Context, sess Session, teamID string) (Outcome, error) {
	if !sess.is(RoleAdmin, RoleVolunteer) {
		return Refused, ErrUnauthorized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	t, nodes, err := e.teamAndCatalog(ctx, teamID)
	if err != nil {
		return Refused, err
	}
	p, ok := hunt.Advance(t, len(nodes), e.now())
	if !ok {
		return Refused, nil
	}
	updated, err := e.store.UpdateTeam(ctx, t.ID, t.Version, p)
	if err != nil {
		return Refused, e.fail(ctx, "manual advance", "OVERRIDE ERROR", err)
	}

	e.logger.Info("team advanced manually", "team", t.Name, "node", t.CurrentNode, "finished", updated.IsFinished)
	if updated.IsFinished {
		e.audit(ctx, fmt.Sprintf("BREACH CONFIRMED: Team %s opened the vault.", t.Name), hunt.LogWin)
	}
	// The advance is committed even when the announcement fails.
	msg := fmt.Sprintf("[MANUAL OVERRIDE] Team %s advanced by Volunteer at Node %d.", t.Name, t.CurrentNode)
	return Applied, e.broadcast(ctx, sess, msg)
}

// CallAdmin asks staff for help at a node.
func (e *Engine) CallAdmin(ctx context.Context, sess Session, nodeID int) error {
	if !sess.is(RoleAdmin, RoleVolunteer) {
		return ErrUnauthorized
	}
	name := fmt.Sprintf("Node %d", nodeID)
	if nodes, err := e.catalog(ctx); err == nil {
		if n, ok := nodeByID(nodes, nodeID); ok && n.Name != "" {
			name = n.Name
		}
	}
	return e.broadcast(ctx, sess, fmt.Sprintf("[VOLUNTEER REQUEST] Assistance needed at %s.", name))
}

// Resync forces a full re-read from the store.
func (e *Engine) Resync(ctx context.Context, sess Session) error {
	if !sess.is(RoleAdmin) {
		return ErrUnauthorized
	}
	if err := e.Reload(ctx); err != nil {
		e.logger.Error("manual resync failed", "error", err)
		return err
	}
	e.logger.Info("manual resync completed")
	return nil
}

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

// fail reports a rejected write to the operator log and wraps it.
func (e *Engine) fail(ctx context.Context, op, label string, err error) error {
	e.logger.Error("write failed", "op", op, "error", err)
	e.audit(ctx, fmt.Sprintf("%s: %v", label, err), hunt.LogError)
	return &WriteError{Op: op, Err: err}
}

// audit appends to the durable log. Failures are logged and swallowed.
func (e *Engine) audit(ctx context.Context, message string, typ hunt.LogType) {
	if _, err := e.store.AppendLog(ctx, message, typ); err != nil {
		e.logger.Warn("appending system log", "message", message, "error", err)
	}
}

func (e *Engine) predict(t hunt.Team) {
	e.mu.Lock()
	if cur, ok := e.teams[t.ID]; !ok || cur.Version < t.Version {
		e.predictions[t.ID] = prediction{team: t, until: e.clock.Now().Add(e.cfg.PredictionTTL)}
	}
	e.mu.Unlock()
	e.notify()
}

// catalog returns the cached nodes, reading them from the store when the
// cache has not been loaded yet.
func (e *Engine) catalog(ctx context.Context) ([]hunt.Node, error) {
	e.mu.RLock()
	nodes := e.nodes
	e.mu.RUnlock()
	if len(nodes) > 0 {
		return nodes, nil
	}
	return e.store.ListNodes(ctx)
}

// teamAndCatalog reads the authoritative team row for a guard decision.
func (e *Engine) teamAndCatalog(ctx context.Context, teamID string) (hunt.Team, []hunt.Node, error) {
	t, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return hunt.Team{}, nil, fmt.Errorf("team %s: %w", teamID, err)
	}
	nodes, err := e.catalog(ctx)
	if err != nil {
		return hunt.Team{}, nil, fmt.Errorf("reading nodes: %w", err)
	}
	return t, nodes, nil
}

func nodeByID(nodes []hunt.Node, id int) (hunt.Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return hunt.Node{}, false
}
