package engine

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/playperu/breachhunt/internal/hunt"
)

// Snapshot is the derived state one viewer renders.
type Snapshot struct {
	Role              Role            `json:"role"`
	Ready             bool            `json:"ready"`
	Connected         bool            `json:"connected"`
	Now               time.Time       `json:"now"`
	ClockState        hunt.ClockState `json:"clockState"`
	RemainingSeconds  int             `json:"remainingSeconds"`
	Remaining         string          `json:"remaining"`
	IsPaused          bool            `json:"isPaused"`
	DurationMinutes   int             `json:"durationMinutes"`
	Teams             []TeamView      `json:"teams"`
	NodesWithStatus   []NodeView      `json:"nodesWithStatus,omitempty"`
	RecentLogs        []hunt.LogEntry `json:"recentLogs,omitempty"`
	ActiveAlert       *Alert          `json:"activeAlert"`
	OnlineCount       int             `json:"onlineCount"`
	NodeCount         int             `json:"nodeCount"`
	Self              *TeamView       `json:"self,omitempty"`
	Leader            *TeamView       `json:"leader,omitempty"`
	CompletionPercent int             `json:"completionPercent"`
}

type TeamView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Node         int        `json:"node"`
	Score        int        `json:"score"`
	Finished     bool       `json:"finished"`
	Online       bool       `json:"online"`
	Progress     int        `json:"progress"`
	LastSolvedAt *time.Time `json:"lastSolvedAt,omitempty"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
}

type NodeView struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	LocationHint string          `json:"locationHint,omitempty"`
	Status       hunt.NodeStatus `json:"status,omitempty"`
}

type SnapshotOptions struct {
	// Node narrows the volunteer view to unfinished teams at that node.
	Node int
}

// Snapshot derives the state sess is allowed to see. A competitor's Self
// shows its own pending prediction until the feed confirms a row at that
// version or the prediction expires. Every other view is the cache as is.
func (e *Engine) Snapshot(sess Session, opts SnapshotOptions) (Snapshot, error) {
	if !sess.Role.Valid() {
		return Snapshot{}, ErrUnauthorized
	}
	now := e.clock.Now().UTC()

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return Snapshot{Role: sess.Role, Now: now, ClockState: hunt.ClockStandby, Remaining: hunt.FormatHMS(0), Teams: []TeamView{}}, ErrNotReady
	}

	s := Snapshot{
		Role:      sess.Role,
		Ready:     true,
		Connected: e.connected,
		Now:       now,
		NodeCount: len(e.nodes),
	}
	if e.alert != nil && now.Before(e.alert.ExpiresAt) {
		a := *e.alert
		s.ActiveAlert = &a
	}
	teams := e.teamsLocked()
	for _, t := range teams {
		if t.Online(now, e.cfg.LivenessWindow) {
			s.OnlineCount++
		}
	}

	switch sess.Role {
	case RoleCompetitor:
		self, ok := e.teams[sess.TeamID]
		if !ok {
			return Snapshot{}, ErrUnauthorized
		}
		if p, pending := e.predictions[sess.TeamID]; pending && now.Before(p.until) && p.team.Version > self.Version {
			self = p.team
		}
		s.setClock(self.Clock(), now)
		for _, n := range e.nodes {
			st := hunt.StatusOf(self, n.ID)
			v := NodeView{ID: n.ID, Name: n.Name, Status: st}
			if st != hunt.NodeLocked {
				v.LocationHint = n.LocationHint
			}
			s.NodesWithStatus = append(s.NodesWithStatus, v)
		}
		hunt.Rank(teams)
		s.Teams = e.views(teams, now)
		me := e.view(self, now)
		s.Self = &me
		s.CompletionPercent = me.Progress

	case RoleAdmin:
		s.setClock(e.game.Clock(), now)
		slices.SortFunc(teams, func(a, b hunt.Team) int { return cmp.Compare(a.ID, b.ID) })
		s.Teams = e.views(teams, now)
		s.RecentLogs = slices.Clone(e.logs)
		s.NodesWithStatus = e.catalogViews()

	case RoleVolunteer:
		s.setClock(e.game.Clock(), now)
		if opts.Node > 0 {
			teams = slices.DeleteFunc(teams, func(t hunt.Team) bool {
				return t.IsFinished || t.CurrentNode != opts.Node
			})
		}
		slices.SortStableFunc(teams, bySolveTime)
		s.Teams = e.views(teams, now)
		s.NodesWithStatus = e.catalogViews()

	case RoleSpectator:
		s.setClock(e.game.Clock(), now)
		slices.SortFunc(teams, func(a, b hunt.Team) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			if c := cmp.Compare(hunt.DisplayNode(b, len(e.nodes)), hunt.DisplayNode(a, len(e.nodes))); c != 0 {
				return c
			}
			return bySolveTime(a, b)
		})
		s.Teams = e.views(teams, now)
		s.RecentLogs = slices.Clone(e.logs)
		if len(s.Teams) > 0 {
			lead := s.Teams[0]
			s.Leader = &lead
			s.CompletionPercent = lead.Progress
		}
	}
	return s, nil
}

func (s *Snapshot) setClock(c hunt.Clock, now time.Time) {
	s.ClockState = c.State(now)
	s.RemainingSeconds, _ = c.Remaining(now)
	s.Remaining = hunt.FormatHMS(s.RemainingSeconds)
	s.IsPaused = c.Paused()
	s.DurationMinutes = c.DurationMinutes
}

// teamsLocked copies the cached rows sorted by name. Callers hold e.mu.
func (e *Engine) teamsLocked() []hunt.Team {
	teams := slices.Collect(maps.Values(e.teams))
	slices.SortFunc(teams, func(a, b hunt.Team) int { return cmp.Compare(a.Name, b.Name) })
	return teams
}

func (e *Engine) view(t hunt.Team, now time.Time) TeamView {
	return TeamView{
		ID:           t.ID,
		Name:         t.Name,
		Node:         t.CurrentNode,
		Score:        t.Score,
		Finished:     t.IsFinished,
		Online:       t.Online(now, e.cfg.LivenessWindow),
		Progress:     hunt.CompletionPercent(t, len(e.nodes)),
		LastSolvedAt: t.LastSolvedAt,
		LastSeenAt:   t.LastSeenAt,
	}
}

func (e *Engine) views(teams []hunt.Team, now time.Time) []TeamView {
	out := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, e.view(t, now))
	}
	return out
}

func (e *Engine) catalogViews() []NodeView {
	out := make([]NodeView, 0, len(e.nodes))
	for _, n := range e.nodes {
		out = append(out, NodeView{ID: n.ID, Name: n.Name, LocationHint: n.LocationHint})
	}
	return out
}

// bySolveTime puts the earliest last solve first and teams that never
// solved last.
func bySolveTime(a, b hunt.Team) int {
	switch {
	case a.LastSolvedAt == nil && b.LastSolvedAt == nil:
		return 0
	case a.LastSolvedAt == nil:
		return 1
	case b.LastSolvedAt == nil:
		return -1
	}
	return a.LastSolvedAt.Compare(*b.LastSolvedAt)
}
