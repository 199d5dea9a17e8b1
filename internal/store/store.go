// Package store owns durable game state. Every committed write is echoed
// on the change feed as a row event.
package store

import (
	"context"
	"errors"

	"github.com/playperu/breachhunt/internal/hunt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a version precondition no longer holds.
	ErrConflict = errors.New("version conflict")
)

// TeamFilter selects team rows. The zero value matches every team of the
// game.
type TeamFilter struct {
	IDs      []string
	Started  bool // start_time present
	Unpaused bool // paused_at absent
	Paused   bool // paused_at present
	Version  int64
}

func (f TeamFilter) Match(t hunt.Team) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == t.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Started && t.StartTime == nil {
		return false
	}
	if f.Unpaused && t.PausedAt != nil {
		return false
	}
	if f.Paused && t.PausedAt == nil {
		return false
	}
	if f.Version != 0 && t.Version != f.Version {
		return false
	}
	return true
}

// Store is scoped to one game instance.
type Store interface {
	GetGame(ctx context.Context) (hunt.Game, error)
	UpdateGame(ctx context.Context, p hunt.GamePatch) (hunt.Game, error)

	ListTeams(ctx context.Context) ([]hunt.Team, error)
	GetTeam(ctx context.Context, id string) (hunt.Team, error)
	// FindTeam matches the name case-insensitively and the access code
	// exactly.
	FindTeam(ctx context.Context, name, accessCode string) (hunt.Team, error)
	CreateTeam(ctx context.Context, t hunt.Team) (hunt.Team, error)
	// UpdateTeams applies p to every matching team and returns how many
	// rows changed.
	UpdateTeams(ctx context.Context, f TeamFilter, p hunt.TeamPatch) (int, error)
	// UpdateTeam applies p to one team. A non-zero version must match the
	// stored one or ErrConflict is returned.
	UpdateTeam(ctx context.Context, id string, version int64, p hunt.TeamPatch) (hunt.Team, error)

	ListNodes(ctx context.Context) ([]hunt.Node, error)
	PutNode(ctx context.Context, n hunt.Node) error

	AppendLog(ctx context.Context, message string, typ hunt.LogType) (hunt.LogEntry, error)
	// ListLogs returns up to limit entries, newest first.
	ListLogs(ctx context.Context, limit int) ([]hunt.LogEntry, error)

	Ping(ctx context.Context) error
}
