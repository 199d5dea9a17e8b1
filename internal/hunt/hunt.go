// Package hunt defines the core domain types and rules of a breach hunt:
// teams, the node catalog, the countdown clock and team progression.
// It has zero external dependencies and performs no I/O.
package hunt

import (
	"strings"
	"time"
)

// PointsPerNode is the score awarded for every forward node transition.
const PointsPerNode = 100

// DefaultDurationMinutes is used when a game has never been configured.
const DefaultDurationMinutes = 60

type Team struct {
	ID              string     `json:"id"`
	GameID          string     `json:"gameId"`
	Name            string     `json:"name"`
	AccessCode      string     `json:"accessCode"`
	CurrentNode     int        `json:"currentNode"`
	Score           int        `json:"score"`
	IsFinished      bool       `json:"isFinished"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	PausedAt        *time.Time `json:"pausedAt,omitempty"`
	LastSeenAt      *time.Time `json:"lastSeenAt,omitempty"`
	LastSolvedAt    *time.Time `json:"lastSolvedAt,omitempty"`
	Version         int64      `json:"version"`
}

// Clock returns the team's own copy of the countdown fields.
func (t Team) Clock() Clock {
	return Clock{StartTime: t.StartTime, DurationMinutes: t.DurationMinutes, PausedAt: t.PausedAt}
}

// Online reports whether the team checked in within window of now.
func (t Team) Online(now time.Time, window time.Duration) bool {
	if t.LastSeenAt == nil {
		return false
	}
	return now.Sub(*t.LastSeenAt) <= window
}

// Game is the session record every team references. Its clock is the
// authoritative one for staff and spectator views.
type Game struct {
	ID              string     `json:"id"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	PausedAt        *time.Time `json:"pausedAt,omitempty"`
	Version         int64      `json:"version"`
}

func (g Game) Clock() Clock {
	return Clock{StartTime: g.StartTime, DurationMinutes: g.DurationMinutes, PausedAt: g.PausedAt}
}

// Node is one challenge in the ordered catalog. Answers and SuccessMessage
// stay on the server.
type Node struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	LocationHint   string   `json:"locationHint"`
	Answers        []string `json:"-"`
	SuccessMessage string   `json:"-"`
}

// Accepts reports whether input matches one of the node's accepted answers
// after trimming and upper-casing both sides.
func (n Node) Accepts(input string) bool {
	in := Normalize(input)
	if in == "" {
		return false
	}
	for _, a := range n.Answers {
		if Normalize(a) == in {
			return true
		}
	}
	return false
}

func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type LogType string

const (
	LogInfo    LogType = "info"
	LogSuccess LogType = "success"
	LogWin     LogType = "win"
	LogAlert   LogType = "alert"
	LogError   LogType = "error"
	LogSystem  LogType = "system"
)

type LogEntry struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Type      LogType   `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}
