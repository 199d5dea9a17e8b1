package engine

import (
	"errors"
	"slices"
)

type Role string

const (
	RoleCompetitor Role = "competitor"
	RoleVolunteer  Role = "volunteer"
	RoleAdmin      Role = "admin"
	RoleSpectator  Role = "spectator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCompetitor, RoleVolunteer, RoleAdmin, RoleSpectator:
		return true
	}
	return false
}

// Session identifies the caller of an engine operation. Competitor
// sessions carry the team they act for.
type Session struct {
	Role   Role
	TeamID string
}

func (s Session) is(roles ...Role) bool {
	return slices.Contains(roles, s.Role)
}

var (
	ErrUnauthorized         = errors.New("operation not permitted for this session")
	ErrNotReady             = errors.New("state not loaded yet")
	ErrClockNotStarted      = errors.New("game clock not started")
	ErrClockPaused          = errors.New("game clock paused")
	ErrConfirmationRequired = errors.New("reset confirmation missing or expired")
	ErrPublish              = errors.New("broadcast not delivered")
	ErrEmptyMessage         = errors.New("message is empty")
)

// WriteError reports a store write that did not go through. The cache is
// left alone; the next feed event or a retry resolves the row.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// Outcome tells applied mutations apart from guarded no-ops.
type Outcome string

const (
	Applied Outcome = "applied"
	Refused Outcome = "refused"
)
