package hunt

import "time"

// TimeField is a patch value for a nullable timestamp column.
// The zero value leaves the column untouched.
type TimeField struct {
	Set   bool
	Value *time.Time
}

func SetTime(t time.Time) TimeField { return TimeField{Set: true, Value: &t} }

func ClearTime() TimeField { return TimeField{Set: true} }

func (f TimeField) apply(dst **time.Time) {
	if !f.Set {
		return
	}
	if f.Value == nil {
		*dst = nil
		return
	}
	v := *f.Value
	*dst = &v
}

// TeamPatch is a partial team update. Nil pointers and unset time fields
// are left as they are.
type TeamPatch struct {
	CurrentNode     *int
	Score           *int
	IsFinished      *bool
	DurationMinutes *int
	StartTime       TimeField
	PausedAt        TimeField
	LastSeenAt      TimeField
	LastSolvedAt    TimeField
}

func (p TeamPatch) Empty() bool {
	return p.CurrentNode == nil && p.Score == nil && p.IsFinished == nil &&
		p.DurationMinutes == nil && !p.StartTime.Set && !p.PausedAt.Set &&
		!p.LastSeenAt.Set && !p.LastSolvedAt.Set
}

// Apply returns t with the patch written over it. Version is not touched;
// the store owns it.
func (p TeamPatch) Apply(t Team) Team {
	if p.CurrentNode != nil {
		t.CurrentNode = *p.CurrentNode
	}
	if p.Score != nil {
		t.Score = *p.Score
	}
	if p.IsFinished != nil {
		t.IsFinished = *p.IsFinished
	}
	if p.DurationMinutes != nil {
		t.DurationMinutes = *p.DurationMinutes
	}
	p.StartTime.apply(&t.StartTime)
	p.PausedAt.apply(&t.PausedAt)
	p.LastSeenAt.apply(&t.LastSeenAt)
	p.LastSolvedAt.apply(&t.LastSolvedAt)
	return t
}

type GamePatch struct {
	DurationMinutes *int
	StartTime       TimeField
	PausedAt        TimeField
}

func (p GamePatch) Apply(g Game) Game {
	if p.DurationMinutes != nil {
		g.DurationMinutes = *p.DurationMinutes
	}
	p.StartTime.apply(&g.StartTime)
	p.PausedAt.apply(&g.PausedAt)
	return g
}

// TeamPatch converts the clock part of a game update into the equivalent
// team update, so batch clock operations write identical values everywhere.
func (p GamePatch) TeamPatch() TeamPatch {
	return TeamPatch{
		DurationMinutes: p.DurationMinutes,
		StartTime:       p.StartTime,
		PausedAt:        p.PausedAt,
	}
}

func ptr[T any](v T) *T { return &v }
