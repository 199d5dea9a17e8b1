package hunt

import (
	"fmt"
	"time"
)

type ClockState string

const (
	ClockStandby ClockState = "standby"
	ClockRunning ClockState = "running"
	ClockPaused  ClockState = "paused"
	ClockExpired ClockState = "expired"
)

// Clock holds the stored countdown fields of a game or a team.
type Clock struct {
	StartTime       *time.Time
	DurationMinutes int
	PausedAt        *time.Time
}

func (c Clock) Started() bool { return c.StartTime != nil }

func (c Clock) Paused() bool { return c.PausedAt != nil }

// Elapsed is the active countdown time consumed at now, floored to whole
// seconds. A start in the future counts as zero elapsed.
func (c Clock) Elapsed(now time.Time) time.Duration {
	if c.StartTime == nil {
		return 0
	}
	end := now
	if c.PausedAt != nil {
		end = *c.PausedAt
	}
	d := end.Sub(*c.StartTime)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// Remaining returns the whole seconds left on the clock at now. started is
// false when the clock was never started; callers show a waiting state
// instead of a number in that case.
func (c Clock) Remaining(now time.Time) (seconds int, started bool) {
	if c.StartTime == nil {
		return 0, false
	}
	left := c.DurationMinutes*60 - int(c.Elapsed(now)/time.Second)
	if left < 0 {
		left = 0
	}
	return left, true
}

func (c Clock) State(now time.Time) ClockState {
	switch left, started := c.Remaining(now); {
	case !started:
		return ClockStandby
	case c.PausedAt != nil:
		return ClockPaused
	case left == 0:
		return ClockExpired
	default:
		return ClockRunning
	}
}

// Resumed returns the clock with the pause removed and the start shifted
// forward by the pause length, so the reading after resume equals the
// reading at the moment of the pause. ok is false when the clock is not
// paused.
func (c Clock) Resumed(now time.Time) (Clock, bool) {
	if c.PausedAt == nil {
		return c, false
	}
	if c.StartTime != nil {
		shift := now.Sub(*c.PausedAt)
		if shift < 0 {
			shift = 0
		}
		start := c.StartTime.Add(shift)
		c.StartTime = &start
	}
	c.PausedAt = nil
	return c, true
}

// PausedAtFor picks the pause instant written at now. It never precedes
// the start so that elapsed time cannot turn negative.
func (c Clock) PausedAtFor(now time.Time) time.Time {
	if c.StartTime != nil && now.Before(*c.StartTime) {
		return *c.StartTime
	}
	return now
}

// AdjustDuration adds delta minutes to cur, never going below one minute.
func AdjustDuration(cur, delta int) int {
	if cur < 1 {
		cur = DefaultDurationMinutes
	}
	return max(1, cur+delta)
}

// FormatHMS renders seconds as zero-padded HH:MM:SS.
func FormatHMS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
