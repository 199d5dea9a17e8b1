package hunt

import (
	"cmp"
	"slices"
	"time"
)

type NodeStatus string

const (
	NodeLocked    NodeStatus = "locked"
	NodeActive    NodeStatus = "active"
	NodeCompleted NodeStatus = "completed"
)

// StatusOf derives how a node looks to a team.
func StatusOf(t Team, nodeID int) NodeStatus {
	switch {
	case t.IsFinished || nodeID < t.CurrentNode:
		return NodeCompleted
	case nodeID == t.CurrentNode:
		return NodeActive
	default:
		return NodeLocked
	}
}

// Advance moves a team past its current node. On the last node the team
// finishes and keeps its node. ok is false for a finished team.
func Advance(t Team, nodeCount int, now time.Time) (TeamPatch, bool) {
	if t.IsFinished {
		return TeamPatch{}, false
	}
	p := TeamPatch{
		Score:        ptr(t.Score + PointsPerNode),
		LastSolvedAt: SetTime(now),
	}
	if t.CurrentNode >= nodeCount {
		p.CurrentNode = ptr(max(1, min(t.CurrentNode, nodeCount)))
		p.IsFinished = ptr(true)
		return p, true
	}
	p.CurrentNode = ptr(t.CurrentNode + 1)
	p.IsFinished = ptr(false)
	return p, true
}

// Promote is a staff-issued Advance that skips the answer check. Promoting
// a team that already finished is refused.
func Promote(t Team, nodeCount int, now time.Time) (TeamPatch, bool) {
	return Advance(t, nodeCount, now)
}

// Demote steps a team back one node and one award, clearing is_finished.
// A team at node 1 with no score is left alone.
func Demote(t Team) (TeamPatch, bool) {
	if t.CurrentNode <= 1 && t.Score <= 0 {
		return TeamPatch{}, false
	}
	return TeamPatch{
		CurrentNode: ptr(max(1, t.CurrentNode-1)),
		Score:       ptr(max(0, t.Score-PointsPerNode)),
		IsFinished:  ptr(false),
	}, true
}

// ResetPatch puts a team back at the first node with nothing solved.
func ResetPatch() TeamPatch {
	return TeamPatch{
		CurrentNode:  ptr(1),
		Score:        ptr(0),
		IsFinished:   ptr(false),
		LastSolvedAt: ClearTime(),
	}
}

// Rank orders teams for leaderboards: score descending, earliest last
// solve first, teams that never solved last, then by name.
func Rank(teams []Team) {
	slices.SortStableFunc(teams, func(a, b Team) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		switch {
		case a.LastSolvedAt == nil && b.LastSolvedAt != nil:
			return 1
		case a.LastSolvedAt != nil && b.LastSolvedAt == nil:
			return -1
		case a.LastSolvedAt != nil && b.LastSolvedAt != nil:
			if c := a.LastSolvedAt.Compare(*b.LastSolvedAt); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

// DisplayNode is the number of nodes a team has cleared.
func DisplayNode(t Team, nodeCount int) int {
	if t.IsFinished {
		return nodeCount
	}
	return max(0, t.CurrentNode-1)
}

// CompletionPercent reports cleared nodes as a share of the catalog.
func CompletionPercent(t Team, nodeCount int) int {
	if nodeCount <= 0 {
		return 0
	}
	return min(100, DisplayNode(t, nodeCount)*100/nodeCount)
}
