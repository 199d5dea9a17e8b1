package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/breachhunt/internal/engine"
	"github.com/playperu/breachhunt/internal/feed"
	"github.com/playperu/breachhunt/internal/hunt"
	"github.com/playperu/breachhunt/internal/store"
)

const channel = "game_room"

var (
	start = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	admin     = engine.Session{Role: engine.RoleAdmin}
	volunteer = engine.Session{Role: engine.RoleVolunteer}
	spectator = engine.Session{Role: engine.RoleSpectator}
)

type harness struct {
	eng    *engine.Engine
	store  *store.MemStore
	feed   *feed.Broker
	clock  *clockwork.FakeClock
	teamID string
}

// newHarness starts an engine over a memory store with six nodes and one
// team. With quiet set, store writes are published on a broker the engine
// does not follow, so the cache only moves on a reload.
func newHarness(t *testing.T, quiet bool, team hunt.Team) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	clock := clockwork.NewFakeClockAt(start)
	b := feed.NewBroker()
	storeFeed := b
	if quiet {
		storeFeed = feed.NewBroker()
	}
	st := store.NewMemStore("main", hunt.DefaultDurationMinutes, storeFeed, channel, clock, logger)
	for i := 1; i <= 6; i++ {
		n := hunt.Node{ID: i, Name: "Node " + string(rune('A'+i-1)), LocationHint: "hint", Answers: []string{"KEY"}, SuccessMessage: "ok"}
		if err := st.PutNode(ctx, n); err != nil {
			t.Fatalf("put node: %v", err)
		}
	}
	if team.Name == "" {
		team.Name = "Condors"
	}
	team.AccessCode = "c0de"
	created, err := st.CreateTeam(ctx, team)
	if err != nil {
		t.Fatalf("create team: %v", err)
	}

	eng := engine.New(st, b, clock, logger, engine.Config{Channel: channel})
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitFor(t, "engine ready", func() bool { return eng.Check(ctx) == nil })
	return &harness{eng: eng, store: st, feed: b, clock: clock, teamID: created.ID}
}

func (h *harness) competitor() engine.Session {
	return engine.Session{Role: engine.RoleCompetitor, TeamID: h.teamID}
}

func (h *harness) team(t *testing.T) hunt.Team {
	t.Helper()
	tm, err := h.store.GetTeam(context.Background(), h.teamID)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	return tm
}

func (h *harness) snapshot(t *testing.T, sess engine.Session) engine.Snapshot {
	t.Helper()
	s, err := h.eng.Snapshot(sess, engine.SnapshotOptions{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasLog(logs []hunt.LogEntry, prefix string) bool {
	for _, l := range logs {
		if strings.HasPrefix(l.Message, prefix) {
			return true
		}
	}
	return false
}

func TestPauseResumeKeepsRemaining(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.StartClock(ctx, admin, 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(600 * time.Second)

	if out, err := h.eng.Pause(ctx, admin); err != nil || out != engine.Applied {
		t.Fatalf("pause = %v, %v", out, err)
	}
	h.clock.Advance(300 * time.Second)
	if out, err := h.eng.Resume(ctx, admin); err != nil || out != engine.Applied {
		t.Fatalf("resume = %v, %v", out, err)
	}

	tm := h.team(t)
	if tm.PausedAt != nil {
		t.Fatal("paused_at not cleared")
	}
	if want := start.Add(300 * time.Second); !tm.StartTime.Equal(want) {
		t.Errorf("start_time = %v, want %v", tm.StartTime, want)
	}
	if got, _ := tm.Clock().Remaining(h.clock.Now()); got != 3000 {
		t.Errorf("team remaining = %d, want 3000", got)
	}

	waitFor(t, "resumed game clock", func() bool {
		s := h.snapshot(t, admin)
		return !s.IsPaused && s.RemainingSeconds == 3000 && s.ClockState == hunt.ClockRunning
	})
	if !hasLog(h.snapshot(t, admin).RecentLogs, "SYSTEM RESUMED") {
		t.Error("resume not logged")
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	if out, err := h.eng.Pause(ctx, admin); err != nil || out != engine.Refused {
		t.Fatalf("pause before start = %v, %v; want refused", out, err)
	}

	if err := h.eng.StartClock(ctx, admin, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(time.Minute)
	if _, err := h.eng.Pause(ctx, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	first := *h.team(t).PausedAt

	h.clock.Advance(time.Minute)
	out, err := h.eng.Pause(ctx, admin)
	if err != nil || out != engine.Refused {
		t.Fatalf("second pause = %v, %v; want refused", out, err)
	}
	if got := *h.team(t).PausedAt; !got.Equal(first) {
		t.Errorf("paused_at moved from %v to %v", first, got)
	}

	if out, _ := h.eng.Resume(ctx, admin); out != engine.Applied {
		t.Fatalf("resume = %v", out)
	}
	if out, _ := h.eng.Resume(ctx, admin); out != engine.Refused {
		t.Errorf("second resume = %v, want refused", out)
	}
}

func TestDemoteSequence(t *testing.T) {
	h := newHarness(t, false, hunt.Team{CurrentNode: 3, Score: 200})
	ctx := context.Background()

	steps := []struct {
		out   engine.Outcome
		node  int
		score int
	}{
		{engine.Applied, 2, 100},
		{engine.Applied, 1, 0},
		{engine.Refused, 1, 0},
	}
	for i, s := range steps {
		out, err := h.eng.Demote(ctx, admin, h.teamID)
		if err != nil {
			t.Fatalf("demote %d: %v", i+1, err)
		}
		tm := h.team(t)
		if out != s.out || tm.CurrentNode != s.node || tm.Score != s.score {
			t.Errorf("demote %d = %v node %d score %d, want %v node %d score %d",
				i+1, out, tm.CurrentNode, tm.Score, s.out, s.node, s.score)
		}
	}
}

func TestPromoteLastNodeFinishes(t *testing.T) {
	h := newHarness(t, false, hunt.Team{CurrentNode: 6, Score: 500})
	ctx := context.Background()

	if out, err := h.eng.Promote(ctx, admin, h.teamID); err != nil || out != engine.Applied {
		t.Fatalf("promote = %v, %v", out, err)
	}
	tm := h.team(t)
	if !tm.IsFinished || tm.CurrentNode != 6 || tm.Score != 600 {
		t.Errorf("after promote: finished=%v node=%d score=%d", tm.IsFinished, tm.CurrentNode, tm.Score)
	}

	if out, _ := h.eng.Promote(ctx, admin, h.teamID); out != engine.Refused {
		t.Errorf("promote finished team = %v, want refused", out)
	}
	if got := h.team(t).Score; got != 600 {
		t.Errorf("score changed to %d", got)
	}

	waitFor(t, "promotion logged", func() bool {
		return hasLog(h.snapshot(t, admin).RecentLogs, "ADMIN: Promoted Team Condors")
	})
}

func TestSubmitAnswer(t *testing.T) {
	h := newHarness(t, false, hunt.Team{CurrentNode: 5, Score: 400})
	ctx := context.Background()
	me := h.competitor()

	if _, err := h.eng.SubmitAnswer(ctx, me, "key"); !errors.Is(err, engine.ErrClockNotStarted) {
		t.Fatalf("before start: err = %v", err)
	}
	if err := h.eng.StartClock(ctx, admin, 45); err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := h.eng.SubmitAnswer(ctx, me, "nope")
	if err != nil || res.Correct || res.Outcome != engine.Refused {
		t.Fatalf("wrong answer = %+v, %v", res, err)
	}

	res, err = h.eng.SubmitAnswer(ctx, me, "  key ")
	if err != nil || !res.Correct || res.Node != 6 || res.Message != "ok" {
		t.Fatalf("right answer = %+v, %v", res, err)
	}

	res, err = h.eng.SubmitAnswer(ctx, me, "KEY")
	if err != nil || !res.Finished {
		t.Fatalf("last node = %+v, %v", res, err)
	}
	res, err = h.eng.SubmitAnswer(ctx, me, "KEY")
	if err != nil || res.Outcome != engine.Refused {
		t.Errorf("finished team = %+v, %v; want refused", res, err)
	}
	if tm := h.team(t); tm.Score != 600 || !tm.IsFinished || tm.CurrentNode != 6 {
		t.Errorf("final row: %+v", tm)
	}
	for _, want := range []string{
		"BREACH CONFIRMED: Condors >> Node E",
		"BREACH CONFIRMED: Condors >> Node F",
		"BREACH CONFIRMED: Team Condors opened the vault.",
	} {
		waitFor(t, want, func() bool { return hasLog(h.snapshot(t, spectator).RecentLogs, want) })
	}
}

func TestEverySolveIsLogged(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.StartClock(ctx, admin, 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.eng.SubmitAnswer(ctx, h.competitor(), "KEY"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "solve logged", func() bool {
		for _, l := range h.snapshot(t, spectator).RecentLogs {
			if l.Message == "BREACH CONFIRMED: Condors >> Node A" && l.Type == hunt.LogSuccess {
				return true
			}
		}
		return false
	})
}

func TestSubmitWhilePaused(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.StartClock(ctx, admin, 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.eng.Pause(ctx, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := h.eng.SubmitAnswer(ctx, h.competitor(), "KEY"); !errors.Is(err, engine.ErrClockPaused) {
		t.Errorf("err = %v, want ErrClockPaused", err)
	}
	if h.team(t).CurrentNode != 1 {
		t.Error("paused team advanced")
	}
}

func TestCacheWaitsForFeed(t *testing.T) {
	h := newHarness(t, true, hunt.Team{})
	ctx := context.Background()

	if _, err := h.eng.Promote(ctx, admin, h.teamID); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got := h.snapshot(t, admin).Teams[0].Node; got != 1 {
		t.Fatalf("cache moved to node %d before any feed event", got)
	}

	// A dropped subscription forces a resubscribe and a full read.
	h.feed.Disconnect(channel)
	waitFor(t, "reload after reconnect", func() bool {
		s, err := h.eng.Snapshot(admin, engine.SnapshotOptions{})
		return err == nil && s.Connected && s.Teams[0].Node == 2
	})
}

func TestPredictionOverlay(t *testing.T) {
	h := newHarness(t, true, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.StartClock(ctx, admin, 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.eng.SubmitAnswer(ctx, h.competitor(), "KEY"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if got := h.snapshot(t, h.competitor()).Self.Node; got != 2 {
		t.Errorf("competitor sees node %d, want predicted 2", got)
	}
	if got := h.snapshot(t, admin).Teams[0].Node; got != 1 {
		t.Errorf("admin sees node %d, want cached 1", got)
	}

	s := h.snapshot(t, h.competitor())
	for _, tv := range s.Teams {
		if tv.Node != 1 {
			t.Errorf("leaderboard shows %s at node %d, want cached 1", tv.Name, tv.Node)
		}
	}
	if got := h.snapshot(t, spectator).Teams[0].Node; got != 1 {
		t.Errorf("spectator sees node %d, want cached 1", got)
	}

	h.clock.Advance(6 * time.Second)
	if got := h.snapshot(t, h.competitor()).Self.Node; got != 1 {
		t.Errorf("expired prediction still shown: node %d", got)
	}
}

func TestPredictionYieldsToConfirmedRow(t *testing.T) {
	h := newHarness(t, true, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.StartClock(ctx, admin, 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.eng.SubmitAnswer(ctx, h.competitor(), "KEY"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out, err := h.eng.Demote(ctx, admin, h.teamID); err != nil || out != engine.Applied {
		t.Fatalf("demote = %v, %v", out, err)
	}
	if err := h.eng.Resync(ctx, admin); err != nil {
		t.Fatalf("resync: %v", err)
	}

	if got := h.team(t).CurrentNode; got != 1 {
		t.Fatalf("store node = %d, want 1", got)
	}
	if got := h.snapshot(t, admin).Teams[0].Node; got != 1 {
		t.Errorf("admin sees node %d, want 1", got)
	}
	self := h.snapshot(t, h.competitor()).Self
	if self.Node != 1 || self.Score != 0 {
		t.Errorf("competitor sees node %d score %d, want the demoted row", self.Node, self.Score)
	}
}

func TestStaleEventIgnored(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	before := h.team(t)
	if _, err := h.eng.Promote(ctx, admin, h.teamID); err != nil {
		t.Fatalf("promote: %v", err)
	}
	waitFor(t, "promotion echo", func() bool { return h.snapshot(t, admin).Teams[0].Node == 2 })

	ev, err := feed.RowEvent(feed.RowChanged, feed.TableTeams, nil, before)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.feed.Publish(ctx, channel, ev); err != nil {
		t.Fatal(err)
	}
	// The alert is delivered after the stale row on the same subscription.
	if err := h.eng.Broadcast(ctx, admin, "marker"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "marker alert", func() bool { return h.snapshot(t, admin).ActiveAlert != nil })

	if got := h.snapshot(t, admin).Teams[0].Node; got != 2 {
		t.Errorf("stale event rolled node back to %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.Broadcast(ctx, admin, "   "); !errors.Is(err, engine.ErrEmptyMessage) {
		t.Errorf("empty message: err = %v", err)
	}
	if err := h.eng.Broadcast(ctx, volunteer, "  regroup at base "); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	waitFor(t, "alert", func() bool {
		a := h.snapshot(t, spectator).ActiveAlert
		return a != nil && a.Message == "regroup at base"
	})
	waitFor(t, "broadcast logged", func() bool {
		return hasLog(h.snapshot(t, admin).RecentLogs, `BROADCAST SENT: "regroup at base"`)
	})

	h.clock.Advance(8 * time.Second)
	if a := h.snapshot(t, h.competitor()).ActiveAlert; a != nil {
		t.Errorf("alert still active after expiry: %+v", a)
	}
}

func TestBroadcastPublishFailure(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	h.feed.Close()

	err := h.eng.Broadcast(context.Background(), admin, "hello")
	if !errors.Is(err, engine.ErrPublish) {
		t.Fatalf("err = %v, want ErrPublish", err)
	}
	logs, _ := h.store.ListLogs(context.Background(), 0)
	if !hasLog(logs, "ERROR SENDING BROADCAST") {
		t.Error("publish failure not recorded in the log")
	}
}

func TestOnlineWindow(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.Heartbeat(ctx, h.competitor()); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	waitFor(t, "team online", func() bool { return h.snapshot(t, admin).OnlineCount == 1 })

	h.clock.Advance(61 * time.Second)
	s := h.snapshot(t, admin)
	if s.OnlineCount != 0 || s.Teams[0].Online {
		t.Errorf("61s after the last heartbeat: onlineCount=%d online=%v", s.OnlineCount, s.Teams[0].Online)
	}
}

func TestResetNeedsConfirmation(t *testing.T) {
	h := newHarness(t, false, hunt.Team{CurrentNode: 4, Score: 300})
	ctx := context.Background()

	if err := h.eng.ConfirmReset(ctx, admin, "bogus"); !errors.Is(err, engine.ErrConfirmationRequired) {
		t.Fatalf("bogus token: err = %v", err)
	}

	token, _, err := h.eng.RequestReset(admin)
	if err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(31 * time.Second)
	if err := h.eng.ConfirmReset(ctx, admin, token); !errors.Is(err, engine.ErrConfirmationRequired) {
		t.Fatalf("expired token: err = %v", err)
	}

	for i := range 2 {
		token, _, err := h.eng.RequestReset(admin)
		if err != nil {
			t.Fatal(err)
		}
		if err := h.eng.ConfirmReset(ctx, admin, token); err != nil {
			t.Fatalf("reset %d: %v", i+1, err)
		}
		tm := h.team(t)
		if tm.CurrentNode != 1 || tm.Score != 0 || tm.IsFinished {
			t.Errorf("after reset %d: node=%d score=%d finished=%v", i+1, tm.CurrentNode, tm.Score, tm.IsFinished)
		}
	}
	if err := h.eng.ConfirmReset(ctx, admin, token); !errors.Is(err, engine.ErrConfirmationRequired) {
		t.Errorf("spent token: err = %v", err)
	}
}

func TestAdjustTime(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	tests := []struct {
		delta int
		want  int
		log   string
	}{
		{10, 70, "TIME ADJUSTED: +10 MIN (Total: 70m)"},
		{-5, 65, "TIME ADJUSTED: -5 MIN (Total: 65m)"},
		{-500, 1, "TIME ADJUSTED: -500 MIN (Total: 1m)"},
	}
	for _, tt := range tests {
		got, err := h.eng.AdjustTime(ctx, admin, tt.delta)
		if err != nil {
			t.Fatalf("adjust %d: %v", tt.delta, err)
		}
		if got != tt.want || h.team(t).DurationMinutes != tt.want {
			t.Errorf("adjust %d = %d (team %d), want %d", tt.delta, got, h.team(t).DurationMinutes, tt.want)
		}
		logs, _ := h.store.ListLogs(ctx, 1)
		if len(logs) != 1 || logs[0].Message != tt.log {
			t.Errorf("log = %v, want %q", logs, tt.log)
		}
	}
}

func TestStopClock(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()

	if err := h.eng.StartClock(ctx, admin, 30); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "running", func() bool { return h.snapshot(t, spectator).ClockState == hunt.ClockRunning })

	if err := h.eng.StopClock(ctx, admin); err != nil {
		t.Fatal(err)
	}
	if h.team(t).StartTime != nil {
		t.Error("team start_time not cleared")
	}
	waitFor(t, "standby", func() bool { return h.snapshot(t, spectator).ClockState == hunt.ClockStandby })
}

func TestVolunteerActions(t *testing.T) {
	h := newHarness(t, false, hunt.Team{CurrentNode: 2, Score: 100})
	ctx := context.Background()

	if out, err := h.eng.ManualAdvance(ctx, volunteer, h.teamID); err != nil || out != engine.Applied {
		t.Fatalf("manual advance = %v, %v", out, err)
	}
	if got := h.team(t).CurrentNode; got != 3 {
		t.Errorf("node = %d, want 3", got)
	}
	waitFor(t, "override alert", func() bool {
		a := h.snapshot(t, admin).ActiveAlert
		return a != nil && a.Message == "[MANUAL OVERRIDE] Team Condors advanced by Volunteer at Node 2."
	})

	if err := h.eng.CallAdmin(ctx, volunteer, 4); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "assistance alert", func() bool {
		a := h.snapshot(t, admin).ActiveAlert
		return a != nil && a.Message == "[VOLUNTEER REQUEST] Assistance needed at Node D."
	})
}

func TestManualAdvanceToFinishLogsWin(t *testing.T) {
	h := newHarness(t, false, hunt.Team{CurrentNode: 6, Score: 500})
	ctx := context.Background()

	if out, err := h.eng.ManualAdvance(ctx, volunteer, h.teamID); err != nil || out != engine.Applied {
		t.Fatalf("manual advance = %v, %v", out, err)
	}
	if tm := h.team(t); !tm.IsFinished {
		t.Fatalf("team not finished: %+v", tm)
	}
	waitFor(t, "win logged", func() bool {
		for _, l := range h.snapshot(t, admin).RecentLogs {
			if l.Message == "BREACH CONFIRMED: Team Condors opened the vault." && l.Type == hunt.LogWin {
				return true
			}
		}
		return false
	})
}

func TestUnauthorized(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	ctx := context.Background()
	me := h.competitor()

	calls := []struct {
		name string
		call func() error
	}{
		{"competitor start", func() error { return h.eng.StartClock(ctx, me, 60) }},
		{"volunteer stop", func() error { return h.eng.StopClock(ctx, volunteer) }},
		{"competitor pause", func() error { _, err := h.eng.Pause(ctx, me); return err }},
		{"volunteer resume", func() error { _, err := h.eng.Resume(ctx, volunteer); return err }},
		{"volunteer promote", func() error { _, err := h.eng.Promote(ctx, volunteer, h.teamID); return err }},
		{"competitor demote", func() error { _, err := h.eng.Demote(ctx, me, h.teamID); return err }},
		{"volunteer reset", func() error { _, _, err := h.eng.RequestReset(volunteer); return err }},
		{"spectator broadcast", func() error { return h.eng.Broadcast(ctx, spectator, "hi") }},
		{"admin answer", func() error { _, err := h.eng.SubmitAnswer(ctx, admin, "KEY"); return err }},
		{"competitor override", func() error { _, err := h.eng.ManualAdvance(ctx, me, h.teamID); return err }},
		{"spectator resync", func() error { return h.eng.Resync(ctx, spectator) }},
		{"anonymous snapshot", func() error { _, err := h.eng.Snapshot(engine.Session{}, engine.SnapshotOptions{}); return err }},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			if err := c.call(); !errors.Is(err, engine.ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
	if h.team(t).CurrentNode != 1 {
		t.Error("unauthorized call changed the team")
	}
}

func TestWriteFailure(t *testing.T) {
	h := newHarness(t, false, hunt.Team{})
	h.store.FailWrites(errors.New("store offline"))

	err := h.eng.StartClock(context.Background(), admin, 60)
	var we *engine.WriteError
	if !errors.As(err, &we) || we.Op != "start clock" {
		t.Fatalf("err = %v, want WriteError", err)
	}
	if s := h.snapshot(t, admin); s.ClockState != hunt.ClockStandby {
		t.Errorf("clock state = %s after failed start", s.ClockState)
	}

	h.store.FailWrites(nil)
	if err := h.eng.StartClock(context.Background(), admin, 60); err != nil {
		t.Errorf("retry after recovery: %v", err)
	}
}
