package store

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playperu/breachhunt/internal/feed"
	"github.com/playperu/breachhunt/internal/hunt"
)

// MemStore keeps everything in process memory. It honours the same
// contract as SQLiteStore and is used for STORE_DRIVER=memory and tests.
type MemStore struct {
	mu     sync.Mutex
	game   hunt.Game
	teams  map[string]hunt.Team
	order  []string
	nodes  map[int]hunt.Node
	logs   []hunt.LogEntry
	nextID int64

	clock clockwork.Clock
	pub   publisher

	failWrites error
}

// NewMemStore returns an empty store whose game starts with
// durationMinutes on the clock, or the default when it is not positive.
func NewMemStore(gameID string, durationMinutes int, f feed.Feed, channel string, clock clockwork.Clock, logger *slog.Logger) *MemStore {
	if durationMinutes < 1 {
		durationMinutes = hunt.DefaultDurationMinutes
	}
	return &MemStore{
		game:  hunt.Game{ID: gameID, DurationMinutes: durationMinutes, Version: 1},
		teams: make(map[string]hunt.Team),
		nodes: make(map[int]hunt.Node),
		clock: clock,
		pub:   publisher{feed: f, channel: channel, logger: logger},
	}
}

func (s *MemStore) GetGame(_ context.Context) (hunt.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game, nil
}

func (s *MemStore) UpdateGame(ctx context.Context, p hunt.GamePatch) (hunt.Game, error) {
	s.mu.Lock()
	if s.failWrites != nil {
		s.mu.Unlock()
		return hunt.Game{}, s.failWrites
	}
	old := s.game
	s.game = p.Apply(s.game)
	s.game.Version++
	g := s.game
	s.mu.Unlock()

	s.pub.send(ctx, feed.RowChanged, feed.TableGames, old, g)
	return g, nil
}

func (s *MemStore) ListTeams(_ context.Context) ([]hunt.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := make([]hunt.Team, 0, len(s.order))
	for _, id := range s.order {
		teams = append(teams, s.teams[id])
	}
	return teams, nil
}

func (s *MemStore) GetTeam(_ context.Context, id string) (hunt.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return hunt.Team{}, ErrNotFound
	}
	return t, nil
}

func (s *MemStore) FindTeam(_ context.Context, name, accessCode string) (hunt.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		t := s.teams[id]
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) && t.AccessCode == accessCode {
			return t, nil
		}
	}
	return hunt.Team{}, ErrNotFound
}

func (s *MemStore) CreateTeam(ctx context.Context, t hunt.Team) (hunt.Team, error) {
	s.mu.Lock()
	if s.failWrites != nil {
		s.mu.Unlock()
		return hunt.Team{}, s.failWrites
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.GameID = s.game.ID
	if t.CurrentNode < 1 {
		t.CurrentNode = 1
	}
	if t.DurationMinutes < 1 {
		t.DurationMinutes = s.game.DurationMinutes
	}
	t.Version = 1
	s.teams[t.ID] = t
	s.order = append(s.order, t.ID)
	s.mu.Unlock()

	s.pub.send(ctx, feed.RowInserted, feed.TableTeams, nil, t)
	return t, nil
}

func (s *MemStore) UpdateTeams(ctx context.Context, f TeamFilter, p hunt.TeamPatch) (int, error) {
	changed, err := s.update(f, p)
	if err != nil {
		return 0, err
	}
	for _, c := range changed {
		s.pub.send(ctx, feed.RowChanged, feed.TableTeams, c[0], c[1])
	}
	return len(changed), nil
}

func (s *MemStore) UpdateTeam(ctx context.Context, id string, version int64, p hunt.TeamPatch) (hunt.Team, error) {
	changed, err := s.update(TeamFilter{IDs: []string{id}, Version: version}, p)
	if err != nil {
		return hunt.Team{}, err
	}
	if len(changed) == 0 {
		if _, err := s.GetTeam(ctx, id); err != nil {
			return hunt.Team{}, err
		}
		return hunt.Team{}, ErrConflict
	}
	s.pub.send(ctx, feed.RowChanged, feed.TableTeams, changed[0][0], changed[0][1])
	return changed[0][1], nil
}

// update returns old/new pairs in table order.
func (s *MemStore) update(f TeamFilter, p hunt.TeamPatch) ([][2]hunt.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return nil, s.failWrites
	}
	var changed [][2]hunt.Team
	for _, id := range s.order {
		old := s.teams[id]
		if !f.Match(old) {
			continue
		}
		t := p.Apply(old)
		t.Version = old.Version + 1
		s.teams[id] = t
		changed = append(changed, [2]hunt.Team{old, t})
	}
	return changed, nil
}

func (s *MemStore) ListNodes(_ context.Context) ([]hunt.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]hunt.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b hunt.Node) int { return a.ID - b.ID })
	return nodes, nil
}

func (s *MemStore) PutNode(_ context.Context, n hunt.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	return nil
}

func (s *MemStore) AppendLog(ctx context.Context, message string, typ hunt.LogType) (hunt.LogEntry, error) {
	s.mu.Lock()
	if s.failWrites != nil {
		s.mu.Unlock()
		return hunt.LogEntry{}, s.failWrites
	}
	s.nextID++
	e := hunt.LogEntry{ID: s.nextID, Message: message, Type: typ, CreatedAt: s.clock.Now().UTC()}
	s.logs = append(s.logs, e)
	s.mu.Unlock()

	s.pub.send(ctx, feed.RowInserted, feed.TableLogs, nil, e)
	return e, nil
}

func (s *MemStore) ListLogs(_ context.Context, limit int) ([]hunt.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.logs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]hunt.LogEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

// FailWrites makes every later mutation return err until called with nil.
func (s *MemStore) FailWrites(err error) {
	s.mu.Lock()
	s.failWrites = err
	s.mu.Unlock()
}

func (s *MemStore) Ping(_ context.Context) error { return nil }
