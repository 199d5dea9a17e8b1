package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playperu/breachhunt/internal/feed"
	"github.com/playperu/breachhunt/internal/hunt"
)

const timeLayout = time.RFC3339Nano

type SQLiteStore struct {
	db     *sql.DB
	gameID string
	clock  clockwork.Clock
	pub    publisher
}

// NewSQLiteStore returns a store for gameID, creating the game row with
// durationMinutes if it does not exist yet. An existing row keeps its
// duration.
func NewSQLiteStore(ctx context.Context, db *sql.DB, gameID string, durationMinutes int, f feed.Feed, channel string, clock clockwork.Clock, logger *slog.Logger) (*SQLiteStore, error) {
	if durationMinutes < 1 {
		durationMinutes = hunt.DefaultDurationMinutes
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO games (id, duration_minutes) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`, gameID, durationMinutes)
	if err != nil {
		return nil, fmt.Errorf("ensuring game %s: %w", gameID, err)
	}
	return &SQLiteStore{
		db:     db,
		gameID: gameID,
		clock:  clock,
		pub:    publisher{feed: f, channel: channel, logger: logger},
	}, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) GetGame(ctx context.Context) (hunt.Game, error) {
	return s.getGame(ctx, s.db)
}

func (s *SQLiteStore) getGame(ctx context.Context, q queryer) (hunt.Game, error) {
	var (
		g                 hunt.Game
		startTime, paused sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, start_time, duration_minutes, paused_at, version
		FROM games WHERE id = ?
	`, s.gameID).Scan(&g.ID, &startTime, &g.DurationMinutes, &paused, &g.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if g.StartTime, err = parseTime(startTime); err != nil {
		return g, err
	}
	if g.PausedAt, err = parseTime(paused); err != nil {
		return g, err
	}
	return g, nil
}

func (s *SQLiteStore) UpdateGame(ctx context.Context, p hunt.GamePatch) (hunt.Game, error) {
	sets, args := assignments(p.TeamPatch())
	sets = append(sets, "version = version + 1")
	args = append(args, s.gameID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return hunt.Game{}, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	old, err := s.getGame(ctx, tx)
	if err != nil {
		return hunt.Game{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE games SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return hunt.Game{}, fmt.Errorf("updating game: %w", err)
	}
	g, err := s.getGame(ctx, tx)
	if err != nil {
		return hunt.Game{}, err
	}
	if err := tx.Commit(); err != nil {
		return hunt.Game{}, fmt.Errorf("committing: %w", err)
	}

	s.pub.send(ctx, feed.RowChanged, feed.TableGames, old, g)
	return g, nil
}

const teamColumns = `id, game_id, name, access_code, current_node, score, is_finished,
	start_time, duration_minutes, paused_at, last_seen_at, last_solved_at, version`

func scanTeam(row interface{ Scan(...any) error }) (hunt.Team, error) {
	var (
		t                           hunt.Team
		finished                    int
		start, paused, seen, solved sql.NullString
	)
	err := row.Scan(&t.ID, &t.GameID, &t.Name, &t.AccessCode, &t.CurrentNode, &t.Score, &finished,
		&start, &t.DurationMinutes, &paused, &seen, &solved, &t.Version)
	if err != nil {
		return t, err
	}
	t.IsFinished = finished != 0
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&t.StartTime, start},
		{&t.PausedAt, paused},
		{&t.LastSeenAt, seen},
		{&t.LastSolvedAt, solved},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (s *SQLiteStore) selectTeams(ctx context.Context, q queryer, where string, args ...any) ([]hunt.Team, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []hunt.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *SQLiteStore) ListTeams(ctx context.Context) ([]hunt.Team, error) {
	return s.selectTeams(ctx, s.db, "game_id = ?", s.gameID)
}

func (s *SQLiteStore) GetTeam(ctx context.Context, id string) (hunt.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE game_id = ? AND id = ?`, s.gameID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) FindTeam(ctx context.Context, name, accessCode string) (hunt.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx, `
		SELECT `+teamColumns+` FROM teams
		WHERE game_id = ? AND name = ? COLLATE NOCASE AND access_code = ?
	`, s.gameID, strings.TrimSpace(name), accessCode))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) CreateTeam(ctx context.Context, t hunt.Team) (hunt.Team, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CurrentNode < 1 {
		t.CurrentNode = 1
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO teams (id, game_id, name, access_code, current_node, score, duration_minutes)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(NULLIF(?, 0), (SELECT duration_minutes FROM games WHERE id = ?)))
		RETURNING `+teamColumns,
		t.ID, s.gameID, t.Name, t.AccessCode, t.CurrentNode, t.Score, t.DurationMinutes, s.gameID)
	created, err := scanTeam(row)
	if err != nil {
		return hunt.Team{}, fmt.Errorf("inserting team: %w", err)
	}
	s.pub.send(ctx, feed.RowInserted, feed.TableTeams, nil, created)
	return created, nil
}

func (s *SQLiteStore) UpdateTeams(ctx context.Context, f TeamFilter, p hunt.TeamPatch) (int, error) {
	changed, err := s.update(ctx, f, p)
	if err != nil {
		return 0, err
	}
	for _, c := range changed {
		s.pub.send(ctx, feed.RowChanged, feed.TableTeams, c[0], c[1])
	}
	return len(changed), nil
}

func (s *SQLiteStore) UpdateTeam(ctx context.Context, id string, version int64, p hunt.TeamPatch) (hunt.Team, error) {
	changed, err := s.update(ctx, TeamFilter{IDs: []string{id}, Version: version}, p)
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

// update reads the matching rows, writes them and reads them back inside
// one transaction so the published old/new images are exact.
func (s *SQLiteStore) update(ctx context.Context, f TeamFilter, p hunt.TeamPatch) ([][2]hunt.Team, error) {
	sets, setArgs := assignments(p)
	if len(sets) == 0 {
		return nil, nil
	}
	sets = append(sets, "version = version + 1")

	where, whereArgs := s.teamWhere(f)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	before, err := s.selectTeams(ctx, tx, where, whereArgs...)
	if err != nil {
		return nil, fmt.Errorf("selecting teams: %w", err)
	}
	if len(before) == 0 {
		return nil, nil
	}

	ids := make([]any, len(before))
	for i, t := range before {
		ids[i] = t.ID
	}
	in := "id IN (" + placeholders(len(ids)) + ")"

	args := append(setArgs, ids...)
	if _, err := tx.ExecContext(ctx, `UPDATE teams SET `+strings.Join(sets, ", ")+` WHERE `+in, args...); err != nil {
		return nil, fmt.Errorf("updating teams: %w", err)
	}
	after, err := s.selectTeams(ctx, tx, in, ids...)
	if err != nil {
		return nil, fmt.Errorf("reading updated teams: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	byID := make(map[string]hunt.Team, len(after))
	for _, t := range after {
		byID[t.ID] = t
	}
	changed := make([][2]hunt.Team, 0, len(before))
	for _, old := range before {
		changed = append(changed, [2]hunt.Team{old, byID[old.ID]})
	}
	return changed, nil
}

func (s *SQLiteStore) teamWhere(f TeamFilter) (string, []any) {
	clauses := []string{"game_id = ?"}
	args := []any{s.gameID}
	if len(f.IDs) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.Started {
		clauses = append(clauses, "start_time IS NOT NULL")
	}
	if f.Unpaused {
		clauses = append(clauses, "paused_at IS NULL")
	}
	if f.Paused {
		clauses = append(clauses, "paused_at IS NOT NULL")
	}
	if f.Version != 0 {
		clauses = append(clauses, "version = ?")
		args = append(args, f.Version)
	}
	return strings.Join(clauses, " AND "), args
}

// assignments renders the SET list for a patch. Column names are fixed
// here; only values are bound.
func assignments(p hunt.TeamPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.CurrentNode != nil {
		add("current_node", *p.CurrentNode)
	}
	if p.Score != nil {
		add("score", *p.Score)
	}
	if p.IsFinished != nil {
		add("is_finished", boolInt(*p.IsFinished))
	}
	if p.DurationMinutes != nil {
		add("duration_minutes", *p.DurationMinutes)
	}
	for _, f := range []struct {
		col string
		val hunt.TimeField
	}{
		{"start_time", p.StartTime},
		{"paused_at", p.PausedAt},
		{"last_seen_at", p.LastSeenAt},
		{"last_solved_at", p.LastSolvedAt},
	} {
		if f.val.Set {
			add(f.col, formatTime(f.val.Value))
		}
	}
	return sets, args
}

func (s *SQLiteStore) ListNodes(ctx context.Context) ([]hunt.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location_hint, answers, success_message
		FROM nodes ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []hunt.Node
	for rows.Next() {
		var (
			n       hunt.Node
			answers string
		)
		if err := rows.Scan(&n.ID, &n.Name, &n.LocationHint, &answers, &n.SuccessMessage); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &n.Answers); err != nil {
			return nil, fmt.Errorf("decoding answers of node %d: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *SQLiteStore) PutNode(ctx context.Context, n hunt.Node) error {
	answers, err := json.Marshal(n.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, name, location_hint, answers, success_message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			location_hint = excluded.location_hint,
			answers = excluded.answers,
			success_message = excluded.success_message
	`, n.ID, n.Name, n.LocationHint, string(answers), n.SuccessMessage)
	return err
}

func (s *SQLiteStore) AppendLog(ctx context.Context, message string, typ hunt.LogType) (hunt.LogEntry, error) {
	e := hunt.LogEntry{Message: message, Type: typ, CreatedAt: s.clock.Now().UTC()}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO system_logs (message, type, created_at) VALUES (?, ?, ?)
		RETURNING id
	`, message, string(typ), e.CreatedAt.Format(timeLayout)).Scan(&e.ID)
	if err != nil {
		return hunt.LogEntry{}, fmt.Errorf("appending log: %w", err)
	}
	s.pub.send(ctx, feed.RowInserted, feed.TableLogs, nil, e)
	return e, nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, limit int) ([]hunt.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message, type, created_at FROM system_logs
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []hunt.LogEntry
	for rows.Next() {
		var (
			e       hunt.LogEntry
			typ     string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Message, &typ, &created); err != nil {
			return nil, err
		}
		e.Type = hunt.LogType(typ)
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parsing log time: %w", err)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func parseTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parsing time %q: %w", ns.String, err)
	}
	return &t, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
