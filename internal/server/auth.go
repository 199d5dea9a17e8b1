package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/breachhunt/internal/engine"
	"github.com/playperu/breachhunt/internal/hunt"
	"github.com/playperu/breachhunt/internal/store"
)

const sessionTTL = 12 * time.Hour

var (
	errNoSession          = errors.New("no valid session")
	errInvalidCredentials = errors.New("invalid credentials")
)

type authEntry struct {
	sess    engine.Session
	expires time.Time
	ended   chan struct{}
	timer   clockwork.Timer
}

// Auth issues bearer tokens for teams and staff and resolves them back to
// engine sessions. Tokens live in memory; a restart logs everyone out.
type Auth struct {
	store store.Store
	clock clockwork.Clock
	staff map[engine.Role][][]byte

	mu     sync.Mutex
	tokens map[string]authEntry
}

// NewAuth hashes the staff passwords once so plaintext is not kept around.
func NewAuth(st store.Store, clock clockwork.Clock, cost int, admin, volunteer []string) (*Auth, error) {
	a := &Auth{
		store:  st,
		clock:  clock,
		staff:  make(map[engine.Role][][]byte),
		tokens: make(map[string]authEntry),
	}
	for role, passwords := range map[engine.Role][]string{engine.RoleAdmin: admin, engine.RoleVolunteer: volunteer} {
		for _, p := range passwords {
			if p == "" {
				continue
			}
			h, err := bcrypt.GenerateFromPassword([]byte(p), cost)
			if err != nil {
				return nil, fmt.Errorf("hashing %s password: %w", role, err)
			}
			a.staff[role] = append(a.staff[role], h)
		}
	}
	return a, nil
}

// LoginTeam checks a team's name and access code.
func (a *Auth) LoginTeam(ctx context.Context, name, accessCode string) (string, hunt.Team, error) {
	t, err := a.store.FindTeam(ctx, name, accessCode)
	if errors.Is(err, store.ErrNotFound) {
		return "", hunt.Team{}, errInvalidCredentials
	}
	if err != nil {
		return "", hunt.Team{}, err
	}
	return a.issue(engine.Session{Role: engine.RoleCompetitor, TeamID: t.ID}), t, nil
}

// LoginStaff checks password against every configured password for role.
func (a *Auth) LoginStaff(role engine.Role, password string) (string, error) {
	for _, h := range a.staff[role] {
		if bcrypt.CompareHashAndPassword(h, []byte(password)) == nil {
			return a.issue(engine.Session{Role: role}), nil
		}
	}
	return "", errInvalidCredentials
}

// issue stores a new session. Each one is dropped when its TTL runs out
// whether or not it is looked up again.
func (a *Auth) issue(sess engine.Session) string {
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = authEntry{
		sess:    sess,
		expires: a.clock.Now().Add(sessionTTL),
		ended:   make(chan struct{}),
		timer:   a.clock.AfterFunc(sessionTTL, func() { a.Logout(token) }),
	}
	a.mu.Unlock()
	return token
}

func (a *Auth) Lookup(token string) (engine.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.tokens[token]
	if !ok {
		return engine.Session{}, errNoSession
	}
	if !a.clock.Now().Before(e.expires) {
		a.endLocked(token)
		return engine.Session{}, errNoSession
	}
	return e.sess, nil
}

// Ended returns a channel that is closed once token is logged out or
// expires. An empty token never ends; an unknown one has already ended.
func (a *Auth) Ended(token string) <-chan struct{} {
	if token == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.tokens[token]; ok {
		return e.ended
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (a *Auth) Logout(token string) {
	a.mu.Lock()
	a.endLocked(token)
	a.mu.Unlock()
}

func (a *Auth) endLocked(token string) {
	e, ok := a.tokens[token]
	if !ok {
		return
	}
	delete(a.tokens, token)
	e.timer.Stop()
	close(e.ended)
}

func (a *Auth) sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tokens)
}

// tokenFromRequest prefers the Authorization header. Streams pass the token
// as a query parameter because EventSource and browsers' WebSocket cannot
// set headers.
func tokenFromRequest(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}
