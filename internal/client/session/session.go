// Package session holds the signed-in user for one running client. The
// session is built explicitly at start-up and shared by reference; it is
// the only place the current user is mutated.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/kz4killua/course-alerts/internal/client/events"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/repositories/tokens"
	"github.com/kz4killua/course-alerts/internal/logging"
)

// ProfileFetcher loads the profile of the account the stored access token
// belongs to.
type ProfileFetcher interface {
	GetProfile(ctx context.Context) (models.User, error)
}

// Session is safe for concurrent use. Consumers are notified with the new
// user, or nil once signed out.
type Session struct {
	mu   sync.RWMutex
	user *models.User

	tokens  tokens.Store
	changes events.Bus[*models.User]
	log     logging.Logger

	stopLogouts func()
}

// New creates an empty session that clears itself whenever logouts
// announces a forced logout.
func New(store tokens.Store, logouts *events.Bus[events.Logout], log logging.Logger) *Session {
	s := &Session{tokens: store, log: log}
	s.stopLogouts = logouts.Subscribe(func(e events.Logout) {
		s.log.Info(context.Background(), "session ended by backend", "reason", e.Reason)
		s.set(nil)
	})
	return s
}

// Hydrate restores the user from a stored access token. A failed profile
// fetch leaves the session empty and is not an error for the caller.
func (s *Session) Hydrate(ctx context.Context, profiles ProfileFetcher) {
	access, err := s.tokens.AccessToken(ctx)
	if err != nil {
		s.log.Warn(ctx, "read stored access token", "error", err)
		return
	}
	if access == "" {
		return
	}

	u, err := profiles.GetProfile(ctx)
	if err != nil {
		s.log.Warn(ctx, "restore session", "error", err)
		return
	}

	s.log.Info(ctx, "session restored", "email", logging.RedactEmail(u.Email))
	s.set(&u)
}

// User returns a copy of the current user.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Login records u as the signed-in user. Credentials are persisted by the
// caller before the profile is fetched.
func (s *Session) Login(u models.User) {
	s.set(&u)
}

// Logout discards the stored credentials and the user.
func (s *Session) Logout(ctx context.Context) error {
	err := s.tokens.Clear(ctx)
	s.set(nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Subscribe registers fn for user changes and returns its cancel function.
func (s *Session) Subscribe(fn func(*models.User)) func() {
	return s.changes.Subscribe(fn)
}

// Close detaches the session from the logout channel and drops the user
// without touching stored credentials, so the next start resumes.
func (s *Session) Close() {
	s.stopLogouts()
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

func (s *Session) set(u *models.User) {
	s.mu.Lock()
	if u == nil && s.user == nil {
		s.mu.Unlock()
		return
	}
	s.user = u
	s.mu.Unlock()

	var snapshot *models.User
	if u != nil {
		c := *u
		snapshot = &c
	}
	s.changes.Publish(snapshot)
}
