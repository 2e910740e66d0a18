package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/oficios-registry/internal/credentials"
	"github.com/example/oficios-registry/internal/logging"
)

// SessionState holds a client's current session, mirrors it into an optional
// credential file and announces every change to auth listeners.
type SessionState struct {
	emitter AuthEmitter
	creds   *credentials.File
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	session  *Session
	restored bool
}

// NewSessionState returns an empty state. creds may be nil to keep the session
// in memory only.
func NewSessionState(creds *credentials.File, logger *slog.Logger, now func() time.Time) *SessionState {
	if now == nil {
		now = time.Now
	}
	return &SessionState{creds: creds, logger: logging.Or(logger), now: now}
}

// Current returns a copy of the unexpired session, restoring it from the
// credential file on first use. It returns nil when signed out.
func (s *SessionState) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.restored {
		s.restored = true
		s.restoreLocked()
	}
	if s.session == nil || s.session.Expired(s.now()) {
		return nil
	}
	copied := *s.session
	return &copied
}

// Remember makes session current, stores it and emits SIGNED_IN.
func (s *SessionState) Remember(ctx context.Context, session *Session) {
	if session == nil {
		return
	}
	copied := *session

	s.mu.Lock()
	s.session = &copied
	s.restored = true
	s.mu.Unlock()

	if s.creds != nil {
		err := s.creds.Save(credentials.Credentials{
			AccessToken: copied.AccessToken,
			ExpiresAt:   copied.ExpiresAt,
			UserID:      copied.User.ID,
			Email:       copied.User.Email,
			CreatedAt:   copied.User.CreatedAt,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to store session", "path", s.creds.Path(), "error", err)
		}
	}

	announced := copied
	s.emitter.Emit(EventSignedIn, &announced)
}

// Forget drops the session and its stored copy. SIGNED_OUT is emitted only
// when a session was held.
func (s *SessionState) Forget(ctx context.Context) {
	s.mu.Lock()
	hadSession := s.session != nil
	s.session = nil
	s.restored = true
	s.mu.Unlock()

	if s.creds != nil {
		if err := s.creds.Clear(); err != nil {
			s.logger.WarnContext(ctx, "failed to clear stored session", "path", s.creds.Path(), "error", err)
		}
	}
	if hadSession {
		s.emitter.Emit(EventSignedOut, nil)
	}
}

// Subscribe registers listener and calls it at once with INITIAL_SESSION and
// the current session.
func (s *SessionState) Subscribe(listener AuthListener) func() {
	unsubscribe := s.emitter.Subscribe(listener)
	if listener != nil {
		listener(EventInitialSession, s.Current())
	}
	return unsubscribe
}

func (s *SessionState) restoreLocked() {
	if s.creds == nil || s.session != nil {
		return
	}
	stored, ok, err := s.creds.Load()
	if err != nil {
		s.logger.Warn("failed to load stored session", "path", s.creds.Path(), "error", err)
		return
	}
	if !ok || !stored.Valid(s.now()) {
		return
	}
	s.session = &Session{
		AccessToken: stored.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   stored.ExpiresAt,
		User:        User{ID: stored.UserID, Email: stored.Email, CreatedAt: stored.CreatedAt},
	}
}
