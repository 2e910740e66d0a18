package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/oficios-registry/internal/backend"
)

type stubAuth struct {
	mu sync.Mutex

	session       *backend.Session
	getErr        error
	signInSession *backend.Session
	signInErr     error
	signUpResult  backend.SignUpResult
	signUpErr     error
	signOutErr    error

	listener     backend.AuthListener
	unsubscribed int
	redirect     string
	signOuts     int
}

func (s *stubAuth) GetSession(context.Context) (*backend.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.getErr
}

func (s *stubAuth) SignInWithPassword(_ context.Context, email, _ string) (*backend.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signInErr != nil {
		return nil, s.signInErr
	}
	return s.signInSession, nil
}

func (s *stubAuth) SignUp(_ context.Context, _, _, redirectTo string) (backend.SignUpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirect = redirectTo
	return s.signUpResult, s.signUpErr
}

func (s *stubAuth) SignOut(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOuts++
	return s.signOutErr
}

func (s *stubAuth) OnAuthStateChange(listener backend.AuthListener) func() {
	s.mu.Lock()
	s.listener = listener
	session := s.session
	s.mu.Unlock()

	listener(backend.EventInitialSession, session)
	return func() {
		s.mu.Lock()
		s.unsubscribed++
		s.mu.Unlock()
	}
}

func (s *stubAuth) emit(event backend.AuthEvent, session *backend.Session) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	listener(event, session)
}

func testSession(id, email string) *backend.Session {
	return &backend.Session{
		AccessToken: "token-" + id,
		TokenType:   "bearer",
		ExpiresAt:   time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
		User:        backend.User{ID: id, Email: email},
	}
}

func TestGuardStartMirrorsSession(t *testing.T) {
	t.Parallel()

	auth := &stubAuth{session: testSession("user-1", "servidor@example.com")}
	guard := NewGuard(auth, "", nil)
	if !guard.Loading() {
		t.Fatalf("expected the guard to be loading before Start")
	}

	var events []backend.AuthEvent
	guard.Subscribe(func(event backend.AuthEvent, _ *backend.Session) {
		events = append(events, event)
	})

	guard.Start(context.Background())
	guard.Start(context.Background())

	if guard.Loading() {
		t.Fatalf("expected loading to end after Start")
	}
	if guard.Email() != "servidor@example.com" {
		t.Fatalf("expected the initial session, got %+v", guard.Session())
	}

	auth.emit(backend.EventSignedOut, nil)
	if guard.Session() != nil {
		t.Fatalf("expected the sign out to be mirrored")
	}

	guard.Stop()
	guard.Stop()
	if auth.unsubscribed != 1 {
		t.Fatalf("expected one unsubscribe, got %d", auth.unsubscribed)
	}
	if len(events) != 2 || events[0] != backend.EventInitialSession || events[1] != backend.EventSignedOut {
		t.Fatalf("unexpected forwarded events %v", events)
	}
}

func TestGuardStartToleratesSessionErrors(t *testing.T) {
	t.Parallel()

	guard := NewGuard(&stubAuth{getErr: errors.New("connection refused")}, "", nil)
	guard.Start(context.Background())
	defer guard.Stop()

	if guard.Session() != nil || guard.Loading() {
		t.Fatalf("expected a signed out, idle guard")
	}
}

func TestGuardSignIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantSuccess bool
		wantMessage string
	}{
		{name: "success", wantSuccess: true},
		{name: "wrong credentials", err: &backend.Error{Status: 400, Code: "invalid_credentials", Kind: backend.ErrInvalidCredentials}, wantMessage: msgInvalidCredentials},
		{name: "network failure", err: errors.New("dial tcp: connection refused"), wantMessage: msgSignInFailed},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			previous := testSession("user-0", "anterior@example.com")
			auth := &stubAuth{session: previous, signInSession: testSession("user-1", "servidor@example.com"), signInErr: tc.err}
			guard := NewGuard(auth, "", nil)
			guard.Start(context.Background())
			defer guard.Stop()

			result := guard.SignIn(context.Background(), "servidor@example.com", "segredo")
			if result.Success != tc.wantSuccess || result.Message != tc.wantMessage {
				t.Fatalf("unexpected result %+v", result)
			}
			if guard.LastError() != tc.wantMessage {
				t.Fatalf("expected last error %q, got %q", tc.wantMessage, guard.LastError())
			}
			if guard.Loading() {
				t.Fatalf("expected loading to end")
			}

			wantEmail := "anterior@example.com"
			if tc.wantSuccess {
				wantEmail = "servidor@example.com"
			}
			if guard.Email() != wantEmail {
				t.Fatalf("expected session for %s, got %+v", wantEmail, guard.Session())
			}
		})
	}
}

func TestGuardSignUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     backend.SignUpResult
		err        error
		want       AuthResult
		signedInAs string
	}{
		{
			name:       "session issued",
			result:     backend.SignUpResult{User: backend.User{ID: "user-1"}, Session: testSession("user-1", "novo@example.com")},
			want:       AuthResult{Success: true, Message: msgAccountCreated},
			signedInAs: "novo@example.com",
		},
		{
			name:   "needs login",
			result: backend.SignUpResult{User: backend.User{ID: "user-1"}},
			want:   AuthResult{Success: true, Message: msgAccountNeedsLogin, NeedsLogin: true},
		},
		{
			name: "already registered",
			err:  &backend.Error{Status: 422, Code: "user_already_exists", Kind: backend.ErrUserExists},
			want: AuthResult{Message: msgUserExists},
		},
		{
			name: "field validation",
			err:  &backend.Error{Status: 422, Code: "validation_failed", Fields: map[string]string{"password": "A senha deve ter pelo menos 6 caracteres"}, Kind: backend.ErrInvalidInput},
			want: AuthResult{Message: "A senha deve ter pelo menos 6 caracteres"},
		},
		{
			name: "other failure",
			err:  errors.New("boom"),
			want: AuthResult{Message: msgSignUpFailed},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			auth := &stubAuth{signUpResult: tc.result, signUpErr: tc.err}
			guard := NewGuard(auth, "https://registry.example.com", nil)
			guard.Start(context.Background())
			defer guard.Stop()

			got := guard.SignUp(context.Background(), "novo@example.com", "segredo")
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
			if auth.redirect != "https://registry.example.com" {
				t.Fatalf("expected the redirect to be forwarded, got %q", auth.redirect)
			}
			if guard.Email() != tc.signedInAs {
				t.Fatalf("expected signed in as %q, got %+v", tc.signedInAs, guard.Session())
			}
		})
	}
}

func TestGuardSignOut(t *testing.T) {
	t.Parallel()

	t.Run("clears the session", func(t *testing.T) {
		t.Parallel()

		auth := &stubAuth{session: testSession("user-1", "servidor@example.com")}
		guard := NewGuard(auth, "", nil)
		guard.Start(context.Background())
		defer guard.Stop()

		if result := guard.SignOut(context.Background()); !result.Success {
			t.Fatalf("unexpected result %+v", result)
		}
		if guard.Session() != nil || auth.signOuts != 1 {
			t.Fatalf("expected the session to be cleared")
		}
	})

	t.Run("keeps the session when the backend fails", func(t *testing.T) {
		t.Parallel()

		auth := &stubAuth{session: testSession("user-1", "servidor@example.com"), signOutErr: errors.New("timeout")}
		guard := NewGuard(auth, "", nil)
		guard.Start(context.Background())
		defer guard.Stop()

		result := guard.SignOut(context.Background())
		if result.Success || result.Message != msgSignOutFailed || guard.LastError() != msgSignOutFailed {
			t.Fatalf("unexpected result %+v / %q", result, guard.LastError())
		}
		if guard.Session() == nil {
			t.Fatalf("expected the session to survive a failed sign out")
		}
	})
}
