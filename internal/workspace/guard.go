package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/logging"
)

const (
	msgInvalidCredentials = "Email ou senha incorretos"
	msgSignInFailed       = "Erro ao fazer login. Tente novamente."
	msgAccountCreated     = "Conta criada com sucesso!"
	msgAccountNeedsLogin  = "Conta criada! Por favor, faça login com suas credenciais."
	msgUserExists         = "Este email já está cadastrado"
	msgSignUpFailed       = "Erro ao criar conta. Tente novamente."
	msgSignOutFailed      = "Erro ao sair. Tente novamente."
)

// AuthResult is the displayable outcome of a guard operation.
type AuthResult struct {
	Success bool
	Message string
	// NeedsLogin is set after a sign up that did not open a session.
	NeedsLogin bool
}

// Guard owns the process-wide authentication state. It mirrors every
// auth-state change reported by the backend and turns failures into
// displayable messages.
type Guard struct {
	auth       backend.Auth
	redirectTo string
	logger     *slog.Logger
	emitter    backend.AuthEmitter

	mu          sync.RWMutex
	session     *backend.Session
	loading     bool
	lastError   string
	unsubscribe func()
}

// NewGuard returns a guard over auth. redirectTo is sent with sign ups.
func NewGuard(auth backend.Auth, redirectTo string, logger *slog.Logger) *Guard {
	return &Guard{
		auth:       auth,
		redirectTo: redirectTo,
		logger:     logging.Or(logger).With("component", "guard"),
		loading:    true,
	}
}

// Start reads the current session and subscribes to auth-state changes. Only
// the first call has any effect until Stop.
func (g *Guard) Start(ctx context.Context) {
	g.mu.Lock()
	if g.unsubscribe != nil {
		g.mu.Unlock()
		return
	}
	g.unsubscribe = func() {}
	g.loading = true
	g.mu.Unlock()

	session, err := g.auth.GetSession(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to read session", "error", err)
	}
	g.mirror(session)

	unsubscribe := g.auth.OnAuthStateChange(g.handle)
	g.mu.Lock()
	g.unsubscribe = unsubscribe
	g.mu.Unlock()
}

// Stop releases the auth-state subscription.
func (g *Guard) Stop() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Session returns a copy of the current session, or nil when signed out.
func (g *Guard) Session() *backend.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil
	}
	copied := *g.session
	return &copied
}

// Email returns the signed in user's email, or "" when signed out.
func (g *Guard) Email() string {
	if s := g.Session(); s != nil {
		return s.User.Email
	}
	return ""
}

// Loading reports whether a session read or an auth call is running.
func (g *Guard) Loading() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loading
}

// LastError returns the message of the last failed operation.
func (g *Guard) LastError() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastError
}

// Subscribe registers listener for every mirrored auth-state change.
func (g *Guard) Subscribe(listener backend.AuthListener) func() {
	return g.emitter.Subscribe(listener)
}

// SignIn authenticates with email and password.
func (g *Guard) SignIn(ctx context.Context, email, password string) AuthResult {
	g.begin()

	session, err := g.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		message := msgSignInFailed
		if errors.Is(err, backend.ErrInvalidCredentials) {
			message = msgInvalidCredentials
		}
		g.logger.WarnContext(ctx, "sign in failed", "email", email, "error", err)
		g.fail(message)
		return AuthResult{Message: message}
	}

	g.mirror(session)
	return AuthResult{Success: true}
}

// SignUp registers an account. A returned session signs the user in; a user
// without session must sign in separately.
func (g *Guard) SignUp(ctx context.Context, email, password string) AuthResult {
	g.begin()

	result, err := g.auth.SignUp(ctx, email, password, g.redirectTo)
	if err != nil {
		message := signUpMessage(err)
		g.logger.WarnContext(ctx, "sign up failed", "email", email, "error", err)
		g.fail(message)
		return AuthResult{Message: message}
	}

	if result.Session != nil {
		g.mirror(result.Session)
		return AuthResult{Success: true, Message: msgAccountCreated}
	}
	g.finish()
	return AuthResult{Success: true, Message: msgAccountNeedsLogin, NeedsLogin: true}
}

// SignOut clears the credential and the current session.
func (g *Guard) SignOut(ctx context.Context) AuthResult {
	g.mu.Lock()
	g.lastError = ""
	g.mu.Unlock()

	if err := g.auth.SignOut(ctx); err != nil {
		g.logger.ErrorContext(ctx, "sign out failed", "error", err)
		g.mu.Lock()
		g.lastError = msgSignOutFailed
		g.mu.Unlock()
		return AuthResult{Message: msgSignOutFailed}
	}

	g.mirror(nil)
	return AuthResult{Success: true}
}

func (g *Guard) handle(event backend.AuthEvent, session *backend.Session) {
	g.mirror(session)
	g.emitter.Emit(event, g.Session())
}

func (g *Guard) mirror(session *backend.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loading = false
	if session == nil {
		g.session = nil
		return
	}
	copied := *session
	g.session = &copied
}

func (g *Guard) begin() {
	g.mu.Lock()
	g.lastError = ""
	g.loading = true
	g.mu.Unlock()
}

func (g *Guard) finish() {
	g.mu.Lock()
	g.loading = false
	g.mu.Unlock()
}

func (g *Guard) fail(message string) {
	g.mu.Lock()
	g.lastError = message
	g.loading = false
	g.mu.Unlock()
}

// signUpMessage prefers the field messages returned by the backend.
func signUpMessage(err error) string {
	if errors.Is(err, backend.ErrUserExists) {
		return msgUserExists
	}
	var bErr *backend.Error
	if errors.As(err, &bErr) && len(bErr.Fields) > 0 {
		fields := make([]string, 0, len(bErr.Fields))
		for field := range bErr.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return bErr.Fields[fields[0]]
	}
	return msgSignUpFailed
}
