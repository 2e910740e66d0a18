package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/oficios-registry/internal/logging"
)

// MinPasswordLength is the shortest password accepted at sign up.
const MinPasswordLength = 6

// CredentialStore exposes the account operations required by the auth service.
type CredentialStore interface {
	CreateUser(ctx context.Context, creds UserCredentials) (User, error)
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// PasswordHasher encodes a password for storage.
type PasswordHasher func(password string) (string, error)

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthSettings tunes session issuing.
type AuthSettings struct {
	SessionTTL time.Duration
	// AutoConfirm issues a session at sign up. Without it new accounts must
	// sign in separately.
	AutoConfirm bool
	Hash        PasswordHasher
	Verify      PasswordVerifier
}

// AuthService coordinates sign up, sign in and session validation.
type AuthService struct {
	credentials    CredentialStore
	sessions       SessionRepository
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	autoConfirm    bool
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, sessions SessionRepository, tokenGenerator func() string, now func() time.Time, settings AuthSettings) *AuthService {
	return NewAuthServiceWithLogger(credentials, sessions, tokenGenerator, now, settings, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, sessions SessionRepository, tokenGenerator func() string, now func() time.Time, settings AuthSettings, logger *slog.Logger) *AuthService {
	if settings.Hash == nil {
		settings.Hash = HashPassword
	}
	if settings.Verify == nil {
		settings.Verify = VerifyPassword
	}
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = 24 * time.Hour
	}
	return &AuthService{
		credentials:    credentials,
		sessions:       sessions,
		hashPassword:   settings.Hash,
		verifyPassword: settings.Verify,
		tokenGenerator: tokenGenerator,
		now:            now,
		sessionTTL:     settings.SessionTTL,
		autoConfirm:    settings.AutoConfirm,
		logger:         logging.Or(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, s.logger, "service", "AuthService", operation, attrs...)
}

// SignUp registers a new account. A session is only issued when the service
// confirms accounts automatically.
func (s *AuthService) SignUp(ctx context.Context, params SignUpParams) (result SignUpResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil {
		err = fmt.Errorf("credential store not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "SignUp", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign up failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"user_id", result.User.ID,
			"session_issued", result.Session != nil,
		).InfoContext(ctx, "account created")
	}()

	if vErr := validateSignUp(email, params.Password); vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	if hash, err = s.hashPassword(params.Password); err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	creds := UserCredentials{
		User: User{
			ID:        s.tokenGenerator(),
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	}

	var user User
	user, err = s.credentials.CreateUser(ctx, creds)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	result.User = user

	if !s.autoConfirm {
		return
	}

	var session Session
	if session, err = s.issueSession(ctx, user.ID); err != nil {
		return
	}
	result.Session = &session
	return
}

// Authenticate validates credentials and issues a new session token.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil {
		err = fmt.Errorf("credential store not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"user_id", result.User.ID,
			"session_id", result.Session.ID,
		).InfoContext(ctx, "authentication succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	var session Session
	if session, err = s.issueSession(ctx, creds.User.ID); err != nil {
		return
	}

	result = AuthenticateResult{User: creds.User, Session: session}
	return
}

// GetSession returns the active session for token together with its user.
func (s *AuthService) GetSession(ctx context.Context, token string) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetSession")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session lookup failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var session Session
	if session, err = s.activeSession(ctx, token); err != nil {
		return
	}

	var user User
	if user, err = s.credentials.GetUser(ctx, session.UserID); err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			err = ErrUnauthorized
		}
		return
	}

	result = AuthenticateResult{User: user, Session: session}
	return
}

// ValidateSession verifies that the provided token corresponds to an active session and returns its principal.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", strings.TrimSpace(token) != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID).DebugContext(ctx, "session validated")
	}()

	var result AuthenticateResult
	result, err = s.GetSession(ctx, token)
	if err != nil {
		return
	}

	principal = Principal{UserID: result.User.ID, Email: result.User.Email}
	return
}

// RevokeSession invalidates an existing session token.
func (s *AuthService) RevokeSession(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidCredentials
	}

	logger := s.loggerWith(ctx, "RevokeSession")

	if _, err := s.sessions.RevokeSession(ctx, trimmed, s.now()); err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			logger.ErrorContext(ctx, "failed to revoke session", "error", ErrInvalidCredentials, "error_kind", ErrorKind(ErrInvalidCredentials))
			return ErrInvalidCredentials
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.sessions.DeleteExpiredSessions(ctx, s.now()); err != nil {
		logger.ErrorContext(ctx, "failed to prune expired sessions", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}

func (s *AuthService) issueSession(ctx context.Context, userID string) (Session, error) {
	now := s.now()
	id := s.tokenGenerator()
	token := s.tokenGenerator()
	if token == "" {
		token = id
	}

	session := Session{
		ID:        id,
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	if s.sessions == nil {
		return session, nil
	}
	if err := s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		return Session{}, err
	}
	return s.sessions.CreateSession(ctx, session)
}

func (s *AuthService) activeSession(ctx context.Context, token string) (Session, error) {
	if s.sessions == nil || s.credentials == nil {
		return Session{}, fmt.Errorf("auth repositories not configured")
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Session{}, ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, trimmed)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}

	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		return Session{}, ErrSessionRevoked
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(s.now()) {
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

func validateSignUp(email, password string) *ValidationError {
	vErr := &ValidationError{}
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		vErr.add("email", "Email inválido")
	}
	if len([]rune(password)) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("A senha deve ter pelo menos %d caracteres", MinPasswordLength))
	}
	return vErr
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
