// Package local implements the backend contract in process, calling the
// application services directly and subscribing to the realtime broker. It
// backs the staff client when it runs against a local SQLite file.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/oficios-registry/internal/application"
	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/credentials"
	"github.com/example/oficios-registry/internal/realtime"
	"github.com/example/oficios-registry/internal/server"
	"github.com/example/oficios-registry/internal/slot"
)

type authService interface {
	SignUp(ctx context.Context, params application.SignUpParams) (application.SignUpResult, error)
	Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error)
	GetSession(ctx context.Context, token string) (application.AuthenticateResult, error)
	RevokeSession(ctx context.Context, token string) error
}

type yearService interface {
	ListYears(ctx context.Context, principal application.Principal, kind slot.Kind) ([]slot.Year, error)
	ProvisionYear(ctx context.Context, params application.ProvisionYearParams) (slot.Year, error)
}

type slotService interface {
	ListSlots(ctx context.Context, params application.ListSlotsParams) ([]slot.Slot, error)
	UpdateSlot(ctx context.Context, params application.UpdateSlotParams) (slot.Slot, error)
	Export(ctx context.Context, params application.ExportParams) (application.Export, error)
}

type changeBroker interface {
	Subscribe(kind slot.Kind, yearID string) *realtime.Subscription
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials persists the session to file so it survives restarts.
func WithCredentials(file *credentials.File) Option {
	return func(c *Client) {
		c.creds = file
	}
}

// WithLogger sets the logger used for credential file failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used to expire sessions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is the in-process backend.Client.
type Client struct {
	auth    authService
	years   yearService
	slots   slotService
	broker  changeBroker
	creds   *credentials.File
	logger  *slog.Logger
	now     func() time.Time
	state   *backend.SessionState
}

var (
	_ backend.Client   = (*Client)(nil)
	_ backend.Exporter = (*Client)(nil)
)

// New returns a client over the services of app.
func New(app *server.App, opts ...Option) *Client {
	c := &Client{
		auth:   app.Auth,
		years:  app.Years,
		slots:  app.Slots,
		broker: app.Broker,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = backend.NewSessionState(c.creds, c.logger, c.now)
	return c
}

// GetSession returns the active session or nil when signed out. A stored
// session that the service no longer accepts is discarded.
func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	current := c.state.Current()
	if current == nil {
		return nil, nil
	}

	result, err := c.auth.GetSession(ctx, current.AccessToken)
	if err != nil {
		mapped := mapError(err, false)
		if errors.Is(mapped, backend.ErrNoSession) {
			c.state.Forget(ctx)
			return nil, nil
		}
		return nil, mapped
	}

	session := toSession(result.User, result.Session)
	return &session, nil
}

// SignInWithPassword authenticates and makes the returned session current.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	result, err := c.auth.Authenticate(ctx, application.AuthenticateParams{Email: email, Password: password})
	if err != nil {
		return nil, mapError(err, false)
	}

	session := toSession(result.User, result.Session)
	c.state.Remember(ctx, &session)
	return &session, nil
}

// SignUp registers an account. The session, when issued, becomes current.
// redirectTo is accepted for parity with the remote backend and ignored.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (backend.SignUpResult, error) {
	_ = redirectTo

	result, err := c.auth.SignUp(ctx, application.SignUpParams{Email: email, Password: password})
	if err != nil {
		return backend.SignUpResult{}, mapError(err, true)
	}

	out := backend.SignUpResult{User: toUser(result.User)}
	if result.Session != nil {
		session := toSession(result.User, *result.Session)
		out.Session = &session
		c.state.Remember(ctx, &session)
	}
	return out, nil
}

// SignOut revokes the current session. Signing out without a session is a
// no-op.
func (c *Client) SignOut(ctx context.Context) error {
	current := c.state.Current()
	if current == nil {
		return nil
	}

	if err := c.auth.RevokeSession(ctx, current.AccessToken); err != nil {
		mapped := mapError(err, false)
		if !errors.Is(mapped, backend.ErrNoSession) && !errors.Is(mapped, backend.ErrInvalidCredentials) {
			return mapped
		}
	}

	c.state.Forget(ctx)
	return nil
}

// OnAuthStateChange registers listener. It is called at once with
// INITIAL_SESSION and the current session, then on every change.
func (c *Client) OnAuthStateChange(listener backend.AuthListener) func() {
	return c.state.Subscribe(listener)
}

// ListYears returns the years of kind, newest first.
func (c *Client) ListYears(ctx context.Context, kind slot.Kind) ([]slot.Year, error) {
	principal, err := c.principal(ctx)
	if err != nil {
		return nil, err
	}
	years, err := c.years.ListYears(ctx, principal, kind)
	if err != nil {
		return nil, mapError(err, false)
	}
	return years, nil
}

// ProvisionYear creates a year with its slots in one transaction.
func (c *Client) ProvisionYear(ctx context.Context, kind slot.Kind, ano, quantidade int) (slot.Year, error) {
	principal, err := c.principal(ctx)
	if err != nil {
		return slot.Year{}, err
	}
	year, err := c.years.ProvisionYear(ctx, application.ProvisionYearParams{
		Principal:  principal,
		Kind:       kind,
		Ano:        ano,
		Quantidade: quantidade,
	})
	if err != nil {
		return slot.Year{}, mapError(err, false)
	}
	return year, nil
}

// ListSlots returns rows from..to of yearID ordered by numero.
func (c *Client) ListSlots(ctx context.Context, kind slot.Kind, yearID string, from, to int) ([]slot.Slot, error) {
	principal, err := c.principal(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := c.slots.ListSlots(ctx, application.ListSlotsParams{
		Principal: principal,
		Kind:      kind,
		YearID:    yearID,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, mapError(err, false)
	}
	return slots, nil
}

// UpdateSlot writes patch to the slot id and returns the stored row.
func (c *Client) UpdateSlot(ctx context.Context, kind slot.Kind, id string, patch slot.Patch) (slot.Slot, error) {
	principal, err := c.principal(ctx)
	if err != nil {
		return slot.Slot{}, err
	}
	updated, err := c.slots.UpdateSlot(ctx, application.UpdateSlotParams{
		Principal: principal,
		Kind:      kind,
		SlotID:    id,
		Patch:     patch,
	})
	if err != nil {
		return slot.Slot{}, mapError(err, false)
	}
	return updated, nil
}

// ExportYear renders the slots of yearID as a workbook.
func (c *Client) ExportYear(ctx context.Context, kind slot.Kind, yearID string) (backend.Workbook, error) {
	principal, err := c.principal(ctx)
	if err != nil {
		return backend.Workbook{}, err
	}
	export, err := c.slots.Export(ctx, application.ExportParams{Principal: principal, Kind: kind, YearID: yearID})
	if err != nil {
		return backend.Workbook{}, mapError(err, false)
	}
	return backend.Workbook{Filename: export.Filename, Data: export.Data}, nil
}

// Subscribe opens the change feed for the slots of yearID.
func (c *Client) Subscribe(ctx context.Context, kind slot.Kind, yearID string) (backend.Subscription, error) {
	if _, err := c.principal(ctx); err != nil {
		return nil, err
	}
	if yearID == "" {
		return nil, &backend.Error{Status: http.StatusBadRequest, Code: "validation_failed", Message: "ano_id obrigatório", Kind: backend.ErrInvalidInput}
	}
	return c.broker.Subscribe(kind, yearID), nil
}

// principal validates the current session against the service, the same
// check the HTTP surface performs on every request. A rejected session is
// forgotten so listeners see the sign-out.
func (c *Client) principal(ctx context.Context) (application.Principal, error) {
	current := c.state.Current()
	if current == nil {
		return application.Principal{}, noSession()
	}
	result, err := c.auth.GetSession(ctx, current.AccessToken)
	if err != nil {
		mapped := mapError(err, false)
		if errors.Is(mapped, backend.ErrNoSession) {
			c.state.Forget(ctx)
		}
		return application.Principal{}, mapped
	}
	return application.Principal{UserID: result.User.ID, Email: result.User.Email}, nil
}

func toUser(user application.User) backend.User {
	return backend.User{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}
}

func toSession(user application.User, session application.Session) backend.Session {
	return backend.Session{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        toUser(user),
	}
}

func noSession() error {
	return &backend.Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Sessão inválida. Faça login novamente.", Kind: backend.ErrNoSession}
}

// mapError translates service errors into the backend taxonomy. signUp
// selects the user-exists reading of a uniqueness violation.
func mapError(err error, signUp bool) error {
	if err == nil {
		return nil
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		fields := make(map[string]string, len(vErr.FieldErrors))
		for field, msg := range vErr.FieldErrors {
			fields[field] = msg
		}
		return &backend.Error{Status: http.StatusUnprocessableEntity, Code: "validation_failed", Message: "Dados inválidos", Fields: fields, Kind: backend.ErrInvalidInput}
	case errors.Is(err, application.ErrInvalidCredentials):
		return &backend.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials", Kind: backend.ErrInvalidCredentials}
	case errors.Is(err, application.ErrUnauthorized),
		errors.Is(err, application.ErrSessionExpired),
		errors.Is(err, application.ErrSessionRevoked):
		return noSession()
	case errors.Is(err, application.ErrAlreadyExists):
		if signUp {
			return &backend.Error{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered", Kind: backend.ErrUserExists}
		}
		return &backend.Error{Status: http.StatusConflict, Code: "conflict", Message: "Registro já existe", Kind: backend.ErrConflict}
	case errors.Is(err, application.ErrNotFound):
		return &backend.Error{Status: http.StatusNotFound, Code: "not_found", Message: "Registro não encontrado", Kind: backend.ErrNotFound}
	}
	return fmt.Errorf("local backend: %w", err)
}
