// Package backend declares the contract the staff client consumes: password
// authentication with a subscribable auth-state stream, row reads and writes
// over the year and slot tables, and realtime change feeds filtered by year.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/oficios-registry/internal/slot"
)

var (
	// ErrInvalidCredentials reports an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("backend: invalid login credentials")
	// ErrUserExists reports a sign-up for an email that is already registered.
	ErrUserExists = errors.New("backend: user already registered")
	// ErrNoSession reports a call that needs an authenticated session.
	ErrNoSession = errors.New("backend: no active session")
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("backend: not found")
	// ErrConflict reports a uniqueness violation such as a duplicate year.
	ErrConflict = errors.New("backend: conflict")
	// ErrInvalidInput reports a request the backend rejected as malformed.
	ErrInvalidInput = errors.New("backend: invalid input")
)

// Error carries the code and message returned by the backend together with
// the sentinel it maps to.
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
	Kind    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("backend: %s", e.Message)
	}
	return fmt.Sprintf("backend: status %d", e.Status)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// User is the identity attached to a session.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an authenticated credential.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

// Expired reports whether the session has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// SignUpResult is the outcome of a registration. Session is nil when the
// account needs an explicit sign-in before it can be used.
type SignUpResult struct {
	User    User     `json:"user"`
	Session *Session `json:"session,omitempty"`
}

// AuthEvent names an auth-state notification.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
)

// AuthListener receives every auth-state change. session is nil after a
// sign-out.
type AuthListener func(event AuthEvent, session *Session)

// Auth is the authentication half of the contract.
type Auth interface {
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (SignUpResult, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChange registers listener and returns the func that removes it.
	OnAuthStateChange(listener AuthListener) (unsubscribe func())
}

// Store reads and writes the year and slot tables of one kind.
type Store interface {
	ListYears(ctx context.Context, kind slot.Kind) ([]slot.Year, error)
	// ProvisionYear creates the year row and its numbered slots atomically.
	ProvisionYear(ctx context.Context, kind slot.Kind, ano, quantidade int) (slot.Year, error)
	// ListSlots returns the slots of yearID ordered by numero, restricted to
	// the inclusive row range [from, to].
	ListSlots(ctx context.Context, kind slot.Kind, yearID string, from, to int) ([]slot.Slot, error)
	UpdateSlot(ctx context.Context, kind slot.Kind, id string, patch slot.Patch) (slot.Slot, error)
}

// Subscription is a live change feed. Events is closed when the feed ends,
// either because Close was called or because the backend dropped it.
type Subscription interface {
	Events() <-chan slot.Change
	Close()
}

// Realtime opens change feeds for the slots of one year.
type Realtime interface {
	Subscribe(ctx context.Context, kind slot.Kind, yearID string) (Subscription, error)
}

// Workbook is a year rendered as a spreadsheet.
type Workbook struct {
	Filename string
	Data     []byte
}

// Exporter renders the slots of a year as a spreadsheet.
type Exporter interface {
	ExportYear(ctx context.Context, kind slot.Kind, yearID string) (Workbook, error)
}

// Client bundles every capability the staff client needs.
type Client interface {
	Auth
	Store
	Realtime
}
