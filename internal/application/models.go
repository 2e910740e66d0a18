package application

import (
	"time"

	"github.com/example/oficios-registry/internal/slot"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Email  string
}

// User represents a staff account exposed by the application services.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// SignUpParams captures the data required to register a staff account.
type SignUpParams struct {
	Email    string
	Password string
}

// SignUpResult carries the new user and, when accounts are confirmed
// automatically, the session issued for it.
type SignUpResult struct {
	User    User
	Session *Session
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email    string
	Password string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

// ProvisionYearParams wraps the data required to create a year with its slots.
type ProvisionYearParams struct {
	Principal  Principal
	Kind       slot.Kind
	Ano        int
	Quantidade int
}

// ListSlotsParams selects an inclusive numero-ordered row range of a year.
type ListSlotsParams struct {
	Principal Principal
	Kind      slot.Kind
	YearID    string
	From      int
	To        int
}

// UpdateSlotParams wraps a status change for one slot.
type UpdateSlotParams struct {
	Principal Principal
	Kind      slot.Kind
	SlotID    string
	Patch     slot.Patch
}

// ExportParams selects the year to export.
type ExportParams struct {
	Principal Principal
	Kind      slot.Kind
	YearID    string
}

// Export is a rendered workbook.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}
