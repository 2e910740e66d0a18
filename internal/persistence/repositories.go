package persistence

import (
	"context"
	"time"

	"github.com/example/oficios-registry/internal/slot"
)

// UserRepository stores staff accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// YearRepository stores the year rows of every kind.
type YearRepository interface {
	// ListYears returns the years of kind ordered by ano descending.
	ListYears(ctx context.Context, kind slot.Kind) ([]Year, error)
	GetYear(ctx context.Context, kind slot.Kind, id string) (Year, error)
	// ProvisionYear inserts the year row and all of its slots in one
	// transaction. Nothing is written when any insert fails.
	ProvisionYear(ctx context.Context, kind slot.Kind, year Year, slots []Slot) error
}

// SlotRepository stores the slot rows of every kind.
type SlotRepository interface {
	// ListSlots returns at most limit slots of yearID ordered by numero,
	// skipping the first offset rows.
	ListSlots(ctx context.Context, kind slot.Kind, yearID string, offset, limit int) ([]Slot, error)
	GetSlot(ctx context.Context, kind slot.Kind, id string) (Slot, error)
	UpdateSlot(ctx context.Context, kind slot.Kind, id string, update SlotUpdate) (Slot, error)
}
