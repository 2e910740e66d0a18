package persistence

import "time"

// User represents a staff account allowed to sign in.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// Year is a row of one of the year tables. Quantidade is the stored
// quantidade_total for kinds that track it and the slot count otherwise.
type Year struct {
	ID         string
	Ano        int
	Quantidade int
	Ativo      bool
	CreatedAt  time.Time
}

// Slot is a row of one of the slot tables. Usuario is always nil for kinds
// without the column.
type Slot struct {
	ID        string
	YearID    string
	Numero    int
	Status    string
	Descricao *string
	MarkedAt  *time.Time
	Usuario   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotUpdate is the full set of mutable slot columns. Nil pointers are
// written as NULL.
type SlotUpdate struct {
	Status    string
	Descricao *string
	MarkedAt  *time.Time
	Usuario   *string
	UpdatedAt time.Time
}
