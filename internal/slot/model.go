package slot

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a slot.
type Status string

const (
	StatusAvailable Status = "disponivel"
	StatusUsed      Status = "utilizado"
	StatusBlocked   Status = "bloqueado"
)

// ParseStatus accepts the stored Portuguese values as well as the English
// aliases used on the command line.
func ParseStatus(value string) (Status, error) {
	switch value {
	case string(StatusAvailable), "available":
		return StatusAvailable, nil
	case string(StatusUsed), "used":
		return StatusUsed, nil
	case string(StatusBlocked), "blocked":
		return StatusBlocked, nil
	}
	return "", ErrUnknownStatus
}

var (
	// ErrUnknownStatus is returned when a status value is outside every kind's set.
	ErrUnknownStatus = errors.New("slot: unknown status")
	// ErrBlocked is returned when a toggle targets a blocked slot.
	ErrBlocked = errors.New("slot: blocked slots cannot be toggled")
	// ErrInvalidTransition is returned for any other transition the toggle does not offer.
	ErrInvalidTransition = errors.New("slot: invalid transition")
)

// Year declares how many slots exist for one calendar year of a kind.
type Year struct {
	ID         string    `json:"id"`
	Ano        int       `json:"ano"`
	Quantidade int       `json:"quantidade_total"`
	Ativo      bool      `json:"ativo"`
	CreatedAt  time.Time `json:"created_at"`
}

// Slot is one allocatable number within a year.
type Slot struct {
	ID        string     `json:"id"`
	YearID    string     `json:"ano_id"`
	Numero    int        `json:"numero"`
	Status    Status     `json:"status"`
	Descricao *string    `json:"descricao"`
	MarkedAt  *time.Time `json:"marcado_em"`
	Usuario   *string    `json:"usuario"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the slot.
func (s Slot) Clone() Slot {
	clone := s
	clone.Descricao = cloneString(s.Descricao)
	clone.Usuario = cloneString(s.Usuario)
	if s.MarkedAt != nil {
		markedAt := *s.MarkedAt
		clone.MarkedAt = &markedAt
	}
	return clone
}

// Patch is the set of columns written by a status change. Nil pointers are
// written as NULL, never skipped.
type Patch struct {
	Status    Status     `json:"status"`
	Descricao *string    `json:"descricao"`
	MarkedAt  *time.Time `json:"marcado_em"`
	Usuario   *string    `json:"usuario"`
}

// NewPatch builds the write for a status change. The marked-at timestamp is
// set if and only if the new status is used, and so is the description.
func NewPatch(kind Kind, status Status, descricao, actor string, now time.Time) Patch {
	patch := Patch{Status: status}
	if status == StatusUsed {
		markedAt := now.UTC()
		patch.MarkedAt = &markedAt
		patch.Descricao = optionalString(descricao)
	}
	if kind.RecordsActor {
		patch.Usuario = optionalString(actor)
	}
	return patch
}

// ApplyPatch returns the slot with the patch columns overwritten.
func ApplyPatch(s Slot, patch Patch, updatedAt time.Time) Slot {
	out := s.Clone()
	out.Status = patch.Status
	out.Descricao = cloneString(patch.Descricao)
	out.Usuario = cloneString(patch.Usuario)
	out.MarkedAt = nil
	if patch.MarkedAt != nil {
		markedAt := *patch.MarkedAt
		out.MarkedAt = &markedAt
	}
	out.UpdatedAt = updatedAt
	return out
}

// ToggleTarget resolves the only two user-initiated transitions: available to
// used and used to available.
func ToggleTarget(kind Kind, current Status) (Status, error) {
	switch current {
	case StatusAvailable:
		return StatusUsed, nil
	case StatusUsed:
		return StatusAvailable, nil
	case StatusBlocked:
		if kind.AllowsBlocked {
			return "", ErrBlocked
		}
	}
	return "", ErrInvalidTransition
}

// NextAvailable returns the first available slot of a numero-ordered list.
func NextAvailable(slots []Slot) (Slot, bool) {
	for _, s := range slots {
		if s.Status == StatusAvailable {
			return s, true
		}
	}
	return Slot{}, false
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
