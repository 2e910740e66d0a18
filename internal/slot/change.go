package slot

import "fmt"

// ChangeType names the row level event emitted by the backend.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ParseChangeType validates an event name received over the wire.
func ParseChangeType(value string) (ChangeType, error) {
	switch ChangeType(value) {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return ChangeType(value), nil
	}
	return "", fmt.Errorf("slot: unknown change type %q", value)
}

// Change is one notification about a slot row. New carries the row after
// inserts and updates; Old carries the removed row for deletes.
type Change struct {
	Type   ChangeType `json:"type"`
	Kind   string     `json:"kind"`
	YearID string     `json:"ano_id"`
	New    *Slot      `json:"new,omitempty"`
	Old    *Slot      `json:"old,omitempty"`
}

// InsertChange builds the event for a freshly inserted row.
func InsertChange(kind Kind, s Slot) Change {
	row := s.Clone()
	return Change{Type: ChangeInsert, Kind: kind.Name, YearID: s.YearID, New: &row}
}

// UpdateChange builds the event for an updated row.
func UpdateChange(kind Kind, s Slot) Change {
	row := s.Clone()
	return Change{Type: ChangeUpdate, Kind: kind.Name, YearID: s.YearID, New: &row}
}

// DeleteChange builds the event for a removed row.
func DeleteChange(kind Kind, s Slot) Change {
	row := s.Clone()
	return Change{Type: ChangeDelete, Kind: kind.Name, YearID: s.YearID, Old: &row}
}
