// Package slot holds the numbering domain shared by the backend service and
// the staff client: the three slot kinds, their status sets, the transition
// and allocation rules, and the in-memory mirror of a year's slots.
package slot

import "strings"

// Kind describes one family of numbered documents. The three families share
// every rule; they differ only in table names, column names and whether the
// blocked status exists.
type Kind struct {
	// Name is the stable identifier used in URLs, CLI arguments and events.
	Name string
	// Label is the human readable, plural name of the document family.
	Label string
	// YearTable and SlotTable name the backing tables.
	YearTable string
	SlotTable string
	// MarkedAtColumn names the nullable timestamp set when a slot is used.
	MarkedAtColumn string
	// TracksQuantity is true when the year table stores quantidade_total
	// rather than the ativo flag.
	TracksQuantity bool
	// AllowsBlocked reports whether bloqueado is part of the status set.
	AllowsBlocked bool
	// RecordsActor reports whether the slot table has the usuario column.
	RecordsActor bool
}

var (
	// Oficios are the regular numbered letters.
	Oficios = Kind{
		Name:           "oficios",
		Label:          "Ofícios",
		YearTable:      "anos",
		SlotTable:      "oficios",
		MarkedAtColumn: "marcado_em",
		AllowsBlocked:  true,
		RecordsActor:   true,
	}
	// Capas are process cover sheets. They have no blocked state.
	Capas = Kind{
		Name:           "capas",
		Label:          "Capas de Processo",
		YearTable:      "anos_capas",
		SlotTable:      "capas",
		MarkedAtColumn: "data_utilizacao",
		TracksQuantity: true,
	}
	// OficiosCirculares are circular letters.
	OficiosCirculares = Kind{
		Name:           "oficios-circulares",
		Label:          "Ofícios Circulares",
		YearTable:      "anos_oficios_circulares",
		SlotTable:      "oficios_circulares",
		MarkedAtColumn: "marcado_em",
		TracksQuantity: true,
		AllowsBlocked:  true,
		RecordsActor:   true,
	}
)

// Kinds returns every supported kind in display order.
func Kinds() []Kind {
	return []Kind{Oficios, Capas, OficiosCirculares}
}

// KindByName resolves a kind from its name. Underscores are accepted in place
// of hyphens so table-style names resolve too.
func KindByName(name string) (Kind, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for _, kind := range Kinds() {
		if kind.Name == normalized {
			return kind, true
		}
	}
	return Kind{}, false
}

// Statuses lists the closed status set for the kind.
func (k Kind) Statuses() []Status {
	if k.AllowsBlocked {
		return []Status{StatusAvailable, StatusUsed, StatusBlocked}
	}
	return []Status{StatusAvailable, StatusUsed}
}

// Allows reports whether status belongs to the kind's status set.
func (k Kind) Allows(status Status) bool {
	for _, candidate := range k.Statuses() {
		if candidate == status {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	return k.Name
}
