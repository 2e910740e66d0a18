package slot

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Collection mirrors the slots of exactly one year, ordered by numero. It is
// safe for concurrent use; the reconciler writes while presenters read.
type Collection struct {
	mu      sync.RWMutex
	yearID  string
	slots   []Slot
	version uint64
}

// NewCollection returns an empty mirror bound to yearID.
func NewCollection(yearID string) *Collection {
	return &Collection{yearID: yearID}
}

// YearID returns the year the mirror is bound to.
func (c *Collection) YearID() string {
	return c.yearID
}

// Replace swaps the whole mirror for the provided rows.
func (c *Collection) Replace(slots []Slot) {
	rows := make([]Slot, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, s.Clone())
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Numero < rows[j].Numero })

	c.mu.Lock()
	c.slots = rows
	c.version++
	c.mu.Unlock()
}

// Apply reconciles one change event. Events for other years are ignored and
// reported as not applied.
func (c *Collection) Apply(change Change) bool {
	if change.YearID != "" && change.YearID != c.yearID {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch change.Type {
	case ChangeInsert:
		if change.New == nil {
			return false
		}
		if idx := c.indexLocked(change.New.ID); idx >= 0 {
			c.replaceAtLocked(idx, change.New.Clone())
		} else {
			c.insertLocked(change.New.Clone())
		}
	case ChangeUpdate:
		if change.New == nil {
			return false
		}
		idx := c.indexLocked(change.New.ID)
		if idx < 0 {
			return false
		}
		c.replaceAtLocked(idx, change.New.Clone())
	case ChangeDelete:
		if change.Old == nil {
			return false
		}
		idx := c.indexLocked(change.Old.ID)
		if idx < 0 {
			return false
		}
		c.slots = append(c.slots[:idx], c.slots[idx+1:]...)
	default:
		return false
	}

	c.version++
	return true
}

// Find returns the slot holding numero.
func (c *Collection) Find(numero int) (Slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := sort.Search(len(c.slots), func(i int) bool { return c.slots[i].Numero >= numero })
	if idx < len(c.slots) && c.slots[idx].Numero == numero {
		return c.slots[idx].Clone(), true
	}
	return Slot{}, false
}

// NextAvailable returns the lowest numbered available slot.
func (c *Collection) NextAvailable() (Slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := NextAvailable(c.slots)
	if !ok {
		return Slot{}, false
	}
	return s.Clone(), true
}

// Snapshot returns a copy of the mirrored rows.
func (c *Collection) Snapshot() []Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Slot, 0, len(c.slots))
	for _, s := range c.slots {
		out = append(out, s.Clone())
	}
	return out
}

// Len returns the number of mirrored rows.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// Version increases every time the mirror changes.
func (c *Collection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Stats counts slots per status.
type Stats struct {
	Total     int `json:"total"`
	Used      int `json:"utilizados"`
	Available int `json:"disponiveis"`
	Blocked   int `json:"bloqueados"`
}

// Stats summarises the mirror.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CountStatuses(c.slots)
}

// CountStatuses summarises any list of slots.
func CountStatuses(slots []Slot) Stats {
	stats := Stats{Total: len(slots)}
	for _, s := range slots {
		switch s.Status {
		case StatusUsed:
			stats.Used++
		case StatusAvailable:
			stats.Available++
		case StatusBlocked:
			stats.Blocked++
		}
	}
	return stats
}

// Filter returns the slots whose numero contains query or whose description
// contains it case-insensitively. onlyAvailable drops every non-available slot.
func (c *Collection) Filter(query string, onlyAvailable bool) []Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query = strings.TrimSpace(query)
	lowered := strings.ToLower(query)
	out := make([]Slot, 0)
	for _, s := range c.slots {
		if query != "" {
			matchesNumero := strings.Contains(strconv.Itoa(s.Numero), query)
			matchesDescricao := s.Descricao != nil && strings.Contains(strings.ToLower(*s.Descricao), lowered)
			if !matchesNumero && !matchesDescricao {
				continue
			}
		}
		if onlyAvailable && s.Status != StatusAvailable {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

func (c *Collection) indexLocked(id string) int {
	for i := range c.slots {
		if c.slots[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection) insertLocked(s Slot) {
	idx := sort.Search(len(c.slots), func(i int) bool { return c.slots[i].Numero > s.Numero })
	c.slots = append(c.slots, Slot{})
	copy(c.slots[idx+1:], c.slots[idx:])
	c.slots[idx] = s
}

func (c *Collection) replaceAtLocked(idx int, s Slot) {
	if c.slots[idx].Numero == s.Numero {
		c.slots[idx] = s
		return
	}
	c.slots = append(c.slots[:idx], c.slots[idx+1:]...)
	c.insertLocked(s)
}
