package slot

import (
	"fmt"
	"sync"
	"testing"
)

func seedSlots(yearID string, n int) []Slot {
	slots := make([]Slot, 0, n)
	for i := n; i >= 1; i-- {
		slots = append(slots, Slot{ID: fmt.Sprintf("%s-%d", yearID, i), YearID: yearID, Numero: i, Status: StatusAvailable})
	}
	return slots
}

func numeros(slots []Slot) []int {
	out := make([]int, len(slots))
	for i, s := range slots {
		out[i] = s.Numero
	}
	return out
}

func TestCollectionReplaceOrdersByNumero(t *testing.T) {
	t.Parallel()

	c := NewCollection("y1")
	c.Replace(seedSlots("y1", 5))

	got := numeros(c.Snapshot())
	for i, n := range got {
		if n != i+1 {
			t.Fatalf("expected ascending numeros, got %v", got)
		}
	}
}

func TestCollectionApply(t *testing.T) {
	t.Parallel()

	t.Run("update replaces by id", func(t *testing.T) {
		c := NewCollection("y1")
		c.Replace(seedSlots("y1", 3))
		row, _ := c.Find(2)
		row.Status = StatusUsed
		row.Descricao = strPtr("outro cliente")

		if !c.Apply(UpdateChange(Oficios, row)) {
			t.Fatalf("expected update to apply")
		}
		got, ok := c.Find(2)
		if !ok || got.Status != StatusUsed || got.Descricao == nil || *got.Descricao != "outro cliente" {
			t.Fatalf("expected updated row, got %+v", got)
		}
		if c.Stats().Used != 1 {
			t.Fatalf("expected exactly one used slot, got %+v", c.Stats())
		}
	})

	t.Run("insert keeps numero order", func(t *testing.T) {
		c := NewCollection("y1")
		c.Replace([]Slot{{ID: "a", YearID: "y1", Numero: 1}, {ID: "c", YearID: "y1", Numero: 3}})
		c.Apply(InsertChange(Capas, Slot{ID: "b", YearID: "y1", Numero: 2, Status: StatusAvailable}))

		got := numeros(c.Snapshot())
		if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
			t.Fatalf("expected [1 2 3], got %v", got)
		}
	})

	t.Run("delete removes by id", func(t *testing.T) {
		c := NewCollection("y1")
		c.Replace(seedSlots("y1", 3))
		row, _ := c.Find(1)
		c.Apply(DeleteChange(Oficios, row))

		if _, ok := c.Find(1); ok {
			t.Fatalf("expected numero 1 to be removed")
		}
		if c.Len() != 2 {
			t.Fatalf("expected 2 rows, got %d", c.Len())
		}
	})

	t.Run("events for other years are ignored", func(t *testing.T) {
		c := NewCollection("y1")
		c.Replace(seedSlots("y1", 2))
		before := c.Version()

		if c.Apply(InsertChange(Oficios, Slot{ID: "z", YearID: "y2", Numero: 9})) {
			t.Fatalf("expected foreign event to be ignored")
		}
		if c.Len() != 2 || c.Version() != before {
			t.Fatalf("expected mirror to be unchanged")
		}
	})

	t.Run("update for unknown id is ignored", func(t *testing.T) {
		c := NewCollection("y1")
		c.Replace(seedSlots("y1", 1))
		if c.Apply(UpdateChange(Oficios, Slot{ID: "ghost", YearID: "y1", Numero: 1, Status: StatusUsed})) {
			t.Fatalf("expected unknown row to be ignored")
		}
	})
}

func TestCollectionFilterAndStats(t *testing.T) {
	t.Parallel()

	c := NewCollection("y1")
	c.Replace([]Slot{
		{ID: "1", YearID: "y1", Numero: 1, Status: StatusUsed, Descricao: strPtr("Memorando Saúde")},
		{ID: "2", YearID: "y1", Numero: 2, Status: StatusAvailable},
		{ID: "3", YearID: "y1", Numero: 12, Status: StatusBlocked},
		{ID: "4", YearID: "y1", Numero: 21, Status: StatusAvailable},
	})

	if got := numeros(c.Filter("saúde", false)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected description match on 1, got %v", got)
	}
	if got := numeros(c.Filter("2", false)); len(got) != 3 {
		t.Fatalf("expected numero substring matches [2 12 21], got %v", got)
	}
	if got := numeros(c.Filter("2", true)); len(got) != 2 || got[0] != 2 || got[1] != 21 {
		t.Fatalf("expected available matches [2 21], got %v", got)
	}

	stats := c.Stats()
	want := Stats{Total: 4, Used: 1, Available: 2, Blocked: 1}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}

	next, ok := c.NextAvailable()
	if !ok || next.Numero != 2 {
		t.Fatalf("expected next available 2, got %d", next.Numero)
	}
}

func TestCollectionConcurrentApply(t *testing.T) {
	t.Parallel()

	c := NewCollection("y1")
	c.Replace(seedSlots("y1", 100))

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			row, _ := c.Find(n)
			row.Status = StatusUsed
			c.Apply(UpdateChange(Oficios, row))
			_ = c.Snapshot()
		}(i)
	}
	wg.Wait()

	if stats := c.Stats(); stats.Used != 100 {
		t.Fatalf("expected all slots used, got %+v", stats)
	}
}

func TestInFlight(t *testing.T) {
	t.Parallel()

	g := NewInFlight()
	release, ok := g.Acquire(7)
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if _, ok := g.Acquire(7); ok {
		t.Fatalf("expected second acquire of the same key to fail")
	}
	releaseNext, ok := g.Acquire(NextKey)
	if !ok {
		t.Fatalf("expected a different key to proceed")
	}

	release()
	release()
	if g.Busy(7) {
		t.Fatalf("expected key to be released")
	}
	if _, ok := g.Acquire(7); !ok {
		t.Fatalf("expected key to be acquirable after release")
	}
	releaseNext()
}
