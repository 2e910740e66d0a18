package workspace

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/backend/local"
	"github.com/example/oficios-registry/internal/slot"
	"github.com/example/oficios-registry/internal/testfixtures"
)

// boundSlots provisions a year of kind with quantidade slots and binds a
// fresh collection to it.
func boundSlots(t *testing.T, client backend.Client, kind slot.Kind, ano, quantidade int) (*Slots, slot.Year) {
	t.Helper()

	ctx := context.Background()
	year, err := client.ProvisionYear(ctx, kind, ano, quantidade)
	if err != nil {
		t.Fatalf("ProvisionYear failed: %v", err)
	}
	slots := NewSlots(kind, client, client, func() string { return "servidor@example.com" }, nil, nil)
	if err := slots.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	t.Cleanup(slots.Close)
	return slots, year
}

// recordingFeed keeps every subscription it opens so tests can end them,
// and fails the next failures attempts.
type recordingFeed struct {
	backend.Realtime

	mu       sync.Mutex
	subs     []backend.Subscription
	attempts int
	failures int
}

func (f *recordingFeed) Subscribe(ctx context.Context, kind slot.Kind, yearID string) (backend.Subscription, error) {
	f.mu.Lock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("feed unavailable")
	}
	f.mu.Unlock()

	sub, err := f.Realtime.Subscribe(ctx, kind, yearID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *recordingFeed) last() backend.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func (f *recordingFeed) counts() (attempts, opened int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, len(f.subs)
}

func (f *recordingFeed) failNext(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

func numeros(rows []slot.Slot) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.Numero
	}
	return out
}

func TestSlotsCreatedYearHasEveryNumberAvailable(t *testing.T) {
	t.Parallel()

	app := openApp(t)
	slots, _ := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.Oficios, 2025, 25)

	rows := slots.Snapshot()
	if len(rows) != 25 {
		t.Fatalf("expected 25 slots, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Numero != i+1 || row.Status != slot.StatusAvailable || row.Descricao != nil || row.MarkedAt != nil {
			t.Fatalf("unexpected slot at position %d: %+v", i, row)
		}
	}
	if stats := slots.Stats(); stats != (slot.Stats{Total: 25, Available: 25}) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSlotsScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	slots, _ := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.Oficios, 2025, 3)

	if got := numeros(slots.Snapshot()); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("expected slots 1,2,3, got %v", got)
	}

	numero, ok, err := slots.AllocateNext(ctx, "test")
	if err != nil || !ok || numero != 1 {
		t.Fatalf("first AllocateNext returned %d, %v, %v", numero, ok, err)
	}
	first, _ := slots.Find(1)
	if first.Status != slot.StatusUsed || first.Descricao == nil || *first.Descricao != "test" || first.MarkedAt == nil {
		t.Fatalf("unexpected slot 1 after allocation: %+v", first)
	}

	if numero, ok, err = slots.AllocateNext(ctx, ""); err != nil || !ok || numero != 2 {
		t.Fatalf("second AllocateNext returned %d, %v, %v", numero, ok, err)
	}
	second, _ := slots.Find(2)
	if second.Descricao != nil || second.MarkedAt == nil {
		t.Fatalf("expected slot 2 to be used without description, got %+v", second)
	}

	status, err := slots.Toggle(ctx, 1, "ignored")
	if err != nil || status != slot.StatusAvailable {
		t.Fatalf("Toggle returned %q, %v", status, err)
	}
	first, _ = slots.Find(1)
	if first.Status != slot.StatusAvailable || first.Descricao != nil || first.MarkedAt != nil {
		t.Fatalf("expected slot 1 to be cleared, got %+v", first)
	}

	if numero, ok, err = slots.AllocateNext(ctx, ""); err != nil || !ok || numero != 1 {
		t.Fatalf("third AllocateNext returned %d, %v, %v", numero, ok, err)
	}
}

func TestSlotsAllocateNextChangesOnlyTheChosenSlot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	slots, _ := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.OficiosCirculares, 2025, 6)

	for _, numero := range []int{1, 2, 4} {
		if err := slots.SetStatus(ctx, numero, slot.StatusUsed, "prévio"); err != nil {
			t.Fatalf("SetStatus(%d) failed: %v", numero, err)
		}
	}

	before := slots.Snapshot()
	numero, ok, err := slots.AllocateNext(ctx, "novo")
	if err != nil || !ok || numero != 3 {
		t.Fatalf("expected slot 3, got %d, %v, %v", numero, ok, err)
	}

	after := slots.Snapshot()
	for i := range before {
		if before[i].Numero == 3 {
			if after[i].Status != slot.StatusUsed {
				t.Fatalf("expected slot 3 to be used, got %+v", after[i])
			}
			continue
		}
		if !reflect.DeepEqual(before[i], after[i]) {
			t.Fatalf("slot %d changed: %+v -> %+v", before[i].Numero, before[i], after[i])
		}
	}
}

func TestSlotsAllocateNextExhausted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	slots, _ := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.Capas, 2025, 1)

	if _, ok, err := slots.AllocateNext(ctx, ""); err != nil || !ok {
		t.Fatalf("AllocateNext returned %v, %v", ok, err)
	}
	numero, ok, err := slots.AllocateNext(ctx, "")
	if err != nil || ok || numero != 0 {
		t.Fatalf("expected an exhausted year to report none without error, got %d, %v, %v", numero, ok, err)
	}

	unbound := NewSlots(slot.Capas, nil, nil, nil, nil, nil)
	if _, ok, err := unbound.AllocateNext(ctx, ""); ok || err != nil {
		t.Fatalf("expected an unbound collection to report none, got %v, %v", ok, err)
	}
}

func TestSlotsTransitionsClearAndSetFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	slots, _ := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.Oficios, 2025, 2)

	if err := slots.SetStatus(ctx, 1, slot.StatusUsed, "memorando 12"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	used, _ := slots.Find(1)
	if used.MarkedAt == nil || used.Descricao == nil || *used.Descricao != "memorando 12" {
		t.Fatalf("expected timestamp and description, got %+v", used)
	}

	if err := slots.SetStatus(ctx, 1, slot.StatusAvailable, "should be dropped"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	cleared, _ := slots.Find(1)
	if cleared.MarkedAt != nil || cleared.Descricao != nil {
		t.Fatalf("expected timestamp and description to be cleared, got %+v", cleared)
	}
}

func TestSlotsToggleRejectsBlocked(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := &instrumentedClient{Client: signedInClient(t, app, "servidor@example.com")}
	slots, _ := boundSlots(t, client, slot.Oficios, 2025, 3)

	// Blocked is only ever set outside the toggle.
	if err := slots.SetStatus(ctx, 2, slot.StatusBlocked, ""); err != nil {
		t.Fatalf("SetStatus(blocked) failed: %v", err)
	}
	before, _ := slots.Find(2)
	if before.Status != slot.StatusBlocked {
		t.Fatalf("expected slot 2 to be blocked, got %+v", before)
	}
	_, _, updatesBefore := client.counts()

	if _, err := slots.Toggle(ctx, 2, "tentativa"); !errors.Is(err, slot.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}

	after, _ := slots.Find(2)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("blocked slot changed: %+v -> %+v", before, after)
	}
	if _, _, updatesAfter := client.counts(); updatesAfter != updatesBefore {
		t.Fatalf("expected no write for a blocked slot")
	}

	if _, err := slots.Toggle(ctx, 99, ""); !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("expected ErrUnknownSlot, got %v", err)
	}
	unbound := NewSlots(slot.Oficios, client, client, nil, nil, nil)
	if _, err := unbound.Toggle(ctx, 1, ""); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestSlotsRejectsConcurrentMutationOfTheSameNumero(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := &instrumentedClient{Client: signedInClient(t, app, "servidor@example.com")}
	slots, _ := boundSlots(t, client, slot.Oficios, 2025, 3)

	gate := make(chan struct{})
	client.set(func(c *instrumentedClient) { c.updateGate = gate })

	type outcome struct {
		status slot.Status
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		status, err := slots.Toggle(ctx, 1, "")
		done <- outcome{status, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !slots.Busy(1) {
		if time.Now().After(deadline) {
			t.Fatalf("toggle never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := slots.Toggle(ctx, 1, ""); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for a second toggle of the same numero, got %v", err)
	}
	if slots.Busy(2) || slots.Busy(slot.NextKey) {
		t.Fatalf("expected other keys to stay free")
	}

	close(gate)
	result := <-done
	if result.err != nil || result.status != slot.StatusUsed {
		t.Fatalf("first toggle returned %q, %v", result.status, result.err)
	}
	if slots.Busy(1) {
		t.Fatalf("expected the key to be released")
	}
}

func TestSlotsWriteErrorsPropagate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := &instrumentedClient{Client: signedInClient(t, app, "servidor@example.com")}
	slots, _ := boundSlots(t, client, slot.Capas, 2025, 2)

	failure := errors.New("write rejected")
	client.set(func(c *instrumentedClient) { c.updateErr = failure })

	if err := slots.SetStatus(ctx, 1, slot.StatusUsed, "x"); !errors.Is(err, failure) {
		t.Fatalf("expected the write error, got %v", err)
	}
	if _, ok, err := slots.AllocateNext(ctx, ""); ok || !errors.Is(err, failure) {
		t.Fatalf("expected AllocateNext to surface the write error, got %v, %v", ok, err)
	}
	if row, _ := slots.Find(1); row.Status != slot.StatusAvailable {
		t.Fatalf("expected the mirror to be unchanged, got %+v", row)
	}

	_, _, updates := client.counts()
	if err := slots.SetStatus(ctx, 42, slot.StatusUsed, ""); err != nil {
		t.Fatalf("expected an unknown numero to be a no-op, got %v", err)
	}
	if _, _, after := client.counts(); after != updates {
		t.Fatalf("expected no write for an unknown numero")
	}
}

func TestSlotsPagedLoad(t *testing.T) {
	t.Parallel()

	app := openApp(t)
	client := &instrumentedClient{Client: signedInClient(t, app, "servidor@example.com")}
	slots, _ := boundSlots(t, client, slot.Oficios, 2025, 2500)

	if slots.Loading() {
		t.Fatalf("expected loading to be over once Bind returns")
	}
	rows := slots.Snapshot()
	if len(rows) != 2500 {
		t.Fatalf("expected 2500 slots, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Numero != i+1 {
			t.Fatalf("expected numero %d at position %d, got %d", i+1, i, row.Numero)
		}
	}
	if _, pages, _ := client.counts(); pages != 3 {
		t.Fatalf("expected three page reads, got %d", pages)
	}
}

func TestSlotsLoadFailureKeepsMirror(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := &instrumentedClient{Client: signedInClient(t, app, "servidor@example.com")}
	slots, year := boundSlots(t, client, slot.Oficios, 2025, 4)

	client.set(func(c *instrumentedClient) { c.listSlotsErr = errors.New("timeout") })
	slots.Reload(ctx)
	if len(slots.Snapshot()) != 4 {
		t.Fatalf("expected the previous mirror to survive a failed reload")
	}

	if err := slots.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if len(slots.Snapshot()) != 0 || slots.YearID() != year.ID {
		t.Fatalf("expected a failed initial load to leave an empty mirror bound to the year")
	}
}

func TestSlotsReconcilePushedChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	mine, year := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.Oficios, 2025, 5)

	other := signedInClient(t, app, "outro@example.com")
	theirs := NewSlots(slot.Oficios, other, other, func() string { return "outro@example.com" }, nil, nil)
	if err := theirs.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer theirs.Close()

	if _, ok, err := theirs.AllocateNext(ctx, "do outro"); err != nil || !ok {
		t.Fatalf("AllocateNext returned %v, %v", ok, err)
	}

	waitFor(t, mine, "the pushed update", func() bool {
		row, _ := mine.Find(1)
		return row.Status == slot.StatusUsed
	})
	row, _ := mine.Find(1)
	if row.Usuario == nil || *row.Usuario != "outro@example.com" || row.Descricao == nil || *row.Descricao != "do outro" {
		t.Fatalf("expected the other client's write to be mirrored, got %+v", row)
	}

	numero, ok, err := mine.AllocateNext(ctx, "")
	if err != nil || !ok || numero != 2 {
		t.Fatalf("expected the next allocation to skip the pushed slot, got %d, %v, %v", numero, ok, err)
	}

	if err := mine.Bind(ctx, ""); err != nil {
		t.Fatalf("Bind(\"\") failed: %v", err)
	}
	if mine.YearID() != "" || mine.Snapshot() != nil {
		t.Fatalf("expected an empty year id to unbind")
	}
	if app.Broker.Subscribers(slot.Oficios, year.ID) != 1 {
		t.Fatalf("expected only the other subscription to remain")
	}
}

func TestSlotsFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	slots, _ := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.Oficios, 2025, 12)

	if err := slots.SetStatus(ctx, 3, slot.StatusUsed, "Memorando Interno"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	if got := numeros(slots.Filter("memorando", false)); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("expected description match on 3, got %v", got)
	}
	if got := numeros(slots.Filter("1", false)); !reflect.DeepEqual(got, []int{1, 10, 11, 12}) {
		t.Fatalf("expected numero matches, got %v", got)
	}
	if got := slots.Filter("", true); len(got) != 11 {
		t.Fatalf("expected 11 available slots, got %d", len(got))
	}
}

func TestSlotsResumeEndedFeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := signedInClient(t, app, "servidor@example.com")
	year, err := client.ProvisionYear(ctx, slot.Oficios, 2025, 5)
	if err != nil {
		t.Fatalf("ProvisionYear failed: %v", err)
	}

	feed := &recordingFeed{Realtime: client}
	mine := NewSlots(slot.Oficios, client, feed, func() string { return "servidor@example.com" }, nil, nil)
	mine.resumeDelay = 5 * time.Millisecond
	if err := mine.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer mine.Close()

	other := signedInClient(t, app, "outro@example.com")
	theirs := NewSlots(slot.Oficios, other, other, func() string { return "outro@example.com" }, nil, nil)
	if err := theirs.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer theirs.Close()

	feed.failNext(2)
	feed.last().Close()
	if _, ok, err := theirs.AllocateNext(ctx, "outro cliente"); err != nil || !ok {
		t.Fatalf("AllocateNext returned %v, %v", ok, err)
	}

	waitFor(t, mine, "the missed write to be reloaded", func() bool {
		row, _ := mine.Find(1)
		return row.Status == slot.StatusUsed
	})
	row, _ := mine.Find(1)
	if row.Descricao == nil || *row.Descricao != "outro cliente" {
		t.Fatalf("expected the other client's description, got %+v", row)
	}
	if mine.YearID() != year.ID {
		t.Fatalf("expected the year to stay bound, got %q", mine.YearID())
	}
	if attempts, opened := feed.counts(); attempts != 4 || opened != 2 {
		t.Fatalf("expected 2 failed attempts before resubscribing, got %d attempts and %d feeds", attempts, opened)
	}
	waitFor(t, mine, "the new feed", func() bool {
		return app.Broker.Subscribers(slot.Oficios, year.ID) == 2
	})

	numero, ok, err := mine.AllocateNext(ctx, "meu")
	if err != nil || !ok || numero != 2 {
		t.Fatalf("expected the allocation to skip slot 1, got %d, %v, %v", numero, ok, err)
	}
	if row, _ := mine.Find(1); *row.Descricao != "outro cliente" {
		t.Fatalf("expected slot 1 to keep the other client's description, got %+v", row)
	}

	if _, err := theirs.Toggle(ctx, 4, "pelo feed"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	waitFor(t, mine, "the pushed update on the resumed feed", func() bool {
		row, _ := mine.Find(4)
		return row.Status == slot.StatusUsed
	})
}

func TestSlotsResumeStopsAfterUnbind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := signedInClient(t, app, "servidor@example.com")
	year, err := client.ProvisionYear(ctx, slot.Capas, 2025, 3)
	if err != nil {
		t.Fatalf("ProvisionYear failed: %v", err)
	}

	feed := &recordingFeed{Realtime: client}
	slots := NewSlots(slot.Capas, client, feed, nil, nil, nil)
	slots.resumeDelay = 20 * time.Millisecond
	if err := slots.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	feed.failNext(1000)
	feed.last().Close()
	waitFor(t, slots, "a resubscribe attempt", func() bool {
		attempts, _ := feed.counts()
		return attempts >= 2
	})
	slots.Unbind()

	time.Sleep(100 * time.Millisecond)
	before, _ := feed.counts()
	time.Sleep(100 * time.Millisecond)
	after, opened := feed.counts()
	if after != before || opened != 1 {
		t.Fatalf("expected retries to stop after Unbind, got %d then %d attempts, %d feeds", before, after, opened)
	}
	if app.Broker.Subscribers(slot.Capas, year.ID) != 0 {
		t.Fatalf("expected no subscription to remain")
	}
}

func TestSlotsMarkAndUnmarkOnlyFromTheOppositeStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	slots, _ := boundSlots(t, signedInClient(t, app, "servidor@example.com"), slot.Oficios, 2025, 2)

	if err := slots.Mark(ctx, 1, "original"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	first, _ := slots.Find(1)

	if err := slots.Mark(ctx, 1, "sobrescrito"); !errors.Is(err, slot.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := slots.Unmark(ctx, 2); !errors.Is(err, slot.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if again, _ := slots.Find(1); !reflect.DeepEqual(again, first) {
		t.Fatalf("expected slot 1 to be untouched, got %+v want %+v", again, first)
	}

	if err := slots.Unmark(ctx, 1); err != nil {
		t.Fatalf("Unmark failed: %v", err)
	}
	if row, _ := slots.Find(1); row.Status != slot.StatusAvailable || row.Descricao != nil {
		t.Fatalf("expected slot 1 to be available again, got %+v", row)
	}
	if err := slots.Mark(ctx, 7, ""); !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("expected ErrUnknownSlot, got %v", err)
	}
}

func TestSlotsTimestampsFollowTheClock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := testfixtures.NewClock(time.Time{})
	app := testfixtures.App(t,
		testfixtures.WithClock(clock),
		testfixtures.WithIDs(testfixtures.NewSequence("linha"), testfixtures.NewSequence("token")),
	)
	client := local.New(app, local.WithClock(clock.NowFunc()))
	if _, err := client.SignUp(ctx, "servidor@example.com", testPassword, ""); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	year, err := client.ProvisionYear(ctx, slot.Oficios, 2025, 3)
	if err != nil {
		t.Fatalf("ProvisionYear failed: %v", err)
	}
	if !strings.HasPrefix(year.ID, "linha-") || !year.CreatedAt.Equal(testfixtures.ReferenceTime()) {
		t.Fatalf("expected a sequenced id created at the reference time, got %+v", year)
	}

	slots := NewSlots(slot.Oficios, client, client, func() string { return "servidor@example.com" }, clock.NowFunc(), nil)
	if err := slots.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer slots.Close()
	for _, row := range slots.Snapshot() {
		if !strings.HasPrefix(row.ID, "linha-") || !row.CreatedAt.Equal(testfixtures.ReferenceTime()) {
			t.Fatalf("unexpected provisioned slot %+v", row)
		}
	}

	marked := clock.Advance(2 * time.Hour)
	if err := slots.Mark(ctx, 1, "portaria"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	first, _ := slots.Find(1)
	if first.MarkedAt == nil || !first.MarkedAt.Equal(marked) || !first.UpdatedAt.Equal(marked) {
		t.Fatalf("expected slot 1 marked and updated at %v, got %+v", marked, first)
	}

	allocated := clock.Advance(30 * time.Minute)
	if numero, ok, err := slots.AllocateNext(ctx, ""); err != nil || !ok || numero != 2 {
		t.Fatalf("AllocateNext returned %d, %v, %v", numero, ok, err)
	}
	second, _ := slots.Find(2)
	if second.MarkedAt == nil || !second.MarkedAt.Equal(allocated) {
		t.Fatalf("expected slot 2 marked at %v, got %+v", allocated, second)
	}
	if first, _ := slots.Find(1); !first.MarkedAt.Equal(marked) {
		t.Fatalf("expected slot 1 to keep its timestamp, got %v", first.MarkedAt)
	}
}
