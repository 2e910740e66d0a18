package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/slot"
)

var (
	// ErrBusy is returned while a mutation for the same numero, or for the
	// next available slot, is still running.
	ErrBusy = errors.New("workspace: mutation already in progress")
	// ErrNotBound is returned by toggles issued before a year is bound.
	ErrNotBound = errors.New("workspace: no year selected")
	// ErrUnknownSlot is returned by toggles for a numero outside the year.
	ErrUnknownSlot = errors.New("workspace: slot not found")
)

const maxResumeDelay = 5 * time.Second

// binding is the state tied to one bound year. A resumed feed gets a new
// binding sharing the mirror.
type binding struct {
	mirror *slot.Collection
	sub    backend.Subscription
	done   chan struct{}
}

// Slots mirrors the slots of the bound year of one kind and applies status
// changes to them. Pushed changes are reconciled by a single goroutine per
// binding.
type Slots struct {
	kind     slot.Kind
	store    backend.Store
	feed     backend.Realtime
	actor    func() string
	now      func() time.Time
	logger   *slog.Logger
	inflight *slot.InFlight
	changes  chan struct{}

	resumeDelay time.Duration

	mu      sync.RWMutex
	current *binding
	loading bool
}

// NewSlots returns an unbound collection. actor names the user recorded on
// writes for kinds that keep it.
func NewSlots(kind slot.Kind, store backend.Store, feed backend.Realtime, actor func() string, now func() time.Time, logger *slog.Logger) *Slots {
	if actor == nil {
		actor = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &Slots{
		kind:     kind,
		store:    store,
		feed:     feed,
		actor:    actor,
		now:      now,
		logger:   logging.Or(logger).With("component", "slots", "kind", kind.Name),
		inflight: slot.NewInFlight(),
		changes:  make(chan struct{}, 1),

		resumeDelay: 200 * time.Millisecond,
	}
}

// Kind returns the kind the collection holds.
func (s *Slots) Kind() slot.Kind {
	return s.kind
}

// Bind discards the current year, subscribes to the changes of yearID and
// loads its slots. An empty yearID only unbinds. A subscription failure is
// returned; a load failure is logged and leaves the mirror empty.
func (s *Slots) Bind(ctx context.Context, yearID string) error {
	s.Unbind()
	if yearID == "" {
		return nil
	}

	sub, err := s.feed.Subscribe(ctx, s.kind, yearID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to subscribe", "ano_id", yearID, "error", err)
		return err
	}

	b := &binding{
		mirror: slot.NewCollection(yearID),
		sub:    sub,
		done:   make(chan struct{}),
	}
	loaded := make(chan struct{})
	go s.reconcile(b, loaded)

	s.mu.Lock()
	previous := s.current
	s.current = b
	s.mu.Unlock()
	s.release(previous)

	s.load(ctx, b)
	close(loaded)
	return nil
}

// Unbind releases the subscription and clears the mirror.
func (s *Slots) Unbind() {
	s.mu.Lock()
	b := s.current
	s.current = nil
	s.mu.Unlock()
	s.release(b)
}

// Close is Unbind.
func (s *Slots) Close() {
	s.Unbind()
}

// release closes the feed of b and waits for its reconciler. No lock may be
// held: an auth failure inside a backend call can unbind re-entrantly.
func (s *Slots) release(b *binding) {
	if b == nil {
		return
	}
	b.sub.Close()
	<-b.done
	s.notify()
}

// Reload fetches the bound year again and replaces the mirror. A failure is
// logged and leaves the mirror unchanged.
func (s *Slots) Reload(ctx context.Context) {
	if b := s.binding(); b != nil {
		s.load(ctx, b)
	}
}

func (s *Slots) load(ctx context.Context, b *binding) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	rows, err := s.fetchAll(ctx, b.mirror.YearID())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load slots", "ano_id", b.mirror.YearID(), "error", err)
		return
	}
	b.mirror.Replace(rows)
	s.notify()
}

// fetchAll reads the year in pages of slot.PageSize until a short page.
func (s *Slots) fetchAll(ctx context.Context, yearID string) ([]slot.Slot, error) {
	var all []slot.Slot
	for from := 0; ; from += slot.PageSize {
		page, err := s.store.ListSlots(ctx, s.kind, yearID, from, from+slot.PageSize-1)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < slot.PageSize {
			return all, nil
		}
	}
}

// reconcile applies pushed changes to the mirror. Changes arriving while the
// initial load runs are held back and applied on top of the loaded rows.
func (s *Slots) reconcile(b *binding, loaded <-chan struct{}) {
	defer close(b.done)

	var pending []slot.Change
	ready := loaded
	for {
		select {
		case <-ready:
			for _, change := range pending {
				b.mirror.Apply(change)
			}
			if len(pending) > 0 {
				s.notify()
			}
			pending = nil
			ready = nil
		case change, ok := <-b.sub.Events():
			if !ok {
				if s.binding() == b {
					s.logger.Warn("change feed ended, resubscribing", "ano_id", b.mirror.YearID())
					go s.resume(b)
				}
				return
			}
			if ready != nil {
				pending = append(pending, change)
				continue
			}
			if b.mirror.Apply(change) {
				s.notify()
			}
		}
	}
}

// resume replaces the ended feed of b with a new subscription to the same
// year and reloads the mirror, since changes made while no feed was open are
// lost. It retries with a capped backoff and gives up once b is no longer
// the bound year.
func (s *Slots) resume(b *binding) {
	<-b.done
	yearID := b.mirror.YearID()
	ctx := context.Background()

	delay := s.resumeDelay
	for {
		if s.binding() != b {
			return
		}
		sub, err := s.feed.Subscribe(ctx, s.kind, yearID)
		if err == nil {
			next := &binding{mirror: b.mirror, sub: sub, done: make(chan struct{})}
			s.mu.Lock()
			if s.current != b {
				s.mu.Unlock()
				sub.Close()
				return
			}
			s.current = next
			s.mu.Unlock()

			loaded := make(chan struct{})
			go s.reconcile(next, loaded)
			s.load(ctx, next)
			close(loaded)
			s.logger.Info("change feed resumed", "ano_id", yearID)
			return
		}

		s.logger.Warn("failed to resubscribe", "ano_id", yearID, "retry_in", delay, "error", err)
		time.Sleep(delay)
		if delay *= 2; delay > maxResumeDelay {
			delay = maxResumeDelay
		}
	}
}

func (s *Slots) binding() *binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// YearID returns the bound year, or "" when unbound.
func (s *Slots) YearID() string {
	if b := s.binding(); b != nil {
		return b.mirror.YearID()
	}
	return ""
}

// Loading reports whether a load is running.
func (s *Slots) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Changes returns a channel that receives a value after the mirror changes.
// Notifications coalesce; readers should re-read the mirror on receipt.
func (s *Slots) Changes() <-chan struct{} {
	return s.changes
}

func (s *Slots) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns the mirrored slots ordered by numero.
func (s *Slots) Snapshot() []slot.Slot {
	if b := s.binding(); b != nil {
		return b.mirror.Snapshot()
	}
	return nil
}

// Find returns the mirrored slot holding numero.
func (s *Slots) Find(numero int) (slot.Slot, bool) {
	if b := s.binding(); b != nil {
		return b.mirror.Find(numero)
	}
	return slot.Slot{}, false
}

// Stats counts the mirrored slots per status.
func (s *Slots) Stats() slot.Stats {
	if b := s.binding(); b != nil {
		return b.mirror.Stats()
	}
	return slot.Stats{}
}

// Filter returns the mirrored slots matching query, optionally only the
// available ones.
func (s *Slots) Filter(query string, onlyAvailable bool) []slot.Slot {
	if b := s.binding(); b != nil {
		return b.mirror.Filter(query, onlyAvailable)
	}
	return nil
}

// Busy reports whether a mutation for numero is running. slot.NextKey asks
// about the allocation.
func (s *Slots) Busy(numero int) bool {
	return s.inflight.Busy(numero)
}

// SetStatus writes status to the slot holding numero. The marked-at
// timestamp and the description are kept only when status is used. It does
// nothing when no year is bound or numero is unknown; write errors are
// returned unchanged.
func (s *Slots) SetStatus(ctx context.Context, numero int, status slot.Status, descricao string) error {
	b := s.binding()
	if b == nil {
		return nil
	}
	row, ok := b.mirror.Find(numero)
	if !ok {
		return nil
	}

	patch := slot.NewPatch(s.kind, status, descricao, s.actor(), s.now())
	updated, err := s.store.UpdateSlot(ctx, s.kind, row.ID, patch)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update slot", "numero", numero, "status", string(status), "error", err)
		return err
	}

	if b.mirror.Apply(slot.UpdateChange(s.kind, updated)) {
		s.notify()
	}
	return nil
}

// AllocateNext marks the lowest numbered available slot as used. ok is false,
// with a nil error, when the year has no available slot left.
func (s *Slots) AllocateNext(ctx context.Context, descricao string) (numero int, ok bool, err error) {
	release, acquired := s.inflight.Acquire(slot.NextKey)
	if !acquired {
		return 0, false, ErrBusy
	}
	defer release()

	b := s.binding()
	if b == nil {
		return 0, false, nil
	}
	next, found := b.mirror.NextAvailable()
	if !found {
		return 0, false, nil
	}

	if err := s.SetStatus(ctx, next.Numero, slot.StatusUsed, descricao); err != nil {
		return 0, false, err
	}
	return next.Numero, true, nil
}

// Toggle flips the slot holding numero between available and used and
// returns the new status. descricao is recorded only when marking as used.
// Blocked slots are rejected with slot.ErrBlocked without any write.
func (s *Slots) Toggle(ctx context.Context, numero int, descricao string) (slot.Status, error) {
	return s.transition(ctx, numero, "", descricao)
}

// Mark marks the available slot holding numero as used. A slot in any other
// status is rejected with slot.ErrInvalidTransition, or slot.ErrBlocked,
// without any write.
func (s *Slots) Mark(ctx context.Context, numero int, descricao string) error {
	_, err := s.transition(ctx, numero, slot.StatusUsed, descricao)
	return err
}

// Unmark returns the used slot holding numero to available, with the same
// rejections as Mark.
func (s *Slots) Unmark(ctx context.Context, numero int) error {
	_, err := s.transition(ctx, numero, slot.StatusAvailable, "")
	return err
}

// transition applies the toggle of numero. A non-empty want restricts it to
// the toggle that ends in want.
func (s *Slots) transition(ctx context.Context, numero int, want slot.Status, descricao string) (slot.Status, error) {
	release, acquired := s.inflight.Acquire(numero)
	if !acquired {
		return "", ErrBusy
	}
	defer release()

	b := s.binding()
	if b == nil {
		return "", ErrNotBound
	}
	row, found := b.mirror.Find(numero)
	if !found {
		return "", ErrUnknownSlot
	}

	target, err := slot.ToggleTarget(s.kind, row.Status)
	if err != nil {
		return "", err
	}
	if want != "" && target != want {
		return "", fmt.Errorf("%w: número %d já está %s", slot.ErrInvalidTransition, numero, row.Status)
	}
	if target != slot.StatusUsed {
		descricao = ""
	}
	if err := s.SetStatus(ctx, numero, target, descricao); err != nil {
		return "", err
	}
	return target, nil
}
