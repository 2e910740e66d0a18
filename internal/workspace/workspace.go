// Package workspace hosts the staff client's state: one session guard shared
// by a year registry and a slot collection per kind, written against the
// backend contract and independent of its transport.
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/slot"
)

// Section groups the registry and the slot collection of one kind.
type Section struct {
	Kind     slot.Kind
	Registry *Registry
	Slots    *Slots
}

// Option configures a Workspace.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	redirectTo string
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for marked-at timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRedirect sets the address sent with sign ups.
func WithRedirect(url string) Option {
	return func(o *options) {
		o.redirectTo = url
	}
}

// Workspace is the process-wide client context.
type Workspace struct {
	Guard *Guard

	sections []*Section
	logger   *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	userID      string
	unsubscribe func()
}

// New builds a workspace over client with one section per kind. Start must be
// called before use.
func New(client backend.Client, opts ...Option) *Workspace {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	guard := NewGuard(client, o.redirectTo, o.logger)
	w := &Workspace{Guard: guard, logger: o.logger}
	for _, kind := range slot.Kinds() {
		w.sections = append(w.sections, &Section{
			Kind:     kind,
			Registry: NewRegistry(kind, client, o.logger),
			Slots:    NewSlots(kind, client, client, guard.Email, o.now, o.logger),
		})
	}
	return w
}

// Start reads the current session, subscribes to identity changes and, when
// signed in, loads the year lists.
func (w *Workspace) Start(ctx context.Context) {
	w.Guard.Start(ctx)

	w.mu.Lock()
	if w.unsubscribe != nil {
		w.mu.Unlock()
		return
	}
	w.ctx = context.WithoutCancel(ctx)
	w.userID = userID(w.Guard.Session())
	w.unsubscribe = w.Guard.Subscribe(w.onAuthChange)
	signedIn := w.userID != ""
	w.mu.Unlock()

	if signedIn {
		w.refreshAll(ctx)
	}
}

// Section returns the section of kind.
func (w *Workspace) Section(kind slot.Kind) *Section {
	for _, s := range w.sections {
		if s.Kind.Name == kind.Name {
			return s
		}
	}
	return nil
}

// Sections returns every section in kind order.
func (w *Workspace) Sections() []*Section {
	return append([]*Section(nil), w.sections...)
}

// Close releases the slot subscriptions, then the auth subscription.
func (w *Workspace) Close() {
	w.mu.Lock()
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for i := len(w.sections) - 1; i >= 0; i-- {
		w.sections[i].Slots.Close()
	}
	w.Guard.Stop()
}

// onAuthChange drops every per-user state when the identity changes and
// reloads the year lists for a new identity.
func (w *Workspace) onAuthChange(_ backend.AuthEvent, session *backend.Session) {
	next := userID(session)

	w.mu.Lock()
	changed := next != w.userID
	w.userID = next
	ctx := w.ctx
	w.mu.Unlock()

	if !changed {
		return
	}
	w.logger.Info("identity changed", "signed_in", next != "")

	for _, s := range w.sections {
		s.Slots.Unbind()
		s.Registry.Clear()
	}
	if next != "" {
		w.refreshAll(ctx)
	}
}

func (w *Workspace) refreshAll(ctx context.Context) {
	for _, s := range w.sections {
		s.Registry.Refresh(ctx)
	}
}

func userID(session *backend.Session) string {
	if session == nil {
		return ""
	}
	return session.User.ID
}
