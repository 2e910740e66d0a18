package workspace

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/slot"
)

// Registry holds the years of one kind, newest first.
type Registry struct {
	kind   slot.Kind
	store  backend.Store
	logger *slog.Logger

	mu        sync.RWMutex
	years     []slot.Year
	loading   bool
	lastError error
}

// NewRegistry returns an empty registry for kind.
func NewRegistry(kind slot.Kind, store backend.Store, logger *slog.Logger) *Registry {
	return &Registry{
		kind:   kind,
		store:  store,
		logger: logging.Or(logger).With("component", "registry", "kind", kind.Name),
	}
}

// Kind returns the kind the registry lists.
func (r *Registry) Kind() slot.Kind {
	return r.kind
}

// Years returns the loaded years, newest first.
func (r *Registry) Years() []slot.Year {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]slot.Year(nil), r.years...)
}

// Find returns the loaded year with value ano.
func (r *Registry) Find(ano int) (slot.Year, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, y := range r.years {
		if y.Ano == ano {
			return y, true
		}
	}
	return slot.Year{}, false
}

// Loading reports whether a refresh is running.
func (r *Registry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// LastError returns the error of the last failed refresh, or nil.
func (r *Registry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// Refresh reloads the year list. A failure is logged and recorded; the
// previous list stays in place.
func (r *Registry) Refresh(ctx context.Context) {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	years, err := r.store.ListYears(ctx, r.kind)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
	if err != nil {
		r.lastError = err
		r.logger.ErrorContext(ctx, "failed to list years", "error", err)
		return
	}
	r.lastError = nil
	r.years = sortYearsDesc(years)
}

// Create validates the request against the loaded years and, when it passes,
// provisions the year with quantidade available slots. Validation failures
// are returned as *slot.ValidationError before anything is written.
func (r *Registry) Create(ctx context.Context, ano, quantidade int) (slot.Year, error) {
	if err := slot.ValidateYear(ano, quantidade, r.Years()); err != nil {
		return slot.Year{}, err
	}

	year, err := r.store.ProvisionYear(ctx, r.kind, ano, quantidade)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to create year", "ano", ano, "quantidade", quantidade, "error", err)
		return slot.Year{}, err
	}
	r.logger.InfoContext(ctx, "year created", "ano", ano, "quantidade", quantidade, "year_id", year.ID)

	r.Refresh(ctx)
	return year, nil
}

// Clear forgets the loaded years.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.years = nil
	r.lastError = nil
	r.mu.Unlock()
}

func sortYearsDesc(years []slot.Year) []slot.Year {
	out := append([]slot.Year(nil), years...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ano > out[j].Ano })
	return out
}
