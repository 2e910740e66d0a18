package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/slot"
)

// MaxRowsPerRequest caps a single slot listing regardless of the requested range.
const MaxRowsPerRequest = 1000

// SlotRepository captures the persistence operations needed by the slot service.
type SlotRepository interface {
	ListSlots(ctx context.Context, kind slot.Kind, yearID string, offset, limit int) ([]slot.Slot, error)
	UpdateSlot(ctx context.Context, kind slot.Kind, id string, patch slot.Patch, updatedAt time.Time) (slot.Slot, error)
}

// SlotService reads and writes the slots of a year.
type SlotService struct {
	slots     SlotRepository
	years     YearRepository
	publisher ChangePublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewSlotService constructs a slot service with the provided dependencies.
func NewSlotService(slots SlotRepository, years YearRepository, publisher ChangePublisher, now func() time.Time) *SlotService {
	return NewSlotServiceWithLogger(slots, years, publisher, now, nil)
}

// NewSlotServiceWithLogger constructs a slot service with a specified logger.
func NewSlotServiceWithLogger(slots SlotRepository, years YearRepository, publisher ChangePublisher, now func() time.Time, logger *slog.Logger) *SlotService {
	if now == nil {
		now = time.Now
	}
	return &SlotService{slots: slots, years: years, publisher: publisher, now: now, logger: logging.Or(logger)}
}

func (s *SlotService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, s.logger, "service", "SlotService", operation, attrs...)
}

// ListSlots returns the rows From..To (inclusive, zero based) of a year
// ordered by numero. At most MaxRowsPerRequest rows are returned.
func (s *SlotService) ListSlots(ctx context.Context, params ListSlotsParams) (slots []slot.Slot, err error) {
	if s == nil {
		err = fmt.Errorf("SlotService is nil")
		return
	}
	if s.slots == nil {
		err = fmt.Errorf("slot repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ListSlots",
		"principal_id", params.Principal.UserID,
		"kind", params.Kind.Name,
		"year_id", params.YearID,
		"from", params.From,
		"to", params.To,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(slots)).DebugContext(ctx, "slots listed")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	if params.YearID == "" {
		vErr.add("ano_id", "Ano obrigatório")
	}
	if params.From < 0 || params.To < params.From {
		vErr.add("range", "Intervalo inválido")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	limit := params.To - params.From + 1
	if limit > MaxRowsPerRequest {
		limit = MaxRowsPerRequest
	}

	slots, err = s.slots.ListSlots(ctx, params.Kind, params.YearID, params.From, limit)
	if err != nil {
		err = mapRepoError(err)
		slots = nil
	}
	return
}

// UpdateSlot writes a status change and announces the stored row.
func (s *SlotService) UpdateSlot(ctx context.Context, params UpdateSlotParams) (updated slot.Slot, err error) {
	if s == nil {
		err = fmt.Errorf("SlotService is nil")
		return
	}
	if s.slots == nil {
		err = fmt.Errorf("slot repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSlot",
		"principal_id", params.Principal.UserID,
		"kind", params.Kind.Name,
		"slot_id", params.SlotID,
		"status", string(params.Patch.Status),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("numero", updated.Numero, "year_id", updated.YearID).InfoContext(ctx, "slot updated")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if params.SlotID == "" {
		err = ErrNotFound
		return
	}
	if !params.Kind.Allows(params.Patch.Status) {
		vErr := &ValidationError{}
		vErr.add("status", "Status inválido")
		err = vErr
		return
	}

	now := s.now()
	patch := normalizePatch(params.Kind, params.Patch, now)

	updated, err = s.slots.UpdateSlot(ctx, params.Kind, params.SlotID, patch, now)
	if err != nil {
		err = mapRepoError(err)
		updated = slot.Slot{}
		return
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, slot.UpdateChange(params.Kind, updated))
	}
	return
}

// normalizePatch keeps marcado_em and descricao set only on used slots and
// drops the actor for kinds without the column.
func normalizePatch(kind slot.Kind, patch slot.Patch, now time.Time) slot.Patch {
	if patch.Status == slot.StatusUsed {
		if patch.MarkedAt == nil {
			markedAt := now.UTC()
			patch.MarkedAt = &markedAt
		}
	} else {
		patch.MarkedAt = nil
		patch.Descricao = nil
	}
	if patch.Descricao != nil && *patch.Descricao == "" {
		patch.Descricao = nil
	}
	if !kind.RecordsActor {
		patch.Usuario = nil
	}
	return patch
}

// allSlots pages through every slot of a year.
func (s *SlotService) allSlots(ctx context.Context, kind slot.Kind, yearID string) ([]slot.Slot, error) {
	var all []slot.Slot
	for offset := 0; ; offset += MaxRowsPerRequest {
		page, err := s.slots.ListSlots(ctx, kind, yearID, offset, MaxRowsPerRequest)
		if err != nil {
			return nil, mapRepoError(err)
		}
		all = append(all, page...)
		if len(page) < MaxRowsPerRequest {
			return all, nil
		}
	}
}
