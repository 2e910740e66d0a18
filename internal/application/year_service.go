package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/slot"
)

// YearRepository captures the persistence operations needed by the year service.
type YearRepository interface {
	ListYears(ctx context.Context, kind slot.Kind) ([]slot.Year, error)
	GetYear(ctx context.Context, kind slot.Kind, id string) (slot.Year, error)
	ProvisionYear(ctx context.Context, kind slot.Kind, year slot.Year, slots []slot.Slot) error
}

// ChangePublisher receives every slot row change written by the services.
type ChangePublisher interface {
	Publish(ctx context.Context, change slot.Change)
}

// YearService lists and provisions the numbered years of each kind.
type YearService struct {
	years       YearRepository
	publisher   ChangePublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewYearService constructs a year service with the provided dependencies.
func NewYearService(years YearRepository, publisher ChangePublisher, idGenerator func() string, now func() time.Time) *YearService {
	return NewYearServiceWithLogger(years, publisher, idGenerator, now, nil)
}

// NewYearServiceWithLogger constructs a year service with a specified logger.
func NewYearServiceWithLogger(years YearRepository, publisher ChangePublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *YearService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &YearService{years: years, publisher: publisher, idGenerator: idGenerator, now: now, logger: logging.Or(logger)}
}

func (s *YearService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, s.logger, "service", "YearService", operation, attrs...)
}

// ListYears returns the years of a kind, newest first.
func (s *YearService) ListYears(ctx context.Context, principal Principal, kind slot.Kind) (years []slot.Year, err error) {
	if s == nil {
		err = fmt.Errorf("YearService is nil")
		return
	}
	if s.years == nil {
		err = fmt.Errorf("year repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ListYears", "principal_id", principal.UserID, "kind", kind.Name)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list years", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(years)).DebugContext(ctx, "years listed")
	}()

	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	years, err = s.years.ListYears(ctx, kind)
	if err != nil {
		err = mapRepoError(err)
		years = nil
	}
	return
}

// ProvisionYear creates a year with quantidade available slots numbered from
// one. The year row and every slot are written together or not at all.
func (s *YearService) ProvisionYear(ctx context.Context, params ProvisionYearParams) (year slot.Year, err error) {
	if s == nil {
		err = fmt.Errorf("YearService is nil")
		return
	}
	if s.years == nil {
		err = fmt.Errorf("year repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ProvisionYear",
		"principal_id", params.Principal.UserID,
		"kind", params.Kind.Name,
		"ano", params.Ano,
		"quantidade", params.Quantidade,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to provision year", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("year_id", year.ID).InfoContext(ctx, "year provisioned")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if vErr := fromSlotValidation(slot.ValidateYear(params.Ano, params.Quantidade, nil)); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	year = slot.Year{
		ID:         s.idGenerator(),
		Ano:        params.Ano,
		Quantidade: params.Quantidade,
		Ativo:      true,
		CreatedAt:  now,
	}

	slots := make([]slot.Slot, params.Quantidade)
	for i := range slots {
		slots[i] = slot.Slot{
			ID:        s.idGenerator(),
			YearID:    year.ID,
			Numero:    i + 1,
			Status:    slot.StatusAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err = s.years.ProvisionYear(ctx, params.Kind, year, slots); err != nil {
		err = mapRepoError(err)
		year = slot.Year{}
		return
	}

	if s.publisher != nil {
		for _, row := range slots {
			s.publisher.Publish(ctx, slot.InsertChange(params.Kind, row))
		}
	}
	return
}
