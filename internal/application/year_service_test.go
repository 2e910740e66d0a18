package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/oficios-registry/internal/persistence"
	"github.com/example/oficios-registry/internal/slot"
)

var staff = Principal{UserID: "user-1", Email: "servidor@example.com"}

type yearRepoStub struct {
	years        []slot.Year
	listErr      error
	provisionErr error

	provisioned []slot.Slot
}

func (y *yearRepoStub) ListYears(context.Context, slot.Kind) ([]slot.Year, error) {
	if y.listErr != nil {
		return nil, y.listErr
	}
	return y.years, nil
}

func (y *yearRepoStub) GetYear(_ context.Context, _ slot.Kind, id string) (slot.Year, error) {
	for _, year := range y.years {
		if year.ID == id {
			return year, nil
		}
	}
	return slot.Year{}, persistence.ErrNotFound
}

func (y *yearRepoStub) ProvisionYear(_ context.Context, _ slot.Kind, year slot.Year, slots []slot.Slot) error {
	if y.provisionErr != nil {
		return y.provisionErr
	}
	y.years = append(y.years, year)
	y.provisioned = append(y.provisioned, slots...)
	return nil
}

type publisherStub struct {
	changes []slot.Change
}

func (p *publisherStub) Publish(_ context.Context, change slot.Change) {
	p.changes = append(p.changes, change)
}

func counter(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestYearService_ProvisionYear(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	t.Run("creates numbered available slots and announces them", func(t *testing.T) {
		t.Parallel()

		repo := &yearRepoStub{}
		publisher := &publisherStub{}
		svc := NewYearService(repo, publisher, counter("id"), func() time.Time { return now })

		year, err := svc.ProvisionYear(context.Background(), ProvisionYearParams{Principal: staff, Kind: slot.Capas, Ano: 2025, Quantidade: 3})
		if err != nil {
			t.Fatalf("ProvisionYear failed: %v", err)
		}
		if year.ID != "id-1" || year.Ano != 2025 || year.Quantidade != 3 {
			t.Fatalf("unexpected year %+v", year)
		}
		if len(repo.provisioned) != 3 {
			t.Fatalf("expected 3 slots, got %d", len(repo.provisioned))
		}
		for i, s := range repo.provisioned {
			if s.Numero != i+1 || s.Status != slot.StatusAvailable || s.YearID != year.ID {
				t.Fatalf("unexpected slot %+v", s)
			}
		}
		if len(publisher.changes) != 3 || publisher.changes[0].Type != slot.ChangeInsert || publisher.changes[2].New.Numero != 3 {
			t.Fatalf("expected three INSERT changes, got %+v", publisher.changes)
		}
	})

	t.Run("rejects out of range input before writing", func(t *testing.T) {
		t.Parallel()

		repo := &yearRepoStub{}
		svc := NewYearService(repo, nil, counter("id"), nil)

		_, err := svc.ProvisionYear(context.Background(), ProvisionYearParams{Principal: staff, Kind: slot.Oficios, Ano: 1999, Quantidade: 10000})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if vErr.FieldErrors["ano"] != "Ano inválido" || vErr.FieldErrors["quantidade"] == "" {
			t.Fatalf("unexpected field errors %#v", vErr.FieldErrors)
		}
		if len(repo.years) != 0 {
			t.Fatalf("expected no write")
		}
	})

	t.Run("maps duplicate years", func(t *testing.T) {
		t.Parallel()

		publisher := &publisherStub{}
		repo := &yearRepoStub{provisionErr: fmt.Errorf("%w: UNIQUE constraint failed: anos.ano", persistence.ErrDuplicate)}
		svc := NewYearService(repo, publisher, counter("id"), nil)

		_, err := svc.ProvisionYear(context.Background(), ProvisionYearParams{Principal: staff, Kind: slot.Oficios, Ano: 2025, Quantidade: 1})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		if len(publisher.changes) != 0 {
			t.Fatalf("expected nothing published after a failed write")
		}
	})

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()

		svc := NewYearService(&yearRepoStub{}, nil, nil, nil)
		if _, err := svc.ProvisionYear(context.Background(), ProvisionYearParams{Kind: slot.Oficios, Ano: 2025, Quantidade: 1}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestYearService_ListYears(t *testing.T) {
	t.Parallel()

	repo := &yearRepoStub{years: []slot.Year{{ID: "a", Ano: 2026}, {ID: "b", Ano: 2025}}}
	svc := NewYearService(repo, nil, nil, nil)

	years, err := svc.ListYears(context.Background(), staff, slot.Oficios)
	if err != nil || len(years) != 2 {
		t.Fatalf("ListYears returned %v, %v", years, err)
	}

	repo.listErr = errors.New("disk I/O error")
	if _, err := svc.ListYears(context.Background(), staff, slot.Oficios); err == nil {
		t.Fatalf("expected repository error to propagate")
	}
	if _, err := svc.ListYears(context.Background(), Principal{}, slot.Oficios); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
