package server

import (
	"context"
	"time"

	"github.com/example/oficios-registry/internal/application"
	"github.com/example/oficios-registry/internal/persistence"
	"github.com/example/oficios-registry/internal/slot"
)

type credentialStoreAdapter struct {
	repo persistence.UserRepository
}

func newCredentialStoreAdapter(repo persistence.UserRepository) *credentialStoreAdapter {
	return &credentialStoreAdapter{repo: repo}
}

func (a *credentialStoreAdapter) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	if err := a.repo.CreateUser(ctx, persistence.User{
		ID:           creds.User.ID,
		Email:        creds.User.Email,
		PasswordHash: creds.PasswordHash,
		CreatedAt:    creds.User.CreatedAt,
		UpdatedAt:    creds.User.UpdatedAt,
	}); err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, creds.User.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *credentialStoreAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{User: toApplicationUser(stored), PasswordHash: stored.PasswordHash}, nil
}

func (a *credentialStoreAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, persistence.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		RevokedAt: session.RevokedAt,
	})
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

type yearRepositoryAdapter struct {
	repo persistence.YearRepository
}

func newYearRepositoryAdapter(repo persistence.YearRepository) *yearRepositoryAdapter {
	return &yearRepositoryAdapter{repo: repo}
}

func (a *yearRepositoryAdapter) ListYears(ctx context.Context, kind slot.Kind) ([]slot.Year, error) {
	models, err := a.repo.ListYears(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	years := make([]slot.Year, 0, len(models))
	for _, model := range models {
		years = append(years, toSlotYear(model))
	}
	return years, nil
}

func (a *yearRepositoryAdapter) GetYear(ctx context.Context, kind slot.Kind, id string) (slot.Year, error) {
	stored, err := a.repo.GetYear(ctx, kind, id)
	if err != nil {
		return slot.Year{}, err
	}
	return toSlotYear(stored), nil
}

func (a *yearRepositoryAdapter) ProvisionYear(ctx context.Context, kind slot.Kind, year slot.Year, slots []slot.Slot) error {
	rows := make([]persistence.Slot, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, toPersistenceSlot(s))
	}
	return a.repo.ProvisionYear(ctx, kind, persistence.Year{
		ID:         year.ID,
		Ano:        year.Ano,
		Quantidade: year.Quantidade,
		Ativo:      year.Ativo,
		CreatedAt:  year.CreatedAt,
	}, rows)
}

type slotRepositoryAdapter struct {
	repo persistence.SlotRepository
}

func newSlotRepositoryAdapter(repo persistence.SlotRepository) *slotRepositoryAdapter {
	return &slotRepositoryAdapter{repo: repo}
}

func (a *slotRepositoryAdapter) ListSlots(ctx context.Context, kind slot.Kind, yearID string, offset, limit int) ([]slot.Slot, error) {
	models, err := a.repo.ListSlots(ctx, kind, yearID, offset, limit)
	if err != nil {
		return nil, err
	}
	slots := make([]slot.Slot, 0, len(models))
	for _, model := range models {
		slots = append(slots, toSlot(model))
	}
	return slots, nil
}

func (a *slotRepositoryAdapter) UpdateSlot(ctx context.Context, kind slot.Kind, id string, patch slot.Patch, updatedAt time.Time) (slot.Slot, error) {
	stored, err := a.repo.UpdateSlot(ctx, kind, id, persistence.SlotUpdate{
		Status:    string(patch.Status),
		Descricao: patch.Descricao,
		MarkedAt:  patch.MarkedAt,
		Usuario:   patch.Usuario,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return slot.Slot{}, err
	}
	return toSlot(stored), nil
}

func toApplicationUser(user persistence.User) application.User {
	return application.User{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func toApplicationSession(session persistence.Session) application.Session {
	return application.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		RevokedAt: session.RevokedAt,
	}
}

func toSlotYear(year persistence.Year) slot.Year {
	return slot.Year{
		ID:         year.ID,
		Ano:        year.Ano,
		Quantidade: year.Quantidade,
		Ativo:      year.Ativo,
		CreatedAt:  year.CreatedAt,
	}
}

func toSlot(model persistence.Slot) slot.Slot {
	return slot.Slot{
		ID:        model.ID,
		YearID:    model.YearID,
		Numero:    model.Numero,
		Status:    slot.Status(model.Status),
		Descricao: model.Descricao,
		MarkedAt:  model.MarkedAt,
		Usuario:   model.Usuario,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceSlot(s slot.Slot) persistence.Slot {
	return persistence.Slot{
		ID:        s.ID,
		YearID:    s.YearID,
		Numero:    s.Numero,
		Status:    string(s.Status),
		Descricao: s.Descricao,
		MarkedAt:  s.MarkedAt,
		Usuario:   s.Usuario,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
