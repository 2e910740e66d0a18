package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/oficios-registry/internal/persistence"
	"github.com/example/oficios-registry/internal/slot"
)

// SlotRepository implements persistence.SlotRepository using SQLite
type SlotRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewSlotRepository creates a new SQLite slot repository
func NewSlotRepository(pool *ConnectionPool) *SlotRepository {
	return &SlotRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

func slotSelect(kind slot.Kind) string {
	usuario := "NULL"
	if kind.RecordsActor {
		usuario = "usuario"
	}
	return fmt.Sprintf(
		`SELECT id, ano_id, numero, status, descricao, %s, %s, created_at, updated_at FROM %s`,
		kind.MarkedAtColumn, usuario, kind.SlotTable,
	)
}

func slotInsert(kind slot.Kind) string {
	if kind.RecordsActor {
		return fmt.Sprintf(
			`INSERT INTO %s (id, ano_id, numero, status, descricao, %s, usuario, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			kind.SlotTable, kind.MarkedAtColumn,
		)
	}
	return fmt.Sprintf(
		`INSERT INTO %s (id, ano_id, numero, status, descricao, %s, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		kind.SlotTable, kind.MarkedAtColumn,
	)
}

func slotInsertArgs(kind slot.Kind, s persistence.Slot) []any {
	args := []any{s.ID, s.YearID, s.Numero, s.Status, nullableString(s.Descricao), nullableTime(s.MarkedAt)}
	if kind.RecordsActor {
		args = append(args, nullableString(s.Usuario))
	}
	return append(args, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
}

// ListSlots returns a page of the year's slots ordered by numero
func (r *SlotRepository) ListSlots(ctx context.Context, kind slot.Kind, yearID string, offset, limit int) ([]persistence.Slot, error) {
	if offset < 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := r.helper.Query(ctx, slotSelect(kind)+` WHERE ano_id = ? ORDER BY numero ASC LIMIT ? OFFSET ?`, yearID, limit, offset)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	slots := make([]persistence.Slot, 0, limit)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return slots, nil
}

// GetSlot retrieves one slot of kind by ID
func (r *SlotRepository) GetSlot(ctx context.Context, kind slot.Kind, id string) (persistence.Slot, error) {
	if id == "" {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	s, err := scanSlot(r.helper.QueryRow(ctx, slotSelect(kind)+` WHERE id = ?`, id))
	if err != nil {
		return persistence.Slot{}, r.mapper.MapError(err)
	}
	return s, nil
}

// UpdateSlot overwrites the mutable columns of a slot and returns the stored
// row. Writes that hit a locked database are retried.
func (r *SlotRepository) UpdateSlot(ctx context.Context, kind slot.Kind, id string, update persistence.SlotUpdate) (persistence.Slot, error) {
	if id == "" {
		return persistence.Slot{}, persistence.ErrNotFound
	}

	query := fmt.Sprintf(`UPDATE %s SET status = ?, descricao = ?, %s = ?`, kind.SlotTable, kind.MarkedAtColumn)
	args := []any{update.Status, nullableString(update.Descricao), nullableTime(update.MarkedAt)}
	if kind.RecordsActor {
		query += `, usuario = ?`
		args = append(args, nullableString(update.Usuario))
	}
	query += `, updated_at = ? WHERE id = ?`
	args = append(args, formatTime(update.UpdatedAt), id)

	var updated persistence.Slot
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := r.helper.ExecTx(ctx, tx, query, args...)
			if err != nil {
				return r.mapper.MapError(err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected == 0 {
				return persistence.ErrNotFound
			}

			updated, err = scanSlot(r.helper.QueryRowTx(ctx, tx, slotSelect(kind)+` WHERE id = ?`, id))
			if err != nil {
				return r.mapper.MapError(err)
			}
			return nil
		})
	})
	if err != nil {
		return persistence.Slot{}, err
	}
	return updated, nil
}

func scanSlot(row rowScanner) (persistence.Slot, error) {
	var s persistence.Slot
	var descricao, markedAt, usuario sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(&s.ID, &s.YearID, &s.Numero, &s.Status, &descricao, &markedAt, &usuario, &createdAtStr, &updatedAtStr)
	if err != nil {
		return persistence.Slot{}, err
	}

	s.Descricao = stringPtr(descricao)
	s.Usuario = stringPtr(usuario)
	if s.MarkedAt, err = parseNullableTime(markedAt); err != nil {
		return persistence.Slot{}, fmt.Errorf("failed to parse marked at: %w", err)
	}
	if s.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Slot{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.Slot{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return s, nil
}
