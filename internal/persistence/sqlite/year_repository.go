package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/oficios-registry/internal/persistence"
	"github.com/example/oficios-registry/internal/slot"
)

// YearRepository implements persistence.YearRepository using SQLite. One
// repository serves every kind; the kind selects the tables.
type YearRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewYearRepository creates a new SQLite year repository
func NewYearRepository(pool *ConnectionPool) *YearRepository {
	return &YearRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// yearSelect returns the column list shared by the year queries. Kinds
// without quantidade_total report their slot count instead.
func yearSelect(kind slot.Kind) string {
	if kind.TracksQuantity {
		return fmt.Sprintf(`SELECT a.id, a.ano, a.quantidade_total, 1, a.created_at FROM %s a`, kind.YearTable)
	}
	return fmt.Sprintf(
		`SELECT a.id, a.ano, (SELECT COUNT(*) FROM %s s WHERE s.ano_id = a.id), a.ativo, a.created_at FROM %s a`,
		kind.SlotTable, kind.YearTable,
	)
}

// ListYears returns the years of kind ordered by ano descending
func (r *YearRepository) ListYears(ctx context.Context, kind slot.Kind) ([]persistence.Year, error) {
	rows, err := r.helper.Query(ctx, yearSelect(kind)+` ORDER BY a.ano DESC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var years []persistence.Year
	for rows.Next() {
		year, err := scanYear(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		years = append(years, year)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return years, nil
}

// GetYear retrieves one year of kind by ID
func (r *YearRepository) GetYear(ctx context.Context, kind slot.Kind, id string) (persistence.Year, error) {
	if id == "" {
		return persistence.Year{}, persistence.ErrNotFound
	}
	year, err := scanYear(r.helper.QueryRow(ctx, yearSelect(kind)+` WHERE a.id = ?`, id))
	if err != nil {
		return persistence.Year{}, r.mapper.MapError(err)
	}
	return year, nil
}

// ProvisionYear inserts the year row and its slots in a single transaction
func (r *YearRepository) ProvisionYear(ctx context.Context, kind slot.Kind, year persistence.Year, slots []persistence.Slot) error {
	if year.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		if kind.TracksQuantity {
			_, err = r.helper.ExecTx(ctx, tx,
				fmt.Sprintf(`INSERT INTO %s (id, ano, quantidade_total, created_at) VALUES (?, ?, ?, ?)`, kind.YearTable),
				year.ID, year.Ano, year.Quantidade, formatTime(year.CreatedAt),
			)
		} else {
			_, err = r.helper.ExecTx(ctx, tx,
				fmt.Sprintf(`INSERT INTO %s (id, ano, ativo, created_at) VALUES (?, ?, ?, ?)`, kind.YearTable),
				year.ID, year.Ano, year.Ativo, formatTime(year.CreatedAt),
			)
		}
		if err != nil {
			return r.mapper.MapError(err)
		}

		stmt, err := tx.PrepareContext(ctx, slotInsert(kind))
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer stmt.Close()

		for _, s := range slots {
			if s.YearID != year.ID {
				return fmt.Errorf("slot %d belongs to year %q: %w", s.Numero, s.YearID, persistence.ErrConstraintViolation)
			}
			if _, err := stmt.ExecContext(ctx, slotInsertArgs(kind, s)...); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanYear(row rowScanner) (persistence.Year, error) {
	var year persistence.Year
	var createdAtStr string
	if err := row.Scan(&year.ID, &year.Ano, &year.Quantidade, &year.Ativo, &createdAtStr); err != nil {
		return persistence.Year{}, err
	}
	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return persistence.Year{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	year.CreatedAt = createdAt
	return year, nil
}
