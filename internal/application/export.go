package application

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/example/oficios-registry/internal/slot"
)

// XLSXContentType is the media type of exported workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	exportSummarySheet = "Resumo"
	exportTimeLayout   = "02/01/2006 15:04"
)

var statusLabels = map[slot.Status]string{
	slot.StatusAvailable: "Disponível",
	slot.StatusUsed:      "Utilizado",
	slot.StatusBlocked:   "Bloqueado",
}

// Export renders every slot of a year into an XLSX workbook with a summary sheet.
func (s *SlotService) Export(ctx context.Context, params ExportParams) (export Export, err error) {
	if s == nil {
		err = fmt.Errorf("SlotService is nil")
		return
	}
	if s.slots == nil || s.years == nil {
		err = fmt.Errorf("slot service repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "Export",
		"principal_id", params.Principal.UserID,
		"kind", params.Kind.Name,
		"year_id", params.YearID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to export year", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("bytes", len(export.Data)).InfoContext(ctx, "year exported")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	var year slot.Year
	if year, err = s.years.GetYear(ctx, params.Kind, params.YearID); err != nil {
		err = mapRepoError(err)
		return
	}

	var slots []slot.Slot
	if slots, err = s.allSlots(ctx, params.Kind, year.ID); err != nil {
		return
	}

	var data []byte
	if data, err = renderWorkbook(params.Kind, year, slots); err != nil {
		return
	}

	export = Export{
		Filename:    fmt.Sprintf("%s-%d.xlsx", params.Kind.Name, year.Ano),
		ContentType: XLSXContentType,
		Data:        data,
	}
	return
}

func renderWorkbook(kind slot.Kind, year slot.Year, slots []slot.Slot) ([]byte, error) {
	wb := excelize.NewFile()
	defer wb.Close()

	sheet := fmt.Sprintf("%d", year.Ano)
	if err := wb.SetSheetName(wb.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"Número", "Status", "Descrição", "Marcado em"}
	if kind.RecordsActor {
		header = append(header, "Usuário")
	}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range slots {
		values := []any{row.Numero, statusLabel(row.Status), derefString(row.Descricao), ""}
		if row.MarkedAt != nil {
			values[3] = row.MarkedAt.Local().Format(exportTimeLayout)
		}
		if kind.RecordsActor {
			values = append(values, derefString(row.Usuario))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := wb.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row.Numero, err)
		}
	}

	if _, err := wb.NewSheet(exportSummarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	stats := slot.CountStatuses(slots)
	summary := [][]any{
		{kind.Label, year.Ano},
		{"Total", stats.Total},
		{"Utilizados", stats.Used},
		{"Disponíveis", stats.Available},
	}
	if kind.AllowsBlocked {
		summary = append(summary, []any{"Bloqueados", stats.Blocked})
	}
	for i, line := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := wb.SetSheetRow(exportSummarySheet, cell, &line); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func statusLabel(status slot.Status) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
