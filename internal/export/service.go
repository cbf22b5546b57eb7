package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cobrancas/internal/entity"
	"github.com/joseph-ayodele/cobrancas/internal/repository"
)

const sheet = "Cobrancas"

// Service turns the cobranças store into XLSX workbooks for spreadsheet users.
type Service struct {
	repo   repository.CobrancaRepository
	logger *slog.Logger
}

func NewService(repo repository.CobrancaRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportCobrancasXLSX returns a workbook (as bytes) with one row per cobrança.
// A non-nil since limits rows to cobranças updated at or after it.
func (s *Service) ExportCobrancasXLSX(ctx context.Context, since *time.Time) ([]byte, error) {
	start := time.Now()

	var (
		recs []*entity.Cobranca
		err  error
	)
	if since != nil {
		recs, err = s.repo.ListUpdatedSince(ctx, *since)
	} else {
		recs, err = s.repo.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("query cobrancas: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// replace the default sheet so the workbook has a single, named one
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Referência",
		"Cliente",
		"Email",
		"Título",
		"Valor",
		"Status",
		"Criada em",
		"Vencimento",
		"Pagamento",
		"Link",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	row := 2
	for _, c := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, c.ExternalReference)
		write(2, truncate(c.CustomerName, 80))
		write(3, c.CustomerEmail)
		write(4, truncate(c.Title, 120))
		write(5, c.Amount.InexactFloat64())
		write(6, string(c.Status))
		write(7, formatDate(&c.CreatedAt))
		write(8, formatDate(c.DueAt))
		write(9, formatDate(c.PaidAt))
		if c.PaymentURL != nil {
			write(10, *c.PaymentURL)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 24) // reference
	_ = f.SetColWidth(sheet, "B", "C", 30) // customer
	_ = f.SetColWidth(sheet, "D", "D", 40) // title
	_ = f.SetColWidth(sheet, "E", "F", 12)
	_ = f.SetColWidth(sheet, "G", "I", 14) // dates
	_ = f.SetColWidth(sheet, "J", "J", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"filtered", since != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
