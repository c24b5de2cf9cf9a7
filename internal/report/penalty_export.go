package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/pkg/utils"
)

const (
	ledgerSheet  = "Ledger"
	summarySheet = "Summary"
)

var ledgerHeader = []interface{}{"Date", "Entity", "Category", "Reason", "Points", "Instance", "Recorded At"}

// EntityTotal is the sum of penalty points for one entity in a month
type EntityTotal struct {
	EntityID string
	Count    int
	Points   decimal.Decimal
}

// PenaltyExporter renders the monthly penalty ledger as an XLSX workbook
type PenaltyExporter struct {
	penalties port.PenaltyRepository
	logger    *zap.Logger
}

// NewPenaltyExporter creates a new exporter
func NewPenaltyExporter(penalties port.PenaltyRepository, logger *zap.Logger) *PenaltyExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PenaltyExporter{penalties: penalties, logger: logger}
}

// Month returns the ledger entries of month (YYYY-MM)
func (e *PenaltyExporter) Month(ctx context.Context, month string) ([]*entity.PenaltyRecord, error) {
	if err := utils.ValidateMonth(month); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidKey, err)
	}
	return e.penalties.ListByMonth(ctx, month)
}

// Export writes the ledger and a per-entity summary of month to w
func (e *PenaltyExporter) Export(ctx context.Context, month string, w io.Writer) (int, error) {
	records, err := e.Month(ctx, month)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return 0, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeLedger(f, records); err != nil {
		return 0, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return 0, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeSummary(f, Totals(records)); err != nil {
		return 0, err
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Penalty ledger exported",
		zap.String("month", month),
		zap.Int("records", len(records)))
	return len(records), nil
}

func writeLedger(f *excelize.File, records []*entity.PenaltyRecord) error {
	if err := f.SetSheetRow(ledgerSheet, "A1", &ledgerHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.Date,
			r.EntityID,
			r.Category,
			r.Reason.String(),
			r.Points.InexactFloat64(),
			r.InstanceKey,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(ledgerSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return f.SetPanes(ledgerSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummary(f *excelize.File, totals []EntityTotal) error {
	header := []interface{}{"Entity", "Penalties", "Points"}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	for i, t := range totals {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{t.EntityID, t.Count, t.Points.InexactFloat64()}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+2, err)
		}
	}
	return nil
}

// Totals sums points per entity, largest absolute total first, then by entity id
func Totals(records []*entity.PenaltyRecord) []EntityTotal {
	byEntity := make(map[string]*EntityTotal)
	for _, r := range records {
		t, ok := byEntity[r.EntityID]
		if !ok {
			t = &EntityTotal{EntityID: r.EntityID, Points: decimal.Zero}
			byEntity[r.EntityID] = t
		}
		t.Count++
		t.Points = t.Points.Add(r.Points)
	}

	totals := make([]EntityTotal, 0, len(byEntity))
	for _, t := range byEntity {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Points.Abs().Cmp(totals[j].Points.Abs()); c != 0 {
			return c > 0
		}
		return totals[i].EntityID < totals[j].EntityID
	})
	return totals
}
