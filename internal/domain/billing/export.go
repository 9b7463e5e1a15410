package billing

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
)

const (
	ledgerSheet  = "Ledger"
	summarySheet = "Summary"
)

var ledgerHeader = []string{
	"Date", "Source", "Patient ID", "Patient", "Description", "Reference", "Amount",
}

var ledgerWidths = []float64{20, 14, 12, 28, 36, 38, 12}

// WriteLedger renders entries as an .xlsx workbook with a ledger sheet and
// a per-source summary sheet.
func WriteLedger(w io.Writer, entries []*LedgerEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ledgerSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("create money style: %w", err)
	}

	if err := writeRow(f, ledgerSheet, 1, toCells(ledgerHeader)); err != nil {
		return err
	}
	if err := f.SetCellStyle(ledgerSheet, "A1", "G1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, width := range ledgerWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(ledgerSheet, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	totals := map[string]float64{}
	counts := map[string]int{}
	var grand float64
	for i, e := range entries {
		row := i + 2
		cells := []interface{}{
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.Source,
			e.PatientCode,
			e.PatientName,
			e.Description,
			e.ReferenceID.String(),
			e.Amount,
		}
		if err := writeRow(f, ledgerSheet, row, cells); err != nil {
			return err
		}
		totals[e.Source] += e.Amount
		counts[e.Source]++
		grand += e.Amount
	}
	if len(entries) > 0 {
		last := fmt.Sprintf("G%d", len(entries)+1)
		if err := f.SetCellStyle(ledgerSheet, "G2", last, moneyStyle); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}

	if err := writeRow(f, summarySheet, 1, toCells([]string{"Source", "Bills", "Total"})); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "C1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	sources := make([]string, 0, len(totals))
	for s := range totals {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	row := 2
	for _, s := range sources {
		if err := writeRow(f, summarySheet, row, []interface{}{s, counts[s], Round(totals[s])}); err != nil {
			return err
		}
		row++
	}
	if err := writeRow(f, summarySheet, row, []interface{}{"total", len(entries), Round(grand)}); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
