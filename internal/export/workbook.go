// Package export renders an entity's invoice lines and reorder points as an
// XLSX workbook.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kalambet/stockai/internal/reorder"
	"github.com/kalambet/stockai/internal/storage"
)

// Sheet names.
const (
	InvoicesSheet = "Invoices"
	ReorderSheet  = "Reorder"
)

var (
	invoiceHeaders = []string{"ID", "Invoice", "Issue Date", "Product", "Quantity", "Unit Price", "Line Total", "Invoice Total"}
	reorderHeaders = []string{"Product", "Daily Demand", "Safety Stock", "Reorder Point", "First Purchase", "Last Purchase", "Purchase Days", "Total Units"}
)

// Workbook returns the XLSX bytes of a workbook with one sheet of lines and
// one of recommendations.
func Workbook(lines []storage.Line, recs []reorder.Recommendation) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet instead of leaving an empty "Sheet1".
	if err := f.SetSheetName(f.GetSheetName(0), InvoicesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(ReorderSheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{l.ID, l.InvoiceNumber, l.IssueDate, l.ProductName, l.Quantity, l.UnitPrice, l.LineTotal, l.InvoiceTotal})
	}
	if err := writeSheet(f, InvoicesSheet, invoiceHeaders, rows, bold); err != nil {
		return nil, err
	}

	rows = make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			r.Product, r.DailyDemand, r.SafetyStock, r.ReorderPoint,
			r.FirstPurchase.Format("2006-01-02"), r.LastPurchase.Format("2006-01-02"),
			r.PurchaseDays, r.TotalUnits,
		})
	}
	if err := writeSheet(f, ReorderSheet, reorderHeaders, rows, bold); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(InvoicesSheet, "B", "C", 14)
	_ = f.SetColWidth(InvoicesSheet, "D", "D", 32)
	_ = f.SetColWidth(ReorderSheet, "A", "A", 32)
	_ = f.SetColWidth(ReorderSheet, "B", "H", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
