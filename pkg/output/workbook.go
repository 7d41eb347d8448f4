package output

import (
	"fmt"
	"os"
	"path/filepath"

	apperr "churngen/pkg/errors"
	"churngen/pkg/models"

	"github.com/xuri/excelize/v2"
)

const (
	customersSheet = "customers"
	ordersSheet    = "orders"
)

// WriteWorkbook mirrors both tables into one .xlsx file, one sheet each.
// Dates stay YYYY-MM-DD text; amounts are numeric cells.
func WriteWorkbook(ds models.Dataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(err, apperr.ErrIO, "create workbook dir")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", customersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ordersSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	customerRows := make([][]any, 0, len(ds.Customers)+1)
	customerRows = append(customerRows, toRow(customerHeader))
	for _, c := range ds.Customers {
		customerRows = append(customerRows, toRow(customerRow(c)))
	}
	if err := streamRows(f, customersSheet, customerRows); err != nil {
		return err
	}

	orderRows := make([][]any, 0, len(ds.Orders)+1)
	orderRows = append(orderRows, toRow(orderHeader))
	for _, o := range ds.Orders {
		orderRows = append(orderRows, []any{
			o.ID,
			o.CustomerID,
			o.OrderDate.Format(models.DateLayout),
			o.Amount,
			o.Status.String(),
		})
	}
	if err := streamRows(f, ordersSheet, orderRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return apperr.Wrap(err, apperr.ErrIO, "save workbook")
	}
	return nil
}

func streamRows(f *excelize.File, sheet string, rows [][]any) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream %s: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return sw.Flush()
}

func toRow(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}
