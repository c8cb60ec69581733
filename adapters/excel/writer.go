package excel

import (
	"encoding/csv"
	"fmt"
	"io"

	"tablefix/domain/table"

	"github.com/xuri/excelize/v2"
)

// Export file names offered for download
const (
	CSVFileName  = "modified_file.csv"
	XLSXFileName = "modified_file.xlsx"
)

// WriteCSV writes the header row followed by every row, without an index
// column. Missing values are written as empty fields.
func WriteCSV(t *table.Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j, c := range t.Columns {
			record[j] = row.Get(c).Text()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the table to Sheet1 of a new workbook using native cell
// types
func WriteXLSX(t *table.Table, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range t.Rows {
		cells := make([]interface{}, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = row.Get(c).Interface()
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
