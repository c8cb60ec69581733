package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"tablefix/adapters/coercer"
	"tablefix/domain/table"
	"tablefix/internal/errors"

	"github.com/xuri/excelize/v2"
)

// FileType is the upload format, picked from the file extension
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
)

// DetectFileType maps a file name to a supported format
func DetectFileType(name string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FileTypeCSV, nil
	case ".xlsx", ".xlsm":
		return FileTypeXLSX, nil
	default:
		return "", errors.ParseError(fmt.Sprintf("unsupported file type %q: upload a .csv or .xlsx file", filepath.Ext(name)), nil)
	}
}

// DataReader parses CSV and Excel uploads into tables
type DataReader struct {
	coercer *coercer.TypeCoercer
	logger  *slog.Logger
}

// NewDataReader creates a reader using the default coercion rules
func NewDataReader(logger *slog.Logger) *DataReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataReader{
		coercer: coercer.NewTypeCoercer(coercer.DefaultCoercionConfig()),
		logger:  logger.With("component", "DataReader"),
	}
}

// ReadTable parses the upload named name. Parsing is all-or-nothing: any
// failure is a ParseError and no table is returned.
func (r *DataReader) ReadTable(name string, src io.Reader) (*table.Table, error) {
	fileType, err := DetectFileType(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var rows [][]string
	switch fileType {
	case FileTypeCSV:
		rows, err = r.readCSVRows(src)
	case FileTypeXLSX:
		rows, err = r.readExcelRows(src)
	}
	if err != nil {
		return nil, err
	}

	t, err := r.processRows(rows)
	if err != nil {
		return nil, err
	}

	r.logger.Info("file parsed",
		"file", name,
		"type", string(fileType),
		"columns", len(t.Columns),
		"rows", t.Len(),
		"elapsed_ms", float64(time.Since(start).Microseconds())/1000)
	return t, nil
}

// readExcelRows reads the first sheet of the workbook
func (r *DataReader) readExcelRows(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, errors.ParseError("failed to open Excel file", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ParseError("Excel file has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.ParseError(fmt.Sprintf("failed to read sheet %q", sheets[0]), err)
	}
	return rows, nil
}

// readCSVRows reads comma-delimited records. Rows longer than the header
// are rejected; shorter rows are padded with missing values.
func (r *DataReader) readCSVRows(src io.Reader) ([][]string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.ParseError("failed to read CSV file", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.ParseError("failed to read CSV file", err)
	}
	return rows, nil
}

// processRows turns raw string rows into a typed table. The first row is the
// header.
func (r *DataReader) processRows(rows [][]string) (*table.Table, error) {
	if len(rows) == 0 {
		return nil, errors.ParseError("file is empty: a header row is required", nil)
	}

	headers := headerNames(rows[0])
	if len(headers) == 0 {
		return nil, errors.ParseError("header row has no columns", nil)
	}

	data := rows[1:]
	for i, row := range data {
		if len(row) > len(headers) {
			return nil, errors.ParseError(
				fmt.Sprintf("row %d has %d fields, expected at most %d", i+2, len(row), len(headers)), nil)
		}
	}

	out := make([]table.Row, len(data))
	for i := range out {
		out[i] = make(table.Row, len(headers))
	}
	for j, header := range headers {
		cells := make([]string, len(data))
		for i, row := range data {
			if j < len(row) {
				cells[i] = row[j]
			}
		}
		values, _ := r.coercer.CoerceColumn(cells)
		for i, v := range values {
			out[i][header] = v
		}
	}

	return table.New(headers, out), nil
}

// headerNames trims the header cells, names blank headers "Unnamed: <i>"
// and suffixes repeated names with ".1", ".2", ...
func headerNames(raw []string) []string {
	headers := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}
