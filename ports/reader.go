package ports

import (
	"io"

	"tablefix/domain/table"
)

// TableReader turns an uploaded file into a table. The file name selects
// the format by extension.
type TableReader interface {
	ReadTable(name string, src io.Reader) (*table.Table, error)
}
