// Package table holds the in-memory tabular dataset that the modifier
// transforms. Tables are treated as immutable values: every transformation
// builds a new Table and leaves its input untouched.
package table

import "strings"

// Row maps column names to cell values. A column missing from the map reads
// as null.
type Row map[string]Value

// Get returns the value for a column, or null when absent
func (r Row) Get(column string) Value {
	if v, ok := r[column]; ok {
		return v
	}
	return Null()
}

// Clone returns a shallow copy; values are scalars so this is a full copy
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered sequence of rows sharing one column list
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates a table with the given columns and rows. Neither slice is
// retained.
func New(columns []string, rows []Row) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([]Row, len(rows)),
	}
	for i, r := range rows {
		t.Rows[i] = r.Clone()
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the column is part of the schema
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Clone deep-copies the table
func (t *Table) Clone() *Table {
	if t == nil {
		return New(nil, nil)
	}
	return New(t.Columns, t.Rows)
}

// Derive returns a table with the same columns and the given rows. Rows are
// copied so the result never aliases the receiver.
func (t *Table) Derive(rows []Row) *Table {
	return New(t.Columns, rows)
}

// RowKey encodes a row across the table's columns for duplicate detection
func (t *Table) RowKey(r Row) string {
	var b strings.Builder
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(r.Get(c).key())
	}
	return b.String()
}

// Records returns the rows as plain maps for JSON encoding, every column
// present
func (t *Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make(map[string]interface{}, len(t.Columns))
		for _, c := range t.Columns {
			rec[c] = r.Get(c).Interface()
		}
		out = append(out, rec)
	}
	return out
}

// Equal compares columns and row contents in order
func (t *Table) Equal(other *Table) bool {
	if t.Len() != other.Len() || len(t.Columns) != len(other.Columns) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		for _, c := range t.Columns {
			if !t.Rows[i].Get(c).Equal(other.Rows[i].Get(c)) {
				return false
			}
		}
	}
	return true
}
