package modifier

import (
	"fmt"
	"strings"
	"time"

	"tablefix/domain/table"
)

// Action names recorded in the log
const (
	ActionRemoveDuplicates = "remove_duplicates"
	ActionApplyRules       = "apply_rules"
	ActionAddOrDeleteRows  = "add_or_delete_rows"
)

// Condition is the comparison a Rule performs
type Condition string

const (
	GreaterThan Condition = "greater_than"
	LessThan    Condition = "less_than"
	Equals      Condition = "equals"
)

// Known reports whether the condition is one the modifier evaluates
func (c Condition) Known() bool {
	switch c {
	case GreaterThan, LessThan, Equals:
		return true
	}
	return false
}

// Rule is a single-column comparison predicate
type Rule struct {
	Column    string
	Condition Condition
	Value     table.Value
}

func (r Rule) String() string {
	return fmt.Sprintf(`{"column": %q, "condition": %q, "value": %s}`, r.Column, r.Condition, r.Value.Literal())
}

// matches evaluates the predicate against one cell. Null cells never match.
// A boolean compared with a number counts as 0 or 1.
func (r Rule) matches(cell table.Value) (bool, error) {
	want := r.Value
	if mixesBoolAndNumber(cell, want) {
		cell, want = cell.AsNumber(), want.AsNumber()
	}
	if r.Condition == Equals {
		return !cell.IsNull() && cell.Equal(want), nil
	}
	if want.IsNull() {
		return false, fmt.Errorf("cannot compare column %q against null", r.Column)
	}
	if cell.IsNull() {
		return false, nil
	}
	cmp, err := cell.Compare(want)
	if err != nil {
		return false, err
	}
	if r.Condition == GreaterThan {
		return cmp > 0, nil
	}
	return cmp < 0, nil
}

func mixesBoolAndNumber(a, b table.Value) bool {
	return (a.Kind == table.KindBool && b.Kind == table.KindNumber) ||
		(a.Kind == table.KindNumber && b.Kind == table.KindBool)
}

// RowOperation is either an AddRow or a DeleteRow
type RowOperation interface {
	fmt.Stringer
	validate() error
}

// AddRow appends a row built from Values. Columns keeps the key order of the
// input so new columns are appended deterministically.
type AddRow struct {
	Columns []string
	Values  table.Row
}

func (a AddRow) validate() error {
	if a.Values == nil {
		return fmt.Errorf("add operation requires row_data")
	}
	return nil
}

func (a AddRow) String() string {
	parts := make([]string, 0, len(a.Columns))
	for _, c := range a.Columns {
		parts = append(parts, fmt.Sprintf("%q: %s", c, a.Values.Get(c).Literal()))
	}
	return fmt.Sprintf(`{"action": "add", "row_data": {%s}}`, strings.Join(parts, ", "))
}

// DeleteRow removes the row at Index as positioned when the operation runs.
// HasIndex is false when the input carried no index.
type DeleteRow struct {
	Index    int
	HasIndex bool
}

func (d DeleteRow) validate() error { return nil }

func (d DeleteRow) String() string {
	if !d.HasIndex {
		return `{"action": "delete"}`
	}
	return fmt.Sprintf(`{"action": "delete", "index": %d}`, d.Index)
}

// Delete is shorthand for a DeleteRow with an index
func Delete(index int) DeleteRow {
	return DeleteRow{Index: index, HasIndex: true}
}

// Add builds an AddRow from column/value pairs given in order
func Add(pairs ...interface{}) AddRow {
	op := AddRow{Values: table.Row{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		col := fmt.Sprint(pairs[i])
		op.Columns = append(op.Columns, col)
		op.Values[col] = toValue(pairs[i+1])
	}
	return op
}

func toValue(v interface{}) table.Value {
	switch x := v.(type) {
	case table.Value:
		return x
	case nil:
		return table.Null()
	case int:
		return table.Number(float64(x))
	case int64:
		return table.Number(float64(x))
	case float64:
		return table.Number(x)
	case bool:
		return table.Bool(x)
	case string:
		return table.String(x)
	default:
		return table.String(fmt.Sprint(x))
	}
}

// LogEntry records one applied transformation
type LogEntry struct {
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

func joinStrings[T fmt.Stringer](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
