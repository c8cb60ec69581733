// Package profiling summarizes the columns of a table for display next to
// the data.
package profiling

import (
	"tablefix/domain/table"
)

// KindMixed marks a column holding values of more than one kind, which
// happens after rows with differently typed values are added
const KindMixed = "mixed"

// ColumnProfile describes one column
type ColumnProfile struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Count    int      `json:"count"`
	Nulls    int      `json:"nulls"`
	Distinct int      `json:"distinct"`
	Summary  *Summary `json:"summary,omitempty"`
}

// DataProfiler profiles every column of a table
type DataProfiler struct {
	distribution *DistributionAnalyzer
}

// NewDataProfiler creates a new data profiler
func NewDataProfiler() *DataProfiler {
	return &DataProfiler{distribution: NewDistributionAnalyzer()}
}

// ProfileTable returns one profile per column in column order
func (dp *DataProfiler) ProfileTable(t *table.Table) []ColumnProfile {
	if t == nil {
		return nil
	}
	out := make([]ColumnProfile, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, dp.ProfileColumn(c, t.Rows))
	}
	return out
}

// ProfileColumn analyzes a single column
func (dp *DataProfiler) ProfileColumn(name string, rows []table.Row) ColumnProfile {
	p := ColumnProfile{Name: name, Count: len(rows)}

	kinds := make(map[table.Kind]bool)
	distinct := make(map[table.Value]struct{})
	var numbers []float64

	for _, r := range rows {
		v := r.Get(name)
		if v.IsNull() {
			p.Nulls++
			continue
		}
		kinds[v.Kind] = true
		distinct[v] = struct{}{}
		if v.Kind == table.KindNumber {
			numbers = append(numbers, v.Num)
		}
	}
	p.Distinct = len(distinct)

	switch len(kinds) {
	case 0:
		p.Kind = table.KindNull.String()
	case 1:
		for k := range kinds {
			p.Kind = k.String()
		}
	default:
		p.Kind = KindMixed
	}

	if p.Kind == table.KindNumber.String() && len(numbers) > 0 {
		if s, err := dp.distribution.Summarize(numbers); err == nil {
			p.Summary = &s
		}
	}
	return p
}
