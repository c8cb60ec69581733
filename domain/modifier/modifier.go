// Package modifier applies cleanup transformations to a table and keeps an
// append-only log of what was applied.
//
// Each operation returns a new table. On failure the input table is returned
// as-is together with the error, and nothing is logged.
package modifier

import (
	"fmt"
	"log/slog"
	"time"

	"tablefix/domain/table"
	"tablefix/internal/errors"
)

// Modifier applies transformations and records them. It is owned by a single
// session and is not safe for concurrent use.
type Modifier struct {
	log    []LogEntry
	strict bool
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Modifier
type Option func(*Modifier)

// WithStrictConditions makes unknown rule conditions fail with a
// RuleEvaluationError instead of being skipped
func WithStrictConditions(strict bool) Option {
	return func(m *Modifier) { m.strict = strict }
}

// WithLogger sets the logger used for warnings
func WithLogger(logger *slog.Logger) Option {
	return func(m *Modifier) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *Modifier) { m.now = now }
}

// New creates a modifier with an empty log
func New(opts ...Option) *Modifier {
	m := &Modifier{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Modifier) record(action, details string) {
	m.log = append(m.log, LogEntry{
		Action:    action,
		Details:   details,
		Timestamp: m.now().UTC(),
	})
}

// RemoveDuplicates drops rows identical in every column to an earlier row,
// keeping first occurrences in order
func (m *Modifier) RemoveDuplicates(t *table.Table) *table.Table {
	seen := make(map[string]struct{}, t.Len())
	kept := make([]table.Row, 0, t.Len())
	for _, row := range t.Rows {
		key := t.RowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}

	out := t.Derive(kept)
	m.record(ActionRemoveDuplicates, fmt.Sprintf("Removed %d duplicate rows.", t.Len()-out.Len()))
	return out
}

// ApplyRules narrows the table by each rule in turn. Rules with an unknown
// condition are skipped unless the modifier is strict.
func (m *Modifier) ApplyRules(t *table.Table, rules []Rule) (*table.Table, error) {
	current := t.Rows
	for i, rule := range rules {
		if !rule.Condition.Known() {
			if m.strict {
				return t, errors.RuleEvaluationError(
					fmt.Sprintf("rule %d: unknown condition %q", i, rule.Condition), nil)
			}
			m.logger.Warn("skipping rule with unknown condition",
				"rule", i, "condition", string(rule.Condition))
			continue
		}
		if !t.HasColumn(rule.Column) {
			return t, errors.RuleEvaluationError(
				fmt.Sprintf("rule %d: column %q not found", i, rule.Column), nil)
		}

		kept := make([]table.Row, 0, len(current))
		for _, row := range current {
			ok, err := rule.matches(row.Get(rule.Column))
			if err != nil {
				return t, errors.RuleEvaluationError(fmt.Sprintf("rule %d", i), err)
			}
			if ok {
				kept = append(kept, row)
			}
		}
		current = kept
	}

	out := t.Derive(current)
	m.record(ActionApplyRules, fmt.Sprintf("Applied rules: %s. Remaining rows: %d", joinStrings(rules), out.Len()))
	return out, nil
}

// AddOrDeleteRows replays the operations in order against the progressively
// updated table. Deletes address rows by their position at the time they run;
// an out-of-range or missing index is ignored.
func (m *Modifier) AddOrDeleteRows(t *table.Table, ops []RowOperation) (*table.Table, error) {
	for i, op := range ops {
		if op == nil {
			return t, errors.OperationFormatError(fmt.Sprintf("operation %d is empty", i), nil)
		}
		if err := op.validate(); err != nil {
			return t, errors.OperationFormatError(fmt.Sprintf("operation %d", i), err)
		}
	}

	columns := append([]string(nil), t.Columns...)
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	rows := append([]table.Row(nil), t.Rows...)

	for _, op := range ops {
		switch o := op.(type) {
		case AddRow:
			for _, c := range o.Columns {
				if !known[c] {
					known[c] = true
					columns = append(columns, c)
				}
			}
			rows = append(rows, o.Values)
		case DeleteRow:
			if o.HasIndex && o.Index >= 0 && o.Index < len(rows) {
				rows = append(rows[:o.Index], rows[o.Index+1:]...)
			}
		}
	}

	out := table.New(columns, rows)
	m.record(ActionAddOrDeleteRows, fmt.Sprintf("Performed operations: %s. Final rows: %d", joinStrings(ops), out.Len()))
	return out, nil
}

// SaveLog returns a copy of the log in the order entries were recorded
func (m *Modifier) SaveLog() []LogEntry {
	return append([]LogEntry(nil), m.log...)
}
