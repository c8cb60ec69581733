package modifier

import (
	"math"
	"testing"
	"time"

	"tablefix/domain/table"
	"tablefix/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"Column1", "Column2", "Column3"}

func row(c1 float64, c2 string, c3 float64) table.Row {
	return table.Row{
		"Column1": table.Number(c1),
		"Column2": table.String(c2),
		"Column3": table.Number(c3),
	}
}

func sample() *table.Table {
	return table.New(columns, []table.Row{
		row(10, "A", 100),
		row(20, "B", 200),
		row(10, "A", 100),
		row(5, "C", 300),
		row(20, "B", 200),
	})
}

func fixedClock() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestRemoveDuplicates(t *testing.T) {
	m := New(WithClock(fixedClock))
	in := sample()

	out := m.RemoveDuplicates(in)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, "A", out.Rows[0].Get("Column2").Str)
	assert.Equal(t, "B", out.Rows[1].Get("Column2").Str)
	assert.Equal(t, "C", out.Rows[2].Get("Column2").Str)
	assert.Equal(t, 5, in.Len(), "input table must not change")

	log := m.SaveLog()
	require.Len(t, log, 1)
	assert.Equal(t, ActionRemoveDuplicates, log[0].Action)
	assert.Equal(t, "Removed 2 duplicate rows.", log[0].Details)
	assert.Equal(t, fixedClock(), log[0].Timestamp)
}

func TestRemoveDuplicatesIdempotent(t *testing.T) {
	m := New()
	once := m.RemoveDuplicates(sample())
	twice := m.RemoveDuplicates(once)

	assert.True(t, once.Equal(twice))
	assert.Equal(t, "Removed 0 duplicate rows.", m.SaveLog()[1].Details)
}

func TestRemoveDuplicatesNullsMatch(t *testing.T) {
	in := table.New([]string{"a", "b"}, []table.Row{
		{"a": table.Number(1)},
		{"a": table.Number(1), "b": table.Null()},
		{"a": table.String("1")},
	})

	out := New().RemoveDuplicates(in)
	assert.Equal(t, 2, out.Len())
}

func TestRemoveDuplicatesNegativeZero(t *testing.T) {
	in := table.New([]string{"a"}, []table.Row{
		{"a": table.Number(0)},
		{"a": table.Number(math.Copysign(0, -1))},
	})

	out := New().RemoveDuplicates(in)
	assert.Equal(t, 1, out.Len())
}

func TestApplyRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		want  []string
	}{
		{
			name:  "greater than",
			rules: []Rule{{Column: "Column1", Condition: GreaterThan, Value: table.Number(10)}},
			want:  []string{"B", "B"},
		},
		{
			name:  "less than",
			rules: []Rule{{Column: "Column3", Condition: LessThan, Value: table.Number(200)}},
			want:  []string{"A", "A"},
		},
		{
			name:  "equals string",
			rules: []Rule{{Column: "Column2", Condition: Equals, Value: table.String("C")}},
			want:  []string{"C"},
		},
		{
			name: "successive narrowing",
			rules: []Rule{
				{Column: "Column1", Condition: GreaterThan, Value: table.Number(5)},
				{Column: "Column3", Condition: LessThan, Value: table.Number(200)},
			},
			want: []string{"A", "A"},
		},
		{
			name:  "equals across kinds matches nothing",
			rules: []Rule{{Column: "Column2", Condition: Equals, Value: table.Number(1)}},
			want:  []string{},
		},
		{
			name:  "unknown condition is skipped",
			rules: []Rule{{Column: "Column1", Condition: "between", Value: table.Number(1)}},
			want:  []string{"A", "B", "A", "C", "B"},
		},
		{
			name:  "no rules",
			rules: nil,
			want:  []string{"A", "B", "A", "C", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			out, err := m.ApplyRules(sample(), tt.rules)
			require.NoError(t, err)

			got := make([]string, 0, out.Len())
			for _, r := range out.Rows {
				got = append(got, r.Get("Column2").Str)
			}
			assert.Equal(t, tt.want, got)

			log := m.SaveLog()
			require.Len(t, log, 1)
			assert.Equal(t, ActionApplyRules, log[0].Action)
		})
	}
}

func TestApplyRulesSubset(t *testing.T) {
	in := sample()
	rules := []Rule{
		{Column: "Column1", Condition: GreaterThan, Value: table.Number(5)},
		{Column: "Column2", Condition: Equals, Value: table.String("B")},
	}

	out, err := New().ApplyRules(in, rules)
	require.NoError(t, err)

	for _, r := range out.Rows {
		for _, rule := range rules {
			ok, err := rule.matches(r.Get(rule.Column))
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}
	for _, r := range in.Rows {
		passes := true
		for _, rule := range rules {
			ok, _ := rule.matches(r.Get(rule.Column))
			passes = passes && ok
		}
		if !passes {
			for _, kept := range out.Rows {
				assert.NotEqual(t, in.RowKey(r), in.RowKey(kept))
			}
		}
	}
}

func TestApplyRulesDetails(t *testing.T) {
	m := New()
	_, err := m.ApplyRules(sample(), []Rule{{Column: "Column1", Condition: GreaterThan, Value: table.Number(10)}})
	require.NoError(t, err)

	assert.Equal(t,
		`Applied rules: [{"column": "Column1", "condition": "greater_than", "value": 10}]. Remaining rows: 2`,
		m.SaveLog()[0].Details)
}

func TestApplyRulesMissingColumnFailsClosed(t *testing.T) {
	m := New()
	in := sample()

	out, err := m.ApplyRules(in, []Rule{
		{Column: "Column1", Condition: GreaterThan, Value: table.Number(5)},
		{Column: "DoesNotExist", Condition: Equals, Value: table.Number(1)},
	})

	require.Error(t, err)
	assert.Equal(t, errors.CodeRuleEvaluation, errors.GetCode(err))
	assert.Same(t, in, out)
	assert.Equal(t, 5, out.Len())
	assert.Empty(t, m.SaveLog())
}

func TestApplyRulesTypeMismatch(t *testing.T) {
	m := New()
	in := sample()

	out, err := m.ApplyRules(in, []Rule{{Column: "Column2", Condition: GreaterThan, Value: table.Number(5)}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeRuleEvaluation))
	assert.Same(t, in, out)
	assert.Empty(t, m.SaveLog())
}

func TestApplyRulesBooleansCompareAsNumbers(t *testing.T) {
	in := table.New([]string{"flag"}, []table.Row{
		{"flag": table.Bool(true)},
		{"flag": table.Bool(false)},
		{"flag": table.Bool(true)},
	})

	tests := []struct {
		name string
		rule Rule
		want int
	}{
		{"greater than zero", Rule{Column: "flag", Condition: GreaterThan, Value: table.Number(0)}, 2},
		{"less than one", Rule{Column: "flag", Condition: LessThan, Value: table.Number(1)}, 1},
		{"equals one", Rule{Column: "flag", Condition: Equals, Value: table.Number(1)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New().ApplyRules(in, []Rule{tt.rule})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Len())
		})
	}
}

func TestApplyRulesNullCellsDoNotMatch(t *testing.T) {
	in := table.New([]string{"n"}, []table.Row{
		{"n": table.Number(3)},
		{"n": table.Null()},
		{},
	})

	out, err := New().ApplyRules(in, []Rule{{Column: "n", Condition: LessThan, Value: table.Number(10)}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestApplyRulesStrictConditions(t *testing.T) {
	m := New(WithStrictConditions(true))
	in := sample()

	out, err := m.ApplyRules(in, []Rule{{Column: "Column1", Condition: "between", Value: table.Number(1)}})

	require.Error(t, err)
	assert.Equal(t, errors.CodeRuleEvaluation, errors.GetCode(err))
	assert.Same(t, in, out)
}

func threeRows() *table.Table {
	return table.New(columns, []table.Row{
		row(1, "A", 100),
		row(2, "B", 200),
		row(3, "C", 300),
	})
}

func names(tb *table.Table) []string {
	out := make([]string, 0, tb.Len())
	for _, r := range tb.Rows {
		out = append(out, r.Get("Column2").Str)
	}
	return out
}

func TestSequentialDeleteReplay(t *testing.T) {
	out, err := New().AddOrDeleteRows(threeRows(), []RowOperation{Delete(0), Delete(0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, names(out))
}

func TestAddAppendsAtEnd(t *testing.T) {
	in := table.New(columns, []table.Row{row(1, "A", 100), row(2, "B", 200)})

	out, err := New().AddOrDeleteRows(in, []RowOperation{Add("Column1", 30, "Column2", "F", "Column3", 600)})
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, []string{"A", "B", "F"}, names(out))
	last := out.Rows[2]
	assert.Equal(t, 30.0, last.Get("Column1").Num)
	assert.Equal(t, 600.0, last.Get("Column3").Num)
	assert.Equal(t, 2, in.Len())
}

func TestAddLooseSchema(t *testing.T) {
	in := table.New(columns, []table.Row{row(1, "A", 100)})

	out, err := New().AddOrDeleteRows(in, []RowOperation{Add("Column1", 7, "Extra", true)})
	require.NoError(t, err)

	assert.Equal(t, []string{"Column1", "Column2", "Column3", "Extra"}, out.Columns)
	assert.True(t, out.Rows[0].Get("Extra").IsNull())
	assert.True(t, out.Rows[1].Get("Column2").IsNull())
	assert.True(t, out.Rows[1].Get("Extra").Bool)
	assert.Equal(t, columns, in.Columns)
}

func TestOutOfRangeDeleteIsSafe(t *testing.T) {
	in := table.New(columns, []table.Row{row(1, "A", 100), row(2, "B", 200)})

	out, err := New().AddOrDeleteRows(in, []RowOperation{Delete(99), Delete(-1), DeleteRow{}})
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

func TestAddThenDeleteUsesCurrentPositions(t *testing.T) {
	m := New()
	out, err := m.AddOrDeleteRows(threeRows(), []RowOperation{
		Add("Column1", 4, "Column2", "D", "Column3", 400),
		Delete(1),
		Delete(2),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, names(out))
	assert.Equal(t,
		`Performed operations: [{"action": "add", "row_data": {"Column1": 4, "Column2": "D", "Column3": 400}}, {"action": "delete", "index": 1}, {"action": "delete", "index": 2}]. Final rows: 2`,
		m.SaveLog()[0].Details)
}

func TestMalformedOperationFailsBatch(t *testing.T) {
	m := New()
	in := threeRows()

	out, err := m.AddOrDeleteRows(in, []RowOperation{Delete(0), AddRow{}})

	require.Error(t, err)
	assert.Equal(t, errors.CodeOperationFormat, errors.GetCode(err))
	assert.Same(t, in, out)
	assert.Empty(t, m.SaveLog())
}

func TestLogAppendOnly(t *testing.T) {
	m := New()
	tb := sample()

	tb = m.RemoveDuplicates(tb)
	tb, err := m.ApplyRules(tb, []Rule{{Column: "Column1", Condition: GreaterThan, Value: table.Number(1)}})
	require.NoError(t, err)
	first := m.SaveLog()

	_, err = m.ApplyRules(tb, []Rule{{Column: "Nope", Condition: Equals, Value: table.Number(1)}})
	require.Error(t, err)
	_, err = m.AddOrDeleteRows(tb, []RowOperation{Delete(0)})
	require.NoError(t, err)

	log := m.SaveLog()
	require.Len(t, log, 3)
	assert.Equal(t, first, log[:2])
	assert.Equal(t, []string{ActionRemoveDuplicates, ActionApplyRules, ActionAddOrDeleteRows},
		[]string{log[0].Action, log[1].Action, log[2].Action})

	log[0].Details = "tampered"
	assert.NotEqual(t, "tampered", m.SaveLog()[0].Details)
}
