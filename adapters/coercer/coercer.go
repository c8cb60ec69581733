package coercer

import (
	"math"
	"strconv"
	"strings"

	"tablefix/domain/table"
)

// TypeCoercer turns raw text cells into typed values, one column at a time
type TypeCoercer struct {
	config CoercionConfig
}

// CoercionConfig defines the coercion thresholds and rules
type CoercionConfig struct {
	NumericThreshold float64 `json:"numeric_threshold"` // share of non-missing cells that must parse as numbers
	BooleanThreshold float64 `json:"boolean_threshold"` // share of non-missing cells that must parse as booleans
	TrimSpaces       bool    `json:"trim_spaces"` // trim before parsing numbers and booleans only
	MissingMarkers   []string
}

// DefaultCoercionConfig mirrors the usual spreadsheet import behaviour: a
// column is numeric or boolean only if every present cell is.
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		NumericThreshold: 1.0,
		BooleanThreshold: 1.0,
		TrimSpaces:       true,
		MissingMarkers: []string{
			"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
			"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
			"n/a", "nan", "null",
		},
	}
}

// NewTypeCoercer creates a coercer with the given config
func NewTypeCoercer(config CoercionConfig) *TypeCoercer {
	return &TypeCoercer{config: config}
}

// TypeAnalysis contains the results of type distribution analysis
type TypeAnalysis struct {
	TotalCount      int        `json:"total_count"`
	ValidCount      int        `json:"valid_count"`
	NumericCount    int        `json:"numeric_count"`
	BooleanCount    int        `json:"boolean_count"`
	NumericRatio    float64    `json:"numeric_ratio"`
	BooleanRatio    float64    `json:"boolean_ratio"`
	RecommendedType table.Kind `json:"recommended_type"`
}

// AnalyzeTypeDistribution decides the column kind from its raw cells
func (c *TypeCoercer) AnalyzeTypeDistribution(values []string) TypeAnalysis {
	analysis := TypeAnalysis{TotalCount: len(values)}

	for _, raw := range values {
		if c.isMissing(raw) {
			continue
		}
		s := c.clean(raw)
		analysis.ValidCount++
		if _, ok := parseNumber(s); ok {
			analysis.NumericCount++
		}
		if _, ok := parseBool(s); ok {
			analysis.BooleanCount++
		}
	}

	if analysis.ValidCount > 0 {
		analysis.NumericRatio = float64(analysis.NumericCount) / float64(analysis.ValidCount)
		analysis.BooleanRatio = float64(analysis.BooleanCount) / float64(analysis.ValidCount)
	}
	analysis.RecommendedType = c.determineRecommendedType(analysis)
	return analysis
}

func (c *TypeCoercer) determineRecommendedType(analysis TypeAnalysis) table.Kind {
	if analysis.ValidCount == 0 {
		// An all-missing column behaves like an empty numeric column.
		return table.KindNumber
	}
	if analysis.NumericRatio >= c.config.NumericThreshold {
		return table.KindNumber
	}
	if analysis.BooleanRatio >= c.config.BooleanThreshold {
		return table.KindBool
	}
	return table.KindString
}

// CoerceValue converts one raw cell to the column kind. Cells that do not fit
// the kind are kept as strings with their text unchanged.
func (c *TypeCoercer) CoerceValue(raw string, kind table.Kind) table.Value {
	if c.isMissing(raw) {
		return table.Null()
	}
	s := c.clean(raw)
	switch kind {
	case table.KindNumber:
		if f, ok := parseNumber(s); ok {
			return table.Number(f)
		}
	case table.KindBool:
		if b, ok := parseBool(s); ok {
			return table.Bool(b)
		}
	}
	return table.String(raw)
}

// CoerceColumn analyzes and converts a whole column
func (c *TypeCoercer) CoerceColumn(values []string) ([]table.Value, table.Kind) {
	kind := c.AnalyzeTypeDistribution(values).RecommendedType
	out := make([]table.Value, len(values))
	for i, v := range values {
		out[i] = c.CoerceValue(v, kind)
	}
	return out, kind
}

func (c *TypeCoercer) clean(s string) string {
	if c.config.TrimSpaces {
		return strings.TrimSpace(s)
	}
	return s
}

func (c *TypeCoercer) isMissing(s string) bool {
	for _, m := range c.config.MissingMarkers {
		if s == m {
			return true
		}
	}
	return false
}

// parseNumber accepts plain decimal and scientific notation. Hex floats,
// underscores and infinities are rejected.
func parseNumber(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "_xXpP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}
