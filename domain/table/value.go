package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a single table cell
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

// Null returns the missing value
func Null() Value { return Value{Kind: KindNull} }

// Number wraps a float64
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// String wraps a string
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool wraps a bool
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IsNull reports whether the value is missing. NaN counts as missing.
func (v Value) IsNull() bool {
	return v.Kind == KindNull || (v.Kind == KindNumber && math.IsNaN(v.Num))
}

// Text renders the value the way it is written to CSV
func (v Value) Text() string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	}
	return ""
}

// Literal renders the value as a JSON-style literal for log messages
func (v Value) Literal() string {
	if v.IsNull() {
		return "null"
	}
	if v.Kind == KindString {
		return strconv.Quote(v.Str)
	}
	if v.Kind == KindBool {
		return strconv.FormatBool(v.Bool)
	}
	return v.Text()
}

// Interface converts the value to a plain Go value for JSON encoding
func (v Value) Interface() interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	}
	return nil
}

// AsNumber promotes a boolean to 0 or 1. Other values are returned as-is.
func (v Value) AsNumber() Value {
	if v.Kind != KindBool {
		return v
	}
	if v.Bool {
		return Number(1)
	}
	return Number(0)
}

// Equal reports exact equality. Values of different kinds are never equal,
// and two nulls are equal.
func (v Value) Equal(other Value) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() && other.IsNull()
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == other.Num
	case KindString:
		return v.Str == other.Str
	case KindBool:
		return v.Bool == other.Bool
	}
	return false
}

// Compare orders two non-null values of the same kind. It returns -1, 0 or
// +1 and fails when the kinds are not comparable.
func (v Value) Compare(other Value) (int, error) {
	if v.IsNull() || other.IsNull() {
		return 0, fmt.Errorf("cannot order null values")
	}
	if v.Kind != other.Kind {
		return 0, fmt.Errorf("'%s' and '%s' values are not comparable", v.Kind, other.Kind)
	}
	switch v.Kind {
	case KindNumber:
		switch {
		case v.Num < other.Num:
			return -1, nil
		case v.Num > other.Num:
			return 1, nil
		}
		return 0, nil
	case KindString:
		return strings.Compare(v.Str, other.Str), nil
	case KindBool:
		switch {
		case v.Bool == other.Bool:
			return 0, nil
		case !v.Bool:
			return -1, nil
		}
		return 1, nil
	}
	return 0, fmt.Errorf("unsupported value kind %s", v.Kind)
}

// key is an unambiguous encoding used for duplicate detection
func (v Value) key() string {
	if v.IsNull() {
		return "n"
	}
	switch v.Kind {
	case KindNumber:
		f := v.Num
		if f == 0 {
			f = 0 // -0 and 0 are the same value
		}
		return "f" + strconv.FormatFloat(f, 'g', -1, 64)
	case KindString:
		return "s" + strconv.Quote(v.Str)
	case KindBool:
		return "b" + strconv.FormatBool(v.Bool)
	}
	return "?"
}
