package modifier

import (
	"fmt"
	"math"
	"strings"

	"tablefix/domain/table"
	"tablefix/internal/errors"

	"github.com/tidwall/gjson"
)

// ParseRules decodes a JSON array of rule objects. Text that is not a JSON
// array is a ParseError; a rule with missing or mistyped keys is a
// RuleEvaluationError.
func ParseRules(text string) ([]Rule, error) {
	items, err := parseArray(text, "rules")
	if err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, errors.RuleEvaluationError(fmt.Sprintf("rule %d must be an object", i), nil)
		}
		column, err := stringField(item, "column")
		if err != nil {
			return nil, errors.RuleEvaluationError(fmt.Sprintf("rule %d", i), err)
		}
		condition, err := stringField(item, "condition")
		if err != nil {
			return nil, errors.RuleEvaluationError(fmt.Sprintf("rule %d", i), err)
		}
		raw := item.Get("value")
		if !raw.Exists() {
			return nil, errors.RuleEvaluationError(fmt.Sprintf("rule %d", i), fmt.Errorf("missing key \"value\""))
		}
		value, err := scalar(raw)
		if err != nil {
			return nil, errors.RuleEvaluationError(fmt.Sprintf("rule %d", i), err)
		}
		rules = append(rules, Rule{Column: column, Condition: Condition(condition), Value: value})
	}
	return rules, nil
}

// ParseOperations decodes a JSON array of row operations. Text that is not a
// JSON array is a ParseError; a malformed entry is an OperationFormatError.
func ParseOperations(text string) ([]RowOperation, error) {
	items, err := parseArray(text, "operations")
	if err != nil {
		return nil, err
	}

	ops := make([]RowOperation, 0, len(items))
	for i, item := range items {
		op, err := parseOperation(item)
		if err != nil {
			return nil, errors.OperationFormatError(fmt.Sprintf("operation %d", i), err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseOperation(item gjson.Result) (RowOperation, error) {
	if !item.IsObject() {
		return nil, fmt.Errorf("operation must be an object")
	}
	action, err := stringField(item, "action")
	if err != nil {
		return nil, err
	}

	switch action {
	case "add":
		data := item.Get("row_data")
		if !data.IsObject() {
			return nil, fmt.Errorf("add operation requires a \"row_data\" object")
		}
		op := AddRow{Values: table.Row{}}
		var cellErr error
		data.ForEach(func(key, value gjson.Result) bool {
			v, err := scalar(value)
			if err != nil {
				cellErr = fmt.Errorf("row_data %q: %w", key.String(), err)
				return false
			}
			if _, dup := op.Values[key.String()]; !dup {
				op.Columns = append(op.Columns, key.String())
			}
			op.Values[key.String()] = v
			return true
		})
		if cellErr != nil {
			return nil, cellErr
		}
		return op, nil

	case "delete":
		idx := item.Get("index")
		if !idx.Exists() || idx.Type == gjson.Null {
			return DeleteRow{}, nil
		}
		if idx.Type != gjson.Number || idx.Num != math.Trunc(idx.Num) {
			return nil, fmt.Errorf("delete index must be an integer, got %s", idx.Raw)
		}
		if math.Abs(idx.Num) > math.MaxInt32 {
			// Beyond any table we hold; keep the no-op semantics.
			return DeleteRow{Index: -1, HasIndex: true}, nil
		}
		return Delete(int(idx.Num)), nil

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func parseArray(text, what string) ([]gjson.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.ParseError(fmt.Sprintf("%s input is empty", what), nil)
	}
	if !gjson.Valid(text) {
		return nil, errors.ParseError(fmt.Sprintf("%s input is not valid JSON", what), nil)
	}
	root := gjson.Parse(text)
	if !root.IsArray() {
		return nil, errors.ParseError(fmt.Sprintf("%s input must be a JSON array", what), nil)
	}
	return root.Array(), nil
}

func stringField(item gjson.Result, key string) (string, error) {
	v := item.Get(key)
	if !v.Exists() {
		return "", fmt.Errorf("missing key %q", key)
	}
	if v.Type != gjson.String {
		return "", fmt.Errorf("key %q must be a string", key)
	}
	return v.Str, nil
}

func scalar(r gjson.Result) (table.Value, error) {
	switch r.Type {
	case gjson.Null:
		return table.Null(), nil
	case gjson.Number:
		return table.Number(r.Num), nil
	case gjson.String:
		return table.String(r.Str), nil
	case gjson.True:
		return table.Bool(true), nil
	case gjson.False:
		return table.Bool(false), nil
	default:
		return table.Value{}, fmt.Errorf("expected a scalar, got %s", r.Raw)
	}
}
