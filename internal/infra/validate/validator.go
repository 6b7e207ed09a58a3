// Package validate rejects malformed calls before any tool code runs.
package validate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"tooldeck/internal/domain"
)

// Args checks arguments against a parameter schema and reports every
// violation in one pass: all missing required parameters, kind mismatches
// and enum violations together, so callers are not forced into a
// trial-and-error loop. Unknown extra arguments pass through untouched.
// Returns nil when the call is well-formed.
func Args(schema domain.ParameterSchema, args map[string]any) *domain.Error {
	var violations []domain.Violation

	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		param := schema[name]
		value, present := args[name]

		if !present || value == nil {
			if param.Required {
				violations = append(violations, domain.Violation{
					Param:  name,
					Reason: "required parameter is missing",
				})
			}
			continue
		}

		if reason, ok := kindMismatch(param.Kind, value); ok {
			violations = append(violations, domain.Violation{Param: name, Reason: reason})
			continue
		}

		if len(param.Enum) > 0 && !enumAllows(param.Enum, value) {
			violations = append(violations, domain.Violation{
				Param:  name,
				Reason: fmt.Sprintf("value %v is not one of the allowed values %v", value, param.Enum),
			})
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &domain.Error{
		Kind:       domain.ErrValidation,
		Op:         "validate.args",
		Violations: violations,
		Hint:       "check the tool's parameter schema via the tools listing",
	}
}

// kindMismatch enforces strict kind conformance. Numeric strings are not
// coerced: "42" against a number parameter is an error.
func kindMismatch(kind domain.ParamKind, value any) (string, bool) {
	ok := false
	switch kind {
	case domain.KindString:
		_, ok = value.(string)
	case domain.KindBoolean:
		_, ok = value.(bool)
	case domain.KindNumber:
		ok = isNumber(value)
	case domain.KindObject:
		_, ok = value.(map[string]any)
	case domain.KindArray:
		ok = reflect.TypeOf(value).Kind() == reflect.Slice
	default:
		// Unknown kinds are rejected at catalog load; treat as pass-through.
		ok = true
	}
	if ok {
		return "", false
	}
	return fmt.Sprintf("expected %s, got %s", kind, describeValue(value)), true
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}

func enumAllows(enum []any, value any) bool {
	for _, allowed := range enum {
		if numericEqual(allowed, value) || reflect.DeepEqual(allowed, value) {
			return true
		}
	}
	return false
}

// numericEqual compares numbers across the int/float representations JSON
// and YAML decoders produce.
func numericEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func describeValue(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		if isNumber(value) {
			return "number"
		}
		if reflect.TypeOf(value).Kind() == reflect.Slice {
			return "array"
		}
		return fmt.Sprintf("%T", value)
	}
}
