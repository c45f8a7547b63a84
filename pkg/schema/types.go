package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Type defines the contract for field validation.
// Implementations determine how values are validated against a type.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// Normalizer is implemented by types that convert an accepted value to a
// canonical Go representation (e.g. JSON float64 to int).
// Normalize is only called on values that passed Validate.
type Normalizer interface {
	Normalize(value any) any
}

// Describer is implemented by types that can render themselves as a JSON-schema fragment.
type Describer interface {
	JSONSchema() map[string]any
}

// --- Built-in Type Implementations ---

// StringType validates string values.
type StringType struct {
	nonEmpty bool
}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if t.nonEmpty && strings.TrimSpace(s) == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func (t *StringType) Normalize(value any) any {
	return strings.TrimSpace(value.(string))
}

func (t *StringType) JSONSchema() map[string]any {
	out := map[string]any{"type": "string"}
	if t.nonEmpty {
		out["minLength"] = 1
	}
	return out
}

// IntType validates integer values, optionally within a closed range.
type IntType struct {
	min, max int64
	hasMin   bool
	hasMax   bool
}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	n, err := toInt64(value)
	if err != nil {
		return err
	}
	if t.hasMin && n < t.min {
		return fmt.Errorf("must be >= %d", t.min)
	}
	if t.hasMax && n > t.max {
		return fmt.Errorf("must be <= %d", t.max)
	}
	return nil
}

func (t *IntType) Normalize(value any) any {
	n, _ := toInt64(value)
	return int(n)
}

func (t *IntType) JSONSchema() map[string]any {
	out := map[string]any{"type": "integer"}
	if t.hasMin {
		out["minimum"] = t.min
	}
	if t.hasMax {
		out["maximum"] = t.max
	}
	return out
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("expected int, got float (not a whole number)")
		}
		// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("out of integer range: %g", v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", v.String())
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected int, got %T", value)
	}
}

// NumberType validates numeric values. Strings are rejected, even numeric ones.
type NumberType struct {
	min          float64
	hasMin       bool
	exclusiveMin bool
}

func (t *NumberType) Name() string { return "number" }

func (t *NumberType) Validate(value any) error {
	f, err := toFloat64(value)
	if err != nil {
		return err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("must be a finite number")
	}
	if t.hasMin {
		if t.exclusiveMin && f <= t.min {
			return fmt.Errorf("must be > %g", t.min)
		}
		if !t.exclusiveMin && f < t.min {
			return fmt.Errorf("must be >= %g", t.min)
		}
	}
	return nil
}

func (t *NumberType) Normalize(value any) any {
	f, _ := toFloat64(value)
	return f
}

func (t *NumberType) JSONSchema() map[string]any {
	out := map[string]any{"type": "number"}
	if t.hasMin {
		if t.exclusiveMin {
			out["exclusiveMinimum"] = t.min
		} else {
			out["minimum"] = t.min
		}
	}
	return out
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v.String())
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	_, ok := value.(bool)
	if !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

func (t *BoolType) JSONSchema() map[string]any {
	return map[string]any{"type": "boolean"}
}

// EnumType validates that a string is one of a fixed set of members.
// Matching is case-insensitive; Normalize returns the declared member.
type EnumType struct {
	values []string
}

func (t *EnumType) Name() string {
	return "enum(" + strings.Join(t.values, "|") + ")"
}

func (t *EnumType) Validate(value any) error {
	if _, ok := t.match(value); !ok {
		if _, isString := value.(string); !isString {
			return fmt.Errorf("expected string, got %T", value)
		}
		return fmt.Errorf("must be one of %s", strings.Join(t.values, ", "))
	}
	return nil
}

func (t *EnumType) Normalize(value any) any {
	member, _ := t.match(value)
	return member
}

func (t *EnumType) JSONSchema() map[string]any {
	values := make([]any, len(t.values))
	for i, v := range t.values {
		values[i] = v
	}
	return map[string]any{"type": "string", "enum": values}
}

func (t *EnumType) match(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	for _, v := range t.values {
		if strings.EqualFold(v, s) {
			return v, true
		}
	}
	return "", false
}

// DateLayout is the canonical calendar date format.
const DateLayout = "2006-01-02"

// DateType validates calendar dates given as YYYY-MM-DD, RFC3339 timestamps
// or the relative words "today", "tomorrow" and "yesterday".
type DateType struct {
	now func() time.Time
}

func (t *DateType) Name() string { return "date" }

func (t *DateType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected date string, got %T", value)
	}
	if _, err := t.parse(s); err != nil {
		return err
	}
	return nil
}

func (t *DateType) Normalize(value any) any {
	d, _ := t.parse(value.(string))
	return d.Format(DateLayout)
}

func (t *DateType) JSONSchema() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Calendar date as YYYY-MM-DD (today, tomorrow and yesterday are accepted).",
	}
}

func (t *DateType) parse(s string) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	today := t.now()
	switch s {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, strings.ToUpper(s)); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("expected date as YYYY-MM-DD, got %q", s)
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	jsonType string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

func (t *CustomType) JSONSchema() map[string]any {
	return map[string]any{"type": t.jsonType}
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// NonEmpty creates a string type validator that rejects blank strings.
func NonEmpty() Type { return &StringType{nonEmpty: true} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// IntBetween creates an integer type validator bounded by [min, max].
func IntBetween(min, max int64) Type {
	return &IntType{min: min, max: max, hasMin: true, hasMax: true}
}

// Number creates a numeric type validator.
func Number() Type { return &NumberType{} }

// NonNegative creates a numeric type validator for values >= 0.
func NonNegative() Type { return &NumberType{hasMin: true} }

// Positive creates a numeric type validator for values > 0.
func Positive() Type { return &NumberType{hasMin: true, exclusiveMin: true} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Enum creates a validator accepting only the given string members.
func Enum(values ...string) Type {
	return &EnumType{values: append([]string(nil), values...)}
}

// Date creates a calendar date validator using the wall clock for relative dates.
func Date() Type { return DateAt(time.Now) }

// DateAt creates a calendar date validator using the given clock for relative dates.
func DateAt(now func() time.Time) Type {
	return &DateType{now: now}
}

// Custom creates a custom type validator with a user-defined function.
// jsonType is the JSON-schema "type" reported to planners.
func Custom(name, jsonType string, validate func(any) error) Type {
	return &CustomType{name: name, jsonType: jsonType, validate: validate}
}
