package schema

import "sort"

// Field declares one argument of an action.
type Field struct {
	Type        Type
	Required    bool
	Default     any        // Used when an optional field is absent
	DefaultFunc func() any // Takes precedence over Default (e.g. "today")
	Description string
}

// Schema is a map of field names to their declarations.
// Example: {"title": {Type: NonEmpty(), Required: true}, "priority": {Type: Int(), Default: 1}}
type Schema map[string]Field

// Validate checks data against the schema and returns the typed arguments:
// values normalised by their type, absent optional fields filled from their
// defaults and fields unknown to the schema dropped.
//
// Validation runs to completion and returns every independent failure as an
// *AggregateError sorted by field name. A nil map is treated as empty.
func Validate(schema Schema, data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(schema))
	var errs []error

	for _, name := range schema.fieldNames() {
		field := schema[name]
		value, exists := data[name]
		if !exists || value == nil {
			if field.Required {
				errs = append(errs, &ValidationError{
					Kind:   KindMissingField,
					Key:    name,
					Reason: "required",
				})
				continue
			}
			if def, ok := field.defaultValue(); ok {
				out[name] = def
			}
			continue
		}

		if field.Type == nil {
			out[name] = value
			continue
		}

		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Kind:   KindInvalidValue,
				Key:    name,
				Reason: err.Error(),
				Value:  value,
			})
			continue
		}

		if n, ok := field.Type.(Normalizer); ok {
			value = n.Normalize(value)
		}
		out[name] = value
	}

	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return out, nil
}

// Unknown returns the sorted keys of data that the schema does not declare.
func Unknown(schema Schema, data map[string]any) []string {
	var extra []string
	for k := range data {
		if _, ok := schema[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

func (s Schema) fieldNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f Field) defaultValue() (any, bool) {
	if f.DefaultFunc != nil {
		return f.DefaultFunc(), true
	}
	if f.Default != nil {
		return f.Default, true
	}
	return nil, false
}
