package schema

import (
	"sort"

	"github.com/aretw0/tally/pkg/domain"
)

// Action declares a named operation the planner may request.
type Action struct {
	Name        string
	Description string
	Schema      Schema
}

// Validate checks raw arguments against the action's schema.
func (a Action) Validate(raw map[string]any) (map[string]any, error) {
	return Validate(a.Schema, raw)
}

// JSONSchema renders the argument contract as a JSON-schema object.
func (a Action) JSONSchema() map[string]any {
	props := make(map[string]any, len(a.Schema))
	required := []string{}
	for name, field := range a.Schema {
		prop := map[string]any{}
		if d, ok := field.Type.(Describer); ok {
			for k, v := range d.JSONSchema() {
				prop[k] = v
			}
		}
		if field.Description != "" {
			prop["description"] = field.Description
		}
		if field.Default != nil {
			prop["default"] = field.Default
		}
		props[name] = prop
		if field.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Definition returns the planner-facing description of the action.
func (a Action) Definition() domain.ActionDefinition {
	return domain.ActionDefinition{
		Name:        a.Name,
		Description: a.Description,
		Parameters:  a.JSONSchema(),
	}
}
