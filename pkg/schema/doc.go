// Package schema provides the argument contracts of assistant actions.
//
// It defines a small type system with built-in types (string, int, number,
// bool, enum, date) and custom validators. A Schema maps field names to
// Field declarations (type, required flag, default), enabling validation of
// the raw arguments a planner produces before any side effect runs.
//
// Basic usage:
//
//	task := schema.Action{
//	    Name: "create_task",
//	    Schema: schema.Schema{
//	        "title":    {Type: schema.NonEmpty(), Required: true},
//	        "priority": {Type: schema.IntBetween(1, 5), Default: 1},
//	        "status":   {Type: schema.Enum("todo", "done"), Default: "todo"},
//	    },
//	}
//
//	args, err := task.Validate(map[string]any{"title": "follow up"})
//	// args == {"title": "follow up", "priority": 1, "status": "todo"}
//
// Validation is total: it never panics and collects every independent field
// issue into an *AggregateError of *ValidationError values, each classified
// as KindUnknownAction, KindMissingField or KindInvalidValue.
//
// Validated arguments can be decoded into typed structs with Decode.
package schema
