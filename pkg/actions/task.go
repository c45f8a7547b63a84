package actions

import (
	"context"
	"fmt"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/schema"
)

// Task statuses.
var TaskStatuses = []string{"todo", "in_progress", "done"}

// Task holds validated create_task arguments.
type Task struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	DueDate     string `mapstructure:"dueDate"`
	Priority    int    `mapstructure:"priority"`
	Status      string `mapstructure:"status"`
}

// TaskAction declares create_task.
func TaskAction(opts ...Option) schema.Action {
	o := newOptions(opts)
	return schema.Action{
		Name:        NameCreateTask,
		Description: "Create a to-do task or reminder for the current user.",
		Schema: schema.Schema{
			"title":       {Type: schema.NonEmpty(), Required: true, Description: "Short task title"},
			"description": {Type: schema.String(), Description: "Optional details"},
			"dueDate":     {Type: schema.DateAt(o.now), Description: "Due date"},
			"priority":    {Type: schema.IntBetween(1, 5), Default: 1, Description: "1 (normal) to 5 (urgent)"},
			"status":      {Type: schema.Enum(TaskStatuses...), Default: "todo"},
		},
	}
}

// CreateTask returns the create_task registry entry.
func CreateTask(store ports.RecordCreator, opts ...Option) registry.Entry {
	exec := registry.ExecutorFunc(func(ctx context.Context, args map[string]any, identity domain.Identity) domain.ActionOutcome {
		return create(ctx, store, domain.EntityTask, args, identity, taskFields, taskSummary)
	})
	return registry.Entry{Action: TaskAction(opts...), Executor: exec}
}

func taskFields(t Task) map[string]any {
	fields := map[string]any{
		"title":    t.Title,
		"priority": t.Priority,
		"status":   t.Status,
	}
	if t.Description != "" {
		fields["description"] = t.Description
	}
	if t.DueDate != "" {
		fields["dueDate"] = t.DueDate
	}
	return fields
}

func taskSummary(id string, t Task) string {
	s := fmt.Sprintf("created task %q (id %s, priority %d, status %s", t.Title, id, t.Priority, t.Status)
	if t.DueDate != "" {
		s += ", due " + t.DueDate
	}
	return s + ")"
}
