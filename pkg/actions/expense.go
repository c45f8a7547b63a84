package actions

import (
	"context"
	"fmt"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/schema"
)

// Expense categories.
var ExpenseCategories = []string{"travel", "meals", "office", "software", "other"}

// Expense holds validated log_expense arguments.
type Expense struct {
	Amount      float64 `mapstructure:"amount"`
	Description string  `mapstructure:"description"`
	Category    string  `mapstructure:"category"`
	Date        string  `mapstructure:"date"`
}

// ExpenseAction declares log_expense.
func ExpenseAction(opts ...Option) schema.Action {
	o := newOptions(opts)
	return schema.Action{
		Name:        NameLogExpense,
		Description: "Log a business expense for the current user.",
		Schema: schema.Schema{
			"amount":      {Type: schema.Positive(), Required: true, Description: "Amount spent"},
			"description": {Type: schema.NonEmpty(), Required: true, Description: "What the money was spent on"},
			"category":    {Type: schema.Enum(ExpenseCategories...), Default: "other"},
			"date": {
				Type:        schema.DateAt(o.now),
				DefaultFunc: func() any { return o.now().Format(schema.DateLayout) },
				Description: "Date of the expense, defaults to today",
			},
		},
	}
}

// LogExpense returns the log_expense registry entry.
func LogExpense(store ports.RecordCreator, opts ...Option) registry.Entry {
	exec := registry.ExecutorFunc(func(ctx context.Context, args map[string]any, identity domain.Identity) domain.ActionOutcome {
		return create(ctx, store, domain.EntityExpense, args, identity, expenseFields, expenseSummary)
	})
	return registry.Entry{Action: ExpenseAction(opts...), Executor: exec}
}

func expenseFields(e Expense) map[string]any {
	return map[string]any{
		"amount":      e.Amount,
		"description": e.Description,
		"category":    e.Category,
		"date":        e.Date,
	}
}

func expenseSummary(id string, e Expense) string {
	return fmt.Sprintf("logged %s expense for %q in %s on %s (id %s)",
		formatMoney(e.Amount, ""), e.Description, e.Category, e.Date, id)
}
