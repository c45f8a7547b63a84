// Package actions declares the CRM actions the assistant can perform and
// their executors. Every executor writes exactly one record through a
// ports.RecordCreator and attributes it to the caller's identity.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/schema"
)

// Action names.
const (
	NameCreateTask = "create_task"
	NameCreateDeal = "create_deal"
	NameLogExpense = "log_expense"
)

type options struct {
	now func() time.Time
}

// Option configures the action declarations.
type Option func(*options)

// WithClock sets the clock used for relative dates and date defaults.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Default returns the full action table: create_task, create_deal and log_expense.
func Default(store ports.RecordCreator, opts ...Option) []registry.Entry {
	return []registry.Entry{
		CreateTask(store, opts...),
		CreateDeal(store, opts...),
		LogExpense(store, opts...),
	}
}

// create decodes validated args into out, derives the stored fields and writes one record.
func create[T any](
	ctx context.Context,
	store ports.RecordCreator,
	kind domain.EntityKind,
	args map[string]any,
	identity domain.Identity,
	fields func(T) map[string]any,
	summary func(id string, v T) string,
) domain.ActionOutcome {
	if err := identity.Validate(); err != nil {
		return domain.Failed(err.Error())
	}

	var v T
	if err := schema.Decode(args, &v); err != nil {
		return domain.Failedf("invalid arguments: %v", err)
	}

	id, err := store.Create(ctx, kind, fields(v), identity.UserID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Failed(interruption(ctxErr))
		}
		return domain.Failedf("could not create %s: %v", kind, err)
	}
	return domain.Succeeded(summary(id, v))
}

func interruption(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return "cancelled"
}

func formatMoney(amount float64, currency string) string {
	if currency == "" || currency == "USD" {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}
