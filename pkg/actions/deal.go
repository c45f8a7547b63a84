package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/schema"
)

// Deal pipeline stages.
var DealStages = []string{"lead", "qualified", "proposal", "won", "lost"}

// Deal holds validated create_deal arguments.
type Deal struct {
	Title     string  `mapstructure:"title"`
	Amount    float64 `mapstructure:"amount"`
	Stage     string  `mapstructure:"stage"`
	Contact   string  `mapstructure:"contact"`
	Currency  string  `mapstructure:"currency"`
	CloseDate string  `mapstructure:"closeDate"`
}

var currencyCode = schema.Custom("currency", "string", func(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	if len(s) != 3 || strings.IndexFunc(s, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
	}) >= 0 {
		return fmt.Errorf("expected a 3-letter currency code")
	}
	return nil
})

// DealAction declares create_deal.
func DealAction(opts ...Option) schema.Action {
	o := newOptions(opts)
	return schema.Action{
		Name:        NameCreateDeal,
		Description: "Create a sales deal in the pipeline.",
		Schema: schema.Schema{
			"title":     {Type: schema.NonEmpty(), Required: true, Description: "Deal name"},
			"amount":    {Type: schema.NonNegative(), Required: true, Description: "Deal value"},
			"stage":     {Type: schema.Enum(DealStages...), Default: "lead"},
			"contact":   {Type: schema.String(), Description: "Customer contact name"},
			"currency":  {Type: currencyCode, Default: "USD", Description: "ISO 4217 code"},
			"closeDate": {Type: schema.DateAt(o.now), Description: "Expected close date"},
		},
	}
}

// CreateDeal returns the create_deal registry entry.
func CreateDeal(store ports.RecordCreator, opts ...Option) registry.Entry {
	exec := registry.ExecutorFunc(func(ctx context.Context, args map[string]any, identity domain.Identity) domain.ActionOutcome {
		return create(ctx, store, domain.EntityDeal, args, identity, dealFields, dealSummary)
	})
	return registry.Entry{Action: DealAction(opts...), Executor: exec}
}

func dealFields(d Deal) map[string]any {
	fields := map[string]any{
		"title":    d.Title,
		"amount":   d.Amount,
		"stage":    d.Stage,
		"currency": strings.ToUpper(d.Currency),
	}
	if d.Contact != "" {
		fields["contact"] = d.Contact
	}
	if d.CloseDate != "" {
		fields["closeDate"] = d.CloseDate
	}
	return fields
}

func dealSummary(id string, d Deal) string {
	return fmt.Sprintf("created deal %q worth %s at stage %s (id %s)",
		d.Title, formatMoney(d.Amount, strings.ToUpper(d.Currency)), d.Stage, id)
}
