package tally_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/pkg/adapters/memory"
	"github.com/aretw0/tally/pkg/adapters/scripted"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/stream"
)

// ExampleAssistant_Respond runs one turn against an in-memory store with a
// scripted planner standing in for the language model.
func ExampleAssistant_Respond() {
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{{
			Name: "log_expense",
			Args: map[string]any{"amount": 12.5, "description": "team coffee", "category": "Meals"},
		}}, "")),
		scripted.Reply(domain.Final("Logged 12.50 for team coffee.")),
	})

	assistant, err := tally.New(planner, memory.NewRecords())
	if err != nil {
		log.Fatal(err)
	}

	reply, err := assistant.Respond(context.Background(), tally.Request{
		Message:  "I paid 12.50 for team coffee",
		Identity: domain.Identity{UserID: "u-1"},
	}, stream.NewWriter(os.Stdout))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(reply.Status, reply.Steps, reply.PlannerCalls)
	for _, r := range reply.Results {
		fmt.Println(r.Name, r.Outcome.OK())
	}
	// Output:
	// Logged 12.50 for team coffee.
	// done 1 2
	// log_expense true
}

// ExampleAssistant_Respond_budget shows a planner that never stops asking for
// actions being cut off by the step budget.
func ExampleAssistant_Respond_budget() {
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{{
			Name: "create_task",
			Args: map[string]any{"title": "Follow up"},
		}}, "")),
	}, scripted.WithRepeatLast())

	assistant, err := tally.New(planner, memory.NewRecords(), tally.WithStepBudget(2))
	if err != nil {
		log.Fatal(err)
	}

	reply, err := assistant.Respond(context.Background(), tally.Request{
		Message:  "keep adding tasks",
		Identity: domain.Identity{UserID: "u-1"},
	}, nil)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(reply.Status, reply.Steps, reply.PlannerCalls, len(reply.Results))
	// Output:
	// budget_exhausted 2 3 2
}
