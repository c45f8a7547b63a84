/*
Package tally is the orchestration core of a conversational assistant for small-business data.

A user describes work in plain language ("log a $42 expense for coffee and remind
me to follow up tomorrow"); a language-model planner decides which actions to
take; tally validates and executes those actions against a data store and streams
a single honest answer back.

# Concept

Each request runs one bounded turn:

  - the planner sees the conversation so far and the declared actions;
  - it either answers in text or requests one or more actions;
  - requested actions are validated against their schema and executed strictly in
    order, and every outcome (success or failure) is folded back into the conversation;
  - the loop repeats until the planner answers, the step budget runs out, the planner
    becomes unavailable, or the caller cancels.

Action failures never end a turn. Only a malformed request (for example a missing
identity) is returned as an error.

# Usage

	records := memory.NewRecords()
	assistant, err := tally.New(planner, records)
	if err != nil {
		log.Fatal(err)
	}

	reply, err := assistant.Respond(ctx, tally.Request{
		Message:  "log a $42 expense for coffee",
		Identity: domain.Identity{UserID: "u-1"},
	}, stream.NewWriter(os.Stdout))

# Adapters

Planners live in pkg/adapters/openai and pkg/adapters/scripted, data stores in
pkg/adapters/memory and pkg/adapters/redis. The chat REPL, HTTP server and MCP
server in cmd/tally are built on the same Assistant.
*/
package tally
