/*
Package domain contains the core domain models of the tally assistant.

It defines the conversation that the execution engine grows during a turn,
the action calls a planner may request and the outcomes they produce. This
package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - Message: A tagged entry of a Conversation (user text, assistant text,
    action request or action result).
  - Conversation: The append-only, ordered log a single turn works on.
  - ActionCall / ActionOutcome: What the planner asked for and what happened.
  - PlannerResponse: Either a final answer or a list of requested actions.
  - Reply: The terminal result of one turn.
*/
package domain
