/*
Package ports defines the driven ports (interfaces) of the tally assistant.

These interfaces decouple the orchestration core from external implementations,
allowing the engine to work with any language-model planner, storage backend
or output transport.

# Key Interfaces

  - Planner: Turns the conversation so far into a final answer or action requests.
  - RecordCreator / RecordStore: The CRM data store consumed by action executors.
  - Emitter: Delivers the answer incrementally and marks completion or abort.
  - TranscriptStore: Optionally persists conversations between requests.
  - DistributedLocker: Serialises turns on the same conversation across replicas.
*/
package ports
