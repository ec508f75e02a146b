/*
Package domain contains the core models of the enikki diary pipeline.

It defines the input conversation, the pipeline state that flows through the
workflow nodes, the retry decision, and the document that is persisted at the
end of a run. This package is kept pure and free of I/O so the workflow can be
reasoned about (and tested) without any model backend or store.

# Key Entities

  - ConversationRecord: The immutable input of a run (date, transcript, delivery target).
  - PipelineState: The value that each node transforms. Transitions return a new state.
  - Decision: The outcome of the quality gate (Proceed, Retry, ForceAccept).
  - Document: The persisted view of a run, keyed by run id.
*/
package domain
