/*
Package enikki turns a parent and child's conversation about their day into an
illustrated picture diary ("enikki").

A submitted conversation record runs through a fixed pipeline in the
background: keyword extraction, diary writing, a quality gate that may send
the text back for a bounded number of rewrites, and illustration. Every model
call fails open with a documented fallback, so a run reaches the completed
status unless the diary store itself is unavailable.

# Architecture

The package follows a hexagonal layout:

  - pkg/domain holds the pure pieces: records, the value-type pipeline state,
    the quality decision and lifecycle hooks.
  - internal/generation implements the workflow nodes against ports.ModelClient.
  - internal/runtime drives the nodes and persists after each one.
  - pkg/runner runs pipelines on a bounded pool behind the submit boundary.
  - pkg/adapters provides the stores (memory, Redis, loam, bbolt), the Gemini
    client, the Discord notifier and the HTTP and MCP surfaces.

# Usage

	cfg, err := config.Load("enikki.yaml")
	if err != nil {
		log.Fatal(err)
	}

	app, err := enikki.New(cfg, enikki.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	id, err := app.Runner.Submit(ctx, domain.ConversationRecord{
		Date: "2024-05-01",
		Transcript: []domain.TranscriptEntry{
			{Role: domain.RoleUser, Text: "動物園でぞうを見たよ"},
		},
	})

	handler, err := app.Handler()
*/
package enikki
