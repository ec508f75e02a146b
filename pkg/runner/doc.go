/*
Package runner is the background-task boundary of the diary pipeline.

It accepts conversation records from the outer surfaces (HTTP, MCP, CLI),
assigns a run id, records the run as pending, and executes it on a bounded
worker pool. It is the only place that turns an engine error or a panic into
the failed status.

# Usage

	r := runner.New(engine, store,
		runner.WithLogger(logger),
		runner.WithMaxConcurrent(4),
	)
	defer r.Close()

	id, err := r.Submit(ctx, record)
*/
package runner
