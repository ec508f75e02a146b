/*
Package observability turns engine lifecycle events into metrics and logs.

Metrics registers Prometheus collectors and exposes them as
domain.LifecycleHooks; LogHooks does the same for a slog.Logger. Both are
combined with domain.ComposeHooks:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := domain.ComposeHooks(metrics.Hooks(), observability.LogHooks(logger))
*/
package observability
