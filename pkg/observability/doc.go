/*
Package observability turns interpreter lifecycle events into Prometheus
metrics and structured log records.

Both are plain domain.LifecycleHooks, so they compose with any other hooks
through domain.CombineHooks:

	metrics := observability.NewMetrics()
	hooks := domain.CombineHooks(metrics.Hooks(), observability.LogHooks(logger))
	itp, err := weft.New(program, weft.WithLifecycleHooks(hooks))

	http.Handle("/metrics", metrics.Handler())
*/
package observability
