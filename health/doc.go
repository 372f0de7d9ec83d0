// Package health reports the health of a connection cache and the targets
// behind it.
//
// A Checker produces a Result with a Status: Healthy, Degraded or Unhealthy.
// NewCacheChecker watches a cache's Stats: it degrades as open connections
// approach the capacity bound and fails once the cache is closed.
// NewTargetChecker borrows a target's connection through a probe function.
//
// An Aggregator runs checkers in parallel under one timeout, and the HTTP
// handlers expose the outcome:
//
//	agg := health.NewAggregator(health.AggregatorConfig{},
//		health.NewCacheChecker("cache", cache, 0.8),
//	)
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
package health
