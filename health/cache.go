package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/targetconn/conncache"
)

// DefaultWarnRatio is the share of capacity above which a cache is degraded.
const DefaultWarnRatio = 0.8

// StatsSource exposes cache statistics. *conncache.Cache satisfies it.
type StatsSource interface {
	Stats() conncache.Stats
}

// CacheChecker reports on a connection cache.
type CacheChecker struct {
	name      string
	source    StatsSource
	warnRatio float64
}

// NewCacheChecker creates a checker for source. warnRatio outside (0, 1]
// means DefaultWarnRatio. Unbounded caches are never degraded.
func NewCacheChecker(name string, source StatsSource, warnRatio float64) *CacheChecker {
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = DefaultWarnRatio
	}
	return &CacheChecker{name: name, source: source, warnRatio: warnRatio}
}

// Name returns the name of this checker.
func (c *CacheChecker) Name() string {
	return c.name
}

// Check reads the cache statistics.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	st := c.source.Stats()
	details := map[string]any{
		"open":           st.Open,
		"capacity":       st.Capacity,
		"hits":           st.Hits,
		"misses":         st.Misses,
		"evictions":      st.Evictions,
		"close_failures": st.CloseFailures,
	}

	if st.Closed {
		return Unhealthy("connection cache closed", ErrCacheClosed).WithDetails(details)
	}

	if st.Capacity > 0 {
		usage := float64(st.Open) / float64(st.Capacity)
		details["usage_percent"] = usage * 100
		if usage > c.warnRatio {
			return Degraded(fmt.Sprintf("%d of %d connections open", st.Open, st.Capacity)).WithDetails(details)
		}
	}

	return Healthy(fmt.Sprintf("%d connections open", st.Open)).WithDetails(details)
}

// NewTargetChecker creates a checker that runs probe, typically a borrow of
// the target's connection through the cache. A probe error is unhealthy.
func NewTargetChecker(name string, probe func(ctx context.Context) error) *CheckerFunc {
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		if err := probe(ctx); err != nil {
			return Unhealthy("target unreachable", fmt.Errorf("%w: %w", ErrCheckFailed, err))
		}
		return Healthy("target reachable")
	})
}

var (
	_ Checker     = (*CacheChecker)(nil)
	_ StatsSource = (*conncache.Cache[conncache.Conn])(nil)
)
