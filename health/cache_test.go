package health

import (
	"context"
	"errors"
	"testing"

	"github.com/jonwraymond/targetconn/conncache"
	"github.com/jonwraymond/targetconn/target"
)

type staticStats conncache.Stats

func (s staticStats) Stats() conncache.Stats { return conncache.Stats(s) }

func TestCacheChecker(t *testing.T) {
	tests := []struct {
		name  string
		stats conncache.Stats
		want  Status
	}{
		{"empty unbounded", conncache.Stats{}, StatusHealthy},
		{"busy unbounded", conncache.Stats{Open: 500}, StatusHealthy},
		{"under warn ratio", conncache.Stats{Open: 4, Capacity: 10}, StatusHealthy},
		{"at warn ratio", conncache.Stats{Open: 8, Capacity: 10}, StatusHealthy},
		{"over warn ratio", conncache.Stats{Open: 9, Capacity: 10}, StatusDegraded},
		{"closed", conncache.Stats{Closed: true}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCacheChecker("cache", staticStats(tt.stats), 0.8)
			result := c.Check(context.Background())
			if result.Status != tt.want {
				t.Errorf("Status = %v, want %v (%s)", result.Status, tt.want, result.Message)
			}
			if result.Details["open"] != tt.stats.Open {
				t.Errorf("Details[open] = %v, want %d", result.Details["open"], tt.stats.Open)
			}
		})
	}
}

func TestCacheChecker_ClosedError(t *testing.T) {
	c := NewCacheChecker("cache", staticStats{Closed: true}, 0)
	if result := c.Check(context.Background()); !errors.Is(result.Error, ErrCacheClosed) {
		t.Errorf("Error = %v, want ErrCacheClosed", result.Error)
	}
	if c.warnRatio != DefaultWarnRatio {
		t.Errorf("warnRatio = %v, want default %v", c.warnRatio, DefaultWarnRatio)
	}
}

func TestCacheChecker_RealCache(t *testing.T) {
	factory := conncache.FactoryFunc[conncache.Conn](func(context.Context, target.Descriptor, func()) (conncache.Conn, error) {
		return nil, errors.New("not dialled")
	})
	cache, err := conncache.New[conncache.Conn](factory, conncache.Config{MaxConnections: 2})
	if err != nil {
		t.Fatalf("conncache.New() error = %v", err)
	}

	c := NewCacheChecker("cache", cache, 0.5)
	if got := c.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("open cache Status = %v, want healthy", got)
	}

	_ = cache.Close(context.Background())
	if got := c.Check(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("closed cache Status = %v, want unhealthy", got)
	}
}

func TestTargetChecker(t *testing.T) {
	ok := NewTargetChecker("svc-1", func(context.Context) error { return nil })
	if got := ok.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("Status = %v, want healthy", got)
	}

	probeErr := errors.New("connection refused")
	bad := NewTargetChecker("svc-2", func(context.Context) error { return probeErr })
	result := bad.Check(context.Background())
	if result.Status != StatusUnhealthy || !errors.Is(result.Error, probeErr) || !errors.Is(result.Error, ErrCheckFailed) {
		t.Errorf("result = %+v, want unhealthy wrapping the probe error", result)
	}
}
