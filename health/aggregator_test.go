package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixed(name string, status Status) Checker {
	return NewCheckerFunc(name, func(context.Context) Result {
		return Result{Status: status}
	})
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{}, fixed("a", StatusHealthy), fixed("b", StatusDegraded))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results["b"].Status != StatusDegraded {
		t.Errorf("b = %v, want degraded", results["b"].Status)
	}
	if results["a"].Timestamp.IsZero() {
		t.Error("Timestamp should be filled in")
	}
}

func TestAggregator_RegisterReplaces(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{}, fixed("a", StatusUnhealthy))
	agg.Register(fixed("a", StatusHealthy))
	agg.Register(fixed("b", StatusHealthy))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 || results["a"].Status != StatusHealthy {
		t.Errorf("results = %+v, want a replaced and b added", results)
	}
}

func TestAggregator_Timeout(t *testing.T) {
	slow := NewCheckerFunc("slow", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return Healthy("late")
	})
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond}, slow)

	result := agg.CheckAll(context.Background())["slow"]
	if result.Status != StatusUnhealthy || !errors.Is(result.Error, ErrCheckTimeout) {
		t.Errorf("result = %+v, want timeout", result)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{"none", nil, StatusHealthy},
		{"all healthy", map[string]Result{"a": {Status: StatusHealthy}}, StatusHealthy},
		{"one degraded", map[string]Result{"a": {Status: StatusHealthy}, "b": {Status: StatusDegraded}}, StatusDegraded},
		{"one unhealthy", map[string]Result{"a": {Status: StatusDegraded}, "b": {Status: StatusUnhealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverallStatus(tt.results); got != tt.want {
				t.Errorf("OverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
