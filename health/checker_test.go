package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(-1), "unknown"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status(%d).String() = %q, want %q", int(tt.status), got, tt.want)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	refused := errors.New("connection refused")

	tests := []struct {
		name    string
		result  Result
		status  Status
		message string
		err     error
	}{
		{"healthy", Healthy("pool ok"), StatusHealthy, "pool ok", nil},
		{"degraded", Degraded("near capacity"), StatusDegraded, "near capacity", nil},
		{"unhealthy", Unhealthy("target down", refused), StatusUnhealthy, "target down", refused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.status {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.status)
			}
			if tt.result.Message != tt.message {
				t.Errorf("Message = %q, want %q", tt.result.Message, tt.message)
			}
			if !errors.Is(tt.result.Error, tt.err) {
				t.Errorf("Error = %v, want %v", tt.result.Error, tt.err)
			}
			if tt.result.Timestamp.IsZero() {
				t.Error("Timestamp is zero")
			}
		})
	}
}

func TestResult_WithDetails(t *testing.T) {
	base := Healthy("ok")
	got := base.WithDetails(map[string]any{"open": 2})

	if got.Details["open"] != 2 {
		t.Errorf("Details[open] = %v, want 2", got.Details["open"])
	}
	if base.Details != nil {
		t.Error("WithDetails modified the receiver")
	}
}

func TestCheckerFunc(t *testing.T) {
	checker := NewCheckerFunc("svc-1", func(ctx context.Context) Result {
		if err := ctx.Err(); err != nil {
			return Unhealthy("cancelled", err)
		}
		return Healthy("reachable")
	})

	if checker.Name() != "svc-1" {
		t.Errorf("Name() = %q, want svc-1", checker.Name())
	}
	if got := checker.Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("Check() = %v, want healthy", got.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := checker.Check(ctx); got.Status != StatusUnhealthy || !errors.Is(got.Error, context.Canceled) {
		t.Errorf("Check(cancelled) = %v %v, want unhealthy context.Canceled", got.Status, got.Error)
	}
}
