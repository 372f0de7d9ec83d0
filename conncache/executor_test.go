package conncache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteConnectedTask(t *testing.T) {
	h := newHarness(t, &fakeFactory{}, Config{MaxConnections: Unbounded})
	d := desc("svc-1")

	got, err := ExecuteConnectedTask(context.Background(), h.cache, d, func(_ context.Context, conn *fakeConn) (string, error) {
		return conn.target, nil
	})
	if err != nil {
		t.Fatalf("ExecuteConnectedTask() error = %v", err)
	}
	if got != "svc-1" {
		t.Errorf("result = %q, want svc-1", got)
	}
	if h.cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.cache.Len())
	}
}

func TestExecuteConnectedTask_TaskErrorPropagates(t *testing.T) {
	h := newHarness(t, &fakeFactory{}, Config{MaxConnections: Unbounded})
	d := desc("svc-1")
	taskErr := errors.New("attribute not found")

	_, err := ExecuteConnectedTask(context.Background(), h.cache, d, func(context.Context, *fakeConn) (int, error) {
		return 0, taskErr
	})
	if err != taskErr {
		t.Fatalf("ExecuteConnectedTask() error = %v, want %v unchanged", err, taskErr)
	}
	if h.cache.Len() != 1 {
		t.Error("a failing task must not invalidate the connection")
	}
}

func TestExecuteConnectedTask_ConnectFailureSkipsTask(t *testing.T) {
	connectErr := errors.New("unreachable")
	h := newHarness(t, &fakeFactory{err: connectErr}, Config{MaxConnections: Unbounded})

	ran := false
	_, err := ExecuteConnectedTask(context.Background(), h.cache, desc("svc-1"), func(context.Context, *fakeConn) (int, error) {
		ran = true
		return 1, nil
	})
	if !errors.Is(err, connectErr) {
		t.Fatalf("ExecuteConnectedTask() error = %v, want %v", err, connectErr)
	}
	if ran {
		t.Error("task must not run without a connection")
	}
}

func TestExecuteConnectedTask_RestartsIdleTimeoutAfterTask(t *testing.T) {
	h := newHarness(t, &fakeFactory{}, Config{TTL: time.Second, MaxConnections: Unbounded})
	d := desc("svc-1")

	_, err := ExecuteConnectedTask(context.Background(), h.cache, d, func(context.Context, *fakeConn) (int, error) {
		h.clock.Advance(900 * time.Millisecond) // long-running task
		return 0, nil
	})
	if err != nil {
		t.Fatalf("ExecuteConnectedTask() error = %v", err)
	}

	h.clock.Advance(500 * time.Millisecond)
	h.sched.tick()
	if h.cache.Len() != 1 {
		t.Error("connection expired although it was idle for less than the TTL since the task returned")
	}
}

func TestCache_Execute(t *testing.T) {
	h := newHarness(t, &fakeFactory{}, Config{MaxConnections: Unbounded})
	d := desc("svc-1")

	var seen *fakeConn
	if err := h.cache.Execute(context.Background(), d, func(_ context.Context, conn *fakeConn) error {
		seen = conn
		return nil
	}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if seen == nil || seen != h.get(t, d) {
		t.Error("Execute() should run against the cached connection")
	}

	want := errors.New("boom")
	if err := h.cache.Execute(context.Background(), d, func(context.Context, *fakeConn) error { return want }); err != want {
		t.Errorf("Execute() error = %v, want %v", err, want)
	}
}
