package conncache

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/targetconn/observe"
	"github.com/jonwraymond/targetconn/target"
)

// manualScheduler records the sweep function and runs it on tick.
type manualScheduler struct {
	mu       sync.Mutex
	fn       func()
	interval time.Duration
	stopped  bool
}

func (s *manualScheduler) Every(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	s.interval = interval
	return func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}
}

func (s *manualScheduler) tick() {
	s.mu.Lock()
	fn, stopped := s.fn, s.stopped
	s.mu.Unlock()
	if !stopped {
		fn()
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeConn struct {
	target   string
	closeErr error
	panics   bool
	onClosed func()
	closes   atomic.Int32
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	if c.panics {
		panic("close exploded")
	}
	return c.closeErr
}

// fakeFactory hands out fakeConns and records every call.
type fakeFactory struct {
	err      error
	closeErr error
	gate     chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeFactory) Connect(ctx context.Context, d target.Descriptor, onClosed func()) (*fakeConn, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{target: d.TargetID(), closeErr: f.closeErr, onClosed: onClosed}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

// event is one recorded telemetry bracket.
type event struct {
	ev      observe.Event
	address string
	err     error
}

type recordingTelemetry struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingTelemetry) Bracket(ctx context.Context, ev observe.Event, address string, fn func(context.Context) error) error {
	err := fn(ctx)
	r.mu.Lock()
	r.events = append(r.events, event{ev: ev, address: address, err: err})
	r.mu.Unlock()
	return err
}

func (r *recordingTelemetry) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

type harness struct {
	t         *testing.T
	cache     *Cache[*fakeConn]
	factory   *fakeFactory
	sched     *manualScheduler
	clock     *fakeClock
	telemetry *recordingTelemetry
	logs      *bytes.Buffer
}

func newHarness(t *testing.T, f *fakeFactory, cfg Config) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		factory:   f,
		sched:     &manualScheduler{},
		clock:     newFakeClock(),
		telemetry: &recordingTelemetry{},
		logs:      &bytes.Buffer{},
	}
	cfg.Scheduler = h.sched
	cfg.Now = h.clock.Now
	cfg.Telemetry = h.telemetry
	cfg.Logger = observe.NewLoggerWithWriter("debug", h.logs)

	c, err := New[*fakeConn](f, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	h.cache = c
	return h
}

func (h *harness) get(t *testing.T, d target.Descriptor) *fakeConn {
	t.Helper()
	conn, err := h.cache.Get(context.Background(), d)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", d, err)
	}
	return conn
}

// waitForCalls blocks until f has been called n times.
func waitForCalls(t *testing.T, f *fakeFactory, n int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for f.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("factory calls = %d, want %d", f.calls.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func desc(id string) target.Descriptor {
	return target.MustNew(id, nil)
}
