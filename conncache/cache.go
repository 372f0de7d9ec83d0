package conncache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/targetconn/observe"
	"github.com/jonwraymond/targetconn/target"
)

// Conn is a closable live connection.
type Conn interface {
	Close() error
}

// Factory creates connections for descriptors.
//
// Contract:
//   - Concurrency: Connect may be called concurrently for different descriptors.
//   - Context: a shared connect is not cancelled when its callers give up
//     waiting; Connect must bound its own duration. Values carried by the
//     first caller's context are preserved.
//   - Callback: the connection must call onClosed when its transport detects
//     that it was closed remotely. onClosed is safe to call at any time, any
//     number of times, including before Connect returns.
type Factory[C Conn] interface {
	Connect(ctx context.Context, d target.Descriptor, onClosed func()) (C, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc[C Conn] func(ctx context.Context, d target.Descriptor, onClosed func()) (C, error)

// Connect calls f.
func (f FactoryFunc[C]) Connect(ctx context.Context, d target.Descriptor, onClosed func()) (C, error) {
	return f(ctx, d, onClosed)
}

// Default configuration values.
const (
	DefaultTTL       = 10 * time.Second
	MaxSweepInterval = time.Second
	MinSweepInterval = 10 * time.Millisecond

	// Unbounded disables the capacity bound.
	Unbounded = -1
)

// Config configures a Cache.
type Config struct {
	// TTL is the sliding idle timeout. Every Get or MarkInUse restarts it.
	// Zero means DefaultTTL. Negative is invalid.
	TTL time.Duration

	// MaxConnections bounds the number of cached connections. Negative
	// (Unbounded) means no bound. Zero retains nothing: every Get connects
	// afresh and hands the connection to the caller.
	MaxConnections int

	// SweepInterval is how often expired connections are scanned for.
	// Zero means min(TTL/2, 1s), never below 10ms.
	SweepInterval time.Duration

	// Scheduler runs the expiry sweep. Nil means TickerScheduler.
	Scheduler Scheduler

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	// Logger receives removal and failure logs. Nil means no logging.
	Logger observe.Logger

	// Telemetry records "connection closed" events. Nil means none.
	Telemetry observe.Telemetry
}

// withDefaults returns a copy of cfg with every unset field defaulted.
func (cfg Config) withDefaults() Config {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxConnections < 0 {
		cfg.MaxConnections = Unbounded
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = min(cfg.TTL/2, MaxSweepInterval)
	}
	cfg.SweepInterval = max(cfg.SweepInterval, MinSweepInterval)
	if cfg.Scheduler == nil {
		cfg.Scheduler = TickerScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = observe.NopTelemetry()
	}
	return cfg
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	Open          int   `json:"open"`
	Capacity      int   `json:"capacity"` // negative means unbounded
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	CloseFailures int64 `json:"close_failures"`
	Closed        bool  `json:"closed"`
}

type entry[C Conn] struct {
	desc       target.Descriptor
	conn       C
	lastAccess time.Time
	elem       *list.Element

	// Guarded by Cache.mu.
	cached bool
	broken bool
}

// Cache holds at most one live connection per descriptor.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Ownership: connections handed out stay owned by the cache; callers
//     must not Close them. With MaxConnections 0 nothing is cached and the
//     caller of Get owns what it receives.
type Cache[C Conn] struct {
	factory   Factory[C]
	ttl       time.Duration
	capacity  int
	now       func() time.Time
	logger    observe.Logger
	telemetry observe.Telemetry

	group     singleflight.Group
	flightKey func(target.Descriptor) string

	mu      sync.Mutex
	entries map[target.Descriptor]*entry[C]
	lru     *list.List // front is most recently used
	closed  bool
	stop    func()

	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	closeFailures atomic.Int64
}

// New creates a cache and starts its expiry sweep.
func New[C Conn](factory Factory[C], cfg Config) (*Cache[C], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if cfg.TTL < 0 {
		return nil, ErrInvalidTTL
	}
	cfg = cfg.withDefaults()

	c := &Cache[C]{
		factory:   factory,
		ttl:       cfg.TTL,
		capacity:  cfg.MaxConnections,
		now:       cfg.Now,
		logger:    cfg.Logger,
		telemetry: cfg.Telemetry,
		flightKey: target.Descriptor.Key,
		entries:   make(map[target.Descriptor]*entry[C]),
		lru:       list.New(),
	}
	c.stop = cfg.Scheduler.Every(cfg.SweepInterval, c.sweep)
	return c, nil
}

// Get returns the connection for d, creating it through the factory on a
// miss. Concurrent misses for the same descriptor share one connect and its
// result. A caller whose ctx ends stops waiting with ctx.Err(); the shared
// connect keeps running for the others and is cached when it succeeds. A
// failed connect caches nothing and its error is returned unchanged.
func (c *Cache[C]) Get(ctx context.Context, d target.Descriptor) (C, error) {
	var zero C

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	if e, ok := c.entries[d]; ok {
		c.touchLocked(e)
		c.mu.Unlock()
		c.hits.Add(1)
		return e.conn, nil
	}
	c.mu.Unlock()
	c.misses.Add(1)

	if c.capacity == 0 {
		return c.connectUnretained(ctx, d)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.flightKey(d), func() (any, error) {
		conn, err := c.create(detached, d)
		return flight[C]{desc: d, conn: conn}, err
	})

	select {
	case res := <-ch:
		f, _ := res.Val.(flight[C])
		if f.desc != d {
			// Key collision with another descriptor's flight.
			return c.create(detached, d)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return f.conn, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// flight is the shared result of one connect.
type flight[C Conn] struct {
	desc target.Descriptor
	conn C
}

// connectUnretained connects d for a single caller without caching it.
func (c *Cache[C]) connectUnretained(ctx context.Context, d target.Descriptor) (C, error) {
	var zero C

	conn, err := c.factory.Connect(ctx, d, func() {})
	if err != nil {
		return zero, err
	}
	if isNil(conn) {
		return zero, ErrNilConnection
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		_ = c.onRemoval(ctx, removal[C]{desc: d, conn: conn, cause: CauseExplicit})
		return zero, ErrClosed
	}
	return conn, nil
}

// release hands a borrowed connection back: a cached one has its idle
// timeout restarted, an unretained one is closed as a capacity eviction.
func (c *Cache[C]) release(ctx context.Context, d target.Descriptor, conn C) {
	if c.capacity == 0 {
		_ = c.onRemoval(context.WithoutCancel(ctx), removal[C]{desc: d, conn: conn, cause: CauseCapacity})
		return
	}
	c.MarkInUse(d)
}

// create connects and caches d. It normally runs inside d's flight.
func (c *Cache[C]) create(ctx context.Context, d target.Descriptor) (C, error) {
	var zero C

	// A flight that finished just before this one started may have cached d.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	if e, ok := c.entries[d]; ok {
		c.touchLocked(e)
		c.mu.Unlock()
		return e.conn, nil
	}
	c.mu.Unlock()

	e := &entry[C]{desc: d}
	conn, err := c.factory.Connect(ctx, d, func() { c.connectionClosed(e) })
	if err != nil {
		return zero, err
	}
	if isNil(conn) {
		return zero, ErrNilConnection
	}

	c.mu.Lock()
	if c.closed || e.broken {
		discardErr := ErrConnectionClosed
		if c.closed {
			discardErr = ErrClosed
		}
		c.mu.Unlock()
		_ = c.onRemoval(ctx, removal[C]{desc: d, conn: conn, cause: CauseExplicit})
		return zero, discardErr
	}

	if cur, ok := c.entries[d]; ok {
		// Reachable only when a key collision made d connect outside a flight.
		c.touchLocked(cur)
		c.mu.Unlock()
		_ = c.onRemoval(ctx, removal[C]{desc: d, conn: conn, cause: CauseReplaced})
		return cur.conn, nil
	}

	var removed []removal[C]
	for c.capacity > 0 && len(c.entries) >= c.capacity {
		victim := c.lru.Back().Value.(*entry[C])
		c.removeLocked(victim)
		removed = append(removed, removal[C]{desc: victim.desc, conn: victim.conn, cause: CauseCapacity})
	}

	e.conn = conn
	e.lastAccess = c.now()
	e.cached = true
	e.elem = c.lru.PushFront(e)
	c.entries[d] = e
	c.mu.Unlock()

	_ = c.runRemovals(ctx, removed)
	return conn, nil
}

// connectionClosed handles a transport-reported closure for e.
func (c *Cache[C]) connectionClosed(e *entry[C]) {
	c.mu.Lock()
	if !e.cached {
		e.broken = true
		c.mu.Unlock()
		return
	}
	if cur, ok := c.entries[e.desc]; !ok || cur != e {
		c.mu.Unlock()
		return
	}
	c.removeLocked(e)
	c.mu.Unlock()

	c.logger.Info(context.Background(), "connection closed by remote",
		observe.F("target", e.desc.String()),
	)
	_ = c.onRemoval(context.Background(), removal[C]{desc: e.desc, conn: e.conn, cause: CauseExplicit})
}

// MarkInUse restarts the idle timeout of the connection for d without
// creating one. It reports whether a connection was cached.
func (c *Cache[C]) MarkInUse(d target.Descriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	e, ok := c.entries[d]
	if !ok {
		return false
	}
	c.touchLocked(e)
	return true
}

// Invalidate removes and closes the connection for d. It does nothing when
// d has no cached connection. A connect in flight for d is not affected.
func (c *Cache[C]) Invalidate(d target.Descriptor) {
	c.mu.Lock()
	e, ok := c.entries[d]
	if ok {
		c.removeLocked(e)
	}
	c.mu.Unlock()

	if ok {
		_ = c.onRemoval(context.Background(), removal[C]{desc: e.desc, conn: e.conn, cause: CauseExplicit})
	}
}

// Len returns the number of cached connections.
func (c *Cache[C]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[C]) Stats() Stats {
	c.mu.Lock()
	open, closed := len(c.entries), c.closed
	c.mu.Unlock()

	return Stats{
		Open:          open,
		Capacity:      c.capacity,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		CloseFailures: c.closeFailures.Load(),
		Closed:        closed,
	}
}

// Close stops the expiry sweep and closes every cached connection. Later
// calls return nil. Connects still in flight are closed when they finish.
func (c *Cache[C]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	removed := make([]removal[C], 0, len(c.entries))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[C])
		removed = append(removed, removal[C]{desc: e.desc, conn: e.conn, cause: CauseExplicit})
	}
	clear(c.entries)
	c.lru.Init()
	c.mu.Unlock()

	c.stop()
	return c.runRemovals(ctx, removed)
}

// sweep removes every connection idle for at least the TTL.
func (c *Cache[C]) sweep() {
	now := c.now()

	c.mu.Lock()
	var removed []removal[C]
	for el := c.lru.Back(); el != nil; {
		e := el.Value.(*entry[C])
		if now.Sub(e.lastAccess) < c.ttl {
			break
		}
		prev := el.Prev()
		c.removeLocked(e)
		removed = append(removed, removal[C]{desc: e.desc, conn: e.conn, cause: CauseExpired})
		el = prev
	}
	c.mu.Unlock()

	_ = c.runRemovals(context.Background(), removed)
}

func (c *Cache[C]) touchLocked(e *entry[C]) {
	e.lastAccess = c.now()
	c.lru.MoveToFront(e.elem)
}

func (c *Cache[C]) removeLocked(e *entry[C]) {
	delete(c.entries, e.desc)
	c.lru.Remove(e.elem)
}
