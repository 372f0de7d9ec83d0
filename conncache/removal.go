package conncache

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jonwraymond/targetconn/observe"
	"github.com/jonwraymond/targetconn/target"
)

// RemovalCause says why a connection left the cache.
type RemovalCause int

const (
	// CauseExpired means the connection sat idle for longer than the TTL.
	CauseExpired RemovalCause = iota
	// CauseExplicit means the connection was invalidated, reported closed by
	// its transport, or removed when the cache closed.
	CauseExplicit
	// CauseCapacity means the connection was the least recently used one
	// when the cache was full.
	CauseCapacity
	// CauseReplaced means the connection was discarded because another
	// connection for the same descriptor already held its slot.
	CauseReplaced
)

// String returns the string representation of the cause.
func (c RemovalCause) String() string {
	switch c {
	case CauseExpired:
		return "expired"
	case CauseExplicit:
		return "explicit"
	case CauseCapacity:
		return "capacity"
	case CauseReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Evicted reports whether the cache removed the connection on its own.
func (c RemovalCause) Evicted() bool {
	return c == CauseExpired || c == CauseCapacity
}

// removal is an entry that has already left the map and still needs closing.
type removal[C Conn] struct {
	desc  target.Descriptor
	conn  C
	cause RemovalCause
}

// onRemoval closes a removed connection inside a "connection closed"
// telemetry event. It runs outside the cache lock and never panics.
func (c *Cache[C]) onRemoval(ctx context.Context, r removal[C]) (err error) {
	if r.cause.Evicted() {
		c.evictions.Add(1)
	}

	switch r.cause {
	case CauseExpired, CauseCapacity, CauseExplicit, CauseReplaced:
		if r.desc.IsZero() || isNil(r.conn) {
			c.logger.Warn(ctx, "connection removed without descriptor or connection",
				observe.F("cause", r.cause.String()),
				observe.F("has_descriptor", !r.desc.IsZero()),
			)
			return nil
		}
	default:
		c.logger.Warn(ctx, "unknown removal cause", observe.F("cause", int(r.cause)))
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("conncache: close panicked: %v", p)
			c.closeFailures.Add(1)
			c.logger.Error(ctx, "connection close panicked",
				observe.F("target", r.desc.String()),
				observe.F("cause", r.cause.String()),
				observe.F("error", err),
			)
		}
	}()

	err = c.telemetry.Bracket(ctx, observe.EventClosed, address(r.desc), func(context.Context) error {
		return r.conn.Close()
	})
	if err != nil {
		c.closeFailures.Add(1)
		c.logger.Error(ctx, "failed to close connection",
			observe.F("target", r.desc.String()),
			observe.F("cause", r.cause.String()),
			observe.F("error", err),
		)
		return err
	}

	c.logger.Debug(ctx, "connection removed",
		observe.F("target", r.desc.String()),
		observe.F("cause", r.cause.String()),
	)
	return nil
}

// runRemovals closes every removed connection in order.
func (c *Cache[C]) runRemovals(ctx context.Context, rs []removal[C]) error {
	var errs []error
	for _, r := range rs {
		if err := c.onRemoval(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// address is the locator reported in telemetry: the resolved service URL,
// or the raw target id when it does not resolve.
func address(d target.Descriptor) string {
	u, err := target.Resolve(d)
	if err != nil {
		return d.TargetID()
	}
	return u.String()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
