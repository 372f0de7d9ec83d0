package conncache

import (
	"context"

	"github.com/jonwraymond/targetconn/target"
)

// Task is a unit of work that needs a live connection.
type Task[C Conn, T any] func(ctx context.Context, conn C) (T, error)

// ExecuteConnectedTask borrows the connection for d from cache and runs task
// against it. A connect failure is returned without running the task. The
// task's result and error are returned unchanged; a failing task does not
// invalidate the connection. When the task returns the idle timeout restarts,
// or, with MaxConnections 0, the connection is closed.
func ExecuteConnectedTask[C Conn, T any](ctx context.Context, cache *Cache[C], d target.Descriptor, task Task[C, T]) (T, error) {
	conn, err := cache.Get(ctx, d)
	if err != nil {
		var zero T
		return zero, err
	}
	defer cache.release(ctx, d, conn)
	return task(ctx, conn)
}

// Execute is ExecuteConnectedTask for tasks without a result.
func (c *Cache[C]) Execute(ctx context.Context, d target.Descriptor, fn func(ctx context.Context, conn C) error) error {
	_, err := ExecuteConnectedTask[C, struct{}](ctx, c, d, func(ctx context.Context, conn C) (struct{}, error) {
		return struct{}{}, fn(ctx, conn)
	})
	return err
}
