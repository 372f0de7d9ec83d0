// Package conncache keeps live connections to remote targets, one per target
// descriptor, and hands them out to callers on demand.
//
// A Cache creates connections lazily through a Factory. Concurrent requests
// for the same descriptor collapse into a single connect; requests for
// different descriptors never wait on each other. Connections expire after
// a sliding idle TTL that a background scheduler enforces, and an optional
// capacity bound evicts the least recently used connection. A capacity of
// zero retains nothing; pass Unbounded to disable the bound. Every removal
// closes the connection exactly once and records a "connection closed"
// telemetry event.
//
// Callers usually go through ExecuteConnectedTask, which borrows the
// connection for a descriptor and runs a task against it:
//
//	cache, err := conncache.New[*transport.Session](factory, conncache.Config{
//		TTL:            10 * time.Second,
//		MaxConnections: conncache.Unbounded,
//	})
//	if err != nil {
//		return err
//	}
//	defer cache.Close(ctx)
//
//	n, err := conncache.ExecuteConnectedTask(ctx, cache, desc,
//		func(ctx context.Context, s *transport.Session) (int, error) {
//			return countThreads(ctx, s)
//		})
//
// The cache never retries a failed connect and never invalidates a
// connection because a task failed. Retry policy belongs to the caller.
package conncache
