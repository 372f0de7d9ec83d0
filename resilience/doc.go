// Package resilience bounds and retries operations against remote targets.
//
// Two patterns are provided:
//
//   - Timeout: bounds an operation with a deadline. TimeoutValue also takes
//     care of results that arrive after the deadline, so a late connection
//     can be closed instead of leaked.
//
//   - Retry: retries failed operations with configurable backoff
//     (exponential, linear, constant). Retry is a caller-side policy; the
//     connection cache and factory never retry on their own.
//
// # Usage
//
//	session, err := resilience.TimeoutValue(ctx, 5*time.Second,
//	    func(ctx context.Context) (*transport.Session, error) {
//	        return dialer.Dial(ctx, addr, creds)
//	    },
//	    func(s *transport.Session) { _ = s.Close() },
//	)
//
//	retry := resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})
//	err = retry.Execute(ctx, func(ctx context.Context) error {
//	    return probe(ctx)
//	})
package resilience
