// Package connect creates live target sessions for a connection cache.
//
// Factory resolves a descriptor's target id to a service locator, dials the
// locator's address through a transport.Dialer within a connect timeout and
// records the attempt as a "connection opened" telemetry event. It
// implements conncache.Factory[*transport.Session].
//
// Connect never retries. A failed attempt returns a *ConnectError that wraps
// target.ErrUnresolvableTarget, resilience.ErrTimeout or the transport error.
package connect
