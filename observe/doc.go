// Package observe provides the logging and telemetry primitives used by the
// connection cache and its factory.
//
// It is a pure instrumentation library: it owns logger construction,
// OpenTelemetry provider setup and the connection lifecycle events
// ("connection opened" and "connection closed"), nothing else.
package observe
