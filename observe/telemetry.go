package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Event identifies a connection lifecycle event.
type Event int

const (
	// EventOpened brackets a connection attempt.
	EventOpened Event = iota
	// EventClosed brackets closing a cached connection.
	EventClosed
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SpanName returns the span name for the event: conn.<event>.
func (e Event) SpanName() string {
	return "conn." + e.String()
}

// Telemetry records bracketed connection lifecycle events.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Bracket returns the error of fn unchanged; recording is
//     best-effort and must not panic.
type Telemetry interface {
	// Bracket runs fn inside an event for address. The event records
	// whether fn returned an error.
	Bracket(ctx context.Context, ev Event, address string, fn func(context.Context) error) error
}

// NopTelemetry returns a Telemetry that runs fn and records nothing.
func NopTelemetry() Telemetry {
	return nopTelemetry{}
}

type nopTelemetry struct{}

func (nopTelemetry) Bracket(ctx context.Context, _ Event, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

// otelTelemetry records events as spans, counters and a duration histogram.
type otelTelemetry struct {
	tracer       trace.Tracer
	logger       Logger
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewTelemetry creates a Telemetry backed by OpenTelemetry.
// A nil logger disables event logging.
func NewTelemetry(tracer trace.Tracer, meter metric.Meter, logger Logger) (Telemetry, error) {
	if logger == nil {
		logger = NopLogger()
	}

	totalCount, err := meter.Int64Counter(
		"conn.events.total",
		metric.WithDescription("Total number of connection lifecycle events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"conn.events.errors",
		metric.WithDescription("Connection lifecycle events that raised an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"conn.events.duration_ms",
		metric.WithDescription("Connection open/close duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelTelemetry{
		tracer:       tracer,
		logger:       logger,
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// TelemetryFromObserver creates a Telemetry from an Observer.
func TelemetryFromObserver(obs Observer) (Telemetry, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewTelemetry(obs.Tracer(), obs.Meter(), obs.Logger())
}

func (t *otelTelemetry) Bracket(ctx context.Context, ev Event, address string, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, ev.SpanName(),
		trace.WithAttributes(
			attribute.String("conn.address", address),
			attribute.String("conn.event", ev.String()),
			attribute.Bool("conn.error", false),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("conn.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	opt := metric.WithAttributes(
		attribute.String("conn.event", ev.String()),
	)
	t.totalCount.Add(ctx, 1, opt)
	if err != nil {
		t.errorCount.Add(ctx, 1, opt)
	}
	t.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)

	fields := []Field{
		F("event", ev.String()),
		F("address", address),
		F("duration_ms", float64(duration.Microseconds())/1000),
		F("error_occurred", err != nil),
	}
	if err != nil {
		fields = append(fields, F("error", err))
		t.logger.Error(ctx, "connection "+ev.String()+" with error", fields...)
	} else {
		t.logger.Debug(ctx, "connection "+ev.String(), fields...)
	}

	return err
}

var (
	_ Telemetry = (*otelTelemetry)(nil)
	_ Telemetry = nopTelemetry{}
)
