package connect

import (
	"context"
	"time"

	"github.com/jonwraymond/targetconn/conncache"
	"github.com/jonwraymond/targetconn/observe"
	"github.com/jonwraymond/targetconn/resilience"
	"github.com/jonwraymond/targetconn/target"
	"github.com/jonwraymond/targetconn/transport"
)

// DefaultConnectTimeout bounds a single connection attempt.
const DefaultConnectTimeout = 30 * time.Second

// Config configures a Factory.
type Config struct {
	// Dialer opens sessions. Required.
	Dialer transport.Dialer

	// ConnectTimeout bounds each attempt. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Telemetry records "connection opened" events. Nil means none.
	Telemetry observe.Telemetry

	// Logger receives connect outcomes. Nil means no logging.
	Logger observe.Logger
}

// Factory opens sessions to targets.
type Factory struct {
	dialer    transport.Dialer
	timeout   *resilience.Timeout
	telemetry observe.Telemetry
	logger    observe.Logger
}

// New creates a Factory.
func New(cfg Config) (*Factory, error) {
	if cfg.Dialer == nil {
		return nil, ErrNilDialer
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = observe.NopTelemetry()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	return &Factory{
		dialer:    cfg.Dialer,
		timeout:   resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.ConnectTimeout}),
		telemetry: cfg.Telemetry,
		logger:    cfg.Logger,
	}, nil
}

// ConnectTimeout returns the per-attempt timeout.
func (f *Factory) ConnectTimeout() time.Duration {
	return f.timeout.Config().Timeout
}

// Connect resolves d and dials it. onClosed is registered on the session and
// runs when the transport detects a remote closure. A session that arrives
// after the timeout is closed.
func (f *Factory) Connect(ctx context.Context, d target.Descriptor, onClosed func()) (*transport.Session, error) {
	locator, err := target.Resolve(d)
	if err != nil {
		f.logger.Warn(ctx, "target not resolvable",
			observe.F("target", d.String()),
			observe.F("error", err),
		)
		return nil, &ConnectError{TargetID: d.TargetID(), Err: err}
	}

	address := locator.String()
	dialAddr, err := locator.Address()
	if err != nil {
		return nil, &ConnectError{TargetID: d.TargetID(), Address: address, Err: err}
	}

	var creds *target.Credentials
	if c, ok := d.Credentials(); ok {
		creds = &c
	}

	var sess *transport.Session
	err = f.telemetry.Bracket(ctx, observe.EventOpened, address, func(ctx context.Context) error {
		s, err := resilience.TimeoutValue(ctx, f.ConnectTimeout(),
			func(ctx context.Context) (*transport.Session, error) {
				return f.dialer.Dial(ctx, dialAddr, creds)
			},
			func(late *transport.Session) {
				_ = late.Close()
			},
		)
		sess = s
		return err
	})
	if err != nil {
		f.logger.Warn(ctx, "connection attempt failed",
			observe.F("target", d.String()),
			observe.F("address", address),
			observe.F("error", err),
		)
		return nil, &ConnectError{TargetID: d.TargetID(), Address: address, Err: err}
	}

	sess.OnClose(onClosed)
	f.logger.Info(ctx, "connection opened",
		observe.F("target", d.String()),
		observe.F("address", address),
	)
	return sess, nil
}

var _ conncache.Factory[*transport.Session] = (*Factory)(nil)
