package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jonwraymond/targetconn/conncache"
	"github.com/jonwraymond/targetconn/connect"
	"github.com/jonwraymond/targetconn/health"
	"github.com/jonwraymond/targetconn/observe"
	"github.com/jonwraymond/targetconn/resilience"
	"github.com/jonwraymond/targetconn/target"
	"github.com/jonwraymond/targetconn/transport"
)

var errProbeFailed = errors.New("one or more targets failed the last round")

// Execute parses args and runs the probe rounds.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseOptions(args, stderr)
	if errors.Is(err, errHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	return run(ctx, opts, stdout, stderr)
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) (err error) {
	descs, err := opts.descriptors()
	if err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "connprobe",
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   enabled(opts.tracingExporter),
			Exporter:  opts.tracingExporter,
			SamplePct: 1.0,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  enabled(opts.metricsExporter),
			Exporter: opts.metricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   opts.logLevel,
			Writer:  stderr,
		},
	})
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, obs.Shutdown(shutdownCtx))
	}()
	logger := obs.Logger()

	telemetry, err := observe.TelemetryFromObserver(obs)
	if err != nil {
		return err
	}

	dialer, err := newDialer(opts)
	if err != nil {
		return err
	}

	factory, err := connect.New(connect.Config{
		Dialer:         dialer,
		ConnectTimeout: opts.connectTimeout,
		Telemetry:      telemetry,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	cache, err := conncache.New[*transport.Session](factory, conncache.Config{
		TTL:            opts.ttl,
		MaxConnections: opts.maxConnections,
		Logger:         logger,
		Telemetry:      telemetry,
	})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cache.Close(context.Background()))
	}()

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts: opts.attempts,
		Jitter:      true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Debug(ctx, "retrying probe",
				observe.F("attempt", attempt),
				observe.F("delay_ms", delay.Milliseconds()),
				observe.F("error", err),
			)
		},
	})
	p := &prober{cache: cache, retry: retry, pingWait: opts.pingWait}

	if opts.healthAddr != "" {
		stop, err := serveHealth(opts.healthAddr, p, descs, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	var failed int
	for round := 1; opts.rounds == 0 || round <= opts.rounds; round++ {
		failed = 0
		for _, d := range descs {
			status := "ok"
			if err := p.probeWithRetry(ctx, d); err != nil {
				failed++
				status = "error: " + err.Error()
			}
			fmt.Fprintf(stdout, "round %d\t%s\t%s\n", round, d, status)
		}

		if opts.rounds != 0 && round == opts.rounds {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.interval):
		}
	}

	st := cache.Stats()
	logger.Info(ctx, "probe finished",
		observe.F("open", st.Open),
		observe.F("hits", st.Hits),
		observe.F("misses", st.Misses),
		observe.F("evictions", st.Evictions),
	)
	if failed > 0 {
		return errProbeFailed
	}
	return nil
}

func enabled(exporter string) bool {
	return exporter != "" && exporter != "none"
}

func newDialer(opts *options) (transport.Dialer, error) {
	if opts.sshGateway == "" {
		return &transport.TCPDialer{Timeout: opts.connectTimeout}, nil
	}
	hostKeys, err := transport.HostKeyCallback(opts.sshKnownHosts, opts.sshInsecure)
	if err != nil {
		return nil, err
	}
	return &transport.SSHDialer{
		Gateway:         opts.sshGateway,
		Timeout:         opts.connectTimeout,
		HostKeyCallback: hostKeys,
	}, nil
}

// prober borrows each target's session from the cache and checks it is live.
type prober struct {
	cache    *conncache.Cache[*transport.Session]
	retry    *resilience.Retry
	pingWait time.Duration
}

func (p *prober) probe(ctx context.Context, d target.Descriptor) error {
	return p.cache.Execute(ctx, d, func(ctx context.Context, s *transport.Session) error {
		return s.Ping(ctx, p.pingWait)
	})
}

// probeWithRetry retries failed probes. Unresolvable targets fail at once.
func (p *prober) probeWithRetry(ctx context.Context, d target.Descriptor) error {
	return p.retry.Execute(ctx, func(ctx context.Context) error {
		err := p.probe(ctx, d)
		if errors.Is(err, target.ErrUnresolvableTarget) || errors.Is(err, conncache.ErrClosed) {
			return resilience.Permanent(err)
		}
		return err
	})
}

func serveHealth(addr string, p *prober, descs []target.Descriptor, logger observe.Logger) (func(), error) {
	agg := health.NewAggregator(health.AggregatorConfig{},
		health.NewCacheChecker("cache", p.cache, health.DefaultWarnRatio),
	)
	for _, d := range descs {
		agg.Register(health.NewTargetChecker(d.String(), func(ctx context.Context) error {
			return p.probe(ctx, d)
		}))
	}

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health listener: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "health server stopped", observe.F("error", err))
		}
	}()
	logger.Info(context.Background(), "health endpoints listening", observe.F("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
