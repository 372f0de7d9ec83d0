package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/jonwraymond/targetconn/conncache"
	"github.com/jonwraymond/targetconn/connect"
	"github.com/jonwraymond/targetconn/target"
)

// version is overridable at link time:
//
//	go build -ldflags "-X main.version=1.2.0"
var version = "0.1.0" //nolint:gochecknoglobals

var errHelp = errors.New("help requested")

type options struct {
	targets        []string
	username       string
	passwordEnv    string
	ttl            time.Duration
	maxConnections int
	connectTimeout time.Duration

	sshGateway    string
	sshKnownHosts string
	sshInsecure   bool

	attempts int
	interval time.Duration
	rounds   int
	pingWait time.Duration

	healthAddr      string
	logLevel        string
	metricsExporter string
	tracingExporter string
}

func parseOptions(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("connprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── targets ──────────────────────────────────────────────────
	fs.StringArrayVarP(&opts.targets, "target", "t", nil, "Target id: service:jmx locator or host[:port] (repeatable)")
	fs.StringVarP(&opts.username, "username", "u", "", "Username for every target")
	fs.StringVar(&opts.passwordEnv, "password-env", "CONNPROBE_PASSWORD", "Environment variable holding the password")

	// ── cache ────────────────────────────────────────────────────
	fs.DurationVar(&opts.ttl, "ttl", conncache.DefaultTTL, "Idle time after which a session is closed")
	fs.IntVar(&opts.maxConnections, "max-connections", conncache.Unbounded, "Maximum cached sessions (negative = unbounded, 0 = close after every probe)")
	fs.DurationVar(&opts.connectTimeout, "connect-timeout", connect.DefaultConnectTimeout, "Timeout for a single connection attempt")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVar(&opts.sshGateway, "ssh-gateway", "", "Tunnel through this SSH gateway (host:port)")
	fs.StringVar(&opts.sshKnownHosts, "ssh-known-hosts", "", "known_hosts file for the gateway (default ~/.ssh/known_hosts)")
	fs.BoolVar(&opts.sshInsecure, "ssh-insecure", false, "Skip gateway host key verification")

	// ── probing ──────────────────────────────────────────────────
	fs.IntVar(&opts.attempts, "attempts", 3, "Attempts per target per round")
	fs.DurationVar(&opts.interval, "interval", 5*time.Second, "Pause between rounds")
	fs.IntVar(&opts.rounds, "rounds", 1, "Number of rounds (0 = until interrupted)")
	fs.DurationVar(&opts.pingWait, "ping-wait", 50*time.Millisecond, "How long a liveness probe listens for a remote close")

	// ── observability ────────────────────────────────────────────
	fs.StringVar(&opts.healthAddr, "health-addr", "", "Serve /healthz, /readyz and /health on this address")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&opts.metricsExporter, "metrics-exporter", "none", "Metrics exporter: otlp|prometheus|stdout|none")
	fs.StringVar(&opts.tracingExporter, "tracing-exporter", "none", "Tracing exporter: otlp|jaeger|stdout|none")

	var showVersion bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}
	if showVersion {
		fmt.Fprintf(stderr, "connprobe %s\n", version)
		return nil, errHelp
	}

	opts.targets = append(opts.targets, fs.Args()...)
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *options) validate() error {
	if len(o.targets) == 0 {
		return errors.New("at least one --target is required")
	}
	if o.ttl <= 0 {
		return fmt.Errorf("--ttl must be positive, got %s", o.ttl)
	}
	if o.attempts < 1 {
		return fmt.Errorf("--attempts must be at least 1, got %d", o.attempts)
	}
	if o.rounds < 0 {
		return fmt.Errorf("--rounds must not be negative, got %d", o.rounds)
	}
	return nil
}

// descriptors builds one descriptor per target, sharing the credentials.
func (o *options) descriptors() ([]target.Descriptor, error) {
	var creds *target.Credentials
	if o.username != "" {
		creds = &target.Credentials{Username: o.username, Password: os.Getenv(o.passwordEnv)}
	}

	out := make([]target.Descriptor, 0, len(o.targets))
	for _, id := range o.targets {
		d, err := target.New(id, creds)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", id, err)
		}
		out = append(out, d)
	}
	return out, nil
}
