package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socks5d/internal/config"
	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/logging"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/proxy"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

var (
	// Reduce GC overhead by setting a minimum GC heap size; relay buffers
	// churn quickly under load. This only allocates virtual memory, not
	// RSS. Ignore it in memory profiles.
	ballast = make([]byte, 0, 25_000_000)
	_       = ballast
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	ka, err := parseTCPKeepAlive(cfg.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	res, err := resolver.New(cfg.DNSServer, cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("invalid --dns-server: %w", err)
	}

	d, err := dialer.New(dialer.Config{DialTimeout: cfg.DialTimeout, KeepAlive: ka}, cfg.Upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	pcfg := proxy.Config{
		NegotiationTimeout: cfg.NegotiationTimeout,
		KeepAlive:          ka,
		Dialer:             d,
		Resolver:           res,
		Auth:               socks5.Auth{Username: cfg.Username, Password: cfg.Password},
		ReplyOnDialError:   cfg.ReplyOnDialError,
		Logger:             logger,
		Metrics:            metrics.New(prometheus.DefaultRegisterer),
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DebugListen != "" {
		http.Handle("/metrics", promhttp.Handler())
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", cfg.DebugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", zap.String("addr", cfg.DebugListen))
	}

	ln, err := proxy.ListenTCP(ctx, "tcp", cfg.SOCKS5Listen, ka)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, pcfg)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})

	logger.Info("socks5 proxy listening",
		zap.String("addr", cfg.SOCKS5Listen),
		zap.String("upstream", cfg.Upstream),
		zap.Bool("auth", cfg.Username != ""))

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

// loadConfig parses args. Settings come from the built-in defaults, then the
// --config file, then any flag set on the command line.
func loadConfig(args []string) (config.Config, error) {
	fs := pflag.NewFlagSet("socks5d", pflag.ContinueOnError)
	fs.SortFlags = false

	flags := config.Default()
	configPath := fs.String("config", "", "YAML config file. Flags set on the command line override its values.")
	fs.StringVar(&flags.SOCKS5Listen, "socks5-listen", flags.SOCKS5Listen, "SOCKS5 proxy listen address")
	fs.StringVar(&flags.Upstream, "upstream", flags.Upstream, "Upstream forwarding target URL: direct:// | socks5://[user:pass@]host[:port]")
	fs.StringVar(&flags.DNSServer, "dns-server", flags.DNSServer, "DNS server ip[:port] for CONNECT domain names. Empty uses the system resolver.")
	fs.DurationVar(&flags.DialTimeout, "dial-timeout", flags.DialTimeout, "Timeout for outbound DNS lookup and TCP connect")
	fs.DurationVar(&flags.NegotiationTimeout, "negotiation-timeout", flags.NegotiationTimeout, "Timeout for protocol negotiation to set up connection")
	fs.StringVar(&flags.TCPKeepAlive, "tcp-keepalive", flags.TCPKeepAlive, "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	fs.StringVar(&flags.Username, "username", flags.Username, "Require username/password authentication with this username")
	fs.StringVar(&flags.Password, "password", flags.Password, "Password for --username")
	fs.BoolVar(&flags.ReplyOnDialError, "reply-on-dial-error", flags.ReplyOnDialError, "Answer failed outbound dials with a SOCKS5 error reply instead of closing")
	fs.StringVar(&flags.DebugListen, "debug-listen", flags.DebugListen, "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
	fs.StringVar(&flags.Log.Level, "log-level", flags.Log.Level, "Log level: debug|info|warn|error")
	fs.StringVar(&flags.Log.Format, "log-format", flags.Log.Format, "Log format: console|json")
	fs.StringSliceVar(&flags.Log.Output, "log-output", flags.Log.Output, "Log outputs: stdout, stderr or file paths")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := flags
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}
		fs.Visit(func(f *pflag.Flag) { overrideFromFlag(&cfg, flags, f.Name) })
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func overrideFromFlag(cfg *config.Config, flags config.Config, name string) {
	switch name {
	case "socks5-listen":
		cfg.SOCKS5Listen = flags.SOCKS5Listen
	case "upstream":
		cfg.Upstream = flags.Upstream
	case "dns-server":
		cfg.DNSServer = flags.DNSServer
	case "dial-timeout":
		cfg.DialTimeout = flags.DialTimeout
	case "negotiation-timeout":
		cfg.NegotiationTimeout = flags.NegotiationTimeout
	case "tcp-keepalive":
		cfg.TCPKeepAlive = flags.TCPKeepAlive
	case "username":
		cfg.Username = flags.Username
	case "password":
		cfg.Password = flags.Password
	case "reply-on-dial-error":
		cfg.ReplyOnDialError = flags.ReplyOnDialError
	case "debug-listen":
		cfg.DebugListen = flags.DebugListen
	case "log-level":
		cfg.Log.Level = flags.Log.Level
	case "log-format":
		cfg.Log.Format = flags.Log.Format
	case "log-output":
		cfg.Log.Output = flags.Log.Output
	}
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
