// vdabridge daemon -- VDA5050 fleet plane to vendor binary TCP AGVs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/vdabridge/internal/bridge"
	"github.com/dantte-lp/vdabridge/internal/config"
	bridgemetrics "github.com/dantte-lp/vdabridge/internal/metrics"
	"github.com/dantte-lp/vdabridge/internal/mqtt"
	"github.com/dantte-lp/vdabridge/internal/netio"
	"github.com/dantte-lp/vdabridge/internal/seer"
	"github.com/dantte-lp/vdabridge/internal/server"
	appversion "github.com/dantte-lp/vdabridge/internal/version"
)

// shutdownTimeout is the maximum time to wait for the OFFLINE farewells,
// vehicle session teardown and HTTP server drain during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Captures the last 500ms of execution traces for debugging bridge stalls.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	dryRun := flag.Bool("dry-run", false, "load configuration and fleet descriptors, print the result, exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("vdabridge"))
		return 0
	}

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("vdabridge starting",
		slog.String("version", appversion.Version),
		slog.String("broker", cfg.MQTT.BrokerURL()),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Load the fleet descriptors.
	fleet, err := config.LoadFleet(cfg.Fleet.Dir)
	if err != nil {
		logger.Error("failed to load fleet descriptors",
			slog.String("dir", cfg.Fleet.Dir),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if len(fleet) == 0 {
		logger.Warn("fleet directory holds no robot descriptors",
			slog.String("dir", cfg.Fleet.Dir),
		)
	}

	if *dryRun {
		printFleet(cfg, fleet)
		return 0
	}

	// 5. Start flight recorder for post-mortem debugging.
	fr := startFlightRecorder(logger)

	// 6. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := bridgemetrics.NewCollector(reg)

	// 7. Create the vehicle manager over a keepalive-armed TCP dialer.
	dialer := netio.NewTCPDialer(logger)
	mgr, err := seer.NewManager(dialer, logger, seer.WithManagerMetrics(collector))
	if err != nil {
		logger.Error("failed to create vehicle manager",
			slog.String("error", err.Error()),
		)
		return 1
	}
	defer mgr.Close()

	// 8. Run the bridge and its servers.
	if err := runServers(cfg, fleet, mgr, reg, collector, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("vdabridge exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("vdabridge stopped")
	return 0
}

// runServers connects the broker, builds the supervisor and runs the admin
// and metrics HTTP servers using an errgroup with signal-aware context for
// graceful shutdown.
func runServers(
	cfg *config.Config,
	fleet []config.RobotDescriptor,
	mgr *seer.Manager,
	reg *prometheus.Registry,
	collector *bridgemetrics.Collector,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	// errgroup with signal-aware context.
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	// Broker connection. paho keeps it alive with automatic reconnects
	// once the first connect succeeds.
	broker, err := mqtt.NewClient(mqtt.Config{
		BrokerURL:      cfg.MQTT.BrokerURL(),
		ClientIDPrefix: cfg.MQTT.ClientIDPrefix,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		KeepAlive:      cfg.MQTT.Keepalive(),
	}, logger)
	if err != nil {
		return fmt.Errorf("create broker client: %w", err)
	}
	if err := broker.Connect(ctx); err != nil {
		return fmt.Errorf("connect broker %s: %w", cfg.MQTT.BrokerURL(), err)
	}
	defer broker.Disconnect()

	sup, err := bridge.NewSupervisor(cfg, broker, mgr, logger, bridge.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("subscribe downlink topics: %w", err)
	}

	adminSrv := newAdminServer(cfg.Admin, sup, broker, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sup.Run(gCtx, fleet)
	})

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, sup, logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation. The broker
	// disconnect stays deferred so the farewell publishes go out first.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, sup, logger, fr, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the admin and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	sup *bridge.Supervisor,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, sup, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon is
// beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd
// documentation. If watchdog is not configured, the goroutine exits
// immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	// Send keepalive at half the watchdog interval.
	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level + fleet re-scan
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads configuration.
// On reload, the log level is updated dynamically via the shared LevelVar
// and the fleet descriptor directory is re-scanned, connecting added
// robots and disconnecting removed ones.
// Blocks until the context is cancelled (graceful shutdown).
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	sup *bridge.Supervisor,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(ctx, configPath, logLevel, sup, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path, updates
// the dynamic log level, and reconciles the fleet against the re-scanned
// descriptor directory. Errors during reload are logged but do not stop
// the daemon -- the previous configuration remains in effect.
func reloadConfig(
	ctx context.Context,
	configPath string,
	logLevel *slog.LevelVar,
	sup *bridge.Supervisor,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	// Update log level.
	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	// Re-scan the fleet directory.
	fleet, err := config.LoadFleet(newCfg.Fleet.Dir)
	if err != nil {
		logger.Error("failed to reload fleet descriptors, keeping current fleet",
			slog.String("dir", newCfg.Fleet.Dir),
			slog.String("error", err.Error()),
		)
		return
	}

	added, removed, err := sup.Reload(ctx, fleet)
	if err != nil {
		logger.Error("fleet reload had errors",
			slog.String("error", err.Error()),
		)
	}
	logger.Info("fleet reload complete",
		slog.Int("added", added),
		slog.Int("removed", removed),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown — farewells + session teardown + server drain
// -------------------------------------------------------------------------

// gracefulShutdown performs an orderly shutdown: signals systemd, publishes
// the OFFLINE farewells and tears down the vehicle sessions while the
// broker link is still up, then shuts down the HTTP servers.
//
// The parent context is already cancelled when this function is called.
// A fresh timeout context is created internally for the drain.
func gracefulShutdown(
	ctx context.Context,
	sup *bridge.Supervisor,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	// Derive a fresh shutdown context from the parent (which is
	// cancelled). context.WithoutCancel detaches from the parent's
	// cancellation so we can enforce our own drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	sup.Shutdown(shutdownCtx)

	// Stop flight recorder.
	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder initializes and starts the Go 1.26 FlightRecorder
// for post-mortem debugging. The recorder maintains a rolling window of
// execution trace data that can be dumped on demand.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newAdminServer creates the admin HTTP server: REST endpoints for the
// ctl plus gRPC health checking (grpc.health.v1). The handler is wrapped
// with h2c to support HTTP/2 without TLS, which is required for gRPC
// health probes that connect over plaintext.
func newAdminServer(
	cfg config.AdminConfig,
	sup *bridge.Supervisor,
	broker *mqtt.Client,
	logger *slog.Logger,
) *http.Server {
	mux := http.NewServeMux()

	apiPath, apiHandler := server.New(sup, broker, logger)
	mux.Handle(apiPath, apiHandler)

	mux.Handle(server.HealthHandler(logger))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newMetricsServer creates an HTTP server for the Prometheus metrics
// endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// printFleet writes the validated configuration summary for --dry-run.
func printFleet(cfg *config.Config, fleet []config.RobotDescriptor) {
	fmt.Printf("broker:  %s (topic prefix %s)\n", cfg.MQTT.BrokerURL(), cfg.MQTT.TopicPrefix)
	fmt.Printf("fleet:   %d robot(s) from %s\n", len(fleet), cfg.Fleet.Dir)
	for _, d := range fleet {
		ports := d.ProtocolAdapters.Seer.TCPPorts
		fmt.Printf("  %-16s %-15s state=%d reloc=%d move=%d auth=%d safety=%d\n",
			d.Serial(), d.Network.IPAddress,
			ports.StateReporting,
			ports.CommandControl.Relocation,
			ports.CommandControl.Movement,
			ports.CommandControl.Authority,
			ports.CommandControl.Safety,
		)
	}
}
