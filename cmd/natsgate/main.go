// Package main implements the entry point for natsgate, an HTTP and
// WebSocket gateway that bridges external clients to NATS JetStream.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/natsgate/component"
	"github.com/c360/natsgate/componentregistry"
	"github.com/c360/natsgate/config"
	"github.com/c360/natsgate/gateway"
	"github.com/c360/natsgate/metric"
	"github.com/c360/natsgate/metricserver"
	"github.com/c360/natsgate/natsclient"
)

// Build information constants
const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "natsgate"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// Run application with proper error handling
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// OpenAPI export needs no config or broker
	if cliCfg.DumpOpenAPI != "" {
		if err := gateway.WriteOpenAPIFile(cliCfg.DumpOpenAPI, Version); err != nil {
			return fmt.Errorf("write OpenAPI document: %w", err)
		}
		fmt.Printf("OpenAPI document written to %s\n", cliCfg.DumpOpenAPI)
		return nil
	}

	// Load and validate configuration
	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	// The bootstrap logger only knows the flags; rebuild it now that the
	// effective logging config is known
	slog.SetDefault(setupLogger(cfg.Logging.Level, cfg.Logging.Format))

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// Setup core infrastructure
	ctx := context.Background()
	natsClient, metricsRegistry, err := setupInfrastructure(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := natsClient.Close(ctx); err != nil {
			slog.Warn("NATS close failed", "error", err)
		}
	}()

	// Create components in start order
	components, err := createComponents(cfg, natsClient, metricsRegistry)
	if err != nil {
		return err
	}

	// Run application with signal handling
	return runWithSignalHandling(ctx, components, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	// Bootstrap logger from flags alone; rebuilt once the config loads
	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.DumpOpenAPI == "" {
		slog.Info("Starting natsgate",
			"version", Version,
			"build_time", BuildTime,
			"config_path", cliCfg.ConfigPath)
	}

	return cliCfg, false, nil
}

// initializeConfiguration loads configuration and applies flag overrides
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Flags win over both the file and the NATSGATE_* env overrides the
	// loader already applied, but only when explicitly set
	if cliCfg.Port != 0 {
		cfg.Server.Port = cliCfg.Port
	}
	if cliCfg.NATSURL != "" {
		cfg.NATS.URLs = []string{cliCfg.NATSURL}
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupInfrastructure creates the NATS client and metrics registry, then
// connects to the broker
func setupInfrastructure(
	ctx context.Context,
	cfg *config.Config,
) (*natsclient.Client, *metric.MetricsRegistry, error) {
	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, err := createNATSClient(cfg, metricsRegistry)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "urls", len(cfg.NATS.URLs))
	if err := natsClient.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return natsClient, metricsRegistry, nil
}

// createNATSClient builds the circuit-breaker client from configuration
func createNATSClient(cfg *config.Config, registry *metric.MetricsRegistry) (*natsclient.Client, error) {
	url := "nats://localhost:4222"
	if len(cfg.NATS.URLs) > 0 {
		url = cfg.NATS.URLs[0]
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithMetrics(registry),
		natsclient.WithStreamDefaults(natsclient.StreamDefaults{
			AutoProvision: cfg.Stream.AutoProvision,
			Storage:       cfg.Stream.Storage,
			Replicas:      cfg.Stream.Replicas,
			MaxAge:        cfg.Stream.MaxAge,
			MaxBytes:      cfg.Stream.MaxBytes,
			MaxMsgs:       cfg.Stream.MaxMsgs,
			ResolutionTTL: cfg.Stream.ResolutionTTL,
		}),
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.Security.TLS.Client.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.Security.TLS.Client))
	}

	return natsclient.NewClient(url, opts...)
}

// createComponents registers the component factories and instantiates them
// in start order: metrics-server first so the health endpoint is up before
// the gateway takes traffic.
func createComponents(
	cfg *config.Config,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
) ([]component.LifecycleComponent, error) {
	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}

	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          slog.Default(),
		Security:        cfg.Security,
	}

	var components []component.LifecycleComponent
	var metricsServer *metricserver.MetricServer

	if cfg.Metrics.Enabled {
		raw, err := metricsComponentConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build metrics-server config: %w", err)
		}
		comp, err := registry.CreateComponent("metrics-server", component.Config{
			Type:    component.TypeService,
			Name:    "metrics-server",
			Enabled: true,
			Config:  raw,
		}, deps)
		if err != nil {
			return nil, fmt.Errorf("create metrics-server: %w", err)
		}
		metricsServer = comp.(*metricserver.MetricServer)
		components = append(components, metricsServer)
	}

	gwRaw, err := gatewayComponentConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build gateway config: %w", err)
	}
	gwComp, err := registry.CreateComponent("gateway", component.Config{
		Type:    component.TypeGateway,
		Name:    "gateway",
		Enabled: true,
		Config:  gwRaw,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	gw := gwComp.(component.LifecycleComponent)
	components = append(components, gw)

	// Feed the aggregate health endpoint: components are polled, the NATS
	// connection reports through its health-change callback
	if metricsServer != nil {
		monitor := metricsServer.HealthMonitor()
		monitor.Watch("gateway", gw)
		monitor.Watch("metrics-server", metricsServer)
		natsClient.OnHealthChange(func(healthy bool) {
			if healthy {
				monitor.UpdateHealthy("nats", "connected")
			} else {
				monitor.UpdateUnhealthy("nats", "connection lost")
			}
		})
		monitor.UpdateHealthy("nats", "connected")
	}

	return components, nil
}

// gatewayComponentConfig maps the application config onto the gateway
// component's configuration
func gatewayComponentConfig(cfg *config.Config) (json.RawMessage, error) {
	gc := gateway.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxRequestSize: cfg.Server.MaxBodyBytes,
		EnableCORS:     cfg.Server.CORS.Enabled,
		CORSOrigins:    cfg.Server.CORS.AllowedOrigins,
		Version:        Version,
	}
	if cfg.Server.RequestTimeout > 0 {
		gc.RequestTimeoutStr = cfg.Server.RequestTimeout.String()
	}
	if cfg.Server.RateLimit.Enabled {
		gc.RateLimitRPS = cfg.Server.RateLimit.RequestsPerSecond
		gc.RateLimitBurst = cfg.Server.RateLimit.Burst
	}

	gc.Fetch = gateway.FetchLimits{
		DefaultLimit: cfg.Fetch.DefaultLimit,
		MaxLimit:     cfg.Fetch.MaxLimit,
	}
	if cfg.Fetch.DefaultTimeout > 0 {
		gc.Fetch.DefaultTimeoutStr = cfg.Fetch.DefaultTimeout.String()
	}
	if cfg.Fetch.MinTimeout > 0 {
		gc.Fetch.MinTimeoutStr = cfg.Fetch.MinTimeout.String()
	}
	if cfg.Fetch.MaxTimeout > 0 {
		gc.Fetch.MaxTimeoutStr = cfg.Fetch.MaxTimeout.String()
	}

	if cfg.WebSocket.KeepaliveInterval > 0 {
		gc.WebSocket.KeepaliveIntervalStr = cfg.WebSocket.KeepaliveInterval.String()
	}
	if cfg.WebSocket.ReadTimeout > 0 {
		gc.WebSocket.ReadTimeoutStr = cfg.WebSocket.ReadTimeout.String()
	}
	if cfg.WebSocket.WriteTimeout > 0 {
		gc.WebSocket.WriteTimeoutStr = cfg.WebSocket.WriteTimeout.String()
	}
	gc.WebSocket.MaxConnections = cfg.WebSocket.MaxConnections
	gc.WebSocket.ReadBufferSize = cfg.WebSocket.ReadBufferSize
	gc.WebSocket.WriteBufferSize = cfg.WebSocket.WriteBufferSize
	gc.WebSocket.AllowedOrigins = cfg.WebSocket.AllowedOrigins

	return json.Marshal(gc)
}

// metricsComponentConfig maps the application config onto the
// metrics-server component's configuration
func metricsComponentConfig(cfg *config.Config) (json.RawMessage, error) {
	return json.Marshal(metricserver.Config{
		Port: cfg.Metrics.Port,
		Path: "/metrics",
	})
}

// runWithSignalHandling starts components and handles shutdown signals
func runWithSignalHandling(
	ctx context.Context,
	components []component.LifecycleComponent,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	started, err := startAll(signalCtx, components)
	if err != nil {
		stopAll(started, shutdownTimeout)
		return err
	}

	slog.Info("natsgate started successfully", "components", len(started))

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	stopAll(started, shutdownTimeout)
	slog.Info("natsgate shutdown complete")
	return nil
}

// startAll initializes and starts components in order, returning those
// that started for reverse-order shutdown
func startAll(ctx context.Context, components []component.LifecycleComponent) ([]component.LifecycleComponent, error) {
	var started []component.LifecycleComponent
	for _, comp := range components {
		name := comp.Meta().Name
		if err := comp.Initialize(); err != nil {
			return started, fmt.Errorf("initialize %s: %w", name, err)
		}
		if err := comp.Start(ctx); err != nil {
			return started, fmt.Errorf("start %s: %w", name, err)
		}
		slog.Info("Component started", "name", name)
		started = append(started, comp)
	}
	return started, nil
}

// stopAll stops components in reverse start order
func stopAll(components []component.LifecycleComponent, timeout time.Duration) {
	for i := len(components) - 1; i >= 0; i-- {
		comp := components[i]
		name := comp.Meta().Name
		if err := comp.Stop(timeout); err != nil {
			slog.Error("Component stop failed", "name", name, "error", err)
		} else {
			slog.Info("Component stopped", "name", name)
		}
	}
}
