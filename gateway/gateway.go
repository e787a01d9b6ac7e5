// Package gateway implements the HTTP/WebSocket gateway component that
// bridges external clients to NATS JetStream.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/natsgate/component"
	"github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/metric"
	"github.com/c360/natsgate/pkg/security"
	"github.com/c360/natsgate/pkg/tlsutil"
)

// gatewaySchema defines the configuration schema for the gateway component
var gatewaySchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Gateway serves the HTTP and WebSocket API on a single listener
type Gateway struct {
	name     string
	config   Config
	broker   Broker
	logger   *slog.Logger
	security security.Config
	metrics  *metric.Metrics

	// HTTP server
	server  *http.Server
	limiter *clientLimiters

	// WebSocket connection tracking
	upgrader websocket.Upgrader
	conns    map[*wsConn]struct{}
	connsMu  sync.Mutex

	// Consumer metrics history sampler
	history *historySampler

	// Lifecycle management
	shutdown      chan struct{}
	running       bool
	startTime     time.Time
	mu            sync.RWMutex
	lifecycleMu   sync.Mutex // Serializes Start/Stop
	wg            *sync.WaitGroup
	tlsCleanup    func()
	tlsCleanupMu  sync.Mutex
	lifecycleCtx  context.Context
	lifecycleStop context.CancelFunc

	// Request counters (atomic operations)
	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// Ensure Gateway implements all required interfaces
var _ component.Discoverable = (*Gateway)(nil)
var _ component.LifecycleComponent = (*Gateway)(nil)

// NewGateway creates a gateway component from configuration
func NewGateway(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config unmarshal")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config validation")
	}

	if deps.NATSClient == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"NATS client is required")
	}

	g := newGateway(config, deps.NATSClient, deps)
	return g, nil
}

// newGateway wires a gateway around any Broker. Tests use it directly with
// a stub broker; NewGateway is the registry factory path.
func newGateway(config Config, broker Broker, deps component.Dependencies) *Gateway {
	var core *metric.Metrics
	if deps.MetricsRegistry != nil {
		core = deps.MetricsRegistry.CoreMetrics()
	}

	g := &Gateway{
		name:     "gateway",
		config:   config,
		broker:   broker,
		logger:   deps.GetLoggerWithComponent("gateway"),
		security: deps.Security,
		metrics:  core,
		upgrader: newUpgrader(config.WebSocket),
		conns:    make(map[*wsConn]struct{}),
	}
	g.history = newHistorySampler(broker, g.logger)
	if config.RateLimitRPS > 0 {
		g.limiter = newClientLimiters(config.RateLimitRPS, config.RateLimitBurst)
	}
	return g
}

// Meta returns component metadata
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        g.name,
		Type:        string(component.TypeGateway),
		Description: "HTTP and WebSocket gateway for NATS JetStream streams",
		Version:     g.version(),
	}
}

// ConfigSchema returns the configuration schema
func (g *Gateway) ConfigSchema() component.ConfigSchema {
	return gatewaySchema
}

// Health returns the current health status. The gateway is healthy when
// it is running and the broker connection is up.
func (g *Gateway) Health() component.HealthStatus {
	g.mu.RLock()
	running := g.running
	startTime := g.startTime
	g.mu.RUnlock()

	healthy := running
	var lastError string

	if running && !g.broker.IsHealthy() {
		healthy = false
		lastError = "NATS connection unavailable"
	}

	var uptime time.Duration
	if !startTime.IsZero() {
		uptime = time.Since(startTime)
	}

	return component.HealthStatus{
		Healthy:    healthy,
		LastError:  lastError,
		LastCheck:  time.Now(),
		ErrorCount: int(g.requestsFailed.Load()),
		Uptime:     uptime,
	}
}

// Initialize prepares the gateway. Listener setup happens in Start.
func (g *Gateway) Initialize() error {
	return nil
}

// Start builds the route table and begins serving on the configured
// address. The context governs startup only; shutdown goes through Stop.
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Start", "context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Gateway", "Start", "context already cancelled")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil
	}

	g.lifecycleCtx, g.lifecycleStop = context.WithCancel(context.Background())
	g.shutdown = make(chan struct{})
	g.wg = &sync.WaitGroup{}

	if err := g.setupHTTPServer(); err != nil {
		g.cleanupOnError()
		return err
	}

	g.running = true
	g.startTime = time.Now()

	g.wg.Add(1)
	go g.runServer()

	g.history.start(g.lifecycleCtx, g.wg)

	g.logger.Info("Gateway started",
		"addr", g.server.Addr,
		"tls", g.security.TLS.Server.Enabled)

	return nil
}

// setupHTTPServer creates the HTTP server with TLS when configured
func (g *Gateway) setupHTTPServer() error {
	g.server = &http.Server{
		Addr:        net.JoinHostPort(g.config.Host, strconv.Itoa(g.config.Port)),
		Handler:     g.buildHandler(),
		ReadTimeout: 0, // Per-request deadlines come from the timeout middleware
		IdleTimeout: 60 * time.Second,
	}

	if !g.security.TLS.Server.Enabled {
		return nil
	}

	tlsConfig, cleanup, err := tlsutil.LoadServerTLSConfigWithACME(
		g.lifecycleCtx, g.security.TLS.Server, g.logger)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "setupHTTPServer", "load server TLS config")
	}
	g.server.TLSConfig = tlsConfig

	g.tlsCleanupMu.Lock()
	g.tlsCleanup = cleanup
	g.tlsCleanupMu.Unlock()

	return nil
}

// cleanupOnError releases resources when Start fails partway
func (g *Gateway) cleanupOnError() {
	if g.shutdown != nil {
		close(g.shutdown)
		g.shutdown = nil
	}
	if g.lifecycleStop != nil {
		g.lifecycleStop()
	}
	if g.server != nil {
		_ = g.server.Shutdown(context.Background())
		g.server = nil
	}
}

// runServer blocks in ListenAndServe until Stop shuts the server down
func (g *Gateway) runServer() {
	defer g.wg.Done()

	g.mu.RLock()
	server := g.server
	tlsEnabled := g.security.TLS.Server.Enabled
	g.mu.RUnlock()

	if server == nil {
		return
	}

	var err error
	if tlsEnabled {
		// TLSConfig carries the certificates, so the file arguments stay empty
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		g.logger.Error("HTTP server failed", "error", err)
		g.requestsFailed.Add(1)
	}
}

// Stop drains the gateway: WebSocket clients get a CLOSE frame, in-flight
// requests get the timeout to finish, then the listener closes.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false

	if g.shutdown != nil {
		close(g.shutdown)
	}

	wg := g.wg
	server := g.server
	g.mu.Unlock()

	// WebSocket connections do not participate in graceful HTTP shutdown,
	// so close them explicitly before draining the server.
	g.closeAllConns("server shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			g.logger.Warn("HTTP server shutdown incomplete", "error", err)
		}
	}

	if g.lifecycleStop != nil {
		g.lifecycleStop()
	}

	if wg != nil {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			g.logger.Warn("Gateway goroutines did not exit within timeout")
		}
	}

	g.tlsCleanupMu.Lock()
	if g.tlsCleanup != nil {
		g.tlsCleanup()
		g.tlsCleanup = nil
	}
	g.tlsCleanupMu.Unlock()

	g.mu.Lock()
	g.server = nil
	g.shutdown = nil
	g.wg = nil
	g.mu.Unlock()

	g.logger.Info("Gateway stopped")
	return nil
}

// lifecycleContext returns the context that outlives individual requests.
// WebSocket subscriptions bind to it so they survive the upgrade request
// but stop with the component.
func (g *Gateway) lifecycleContext() context.Context {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.lifecycleCtx == nil {
		return context.Background()
	}
	return g.lifecycleCtx
}

func (g *Gateway) version() string {
	if g.config.Version != "" {
		return g.config.Version
	}
	return "dev"
}

// uptime returns how long the gateway has been running
func (g *Gateway) uptime() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.startTime.IsZero() || !g.running {
		return 0
	}
	return time.Since(g.startTime)
}

// Register registers the gateway with the component registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "gateway",
		Factory:     NewGateway,
		Schema:      gatewaySchema,
		Type:        string(component.TypeGateway),
		Protocol:    "http",
		Domain:      "network",
		Description: "HTTP and WebSocket gateway for NATS JetStream streams",
		Version:     "1.0.0",
	})
}
