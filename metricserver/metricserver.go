// Package metricserver implements the Prometheus scrape endpoint as a
// managed component. It also serves the aggregated health report for
// everything registered with its health monitor.
package metricserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/c360/natsgate/component"
	"github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/health"
	"github.com/c360/natsgate/metric"
	"github.com/c360/natsgate/pkg/security"
)

// healthRefreshInterval is how often watched components are re-polled
const healthRefreshInterval = 15 * time.Second

var serverSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the metrics server component
type Config struct {
	// Port is the scrape endpoint listen port
	Port int `json:"port,omitempty" schema:"type:int,description:Metrics listen port,min:1,max:65535,default:9090,category:basic"`

	// Path is the scrape endpoint URL path
	Path string `json:"path,omitempty" schema:"type:string,description:Metrics endpoint path,default:/metrics,category:basic"`
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MetricServer", "Validate",
			"port must be between 1 and 65535")
	}
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MetricServer", "Validate",
			"metrics path cannot be empty")
	}
	return nil
}

// MetricServer exposes the Prometheus registry and the aggregate health
// report on a dedicated listener, separate from the gateway's API port.
type MetricServer struct {
	name     string
	config   Config
	registry *metric.MetricsRegistry
	logger   *slog.Logger
	security security.Config
	monitor  *health.Monitor

	server *metric.Server

	running       bool
	startTime     time.Time
	errorCount    int
	mu            sync.RWMutex
	lifecycleMu   sync.Mutex // Serializes Start/Stop
	wg            *sync.WaitGroup
	lifecycleStop context.CancelFunc
}

var _ component.Discoverable = (*MetricServer)(nil)
var _ component.LifecycleComponent = (*MetricServer)(nil)

// NewMetricServer creates the metrics server component from configuration
func NewMetricServer(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := Config{Port: 9090, Path: "/metrics"}
	if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
		return nil, errors.WrapInvalid(err, "MetricServer", "NewMetricServer", "config unmarshal")
	}
	if config.Port == 0 {
		config.Port = 9090
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "MetricServer", "NewMetricServer", "config validation")
	}

	if deps.MetricsRegistry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "MetricServer", "NewMetricServer",
			"metrics registry is required")
	}

	return &MetricServer{
		name:     "metrics-server",
		config:   config,
		registry: deps.MetricsRegistry,
		logger:   deps.GetLoggerWithComponent("metrics-server"),
		security: deps.Security,
		monitor:  health.NewMonitor(),
	}, nil
}

// HealthMonitor returns the monitor backing the /health endpoint. The
// runner registers components here before starting the server.
func (m *MetricServer) HealthMonitor() *health.Monitor {
	return m.monitor
}

// Meta returns component metadata
func (m *MetricServer) Meta() component.Metadata {
	return component.Metadata{
		Name:        m.name,
		Type:        string(component.TypeService),
		Description: "Prometheus metrics and aggregate health endpoint",
		Version:     "1.0.0",
	}
}

// ConfigSchema returns the configuration schema
func (m *MetricServer) ConfigSchema() component.ConfigSchema {
	return serverSchema
}

// Health returns the current health status
func (m *MetricServer) Health() component.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var uptime time.Duration
	if !m.startTime.IsZero() && m.running {
		uptime = time.Since(m.startTime)
	}

	return component.HealthStatus{
		Healthy:    m.running,
		LastCheck:  time.Now(),
		ErrorCount: m.errorCount,
		Uptime:     uptime,
	}
}

// Initialize prepares the component. The listener is created in Start.
func (m *MetricServer) Initialize() error {
	return nil
}

// Start begins serving metrics and health on the configured port
func (m *MetricServer) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MetricServer", "Start", "context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "MetricServer", "Start", "context already cancelled")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	addr := ":" + strconv.Itoa(m.config.Port)
	m.server = metric.NewServer(addr, m.config.Path, m.registry, m.security)
	m.server.SetHealthHandler(http.HandlerFunc(m.handleHealth))

	lifecycleCtx, stop := context.WithCancel(context.Background())
	m.lifecycleStop = stop
	m.wg = &sync.WaitGroup{}

	m.wg.Add(2)
	go m.runServer()
	go m.refreshLoop(lifecycleCtx)

	m.running = true
	m.startTime = time.Now()

	m.logger.Info("Metrics server started", "addr", addr, "path", m.config.Path)
	return nil
}

// runServer blocks in the metric server until Stop closes it
func (m *MetricServer) runServer() {
	defer m.wg.Done()

	m.mu.RLock()
	server := m.server
	m.mu.RUnlock()
	if server == nil {
		return
	}

	if err := server.Start(); err != nil {
		m.logger.Error("Metrics server failed", "error", err)
		m.mu.Lock()
		m.errorCount++
		m.running = false
		m.mu.Unlock()
	}
}

// refreshLoop re-polls watched components so /health reflects current state
func (m *MetricServer) refreshLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(healthRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.monitor.Refresh()
		}
	}
}

// Stop shuts the listener down and stops the refresh loop
func (m *MetricServer) Stop(timeout time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false

	server := m.server
	wg := m.wg
	stop := m.lifecycleStop
	m.server = nil
	m.wg = nil
	m.lifecycleStop = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}

	var stopErr error
	if server != nil {
		stopErr = server.Stop()
	}

	if wg != nil {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			m.logger.Warn("Metrics server goroutines did not exit within timeout")
		}
	}

	if stopErr != nil {
		return errors.WrapTransient(stopErr, "MetricServer", "Stop", "close metrics listener")
	}

	m.logger.Info("Metrics server stopped")
	return nil
}

// handleHealth serves the aggregated health report. Unhealthy aggregates
// return 503 so load balancers can act on the status code alone.
func (m *MetricServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m.monitor.Refresh()
	aggregate := m.monitor.AggregateHealth("natsgate")

	code := http.StatusOK
	if aggregate.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(aggregate); err != nil {
		m.logger.Warn("Failed to write health response", "error", err)
	}
}

// Register registers the metrics server with the component registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "metrics-server",
		Factory:     NewMetricServer,
		Schema:      serverSchema,
		Type:        string(component.TypeService),
		Protocol:    "http",
		Domain:      "observability",
		Description: "Prometheus metrics and aggregate health endpoint",
		Version:     "1.0.0",
	})
}
