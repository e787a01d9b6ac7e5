package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all gateway-level metrics (not request-specific state)
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// Message metrics
	MessagesPublished *prometheus.CounterVec
	MessagesFetched   *prometheus.CounterVec
	PublishSize       *prometheus.HistogramVec
	ParseFailures     *prometheus.CounterVec

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSConnectionsTotal  prometheus.Counter
	WSFramesSent        *prometheus.CounterVec
	WSSlowDisconnects   prometheus.Counter

	// Stream management metrics
	StreamsProvisioned prometheus.Counter
	ConsumersCreated   prometheus.Counter
	ConsumersDeleted   prometheus.Counter

	// Component metrics
	ServiceStatus     *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all gateway metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP metrics
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "natsgate",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		HTTPInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "natsgate",
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		// Message metrics. Labels use the stream name, never the full
		// subject, to keep cardinality bounded.
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of messages published",
			},
			[]string{"stream", "encoding"},
		),

		MessagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "messages",
				Name:      "fetched_total",
				Help:      "Total number of messages returned by fetch endpoints",
			},
			[]string{"stream"},
		),

		PublishSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "natsgate",
				Subsystem: "messages",
				Name:      "publish_size_bytes",
				Help:      "Published payload size in bytes",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"stream"},
		),

		ParseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "messages",
				Name:      "parse_failures_total",
				Help:      "Total number of request bodies rejected as unparseable",
			},
			[]string{"format"},
		),

		// WebSocket metrics
		WSConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "natsgate",
				Subsystem: "websocket",
				Name:      "connections_active",
				Help:      "Number of currently open WebSocket connections",
			},
		),

		WSConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "websocket",
				Name:      "connections_total",
				Help:      "Total number of WebSocket connections accepted",
			},
		),

		WSFramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "websocket",
				Name:      "frames_sent_total",
				Help:      "Total number of frames written to WebSocket clients",
			},
			[]string{"type"},
		),

		WSSlowDisconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "websocket",
				Name:      "slow_disconnects_total",
				Help:      "Total number of connections closed because the client could not keep up",
			},
		),

		// Stream management metrics
		StreamsProvisioned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "streams",
				Name:      "provisioned_total",
				Help:      "Total number of streams auto-provisioned on first publish",
			},
		),

		ConsumersCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "consumers",
				Name:      "created_total",
				Help:      "Total number of durable consumers created",
			},
		),

		ConsumersDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "consumers",
				Name:      "deleted_total",
				Help:      "Total number of durable consumers deleted",
			},
		),

		// Component metrics
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "natsgate",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "natsgate",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		// NATS metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "natsgate",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "natsgate",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "natsgate",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "natsgate",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordHTTPRequest records a completed HTTP request
func (c *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordPublish records an accepted publish with its payload size
func (c *Metrics) RecordPublish(stream, encoding string, sizeBytes int) {
	c.MessagesPublished.WithLabelValues(stream, encoding).Inc()
	c.PublishSize.WithLabelValues(stream).Observe(float64(sizeBytes))
}

// RecordFetch records the number of messages returned by a fetch
func (c *Metrics) RecordFetch(stream string, count int) {
	c.MessagesFetched.WithLabelValues(stream).Add(float64(count))
}

// RecordParseFailure increments the parse failure counter for a body format
func (c *Metrics) RecordParseFailure(format string) {
	c.ParseFailures.WithLabelValues(format).Inc()
}

// RecordWSConnectionOpened tracks a newly accepted WebSocket connection
func (c *Metrics) RecordWSConnectionOpened() {
	c.WSConnectionsActive.Inc()
	c.WSConnectionsTotal.Inc()
}

// RecordWSConnectionClosed tracks a closed WebSocket connection
func (c *Metrics) RecordWSConnectionClosed() {
	c.WSConnectionsActive.Dec()
}

// RecordWSFrame increments the sent frame counter for a frame type
func (c *Metrics) RecordWSFrame(frameType string) {
	c.WSFramesSent.WithLabelValues(frameType).Inc()
}

// RecordWSSlowDisconnect counts a connection dropped for backpressure
func (c *Metrics) RecordWSSlowDisconnect() {
	c.WSSlowDisconnects.Inc()
}

// RecordStreamProvisioned counts an auto-provisioned stream
func (c *Metrics) RecordStreamProvisioned() {
	c.StreamsProvisioned.Inc()
}

// RecordConsumerCreated counts a durable consumer creation
func (c *Metrics) RecordConsumerCreated() {
	c.ConsumersCreated.Inc()
}

// RecordConsumerDeleted counts a durable consumer deletion
func (c *Metrics) RecordConsumerDeleted() {
	c.ConsumersDeleted.Inc()
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
