// Package metric provides Prometheus-based metrics collection and an HTTP
// server for natsgate monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// gateway metrics (HTTP traffic, publish/fetch volume, WebSocket sessions,
// NATS health) and custom component-specific metrics. It includes an HTTP
// server exposing metrics in Prometheus format for monitoring system
// integration.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Gateway-level metrics automatically registered (Metrics type)
//  2. Component Registry: Extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// This architecture separates infrastructure concerns (core metrics) from
// component concerns (component-specific metrics) while providing a unified
// metrics endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	securityCfg := security.Config{} // Gateway security config
//	server := metric.NewServer(":9090", "/metrics", registry, securityCfg)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core gateway metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordHTTPRequest("POST", "/api/messages/{subject}", 200, 12*time.Millisecond)
//	coreMetrics.RecordPublish("events", "protobuf", 512)
//	coreMetrics.RecordNATSStatus(true)
//
// The metrics server will expose Prometheus-formatted metrics at
// http://localhost:9090/metrics and a health check at
// http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core gateway metrics tracking:
//
//   - HTTP traffic: http_requests_total, http_request_duration_seconds, http_in_flight_requests
//   - Message flow: messages_published_total, messages_fetched_total, messages_publish_size_bytes
//   - Rejections: messages_parse_failures_total
//   - WebSocket sessions: websocket_connections_active, websocket_frames_sent_total,
//     websocket_slow_disconnects_total
//   - Stream management: streams_provisioned_total, consumers_created_total
//   - NATS connectivity: nats_connected, nats_rtt_milliseconds, nats_reconnects_total
//
// Message-flow metrics label by stream name rather than full subject so
// cardinality stays bounded regardless of client subject choices.
//
// # Component-Specific Metrics
//
// Components can register custom metrics through the registry:
//
//	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: "natsgate",
//	    Subsystem: "resolution",
//	    Name:      "cache_hits_total",
//	    Help:      "Stream resolution cache hits",
//	})
//	err := registry.RegisterCounter("gateway", "resolution_cache_hits_total", cacheHits)
//
// Registration is tracked per service.metric pair: duplicate registrations
// are rejected at the registry level, and name collisions surface the
// underlying Prometheus conflict.
//
// # Metric Lifecycle
//
// Metrics can be unregistered when a component shuts down:
//
//	removed := registry.Unregister("gateway", "resolution_cache_hits_total")
package metric
