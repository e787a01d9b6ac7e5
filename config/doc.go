// Package config provides configuration management for the natsgate gateway.
//
// This package handles loading and validation of gateway configuration from
// JSON or YAML files with environment variable overrides.
//
// # Core Components
//
// Config: Main configuration structure containing HTTP server settings, NATS
// connection details, stream provisioning defaults, fetch limits, WebSocket
// tuning, and security settings.
//
// SafeConfig: Thread-safe wrapper using RWMutex and deep cloning to prevent
// concurrent access issues and accidental mutations.
//
// Loader: Loads configuration with layer merging (base + overrides) and
// environment variable substitution for flexible deployment scenarios.
//
// # Basic Usage
//
// Loading configuration from files with layer merging:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Variable Overrides
//
// Configuration values can be overridden using environment variables:
//
//	# Override the HTTP listen port
//	export NATSGATE_SERVER_PORT="8443"
//
//	# Override NATS URLs (comma-separated)
//	export NATSGATE_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
//	# Set the bearer token required on mutating endpoints
//	export NATSGATE_AUTH_TOKEN="s3cret"
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics:
//
//	base.json:
//	  {"server": {"port": 8080, "host": "0.0.0.0"}}
//
//	production.json:
//	  {"server": {"port": 443}}
//
//	Result:
//	  {"server": {"port": 443, "host": "0.0.0.0"}}
//
// Duration fields accept Go duration strings ("250ms", "2h") in both JSON
// and YAML, plus a day suffix for retention windows ("14d").
//
// # Security
//
// The package includes security validation:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - Nesting depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
package config
