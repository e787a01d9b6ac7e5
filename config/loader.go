package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "NATSGATE",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	cfg := l.getDefaults()

	// Load each layer and merge using map-based approach
	for _, path := range l.layers {
		rawConfig, err := l.loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, rawConfig)
	}

	// Apply environment overrides
	l.applyEnvOverrides(cfg)

	// Validate if enabled
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// getDefaults returns default configuration
func (l *Loader) getDefaults() *Config {
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 100,
				Burst:             200,
			},
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: JetStreamConfig{
				Enabled: true,
			},
		},
		Stream: StreamConfig{
			AutoProvision: true,
			Storage:       StorageFile,
			Replicas:      1,
			ResolutionTTL: time.Minute,
		},
		Fetch: FetchConfig{
			DefaultLimit:   10,
			MaxLimit:       1000,
			DefaultTimeout: 5 * time.Second,
			MinTimeout:     time.Second,
			MaxTimeout:     30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			KeepaliveInterval: 30 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			AllowedOrigins:    []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: LogFormatJSON,
		},
	}
}

// loadRaw loads a configuration file into a map. JSON and YAML files are
// supported, selected by extension.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	// Use secure file reading with validation
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var rawConfig map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		// Run the same nesting guard as JSON configs by checking the
		// converted document.
		converted, err := json.Marshal(rawConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid YAML structure: %w", err)
		}
		if err := validateJSONDepth(converted); err != nil {
			return nil, fmt.Errorf("invalid YAML structure: %w", err)
		}
	default:
		// Validate JSON depth to prevent DoS
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &rawConfig); err != nil {
			return nil, err
		}
	}

	// Convert duration strings
	l.parseDurations(rawConfig)

	return rawConfig, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	// Marshal the base config to JSON then to map
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	// Deep merge the maps
	mergedMap := l.deepMergeMaps(baseMap, override)

	// Convert back to Config
	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}

	return &merged
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	// Copy base values
	for k, v := range base {
		result[k] = v
	}

	// Override with values from override map
	for k, v := range override {
		if v == nil {
			continue
		}

		// If both base and override have maps at this key, merge them
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		// Otherwise, override takes precedence
		result[k] = v
	}

	return result
}

// parseDurations converts duration strings to nanoseconds so merged maps
// carry a single representation regardless of source format.
func (l *Loader) parseDurations(data map[string]any) {
	parseDurationKeys(subMap(data, "server"),
		"read_timeout", "write_timeout", "idle_timeout", "request_timeout", "shutdown_timeout")
	parseDurationKeys(subMap(data, "nats"), "reconnect_wait")
	parseDurationKeys(subMap(data, "stream"), "max_age", "resolution_ttl")
	parseDurationKeys(subMap(data, "fetch"), "default_timeout", "min_timeout", "max_timeout")
	parseDurationKeys(subMap(data, "websocket"), "keepalive_interval", "read_timeout", "write_timeout")
}

// subMap returns a nested map section, or nil when absent.
func subMap(data map[string]any, key string) map[string]any {
	section, _ := data[key].(map[string]any)
	return section
}

// parseDurationKeys converts string duration values at the given keys to
// nanoseconds. Unparseable strings are left for unmarshaling to reject.
func parseDurationKeys(section map[string]any, keys ...string) {
	if section == nil {
		return
	}
	for _, key := range keys {
		if s, ok := section[key].(string); ok {
			if d, err := parseDurationWithDays(s); err == nil {
				section[key] = d.Nanoseconds()
			}
		}
	}
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// mergeConfigs merges configuration layers
// This is primarily used for testing - the main Load() uses mergeFromMap
func (l *Loader) mergeConfigs(base, override *Config) *Config {
	if override == nil {
		return base
	}

	// Convert both to maps and use the map-based merge
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	overrideJSON, err := json.Marshal(override)
	if err != nil {
		return base
	}
	var overrideMap map[string]any
	if err := json.Unmarshal(overrideJSON, &overrideMap); err != nil {
		return base
	}

	// Remove nil values from override map (these are zero values in Go structs)
	l.removeNilValues(overrideMap)

	// Merge and convert back
	mergedMap := l.deepMergeMaps(baseMap, overrideMap)
	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}

	return &merged
}

// removeNilValues recursively removes nil values from a map
func (l *Loader) removeNilValues(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		} else if nested, ok := v.(map[string]any); ok {
			l.removeNilValues(nested)
		}
	}
}

// envValue reads an environment variable and validates it, returning ""
// for unset or rejected values.
func (l *Loader) envValue(suffix string) string {
	key := l.envPrefix + "_" + suffix
	val := os.Getenv(key)
	if val == "" {
		return ""
	}
	if err := validateEnvVar(key, val); err != nil {
		return ""
	}
	return val
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := l.envValue("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := l.envValue("SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	// NATS overrides
	if val := l.envValue("NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := l.envValue("NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := l.envValue("NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := l.envValue("NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}

	// Observability overrides
	if val := l.envValue("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := l.envValue("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := l.envValue("METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}

	// Security overrides
	if val := l.envValue("AUTH_TOKEN"); val != "" {
		cfg.Security.AuthToken = val
	}
}
