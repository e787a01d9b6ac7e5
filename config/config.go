package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/c360/natsgate/pkg/security"
)

// Storage type constants for auto-provisioned streams.
const (
	StorageFile   = "file"   // Disk-backed stream storage (default)
	StorageMemory = "memory" // In-memory stream storage
)

// Logging format constants.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the complete gateway configuration.
// Sections: Server (HTTP listener), NATS (broker connection), Stream
// (auto-provisioning defaults), Fetch (read limits), WebSocket (live
// subscriptions), Metrics, Logging, and Security (auth + TLS).
type Config struct {
	Version   string          `json:"version,omitempty"` // Semantic version of the config schema
	Server    ServerConfig    `json:"server"`
	NATS      NATSConfig      `json:"nats"`
	Stream    StreamConfig    `json:"stream,omitempty"`
	Fetch     FetchConfig     `json:"fetch,omitempty"`
	WebSocket WebSocketConfig `json:"websocket,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Security  security.Config `json:"security,omitempty"`
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	// Validate before updating
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		// Fallback to shallow copy if marshaling fails
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		// Fallback to shallow copy if unmarshaling fails
		copied := *c
		return &copied
	}

	return &clone
}

// ServerConfig defines the HTTP listener and request handling limits.
type ServerConfig struct {
	Host            string        `json:"host,omitempty"`
	Port            int           `json:"port,omitempty"`
	ReadTimeout     time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `json:"write_timeout,omitempty"`
	IdleTimeout     time.Duration `json:"idle_timeout,omitempty"`
	RequestTimeout  time.Duration `json:"request_timeout,omitempty"`  // Per-request handler deadline
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty"` // Graceful drain window on stop
	MaxBodyBytes    int64         `json:"max_body_bytes,omitempty"`   // Publish payload size cap

	CORS      CORSConfig      `json:"cors,omitempty"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty"`
}

// Addr returns the host:port listen address for the HTTP server.
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CORSConfig controls cross-origin request handling.
type CORSConfig struct {
	Enabled        bool     `json:"enabled"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// RateLimitConfig controls per-instance request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string        `json:"urls,omitempty"`
	MaxReconnects int             `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration   `json:"reconnect_wait,omitempty"`
	Username      string          `json:"username,omitempty"`
	Password      string          `json:"password,omitempty"`
	Token         string          `json:"token,omitempty"`
	TLS           NATSTLSConfig   `json:"tls,omitempty"`
	JetStream     JetStreamConfig `json:"jetstream,omitempty"`
}

// NATSTLSConfig for secure NATS connections
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// JetStreamConfig for JetStream settings
type JetStreamConfig struct {
	Enabled bool   `json:"enabled"`
	Domain  string `json:"domain,omitempty"`
}

// StreamConfig defines defaults for auto-provisioned streams. A stream is
// created on first publish to a subject whose first token names no existing
// stream, using these settings.
type StreamConfig struct {
	AutoProvision bool          `json:"auto_provision"`
	Storage       string        `json:"storage,omitempty"`  // "file" or "memory"
	Replicas      int           `json:"replicas,omitempty"` // 1-5
	MaxAge        time.Duration `json:"max_age,omitempty"`  // 0 = keep forever
	MaxBytes      int64         `json:"max_bytes,omitempty"`
	MaxMsgs       int64         `json:"max_msgs,omitempty"`
	ResolutionTTL time.Duration `json:"resolution_ttl,omitempty"` // Subject-to-stream cache lifetime
}

// FetchConfig bounds message reads on the fetch endpoints.
type FetchConfig struct {
	DefaultLimit   int           `json:"default_limit,omitempty"`
	MaxLimit       int           `json:"max_limit,omitempty"`
	DefaultTimeout time.Duration `json:"default_timeout,omitempty"`
	MinTimeout     time.Duration `json:"min_timeout,omitempty"`
	MaxTimeout     time.Duration `json:"max_timeout,omitempty"`
}

// WebSocketConfig tunes live subscription connections.
type WebSocketConfig struct {
	KeepaliveInterval time.Duration `json:"keepalive_interval,omitempty"` // KEEPALIVE frame cadence
	ReadTimeout       time.Duration `json:"read_timeout,omitempty"`       // Client silence tolerance
	WriteTimeout      time.Duration `json:"write_timeout,omitempty"`
	ReadBufferSize    int           `json:"read_buffer_size,omitempty"`
	WriteBufferSize   int           `json:"write_buffer_size,omitempty"`
	MaxConnections    int           `json:"max_connections,omitempty"` // 0 = unlimited
	AllowedOrigins    []string      `json:"allowed_origins,omitempty"` // Handshake origin allowlist; empty allows all
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// Addr returns the host:port listen address for the metrics server.
func (m *MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // json or text
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("server.rate_limit.requests_per_second must be positive")
		}
		if c.Server.RateLimit.Burst < 1 {
			return errors.New("server.rate_limit.burst must be at least 1")
		}
	}

	if len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required")
	}

	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateWebSocket(); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return errors.New("metrics.port must differ from server.port")
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}

	// Validate Security Configuration
	if err := c.validateSecurity(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}

	return nil
}

func (c *Config) validateStream() error {
	switch c.Stream.Storage {
	case "", StorageFile, StorageMemory:
	default:
		return fmt.Errorf("stream.storage %q is not one of file, memory", c.Stream.Storage)
	}
	if c.Stream.Replicas < 0 || c.Stream.Replicas > 5 {
		return fmt.Errorf("stream.replicas must be 0-5, got %d", c.Stream.Replicas)
	}
	if c.Stream.MaxAge < 0 {
		return errors.New("stream.max_age cannot be negative")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.DefaultLimit < 1 {
		return errors.New("fetch.default_limit must be at least 1")
	}
	if c.Fetch.MaxLimit < c.Fetch.DefaultLimit {
		return fmt.Errorf("fetch.max_limit %d is below fetch.default_limit %d",
			c.Fetch.MaxLimit, c.Fetch.DefaultLimit)
	}
	if c.Fetch.MinTimeout <= 0 || c.Fetch.MaxTimeout < c.Fetch.MinTimeout {
		return errors.New("fetch timeouts must satisfy 0 < min_timeout <= max_timeout")
	}
	if c.Fetch.DefaultTimeout < c.Fetch.MinTimeout || c.Fetch.DefaultTimeout > c.Fetch.MaxTimeout {
		return fmt.Errorf("fetch.default_timeout %s outside [%s, %s]",
			c.Fetch.DefaultTimeout, c.Fetch.MinTimeout, c.Fetch.MaxTimeout)
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.KeepaliveInterval <= 0 {
		return errors.New("websocket.keepalive_interval must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("websocket.write_timeout must be positive")
	}
	// Keepalives must arrive inside the read window or idle clients
	// would be dropped between pings.
	if c.WebSocket.ReadTimeout <= c.WebSocket.KeepaliveInterval {
		return fmt.Errorf("websocket.read_timeout %s must exceed keepalive_interval %s",
			c.WebSocket.ReadTimeout, c.WebSocket.KeepaliveInterval)
	}
	if c.WebSocket.MaxConnections < 0 {
		return errors.New("websocket.max_connections cannot be negative")
	}
	if c.WebSocket.ReadBufferSize < 0 || c.WebSocket.WriteBufferSize < 0 {
		return errors.New("websocket buffer sizes cannot be negative")
	}
	return nil
}

// validateSecurity validates the security configuration
func (c *Config) validateSecurity() error {
	// Validate Server TLS
	if c.Security.TLS.Server.Enabled {
		switch c.Security.TLS.Server.Mode {
		case "", "manual", "acme":
		default:
			return fmt.Errorf("tls.server.mode %q is not one of manual, acme", c.Security.TLS.Server.Mode)
		}

		// ACME mode obtains certificates at startup, so file checks
		// only apply to manual mode.
		if c.Security.TLS.Server.Mode != "acme" {
			if c.Security.TLS.Server.CertFile == "" {
				return errors.New("tls.server.cert_file is required when TLS is enabled")
			}
			if c.Security.TLS.Server.KeyFile == "" {
				return errors.New("tls.server.key_file is required when TLS is enabled")
			}

			// Check if cert file exists
			if _, err := os.Stat(c.Security.TLS.Server.CertFile); err != nil {
				return fmt.Errorf("tls.server.cert_file: %w", err)
			}

			// Check if key file exists
			if _, err := os.Stat(c.Security.TLS.Server.KeyFile); err != nil {
				return fmt.Errorf("tls.server.key_file: %w", err)
			}
		}

		// Validate MinVersion if specified
		if c.Security.TLS.Server.MinVersion != "" {
			if err := validateTLSVersion(c.Security.TLS.Server.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}

		for i, caFile := range c.Security.TLS.Server.MTLS.ClientCAFiles {
			if _, err := os.Stat(caFile); err != nil {
				return fmt.Errorf("tls.server.mtls.client_ca_files[%d]: %w", i, err)
			}
		}
	}

	// Validate Client TLS
	// Check all CA files exist
	for i, caFile := range c.Security.TLS.Client.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return fmt.Errorf("tls.client.ca_files[%d]: %w", i, err)
		}
	}

	if c.Security.TLS.Client.Enabled && c.Security.TLS.Client.MTLS.Enabled {
		mtls := c.Security.TLS.Client.MTLS
		if mtls.CertFile == "" || mtls.KeyFile == "" {
			return fmt.Errorf("tls.client.mtls: cert_file and key_file are required when mtls is enabled")
		}
		for name, file := range map[string]string{"cert_file": mtls.CertFile, "key_file": mtls.KeyFile} {
			if _, err := os.Stat(file); err != nil {
				return fmt.Errorf("tls.client.mtls.%s: %w", name, err)
			}
		}
	}

	// Warn if InsecureSkipVerify is enabled
	if c.Security.TLS.Client.InsecureSkipVerify {
		_, _ = fmt.Fprintf(
			os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true). This should only be used in development/testing!\n",
		)
	}

	// Validate MinVersion if specified
	if c.Security.TLS.Client.MinVersion != "" {
		if err := validateTLSVersion(c.Security.TLS.Client.MinVersion); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}

	return nil
}

// validateTLSVersion checks if a TLS version string is valid
func validateTLSVersion(version string) error {
	switch version {
	case "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Use secure file writing with validation
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config with credentials redacted.
func (c *Config) String() string {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = "[REDACTED]"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "[REDACTED]"
	}
	if clone.Security.AuthToken != "" {
		clone.Security.AuthToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}

// parseDurationValue interprets a JSON value as a time.Duration. Strings use
// Go duration syntax ("250ms", "2h"), numbers are nanoseconds.
func parseDurationValue(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return parseDurationWithDays(val)
	case float64:
		return time.Duration(val), nil
	default:
		return 0, fmt.Errorf("cannot parse %T as duration", v)
	}
}

// UnmarshalJSON implements custom JSON unmarshaling for ServerConfig,
// accepting duration fields as strings or nanosecond numbers.
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type Alias ServerConfig
	aux := &struct {
		ReadTimeout     any `json:"read_timeout,omitempty"`
		WriteTimeout    any `json:"write_timeout,omitempty"`
		IdleTimeout     any `json:"idle_timeout,omitempty"`
		RequestTimeout  any `json:"request_timeout,omitempty"`
		ShutdownTimeout any `json:"shutdown_timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if s.ReadTimeout, err = parseDurationValue(aux.ReadTimeout); err != nil {
		return fmt.Errorf("server.read_timeout: %w", err)
	}
	if s.WriteTimeout, err = parseDurationValue(aux.WriteTimeout); err != nil {
		return fmt.Errorf("server.write_timeout: %w", err)
	}
	if s.IdleTimeout, err = parseDurationValue(aux.IdleTimeout); err != nil {
		return fmt.Errorf("server.idle_timeout: %w", err)
	}
	if s.RequestTimeout, err = parseDurationValue(aux.RequestTimeout); err != nil {
		return fmt.Errorf("server.request_timeout: %w", err)
	}
	if s.ShutdownTimeout, err = parseDurationValue(aux.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for NATSConfig
func (n *NATSConfig) UnmarshalJSON(data []byte) error {
	type Alias NATSConfig
	aux := &struct {
		ReconnectWait any `json:"reconnect_wait,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(n),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if n.ReconnectWait, err = parseDurationValue(aux.ReconnectWait); err != nil {
		return fmt.Errorf("nats.reconnect_wait: %w", err)
	}
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for StreamConfig
func (s *StreamConfig) UnmarshalJSON(data []byte) error {
	type Alias StreamConfig
	aux := &struct {
		MaxAge        any `json:"max_age,omitempty"`
		ResolutionTTL any `json:"resolution_ttl,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if s.MaxAge, err = parseDurationValue(aux.MaxAge); err != nil {
		return fmt.Errorf("stream.max_age: %w", err)
	}
	if s.ResolutionTTL, err = parseDurationValue(aux.ResolutionTTL); err != nil {
		return fmt.Errorf("stream.resolution_ttl: %w", err)
	}
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for FetchConfig
func (f *FetchConfig) UnmarshalJSON(data []byte) error {
	type Alias FetchConfig
	aux := &struct {
		DefaultTimeout any `json:"default_timeout,omitempty"`
		MinTimeout     any `json:"min_timeout,omitempty"`
		MaxTimeout     any `json:"max_timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(f),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if f.DefaultTimeout, err = parseDurationValue(aux.DefaultTimeout); err != nil {
		return fmt.Errorf("fetch.default_timeout: %w", err)
	}
	if f.MinTimeout, err = parseDurationValue(aux.MinTimeout); err != nil {
		return fmt.Errorf("fetch.min_timeout: %w", err)
	}
	if f.MaxTimeout, err = parseDurationValue(aux.MaxTimeout); err != nil {
		return fmt.Errorf("fetch.max_timeout: %w", err)
	}
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for WebSocketConfig
func (w *WebSocketConfig) UnmarshalJSON(data []byte) error {
	type Alias WebSocketConfig
	aux := &struct {
		KeepaliveInterval any `json:"keepalive_interval,omitempty"`
		ReadTimeout       any `json:"read_timeout,omitempty"`
		WriteTimeout      any `json:"write_timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(w),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if w.KeepaliveInterval, err = parseDurationValue(aux.KeepaliveInterval); err != nil {
		return fmt.Errorf("websocket.keepalive_interval: %w", err)
	}
	if w.ReadTimeout, err = parseDurationValue(aux.ReadTimeout); err != nil {
		return fmt.Errorf("websocket.read_timeout: %w", err)
	}
	if w.WriteTimeout, err = parseDurationValue(aux.WriteTimeout); err != nil {
		return fmt.Errorf("websocket.write_timeout: %w", err)
	}
	return nil
}
