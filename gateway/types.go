package gateway

import (
	"fmt"
	"time"

	"github.com/c360/natsgate/errors"
)

// Config holds configuration for the gateway component
type Config struct {
	// Host is the listen address (default: all interfaces)
	Host string `json:"host,omitempty" schema:"type:string,description:Listen host,default:0.0.0.0,category:basic"`

	// Port is the HTTP listen port
	Port int `json:"port,omitempty" schema:"type:int,description:Listen port,min:1,max:65535,default:8080,category:basic"`

	// RequestTimeoutStr bounds each request handler (default: "30s")
	RequestTimeoutStr string `json:"request_timeout,omitempty" schema:"type:string,description:Per-request deadline,default:30s,category:advanced"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty" schema:"type:int,description:Max request size (bytes),category:advanced"`

	// EnableCORS enables CORS headers (default: false, requires explicit cors_origins)
	EnableCORS bool `json:"enable_cors,omitempty" schema:"type:bool,description:Enable CORS,category:advanced"`

	// CORSOrigins lists allowed CORS origins (required when EnableCORS is true).
	// Use ["*"] for development only.
	CORSOrigins []string `json:"cors_origins,omitempty" schema:"type:array,description:Allowed origins (required for CORS),category:advanced"`

	// RateLimitRPS enables per-client rate limiting when > 0
	RateLimitRPS float64 `json:"rate_limit_rps,omitempty" schema:"type:float,description:Per-client requests per second (0 disables),category:advanced"`

	// RateLimitBurst is the rate limiter burst size (default: 2x RPS)
	RateLimitBurst int `json:"rate_limit_burst,omitempty" schema:"type:int,description:Rate limit burst size,category:advanced"`

	// Fetch bounds message reads on the fetch endpoints
	Fetch FetchLimits `json:"fetch,omitempty" schema:"type:object,description:Fetch limit and timeout bounds,category:advanced"`

	// WebSocket tunes live subscription connections
	WebSocket WebSocketLimits `json:"websocket,omitempty" schema:"type:object,description:WebSocket connection tuning,category:advanced"`

	// Version is reported by /health and /api/info
	Version string `json:"version,omitempty" schema:"type:string,description:Version string reported by discovery endpoints,category:advanced"`

	// requestTimeout is the parsed duration (internal use)
	requestTimeout time.Duration
}

// FetchLimits bounds the limit and timeout query parameters on fetch
// endpoints. Requests outside the bounds are clamped, not rejected.
type FetchLimits struct {
	// DefaultLimit applies when ?limit is absent (default: 10)
	DefaultLimit int `json:"default_limit,omitempty"`

	// MaxLimit caps ?limit (default: 1000)
	MaxLimit int `json:"max_limit,omitempty"`

	// DefaultTimeoutStr applies when ?timeout is absent (default: "5s")
	DefaultTimeoutStr string `json:"default_timeout,omitempty"`

	// MinTimeoutStr floors ?timeout (default: "1s")
	MinTimeoutStr string `json:"min_timeout,omitempty"`

	// MaxTimeoutStr caps ?timeout (default: "30s")
	MaxTimeoutStr string `json:"max_timeout,omitempty"`

	defaultTimeout time.Duration
	minTimeout     time.Duration
	maxTimeout     time.Duration
}

// WebSocketLimits tunes live subscription connections.
type WebSocketLimits struct {
	// KeepaliveIntervalStr is the idle KEEPALIVE frame cadence (default: "30s").
	// Clients discover the effective value via /api/info.
	KeepaliveIntervalStr string `json:"keepalive_interval,omitempty"`

	// ReadTimeoutStr is how long a client may stay silent before the
	// connection is considered dead (default: "60s"). Pong frames and
	// client traffic reset the deadline.
	ReadTimeoutStr string `json:"read_timeout,omitempty"`

	// WriteTimeoutStr bounds each frame write (default: "10s")
	WriteTimeoutStr string `json:"write_timeout,omitempty"`

	// MaxConnections caps concurrent WebSocket connections (0 = unlimited)
	MaxConnections int `json:"max_connections,omitempty"`

	// ReadBufferSize and WriteBufferSize size the upgrader's I/O buffers
	// in bytes (0 = 4096)
	ReadBufferSize  int `json:"read_buffer_size,omitempty"`
	WriteBufferSize int `json:"write_buffer_size,omitempty"`

	// AllowedOrigins restricts the handshake Origin header. Empty allows
	// any origin; "*" is an explicit wildcard entry.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	keepaliveInterval time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
}

// Fetch bound defaults
const (
	DefaultFetchLimit   = 10
	MaxFetchLimit       = 1000
	DefaultFetchTimeout = 5 * time.Second
	MinFetchTimeout     = 1 * time.Second
	MaxFetchTimeout     = 30 * time.Second
)

// Validate ensures the gateway configuration is valid and applies defaults
func (c *Config) Validate() error {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}

	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid port %d (out of range 1-65535)", c.Port))
	}

	if c.RequestTimeoutStr == "" {
		c.requestTimeout = 30 * time.Second
	} else {
		parsed, err := time.ParseDuration(c.RequestTimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid request_timeout format: %s", c.RequestTimeoutStr))
		}
		if parsed < 100*time.Millisecond || parsed > 5*time.Minute {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"request_timeout must be between 100ms and 5m")
		}
		c.requestTimeout = parsed
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024 // 1MB default
	}
	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	// CORS requires explicit origin configuration for security
	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}

	if c.RateLimitRPS < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rate_limit_rps cannot be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst == 0 {
		c.RateLimitBurst = int(c.RateLimitRPS * 2)
		if c.RateLimitBurst < 1 {
			c.RateLimitBurst = 1
		}
	}

	if err := c.Fetch.validate(); err != nil {
		return err
	}
	return c.WebSocket.validate()
}

// RequestTimeout returns the parsed per-request deadline
func (c *Config) RequestTimeout() time.Duration {
	return c.requestTimeout
}

func (f *FetchLimits) validate() error {
	if f.DefaultLimit < 0 || f.MaxLimit < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FetchLimits", "validate",
			"fetch limits cannot be negative")
	}
	if f.DefaultLimit == 0 {
		f.DefaultLimit = DefaultFetchLimit
	}
	if f.MaxLimit == 0 {
		f.MaxLimit = MaxFetchLimit
	}
	if f.DefaultLimit > f.MaxLimit {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FetchLimits", "validate",
			fmt.Sprintf("default_limit %d exceeds max_limit %d", f.DefaultLimit, f.MaxLimit))
	}

	var err error
	if f.defaultTimeout, err = parseDurationOr(f.DefaultTimeoutStr, DefaultFetchTimeout); err != nil {
		return errors.WrapInvalid(err, "FetchLimits", "validate", "invalid default_timeout")
	}
	if f.minTimeout, err = parseDurationOr(f.MinTimeoutStr, MinFetchTimeout); err != nil {
		return errors.WrapInvalid(err, "FetchLimits", "validate", "invalid min_timeout")
	}
	if f.maxTimeout, err = parseDurationOr(f.MaxTimeoutStr, MaxFetchTimeout); err != nil {
		return errors.WrapInvalid(err, "FetchLimits", "validate", "invalid max_timeout")
	}

	if f.minTimeout > f.maxTimeout {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FetchLimits", "validate",
			"min_timeout exceeds max_timeout")
	}
	return nil
}

// ClampLimit applies the default and bounds to a requested limit
func (f *FetchLimits) ClampLimit(requested int) int {
	if requested <= 0 {
		return f.DefaultLimit
	}
	if requested > f.MaxLimit {
		return f.MaxLimit
	}
	return requested
}

// ClampTimeout applies the default and bounds to a requested timeout
func (f *FetchLimits) ClampTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return f.defaultTimeout
	}
	if requested < f.minTimeout {
		return f.minTimeout
	}
	if requested > f.maxTimeout {
		return f.maxTimeout
	}
	return requested
}

// DefaultTimeout returns the parsed default fetch timeout
func (f *FetchLimits) DefaultTimeout() time.Duration {
	return f.defaultTimeout
}

// MaxTimeout returns the parsed fetch timeout cap
func (f *FetchLimits) MaxTimeout() time.Duration {
	return f.maxTimeout
}

func (w *WebSocketLimits) validate() error {
	var err error
	if w.keepaliveInterval, err = parseDurationOr(w.KeepaliveIntervalStr, 30*time.Second); err != nil {
		return errors.WrapInvalid(err, "WebSocketLimits", "validate", "invalid keepalive_interval")
	}
	if w.readTimeout, err = parseDurationOr(w.ReadTimeoutStr, 60*time.Second); err != nil {
		return errors.WrapInvalid(err, "WebSocketLimits", "validate", "invalid read_timeout")
	}
	if w.writeTimeout, err = parseDurationOr(w.WriteTimeoutStr, 10*time.Second); err != nil {
		return errors.WrapInvalid(err, "WebSocketLimits", "validate", "invalid write_timeout")
	}

	if w.keepaliveInterval < time.Second {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketLimits", "validate",
			"keepalive_interval must be at least 1s")
	}
	if w.MaxConnections < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketLimits", "validate",
			"max_connections cannot be negative")
	}
	if w.ReadBufferSize < 0 || w.WriteBufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketLimits", "validate",
			"buffer sizes cannot be negative")
	}
	return nil
}

// KeepaliveInterval returns the parsed idle keepalive cadence
func (w *WebSocketLimits) KeepaliveInterval() time.Duration {
	return w.keepaliveInterval
}

// ReadTimeout returns the parsed client silence tolerance
func (w *WebSocketLimits) ReadTimeout() time.Duration {
	return w.readTimeout
}

// WriteTimeout returns the parsed per-frame write deadline
func (w *WebSocketLimits) WriteTimeout() time.Duration {
	return w.writeTimeout
}

func parseDurationOr(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}
	return d, nil
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	cfg := Config{
		Host:           "0.0.0.0",
		Port:           8080,
		MaxRequestSize: 1024 * 1024,
	}
	// Defaults never fail validation
	_ = cfg.Validate()
	return cfg
}
