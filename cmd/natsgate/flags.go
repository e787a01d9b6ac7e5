package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	Port            int
	NATSURL         string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	DumpOpenAPI     string
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("NATSGATE_CONFIG", "configs/example.json"),
		"Path to configuration file (env: NATSGATE_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("NATSGATE_CONFIG", "configs/example.json"),
		"Path to configuration file (env: NATSGATE_CONFIG)")

	flag.IntVar(&cfg.Port, "port",
		getEnvInt("NATSGATE_PORT", 0),
		"HTTP listen port override, 0 uses the config file (env: NATSGATE_PORT)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("NATSGATE_NATS_URL", ""),
		"NATS server URL override (env: NATSGATE_NATS_URL)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("NATSGATE_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; empty uses the config file (env: NATSGATE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("NATSGATE_LOG_FORMAT", ""),
		"Log format: json, text; empty uses the config file (env: NATSGATE_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("NATSGATE_DEBUG", false),
		"Enable debug logging (env: NATSGATE_DEBUG)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("NATSGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: NATSGATE_SHUTDOWN_TIMEOUT)")

	flag.StringVar(&cfg.DumpOpenAPI, "dump-openapi", "",
		"Write the OpenAPI document to this path (.json or .yaml) and exit")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	// Custom usage
	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags that never read the config file
	if cfg.ShowVersion || cfg.ShowHelp || cfg.DumpOpenAPI != "" {
		return nil
	}

	// Validate config file exists
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	// Validate port override
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	// Validate log level; empty defers to the config file
	validLevels := []string{"debug", "info", "warn", "error"}
	if cfg.LogLevel != "" && !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	// Validate log format; empty defers to the config file
	validFormats := []string{"json", "text"}
	if cfg.LogFormat != "" && !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - HTTP/WebSocket gateway for NATS JetStream

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with custom config
  %s --config=/path/to/config.json

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Run with environment variables
  export NATSGATE_CONFIG=/etc/natsgate/config.json
  export NATSGATE_NATS_URL=nats://nats:4222
  %s

  # Validate configuration only
  %s --validate

  # Export the OpenAPI document
  %s --dump-openapi=openapi.yaml

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
