package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/asad/relcache/internal/logging"
)

// Config holds the relcache settings loaded from environment variables.
type Config struct {
	// Port is the HTTP port the edge router listens on.
	// Default: 4680
	Port int

	// EnabledServices lists the service modules mounted at startup.
	// Default: "relationships"
	EnabledServices []string

	// LogLevel controls the verbosity of logging (debug, info, warn, error).
	// Default: "info"
	LogLevel string

	// MetricsEnabled exposes prometheus metrics on /metrics.
	// Default: true
	MetricsEnabled bool

	// AllowEmptyKeys lets the relationship cache accept empty model names,
	// client ids and property names.
	// Default: false
	AllowEmptyKeys bool
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Port:            4680,
		EnabledServices: []string{"relationships"},
		LogLevel:        "info",
		MetricsEnabled:  true,
	}
}

// Load creates a Config from the process environment.
// Missing or malformed values keep their defaults.
func Load() *Config {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config using getenv to resolve variables.
func LoadFrom(getenv func(string) string) *Config {
	cfg := Default()

	if portStr := getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port < 65536 {
			cfg.Port = port
		}
	}

	if servicesStr := getenv("ENABLED_SERVICES"); servicesStr != "" {
		services := strings.Split(servicesStr, ",")
		enabled := make([]string, 0, len(services))
		for _, s := range services {
			s = strings.TrimSpace(s)
			if s != "" {
				enabled = append(enabled, s)
			}
		}
		if len(enabled) > 0 {
			cfg.EnabledServices = enabled
		}
	}

	if logLevel := getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = strings.ToLower(logLevel)
	}

	if v, ok := parseBool(getenv("METRICS_ENABLED")); ok {
		cfg.MetricsEnabled = v
	}
	if v, ok := parseBool(getenv("ALLOW_EMPTY_KEYS")); ok {
		cfg.AllowEmptyKeys = v
	}

	return cfg
}

func parseBool(s string) (bool, bool) {
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}

// IsServiceEnabled checks if a given service name is in the EnabledServices list.
func (c *Config) IsServiceEnabled(serviceName string) bool {
	for _, s := range c.EnabledServices {
		if s == serviceName {
			return true
		}
	}
	return false
}

// Validate returns an error if any setting is unusable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port >= 65536 {
		return fmt.Errorf("invalid PORT: %d (must be 1-65535)", c.Port)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return nil
}
