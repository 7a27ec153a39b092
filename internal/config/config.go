// Package config provides configuration loading for dbgnav.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// file, and DBGNAV_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete dbgnav configuration.
type Config struct {
	Client   ClientConfig   `koanf:"client"`
	Server   ServerConfig   `koanf:"server"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Tree     TreeConfig     `koanf:"tree"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ClientConfig configures the HTTP client for a remote debuggee service.
type ClientConfig struct {
	BaseURL     string   `koanf:"base_url"`
	Timeout     Duration `koanf:"timeout"`
	MaxInFlight int64    `koanf:"max_in_flight"`
	RateLimit   float64  `koanf:"rate_limit"`
	Burst       int      `koanf:"burst"`
	MaxRetries  int      `koanf:"max_retries"`
}

// ServerConfig configures the snapshot protocol server.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SnapshotConfig names a local snapshot file. When Path is set, commands
// read from it instead of a remote service.
type SnapshotConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// TreeConfig controls tree rendering.
type TreeConfig struct {
	MaxDepth         int  `koanf:"max_depth"`
	IncludeBaseTypes bool `koanf:"include_base_types"`
}

// LoggingConfig is the user-facing subset of logging settings. OTEL sends
// records to the global OpenTelemetry logger provider.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	OTEL     bool   `koanf:"otel"`
	Sampling bool   `koanf:"sampling"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:     "http://localhost:9300",
			Timeout:     Duration(30 * time.Second),
			MaxInFlight: 30,
			MaxRetries:  2,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9300,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Tree: TreeConfig{
			MaxDepth: 4,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			Sampling: true,
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Snapshot.Path == "" {
		if c.Client.BaseURL == "" {
			errs = append(errs, errors.New("client.base_url is required when no snapshot is configured"))
		} else if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("client.base_url %q is not an absolute URL", c.Client.BaseURL))
		}
	}
	if c.Snapshot.Watch && c.Snapshot.Path == "" {
		errs = append(errs, errors.New("snapshot.watch requires snapshot.path"))
	}
	if c.Client.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("client.max_in_flight must be >= 0, got %d", c.Client.MaxInFlight))
	}
	if c.Client.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("client.rate_limit must be >= 0, got %g", c.Client.RateLimit))
	}
	if c.Client.RateLimit > 0 && c.Client.Burst < 0 {
		errs = append(errs, fmt.Errorf("client.burst must be >= 0, got %d", c.Client.Burst))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Tree.MaxDepth < -1 {
		errs = append(errs, fmt.Errorf("tree.max_depth must be >= -1, got %d", c.Tree.MaxDepth))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
