package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sylvanet/arbor/internal/federation"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Federation FederationConfig  `yaml:"federation"`
	Slurs      SlursConfig       `yaml:"slurs"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Federation.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// FederationConfig holds the federation settings.
//
// Domain is this instance's own authority; protocol identifiers for
// locally authored entities are derived from it. FetchLimit caps the
// remote fetches a single inbound delivery may trigger.
type FederationConfig struct {
	Domain           string  `yaml:"domain"`
	FetchLimit       int     `yaml:"fetch_limit"`
	FetchTimeoutSecs int     `yaml:"fetch_timeout_seconds"`
	FetchesPerSecond float64 `yaml:"fetches_per_second"`
	UserAgent        string  `yaml:"user_agent"`
}

// Validate validates the federation configuration.
func (c *FederationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Domain, validation.Required),
		validation.Field(&c.FetchLimit, validation.Min(0), validation.Max(1000)),
		validation.Field(&c.FetchTimeoutSecs, validation.Min(0), validation.Max(300)),
	)
}

// Limit returns the configured fetch ceiling, falling back to the default.
func (c *FederationConfig) Limit() int {
	if c.FetchLimit <= 0 {
		return federation.DefaultFetchLimit
	}
	return c.FetchLimit
}

// SlursConfig names the file carrying the slur-redaction pattern. The
// file holds a single regular expression; an absent file disables
// filtering.
type SlursConfig struct {
	PatternFile string `yaml:"pattern_file"`
}

// MetricsConfig controls the /metrics endpoint. An empty token leaves the
// endpoint open; a non-empty token requires Bearer authentication.
type MetricsConfig struct {
	Token string `yaml:"token"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./arbor.db",
		},
		Federation: FederationConfig{
			FetchLimit:       federation.DefaultFetchLimit,
			FetchTimeoutSecs: 30,
			FetchesPerSecond: 10,
			UserAgent:        "arbor/1.0",
		},
	}
}
