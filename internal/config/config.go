// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Remote   RemoteConfig
	Store    StoreConfig
	Editing  EditingConfig
	View     ViewConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds settings for the local HTTP API.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight mutations (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxUploadSize is the largest CSV accepted for upload in bytes (default: 100MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"104857600"`
}

// RemoteConfig points at the remote dataset store.
type RemoteConfig struct {
	// BaseURL is the dataset store root (default: http://localhost:8000)
	BaseURL string `env:"REMOTE_BASE_URL" envAlt:"VITE_API_URL" default:"http://localhost:8000"`

	// Timeout bounds every remote request (default: 30s)
	Timeout time.Duration `env:"REMOTE_TIMEOUT" default:"30s"`

	// FallbackBase is the root used for fallback endpoint URLs when
	// provisioning fails. Empty means BaseURL.
	FallbackBase string `env:"ENDPOINT_FALLBACK_BASE"`
}

// StoreConfig selects and tunes the durable keyed store.
type StoreConfig struct {
	// Driver is one of sqlite, postgres, memory (default: sqlite)
	Driver string `env:"STORE_DRIVER" default:"sqlite"`

	// Path is the SQLite database file (default: .tablesync/state.db)
	Path string `env:"STORE_PATH" default:".tablesync/state.db"`

	// DatabaseURL is the PostgreSQL connection string, required for the postgres driver
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pooled connections (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// EditingConfig controls the mutation pipeline.
type EditingConfig struct {
	// RevertOnFailure restores the pre-edit cell when a remote cell update fails (default: true)
	RevertOnFailure bool `env:"EDIT_REVERT_ON_FAILURE" default:"true"`
}

// ViewConfig holds table view defaults.
type ViewConfig struct {
	// PageSize is the default number of rows per page (default: 3)
	PageSize int `env:"VIEW_PAGE_SIZE" default:"3"`

	// PadRows fills short pages with blank placeholder rows (default: true)
	PadRows bool `env:"VIEW_PAD_ROWS" default:"true"`
}

// SecurityConfig holds settings for the local HTTP API.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// RateLimit is the number of requests allowed per client per minute, 0 disables (default: 300)
	RateLimit int `env:"RATE_LIMIT_PER_MINUTE" default:"300"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// EndpointFallbackBase returns the root used for fallback endpoint URLs.
func (c *RemoteConfig) EndpointFallbackBase() string {
	if c.FallbackBase != "" {
		return c.FallbackBase
	}
	return c.BaseURL
}
