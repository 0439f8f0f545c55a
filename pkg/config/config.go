// Package config provides unified configuration for the tabula server and
// tools.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TABULA_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for tabula.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Oracle        OracleConfig        `yaml:"oracle"`
	Engine        EngineConfig        `yaml:"engine"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Storage       StorageConfig       `yaml:"storage"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Debug         DebugConfig         `yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`             // default: 8080
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // default: 300s
	MaxUploadBytes int64         `yaml:"max_upload_bytes"` // default: 50 MiB
}

// OracleConfig selects and configures the LLM backend that writes code.
type OracleConfig struct {
	Provider    string        `yaml:"provider"`     // "openaicompat", "openai" or "anthropic", default: "openaicompat"
	BackendURL  string        `yaml:"backend_url"`  // required for openaicompat
	APIKey      string        `yaml:"api_key"`      // optional
	APIKeyFile  string        `yaml:"api_key_file"` // _file variant for api_key
	Model       string        `yaml:"model"`        // required
	Temperature float64       `yaml:"temperature"`  // default: 0
	MaxTokens   int           `yaml:"max_tokens"`   // 0 = provider default
	Timeout     time.Duration `yaml:"timeout"`      // default: 120s

	// RateLimit is requests per second to the backend; 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"` // default: 1

	// SystemPromptFile replaces the built-in instructions with a
	// text/template read from this file.
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// EngineConfig holds controller settings.
type EngineConfig struct {
	MaxRetries int `yaml:"max_retries"` // default: 3
}

// SandboxConfig holds execution settings shared by every session.
type SandboxConfig struct {
	WorkDir          string        `yaml:"work_dir"`          // default: "data/work"
	ArtifactsDir     string        `yaml:"artifacts_dir"`     // default: "data/artifacts"
	PlotFile         string        `yaml:"plot_file"`         // default: "output_plot.png"
	ExecutionTimeout time.Duration `yaml:"execution_timeout"` // default: 30s, 0 = unlimited
	MaxOutputBytes   int           `yaml:"max_output_bytes"`  // default: 1 MiB
}

// SessionsConfig holds session lifecycle settings.
type SessionsConfig struct {
	IdleTTL      time.Duration `yaml:"idle_ttl"`      // default: 1h
	MaxSessions  int           `yaml:"max_sessions"`  // default: 100
	ReapInterval time.Duration `yaml:"reap_interval"` // default: 1m
}

// StorageConfig holds turn history settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "sqlite", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "data/tabula.db"
}

// MCPConfig controls the MCP endpoint mounted on the HTTP server.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Path    string `yaml:"path"`    // default: "/mcp"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// DebugConfig feeds pkg/debug. The TABULA_DEBUG, TABULA_LOG_LEVEL and
// TABULA_LOG_FORMAT environment variables take precedence.
type DebugConfig struct {
	Categories string `yaml:"categories"` // comma-separated, e.g. "engine,oracle"
	Level      string `yaml:"level"`      // default: "info"
	Format     string `yaml:"format"`     // "text" or "json", default: "text"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   300 * time.Second,
			MaxUploadBytes: 50 << 20,
		},
		Oracle: OracleConfig{
			Provider:  "openaicompat",
			Timeout:   120 * time.Second,
			RateBurst: 1,
		},
		Engine: EngineConfig{
			MaxRetries: 3,
		},
		Sandbox: SandboxConfig{
			WorkDir:          "data/work",
			ArtifactsDir:     "data/artifacts",
			PlotFile:         "output_plot.png",
			ExecutionTimeout: 30 * time.Second,
			MaxOutputBytes:   1 << 20,
		},
		Sessions: SessionsConfig{
			IdleTTL:      time.Hour,
			MaxSessions:  100,
			ReapInterval: time.Minute,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
			SQLite: SQLiteConfig{
				Path: "data/tabula.db",
			},
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Debug: DebugConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
