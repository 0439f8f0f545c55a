package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TABULA_CONFIG env, ./config.yaml, /etc/tabula/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Overrides, such as command line flags, in order
//  6. Validation
func Load(configPath string, overrides ...func(*Config)) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	for _, override := range overrides {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TABULA_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/tabula/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("TABULA_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/tabula/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so typos surface at startup.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	name  string
	apply func(v string) error
}

func envOverrides(cfg *Config) []envOverride {
	return []envOverride{
		{"TABULA_PORT", intVar(&cfg.Server.Port)},
		{"TABULA_PROVIDER", stringVar(&cfg.Oracle.Provider)},
		{"TABULA_BACKEND_URL", stringVar(&cfg.Oracle.BackendURL)},
		{"TABULA_API_KEY", stringVar(&cfg.Oracle.APIKey)},
		{"TABULA_MODEL", stringVar(&cfg.Oracle.Model)},
		{"TABULA_TEMPERATURE", floatVar(&cfg.Oracle.Temperature)},
		{"TABULA_RATE_LIMIT", floatVar(&cfg.Oracle.RateLimit)},
		{"TABULA_MAX_RETRIES", intVar(&cfg.Engine.MaxRetries)},
		{"TABULA_WORK_DIR", stringVar(&cfg.Sandbox.WorkDir)},
		{"TABULA_ARTIFACTS_DIR", stringVar(&cfg.Sandbox.ArtifactsDir)},
		{"TABULA_EXECUTION_TIMEOUT", durationVar(&cfg.Sandbox.ExecutionTimeout)},
		{"TABULA_IDLE_TTL", durationVar(&cfg.Sessions.IdleTTL)},
		{"TABULA_MAX_SESSIONS", intVar(&cfg.Sessions.MaxSessions)},
		{"TABULA_STORAGE", stringVar(&cfg.Storage.Type)},
		{"TABULA_STORAGE_SIZE", intVar(&cfg.Storage.MaxSize)},
		{"TABULA_POSTGRES_DSN", stringVar(&cfg.Storage.Postgres.DSN)},
		{"TABULA_SQLITE_PATH", stringVar(&cfg.Storage.SQLite.Path)},
		{"TABULA_MCP_ENABLED", boolVar(&cfg.MCP.Enabled)},
	}
}

// applyEnvOverrides maps TABULA_* environment variables onto config
// fields. A malformed value is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides(cfg) {
		v, ok := os.LookupEnv(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
	}
	return nil
}

func stringVar(p *string) func(string) error {
	return func(v string) error {
		*p = v
		return nil
	}
}

func intVar(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func floatVar(p *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

func boolVar(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func durationVar(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// oracle.api_key_file -> oracle.api_key
	if cfg.Oracle.APIKeyFile != "" && cfg.Oracle.APIKey == "" {
		val, err := readSecretFile(cfg.Oracle.APIKeyFile)
		if err != nil {
			return fmt.Errorf("oracle.api_key_file: %w", err)
		}
		cfg.Oracle.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// SystemPrompt returns the custom oracle instructions, or "" when none
// are configured.
func (c *Config) SystemPrompt() (string, error) {
	if c.Oracle.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Oracle.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("oracle.system_prompt_file: %w", err)
	}
	return string(data), nil
}
