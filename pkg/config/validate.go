package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be > 0, got %d", c.Server.MaxUploadBytes))
	}

	switch c.Oracle.Provider {
	case "openaicompat":
		if c.Oracle.BackendURL == "" {
			errs = append(errs, fmt.Errorf("oracle.backend_url is required when oracle.provider is \"openaicompat\""))
		}
	case "openai", "anthropic":
		if c.Oracle.APIKey == "" && c.Oracle.APIKeyFile == "" {
			errs = append(errs, fmt.Errorf("oracle.api_key or oracle.api_key_file is required when oracle.provider is %q", c.Oracle.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("oracle.provider must be \"openaicompat\", \"openai\" or \"anthropic\", got %q", c.Oracle.Provider))
	}
	if c.Oracle.Model == "" {
		errs = append(errs, fmt.Errorf("oracle.model is required"))
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		errs = append(errs, fmt.Errorf("oracle.temperature must be between 0 and 2, got %g", c.Oracle.Temperature))
	}
	if c.Oracle.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("oracle.rate_limit must be >= 0, got %g", c.Oracle.RateLimit))
	}

	if c.Engine.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("engine.max_retries must be >= 1, got %d", c.Engine.MaxRetries))
	}

	if c.Sandbox.WorkDir == "" {
		errs = append(errs, fmt.Errorf("sandbox.work_dir is required"))
	}
	if c.Sandbox.ArtifactsDir == "" {
		errs = append(errs, fmt.Errorf("sandbox.artifacts_dir is required"))
	}
	if c.Sandbox.ExecutionTimeout < 0 {
		errs = append(errs, fmt.Errorf("sandbox.execution_timeout must be >= 0, got %s", c.Sandbox.ExecutionTimeout))
	}

	if c.Sessions.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("sessions.max_sessions must be > 0, got %d", c.Sessions.MaxSessions))
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.Storage.Type))
	}

	return errors.Join(errs...)
}
