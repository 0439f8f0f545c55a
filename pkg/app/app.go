// Package app assembles the tabula components from a loaded configuration.
// The binaries and the end-to-end tests share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/engine"
	"github.com/rhuss/tabula/pkg/oracle"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/provider/anthropic"
	"github.com/rhuss/tabula/pkg/provider/openai"
	"github.com/rhuss/tabula/pkg/provider/openaicompat"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/session"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/storage/memory"
	"github.com/rhuss/tabula/pkg/storage/postgres"
	"github.com/rhuss/tabula/pkg/storage/sqlite"
)

// App holds the assembled components.
type App struct {
	Config   *config.Config
	Provider provider.Provider
	Oracle   *oracle.CodeOracle
	Engine   *engine.Engine
	Store    storage.TurnStore
	Sessions *session.Manager
	Service  *session.Service
}

// New builds every component described by cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	prov, err := NewProvider(cfg.Oracle)
	if err != nil {
		return nil, err
	}
	prov = provider.NewRateLimited(prov, cfg.Oracle.RateLimit, cfg.Oracle.RateBurst)

	prompt, err := cfg.SystemPrompt()
	if err != nil {
		prov.Close()
		return nil, err
	}
	orc, err := oracle.New(prov, oracle.Config{
		Model:        cfg.Oracle.Model,
		Temperature:  cfg.Oracle.Temperature,
		MaxTokens:    cfg.Oracle.MaxTokens,
		SystemPrompt: prompt,
	}, logger)
	if err != nil {
		prov.Close()
		return nil, fmt.Errorf("creating oracle: %w", err)
	}

	eng, err := engine.New(orc, engine.Config{MaxRetries: cfg.Engine.MaxRetries}, logger)
	if err != nil {
		prov.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	store, err := NewStore(ctx, cfg.Storage)
	if err != nil {
		prov.Close()
		return nil, err
	}

	mgr, err := session.NewManager(eng, session.Options{
		WorkDir:      cfg.Sandbox.WorkDir,
		ArtifactsDir: cfg.Sandbox.ArtifactsDir,
		IdleTTL:      cfg.Sessions.IdleTTL,
		MaxSessions:  cfg.Sessions.MaxSessions,
		Sandbox: sandbox.Options{
			PlotFile:       cfg.Sandbox.PlotFile,
			Timeout:        cfg.Sandbox.ExecutionTimeout,
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		},
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		prov.Close()
		return nil, err
	}

	logger.Info("components ready",
		"provider", prov.Name(),
		"model", cfg.Oracle.Model,
		"storage", cfg.Storage.Type,
		"max_retries", eng.MaxRetries(),
	)

	return &App{
		Config:   cfg,
		Provider: prov,
		Oracle:   orc,
		Engine:   eng,
		Store:    store,
		Sessions: mgr,
		Service:  session.NewService(mgr, api.DefaultValidationConfig()),
	}, nil
}

// Close ends all sessions and releases the store and provider.
func (a *App) Close() error {
	return errors.Join(
		a.Sessions.Close(),
		a.Store.Close(),
		a.Provider.Close(),
	)
}

// NewProvider creates the chat backend named by cfg.Provider.
func NewProvider(cfg config.OracleConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "", "openaicompat":
		return openaicompat.New(openaicompat.Config{
			BaseURL: cfg.BackendURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BackendURL,
			Timeout: cfg.Timeout,
		})
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BackendURL,
			Models:  []string{cfg.Model},
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewStore opens the turn store named by cfg.Type.
func NewStore(ctx context.Context, cfg config.StorageConfig) (storage.TurnStore, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
