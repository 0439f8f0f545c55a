// Command server runs the tabula HTTP API.
//
// Configuration is read from a YAML file and TABULA_* environment
// variables; see pkg/config. A .env file in the working directory is
// loaded first when present.
//
//	server --config /etc/tabula/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/tabula/pkg/app"
	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/mcpserver"
	transporthttp "github.com/rhuss/tabula/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Debug.Categories, cfg.Debug.Level, cfg.Debug.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Sessions.StartReaper(ctx, cfg.Sessions.ReapInterval)

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithLogger(logger),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithHandler("GET "+cfg.Observability.Metrics.Path, promhttp.Handler()))
		logger.Info("metrics enabled", "path", cfg.Observability.Metrics.Path)
	}
	if cfg.MCP.Enabled {
		opts = append(opts, transporthttp.WithHandler(cfg.MCP.Path, mcpserver.Handler(a.Sessions, logger)))
		logger.Info("mcp endpoint enabled", "path", cfg.MCP.Path)
	}

	srv := transporthttp.NewServer(a.Service, a.Service, opts...)
	return srv.Run(ctx)
}
