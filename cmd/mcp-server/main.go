// Command mcp-server exposes one tabula session as MCP tools over stdio:
// load_data, execute and ask. Logs go to stderr since stdout carries the
// protocol.
//
//	mcp-server --config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/tabula/pkg/app"
	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/mcpserver"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mcp server failed", "error", err)
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

	srv := mcpserver.New(a.Sessions, logger)
	defer srv.Close()

	logger.Info("mcp server starting", "transport", "stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
