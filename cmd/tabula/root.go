package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhuss/tabula/pkg/app"
	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/debug"
)

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	dataPath   string
	model      string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tabula",
		Short: "Ask questions about tabular data in plain language",
		Long: `tabula turns questions about a CSV or JSON file into JavaScript, runs it
against the data and prints what the code printed. Failed code is sent back
to the model with the error, up to the configured retry ceiling.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	flags.StringVarP(&opts.dataPath, "data", "d", "", "CSV or JSON file to analyse")
	flags.StringVarP(&opts.model, "model", "m", "", "model name, overrides the config")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at info level instead of warn")

	root.AddCommand(
		newAskCmd(opts),
		newReplCmd(opts),
		newExecCmd(opts),
	)
	return root
}

// workspace is an assembled App with one session holding the dataset.
type workspace struct {
	app       *app.App
	sessionID string
}

func (w *workspace) Close() error {
	return w.app.Close()
}

// openWorkspace loads configuration, builds the components and loads
// opts.dataPath into a fresh session.
func openWorkspace(ctx context.Context, opts *options, stderr io.Writer) (*workspace, error) {
	if opts.dataPath == "" {
		return nil, fmt.Errorf("--data is required")
	}
	dataPath, err := filepath.Abs(opts.dataPath)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load(opts.configPath, func(c *config.Config) {
		if opts.model != "" {
			c.Oracle.Model = opts.model
		}
	})
	if err != nil {
		return nil, err
	}

	level := "warn"
	if opts.verbose {
		level = "info"
	}
	if cfg.Debug.Level != "" && cfg.Debug.Level != "info" {
		level = cfg.Debug.Level
	}
	debug.Init(cfg.Debug.Categories, level, cfg.Debug.Format)
	logger := slog.New(debug.NewHandler(stderr, cfg.Debug.Format, debug.ParseLevel(level)))

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s, err := a.Sessions.Create()
	if err != nil {
		a.Close()
		return nil, err
	}
	res, err := a.Sessions.LoadDataset(ctx, s.ID, dataPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	if !res.Loaded {
		a.Close()
		return nil, fmt.Errorf("%s", res.Message)
	}
	fmt.Fprintln(stderr, res.Message)

	return &workspace{app: a, sessionID: s.ID}, nil
}
