package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/app"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/infrastructure/logger"
)

// Output formats accepted by --output
const (
	outputTable = "table"
	outputJSON  = "json"
)

// cli holds global flags and the lazily connected services
type cli struct {
	configPath string
	logLevel   string
	output     string

	cfg *config.Config
	log *zap.Logger
	app *app.App

	// loadConfig is replaced in tests
	loadConfig func(path string) (*config.Config, error)
}

// newRootCmd builds the command tree. Call cli.close after Execute.
func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{loadConfig: config.LoadFile}

	root := &cobra.Command{
		Use:          "salesplan",
		Short:        "Query the sales plan table",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config.toml (default: search ., ./config, /app)")
	flags.StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVarP(&c.output, "output", "o", outputTable, "output format (table, json)")

	root.AddCommand(
		newPreviewCmd(c),
		newGetCmd(c),
		newColumnsCmd(c),
		newAuditCmd(c),
		newExportCmd(c),
		newAskCmd(c),
		newCheckCmd(c),
		newTokenCmd(c),
	)
	return root, c
}

// init loads configuration and a console logger writing to stderr
func (c *cli) init() error {
	switch c.output {
	case outputTable, outputJSON:
	default:
		return fmt.Errorf("unknown output format %q", c.output)
	}

	cfg, err := c.loadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	log, err := logger.New(&logger.Config{
		Level:      c.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.log = log
	return nil
}

// services connects to the database on first use
func (c *cli) services(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := app.New(ctx, c.cfg, c.log, app.Options{})
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close() error {
	if c.log != nil {
		defer func() { _ = logger.Sync(c.log) }()
	}
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
