package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sla-monitor/internal/config"
	"sla-monitor/internal/logging"
	"sla-monitor/internal/polling"
)

// app carries what every subcommand needs once the root has initialized.
type app struct {
	envFile  string
	logLevel string
	cfg      config.Config
	logger   *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "slamonitor",
		Short: "SLA monitoring client",
		Long: `slamonitor keeps a live view of a remote SLA monitoring API.

It hydrates from a local cache, follows the WebSocket push stream and falls
back to REST polling while the stream is down.

Examples:
  slamonitor serve
  slamonitor snapshot --offline
  slamonitor sessions --grouped`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "extra .env file loaded over the environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSnapshotCmd(a))
	root.AddCommand(newSessionsCmd(a))
	return root
}

func (a *app) init() error {
	if a.envFile != "" {
		if err := godotenv.Overload(a.envFile); err != nil {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	logger, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) poller() *polling.Client {
	return polling.New(polling.Options{
		BaseURL:   a.cfg.API.BaseURL,
		Token:     a.cfg.API.Token,
		Timeout:   a.cfg.API.Timeout,
		RateLimit: a.cfg.API.RateLimit,
	}, a.logger)
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
