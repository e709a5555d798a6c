// Package main is the entry point for the option chain bridge
package main

import (
	"fmt"

	"github.com/nsvirk/ocbridge/internal/config"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile  string
	logLevel string
	dryRun   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		zaplogger.Fatal("ocbridge stopped", zaplogger.Fields{"error": err.Error()})
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ocbridge",
		Short:         "Option chain bridge between a spreadsheet terminal and a web API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "load environment variables from this file before .env")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override OCB_SERVER_LOG_LEVEL (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "use an empty in-memory workbook instead of Excel")

	cmd.AddCommand(
		newServeCmd(opts),
		newLoginCmd(opts),
		newDropdownsCmd(opts),
		newFetchCmd(opts),
		newDiagnoseCmd(opts),
	)
	return cmd
}

// loadConfig reads the configuration and applies the global flags
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", o.envFile, err)
	}
	cfg, err := config.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.ServerLogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	zaplogger.SetLogLevel(level)
	return cfg, nil
}
