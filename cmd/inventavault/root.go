package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/config"
	"github.com/joelkehle/inventavault/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "inventavault",
		Short:         "Prior-art research and patent document pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides INVENTAVAULT_LOG_LEVEL")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format (json, console); overrides INVENTAVAULT_LOG_FORMAT")

	cmd.AddCommand(newServeCommand(opts), newRunCommand(opts), newCorpusCommand(opts), newLedgerCommand(opts))
	return cmd
}

// setup loads configuration and builds the logger every subcommand uses.
func (o *rootOptions) setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
