// Package cmd defines and implements the CLI commands for the miner
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/config"
	"github.com/histocoin/artifact-miner/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact-miner",
		Short: "Discovers openly licensed cultural artifacts on the public web",
		Long: `artifact-miner walks configured museum and archive sites, extracts
structured metadata for each object page it finds, scores the surrounding
text for permissive licensing, and submits surviving artifacts to the
master ingest service.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus MINER_* env)")

	cmd.AddCommand(newMineCmd())
	cmd.AddCommand(newSourcesCmd())

	return cmd
}

// loadConfig reads the optional .env file, then the config file and
// environment, and builds the logger.
func loadConfig() (config.Config, *zap.Logger, error) {
	// A missing .env file is not an error; env vars may come from anywhere.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
