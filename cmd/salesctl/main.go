package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/erp/salesrecon/internal/infrastructure/logger"
	"github.com/erp/salesrecon/internal/infrastructure/upstream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// set by the root command before any subcommand runs
var (
	cfg    *config.Config
	log    *zap.Logger
	client *upstream.Client
)

var rootCmd = &cobra.Command{
	Use:   "salesctl",
	Short: "Sales report and invoice close tool for the jewelry backend",
	Long: `salesctl talks to the jewelry backend directly, without the HTTP service.

It reads the same config.toml and RECON_* environment variables as the server.
The bearer token defaults to upstream.token and can be overridden with --token.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			logger.Sync(log)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config.toml (default: ./config.toml)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for the jewelry backend")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	token, _ := cmd.Flags().GetString("token")

	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err = logger.New(&logger.Config{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err = upstream.New(cfg.Upstream, upstream.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}

	if token != "" {
		cmd.SetContext(upstream.WithBearerToken(cmd.Context(), token))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
