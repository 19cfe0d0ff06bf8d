package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lksh/markboard/config"
	"github.com/lksh/markboard/pkg/logger"
)

var (
	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "markboard",
	Short:         "Marks from the LKSH ejudge standings",
	Long:          "markboard downloads the merged ejudge standings, computes a mark per student and exports or serves the results.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to an optional .env file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(jsonCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashKeyCmd)
}

// loadConfig reads .env (if present) and the environment, then installs
// the process-wide slog handler. Logs go to stderr so that stdout stays
// free for exported data.
func loadConfig(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		loaded.Observability.LogLevel = lvl
	}
	cfg = loaded

	opts := &slog.HandlerOptions{Level: logger.ParseLevel(cfg.Observability.LogLevel).SlogLevel()}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	log = slog.New(handler).With("app", cfg.App.Name, "version", cfg.App.Version)
	slog.SetDefault(log)

	return nil
}
