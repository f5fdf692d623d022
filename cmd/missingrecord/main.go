package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"missingrecord/internal/config"
	"missingrecord/internal/logging"
)

const historyLimit = 200

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "missingrecord",
	Short: "Missing record reporting for Hilltop time series",
	Long: `missingrecord measures how much of each site's telemetry is missing over a
reporting window and rolls the results up into regional and annex tables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config_files/script_config.yaml", "path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional .env file with secrets such as the database DSN")
	rootCmd.AddCommand(generateCmd, serveCmd)
}

// loadConfig reads the env file and configuration and installs the logger.
func loadConfig() (config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if _, err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
