package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tgbroadcast/internal/app"
	"tgbroadcast/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "broadcastd",
		Short:         "Telegram broadcast API",
		Long:          "broadcastd sends one message to every user found in a bot's recent updates, over HTTP, from cron or from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (JSON or YAML); empty uses defaults")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the config")

	root.AddCommand(serveCmd(), sendCmd(), runsCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// loadEnvFile loads path into the environment; a missing file is fine.
// Variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

func newApp() (*app.App, error) {
	return app.New(config.NewConfigManager(configPath))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "broadcastd", version)
		},
	}
}
