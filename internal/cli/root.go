// Package cli implements the joat command line.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/flynn-ai/joat/internal/config"
	"github.com/flynn-ai/joat/internal/logging"
)

var (
	configPath string
	logLevel   string
	profile    string
	retries    int

	// cfg is loaded once per invocation by the root command.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "joat",
	Short: "joat routes each query to the local model best suited to its task",
	Long: `joat classifies every query into a task category (coding, math, summarization, ...),
sends it to the model mapped to that category in the active profile, and keeps a
separate conversation history per model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal.
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if profile != "" {
			loaded.Routing.Profile = config.NormalizeProfile(profile)
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}

		if err := logging.Init(loaded.Logging.Level, loaded.Logging.Format); err != nil {
			return err
		}

		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is provided, start chatting.
		return runChat(cmd, "")
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to the TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (e.g. debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "force a profile (lightweight, comprehensive); default auto-detects")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", 0, "retry a query this many times when the backend is down or slow")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
