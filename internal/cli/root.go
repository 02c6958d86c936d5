package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TWRT/task-tracker/internal/config"
)

var (
	configFile   string
	outputFormat string
	rootCmd      *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "tasktracker",
		Short: "Task tracker with derived status and offline sync",
		Long: `tasktracker serves the task API and works as an offline-capable client for it.

Client commands write to a local replica first. When the server is unreachable
the mutation is queued on disk and replayed in order once it comes back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./tasktracker.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(agentCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
