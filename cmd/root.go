package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/config"
	"github.com/jandubois/healthagent/internal/logging"
)

// Version is set at build time via -ldflags "-X github.com/jandubois/healthagent/cmd.Version=..."
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "healthagent",
	Short: "Host health monitoring agent",
	Long: `Healthagent runs health-check probes on a schedule, alerts a webhook
when a check degrades, and writes a snapshot of the latest results.`,
	SilenceUsage: true,
}

const probeGroupID = "probes"

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: probeGroupID, Title: "Built-in Probes:"})
	rootCmd.PersistentFlags().StringP("config", "c", "config.yml", "Configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newLogger builds the logger for cfg, honoring the --log-level override.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Service.LogLevel
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	return logging.New(level, cfg.Service.LogFile)
}
