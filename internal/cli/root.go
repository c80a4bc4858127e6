package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gzhole/deskpilot/internal/config"
	"github.com/gzhole/deskpilot/internal/observability"
)

var (
	configPath string
	policyPath string
	logPath    string
	apiURL     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "deskpilot",
	Short: "DeskPilot - supervised desktop automation",
	Long: `DeskPilot plans and executes desktop actions one step at a time. The
planner service proposes a single validated action per turn; the executor
re-checks it against local policy and either performs it or pauses for
human confirmation.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.deskpilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to policy YAML file (default: ~/.deskpilot/policy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to audit log file (default: ~/.deskpilot/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Planner API base URL (default: executor.api_url)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}

// loadConfig applies the persistent flags on top of the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, policyPath, logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiURL != "" {
		cfg.Executor.APIURL = apiURL
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	return cfg, nil
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, observability.InitializeLogger(cfg.Logger), nil
}
