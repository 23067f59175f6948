package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/sessiontrader/config"
)

var rootCmd = &cobra.Command{
	Use:   "sessiontrader",
	Short: "Session-routed futures trading core",
	Long: `Sessiontrader routes each trading session of a 23x5 futures day to one
strategy module, gates every entry through a risk governor and keeps an
audit trail of every state transition.

It provides tools for:
  - Replaying recorded bars through the core against a paper venue
  - Generating and validating configuration files
  - Inspecting the trade journal and the per-session edge ranking
  - Requesting a manual unlock after a risk breach`,
	SilenceUsage: true,
}

var configPath string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file, YAML or JSON (default: built-in defaults)")
}

// loadConfig reads --config, or the defaults when it is not set.
func loadConfig() (*config.Config, *config.Resolved, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}
	r, err := cfg.Resolve()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve config: %w", err)
	}
	return cfg, r, nil
}
