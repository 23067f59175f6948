package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/sessiontrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  sessiontrader config init -o sessiontrader.yaml
  sessiontrader config validate -f sessiontrader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "sessiontrader.yaml", "output config file path (.yaml or .json)")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintf(out, "Edit the file and run with:\n  sessiontrader run -c %s --data bars.csv\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	r, err := cfg.Resolve()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account:    %s (%.2f %s)\n", cfg.Account.ID, cfg.Account.Balance, cfg.Account.Currency)
	fmt.Fprintf(out, "  Instrument: %s (tick %g, point value %g)\n", r.Instrument.Name, r.Instrument.TickSize, r.Instrument.PointValue)
	fmt.Fprintf(out, "  Timezone:   %s, no-trade window %s-%s\n", cfg.Schedule.Timezone, r.AutoFlat, r.Reopen)
	fmt.Fprintf(out, "  Router:     adaptive=%t lookback=%dd\n", cfg.Router.Adaptive, cfg.Router.LookbackDays)
	fmt.Fprintf(out, "  Sizing:     %s\n", cfg.Sizing.Mode)
	fmt.Fprintf(out, "  Journal:    %s\n", cfg.Journal.Type)
	return nil
}
