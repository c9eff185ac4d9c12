package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/bandtrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage backtest configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  bandtrader config init -o bandtrader.yaml
  bandtrader config validate -f bandtrader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
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

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "bandtrader.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.Data.Datasets = []config.DatasetConfig{{
		Name:       "spy",
		Path:       "data/spy.csv",
		DateFormat: "%Y-%m-%d",
	}}
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the datasets and run with:")
	fmt.Fprintf(out, "  bandtrader backtest -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account: $%.2f (leverage %.1fx)\n", cfg.Account.Cash, cfg.Account.Leverage)
	fmt.Fprintf(out, "  Costs: commission %.3f%%, slippage %.3f%%\n", cfg.Costs.Commission*100, cfg.Costs.Slippage*100)
	fmt.Fprintf(out, "  Band: EMA(%d) ATR(%d, %s) x%g, %s out of band\n",
		cfg.Band.EMAPeriod, cfg.Band.ATRPeriod, cfg.Band.ATRMode, cfg.Band.ATRMultiplier, cfg.Band.OutOfBand)
	fmt.Fprintf(out, "  Strategies: %v\n", cfg.Strategies)
	fmt.Fprintf(out, "  Datasets: %d\n", len(cfg.Data.Datasets))
	return nil
}
