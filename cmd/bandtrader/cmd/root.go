package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rustyeddy/bandtrader/config"
	"github.com/rustyeddy/bandtrader/logger"
)

var rootCmd = &cobra.Command{
	Use:   "bandtrader",
	Short: "Backtest volatility-band position sizing on daily bars",
	Long: `Bandtrader replays OHLCV bar files through band-regression and
volatility-ladder strategies on a simulated broker.

It provides tools for:
  - Backtesting strategies over many datasets at once
  - Comparing each strategy against buy-and-hold
  - Exporting fill ledgers, equity curves and Org-mode run summaries
  - Storing and querying runs in a SQLite journal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(logLevel)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

var (
	cfgFile  string
	logLevel string
	log      = logger.Nop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// loadConfig reads --config, or returns the defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgFile)
}
