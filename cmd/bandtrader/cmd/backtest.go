package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/bandtrader/backtest"
	"github.com/rustyeddy/bandtrader/config"
	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [bars.csv ...]",
	Short: "Run strategies over bar files and compare them with buy-and-hold",
	Long: `Backtest runs every configured strategy over every dataset. Buy-and-hold
always runs as the benchmark. Datasets come from the config file and from
positional arguments; a dataset that fails to load is reported and skipped.

Example:
  bandtrader backtest -c bandtrader.yaml
  bandtrader backtest -s band,dca --date-format "%Y-%m-%d" data/spy.csv data/qqq.csv`,
	RunE: runBacktest,
}

var (
	btStrategies []string
	btDateFormat string
	btOutDir     string
	btSQLite     string
	btLiquidate  bool
	btNoProgress bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringSliceVarP(&btStrategies, "strategy", "s", nil,
		"strategies to run ("+strings.Join(strategies.Names(), ", ")+"); overrides the config")
	backtestCmd.Flags().StringVar(&btDateFormat, "date-format", "", "date format for positional bar files (strftime, Go layout or unix)")
	backtestCmd.Flags().StringVarP(&btOutDir, "out", "o", "", "output directory; overrides the config")
	backtestCmd.Flags().StringVar(&btSQLite, "sqlite", "", "SQLite run store; overrides the config")
	backtestCmd.Flags().BoolVar(&btLiquidate, "liquidate", false, "sell any open position at the last close")
	backtestCmd.Flags().BoolVar(&btNoProgress, "no-progress", false, "disable the progress bar")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBacktestFlags(cmd, cfg, args)
	if err := cfg.Validate(); err != nil {
		return err
	}

	rc, err := cfg.Backtest()
	if err != nil {
		return err
	}
	datasets, err := cfg.Datasets()
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		return fmt.Errorf("no datasets: pass bar files or list them under data.datasets")
	}
	blob, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	batch := &backtest.Batch{
		Runner:     &backtest.Runner{Config: rc, Log: log},
		Datasets:   datasets,
		Strategies: cfg.Strategies,
		Output:     cfg.BatchOutput(),
		Config:     blob,
	}

	if cfg.Output.SQLite != "" {
		store, err := journal.NewSQLite(cfg.Output.SQLite)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer store.Close()
		batch.Store = store
	}

	var bar *progressbar.ProgressBar
	if !btNoProgress {
		bar = progressbar.NewOptions(batch.Runs(),
			progressbar.OptionSetDescription("backtesting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish())
		batch.Progress = bar
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("backtest starting",
		zap.Int("datasets", len(datasets)),
		zap.Strings("strategies", batch.StrategyNames()),
		zap.String("out", cfg.Output.Dir))

	rep, err := batch.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if rep != nil {
		if werr := rep.Write(cmd.OutOrStdout()); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if len(rep.Results) == 0 {
		return fmt.Errorf("every run failed")
	}
	return nil
}

// applyBacktestFlags layers command-line overrides onto cfg.
func applyBacktestFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	if cmd.Flags().Changed("strategy") {
		cfg.Strategies = btStrategies
	}
	if cmd.Flags().Changed("out") {
		cfg.Output.Dir = btOutDir
	}
	if cmd.Flags().Changed("sqlite") {
		cfg.Output.SQLite = btSQLite
	}
	if cmd.Flags().Changed("liquidate") {
		cfg.Account.Liquidate = btLiquidate
	}
	for _, path := range args {
		cfg.Data.Datasets = append(cfg.Data.Datasets, config.DatasetConfig{
			Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path:       path,
			DateFormat: btDateFormat,
		})
	}
}
