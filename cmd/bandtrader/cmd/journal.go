package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/bandtrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query stored backtest runs",
	Long: `Query runs stored in the SQLite journal by "backtest --sqlite".

Subcommands:
  runs   - List stored runs
  run    - Print one run as an Org-mode entry
  fills  - Print a run's fill ledger as CSV

Examples:
  bandtrader journal runs --dataset spy
  bandtrader journal run <run-id>
  bandtrader journal fills <run-id> --layout diagnostic`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Print one run as an Org-mode entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalFillsCmd = &cobra.Command{
	Use:   "fills <run-id>",
	Short: "Print a run's fill ledger as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalFills,
}

var (
	journalDBPath  string
	journalDataset string
	journalLayout  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalRunCmd)
	journalCmd.AddCommand(journalFillsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./bandtrader.sqlite", "path to SQLite journal DB")
	journalRunsCmd.Flags().StringVar(&journalDataset, "dataset", "", "only list runs of this dataset")
	journalFillsCmd.Flags().StringVar(&journalLayout, "layout", "plain", "CSV layout (plain, diagnostic)")
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context(), journalDataset)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %-12s %-16s total=%7.2f%% maxdd=%6.2f%% trades=%d\n",
			r.RunID, r.Dataset, r.Strategy, r.TotalReturn*100, r.MaxDrawdown*100, r.Trades)
	}
	return nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	r, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	s, err := r.FormatOrg()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s)
	return nil
}

func runJournalFills(cmd *cobra.Command, args []string) error {
	layout, err := journal.ParseLayout(journalLayout)
	if err != nil {
		return err
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	fills, err := j.ListFillsByRunID(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("list fills: %w", err)
	}

	l := journal.NewLedger()
	for _, f := range fills {
		l.RecordFill(f)
	}
	return l.WriteCSV(cmd.OutOrStdout(), layout)
}
