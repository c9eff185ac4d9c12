package backtest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/market"
)

// Benchmark is always run alongside the requested strategies.
const Benchmark = "buy-hold"

// Dataset names one bar file.
type Dataset struct {
	Name string
	Path string
	CSV  market.CSVOptions
}

// Output controls what a batch writes per run. An empty Dir disables file
// exports.
type Output struct {
	Dir          string
	EquityCurves bool
	Org          bool
}

// Progress is advanced once per attempted run.
type Progress interface {
	Add(n int) error
}

// Failure is a run, or a whole dataset, that could not complete.
type Failure struct {
	Dataset  string
	Strategy string
	Err      error
}

func (f Failure) Error() string {
	if f.Strategy == "" {
		return fmt.Sprintf("%s: %v", f.Dataset, f.Err)
	}
	return fmt.Sprintf("%s/%s: %v", f.Dataset, f.Strategy, f.Err)
}

// Batch runs every strategy over every dataset. A dataset that fails to load
// or a run that fails is logged and skipped; the rest still run.
type Batch struct {
	Runner     *Runner
	Datasets   []Dataset
	Strategies []string
	Output     Output
	// Store, when set, receives every completed run.
	Store    *journal.SQLite
	Progress Progress
	// Config is stored with each run record.
	Config []byte
}

// StrategyNames returns the configured strategies with the benchmark added
// when missing.
func (b *Batch) StrategyNames() []string {
	out := make([]string, 0, len(b.Strategies)+1)
	seen := map[string]bool{}
	for _, s := range b.Strategies {
		n := strings.ToLower(strings.TrimSpace(s))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if !seen[Benchmark] {
		out = append(out, Benchmark)
	}
	return out
}

// Runs returns how many runs the batch will attempt.
func (b *Batch) Runs() int {
	return len(b.Datasets) * len(b.StrategyNames())
}

// Run executes the batch. Only context cancellation stops it early; the
// report collected so far is returned with the error.
func (b *Batch) Run(ctx context.Context) (*Report, error) {
	if b.Runner == nil {
		return nil, fmt.Errorf("backtest: runner is required")
	}
	log := b.Runner.Log.Named("batch")
	names := b.StrategyNames()
	rep := &Report{}

	for _, ds := range b.Datasets {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		series, err := market.LoadCSV(ds.Name, ds.Path, ds.CSV)
		if err != nil {
			log.Error("dataset skipped", zap.String("dataset", ds.Name), zap.Error(err))
			rep.Failures = append(rep.Failures, Failure{Dataset: ds.Name, Err: err})
			b.advance(len(names))
			continue
		}
		log.Info("dataset loaded", zap.String("dataset", ds.Name), zap.Int("bars", series.Len()))

		for _, name := range names {
			res, err := b.Runner.RunSeries(ctx, series, name)
			b.advance(1)
			if err != nil {
				if ctx.Err() != nil {
					return rep, ctx.Err()
				}
				log.Error("run failed",
					zap.String("dataset", ds.Name),
					zap.String("strategy", name),
					zap.Error(err))
				rep.Failures = append(rep.Failures, Failure{Dataset: ds.Name, Strategy: name, Err: err})
				continue
			}
			b.export(ctx, log.Logger, res)
			rep.Results = append(rep.Results, res)
		}
	}
	return rep, nil
}

func (b *Batch) advance(n int) {
	if b.Progress != nil {
		_ = b.Progress.Add(n)
	}
}

// export writes the run's artifacts. Failures are logged and never abort the
// batch.
func (b *Batch) export(ctx context.Context, log *zap.Logger, res Result) {
	log = log.With(zap.String("dataset", res.Dataset), zap.String("strategy", res.Strategy))
	summary := res.Summary()
	summary.Config = b.Config

	if b.Output.Dir != "" {
		base := filepath.Join(b.Output.Dir, fileStem(res))

		if err := res.Ledger.ExportCSV(base+".csv", res.Layout); err != nil {
			log.Error("fill export failed", zap.Error(err))
		} else {
			log.Debug("fills exported", zap.String("path", base+".csv"), zap.Int("fills", res.Ledger.Len()))
		}
		if b.Output.EquityCurves {
			if err := journal.WriteEquityCSV(base+"_equity.csv", res.Equity); err != nil {
				log.Error("equity export failed", zap.Error(err))
			}
		}
		if b.Output.Org {
			if err := summary.WriteOrg(base + ".org"); err != nil {
				log.Error("org export failed", zap.Error(err))
			}
		}
	}

	if b.Store != nil {
		if err := b.Store.SaveRun(ctx, summary, res.Ledger.Fills(), res.Equity); err != nil {
			log.Error("run not stored", zap.String("run", res.RunID), zap.Error(err))
		}
	}
}

// fileStem is "<dataset>_<strategy>" with path separators removed.
func fileStem(res Result) string {
	r := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	return r.Replace(res.Dataset) + "_" + r.Replace(res.Strategy)
}
