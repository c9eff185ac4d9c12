// Package backtest drives strategies over bar series through the simulated
// broker and collects ledgers, equity curves and statistics.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/bandtrader/analytics"
	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/logger"
	"github.com/rustyeddy/bandtrader/market"
	"github.com/rustyeddy/bandtrader/pkg/id"
	"github.com/rustyeddy/bandtrader/sim"
	"github.com/rustyeddy/bandtrader/strategies"
)

// ErrNoBars is returned when a feed yields nothing.
var ErrNoBars = errors.New("backtest: no bars")

// Config is everything one run needs besides the data and strategy name.
type Config struct {
	Sim       sim.Config
	Params    strategies.Params
	Analytics analytics.Config
	// Liquidate sells any open position at the last close.
	Liquidate bool
}

// Runner executes single runs. It holds no per-run state and may be reused.
type Runner struct {
	Config Config
	Log    *logger.Logger
}

// Result is the outcome of one strategy over one dataset.
type Result struct {
	RunID    string
	Dataset  string
	Strategy string
	Layout   journal.Layout
	Bars     int

	Stats    analytics.Stats
	Ledger   *journal.Ledger
	Equity   []journal.EquitySnapshot
	Trades   []sim.Trade
	Position broker.Position
	Cash     float64
}

// RunSeries replays s through the named strategy.
func (r *Runner) RunSeries(ctx context.Context, s *market.Series, strategy string) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("backtest: series is required")
	}
	return r.Run(ctx, s.Name, NewSeriesFeed(s), strategy)
}

// Run executes the backtest loop. For each bar:
//  1. the engine fills pending orders at the open and marks to the close
//  2. the strategy sees the bar and may return one order
//  3. the order is submitted for the next bar
//  4. an equity sample is taken
//
// The ledger and analytics session are created here so no state leaks
// between runs.
func (r *Runner) Run(ctx context.Context, dataset string, feed BarFeed, strategy string) (Result, error) {
	if feed == nil {
		return Result{}, fmt.Errorf("backtest: feed is required")
	}
	defer feed.Close()

	log := &logger.Logger{Logger: r.Log.Named("backtest").With(
		zap.String("dataset", dataset),
		zap.String("strategy", strategy))}

	strat, err := strategies.New(strategy, r.Config.Params)
	if err != nil {
		return Result{}, err
	}
	eng, err := sim.NewEngine(r.Config.Sim, log)
	if err != nil {
		return Result{}, err
	}
	ledger := journal.NewLedger()
	session := analytics.NewSession(r.Config.Analytics)

	eng.Subscribe(ledger)
	eng.Subscribe(session)
	eng.Subscribe(strat)

	res := Result{
		RunID:    id.New(),
		Dataset:  dataset,
		Strategy: strat.Name(),
		Layout:   strat.Layout(),
		Ledger:   ledger,
	}

	var last market.Bar
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		bar, ok, err := feed.Next()
		if err != nil {
			return Result{}, fmt.Errorf("backtest: %s: read bar %d: %w", dataset, i, err)
		}
		if !ok {
			break
		}

		if err := eng.ProcessBar(bar); err != nil {
			return Result{}, fmt.Errorf("backtest: %s: bar %d: %w", dataset, i, err)
		}

		o, err := strat.OnBar(&strategies.Context{Bar: bar, Index: i, Broker: eng})
		if err != nil {
			return Result{}, fmt.Errorf("backtest: %s: %w", dataset, err)
		}
		if o != nil {
			if _, err := eng.Submit(ctx, broker.FromOrder(*o)); err != nil {
				return Result{}, fmt.Errorf("backtest: %s: submit at %s: %w", dataset, bar.Time, err)
			}
		}

		res.Equity = appendSnapshot(res.Equity, snapshot(eng, bar.Time))
		session.OnEquity(res.Equity[len(res.Equity)-1])
		last = bar
		res.Bars++
	}

	if res.Bars == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoBars, dataset)
	}

	if r.Config.Liquidate {
		if err := eng.Liquidate(); err != nil {
			return Result{}, fmt.Errorf("backtest: %s: liquidate: %w", dataset, err)
		}
		res.Equity = appendSnapshot(res.Equity, snapshot(eng, last.Time))
	}

	session.Stop(last.Time, eng.Value())
	res.Stats, err = session.Stats()
	if errors.Is(err, analytics.ErrZeroCapital) {
		log.Warn("returns undefined", zap.Error(err))
	} else if err != nil {
		return Result{}, err
	}

	res.Trades = eng.Trades()
	res.Position = eng.Position()
	res.Cash = eng.Cash()

	log.Info("run complete",
		zap.String("run", res.RunID),
		zap.Int("bars", res.Bars),
		zap.Int("fills", ledger.Len()),
		zap.Int("trades", res.Stats.Trades),
		zap.Float64("total_return", res.Stats.TotalReturn),
		zap.Float64("max_drawdown", res.Stats.MaxDrawdown))
	return res, nil
}

// Summary converts the result into a journal run record.
func (r Result) Summary() journal.Run {
	st := r.Stats
	return journal.Run{
		RunID:        r.RunID,
		Created:      time.Now().UTC(),
		Dataset:      r.Dataset,
		Strategy:     r.Strategy,
		Start:        st.Start,
		End:          st.End,
		StartValue:   st.StartValue,
		EndValue:     st.EndValue,
		TotalReturn:  st.TotalReturn,
		AnnualReturn: st.AnnualReturn,
		MaxDrawdown:  st.MaxDrawdown,
		Sharpe:       st.Sharpe,
		MAR:          st.MAR,
		Fills:        r.Ledger.Len(),
		Trades:       st.Trades,
		Wins:         st.Wins,
		Losses:       st.Losses,
		RealizedPnL:  st.RealizedPnLComm,
	}
}

func snapshot(b broker.Broker, t time.Time) journal.EquitySnapshot {
	return journal.EquitySnapshot{
		Time:     t,
		Cash:     b.Cash(),
		Position: b.Position().Size,
		Value:    b.Value(),
	}
}

// appendSnapshot replaces the last sample when it shares s's time.
func appendSnapshot(curve []journal.EquitySnapshot, s journal.EquitySnapshot) []journal.EquitySnapshot {
	if n := len(curve); n > 0 && curve[n-1].Time.Equal(s.Time) {
		curve[n-1] = s
		return curve
	}
	return append(curve, s)
}
