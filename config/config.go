// Package config loads and validates the backtest configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/bandtrader/analytics"
	"github.com/rustyeddy/bandtrader/backtest"
	"github.com/rustyeddy/bandtrader/indicators"
	"github.com/rustyeddy/bandtrader/market"
	"github.com/rustyeddy/bandtrader/risk"
	"github.com/rustyeddy/bandtrader/sim"
	"github.com/rustyeddy/bandtrader/strategies"
)

// Config is the complete backtest configuration.
type Config struct {
	Account    AccountConfig   `json:"account" yaml:"account"`
	Costs      CostsConfig     `json:"costs" yaml:"costs"`
	Band       BandConfig      `json:"band" yaml:"band"`
	DCA        DCAConfig       `json:"dca" yaml:"dca"`
	Benchmark  BenchmarkConfig `json:"benchmark" yaml:"benchmark"`
	Analytics  AnalyticsConfig `json:"analytics" yaml:"analytics"`
	Data       DataConfig      `json:"data" yaml:"data"`
	Strategies []string        `json:"strategies" yaml:"strategies" validate:"dive,required"`
	Output     OutputConfig    `json:"output" yaml:"output"`
}

// AccountConfig is the simulated account.
type AccountConfig struct {
	Cash     float64 `json:"cash" yaml:"cash" validate:"gte=0"`
	Leverage float64 `json:"leverage" yaml:"leverage" validate:"gte=1"`
	// Liquidate sells any open position at the last close of each run.
	Liquidate bool `json:"liquidate" yaml:"liquidate"`
}

// CostsConfig holds fractional trading costs.
type CostsConfig struct {
	Commission float64 `json:"commission" yaml:"commission" validate:"gte=0,lt=1"`
	Slippage   float64 `json:"slippage" yaml:"slippage" validate:"gte=0,lt=1"`
}

// BandConfig configures the band-regression strategies.
type BandConfig struct {
	EMAPeriod         int     `json:"ema_period" yaml:"ema_period" validate:"gt=0"`
	ATRPeriod         int     `json:"atr_period" yaml:"atr_period" validate:"gt=0"`
	ATRMultiplier     float64 `json:"atr_multiplier" yaml:"atr_multiplier" validate:"gte=0"`
	ATRMode           string  `json:"atr_mode" yaml:"atr_mode" validate:"oneof=range true"`
	OutOfBand         string  `json:"out_of_band" yaml:"out_of_band" validate:"oneof=clamp flatten"`
	RebalanceMultiple float64 `json:"rebalance_multiple" yaml:"rebalance_multiple" validate:"gt=0"`
	CapitalBase       string  `json:"capital_base" yaml:"capital_base" validate:"oneof=cash equity"`
	MinOrder          float64 `json:"min_order" yaml:"min_order" validate:"gte=0"`
}

// DCAConfig configures the volatility ladder.
type DCAConfig struct {
	K          float64 `json:"k" yaml:"k" validate:"gt=0"`
	BaseAmount float64 `json:"base_amount" yaml:"base_amount" validate:"gt=0"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier" validate:"gt=0"`
	MaxAdds    int     `json:"max_adds" yaml:"max_adds" validate:"gte=0"`
	VWMAPeriod int     `json:"vwma_period" yaml:"vwma_period" validate:"gt=0"`
	ATRPeriod  int     `json:"atr_period" yaml:"atr_period" validate:"gt=0"`
	// StopMode is "full" (stop only after the last add) or "always".
	StopMode string `json:"stop_mode" yaml:"stop_mode" validate:"oneof=full always"`
}

// BenchmarkConfig configures the buy-and-hold baseline.
type BenchmarkConfig struct {
	HoldFraction float64 `json:"hold_fraction" yaml:"hold_fraction" validate:"gt=0,lte=1"`
}

// AnalyticsConfig configures the Sharpe ratio.
type AnalyticsConfig struct {
	PeriodsPerYear float64 `json:"periods_per_year" yaml:"periods_per_year" validate:"gt=0"`
	RiskFree       float64 `json:"risk_free" yaml:"risk_free"`
}

// DataConfig lists the bar files to test against.
type DataConfig struct {
	Datasets []DatasetConfig `json:"datasets" yaml:"datasets" validate:"dive"`
}

// DatasetConfig describes one bar file.
type DatasetConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Path string `json:"path" yaml:"path" validate:"required"`
	// DateFormat is a strftime pattern, a Go layout or "unix". Empty means RFC3339.
	DateFormat string `json:"date_format,omitempty" yaml:"date_format,omitempty"`
	// Location is an IANA zone applied to timestamps without an offset.
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	// From and To bound the bars to [From, To). Dates or RFC3339 timestamps.
	From    string         `json:"from,omitempty" yaml:"from,omitempty"`
	To      string         `json:"to,omitempty" yaml:"to,omitempty"`
	Columns *ColumnsConfig `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// ColumnsConfig maps CSV columns. Volume -1 means no volume column.
type ColumnsConfig struct {
	Time   int `json:"time" yaml:"time" validate:"gte=0"`
	Open   int `json:"open" yaml:"open" validate:"gte=0"`
	High   int `json:"high" yaml:"high" validate:"gte=0"`
	Low    int `json:"low" yaml:"low" validate:"gte=0"`
	Close  int `json:"close" yaml:"close" validate:"gte=0"`
	Volume int `json:"volume" yaml:"volume" validate:"gte=-1"`
}

// OutputConfig controls what each run writes.
type OutputConfig struct {
	// Dir receives fill ledgers; empty disables file exports.
	Dir          string `json:"dir,omitempty" yaml:"dir,omitempty"`
	EquityCurves bool   `json:"equity_curves" yaml:"equity_curves"`
	Org          bool   `json:"org" yaml:"org"`
	// SQLite is an optional run store path.
	SQLite string `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
}

// Default returns the production parameters.
func Default() *Config {
	p := strategies.DefaultParams()
	return &Config{
		Account: AccountConfig{
			Cash:     10000,
			Leverage: 2,
		},
		Costs: CostsConfig{
			Commission: 0.001,
			Slippage:   0.0005,
		},
		Band: BandConfig{
			EMAPeriod:         p.EMAPeriod,
			ATRPeriod:         p.ATRPeriod,
			ATRMultiplier:     p.Band.Multiplier,
			ATRMode:           string(p.ATRMode),
			OutOfBand:         string(p.Band.OutOfBand),
			RebalanceMultiple: p.RebalanceMultiple,
			CapitalBase:       string(p.CapitalBase),
			MinOrder:          p.MinOrder,
		},
		DCA: DCAConfig{
			K:          p.Ladder.K,
			BaseAmount: p.Ladder.BaseAmount,
			Multiplier: p.Ladder.Multiplier,
			MaxAdds:    p.Ladder.MaxAdds,
			VWMAPeriod: p.VWMAPeriod,
			ATRPeriod:  p.LadderATRPeriod,
			StopMode:   string(p.Ladder.Stop),
		},
		Benchmark: BenchmarkConfig{HoldFraction: p.HoldFraction},
		Analytics: AnalyticsConfig{
			PeriodsPerYear: analytics.DefaultPeriodsPerYear,
		},
		Strategies: []string{"band", "band-threshold", "dca"},
		Output: OutputConfig{
			Dir:          "./results",
			EquityCurves: true,
		},
	}
}

// LoadFromFile reads path over the defaults. YAML is tried first, then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("config: parse %s (tried YAML and JSON): %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	data, err := c.Marshal(filepath.Ext(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Marshal encodes the config for a file extension.
func (c *Config) Marshal(ext string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return data, nil
}

var validate = validator.New()

// Validate checks field ranges and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	known := strategies.Names()
	for _, s := range c.Strategies {
		if !slices.Contains(known, strings.ToLower(strings.TrimSpace(s))) {
			return fmt.Errorf("config: unknown strategy %q (supported: %s)", s, strings.Join(known, ", "))
		}
	}

	seen := map[string]bool{}
	for _, ds := range c.Data.Datasets {
		if seen[ds.Name] {
			return fmt.Errorf("config: duplicate dataset %q", ds.Name)
		}
		seen[ds.Name] = true
		if _, err := ds.CSVOptions(); err != nil {
			return err
		}
	}
	return nil
}

// SimConfig returns the broker cost model.
func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		Cash:       c.Account.Cash,
		Commission: c.Costs.Commission,
		Slippage:   c.Costs.Slippage,
		Leverage:   c.Account.Leverage,
	}
}

// Params returns the strategy parameters.
func (c *Config) Params() (strategies.Params, error) {
	oob, err := risk.ParseOutOfBand(c.Band.OutOfBand)
	if err != nil {
		return strategies.Params{}, fmt.Errorf("config: %w", err)
	}
	stop, err := risk.ParseStopMode(c.DCA.StopMode)
	if err != nil {
		return strategies.Params{}, fmt.Errorf("config: %w", err)
	}
	return strategies.Params{
		Band: risk.BandPolicy{
			Multiplier: c.Band.ATRMultiplier,
			OutOfBand:  oob,
		},
		EMAPeriod:         c.Band.EMAPeriod,
		ATRPeriod:         c.Band.ATRPeriod,
		ATRMode:           indicators.ATRMode(c.Band.ATRMode),
		RebalanceMultiple: c.Band.RebalanceMultiple,
		CapitalBase:       strategies.CapitalBase(c.Band.CapitalBase),
		MinOrder:          c.Band.MinOrder,
		Ladder: risk.LadderParams{
			K:          c.DCA.K,
			BaseAmount: c.DCA.BaseAmount,
			Multiplier: c.DCA.Multiplier,
			MaxAdds:    c.DCA.MaxAdds,
			Stop:       stop,
		},
		VWMAPeriod:      c.DCA.VWMAPeriod,
		LadderATRPeriod: c.DCA.ATRPeriod,
		HoldFraction:    c.Benchmark.HoldFraction,
	}, nil
}

// AnalyticsConfig returns the Sharpe ratio parameters.
func (c *Config) AnalyticsConfig() analytics.Config {
	return analytics.Config{
		RiskFree:       c.Analytics.RiskFree,
		PeriodsPerYear: c.Analytics.PeriodsPerYear,
	}
}

// Backtest returns the per-run configuration.
func (c *Config) Backtest() (backtest.Config, error) {
	p, err := c.Params()
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		Sim:       c.SimConfig(),
		Params:    p,
		Analytics: c.AnalyticsConfig(),
		Liquidate: c.Account.Liquidate,
	}, nil
}

// Datasets converts the data section.
func (c *Config) Datasets() ([]backtest.Dataset, error) {
	out := make([]backtest.Dataset, 0, len(c.Data.Datasets))
	for _, ds := range c.Data.Datasets {
		opts, err := ds.CSVOptions()
		if err != nil {
			return nil, err
		}
		out = append(out, backtest.Dataset{Name: ds.Name, Path: ds.Path, CSV: opts})
	}
	return out, nil
}

// BatchOutput returns the batch output settings.
func (c *Config) BatchOutput() backtest.Output {
	return backtest.Output{
		Dir:          c.Output.Dir,
		EquityCurves: c.Output.EquityCurves,
		Org:          c.Output.Org,
	}
}

// CSVOptions converts the dataset's parsing options.
func (d DatasetConfig) CSVOptions() (market.CSVOptions, error) {
	opts := market.CSVOptions{DateFormat: d.DateFormat}

	if d.Location != "" {
		loc, err := time.LoadLocation(d.Location)
		if err != nil {
			return opts, fmt.Errorf("config: dataset %q: %w", d.Name, err)
		}
		opts.Location = loc
	}
	if d.Columns != nil {
		opts.Columns = market.Columns(*d.Columns)
	}

	from, err := parseBound(d.From)
	if err != nil {
		return opts, fmt.Errorf("config: dataset %q: from: %w", d.Name, err)
	}
	to, err := parseBound(d.To)
	if err != nil {
		return opts, fmt.Errorf("config: dataset %q: to: %w", d.Name, err)
	}
	if f, ferr := from.Take(); ferr == nil {
		if t, terr := to.Take(); terr == nil && !f.Before(t) {
			return opts, fmt.Errorf("config: dataset %q: from %s is not before to %s", d.Name, d.From, d.To)
		}
	}
	opts.From, opts.To = from, to
	return opts, nil
}

func parseBound(s string) (optional.Option[time.Time], error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return optional.None[time.Time](), nil
	}
	for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return optional.Some(t), nil
		}
	}
	return optional.None[time.Time](), fmt.Errorf("bad time %q", s)
}
