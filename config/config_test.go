package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/bandtrader/indicators"
	"github.com/rustyeddy/bandtrader/risk"
	"github.com/rustyeddy/bandtrader/strategies"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, 10000.0, cfg.Account.Cash)
	assert.Equal(t, 200, cfg.Band.EMAPeriod)
	assert.Equal(t, "clamp", cfg.Band.OutOfBand)
	assert.Equal(t, "cash", cfg.Band.CapitalBase)
	assert.Equal(t, "full", cfg.DCA.StopMode)
	assert.NoError(t, cfg.Validate())

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, strategies.DefaultParams(), p)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"negative cash", func(c *Config) { c.Account.Cash = -1 }, "Cash"},
		{"leverage below one", func(c *Config) { c.Account.Leverage = 0.5 }, "Leverage"},
		{"commission of one", func(c *Config) { c.Costs.Commission = 1 }, "Commission"},
		{"zero ema period", func(c *Config) { c.Band.EMAPeriod = 0 }, "EMAPeriod"},
		{"unknown atr mode", func(c *Config) { c.Band.ATRMode = "parkinson" }, "ATRMode"},
		{"unknown out of band", func(c *Config) { c.Band.OutOfBand = "ignore" }, "OutOfBand"},
		{"unknown capital base", func(c *Config) { c.Band.CapitalBase = "margin" }, "CapitalBase"},
		{"zero ladder k", func(c *Config) { c.DCA.K = 0 }, "K"},
		{"unknown stop mode", func(c *Config) { c.DCA.StopMode = "never" }, "StopMode"},
		{"hold fraction above one", func(c *Config) { c.Benchmark.HoldFraction = 1.5 }, "HoldFraction"},
		{"unknown strategy", func(c *Config) { c.Strategies = []string{"band", "martingale"} }, "unknown strategy \"martingale\""},
		{"empty strategy", func(c *Config) { c.Strategies = []string{""} }, "Strategies"},
		{
			"dataset without path",
			func(c *Config) { c.Data.Datasets = []DatasetConfig{{Name: "spy"}} },
			"Path",
		},
		{
			"duplicate dataset",
			func(c *Config) {
				c.Data.Datasets = []DatasetConfig{{Name: "spy", Path: "a.csv"}, {Name: "spy", Path: "b.csv"}}
			},
			"duplicate dataset",
		},
		{
			"from after to",
			func(c *Config) {
				c.Data.Datasets = []DatasetConfig{{Name: "spy", Path: "a.csv", From: "2020-01-01", To: "2019-01-01"}}
			},
			"is not before",
		},
		{
			"bad location",
			func(c *Config) {
				c.Data.Datasets = []DatasetConfig{{Name: "spy", Path: "a.csv", Location: "Mars/Olympus"}}
			},
			"dataset \"spy\"",
		},
		{
			"bad column",
			func(c *Config) {
				c.Data.Datasets = []DatasetConfig{{Name: "spy", Path: "a.csv", Columns: &ColumnsConfig{Close: -1}}}
			},
			"Close",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		ext := ext
		t.Run(ext, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			cfg.Band.OutOfBand = "flatten"
			cfg.DCA.StopMode = "always"
			cfg.Data.Datasets = []DatasetConfig{{
				Name:       "spy",
				Path:       "data/spy.csv",
				DateFormat: "%Y-%m-%d",
				From:       "2020-01-01",
				Columns:    &ColumnsConfig{Time: 0, Open: 1, High: 2, Low: 3, Close: 4, Volume: -1},
			}}
			path := filepath.Join(tmpDir, "nested", "test"+ext)

			require.NoError(t, cfg.SaveToFile(path))
			assert.FileExists(t, path)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  cash: 50000
  leverage: 1
band:
  ema_period: 100
  atr_period: 14
  atr_multiplier: 10
  atr_mode: "true"
  out_of_band: clamp
  rebalance_multiple: 2
  capital_base: equity
dca:
  stop_mode: always
strategies: [band, dca]
data:
  datasets:
    - name: spy
      path: spy.csv
      date_format: unix
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, cfg.Account.Cash)
	assert.Equal(t, 0.001, cfg.Costs.Commission, "missing sections keep defaults")
	assert.Equal(t, []string{"band", "dca"}, cfg.Strategies)

	bt, err := cfg.Backtest()
	require.NoError(t, err)
	assert.Equal(t, 50000.0, bt.Sim.Cash)
	assert.Equal(t, 1.0, bt.Sim.Leverage)
	assert.Equal(t, 100, bt.Params.EMAPeriod)
	assert.Equal(t, indicators.ATRTrue, bt.Params.ATRMode)
	assert.Equal(t, risk.Clamp, bt.Params.Band.OutOfBand)
	assert.Equal(t, strategies.CapitalEquity, bt.Params.CapitalBase)
	assert.Equal(t, risk.StopAlways, bt.Params.Ladder.Stop)
	assert.Equal(t, 2.0, bt.Params.Ladder.K, "unset dca keys keep defaults")
	assert.Equal(t, 252.0, bt.Analytics.PeriodsPerYear)

	ds, err := cfg.Datasets()
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "unix", ds[0].CSV.DateFormat)
	assert.True(t, ds[0].CSV.From.IsNone())
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [unclosed"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "tried YAML and JSON")
}

func TestDatasetCSVOptions(t *testing.T) {
	t.Parallel()

	d := DatasetConfig{
		Name:     "spy",
		Path:     "spy.csv",
		Location: "America/New_York",
		From:     "2020-01-01",
		To:       "2021-06-30 16:00:00",
		Columns:  &ColumnsConfig{Time: 0, Open: 1, High: 2, Low: 3, Close: 4, Volume: 8},
	}
	opts, err := d.CSVOptions()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", opts.Location.String())
	assert.Equal(t, 8, opts.Columns.Volume)

	from, err := opts.From.Take()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), from)
	to, err := opts.To.Take()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 6, 30, 16, 0, 0, 0, time.UTC), to)

	d.From = "yesterday"
	_, err = d.CSVOptions()
	assert.ErrorContains(t, err, "from")
}

func TestBatchOutput(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Output.Org = true
	out := cfg.BatchOutput()
	assert.Equal(t, "./results", out.Dir)
	assert.True(t, out.EquityCurves)
	assert.True(t, out.Org)
}
