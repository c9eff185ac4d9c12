package indicators

import (
	"testing"
	"time"

	"github.com/rustyeddy/bandtrader/market"
	"github.com/stretchr/testify/assert"
)

func closes(vals ...float64) []market.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Bar, len(vals))
	for i, v := range vals {
		out[i] = market.Bar{Time: base.Add(time.Duration(i) * time.Hour), Open: v, High: v, Low: v, Close: v}
	}
	return out
}

func TestEMASpanSmoothing(t *testing.T) {
	t.Parallel()

	ema := NewEMA(3)
	assert.Equal(t, "EMA(3)", ema.Name())
	assert.False(t, ema.Ready())
	assert.Equal(t, 0.0, ema.Value())

	got := Compute(ema, closes(1, 2, 3))
	assert.InDeltaSlice(t, []float64{1, 1.5, 2.25}, got, 1e-12)

	ema.Reset()
	assert.False(t, ema.Ready())
}

func TestEMAFlatSeriesStaysFlat(t *testing.T) {
	t.Parallel()

	ema := NewEMA(200)
	for _, b := range closes(50, 50, 50, 50) {
		ema.Update(b)
	}
	assert.Equal(t, 50.0, ema.Value())
}

func TestRangeATR(t *testing.T) {
	t.Parallel()

	atr := NewRangeATR(3)
	assert.Equal(t, 3, atr.Warmup())

	got := Compute(atr, closes(5, 7, 4, 6, 6.5))
	assert.InDeltaSlice(t, []float64{0, 0, 3, 3, 2.5}, got, 1e-12)
}

func TestRangeATRIgnoresHighLow(t *testing.T) {
	t.Parallel()

	atr := NewRangeATR(2)
	atr.Update(market.Bar{High: 100, Low: 1, Close: 10})
	atr.Update(market.Bar{High: 100, Low: 1, Close: 12})
	assert.InDelta(t, 2.0, atr.Value(), 1e-12)
}

func TestWilderATR(t *testing.T) {
	t.Parallel()

	bars := []market.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12},
	}
	atr := NewWilderATR(3)
	assert.Equal(t, 4, atr.Warmup())
	got := Compute(atr, bars)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 2, 2, 2}, got, 1e-12)
}

func TestTrueRange(t *testing.T) {
	t.Parallel()

	current := market.Bar{High: 110, Low: 100, Close: 105}
	previous := market.Bar{Close: 115}
	assert.InDelta(t, 15.0, trueRange(current, previous), 1e-12)
}

func TestNewATRMode(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &RangeATR{}, NewATR(ATRRange, 14))
	assert.IsType(t, &WilderATR{}, NewATR(ATRTrue, 14))
	assert.IsType(t, &RangeATR{}, NewATR("bogus", 14))
}

func TestVWMA(t *testing.T) {
	t.Parallel()

	v := NewVWMA(2)
	v.Update(market.Bar{Close: 10, Volume: 1})
	assert.False(t, v.Ready())
	v.Update(market.Bar{Close: 20, Volume: 3})
	assert.InDelta(t, 17.5, v.Value(), 1e-12)

	v.Reset()
	v.Update(market.Bar{Close: 10})
	v.Update(market.Bar{Close: 20})
	assert.InDelta(t, 15.0, v.Value(), 1e-12, "no volume falls back to a simple mean")
}
