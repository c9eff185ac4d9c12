// Package indicators provides streaming technical indicators over market bars.
package indicators

import "github.com/rustyeddy/bandtrader/market"

// Indicator computes a single streaming value from bars.
// It is causal: the value after Update(b) depends only on b and earlier bars.
type Indicator interface {
	// Name returns a stable identifier like "EMA(200)" or "RangeATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or 0 when !Ready().
	Value() float64
}

// ATRMode selects the volatility reference used by the band sizer.
type ATRMode string

const (
	// ATRRange is the rolling max-min of closes. It is not a true range.
	ATRRange ATRMode = "range"
	// ATRTrue is Wilder's average true range over high/low/close.
	ATRTrue ATRMode = "true"
)

// NewATR builds the ATR indicator for mode. Unknown modes fall back to ATRRange.
func NewATR(mode ATRMode, period int) Indicator {
	if mode == ATRTrue {
		return NewWilderATR(period)
	}
	return NewRangeATR(period)
}

// Compute runs ind over bars and returns one value per bar; values before
// warm-up are 0.
func Compute(ind Indicator, bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		ind.Update(b)
		out[i] = ind.Value()
	}
	return out
}
