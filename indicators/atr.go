package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/bandtrader/market"
)

// RangeATR approximates volatility as the rolling max-min of closing prices
// over a window. It ignores highs and lows and gaps between bars.
type RangeATR struct {
	period int
	closes []float64
}

// NewRangeATR creates a RangeATR over period closes.
func NewRangeATR(period int) *RangeATR {
	if period < 1 {
		period = 1
	}
	return &RangeATR{
		period: period,
		closes: make([]float64, 0, period),
	}
}

func (a *RangeATR) Name() string { return fmt.Sprintf("RangeATR(%d)", a.period) }

func (a *RangeATR) Warmup() int { return a.period }

func (a *RangeATR) Reset() { a.closes = a.closes[:0] }

func (a *RangeATR) Update(b market.Bar) {
	a.closes = append(a.closes, b.Close)
	if len(a.closes) > a.period {
		a.closes = a.closes[1:]
	}
}

func (a *RangeATR) Ready() bool { return len(a.closes) >= a.period }

func (a *RangeATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range a.closes {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	return hi - lo
}

// WilderATR is the textbook average true range with Wilder smoothing.
type WilderATR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prev        market.Bar
	hasPrevious bool
}

// NewWilderATR creates a WilderATR with the given period.
func NewWilderATR(period int) *WilderATR {
	if period < 1 {
		period = 1
	}
	return &WilderATR{period: period}
}

func (a *WilderATR) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }

// Warmup needs period+1 bars because a true range needs the previous close.
func (a *WilderATR) Warmup() int { return a.period + 1 }

func (a *WilderATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrevious = false
}

func (a *WilderATR) Update(b market.Bar) {
	if !a.hasPrevious {
		a.prev = b
		a.hasPrevious = true
		return
	}

	tr := trueRange(b, a.prev)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prev = b
}

func (a *WilderATR) Ready() bool { return a.count >= a.period }

func (a *WilderATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

func trueRange(current, previous market.Bar) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}
