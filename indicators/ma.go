package indicators

import (
	"fmt"

	"github.com/rustyeddy/bandtrader/market"
)

// EMA is an exponential moving average with span smoothing
// (alpha = 2/(span+1)), seeded with the first close and updated recursively
// without bias adjustment.
type EMA struct {
	span  int
	alpha float64
	value float64
	count int
}

// NewEMA creates an EMA with the given span.
func NewEMA(span int) *EMA {
	if span < 1 {
		span = 1
	}
	return &EMA{
		span:  span,
		alpha: 2.0 / (float64(span) + 1.0),
	}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA(%d)", e.span) }

// Warmup is 1: the recursion is defined from the first bar.
func (e *EMA) Warmup() int { return 1 }

func (e *EMA) Reset() {
	e.value = 0
	e.count = 0
}

func (e *EMA) Update(b market.Bar) {
	e.Add(b.Close)
}

// Add feeds a raw value.
func (e *EMA) Add(x float64) {
	e.count++
	if e.count == 1 {
		e.value = x
		return
	}
	e.value = e.alpha*x + (1.0-e.alpha)*e.value
}

func (e *EMA) Ready() bool { return e.count > 0 }

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.value
}

// VWMA is a volume-weighted moving average of closes over a fixed window.
// When the window carries no volume it degrades to a simple average.
type VWMA struct {
	period int
	bars   []market.Bar
}

// NewVWMA creates a VWMA over period bars.
func NewVWMA(period int) *VWMA {
	if period < 1 {
		period = 1
	}
	return &VWMA{
		period: period,
		bars:   make([]market.Bar, 0, period),
	}
}

func (v *VWMA) Name() string { return fmt.Sprintf("VWMA(%d)", v.period) }

func (v *VWMA) Warmup() int { return v.period }

func (v *VWMA) Reset() { v.bars = v.bars[:0] }

func (v *VWMA) Update(b market.Bar) {
	v.bars = append(v.bars, b)
	if len(v.bars) > v.period {
		v.bars = v.bars[1:]
	}
}

func (v *VWMA) Ready() bool { return len(v.bars) >= v.period }

func (v *VWMA) Value() float64 {
	if !v.Ready() {
		return 0
	}
	var pv, vol, sum float64
	for _, b := range v.bars {
		pv += b.Close * b.Volume
		vol += b.Volume
		sum += b.Close
	}
	if vol <= 0 {
		return sum / float64(len(v.bars))
	}
	return pv / vol
}
