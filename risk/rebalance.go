package risk

import "math"

// RebalanceGate suspends re-sizing until price has moved at least
// Multiple*ATR away from the price of the last completed trade.
type RebalanceGate struct {
	Multiple float64

	lastPrice float64
	traded    bool
}

// NewRebalanceGate returns a gate; multiple <= 0 uses DefaultThreshold.
func NewRebalanceGate(multiple float64) *RebalanceGate {
	if multiple <= 0 {
		multiple = DefaultThreshold
	}
	return &RebalanceGate{Multiple: multiple}
}

// Open reports whether the sizer should be consulted for this bar. It is
// always open before the first trade.
func (g *RebalanceGate) Open(close, atr float64) bool {
	if !g.traded {
		return true
	}
	return math.Abs(close-g.lastPrice) >= g.Multiple*atr
}

// Mark records the execution price of a completed trade.
func (g *RebalanceGate) Mark(price float64) {
	g.lastPrice = price
	g.traded = true
}

// LastPrice returns the last marked price and whether one exists.
func (g *RebalanceGate) LastPrice() (float64, bool) {
	return g.lastPrice, g.traded
}

// Reset forgets the last trade.
func (g *RebalanceGate) Reset() {
	g.lastPrice = 0
	g.traded = false
}
