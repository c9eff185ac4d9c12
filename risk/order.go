package risk

import (
	"math"

	"github.com/moznion/go-optional"
)

// Side is the direction of an order.
type Side int8

const (
	Buy  Side = +1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// DefaultEpsilon is the smallest order size worth sending.
const DefaultEpsilon = 1e-6

// Diagnostics is the sizing snapshot captured when an order is proposed.
type Diagnostics struct {
	// Price is the close the decision was made on.
	Price float64
	EMA   float64
	ATR   float64
	// Exposure is the target as a multiple of full size.
	Exposure        float64
	TargetPosition  float64
	CurrentPosition float64
}

// Order is a proposed trade. It is ephemeral and carries the diagnostics
// that produced it.
type Order struct {
	Side        Side
	Size        float64
	Reason      string
	Diagnostics optional.Option[Diagnostics]
}

// Signed returns the size with buys positive and sells negative.
func (o Order) Signed() float64 {
	return float64(o.Side) * o.Size
}

// Propose diffs target against current and returns the order that moves the
// position there. Deltas smaller than epsilon are suppressed.
func Propose(target, current, epsilon float64) (Order, bool) {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	delta := target - current
	if math.IsNaN(delta) || math.Abs(delta) < epsilon {
		return Order{}, false
	}
	if delta > 0 {
		return Order{Side: Buy, Size: delta}, true
	}
	return Order{Side: Sell, Size: -delta}, true
}
