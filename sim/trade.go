package sim

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one round trip: opened by the first buy from flat and closed by
// the sell that returns the position to flat.
type Trade struct {
	ID       string
	OpenTime time.Time
	Open     bool

	// Realized
	CloseTime  time.Time
	CloseFill  string
	PnL        decimal.Decimal
	Commission decimal.Decimal
}

// PnLComm returns the realized PnL net of commission.
func (t *Trade) PnLComm() decimal.Decimal {
	return t.PnL.Sub(t.Commission)
}
