// Package journal records what a backtest did: the per-run fill ledger, its
// CSV exports, equity curves and an optional SQLite run store.
package journal

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/risk"
)

// Diagnostics is the sizing snapshot attached to a fill.
type Diagnostics = risk.Diagnostics

// Fill is one ledger record. Size is signed: buys positive, sells negative.
type Fill struct {
	ID         string
	OrderID    string
	TradeID    string
	Time       time.Time
	IsBuy      bool
	Price      float64
	Size       float64
	Value      float64
	PnL        float64
	Commission float64
	Closed     bool
	Reason     string

	Diagnostics optional.Option[Diagnostics]
}

// FillFromEvent builds a ledger record from a completed order event.
func FillFromEvent(ev broker.OrderEvent) Fill {
	return Fill{
		ID:          ev.FillID,
		OrderID:     ev.OrderID,
		TradeID:     ev.TradeID,
		Time:        ev.Time,
		IsBuy:       ev.IsBuy(),
		Price:       ev.Price,
		Size:        ev.Size,
		Value:       ev.Value,
		PnL:         ev.PnL,
		Commission:  ev.Commission,
		Reason:      ev.Reason,
		Diagnostics: ev.Diagnostics,
	}
}

// EquitySnapshot is one point of a run's equity curve.
type EquitySnapshot struct {
	Time     time.Time
	Cash     float64
	Position float64
	Value    float64
}
