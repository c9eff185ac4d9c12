// Package broker defines the narrow execution contract the strategies and
// the backtest driver talk to. The simulated implementation lives in sim.
package broker

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/rustyeddy/bandtrader/risk"
)

// Status is the terminal state of a submitted order.
type Status int

const (
	Submitted Status = iota
	Completed
	Canceled
	Margin
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Canceled:
		return "canceled"
	case Margin:
		return "margin"
	default:
		return "submitted"
	}
}

// Done reports whether the order no longer pends.
func (s Status) Done() bool {
	return s != Submitted
}

// OrderRequest is a market order for the single traded asset.
type OrderRequest struct {
	Side        risk.Side
	Size        float64
	Reason      string
	Diagnostics optional.Option[risk.Diagnostics]
}

// FromOrder converts a proposed risk.Order into a request.
func FromOrder(o risk.Order) OrderRequest {
	return OrderRequest{
		Side:        o.Side,
		Size:        o.Size,
		Reason:      o.Reason,
		Diagnostics: o.Diagnostics,
	}
}

// OrderEvent reports an order reaching a terminal state. Fill fields are
// only meaningful when Status is Completed.
type OrderEvent struct {
	OrderID string
	FillID  string
	TradeID string
	Status  Status
	Time    time.Time
	Side    risk.Side

	Price float64
	// Size is signed: buys positive, sells negative.
	Size       float64
	Value      float64
	Commission float64
	// PnL is the gross realized PnL of this fill.
	PnL float64

	Reason      string
	Diagnostics optional.Option[risk.Diagnostics]
}

// IsBuy reports whether the event is for a buy.
func (e OrderEvent) IsBuy() bool { return e.Side == risk.Buy }

// TradeClosed reports a round trip returning to flat. FillID is the id of
// the fill that closed it.
type TradeClosed struct {
	TradeID string
	FillID  string
	Time    time.Time
	PnL     float64
	PnLComm float64
}

// Position is the authoritative holding.
type Position struct {
	Size     float64
	AvgPrice float64
}

// Flat reports whether there is nothing held.
func (p Position) Flat() bool { return p.Size <= risk.DefaultEpsilon }

// Broker is the execution collaborator.
type Broker interface {
	Cash() float64
	Position() Position
	// Value is cash plus the position marked at the last close.
	Value() float64
	Submit(ctx context.Context, req OrderRequest) (string, error)
}

// Listener receives order and trade notifications.
type Listener interface {
	OnOrder(OrderEvent)
	OnTradeClosed(TradeClosed)
}

// Listeners fans notifications out in registration order.
type Listeners []Listener

func (ls Listeners) OnOrder(ev OrderEvent) {
	for _, l := range ls {
		l.OnOrder(ev)
	}
}

func (ls Listeners) OnTradeClosed(tc TradeClosed) {
	for _, l := range ls {
		l.OnTradeClosed(tc)
	}
}
