// Package sim is the simulated execution collaborator used by backtests.
// Orders submitted while a bar is processed fill at the next bar's open.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/logger"
	"github.com/rustyeddy/bandtrader/market"
	"github.com/rustyeddy/bandtrader/pkg/id"
	"github.com/rustyeddy/bandtrader/risk"
)

var (
	// ErrNoBar is returned when an operation needs a price and no bar has
	// been processed yet.
	ErrNoBar = errors.New("sim: no bar processed")
	// ErrInvalidOrder is returned by Submit for malformed requests.
	ErrInvalidOrder = errors.New("sim: invalid order")
)

// Config holds the account and cost model.
type Config struct {
	Cash float64
	// Commission is a fraction of traded value.
	Commission float64
	// Slippage is a fraction of price applied against the trader.
	Slippage float64
	// Leverage bounds buying power at cash + equity*(Leverage-1).
	// Values below 1 mean no leverage.
	Leverage float64
}

// Validate checks the cost model.
func (c Config) Validate() error {
	switch {
	case math.IsNaN(c.Cash) || math.IsInf(c.Cash, 0):
		return fmt.Errorf("sim: cash must be finite, got %g", c.Cash)
	case c.Commission < 0 || c.Commission >= 1:
		return fmt.Errorf("sim: commission must be in [0,1), got %g", c.Commission)
	case c.Slippage < 0 || c.Slippage >= 1:
		return fmt.Errorf("sim: slippage must be in [0,1), got %g", c.Slippage)
	}
	return nil
}

type pendingOrder struct {
	id  string
	req broker.OrderRequest
}

// notification is one queued listener callback; exactly one field is set.
type notification struct {
	order  *broker.OrderEvent
	closed *broker.TradeClosed
}

// Engine is a single-asset, long-only simulated broker.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	log *logger.Logger

	cash    decimal.Decimal
	pos     broker.Position
	last    market.Bar
	hasBar  bool
	pending []pendingOrder

	trade     *Trade
	trades    []*Trade
	listeners broker.Listeners
}

var _ broker.Broker = (*Engine)(nil)

// NewEngine returns an engine holding cfg.Cash and no position.
func NewEngine(cfg Config, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	return &Engine{
		cfg:  cfg,
		log:  log.Named("sim"),
		cash: decimal.NewFromFloat(cfg.Cash),
	}, nil
}

// Subscribe registers l for order and trade notifications. Listeners are
// called outside the engine lock, in registration order.
func (e *Engine) Subscribe(l broker.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash.InexactFloat64()
}

func (e *Engine) Position() broker.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// Value returns cash plus the position marked at the last processed close.
func (e *Engine) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valueLocked(e.last.Close)
}

// Pending returns the number of orders waiting for the next bar.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Trades returns a copy of every round trip opened so far.
func (e *Engine) Trades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, len(e.trades))
	for i, t := range e.trades {
		out[i] = *t
	}
	return out
}

// Submit queues a market order for the next bar.
func (e *Engine) Submit(ctx context.Context, req broker.OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Side != risk.Buy && req.Side != risk.Sell {
		return "", fmt.Errorf("%w: side %d", ErrInvalidOrder, req.Side)
	}
	if !(req.Size > 0) || math.IsInf(req.Size, 0) {
		return "", fmt.Errorf("%w: size %g", ErrInvalidOrder, req.Size)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	oid := id.NewAt(e.last.Time)
	e.pending = append(e.pending, pendingOrder{id: oid, req: req})
	e.log.Debug("order submitted",
		zap.String("order", oid),
		zap.Stringer("side", req.Side),
		zap.Float64("size", req.Size),
		zap.String("reason", req.Reason))
	return oid, nil
}

// ProcessBar fills pending orders at the bar's open and then marks the
// portfolio to its close.
func (e *Engine) ProcessBar(bar market.Bar) error {
	if !(bar.Open > 0) || !(bar.Close > 0) || math.IsInf(bar.Open, 0) || math.IsInf(bar.Close, 0) {
		return fmt.Errorf("%w: bar %s open=%g close=%g", risk.ErrInvalidPrice, bar.Time, bar.Open, bar.Close)
	}

	e.mu.Lock()
	if e.hasBar && !bar.Time.After(e.last.Time) {
		e.mu.Unlock()
		return fmt.Errorf("sim: %w: %s after %s", market.ErrUnorderedBars, bar.Time, e.last.Time)
	}

	var notes []notification
	for _, po := range e.pending {
		notes = append(notes, e.fillLocked(po, bar.Time, bar.Open)...)
	}
	e.pending = e.pending[:0]
	e.last = bar
	e.hasBar = true
	listeners := e.listeners
	e.mu.Unlock()

	dispatch(listeners, notes)
	return nil
}

// Liquidate cancels pending orders and sells the whole position at the last
// processed close.
func (e *Engine) Liquidate() error {
	e.mu.Lock()
	if !e.hasBar {
		e.mu.Unlock()
		return ErrNoBar
	}

	var notes []notification
	for _, po := range e.pending {
		notes = append(notes, e.cancelLocked(po, e.last.Time, "liquidate"))
	}
	e.pending = e.pending[:0]

	if !e.pos.Flat() {
		po := pendingOrder{
			id:  id.NewAt(e.last.Time),
			req: broker.OrderRequest{Side: risk.Sell, Size: e.pos.Size, Reason: "liquidate"},
		}
		notes = append(notes, e.fillLocked(po, e.last.Time, e.last.Close)...)
	}
	listeners := e.listeners
	e.mu.Unlock()

	dispatch(listeners, notes)
	return nil
}

func dispatch(ls broker.Listeners, notes []notification) {
	for _, n := range notes {
		switch {
		case n.order != nil:
			ls.OnOrder(*n.order)
		case n.closed != nil:
			ls.OnTradeClosed(*n.closed)
		}
	}
}

func (e *Engine) valueLocked(mark float64) float64 {
	return e.cash.Add(decimal.NewFromFloat(e.pos.Size * mark)).InexactFloat64()
}

func (e *Engine) cancelLocked(po pendingOrder, t time.Time, why string) notification {
	e.log.Debug("order canceled", zap.String("order", po.id), zap.String("why", why))
	return notification{order: &broker.OrderEvent{
		OrderID:     po.id,
		Status:      broker.Canceled,
		Time:        t,
		Side:        po.req.Side,
		Reason:      po.req.Reason,
		Diagnostics: po.req.Diagnostics,
	}}
}

func (e *Engine) fillLocked(po pendingOrder, t time.Time, open float64) []notification {
	if po.req.Side == risk.Buy {
		return e.buyLocked(po, t, open)
	}
	return e.sellLocked(po, t, open)
}

func (e *Engine) buyLocked(po pendingOrder, t time.Time, open float64) []notification {
	price := open * (1 + e.cfg.Slippage)
	size := po.req.Size

	value := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(size))
	comm := value.Mul(decimal.NewFromFloat(e.cfg.Commission))
	cost := value.Add(comm)

	equity := decimal.NewFromFloat(e.valueLocked(open))
	power := e.cash.Add(equity.Mul(decimal.NewFromFloat(e.cfg.Leverage - 1)))
	if cost.GreaterThan(power) {
		e.log.Debug("order rejected for margin",
			zap.String("order", po.id),
			zap.String("cost", cost.StringFixed(2)),
			zap.String("buying_power", power.StringFixed(2)))
		return []notification{{order: &broker.OrderEvent{
			OrderID:     po.id,
			Status:      broker.Margin,
			Time:        t,
			Side:        risk.Buy,
			Reason:      po.req.Reason,
			Diagnostics: po.req.Diagnostics,
		}}}
	}

	if e.trade == nil {
		e.trade = &Trade{ID: id.NewAt(t), OpenTime: t, Open: true}
		e.trades = append(e.trades, e.trade)
	}
	e.trade.Commission = e.trade.Commission.Add(comm)

	held := e.pos.Size
	e.pos.AvgPrice = (held*e.pos.AvgPrice + size*price) / (held + size)
	e.pos.Size = held + size
	e.cash = e.cash.Sub(cost)

	ev := &broker.OrderEvent{
		OrderID:     po.id,
		FillID:      id.NewAt(t),
		TradeID:     e.trade.ID,
		Status:      broker.Completed,
		Time:        t,
		Side:        risk.Buy,
		Price:       price,
		Size:        size,
		Value:       value.InexactFloat64(),
		Commission:  comm.InexactFloat64(),
		Reason:      po.req.Reason,
		Diagnostics: po.req.Diagnostics,
	}
	e.logFill(ev)
	return []notification{{order: ev}}
}

func (e *Engine) sellLocked(po pendingOrder, t time.Time, open float64) []notification {
	if e.pos.Flat() || e.trade == nil {
		return []notification{e.cancelLocked(po, t, "nothing to sell")}
	}

	price := open * (1 - e.cfg.Slippage)
	size := po.req.Size
	if size >= e.pos.Size-risk.DefaultEpsilon {
		size = e.pos.Size
	}

	dPrice := decimal.NewFromFloat(price)
	dSize := decimal.NewFromFloat(size)
	value := dPrice.Mul(dSize)
	comm := value.Mul(decimal.NewFromFloat(e.cfg.Commission))
	pnl := dPrice.Sub(decimal.NewFromFloat(e.pos.AvgPrice)).Mul(dSize)

	e.cash = e.cash.Add(value).Sub(comm)
	e.pos.Size -= size
	e.trade.PnL = e.trade.PnL.Add(pnl)
	e.trade.Commission = e.trade.Commission.Add(comm)

	ev := &broker.OrderEvent{
		OrderID:     po.id,
		FillID:      id.NewAt(t),
		TradeID:     e.trade.ID,
		Status:      broker.Completed,
		Time:        t,
		Side:        risk.Sell,
		Price:       price,
		Size:        -size,
		Value:       value.InexactFloat64(),
		Commission:  comm.InexactFloat64(),
		PnL:         pnl.InexactFloat64(),
		Reason:      po.req.Reason,
		Diagnostics: po.req.Diagnostics,
	}
	e.logFill(ev)
	notes := []notification{{order: ev}}

	if e.pos.Flat() {
		e.pos = broker.Position{}
		tr := e.trade
		tr.Open = false
		tr.CloseTime = t
		tr.CloseFill = ev.FillID
		e.trade = nil

		e.log.Debug("trade closed",
			zap.String("trade", tr.ID),
			zap.String("pnl", tr.PnL.StringFixed(2)),
			zap.String("pnl_comm", tr.PnLComm().StringFixed(2)))
		notes = append(notes, notification{closed: &broker.TradeClosed{
			TradeID: tr.ID,
			FillID:  ev.FillID,
			Time:    t,
			PnL:     tr.PnL.InexactFloat64(),
			PnLComm: tr.PnLComm().InexactFloat64(),
		}})
	}
	return notes
}

func (e *Engine) logFill(ev *broker.OrderEvent) {
	e.log.Debug("order filled",
		zap.String("order", ev.OrderID),
		zap.String("fill", ev.FillID),
		zap.Stringer("side", ev.Side),
		zap.Float64("price", ev.Price),
		zap.Float64("size", ev.Size),
		zap.Float64("commission", ev.Commission))
}
