package strategies

import (
	"fmt"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/risk"
)

// BuyAndHold invests HoldFraction of cash on the first bar and never sells.
// It is the benchmark for excess returns.
type BuyAndHold struct {
	orderGate

	fraction float64
	bought   bool
}

func NewBuyAndHold(p Params) (*BuyAndHold, error) {
	f := p.HoldFraction
	if f == 0 {
		f = DefaultParams().HoldFraction
	}
	if f < 0 || f > 1 {
		return nil, fmt.Errorf("strategies: hold fraction must be in (0,1], got %g", f)
	}
	return &BuyAndHold{fraction: f}, nil
}

func (s *BuyAndHold) Name() string { return "buy-hold" }

func (s *BuyAndHold) Layout() journal.Layout { return journal.Plain }

func (s *BuyAndHold) Warmup() int { return 1 }

func (s *BuyAndHold) OnBar(ctx *Context) (*risk.Order, error) {
	if s.bought || s.busy() {
		return nil, nil
	}
	if ctx.Bar.Close <= 0 {
		return nil, fmt.Errorf("strategies: buy-hold at %s: %w", ctx.Bar.Time, risk.ErrInvalidPrice)
	}
	size := ctx.Broker.Cash() * s.fraction / ctx.Bar.Close
	o, ok := risk.Propose(size, 0, 0)
	if !ok {
		return nil, nil
	}
	o.Reason = "buy-hold"
	s.sent()
	return &o, nil
}

func (s *BuyAndHold) OnOrder(ev broker.OrderEvent) {
	if ev.Status == broker.Completed {
		s.bought = true
	}
	s.settle(ev)
}

func (s *BuyAndHold) OnTradeClosed(broker.TradeClosed) {}
