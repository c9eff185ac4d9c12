package strategies

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/indicators"
	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/risk"
)

// BandRegression re-sizes toward the band-regression target every bar. With
// a rebalance gate it only re-sizes after price has moved far enough from the
// last fill.
type BandRegression struct {
	orderGate

	name  string
	p     Params
	ema   *indicators.EMA
	atr   indicators.Indicator
	sizer *risk.BandSizer
	gate  *risk.RebalanceGate
}

// NewBandRegression builds the strategy; gated adds the rebalance gate.
func NewBandRegression(p Params, gated bool) (*BandRegression, error) {
	if p.EMAPeriod <= 0 || p.ATRPeriod <= 0 {
		return nil, fmt.Errorf("strategies: band periods must be positive (ema=%d atr=%d)", p.EMAPeriod, p.ATRPeriod)
	}
	if err := p.Band.Validate(); err != nil {
		return nil, err
	}
	switch p.CapitalBase {
	case "":
		p.CapitalBase = CapitalCash
	case CapitalCash, CapitalEquity:
	default:
		return nil, fmt.Errorf("strategies: unknown capital base %q", p.CapitalBase)
	}

	s := &BandRegression{
		name:  "band",
		p:     p,
		ema:   indicators.NewEMA(p.EMAPeriod),
		atr:   indicators.NewATR(p.ATRMode, p.ATRPeriod),
		sizer: risk.NewBandSizer(p.Band),
	}
	if gated {
		s.name = "band-threshold"
		s.gate = risk.NewRebalanceGate(p.RebalanceMultiple)
	}
	return s, nil
}

func (s *BandRegression) Name() string { return s.name }

func (s *BandRegression) Layout() journal.Layout { return journal.Diagnostic }

func (s *BandRegression) Warmup() int {
	return max(s.p.EMAPeriod, s.atr.Warmup())
}

func (s *BandRegression) OnBar(ctx *Context) (*risk.Order, error) {
	bar := ctx.Bar
	s.ema.Update(bar)
	s.atr.Update(bar)

	if ctx.Index+1 < s.Warmup() || !s.atr.Ready() || s.busy() {
		return nil, nil
	}

	ema, atr := s.ema.Value(), s.atr.Value()
	if s.gate != nil && !s.gate.Open(bar.Close, atr) {
		return nil, nil
	}

	capital := ctx.Broker.Cash()
	if s.p.CapitalBase == CapitalEquity {
		capital = ctx.Broker.Value()
	}

	res, err := s.sizer.Target(risk.BandInput{Close: bar.Close, EMA: ema, ATR: atr, Capital: capital})
	if err != nil {
		return nil, fmt.Errorf("strategies: %s at %s: %w", s.name, bar.Time, err)
	}

	current := ctx.Broker.Position().Size
	o, ok := risk.Propose(res.Target, current, s.p.MinOrder)
	if !ok {
		return nil, nil
	}
	o.Reason = string(res.Zone)
	o.Diagnostics = optional.Some(risk.Diagnostics{
		Price:           bar.Close,
		EMA:             ema,
		ATR:             atr,
		Exposure:        res.Exposure,
		TargetPosition:  res.Target,
		CurrentPosition: current,
	})
	s.sent()
	return &o, nil
}

func (s *BandRegression) OnOrder(ev broker.OrderEvent) {
	if ev.Status == broker.Completed && s.gate != nil {
		s.gate.Mark(ev.Price)
	}
	s.settle(ev)
}

func (s *BandRegression) OnTradeClosed(broker.TradeClosed) {}
