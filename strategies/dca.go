package strategies

import (
	"fmt"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/indicators"
	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/risk"
)

// DCALadder buys breakouts below a VWMA channel and scales in on further
// weakness, exiting on take-profit or a stop once the ladder is full.
type DCALadder struct {
	orderGate

	p        Params
	vwma     *indicators.VWMA
	atr      indicators.Indicator
	ladder   *risk.Ladder
	decision risk.LadderDecision
}

func NewDCALadder(p Params) (*DCALadder, error) {
	if p.VWMAPeriod <= 0 || p.LadderATRPeriod <= 0 {
		return nil, fmt.Errorf("strategies: dca periods must be positive (vwma=%d atr=%d)", p.VWMAPeriod, p.LadderATRPeriod)
	}
	if err := p.Ladder.Validate(); err != nil {
		return nil, err
	}
	return &DCALadder{
		p:      p,
		vwma:   indicators.NewVWMA(p.VWMAPeriod),
		atr:    indicators.NewATR(p.ATRMode, p.LadderATRPeriod),
		ladder: risk.NewLadder(p.Ladder),
	}, nil
}

func (s *DCALadder) Name() string { return "dca" }

func (s *DCALadder) Layout() journal.Layout { return journal.Plain }

func (s *DCALadder) Warmup() int {
	return max(s.vwma.Warmup(), s.atr.Warmup())
}

// Adds returns the number of completed adds since entry.
func (s *DCALadder) Adds() int { return s.ladder.Adds() }

func (s *DCALadder) OnBar(ctx *Context) (*risk.Order, error) {
	bar := ctx.Bar
	s.vwma.Update(bar)
	s.atr.Update(bar)

	if !s.vwma.Ready() || !s.atr.Ready() || s.busy() {
		return nil, nil
	}

	pos := ctx.Broker.Position()
	d, err := s.ladder.Evaluate(risk.LadderInput{
		Bar:      bar,
		VWMA:     s.vwma.Value(),
		ATR:      s.atr.Value(),
		Position: pos.Size,
		AvgPrice: pos.AvgPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("strategies: dca at %s: %w", bar.Time, err)
	}
	if d.Action == risk.Hold {
		return nil, nil
	}

	o, ok := risk.Propose(d.TargetSize, pos.Size, s.p.MinOrder)
	if !ok {
		return nil, nil
	}
	o.Reason = d.Action.String()
	s.decision = d
	s.sent()
	return &o, nil
}

func (s *DCALadder) OnOrder(ev broker.OrderEvent) {
	if ev.Status == broker.Completed {
		s.ladder.Apply(s.decision, ev.Price)
	}
	if ev.Status.Done() {
		s.decision = risk.LadderDecision{}
	}
	s.settle(ev)
}

// OnTradeClosed resets the ladder when the position went flat for any
// reason, including liquidation.
func (s *DCALadder) OnTradeClosed(broker.TradeClosed) {
	s.ladder.Reset()
}
