// Package strategies turns bars into orders using the risk sizers.
package strategies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/indicators"
	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/market"
	"github.com/rustyeddy/bandtrader/risk"
)

// Context is what a strategy sees on each bar.
type Context struct {
	Bar market.Bar
	// Index is the bar's position in the series.
	Index  int
	Broker broker.Broker
}

// Strategy is called once per bar. It may return at most one order; the
// driver submits it to the broker. Order and trade notifications arrive
// through the embedded Listener.
type Strategy interface {
	broker.Listener

	Name() string
	Layout() journal.Layout
	// Warmup is the number of bars needed before the first order.
	Warmup() int
	OnBar(ctx *Context) (*risk.Order, error)
}

// CapitalBase selects what band sizing measures full size against.
type CapitalBase string

const (
	CapitalCash   CapitalBase = "cash"
	CapitalEquity CapitalBase = "equity"
)

// Params configures every registered strategy.
type Params struct {
	Band              risk.BandPolicy
	EMAPeriod         int
	ATRPeriod         int
	ATRMode           indicators.ATRMode
	RebalanceMultiple float64
	CapitalBase       CapitalBase
	// MinOrder suppresses smaller orders.
	MinOrder float64

	Ladder          risk.LadderParams
	VWMAPeriod      int
	LadderATRPeriod int

	// HoldFraction is the share of cash buy-and-hold invests.
	HoldFraction float64
}

// DefaultParams mirrors the default configuration.
func DefaultParams() Params {
	return Params{
		Band:              risk.DefaultBandPolicy(),
		EMAPeriod:         200,
		ATRPeriod:         14,
		ATRMode:           indicators.ATRRange,
		RebalanceMultiple: risk.DefaultThreshold,
		CapitalBase:       CapitalCash,
		MinOrder:          risk.DefaultEpsilon,
		Ladder: risk.LadderParams{
			K:          2,
			BaseAmount: 1000,
			Multiplier: 2,
			MaxAdds:    3,
			Stop:       risk.StopFull,
		},
		VWMAPeriod:      20,
		LadderATRPeriod: 14,
		HoldFraction:    0.99,
	}
}

// Factory builds a fresh strategy. Every run gets its own instance.
type Factory func(p Params) (Strategy, error)

var registry = map[string]Factory{}

// Register adds f under name, replacing any previous factory.
func Register(name string, f Factory) {
	registry[normalize(name)] = f
}

// New builds the strategy registered under name.
func New(name string, p Params) (Strategy, error) {
	f, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("strategies: unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p)
}

// Names lists the registered strategies in order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func init() {
	Register("band", func(p Params) (Strategy, error) { return NewBandRegression(p, false) })
	Register("band-threshold", func(p Params) (Strategy, error) { return NewBandRegression(p, true) })
	Register("dca", func(p Params) (Strategy, error) { return NewDCALadder(p) })
	Register("buy-hold", func(p Params) (Strategy, error) { return NewBuyAndHold(p) })
}

// orderGate keeps at most one order in flight.
type orderGate struct {
	pending bool
}

func (g *orderGate) busy() bool { return g.pending }

func (g *orderGate) sent() { g.pending = true }

func (g *orderGate) settle(ev broker.OrderEvent) {
	if ev.Status.Done() {
		g.pending = false
	}
}
