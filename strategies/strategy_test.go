package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/journal"
	"github.com/rustyeddy/bandtrader/market"
	"github.com/rustyeddy/bandtrader/risk"
)

type fakeBroker struct {
	cash  float64
	value float64
	pos   broker.Position
}

func (b *fakeBroker) Cash() float64             { return b.cash }
func (b *fakeBroker) Position() broker.Position { return b.pos }
func (b *fakeBroker) Value() float64            { return b.value }
func (b *fakeBroker) Submit(context.Context, broker.OrderRequest) (string, error) {
	return "order", nil
}

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ctxAt(b broker.Broker, i int, low, close float64) *Context {
	return &Context{
		Index:  i,
		Broker: b,
		Bar: market.Bar{
			Time:   day0.AddDate(0, 0, i),
			Open:   close,
			High:   close,
			Low:    low,
			Close:  close,
			Volume: 1,
		},
	}
}

func bandParams() Params {
	p := DefaultParams()
	p.EMAPeriod = 3
	p.ATRPeriod = 2
	p.CapitalBase = CapitalEquity
	return p
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"band", "band-threshold", "buy-hold", "dca"}, Names())

	for _, name := range Names() {
		s, err := New(" "+name+" ", DefaultParams())
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}

	_, err := New("martingale", DefaultParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "band-threshold")
}

func TestBandRegressionWarmupAndFirstOrder(t *testing.T) {
	t.Parallel()

	s, err := NewBandRegression(bandParams(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Warmup())
	assert.Equal(t, journal.Diagnostic, s.Layout())

	b := &fakeBroker{cash: 10000, value: 10000}
	for i := 0; i < 2; i++ {
		o, err := s.OnBar(ctxAt(b, i, 100, 100))
		require.NoError(t, err)
		assert.Nil(t, o, "warming up at bar %d", i)
	}

	o, err := s.OnBar(ctxAt(b, 2, 100, 100))
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, risk.Buy, o.Side)
	assert.InDelta(t, 100.0, o.Size, 1e-9)
	assert.Equal(t, string(risk.ZoneCollapsed), o.Reason)

	d, err := o.Diagnostics.Take()
	require.NoError(t, err)
	assert.Equal(t, 100.0, d.Price)
	assert.Equal(t, 100.0, d.EMA)
	assert.Zero(t, d.ATR)
	assert.Equal(t, 1.0, d.Exposure)
	assert.InDelta(t, 100.0, d.TargetPosition, 1e-9)
	assert.Zero(t, d.CurrentPosition)

	o, err = s.OnBar(ctxAt(b, 3, 90, 90))
	require.NoError(t, err)
	assert.Nil(t, o, "one order in flight")

	s.OnOrder(broker.OrderEvent{Status: broker.Margin})
	o, err = s.OnBar(ctxAt(b, 4, 90, 90))
	require.NoError(t, err)
	assert.NotNil(t, o, "rejection clears the pending order")
}

func TestBandRegressionNoOpAtTarget(t *testing.T) {
	t.Parallel()

	s, err := NewBandRegression(bandParams(), false)
	require.NoError(t, err)

	b := &fakeBroker{cash: 0, value: 10000, pos: broker.Position{Size: 100, AvgPrice: 100}}
	for i := 0; i < 5; i++ {
		o, err := s.OnBar(ctxAt(b, i, 100, 100))
		require.NoError(t, err)
		assert.Nil(t, o)
	}
}

func TestBandRegressionCashBase(t *testing.T) {
	t.Parallel()

	p := bandParams()
	p.CapitalBase = CapitalCash
	s, err := NewBandRegression(p, false)
	require.NoError(t, err)

	b := &fakeBroker{cash: 5000, value: 10000, pos: broker.Position{Size: 100, AvgPrice: 100}}
	var o *risk.Order
	for i := 0; i < 3; i++ {
		o, err = s.OnBar(ctxAt(b, i, 100, 100))
		require.NoError(t, err)
	}
	require.NotNil(t, o)
	assert.Equal(t, risk.Sell, o.Side)
	assert.InDelta(t, 50.0, o.Size, 1e-9)
}

func TestBandThresholdGate(t *testing.T) {
	t.Parallel()

	plain, err := NewBandRegression(bandParams(), false)
	require.NoError(t, err)
	gated, err := NewBandRegression(bandParams(), true)
	require.NoError(t, err)
	assert.Equal(t, "band-threshold", gated.Name())

	b := &fakeBroker{cash: 10000, value: 10000}
	for _, s := range []*BandRegression{plain, gated} {
		for i := 0; i < 3; i++ {
			_, err := s.OnBar(ctxAt(b, i, 100, 100))
			require.NoError(t, err)
		}
		s.OnOrder(broker.OrderEvent{Status: broker.Completed, Price: 100, Side: risk.Buy, Size: 50})
	}

	b.pos = broker.Position{Size: 50, AvgPrice: 100}

	o, err := plain.OnBar(ctxAt(b, 3, 100.5, 100.5))
	require.NoError(t, err)
	assert.NotNil(t, o)

	o, err = gated.OnBar(ctxAt(b, 3, 100.5, 100.5))
	require.NoError(t, err)
	assert.Nil(t, o, "price has not moved two ATRs from the last fill")
}

func TestBandRegressionRejectsBadParams(t *testing.T) {
	t.Parallel()

	p := bandParams()
	p.EMAPeriod = 0
	_, err := NewBandRegression(p, false)
	assert.Error(t, err)

	p = bandParams()
	p.CapitalBase = "margin"
	_, err = NewBandRegression(p, false)
	assert.Error(t, err)

	p = bandParams()
	p.Band.Multiplier = -1
	_, err = NewBandRegression(p, false)
	assert.Error(t, err)
}

func TestBandRegressionInvalidPrice(t *testing.T) {
	t.Parallel()

	p := bandParams()
	p.EMAPeriod = 1
	p.ATRPeriod = 1
	s, err := NewBandRegression(p, false)
	require.NoError(t, err)

	_, err = s.OnBar(ctxAt(&fakeBroker{cash: 1}, 0, 0, 0))
	assert.ErrorIs(t, err, risk.ErrInvalidPrice)
}

func TestDCALadderEntryAndApply(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.VWMAPeriod = 2
	p.LadderATRPeriod = 2
	p.Ladder = risk.LadderParams{K: 1, BaseAmount: 1000, Multiplier: 2, MaxAdds: 1}

	s, err := NewDCALadder(p)
	require.NoError(t, err)
	assert.Equal(t, journal.Plain, s.Layout())
	assert.Equal(t, 2, s.Warmup())

	b := &fakeBroker{cash: 10000, value: 10000}
	o, err := s.OnBar(ctxAt(b, 0, 100, 100))
	require.NoError(t, err)
	assert.Nil(t, o)
	o, err = s.OnBar(ctxAt(b, 1, 100, 100))
	require.NoError(t, err)
	assert.Nil(t, o, "zero atr holds")

	// vwma 98, atr 4, lower channel 94
	o, err = s.OnBar(ctxAt(b, 2, 90, 96))
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, risk.Buy, o.Side)
	assert.Equal(t, "enter", o.Reason)
	assert.InDelta(t, 1000.0/96, o.Size, 1e-9)
	assert.True(t, o.Diagnostics.IsNone())

	s.OnOrder(broker.OrderEvent{Status: broker.Completed, Price: 96, Side: risk.Buy})
	assert.Equal(t, 0, s.Adds())
	assert.False(t, s.busy())

	s.OnTradeClosed(broker.TradeClosed{})
	assert.Equal(t, 0, s.Adds())
}

func TestBuyAndHold(t *testing.T) {
	t.Parallel()

	s, err := NewBuyAndHold(Params{})
	require.NoError(t, err)

	b := &fakeBroker{cash: 10000, value: 10000}
	o, err := s.OnBar(ctxAt(b, 0, 100, 100))
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.InDelta(t, 99.0, o.Size, 1e-9)

	o, err = s.OnBar(ctxAt(b, 1, 100, 100))
	require.NoError(t, err)
	assert.Nil(t, o)

	s.OnOrder(broker.OrderEvent{Status: broker.Margin})
	o, err = s.OnBar(ctxAt(b, 2, 100, 100))
	require.NoError(t, err)
	require.NotNil(t, o, "retries after a rejection")

	s.OnOrder(broker.OrderEvent{Status: broker.Completed, Price: 100})
	for i := 3; i < 6; i++ {
		o, err = s.OnBar(ctxAt(b, i, 100, 100))
		require.NoError(t, err)
		assert.Nil(t, o)
	}

	_, err = NewBuyAndHold(Params{HoldFraction: 1.5})
	assert.Error(t, err)
}
