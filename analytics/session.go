package analytics

import (
	"time"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/journal"
)

// Config holds the Sharpe ratio parameters.
type Config struct {
	// RiskFree is an annual rate.
	RiskFree       float64
	PeriodsPerYear float64
}

// Stats is the end-of-run summary.
type Stats struct {
	Start      time.Time
	End        time.Time
	StartValue float64
	EndValue   float64
	Samples    int

	TotalReturn  float64
	AnnualReturn float64
	MaxDrawdown  float64
	Sharpe       float64
	MAR          float64

	Fills           int
	Buys            int
	Sells           int
	Rejected        int
	Trades          int
	Wins            int
	Losses          int
	RealizedPnL     float64
	RealizedPnLComm float64
}

// Session accumulates one run's equity curve and trade outcomes. A session
// belongs to exactly one run. Queries made before Stop return zero values.
type Session struct {
	cfg Config

	started  bool
	stopped  bool
	start    time.Time
	end      time.Time
	startVal float64
	endVal   float64

	times  []time.Time
	values []float64
	dd     DrawdownTracker

	fills, buys, sells, rejected int
	trades, wins, losses         int
	realized, realizedComm       float64
}

var _ broker.Listener = (*Session)(nil)

// NewSession returns an unstarted session.
func NewSession(cfg Config) *Session {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}
	return &Session{cfg: cfg}
}

// Start records the opening value as the first equity sample.
func (s *Session) Start(t time.Time, value float64) {
	s.started = true
	s.start = t
	s.startVal = value
	s.add(t, value)
}

// OnEquity appends an equity sample. A sample sharing the previous sample's
// time replaces it and the drawdown is recomputed over the corrected curve, so
// MaxDrawdown may go down on a replacement.
func (s *Session) OnEquity(snap journal.EquitySnapshot) {
	if !s.started {
		s.Start(snap.Time, snap.Value)
		return
	}
	s.add(snap.Time, snap.Value)
}

func (s *Session) add(t time.Time, v float64) {
	if n := len(s.times); n > 0 && s.times[n-1].Equal(t) {
		s.values[n-1] = v
		s.dd = DrawdownTracker{}
		for _, x := range s.values {
			s.dd.Add(x)
		}
		return
	}
	s.times = append(s.times, t)
	s.values = append(s.values, v)
	s.dd.Add(v)
}

// OnOrder counts fills and rejections.
func (s *Session) OnOrder(ev broker.OrderEvent) {
	switch ev.Status {
	case broker.Completed:
		s.fills++
		if ev.IsBuy() {
			s.buys++
		} else {
			s.sells++
		}
	case broker.Margin:
		s.rejected++
	}
}

// OnTradeClosed records a realized round trip.
func (s *Session) OnTradeClosed(tc broker.TradeClosed) {
	s.trades++
	s.realized += tc.PnL
	s.realizedComm += tc.PnLComm
	if tc.PnLComm > 0 {
		s.wins++
	} else {
		s.losses++
	}
}

// Stop records the closing value and freezes the curve.
func (s *Session) Stop(t time.Time, value float64) {
	if !s.started {
		s.Start(t, value)
	} else {
		s.add(t, value)
	}
	s.end = t
	s.endVal = value
	s.stopped = true
}

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() bool { return s.stopped }

// Values returns a copy of the equity curve.
func (s *Session) Values() []float64 {
	return append([]float64(nil), s.values...)
}

// TotalReturn returns ErrZeroCapital when the run started with nothing.
func (s *Session) TotalReturn() (float64, error) {
	if !s.stopped {
		return 0, nil
	}
	return TotalReturn(s.startVal, s.endVal)
}

func (s *Session) AnnualReturn() (float64, error) {
	total, err := s.TotalReturn()
	if err != nil || !s.stopped {
		return 0, err
	}
	return AnnualReturn(total, Days(s.start, s.end)), nil
}

// MaxDrawdown is available mid-run; it reflects the samples seen so far.
// It never decreases while samples are appended; replacing the last sample
// (as Stop does for an end-of-run liquidation on the final bar) can lower it.
func (s *Session) MaxDrawdown() float64 {
	return s.dd.Max()
}

func (s *Session) Sharpe() float64 {
	if !s.stopped {
		return 0
	}
	return SharpeRatio(s.values, s.cfg.RiskFree, s.cfg.PeriodsPerYear)
}

// Stats aggregates everything. The returned error is ErrZeroCapital when
// returns cannot be computed; the remaining fields are still filled in.
func (s *Session) Stats() (Stats, error) {
	st := Stats{
		Start:           s.start,
		End:             s.end,
		StartValue:      s.startVal,
		EndValue:        s.endVal,
		Samples:         len(s.values),
		MaxDrawdown:     s.MaxDrawdown(),
		Sharpe:          s.Sharpe(),
		Fills:           s.fills,
		Buys:            s.buys,
		Sells:           s.sells,
		Rejected:        s.rejected,
		Trades:          s.trades,
		Wins:            s.wins,
		Losses:          s.losses,
		RealizedPnL:     s.realized,
		RealizedPnLComm: s.realizedComm,
	}
	annual, err := s.AnnualReturn()
	if err != nil {
		return st, err
	}
	st.TotalReturn, _ = s.TotalReturn()
	st.AnnualReturn = annual
	st.MAR = MAR(annual, st.MaxDrawdown)
	return st, nil
}
