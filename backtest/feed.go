package backtest

import (
	"github.com/rustyeddy/bandtrader/market"
)

// BarFeed yields bars one at a time in time order.
// Implementations return (ok=false, err=nil) at the end of the data.
type BarFeed interface {
	Next() (b market.Bar, ok bool, err error)
	Close() error
}

// SeriesFeed replays an in-memory series.
type SeriesFeed struct {
	s *market.Series
	i int
}

var _ BarFeed = (*SeriesFeed)(nil)

func NewSeriesFeed(s *market.Series) *SeriesFeed {
	return &SeriesFeed{s: s}
}

func (f *SeriesFeed) Next() (market.Bar, bool, error) {
	if f.s == nil || f.i >= f.s.Len() {
		return market.Bar{}, false, nil
	}
	b := f.s.At(f.i)
	f.i++
	return b, true, nil
}

func (f *SeriesFeed) Close() error { return nil }
