// Package market holds the OHLCV bar types consumed by indicators, strategies
// and the backtest driver.
package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnorderedBars is returned when a bar does not strictly follow the
// previous bar in time.
var ErrUnorderedBars = errors.New("market: bars must have strictly increasing timestamps")

// Bar is one OHLCV candle. Bars are immutable once ingested.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (b Bar) String() string {
	return fmt.Sprintf("%s O=%.4f H=%.4f L=%.4f C=%.4f V=%.0f",
		b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// Series is an ordered run of bars for one dataset. Gaps in calendar time are
// allowed; consumers index bars by position, never by calendar stepping.
type Series struct {
	Name string
	bars []Bar
}

// NewSeries builds a series, validating ordering.
func NewSeries(name string, bars ...Bar) (*Series, error) {
	s := &Series{Name: name, bars: make([]Bar, 0, len(bars))}
	for _, b := range bars {
		if err := s.Append(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds b to the end of the series.
func (s *Series) Append(b Bar) error {
	if n := len(s.bars); n > 0 && !b.Time.After(s.bars[n-1].Time) {
		return fmt.Errorf("%w: %s after %s", ErrUnorderedBars,
			b.Time.Format(time.RFC3339), s.bars[n-1].Time.Format(time.RFC3339))
	}
	s.bars = append(s.bars, b)
	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at position i.
func (s *Series) At(i int) Bar { return s.bars[i] }

// Bars returns a copy of the bars.
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// First returns the first bar and false when the series is empty.
func (s *Series) First() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[0], true
}

// Last returns the last bar and false when the series is empty.
func (s *Series) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Between returns a new series holding the bars within [from, to). Zero bounds
// are open.
func (s *Series) Between(from, to time.Time) *Series {
	out := &Series{Name: s.Name}
	for _, b := range s.bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !b.Time.Before(to) {
			continue
		}
		out.bars = append(out.bars, b)
	}
	return out
}
