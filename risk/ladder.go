package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/bandtrader/market"
)

// LadderParams configures the volatility ladder (DCA) sizer.
type LadderParams struct {
	// K scales ATR into the entry/exit channel and the add spacing.
	K float64
	// BaseAmount is the cash committed by the first clip.
	BaseAmount float64
	// Multiplier scales each add relative to the previous clip.
	Multiplier float64
	// MaxAdds caps the number of adds after the entry.
	MaxAdds int
	// Stop selects when the stop-loss is armed. Empty means StopFull.
	Stop StopMode
}

// StopMode decides when the ladder's stop-loss may fire.
type StopMode string

const (
	// StopFull arms the stop only once every add has been used.
	StopFull StopMode = "full"
	// StopAlways arms the stop at any add count; a due add still wins.
	StopAlways StopMode = "always"
)

// ParseStopMode parses a stop mode name.
func ParseStopMode(s string) (StopMode, error) {
	switch StopMode(strings.ToLower(strings.TrimSpace(s))) {
	case StopFull, "":
		return StopFull, nil
	case StopAlways:
		return StopAlways, nil
	default:
		return "", fmt.Errorf("risk: unknown ladder stop mode %q (full, always)", s)
	}
}

// Validate checks the parameters.
func (p LadderParams) Validate() error {
	switch {
	case p.K <= 0:
		return fmt.Errorf("risk: ladder k must be positive, got %g", p.K)
	case p.BaseAmount <= 0:
		return fmt.Errorf("risk: ladder base amount must be positive, got %g", p.BaseAmount)
	case p.Multiplier <= 0:
		return fmt.Errorf("risk: ladder multiplier must be positive, got %g", p.Multiplier)
	case p.MaxAdds < 0:
		return fmt.Errorf("risk: ladder max adds must be >= 0, got %d", p.MaxAdds)
	}
	_, err := ParseStopMode(string(p.Stop))
	return err
}

// LadderAction is what the ladder wants to do on a bar.
type LadderAction int

const (
	Hold LadderAction = iota
	Enter
	Add
	TakeProfit
	StopLoss
)

func (a LadderAction) String() string {
	switch a {
	case Enter:
		return "enter"
	case Add:
		return "add"
	case TakeProfit:
		return "take-profit"
	case StopLoss:
		return "stop-loss"
	default:
		return "hold"
	}
}

// LadderInput is one bar's worth of ladder inputs. Position and AvgPrice
// come from the broker.
type LadderInput struct {
	Bar      market.Bar
	VWMA     float64
	ATR      float64
	Position float64
	AvgPrice float64
}

// LadderDecision is the outcome of Evaluate.
type LadderDecision struct {
	Action     LadderAction
	TargetSize float64
	// Clip is the cash committed by an Enter or Add.
	Clip  float64
	Lower float64
	Upper float64
}

// Ladder is the stateful volatility-ladder sizer. Evaluate never mutates;
// Apply commits a decision once its order has filled.
type Ladder struct {
	Params LadderParams

	adds         int
	clip         float64
	lastAddPrice float64
}

// NewLadder returns a flat ladder.
func NewLadder(p LadderParams) *Ladder {
	return &Ladder{Params: p}
}

// Adds returns the number of adds since entry.
func (l *Ladder) Adds() int { return l.adds }

// Evaluate returns the target position for the bar.
func (l *Ladder) Evaluate(in LadderInput) (LadderDecision, error) {
	b := in.Bar
	if !finite(b.Close, b.High, b.Low, in.VWMA, in.ATR, in.Position, in.AvgPrice) {
		return LadderDecision{}, fmt.Errorf("%w: ladder bar %s", ErrInvalidInput, b.Time)
	}
	if b.Close <= 0 {
		return LadderDecision{}, fmt.Errorf("%w: got %g", ErrInvalidPrice, b.Close)
	}

	band := l.Params.K * in.ATR
	d := LadderDecision{
		Action:     Hold,
		TargetSize: in.Position,
		Lower:      in.VWMA - band,
		Upper:      in.VWMA + band,
	}
	if band <= 0 {
		return d, nil
	}

	if in.Position <= DefaultEpsilon {
		if b.Low <= d.Lower {
			d.Action = Enter
			d.Clip = l.Params.BaseAmount
			d.TargetSize = in.Position + d.Clip/b.Close
		}
		return d, nil
	}

	unrealized := (b.Close - in.AvgPrice) * in.Position
	threshold := band * in.Position

	if b.High >= d.Upper && unrealized >= threshold {
		d.Action = TakeProfit
		d.TargetSize = 0
		return d, nil
	}

	ref := l.lastAddPrice
	if ref == 0 {
		ref = in.AvgPrice
	}
	if l.adds < l.Params.MaxAdds && b.Low <= d.Lower && b.Close <= ref-band {
		clip := l.clip
		if clip == 0 {
			clip = l.Params.BaseAmount
		}
		d.Action = Add
		d.Clip = clip * l.Params.Multiplier
		d.TargetSize = in.Position + d.Clip/b.Close
		return d, nil
	}

	armed := l.adds >= l.Params.MaxAdds || l.Params.Stop == StopAlways
	if armed && unrealized <= -threshold {
		d.Action = StopLoss
		d.TargetSize = 0
	}
	return d, nil
}

// Apply commits d after its order completed at fillPrice.
func (l *Ladder) Apply(d LadderDecision, fillPrice float64) {
	switch d.Action {
	case Enter:
		l.adds = 0
		l.clip = d.Clip
		l.lastAddPrice = fillPrice
	case Add:
		l.adds++
		l.clip = d.Clip
		l.lastAddPrice = fillPrice
	case TakeProfit, StopLoss:
		l.Reset()
	}
}

// Reset returns the ladder to flat.
func (l *Ladder) Reset() {
	l.adds = 0
	l.clip = 0
	l.lastAddPrice = 0
}
