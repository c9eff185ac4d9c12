package risk

import (
	"fmt"
	"math"
)

// BandInput is one bar's worth of sizing inputs.
type BandInput struct {
	Close float64
	EMA   float64
	ATR   float64
	// Capital is the money the full-size position is measured against.
	Capital float64
}

// Zone names where the close sits relative to the band.
type Zone string

const (
	ZoneCenter    Zone = "center"
	ZoneUpper     Zone = "upper"
	ZoneLower     Zone = "lower"
	ZoneAbove     Zone = "above"
	ZoneBelow     Zone = "below"
	ZoneCollapsed Zone = "collapsed"
)

// BandResult is the sizing outcome for a bar.
type BandResult struct {
	// Target is the position size in units of the underlying.
	Target float64
	// FullSize is Capital/Close.
	FullSize float64
	// Exposure is Target/FullSize (0 when FullSize is 0).
	Exposure float64
	Upper    float64
	Lower    float64
	Zone     Zone
}

// BandSizer implements the ATR/EMA band-regression rule:
//
//	close == ema          -> 100%
//	ema < close <= upper  -> 100% down to 50% linearly
//	lower <= close < ema  -> 100% up to 200% linearly
//	outside the band      -> per OutOfBand
type BandSizer struct {
	Policy BandPolicy
}

// NewBandSizer returns a sizer for p.
func NewBandSizer(p BandPolicy) *BandSizer {
	if p.OutOfBand == "" {
		p.OutOfBand = Clamp
	}
	return &BandSizer{Policy: p}
}

// Target computes the target size. It is a pure function of in and the policy.
func (s *BandSizer) Target(in BandInput) (BandResult, error) {
	if !finite(in.Close, in.EMA, in.ATR, in.Capital) {
		return BandResult{}, fmt.Errorf("%w: close=%g ema=%g atr=%g capital=%g",
			ErrInvalidInput, in.Close, in.EMA, in.ATR, in.Capital)
	}
	if in.Close <= 0 {
		return BandResult{}, fmt.Errorf("%w: got %g", ErrInvalidPrice, in.Close)
	}
	if in.ATR < 0 {
		return BandResult{}, fmt.Errorf("%w: negative atr %g", ErrInvalidInput, in.ATR)
	}

	width := s.Policy.Multiplier * in.ATR
	res := BandResult{
		Upper: in.EMA + width,
		Lower: in.EMA - width,
	}

	// No capital, no position. Leverage can drive cash below zero.
	if in.Capital <= 0 {
		res.Zone = s.zone(in.Close, in.EMA, res)
		return res, nil
	}
	res.FullSize = in.Capital / in.Close

	var exposure float64
	switch {
	case width == 0:
		res.Zone = ZoneCollapsed
		exposure = FullExposure
	case in.Close == in.EMA:
		res.Zone = ZoneCenter
		exposure = FullExposure
	case in.Close > in.EMA && in.Close <= res.Upper:
		res.Zone = ZoneUpper
		exposure = FullExposure - (FullExposure-MinBandExposure)*(in.Close-in.EMA)/(res.Upper-in.EMA)
	case in.Close < in.EMA && in.Close >= res.Lower:
		res.Zone = ZoneLower
		exposure = FullExposure + (MaxBandExposure-FullExposure)*(in.EMA-in.Close)/(in.EMA-res.Lower)
	case in.Close > res.Upper:
		res.Zone = ZoneAbove
		exposure = s.outside(MinBandExposure)
	default:
		res.Zone = ZoneBelow
		exposure = s.outside(MaxBandExposure)
	}

	res.Exposure = exposure
	res.Target = res.FullSize * exposure
	return res, nil
}

func (s *BandSizer) outside(clamped float64) float64 {
	if s.Policy.OutOfBand == Flatten {
		return 0
	}
	return clamped
}

func (s *BandSizer) zone(close, ema float64, r BandResult) Zone {
	switch {
	case r.Upper == ema:
		return ZoneCollapsed
	case close == ema:
		return ZoneCenter
	case close > r.Upper:
		return ZoneAbove
	case close < r.Lower:
		return ZoneBelow
	case close > ema:
		return ZoneUpper
	default:
		return ZoneLower
	}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
