// Package risk turns price, trend and volatility readings into target
// position sizes. Nothing here places orders; callers diff the target
// against the broker's position and decide.
package risk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPrice is returned when the close price is zero or negative.
	ErrInvalidPrice = errors.New("risk: close price must be positive")
	// ErrInvalidInput is returned for NaN/Inf inputs or a negative ATR.
	ErrInvalidInput = errors.New("risk: invalid sizing input")
)

// OutOfBand decides the exposure when the close is outside [lower, upper].
type OutOfBand string

const (
	// Flatten goes flat outside the band.
	Flatten OutOfBand = "flatten"
	// Clamp holds 50% above the upper band and 200% below the lower band.
	Clamp OutOfBand = "clamp"
)

// ParseOutOfBand parses a policy name.
func ParseOutOfBand(s string) (OutOfBand, error) {
	switch OutOfBand(strings.ToLower(strings.TrimSpace(s))) {
	case Flatten:
		return Flatten, nil
	case Clamp, "":
		return Clamp, nil
	default:
		return "", fmt.Errorf("risk: unknown out-of-band policy %q (flatten, clamp)", s)
	}
}

// Exposure limits of the band-regression rule, as multiples of full size.
const (
	MinBandExposure  = 0.5
	FullExposure     = 1.0
	MaxBandExposure  = 2.0
	DefaultThreshold = 2.0
)

// BandPolicy configures the band-regression sizer.
type BandPolicy struct {
	// Multiplier scales ATR into the band half-width.
	Multiplier float64
	OutOfBand  OutOfBand
}

// DefaultBandPolicy mirrors the production parameters: 20 ATR bands, clamped.
func DefaultBandPolicy() BandPolicy {
	return BandPolicy{Multiplier: 20, OutOfBand: Clamp}
}

// Validate checks the policy.
func (p BandPolicy) Validate() error {
	if p.Multiplier < 0 {
		return fmt.Errorf("risk: band multiplier must be >= 0, got %g", p.Multiplier)
	}
	if _, err := ParseOutOfBand(string(p.OutOfBand)); err != nil {
		return err
	}
	return nil
}
