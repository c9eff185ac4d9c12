package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandSizerTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		policy   OutOfBand
		close    float64
		atr      float64
		exposure float64
		zone     Zone
	}{
		{"at ema", Clamp, 100, 1, 1.0, ZoneCenter},
		{"half way to upper", Clamp, 110, 1, 0.75, ZoneUpper},
		{"on upper band", Clamp, 120, 1, 0.5, ZoneUpper},
		{"half way to lower", Clamp, 90, 1, 1.5, ZoneLower},
		{"on lower band", Clamp, 80, 1, 2.0, ZoneLower},
		{"above band clamped", Clamp, 130, 1, 0.5, ZoneAbove},
		{"below band clamped", Clamp, 70, 1, 2.0, ZoneBelow},
		{"above band flattened", Flatten, 130, 1, 0, ZoneAbove},
		{"below band flattened", Flatten, 70, 1, 0, ZoneBelow},
		{"band collapse", Clamp, 105, 0, 1.0, ZoneCollapsed},
		{"band collapse flatten", Flatten, 95, 0, 1.0, ZoneCollapsed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewBandSizer(BandPolicy{Multiplier: 20, OutOfBand: tt.policy})
			res, err := s.Target(BandInput{Close: tt.close, EMA: 100, ATR: tt.atr, Capital: 10000})
			require.NoError(t, err)

			full := 10000 / tt.close
			assert.Equal(t, tt.zone, res.Zone)
			assert.InDelta(t, full, res.FullSize, 1e-9)
			assert.InDelta(t, tt.exposure, res.Exposure, 1e-12)
			assert.InDelta(t, full*tt.exposure, res.Target, 1e-9)
			assert.GreaterOrEqual(t, res.Target, 0.0)
		})
	}
}

func TestBandSizerFullAllocationIsExact(t *testing.T) {
	t.Parallel()

	s := NewBandSizer(DefaultBandPolicy())
	for _, c := range []float64{0.37, 1, 99.99, 12345.678} {
		for _, cash := range []float64{1, 10000, 3333.33} {
			res, err := s.Target(BandInput{Close: c, EMA: c, ATR: c / 50, Capital: cash})
			require.NoError(t, err)
			assert.Equal(t, cash/c, res.Target)
		}
	}
}

func TestBandSizerContinuity(t *testing.T) {
	t.Parallel()

	const (
		ema  = 250.0
		atr  = 1.5
		mult = 4.0
		cash = 50000.0
		h    = 1e-7
	)
	s := NewBandSizer(BandPolicy{Multiplier: mult, OutOfBand: Clamp})
	upper := ema + mult*atr
	lower := ema - mult*atr

	at := func(c float64) float64 {
		res, err := s.Target(BandInput{Close: c, EMA: ema, ATR: atr, Capital: cash})
		require.NoError(t, err)
		return res.Target
	}

	for _, edge := range []float64{ema, upper, lower} {
		left, mid, right := at(edge-h), at(edge), at(edge+h)
		assert.InDelta(t, mid, left, 1e-3, "left limit at %g", edge)
		assert.InDelta(t, mid, right, 1e-3, "right limit at %g", edge)
	}
}

func TestBandSizerErrors(t *testing.T) {
	t.Parallel()

	s := NewBandSizer(DefaultBandPolicy())

	_, err := s.Target(BandInput{Close: 0, EMA: 100, ATR: 1, Capital: 1000})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = s.Target(BandInput{Close: -3, EMA: 100, ATR: 1, Capital: 1000})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = s.Target(BandInput{Close: 100, EMA: math.NaN(), ATR: 1, Capital: 1000})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Target(BandInput{Close: 100, EMA: 100, ATR: -1, Capital: 1000})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBandSizerNoCapital(t *testing.T) {
	t.Parallel()

	s := NewBandSizer(DefaultBandPolicy())
	for _, cash := range []float64{0, -500} {
		res, err := s.Target(BandInput{Close: 90, EMA: 100, ATR: 1, Capital: cash})
		require.NoError(t, err)
		assert.Zero(t, res.Target)
		assert.Equal(t, ZoneLower, res.Zone)
	}
}

func TestBandSizerIdempotent(t *testing.T) {
	t.Parallel()

	s := NewBandSizer(DefaultBandPolicy())
	in := BandInput{Close: 103.2, EMA: 101.7, ATR: 0.9, Capital: 7777}
	a, err := s.Target(in)
	require.NoError(t, err)
	b, err := s.Target(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseOutOfBand(t *testing.T) {
	t.Parallel()

	p, err := ParseOutOfBand(" FLATTEN ")
	require.NoError(t, err)
	assert.Equal(t, Flatten, p)

	p, err = ParseOutOfBand("")
	require.NoError(t, err)
	assert.Equal(t, Clamp, p)

	_, err = ParseOutOfBand("zero")
	assert.Error(t, err)

	assert.Error(t, BandPolicy{Multiplier: -1, OutOfBand: Clamp}.Validate())
	assert.NoError(t, DefaultBandPolicy().Validate())
}
