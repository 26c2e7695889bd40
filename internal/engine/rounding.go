package engine

import (
	"math"
	"math/rand"
)

// Rounding converts a real-valued flow into a whole number of people.
type Rounding interface {
	Round(x float64) float64
}

// StandardRounding rounds half away from zero. It is the default policy.
type StandardRounding struct{}

func (StandardRounding) Round(x float64) float64 { return math.Round(x) }

// DitherRounding adds symmetric noise in [-Scaler/2, Scaler/2) before
// rounding. A zero Scaler behaves exactly like StandardRounding.
type DitherRounding struct {
	Scaler float64
	rng    *rand.Rand
}

// NewDitherRounding returns a dither policy with a seeded source so runs
// stay reproducible.
func NewDitherRounding(scaler float64, seed int64) *DitherRounding {
	return &DitherRounding{Scaler: scaler, rng: rand.New(rand.NewSource(seed))}
}

func (d *DitherRounding) Round(x float64) float64 {
	if d.Scaler == 0 || d.rng == nil {
		return math.Round(x)
	}
	return math.Round(x + (d.rng.Float64()-0.5)*d.Scaler)
}
