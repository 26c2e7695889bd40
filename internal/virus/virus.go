// Package virus models the disease: how contagious an infected person is on
// each day since infection, and what happens to the severe cases.
package virus

import (
	"math"
)

// Kernel yields the probability that one infected person infects one
// susceptible contact, as a function of days since infection.
type Kernel interface {
	Probability(day int) float64
	// Duration is the number of days a cohort stays infected.
	Duration() int
}

// PeakKernel is the closed-form kernel
//
//	p(d) = min(1, c * (d/peak) / (peak * e^(d/peak)))
//
// truncated after six times the peak day.
type PeakKernel struct {
	PeakDay        float64
	Contagiousness float64
}

// DurationFactor is the multiple of the peak day after which the closed-form
// kernel is cut off.
const DurationFactor = 6

func (k PeakKernel) Probability(day int) float64 {
	if day < 0 || k.PeakDay <= 0 {
		return 0
	}
	x := float64(day) / k.PeakDay
	p := k.Contagiousness * x / (k.PeakDay * math.Exp(x))
	return bound(p)
}

func (k PeakKernel) Duration() int {
	d := int(math.Round(k.PeakDay * DurationFactor))
	if d < 1 {
		return 1
	}
	return d
}

// TableKernel reads probabilities from a fixed per-day table; days past the
// end of the table have probability zero.
type TableKernel struct {
	Probabilities []float64
}

func (k TableKernel) Probability(day int) float64 {
	if day < 0 || day >= len(k.Probabilities) {
		return 0
	}
	return bound(k.Probabilities[day])
}

func (k TableKernel) Duration() int {
	if len(k.Probabilities) == 0 {
		return 1
	}
	return len(k.Probabilities)
}

// Model bundles the transmission kernel with the outcome parameters.
// Mortality and immunity loss are percentages in [0, 100].
type Model struct {
	Kernel Kernel
	// MortalityTreated is the death rate of severe cases that receive treatment.
	MortalityTreated float64
	// MortalityUntreated is the death rate of infections without treatment.
	// Only this fraction of a cohort is routed to treatment.
	MortalityUntreated float64
	// DayTreatmentBegins is the cohort age at which triage happens.
	DayTreatmentBegins int
	TreatmentDuration  int
	// ImmunityLoss is the percentage of recovered people who become
	// susceptible again each day.
	ImmunityLoss float64
}

// TransmissionProbability delegates to the kernel.
func (m Model) TransmissionProbability(day int) float64 {
	if m.Kernel == nil {
		return 0
	}
	return m.Kernel.Probability(day)
}

// InfectionDuration delegates to the kernel.
func (m Model) InfectionDuration() int {
	if m.Kernel == nil {
		return 1
	}
	return m.Kernel.Duration()
}

// TotalInfectiousness is the sum of the kernel over the infection period:
// the expected number of infections per contact-per-day over one infection.
func (m Model) TotalInfectiousness() float64 {
	var sum float64
	for d := 0; d < m.InfectionDuration(); d++ {
		sum += m.TransmissionProbability(d)
	}
	return sum
}

func bound(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return math.Min(1, p)
}
