package core

import (
	"fmt"
	"strings"

	"simpidemic/internal/engine"
	"simpidemic/internal/param"
)

// Parameter names of the default catalogue.
const (
	ParamContactsPerDay           = engine.ParamContactsPerDay
	ParamTreatmentCapacityPer100K = engine.ParamTreatmentCapacityPer100K
	ParamNumDays                  = "numDays"
	ParamPeakContagiousDay        = "peakContagiousDay"
	ParamContagiousness           = "contagiousness"
	ParamTransmissionProbability  = "transmissionProbability"
	ParamMortalityTreated         = "mortalityTreated"
	ParamMortalityUntreated       = "mortalityUntreated"
	ParamDayTreatmentBegins       = "dayTreatmentBegins"
	ParamTreatmentDuration        = "treatmentDuration"
	ParamImmunityLoss             = "immunityLoss"
)

// Defaults for the population, which is configuration rather than a
// parameter.
const (
	DefaultPopulation = 1_000_000
	DefaultInfected   = 20
)

// DefaultTransmissionTable is the per-day kernel used by KernelTable until
// edited.
var DefaultTransmissionTable = []float64{0, 0.01, 0.03, 0.05, 0.06, 0.06, 0.05, 0.04, 0.03, 0.02, 0.015, 0.01, 0.005, 0.002}

// KernelKind selects how the transmission probability is computed.
type KernelKind string

const (
	KernelPeak  KernelKind = "peak"
	KernelTable KernelKind = "table"
)

// ParseKernelKind accepts peak or table, case-insensitively. Empty means
// peak.
func ParseKernelKind(s string) (KernelKind, error) {
	switch KernelKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KernelPeak:
		return KernelPeak, nil
	case KernelTable:
		return KernelTable, nil
	}
	return "", fmt.Errorf("unknown kernel %q (want peak or table)", s)
}

// NewParameterSet builds the default parameter catalogue.
func NewParameterSet() *param.Set {
	return param.NewSet().MustAdd(
		param.NewFloat(ParamContactsPerDay, "cpd", 0, 30, 15),
		param.NewInt(ParamTreatmentCapacityPer100K, "tcap", 0, 3000, 25),
		param.NewInt(ParamNumDays, "nd", 40, 1000, 365),
		param.NewFloat(ParamPeakContagiousDay, "pcd", 1, 20, 4),
		param.NewFloat(ParamContagiousness, "cont", 0.01, 1, 0.2),
		param.NewArray(ParamTransmissionProbability, "tp", 0, 1, DefaultTransmissionTable),
		param.NewFloat(ParamMortalityTreated, "mt", 0, 100, 2),
		param.NewFloat(ParamMortalityUntreated, "mu", 0, 100, 4),
		param.NewInt(ParamDayTreatmentBegins, "dtb", 1, 30, 7),
		param.NewInt(ParamTreatmentDuration, "td", 1, 60, 14),
		param.NewFloat(ParamImmunityLoss, "il", 0, 10, 0.2),
	)
}
