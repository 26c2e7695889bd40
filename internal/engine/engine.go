// Package engine runs the deterministic day-by-day compartment simulation.
//
// A run is a pure function of its inputs: every call to Simulate allocates a
// fresh ledger and fresh delay lines, so nothing is carried between calls.
package engine

import (
	"fmt"
	"math"

	"simpidemic/internal/action"
	"simpidemic/internal/virus"
)

// Names of the parameters that scheduled actions may override mid-run.
const (
	ParamContactsPerDay           = "contactsPerDay"
	ParamTreatmentCapacityPer100K = "treatmentCapacityPer100K"
)

// mortalityFloor keeps the treated/untreated mortality ratio finite when
// untreated mortality is configured as zero.
const mortalityFloor = 1e-6

// IsActionable reports whether actions targeting name have any effect.
func IsActionable(name string) bool {
	return name == ParamContactsPerDay || name == ParamTreatmentCapacityPer100K
}

// General holds the run-wide inputs that are not properties of the virus.
type General struct {
	ContactsPerDay           float64
	TreatmentCapacityPer100K float64
	NumDays                  int
}

// Population is the fixed size of the simulated population and the number
// infected on day 0.
type Population struct {
	Initial  int64
	Infected int64
}

// TreatmentCapacity converts a per-100K capacity into treatment places for
// the population.
func (p Population) TreatmentCapacity(per100K float64) int64 {
	return int64(math.Round(per100K * float64(p.Initial) / 100000))
}

// ActionSource yields the scheduled actions for a day. *action.Schedule
// satisfies it.
type ActionSource interface {
	DailyActions(day int) []action.Action
}

// Option customizes a run.
type Option func(*run)

// WithRounding replaces the default half-away-from-zero rounding.
func WithRounding(r Rounding) Option {
	return func(rn *run) {
		if r != nil {
			rn.round = r
		}
	}
}

type run struct {
	model   virus.Model
	pop     Population
	actions ActionSource
	round   Rounding

	contacts  float64
	capacity  int64
	state     Compartments
	infected  *DelayLine
	treatment *DelayLine
}

// Simulate executes exactly general.NumDays days and returns the recorded
// result. An invariant violation aborts the run and returns an
// *InvariantError alongside the days recorded so far.
func Simulate(model virus.Model, general General, actions ActionSource, pop Population, opts ...Option) (*ResultSet, error) {
	if err := validate(general, pop); err != nil {
		return nil, err
	}
	rn := &run{
		model:    model,
		pop:      pop,
		actions:  actions,
		round:    StandardRounding{},
		contacts: general.ContactsPerDay,
		capacity: pop.TreatmentCapacity(general.TreatmentCapacityPer100K),
		state: Compartments{
			Susceptible: pop.Initial - pop.Infected,
			Infected:    pop.Infected,
		},
		infected:  NewDelayLine(model.InfectionDuration()),
		treatment: NewDelayLine(model.TreatmentDuration),
	}
	for _, opt := range opts {
		opt(rn)
	}
	rn.infected.Push(pop.Infected)
	rn.treatment.Push(0)

	result := newResultSet(general.NumDays, pop)
	for day := 0; day < general.NumDays; day++ {
		flow := rn.step(day)
		result.record(rn.state, flow)
		if err := rn.check(day); err != nil {
			return result, err
		}
	}
	return result, nil
}

func validate(general General, pop Population) error {
	switch {
	case pop.Initial <= 0:
		return fmt.Errorf("%w: initial population %d must be positive", ErrInvalidInput, pop.Initial)
	case pop.Infected < 0 || pop.Infected > pop.Initial:
		return fmt.Errorf("%w: initial infected %d outside [0, %d]", ErrInvalidInput, pop.Infected, pop.Initial)
	case general.NumDays < 0:
		return fmt.Errorf("%w: number of days %d is negative", ErrInvalidInput, general.NumDays)
	}
	return nil
}

func (rn *run) applyActions(day int) {
	if rn.actions == nil {
		return
	}
	for _, a := range rn.actions.DailyActions(day) {
		if !a.Active {
			continue
		}
		switch a.Name {
		case ParamContactsPerDay:
			rn.contacts = a.Value
		case ParamTreatmentCapacityPer100K:
			rn.capacity = rn.pop.TreatmentCapacity(a.Value)
		}
	}
}

func (rn *run) step(day int) Flow {
	rn.applyActions(day)

	endingInfection := rn.infected.Evict()
	endingTreatment := rn.treatment.Evict()

	var transmission float64
	for age := 0; age < rn.infected.Len(); age++ {
		transmission += rn.model.TransmissionProbability(age) * float64(rn.infected.At(age))
	}
	s := rn.state
	beginningInfection := rn.whole(rn.contacts*transmission*float64(s.Susceptible)/float64(rn.pop.Initial), s.Susceptible)

	ratio := rn.model.MortalityTreated / math.Max(rn.model.MortalityUntreated, mortalityFloor)
	dieAfterTreatment := rn.whole(float64(endingTreatment)*ratio, endingTreatment)
	recoverAfterTreatment := endingTreatment - dieAfterTreatment

	// Only the share of the cohort that would die untreated is triaged.
	// Whoever cannot be admitted dies without entering treatment.
	triageAge := rn.model.DayTreatmentBegins
	cohort := rn.infected.At(triageAge)
	needingTreatment := rn.whole(float64(cohort)*rn.model.MortalityUntreated/100, cohort)
	available := max(0, rn.capacity-s.InTreatment)
	beginningTreatment := min(needingTreatment, available)
	dieForLackOfTreatment := needingTreatment - beginningTreatment
	rn.infected.Add(triageAge, -needingTreatment)

	lostImmunity := rn.whole(rn.model.ImmunityLoss*float64(s.Recovered)/100, s.Recovered)

	rn.state = Compartments{
		Susceptible: s.Susceptible + lostImmunity - beginningInfection,
		Infected:    s.Infected + beginningInfection - (endingInfection + needingTreatment),
		InTreatment: s.InTreatment + beginningTreatment - endingTreatment,
		Recovered:   s.Recovered + endingInfection + recoverAfterTreatment - lostImmunity,
		Dead:        s.Dead + dieAfterTreatment + dieForLackOfTreatment,
	}

	rn.infected.Push(beginningInfection)
	rn.treatment.Push(beginningTreatment)

	return Flow{
		NewInfections:           beginningInfection,
		EndingInfection:         endingInfection,
		NeedingTreatment:        needingTreatment,
		BeginningTreatment:      beginningTreatment,
		EndingTreatment:         endingTreatment,
		RecoveredAfterTreatment: recoverAfterTreatment,
		DiedAfterTreatment:      dieAfterTreatment,
		DiedUntreated:           dieForLackOfTreatment,
		LostImmunity:            lostImmunity,
	}
}

// whole rounds x with the run's policy and clamps it to [0, limit].
func (rn *run) whole(x float64, limit int64) int64 {
	if math.IsNaN(x) {
		return 0
	}
	v := rn.round.Round(x)
	if v <= 0 {
		return 0
	}
	if v >= float64(limit) {
		return limit
	}
	return int64(v)
}

func (rn *run) check(day int) error {
	s := rn.state
	if got := s.Total(); got != rn.pop.Initial {
		return &InvariantError{Day: day, Check: CheckPopulation, Want: rn.pop.Initial, Got: got}
	}
	if got := rn.infected.Sum(); got != s.Infected {
		return &InvariantError{Day: day, Check: CheckInfected, Want: s.Infected, Got: got}
	}
	if got := rn.treatment.Sum(); got != s.InTreatment {
		return &InvariantError{Day: day, Check: CheckTreatment, Want: s.InTreatment, Got: got}
	}
	for _, v := range []int64{s.Susceptible, s.Infected, s.InTreatment, s.Recovered, s.Dead} {
		if v < 0 {
			return &InvariantError{Day: day, Check: CheckNegative, Want: 0, Got: v}
		}
	}
	return nil
}
