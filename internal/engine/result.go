package engine

import (
	"gonum.org/v1/gonum/floats"
)

// Compartments is the population ledger of a run. Every person is in
// exactly one compartment, so the fields always add up to the initial
// population at a day boundary.
type Compartments struct {
	Susceptible int64 `json:"susceptible"`
	Infected    int64 `json:"infected"`
	InTreatment int64 `json:"in_treatment"`
	Recovered   int64 `json:"recovered"`
	Dead        int64 `json:"dead"`
}

// Total sums every compartment.
func (c Compartments) Total() int64 {
	return c.Susceptible + c.Infected + c.InTreatment + c.Recovered + c.Dead
}

// Flow records the movements computed for one day.
type Flow struct {
	NewInfections           int64 `json:"new_infections"`
	EndingInfection         int64 `json:"ending_infection"`
	NeedingTreatment        int64 `json:"needing_treatment"`
	BeginningTreatment      int64 `json:"beginning_treatment"`
	EndingTreatment         int64 `json:"ending_treatment"`
	RecoveredAfterTreatment int64 `json:"recovered_after_treatment"`
	DiedAfterTreatment      int64 `json:"died_after_treatment"`
	DiedUntreated           int64 `json:"died_untreated"`
	LostImmunity            int64 `json:"lost_immunity"`
}

// ResultSet holds one entry per simulated day. Entry d is the state at the
// end of day d, after that day's transitions.
type ResultSet struct {
	NumDays           int     `json:"num_days"`
	InitialPopulation int64   `json:"initial_population"`
	InitialInfected   int64   `json:"initial_infected"`
	Susceptible       []int64 `json:"susceptible"`
	Infected          []int64 `json:"infected"`
	Recovered         []int64 `json:"recovered"`
	InTreatment       []int64 `json:"in_treatment"`
	Dead              []int64 `json:"dead"`
	Flows             []Flow  `json:"flows"`
}

func newResultSet(numDays int, pop Population) *ResultSet {
	return &ResultSet{
		NumDays:           numDays,
		InitialPopulation: pop.Initial,
		InitialInfected:   pop.Infected,
		Susceptible:       make([]int64, 0, numDays),
		Infected:          make([]int64, 0, numDays),
		Recovered:         make([]int64, 0, numDays),
		InTreatment:       make([]int64, 0, numDays),
		Dead:              make([]int64, 0, numDays),
		Flows:             make([]Flow, 0, numDays),
	}
}

func (r *ResultSet) record(c Compartments, f Flow) {
	r.Susceptible = append(r.Susceptible, c.Susceptible)
	r.Infected = append(r.Infected, c.Infected)
	r.Recovered = append(r.Recovered, c.Recovered)
	r.InTreatment = append(r.InTreatment, c.InTreatment)
	r.Dead = append(r.Dead, c.Dead)
	r.Flows = append(r.Flows, f)
}

// Day returns the compartments recorded for day d.
func (r *ResultSet) Day(d int) (Compartments, bool) {
	if d < 0 || d >= len(r.Infected) {
		return Compartments{}, false
	}
	return Compartments{
		Susceptible: r.Susceptible[d],
		Infected:    r.Infected[d],
		InTreatment: r.InTreatment[d],
		Recovered:   r.Recovered[d],
		Dead:        r.Dead[d],
	}, true
}

// Series returns the named compartment series as floats for charting.
// Unknown names return nil.
func (r *ResultSet) Series(name string) []float64 {
	var src []int64
	switch name {
	case SeriesSusceptible:
		src = r.Susceptible
	case SeriesInfected:
		src = r.Infected
	case SeriesRecovered:
		src = r.Recovered
	case SeriesInTreatment:
		src = r.InTreatment
	case SeriesDead:
		src = r.Dead
	default:
		return nil
	}
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

// Series names in chart order.
const (
	SeriesSusceptible = "susceptible"
	SeriesInfected    = "infected"
	SeriesRecovered   = "recovered"
	SeriesInTreatment = "in_treatment"
	SeriesDead        = "dead"
)

// SeriesNames lists every series name in chart order.
var SeriesNames = []string{SeriesSusceptible, SeriesInfected, SeriesRecovered, SeriesInTreatment, SeriesDead}

// Summary condenses a run into headline numbers.
type Summary struct {
	PeakInfected     int64 `json:"peak_infected"`
	PeakDay          int   `json:"peak_day"`
	PeakInTreatment  int64 `json:"peak_in_treatment"`
	TotalInfections  int64 `json:"total_infections"`
	TotalDead        int64 `json:"total_dead"`
	DiedUntreated    int64 `json:"died_untreated"`
	FinalSusceptible int64 `json:"final_susceptible"`
}

// Summary computes headline numbers. An empty result yields a zero Summary.
func (r *ResultSet) Summary() Summary {
	if len(r.Infected) == 0 {
		return Summary{}
	}
	infected := r.Series(SeriesInfected)
	peak := floats.MaxIdx(infected)
	treatment := r.Series(SeriesInTreatment)
	newInf := make([]float64, len(r.Flows))
	untreated := make([]float64, len(r.Flows))
	for i, f := range r.Flows {
		newInf[i] = float64(f.NewInfections)
		untreated[i] = float64(f.DiedUntreated)
	}
	last := len(r.Infected) - 1
	return Summary{
		PeakInfected:     r.Infected[peak],
		PeakDay:          peak,
		PeakInTreatment:  int64(floats.Max(treatment)),
		TotalInfections:  r.InitialInfected + int64(floats.Sum(newInf)),
		TotalDead:        r.Dead[last],
		DiedUntreated:    int64(floats.Sum(untreated)),
		FinalSusceptible: r.Susceptible[last],
	}
}
