package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant indicates an accounting defect inside the engine.
	ErrInvariant = errors.New("engine: invariant violated")
	// ErrInvalidInput indicates inputs that cannot describe a population.
	ErrInvalidInput = errors.New("engine: invalid input")
)

// Invariant checks performed after every simulated day.
const (
	CheckPopulation = "population"
	CheckInfected   = "infected_fifo"
	CheckTreatment  = "treatment_fifo"
	CheckNegative   = "non_negative"
)

// InvariantError reports which check failed on which day.
type InvariantError struct {
	Day   int
	Check string
	Want  int64
	Got   int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("engine: invariant %s violated on day %d: want %d, got %d", e.Check, e.Day, e.Want, e.Got)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }
