package param

import (
	"fmt"
	"strings"
)

// Array is a fixed-length vector of bounded reals, e.g. a per-day
// transmission probability table.
type Array struct {
	name   string
	code   string
	min    float64
	max    float64
	values []float64
	digits int
	notifier
}

// NewArray copies values into a new Array, clamping every element.
func NewArray(name, code string, min, max float64, values []float64) *Array {
	a := &Array{name: name, code: code, min: min, max: max, digits: DefaultDigits}
	a.values = make([]float64, len(values))
	for i, v := range values {
		a.values[i] = a.normalize(v)
	}
	return a
}

func (a *Array) Name() string         { return a.name }
func (a *Array) Code() string         { return a.code }
func (a *Array) Kind() Kind           { return KindArray }
func (a *Array) Min() float64         { return a.min }
func (a *Array) Max() float64         { return a.max }
func (a *Array) Len() int             { return len(a.values) }
func (a *Array) OnChange(fn Listener) { a.add(fn) }

// At returns element i, or zero when i is outside the table.
func (a *Array) At(i int) float64 {
	if i < 0 || i >= len(a.values) {
		return 0
	}
	return a.values[i]
}

// Values returns a copy of the elements.
func (a *Array) Values() []float64 {
	out := make([]float64, len(a.values))
	copy(out, a.values)
	return out
}

// Set writes element i and notifies listeners.
func (a *Array) Set(i int, v float64) error {
	if i < 0 || i >= len(a.values) {
		return fmt.Errorf("%s[%d]: %w", a.name, i, ErrIndexOutOfRange)
	}
	if !finite(v) {
		return fmt.Errorf("%s[%d]: %w", a.name, i, ErrNotFinite)
	}
	a.values[i] = a.normalize(v)
	a.fire(a)
	return nil
}

// Format renders the elements as a comma separated list.
func (a *Array) Format() string {
	parts := make([]string, len(a.values))
	for i, v := range a.values {
		parts[i] = FormatSignificant(v, a.digits)
	}
	return strings.Join(parts, ",")
}

// Parse replaces the elements from a comma separated list. The list must
// have exactly Len entries; on any error the array is left unchanged.
func (a *Array) Parse(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != len(a.values) {
		return fmt.Errorf("%s: expected %d values, got %d", a.name, len(a.values), len(parts))
	}
	next := make([]float64, len(parts))
	for i, part := range parts {
		v, err := parseFinite(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("%s[%d]: parse %q: %w", a.name, i, part, err)
		}
		next[i] = a.normalize(v)
	}
	a.values = next
	a.fire(a)
	return nil
}

func (a *Array) normalize(v float64) float64 {
	return Quantize(clamp(v, a.min, a.max), a.digits)
}
