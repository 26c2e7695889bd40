// Package param defines the named, bounded simulation inputs shared between
// the UI-facing layers and the simulation engine.
//
// Two scalar variants (Float, Int) and one vector variant (Array) implement
// the Parameter capability interface. They share a numeric formatting helper
// rather than an inheritance chain. All writes clamp to [Min, Max]; non-finite
// values are rejected and leave the previous value in place.
package param

import (
	"errors"
	"math"
	"strconv"
)

// Kind tags the concrete parameter variant.
type Kind string

const (
	KindFloat Kind = "float"
	KindInt   Kind = "int"
	KindArray Kind = "array"
)

// DefaultDigits is the number of significant digits a Float keeps.
const DefaultDigits = 4

var (
	// ErrNotFinite is returned when a NaN or infinite value is written.
	ErrNotFinite = errors.New("param: value is not finite")
	// ErrUnknownParameter is returned when a lookup by name or code fails.
	ErrUnknownParameter = errors.New("param: unknown parameter")
	// ErrIndexOutOfRange is returned for array accesses past the end.
	ErrIndexOutOfRange = errors.New("param: index out of range")
)

// Listener is invoked after a parameter value has been written.
type Listener func(p Parameter)

// Parameter is the capability set every variant provides.
type Parameter interface {
	Name() string
	// Code is the short stable identifier used for serialization.
	Code() string
	Kind() Kind
	Min() float64
	Max() float64
	// Format serializes the current value at the parameter's precision.
	Format() string
	// Parse decodes a serialized value and applies it, firing listeners.
	Parse(s string) error
	OnChange(fn Listener)
}

// Scalar is a Parameter holding a single number.
type Scalar interface {
	Parameter
	Float64() float64
	SetFloat64(v float64) error
}

// Descriptor is a read-only, serializable view of a parameter.
type Descriptor struct {
	Name  string    `json:"name"`
	Code  string    `json:"code"`
	Kind  Kind      `json:"kind"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Value float64   `json:"value,omitempty"`
	Array []float64 `json:"array,omitempty"`
}

// Describe builds a Descriptor for any parameter variant.
func Describe(p Parameter) Descriptor {
	d := Descriptor{Name: p.Name(), Code: p.Code(), Kind: p.Kind(), Min: p.Min(), Max: p.Max()}
	switch v := p.(type) {
	case Scalar:
		d.Value = v.Float64()
	case *Array:
		d.Array = v.Values()
	}
	return d
}

// FormatSignificant renders v with at most digits significant digits.
func FormatSignificant(v float64, digits int) string {
	if digits <= 0 {
		digits = DefaultDigits
	}
	return strconv.FormatFloat(v, 'g', digits, 64)
}

// Quantize rounds v to digits significant digits so that repeated
// format/parse cycles are stable.
func Quantize(v float64, digits int) float64 {
	q, err := strconv.ParseFloat(FormatSignificant(v, digits), 64)
	if err != nil {
		return v
	}
	return q
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !finite(v) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// notifier holds the listeners of a single parameter.
type notifier struct {
	listeners []Listener
}

func (n *notifier) add(fn Listener) {
	if fn != nil {
		n.listeners = append(n.listeners, fn)
	}
}

func (n *notifier) fire(p Parameter) {
	for _, fn := range n.listeners {
		fn(p)
	}
}
