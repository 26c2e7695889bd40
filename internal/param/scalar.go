package param

import (
	"fmt"
	"math"
	"strconv"
)

// Float is a real-valued parameter quantized to a fixed number of
// significant digits.
type Float struct {
	name   string
	code   string
	min    float64
	max    float64
	value  float64
	digits int
	notifier
}

// NewFloat constructs a Float. The default value is clamped and quantized.
func NewFloat(name, code string, min, max, value float64) *Float {
	f := &Float{name: name, code: code, min: min, max: max, digits: DefaultDigits}
	f.value = Quantize(clamp(value, min, max), f.digits)
	return f
}

// WithDigits overrides the significant digit count and re-quantizes.
func (f *Float) WithDigits(digits int) *Float {
	if digits > 0 {
		f.digits = digits
		f.value = Quantize(f.value, digits)
	}
	return f
}

func (f *Float) Name() string         { return f.name }
func (f *Float) Code() string         { return f.code }
func (f *Float) Kind() Kind           { return KindFloat }
func (f *Float) Min() float64         { return f.min }
func (f *Float) Max() float64         { return f.max }
func (f *Float) Float64() float64     { return f.value }
func (f *Float) OnChange(fn Listener) { f.add(fn) }

// SetFloat64 clamps, quantizes and stores v, then notifies listeners.
func (f *Float) SetFloat64(v float64) error {
	if !finite(v) {
		return fmt.Errorf("%s: %w", f.name, ErrNotFinite)
	}
	f.value = Quantize(clamp(v, f.min, f.max), f.digits)
	f.fire(f)
	return nil
}

// Format renders the value at the configured precision.
func (f *Float) Format() string {
	return FormatSignificant(f.value, f.digits)
}

// Parse applies a serialized value.
func (f *Float) Parse(s string) error {
	v, err := parseFinite(s)
	if err != nil {
		return fmt.Errorf("%s: parse %q: %w", f.name, s, err)
	}
	return f.SetFloat64(v)
}

// Int is an integer-valued parameter. Written values are rounded to the
// nearest integer.
type Int struct {
	name  string
	code  string
	min   int64
	max   int64
	value int64
	notifier
}

// NewInt constructs an Int with a clamped default.
func NewInt(name, code string, min, max, value int64) *Int {
	i := &Int{name: name, code: code, min: min, max: max}
	i.value = int64(clamp(float64(value), float64(min), float64(max)))
	return i
}

func (i *Int) Name() string         { return i.name }
func (i *Int) Code() string         { return i.code }
func (i *Int) Kind() Kind           { return KindInt }
func (i *Int) Min() float64         { return float64(i.min) }
func (i *Int) Max() float64         { return float64(i.max) }
func (i *Int) Float64() float64     { return float64(i.value) }
func (i *Int) Int() int64           { return i.value }
func (i *Int) OnChange(fn Listener) { i.add(fn) }

// SetFloat64 rounds, clamps and stores v, then notifies listeners.
func (i *Int) SetFloat64(v float64) error {
	if !finite(v) {
		return fmt.Errorf("%s: %w", i.name, ErrNotFinite)
	}
	i.value = int64(clamp(math.Round(v), float64(i.min), float64(i.max)))
	i.fire(i)
	return nil
}

// SetInt stores v after clamping.
func (i *Int) SetInt(v int64) error {
	return i.SetFloat64(float64(v))
}

func (i *Int) Format() string {
	return strconv.FormatInt(i.value, 10)
}

// Parse accepts integer or real literals; reals are rounded.
func (i *Int) Parse(s string) error {
	v, err := parseFinite(s)
	if err != nil {
		return fmt.Errorf("%s: parse %q: %w", i.name, s, err)
	}
	return i.SetFloat64(v)
}
