package param

import (
	"fmt"
)

// ChangeListener receives the names of parameters written since the last
// notification, in first-write order.
type ChangeListener func(changed []string)

// Set is an ordered registry of parameters with a scoped batch-update mode.
// Outside a batch every write notifies set listeners immediately; inside a
// batch the names are collected and a single notification fires when the
// outermost batch returns. A Set is not safe for concurrent use.
type Set struct {
	params    []Parameter
	byName    map[string]Parameter
	byCode    map[string]Parameter
	listeners []ChangeListener

	depth   int
	pending []string
	seen    map[string]struct{}
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{
		byName: make(map[string]Parameter),
		byCode: make(map[string]Parameter),
		seen:   make(map[string]struct{}),
	}
}

// Add registers p. Names and codes must be unique within the set.
func (s *Set) Add(p Parameter) error {
	if p == nil {
		return fmt.Errorf("param: nil parameter")
	}
	if _, dup := s.byName[p.Name()]; dup {
		return fmt.Errorf("param: duplicate name %s", p.Name())
	}
	if _, dup := s.byCode[p.Code()]; dup {
		return fmt.Errorf("param: duplicate code %s", p.Code())
	}
	s.params = append(s.params, p)
	s.byName[p.Name()] = p
	s.byCode[p.Code()] = p
	p.OnChange(s.changed)
	return nil
}

// MustAdd registers each parameter and panics on a registration error.
func (s *Set) MustAdd(params ...Parameter) *Set {
	for _, p := range params {
		if err := s.Add(p); err != nil {
			panic(err)
		}
	}
	return s
}

// All returns the parameters in registration order.
func (s *Set) All() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

// Lookup finds a parameter by name.
func (s *Set) Lookup(name string) (Parameter, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// ByCode finds a parameter by its serialization code.
func (s *Set) ByCode(code string) (Parameter, bool) {
	p, ok := s.byCode[code]
	return p, ok
}

// Scalar returns the named scalar parameter.
func (s *Set) Scalar(name string) (Scalar, error) {
	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownParameter)
	}
	sc, ok := p.(Scalar)
	if !ok {
		return nil, fmt.Errorf("param: %s is %s, not a scalar", name, p.Kind())
	}
	return sc, nil
}

// Array returns the named array parameter.
func (s *Set) Array(name string) (*Array, error) {
	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownParameter)
	}
	arr, ok := p.(*Array)
	if !ok {
		return nil, fmt.Errorf("param: %s is %s, not an array", name, p.Kind())
	}
	return arr, nil
}

// Value returns the named scalar's value, or zero if it is missing.
func (s *Set) Value(name string) float64 {
	sc, err := s.Scalar(name)
	if err != nil {
		return 0
	}
	return sc.Float64()
}

// SetValue writes a scalar by name.
func (s *Set) SetValue(name string, v float64) error {
	sc, err := s.Scalar(name)
	if err != nil {
		return err
	}
	return sc.SetFloat64(v)
}

// Describe returns descriptors for all parameters in registration order.
func (s *Set) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(s.params))
	for _, p := range s.params {
		out = append(out, Describe(p))
	}
	return out
}

// OnChange registers a set-level listener.
func (s *Set) OnChange(fn ChangeListener) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

// Batching reports whether a batch is in progress.
func (s *Set) Batching() bool { return s.depth > 0 }

// Batch runs fn with notifications deferred. Listeners fire once after the
// outermost batch completes, even when fn returns an error, provided at
// least one parameter was written.
func (s *Set) Batch(fn func() error) error {
	s.depth++
	err := func() error {
		defer func() { s.depth-- }()
		return fn()
	}()
	if s.depth == 0 {
		s.flush()
	}
	return err
}

func (s *Set) changed(p Parameter) {
	if _, ok := s.seen[p.Name()]; !ok {
		s.seen[p.Name()] = struct{}{}
		s.pending = append(s.pending, p.Name())
	}
	if s.depth == 0 {
		s.flush()
	}
}

func (s *Set) flush() {
	if len(s.pending) == 0 {
		return
	}
	changed := s.pending
	s.pending = nil
	s.seen = make(map[string]struct{})
	for _, fn := range s.listeners {
		fn(changed)
	}
}
