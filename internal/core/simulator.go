// Package core wires the parameter catalogue, the action schedule and the
// engine into a Simulator, and exposes saved scenarios and report exports
// through a Service.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"

	"github.com/charmbracelet/log"

	"simpidemic/internal/action"
	"simpidemic/internal/codec"
	"simpidemic/internal/engine"
	"simpidemic/internal/param"
	"simpidemic/internal/virus"
)

// ResultListener is called after every refresh with the new result, or the
// error that stopped the run.
type ResultListener func(*engine.ResultSet, error)

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger; nil keeps the discarding default.
func WithLogger(l *log.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder records every simulate call.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Simulator) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer traces every simulate call.
func WithTracer(t Tracer) Option {
	return func(s *Simulator) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithPopulation sets the initial population and infected count.
func WithPopulation(initial, infected int64) Option {
	return func(s *Simulator) {
		s.pop = engine.Population{Initial: initial, Infected: infected}
	}
}

// WithKernel selects the transmission kernel.
func WithKernel(k KernelKind) Option {
	return func(s *Simulator) { s.kernel = k }
}

// WithDither enables dithered rounding. Each run gets a fresh source seeded
// with seed, so repeated runs stay identical.
func WithDither(scaler float64, seed int64) Option {
	return func(s *Simulator) {
		s.ditherScaler = scaler
		s.ditherSeed = seed
	}
}

// WithAutoRefresh re-runs the simulation whenever a parameter or action
// changes. Off by default.
func WithAutoRefresh(on bool) Option {
	return func(s *Simulator) { s.autoRefresh = on }
}

// Simulator owns one parameter set, one action schedule and the latest
// result. It is not safe for concurrent use.
type Simulator struct {
	params  *param.Set
	actions *action.Schedule
	kernel  KernelKind
	pop     engine.Population

	ditherScaler float64
	ditherSeed   int64
	autoRefresh  bool
	suspended    int

	logger  *log.Logger
	metrics MetricsRecorder
	tracer  Tracer

	listeners []ResultListener
	last      *engine.ResultSet
	lastErr   error
}

// NewSimulator builds a simulator over the default catalogue.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		params:  NewParameterSet(),
		actions: action.NewSchedule(),
		kernel:  KernelPeak,
		pop:     engine.Population{Initial: DefaultPopulation, Infected: DefaultInfected},
		logger:  log.New(io.Discard),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.params.OnChange(func(changed []string) {
		s.logger.Debug("parameters changed", "names", changed)
		s.changed()
	})
	return s
}

// Params exposes the parameter set. Writes through it trigger a refresh
// when auto-refresh is on.
func (s *Simulator) Params() *param.Set { return s.params }

// Actions exposes the schedule. Prefer the Simulator's action methods,
// which validate targets and trigger refreshes.
func (s *Simulator) Actions() *action.Schedule { return s.actions }

// Kernel returns the selected kernel kind.
func (s *Simulator) Kernel() KernelKind { return s.kernel }

// SetKernel switches the kernel kind.
func (s *Simulator) SetKernel(k KernelKind) error {
	k, err := ParseKernelKind(string(k))
	if err != nil {
		return err
	}
	if k != s.kernel {
		s.kernel = k
		s.changed()
	}
	return nil
}

// Population returns the configured population.
func (s *Simulator) Population() engine.Population { return s.pop }

// OnResult registers a listener for refresh outcomes.
func (s *Simulator) OnResult(fn ResultListener) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

// Model assembles the virus model from the current parameters.
func (s *Simulator) Model() virus.Model {
	p := s.params
	var kernel virus.Kernel = virus.PeakKernel{
		PeakDay:        p.Value(ParamPeakContagiousDay),
		Contagiousness: p.Value(ParamContagiousness),
	}
	if s.kernel == KernelTable {
		table := DefaultTransmissionTable
		if arr, err := p.Array(ParamTransmissionProbability); err == nil {
			table = arr.Values()
		}
		kernel = virus.TableKernel{Probabilities: table}
	}
	return virus.Model{
		Kernel:             kernel,
		MortalityTreated:   p.Value(ParamMortalityTreated),
		MortalityUntreated: p.Value(ParamMortalityUntreated),
		DayTreatmentBegins: int(p.Value(ParamDayTreatmentBegins)),
		TreatmentDuration:  int(p.Value(ParamTreatmentDuration)),
		ImmunityLoss:       p.Value(ParamImmunityLoss),
	}
}

// General assembles the run-wide inputs from the current parameters.
func (s *Simulator) General() engine.General {
	return engine.General{
		ContactsPerDay:           s.params.Value(ParamContactsPerDay),
		TreatmentCapacityPer100K: s.params.Value(ParamTreatmentCapacityPer100K),
		NumDays:                  int(s.params.Value(ParamNumDays)),
	}
}

// Refresh runs the engine on the current state, stores the outcome and
// notifies result listeners. An invariant violation is logged at error
// level and returned with the partial result.
func (s *Simulator) Refresh(ctx context.Context) (*engine.ResultSet, error) {
	var result *engine.ResultSet
	err := instrument(ctx, s.metrics, s.tracer, "simulate", func(context.Context) error {
		var opts []engine.Option
		if s.ditherScaler != 0 {
			opts = append(opts, engine.WithRounding(engine.NewDitherRounding(s.ditherScaler, s.ditherSeed)))
		}
		var err error
		result, err = engine.Simulate(s.Model(), s.General(), s.actions, s.pop, opts...)
		return err
	})
	var inv *engine.InvariantError
	switch {
	case errors.As(err, &inv):
		s.logger.Error("simulation invariant violated", "day", inv.Day, "check", inv.Check, "want", inv.Want, "got", inv.Got)
	case err != nil:
		s.logger.Error("simulation failed", "err", err)
	default:
		s.logger.Debug("simulation complete", "days", result.NumDays, "kernel", s.kernel)
	}
	s.last, s.lastErr = result, err
	for _, fn := range s.listeners {
		fn(result, err)
	}
	return result, err
}

// Run refreshes and packages the result with the inputs that produced it.
func (s *Simulator) Run(ctx context.Context) (Run, error) {
	result, err := s.Refresh(ctx)
	run := Run{
		Query:      s.EncodeQuery(),
		Kernel:     s.kernel,
		Population: s.pop,
		Parameters: s.params.Describe(),
		Actions:    s.actions.Entries(),
		Result:     result,
	}
	if result != nil {
		run.Summary = result.Summary()
	}
	return run, err
}

// Result returns the latest result, running the engine first if nothing
// has been computed yet.
func (s *Simulator) Result(ctx context.Context) (*engine.ResultSet, error) {
	if s.last == nil && s.lastErr == nil {
		return s.Refresh(ctx)
	}
	return s.last, s.lastErr
}

// Update applies several parameter writes as one change.
func (s *Simulator) Update(fn func(*param.Set) error) error {
	return s.params.Batch(func() error { return fn(s.params) })
}

// AddAction schedules the current value of the named parameter on day.
// Only parameters the engine reads mid-run are accepted.
func (s *Simulator) AddAction(day int, name string) (action.Action, error) {
	sc, err := s.actionTarget(name)
	if err != nil {
		return action.Action{}, err
	}
	a, err := s.actions.Add(day, sc)
	if err != nil {
		return action.Action{}, err
	}
	s.changed()
	return a, nil
}

// AddActionValue schedules an explicit value, clamped to the parameter's
// bounds.
func (s *Simulator) AddActionValue(day int, name string, value float64, active bool) (action.Action, error) {
	sc, err := s.actionTarget(name)
	if err != nil {
		return action.Action{}, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return action.Action{}, fmt.Errorf("%s: %w", name, param.ErrNotFinite)
	}
	value = min(max(value, sc.Min()), sc.Max())
	a, err := s.actions.AddValue(day, sc.Name(), sc.Code(), value, active)
	if err != nil {
		return action.Action{}, err
	}
	s.changed()
	return a, nil
}

// RemoveAction deletes an action by ID.
func (s *Simulator) RemoveAction(id string) error {
	if err := s.actions.Remove(id); err != nil {
		return err
	}
	s.changed()
	return nil
}

// ToggleAction flips an action's active flag and returns the new state.
func (s *Simulator) ToggleAction(id string) (bool, error) {
	active, err := s.actions.Toggle(id)
	if err != nil {
		return false, err
	}
	s.changed()
	return active, nil
}

func (s *Simulator) actionTarget(name string) (param.Scalar, error) {
	if !engine.IsActionable(name) {
		return nil, fmt.Errorf("%w: %s cannot be scheduled", ErrNotActionable, name)
	}
	return s.params.Scalar(name)
}

// ErrNotActionable is returned for actions on parameters the engine only
// reads at run start.
var ErrNotActionable = errors.New("core: parameter is not actionable")

// EncodeQuery serializes parameters, kernel and actions.
func (s *Simulator) EncodeQuery() string {
	return codec.EncodeString(s.state())
}

// ApplyQuery restores state from an encoded query. Fields that fail are
// skipped and returned; the rest are applied and trigger a single refresh.
func (s *Simulator) ApplyQuery(raw string) []codec.FieldError {
	q, err := url.ParseQuery(trimQuery(raw))
	if err != nil {
		return []codec.FieldError{{Key: "", Err: err}}
	}
	return s.ApplyValues(q)
}

// ApplyValues is ApplyQuery for already parsed values.
func (s *Simulator) ApplyValues(q url.Values) []codec.FieldError {
	s.suspended++
	st := s.state()
	errs := codec.Decode(q, &st)
	if kind, err := ParseKernelKind(st.Kernel); err != nil {
		errs = append(errs, codec.FieldError{Key: codec.KeyKernel, Err: err})
	} else {
		s.kernel = kind
	}
	s.suspended--
	for _, fe := range errs {
		s.logger.Warn("query field rejected", "key", fe.Key, "err", fe.Err)
	}
	s.changed()
	return errs
}

func (s *Simulator) state() codec.State {
	return codec.State{Params: s.params, Kernel: string(s.kernel), Actions: s.actions}
}

func (s *Simulator) changed() {
	s.last, s.lastErr = nil, nil
	if s.autoRefresh && s.suspended == 0 && !s.params.Batching() {
		_, _ = s.Refresh(context.Background())
	}
}

func trimQuery(raw string) string {
	if len(raw) > 0 && raw[0] == '?' {
		return raw[1:]
	}
	return raw
}
