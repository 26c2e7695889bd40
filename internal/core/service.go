package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"simpidemic/internal/action"
	"simpidemic/internal/codec"
	"simpidemic/internal/engine"
	"simpidemic/internal/param"
	"simpidemic/pkg/domain"
)

// ErrInvalidQuery is matched by *QueryError.
var ErrInvalidQuery = errors.New("core: invalid query")

// QueryError lists the fields of a query that could not be applied.
type QueryError struct {
	Fields []codec.FieldError
}

func (e *QueryError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("invalid query: %s", strings.Join(parts, "; "))
}

func (e *QueryError) Unwrap() error { return ErrInvalidQuery }

// Run is a simulation outcome together with the inputs that produced it.
type Run struct {
	Scenario   *domain.Scenario   `json:"scenario,omitempty"`
	Query      string             `json:"query"`
	Kernel     KernelKind         `json:"kernel"`
	Population engine.Population  `json:"population"`
	Parameters []param.Descriptor `json:"parameters"`
	Actions    []action.Action    `json:"actions"`
	Result     *engine.ResultSet  `json:"result"`
	Summary    engine.Summary     `json:"summary"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger. Simulators created by the
// service share it.
func WithServiceLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServiceMetrics records every service operation and simulation.
func WithServiceMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithServiceTracer traces every service operation and simulation.
func WithServiceTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Service manages saved scenarios and export records on top of a
// ScenarioStore and runs simulations for them. Each run uses a fresh
// Simulator, so a Service is safe for concurrent use when its store is.
type Service struct {
	store   domain.ScenarioStore
	logger  *log.Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by store.
func NewService(store domain.ScenarioStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  log.New(io.Discard),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the backing store.
func (s *Service) Store() domain.ScenarioStore { return s.store }

func (s *Service) newSimulator(pop engine.Population) *Simulator {
	pop = normalizePopulation(pop)
	return NewSimulator(
		WithLogger(s.logger),
		WithMetricsRecorder(s.metrics),
		WithTracer(s.tracer),
		WithPopulation(pop.Initial, pop.Infected),
	)
}

func normalizePopulation(pop engine.Population) engine.Population {
	if pop.Initial == 0 {
		pop.Initial = DefaultPopulation
		if pop.Infected == 0 {
			pop.Infected = DefaultInfected
		}
	}
	return pop
}

// Simulate runs an ad-hoc query. Fields that fail to apply are reported as
// warnings; the run uses the defaults for them.
func (s *Service) Simulate(ctx context.Context, query string, pop engine.Population) (Run, error) {
	sim := s.newSimulator(pop)
	var warnings []string
	for _, fe := range sim.ApplyQuery(query) {
		warnings = append(warnings, fe.Error())
	}
	run, err := s.run(ctx, sim, nil)
	run.Warnings = warnings
	return run, err
}

func (s *Service) run(ctx context.Context, sim *Simulator, sc *domain.Scenario) (Run, error) {
	run, err := sim.Run(ctx)
	run.Scenario = sc
	return run, err
}

// canonicalQuery applies query to a fresh simulator and returns its
// canonical encoding, or a *QueryError.
func (s *Service) canonicalQuery(query string, pop engine.Population) (string, error) {
	sim := s.newSimulator(pop)
	if errs := sim.ApplyQuery(query); len(errs) > 0 {
		return "", &QueryError{Fields: errs}
	}
	return sim.EncodeQuery(), nil
}

// CreateScenario validates and stores a scenario. The query is normalized
// to its canonical encoding.
func (s *Service) CreateScenario(ctx context.Context, sc domain.Scenario) (domain.Scenario, error) {
	var created domain.Scenario
	err := instrument(ctx, s.metrics, s.tracer, "create_scenario", func(ctx context.Context) error {
		pop := normalizePopulation(engine.Population{Initial: sc.Population, Infected: sc.Infected})
		sc.Population, sc.Infected = pop.Initial, pop.Infected
		q, err := s.canonicalQuery(sc.Query, pop)
		if err != nil {
			return err
		}
		sc.Query = q
		_, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateScenario(sc)
			return err
		})
		return err
	})
	if err != nil {
		s.logger.Warn("create scenario failed", "name", sc.Name, "err", err)
		return domain.Scenario{}, err
	}
	s.logger.Info("scenario created", "id", created.ID, "name", created.Name)
	return created, nil
}

// UpdateScenario applies mutator and re-validates the query.
func (s *Service) UpdateScenario(ctx context.Context, id string, mutator func(*domain.Scenario) error) (domain.Scenario, error) {
	var updated domain.Scenario
	err := instrument(ctx, s.metrics, s.tracer, "update_scenario", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateScenario(id, func(sc *domain.Scenario) error {
				if err := mutator(sc); err != nil {
					return err
				}
				pop := normalizePopulation(engine.Population{Initial: sc.Population, Infected: sc.Infected})
				sc.Population, sc.Infected = pop.Initial, pop.Infected
				q, err := s.canonicalQuery(sc.Query, pop)
				if err != nil {
					return err
				}
				sc.Query = q
				return nil
			})
			return err
		})
		return err
	})
	return updated, err
}

// DeleteScenario removes a scenario and its export records.
func (s *Service) DeleteScenario(ctx context.Context, id string) error {
	return instrument(ctx, s.metrics, s.tracer, "delete_scenario", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteScenario(id)
		})
		if err == nil {
			s.logger.Info("scenario deleted", "id", id)
		}
		return err
	})
}

// GetScenario returns a scenario or a domain.ErrNotFound.
func (s *Service) GetScenario(_ context.Context, id string) (domain.Scenario, error) {
	sc, ok := s.store.GetScenario(id)
	if !ok {
		return domain.Scenario{}, domain.ErrNotFound{Entity: domain.EntityScenario, ID: id}
	}
	return sc, nil
}

// ListScenarios returns every scenario in creation order.
func (s *Service) ListScenarios(_ context.Context) []domain.Scenario {
	return s.store.ListScenarios()
}

// RunScenario loads a scenario and simulates it.
func (s *Service) RunScenario(ctx context.Context, id string) (Run, error) {
	sc, err := s.GetScenario(ctx, id)
	if err != nil {
		return Run{}, err
	}
	sim := s.newSimulator(engine.Population{Initial: sc.Population, Infected: sc.Infected})
	if errs := sim.ApplyQuery(sc.Query); len(errs) > 0 {
		return Run{}, &QueryError{Fields: errs}
	}
	return s.run(ctx, sim, &sc)
}

// RequestExport records a queued export for a scenario.
func (s *Service) RequestExport(ctx context.Context, scenarioID string, formats []string) (domain.Export, error) {
	var created domain.Export
	err := instrument(ctx, s.metrics, s.tracer, "request_export", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateExport(domain.Export{ScenarioID: scenarioID, Formats: formats, Status: domain.ExportQueued})
			return err
		})
		return err
	})
	return created, err
}

// UpdateExport applies mutator to an export record.
func (s *Service) UpdateExport(ctx context.Context, id string, mutator func(*domain.Export) error) (domain.Export, error) {
	var updated domain.Export
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateExport(id, mutator)
		return err
	})
	return updated, err
}

// GetExport returns an export or a domain.ErrNotFound.
func (s *Service) GetExport(_ context.Context, id string) (domain.Export, error) {
	e, ok := s.store.GetExport(id)
	if !ok {
		return domain.Export{}, domain.ErrNotFound{Entity: domain.EntityExport, ID: id}
	}
	return e, nil
}

// ListExports returns the exports of a scenario.
func (s *Service) ListExports(_ context.Context, scenarioID string) []domain.Export {
	return s.store.ListExports(scenarioID)
}
