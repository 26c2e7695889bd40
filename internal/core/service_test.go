package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"simpidemic/internal/engine"
	"simpidemic/internal/infra/persistence/memory"
	"simpidemic/pkg/domain"
)

type observation struct {
	operation string
	success   bool
}

type captureMetrics struct {
	mu  sync.Mutex
	obs []observation
}

func (c *captureMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	c.mu.Lock()
	c.obs = append(c.obs, observation{operation: operation, success: success})
	c.mu.Unlock()
}

func (c *captureMetrics) count(operation string, success bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, o := range c.obs {
		if o.operation == operation && o.success == success {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*Service, *captureMetrics) {
	t.Helper()
	metrics := &captureMetrics{}
	return NewService(memory.NewStore(), WithServiceMetrics(metrics)), metrics
}

func TestServiceSimulateReportsWarnings(t *testing.T) {
	svc, metrics := newTestService(t)
	run, err := svc.Simulate(context.Background(), "nd=50&cpd=abc&zz=1", engine.Population{})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(run.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", run.Warnings)
	}
	if run.Result == nil || run.Result.NumDays != 50 {
		t.Fatalf("expected a 50 day result")
	}
	if run.Population.Initial != DefaultPopulation || run.Population.Infected != DefaultInfected {
		t.Fatalf("population should default, got %+v", run.Population)
	}
	if run.Summary != run.Result.Summary() {
		t.Fatalf("summary should match result")
	}
	if metrics.count("simulate", true) != 1 {
		t.Fatalf("simulate should be recorded once")
	}
}

func TestServiceScenarioLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, metrics := newTestService(t)

	if _, err := svc.CreateScenario(ctx, domain.Scenario{Name: "bad", Query: "cpd=nope"}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if _, err := svc.CreateScenario(ctx, domain.Scenario{Query: "cpd=5"}); !errors.Is(err, domain.ErrInvalidScenario) {
		t.Fatalf("expected ErrInvalidScenario, got %v", err)
	}
	if metrics.count("create_scenario", false) != 2 {
		t.Fatalf("failed creates should be recorded")
	}

	sc, err := svc.CreateScenario(ctx, domain.Scenario{Name: "lockdown", Query: "nd=60&cpd=5&adcpd=20&avcpd=2", Population: 50000, Infected: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sc.ID == "" || sc.Query == "nd=60&cpd=5&adcpd=20&avcpd=2" {
		t.Fatalf("expected id and canonical query, got %+v", sc)
	}

	run, err := svc.RunScenario(ctx, sc.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Scenario == nil || run.Scenario.ID != sc.ID || len(run.Actions) != 1 || run.Result.InitialPopulation != 50000 {
		t.Fatalf("unexpected run %+v", run)
	}
	if run.Query != sc.Query {
		t.Fatalf("run should carry the stored query")
	}

	updated, err := svc.UpdateScenario(ctx, sc.ID, func(s *domain.Scenario) error {
		s.Query = "nd=90"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := svc.RunScenario(ctx, updated.ID)
	if again.Result.NumDays != 90 || len(again.Actions) != 0 {
		t.Fatalf("update not applied: days=%d actions=%d", again.Result.NumDays, len(again.Actions))
	}
	if _, err := svc.UpdateScenario(ctx, sc.ID, func(s *domain.Scenario) error {
		s.Query = "nd=x"
		return nil
	}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected query error on update, got %v", err)
	}

	if got := svc.ListScenarios(ctx); len(got) != 1 {
		t.Fatalf("expected one scenario, got %d", len(got))
	}
	if err := svc.DeleteScenario(ctx, sc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetScenario(ctx, sc.ID); !errors.Is(err, domain.ErrScenarioNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.RunScenario(ctx, sc.ID); !errors.Is(err, domain.ErrScenarioNotFound) {
		t.Fatalf("expected not found on run, got %v", err)
	}
}

func TestServiceExports(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	sc, err := svc.CreateScenario(ctx, domain.Scenario{Name: "base"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RequestExport(ctx, "missing", []string{"csv"}); err == nil {
		t.Fatalf("export for a missing scenario should fail")
	}
	exp, err := svc.RequestExport(ctx, sc.ID, []string{"csv", "png"})
	if err != nil {
		t.Fatalf("request export: %v", err)
	}
	if exp.Status != domain.ExportQueued {
		t.Fatalf("expected queued, got %s", exp.Status)
	}
	done, err := svc.UpdateExport(ctx, exp.ID, func(e *domain.Export) error {
		e.Status = domain.ExportSucceeded
		return nil
	})
	if err != nil || done.CompletedAt == nil {
		t.Fatalf("expected completion timestamp, got %+v %v", done, err)
	}
	if got := svc.ListExports(ctx, sc.ID); len(got) != 1 || got[0].ID != exp.ID {
		t.Fatalf("unexpected exports %+v", got)
	}
	if _, err := svc.GetExport(ctx, "nope"); !errors.Is(err, domain.ErrExportNotFound) {
		t.Fatalf("expected export not found, got %v", err)
	}
	_ = svc.DeleteScenario(ctx, sc.ID)
	if _, err := svc.GetExport(ctx, exp.ID); err == nil {
		t.Fatalf("exports should go with their scenario")
	}
}

func TestServiceTracesOperations(t *testing.T) {
	tracer := NewJSONTracer(nil)
	svc := NewService(memory.NewStore(), WithServiceTracer(tracer))
	if _, err := svc.CreateScenario(context.Background(), domain.Scenario{Name: "traced"}); err != nil {
		t.Fatal(err)
	}
	ops := map[string]bool{}
	for _, e := range tracer.Entries() {
		ops[e.Operation] = true
	}
	if !ops["create_scenario"] {
		t.Fatalf("expected create_scenario span, got %+v", tracer.Entries())
	}
}
