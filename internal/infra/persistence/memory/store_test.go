package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"simpidemic/pkg/domain"
	"simpidemic/testutil"
)

func fixedStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore()
	s.SetNowFunc(func() time.Time { return now })
	return s, &now
}

func TestScenarioCRUD(t *testing.T) {
	ctx := context.Background()
	s, now := fixedStore(t)

	var created domain.Scenario
	res, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateScenario(domain.Scenario{Name: "baseline", Query: "v=1&cpd=15"})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || !created.CreatedAt.Equal(*now) {
		t.Fatalf("expected ID and timestamps, got %+v", created)
	}
	if len(res.Changes) != 1 || res.Changes[0].Action != domain.ActionCreate {
		t.Fatalf("unexpected changes %+v", res.Changes)
	}

	*now = now.Add(time.Hour)
	if _, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateScenario(created.ID, func(sc *domain.Scenario) error {
			sc.Query = "v=1&cpd=5"
			sc.ID = "hijack"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := s.GetScenario(created.ID)
	if !ok || got.Query != "v=1&cpd=5" || !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("update not applied: %+v", got)
	}

	if _, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteScenario(created.ID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s.ListScenarios()) != 0 {
		t.Fatalf("expected empty store")
	}
	_, err = s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteScenario(created.ID) })
	if !errors.Is(err, domain.ErrScenarioNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s, _ := fixedStore(t)
	boom := errors.New("boom")
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateScenario(domain.Scenario{Name: "a"}); err != nil {
			return err
		}
		if len(tx.Snapshot().ListScenarios()) != 1 {
			t.Fatalf("transaction should see its own write")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(s.ListScenarios()) != 0 {
		t.Fatalf("rolled back write leaked")
	}
	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateScenario(domain.Scenario{})
		return err
	})
	if !errors.Is(err, domain.ErrInvalidScenario) {
		t.Fatalf("expected validation error, got %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.RunInTransaction(cancelled, func(Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestExportLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := fixedStore(t)
	var sc domain.Scenario
	var ex domain.Export
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		if sc, err = tx.CreateScenario(domain.Scenario{Name: "a"}); err != nil {
			return err
		}
		ex, err = tx.CreateExport(domain.Export{ScenarioID: sc.ID, Formats: []string{"csv"}})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if ex.Status != domain.ExportQueued {
		t.Fatalf("new export should be queued, got %s", ex.Status)
	}
	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateExport(ex.ID, func(e *domain.Export) error {
			e.Status = domain.ExportSucceeded
			e.Artifacts = append(e.Artifacts, domain.Artifact{Format: "csv", Key: "reports/a/x.csv"})
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update export: %v", err)
	}
	got, ok := s.GetExport(ex.ID)
	if !ok || got.CompletedAt == nil || len(got.Artifacts) != 1 {
		t.Fatalf("unexpected export %+v", got)
	}
	got.Artifacts[0].Key = "mutated"
	if again, _ := s.GetExport(ex.ID); again.Artifacts[0].Key != "reports/a/x.csv" {
		t.Fatalf("export returned by reference")
	}
	if len(s.ListExports(sc.ID)) != 1 || len(s.ListExports("")) != 1 || len(s.ListExports("other")) != 0 {
		t.Fatalf("unexpected export listing")
	}

	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateExport(domain.Export{ScenarioID: "missing"})
		return err
	})
	if !errors.Is(err, domain.ErrScenarioNotFound) {
		t.Fatalf("expected scenario not found, got %v", err)
	}
	res, err := s.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteScenario(sc.ID) })
	if err != nil || len(res.Changes) != 2 {
		t.Fatalf("delete should cascade to exports: %v %+v", err, res.Changes)
	}
	if _, ok := s.GetExport(ex.ID); ok {
		t.Fatalf("export should be gone")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := fixedStore(t)
	_, _ = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateScenario(domain.Scenario{ID: "fixed", Name: "a"})
		return err
	})
	snap := s.ExportState()
	other := NewStore()
	other.ImportState(snap)
	if _, ok := other.GetScenario("fixed"); !ok {
		t.Fatalf("import lost scenario")
	}
	other.ImportState(Snapshot{})
	if len(other.ListScenarios()) != 0 {
		t.Fatalf("empty import should clear")
	}
	err := s.View(ctx, func(v TransactionView) error {
		if _, ok := v.FindScenario("fixed"); !ok {
			t.Fatalf("view missing scenario")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestMemoryStoreImportsOnlyDomain(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Prefixes("simpidemic/internal"), "stores depend on the domain port only")
}
