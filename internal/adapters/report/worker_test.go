package report

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"simpidemic/internal/blob"
	"simpidemic/internal/core"
	"simpidemic/internal/infra/persistence/memory"
	"simpidemic/pkg/domain"
)

type countingMetrics struct {
	mu  sync.Mutex
	ops map[string]int
}

func (c *countingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ops == nil {
		c.ops = map[string]int{}
	}
	key := op + ":ok"
	if !success {
		key = op + ":err"
	}
	c.ops[key]++
}

func (c *countingMetrics) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops[key]
}

func waitDone(t *testing.T, svc *core.Service, id string) domain.Export {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		exp, err := svc.GetExport(context.Background(), id)
		if err != nil {
			t.Fatalf("get export: %v", err)
		}
		if exp.Done() {
			return exp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return domain.Export{}
}

func TestExporterKeysAndURLs(t *testing.T) {
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exp := NewExporter(store, nil)
	exp.newID = func() string { return "fixed" }
	artifacts, err := exp.Export(context.Background(), testRun(t, ""), []Format{FormatJSON, FormatCSV})
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 2 || artifacts[0].Key != "reports/adhoc/fixed.json" || artifacts[1].Key != "reports/adhoc/fixed.csv" {
		t.Fatalf("unexpected artifacts %+v", artifacts)
	}
	if !strings.HasPrefix(artifacts[1].URL, "file://") || artifacts[1].ContentType != "text/csv" {
		t.Fatalf("unexpected artifact %+v", artifacts[1])
	}
	if _, err := exp.Export(context.Background(), testRun(t, ""), []Format{FormatJSON}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("reusing an id must not overwrite, got %v", err)
	}
}

func TestWorkerProcessesExport(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.NewStore())
	sc, err := svc.CreateScenario(ctx, domain.Scenario{Name: "baseline", Query: "nd=50", Population: 20000, Infected: 4})
	if err != nil {
		t.Fatal(err)
	}
	store := blob.NewMockS3()
	metrics := &countingMetrics{}
	w := NewWorker(svc, NewExporter(store, nil), WithWorkerMetrics(metrics))
	w.Start()
	defer func() { _ = w.Stop(ctx) }()

	queued, err := w.Enqueue(ctx, sc.ID, []string{"csv,png"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != domain.ExportQueued {
		t.Fatalf("expected queued status, got %s", queued.Status)
	}
	done := waitDone(t, svc, queued.ID)
	if done.Status != domain.ExportSucceeded || len(done.Artifacts) != 2 {
		t.Fatalf("unexpected export %+v", done)
	}
	for _, a := range done.Artifacts {
		if !strings.HasPrefix(a.Key, "reports/"+sc.ID+"/") {
			t.Fatalf("unexpected key %s", a.Key)
		}
		info, rc, err := store.Get(ctx, a.Key)
		if err != nil {
			t.Fatalf("artifact %s missing: %v", a.Key, err)
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		if int64(len(b)) != info.Size || info.Size != a.Size {
			t.Fatalf("size mismatch for %s", a.Key)
		}
	}
	if metrics.get("export:ok") != 1 {
		t.Fatalf("export should be observed once")
	}
}

func TestWorkerFailsForDeletedScenario(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.NewStore())
	sc, _ := svc.CreateScenario(ctx, domain.Scenario{Name: "gone"})
	w := NewWorker(svc, NewExporter(blob.NewMemory(), nil))
	exp, err := w.Enqueue(ctx, sc.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	// write through the store so the broken query skips service validation
	_, _ = svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateScenario(sc.ID, func(s *domain.Scenario) error {
			s.Query = "cpd=bad"
			return nil
		})
		return err
	})
	w.Start()
	defer func() { _ = w.Stop(ctx) }()
	done := waitDone(t, svc, exp.ID)
	if done.Status != domain.ExportFailed || done.Error == "" || done.CompletedAt == nil {
		t.Fatalf("expected failure, got %+v", done)
	}
}

func TestWorkerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.NewStore())
	sc, _ := svc.CreateScenario(ctx, domain.Scenario{Name: "q"})
	w := NewWorker(svc, NewExporter(blob.NewMemory(), nil), WithQueueSize(1))
	if _, err := w.Enqueue(ctx, sc.ID, []string{"xlsx"}); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := w.Enqueue(ctx, "missing", nil); !errors.Is(err, domain.ErrScenarioNotFound) {
		t.Fatalf("expected scenario not found, got %v", err)
	}
	if _, err := w.Enqueue(ctx, sc.ID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Enqueue(ctx, sc.ID, nil); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	exports := svc.ListExports(ctx, sc.ID)
	failed := 0
	for _, e := range exports {
		if e.Status == domain.ExportFailed {
			failed++
		}
	}
	if len(exports) != 2 || failed != 1 {
		t.Fatalf("overflow export should be recorded as failed: %+v", exports)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
