package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"simpidemic/internal/core"
	"simpidemic/pkg/domain"
)

// ErrQueueFull is returned when the worker cannot accept another export.
var ErrQueueFull = errors.New("report: export queue full")

const defaultQueueSize = 32

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the logger.
func WithWorkerLogger(l *log.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWorkerMetrics observes each processed export as "export".
func WithWorkerMetrics(m core.MetricsRecorder) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithQueueSize bounds the number of pending exports.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan string, n)
		}
	}
}

// Worker processes export records asynchronously: it re-runs the scenario,
// renders the requested formats and records the artifacts on the export.
type Worker struct {
	svc      *core.Service
	exporter *Exporter
	logger   *log.Logger
	metrics  core.MetricsRecorder

	queue chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWorker builds a stopped worker; call Start.
func NewWorker(svc *core.Service, exporter *Exporter, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		svc:      svc,
		exporter: exporter,
		logger:   log.New(io.Discard),
		queue:    make(chan string, defaultQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing queued exports.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels in-flight work and waits for the loop to exit or ctx to
// expire. Exports still queued stay in the queued state.
func (w *Worker) Stop(ctx context.Context) error {
	w.once.Do(w.cancel)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue records a queued export for scenarioID and schedules it. Formats
// are validated first; an empty list means DefaultFormats.
func (w *Worker) Enqueue(ctx context.Context, scenarioID string, formats []string) (domain.Export, error) {
	parsed, err := ParseFormats(formats)
	if err != nil {
		return domain.Export{}, err
	}
	exp, err := w.svc.RequestExport(ctx, scenarioID, Strings(parsed))
	if err != nil {
		return domain.Export{}, err
	}
	select {
	case w.queue <- exp.ID:
	default:
		_, _ = w.svc.UpdateExport(ctx, exp.ID, func(e *domain.Export) error {
			e.Status = domain.ExportFailed
			e.Error = ErrQueueFull.Error()
			return nil
		})
		return domain.Export{}, ErrQueueFull
	}
	w.logger.Info("export queued", "id", exp.ID, "scenario", scenarioID, "formats", exp.Formats)
	return exp, nil
}

func (w *Worker) process(id string) {
	started := time.Now()
	err := w.run(id)
	if w.metrics != nil {
		w.metrics.Observe(w.ctx, "export", err == nil, time.Since(started))
	}
	if err != nil {
		w.logger.Error("export failed", "id", id, "err", err)
		w.setStatus(id, domain.ExportFailed, err.Error(), nil)
		return
	}
	w.logger.Info("export complete", "id", id, "duration", time.Since(started))
}

func (w *Worker) run(id string) error {
	exp, err := w.setStatus(id, domain.ExportRunning, "", nil)
	if err != nil {
		return err
	}
	formats, err := ParseFormats(exp.Formats)
	if err != nil {
		return err
	}
	run, err := w.svc.RunScenario(w.ctx, exp.ScenarioID)
	if err != nil {
		return fmt.Errorf("run scenario %s: %w", exp.ScenarioID, err)
	}
	artifacts, err := w.exporter.Export(w.ctx, run, formats)
	if err != nil {
		return err
	}
	_, err = w.setStatus(id, domain.ExportSucceeded, "", artifacts)
	return err
}

func (w *Worker) setStatus(id string, status domain.ExportStatus, msg string, artifacts []domain.Artifact) (domain.Export, error) {
	// the worker context may already be cancelled; status writes must land
	ctx := context.WithoutCancel(w.ctx)
	return w.svc.UpdateExport(ctx, id, func(e *domain.Export) error {
		e.Status = status
		e.Error = msg
		if artifacts != nil {
			e.Artifacts = artifacts
		}
		return nil
	})
}
