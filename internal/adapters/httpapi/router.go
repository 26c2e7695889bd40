// Package httpapi exposes the simulator, saved scenarios and report exports
// over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simpidemic/internal/adapters/report"
	"simpidemic/internal/blob"
	"simpidemic/internal/core"
	"simpidemic/internal/engine"
	"simpidemic/pkg/domain"
)

// Query keys handled by the API rather than the state codec.
const (
	keyPopulation = "population"
	keyInfected   = "infected"
	keyFormat     = "format"
)

// Config holds the collaborators of the router. Worker and Blobs may be nil,
// which disables the export routes. Gatherer defaults to the Prometheus
// default registry.
type Config struct {
	Service  *core.Service
	Worker   *report.Worker
	Blobs    blob.Store
	Logger   *log.Logger
	Gatherer prometheus.Gatherer
}

type handler struct {
	svc    *core.Service
	worker *report.Worker
	blobs  blob.Store
	logger *log.Logger
}

// NewRouter builds the chi router.
func NewRouter(cfg Config) http.Handler {
	h := &handler{svc: cfg.Service, worker: cfg.Worker, blobs: cfg.Blobs, logger: cfg.Logger}
	if h.logger == nil {
		h.logger = log.New(io.Discard)
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/parameters", h.handleParameters)
		api.Get("/simulate", h.handleSimulate)
		api.Get("/scenarios", h.handleListScenarios)
		api.Post("/scenarios", h.handleCreateScenario)
		api.Route("/scenarios/{id}", func(sr chi.Router) {
			sr.Get("/", h.handleGetScenario)
			sr.Put("/", h.handleUpdateScenario)
			sr.Delete("/", h.handleDeleteScenario)
			sr.Get("/result", h.handleScenarioResult)
			sr.Get("/exports", h.handleListExports)
			sr.Post("/exports", h.handleCreateExport)
		})
		api.Get("/exports/{id}", h.handleGetExport)
		api.Get("/exports/{id}/artifacts/{format}", h.handleGetArtifact)
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(started))
	})
}

type parameterView struct {
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Kind       string    `json:"kind"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Default    float64   `json:"default,omitempty"`
	Array      []float64 `json:"array,omitempty"`
	Actionable bool      `json:"actionable"`
}

func (h *handler) handleParameters(w http.ResponseWriter, _ *http.Request) {
	var out []parameterView
	for _, d := range core.NewParameterSet().Describe() {
		out = append(out, parameterView{
			Name:       d.Name,
			Code:       d.Code,
			Kind:       string(d.Kind),
			Min:        d.Min,
			Max:        d.Max,
			Default:    d.Value,
			Array:      d.Array,
			Actionable: engine.IsActionable(d.Name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parameters": out,
		"kernels":    []core.KernelKind{core.KernelPeak, core.KernelTable},
		"population": map[string]int64{"initial": core.DefaultPopulation, "infected": core.DefaultInfected},
	})
}

// handleSimulate runs the codec query in the URL. population, infected and
// format are read here and stripped before decoding.
func (h *handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pop, err := populationFrom(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := q.Get(keyFormat)
	for _, k := range []string{keyPopulation, keyInfected, keyFormat} {
		q.Del(k)
	}
	run, err := h.svc.Simulate(r.Context(), q.Encode(), pop)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeRun(w, run, format)
}

type scenarioRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Query       string `json:"query"`
	Population  int64  `json:"population"`
	Infected    int64  `json:"infected"`
}

func (h *handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": h.svc.ListScenarios(r.Context())})
}

func (h *handler) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sc, err := h.svc.CreateScenario(r.Context(), domain.Scenario{
		Name:        req.Name,
		Description: req.Description,
		Query:       req.Query,
		Population:  req.Population,
		Infected:    req.Infected,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (h *handler) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := h.svc.GetScenario(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *handler) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sc, err := h.svc.UpdateScenario(r.Context(), chi.URLParam(r, "id"), func(s *domain.Scenario) error {
		s.Name = req.Name
		s.Description = req.Description
		s.Query = req.Query
		s.Population = req.Population
		s.Infected = req.Infected
		return nil
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *handler) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteScenario(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleScenarioResult(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.RunScenario(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeRun(w, run, r.URL.Query().Get(keyFormat))
}

type exportRequest struct {
	Formats []string `json:"formats"`
}

func (h *handler) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		writeError(w, http.StatusNotImplemented, "exports not configured")
		return
	}
	var req exportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	exp, err := h.worker.Enqueue(r.Context(), chi.URLParam(r, "id"), req.Formats)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exp)
}

func (h *handler) handleListExports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetScenario(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": h.svc.ListExports(r.Context(), id)})
}

func (h *handler) handleGetExport(w http.ResponseWriter, r *http.Request) {
	exp, err := h.svc.GetExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// handleGetArtifact streams an artifact from blob storage, so clients do not
// need direct access to the bucket or directory.
func (h *handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotImplemented, "exports not configured")
		return
	}
	exp, err := h.svc.GetExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	format := chi.URLParam(r, "format")
	for _, a := range exp.Artifacts {
		if a.Format != format {
			continue
		}
		info, rc, err := h.blobs.Get(r.Context(), a.Key)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", a.ContentType)
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			h.logger.Warn("artifact stream interrupted", "key", a.Key, "err", err)
		}
		return
	}
	writeError(w, http.StatusNotFound, "artifact not found")
}

// writeRun answers with the run as JSON, or rendered in format when one is
// given.
func (h *handler) writeRun(w http.ResponseWriter, run core.Run, format string) {
	if format == "" || format == string(report.FormatJSON) {
		writeJSON(w, http.StatusOK, run)
		return
	}
	f := report.Format(format)
	b, err := report.Render(f, run)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, bytes.NewReader(b))
}

type fieldErrorView struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	var qe *core.QueryError
	switch {
	case errors.As(err, &qe):
		fields := make([]fieldErrorView, len(qe.Fields))
		for i, f := range qe.Fields {
			fields[i] = fieldErrorView{Key: f.Key, Error: f.Err.Error()}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "fields": fields})
	case errors.Is(err, domain.ErrScenarioNotFound), errors.Is(err, domain.ErrExportNotFound), errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidScenario), errors.Is(err, report.ErrUnsupportedFormat), errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, report.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func populationFrom(q url.Values) (engine.Population, error) {
	var pop engine.Population
	var err error
	if v := q.Get(keyPopulation); v != "" {
		if pop.Initial, err = strconv.ParseInt(v, 10, 64); err != nil {
			return pop, errors.New("population must be an integer")
		}
	}
	if v := q.Get(keyInfected); v != "" {
		if pop.Infected, err = strconv.ParseInt(v, 10, 64); err != nil {
			return pop, errors.New("infected must be an integer")
		}
	}
	return pop, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
