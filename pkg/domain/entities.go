// Package domain defines the persisted records of simpidemic and the storage
// port that backends implement. It has no dependency on the simulation code:
// a scenario stores the encoded parameter query, never simulation output.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntityType identifies the kind of record stored.
type EntityType string

const (
	// EntityScenario identifies a saved scenario.
	EntityScenario EntityType = "scenario"
	// EntityExport identifies a rendered report artifact.
	EntityExport EntityType = "export"
)

// Scenario is a named, saved simulator input. Query holds the encoded
// parameter and action state; results are recomputed on load.
type Scenario struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Query       string    `json:"query"`
	Population  int64     `json:"population"`
	Infected    int64     `json:"infected"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the fields every backend requires.
func (s Scenario) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	case s.Population < 0:
		return fmt.Errorf("%w: population %d is negative", ErrInvalidScenario, s.Population)
	case s.Infected < 0 || (s.Population > 0 && s.Infected > s.Population):
		return fmt.Errorf("%w: infected %d outside population %d", ErrInvalidScenario, s.Infected, s.Population)
	}
	return nil
}

// ExportStatus tracks an export through the worker queue.
type ExportStatus string

const (
	ExportQueued    ExportStatus = "queued"
	ExportRunning   ExportStatus = "running"
	ExportSucceeded ExportStatus = "succeeded"
	ExportFailed    ExportStatus = "failed"
)

// Artifact is one rendered file in blob storage.
type Artifact struct {
	Format      string `json:"format"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// Export records a report request for a scenario and its artifacts.
type Export struct {
	ID          string       `json:"id"`
	ScenarioID  string       `json:"scenario_id"`
	Formats     []string     `json:"formats"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Done reports whether the export reached a terminal status.
func (e Export) Done() bool {
	return e.Status == ExportSucceeded || e.Status == ExportFailed
}

var (
	// ErrScenarioNotFound is matched by every missing-scenario error.
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrExportNotFound is matched by every missing-export error.
	ErrExportNotFound = errors.New("export not found")
	// ErrInvalidScenario marks scenarios failing Validate.
	ErrInvalidScenario = errors.New("invalid scenario")
)

// ErrNotFound reports a missing record. It unwraps to the per-entity
// sentinel so callers can use errors.Is.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e ErrNotFound) Unwrap() error {
	switch e.Entity {
	case EntityScenario:
		return ErrScenarioNotFound
	case EntityExport:
		return ErrExportNotFound
	}
	return nil
}
