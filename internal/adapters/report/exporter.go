package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"simpidemic/internal/blob"
	"simpidemic/internal/core"
	"simpidemic/pkg/domain"
)

// AdHocScenario is the key segment used for runs that have no saved
// scenario.
const AdHocScenario = "adhoc"

// Exporter renders runs and writes the artifacts to a blob store.
type Exporter struct {
	store  blob.Store
	logger *log.Logger
	newID  func() string
}

// NewExporter writes to store. A nil logger discards.
func NewExporter(store blob.Store, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Exporter{store: store, logger: logger, newID: uuid.NewString}
}

// Key returns reports/<scenario>/<id>.<ext>.
func Key(scenarioID, id string, f Format) string {
	if scenarioID == "" {
		scenarioID = AdHocScenario
	}
	return path.Join("reports", scenarioID, id+"."+string(f))
}

// Export renders run in every format and stores the results. Artifacts
// written before a failure are left in place and returned with the error.
func (e *Exporter) Export(ctx context.Context, run core.Run, formats []Format) ([]domain.Artifact, error) {
	scenarioID := ""
	if run.Scenario != nil {
		scenarioID = run.Scenario.ID
	}
	id := e.newID()
	artifacts := make([]domain.Artifact, 0, len(formats))
	for _, f := range formats {
		payload, err := Render(f, run)
		if err != nil {
			return artifacts, err
		}
		key := Key(scenarioID, id, f)
		info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: f.ContentType(),
			Metadata:    map[string]string{"scenario": scenarioID, "format": string(f)},
		})
		if err != nil {
			return artifacts, fmt.Errorf("store %s: %w", key, err)
		}
		url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{})
		if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			e.logger.Warn("presign failed", "key", key, "err", err)
		}
		artifacts = append(artifacts, domain.Artifact{
			Format:      string(f),
			Key:         key,
			ContentType: f.ContentType(),
			Size:        info.Size,
			URL:         url,
		})
		e.logger.Debug("artifact stored", "key", key, "bytes", info.Size)
	}
	return artifacts, nil
}
