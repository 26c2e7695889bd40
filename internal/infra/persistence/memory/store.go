// Package memory provides the in-memory scenario store used in tests and
// ephemeral runs. The sqlite and postgres stores embed it and snapshot its
// state after each committed transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"simpidemic/pkg/domain"
)

var _ domain.ScenarioStore = (*Store)(nil)

type (
	Scenario        = domain.Scenario
	Export          = domain.Export
	Change          = domain.Change
	Result          = domain.Result
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
)

type memoryState struct {
	scenarios map[string]Scenario
	exports   map[string]Export
}

// Snapshot is a point-in-time copy of the store state, used by the SQL
// backends as their persisted payload.
type Snapshot struct {
	Scenarios map[string]Scenario `json:"scenarios"`
	Exports   map[string]Export   `json:"exports"`
}

func newMemoryState() memoryState {
	return memoryState{
		scenarios: make(map[string]Scenario),
		exports:   make(map[string]Export),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		scenarios: make(map[string]Scenario, len(s.scenarios)),
		exports:   make(map[string]Export, len(s.exports)),
	}
	for k, v := range s.scenarios {
		out.scenarios[k] = v
	}
	for k, v := range s.exports {
		out.exports[k] = cloneExport(v)
	}
	return out
}

func cloneExport(e Export) Export {
	e.Formats = append([]string(nil), e.Formats...)
	e.Artifacts = append([]domain.Artifact(nil), e.Artifacts...)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		e.CompletedAt = &t
	}
	return e
}

// Store is a mutex-guarded map store with copy-on-transaction semantics.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc replaces the clock used for timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState returns a copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.state.clone()
	return Snapshot{Scenarios: c.scenarios, Exports: c.exports}
}

// ImportState replaces the current state. Nil maps are treated as empty.
func (s *Store) ImportState(snapshot Snapshot) {
	next := newMemoryState()
	for k, v := range snapshot.Scenarios {
		next.scenarios[k] = v
	}
	for k, v := range snapshot.Exports {
		next.exports[k] = cloneExport(v)
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// RunInTransaction runs fn against a private copy of the state and commits
// the copy only when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}
	s.state = tx.state
	return Result{Changes: tx.changes}, nil
}

// View runs fn against a read-only copy of the state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: &snapshot})
}

// GetScenario returns a scenario by ID.
func (s *Store) GetScenario(id string) (Scenario, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.state.scenarios[id]
	return sc, ok
}

// ListScenarios returns every scenario ordered by creation time then ID.
func (s *Store) ListScenarios() []Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListScenarios()
}

// GetExport returns an export by ID.
func (s *Store) GetExport(id string) (Export, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindExport(id)
}

// ListExports returns the exports of one scenario, or all exports when
// scenarioID is empty.
func (s *Store) ListExports(scenarioID string) []Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListExports(scenarioID)
}

type view struct {
	state *memoryState
}

func (v view) ListScenarios() []Scenario {
	out := make([]Scenario, 0, len(v.state.scenarios))
	for _, sc := range v.state.scenarios {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v view) FindScenario(id string) (Scenario, bool) {
	sc, ok := v.state.scenarios[id]
	return sc, ok
}

func (v view) ListExports(scenarioID string) []Export {
	out := make([]Export, 0)
	for _, e := range v.state.exports {
		if scenarioID == "" || e.ScenarioID == scenarioID {
			out = append(out, cloneExport(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v view) FindExport(id string) (Export, bool) {
	e, ok := v.state.exports[id]
	if !ok {
		return Export{}, false
	}
	return cloneExport(e), true
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) record(entity domain.EntityType, action domain.ChangeAction, id string) {
	tx.changes = append(tx.changes, Change{Entity: entity, Action: action, ID: id})
}

func (tx *transaction) Snapshot() TransactionView { return view{state: &tx.state} }

func (tx *transaction) FindScenario(id string) (Scenario, bool) {
	return view{state: &tx.state}.FindScenario(id)
}

func (tx *transaction) CreateScenario(sc Scenario) (Scenario, error) {
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if _, exists := tx.state.scenarios[sc.ID]; exists {
		return Scenario{}, fmt.Errorf("scenario %q already exists", sc.ID)
	}
	sc.CreatedAt = tx.now
	sc.UpdatedAt = tx.now
	tx.state.scenarios[sc.ID] = sc
	tx.record(domain.EntityScenario, domain.ActionCreate, sc.ID)
	return sc, nil
}

func (tx *transaction) UpdateScenario(id string, mutator func(*Scenario) error) (Scenario, error) {
	current, ok := tx.state.scenarios[id]
	if !ok {
		return Scenario{}, domain.ErrNotFound{Entity: domain.EntityScenario, ID: id}
	}
	if err := mutator(&current); err != nil {
		return Scenario{}, err
	}
	current.ID = id
	if err := current.Validate(); err != nil {
		return Scenario{}, err
	}
	current.CreatedAt = tx.state.scenarios[id].CreatedAt
	current.UpdatedAt = tx.now
	tx.state.scenarios[id] = current
	tx.record(domain.EntityScenario, domain.ActionUpdate, id)
	return current, nil
}

// DeleteScenario removes the scenario and its export records. Blob
// artifacts are left to the caller.
func (tx *transaction) DeleteScenario(id string) error {
	if _, ok := tx.state.scenarios[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityScenario, ID: id}
	}
	delete(tx.state.scenarios, id)
	tx.record(domain.EntityScenario, domain.ActionDelete, id)
	for exportID, e := range tx.state.exports {
		if e.ScenarioID == id {
			delete(tx.state.exports, exportID)
			tx.record(domain.EntityExport, domain.ActionDelete, exportID)
		}
	}
	return nil
}

func (tx *transaction) CreateExport(e Export) (Export, error) {
	if _, ok := tx.state.scenarios[e.ScenarioID]; !ok {
		return Export{}, domain.ErrNotFound{Entity: domain.EntityScenario, ID: e.ScenarioID}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := tx.state.exports[e.ID]; exists {
		return Export{}, fmt.Errorf("export %q already exists", e.ID)
	}
	if e.Status == "" {
		e.Status = domain.ExportQueued
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	e = cloneExport(e)
	tx.state.exports[e.ID] = e
	tx.record(domain.EntityExport, domain.ActionCreate, e.ID)
	return cloneExport(e), nil
}

func (tx *transaction) UpdateExport(id string, mutator func(*Export) error) (Export, error) {
	current, ok := tx.state.exports[id]
	if !ok {
		return Export{}, domain.ErrNotFound{Entity: domain.EntityExport, ID: id}
	}
	current = cloneExport(current)
	if err := mutator(&current); err != nil {
		return Export{}, err
	}
	current.ID = id
	current.ScenarioID = tx.state.exports[id].ScenarioID
	current.UpdatedAt = tx.now
	if current.Done() && current.CompletedAt == nil {
		t := tx.now
		current.CompletedAt = &t
	}
	tx.state.exports[id] = cloneExport(current)
	tx.record(domain.EntityExport, domain.ActionUpdate, id)
	return current, nil
}
