package domain

import "context"

// ChangeAction describes what a transaction did to a record.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Change is one mutation recorded by a transaction.
type Change struct {
	Entity EntityType   `json:"entity"`
	Action ChangeAction `json:"action"`
	ID     string       `json:"id"`
}

// Result lists the changes committed by a transaction.
type Result struct {
	Changes []Change `json:"changes"`
}

// Transaction is the mutable unit of work a store hands to callers. Nothing
// is visible outside the transaction until the callback returns nil.
type Transaction interface {
	Snapshot() TransactionView
	CreateScenario(Scenario) (Scenario, error)
	UpdateScenario(id string, mutator func(*Scenario) error) (Scenario, error)
	DeleteScenario(id string) error
	CreateExport(Export) (Export, error)
	UpdateExport(id string, mutator func(*Export) error) (Export, error)
	FindScenario(id string) (Scenario, bool)
}

// TransactionView is read-only access to a consistent snapshot.
type TransactionView interface {
	ListScenarios() []Scenario
	FindScenario(id string) (Scenario, bool)
	ListExports(scenarioID string) []Export
	FindExport(id string) (Export, bool)
}

// ScenarioStore is implemented by every persistence backend.
type ScenarioStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetScenario(id string) (Scenario, bool)
	ListScenarios() []Scenario
	GetExport(id string) (Export, bool)
	ListExports(scenarioID string) []Export
}
