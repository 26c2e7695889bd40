package core

import (
	"fmt"
	"os"

	"simpidemic/internal/infra/persistence/memory"
	"simpidemic/internal/infra/persistence/postgres"
	"simpidemic/internal/infra/persistence/sqlite"
	"simpidemic/pkg/domain"
)

// StorageDriver names a scenario store backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Environment variables read by OpenScenarioStore.
const (
	EnvStorageDriver = "SIMPIDEMIC_STORAGE_DRIVER"
	EnvSQLitePath    = "SIMPIDEMIC_SQLITE_PATH"
	EnvPostgresDSN   = "SIMPIDEMIC_POSTGRES_DSN"
)

// OpenScenarioStore selects a backend from the environment:
//
//	SIMPIDEMIC_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SIMPIDEMIC_SQLITE_PATH: sqlite file (default ./simpidemic.db)
//	SIMPIDEMIC_POSTGRES_DSN: postgres DSN when driver=postgres
//
// The returned store implements io.Closer for the sql backends.
func OpenScenarioStore() (domain.ScenarioStore, error) {
	driver := os.Getenv(EnvStorageDriver)
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(os.Getenv(EnvSQLitePath))
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(os.Getenv(EnvPostgresDSN))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
