// Package testhelpers provides shared infrastructure for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brightpulse/bitrix-warehouse/pkg/database"
)

// PostgresImage is the warehouse image used for integration tests.
const PostgresImage = "postgres:16-alpine"

// WarehouseDB holds a shared test warehouse container and connection.
type WarehouseDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedWarehouse     *WarehouseDB
	sharedWarehouseOnce sync.Once
	sharedWarehouseErr  error
)

// GetWarehouseDB returns a shared PostgreSQL warehouse for integration
// tests. The container is created once and reused across all tests in the
// run.
func GetWarehouseDB(t *testing.T) *WarehouseDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedWarehouseOnce.Do(func() {
		sharedWarehouse, sharedWarehouseErr = setupWarehouseDB()
	})

	if sharedWarehouseErr != nil {
		t.Fatalf("Failed to setup test warehouse: %v", sharedWarehouseErr)
	}

	return sharedWarehouse
}

func setupWarehouseDB() (*WarehouseDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "warehouse_test",
			"POSTGRES_USER":     "warehouse",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://warehouse:test_password@%s:%s/warehouse_test?sslmode=disable",
		host, port.Port())

	db, err := database.Connect(ctx, &database.Config{
		URL:     connStr,
		Dialect: database.DialectPostgres,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test warehouse: %w", err)
	}

	return &WarehouseDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}
