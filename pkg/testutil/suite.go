package testutil

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stockwise/stockwise-backend/pkg/database"
	"github.com/stockwise/stockwise-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error

	databaseSeq atomic.Int64
	unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL.
// Every test gets its own database so tests never see each other's rows.
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite.
// Call this in TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if !testing.Short() {
//	        suite, _ = testutil.NewIntegrationSuite(context.Background())
//	    }
//	    os.Exit(m.Run())
//	}
//
//	func TestSomething(t *testing.T) {
//	    db := suite.SetupDatabase(t, ctx, "something", repository.Migrations())
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		Fixtures:  NewFixtureFactory(),
		Logger:    logger.New("test", "test"),
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupDatabase creates a fresh database, applies migrations and drops it when the test ends.
func (s *IntegrationSuite) SetupDatabase(t *testing.T, ctx context.Context, name string, migrations []string) *database.DB {
	t.Helper()

	dbName := fmt.Sprintf("test_%s_%d", unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), databaseSeq.Add(1))
	if _, err := s.RawDB.ExecContext(ctx, "CREATE DATABASE "+dbName); err != nil {
		t.Fatalf("failed to create database %s: %v", dbName, err)
	}

	dsn, err := s.Container.DSNFor(dbName)
	if err != nil {
		t.Fatalf("failed to build DSN: %v", err)
	}

	db, err := database.NewWithDSN(dsn, s.Logger)
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", dbName, err)
	}

	t.Cleanup(func() {
		db.Close()
		if _, err := s.RawDB.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+dbName+" WITH (FORCE)"); err != nil {
			t.Logf("warning: failed to drop database %s: %v", dbName, err)
		}
	})

	if err := db.Migrate(ctx, migrations); err != nil {
		t.Fatalf("failed to migrate %s: %v", dbName, err)
	}

	return db
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// RequireSuite skips the test when no integration suite is available
// (short mode, or Docker missing).
func RequireSuite(t *testing.T, s *IntegrationSuite) {
	t.Helper()
	SkipIfShort(t)
	if s == nil {
		t.Skip("integration suite unavailable")
	}
}
