// Package testutil provides shared test infrastructure: a disposable
// PostgreSQL container with pgvector and the schema migrated, plus
// in-memory doubles for the embedding and synthesis providers.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Pydart-Intelli-Corp/ai-assist/db"
)

// TestDB wraps a PostgreSQL test container and a ready connection pool.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container, runs the
// schema migrations, and returns a pool with vector types registered.
// The returned cleanup function terminates the container.
//
// Tests calling this need a working Docker daemon; call SkipWithoutDocker
// first to skip gracefully where there is none.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("psrassist_test"),
		postgres.WithUsername("psrassist_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting PostgreSQL container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr); err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("running migrations: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("parsing connection string: %v", err)
	}
	cfg.AfterConnect = pgxvector.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("creating connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("pinging database: %v", err)
	}

	testDB := &TestDB{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}
	return testDB, cleanup
}

// SkipWithoutDocker skips the test when no Docker daemon is reachable.
func SkipWithoutDocker(t *testing.T) {
	t.Helper()
	// testcontainers panics (rather than returning an error) when no
	// Docker host can be discovered; treat that as "not available" too.
	provider, err := func() (p *testcontainers.DockerProvider, err error) {
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("skipping: Docker not available: %v", r)
			}
		}()
		return testcontainers.NewDockerProvider()
	}()
	if err != nil {
		t.Skipf("skipping: Docker not available: %v", err)
	}
	defer provider.Close()
	if _, err := provider.DaemonHost(context.Background()); err != nil {
		t.Skipf("skipping: Docker daemon not reachable: %v", err)
	}
}
