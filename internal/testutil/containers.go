// Package testutil starts the backing services used by store tests and
// provides a controllable clock.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Give generous timeout in CI environments
const startupTimeout = 3 * time.Minute

func run(t *testing.T, image string, opts ...testcontainers.ContainerCustomizer) (testcontainers.Container, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s container test in -short mode", image)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	t.Cleanup(cancel)

	c, err := testcontainers.Run(ctx, image, opts...)
	testcontainers.CleanupContainer(t, c)
	if err != nil {
		t.Skipf("cannot start %s: %v", image, err)
	}
	return c, ctx
}

// StartPostgresContainer returns a pgx DSN for a fresh PostgreSQL database.
func StartPostgresContainer(t *testing.T) string {
	t.Helper()

	dsn := func(host string, port string) string {
		return fmt.Sprintf("postgres://pageflow:pageflow@%s:%s/pageflow_test?sslmode=disable", host, port)
	}

	c, ctx := run(t, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				// Actively verify SQL connectivity using the mapped host:port
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return dsn(host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "pageflow",
			"POSTGRES_PASSWORD": "pageflow",
			"POSTGRES_DB":       "pageflow_test",
		}),
	)

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	return dsn(host, port.Port())
}

// StartRedisContainer returns the host:port of a fresh Redis server.
func StartRedisContainer(t *testing.T) string {
	t.Helper()

	c, ctx := run(t, "redis:latest",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return endpoint
}

// StartMongoContainer returns a connection URI for a fresh MongoDB server.
func StartMongoContainer(t *testing.T) string {
	t.Helper()

	c, ctx := run(t, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("mongod startup complete"),
		),
	)

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("mongo endpoint: %v", err)
	}
	return fmt.Sprintf("mongodb://%s", endpoint)
}
