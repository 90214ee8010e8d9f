//go:build integration

// Package containers starts throwaway database containers for integration tests.
// Tests are skipped when no Docker daemon is reachable.
package containers

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 90 * time.Second

// Postgres holds the coordinates of a running PostgreSQL container.
type Postgres struct {
	ConnectionString string
	Host             string
	Port             int
	Database         string
	Username         string
	Password         string
}

// StartPostgres runs a PostgreSQL 17 container terminated when the test ends.
func StartPostgres(ctx context.Context, t *testing.T) *Postgres {
	t.Helper()
	skipWithoutDocker(ctx, t)

	pg := &Postgres{Database: "txrouter", Username: "txrouter", Password: "txrouter"}
	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase(pg.Database),
		postgres.WithUsername(pg.Username),
		postgres.WithPassword(pg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	terminateOnCleanup(t, container)

	if pg.ConnectionString, err = container.ConnectionString(ctx, "sslmode=disable"); err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	if pg.Host, err = container.Host(ctx); err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	pg.Port = port.Int()

	t.Logf("PostgreSQL container started at %s", redact(pg.ConnectionString))
	return pg
}

// StartMongoReplicaSet runs a single-node MongoDB replica set, which multi-document
// transactions require, and returns a direct connection string.
func StartMongoReplicaSet(ctx context.Context, t *testing.T) string {
	t.Helper()
	skipWithoutDocker(ctx, t)

	container, err := mongodb.Run(ctx, "mongo:8.0", mongodb.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatalf("start mongodb container: %v", err)
	}
	terminateOnCleanup(t, container)

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("mongodb connection string: %v", err)
	}
	t.Logf("MongoDB container started at %s", redact(connStr))
	return connStr
}

func skipWithoutDocker(ctx context.Context, t *testing.T) {
	t.Helper()
	provider, err := testcontainers.NewDockerProvider()
	if err == nil {
		defer provider.Close()
		_, err = provider.DaemonHost(ctx)
	}
	if err != nil {
		t.Skipf("Docker is not available - skipping integration test: %v", err)
	}
}

func terminateOnCleanup(t *testing.T, c testcontainers.Container) {
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})
}

// redact masks the password of a connection URL for logging.
func redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return "<redacted connection string>"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
	}
	return u.String()
}
