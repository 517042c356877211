// Package testutil provides database and Redis helpers for integration
// tests. Tests using them are skipped when the backing service is not
// reachable, so the unit suite stays runnable everywhere.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	// pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/huguei/zonemaster-backend/internal/migrate"
)

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SetupTestDB connects to the test database, applies the production
// migrations, and wipes the tables. The test is skipped when PostgreSQL is
// not reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	hostPort := net.JoinHostPort(
		getEnvOrDefault("TEST_DB_HOST", "localhost"),
		getEnvOrDefault("TEST_DB_PORT", "5432"),
	)
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		getEnvOrDefault("TEST_DB_USER", "zonemaster"),
		getEnvOrDefault("TEST_DB_PASSWORD", "zonemaster"),
		hostPort,
		getEnvOrDefault("TEST_DB_NAME", "zonemaster_test"),
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("test database not available at %s: %v", hostPort, err)
	}

	if err := migrate.Run(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB removes all rows written by tests, children first.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "DELETE FROM tests"); err != nil {
		t.Fatalf("clean up tests table: %v", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM batches"); err != nil {
		t.Fatalf("clean up batches table: %v", err)
	}
}

// TeardownTestDB wipes the tables and closes the connection.
func TeardownTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	CleanupTestDB(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("close test database: %v", err)
	}
}

// SetupTestRedis connects to the test Redis instance and flushes its
// database. The test is skipped when Redis is not reachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := getEnvOrDefault("TEST_REDIS_ADDR", "localhost:6379")
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		// A dedicated database index keeps test data away from anything else
		// running on the same instance.
		DB: 9,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	client.FlushDB(ctx)
	return client
}
