// Package storetest connects tests to live Redis and PostgreSQL servers.
// Tests are skipped unless TEST_REDIS_ADDR or TEST_POSTGRES_HOST is set, so
// the default test run needs no external services.
package storetest

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/redis"
)

// Redis returns a client for TEST_REDIS_ADDR using TEST_REDIS_DB (default
// 15) or skips the test.
func Redis(t testing.TB) *pkgredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skipping live redis test: TEST_REDIS_ADDR not set")
	}
	client, err := pkgredis.NewClient(config.RedisConfig{
		Addr:     addr,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
		DB:       envOrDefaultInt("TEST_REDIS_DB", 15),
		PoolSize: 10,
	})
	if err != nil {
		t.Skipf("skipping live redis test: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Postgres returns a client for the TEST_POSTGRES_* database with the given
// schema applied, or skips the test.
func Postgres(t testing.TB, schema ...string) *postgres.Client {
	t.Helper()
	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("skipping live postgres test: TEST_POSTGRES_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, config.PostgresConfig{
		Host:            host,
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "bookindex_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "bookindex"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Skipf("skipping live postgres test: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.EnsureSchema(ctx, schema...); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
