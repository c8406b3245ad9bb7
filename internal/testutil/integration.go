//go:build integration
// +build integration

package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/emergent-company/turnbase/internal/config"
	"github.com/emergent-company/turnbase/pkg/logger"
	"github.com/emergent-company/turnbase/pool"
)

// IntegrationConnectionURLEnv names the environment variable
// OpenTestPool reads its connection string from. It is separate from
// internal/config's TURNBASE_CONNECTION_URL, so the integration suite
// never picks up the connection string of a regular deployment.
const IntegrationConnectionURLEnv = "TURNBASE_TEST_CONNECTION_URL"

// OpenTestPool opens a *pool.Pool against a real Postgres instance,
// skipping the test if TURNBASE_TEST_CONNECTION_URL is unset. Every
// //go:build integration test in this module calls this first.
func OpenTestPool(t *testing.T) *pool.Pool {
	t.Helper()

	url := os.Getenv(IntegrationConnectionURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping integration test", IntegrationConnectionURLEnv)
	}

	cfg := &config.Config{
		ConnectionURL:      url,
		PoolMin:            1,
		PoolMax:            4,
		StatementTimeoutMS: 30000,
		DefaultBranchName:  "main",
	}

	p, err := pool.New(context.Background(), cfg, logger.NewLogger())
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(p.Close)

	return p
}

// MustConnectionURL returns the integration connection string, skipping
// the test if it is unset. Callers that need raw access to the
// connection string (rather than an already-opened *pool.Pool), such as
// a migration runner, use this instead of OpenTestPool.
func MustConnectionURL(t *testing.T) string {
	t.Helper()

	url := os.Getenv(IntegrationConnectionURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping integration test", IntegrationConnectionURLEnv)
	}
	return url
}

// TestLogger returns a slog.Logger for integration tests that need to
// construct a component outside of fx (versioning.NewEngine and similar).
// It is pkg/logger.NewLogger unchanged, so LOG_LEVEL and GO_ENV still
// apply.
func TestLogger() *slog.Logger {
	return logger.NewLogger()
}
