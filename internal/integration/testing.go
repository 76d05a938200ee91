package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	BackendURL  string
	Token       string
	KBID        string
	Query       string
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	query := os.Getenv("TRACECHAT_E2E_QUERY")
	if query == "" {
		query = "Say hello in one short sentence."
	}
	return &Config{
		BackendURL:  os.Getenv("TRACECHAT_E2E_BACKEND_URL"),
		Token:       os.Getenv("TRACECHAT_E2E_TOKEN"),
		KBID:        os.Getenv("TRACECHAT_E2E_KB_ID"),
		Query:       query,
		TestTimeout: 90 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoBackend skips the test when no live backend is configured.
func SkipIfNoBackend(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.BackendURL == "" {
		t.Skip("Skipping live backend test: TRACECHAT_E2E_BACKEND_URL not set")
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
