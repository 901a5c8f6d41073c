//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/server"
	"github.com/pendergraft/chainscout/internal/storage"
	"github.com/pendergraft/chainscout/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	opsKey = "cs_ops_e2e"

	// verifiedAddress is verified on ethereum only
	verifiedAddress = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	unknownAddress  = "0x000000000000000000000000000000000000dEaD"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Explorer          *fakeExplorer
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("chainscout"),
		postgres.WithUsername("chainscout"),
		postgres.WithPassword("chainscout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// fakeExplorer serves an Etherscan-compatible API per network under /<network>/api.
// Setting a network's outage flag makes it answer every call with HTTP 502.
type fakeExplorer struct {
	srv     *httptest.Server
	outages map[string]*atomic.Bool
	calls   atomic.Int64
}

func newFakeExplorer() *fakeExplorer {
	f := &fakeExplorer{outages: map[string]*atomic.Bool{
		"ethereum": {},
		"polygon":  {},
	}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

func (f *fakeExplorer) URL() string { return f.srv.URL }

func (f *fakeExplorer) Close() { f.srv.Close() }

func (f *fakeExplorer) SetOutage(network string, down bool) {
	f.outages[network].Store(down)
}

func (f *fakeExplorer) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	network := strings.Trim(strings.TrimSuffix(r.URL.Path, "/api"), "/")
	outage, ok := f.outages[network]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if outage.Load() {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	q := r.URL.Query()
	switch q.Get("action") {
	case "getsourcecode":
		if network == "ethereum" && strings.EqualFold(q.Get("address"), verifiedAddress) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  "1",
				"message": "OK",
				"result": []map[string]any{{
					"SourceCode":           "// SPDX-License-Identifier: MIT\ncontract TetherToken {}",
					"ABI":                  `[{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"type":"uint256"}]}]`,
					"ContractName":         "TetherToken",
					"CompilerVersion":      "v0.4.18+commit.9cf6e910",
					"OptimizationUsed":     "1",
					"Runs":                 "200",
					"LicenseType":          "MIT",
					"Proxy":                "0",
					"Implementation":       "",
					"ConstructorArguments": "",
				}},
			})
			return
		}
		_, _ = io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Contract source code not verified"}`)
	default:
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":83,"result":"0x1312d00"}`)
	}
}

func explorersConfig(baseURL string) config.ExplorersConfig {
	explorer := func(network string) config.NetworkConfig {
		return config.NetworkConfig{Explorers: []config.ExplorerConfig{{
			Name:      network + "-scan",
			Kind:      config.DefaultExplorerKind,
			APIURL:    baseURL + "/" + network + "/api",
			APIKey:    "e2e",
			RateLimit: 50,
			Timeout:   5,
			Priority:  1,
		}}}
	}
	return config.ExplorersConfig{Networks: map[string]config.NetworkConfig{
		"ethereum": explorer("ethereum"),
		"polygon":  explorer("polygon"),
	}}
}

func serverConfig(connString, explorerURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Auth:      config.AuthConfig{APIKey: opsKey},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{MaxBodySizeMB: 1},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		Explorers: explorersConfig(explorerURL),
		Circuit: config.CircuitConfig{
			FailureThreshold: 5,
			FailureWindow:    5 * time.Minute,
			Cooldown:         time.Minute,
			ScoreFloor:       0.3,
			HealthyThreshold: 0.7,
			LatencyTarget:    2 * time.Second,
			RecordTTL:        time.Hour,
		},
		Retry: config.RetryConfig{
			MaxAttempts:      3,
			BaseDelay:        5 * time.Millisecond,
			MaxDelay:         20 * time.Millisecond,
			MaxRateLimitWait: time.Second,
			SelectionTTL:     time.Minute,
		},
		Detection:  config.DetectionConfig{Workers: 3, Timeout: 5 * time.Second, CacheTTL: time.Hour},
		MultiChain: config.MultiChainConfig{Workers: 2},
	}
}

// startServerE starts the chainscout server in-process against Postgres
func startServerE(connString, explorerURL string) (*httptest.Server, storage.Store, error) {
	cfg := serverConfig(connString, explorerURL)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	srv := server.New(cfg, store, logger)
	return httptest.NewServer(srv.Handler()), store, nil
}

// restartServer starts a second server process over the same database
func restartServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts, store, err := startServerE(testCtx.ConnString, testCtx.Explorer.URL())
	require.NoError(t, err)
	t.Cleanup(func() {
		ts.Close()
		store.Close()
	})
	return ts
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// repair resets a network so tests don't leak circuit state into each other
func repair(t *testing.T, network string) {
	t.Helper()
	_, err := newClient(testCtx.TestServer, opsKey).RepairNetwork(context.Background(), network)
	require.NoError(t, err)
}

// assertHTTPError checks that err is an API error with the expected code
func assertHTTPError(t *testing.T, err error, wantCode string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected *client.APIError, got %T: %v", err, err)
	assert.Equal(t, wantCode, apiErr.Code)
}
