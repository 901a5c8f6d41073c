package multichain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/health"
	"github.com/pendergraft/chainscout/internal/manager"
	"github.com/pendergraft/chainscout/internal/ratelimit"
	"github.com/pendergraft/chainscout/internal/registry"
	"github.com/pendergraft/chainscout/internal/validation"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func networksConfig(url string, networks ...string) config.ExplorersConfig {
	cfg := config.ExplorersConfig{Networks: make(map[string]config.NetworkConfig)}
	for _, n := range networks {
		cfg.Networks[n] = config.NetworkConfig{Explorers: []config.ExplorerConfig{{
			Name:     n + "scan",
			Kind:     "etherscan",
			APIURL:   url,
			APIKey:   "key",
			Timeout:  5,
			Priority: 1,
		}}}
	}
	return cfg
}

func newOrchestrator(t *testing.T, cfg config.ExplorersConfig, workers int) *Orchestrator {
	t.Helper()
	tracker := health.NewTracker(health.DefaultConfig(), nil, discard)
	reg := registry.New(cfg, tracker, discard)
	mgr := manager.New(reg, ratelimit.NewLimiter(time.Second), manager.DefaultConfig(), discard,
		manager.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	)
	return New(mgr, workers, discard)
}

// failOn returns an operation that fails on the given networks and succeeds elsewhere
func failOn(bad ...chains.Network) manager.Operation {
	return func(ctx context.Context, c explorer.Client) (any, error) {
		for _, n := range bad {
			if c.Network() == n {
				return nil, &explorer.ProviderUnavailableError{Network: n, Explorer: c.Name(), StatusCode: 503, Err: errors.New("maintenance")}
			}
		}
		return c.Name(), nil
	}
}

func TestExecuteMultiChain_PartialFailure(t *testing.T) {
	o := newOrchestrator(t, networksConfig("https://explorer.example.com/api", "ethereum", "bsc", "polygon"), 0)

	report, err := o.ExecuteMultiChain(context.Background(), []string{"ethereum", "bsc", "polygon"}, "custom", failOn(chains.BSC))
	require.NoError(t, err)

	_, err = uuid.Parse(report.ID)
	assert.NoError(t, err)
	assert.Equal(t, "custom", report.Operation)
	assert.False(t, report.Cancelled)

	require.Len(t, report.Successful, 2)
	assert.Equal(t, "ethereumscan", report.Successful[chains.Ethereum].Payload)
	assert.Equal(t, "polygonscan", report.Successful[chains.Polygon].Payload)

	require.Contains(t, report.Failed, chains.BSC)
	assert.Equal(t, "unavailable", report.Failed[chains.BSC].Code)
	assert.Equal(t, 3, report.Failed[chains.BSC].Attempts)
	assert.Contains(t, report.Failed[chains.BSC].Error, "maintenance")

	assert.Equal(t, 3, report.Summary.TotalNetworks)
	assert.Equal(t, 2, report.Summary.SuccessfulNetworks)
	assert.Equal(t, 1, report.Summary.FailedNetworks)
	assert.InDelta(t, 2.0/3.0, report.Summary.SuccessRate, 1e-9)
	assert.Equal(t, StatusPartial, report.Summary.Status)
}

func TestExecuteMultiChain_ReportClock(t *testing.T) {
	o := newOrchestrator(t, networksConfig("https://explorer.example.com/api", "ethereum", "polygon"), 0)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	ticks := []time.Time{started, started.Add(1500 * time.Millisecond)}
	o.SetNowFunc(func() time.Time {
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	})

	report, err := o.ExecuteMultiChain(context.Background(), []string{"ethereum", "polygon"}, "custom", failOn())
	require.NoError(t, err)

	assert.Equal(t, started.UTC(), report.StartedAt)
	assert.Equal(t, started.Add(1500*time.Millisecond).UTC(), report.CompletedAt)
	assert.Equal(t, time.UTC, report.StartedAt.Location())
	assert.EqualValues(t, 1500, report.Summary.TotalTimeMs)
}

func TestExecuteMultiChain_Errors(t *testing.T) {
	o := newOrchestrator(t, networksConfig("https://explorer.example.com/api", "ethereum"), 0)
	ctx := context.Background()

	_, err := o.ExecuteMultiChain(ctx, nil, "custom", failOn())
	assert.ErrorIs(t, err, ErrNoNetworks)

	_, err = o.ExecuteMultiChain(ctx, []string{"ethereum", "solana"}, "custom", failOn())
	assert.ErrorIs(t, err, chains.ErrUnknownNetwork)
}

func TestExecuteMultiChain_UnconfiguredNetworkIsolated(t *testing.T) {
	o := newOrchestrator(t, networksConfig("https://explorer.example.com/api", "ethereum"), 0)

	report, err := o.ExecuteMultiChain(context.Background(), []string{"eth", "ethereum", "fantom"}, "custom", failOn())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.TotalNetworks, "aliases are de-duplicated")
	assert.Contains(t, report.Successful, chains.Ethereum)
	assert.Equal(t, "not_configured", report.Failed[chains.Fantom].Code)
}

func TestExecuteMultiChain_FailFast(t *testing.T) {
	o := newOrchestrator(t, networksConfig("https://explorer.example.com/api", "ethereum", "bsc", "polygon"), 1)

	report, err := o.ExecuteMultiChain(context.Background(), []string{"polygon", "bsc", "ethereum"}, "custom", failOn(chains.BSC), WithFailFast(true))
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Contains(t, report.Successful, chains.Ethereum, "dispatched first by rank")
	assert.Contains(t, report.Failed, chains.BSC)
	require.Contains(t, report.Failed, chains.Polygon)
	assert.Equal(t, "cancelled", report.Failed[chains.Polygon].Code)
	assert.Equal(t, StatusPartial, report.Summary.Status)
}

func TestExecuteMultiChain_CancelledContext(t *testing.T) {
	o := newOrchestrator(t, networksConfig("https://explorer.example.com/api", "ethereum", "bsc"), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.ExecuteMultiChain(ctx, []string{"ethereum", "bsc"}, "custom", failOn())
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Successful)
	assert.Len(t, report.Failed, 2)
	assert.Equal(t, StatusFailed, report.Summary.Status)
}

func TestNamedOperation(t *testing.T) {
	assert.Equal(t, []string{"abi", "creation", "ping", "source", "verification"}, OperationNames())

	_, err := NamedOperation("bytecode", "0xdac17f958d2ee523a2206206994597c13d831ec7")
	assert.ErrorIs(t, err, ErrUnknownOperation)

	_, err = NamedOperation(OpSource, "0x1234")
	assert.ErrorIs(t, err, validation.ErrInvalidAddress)

	_, err = NamedOperation(OpPing, "")
	assert.NoError(t, err)
}

func TestRun_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":"0x10d4f"}`)
	}))
	t.Cleanup(srv.Close)

	o := newOrchestrator(t, networksConfig(srv.URL+"/api", "ethereum", "arbitrum"), 0)
	assert.ElementsMatch(t, []string{"ethereum", "arbitrum"}, o.DefaultNetworks())

	report, err := o.Run(context.Background(), OpPing, "", o.DefaultNetworks())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, report.Summary.Status)
	assert.Equal(t, map[string]any{"reachable": true, "explorer": "arbitrumscan"}, report.Successful[chains.Arbitrum].Payload)
}
