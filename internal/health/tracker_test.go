package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/storage"
)

var errUpstream = errors.New("upstream 502")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(t *testing.T, cfg Config, cache storage.Cache) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(cfg, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.SetNowFunc(clock.Now)
	return tr, clock
}

func TestTracker_FreshRecord(t *testing.T) {
	tr, _ := newTestTracker(t, DefaultConfig(), nil)
	ctx := context.Background()

	assert.InDelta(t, 1.0, tr.Score(ctx, chains.Ethereum, "etherscan"), 1e-9)
	assert.Equal(t, StateClosed, tr.State(ctx, chains.Ethereum, "etherscan"))
	assert.NoError(t, tr.Allow(ctx, chains.Ethereum, "etherscan"))

	snap := tr.Snapshot(ctx, chains.Ethereum, "etherscan")
	assert.Zero(t, snap.TotalRequests)
	assert.Nil(t, snap.LastFailureAt)
	assert.Equal(t, 1.0, snap.SuccessRatio())
}

func TestTracker_FailuresStrictlyDecreaseScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1000
	cfg.ScoreFloor = 0
	tr, _ := newTestTracker(t, cfg, nil)
	ctx := context.Background()

	prev := tr.Score(ctx, chains.BSC, "bscscan")
	for i := 0; i < 30; i++ {
		tr.RecordFailure(ctx, chains.BSC, "bscscan", errUpstream)
		score := tr.Score(ctx, chains.BSC, "bscscan")
		if prev > 0 {
			assert.Less(t, score, prev, "failure %d should lower the score", i+1)
		}
		assert.GreaterOrEqual(t, score, 0.0)
		prev = score
	}
}

func TestTracker_SuccessesStrictlyIncreaseScore(t *testing.T) {
	tr, _ := newTestTracker(t, DefaultConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.RecordFailure(ctx, chains.Polygon, "polygonscan", errUpstream)
	}
	require.Equal(t, StateClosed, tr.State(ctx, chains.Polygon, "polygonscan"))

	prev := tr.Score(ctx, chains.Polygon, "polygonscan")
	require.Less(t, prev, 1.0)
	for i := 0; i < 30; i++ {
		tr.RecordSuccess(ctx, chains.Polygon, "polygonscan", 150*time.Millisecond)
		score := tr.Score(ctx, chains.Polygon, "polygonscan")
		if prev < 1 {
			assert.Greater(t, score, prev, "success %d should raise the score", i+1)
		}
		assert.LessOrEqual(t, score, 1.0)
		prev = score
	}

	t.Run("slow successes after failures", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			tr.RecordFailure(ctx, chains.Avalanche, "snowtrace", errUpstream)
		}
		prev := tr.Score(ctx, chains.Avalanche, "snowtrace")
		require.Less(t, prev, 1.0)
		for i := 0; i < 10; i++ {
			latency := time.Duration(i+1) * 5 * time.Second
			tr.RecordSuccess(ctx, chains.Avalanche, "snowtrace", latency)
			score := tr.Score(ctx, chains.Avalanche, "snowtrace")
			assert.Greater(t, score, prev, "success in %s should raise the score", latency)
			prev = score
		}
	})

	t.Run("slow success on a fresh record", func(t *testing.T) {
		tr.RecordSuccess(ctx, chains.Fantom, "ftmscan", 15*time.Second)
		assert.InDelta(t, 1.0, tr.Score(ctx, chains.Fantom, "ftmscan"), 1e-9)
	})
}

func TestTracker_LatencyTerm(t *testing.T) {
	// avg 4s against a 2s target halves the latency term: 0.5 + 0.2*0.5 + 0.3
	rec := newRecord(chains.Fantom, "ftmscan")
	rec.latencies = []time.Duration{4 * time.Second}
	assert.InDelta(t, 0.9, rec.score(time.Now(), DefaultConfig()), 1e-9)

	tr, _ := newTestTracker(t, DefaultConfig(), nil)
	ctx := context.Background()

	tr.RecordSuccess(ctx, chains.Fantom, "ftmscan", time.Second)
	tr.RecordSuccess(ctx, chains.Fantom, "ftmscan", 4*time.Second)
	snap := tr.Snapshot(ctx, chains.Fantom, "ftmscan")
	assert.InDelta(t, 1000, snap.AvgResponseTimeMs, 1e-9, "a sample that would lower the score is dropped")
	assert.InDelta(t, 1.0, snap.HealthScore, 1e-9)
}

func TestTracker_CircuitLifecycle(t *testing.T) {
	tr, clock := newTestTracker(t, DefaultConfig(), nil)
	ctx := context.Background()
	net, name := chains.Ethereum, "etherscan"

	for i := 0; i < 4; i++ {
		require.NoError(t, tr.Allow(ctx, net, name))
		tr.RecordFailure(ctx, net, name, errUpstream)
		clock.Advance(time.Second)
	}
	assert.Equal(t, StateClosed, tr.State(ctx, net, name))

	require.NoError(t, tr.Allow(ctx, net, name))
	tr.RecordFailure(ctx, net, name, errUpstream)
	assert.Equal(t, StateOpen, tr.State(ctx, net, name), "threshold failures in window must open the circuit")

	// Short-circuited calls leave counters untouched
	before := tr.Snapshot(ctx, net, name)
	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, tr.Allow(ctx, net, name), ErrCircuitOpen)
	}
	after := tr.Snapshot(ctx, net, name)
	assert.Equal(t, before.Failures, after.Failures)
	assert.Equal(t, before.TotalRequests, after.TotalRequests)
	assert.Equal(t, before.ConsecutiveFailures, after.ConsecutiveFailures)
	assert.Equal(t, before.RecentFailures, after.RecentFailures)

	clock.Advance(59 * time.Second)
	assert.Equal(t, StateOpen, tr.State(ctx, net, name))

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, tr.State(ctx, net, name), "next read after cool-down reports HALF_OPEN")

	// One trial at a time
	require.NoError(t, tr.Allow(ctx, net, name))
	assert.ErrorIs(t, tr.Allow(ctx, net, name), ErrCircuitOpen)

	tr.RecordSuccess(ctx, net, name, 200*time.Millisecond)
	snap := tr.Snapshot(ctx, net, name)
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.RecentFailures)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.EqualValues(t, 5, snap.Failures)
	assert.EqualValues(t, 1, snap.Successes)
}

func TestTracker_HalfOpenTrialFailureReopens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	tr, clock := newTestTracker(t, cfg, nil)
	ctx := context.Background()
	net, name := chains.Arbitrum, "arbiscan"

	tr.RecordFailure(ctx, net, name, errUpstream)
	tr.RecordFailure(ctx, net, name, errUpstream)
	require.Equal(t, StateOpen, tr.State(ctx, net, name))

	clock.Advance(cfg.Cooldown)
	require.NoError(t, tr.Allow(ctx, net, name))
	tr.RecordFailure(ctx, net, name, errUpstream)
	assert.Equal(t, StateOpen, tr.State(ctx, net, name))

	// Cool-down restarts from the failed trial
	clock.Advance(cfg.Cooldown / 2)
	assert.Equal(t, StateOpen, tr.State(ctx, net, name))
	clock.Advance(cfg.Cooldown / 2)
	assert.Equal(t, StateHalfOpen, tr.State(ctx, net, name))
}

func TestTracker_CancelReleasesTrial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	tr, clock := newTestTracker(t, cfg, nil)
	ctx := context.Background()
	net, name := chains.Optimism, "optimistic_etherscan"

	tr.RecordFailure(ctx, net, name, errUpstream)
	clock.Advance(cfg.Cooldown)

	require.NoError(t, tr.Allow(ctx, net, name))
	before := tr.Snapshot(ctx, net, name)
	tr.Cancel(ctx, net, name)
	after := tr.Snapshot(ctx, net, name)

	assert.Equal(t, before.TotalRequests, after.TotalRequests)
	assert.Equal(t, StateHalfOpen, after.State)
	assert.NoError(t, tr.Allow(ctx, net, name), "slot is free again after cancel")
}

func TestTracker_ScoreFloorOpensCircuit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 100
	cfg.ScoreFloor = 0.9
	tr, _ := newTestTracker(t, cfg, nil)
	ctx := context.Background()

	tr.RecordFailure(ctx, chains.Avalanche, "snowtrace", errUpstream)
	assert.Less(t, tr.Score(ctx, chains.Avalanche, "snowtrace"), 0.9)
	assert.Equal(t, StateOpen, tr.State(ctx, chains.Avalanche, "snowtrace"))
}

func TestTracker_WindowAndDecay(t *testing.T) {
	tr, clock := newTestTracker(t, DefaultConfig(), nil)
	ctx := context.Background()
	net, name := chains.Ethereum, "blockscout"

	for i := 0; i < 4; i++ {
		tr.RecordFailure(ctx, net, name, errUpstream)
	}
	fresh := tr.Score(ctx, net, name)

	clock.Advance(2 * time.Minute)
	decayed := tr.Score(ctx, net, name)
	assert.Greater(t, decayed, fresh, "older failures weigh less")

	clock.Advance(4 * time.Minute)
	tr.RecordFailure(ctx, net, name, errUpstream)
	snap := tr.Snapshot(ctx, net, name)
	assert.Equal(t, 1, snap.RecentFailures, "failures outside the window are dropped")
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 5, snap.ConsecutiveFailures)
}

func TestTracker_PersistsAcrossRestarts(t *testing.T) {
	cache := storage.NewMemoryStore()
	cfg := DefaultConfig()
	ctx := context.Background()

	first, clock := newTestTracker(t, cfg, cache)
	cache.SetNowFunc(clock.Now)
	for i := 0; i < 5; i++ {
		first.RecordFailure(ctx, chains.BSC, "bscscan", errUpstream)
	}
	first.RecordSuccess(ctx, chains.Ethereum, "etherscan", 300*time.Millisecond)
	require.Equal(t, StateOpen, first.State(ctx, chains.BSC, "bscscan"))

	_, err := cache.Get(ctx, "health:bsc:bscscan")
	require.NoError(t, err)

	second := NewTracker(cfg, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	second.SetNowFunc(clock.Now)

	snap := second.Snapshot(ctx, chains.BSC, "bscscan")
	assert.Equal(t, StateOpen, snap.State)
	assert.EqualValues(t, 5, snap.Failures)
	assert.Equal(t, 5, snap.RecentFailures)
	assert.InDelta(t, first.Score(ctx, chains.BSC, "bscscan"), snap.HealthScore, 1e-9)

	eth := second.Snapshot(ctx, chains.Ethereum, "etherscan")
	assert.EqualValues(t, 1, eth.Successes)
	assert.InDelta(t, 300, eth.AvgResponseTimeMs, 1e-9)

	clock.Advance(cfg.Cooldown)
	assert.Equal(t, StateHalfOpen, second.State(ctx, chains.BSC, "bscscan"))
}

func TestTracker_RestoreHalfOpenAsOpen(t *testing.T) {
	r := newRecord(chains.Polygon, "polygonscan")
	r.restore(persistedRecord{State: StateHalfOpen, SuccessRate: 0.5})
	assert.Equal(t, StateOpen, r.state)
	assert.False(t, r.trialInFlight)
}

func TestTracker_Reset(t *testing.T) {
	cache := storage.NewMemoryStore()
	tr, _ := newTestTracker(t, DefaultConfig(), cache)
	ctx := context.Background()

	tr.RecordFailure(ctx, chains.Ethereum, "etherscan", errUpstream)
	tr.RecordFailure(ctx, chains.Ethereum, "blockscout", errUpstream)
	tr.RecordFailure(ctx, chains.BSC, "bscscan", errUpstream)

	require.NoError(t, tr.Reset(ctx, chains.BSC, "bscscan"))
	assert.Zero(t, tr.Snapshot(ctx, chains.BSC, "bscscan").TotalRequests)

	require.NoError(t, tr.ResetNetwork(ctx, chains.Ethereum))
	assert.Zero(t, tr.Snapshot(ctx, chains.Ethereum, "etherscan").TotalRequests)
	assert.Zero(t, tr.Snapshot(ctx, chains.Ethereum, "blockscout").TotalRequests)

	_, err := cache.Get(ctx, "health:ethereum:etherscan")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.CircuitConfig{FailureThreshold: 3, Cooldown: 5 * time.Second})
	assert.Equal(t, 3, cfg.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.FailureWindow)
	assert.InDelta(t, 0.3, cfg.ScoreFloor, 1e-9)
	assert.InDelta(t, 0.1, cfg.Alpha, 1e-9)
}
