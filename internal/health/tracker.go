// Package health tracks per-provider explorer health and drives the circuit breaker
// that decides whether a provider may be called.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/observability/metrics"
	"github.com/pendergraft/chainscout/internal/storage"
)

// ErrCircuitOpen is returned by Allow when a call is short-circuited
var ErrCircuitOpen = errors.New("circuit open")

// Config holds tracker thresholds
type Config struct {
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration
	ScoreFloor       float64
	LatencyTarget    time.Duration
	RecordTTL        time.Duration
	// Alpha is the EMA smoothing factor for the success rate
	Alpha float64
	// LatencySamples is how many recent latencies feed the average
	LatencySamples int
	// PenaltyDecay is the time constant for failure penalty decay
	PenaltyDecay time.Duration
}

// DefaultConfig returns the default thresholds
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureWindow:    5 * time.Minute,
		Cooldown:         60 * time.Second,
		ScoreFloor:       0.3,
		LatencyTarget:    2 * time.Second,
		RecordTTL:        24 * time.Hour,
		Alpha:            0.1,
		LatencySamples:   20,
		PenaltyDecay:     time.Minute,
	}
}

// ConfigFrom builds a tracker Config from the circuit settings, keeping defaults for unset values
func ConfigFrom(c config.CircuitConfig) Config {
	cfg := DefaultConfig()
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.FailureWindow > 0 {
		cfg.FailureWindow = c.FailureWindow
	}
	if c.Cooldown > 0 {
		cfg.Cooldown = c.Cooldown
	}
	if c.ScoreFloor > 0 {
		cfg.ScoreFloor = c.ScoreFloor
	}
	if c.LatencyTarget > 0 {
		cfg.LatencyTarget = c.LatencyTarget
	}
	if c.RecordTTL > 0 {
		cfg.RecordTTL = c.RecordTTL
	}
	return cfg
}

// Key returns the provider key used for records, limiter buckets and cache entries
func Key(network chains.Network, explorer string) string {
	return string(network) + ":" + explorer
}

func cacheKey(network chains.Network, explorer string) string {
	return "health:" + Key(network, explorer)
}

// Tracker maintains a HealthRecord per provider. Safe for concurrent use;
// each record is guarded by its own mutex.
type Tracker struct {
	cfg    Config
	cache  storage.Cache
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*lockedRecord
	nowFunc func() time.Time
}

type lockedRecord struct {
	mu sync.Mutex
	*record
}

// NewTracker creates a Tracker. cache may be nil, in which case records live only in memory.
func NewTracker(cfg Config, cache storage.Cache, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:     cfg,
		cache:   cache,
		logger:  logger,
		records: make(map[string]*lockedRecord),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = fn
}

// Config returns the tracker thresholds
func (t *Tracker) Config() Config {
	return t.cfg
}

func (t *Tracker) now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nowFunc()
}

// get returns the record for a provider, restoring it from the cache on first access.
// The returned record is locked; callers must unlock it.
func (t *Tracker) get(ctx context.Context, network chains.Network, explorer string) *lockedRecord {
	key := Key(network, explorer)

	t.mu.Lock()
	rec, ok := t.records[key]
	if !ok {
		rec = &lockedRecord{record: newRecord(network, explorer)}
		t.records[key] = rec
	}
	t.mu.Unlock()

	rec.mu.Lock()
	if !rec.loaded {
		rec.loaded = true
		if t.cache != nil {
			var p persistedRecord
			err := storage.GetJSON(ctx, t.cache, cacheKey(network, explorer), &p)
			switch {
			case err == nil:
				rec.restore(p)
				t.logger.Debug("restored health record", "network", network, "explorer", explorer, "state", rec.state)
			case !errors.Is(err, storage.ErrNotFound):
				t.logger.Warn("failed to restore health record", "network", network, "explorer", explorer, "error", err)
			}
		}
	}
	return rec
}

// advance applies time-driven transitions: OPEN becomes HALF_OPEN once the cool-down
// since the last failure has elapsed. Must be called with the record locked.
func (t *Tracker) advance(rec *lockedRecord, now time.Time) {
	rec.pruneWindow(now, t.cfg.FailureWindow)
	if rec.state == StateOpen && now.Sub(rec.lastFailure) >= t.cfg.Cooldown {
		t.transition(rec, StateHalfOpen, "cool-down elapsed")
		rec.trialInFlight = false
	}
}

func (t *Tracker) transition(rec *lockedRecord, to State, reason string) {
	from := rec.state
	if from == to {
		return
	}
	rec.state = to

	attrs := []any{"network", rec.network, "explorer", rec.explorer, "from", from, "to", to, "reason", reason}
	if to == StateOpen {
		t.logger.Warn("circuit opened", attrs...)
	} else {
		t.logger.Info("circuit state changed", attrs...)
	}
	metrics.CircuitTransition(string(rec.network), rec.explorer, string(from), string(to))
}

// Allow decides whether a call to the provider may proceed. It returns ErrCircuitOpen
// without touching any counters when the call is short-circuited. In HALF_OPEN only one
// trial is admitted at a time; an admitted call must end in RecordSuccess, RecordFailure or Cancel.
func (t *Tracker) Allow(ctx context.Context, network chains.Network, explorer string) error {
	now := t.now()
	rec := t.get(ctx, network, explorer)
	defer rec.mu.Unlock()

	t.advance(rec, now)

	switch rec.state {
	case StateOpen:
		return fmt.Errorf("%s: %w", Key(network, explorer), ErrCircuitOpen)
	case StateHalfOpen:
		if rec.trialInFlight {
			return fmt.Errorf("%s: trial in progress: %w", Key(network, explorer), ErrCircuitOpen)
		}
		rec.trialInFlight = true
	}
	return nil
}

// Cancel releases an admitted call that never reached the provider. Counters are unchanged.
func (t *Tracker) Cancel(ctx context.Context, network chains.Network, explorer string) {
	rec := t.get(ctx, network, explorer)
	defer rec.mu.Unlock()
	rec.trialInFlight = false
}

// RecordSuccess records a successful call. Business "not found" answers count as successes.
// The resulting score is never lower than before the call.
func (t *Tracker) RecordSuccess(ctx context.Context, network chains.Network, explorer string, latency time.Duration) {
	now := t.now()
	rec := t.get(ctx, network, explorer)

	t.advance(rec, now)
	before := rec.score(now, t.cfg)
	rec.successes++
	rec.total++
	rec.consecutive = 0
	rec.successRate = t.cfg.Alpha + (1-t.cfg.Alpha)*rec.successRate
	rec.lastSuccess = now

	// A success never lowers the score: a sample that would drag the latency
	// term below the success-rate gain is dropped.
	base := rec.score(now, t.cfg)
	prevLatencies := append([]time.Duration(nil), rec.latencies...)
	rec.addLatency(latency, t.cfg.LatencySamples)
	if after := rec.score(now, t.cfg); after < base && after <= before {
		rec.latencies = prevLatencies
	}

	if rec.state == StateHalfOpen {
		rec.failureAt = rec.failureAt[:0]
		rec.trialInFlight = false
		t.transition(rec, StateClosed, "trial succeeded")
	}

	t.persist(ctx, rec)
	score := rec.score(now, t.cfg)
	rec.mu.Unlock()

	metrics.HealthScore(string(network), explorer, score)
}

// RecordFailure records a failed call and opens the circuit when thresholds are crossed.
// Failure latency is not sampled; timeouts would skew the average.
func (t *Tracker) RecordFailure(ctx context.Context, network chains.Network, explorer string, cause error) {
	now := t.now()
	rec := t.get(ctx, network, explorer)

	t.advance(rec, now)
	rec.failures++
	rec.total++
	rec.consecutive++
	rec.successRate = (1 - t.cfg.Alpha) * rec.successRate
	rec.failureAt = append(rec.failureAt, now)
	rec.lastFailure = now

	score := rec.score(now, t.cfg)
	switch rec.state {
	case StateHalfOpen:
		rec.trialInFlight = false
		t.transition(rec, StateOpen, "trial failed")
	case StateClosed:
		if recent := rec.recentFailures(now, t.cfg.FailureWindow); recent >= t.cfg.FailureThreshold {
			t.transition(rec, StateOpen, fmt.Sprintf("%d failures in window", recent))
		} else if score < t.cfg.ScoreFloor {
			t.transition(rec, StateOpen, fmt.Sprintf("score %.3f below floor", score))
		}
	}

	t.logger.Debug("explorer failure recorded",
		"network", network,
		"explorer", explorer,
		"consecutive", rec.consecutive,
		"score", score,
		"error", cause,
	)

	t.persist(ctx, rec)
	rec.mu.Unlock()

	metrics.HealthScore(string(network), explorer, score)
}

// State returns the provider's circuit state, applying any due transition
func (t *Tracker) State(ctx context.Context, network chains.Network, explorer string) State {
	now := t.now()
	rec := t.get(ctx, network, explorer)
	defer rec.mu.Unlock()
	t.advance(rec, now)
	return rec.state
}

// Score returns the provider's current health score, recomputed on every read
func (t *Tracker) Score(ctx context.Context, network chains.Network, explorer string) float64 {
	now := t.now()
	rec := t.get(ctx, network, explorer)
	defer rec.mu.Unlock()
	t.advance(rec, now)
	return rec.score(now, t.cfg)
}

// Snapshot returns a copy of the provider's record
func (t *Tracker) Snapshot(ctx context.Context, network chains.Network, explorer string) Snapshot {
	now := t.now()
	rec := t.get(ctx, network, explorer)
	defer rec.mu.Unlock()
	t.advance(rec, now)
	return rec.snapshot(now, t.cfg)
}

// Reset discards the provider's record in memory and in the cache
func (t *Tracker) Reset(ctx context.Context, network chains.Network, explorer string) error {
	t.mu.Lock()
	delete(t.records, Key(network, explorer))
	t.mu.Unlock()

	if t.cache == nil {
		return nil
	}
	if err := t.cache.Delete(ctx, cacheKey(network, explorer)); err != nil {
		return fmt.Errorf("deleting health record: %w", err)
	}
	return nil
}

// ResetNetwork discards every provider record for a network
func (t *Tracker) ResetNetwork(ctx context.Context, network chains.Network) error {
	prefix := string(network) + ":"
	t.mu.Lock()
	for key := range t.records {
		if strings.HasPrefix(key, prefix) {
			delete(t.records, key)
		}
	}
	t.mu.Unlock()

	if t.cache == nil {
		return nil
	}
	if err := t.cache.DeletePrefix(ctx, "health:"+prefix); err != nil {
		return fmt.Errorf("deleting health records: %w", err)
	}
	t.logger.Info("health records reset", "network", network)
	return nil
}

// persist writes the record to the cache. Called with the record locked so writes stay ordered.
func (t *Tracker) persist(ctx context.Context, rec *lockedRecord) {
	if t.cache == nil {
		return
	}
	if err := storage.SetJSON(ctx, t.cache, cacheKey(rec.network, rec.explorer), rec.persisted(), t.cfg.RecordTTL); err != nil {
		t.logger.Warn("failed to persist health record", "network", rec.network, "explorer", rec.explorer, "error", err)
	}
}
