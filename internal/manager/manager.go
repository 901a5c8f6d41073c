// Package manager selects explorers per network and executes operations against
// them with retry, failover and per-explorer rate limiting.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/health"
	"github.com/pendergraft/chainscout/internal/observability/metrics"
	"github.com/pendergraft/chainscout/internal/ratelimit"
	"github.com/pendergraft/chainscout/internal/registry"
	"github.com/pendergraft/chainscout/internal/validation"
)

// Operation is one unit of work against a single explorer client
type Operation func(ctx context.Context, client explorer.Client) (any, error)

// OperationResult is the normalized outcome of ExecuteWithRetry
type OperationResult struct {
	Network          chains.Network `json:"network"`
	ExplorerName     string         `json:"explorer_name"`
	Success          bool           `json:"success"`
	NotFound         bool           `json:"not_found"`
	ResponseTimeMs   int64          `json:"response_time_ms"`
	Attempts         int            `json:"attempts"`
	SwitchedExplorer bool           `json:"switched_explorer"`
	Error            string         `json:"error,omitempty"`
	Payload          any            `json:"payload,omitempty"`
}

// Config holds retry and selection settings
type Config struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxRateLimitWait time.Duration
	SelectionTTL     time.Duration
	// Jitter is the maximum fraction of the backoff added at random
	Jitter float64
	// ProbeWorkers bounds TestAllChains concurrency
	ProbeWorkers int
}

// DefaultConfig returns the default retry settings
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxDelay:         5 * time.Second,
		MaxRateLimitWait: 2 * time.Second,
		SelectionTTL:     5 * time.Minute,
		Jitter:           0.1,
		ProbeWorkers:     4,
	}
}

// ConfigFrom builds a manager Config from the retry settings, keeping defaults for unset values
func ConfigFrom(c config.RetryConfig) Config {
	cfg := DefaultConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelay > 0 {
		cfg.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		cfg.MaxDelay = c.MaxDelay
	}
	if c.MaxRateLimitWait > 0 {
		cfg.MaxRateLimitWait = c.MaxRateLimitWait
	}
	if c.SelectionTTL > 0 {
		cfg.SelectionTTL = c.SelectionTTL
	}
	return cfg
}

type selection struct {
	client    explorer.Client
	expiresAt time.Time
}

// Manager is the resilient execution layer over the registry
type Manager struct {
	registry *registry.Registry
	tracker  *health.Tracker
	limiter  *ratelimit.Limiter
	cfg      Config
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	nowFunc  func() time.Time

	mu         sync.Mutex
	selections map[chains.Network]selection
}

// Option configures a Manager
type Option func(*Manager)

// WithSleep replaces the backoff sleeper. Intended for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) {
		m.sleep = fn
	}
}

// WithNowFunc overrides the clock used for selection expiry and timings
func WithNowFunc(fn func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = fn
	}
}

// New creates a Manager. The health tracker is shared with the registry.
func New(reg *registry.Registry, limiter *ratelimit.Limiter, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(cfg.MaxRateLimitWait)
	}
	m := &Manager{
		registry:   reg,
		tracker:    reg.Tracker(),
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger,
		sleep:      sleepContext,
		nowFunc:    time.Now,
		selections: make(map[chains.Network]selection),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the underlying registry
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clients returns the network's providers and makes sure each has a limiter bucket
func (m *Manager) clients(network chains.Network) ([]explorer.Client, error) {
	clients, err := m.registry.Clients(network)
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		m.limiter.Register(health.Key(network, c.Name()), c.RateLimit())
	}
	return clients, nil
}

func (m *Manager) cachedSelection(ctx context.Context, network chains.Network) (explorer.Client, bool) {
	m.mu.Lock()
	sel, ok := m.selections[network]
	m.mu.Unlock()
	if !ok || !m.nowFunc().Before(sel.expiresAt) {
		return nil, false
	}
	if m.tracker.State(ctx, network, sel.client.Name()) == health.StateOpen {
		return nil, false
	}
	return sel.client, true
}

func (m *Manager) setSelection(network chains.Network, c explorer.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections[network] = selection{client: c, expiresAt: m.nowFunc().Add(m.cfg.SelectionTTL)}
}

func (m *Manager) clearSelection(network chains.Network) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.selections, network)
}

// GetBestExplorer returns the primary provider unless its circuit is OPEN, in which
// case the next provider by priority. Fails when every provider is OPEN.
func (m *Manager) GetBestExplorer(ctx context.Context, network chains.Network) (explorer.Client, error) {
	if c, ok := m.cachedSelection(ctx, network); ok {
		return c, nil
	}

	clients, err := m.clients(network)
	if err != nil {
		return nil, err
	}
	for i, c := range clients {
		if m.tracker.State(ctx, network, c.Name()) == health.StateOpen {
			continue
		}
		if i > 0 {
			m.logger.Info("using fallback explorer", "network", network, "explorer", c.Name(), "primary", clients[0].Name())
		}
		m.setSelection(network, c)
		return c, nil
	}
	return nil, &explorer.AllProvidersUnavailableError{Network: network}
}

// SwitchToBestExplorer discards the cached selection and picks the highest-scoring
// provider whose circuit is not OPEN; priority breaks ties.
func (m *Manager) SwitchToBestExplorer(ctx context.Context, network chains.Network) (explorer.Client, error) {
	m.clearSelection(network)

	clients, err := m.clients(network)
	if err != nil {
		return nil, err
	}
	var best explorer.Client
	bestScore := -1.0
	for _, c := range clients {
		if m.tracker.State(ctx, network, c.Name()) == health.StateOpen {
			continue
		}
		if s := m.tracker.Score(ctx, network, c.Name()); s > bestScore {
			best, bestScore = c, s
		}
	}
	if best == nil {
		return nil, &explorer.AllProvidersUnavailableError{Network: network}
	}
	m.setSelection(network, best)
	return best, nil
}

// acquire selects a provider and takes admission from its circuit. If the selected
// provider is short-circuited, the remaining non-OPEN providers are tried in order.
func (m *Manager) acquire(ctx context.Context, network chains.Network, rescore bool) (explorer.Client, error) {
	var (
		selected explorer.Client
		err      error
	)
	if rescore {
		selected, err = m.SwitchToBestExplorer(ctx, network)
	} else {
		selected, err = m.GetBestExplorer(ctx, network)
	}
	if err != nil {
		return nil, err
	}
	if m.tracker.Allow(ctx, network, selected.Name()) == nil {
		return selected, nil
	}
	metrics.ExplorerRequest(string(network), selected.Name(), "short_circuited", 0)

	m.clearSelection(network)
	clients, err := m.clients(network)
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		if c.Name() == selected.Name() {
			continue
		}
		if m.tracker.Allow(ctx, network, c.Name()) == nil {
			m.setSelection(network, c)
			return c, nil
		}
	}
	return nil, &explorer.AllProvidersUnavailableError{Network: network}
}

type callOptions struct {
	maxAttempts int
}

// CallOption adjusts a single ExecuteWithRetry call
type CallOption func(*callOptions)

// WithMaxAttempts overrides the number of attempts for one call
func WithMaxAttempts(n int) CallOption {
	return func(o *callOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// ExecuteWithRetry runs op against the network's best explorer, retrying with
// exponential backoff and re-selecting the explorer on every attempt.
//
// A ConfigurationError or invalid address is returned immediately. A business
// "not found" ends the loop with a successful, NotFound result. A local rate limit
// rejection waits the limiter's delay and retries the same explorer without
// touching its health. When every attempt fails the error is an
// *explorer.AllProvidersUnavailableError listing each attempt.
func (m *Manager) ExecuteWithRetry(ctx context.Context, network chains.Network, op Operation, opts ...CallOption) (*OperationResult, error) {
	o := callOptions{maxAttempts: m.cfg.MaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		attempts      []explorer.Attempt
		firstExplorer string
		rateLimitWait time.Duration
		lastWasLimit  bool
		started       = m.nowFunc()
	)

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.ExplorerRetry(string(network))
			delay := m.backoff(attempt - 1)
			if lastWasLimit {
				delay = rateLimitWait
			}
			if err := m.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		// After a provider failure, re-rank by score so a healthier alternate takes over.
		client, err := m.acquire(ctx, network, attempt > 1 && !lastWasLimit)
		if err != nil {
			var all *explorer.AllProvidersUnavailableError
			if errors.As(err, &all) {
				all.Attempts = append(attempts, all.Attempts...)
				m.logger.Error("all explorers unavailable", "network", network, "attempts", len(all.Attempts))
			}
			return nil, err
		}
		name := client.Name()
		if firstExplorer == "" {
			firstExplorer = name
		}
		lastWasLimit = false

		key := health.Key(network, name)
		if err := m.limiter.Wait(ctx, key); err != nil {
			m.tracker.Cancel(ctx, network, name)
			var rl *explorer.RateLimitExceededError
			if !errors.As(err, &rl) {
				return nil, err
			}
			metrics.ExplorerRequest(string(network), name, "rate_limited", 0)
			m.logger.Warn("explorer rate limited locally", "network", network, "explorer", name, "retry_after", rl.RetryAfter)
			attempts = append(attempts, explorer.Attempt{Explorer: name, Err: err})
			rateLimitWait = rl.RetryAfter
			lastWasLimit = true
			continue
		}

		callStart := m.nowFunc()
		payload, err := op(ctx, client)
		elapsed := m.nowFunc().Sub(callStart)

		result := &OperationResult{
			Network:          network,
			ExplorerName:     name,
			Attempts:         attempt,
			SwitchedExplorer: name != firstExplorer,
		}

		switch {
		case err == nil:
			m.tracker.RecordSuccess(ctx, network, name, elapsed)
			metrics.ExplorerRequest(string(network), name, "success", elapsed)
			result.Success = true
			result.Payload = payload
			result.ResponseTimeMs = m.nowFunc().Sub(started).Milliseconds()
			return result, nil

		case ctx.Err() != nil:
			m.releaseAborted(ctx, network, name, elapsed)
			return nil, ctx.Err()

		case explorer.IsNotFound(err):
			m.tracker.RecordSuccess(ctx, network, name, elapsed)
			metrics.ExplorerRequest(string(network), name, "not_found", elapsed)
			result.Success = true
			result.NotFound = true
			result.Error = err.Error()
			result.Payload = payload
			result.ResponseTimeMs = m.nowFunc().Sub(started).Milliseconds()
			return result, nil

		case explorer.IsConfiguration(err), errors.Is(err, validation.ErrInvalidAddress):
			m.tracker.Cancel(ctx, network, name)
			return nil, err
		}

		m.tracker.RecordFailure(ctx, network, name, err)
		metrics.ExplorerRequest(string(network), name, "failure", elapsed)
		attempts = append(attempts, explorer.Attempt{Explorer: name, Err: err})

		logAttrs := []any{"network", network, "explorer", name, "attempt", attempt, "max_attempts", o.maxAttempts, "error", err}
		for k, v := range explorer.ErrorFields(err) {
			if k != "network" && k != "explorer" {
				logAttrs = append(logAttrs, k, v)
			}
		}
		m.logger.Warn("explorer attempt failed", logAttrs...)

		if !explorer.IsRetryable(err) {
			break
		}
	}

	m.logger.Error("explorer retries exhausted", "network", network, "attempts", len(attempts))
	return nil, &explorer.AllProvidersUnavailableError{Network: network, Attempts: attempts}
}

// releaseAborted settles the record of a call cut short by ctx. A caller
// cancellation leaves the counters untouched; an expired deadline is a failure.
func (m *Manager) releaseAborted(ctx context.Context, network chains.Network, name string, elapsed time.Duration) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		m.tracker.Cancel(ctx, network, name)
		return
	}
	timeout := &explorer.ProviderUnavailableError{
		Network:  network,
		Explorer: name,
		Err:      fmt.Errorf("request timed out: %w", ctx.Err()),
	}
	m.tracker.RecordFailure(context.WithoutCancel(ctx), network, name, timeout)
	metrics.ExplorerRequest(string(network), name, "timeout", elapsed)
}

// backoff returns base*2^(n-1) capped at the maximum, plus up to Jitter of that at random
func (m *Manager) backoff(n int) time.Duration {
	d := m.cfg.BaseDelay
	for i := 1; i < n && d < m.cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > m.cfg.MaxDelay {
		d = m.cfg.MaxDelay
	}
	if m.cfg.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * m.cfg.Jitter * float64(d))
	}
	return d
}
