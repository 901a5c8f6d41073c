package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/health"
	"github.com/pendergraft/chainscout/internal/observability/metrics"
	"github.com/pendergraft/chainscout/internal/registry"
)

// Recommended actions reported by ChainStatus
const (
	ActionHealthy   = "Healthy"
	ActionCritical  = "Critical: explorer is failing, check API key and connectivity"
	ActionDegraded  = "Warning: explorer performance degraded, monitor closely"
	ActionLowRate   = "Warning: success rate below 80%"
	ActionSlow      = "Warning: slow responses, consider an alternate explorer"
	slowResponseMs  = 5000
	lowSuccessRatio = 0.8
)

// ConnectivityResult is the outcome of a single connectivity probe
type ConnectivityResult struct {
	Network        chains.Network `json:"network"`
	Success        bool           `json:"success"`
	ExplorerName   string         `json:"explorer_name,omitempty"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	Error          string         `json:"error,omitempty"`
	TestedAt       time.Time      `json:"tested_at"`
}

// ChainStatus describes one network's configuration and provider health
type ChainStatus struct {
	Network           chains.Network    `json:"network"`
	DisplayName       string            `json:"display_name"`
	ChainID           int               `json:"chain_id"`
	Configured        bool              `json:"configured"`
	CurrentExplorer   string            `json:"current_explorer,omitempty"`
	HealthScore       float64           `json:"health_score"`
	HealthStatus      string            `json:"health_status"`
	CircuitState      health.State      `json:"circuit_state"`
	SuccessRate       float64           `json:"success_rate"`
	AvgResponseTimeMs float64           `json:"avg_response_time_ms"`
	TotalRequests     int64             `json:"total_requests"`
	RateLimitTokens   float64           `json:"rate_limit_tokens"` // -1 when unlimited
	Explorers         []health.Snapshot `json:"explorers"`
	Issues            []string          `json:"issues,omitempty"`
	RecommendedAction string            `json:"recommended_action"`
}

// RepairResult reports what RepairNetwork did
type RepairResult struct {
	Network       chains.Network     `json:"network"`
	PreviousScore float64            `json:"previous_score"`
	NewScore      float64            `json:"new_score"`
	Repaired      bool               `json:"repaired"`
	Connectivity  ConnectivityResult `json:"connectivity"`
}

// TestChainConnectivity sends one ping to the network's best explorer and records the outcome
func (m *Manager) TestChainConnectivity(ctx context.Context, network chains.Network) ConnectivityResult {
	result := ConnectivityResult{Network: network, TestedAt: m.nowFunc().UTC()}

	client, err := m.acquire(ctx, network, false)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	name := client.Name()
	result.ExplorerName = name

	if err := m.limiter.Wait(ctx, health.Key(network, name)); err != nil {
		m.tracker.Cancel(ctx, network, name)
		result.Error = err.Error()
		return result
	}

	start := m.nowFunc()
	err = client.Ping(ctx)
	elapsed := m.nowFunc().Sub(start)
	result.ResponseTimeMs = elapsed.Milliseconds()

	switch {
	case err == nil:
		m.tracker.RecordSuccess(ctx, network, name, elapsed)
		metrics.ExplorerRequest(string(network), name, "success", elapsed)
		result.Success = true
	case ctx.Err() != nil:
		m.releaseAborted(ctx, network, name, elapsed)
		result.Error = err.Error()
	case explorer.IsConfiguration(err):
		m.tracker.Cancel(ctx, network, name)
		result.Error = err.Error()
	default:
		m.tracker.RecordFailure(ctx, network, name, err)
		metrics.ExplorerRequest(string(network), name, "failure", elapsed)
		result.Error = err.Error()
	}

	m.logger.Debug("connectivity probe", "network", network, "explorer", name, "success", result.Success, "duration", elapsed)
	return result
}

// TestAllChains probes every configured network concurrently
func (m *Manager) TestAllChains(ctx context.Context) map[chains.Network]ConnectivityResult {
	networks := m.registry.ConfiguredNetworks()
	results := make(map[chains.Network]ConnectivityResult, len(networks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.cfg.ProbeWorkers))
	for _, n := range networks {
		g.Go(func() error {
			r := m.TestChainConnectivity(gctx, n)
			mu.Lock()
			results[n] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ChainStatus returns configuration and health for one network
func (m *Manager) ChainStatus(ctx context.Context, network chains.Network) ChainStatus {
	status := ChainStatus{
		Network:      network,
		CircuitState: health.StateOpen,
		Explorers:    []health.Snapshot{},
	}
	if meta, ok := chains.Lookup(network); ok {
		status.DisplayName = meta.DisplayName
		status.ChainID = meta.ChainID
	}

	validation := m.registry.ValidateConfiguration(ctx, network)
	status.Configured = validation.Valid
	status.Issues = validation.Issues

	clients, err := m.clients(network)
	if err != nil {
		status.HealthStatus = registry.HealthLabel(0)
		status.RecommendedAction = configureAction(err)
		return status
	}

	for _, c := range clients {
		status.Explorers = append(status.Explorers, m.tracker.Snapshot(ctx, network, c.Name()))
	}

	current, err := m.GetBestExplorer(ctx, network)
	var snap health.Snapshot
	if err == nil {
		status.CurrentExplorer = current.Name()
		snap = m.tracker.Snapshot(ctx, network, current.Name())
	} else {
		// every circuit is open; report the primary
		snap = status.Explorers[0]
	}

	status.HealthScore = m.registry.HealthScore(ctx, network)
	status.HealthStatus = registry.HealthLabel(status.HealthScore)
	status.CircuitState = m.registry.NetworkState(ctx, network)
	status.SuccessRate = snap.SuccessRatio()
	status.AvgResponseTimeMs = snap.AvgResponseTimeMs
	status.TotalRequests = snap.TotalRequests
	status.RateLimitTokens = m.limiter.Tokens(health.Key(network, snap.Explorer))
	status.RecommendedAction = recommendAction(status)
	return status
}

// AllChainsStatus returns ChainStatus for every supported network
func (m *Manager) AllChainsStatus(ctx context.Context) map[chains.Network]ChainStatus {
	out := make(map[chains.Network]ChainStatus)
	for _, n := range m.registry.GetSupportedNetworks() {
		out[n] = m.ChainStatus(ctx, n)
	}
	return out
}

func configureAction(err error) string {
	var ce *explorer.ConfigurationError
	if errors.As(err, &ce) {
		return fmt.Sprintf("Configure explorer: %s", ce.Reason)
	}
	return fmt.Sprintf("Configure explorer: %v", err)
}

func recommendAction(s ChainStatus) string {
	switch {
	case s.HealthScore < 0.3:
		return ActionCritical
	case s.HealthScore < 0.7:
		return ActionDegraded
	case s.SuccessRate < lowSuccessRatio:
		return ActionLowRate
	case s.AvgResponseTimeMs > slowResponseMs:
		return ActionSlow
	default:
		return ActionHealthy
	}
}

// InvalidateNetwork clears health records, rate limit buckets, cached clients and the explorer selection for a network
func (m *Manager) InvalidateNetwork(ctx context.Context, network chains.Network) error {
	if _, ok := chains.Lookup(network); !ok {
		return &explorer.ConfigurationError{Network: network, Reason: registry.IssueUnsupportedNetwork}
	}
	m.clearSelection(network)
	if clients, err := m.registry.Clients(network); err == nil {
		for _, c := range clients {
			m.limiter.Forget(health.Key(network, c.Name()))
		}
	}
	m.registry.Invalidate(network)
	if err := m.tracker.ResetNetwork(ctx, network); err != nil {
		return fmt.Errorf("resetting health for %s: %w", network, err)
	}
	m.logger.Info("network invalidated", "network", network)
	return nil
}

// RepairNetwork resets a network's health state and verifies it with a fresh probe
func (m *Manager) RepairNetwork(ctx context.Context, network chains.Network) (RepairResult, error) {
	result := RepairResult{
		Network:       network,
		PreviousScore: m.registry.HealthScore(ctx, network),
	}
	if err := m.InvalidateNetwork(ctx, network); err != nil {
		return result, err
	}

	result.Connectivity = m.TestChainConnectivity(ctx, network)
	result.NewScore = m.registry.HealthScore(ctx, network)
	result.Repaired = result.Connectivity.Success

	m.logger.Info("network repair attempted",
		"network", network,
		"previous_score", result.PreviousScore,
		"new_score", result.NewScore,
		"repaired", result.Repaired,
	)
	return result, nil
}
