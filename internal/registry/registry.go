// Package registry builds, caches and validates explorer clients per network.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/health"
)

// DefaultHealthyThreshold is the score at or above which a network counts as healthy
const DefaultHealthyThreshold = 0.7

// Validation issues and warnings
const (
	IssueUnsupportedNetwork = "unsupported network"
	IssueMissingCredential  = "missing credential"
	IssueMissingAPIURL      = "missing API URL"
	IssueInvalidAPIURL      = "invalid API URL format"
	IssueUnknownKind        = "unknown explorer kind"

	WarnRateLimitNotConfigured = "rate limit not configured"
	WarnTimeoutNotConfigured   = "timeout not configured"
	WarnRateLimitOutOfRange    = "rate limit outside recommended range (1-50)"
)

// Registry is the explorer factory. Clients are built lazily on first use and
// cached until Invalidate is called for their network.
type Registry struct {
	cfg              config.ExplorersConfig
	tracker          *health.Tracker
	logger           *slog.Logger
	clientOpts       []explorer.Option
	healthyThreshold float64
	nowFunc          func() time.Time

	mu      sync.RWMutex
	clients map[chains.Network][]explorer.Client
}

// Option configures a Registry
type Option func(*Registry)

// WithClientOptions passes options to every client the registry builds
func WithClientOptions(opts ...explorer.Option) Option {
	return func(r *Registry) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// WithHealthyThreshold overrides the healthy score threshold
func WithHealthyThreshold(threshold float64) Option {
	return func(r *Registry) {
		if threshold > 0 {
			r.healthyThreshold = threshold
		}
	}
}

// WithNowFunc overrides the clock used for report timestamps
func WithNowFunc(fn func() time.Time) Option {
	return func(r *Registry) {
		r.nowFunc = fn
	}
}

// New creates a Registry over the explorer configuration
func New(cfg config.ExplorersConfig, tracker *health.Tracker, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:              cfg,
		tracker:          tracker,
		logger:           logger,
		healthyThreshold: DefaultHealthyThreshold,
		nowFunc:          time.Now,
		clients:          make(map[chains.Network][]explorer.Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HealthyThreshold returns the score at or above which a network is healthy
func (r *Registry) HealthyThreshold() float64 {
	return r.healthyThreshold
}

// Tracker returns the shared health tracker
func (r *Registry) Tracker() *health.Tracker {
	return r.tracker
}

// networkConfig returns the enabled config for a network
func (r *Registry) networkConfig(network chains.Network) (config.NetworkConfig, bool) {
	if _, known := chains.Lookup(network); !known {
		return config.NetworkConfig{}, false
	}
	nc, ok := r.cfg.Networks[string(network)]
	if !ok || !nc.IsEnabled() {
		return config.NetworkConfig{}, false
	}
	return nc, true
}

// Clients returns every configured, enabled provider for network in priority order
func (r *Registry) Clients(network chains.Network) ([]explorer.Client, error) {
	r.mu.RLock()
	cached, ok := r.clients[network]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	nc, ok := r.networkConfig(network)
	if !ok {
		return nil, &explorer.ConfigurationError{Network: network, Reason: IssueUnsupportedNetwork}
	}

	var built []explorer.Client
	var firstIssue string
	for _, ec := range nc.Sorted() {
		if issues := explorerIssues(ec); len(issues) > 0 {
			if firstIssue == "" {
				firstIssue = issues[0]
			}
			r.logger.Debug("skipping unconfigured explorer", "network", network, "explorer", ec.Name, "issues", issues)
			continue
		}
		c, err := explorer.New(network, ec, r.clientOpts...)
		if err != nil {
			r.logger.Warn("failed to build explorer client", "network", network, "explorer", ec.Name, "error", err)
			if firstIssue == "" {
				firstIssue = err.Error()
			}
			continue
		}
		built = append(built, c)
	}

	if len(built) == 0 {
		if firstIssue == "" {
			firstIssue = IssueMissingAPIURL
		}
		return nil, &explorer.ConfigurationError{Network: network, Reason: firstIssue}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[network]; ok {
		return existing, nil
	}
	r.clients[network] = built
	r.logger.Debug("explorer clients created", "network", network, "count", len(built))
	return built, nil
}

// GetClient returns the primary configured client for network
func (r *Registry) GetClient(network chains.Network) (explorer.Client, error) {
	clients, err := r.Clients(network)
	if err != nil {
		return nil, err
	}
	return clients[0], nil
}

// Invalidate drops the cached clients for network
func (r *Registry) Invalidate(network chains.Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, network)
}

// GetSupportedNetworks returns the enabled networks declared in configuration, in rank order
func (r *Registry) GetSupportedNetworks() []chains.Network {
	var out []chains.Network
	for name := range r.cfg.Networks {
		n := chains.Network(name)
		if _, ok := r.networkConfig(n); ok {
			out = append(out, n)
		}
	}
	chains.SortByRank(out)
	return out
}

// ConfiguredNetworks returns the supported networks with at least one usable provider
func (r *Registry) ConfiguredNetworks() []chains.Network {
	var out []chains.Network
	for _, n := range r.GetSupportedNetworks() {
		if _, err := r.Clients(n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// HealthScore returns the best score among the network's configured providers,
// or 0 when the network has none.
func (r *Registry) HealthScore(ctx context.Context, network chains.Network) float64 {
	clients, err := r.Clients(network)
	if err != nil {
		return 0
	}
	best := 0.0
	for _, c := range clients {
		if s := r.tracker.Score(ctx, network, c.Name()); s > best {
			best = s
		}
	}
	return best
}

// NetworkState summarizes provider circuits: CLOSED if any provider is closed,
// HALF_OPEN if any is on probation, otherwise OPEN.
func (r *Registry) NetworkState(ctx context.Context, network chains.Network) health.State {
	clients, err := r.Clients(network)
	if err != nil {
		return health.StateOpen
	}
	state := health.StateOpen
	for _, c := range clients {
		switch r.tracker.State(ctx, network, c.Name()) {
		case health.StateClosed:
			return health.StateClosed
		case health.StateHalfOpen:
			state = health.StateHalfOpen
		}
	}
	return state
}

// HealthLabel maps a score to a human readable status
func HealthLabel(score float64) string {
	switch {
	case score >= 0.9:
		return "Excellent"
	case score >= 0.7:
		return "Good"
	case score >= 0.5:
		return "Fair"
	case score >= 0.3:
		return "Poor"
	default:
		return "Critical"
	}
}
