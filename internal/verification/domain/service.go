package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/manager"
	"github.com/pendergraft/chainscout/internal/observability/metrics"
	"github.com/pendergraft/chainscout/internal/storage"
	"github.com/pendergraft/chainscout/internal/validation"
)

// Common errors returned by the detector.
var (
	ErrNoCachedDetection = errors.New("no cached detection")
	ErrNotFoundAnywhere  = errors.New("contract not found on any network")
)

// Recommendations returned by GetVerificationStatus
const (
	RecommendUnverified = "Contract exists but is not verified on any supported network"
	RecommendNotFound   = "Contract not found on any supported network"
)

// Service is the cross-chain detection API
type Service interface {
	DetectChain(ctx context.Context, address string) (*Detection, error)
	GetContractSource(ctx context.Context, address string, preferred chains.Network) (*SourceResult, error)
	GetVerificationStatus(ctx context.Context, address string, hint chains.Network) (*VerificationStatus, error)
	DetectPrimaryChain(ctx context.Context, address string) (*PrimaryChain, error)
	GetCachedDetection(ctx context.Context, address string) (*Detection, error)
	ClearDetectionCache(ctx context.Context, address string) error
}

// Config holds detector settings
type Config struct {
	Workers  int
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DefaultConfig returns 3 workers, a 10s per-network timeout and a 1h cache
func DefaultConfig() Config {
	return Config{Workers: 3, Timeout: 10 * time.Second, CacheTTL: time.Hour}
}

// ConfigFrom builds a detector Config, keeping defaults for unset values
func ConfigFrom(c config.DetectionConfig) Config {
	cfg := DefaultConfig()
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.CacheTTL > 0 {
		cfg.CacheTTL = c.CacheTTL
	}
	return cfg
}

type service struct {
	mgr     *manager.Manager
	cache   storage.Cache
	cfg     Config
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewService creates a detector on top of the manager. A nil cache disables detection caching.
func NewService(mgr *manager.Manager, cache storage.Cache, cfg Config, logger *slog.Logger) *service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		mgr:     mgr,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		nowFunc: time.Now,
	}
}

func detectionKey(address string) string {
	return "detection:" + address
}

func normalize(address string) (string, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return "", err
	}
	return validation.NormalizeAddress(address), nil
}

// probe is what a detection call returns for a network where the address exists
type probe struct {
	source *explorer.ContractSource
	url    string
}

// DetectChain checks every configured network for the address concurrently.
// One network's failure never aborts the others; results are cached per address.
func (s *service) DetectChain(ctx context.Context, address string) (*Detection, error) {
	addr, err := normalize(address)
	if err != nil {
		return nil, err
	}

	if cached, err := s.GetCachedDetection(ctx, addr); err == nil {
		return cached, nil
	}

	start := s.nowFunc()
	networks := s.mgr.Registry().ConfiguredNetworks()
	det := &Detection{
		Address:              addr,
		FoundOn:              []chains.Network{},
		TotalNetworksChecked: len(networks),
		DetectionResults:     make(map[chains.Network]NetworkDetection, len(networks)),
		Errors:               make(map[chains.Network]string),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.Workers))
	for _, n := range networks {
		g.Go(func() error {
			nd, err := s.detectOn(ctx, n, addr)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				det.Errors[n] = err.Error()
				return nil
			}
			det.DetectionResults[n] = nd
			if nd.Exists {
				det.FoundOn = append(det.FoundOn, n)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chains.SortByRank(det.FoundOn)
	det.SuccessfulChecks = len(det.DetectionResults)
	det.FailedChecks = len(det.Errors)
	det.CheckedAt = s.nowFunc().UTC()

	result := "not_found"
	switch {
	case len(det.FoundOn) > 0:
		result = "found"
	case det.FailedChecks > 0 && det.SuccessfulChecks == 0:
		result = "error"
	}
	metrics.Detection(result, s.nowFunc().Sub(start))

	s.logger.Info("chain detection complete",
		"address", addr,
		"found_on", det.FoundOn,
		"checked", det.TotalNetworksChecked,
		"failed", det.FailedChecks,
	)

	if s.cache != nil {
		if err := storage.SetJSON(ctx, s.cache, detectionKey(addr), det, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache detection", "address", addr, "error", err)
		}
	}
	return det, nil
}

// detectOn makes a single attempt on one network under the per-network timeout
func (s *service) detectOn(ctx context.Context, network chains.Network, addr string) (NetworkDetection, error) {
	nctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.mgr.ExecuteWithRetry(nctx, network, func(ctx context.Context, c explorer.Client) (any, error) {
		src, err := c.FetchContractSource(ctx, addr)
		if err != nil {
			return nil, err
		}
		return probe{source: src, url: c.ContractURL(addr)}, nil
	}, manager.WithMaxAttempts(1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return NetworkDetection{}, fmt.Errorf("detection timed out after %s", s.cfg.Timeout)
		}
		return NetworkDetection{}, err
	}

	nd := NetworkDetection{
		Exists:         !res.NotFound,
		ResponseTimeMs: res.ResponseTimeMs,
		ExplorerName:   res.ExplorerName,
	}
	if meta, ok := chains.Lookup(network); ok {
		nd.ChainID = meta.ChainID
	}
	if p, ok := res.Payload.(probe); ok {
		nd.Verified = p.source.IsVerified
		nd.ContractURL = p.url
		nd.ContractName = p.source.ContractName
	}
	return nd, nil
}

// GetContractSource fetches verified source, trying the preferred network first and then
// every network the detector found verified source on, best candidate first.
func (s *service) GetContractSource(ctx context.Context, address string, preferred chains.Network) (*SourceResult, error) {
	addr, err := normalize(address)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, c explorer.Client) (any, error) {
		return c.FetchContractSource(ctx, addr)
	}

	out := &SourceResult{NetworksTried: []chains.Network{}}
	start := s.nowFunc()
	try := func(network chains.Network) (bool, error) {
		out.NetworksTried = append(out.NetworksTried, network)
		res, err := s.mgr.ExecuteWithRetry(ctx, network, fetch)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			var all *explorer.AllProvidersUnavailableError
			if errors.As(err, &all) {
				out.AttemptsMade += len(all.Attempts)
			}
			s.logger.Debug("source lookup failed", "address", addr, "network", network, "error", err)
			return false, nil
		}
		out.AttemptsMade += res.Attempts
		src, ok := res.Payload.(*explorer.ContractSource)
		if res.NotFound || !ok || !src.IsVerified {
			return false, nil
		}
		out.NetworkUsed = network
		out.ExplorerUsed = res.ExplorerName
		out.SwitchedExplorer = res.SwitchedExplorer || len(out.NetworksTried) > 1
		out.Result = src
		return true, nil
	}

	if preferred != "" {
		ok, err := try(preferred)
		if err != nil {
			return nil, err
		}
		if ok {
			out.ResponseTimeMs = s.nowFunc().Sub(start).Milliseconds()
			return out, nil
		}
	}

	det, err := s.DetectChain(ctx, addr)
	if err != nil {
		return nil, err
	}
	for _, vn := range s.rankVerified(ctx, det, preferred) {
		if vn.Network == preferred {
			continue
		}
		ok, err := try(vn.Network)
		if err != nil {
			return nil, err
		}
		if ok {
			out.ResponseTimeMs = s.nowFunc().Sub(start).Milliseconds()
			return out, nil
		}
	}

	network := preferred
	if network == "" {
		network = "any"
	}
	return nil, &explorer.BusinessNotFoundError{
		Network:  network,
		Explorer: "detector",
		Address:  addr,
		Reason:   "no verified source on any configured network",
	}
}

// rankVerified orders verified networks: the hint first, then highest health score,
// then lowest response time in the detection pass, then network rank.
func (s *service) rankVerified(ctx context.Context, det *Detection, hint chains.Network) []VerifiedNetwork {
	reg := s.mgr.Registry()
	var out []VerifiedNetwork
	for _, n := range det.VerifiedOn() {
		nd := det.DetectionResults[n]
		out = append(out, VerifiedNetwork{
			Network:        n,
			ExplorerName:   nd.ExplorerName,
			ResponseTimeMs: nd.ResponseTimeMs,
			HealthScore:    reg.HealthScore(ctx, n),
			ContractURL:    nd.ContractURL,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Network == hint) != (b.Network == hint) {
			return a.Network == hint
		}
		if a.HealthScore != b.HealthScore {
			return a.HealthScore > b.HealthScore
		}
		return a.ResponseTimeMs < b.ResponseTimeMs
	})
	return out
}

// GetVerificationStatus summarizes where the contract is verified and which network to use
func (s *service) GetVerificationStatus(ctx context.Context, address string, hint chains.Network) (*VerificationStatus, error) {
	det, err := s.DetectChain(ctx, address)
	if err != nil {
		return nil, err
	}

	status := &VerificationStatus{
		Address:          det.Address,
		VerifiedNetworks: det.VerifiedOn(),
		AvailableOn:      det.FoundOn,
		Details:          s.rankVerified(ctx, det, hint),
	}
	if status.VerifiedNetworks == nil {
		status.VerifiedNetworks = []chains.Network{}
	}
	if status.Details == nil {
		status.Details = []VerifiedNetwork{}
	}

	switch {
	case len(status.Details) > 0:
		status.IsVerified = true
		fastest := status.Details[0]
		for _, d := range status.Details[1:] {
			if d.ResponseTimeMs < fastest.ResponseTimeMs {
				fastest = d
			}
		}
		status.FastestVerifiedNetwork = fastest.Network
		status.RecommendedNetwork = status.Details[0].Network
		status.Recommendation = fmt.Sprintf("Use %s for best performance", status.RecommendedNetwork)
	case len(det.FoundOn) > 0:
		status.Recommendation = RecommendUnverified
	default:
		status.Recommendation = RecommendNotFound
	}
	return status, nil
}

// DetectPrimaryChain returns the highest-ranked network with verified source,
// or the highest-ranked network where the contract exists.
func (s *service) DetectPrimaryChain(ctx context.Context, address string) (*PrimaryChain, error) {
	det, err := s.DetectChain(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(det.FoundOn) == 0 {
		return nil, ErrNotFoundAnywhere
	}

	network, verified := det.FoundOn[0], false
	if v := det.VerifiedOn(); len(v) > 0 {
		network, verified = v[0], true
	}
	meta, _ := chains.Lookup(network)
	return &PrimaryChain{Address: det.Address, Network: network, Verified: verified, Metadata: meta}, nil
}

// GetCachedDetection returns a cached detection without probing any network
func (s *service) GetCachedDetection(ctx context.Context, address string) (*Detection, error) {
	addr, err := normalize(address)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return nil, ErrNoCachedDetection
	}

	var det Detection
	if err := storage.GetJSON(ctx, s.cache, detectionKey(addr), &det); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoCachedDetection
		}
		return nil, fmt.Errorf("reading cached detection: %w", err)
	}
	det.Cached = true
	return &det, nil
}

// ClearDetectionCache drops the cached detection for an address
func (s *service) ClearDetectionCache(ctx context.Context, address string) error {
	addr, err := normalize(address)
	if err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, detectionKey(addr)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("clearing detection cache: %w", err)
	}
	return nil
}
