// Package multichain runs one operation across several networks concurrently and
// collects per-network results into a report.
package multichain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/manager"
	"github.com/pendergraft/chainscout/internal/observability/metrics"
)

// ErrNoNetworks is returned when an operation names no networks.
var ErrNoNetworks = errors.New("no networks requested")

// DefaultWorkers bounds how many networks run at once
const DefaultWorkers = 4

// Report status values
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// Failure is a network's terminal error inside a Report
type Failure struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Attempts int    `json:"attempts"`
}

// Summary aggregates a Report
type Summary struct {
	TotalNetworks      int     `json:"total_networks"`
	SuccessfulNetworks int     `json:"successful_networks"`
	FailedNetworks     int     `json:"failed_networks"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTimeMs        int64   `json:"total_time_ms"`
	Status             string  `json:"status"`
}

// Report is the result of ExecuteMultiChain, keyed by network
type Report struct {
	ID          string                                      `json:"id"`
	Operation   string                                      `json:"operation"`
	Successful  map[chains.Network]*manager.OperationResult `json:"successful"`
	Failed      map[chains.Network]Failure                  `json:"failed"`
	Summary     Summary                                     `json:"summary"`
	Cancelled   bool                                        `json:"cancelled"`
	StartedAt   time.Time                                   `json:"started_at"`
	CompletedAt time.Time                                   `json:"completed_at"`
}

type options struct {
	failFast bool
	workers  int
}

// Option adjusts one ExecuteMultiChain call
type Option func(*options)

// WithFailFast cancels the remaining networks after the first failure
func WithFailFast(enabled bool) Option {
	return func(o *options) {
		o.failFast = enabled
	}
}

// WithWorkers overrides the concurrency bound for one call
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Orchestrator fans operations out across networks through the manager
type Orchestrator struct {
	mgr     *manager.Manager
	workers int
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates an Orchestrator. Non-positive workers means DefaultWorkers.
func New(mgr *manager.Manager, workers int, logger *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{mgr: mgr, workers: workers, logger: logger, nowFunc: time.Now}
}

// SetNowFunc overrides the clock used for report timestamps. Call before first use.
func (o *Orchestrator) SetNowFunc(fn func() time.Time) {
	o.nowFunc = fn
}

// DefaultNetworks returns the networks used when a caller names none: every configured network
func (o *Orchestrator) DefaultNetworks() []string {
	var out []string
	for _, n := range o.mgr.Registry().ConfiguredNetworks() {
		out = append(out, n.String())
	}
	return out
}

// parseNetworks resolves, de-duplicates and rank-orders network names
func parseNetworks(names []string) ([]chains.Network, error) {
	if len(names) == 0 {
		return nil, ErrNoNetworks
	}
	seen := make(map[chains.Network]bool, len(names))
	var out []chains.Network
	for _, name := range names {
		n, err := chains.Parse(name)
		if err != nil {
			return nil, err
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	chains.SortByRank(out)
	return out, nil
}

// ExecuteMultiChain runs op on every named network with bounded concurrency. It fails only
// for an empty network list or an unknown network name; per-network errors land in Failed.
// When ctx is cancelled the partial report is returned with unfinished networks marked failed.
func (o *Orchestrator) ExecuteMultiChain(ctx context.Context, networks []string, name string, op manager.Operation, opts ...Option) (*Report, error) {
	targets, err := parseNetworks(networks)
	if err != nil {
		return nil, err
	}

	cfg := options{workers: o.workers}
	for _, opt := range opts {
		opt(&cfg)
	}

	report := &Report{
		ID:         uuid.New().String(),
		Operation:  name,
		Successful: make(map[chains.Network]*manager.OperationResult),
		Failed:     make(map[chains.Network]Failure),
		StartedAt:  o.nowFunc().UTC(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		stopped bool
		g       errgroup.Group
	)
	fail := func(n chains.Network, f Failure) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed[n] = f
	}
	g.SetLimit(cfg.workers)

	for _, n := range targets {
		g.Go(func() error {
			if err := runCtx.Err(); err != nil {
				fail(n, Failure{Error: fmt.Sprintf("cancelled before start: %v", err), Code: "cancelled"})
				return nil
			}

			res, err := o.mgr.ExecuteWithRetry(runCtx, n, op)
			if err != nil {
				f := Failure{Error: err.Error(), Code: failureCode(err)}
				var all *explorer.AllProvidersUnavailableError
				if errors.As(err, &all) {
					f.Attempts = len(all.Attempts)
				}
				fail(n, f)
				metrics.MultiChainNetwork(n.String(), "failed")

				if cfg.failFast {
					mu.Lock()
					stopped = true
					mu.Unlock()
					cancel()
				}
				return nil
			}

			mu.Lock()
			report.Successful[n] = res
			mu.Unlock()
			metrics.MultiChainNetwork(n.String(), "success")
			return nil
		})
	}
	_ = g.Wait()

	report.CompletedAt = o.nowFunc().UTC()
	report.Cancelled = stopped || ctx.Err() != nil
	report.Summary = summarize(report, len(targets))
	metrics.MultiChain(name, report.Summary.Status)

	o.logger.Info("multi-chain operation finished",
		"id", report.ID,
		"operation", name,
		"networks", len(targets),
		"successful", report.Summary.SuccessfulNetworks,
		"failed", report.Summary.FailedNetworks,
		"cancelled", report.Cancelled,
	)
	return report, nil
}

func summarize(r *Report, total int) Summary {
	s := Summary{
		TotalNetworks:      total,
		SuccessfulNetworks: len(r.Successful),
		FailedNetworks:     len(r.Failed),
		TotalTimeMs:        r.CompletedAt.Sub(r.StartedAt).Milliseconds(),
	}
	if total > 0 {
		s.SuccessRate = float64(s.SuccessfulNetworks) / float64(total)
	}
	switch {
	case s.FailedNetworks == 0:
		s.Status = StatusComplete
	case s.SuccessfulNetworks == 0:
		s.Status = StatusFailed
	default:
		s.Status = StatusPartial
	}
	return s
}

func failureCode(err error) string {
	var (
		cfgErr *explorer.ConfigurationError
		allErr *explorer.AllProvidersUnavailableError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "not_configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &allErr):
		return "unavailable"
	default:
		return "error"
	}
}
