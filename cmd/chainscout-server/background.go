package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/manager"
)

const purgeInterval = 15 * time.Minute

type prober interface {
	TestAllChains(ctx context.Context) map[chains.Network]manager.ConnectivityResult
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// runProbes tests every configured network once per interval until ctx is done
func runProbes(ctx context.Context, p prober, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeOnce(ctx, p, logger)
		}
	}
}

func probeOnce(ctx context.Context, p prober, logger *slog.Logger) int {
	failed := 0
	for network, res := range p.TestAllChains(ctx) {
		if res.Success {
			logger.Debug("probe ok", "network", network, "explorer", res.ExplorerName, "response_time_ms", res.ResponseTimeMs)
			continue
		}
		failed++
		logger.Warn("probe failed", "network", network, "explorer", res.ExplorerName, "error", res.Error)
	}
	return failed
}

// runPurge drops expired cache entries once per interval until ctx is done
func runPurge(ctx context.Context, p purger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Error("purging expired cache entries", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache entries", "count", n)
			}
		}
	}
}
