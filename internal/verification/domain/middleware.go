package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
)

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) DetectChain(ctx context.Context, address string) (*Detection, error) {
	start := time.Now()
	det, err := m.next.DetectChain(ctx, address)
	attrs := []any{"address", address, "duration", time.Since(start), "error", err}
	if det != nil {
		attrs = append(attrs, "found_on", det.FoundOn, "cached", det.Cached)
	}
	m.logger.Info("DetectChain", attrs...)
	return det, err
}

func (m *loggingMiddleware) GetContractSource(ctx context.Context, address string, preferred chains.Network) (*SourceResult, error) {
	start := time.Now()
	res, err := m.next.GetContractSource(ctx, address, preferred)
	attrs := []any{"address", address, "preferred", preferred, "duration", time.Since(start), "error", err}
	if res != nil {
		attrs = append(attrs, "network", res.NetworkUsed, "explorer", res.ExplorerUsed, "attempts", res.AttemptsMade)
	}
	m.logger.Info("GetContractSource", attrs...)
	return res, err
}

func (m *loggingMiddleware) GetVerificationStatus(ctx context.Context, address string, hint chains.Network) (*VerificationStatus, error) {
	start := time.Now()
	status, err := m.next.GetVerificationStatus(ctx, address, hint)
	m.logger.Debug("GetVerificationStatus",
		"address", address,
		"hint", hint,
		"duration", time.Since(start),
		"error", err,
	)
	return status, err
}

func (m *loggingMiddleware) DetectPrimaryChain(ctx context.Context, address string) (*PrimaryChain, error) {
	start := time.Now()
	primary, err := m.next.DetectPrimaryChain(ctx, address)
	m.logger.Debug("DetectPrimaryChain",
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return primary, err
}

func (m *loggingMiddleware) GetCachedDetection(ctx context.Context, address string) (*Detection, error) {
	start := time.Now()
	det, err := m.next.GetCachedDetection(ctx, address)
	m.logger.Debug("GetCachedDetection",
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return det, err
}

func (m *loggingMiddleware) ClearDetectionCache(ctx context.Context, address string) error {
	start := time.Now()
	err := m.next.ClearDetectionCache(ctx, address)
	m.logger.Info("ClearDetectionCache",
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}
