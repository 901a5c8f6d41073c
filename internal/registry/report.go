package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/health"
)

// HealthReport is the system-wide health summary
type HealthReport struct {
	TotalNetworks        int                              `json:"total_networks"`
	ConfiguredNetworks   int                              `json:"configured_networks"`
	UnconfiguredNetworks int                              `json:"unconfigured_networks"`
	HealthyNetworks      int                              `json:"healthy_networks"`
	UnhealthyNetworks    int                              `json:"unhealthy_networks"`
	AverageHealthScore   float64                          `json:"average_health_score"`
	Networks             map[chains.Network]NetworkHealth `json:"networks"`
	Recommendations      []string                         `json:"recommendations"`
	GeneratedAt          time.Time                        `json:"generated_at"`
}

// NetworkHealth is one network's entry in the report
type NetworkHealth struct {
	Configured   bool              `json:"configured"`
	Healthy      bool              `json:"healthy"`
	HealthScore  float64           `json:"health_score"`
	HealthStatus string            `json:"health_status"`
	CircuitState health.State      `json:"circuit_state,omitempty"`
	Issues       []string          `json:"issues"`
	Warnings     []string          `json:"warnings"`
	Explorers    []health.Snapshot `json:"explorers,omitempty"`
}

// GetSystemHealthReport summarizes every supported network. The average covers configured networks only.
func (r *Registry) GetSystemHealthReport(ctx context.Context) HealthReport {
	networks := r.GetSupportedNetworks()
	report := HealthReport{
		TotalNetworks:   len(networks),
		Networks:        make(map[chains.Network]NetworkHealth, len(networks)),
		Recommendations: []string{},
		GeneratedAt:     r.nowFunc().UTC(),
	}

	var scoreSum float64
	for _, n := range networks {
		v := r.ValidateConfiguration(ctx, n)
		entry := NetworkHealth{
			Configured:   v.Valid,
			HealthStatus: v.HealthStatus,
			Issues:       v.Issues,
			Warnings:     v.Warnings,
		}

		if !v.Valid {
			report.UnconfiguredNetworks++
			report.Networks[n] = entry
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Configure %s explorer: %s", n, v.Issues[0]))
			continue
		}

		report.ConfiguredNetworks++
		entry.HealthScore = v.HealthScore
		entry.CircuitState = r.NetworkState(ctx, n)
		entry.Healthy = v.HealthScore >= r.healthyThreshold && entry.CircuitState != health.StateOpen
		if clients, err := r.Clients(n); err == nil {
			for _, c := range clients {
				entry.Explorers = append(entry.Explorers, r.tracker.Snapshot(ctx, n, c.Name()))
			}
		}
		scoreSum += v.HealthScore

		if entry.Healthy {
			report.HealthyNetworks++
		} else {
			report.UnhealthyNetworks++
		}
		if v.HealthScore < r.healthyThreshold {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Consider checking %s explorer - health score %.3f", n, v.HealthScore))
		}
		report.Networks[n] = entry
	}

	if report.ConfiguredNetworks > 0 {
		report.AverageHealthScore = round3(scoreSum / float64(report.ConfiguredNetworks))
		if report.AverageHealthScore < r.healthyThreshold {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("System health is degraded (average score %.3f) - review explorer connectivity", report.AverageHealthScore))
		}
	}
	if report.TotalNetworks > 0 && report.ConfiguredNetworks*2 < report.TotalNetworks {
		report.Recommendations = append(report.Recommendations,
			"Fewer than half of the networks are configured - add explorer API keys to improve coverage")
	}

	return report
}
