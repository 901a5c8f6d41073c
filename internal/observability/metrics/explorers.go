package metrics

import "time"

// ExplorerRequest records one explorer call and its latency.
// Outcome is one of success, not_found, failure, rate_limited or short_circuited.
func ExplorerRequest(network, explorer, outcome string, duration time.Duration) {
	if !enabled {
		return
	}
	explorerRequestsTotal.WithLabelValues(network, explorer, outcome).Inc()
	if duration > 0 {
		explorerDuration.WithLabelValues(network, explorer).Observe(duration.Seconds())
	}
}

// ExplorerRetry records a retried attempt for a network.
func ExplorerRetry(network string) {
	if !enabled {
		return
	}
	explorerRetriesTotal.WithLabelValues(network).Inc()
}

// CircuitTransition records a circuit state change and updates the state gauge.
func CircuitTransition(network, explorer, from, to string) {
	if !enabled {
		return
	}
	circuitTransitions.WithLabelValues(network, explorer, from, to).Inc()
	circuitState.WithLabelValues(network, explorer).Set(stateValue(to))
}

// HealthScore sets the current score gauge for an explorer.
func HealthScore(network, explorer string, score float64) {
	if !enabled {
		return
	}
	healthScore.WithLabelValues(network, explorer).Set(score)
}

// Detection records a chain detection run. Result is found, not_found or error.
func Detection(result string, duration time.Duration) {
	if !enabled {
		return
	}
	detectionTotal.WithLabelValues(result).Inc()
	detectionDuration.Observe(duration.Seconds())
}

// MultiChain records a multi-chain operation. Status is complete, partial or failed.
func MultiChain(operation, status string) {
	if !enabled {
		return
	}
	multiChainTotal.WithLabelValues(operation, status).Inc()
}

// MultiChainNetwork records one network's result inside a multi-chain operation.
func MultiChainNetwork(network, status string) {
	if !enabled {
		return
	}
	multiChainNetworkRes.WithLabelValues(network, status).Inc()
}

func stateValue(state string) float64 {
	switch state {
	case "HALF_OPEN":
		return 1
	case "OPEN":
		return 2
	default:
		return 0
	}
}
