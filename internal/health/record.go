package health

import (
	"math"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
)

// State is a circuit breaker state
type State string

// Circuit states
const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Score weights
const (
	successWeight = 0.5
	latencyWeight = 0.2
	penaltyWeight = 0.3
	// penaltyScale is the decayed failure mass at which the penalty reaches 1-1/e
	penaltyScale = 3.0
)

// record is the mutable per-provider aggregate. Guarded by its own mutex in the tracker.
type record struct {
	network  chains.Network
	explorer string

	successes   int64
	failures    int64
	total       int64
	consecutive int
	successRate float64 // EMA, starts at 1
	latencies   []time.Duration
	failureAt   []time.Time // failures still inside the window
	lastSuccess time.Time
	lastFailure time.Time

	state         State
	trialInFlight bool
	loaded        bool
}

func newRecord(network chains.Network, explorer string) *record {
	return &record{
		network:     network,
		explorer:    explorer,
		successRate: 1,
		state:       StateClosed,
	}
}

// pruneWindow drops failures older than the window
func (r *record) pruneWindow(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(r.failureAt) && !r.failureAt[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.failureAt = append(r.failureAt[:0], r.failureAt[i:]...)
	}
}

func (r *record) addLatency(d time.Duration, samples int) {
	if d <= 0 {
		return
	}
	r.latencies = append(r.latencies, d)
	if len(r.latencies) > samples {
		r.latencies = r.latencies[len(r.latencies)-samples:]
	}
}

func (r *record) avgLatency() time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range r.latencies {
		sum += l
	}
	return sum / time.Duration(len(r.latencies))
}

// score computes 0.5*S + 0.2*L + 0.3*(1-P), clamped to [0,1]
func (r *record) score(now time.Time, cfg Config) float64 {
	s := r.successRate

	l := 1.0
	if avg := r.avgLatency(); avg > 0 && cfg.LatencyTarget > 0 {
		l = math.Min(1, float64(cfg.LatencyTarget)/float64(avg))
	}

	var decayed float64
	cutoff := now.Add(-cfg.FailureWindow)
	for _, at := range r.failureAt {
		if !at.After(cutoff) {
			continue
		}
		age := now.Sub(at)
		if age < 0 {
			age = 0
		}
		decayed += math.Exp(-float64(age) / float64(cfg.PenaltyDecay))
	}
	p := 1 - math.Exp(-decayed/penaltyScale)

	return clamp(successWeight*s + latencyWeight*l + penaltyWeight*(1-p))
}

func (r *record) recentFailures(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, at := range r.failureAt {
		if at.After(cutoff) {
			n++
		}
	}
	return n
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Snapshot is a read-only copy of a provider's health record
type Snapshot struct {
	Network             chains.Network `json:"network"`
	Explorer            string         `json:"explorer"`
	Successes           int64          `json:"successes"`
	Failures            int64          `json:"failures"`
	TotalRequests       int64          `json:"total_requests"`
	RecentFailures      int            `json:"recent_failures_in_window"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	AvgResponseTimeMs   float64        `json:"avg_response_time_ms"`
	LastSuccessAt       *time.Time     `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time     `json:"last_failure_at,omitempty"`
	HealthScore         float64        `json:"health_score"`
	State               State          `json:"circuit_state"`
}

// SuccessRatio is successes over total requests, 1 when nothing was recorded
func (s Snapshot) SuccessRatio() float64 {
	if s.TotalRequests == 0 {
		return 1
	}
	return float64(s.Successes) / float64(s.TotalRequests)
}

func (r *record) snapshot(now time.Time, cfg Config) Snapshot {
	snap := Snapshot{
		Network:             r.network,
		Explorer:            r.explorer,
		Successes:           r.successes,
		Failures:            r.failures,
		TotalRequests:       r.total,
		RecentFailures:      r.recentFailures(now, cfg.FailureWindow),
		ConsecutiveFailures: r.consecutive,
		AvgResponseTimeMs:   math.Round(float64(r.avgLatency())/float64(time.Millisecond)*100) / 100,
		HealthScore:         r.score(now, cfg),
		State:               r.state,
	}
	if !r.lastSuccess.IsZero() {
		t := r.lastSuccess
		snap.LastSuccessAt = &t
	}
	if !r.lastFailure.IsZero() {
		t := r.lastFailure
		snap.LastFailureAt = &t
	}
	return snap
}

// persistedRecord is the cached form of a record
type persistedRecord struct {
	Successes   int64       `json:"successes"`
	Failures    int64       `json:"failures"`
	Total       int64       `json:"total"`
	Consecutive int         `json:"consecutive"`
	SuccessRate float64     `json:"success_rate"`
	LatenciesMs []int64     `json:"latencies_ms"`
	FailureAt   []time.Time `json:"failure_at"`
	LastSuccess time.Time   `json:"last_success"`
	LastFailure time.Time   `json:"last_failure"`
	State       State       `json:"state"`
}

func (r *record) persisted() persistedRecord {
	p := persistedRecord{
		Successes:   r.successes,
		Failures:    r.failures,
		Total:       r.total,
		Consecutive: r.consecutive,
		SuccessRate: r.successRate,
		FailureAt:   append([]time.Time(nil), r.failureAt...),
		LastSuccess: r.lastSuccess,
		LastFailure: r.lastFailure,
		State:       r.state,
	}
	for _, l := range r.latencies {
		p.LatenciesMs = append(p.LatenciesMs, l.Milliseconds())
	}
	return p
}

// restore loads a persisted record. A trial in flight does not survive a restart,
// so a persisted HALF_OPEN comes back as OPEN and re-enters probation on access.
func (r *record) restore(p persistedRecord) {
	r.successes = p.Successes
	r.failures = p.Failures
	r.total = p.Total
	r.consecutive = p.Consecutive
	r.successRate = p.SuccessRate
	r.failureAt = p.FailureAt
	r.lastSuccess = p.LastSuccess
	r.lastFailure = p.LastFailure
	r.latencies = r.latencies[:0]
	for _, ms := range p.LatenciesMs {
		r.latencies = append(r.latencies, time.Duration(ms)*time.Millisecond)
	}
	switch p.State {
	case StateOpen, StateHalfOpen:
		r.state = StateOpen
	default:
		r.state = StateClosed
	}
}
