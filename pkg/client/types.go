package client

import (
	"encoding/json"
	"time"
)

// NetworkStatus is the configuration and health of one network
type NetworkStatus struct {
	Network           string             `json:"network"`
	DisplayName       string             `json:"display_name"`
	ChainID           int                `json:"chain_id"`
	Configured        bool               `json:"configured"`
	CurrentExplorer   string             `json:"current_explorer,omitempty"`
	HealthScore       float64            `json:"health_score"`
	HealthStatus      string             `json:"health_status"`
	CircuitState      string             `json:"circuit_state"`
	SuccessRate       float64            `json:"success_rate"`
	AvgResponseTimeMs float64            `json:"avg_response_time_ms"`
	TotalRequests     int64              `json:"total_requests"`
	RateLimitTokens   float64            `json:"rate_limit_tokens"`
	Explorers         []ExplorerSnapshot `json:"explorers"`
	Issues            []string           `json:"issues,omitempty"`
	RecommendedAction string             `json:"recommended_action"`
}

// ExplorerSnapshot is the health of one explorer provider
type ExplorerSnapshot struct {
	Explorer            string     `json:"explorer"`
	Successes           int64      `json:"successes"`
	Failures            int64      `json:"failures"`
	TotalRequests       int64      `json:"total_requests"`
	RecentFailures      int        `json:"recent_failures_in_window"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	AvgResponseTimeMs   float64    `json:"avg_response_time_ms"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	HealthScore         float64    `json:"health_score"`
	State               string     `json:"circuit_state"`
}

// Validation is the configuration check for one network
type Validation struct {
	Network            string   `json:"network"`
	Valid              bool     `json:"valid"`
	Issues             []string `json:"issues"`
	Warnings           []string `json:"warnings"`
	CanCreateExplorer  bool     `json:"can_create_explorer"`
	HealthScore        float64  `json:"health_score"`
	HealthStatus       string   `json:"health_status"`
	FallbacksAvailable int      `json:"fallbacks_available"`
}

// Explorer is the explorer currently selected for a network
type Explorer struct {
	Network      string `json:"network"`
	ExplorerName string `json:"explorer_name"`
	Kind         string `json:"kind"`
	BaseURL      string `json:"base_url"`
	Priority     int    `json:"priority"`
	RateLimit    int    `json:"rate_limit"`
	CircuitState string `json:"circuit_state"`
}

// Connectivity is the outcome of one connectivity probe
type Connectivity struct {
	Network        string    `json:"network"`
	Success        bool      `json:"success"`
	ExplorerName   string    `json:"explorer_name,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
	TestedAt       time.Time `json:"tested_at"`
}

// TestAllResponse is the outcome of probing every configured network
type TestAllResponse struct {
	Results map[string]Connectivity `json:"results"`
	Total   int                     `json:"total"`
	Passed  int                     `json:"passed"`
}

// RepairResult is the outcome of a network repair
type RepairResult struct {
	Network       string       `json:"network"`
	PreviousScore float64      `json:"previous_score"`
	NewScore      float64      `json:"new_score"`
	Repaired      bool         `json:"repaired"`
	Connectivity  Connectivity `json:"connectivity"`
}

// HealthReport summarizes every supported network
type HealthReport struct {
	TotalNetworks        int                      `json:"total_networks"`
	ConfiguredNetworks   int                      `json:"configured_networks"`
	UnconfiguredNetworks int                      `json:"unconfigured_networks"`
	HealthyNetworks      int                      `json:"healthy_networks"`
	UnhealthyNetworks    int                      `json:"unhealthy_networks"`
	AverageHealthScore   float64                  `json:"average_health_score"`
	Networks             map[string]NetworkHealth `json:"networks"`
	Recommendations      []string                 `json:"recommendations"`
	GeneratedAt          time.Time                `json:"generated_at"`
}

// NetworkHealth is one network's entry in a HealthReport
type NetworkHealth struct {
	Configured   bool     `json:"configured"`
	Healthy      bool     `json:"healthy"`
	HealthScore  float64  `json:"health_score"`
	HealthStatus string   `json:"health_status"`
	CircuitState string   `json:"circuit_state,omitempty"`
	Issues       []string `json:"issues"`
	Warnings     []string `json:"warnings"`
}

// Detection reports on which networks an address exists and is verified
type Detection struct {
	Address              string                      `json:"address"`
	FoundOn              []string                    `json:"found_on"`
	TotalNetworksChecked int                         `json:"total_networks_checked"`
	SuccessfulChecks     int                         `json:"successful_checks"`
	FailedChecks         int                         `json:"failed_checks"`
	DetectionResults     map[string]NetworkDetection `json:"detection_results"`
	Errors               map[string]string           `json:"errors"`
	CheckedAt            time.Time                   `json:"checked_at"`
	Cached               bool                        `json:"cached"`
}

// NetworkDetection is one network's answer inside a Detection
type NetworkDetection struct {
	Exists         bool   `json:"exists"`
	Verified       bool   `json:"verified"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	ExplorerName   string `json:"explorer_name"`
	ChainID        int    `json:"chain_id"`
	ContractURL    string `json:"contract_url,omitempty"`
	ContractName   string `json:"contract_name,omitempty"`
}

// SourceResult is verified source and where it came from
type SourceResult struct {
	NetworkUsed      string         `json:"network_used"`
	ExplorerUsed     string         `json:"explorer_used"`
	AttemptsMade     int            `json:"attempts_made"`
	SwitchedExplorer bool           `json:"switched_explorer"`
	ResponseTimeMs   int64          `json:"response_time_ms"`
	NetworksTried    []string       `json:"networks_tried"`
	Result           ContractSource `json:"result"`
}

// ContractSource is verified contract source as returned by an explorer
type ContractSource struct {
	Network          string            `json:"network"`
	Explorer         string            `json:"explorer"`
	Address          string            `json:"contract_address"`
	ContractName     string            `json:"contract_name"`
	CompilerVersion  string            `json:"compiler_version"`
	OptimizationUsed bool              `json:"optimization_used"`
	OptimizationRuns int               `json:"optimization_runs"`
	EVMVersion       string            `json:"evm_version"`
	LicenseType      string            `json:"license_type"`
	Proxy            bool              `json:"proxy"`
	Implementation   string            `json:"implementation,omitempty"`
	SourceCode       string            `json:"source_code"`
	Sources          map[string]string `json:"parsed_sources"`
	ABI              json.RawMessage   `json:"abi,omitempty"`
	IsVerified       bool              `json:"is_verified"`
}

// VerificationStatus summarizes where a contract is verified
type VerificationStatus struct {
	Address                string            `json:"address"`
	IsVerified             bool              `json:"is_verified"`
	VerifiedNetworks       []string          `json:"verified_networks"`
	AvailableOn            []string          `json:"available_on"`
	FastestVerifiedNetwork string            `json:"fastest_verified_network,omitempty"`
	RecommendedNetwork     string            `json:"recommended_network,omitempty"`
	Recommendation         string            `json:"recommendation"`
	Details                []VerifiedNetwork `json:"verification_details"`
}

// VerifiedNetwork describes one network with verified source
type VerifiedNetwork struct {
	Network        string  `json:"network"`
	ExplorerName   string  `json:"explorer_name"`
	ResponseTimeMs int64   `json:"response_time_ms"`
	HealthScore    float64 `json:"health_score"`
	ContractURL    string  `json:"contract_url,omitempty"`
}

// PrimaryChain is the most likely home network of a contract
type PrimaryChain struct {
	Address  string `json:"address"`
	Network  string `json:"network"`
	Verified bool   `json:"verified"`
	Metadata struct {
		DisplayName string `json:"name"`
		ChainID     int    `json:"chainId"`
		Currency    string `json:"currency"`
	} `json:"metadata"`
}

// MultiChainRequest is the request for a multi-chain operation
type MultiChainRequest struct {
	Operation string   `json:"operation"`
	Address   string   `json:"address,omitempty"`
	Networks  []string `json:"networks,omitempty"`
	FailFast  bool     `json:"fail_fast,omitempty"`
}

// MultiChainReport is the aggregated outcome of a multi-chain operation
type MultiChainReport struct {
	ID          string                      `json:"id"`
	Operation   string                      `json:"operation"`
	Successful  map[string]OperationResult  `json:"successful"`
	Failed      map[string]OperationFailure `json:"failed"`
	Summary     MultiChainSummary           `json:"summary"`
	Cancelled   bool                        `json:"cancelled"`
	StartedAt   time.Time                   `json:"started_at"`
	CompletedAt time.Time                   `json:"completed_at"`
}

// OperationResult is one network's successful outcome
type OperationResult struct {
	Network          string          `json:"network"`
	ExplorerName     string          `json:"explorer_name"`
	NotFound         bool            `json:"not_found"`
	ResponseTimeMs   int64           `json:"response_time_ms"`
	Attempts         int             `json:"attempts"`
	SwitchedExplorer bool            `json:"switched_explorer"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// OperationFailure is one network's failed outcome
type OperationFailure struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Attempts int    `json:"attempts"`
}

// MultiChainSummary holds the counts of a MultiChainReport
type MultiChainSummary struct {
	TotalNetworks      int     `json:"total_networks"`
	SuccessfulNetworks int     `json:"successful_networks"`
	FailedNetworks     int     `json:"failed_networks"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTimeMs        int64   `json:"total_time_ms"`
	Status             string  `json:"status"`
}

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
