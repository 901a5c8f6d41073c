// Package domain contains the cross-chain contract detection and source lookup logic.
package domain

import (
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/explorer"
)

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

// Detection reports on which networks an address exists and is verified
type Detection struct {
	Address              string                              `json:"address"`
	FoundOn              []chains.Network                    `json:"found_on"`
	TotalNetworksChecked int                                 `json:"total_networks_checked"`
	SuccessfulChecks     int                                 `json:"successful_checks"`
	FailedChecks         int                                 `json:"failed_checks"`
	DetectionResults     map[chains.Network]NetworkDetection `json:"detection_results"`
	Errors               map[chains.Network]string           `json:"errors"`
	CheckedAt            time.Time                           `json:"checked_at"`
	Cached               bool                                `json:"cached"`
}

// VerifiedOn returns the networks where the contract has verified source, in rank order
func (d *Detection) VerifiedOn() []chains.Network {
	var out []chains.Network
	for _, n := range d.FoundOn {
		if d.DetectionResults[n].Verified {
			out = append(out, n)
		}
	}
	return out
}

// SourceResult is the outcome of GetContractSource
type SourceResult struct {
	NetworkUsed      chains.Network           `json:"network_used"`
	ExplorerUsed     string                   `json:"explorer_used"`
	AttemptsMade     int                      `json:"attempts_made"`
	SwitchedExplorer bool                     `json:"switched_explorer"`
	ResponseTimeMs   int64                    `json:"response_time_ms"`
	NetworksTried    []chains.Network         `json:"networks_tried"`
	Result           *explorer.ContractSource `json:"result"`
}

// VerifiedNetwork describes one network with verified source
type VerifiedNetwork struct {
	Network        chains.Network `json:"network"`
	ExplorerName   string         `json:"explorer_name"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	HealthScore    float64        `json:"health_score"`
	ContractURL    string         `json:"contract_url,omitempty"`
}

// VerificationStatus summarizes where a contract is verified
type VerificationStatus struct {
	Address                string            `json:"address"`
	IsVerified             bool              `json:"is_verified"`
	VerifiedNetworks       []chains.Network  `json:"verified_networks"`
	AvailableOn            []chains.Network  `json:"available_on"`
	FastestVerifiedNetwork chains.Network    `json:"fastest_verified_network,omitempty"`
	RecommendedNetwork     chains.Network    `json:"recommended_network,omitempty"`
	Recommendation         string            `json:"recommendation"`
	Details                []VerifiedNetwork `json:"verification_details"`
}

// PrimaryChain is the most likely home network of a contract
type PrimaryChain struct {
	Address  string          `json:"address"`
	Network  chains.Network  `json:"network"`
	Verified bool            `json:"verified"`
	Metadata chains.Metadata `json:"metadata"`
}
