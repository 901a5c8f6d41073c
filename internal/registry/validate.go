package registry

import (
	"context"
	"math"
	"slices"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/validation"
)

// Validation is the result of ValidateConfiguration
type Validation struct {
	Network            chains.Network   `json:"network"`
	Valid              bool             `json:"valid"`
	Issues             []string         `json:"issues"`
	Warnings           []string         `json:"warnings"`
	CanCreateExplorer  bool             `json:"can_create_explorer"`
	HealthScore        float64          `json:"health_score"`
	HealthStatus       string           `json:"health_status"`
	FallbacksAvailable int              `json:"fallbacks_available"`
	Metadata           *chains.Metadata `json:"metadata,omitempty"`
}

// ValidateConfiguration checks the network's primary provider and its fallbacks.
// It has no side effects and returns the same issues for the same configuration.
func (r *Registry) ValidateConfiguration(ctx context.Context, network chains.Network) Validation {
	v := Validation{
		Network:  network,
		Issues:   []string{},
		Warnings: []string{},
	}
	if md, ok := chains.Lookup(network); ok {
		v.Metadata = &md
	}

	nc, ok := r.networkConfig(network)
	if !ok {
		v.Issues = append(v.Issues, IssueUnsupportedNetwork)
		v.HealthStatus = HealthLabel(0)
		return v
	}

	explorers := nc.Sorted()
	if len(explorers) == 0 {
		v.Issues = append(v.Issues, IssueMissingAPIURL)
		v.HealthStatus = HealthLabel(0)
		return v
	}

	primary := explorers[0]
	v.Issues = append(v.Issues, explorerIssues(primary)...)
	v.Warnings = append(v.Warnings, explorerWarnings(primary)...)

	for _, fb := range explorers[1:] {
		issues := explorerIssues(fb)
		for _, issue := range issues {
			v.Warnings = append(v.Warnings, fb.Name+": "+issue)
		}
		if len(issues) == 0 {
			v.FallbacksAvailable++
		}
	}

	v.Valid = len(v.Issues) == 0
	v.CanCreateExplorer = v.Valid
	v.HealthScore = round3(r.HealthScore(ctx, network))
	v.HealthStatus = HealthLabel(v.HealthScore)
	return v
}

// explorerIssues lists the problems that prevent a provider from being used
func explorerIssues(ec config.ExplorerConfig) []string {
	var issues []string
	if ec.Kind != "" && !slices.Contains(explorer.Kinds(), explorer.Kind(ec.Kind)) {
		issues = append(issues, IssueUnknownKind)
	}
	if ec.APIKey == "" && keyRequired(ec) {
		issues = append(issues, IssueMissingCredential)
	}
	if ec.APIURL == "" {
		issues = append(issues, IssueMissingAPIURL)
	} else if err := validation.ValidateAPIURL(ec.APIURL); err != nil {
		issues = append(issues, IssueInvalidAPIURL)
	}
	return issues
}

func explorerWarnings(ec config.ExplorerConfig) []string {
	var warnings []string
	switch {
	case ec.RateLimit == 0:
		warnings = append(warnings, WarnRateLimitNotConfigured)
	case ec.RateLimit < 1 || ec.RateLimit > 50:
		warnings = append(warnings, WarnRateLimitOutOfRange)
	}
	if ec.Timeout == 0 {
		warnings = append(warnings, WarnTimeoutNotConfigured)
	}
	return warnings
}

func keyRequired(ec config.ExplorerConfig) bool {
	return explorer.Kind(ec.Kind) != explorer.KindBlockscout
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
