// Package explorer provides clients for block explorer APIs. Each client is bound
// to exactly one configured provider and normalizes its responses.
package explorer

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
)

// Kind selects the adapter variant for a provider
type Kind string

// Supported adapter kinds
const (
	KindEtherscan  Kind = "etherscan"
	KindBlockscout Kind = "blockscout"
)

// Client talks to one explorer provider. Implementations are safe for concurrent use.
type Client interface {
	Name() string
	Kind() Kind
	Network() chains.Network
	BaseURL() string
	RateLimit() int
	Priority() int
	IsConfigured() bool

	FetchContractSource(ctx context.Context, address string) (*ContractSource, error)
	IsContractVerified(ctx context.Context, address string) (bool, error)
	FetchABI(ctx context.Context, address string) (json.RawMessage, error)
	FetchContractCreation(ctx context.Context, address string) (*ContractCreation, error)
	Ping(ctx context.Context) error
	ContractURL(address string) string
}

// ContractSource is the normalized result of a source code lookup.
// IsVerified is false when the contract exists but has no verified source.
type ContractSource struct {
	Network              chains.Network    `json:"network"`
	Explorer             string            `json:"explorer"`
	Address              string            `json:"contract_address"`
	ContractName         string            `json:"contract_name"`
	CompilerVersion      string            `json:"compiler_version"`
	CompilerSemver       string            `json:"compiler_semver,omitempty"`
	OptimizationUsed     bool              `json:"optimization_used"`
	OptimizationRuns     int               `json:"optimization_runs"`
	ConstructorArguments string            `json:"constructor_arguments,omitempty"`
	EVMVersion           string            `json:"evm_version"`
	Library              string            `json:"library,omitempty"`
	LicenseType          string            `json:"license_type"`
	Proxy                bool              `json:"proxy"`
	Implementation       string            `json:"implementation,omitempty"`
	SwarmSource          string            `json:"swarm_source,omitempty"`
	SourceCode           string            `json:"source_code"`
	Sources              map[string]string `json:"parsed_sources"`
	ABI                  json.RawMessage   `json:"abi,omitempty"`
	IsVerified           bool              `json:"is_verified"`
	FetchedAt            time.Time         `json:"fetched_at"`
}

// ContractCreation identifies who deployed a contract and in which transaction
type ContractCreation struct {
	Network        chains.Network `json:"network"`
	Explorer       string         `json:"explorer"`
	Address        string         `json:"contract_address"`
	CreatorAddress string         `json:"creator_address"`
	CreationTxHash string         `json:"creation_tx_hash"`
	FetchedAt      time.Time      `json:"fetched_at"`
}

// Option configures a client
type Option func(*apiClient)

// WithHTTPClient sets a custom HTTP client. The configured timeout still applies.
func WithHTTPClient(c *http.Client) Option {
	return func(client *apiClient) {
		client.httpClient = c
	}
}

// WithNowFunc overrides the clock used for FetchedAt timestamps.
func WithNowFunc(fn func() time.Time) Option {
	return func(client *apiClient) {
		client.nowFunc = fn
	}
}

// Constructor builds a client for one provider
type Constructor func(network chains.Network, cfg config.ExplorerConfig, opts ...Option) (Client, error)

var constructors = map[Kind]Constructor{
	KindEtherscan:  NewEtherscan,
	KindBlockscout: NewBlockscout,
}

// New builds a client using the constructor registered for cfg.Kind
func New(network chains.Network, cfg config.ExplorerConfig, opts ...Option) (Client, error) {
	kind := Kind(cfg.Kind)
	if kind == "" {
		kind = KindEtherscan
	}
	ctor, ok := constructors[kind]
	if !ok {
		return nil, &ConfigurationError{Network: network, Explorer: cfg.Name, Reason: "unknown explorer kind " + string(kind)}
	}
	return ctor(network, cfg, opts...)
}

// Kinds returns the registered adapter kinds
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
