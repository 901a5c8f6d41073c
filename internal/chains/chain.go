// Package chains describes the EVM networks chainscout knows about: canonical
// identifiers, aliases, static metadata and the default explorer provider for each.
package chains

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownNetwork is returned when a network name cannot be resolved.
var ErrUnknownNetwork = errors.New("unknown network")

// Network is a canonical network identifier ("ethereum", "bsc", ...).
type Network string

// Supported networks
const (
	Ethereum  Network = "ethereum"
	BSC       Network = "bsc"
	Polygon   Network = "polygon"
	Arbitrum  Network = "arbitrum"
	Optimism  Network = "optimism"
	Avalanche Network = "avalanche"
	Fantom    Network = "fantom"
)

func (n Network) String() string {
	return string(n)
}

// Metadata holds static facts about a network
type Metadata struct {
	Network        Network `json:"network"`
	DisplayName    string  `json:"name"`
	ChainID        int     `json:"chainId"`
	Currency       string  `json:"currency"`
	BlockTime      float64 `json:"blockTimeSeconds"`
	FinalityBlocks int     `json:"finalityBlocks"`
	// Rank orders networks for dispatch and primary-chain detection (1 = first).
	Rank int `json:"rank"`
	// Weight is the relative importance used when scoring networks against each other.
	Weight float64 `json:"weight"`
}

// DefaultProvider describes the explorer that serves a network out of the box
type DefaultProvider struct {
	Name   string // "etherscan"
	APIURL string
	EnvKey string // prefix for <ENVKEY>_API_KEY / <ENVKEY>_API_URL
}

var metadata = map[Network]Metadata{
	Ethereum:  {Network: Ethereum, DisplayName: "Ethereum", ChainID: 1, Currency: "ETH", BlockTime: 12, FinalityBlocks: 12, Rank: 1, Weight: 1.0},
	BSC:       {Network: BSC, DisplayName: "BNB Smart Chain", ChainID: 56, Currency: "BNB", BlockTime: 3, FinalityBlocks: 15, Rank: 2, Weight: 0.9},
	Polygon:   {Network: Polygon, DisplayName: "Polygon", ChainID: 137, Currency: "MATIC", BlockTime: 2, FinalityBlocks: 128, Rank: 3, Weight: 0.8},
	Arbitrum:  {Network: Arbitrum, DisplayName: "Arbitrum One", ChainID: 42161, Currency: "ETH", BlockTime: 0.25, FinalityBlocks: 1, Rank: 4, Weight: 0.7},
	Optimism:  {Network: Optimism, DisplayName: "Optimism", ChainID: 10, Currency: "ETH", BlockTime: 2, FinalityBlocks: 1, Rank: 5, Weight: 0.7},
	Avalanche: {Network: Avalanche, DisplayName: "Avalanche C-Chain", ChainID: 43114, Currency: "AVAX", BlockTime: 2, FinalityBlocks: 1, Rank: 6, Weight: 0.6},
	Fantom:    {Network: Fantom, DisplayName: "Fantom Opera", ChainID: 250, Currency: "FTM", BlockTime: 1, FinalityBlocks: 1, Rank: 7, Weight: 0.5},
}

var defaultProviders = map[Network]DefaultProvider{
	Ethereum:  {Name: "etherscan", APIURL: "https://api.etherscan.io/api", EnvKey: "ETHERSCAN"},
	BSC:       {Name: "bscscan", APIURL: "https://api.bscscan.com/api", EnvKey: "BSCSCAN"},
	Polygon:   {Name: "polygonscan", APIURL: "https://api.polygonscan.com/api", EnvKey: "POLYGONSCAN"},
	Arbitrum:  {Name: "arbiscan", APIURL: "https://api.arbiscan.io/api", EnvKey: "ARBISCAN"},
	Optimism:  {Name: "optimistic_etherscan", APIURL: "https://api-optimistic.etherscan.io/api", EnvKey: "OPTIMISTIC_ETHERSCAN"},
	Avalanche: {Name: "snowtrace", APIURL: "https://api.snowtrace.io/api", EnvKey: "SNOWTRACE"},
	Fantom:    {Name: "ftmscan", APIURL: "https://api.ftmscan.com/api", EnvKey: "FTMSCAN"},
}

var aliases = map[string]Network{
	"eth":   Ethereum,
	"bnb":   BSC,
	"matic": Polygon,
	"arb":   Arbitrum,
	"op":    Optimism,
	"avax":  Avalanche,
	"ftm":   Fantom,
}

// Parse resolves a network name or alias to its canonical identifier.
func Parse(name string) (Network, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if _, ok := metadata[Network(key)]; ok {
		return Network(key), nil
	}
	if n, ok := aliases[key]; ok {
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
}

// Lookup returns the metadata for a network.
func Lookup(n Network) (Metadata, bool) {
	m, ok := metadata[n]
	return m, ok
}

// DefaultProviderFor returns the built-in explorer for a network.
func DefaultProviderFor(n Network) (DefaultProvider, bool) {
	p, ok := defaultProviders[n]
	return p, ok
}

// All returns every known network in rank order.
func All() []Network {
	out := make([]Network, 0, len(metadata))
	for n := range metadata {
		out = append(out, n)
	}
	SortByRank(out)
	return out
}

// SortByRank sorts networks in place by rank; unknown networks sort last by name.
func SortByRank(networks []Network) {
	sort.SliceStable(networks, func(i, j int) bool {
		ri, rj := rank(networks[i]), rank(networks[j])
		if ri != rj {
			return ri < rj
		}
		return networks[i] < networks[j]
	})
}

func rank(n Network) int {
	if m, ok := metadata[n]; ok {
		return m.Rank
	}
	return len(metadata) + 1
}
