package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/pendergraft/chainscout/internal/chains"
)

// Default explorer settings applied when a file entry leaves them unset
const (
	DefaultExplorerKind = "etherscan"
	DefaultRateLimit    = 5
	DefaultTimeout      = 30
)

// ExplorersConfig maps network identifiers to their explorer providers
type ExplorersConfig struct {
	Networks map[string]NetworkConfig `toml:"networks"`
}

// NetworkConfig holds the ordered providers for one network
type NetworkConfig struct {
	Enabled   *bool            `toml:"enabled,omitempty"`
	Explorers []ExplorerConfig `toml:"explorers"`
}

// ExplorerConfig is the static configuration for one explorer provider
type ExplorerConfig struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"` // "etherscan" or "blockscout"
	APIURL    string `toml:"api_url"`
	APIKey    string `toml:"api_key,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   int    `toml:"timeout"`    // seconds
	Priority  int    `toml:"priority"`   // lower is preferred
	Enabled   *bool  `toml:"enabled,omitempty"`
}

// IsEnabled reports whether the network is enabled (default true)
func (n NetworkConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// IsEnabled reports whether the explorer is enabled (default true)
func (e ExplorerConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Sorted returns the enabled explorers ordered by priority, keeping file order for ties
func (n NetworkConfig) Sorted() []ExplorerConfig {
	out := make([]ExplorerConfig, 0, len(n.Explorers))
	for _, e := range n.Explorers {
		if e.IsEnabled() {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// LoadExplorers reads the explorer file at path, or builds the defaults when path is empty
func LoadExplorers(path string) (ExplorersConfig, error) {
	if path == "" {
		return DefaultExplorers(), nil
	}

	var cfg ExplorersConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return ExplorersConfig{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	if len(cfg.Networks) == 0 {
		return ExplorersConfig{}, fmt.Errorf("%s declares no networks", path)
	}

	normalized := make(map[string]NetworkConfig, len(cfg.Networks))
	for name, nc := range cfg.Networks {
		network, err := chains.Parse(name)
		if err != nil {
			return ExplorersConfig{}, fmt.Errorf("network %q: %w", name, err)
		}
		for i := range nc.Explorers {
			applyDefaults(&nc.Explorers[i])
		}
		normalized[network.String()] = nc
	}
	cfg.Networks = normalized

	return cfg, nil
}

// DefaultExplorers returns one provider per built-in network, configured from the environment
func DefaultExplorers() ExplorersConfig {
	cfg := ExplorersConfig{Networks: make(map[string]NetworkConfig)}
	for _, n := range chains.All() {
		p, ok := chains.DefaultProviderFor(n)
		if !ok {
			continue
		}
		e := ExplorerConfig{
			Name:      p.Name,
			Kind:      DefaultExplorerKind,
			APIURL:    getEnv(p.EnvKey+"_API_URL", p.APIURL),
			APIKeyEnv: p.EnvKey + "_API_KEY",
			RateLimit: getEnvInt(p.EnvKey+"_RATE_LIMIT", DefaultRateLimit),
			Timeout:   getEnvInt(p.EnvKey+"_TIMEOUT", DefaultTimeout),
			Priority:  1,
		}
		applyDefaults(&e)
		cfg.Networks[n.String()] = NetworkConfig{Explorers: []ExplorerConfig{e}}
	}
	return cfg
}

// applyDefaults fills unset fields; a literal api_key wins over api_key_env.
// Rate limit and timeout stay zero when unset in a file so validation can warn about them.
func applyDefaults(e *ExplorerConfig) {
	if e.Kind == "" {
		e.Kind = DefaultExplorerKind
	}
	if e.APIKey == "" && e.APIKeyEnv != "" {
		e.APIKey = os.Getenv(e.APIKeyEnv)
	}
}
