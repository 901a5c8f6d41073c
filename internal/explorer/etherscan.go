package explorer

import (
	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
)

// NewEtherscan creates a client for an Etherscan-family provider
// (Etherscan, BscScan, PolygonScan, Arbiscan, Snowtrace, FtmScan). An API key is required.
func NewEtherscan(network chains.Network, cfg config.ExplorerConfig, opts ...Option) (Client, error) {
	c := newAPIClient(KindEtherscan, network, cfg, opts)
	c.keyRequired = true
	c.pingModule = "proxy"
	c.pingAction = "eth_blockNumber"
	return c, nil
}

// NewBlockscout creates a client for a Blockscout instance. The API key is optional.
func NewBlockscout(network chains.Network, cfg config.ExplorerConfig, opts ...Option) (Client, error) {
	c := newAPIClient(KindBlockscout, network, cfg, opts)
	c.pingModule = "block"
	c.pingAction = "eth_block_number"
	return c, nil
}
