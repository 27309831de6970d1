package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Network is a logical payment network name accepted by the widget.
type Network string

const (
	NetworkMainnet  Network = "mainnet"
	NetworkArbitrum Network = "arbitrum"
	NetworkBase     Network = "base"
	NetworkOptimism Network = "optimism"
	NetworkPolygon  Network = "polygon"
	NetworkSepolia  Network = "sepolia"
)

func (n Network) String() string {
	return string(n)
}

func (n Network) IsTestnet() bool {
	return n == NetworkSepolia
}

// ChainDescriptor is the resolved form of a Network: everything the signer
// layer needs to target the right chain.
type ChainDescriptor struct {
	Network    Network
	Name       string
	ChainID    *big.Int
	DefaultRPC string

	// RPCOverride, when set, takes precedence over DefaultRPC.
	RPCOverride string
}

// RPC returns the endpoint the read-only chain client should dial.
func (c ChainDescriptor) RPC() string {
	if c.RPCOverride != "" {
		return c.RPCOverride
	}
	return c.DefaultRPC
}

// ResolveNetwork maps a logical network name to its chain descriptor.
// Matching is case-insensitive; "matic" is accepted as a legacy alias for
// polygon because the currencies API still uses it. Pure lookup, no I/O.
func ResolveNetwork(name string) (ChainDescriptor, error) {
	switch strings.ToLower(name) {
	case "mainnet":
		return ChainDescriptor{
			Network:    NetworkMainnet,
			Name:       "Ethereum",
			ChainID:    big.NewInt(1),
			DefaultRPC: "https://eth.merkle.io",
		}, nil
	case "arbitrum":
		return ChainDescriptor{
			Network:    NetworkArbitrum,
			Name:       "Arbitrum One",
			ChainID:    big.NewInt(42161),
			DefaultRPC: "https://arb1.arbitrum.io/rpc",
		}, nil
	case "base":
		return ChainDescriptor{
			Network:    NetworkBase,
			Name:       "Base",
			ChainID:    big.NewInt(8453),
			DefaultRPC: "https://mainnet.base.org",
		}, nil
	case "optimism":
		return ChainDescriptor{
			Network:    NetworkOptimism,
			Name:       "OP Mainnet",
			ChainID:    big.NewInt(10),
			DefaultRPC: "https://mainnet.optimism.io",
		}, nil
	case "polygon", "matic":
		return ChainDescriptor{
			Network:    NetworkPolygon,
			Name:       "Polygon",
			ChainID:    big.NewInt(137),
			DefaultRPC: "https://polygon-rpc.com",
		}, nil
	case "sepolia":
		return ChainDescriptor{
			Network:    NetworkSepolia,
			Name:       "Sepolia",
			ChainID:    big.NewInt(11155111),
			DefaultRPC: "https://rpc.sepolia.org",
		}, nil
	default:
		return ChainDescriptor{}, NewFlowError(ErrUnsupportedNetwork,
			fmt.Sprintf("unsupported network: %s", name))
	}
}
