// Package chain defines the set of EVM networks the engine is aware of.
package chain

import (
	"fmt"
	"math/big"
)

// Chain is a tagged enum of the networks the engine can watch and trade on.
// All cross-chain tables key on Chain.
type Chain int

const (
	Unknown Chain = iota
	EthereumMainnet
	EthereumGoerli
	BscMainnet
	BscTestnet
	LocalNet
)

func (c Chain) String() string {
	switch c {
	case EthereumMainnet:
		return "eth-mainnet"
	case EthereumGoerli:
		return "eth-goerli"
	case BscMainnet:
		return "bsc-mainnet"
	case BscTestnet:
		return "bsc-testnet"
	case LocalNet:
		return "local"
	default:
		return "unknown"
	}
}

// Parse resolves the YAML/config key for a chain back into the enum.
func Parse(s string) (Chain, error) {
	switch s {
	case "eth-mainnet":
		return EthereumMainnet, nil
	case "eth-goerli":
		return EthereumGoerli, nil
	case "bsc-mainnet":
		return BscMainnet, nil
	case "bsc-testnet":
		return BscTestnet, nil
	case "local":
		return LocalNet, nil
	default:
		return Unknown, fmt.Errorf("chain: unrecognized chain key %q", s)
	}
}

// IsMainnet reports whether confirmations should default to the mainnet
// floor (>=12) rather than the localnet floor (1), per SPEC_FULL.md §6.
func (c Chain) IsMainnet() bool {
	return c == EthereumMainnet || c == BscMainnet
}

// DefaultConfirmations returns the spec-mandated default confirmation depth
// for a chain absent explicit configuration.
func (c Chain) DefaultConfirmations() uint64 {
	if c.IsMainnet() {
		return 12
	}
	return 1
}

// ChainID returns the EIP-155 chain ID, needed to build a replay-protected
// signer for every outbound transaction C7 submits.
func (c Chain) ChainID() *big.Int {
	switch c {
	case EthereumMainnet:
		return big.NewInt(1)
	case EthereumGoerli:
		return big.NewInt(5)
	case BscMainnet:
		return big.NewInt(56)
	case BscTestnet:
		return big.NewInt(97)
	case LocalNet:
		return big.NewInt(1337)
	default:
		return big.NewInt(0)
	}
}
