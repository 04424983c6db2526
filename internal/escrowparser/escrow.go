// Package escrowparser implements the engine's escrow/transfer decoder
// (SPEC_FULL.md §4.6 / spec.md C6): recognize a plain ERC-20 transfer or
// transferFrom sent to one of the configured stablecoin contracts, and
// normalize it into a single EscrowTransfer.
//
// Grounded on original_source's watcher/escrow_tracker/escrow.rs
// (parse_escrow, Erc20Method, EscrowTransfer, the "_to"/"to" and
// "_value"/"value"/"_amount"/"amount" parameter fallback chains) and
// watcher/escrow_tracker/mod.rs (StableCoinAddresses, the hardcoded
// per-chain registry of stablecoin contract addresses).
package escrowparser

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/txfetcher"
	"github.com/copytradeengine/engine/pkg/contractclient"
)

// StableCoin identifies a recognized stablecoin, independent of which
// chain it is deployed on. Matches original_source's StableCoin enum in
// eth-sdk/src/stablecoins.rs.
type StableCoin int

const (
	StableCoinUnknown StableCoin = iota
	StableCoinUSDC
	StableCoinUSDT
	StableCoinBUSD
)

func (s StableCoin) String() string {
	switch s {
	case StableCoinUSDC:
		return "USDC"
	case StableCoinUSDT:
		return "USDT"
	case StableCoinBUSD:
		return "BUSD"
	default:
		return "unknown"
	}
}

// coinAddress pairs a stablecoin with its contract address on one chain.
type coinAddress struct {
	coin    StableCoin
	address common.Address
}

// Registry maps (chain, address) to a recognized stablecoin, matching
// original_source's StableCoinAddresses.
type Registry struct {
	byChain map[chain.Chain][]coinAddress
}

// NewDefaultRegistry returns the hardcoded mainnet/testnet stablecoin
// address table, ported verbatim from
// watcher/escrow_tracker/mod.rs::StableCoinAddresses::default.
func NewDefaultRegistry() *Registry {
	r := &Registry{byChain: make(map[chain.Chain][]coinAddress)}

	r.byChain[chain.EthereumMainnet] = []coinAddress{
		{StableCoinUSDC, common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")},
		{StableCoinUSDT, common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7")},
		{StableCoinBUSD, common.HexToAddress("0x4Fabb145d64652a948d72533023f6E7A623C7C53")},
	}
	r.byChain[chain.BscMainnet] = []coinAddress{
		{StableCoinUSDC, common.HexToAddress("0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d")},
		{StableCoinUSDT, common.HexToAddress("0x55d398326f99059ff775485246999027b3197955")},
		{StableCoinBUSD, common.HexToAddress("0xe9e7cea3dedca5984780bafc599bd69add087d56")},
	}
	r.byChain[chain.EthereumGoerli] = []coinAddress{
		{StableCoinUSDC, common.HexToAddress("0x07865c6E87B9F70255377e024ace6630C1Eaa37F")},
	}
	r.byChain[chain.BscTestnet] = []coinAddress{
		{StableCoinBUSD, common.HexToAddress("0xaB1a4d4f1D656d2450692D237fdD6C7f9146e814")},
	}
	return r
}

// NewRegistryFromAddresses builds a registry from explicit (chain, coin,
// address) tuples, rejecting duplicate coins or addresses within a chain.
// Mirrors StableCoinAddresses::new_from_addresses, generalized from its
// parallel-slice-plus-length-check shape into a flat tuple list.
func NewRegistryFromAddresses(entries []struct {
	Chain   chain.Chain
	Coin    StableCoin
	Address common.Address
}) (*Registry, error) {
	r := &Registry{byChain: make(map[chain.Chain][]coinAddress)}
	seenCoin := make(map[chain.Chain]map[StableCoin]bool)
	seenAddr := make(map[chain.Chain]map[common.Address]bool)

	for _, e := range entries {
		if seenCoin[e.Chain] == nil {
			seenCoin[e.Chain] = make(map[StableCoin]bool)
			seenAddr[e.Chain] = make(map[common.Address]bool)
		}
		if seenCoin[e.Chain][e.Coin] {
			return nil, fmt.Errorf("escrowparser: duplicate coin %s for chain %s", e.Coin, e.Chain)
		}
		if seenAddr[e.Chain][e.Address] {
			return nil, fmt.Errorf("escrowparser: duplicate address %s for chain %s", e.Address, e.Chain)
		}
		seenCoin[e.Chain][e.Coin] = true
		seenAddr[e.Chain][e.Address] = true
		r.byChain[e.Chain] = append(r.byChain[e.Chain], coinAddress{coin: e.Coin, address: e.Address})
	}
	return r, nil
}

// Lookup resolves a contract address to a recognized stablecoin on chain.
func (r *Registry) Lookup(c chain.Chain, address common.Address) (StableCoin, bool) {
	for _, ca := range r.byChain[c] {
		if ca.address == address {
			return ca.coin, true
		}
	}
	return StableCoinUnknown, false
}

// ByChainAndCoin resolves a stablecoin to its contract address on chain.
func (r *Registry) ByChainAndCoin(c chain.Chain, coin StableCoin) (common.Address, bool) {
	for _, ca := range r.byChain[c] {
		if ca.coin == coin {
			return ca.address, true
		}
	}
	return common.Address{}, false
}

// Transfer is a normalized escrow deposit/withdrawal: a plain ERC-20
// movement of a recognized stablecoin. Matches original_source's
// EscrowTransfer.
type Transfer struct {
	Token     StableCoin
	Amount    *big.Int
	Recipient common.Address
	Owner     common.Address
}

// erc20Method is the subset of ERC-20 calls that constitute an escrow
// movement. Mirrors original_source's Erc20Method enum.
type erc20Method int

const (
	methodUnknown erc20Method = iota
	methodTransfer
	methodTransferFrom
)

func methodByName(name string) erc20Method {
	switch name {
	case "transfer":
		return methodTransfer
	case "transferFrom":
		return methodTransferFrom
	default:
		return methodUnknown
	}
}

// ParseTransfer recognizes tx as a plain ERC-20 transfer/transferFrom
// directed at one of registry's stablecoin contracts on c, and decodes it
// into a Transfer. Ported from parse_escrow: the called contract address
// is looked up in the registry first (an escrow must target a known
// stablecoin), then the calldata is decoded against erc20ABI and the
// method is required to be transfer or transferFrom.
func ParseTransfer(c chain.Chain, tx *txfetcher.ReadyTransaction, registry *Registry, erc20ABI abi.ABI) (*Transfer, error) {
	to := tx.To()
	if to == nil {
		return nil, fmt.Errorf("escrowparser: transaction has no recipient contract")
	}

	token, ok := registry.Lookup(c, *to)
	if !ok {
		return nil, fmt.Errorf("escrowparser: %s is not a recognized stablecoin on %s", to, c)
	}

	sender, err := tx.From()
	if err != nil {
		return nil, fmt.Errorf("escrowparser: recover sender: %w", err)
	}

	call, err := contractclient.FromInputs(erc20ABI, tx.InputData())
	if err != nil {
		return nil, fmt.Errorf("escrowparser: decode calldata: %w", err)
	}

	switch methodByName(call.Name()) {
	case methodTransfer:
		recipient, err := paramAddress(call, "_to", "to")
		if err != nil {
			return nil, fmt.Errorf("escrowparser: no recipient address: %w", err)
		}
		amount, err := paramAmount(call)
		if err != nil {
			return nil, err
		}
		return &Transfer{Token: token, Amount: amount, Recipient: recipient, Owner: sender}, nil

	case methodTransferFrom:
		owner, err := paramAddress(call, "_from", "from")
		if err != nil {
			return nil, fmt.Errorf("escrowparser: no owner address: %w", err)
		}
		recipient, err := paramAddress(call, "_to", "to")
		if err != nil {
			return nil, fmt.Errorf("escrowparser: no recipient address: %w", err)
		}
		amount, err := paramAmount(call)
		if err != nil {
			return nil, err
		}
		return &Transfer{Token: token, Amount: amount, Recipient: recipient, Owner: owner}, nil

	default:
		return nil, fmt.Errorf("escrowparser: %q is not an escrow-eligible call", call.Name())
	}
}

func paramAddress(call *contractclient.Call, names ...string) (common.Address, error) {
	v, err := call.ParamAny(names...)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("escrowparser: parameter is not an address (got %T)", v)
	}
	return a, nil
}

func paramAmount(call *contractclient.Call) (*big.Int, error) {
	v, err := call.ParamAny("_value", "value", "_amount", "amount")
	if err != nil {
		return nil, fmt.Errorf("escrowparser: no amount: %w", err)
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("escrowparser: amount parameter is not a uint256 (got %T)", v)
	}
	return n, nil
}
