package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/copytradeengine/engine/internal/copyerr"
	"github.com/copytradeengine/engine/internal/txfetcher"
)

const (
	fnCreatePool              = "createPool"
	fnGetPool                 = "getPool"
	fnGetPools                = "getPools"
	fnFactoryOwner            = "owner"
	fnFactoryTransferOwner    = "transferOwnership"
)

// StrategyPoolFactory wraps the deployed StrategyPoolFactory contract: the
// per-chain registry a strategy's pool is created from. Grounded on
// contract_wrappers/strategy_pool_factory.rs (the eth-sdk variant, whose
// createPool(index, name, symbol) signature matches spec.md §4.7 — the
// watcher-package variant with a trader/initial_deposit_value signature
// belongs to an older contract generation and is not implemented).
type StrategyPoolFactory struct {
	contract *BoundContract
	client   *ethclient.Client
}

func NewStrategyPoolFactory(client *ethclient.Client, address common.Address, contractABI abi.ABI) *StrategyPoolFactory {
	return &StrategyPoolFactory{contract: NewBoundContract(client, address, contractABI), client: client}
}

func (f *StrategyPoolFactory) Address() common.Address { return f.contract.Address() }

// GetPools returns every pool address the factory has created so far; its
// length is also the next createPool index (spec.md §4.7: "index =
// len(get_pools())").
func (f *StrategyPoolFactory) GetPools(ctx context.Context) ([]common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(ctx, &out, fnGetPools); err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "call getPools", err)
	}
	if len(out) != 1 {
		return nil, copyerr.New(copyerr.CodeDecode, "getPools: unexpected output count")
	}
	pools, ok := out[0].([]common.Address)
	if !ok {
		return nil, copyerr.New(copyerr.CodeDecode, "getPools: output is not an address array")
	}
	return pools, nil
}

func (f *StrategyPoolFactory) GetPool(ctx context.Context, index *big.Int) (common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(ctx, &out, fnGetPool, index); err != nil {
		return common.Address{}, copyerr.Wrap(copyerr.CodeTransientRPC, "call getPool", err)
	}
	if len(out) != 1 {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, "getPool: unexpected output count")
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, "getPool: output is not an address")
	}
	return addr, nil
}

func (f *StrategyPoolFactory) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(ctx, &out, fnFactoryOwner); err != nil {
		return common.Address{}, copyerr.Wrap(copyerr.CodeTransientRPC, "call owner", err)
	}
	if len(out) != 1 {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, "owner: unexpected output count")
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, "owner: output is not an address")
	}
	return addr, nil
}

func (f *StrategyPoolFactory) transact(ctx context.Context, auth *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	if auth.GasPrice == nil {
		price, err := gasPrice(ctx, f.client)
		if err != nil {
			return nil, err
		}
		auth.GasPrice = price
	}
	tx, err := f.contract.Transact(ctx, auth, method, args...)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "transact "+method, err)
	}
	return tx, nil
}

// CreatePool submits createPool(index, name, symbol), with index computed
// as len(getPools()) per spec.md §4.7.
func (f *StrategyPoolFactory) CreatePool(ctx context.Context, auth *bind.TransactOpts, name, symbol string) (*types.Transaction, error) {
	pools, err := f.GetPools(ctx)
	if err != nil {
		return nil, err
	}
	index := big.NewInt(int64(len(pools)))
	return f.transact(ctx, auth, fnCreatePool, index, name, symbol)
}

func (f *StrategyPoolFactory) TransferOwnership(ctx context.Context, auth *bind.TransactOpts, newOwner common.Address) (*types.Transaction, error) {
	return f.transact(ctx, auth, fnFactoryTransferOwner, newOwner)
}

// CreatePoolAndEnsureSuccess submits createPool and, once confirmed, reads
// back the pool's address via getPool at the index it was created at.
func (f *StrategyPoolFactory) CreatePoolAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	name, symbol string,
) (common.Address, *txfetcher.ReadyTransaction, error) {
	pools, err := f.GetPools(ctx)
	if err != nil {
		return common.Address{}, nil, err
	}
	index := big.NewInt(int64(len(pools)))

	ready, err := EnsureSuccess(ctx, f.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return f.transact(ctx, auth, fnCreatePool, index, name, symbol)
	})
	if err != nil {
		return common.Address{}, nil, err
	}

	poolAddress, err := f.GetPool(ctx, index)
	if err != nil {
		return common.Address{}, ready, err
	}
	return poolAddress, ready, nil
}
