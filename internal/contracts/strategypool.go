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
	fnTotalSupply        = "totalSupply"
	fnBalanceOf          = "balanceOf"
	fnAssets             = "assets"
	fnAssetBalance       = "assetBalance"
	fnDeposit            = "deposit"
	fnRedeem             = "redeem"
	fnPoolOwner          = "owner"
	fnPoolTransferOwner  = "transferOwnership"
	fnIsPaused           = "isPaused"
	fnAcquireAsset       = "acquireAssetBeforeTrade"
	fnGiveBackAssets     = "giveBackAssetsAfterTrade"
	fnMaxDeposit         = "maxDeposit"
	fnMinDeposit         = "minDeposit"
	fnAssetsAndBalances  = "assetsAndBalances"

	evRedeem = "Redeem"
)

// StrategyPool wraps a deployed StrategyPool contract: the per-strategy
// vault holding pooled backer assets, minting/burning shares on
// deposit/redeem. Grounded on contract_wrappers/strategy_pool.rs; only
// the subset of its (larger) method surface this engine's pipelines
// actually drive is ported — total_supply/balance_of/assets/asset_balance
// for C9's ratio accounting, deposit/redeem for C10/C11's settlement,
// owner/transfer_ownership, and is_paused, which C9 reads before
// replicating a trade.
type StrategyPool struct {
	contract *BoundContract
	client   *ethclient.Client
}

func NewStrategyPool(client *ethclient.Client, address common.Address, contractABI abi.ABI) *StrategyPool {
	return &StrategyPool{contract: NewBoundContract(client, address, contractABI), client: client}
}

func (p *StrategyPool) Address() common.Address { return p.contract.Address() }

func (p *StrategyPool) TotalSupply(ctx context.Context) (*big.Int, error) {
	return p.callUint256(ctx, fnTotalSupply)
}

func (p *StrategyPool) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return p.callUint256(ctx, fnBalanceOf, owner)
}

func (p *StrategyPool) AssetBalance(ctx context.Context, asset common.Address) (*big.Int, error) {
	return p.callUint256(ctx, fnAssetBalance, asset)
}

func (p *StrategyPool) Assets(ctx context.Context) ([]common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(ctx, &out, fnAssets); err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "call assets", err)
	}
	if len(out) != 1 {
		return nil, copyerr.New(copyerr.CodeDecode, "assets: unexpected output count")
	}
	assets, ok := out[0].([]common.Address)
	if !ok {
		return nil, copyerr.New(copyerr.CodeDecode, "assets: output is not an address array")
	}
	return assets, nil
}

func (p *StrategyPool) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(ctx, &out, fnPoolOwner); err != nil {
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

func (p *StrategyPool) IsPaused(ctx context.Context) (bool, error) {
	var out []interface{}
	if err := p.contract.Call(ctx, &out, fnIsPaused); err != nil {
		return false, copyerr.Wrap(copyerr.CodeTransientRPC, "call isPaused", err)
	}
	if len(out) != 1 {
		return false, copyerr.New(copyerr.CodeDecode, "isPaused: unexpected output count")
	}
	paused, ok := out[0].(bool)
	if !ok {
		return false, copyerr.New(copyerr.CodeDecode, "isPaused: output is not a bool")
	}
	return paused, nil
}

// MaxDeposit and MinDeposit report the pool's current deposit bounds. No
// pipeline in this tree calls them; C10 sizes a back action without them.
func (p *StrategyPool) MaxDeposit(ctx context.Context) (*big.Int, error) {
	return p.callUint256(ctx, fnMaxDeposit)
}

func (p *StrategyPool) MinDeposit(ctx context.Context) (*big.Int, error) {
	return p.callUint256(ctx, fnMinDeposit)
}

// AssetsAndBalances returns the pool's held assets paired with their
// current balances, the snapshot C10's BackStrategy prices to size the
// shares it mints.
func (p *StrategyPool) AssetsAndBalances(ctx context.Context) ([]common.Address, []*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(ctx, &out, fnAssetsAndBalances); err != nil {
		return nil, nil, copyerr.Wrap(copyerr.CodeTransientRPC, "call assetsAndBalances", err)
	}
	if len(out) != 2 {
		return nil, nil, copyerr.New(copyerr.CodeDecode, "assetsAndBalances: unexpected output count")
	}
	assets, ok := out[0].([]common.Address)
	if !ok {
		return nil, nil, copyerr.New(copyerr.CodeDecode, "assetsAndBalances: first output is not an address array")
	}
	balances, ok := out[1].([]*big.Int)
	if !ok {
		return nil, nil, copyerr.New(copyerr.CodeDecode, "assetsAndBalances: second output is not a uint256 array")
	}
	return assets, balances, nil
}

func (p *StrategyPool) callUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(ctx, &out, method, args...); err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "call "+method, err)
	}
	if len(out) != 1 {
		return nil, copyerr.New(copyerr.CodeDecode, method+": unexpected output count")
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, copyerr.New(copyerr.CodeDecode, method+": output is not a uint256")
	}
	return n, nil
}

func (p *StrategyPool) transact(ctx context.Context, auth *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	if auth.GasPrice == nil {
		price, err := gasPrice(ctx, p.client)
		if err != nil {
			return nil, err
		}
		auth.GasPrice = price
	}
	tx, err := p.contract.Transact(ctx, auth, method, args...)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "transact "+method, err)
	}
	return tx, nil
}

// Deposit submits deposit(assets, amounts, shares, receiver): pulls
// amounts[i] of each assets[i] from the caller and mints shares pool
// shares to receiver.
func (p *StrategyPool) Deposit(ctx context.Context, auth *bind.TransactOpts, assets []common.Address, amounts []*big.Int, shares *big.Int, receiver common.Address) (*types.Transaction, error) {
	return p.transact(ctx, auth, fnDeposit, assets, amounts, shares, receiver)
}

// Redeem submits redeem(shares, receiver, owner): burns owner's shares and
// pays out a pro-rata slice of every pool asset to receiver.
func (p *StrategyPool) Redeem(ctx context.Context, auth *bind.TransactOpts, shares *big.Int, receiver, owner common.Address) (*types.Transaction, error) {
	return p.transact(ctx, auth, fnRedeem, shares, receiver, owner)
}

func (p *StrategyPool) TransferOwnership(ctx context.Context, auth *bind.TransactOpts, newOwner common.Address) (*types.Transaction, error) {
	return p.transact(ctx, auth, fnPoolTransferOwner, newOwner)
}

// AcquireAssetBeforeTrade submits acquireAssetBeforeTrade(asset, amount):
// the pool releases amount of asset to the caller (C9's copy-trade engine)
// so it can be swapped on the expert's DEX route.
func (p *StrategyPool) AcquireAssetBeforeTrade(ctx context.Context, auth *bind.TransactOpts, asset common.Address, amount *big.Int) (*types.Transaction, error) {
	return p.transact(ctx, auth, fnAcquireAsset, asset, amount)
}

// GiveBackAssetsAfterTrade submits giveBackAssetsAfterTrade(assets,
// amounts): the swap's proceeds are returned to the pool, completing the
// copy-trade settlement C9 §4.9 step 5 describes.
func (p *StrategyPool) GiveBackAssetsAfterTrade(ctx context.Context, auth *bind.TransactOpts, assets []common.Address, amounts []*big.Int) (*types.Transaction, error) {
	return p.transact(ctx, auth, fnGiveBackAssets, assets, amounts)
}

// RedeemPayout is the (assets[], amounts[]) a redeem call paid out,
// decoded from the pool's Redeem event rather than trusted from the
// caller, per spec.md C11's "parse the pool's Redeem event to discover
// the (assets[], amounts[]) paid out" step.
type RedeemPayout struct {
	Assets  []common.Address
	Amounts []*big.Int
}

// ParseRedeemLog scans receipt logs for this pool's Redeem event and
// decodes its payout. Mirrors txfetcher's topic-matching Transfer-log
// scanners (AmountOfTokenReceived/AmountOfTokenSent), but unpacks through
// the pool's own ABI instead of hand-matching ERC-20's fixed layout,
// since Redeem's dynamic array outputs aren't indexed topics.
func (p *StrategyPool) ParseRedeemLog(logs []*types.Log) (*RedeemPayout, error) {
	event, ok := p.contract.abi.Events[evRedeem]
	if !ok {
		return nil, copyerr.New(copyerr.CodeConfig, "strategy pool ABI has no Redeem event")
	}
	for _, log := range logs {
		if log.Address != p.Address() {
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}
		var payout RedeemPayout
		if err := p.contract.abi.UnpackIntoInterface(&payout, evRedeem, log.Data); err != nil {
			return nil, copyerr.Wrap(copyerr.CodeDecode, "unpack redeem event", err)
		}
		return &payout, nil
	}
	return nil, copyerr.New(copyerr.CodeNotFound, "no redeem event in receipt logs")
}

// DepositAndEnsureSuccess retries deposit on revert/not-found, matching the
// *_and_ensure_success shape used throughout the contract wrappers.
func (p *StrategyPool) DepositAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	assets []common.Address,
	amounts []*big.Int,
	shares *big.Int,
	receiver common.Address,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, p.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return p.Deposit(ctx, auth, assets, amounts, shares, receiver)
	})
}

// RedeemAndEnsureSuccess is the redeem-path counterpart of
// DepositAndEnsureSuccess.
func (p *StrategyPool) RedeemAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	shares *big.Int,
	receiver, owner common.Address,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, p.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return p.Redeem(ctx, auth, shares, receiver, owner)
	})
}

// AcquireAssetBeforeTradeAndEnsureSuccess is the ensure-success counterpart
// used by C9 before submitting the equivalent DEX swap.
func (p *StrategyPool) AcquireAssetBeforeTradeAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	asset common.Address,
	amount *big.Int,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, p.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return p.AcquireAssetBeforeTrade(ctx, auth, asset, amount)
	})
}

// GiveBackAssetsAfterTradeAndEnsureSuccess is the ensure-success
// counterpart completing C9's copy-trade settlement.
func (p *StrategyPool) GiveBackAssetsAfterTradeAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	assets []common.Address,
	amounts []*big.Int,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, p.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return p.GiveBackAssetsAfterTrade(ctx, auth, assets, amounts)
	})
}
