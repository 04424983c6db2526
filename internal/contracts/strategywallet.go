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

// strategyWalletFunctions names the StrategyWallet ABI methods this
// wrapper calls, mirroring original_source's StrategyWalletFunctions enum
// (kept as plain string constants rather than a Go enum type, since they
// are only ever used as ABI method names and nothing switches on them).
const (
	fnBacker                 = "backer"
	fnAdmin                  = "admin"
	fnRedeemFromStrategy     = "redeemFromStrategy"
	fnFullRedeemFromStrategy = "fullRedeemFromStrategy"
	fnTransferAdminship      = "transferAdminship"
	fnRevokeAdminship        = "revokeAdminship"
)

// StrategyWallet wraps a deployed StrategyWallet contract: the backer-owned
// vehicle that redeems shares out of a StrategyPool. Grounded on
// contract_wrappers/strategy_wallet.rs.
type StrategyWallet struct {
	contract *BoundContract
	client   *ethclient.Client
}

// NewStrategyWallet binds a StrategyWallet at address.
func NewStrategyWallet(client *ethclient.Client, address common.Address, contractABI abi.ABI) *StrategyWallet {
	return &StrategyWallet{contract: NewBoundContract(client, address, contractABI), client: client}
}

func (w *StrategyWallet) Address() common.Address { return w.contract.Address() }

func (w *StrategyWallet) Backer(ctx context.Context) (common.Address, error) {
	return w.callAddress(ctx, fnBacker)
}

func (w *StrategyWallet) Admin(ctx context.Context) (common.Address, error) {
	return w.callAddress(ctx, fnAdmin)
}

func (w *StrategyWallet) callAddress(ctx context.Context, method string) (common.Address, error) {
	var out []interface{}
	if err := w.contract.Call(ctx, &out, method); err != nil {
		return common.Address{}, copyerr.Wrap(copyerr.CodeTransientRPC, "call "+method, err)
	}
	if len(out) != 1 {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, method+": unexpected output count")
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, method+": output is not an address")
	}
	return addr, nil
}

func (w *StrategyWallet) transact(ctx context.Context, auth *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	if auth.GasPrice == nil {
		price, err := gasPrice(ctx, w.client)
		if err != nil {
			return nil, err
		}
		auth.GasPrice = price
	}
	tx, err := w.contract.Transact(ctx, auth, method, args...)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "transact "+method, err)
	}
	return tx, nil
}

// RedeemFromStrategy submits a redeemFromStrategy(strategy, shares) call.
func (w *StrategyWallet) RedeemFromStrategy(ctx context.Context, auth *bind.TransactOpts, strategy common.Address, shares *big.Int) (*types.Transaction, error) {
	return w.transact(ctx, auth, fnRedeemFromStrategy, strategy, shares)
}

// FullRedeemFromStrategy submits a fullRedeemFromStrategy(strategy) call.
func (w *StrategyWallet) FullRedeemFromStrategy(ctx context.Context, auth *bind.TransactOpts, strategy common.Address) (*types.Transaction, error) {
	return w.transact(ctx, auth, fnFullRedeemFromStrategy, strategy)
}

// TransferAdminship submits a transferAdminship(newAdmin) call.
func (w *StrategyWallet) TransferAdminship(ctx context.Context, auth *bind.TransactOpts, newAdmin common.Address) (*types.Transaction, error) {
	return w.transact(ctx, auth, fnTransferAdminship, newAdmin)
}

// RevokeAdminship submits a revokeAdminship() call.
func (w *StrategyWallet) RevokeAdminship(ctx context.Context, auth *bind.TransactOpts) (*types.Transaction, error) {
	return w.transact(ctx, auth, fnRevokeAdminship)
}

// RedeemFromStrategyAndEnsureSuccess submits redeemFromStrategy and retries
// on revert/not-found until it lands successfully or retries are
// exhausted. Ported from
// strategy_wallet.rs::redeem_from_strategy_and_ensure_success.
func (w *StrategyWallet) RedeemFromStrategyAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	strategy common.Address,
	shares *big.Int,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, w.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return w.RedeemFromStrategy(ctx, auth, strategy, shares)
	})
}

// FullRedeemFromStrategyAndEnsureSuccess is the full-redeem counterpart of
// RedeemFromStrategyAndEnsureSuccess.
func (w *StrategyWallet) FullRedeemFromStrategyAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	strategy common.Address,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, w.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return w.FullRedeemFromStrategy(ctx, auth, strategy)
	})
}
