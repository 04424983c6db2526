// Package exit implements C11, the exit/refund pipeline (spec.md
// §4.11 / SPEC_FULL.md §4.11): a backer redeeming shares out of a
// strategy, and the separate refund of an accepted-but-not-yet-backed
// deposit.
//
// No single original_source file grounds this wholesale (the Rust
// service split redemption across its strategy_wallet wrapper and a
// redeem-confirmation watcher this retrieval pack doesn't carry); built
// from spec.md §4.11's numbered algorithm, wired against
// internal/contracts' StrategyWallet/StrategyPool/Escrow wrappers and
// internal/price, mirroring internal/deposit's Engine shape.
package exit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/contracts"
	"github.com/copytradeengine/engine/internal/copyerr"
	"github.com/copytradeengine/engine/internal/db"
	"github.com/copytradeengine/engine/internal/price"
	"github.com/copytradeengine/engine/internal/rpcpool"
	"github.com/copytradeengine/engine/internal/signer"
	"github.com/copytradeengine/engine/internal/txfetcher"
)

// Engine wires together C11's collaborators.
type Engine struct {
	Store     *db.Store
	Pools     *rpcpool.Pool
	Signer    *signer.MasterSigner
	Price     price.Source
	WalletABI abi.ABI
	PoolABI   abi.ABI
	EscrowABI abi.ABI
	Params    contracts.EnsureSuccessParams
}

// RedeemShares implements spec.md §4.11's redeem flow: the backer's
// StrategyWallet.redeemFromStrategy (or fullRedeemFromStrategy when
// full is true, in which case shares is ignored) is called with
// ensure-success, the pool's Redeem event is decoded from the receipt
// to discover the (assets[], amounts[]) actually paid out, the payout
// is priced for the ExitLedger's USD value, and the whole settlement
// is persisted in one Store transaction.
func (e *Engine) RedeemShares(
	ctx context.Context,
	userID, strategyID, poolID uint64,
	c chain.Chain,
	walletAddr, poolAddr common.Address,
	shares *big.Int,
	full bool,
) error {
	guard, err := e.Pools.Acquire(ctx, c)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeTransientRPC, "acquire rpc guard", err)
	}
	defer guard.Release()

	wallet := contracts.NewStrategyWallet(guard.Client, walletAddr, e.WalletABI)
	pool := contracts.NewStrategyPool(guard.Client, poolAddr, e.PoolABI)

	auth, txSigner, err := e.Signer.TransactOpts(c)
	if err != nil {
		return err
	}

	var ready *txfetcher.ReadyTransaction
	if full {
		ready, err = wallet.FullRedeemFromStrategyAndEnsureSuccess(ctx, auth, txSigner, e.Params, poolAddr)
		if err != nil {
			return copyerr.Wrap(copyerr.CodeReverted, "full redeem from strategy", err)
		}
	} else {
		ready, err = wallet.RedeemFromStrategyAndEnsureSuccess(ctx, auth, txSigner, e.Params, poolAddr, shares)
		if err != nil {
			return copyerr.Wrap(copyerr.CodeReverted, "redeem from strategy", err)
		}
	}

	payout, err := pool.ParseRedeemLog(ready.Logs())
	if err != nil {
		return copyerr.Wrap(copyerr.CodeDecode, "decode redeem payout", err)
	}
	if len(payout.Assets) != len(payout.Amounts) {
		return copyerr.New(copyerr.CodeLedgerInvariant, "redeem payout assets/amounts length mismatch")
	}

	redeemedShares := shares
	if full {
		redeemedShares, err = e.Store.GetUserStrategyShares(userID, strategyID, c)
		if err != nil {
			return err
		}
	}

	usdValue, err := e.priceLegs(ctx, c, payout.Assets, payout.Amounts)
	if err != nil {
		return err
	}

	assetStrs := make([]string, len(payout.Assets))
	for i, a := range payout.Assets {
		assetStrs[i] = a.Hex()
	}

	return e.Store.RecordExit(userID, strategyID, poolID, c, redeemedShares, usdValue, ready.Hash().Hex(), assetStrs, payout.Amounts)
}

// RefundDeposit implements spec.md §4.11's "refund of an unaccepted
// deposit" sub-flow: calls Escrow.rejectDeposit against an
// already-credited deposit balance and records the refund as a
// rejected DepositLedger entry, decrementing UserDepositBalance.
func (e *Engine) RefundDeposit(
	ctx context.Context,
	userID uint64,
	c chain.Chain,
	escrowAddr, owner, asset common.Address,
	amount, fee *big.Int,
	feeRecipient common.Address,
) error {
	guard, err := e.Pools.Acquire(ctx, c)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeTransientRPC, "acquire rpc guard", err)
	}
	defer guard.Release()

	escrow := contracts.NewEscrow(guard.Client, escrowAddr, e.EscrowABI)
	auth, txSigner, err := e.Signer.TransactOpts(c)
	if err != nil {
		return err
	}

	ready, err := escrow.RejectDepositAndEnsureSuccess(ctx, auth, txSigner, e.Params, owner, asset, amount, feeRecipient, fee)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeReverted, "refund deposit", err)
	}

	return e.Store.RecordDepositRefund(userID, c, asset.Hex(), amount, fee, ready.Hash().Hex())
}

// priceLegs sums a redeem payout's USD value via internal/price and
// internal/db's recorded token symbols, the same pattern internal/deposit
// uses to price an existing pool's holdings.
func (e *Engine) priceLegs(ctx context.Context, c chain.Chain, assets []common.Address, amounts []*big.Int) (*big.Int, error) {
	if len(assets) == 0 {
		return big.NewInt(0), nil
	}

	symbols := make([]string, len(assets))
	for i, a := range assets {
		symbol, err := e.Store.GetTokenSymbol(c, a.Hex())
		if err != nil {
			return nil, err
		}
		symbols[i] = symbol
	}
	prices, err := e.Price.GetUSDPriceLatest(ctx, symbols)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "fetch redeem payout prices", err)
	}

	total := big.NewInt(0)
	for i, symbol := range symbols {
		p, ok := prices[symbol]
		if !ok {
			return nil, copyerr.New(copyerr.CodeConfig, "no price quote for symbol "+symbol)
		}
		legUSD := usdLegValue(amounts[i], p)
		total = total.Add(total, legUSD)
	}
	return total, nil
}

// usdLegValue prices one redeemed leg at a float64 USD rate. Redeem
// payouts are bounded by the pool's own on-chain balances (already
// checked against uint256 overflow when they were credited in), so
// plain big.Int arithmetic is sufficient here unlike C9/C10's
// scalar.MulDiv paths, which size trades against unvalidated external
// input.
func usdLegValue(amount *big.Int, usdPerUnit float64) *big.Int {
	f := new(big.Float).Mul(new(big.Float).SetInt(amount), big.NewFloat(usdPerUnit))
	out, _ := f.Int(nil)
	return out
}
