// Package copytrade implements C9, the copy-trade engine (spec.md §4.9 /
// SPEC_FULL.md §4.9): on a DexTrade whose caller is a watched wallet, size
// and execute the strategy pool's proportional replica trade, then settle
// ledgers atomically.
//
// Grounded on spec.md §4.9's numbered algorithm directly — original_source
// has no single file this was distilled from wholesale (the Rust service
// spread the equivalent logic across several trade_watcher modules this
// retrieval pack doesn't include) — wired against internal/contracts'
// StrategyPool wrapper, internal/db's ledger store, internal/scalar's
// checked ratio arithmetic, and internal/audit's pre-trade rule checks.
package copytrade

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/copytradeengine/engine/internal/audit"
	"github.com/copytradeengine/engine/internal/auditlog"
	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/contracts"
	"github.com/copytradeengine/engine/internal/copyerr"
	"github.com/copytradeengine/engine/internal/db"
	"github.com/copytradeengine/engine/internal/dexparser"
	"github.com/copytradeengine/engine/internal/events"
	"github.com/copytradeengine/engine/internal/rpcpool"
	"github.com/copytradeengine/engine/internal/scalar"
	"github.com/copytradeengine/engine/internal/signer"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// RouterExecutor submits the "equivalent swap on the same DEX router path"
// spec.md §4.9 step 5 describes. Building the actual per-router calldata
// for an arbitrary DexPath (V2 vs V3 single/multi-hop) is router-wrapper
// work outside C7's named contract set (Escrow/StrategyPool/
// StrategyPoolFactory/StrategyWallet/ERC-20), so it is an injected
// collaborator here rather than ported in-line.
type RouterExecutor interface {
	ExecuteSwap(ctx context.Context, c chain.Chain, router common.Address, path dexparser.DexPath, tokenIn, tokenOut common.Address, amountIn *big.Int) (amountOut *big.Int, txHash string, err error)
}

// Replayer receives a trade the engine could not act on yet (no deployed
// pool for this strategy/chain, or the pool is paused) so it can be
// retried once that condition clears, per spec.md §4.9 step 1's "enqueue
// for deferred replay".
type Replayer interface {
	Defer(trade *dexparser.Trade)
}

// Engine wires together the collaborators C9's algorithm needs.
type Engine struct {
	Store    *db.Store
	Pools    *rpcpool.Pool
	Signer   *signer.MasterSigner
	Audit    *audit.Engine
	AuditLog *auditlog.Logger
	Events   *events.Bus
	Router   RouterExecutor
	Replay   Replayer
	PoolABI  abi.ABI
	Params   contracts.EnsureSuccessParams
}

// HandleTrade runs spec.md §4.9's algorithm end to end. A no-op (nil
// error) return means the trade legitimately didn't trigger a copy-trade
// (untracked wallet, zero-share round, or deferred for replay); a non-nil
// error means something failed and should be surfaced/logged upstream.
func (e *Engine) HandleTrade(ctx context.Context, trade *dexparser.Trade) error {
	caller := trade.Caller.Hex()
	strategyID, watched, err := e.Store.FindStrategyByWatchedWallet(trade.Chain, caller)
	if err != nil {
		return err
	}
	if !watched {
		return nil
	}

	poolRecord, err := e.Store.GetStrategyPoolContract(strategyID, trade.Chain)
	if err != nil {
		if errors.Is(err, copyerr.New(copyerr.CodeNotFound, "")) {
			e.defer_(trade)
			return nil
		}
		return err
	}

	guard, err := e.Pools.Acquire(ctx, trade.Chain)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeTransientRPC, "acquire rpc guard", err)
	}
	defer guard.Release()

	poolAddr := common.HexToAddress(poolRecord.Address)
	pool := contracts.NewStrategyPool(guard.Client, poolAddr, e.PoolABI)

	paused, err := pool.IsPaused(ctx)
	if err != nil {
		return err
	}
	if paused {
		e.defer_(trade)
		return nil
	}

	tokenIn := trade.TokenIn.Hex()
	tokenOut := trade.TokenOut.Hex()

	poolAmountIn, err := e.sizeTrade(strategyID, poolRecord.ID, trade)
	if err != nil {
		return err
	}
	if poolAmountIn.Sign() == 0 {
		// Tie-break (spec.md §4.9): a zero-share round contributes nothing.
		return nil
	}

	if err := e.runAudit(strategyID, poolRecord.ID, tokenIn, tokenOut, poolAmountIn, trade); err != nil {
		return err
	}

	auth, txSigner, err := e.Signer.TransactOpts(trade.Chain)
	if err != nil {
		return err
	}

	if _, err := pool.AcquireAssetBeforeTradeAndEnsureSuccess(ctx, auth, txSigner, e.Params, trade.TokenIn, poolAmountIn); err != nil {
		return copyerr.Wrap(copyerr.CodeReverted, "acquire asset before trade", err)
	}

	path := dexparser.DexPath{}
	if len(trade.Paths) > 0 {
		path = trade.Paths[0]
	}
	amountOut, swapTxHash, err := e.Router.ExecuteSwap(ctx, trade.Chain, trade.RouterContract, path, trade.TokenIn, trade.TokenOut, poolAmountIn)
	if err != nil {
		// No ledger updates on a reverted swap (spec.md §4.9 tie-break).
		return copyerr.Wrap(copyerr.CodeReverted, "execute equivalent dex swap", err)
	}

	giveBack, err := pool.GiveBackAssetsAfterTradeAndEnsureSuccess(ctx, auth, txSigner, e.Params,
		[]common.Address{trade.TokenOut}, []*big.Int{amountOut})
	if err != nil {
		return copyerr.Wrap(copyerr.CodeReverted, "give back assets after trade", err)
	}
	settlementTxHash := giveBack.Hash().Hex()

	totalSupply, err := pool.TotalSupply(ctx)
	if err != nil {
		return err
	}
	userBalances, err := e.Store.ListUserStrategyBalances(strategyID, trade.Chain)
	if err != nil {
		return err
	}

	legsIn := proRataLegs(userBalances, totalSupply, poolAmountIn)
	legsOut := proRataLegs(userBalances, totalSupply, amountOut)

	if err := e.Store.RecordCopyTrade(poolRecord.ID, tokenIn, poolAmountIn, legsIn, tokenOut, amountOut, legsOut, settlementTxHash); err != nil {
		return err
	}

	if err := e.Store.AdjustWatchedWalletBalance(strategyID, trade.Chain, caller, tokenIn, new(big.Int).Neg(trade.AmountIn)); err != nil {
		return err
	}
	if err := e.Store.AdjustWatchedWalletBalance(strategyID, trade.Chain, caller, tokenOut, trade.AmountOut); err != nil {
		return err
	}

	if e.Events != nil {
		e.Events.Publish(events.EscrowLedgerChange{
			Kind:       events.KindCopyTrade,
			StrategyID: strategyID,
			Chain:      trade.Chain,
			Amount:     poolAmountIn.String(),
			TxHash:     settlementTxHash,
		})
	}
	if e.AuditLog != nil {
		_ = e.AuditLog.Log(settlementTxHash, fmt.Sprintf("copy-trade settled strategy_id=%d token_in=%s token_out=%s amount_in=%s amount_out=%s swap_tx=%s", strategyID, tokenIn, tokenOut, poolAmountIn, amountOut, swapTxHash))
	}
	return nil
}

func (e *Engine) defer_(trade *dexparser.Trade) {
	if e.Replay != nil {
		e.Replay.Defer(trade)
	}
}

// sizeTrade computes spec.md §4.9 steps 2-3: the ratio w of this trade
// against the expert's total watched holdings of token_in, applied to the
// pool's own token_in balance via mul_div. Watched balances and the trade
// amount are normalized to 18 decimals before the ratio is formed so the
// division is decimal-agnostic, per SPEC_FULL.md's "normalized balances"
// note; the normalization factor cancels out of the final mul_div, so
// poolBalanceIn itself is used in its native (raw) decimals.
func (e *Engine) sizeTrade(strategyID, poolID uint64, trade *dexparser.Trade) (*big.Int, error) {
	tokenIn := trade.TokenIn.Hex()
	decimalsIn, err := e.Store.GetTokenDecimals(trade.Chain, tokenIn)
	if err != nil {
		return nil, err
	}

	total, err := e.Store.GetTotalWatchedWalletValue(strategyID, trade.Chain, tokenIn)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return nil, copyerr.New(copyerr.CodeLedgerInvariant, "total watched wallet value is zero: cannot size trade")
	}

	poolBalanceIn, err := e.Store.GetStrategyPoolAssetBalance(poolID, tokenIn)
	if err != nil {
		return nil, err
	}

	amountInU, err := scalar.FromBigInt(trade.AmountIn)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "convert amount_in", err)
	}
	totalU, err := scalar.FromBigInt(total)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "convert total watched value", err)
	}
	poolBalanceU, err := scalar.FromBigInt(poolBalanceIn)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "convert pool balance", err)
	}

	normAmountIn, err := scalar.NormalizeTo(18, decimalsIn, amountInU)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "normalize amount_in", err)
	}
	normTotal, err := scalar.NormalizeTo(18, decimalsIn, totalU)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "normalize total watched value", err)
	}

	poolAmountInU, err := scalar.MulDiv(poolBalanceU, normAmountIn, normTotal)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "mul_div pool trade size", err)
	}
	return scalar.ToBigInt(poolAmountInU), nil
}

// runAudit enforces C12's rules against the prospective post-trade state,
// per spec.md §4.9 step 4.
func (e *Engine) runAudit(strategyID, poolID uint64, tokenIn, tokenOut string, poolAmountIn *big.Int, trade *dexparser.Trade) error {
	if e.Audit == nil {
		return nil
	}
	txHash := trade.Caller.Hex()

	whitelistedIn, err := e.Store.IsTokenWhitelisted(strategyID, trade.Chain, tokenIn)
	if err != nil {
		return err
	}
	if err := e.Audit.CheckTop25(txHash, strategyID, tokenIn, whitelistedIn); err != nil {
		return err
	}
	whitelistedOut, err := e.Store.IsTokenWhitelisted(strategyID, trade.Chain, tokenOut)
	if err != nil {
		return err
	}
	if err := e.Audit.CheckTop25(txHash, strategyID, tokenOut, whitelistedOut); err != nil {
		return err
	}

	// CheckAssetCap only models an increase (pool balances are held as
	// unsigned uint256.Int magnitudes), so it is evaluated against the
	// receiving side of the trade: the asset a copy-trade could push over
	// the 10% ceiling is the one whose balance grows, never the one it
	// draws down.
	balances, err := e.Store.ListStrategyPoolAssetBalances(poolID)
	if err != nil {
		return err
	}
	normalized := make([]audit.AssetBalance, 0, len(balances))
	for _, b := range balances {
		decimals, err := e.Store.GetTokenDecimals(trade.Chain, b.Token)
		if err != nil {
			continue
		}
		amountU, err := scalar.FromBigInt(parseNonNegative(b.Amount))
		if err != nil {
			continue
		}
		norm, err := scalar.NormalizeTo(18, decimals, amountU)
		if err != nil {
			continue
		}
		normalized = append(normalized, audit.AssetBalance{Token: b.Token, Amount: norm})
	}

	estimatedOut, err := estimateAmountOut(trade, poolAmountIn)
	if err != nil {
		return err
	}
	decimalsOut, err := e.Store.GetTokenDecimals(trade.Chain, tokenOut)
	if err != nil {
		return err
	}
	estimatedOutU, err := scalar.FromBigInt(estimatedOut)
	if err != nil {
		return err
	}
	normEstimatedOut, err := scalar.NormalizeTo(18, decimalsOut, estimatedOutU)
	if err != nil {
		return err
	}

	return e.Audit.CheckAssetCap(txHash, strategyID, tokenOut, normalized, normEstimatedOut)
}

// estimateAmountOut projects the pool-sized leg's output using the ratio
// observed on the expert's own trade (amountOut/amountIn), ahead of
// actually submitting the equivalent swap.
func estimateAmountOut(trade *dexparser.Trade, poolAmountIn *big.Int) (*big.Int, error) {
	if trade.AmountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	amountOutU, err := scalar.FromBigInt(trade.AmountOut)
	if err != nil {
		return nil, err
	}
	poolAmountInU, err := scalar.FromBigInt(poolAmountIn)
	if err != nil {
		return nil, err
	}
	amountInU, err := scalar.FromBigInt(trade.AmountIn)
	if err != nil {
		return nil, err
	}
	estU, err := scalar.MulDiv(amountOutU, poolAmountInU, amountInU)
	if err != nil {
		return nil, err
	}
	return scalar.ToBigInt(estU), nil
}

func parseNonNegative(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return big.NewInt(0)
	}
	return n
}

// proRataLegs splits delta across every backer by their share of
// totalSupply, routing any rounding residue to db.DustAccountUserID, per
// spec.md §4.9 step 6.
func proRataLegs(balances []db.UserStrategyBalance, totalSupply *big.Int, delta *big.Int) []db.ProRataLeg {
	if totalSupply.Sign() == 0 {
		return nil
	}
	legs := make([]db.ProRataLeg, 0, len(balances)+1)
	assigned := big.NewInt(0)
	for _, b := range balances {
		shares, ok := new(big.Int).SetString(b.Shares, 10)
		if !ok || shares.Sign() == 0 {
			continue
		}
		leg := new(big.Int).Mul(delta, shares)
		leg.Div(leg, totalSupply)
		if leg.Sign() == 0 {
			continue
		}
		legs = append(legs, db.ProRataLeg{UserID: b.UserID, Amount: leg})
		assigned.Add(assigned, leg)
	}
	dust := new(big.Int).Sub(delta, assigned)
	if dust.Sign() != 0 {
		legs = append(legs, db.ProRataLeg{UserID: db.DustAccountUserID, Amount: dust})
	}
	return legs
}
