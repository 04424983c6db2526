// Package deposit implements C10, the deposit/back pipeline (spec.md
// §4.10 / SPEC_FULL.md §4.10): turn an escrow-bound stablecoin transfer
// into an accepted or rejected DepositLedger entry, and separately let a
// backer convert an accepted deposit balance into strategy pool shares.
//
// No single original_source file grounds this wholesale (the Rust
// service's equivalent logic lived in its escrow_tracker watcher plus a
// FunUserBackStrategy RPC handler this retrieval pack doesn't include);
// built directly from spec.md §4.10's numbered algorithm, wired against
// internal/contracts' Escrow/StrategyPool wrappers, the
// internal/escrowparser registry, and internal/price's asset-price
// collaborator interface.
package deposit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/contracts"
	"github.com/copytradeengine/engine/internal/copyerr"
	"github.com/copytradeengine/engine/internal/db"
	"github.com/copytradeengine/engine/internal/escrowparser"
	"github.com/copytradeengine/engine/internal/price"
	"github.com/copytradeengine/engine/internal/rpcpool"
	"github.com/copytradeengine/engine/internal/scalar"
	"github.com/copytradeengine/engine/internal/signer"
)

// Engine wires together C10's collaborators.
type Engine struct {
	Store          *db.Store
	Pools          *rpcpool.Pool
	Signer         *signer.MasterSigner
	Price          price.Source
	Stablecoins    *escrowparser.Registry
	EscrowABI      abi.ABI
	PoolABI        abi.ABI
	Params         contracts.EnsureSuccessParams
	PlatformFeeBps uint64
}

// HandleEscrowTransfer runs spec.md §4.10 steps 1-4 for one EscrowTransfer
// from C6: resolve the depositor, reject the stake if they're
// unregistered, otherwise accept the full transferred amount and record
// the platform fee alongside it in the deposit ledger.
func (e *Engine) HandleEscrowTransfer(ctx context.Context, c chain.Chain, escrowAddr common.Address, xfer *escrowparser.Transfer) error {
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

	assetAddr, ok := e.Stablecoins.ByChainAndCoin(c, xfer.Token)
	if !ok {
		return copyerr.New(copyerr.CodeConfig, "no registered address for "+xfer.Token.String()+" on "+c.String())
	}

	userID, registered, err := e.Store.ResolveUserByWallet(c, xfer.Owner.Hex())
	if err != nil {
		return err
	}
	token := assetAddr.Hex()

	if !registered {
		ready, err := escrow.RejectDepositAndEnsureSuccess(ctx, auth, txSigner, e.Params,
			xfer.Owner, assetAddr, xfer.Amount, common.Address{}, big.NewInt(0))
		if err != nil {
			return copyerr.Wrap(copyerr.CodeReverted, "reject deposit from unregistered wallet", err)
		}
		return e.Store.RecordDeposit(db.DustAccountUserID, c, token, xfer.Amount, ready.Hash().Hex(), false, big.NewInt(0))
	}

	fee, err := platformFee(xfer.Amount, e.PlatformFeeBps)
	if err != nil {
		return err
	}

	ready, err := escrow.AcceptDepositAndEnsureSuccess(ctx, auth, txSigner, e.Params, xfer.Owner, assetAddr, xfer.Amount)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeReverted, "accept deposit", err)
	}

	return e.Store.RecordDeposit(userID, c, token, xfer.Amount, ready.Hash().Hex(), true, fee)
}

// platformFee computes amount*bps/10_000 with checked overflow arithmetic,
// per spec.md §4.10 step 2.
func platformFee(amount *big.Int, bps uint64) (*big.Int, error) {
	amountU, err := scalar.FromBigInt(amount)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "convert deposit amount", err)
	}
	bpsU, err := scalar.FromBigInt(big.NewInt(0).SetUint64(bps))
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "convert platform fee bps", err)
	}
	tenThousand, err := scalar.FromBigInt(big.NewInt(10_000))
	if err != nil {
		return nil, err
	}
	feeU, err := scalar.MulDiv(amountU, bpsU, tenThousand)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "compute platform fee", err)
	}
	return scalar.ToBigInt(feeU), nil
}

// BackAsset is one asset/amount leg of a back-strategy deposit.
type BackAsset struct {
	Token  common.Address
	Symbol string
	Amount *big.Int
}

// BackStrategy implements the "back strategy" action spec.md §4.10
// describes separately from the escrow pipeline: price the assets being
// deposited, size shares_to_mint against the pool's existing
// share-value curve, submit StrategyPool.deposit, and on success persist
// the back atomically and mark the strategy immutable.
func (e *Engine) BackStrategy(
	ctx context.Context,
	userID, strategyID, poolID uint64,
	c chain.Chain,
	poolAddr, strategyWalletAddr common.Address,
	legs []BackAsset,
) error {
	guard, err := e.Pools.Acquire(ctx, c)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeTransientRPC, "acquire rpc guard", err)
	}
	defer guard.Release()

	pool := contracts.NewStrategyPool(guard.Client, poolAddr, e.PoolABI)

	symbols := make([]string, 0, len(legs))
	for _, leg := range legs {
		symbols = append(symbols, leg.Symbol)
	}
	prices, err := e.Price.GetUSDPriceLatest(ctx, symbols)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeTransientRPC, "fetch asset prices", err)
	}

	depositUSD, err := usdValue(legs, prices)
	if err != nil {
		return err
	}

	existingAssets, existingBalances, err := pool.AssetsAndBalances(ctx)
	if err != nil {
		return err
	}
	poolUSD, err := e.poolUSDValue(ctx, c, existingAssets, existingBalances)
	if err != nil {
		return err
	}

	totalSupply, err := pool.TotalSupply(ctx)
	if err != nil {
		return err
	}

	shares, err := sharesToMint(depositUSD, totalSupply, poolUSD)
	if err != nil {
		return err
	}

	assets := make([]common.Address, len(legs))
	amounts := make([]*big.Int, len(legs))
	assetStrs := make([]string, len(legs))
	for i, leg := range legs {
		assets[i] = leg.Token
		amounts[i] = leg.Amount
		assetStrs[i] = leg.Token.Hex()
	}

	auth, txSigner, err := e.Signer.TransactOpts(c)
	if err != nil {
		return err
	}
	ready, err := pool.DepositAndEnsureSuccess(ctx, auth, txSigner, e.Params, assets, amounts, shares, strategyWalletAddr)
	if err != nil {
		return copyerr.Wrap(copyerr.CodeReverted, "strategy pool deposit", err)
	}

	if err := e.Store.RecordBack(userID, strategyID, poolID, c, depositUSD, shares, ready.Hash().Hex(), assetStrs, amounts); err != nil {
		return err
	}
	return e.Store.MarkStrategyImmutable(strategyID)
}

// usdValue sums each leg's amount (assumed already expressed in a human
// USD-equivalent base unit by the caller) times its quoted price.
func usdValue(legs []BackAsset, prices map[string]float64) (*big.Int, error) {
	total := uint256.NewInt(0)
	for _, leg := range legs {
		p, ok := prices[leg.Symbol]
		if !ok {
			return nil, copyerr.New(copyerr.CodeConfig, "no price quote for symbol "+leg.Symbol)
		}
		amountU, err := scalar.FromBigInt(leg.Amount)
		if err != nil {
			return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "convert back leg amount", err)
		}
		legUSD, err := scalar.MulF64(amountU, p)
		if err != nil {
			return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "price back leg", err)
		}
		sum, err := scalar.CheckedAdd(total, legUSD)
		if err != nil {
			return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "sum back legs", err)
		}
		total = sum
	}
	return scalar.ToBigInt(total), nil
}

// poolUSDValue prices a pool's current holdings, used as the denominator
// of the share-value curve: each asset's db.Store-recorded symbol is
// looked up and priced via the same price.Source a fresh back-leg uses.
// An empty pool (first backer) short-circuits to zero, which
// sharesToMint treats as a 1:1 mint.
func (e *Engine) poolUSDValue(ctx context.Context, c chain.Chain, assets []common.Address, balances []*big.Int) (*big.Int, error) {
	if len(assets) == 0 {
		return big.NewInt(0), nil
	}

	legs := make([]BackAsset, 0, len(assets))
	for i, asset := range assets {
		symbol, err := e.Store.GetTokenSymbol(c, asset.Hex())
		if err != nil {
			return nil, err
		}
		legs = append(legs, BackAsset{Token: asset, Symbol: symbol, Amount: balances[i]})
	}

	symbols := make([]string, len(legs))
	for i, leg := range legs {
		symbols[i] = leg.Symbol
	}
	prices, err := e.Price.GetUSDPriceLatest(ctx, symbols)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "fetch existing pool asset prices", err)
	}
	return usdValue(legs, prices)
}

// sharesToMint follows the pool's existing share-value curve (spec.md
// §4.10): 1:1 with the deposited USD value while the pool is empty,
// otherwise proportional to the deposit's share of the pool's existing
// USD value.
func sharesToMint(depositUSD, totalSupply, poolUSD *big.Int) (*big.Int, error) {
	if totalSupply.Sign() == 0 || poolUSD.Sign() == 0 {
		return depositUSD, nil
	}
	depositU, err := scalar.FromBigInt(depositUSD)
	if err != nil {
		return nil, err
	}
	totalSupplyU, err := scalar.FromBigInt(totalSupply)
	if err != nil {
		return nil, err
	}
	poolUSDU, err := scalar.FromBigInt(poolUSD)
	if err != nil {
		return nil, err
	}
	sharesU, err := scalar.MulDiv(depositU, totalSupplyU, poolUSDU)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeArithmeticOverflow, "compute shares to mint", err)
	}
	return scalar.ToBigInt(sharesU), nil
}
