// Package audit implements C12's four audit rules (spec.md §4.12,
// SPEC_FULL.md §4.12a). internal/copytrade checks every prospective
// copy-trade against R1 and R3 before anything is signed, and a failure
// aborts the trade. No pipeline in this tree calls CheckImmutable or
// CheckWalletSameNetwork; watched-wallet additions to an immutable
// strategy are refused by internal/db's AddWatchedWallet itself.
//
// Grounded on original_source's src/service/shared/audit/{a001_top25,
// a002_immutable_tokens,a003_tokens_no_more_than_10_percent,
// a004_user_whitelisted_wallet_same_network}.rs and mod.rs. Rule IDs,
// names and descriptions are carried over verbatim from the Rust
// AuditRule constants. a003's body was never implemented in
// original_source (the file declares only the AuditRule constant), so
// CheckAssetCap below is original work, built directly from spec.md's
// "no single asset over 10% of the post-trade portfolio" wording using
// internal/scalar's checked 256-bit ratio arithmetic rather than floats.
//
// Each rule is a pure function taking the state it needs as arguments
// rather than reaching into internal/db itself: R1/R2/R4 need a single
// row lookup their callers (C9/C10/C11) already perform for other
// reasons, and R3 needs a balance snapshot the caller must assemble
// from potentially many tokens. Keeping the rules DB-free also makes
// them trivially testable without sqlmock.
package audit

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/copytradeengine/engine/internal/auditlog"
	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/copyerr"
)

// Rule identifies one audit check for logging and for a strategy's
// configured AuditRuleIDs set.
type Rule struct {
	ID          int
	Name        string
	Description string
}

var (
	RuleTop25Tokens = Rule{
		ID:          1,
		Name:        "TOP 25 TOKENS",
		Description: "top 25 tokens from the configured price source",
	}
	RuleImmutableTokens = Rule{
		ID:          2,
		Name:        "IMMUTABLE TOKENS",
		Description: "watched wallet addresses and token ratio cannot be changed after creation",
	}
	RuleAssetCap10Percent = Rule{
		ID:          3,
		Name:        "10% TOKENS",
		Description: "no asset allowed should be more than 10% of the total portfolio",
	}
	RuleWalletSameNetwork = Rule{
		ID:          4,
		Name:        "USER WALLET SAME NETWORK",
		Description: "user whitelisted wallet should be on the same network as the strategy contract",
	}
)

// AllRules returns every rule the engine knows about, in ID order.
func AllRules() []Rule {
	return []Rule{RuleTop25Tokens, RuleImmutableTokens, RuleAssetCap10Percent, RuleWalletSameNetwork}
}

// Engine evaluates audit rules, logging every invocation (and every
// failure) through an injected *auditlog.Logger.
type Engine struct {
	log *auditlog.Logger
}

func NewEngine(log *auditlog.Logger) *Engine {
	return &Engine{log: log}
}

func (e *Engine) logf(rule Rule, txHash, format string, args ...interface{}) {
	if e.log == nil {
		return
	}
	msg := fmt.Sprintf("[%s] %s", rule.Name, fmt.Sprintf(format, args...))
	_ = e.log.Log(txHash, msg)
}

// CheckTop25 enforces R1: token must appear in the strategy's whitelist
// (the caller resolves "whitelisted" via internal/db's TokenWhitelistRecord,
// itself populated from a top-25-by-market-cap snapshot per spec.md's C8).
func (e *Engine) CheckTop25(txHash string, strategyID uint64, token string, whitelisted bool) error {
	e.logf(RuleTop25Tokens, txHash, "auditing strategy_id=%d token=%s", strategyID, token)
	if !whitelisted {
		e.logf(RuleTop25Tokens, txHash, "FAILED strategy_id=%d token=%s not in top 25", strategyID, token)
		return copyerr.New(copyerr.CodeAuditViolation, fmt.Sprintf("token %s is not in the top 25 whitelist", token))
	}
	e.logf(RuleTop25Tokens, txHash, "passed strategy_id=%d token=%s", strategyID, token)
	return nil
}

// CheckImmutable enforces R2's watched-wallet/token-ratio half: the
// mutation is rejected outright once immutable is true.
func (e *Engine) CheckImmutable(txHash string, strategyID uint64, immutable bool) error {
	e.logf(RuleImmutableTokens, txHash, "auditing strategy_id=%d", strategyID)
	if immutable {
		e.logf(RuleImmutableTokens, txHash, "FAILED strategy_id=%d is immutable", strategyID)
		return copyerr.New(copyerr.CodeAuditViolation, "strategy is immutable: watched wallets and token ratios cannot change")
	}
	e.logf(RuleImmutableTokens, txHash, "passed strategy_id=%d", strategyID)
	return nil
}

// AssetBalance is one (token, normalized 18-decimal amount) holding in a
// pool's portfolio, as assembled by the caller before a prospective trade.
type AssetBalance struct {
	Token  string
	Amount *uint256.Int
}

// CheckAssetCap enforces R3: after applying delta to token's balance (a
// deposit is positive, a swap's acquired leg negative, etc.), no single
// asset may exceed 10% of the resulting total portfolio value. balances
// must be 18-decimal normalized so amounts of differing token decimals
// compare meaningfully; delta is applied to token's existing entry (or
// treated as a new entry if token isn't already held).
func (e *Engine) CheckAssetCap(txHash string, strategyID uint64, token string, balances []AssetBalance, delta *uint256.Int) error {
	e.logf(RuleAssetCap10Percent, txHash, "auditing strategy_id=%d token=%s", strategyID, token)

	total := new(uint256.Int)
	var tokenBalance *uint256.Int
	found := false
	for _, b := range balances {
		amount := b.Amount
		if b.Token == token {
			found = true
			var overflow bool
			amount, overflow = new(uint256.Int).AddOverflow(b.Amount, delta)
			if overflow {
				return copyerr.New(copyerr.CodeArithmeticOverflow, "asset cap check: balance+delta overflowed")
			}
			tokenBalance = amount
		}
		var overflow bool
		total, overflow = new(uint256.Int).AddOverflow(total, amount)
		if overflow {
			return copyerr.New(copyerr.CodeArithmeticOverflow, "asset cap check: portfolio total overflowed")
		}
	}
	if !found {
		var overflow bool
		tokenBalance, overflow = new(uint256.Int).AddOverflow(new(uint256.Int), delta)
		if overflow {
			return copyerr.New(copyerr.CodeArithmeticOverflow, "asset cap check: new asset balance overflowed")
		}
		total, overflow = new(uint256.Int).AddOverflow(total, tokenBalance)
		if overflow {
			return copyerr.New(copyerr.CodeArithmeticOverflow, "asset cap check: portfolio total overflowed")
		}
	}

	if total.IsZero() {
		e.logf(RuleAssetCap10Percent, txHash, "passed strategy_id=%d token=%s (empty portfolio)", strategyID, token)
		return nil
	}

	// token / total > 10% <=> token*10 > total
	ten := uint256.NewInt(10)
	scaledToken, overflow := new(uint256.Int).MulOverflow(tokenBalance, ten)
	if overflow {
		return copyerr.New(copyerr.CodeArithmeticOverflow, "asset cap check: 10x scaling overflowed")
	}
	if scaledToken.Gt(total) {
		e.logf(RuleAssetCap10Percent, txHash, "FAILED strategy_id=%d token=%s exceeds 10%% of portfolio", strategyID, token)
		return copyerr.New(copyerr.CodeAuditViolation, fmt.Sprintf("asset %s would exceed 10%% of the portfolio", token))
	}
	e.logf(RuleAssetCap10Percent, txHash, "passed strategy_id=%d token=%s", strategyID, token)
	return nil
}

// CheckWalletSameNetwork enforces R4: a watched or strategy wallet's
// chain must match the chain the strategy's pool contract is deployed
// on.
func (e *Engine) CheckWalletSameNetwork(txHash string, strategyID uint64, walletChain, poolChain chain.Chain) error {
	e.logf(RuleWalletSameNetwork, txHash, "auditing strategy_id=%d wallet_chain=%s pool_chain=%s", strategyID, walletChain, poolChain)
	if walletChain != poolChain {
		e.logf(RuleWalletSameNetwork, txHash, "FAILED strategy_id=%d wallet_chain=%s != pool_chain=%s", strategyID, walletChain, poolChain)
		return copyerr.New(copyerr.CodeAuditViolation, "wallet is not on the same network as the strategy's pool contract")
	}
	e.logf(RuleWalletSameNetwork, txHash, "passed strategy_id=%d", strategyID)
	return nil
}
