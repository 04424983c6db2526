// Package db implements the engine's ledger & balance store (SPEC_FULL.md
// §4.8 / spec.md C8): append-only ledgers plus their derived balance
// snapshots, written transactionally so a balance mutation and its ledger
// entry are committed together.
//
// Grounded on the teacher's internal/db/transaction_recorder.go for the
// GORM conventions this repo follows throughout: big.Int values stored as
// `varchar(78)` decimal strings (big enough for a 256-bit unsigned value),
// AutoMigrate-driven schema, a thin *gorm.DB-backed Store type. The schema
// itself — DepositLedger/BackLedger/ExitLedger/PoolAssetLedger/
// UserPoolAssetLedger plus the five balance tables — comes from
// spec.md §3/§4.8, which has no counterpart this specific to port from
// original_source (the Rust service used a managed Postgres schema via
// stored procedures, not an ORM model file).
package db

import (
	"time"

	"github.com/copytradeengine/engine/internal/chain"
)

// DepositLedgerRecord is an append-only record of one escrow deposit
// decision (accepted or rejected), per spec.md's
// DepositLedger(user, chain, token, amount, tx_hash, accepted|rejected, fee_amount).
type DepositLedgerRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserID     uint64    `gorm:"index:idx_deposit_user;not null"`
	Chain      chain.Chain `gorm:"index:idx_deposit_user;not null"`
	Token      string    `gorm:"type:varchar(42);not null"`
	Amount     string    `gorm:"type:varchar(78);not null"`
	TxHash     string    `gorm:"type:varchar(66);uniqueIndex;not null"`
	Accepted   bool      `gorm:"not null"`
	FeeAmount  string    `gorm:"type:varchar(78);not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (DepositLedgerRecord) TableName() string { return "deposit_ledger" }

// BackLedgerRecord records one backer "back strategy" action.
type BackLedgerRecord struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	UserID       uint64    `gorm:"index:idx_back_user_strategy;not null"`
	StrategyID   uint64    `gorm:"index:idx_back_user_strategy;not null"`
	Chain        chain.Chain `gorm:"not null"`
	USDValue     string    `gorm:"type:varchar(78);not null"`
	SharesMinted string    `gorm:"type:varchar(78);not null"`
	TxHash       string    `gorm:"type:varchar(66);uniqueIndex;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (BackLedgerRecord) TableName() string { return "back_ledger" }

// ExitLedgerRecord records one backer exit/redeem action.
type ExitLedgerRecord struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	UserID         uint64    `gorm:"index:idx_exit_user_strategy;not null"`
	StrategyID     uint64    `gorm:"index:idx_exit_user_strategy;not null"`
	Chain          chain.Chain `gorm:"not null"`
	SharesRedeemed string    `gorm:"type:varchar(78);not null"`
	USDValue       string    `gorm:"type:varchar(78);not null"`
	TxHash         string    `gorm:"type:varchar(66);uniqueIndex;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (ExitLedgerRecord) TableName() string { return "exit_ledger" }

// PoolAssetLedgerRecord is one signed delta applied to a strategy pool's
// asset balance (a copy-trade leg, a deposit/back, or an exit payout).
type PoolAssetLedgerRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	PoolID      uint64    `gorm:"index:idx_pool_asset;not null"`
	Token       string    `gorm:"type:varchar(42);index:idx_pool_asset;not null"`
	DeltaAmount string    `gorm:"type:varchar(78);not null"`
	IsAdd       bool      `gorm:"not null"`
	TxHash      string    `gorm:"type:varchar(66);not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (PoolAssetLedgerRecord) TableName() string { return "pool_asset_ledger" }

// UserPoolAssetLedgerRecord is the per-user pro-rata counterpart of
// PoolAssetLedgerRecord.
type UserPoolAssetLedgerRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	WalletID    uint64    `gorm:"index:idx_user_pool_asset;not null"`
	Token       string    `gorm:"type:varchar(42);index:idx_user_pool_asset;not null"`
	DeltaAmount string    `gorm:"type:varchar(78);not null"`
	IsAdd       bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (UserPoolAssetLedgerRecord) TableName() string { return "user_pool_asset_ledger" }

// UserDepositBalance is the derived running balance of accepted deposits
// per (user, chain, token).
type UserDepositBalance struct {
	UserID  uint64 `gorm:"primaryKey"`
	Chain   chain.Chain `gorm:"primaryKey"`
	Token   string `gorm:"primaryKey;type:varchar(42)"`
	Amount  string `gorm:"type:varchar(78);not null"`
}

func (UserDepositBalance) TableName() string { return "user_deposit_balance" }

// UserStrategyBalance is a backer's current share count in a strategy.
type UserStrategyBalance struct {
	UserID     uint64 `gorm:"primaryKey"`
	StrategyID uint64 `gorm:"primaryKey"`
	Chain      chain.Chain `gorm:"primaryKey"`
	Shares     string `gorm:"type:varchar(78);not null"`
}

func (UserStrategyBalance) TableName() string { return "user_strategy_balance" }

// StrategyPoolAssetBalance is a strategy pool's current holding of one
// token, invariant-checked against Σ UserStrategyPoolAssetBalance.
type StrategyPoolAssetBalance struct {
	PoolID uint64 `gorm:"primaryKey"`
	Token  string `gorm:"primaryKey;type:varchar(42)"`
	Amount string `gorm:"type:varchar(78);not null"`
}

func (StrategyPoolAssetBalance) TableName() string { return "strategy_pool_asset_balance" }

// UserStrategyPoolAssetBalance is one user's pro-rata share of a pool's
// holding of one token. UserID == DustAccountUserID absorbs rounding
// residue from pro-rata distribution (SPEC_FULL.md §9).
type UserStrategyPoolAssetBalance struct {
	UserID uint64 `gorm:"primaryKey"`
	PoolID uint64 `gorm:"primaryKey"`
	Token  string `gorm:"primaryKey;type:varchar(42)"`
	Amount string `gorm:"type:varchar(78);not null"`
}

func (UserStrategyPoolAssetBalance) TableName() string { return "user_strategy_pool_asset_balance" }

// DustAccountUserID is the sentinel user absorbing pro-rata rounding
// residue, per SPEC_FULL.md §9's Open Question resolution.
const DustAccountUserID uint64 = 0

// WatchedWalletAssetBalance tracks an expert's on-chain wallet holdings
// per (strategy, chain, address, token), used to compute trade ratios in
// C9.
type WatchedWalletAssetBalance struct {
	StrategyID uint64 `gorm:"primaryKey"`
	Chain      chain.Chain `gorm:"primaryKey"`
	Address    string `gorm:"primaryKey;type:varchar(42)"`
	Token      string `gorm:"primaryKey;type:varchar(42)"`
	Amount     string `gorm:"type:varchar(78);not null"`
}

func (WatchedWalletAssetBalance) TableName() string { return "watched_wallet_asset_balance" }

// TokenDecimals persists the ERC-20 decimals for a (chain, token) pair,
// per SPEC_FULL.md §9's Open Question resolution: decimals are stored
// once per token and never overwritten by a normalization step. Symbol is
// recorded alongside it so C10's back-strategy pricing can look up the
// asset-price collaborator's symbol for an existing pool holding without
// an on-chain call; like Decimals it is set once and never overwritten.
type TokenDecimals struct {
	Chain    chain.Chain `gorm:"primaryKey"`
	Token    string `gorm:"primaryKey;type:varchar(42)"`
	Decimals uint64 `gorm:"not null"`
	Symbol   string `gorm:"type:varchar(32)"`
}

func (TokenDecimals) TableName() string { return "token_decimals" }

// AllModels lists every model AutoMigrate should create, in a safe FK-free
// order (none of these tables reference each other via GORM associations,
// so insertion order doesn't matter for migration).
func AllModels() []interface{} {
	models := []interface{}{
		&DepositLedgerRecord{},
		&BackLedgerRecord{},
		&ExitLedgerRecord{},
		&PoolAssetLedgerRecord{},
		&UserPoolAssetLedgerRecord{},
		&UserDepositBalance{},
		&UserStrategyBalance{},
		&StrategyPoolAssetBalance{},
		&UserStrategyPoolAssetBalance{},
		&WatchedWalletAssetBalance{},
		&TokenDecimals{},
	}
	models = append(models, strategyModels...)
	return append(models, userModels...)
}
