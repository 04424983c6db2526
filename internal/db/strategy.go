package db

import (
	"time"

	"gorm.io/gorm"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/copyerr"
)

// StrategyRecord is spec.md §3's Strategy: an expert's declared portfolio,
// with the fee schedule and audit rule set every back/trade runs against.
type StrategyRecord struct {
	ID                      uint64    `gorm:"primaryKey;autoIncrement"`
	ExpertUserID            uint64    `gorm:"index;not null"`
	Name                    string    `gorm:"type:varchar(128);not null"`
	Approved                bool      `gorm:"not null"`
	ImmutableAfterFirstBack bool      `gorm:"not null"`
	PlatformFeeBps          uint32    `gorm:"not null"`
	ExpertFeeBps            uint32    `gorm:"not null"`
	SwapFeeBps              uint32    `gorm:"not null"`
	AuditRuleIDs            string    `gorm:"type:varchar(128);not null"` // comma-separated rule IDs
	CreatedAt               time.Time `gorm:"autoCreateTime"`
}

func (StrategyRecord) TableName() string { return "strategy" }

// StrategyPoolContractRecord is spec.md §3's StrategyPoolContract: the
// deployed on-chain pool, 1:1 with (strategy, chain).
type StrategyPoolContractRecord struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement"`
	StrategyID uint64      `gorm:"uniqueIndex:idx_pool_strategy_chain;not null"`
	Chain      chain.Chain `gorm:"uniqueIndex:idx_pool_strategy_chain;not null"`
	Address    string      `gorm:"type:varchar(42);not null"`
}

func (StrategyPoolContractRecord) TableName() string { return "strategy_pool_contract" }

// StrategyWalletRecord is spec.md §3's StrategyWallet: the backer-owned
// redemption vehicle, with admin revocation state.
type StrategyWalletRecord struct {
	ID            uint64      `gorm:"primaryKey;autoIncrement"`
	BackerUserID  uint64      `gorm:"index;not null"`
	Chain         chain.Chain `gorm:"not null"`
	Address       string      `gorm:"type:varchar(42);not null"`
	AdminRevoked  bool        `gorm:"not null"`
}

func (StrategyWalletRecord) TableName() string { return "strategy_wallet" }

// WatchedWalletRecord is the (strategy, chain, address) an expert's trades
// are copied from; distinct from WatchedWalletAssetBalance, which tracks
// that wallet's holdings.
type WatchedWalletRecord struct {
	StrategyID uint64      `gorm:"primaryKey"`
	Chain      chain.Chain `gorm:"primaryKey"`
	Address    string      `gorm:"primaryKey;type:varchar(42)"`
}

func (WatchedWalletRecord) TableName() string { return "watched_wallet" }

// TokenWhitelistRecord backs C12's R1 (Top-25 tokens): the set of tokens a
// strategy is permitted to trade.
type TokenWhitelistRecord struct {
	StrategyID uint64      `gorm:"primaryKey"`
	Chain      chain.Chain `gorm:"primaryKey"`
	Token      string      `gorm:"primaryKey;type:varchar(42)"`
}

func (TokenWhitelistRecord) TableName() string { return "token_whitelist" }

var strategyModels = []interface{}{
	&StrategyRecord{},
	&StrategyPoolContractRecord{},
	&StrategyWalletRecord{},
	&WatchedWalletRecord{},
	&TokenWhitelistRecord{},
}

// GetStrategy reads a strategy by ID.
func (s *Store) GetStrategy(strategyID uint64) (*StrategyRecord, error) {
	var rec StrategyRecord
	if err := s.db.First(&rec, strategyID).Error; err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch strategy", err)
	}
	return &rec, nil
}

// MarkStrategyImmutable sets ImmutableAfterFirstBack, per spec.md §4.10:
// "After the first successful back on a strategy, the strategy becomes
// immutable." A no-op once already set.
func (s *Store) MarkStrategyImmutable(strategyID uint64) error {
	return s.db.Model(&StrategyRecord{}).Where("id = ?", strategyID).Update("immutable_after_first_back", true).Error
}

// GetStrategyPoolContract resolves a strategy's deployed pool address for
// one chain, the lookup C9 step 1 needs.
func (s *Store) GetStrategyPoolContract(strategyID uint64, c chain.Chain) (*StrategyPoolContractRecord, error) {
	var rec StrategyPoolContractRecord
	err := s.db.Where("strategy_id = ? AND chain = ?", strategyID, c).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, copyerr.New(copyerr.CodeNotFound, "no strategy pool contract for this (strategy, chain)")
	}
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch strategy pool contract", err)
	}
	return &rec, nil
}

// FindStrategyPoolContractByAddress resolves which strategy a given
// on-chain pool address belongs to. No pipeline in this tree calls it; C9
// identifies a trade's strategy through FindStrategyByWatchedWallet.
func (s *Store) FindStrategyPoolContractByAddress(c chain.Chain, address string) (*StrategyPoolContractRecord, error) {
	var rec StrategyPoolContractRecord
	err := s.db.Where("chain = ? AND address = ?", c, address).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, copyerr.New(copyerr.CodeNotFound, "no strategy pool contract at this address")
	}
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch strategy pool contract by address", err)
	}
	return &rec, nil
}

// ListWatchedWallets returns every wallet address a strategy watches on a
// chain.
func (s *Store) ListWatchedWallets(strategyID uint64, c chain.Chain) ([]string, error) {
	var rows []WatchedWalletRecord
	if err := s.db.Where("strategy_id = ? AND chain = ?", strategyID, c).Find(&rows).Error; err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "list watched wallets", err)
	}
	addresses := make([]string, len(rows))
	for i, r := range rows {
		addresses[i] = r.Address
	}
	return addresses, nil
}

// FindStrategyByWatchedWallet resolves which strategy (if any) watches a
// given (chain, address) — C9's trigger condition.
func (s *Store) FindStrategyByWatchedWallet(c chain.Chain, address string) (uint64, bool, error) {
	var rec WatchedWalletRecord
	err := s.db.Where("chain = ? AND address = ?", c, address).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, copyerr.Wrap(copyerr.CodeLedgerInvariant, "find strategy by watched wallet", err)
	}
	return rec.StrategyID, true, nil
}

// AddWatchedWallet registers a wallet for a strategy, rejecting the
// mutation outright if the strategy is already immutable (C12 R2's
// "watched wallets" half; the "initial token ratios" half lives in the
// audit package since it is a property of the prospective trade, not a
// stored row).
func (s *Store) AddWatchedWallet(strategyID uint64, c chain.Chain, address string) error {
	strategy, err := s.GetStrategy(strategyID)
	if err != nil {
		return err
	}
	if strategy.ImmutableAfterFirstBack {
		return copyerr.New(copyerr.CodeAuditViolation, "strategy is immutable: cannot add a watched wallet")
	}
	return s.db.Create(&WatchedWalletRecord{StrategyID: strategyID, Chain: c, Address: address}).Error
}

// IsTokenWhitelisted backs C12's R1.
func (s *Store) IsTokenWhitelisted(strategyID uint64, c chain.Chain, token string) (bool, error) {
	var count int64
	err := s.db.Model(&TokenWhitelistRecord{}).Where("strategy_id = ? AND chain = ? AND token = ?", strategyID, c, token).Count(&count).Error
	if err != nil {
		return false, copyerr.Wrap(copyerr.CodeLedgerInvariant, "check token whitelist", err)
	}
	return count > 0, nil
}
