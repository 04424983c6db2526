package db

import (
	"fmt"
	"math/big"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/copyerr"
)

// Store is the engine's ledger & balance store: every write goes through
// one of its Record* methods, each wrapping an insert-ledger +
// update-balance pair in a single GORM transaction, per SPEC_FULL.md §4.8.
type Store struct {
	db *gorm.DB
}

// NewStore opens a MySQL connection and migrates the schema. dsn format:
// "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local".
func NewStore(dsn string) (*Store, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeConfig, "open mysql connection", err)
	}
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return nil, copyerr.Wrap(copyerr.CodeConfig, "migrate schema", err)
	}
	return &Store{db: gdb}, nil
}

// NewStoreWithDB wraps an already-opened GORM handle, migrating the schema.
func NewStoreWithDB(gdb *gorm.DB) (*Store, error) {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return nil, copyerr.Wrap(copyerr.CodeConfig, "migrate schema", err)
	}
	return &Store{db: gdb}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return copyerr.Wrap(copyerr.CodeConfig, "get underlying sql.DB", err)
	}
	return sqlDB.Close()
}

func parseAmount(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

// RecordDeposit inserts a DepositLedger entry and, if accepted, increments
// UserDepositBalance, atomically. Mirrors spec.md C10 step 4.
func (s *Store) RecordDeposit(userID uint64, c chain.Chain, token string, amount *big.Int, txHash string, accepted bool, fee *big.Int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		record := DepositLedgerRecord{
			UserID: userID, Chain: c, Token: token,
			Amount: amount.String(), TxHash: txHash, Accepted: accepted, FeeAmount: fee.String(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return copyerr.Wrap(copyerr.CodeLedgerInvariant, "insert deposit ledger", err)
		}
		if !accepted {
			return nil
		}

		var bal UserDepositBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ? AND chain = ? AND token = ?", userID, c, token).First(&bal).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			bal = UserDepositBalance{UserID: userID, Chain: c, Token: token, Amount: amount.String()}
			return tx.Create(&bal).Error
		case err != nil:
			return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch user deposit balance", err)
		default:
			newAmount := new(big.Int).Add(parseAmount(bal.Amount), amount)
			return tx.Model(&bal).Update("amount", newAmount.String()).Error
		}
	})
}

// RecordDepositRefund inserts a rejected DepositLedger entry and
// decrements UserDepositBalance, per spec.md C11's "refund of an
// unaccepted deposit is modeled as reject_deposit with optional fee,
// producing a DepositLedger(rejected)". Unlike RecordDeposit's
// accepted=false branch (which only logs a never-credited deposit),
// this refunds a balance that was previously credited, so the balance
// row must already exist and cover amount.
func (s *Store) RecordDepositRefund(userID uint64, c chain.Chain, token string, amount, fee *big.Int, txHash string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&DepositLedgerRecord{
			UserID: userID, Chain: c, Token: token,
			Amount: amount.String(), TxHash: txHash, Accepted: false, FeeAmount: fee.String(),
		}).Error; err != nil {
			return copyerr.Wrap(copyerr.CodeLedgerInvariant, "insert deposit refund ledger", err)
		}

		var bal UserDepositBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ? AND chain = ? AND token = ?", userID, c, token).First(&bal).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return copyerr.New(copyerr.CodeLedgerInvariant, "refund exceeds recorded deposit balance")
			}
			return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch user deposit balance", err)
		}
		remaining := new(big.Int).Sub(parseAmount(bal.Amount), amount)
		if remaining.Sign() < 0 {
			return copyerr.New(copyerr.CodeLedgerInvariant, "refund exceeds recorded deposit balance")
		}
		return tx.Model(&bal).Update("amount", remaining.String()).Error
	})
}

// RecordBack inserts a BackLedger entry and updates UserStrategyBalance,
// StrategyPoolAssetBalance, UserStrategyPoolAssetBalance, PoolAssetLedger,
// and UserPoolAssetLedger atomically. assets/amounts are the pool's
// deposit() call arguments; mirrors spec.md C10's "back strategy" action.
func (s *Store) RecordBack(
	userID, strategyID, poolID uint64,
	c chain.Chain,
	usdValue, sharesMinted *big.Int,
	txHash string,
	assets []string,
	amounts []*big.Int,
) error {
	if len(assets) != len(amounts) {
		return copyerr.New(copyerr.CodeLedgerInvariant, "assets and amounts length mismatch")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&BackLedgerRecord{
			UserID: userID, StrategyID: strategyID, Chain: c,
			USDValue: usdValue.String(), SharesMinted: sharesMinted.String(), TxHash: txHash,
		}).Error; err != nil {
			return copyerr.Wrap(copyerr.CodeLedgerInvariant, "insert back ledger", err)
		}

		if err := addUserStrategyShares(tx, userID, strategyID, c, sharesMinted); err != nil {
			return err
		}

		for i, token := range assets {
			amount := amounts[i]
			if err := addPoolAssetBalance(tx, poolID, token, amount, txHash); err != nil {
				return err
			}
			if err := addUserPoolAssetBalance(tx, userID, poolID, token, amount); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordExit inserts an ExitLedger entry and decrements UserStrategyBalance
// plus pool/per-user asset balances by the amounts the pool's Redeem event
// paid out. Mirrors spec.md C11.
func (s *Store) RecordExit(
	userID, strategyID, poolID uint64,
	c chain.Chain,
	sharesRedeemed, usdValue *big.Int,
	txHash string,
	assets []string,
	amounts []*big.Int,
) error {
	if len(assets) != len(amounts) {
		return copyerr.New(copyerr.CodeLedgerInvariant, "assets and amounts length mismatch")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ExitLedgerRecord{
			UserID: userID, StrategyID: strategyID, Chain: c,
			SharesRedeemed: sharesRedeemed.String(), USDValue: usdValue.String(), TxHash: txHash,
		}).Error; err != nil {
			return copyerr.Wrap(copyerr.CodeLedgerInvariant, "insert exit ledger", err)
		}

		if err := addUserStrategyShares(tx, userID, strategyID, c, new(big.Int).Neg(sharesRedeemed)); err != nil {
			return err
		}

		for i, token := range assets {
			neg := new(big.Int).Neg(amounts[i])
			if err := addPoolAssetBalance(tx, poolID, token, neg, txHash); err != nil {
				return err
			}
			if err := addUserPoolAssetBalance(tx, userID, poolID, token, neg); err != nil {
				return err
			}
		}
		return nil
	})
}

// ProRataLeg is one user's share of a copy-trade's pool asset delta, per
// spec.md C9 step 6: pro-rata distribution by share of total_supply_shares,
// with any rounding residue routed to DustAccountUserID by the caller.
type ProRataLeg struct {
	UserID uint64
	Amount *big.Int
}

// RecordCopyTrade applies one copy-trade's pool-level and per-user deltas
// in a single transaction: subtract tokenIn, add tokenOut, each split into
// pro-rata per-user legs (including the dust leg). Mirrors spec.md C9
// step 6-7 (watched-wallet balance deltas are applied by the caller via
// AdjustWatchedWalletBalance, since they are keyed by wallet address, not
// user ID).
func (s *Store) RecordCopyTrade(
	poolID uint64,
	tokenIn string, amountIn *big.Int, legsIn []ProRataLeg,
	tokenOut string, amountOut *big.Int, legsOut []ProRataLeg,
	txHash string,
) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := addPoolAssetBalance(tx, poolID, tokenIn, new(big.Int).Neg(amountIn), txHash); err != nil {
			return err
		}
		for _, leg := range legsIn {
			if err := addUserPoolAssetBalance(tx, leg.UserID, poolID, tokenIn, new(big.Int).Neg(leg.Amount)); err != nil {
				return err
			}
		}

		if err := addPoolAssetBalance(tx, poolID, tokenOut, amountOut, txHash); err != nil {
			return err
		}
		for _, leg := range legsOut {
			if err := addUserPoolAssetBalance(tx, leg.UserID, poolID, tokenOut, leg.Amount); err != nil {
				return err
			}
		}
		return nil
	})
}

// AdjustWatchedWalletBalance applies a signed delta to a watched wallet's
// holding of token, creating the row on first use.
func (s *Store) AdjustWatchedWalletBalance(strategyID uint64, c chain.Chain, address, token string, delta *big.Int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var bal WatchedWalletAssetBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("strategy_id = ? AND chain = ? AND address = ? AND token = ?", strategyID, c, address, token).First(&bal).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			return tx.Create(&WatchedWalletAssetBalance{StrategyID: strategyID, Chain: c, Address: address, Token: token, Amount: delta.String()}).Error
		case err != nil:
			return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch watched wallet balance", err)
		default:
			newAmount := new(big.Int).Add(parseAmount(bal.Amount), delta)
			return tx.Model(&bal).Update("amount", newAmount.String()).Error
		}
	})
}

func addUserStrategyShares(tx *gorm.DB, userID, strategyID uint64, c chain.Chain, delta *big.Int) error {
	var bal UserStrategyBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ? AND strategy_id = ? AND chain = ?", userID, strategyID, c).First(&bal).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		if delta.Sign() < 0 {
			return copyerr.New(copyerr.CodeLedgerInvariant, "cannot decrement shares for a user with no balance")
		}
		return tx.Create(&UserStrategyBalance{UserID: userID, StrategyID: strategyID, Chain: c, Shares: delta.String()}).Error
	case err != nil:
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch user strategy balance", err)
	default:
		newShares := new(big.Int).Add(parseAmount(bal.Shares), delta)
		if newShares.Sign() < 0 {
			return copyerr.New(copyerr.CodeLedgerInvariant, "user strategy shares would go negative")
		}
		return tx.Model(&bal).Update("shares", newShares.String()).Error
	}
}

func addPoolAssetBalance(tx *gorm.DB, poolID uint64, token string, delta *big.Int, txHash string) error {
	ledger := PoolAssetLedgerRecord{PoolID: poolID, Token: token, DeltaAmount: new(big.Int).Abs(delta).String(), IsAdd: delta.Sign() >= 0, TxHash: txHash}
	if err := tx.Create(&ledger).Error; err != nil {
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "insert pool asset ledger", err)
	}

	var bal StrategyPoolAssetBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("pool_id = ? AND token = ?", poolID, token).First(&bal).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		if delta.Sign() < 0 {
			return copyerr.New(copyerr.CodeLedgerInvariant, "cannot decrement pool asset balance with no prior balance")
		}
		return tx.Create(&StrategyPoolAssetBalance{PoolID: poolID, Token: token, Amount: delta.String()}).Error
	case err != nil:
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch pool asset balance", err)
	default:
		newAmount := new(big.Int).Add(parseAmount(bal.Amount), delta)
		if newAmount.Sign() < 0 {
			return copyerr.New(copyerr.CodeLedgerInvariant, "pool asset balance would go negative")
		}
		return tx.Model(&bal).Update("amount", newAmount.String()).Error
	}
}

func addUserPoolAssetBalance(tx *gorm.DB, userID, poolID uint64, token string, delta *big.Int) error {
	ledger := UserPoolAssetLedgerRecord{WalletID: userID, Token: token, DeltaAmount: new(big.Int).Abs(delta).String(), IsAdd: delta.Sign() >= 0}
	if err := tx.Create(&ledger).Error; err != nil {
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "insert user pool asset ledger", err)
	}

	var bal UserStrategyPoolAssetBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ? AND pool_id = ? AND token = ?", userID, poolID, token).First(&bal).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		if delta.Sign() < 0 {
			return copyerr.New(copyerr.CodeLedgerInvariant, "cannot decrement user pool asset balance with no prior balance")
		}
		return tx.Create(&UserStrategyPoolAssetBalance{UserID: userID, PoolID: poolID, Token: token, Amount: delta.String()}).Error
	case err != nil:
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch user pool asset balance", err)
	default:
		newAmount := new(big.Int).Add(parseAmount(bal.Amount), delta)
		if newAmount.Sign() < 0 {
			return copyerr.New(copyerr.CodeLedgerInvariant, "user pool asset balance would go negative")
		}
		return tx.Model(&bal).Update("amount", newAmount.String()).Error
	}
}

// GetUserDepositBalance reads a user's accepted-deposit balance for one
// (chain, token), returning 0 if no row exists yet.
func (s *Store) GetUserDepositBalance(userID uint64, c chain.Chain, token string) (*big.Int, error) {
	var bal UserDepositBalance
	err := s.db.Where("user_id = ? AND chain = ? AND token = ?", userID, c, token).First(&bal).Error
	if err == gorm.ErrRecordNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch user deposit balance", err)
	}
	return parseAmount(bal.Amount), nil
}

// GetUserStrategyShares reads a backer's current share count in a
// strategy, returning 0 if no row exists yet. Used by C11's full-redeem
// path, where the share quantity burned isn't known ahead of the call.
func (s *Store) GetUserStrategyShares(userID, strategyID uint64, c chain.Chain) (*big.Int, error) {
	var bal UserStrategyBalance
	err := s.db.Where("user_id = ? AND strategy_id = ? AND chain = ?", userID, strategyID, c).First(&bal).Error
	if err == gorm.ErrRecordNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch user strategy shares", err)
	}
	return parseAmount(bal.Shares), nil
}

// GetStrategyPoolAssetBalance reads a pool's current holding of token.
func (s *Store) GetStrategyPoolAssetBalance(poolID uint64, token string) (*big.Int, error) {
	var bal StrategyPoolAssetBalance
	err := s.db.Where("pool_id = ? AND token = ?", poolID, token).First(&bal).Error
	if err == gorm.ErrRecordNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch pool asset balance", err)
	}
	return parseAmount(bal.Amount), nil
}

// GetAllUserStrategyPoolAssetBalances returns every user's balance of
// token in pool, summed by CheckPoolAssetInvariant against the pool's own
// balance.
func (s *Store) GetAllUserStrategyPoolAssetBalances(poolID uint64, token string) ([]UserStrategyPoolAssetBalance, error) {
	var balances []UserStrategyPoolAssetBalance
	if err := s.db.Where("pool_id = ? AND token = ?", poolID, token).Find(&balances).Error; err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch all user pool asset balances", err)
	}
	return balances, nil
}

// ListStrategyPoolAssetBalances returns every token balance row recorded
// for a pool, zero balances included, the snapshot C12's R3 normalizes and checks
// a prospective trade against.
func (s *Store) ListStrategyPoolAssetBalances(poolID uint64) ([]StrategyPoolAssetBalance, error) {
	var balances []StrategyPoolAssetBalance
	if err := s.db.Where("pool_id = ?", poolID).Find(&balances).Error; err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "list strategy pool asset balances", err)
	}
	return balances, nil
}

// GetWatchedWalletAssetBalance reads one watched wallet's holding of token.
func (s *Store) GetWatchedWalletAssetBalance(strategyID uint64, c chain.Chain, address, token string) (*big.Int, error) {
	var bal WatchedWalletAssetBalance
	err := s.db.Where("strategy_id = ? AND chain = ? AND address = ? AND token = ?", strategyID, c, address, token).First(&bal).Error
	if err == gorm.ErrRecordNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch watched wallet balance", err)
	}
	return parseAmount(bal.Amount), nil
}

// GetTotalWatchedWalletValue sums every watched wallet's holding of token
// for a strategy, the denominator of C9 step 2's ratio `w`.
func (s *Store) GetTotalWatchedWalletValue(strategyID uint64, c chain.Chain, token string) (*big.Int, error) {
	var balances []WatchedWalletAssetBalance
	if err := s.db.Where("strategy_id = ? AND chain = ? AND token = ?", strategyID, c, token).Find(&balances).Error; err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch watched wallet balances", err)
	}
	total := big.NewInt(0)
	for _, b := range balances {
		total.Add(total, parseAmount(b.Amount))
	}
	return total, nil
}

// SetTokenDecimals records decimals for (chain, token) the first time it
// is seen; subsequent calls are no-ops, per SPEC_FULL.md §9: decimals are
// never overwritten once persisted.
func (s *Store) SetTokenDecimals(c chain.Chain, token string, decimals uint64) error {
	var existing TokenDecimals
	err := s.db.Where("chain = ? AND token = ?", c, token).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch token decimals", err)
	}
	return s.db.Create(&TokenDecimals{Chain: c, Token: token, Decimals: decimals}).Error
}

func (s *Store) GetTokenDecimals(c chain.Chain, token string) (uint64, error) {
	var td TokenDecimals
	err := s.db.Where("chain = ? AND token = ?", c, token).First(&td).Error
	if err != nil {
		return 0, copyerr.Wrap(copyerr.CodeLedgerInvariant, fmt.Sprintf("no decimals recorded for %s on chain %d", token, c), err)
	}
	return td.Decimals, nil
}

// SetTokenSymbol records the asset-price collaborator's symbol for
// (chain, token) the first time it is seen, same never-overwrite
// discipline as SetTokenDecimals.
func (s *Store) SetTokenSymbol(c chain.Chain, token, symbol string) error {
	var existing TokenDecimals
	err := s.db.Where("chain = ? AND token = ?", c, token).First(&existing).Error
	if err == nil {
		if existing.Symbol != "" {
			return nil
		}
		return s.db.Model(&existing).Update("symbol", symbol).Error
	}
	if err != gorm.ErrRecordNotFound {
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch token symbol", err)
	}
	return s.db.Create(&TokenDecimals{Chain: c, Token: token, Symbol: symbol}).Error
}

// GetTokenSymbol looks up the asset-price collaborator's symbol for
// (chain, token), used to price an existing pool holding in C10's
// back-strategy flow.
func (s *Store) GetTokenSymbol(c chain.Chain, token string) (string, error) {
	var td TokenDecimals
	err := s.db.Where("chain = ? AND token = ?", c, token).First(&td).Error
	if err != nil {
		return "", copyerr.Wrap(copyerr.CodeLedgerInvariant, fmt.Sprintf("no symbol recorded for %s on chain %d", token, c), err)
	}
	if td.Symbol == "" {
		return "", copyerr.New(copyerr.CodeConfig, fmt.Sprintf("no symbol recorded for %s on chain %d", token, c))
	}
	return td.Symbol, nil
}

// ListUserStrategyBalances returns every backer's share balance for a
// strategy on one chain, the input C9 step 6's pro-rata split is computed
// from.
func (s *Store) ListUserStrategyBalances(strategyID uint64, c chain.Chain) ([]UserStrategyBalance, error) {
	var balances []UserStrategyBalance
	if err := s.db.Where("strategy_id = ? AND chain = ?", strategyID, c).Find(&balances).Error; err != nil {
		return nil, copyerr.Wrap(copyerr.CodeLedgerInvariant, "list user strategy balances", err)
	}
	return balances, nil
}

// CheckTotalSupplyInvariant verifies invariant 1: Σ UserStrategyBalance(u,
// s, c) equals the pool contract's on-chain total_supply_shares.
func (s *Store) CheckTotalSupplyInvariant(strategyID uint64, c chain.Chain, totalSupplyShares *big.Int) error {
	var balances []UserStrategyBalance
	if err := s.db.Where("strategy_id = ? AND chain = ?", strategyID, c).Find(&balances).Error; err != nil {
		return copyerr.Wrap(copyerr.CodeLedgerInvariant, "fetch user strategy balances", err)
	}
	sum := big.NewInt(0)
	for _, b := range balances {
		sum.Add(sum, parseAmount(b.Shares))
	}
	if sum.Cmp(totalSupplyShares) != 0 {
		return copyerr.New(copyerr.CodeLedgerInvariant, fmt.Sprintf("Σ user shares %s != on-chain total supply %s", sum, totalSupplyShares))
	}
	return nil
}

// CheckPoolAssetInvariant verifies invariant 2: Σ
// UserStrategyPoolAssetBalance(·, pool, token) equals
// StrategyPoolAssetBalance(pool, token).
func (s *Store) CheckPoolAssetInvariant(poolID uint64, token string) error {
	poolBalance, err := s.GetStrategyPoolAssetBalance(poolID, token)
	if err != nil {
		return err
	}
	userBalances, err := s.GetAllUserStrategyPoolAssetBalances(poolID, token)
	if err != nil {
		return err
	}
	sum := big.NewInt(0)
	for _, b := range userBalances {
		sum.Add(sum, parseAmount(b.Amount))
	}
	if sum.Cmp(poolBalance) != 0 {
		return copyerr.New(copyerr.CodeLedgerInvariant, fmt.Sprintf("Σ user pool asset balance %s != pool balance %s for token %s", sum, poolBalance, token))
	}
	return nil
}
