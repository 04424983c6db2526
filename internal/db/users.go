package db

import (
	"gorm.io/gorm"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/copyerr"
)

// RegisteredWalletRecord maps an on-chain (chain, address) to the
// platform user who proved ownership of it at signup, the lookup C10 step
// 1 needs to resolve a deposit's owner into a user_id.
type RegisteredWalletRecord struct {
	Chain   chain.Chain `gorm:"primaryKey"`
	Address string      `gorm:"primaryKey;type:varchar(42)"`
	UserID  uint64      `gorm:"index;not null"`
}

func (RegisteredWalletRecord) TableName() string { return "registered_wallet" }

var userModels = []interface{}{
	&RegisteredWalletRecord{},
}

// ResolveUserByWallet looks up the registered user for a (chain, address),
// per spec.md §4.10: "Resolve user_id from owner address (must be
// registered)". Returns (0, false, nil) if no registration exists.
func (s *Store) ResolveUserByWallet(c chain.Chain, address string) (uint64, bool, error) {
	var rec RegisteredWalletRecord
	err := s.db.Where("chain = ? AND address = ?", c, address).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, copyerr.Wrap(copyerr.CodeLedgerInvariant, "resolve user by wallet", err)
	}
	return rec.UserID, true, nil
}

// RegisterWallet links an on-chain address to a user.
func (s *Store) RegisterWallet(c chain.Chain, address string, userID uint64) error {
	return s.db.Create(&RegisteredWalletRecord{Chain: c, Address: address, UserID: userID}).Error
}
