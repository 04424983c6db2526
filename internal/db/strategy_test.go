package db

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/copytradeengine/engine/internal/chain"
)

func TestFindStrategyByWatchedWalletNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `watched_wallet`").WillReturnError(gorm.ErrRecordNotFound)

	_, found, err := store.FindStrategyByWatchedWallet(chain.BscMainnet, "0xabc")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddWatchedWalletRejectsWhenImmutable(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "expert_user_id", "name", "approved", "immutable_after_first_back", "platform_fee_bps", "expert_fee_bps", "swap_fee_bps", "audit_rule_ids", "created_at"}).
		AddRow(1, 2, "momentum", true, true, 100, 200, 30, "1,2,3,4", nil)
	mock.ExpectQuery("SELECT \\* FROM `strategy`").WillReturnRows(rows)

	err := store.AddWatchedWallet(1, chain.BscMainnet, "0xabc")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveUserByWalletUnregistered(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `registered_wallet`").WillReturnError(gorm.ErrRecordNotFound)

	_, found, err := store.ResolveUserByWallet(chain.EthereumMainnet, "0xdead")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}
