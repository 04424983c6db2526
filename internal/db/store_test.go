package db

import (
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/copytradeengine/engine/internal/chain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Store{db: gormDB}, mock
}

func TestRecordDepositAccepted(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `deposit_ledger`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM `user_deposit_balance`").
		WillReturnError(gorm.ErrRecordNotFound)
	mock.ExpectExec("INSERT INTO `user_deposit_balance`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.RecordDeposit(7, 1, "0xusdc", big.NewInt(1_000_000_000_000_000), "0xtx1", true, big.NewInt(0))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDepositRejected(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `deposit_ledger`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.RecordDeposit(0, 1, "0xusdc", big.NewInt(5000), "0xtx2", false, big.NewInt(0))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddUserStrategySharesRejectsNegativeOnFirstInsert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `user_strategy_balance`").
		WillReturnError(gorm.ErrRecordNotFound)
	mock.ExpectRollback()

	err := store.db.Transaction(func(tx *gorm.DB) error {
		return addUserStrategyShares(tx, 1, 2, 1, big.NewInt(-10))
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseAmountFallsBackToZeroOnGarbage(t *testing.T) {
	require.Equal(t, big.NewInt(0), parseAmount("not-a-number"))
	require.Equal(t, big.NewInt(42), parseAmount("42"))
}

func TestGetStrategyPoolAssetBalanceDefaultsToZero(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `strategy_pool_asset_balance`").
		WillReturnError(gorm.ErrRecordNotFound)

	bal, err := store.GetStrategyPoolAssetBalance(9, "0xusdc")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), bal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTokenSymbolNotRecordedErrors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `token_decimals`").WillReturnError(gorm.ErrRecordNotFound)

	_, err := store.GetTokenSymbol(chain.BscMainnet, "0xusdc")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTokenSymbolEmptyColumnErrors(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"chain", "token", "decimals", "symbol"}).
		AddRow(chain.BscMainnet, "0xusdc", 18, "")
	mock.ExpectQuery("SELECT \\* FROM `token_decimals`").WillReturnRows(rows)

	_, err := store.GetTokenSymbol(chain.BscMainnet, "0xusdc")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
