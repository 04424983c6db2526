package copytrade

import (
	"context"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/db"
	"github.com/copytradeengine/engine/internal/dexparser"
)

func newMockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	store, err := db.NewStoreWithDB(gormDB)
	require.NoError(t, err)

	return &Engine{Store: store}, mock
}

func TestHandleTradeIgnoresUntrackedWallet(t *testing.T) {
	engine, mock := newMockEngine(t)

	mock.ExpectQuery("SELECT \\* FROM `watched_wallet`").WillReturnError(gorm.ErrRecordNotFound)

	trade := &dexparser.Trade{
		Chain:  chain.BscMainnet,
		Caller: common.HexToAddress("0xAbC0000000000000000000000000000000Abc0"),
	}

	err := engine.HandleTrade(context.Background(), trade)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProRataLegsSplitsByShareAndRoutesDustToSentinel(t *testing.T) {
	balances := []db.UserStrategyBalance{
		{UserID: 1, Shares: "60"},
		{UserID: 2, Shares: "30"},
		{UserID: 3, Shares: "0"},
	}
	totalSupply := big.NewInt(100)
	delta := big.NewInt(97)

	legs := proRataLegs(balances, totalSupply, delta)

	sum := big.NewInt(0)
	sawDust := false
	for _, leg := range legs {
		if leg.UserID == db.DustAccountUserID {
			sawDust = true
		}
		sum.Add(sum, leg.Amount)
	}
	require.True(t, sawDust, "expected a dust leg since 97 does not split evenly by 60/30 shares")
	require.Equal(t, 0, sum.Cmp(delta), "legs (including dust) must sum back to the full delta")
}

func TestProRataLegsZeroShareUserGetsNoLeg(t *testing.T) {
	balances := []db.UserStrategyBalance{
		{UserID: 1, Shares: "0"},
	}
	legs := proRataLegs(balances, big.NewInt(100), big.NewInt(50))

	for _, leg := range legs {
		require.NotEqual(t, uint64(1), leg.UserID, "a user with zero shares should not receive a leg")
	}
}

func TestProRataLegsZeroTotalSupplyReturnsNil(t *testing.T) {
	legs := proRataLegs(nil, big.NewInt(0), big.NewInt(50))
	require.Nil(t, legs)
}

func TestEstimateAmountOutScalesByRatio(t *testing.T) {
	trade := &dexparser.Trade{
		AmountIn:  big.NewInt(1000),
		AmountOut: big.NewInt(2000),
	}
	out, err := estimateAmountOut(trade, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, 0, out.Cmp(big.NewInt(200)))
}

func TestEstimateAmountOutZeroAmountInReturnsZero(t *testing.T) {
	trade := &dexparser.Trade{
		AmountIn:  big.NewInt(0),
		AmountOut: big.NewInt(2000),
	}
	out, err := estimateAmountOut(trade, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, 0, out.Sign())
}
