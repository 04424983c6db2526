package exit

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
)

type stubPriceSource struct {
	prices map[string]float64
}

func (s stubPriceSource) GetUSDPriceLatest(ctx context.Context, symbols []string) (map[string]float64, error) {
	return s.prices, nil
}

func newMockExitEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
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

	return &Engine{Store: store, Price: stubPriceSource{prices: map[string]float64{"USDC": 1.0, "WETH": 3000.0}}}, mock
}

func TestUsdLegValueAppliesRate(t *testing.T) {
	out := usdLegValue(big.NewInt(2), 3000.0)
	require.Equal(t, 0, out.Cmp(big.NewInt(6000)))
}

func TestUsdLegValueZeroAmountIsZero(t *testing.T) {
	out := usdLegValue(big.NewInt(0), 3000.0)
	require.Equal(t, 0, out.Sign())
}

func TestPriceLegsEmptyPayoutIsZero(t *testing.T) {
	engine, _ := newMockExitEngine(t)
	total, err := engine.priceLegs(context.Background(), chain.BscMainnet, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, total.Sign())
}

func TestPriceLegsSumsAtQuotedRate(t *testing.T) {
	engine, mock := newMockExitEngine(t)

	rows := sqlmock.NewRows([]string{"chain", "token", "decimals", "symbol"}).
		AddRow(chain.BscMainnet, "0xusdc", 6, "USDC")
	mock.ExpectQuery("SELECT \\* FROM `token_decimals`").WillReturnRows(rows)

	assets := []common.Address{common.HexToAddress("0xusdc")}
	amounts := []*big.Int{big.NewInt(500)}

	total, err := engine.priceLegs(context.Background(), chain.BscMainnet, assets, amounts)
	require.NoError(t, err)
	require.Equal(t, 0, total.Cmp(big.NewInt(500)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceLegsMissingSymbolErrors(t *testing.T) {
	engine, mock := newMockExitEngine(t)

	mock.ExpectQuery("SELECT \\* FROM `token_decimals`").WillReturnError(gorm.ErrRecordNotFound)

	assets := []common.Address{common.HexToAddress("0xusdc")}
	amounts := []*big.Int{big.NewInt(500)}

	_, err := engine.priceLegs(context.Background(), chain.BscMainnet, assets, amounts)
	require.Error(t, err)
}
