package deposit

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestPlatformFeeComputesBps(t *testing.T) {
	fee, err := platformFee(big.NewInt(1_000_000), 100) // 1%
	require.NoError(t, err)
	require.Equal(t, 0, fee.Cmp(big.NewInt(10_000)))
}

func TestPlatformFeeZeroBpsIsZero(t *testing.T) {
	fee, err := platformFee(big.NewInt(1_000_000), 0)
	require.NoError(t, err)
	require.Equal(t, 0, fee.Sign())
}

func TestUsdValueSumsLegsAtQuotedPrice(t *testing.T) {
	legs := []BackAsset{
		{Token: common.HexToAddress("0x1"), Symbol: "USDC", Amount: big.NewInt(100)},
		{Token: common.HexToAddress("0x2"), Symbol: "WETH", Amount: big.NewInt(2)},
	}
	prices := map[string]float64{"USDC": 1.0, "WETH": 3000.0}

	total, err := usdValue(legs, prices)
	require.NoError(t, err)
	require.Equal(t, 0, total.Cmp(big.NewInt(100+6000)))
}

func TestUsdValueMissingQuoteErrors(t *testing.T) {
	legs := []BackAsset{{Token: common.HexToAddress("0x1"), Symbol: "UNKNOWN", Amount: big.NewInt(1)}}
	_, err := usdValue(legs, map[string]float64{})
	require.Error(t, err)
}

func TestSharesToMintFirstBackerIsOneToOne(t *testing.T) {
	shares, err := sharesToMint(big.NewInt(500), big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, 0, shares.Cmp(big.NewInt(500)))
}

func TestSharesToMintProportionalToExistingPool(t *testing.T) {
	// Depositing 50 USD into a pool worth 200 USD with 1000 shares outstanding
	// should mint 50/200 * 1000 = 250 shares.
	shares, err := sharesToMint(big.NewInt(50), big.NewInt(1000), big.NewInt(200))
	require.NoError(t, err)
	require.Equal(t, 0, shares.Cmp(big.NewInt(250)))
}
