package audit

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/copyerr"
)

func TestCheckTop25RejectsUnlisted(t *testing.T) {
	e := NewEngine(nil)
	err := e.CheckTop25("0x1", 1, "SHIB", false)
	require.Error(t, err)
	require.True(t, errors.Is(err, copyerr.New(copyerr.CodeAuditViolation, "")))
}

func TestCheckTop25PassesWhitelisted(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.CheckTop25("0x1", 1, "WETH", true))
}

func TestCheckImmutableRejectsWhenTrue(t *testing.T) {
	e := NewEngine(nil)
	err := e.CheckImmutable("0x1", 5, true)
	require.Error(t, err)
	require.True(t, errors.Is(err, copyerr.New(copyerr.CodeAuditViolation, "")))
}

func TestCheckImmutablePassesWhenFalse(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.CheckImmutable("0x1", 5, false))
}

func TestCheckAssetCapPassesWithinLimit(t *testing.T) {
	e := NewEngine(nil)
	balances := []AssetBalance{
		{Token: "WETH", Amount: uint256.NewInt(90)},
		{Token: "USDC", Amount: uint256.NewInt(10)},
	}
	// adding 0 to USDC: 10/100 = 10%, not > 10%, should pass
	err := e.CheckAssetCap("0x1", 1, "USDC", balances, uint256.NewInt(0))
	require.NoError(t, err)
}

func TestCheckAssetCapRejectsOverLimit(t *testing.T) {
	e := NewEngine(nil)
	balances := []AssetBalance{
		{Token: "WETH", Amount: uint256.NewInt(80)},
		{Token: "USDC", Amount: uint256.NewInt(10)},
	}
	// adding 10 to USDC: (10+10)/100 = 20% > 10%
	err := e.CheckAssetCap("0x1", 1, "USDC", balances, uint256.NewInt(10))
	require.Error(t, err)
	require.True(t, errors.Is(err, copyerr.New(copyerr.CodeAuditViolation, "")))
}

func TestCheckAssetCapHandlesNewToken(t *testing.T) {
	e := NewEngine(nil)
	balances := []AssetBalance{
		{Token: "WETH", Amount: uint256.NewInt(100)},
	}
	err := e.CheckAssetCap("0x1", 1, "DAI", balances, uint256.NewInt(50))
	require.Error(t, err) // 50/150 = 33% > 10%
}

func TestCheckWalletSameNetworkRejectsMismatch(t *testing.T) {
	e := NewEngine(nil)
	err := e.CheckWalletSameNetwork("0x1", 1, chain.EthereumMainnet, chain.BscMainnet)
	require.Error(t, err)
	require.True(t, errors.Is(err, copyerr.New(copyerr.CodeAuditViolation, "")))
}

func TestCheckWalletSameNetworkPassesMatch(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.CheckWalletSameNetwork("0x1", 1, chain.BscMainnet, chain.BscMainnet))
}
