package dexparser

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/txfetcher"
)

const smartRouterABIJSON = `[
	{"type":"function","name":"multicall","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[{"name":"","type":"bytes[]"}],"stateMutability":"payable"},
	{"type":"function","name":"swapExactTokensForTokens","inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"exactInputSingle","inputs":[
		{"name":"params","type":"tuple","components":[
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"fee","type":"uint24"},
			{"name":"recipient","type":"address"},
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOutMinimum","type":"uint256"},
			{"name":"sqrtPriceLimitX96","type":"uint160"}
		]}
	],"outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"payable"},
	{"type":"function","name":"exactInput","inputs":[
		{"name":"params","type":"tuple","components":[
			{"name":"path","type":"bytes"},
			{"name":"recipient","type":"address"},
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOutMinimum","type":"uint256"}
		]}
	],"outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"payable"}
]`

func mustSmartRouterABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(smartRouterABIJSON))
	require.NoError(t, err)
	return parsed
}

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000b2")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000c3")
)

func transferLog(token, from, to common.Address, amount *big.Int) *types.Log {
	topics := []common.Hash{
		erc20TransferSignature,
		common.BytesToHash(from.Bytes()),
		common.BytesToHash(to.Bytes()),
	}
	return &types.Log{Address: token, Topics: topics, Data: amount.Bytes()}
}

func buildReadyTx(t *testing.T, routerABI abi.ABI, router common.Address, data []byte, value *big.Int, logs []*types.Log) (*txfetcher.ReadyTransaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	if value == nil {
		value = big.NewInt(0)
	}
	signer := types.NewEIP155Signer(big.NewInt(1))
	body, err := types.SignTx(types.NewTransaction(0, router, value, 200000, big.NewInt(1), data), signer, key)
	require.NoError(t, err)

	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: logs, BlockNumber: big.NewInt(100)}

	tx := txfetcher.New(body.Hash())
	tx.Body = body
	tx.Receipt = receipt
	tx.Status = txfetcher.StatusSuccessful

	ready, err := txfetcher.NewReadyTransaction(tx, signer)
	require.NoError(t, err)
	return ready, from
}

func TestParseTradeV2SingleSwap(t *testing.T) {
	routerABI := mustSmartRouterABI(t)
	router := common.HexToAddress("0x00000000000000000000000000000000000d00")

	amountIn := big.NewInt(1_000_000)
	amountOutMin := big.NewInt(1)

	path := []common.Address{tokenA, tokenB}

	recipient := common.HexToAddress("0x00000000000000000000000000000000000f00")
	innerData, err := routerABI.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, recipient)
	require.NoError(t, err)

	outerData, err := routerABI.Pack("multicall", [][]byte{innerData})
	require.NoError(t, err)

	amountOut := big.NewInt(2_000_000)
	logs := []*types.Log{
		transferLog(tokenB, router, recipient, amountOut),
	}

	ready, caller := buildReadyTx(t, routerABI, router, outerData, nil, logs)
	// amount_in is specified exactly by the call, so no Transfer-log lookup
	// for tokenA/caller is required to be present.
	_ = caller

	trade, err := ParseTrade(chain.BscMainnet, ready, routerABI)
	require.NoError(t, err)

	assert.Equal(t, DexPancakeSwap, trade.Dex)
	assert.Equal(t, tokenA, trade.TokenIn)
	assert.Equal(t, tokenB, trade.TokenOut)
	assert.Equal(t, 0, trade.AmountIn.Cmp(amountIn))
	assert.Equal(t, 0, trade.AmountOut.Cmp(amountOut))
	assert.Len(t, trade.SwapCalls, 1)
	assert.Equal(t, []Version{VersionV2}, trade.DexVersions)
}

func TestHopsFromBytesTwoHops(t *testing.T) {
	path := append([]byte{}, tokenA.Bytes()...)
	path = append(path, 0x00, 0x0b, 0xb8) // fee 3000
	path = append(path, tokenB.Bytes()...)
	path = append(path, 0x00, 0x01, 0xf4) // fee 500
	path = append(path, tokenC.Bytes()...)

	hops, err := HopsFromBytes(path)
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.Equal(t, tokenA, hops[0].TokenIn)
	assert.Equal(t, uint32(3000), hops[0].Fee)
	assert.Equal(t, tokenB, hops[0].TokenOut)
	assert.Equal(t, tokenB, hops[1].TokenIn)
	assert.Equal(t, uint32(500), hops[1].Fee)
	assert.Equal(t, tokenC, hops[1].TokenOut)
}

func TestHopsFromBytesRejectsBadLength(t *testing.T) {
	_, err := HopsFromBytes(make([]byte, 50))
	assert.Error(t, err)
}

func TestParseTradeRejectsUnsupportedOuterMethod(t *testing.T) {
	routerABI := mustSmartRouterABI(t)
	router := common.HexToAddress("0x00000000000000000000000000000000000d01")

	innerData, err := routerABI.Pack("swapExactTokensForTokens", big.NewInt(1), big.NewInt(1), []common.Address{tokenA, tokenB}, router)
	require.NoError(t, err)

	ready, _ := buildReadyTx(t, routerABI, router, innerData, nil, nil)
	_, err = ParseTrade(chain.BscMainnet, ready, routerABI)
	assert.Error(t, err)
}
