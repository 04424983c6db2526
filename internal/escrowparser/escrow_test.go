package escrowparser

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

const erc20ABIJSON = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"}
]`

func mustERC20ABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	require.NoError(t, err)
	return parsed
}

func buildReadyTx(t *testing.T, to common.Address, data []byte) *txfetcher.ReadyTransaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.NewEIP155Signer(big.NewInt(1))
	body, err := types.SignTx(types.NewTransaction(0, to, big.NewInt(0), 60000, big.NewInt(1), data), signer, key)
	require.NoError(t, err)

	tx := txfetcher.New(body.Hash())
	tx.Body = body
	tx.Receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}
	tx.Status = txfetcher.StatusSuccessful

	ready, err := txfetcher.NewReadyTransaction(tx, signer)
	require.NoError(t, err)
	return ready
}

func TestDefaultRegistryLookup(t *testing.T) {
	r := NewDefaultRegistry()
	coin, ok := r.Lookup(chain.EthereumMainnet, common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7"))
	require.True(t, ok)
	assert.Equal(t, StableCoinUSDT, coin)

	_, ok = r.Lookup(chain.EthereumMainnet, common.HexToAddress("0x0000000000000000000000000000000000dead"))
	assert.False(t, ok)
}

func TestParseTransferDirectTransfer(t *testing.T) {
	registry := NewDefaultRegistry()
	usdt := common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7")
	contractABI := mustERC20ABI(t)

	recipient := common.HexToAddress("0x00000000000000000000000000000000000f00")
	amount := big.NewInt(500_000)
	data, err := contractABI.Pack("transfer", recipient, amount)
	require.NoError(t, err)

	ready := buildReadyTx(t, usdt, data)

	transfer, err := ParseTransfer(chain.EthereumMainnet, ready, registry, contractABI)
	require.NoError(t, err)
	assert.Equal(t, StableCoinUSDT, transfer.Token)
	assert.Equal(t, recipient, transfer.Recipient)
	assert.Equal(t, 0, transfer.Amount.Cmp(amount))
}

func TestParseTransferFrom(t *testing.T) {
	registry := NewDefaultRegistry()
	busd := common.HexToAddress("0x4Fabb145d64652a948d72533023f6E7A623C7C53")
	contractABI := mustERC20ABI(t)

	owner := common.HexToAddress("0x0000000000000000000000000000000000aaaa")
	recipient := common.HexToAddress("0x0000000000000000000000000000000000bbbb")
	amount := big.NewInt(42)
	data, err := contractABI.Pack("transferFrom", owner, recipient, amount)
	require.NoError(t, err)

	ready := buildReadyTx(t, busd, data)

	transfer, err := ParseTransfer(chain.EthereumMainnet, ready, registry, contractABI)
	require.NoError(t, err)
	assert.Equal(t, StableCoinBUSD, transfer.Token)
	assert.Equal(t, owner, transfer.Owner)
	assert.Equal(t, recipient, transfer.Recipient)
}

func TestParseTransferRejectsUnknownContract(t *testing.T) {
	registry := NewDefaultRegistry()
	contractABI := mustERC20ABI(t)
	data, err := contractABI.Pack("transfer", common.HexToAddress("0x1"), big.NewInt(1))
	require.NoError(t, err)

	ready := buildReadyTx(t, common.HexToAddress("0x000000000000000000000000000000000000ff"), data)
	_, err = ParseTransfer(chain.EthereumMainnet, ready, registry, contractABI)
	assert.Error(t, err)
}
