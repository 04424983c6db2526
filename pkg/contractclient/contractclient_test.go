package contractclient

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestFromInputsRoundTripsTransfer(t *testing.T) {
	contractABI := mustERC20ABI(t)

	to := common.HexToAddress("0x000000000000000000000000000000000000aa")
	value := big.NewInt(1_000_000)

	data, err := contractABI.Pack("transfer", to, value)
	require.NoError(t, err)

	call, err := FromInputs(contractABI, data)
	require.NoError(t, err)
	assert.Equal(t, "transfer", call.Name())

	gotTo, err := call.Param("to")
	require.NoError(t, err)
	assert.Equal(t, to, gotTo)

	gotValue, err := call.Param("value")
	require.NoError(t, err)
	assert.Equal(t, value, gotValue)
}

func TestFromInputsUnknownSelectorFails(t *testing.T) {
	contractABI := mustERC20ABI(t)
	_, err := FromInputs(contractABI, []byte{0xde, 0xad, 0xbe, 0xef, 0x00})
	assert.Error(t, err)
}

func TestFromInputsShortCalldataFails(t *testing.T) {
	contractABI := mustERC20ABI(t)
	_, err := FromInputs(contractABI, []byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestParamAnyFallsBackThroughNames(t *testing.T) {
	contractABI := mustERC20ABI(t)

	from := common.HexToAddress("0x00000000000000000000000000000000000001")
	to := common.HexToAddress("0x00000000000000000000000000000000000002")
	value := big.NewInt(42)

	data, err := contractABI.Pack("transferFrom", from, to, value)
	require.NoError(t, err)

	call, err := FromInputs(contractABI, data)
	require.NoError(t, err)

	gotFrom, err := call.ParamAny("_from", "from")
	require.NoError(t, err)
	assert.Equal(t, from, gotFrom)

	_, err = call.ParamAny("_nonexistent", "also_missing")
	assert.Error(t, err)
}

func TestDecodeTransactionViaContractClient(t *testing.T) {
	contractABI := mustERC20ABI(t)
	cc := NewContractClient(nil, common.Address{}, contractABI)

	to := common.HexToAddress("0x000000000000000000000000000000000000bb")
	value := big.NewInt(7)
	data, err := contractABI.Pack("transfer", to, value)
	require.NoError(t, err)

	decoded, err := cc.DecodeTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, "transfer", decoded.MethodName)
	assert.Equal(t, to, decoded.Params["to"])
	assert.Equal(t, value, decoded.Params["value"])
}
