package txfetcher

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken     = common.HexToAddress("0x00000000000000000000000000000000000aaa")
	testRecipient = common.HexToAddress("0x00000000000000000000000000000000000bbb")
	testSender    = common.HexToAddress("0x00000000000000000000000000000000000ccc")
)

func transferLog(token, from, to common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			erc20TransferSignature,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: amount.Bytes(),
	}
}

func readyTxWithLogs(t *testing.T, logs []*types.Log) *ReadyTransaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.NewEIP155Signer(big.NewInt(1))
	body, err := types.SignTx(
		types.NewTransaction(0, testRecipient, big.NewInt(0), 21000, big.NewInt(1), nil),
		signer, key,
	)
	require.NoError(t, err)

	tx := New(body.Hash())
	tx.Body = body
	tx.Receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: logs, BlockNumber: big.NewInt(1)}
	tx.Status = StatusSuccessful

	ready, err := NewReadyTransaction(tx, signer)
	require.NoError(t, err)
	return ready
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "successful", StatusSuccessful.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "reverted", StatusReverted.String())
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
}

func TestNewReadyTransactionRejectsNonSuccessful(t *testing.T) {
	tx := New(common.HexToHash("0x01"))
	tx.Status = StatusPending
	_, err := NewReadyTransaction(tx, types.NewEIP155Signer(big.NewInt(1)))
	assert.Error(t, err)
}

func TestNewReadyTransactionRejectsMissingReceipt(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.NewEIP155Signer(big.NewInt(1))
	body, err := types.SignTx(types.NewTransaction(0, testRecipient, big.NewInt(0), 21000, big.NewInt(1), nil), signer, key)
	require.NoError(t, err)

	tx := New(body.Hash())
	tx.Body = body
	tx.Status = StatusSuccessful

	_, err = NewReadyTransaction(tx, signer)
	assert.Error(t, err)
}

func TestAmountOfTokenReceivedMatchesRecipient(t *testing.T) {
	amount := big.NewInt(123456)
	ready := readyTxWithLogs(t, []*types.Log{
		transferLog(testToken, testSender, testRecipient, amount),
	})

	got, found := ready.AmountOfTokenReceived(testToken, testRecipient)
	require.True(t, found)
	assert.Equal(t, 0, got.Cmp(amount))

	_, found = ready.AmountOfTokenReceived(testToken, testSender)
	assert.False(t, found)
}

func TestAmountOfTokenSentMatchesSender(t *testing.T) {
	amount := big.NewInt(777)
	ready := readyTxWithLogs(t, []*types.Log{
		transferLog(testToken, testSender, testRecipient, amount),
	})

	got, found := ready.AmountOfTokenSent(testToken, testSender)
	require.True(t, found)
	assert.Equal(t, 0, got.Cmp(amount))

	_, found = ready.AmountOfTokenSent(testToken, testRecipient)
	assert.False(t, found)
}

func TestAmountOfTokenIgnoresWrongContract(t *testing.T) {
	amount := big.NewInt(1)
	otherToken := common.HexToAddress("0x00000000000000000000000000000000000ddd")
	ready := readyTxWithLogs(t, []*types.Log{
		transferLog(otherToken, testSender, testRecipient, amount),
	})

	_, found := ready.AmountOfTokenReceived(testToken, testRecipient)
	assert.False(t, found)
}

func TestFromRecoversSender(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)
	signer := types.NewEIP155Signer(big.NewInt(1))
	body, err := types.SignTx(types.NewTransaction(0, testRecipient, big.NewInt(0), 21000, big.NewInt(1), nil), signer, key)
	require.NoError(t, err)

	tx := New(body.Hash())
	tx.Body = body

	got, err := tx.From(signer)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// cached path
	got2, err := tx.From(signer)
	require.NoError(t, err)
	assert.Equal(t, want, got2)
}
