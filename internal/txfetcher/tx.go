// Package txfetcher implements the engine's transaction fetch/classify/
// confirm machinery (SPEC_FULL.md §4.2 / spec.md C2).
//
// Grounded on original_source's tracker/tx.rs (Tx/TxStatus, update, the
// amount_of_token_received/amount_of_token_sent log-scanning helpers) and
// eth-sdk/utils.rs (wait_for_confirmations, wait_for_confirmations_simple).
package txfetcher

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/copytradeengine/engine/internal/copyerr"
)

// Status classifies a transaction's lifecycle state, forming the DAG
// described in SPEC_FULL.md §3: Unknown -> {NotFound, Pending, Successful,
// Reverted}; Pending -> {Successful, Reverted, NotFound}.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccessful
	StatusPending
	StatusReverted
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusPending:
		return "pending"
	case StatusReverted:
		return "reverted"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Transaction tracks the mutable fetch state of a single tx hash. Only
// update(conn) advances it; fields are nil/zero until populated.
type Transaction struct {
	Hash        common.Hash
	Body        *types.Transaction
	Receipt     *types.Receipt
	Status      Status
	senderCache *common.Address
}

// New starts tracking hash with Status unknown.
func New(hash common.Hash) *Transaction {
	return &Transaction{Hash: hash, Status: StatusUnknown}
}

// Update performs one fetch cycle: fetch the transaction body; if it's
// absent, mark NotFound. If present but not yet mined, mark Pending and
// return. Otherwise fetch the receipt and classify Successful/Reverted.
func (tx *Transaction) Update(ctx context.Context, client *ethclient.Client) error {
	body, isPending, err := client.TransactionByHash(ctx, tx.Hash)
	if err != nil {
		if err.Error() == "not found" {
			tx.Status = StatusNotFound
			return nil
		}
		return copyerr.Wrap(copyerr.CodeTransientRPC, "fetch transaction body", err)
	}
	tx.Body = body

	if isPending {
		tx.Status = StatusPending
		return nil
	}

	receipt, err := client.TransactionReceipt(ctx, tx.Hash)
	if err != nil {
		tx.Status = StatusNotFound
		return nil
	}
	tx.Receipt = receipt

	if receipt.Status == types.ReceiptStatusSuccessful {
		tx.Status = StatusSuccessful
	} else {
		tx.Status = StatusReverted
	}
	return nil
}

// From returns the tx sender, recovered from signature once and cached.
func (tx *Transaction) From(signer types.Signer) (common.Address, error) {
	if tx.senderCache != nil {
		return *tx.senderCache, nil
	}
	if tx.Body == nil {
		return common.Address{}, fmt.Errorf("txfetcher: transaction body not yet fetched")
	}
	from, err := types.Sender(signer, tx.Body)
	if err != nil {
		return common.Address{}, fmt.Errorf("txfetcher: recover sender: %w", err)
	}
	tx.senderCache = &from
	return from, nil
}

// To returns the tx recipient (nil for contract creation).
func (tx *Transaction) To() *common.Address {
	if tx.Body == nil {
		return nil
	}
	return tx.Body.To()
}

// ReadyTransaction is the refinement proving Status == Successful and both
// Body and Receipt are populated, per SPEC_FULL.md §3. Only it exposes the
// accessors mutation pipelines are allowed to read from.
type ReadyTransaction struct {
	tx     *Transaction
	signer types.Signer
}

func (r *ReadyTransaction) Hash() common.Hash       { return r.tx.Hash }
func (r *ReadyTransaction) Body() *types.Transaction { return r.tx.Body }
func (r *ReadyTransaction) Receipt() *types.Receipt  { return r.tx.Receipt }
func (r *ReadyTransaction) Value() *big.Int          { return r.tx.Body.Value() }
func (r *ReadyTransaction) InputData() []byte        { return r.tx.Body.Data() }
func (r *ReadyTransaction) To() *common.Address      { return r.tx.To() }

func (r *ReadyTransaction) From() (common.Address, error) {
	return r.tx.From(r.signer)
}

func (r *ReadyTransaction) Logs() []*types.Log {
	return r.tx.Receipt.Logs
}

// NewReadyTransaction validates tx is Successful with both Body and Receipt
// populated and wraps it as a ReadyTransaction. This is the only way to
// construct one outside of WaitReady, used when a Transaction was already
// brought to Successful status by some other path (e.g. rehydrated from a
// cache) and needs to be handed to code that requires the refinement.
func NewReadyTransaction(tx *Transaction, signer types.Signer) (*ReadyTransaction, error) {
	if tx.Status != StatusSuccessful {
		return nil, fmt.Errorf("txfetcher: transaction %s is not successful (status=%s)", tx.Hash, tx.Status)
	}
	if tx.Body == nil || tx.Receipt == nil {
		return nil, fmt.Errorf("txfetcher: transaction %s missing body or receipt", tx.Hash)
	}
	return &ReadyTransaction{tx: tx, signer: signer}, nil
}

// erc20TransferSignature is keccak256("Transfer(address,address,uint256)").
var erc20TransferSignature = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// AmountOfTokenReceived scans the receipt logs for an ERC-20 Transfer event
// of tokenContract paid to recipient, returning the transferred amount.
// Mirrors original_source's Tx::amount_of_token_received exactly: topic[0]
// must be the Transfer signature, topic layout is
// (signature, from, to), log.Address must equal tokenContract, and the
// recovered `to` (last 20 bytes of topic[2]) must equal recipient.
func (r *ReadyTransaction) AmountOfTokenReceived(tokenContract, recipient common.Address) (*big.Int, bool) {
	for _, log := range r.Logs() {
		if len(log.Topics) < 3 {
			continue
		}
		if log.Topics[0] != erc20TransferSignature {
			continue
		}
		if log.Address != tokenContract {
			continue
		}
		to := common.BytesToAddress(log.Topics[2].Bytes()[12:])
		if to != recipient {
			continue
		}
		return new(big.Int).SetBytes(log.Data), true
	}
	return nil, false
}

// AmountOfTokenSent is the symmetric counterpart of AmountOfTokenReceived,
// matching on topic[1] (the `from` address) instead of topic[2].
func (r *ReadyTransaction) AmountOfTokenSent(tokenContract, sender common.Address) (*big.Int, bool) {
	for _, log := range r.Logs() {
		if len(log.Topics) < 3 {
			continue
		}
		if log.Topics[0] != erc20TransferSignature {
			continue
		}
		if log.Address != tokenContract {
			continue
		}
		from := common.BytesToAddress(log.Topics[1].Bytes()[12:])
		if from != sender {
			continue
		}
		return new(big.Int).SetBytes(log.Data), true
	}
	return nil, false
}

// WaitReady polls for a receipt, verifies it isn't reverted, waits for the
// requested confirmation depth, and re-checks the status before returning a
// ReadyTransaction. Mirrors original_source's wait_for_confirmations.
func WaitReady(
	ctx context.Context,
	client *ethclient.Client,
	hash common.Hash,
	signer types.Signer,
	pollInterval time.Duration,
	maxRetry int,
	confirmations uint64,
) (*ReadyTransaction, error) {
	var receipt *types.Receipt
	for i := 0; i < maxRetry; i++ {
		r, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			receipt = r
			break
		}
		select {
		case <-ctx.Done():
			return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "wait_ready cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	if receipt == nil {
		return nil, copyerr.New(copyerr.CodeNotFound, fmt.Sprintf("transaction %s not found within %d retries", hash, maxRetry))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, copyerr.New(copyerr.CodeReverted, fmt.Sprintf("transaction %s reverted", hash))
	}

	receiptBlock := receipt.BlockNumber.Uint64()
	for {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "fetch head block number", err)
		}
		if head-receiptBlock >= confirmations {
			break
		}
		select {
		case <-ctx.Done():
			return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "wait for confirmations cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	finalReceipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeNotFound, "transaction vanished after confirmations", err)
	}
	if finalReceipt.Status != types.ReceiptStatusSuccessful {
		return nil, copyerr.New(copyerr.CodeRevertedAfterConfirmations, fmt.Sprintf("transaction %s reverted after confirmations", hash))
	}

	body, _, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeNotFound, "refetch transaction body after confirmations", err)
	}

	tx := &Transaction{Hash: hash, Body: body, Receipt: finalReceipt, Status: StatusSuccessful}
	return &ReadyTransaction{tx: tx, signer: signer}, nil
}

// FetchStatus performs the single-shot lookup described in SPEC_FULL.md
// §4.2: one tx lookup, one receipt lookup if mined, return classified
// status. Unlike WaitReady it never polls for confirmations.
func FetchStatus(ctx context.Context, client *ethclient.Client, hash common.Hash) (*Transaction, error) {
	tx := New(hash)
	if err := tx.Update(ctx, client); err != nil {
		return nil, err
	}
	return tx, nil
}
