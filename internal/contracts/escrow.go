package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/copytradeengine/engine/internal/copyerr"
	"github.com/copytradeengine/engine/internal/txfetcher"
)

const (
	fnAcceptDeposit      = "acceptDeposit"
	fnRejectDeposit      = "rejectDeposit"
	fnTransferAssetsFrom = "transferAssetsFrom"
	fnEscrowOwner        = "owner"
	fnTransferOwnership  = "transferOwnership"
)

// Escrow wraps a deployed Escrow contract: the custody point deposits are
// staged into before a backer's strategy pool accepts them. Grounded on
// contract_wrappers/new_escrow.rs.
type Escrow struct {
	contract *BoundContract
	client   *ethclient.Client
}

func NewEscrow(client *ethclient.Client, address common.Address, contractABI abi.ABI) *Escrow {
	return &Escrow{contract: NewBoundContract(client, address, contractABI), client: client}
}

func (e *Escrow) Address() common.Address { return e.contract.Address() }

func (e *Escrow) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := e.contract.Call(ctx, &out, fnEscrowOwner); err != nil {
		return common.Address{}, copyerr.Wrap(copyerr.CodeTransientRPC, "call owner", err)
	}
	if len(out) != 1 {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, "owner: unexpected output count")
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, copyerr.New(copyerr.CodeDecode, "owner: output is not an address")
	}
	return addr, nil
}

func (e *Escrow) transact(ctx context.Context, auth *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	if auth.GasPrice == nil {
		price, err := gasPrice(ctx, e.client)
		if err != nil {
			return nil, err
		}
		auth.GasPrice = price
	}
	tx, err := e.contract.Transact(ctx, auth, method, args...)
	if err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "transact "+method, err)
	}
	return tx, nil
}

// AcceptDeposit submits acceptDeposit(proprietor, asset, amount):
// finalizes a staged deposit into the owning strategy pool.
func (e *Escrow) AcceptDeposit(ctx context.Context, auth *bind.TransactOpts, proprietor, asset common.Address, amount *big.Int) (*types.Transaction, error) {
	return e.transact(ctx, auth, fnAcceptDeposit, proprietor, asset, amount)
}

// RejectDeposit submits rejectDeposit(proprietor, asset, depositAmount,
// feeRecipient, feeAmount): returns a staged deposit to its depositor,
// optionally carving out a fee paid to feeRecipient, instead of accepting
// it.
func (e *Escrow) RejectDeposit(
	ctx context.Context,
	auth *bind.TransactOpts,
	proprietor, asset common.Address,
	depositAmount *big.Int,
	feeRecipient common.Address,
	feeAmount *big.Int,
) (*types.Transaction, error) {
	return e.transact(ctx, auth, fnRejectDeposit, proprietor, asset, depositAmount, feeRecipient, feeAmount)
}

// TransferAssetsFrom submits transferAssetsFrom(from, asset, amount): moves
// escrowed assets out on behalf of an already-approved owner, used for
// exit/refund settlement (C11).
func (e *Escrow) TransferAssetsFrom(ctx context.Context, auth *bind.TransactOpts, from, asset common.Address, amount *big.Int) (*types.Transaction, error) {
	return e.transact(ctx, auth, fnTransferAssetsFrom, from, asset, amount)
}

func (e *Escrow) TransferOwnership(ctx context.Context, auth *bind.TransactOpts, newOwner common.Address) (*types.Transaction, error) {
	return e.transact(ctx, auth, fnTransferOwnership, newOwner)
}

// AcceptDepositAndEnsureSuccess retries acceptDeposit on revert/not-found
// until the transfer lands, matching the submit/wait/retry shape of
// original_source's *_and_ensure_success helpers.
func (e *Escrow) AcceptDepositAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	proprietor, asset common.Address,
	amount *big.Int,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, e.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return e.AcceptDeposit(ctx, auth, proprietor, asset, amount)
	})
}

// RejectDepositAndEnsureSuccess is the reject-path counterpart, used by
// C10 to return a deposit from an unregistered wallet and by C11 to
// refund a deposit.
func (e *Escrow) RejectDepositAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	proprietor, asset common.Address,
	depositAmount *big.Int,
	feeRecipient common.Address,
	feeAmount *big.Int,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, e.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return e.RejectDeposit(ctx, auth, proprietor, asset, depositAmount, feeRecipient, feeAmount)
	})
}
