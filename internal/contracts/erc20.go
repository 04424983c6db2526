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
	fnErc20Symbol      = "symbol"
	fnErc20Decimals    = "decimals"
	fnErc20TotalSupply = "totalSupply"
	fnErc20BalanceOf   = "balanceOf"
	fnErc20Allowance   = "allowance"
	fnErc20Approve     = "approve"
	fnErc20Transfer    = "transfer"
)

// Erc20Token wraps a deployed ERC-20 token. Grounded on
// eth-sdk/src/contract_wrappers/erc20.rs; this engine never mints/burns
// tokens (that belongs to a test-only mock contract in original_source,
// `mock_erc20.rs`, which has no counterpart here), so only the read and
// allowance/transfer surface a backer's deposit flow actually drives is
// ported.
type Erc20Token struct {
	contract *BoundContract
	client   *ethclient.Client
}

func NewErc20Token(client *ethclient.Client, address common.Address, contractABI abi.ABI) *Erc20Token {
	return &Erc20Token{contract: NewBoundContract(client, address, contractABI), client: client}
}

func (e *Erc20Token) Address() common.Address { return e.contract.Address() }

func (e *Erc20Token) Symbol(ctx context.Context) (string, error) {
	var out []interface{}
	if err := e.contract.Call(ctx, &out, fnErc20Symbol); err != nil {
		return "", copyerr.Wrap(copyerr.CodeTransientRPC, "call symbol", err)
	}
	if len(out) != 1 {
		return "", copyerr.New(copyerr.CodeDecode, "symbol: unexpected output count")
	}
	symbol, ok := out[0].(string)
	if !ok {
		return "", copyerr.New(copyerr.CodeDecode, "symbol: output is not a string")
	}
	return symbol, nil
}

func (e *Erc20Token) Decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	if err := e.contract.Call(ctx, &out, fnErc20Decimals); err != nil {
		return 0, copyerr.Wrap(copyerr.CodeTransientRPC, "call decimals", err)
	}
	if len(out) != 1 {
		return 0, copyerr.New(copyerr.CodeDecode, "decimals: unexpected output count")
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, copyerr.New(copyerr.CodeDecode, "decimals: output is not a uint8")
	}
	return decimals, nil
}

func (e *Erc20Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	return e.callUint256(ctx, fnErc20TotalSupply)
}

func (e *Erc20Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return e.callUint256(ctx, fnErc20BalanceOf, owner)
}

func (e *Erc20Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return e.callUint256(ctx, fnErc20Allowance, owner, spender)
}

func (e *Erc20Token) callUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := e.contract.Call(ctx, &out, method, args...); err != nil {
		return nil, copyerr.Wrap(copyerr.CodeTransientRPC, "call "+method, err)
	}
	if len(out) != 1 {
		return nil, copyerr.New(copyerr.CodeDecode, method+": unexpected output count")
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, copyerr.New(copyerr.CodeDecode, method+": output is not a uint256")
	}
	return n, nil
}

func (e *Erc20Token) transact(ctx context.Context, auth *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
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

// Approve submits approve(spender, amount), the step a backer's deposit
// must complete before StrategyPool.Deposit can pull funds from them.
func (e *Erc20Token) Approve(ctx context.Context, auth *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return e.transact(ctx, auth, fnErc20Approve, spender, amount)
}

func (e *Erc20Token) Transfer(ctx context.Context, auth *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return e.transact(ctx, auth, fnErc20Transfer, to, amount)
}

// ApproveAndEnsureSuccess retries approve on revert/not-found, mirroring
// eth-sdk's approve_and_ensure_success.
func (e *Erc20Token) ApproveAndEnsureSuccess(
	ctx context.Context,
	auth *bind.TransactOpts,
	signer types.Signer,
	params EnsureSuccessParams,
	spender common.Address,
	amount *big.Int,
) (*txfetcher.ReadyTransaction, error) {
	return EnsureSuccess(ctx, e.client, signer, params, func(ctx context.Context) (*types.Transaction, error) {
		return e.Approve(ctx, auth, spender, amount)
	})
}
