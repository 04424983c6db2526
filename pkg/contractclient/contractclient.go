// Package contractclient implements the engine's contract call decoder
// (SPEC_FULL.md §4.4 / spec.md C4): given an ABI and raw calldata, resolve
// the called method by its 4-byte selector, decode its parameters, and
// expose them by name and by type-assertion.
//
// Grounded on the teacher's pkg/contractclient test (NewContractClient,
// DecodeTransaction, Call, TransactionData) for the public API shape, and
// on original_source's contract.rs / ContractCall (get_param,
// into_address/into_uint/into_bytes/into_array/into_tuple) for the
// decode-then-assert idiom. Per SPEC_FULL.md §9 ("Unsafe memory tricks ...
// -> define independent types and implement explicit conversion"), this
// package never reinterprets go-ethereum's abi.Method/abi.Argument types;
// it reads through go-ethereum's own decoding path and only wraps the
// result.
package contractclient

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

func callMsg(from *common.Address, to common.Address, data []byte) ethereum.CallMsg {
	msg := ethereum.CallMsg{To: &to, Data: data}
	if from != nil {
		msg.From = *from
	}
	return msg
}

// ContractClient binds an ABI to a deployed contract address and an RPC
// client, and decodes calldata directed at that contract.
type ContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewContractClient constructs a client for reading/decoding calls against
// address using abi. client may be nil when only decoding (no on-chain
// Call/TransactionData) is needed, matching tests that decode already-known
// calldata offline.
func NewContractClient(client *ethclient.Client, address common.Address, contractABI abi.ABI) *ContractClient {
	return &ContractClient{client: client, address: address, abi: contractABI}
}

// TransactionData fetches a transaction's raw input data by hash.
func (c *ContractClient) TransactionData(hash common.Hash) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("contractclient: no RPC client configured")
	}
	tx, _, err := c.client.TransactionByHash(context.Background(), hash)
	if err != nil {
		return nil, fmt.Errorf("contractclient: fetch transaction %s: %w", hash, err)
	}
	return tx.Data(), nil
}

// Call performs a read-only eth_call against methodName with args, using
// go-ethereum's BoundContract semantics via a simple manual encode/call/
// decode since this package only depends on ethclient, not bind.
func (c *ContractClient) Call(from *common.Address, methodName string, args ...interface{}) ([]interface{}, error) {
	if c.client == nil {
		return nil, fmt.Errorf("contractclient: no RPC client configured")
	}
	data, err := c.abi.Pack(methodName, args...)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack call to %s: %w", methodName, err)
	}

	msg := callMsg(from, c.address, data)
	out, err := c.client.CallContract(context.Background(), msg, nil)
	if err != nil {
		return nil, fmt.Errorf("contractclient: eth_call %s: %w", methodName, err)
	}

	return c.abi.Unpack(methodName, out)
}

// DecodedTransaction is the result of decoding raw calldata against the
// bound ABI: the resolved method name plus its parameters by name.
type DecodedTransaction struct {
	MethodName string                 `json:"methodName"`
	Params     map[string]interface{} `json:"params"`
}

// DecodeTransaction resolves data's 4-byte selector against the bound ABI
// and decodes the remaining bytes into named parameters. It fails on an
// unknown selector or a decode/type mismatch — both fatal for the single
// tx, per SPEC_FULL.md §4.4.
func (c *ContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	call, err := FromInputs(c.abi, data)
	if err != nil {
		return nil, err
	}
	return &DecodedTransaction{MethodName: call.MethodName, Params: call.params}, nil
}

// Call is a decoded contract invocation: the resolved method plus its
// parameters, accessible by name and by type-assertion. This mirrors
// original_source's ContractCall/SerializableToken, expressed as Go types
// instead of a raw-pointer reinterpretation of the ABI library's tokens.
type Call struct {
	MethodName string
	Method     abi.Method
	params     map[string]interface{}
}

// FromInputs decodes calldata against contractABI, selecting the method by
// its leading 4-byte selector. Equivalent to original_source's
// ContractCall::from_inputs(&abi, &input_data).
func FromInputs(contractABI abi.ABI, data []byte) (*Call, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("contractclient: calldata shorter than a selector (%d bytes)", len(data))
	}

	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("contractclient: unknown selector %x: %w", data[:4], err)
	}

	params := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
		return nil, fmt.Errorf("contractclient: decode params for %s: %w", method.Name, err)
	}

	return &Call{MethodName: method.Name, Method: *method, params: params}, nil
}

// Name returns the decoded method's name.
func (c *Call) Name() string { return c.MethodName }

// Param returns a decoded parameter by name, or an error if absent.
func (c *Call) Param(name string) (interface{}, error) {
	v, ok := c.params[name]
	if !ok {
		return nil, fmt.Errorf("contractclient: no parameter named %q on %s", name, c.MethodName)
	}
	return v, nil
}

// ParamAny tries each name in order, returning the first present. Mirrors
// the `.or_else(|| call.get_param("alt_name"))` fallback chains original
// DEX/escrow decoders use for parameter names that vary by ABI dialect
// (e.g. "_to" vs "to").
func (c *Call) ParamAny(names ...string) (interface{}, error) {
	for _, name := range names {
		if v, ok := c.params[name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("contractclient: none of %v present on %s", names, c.MethodName)
}
