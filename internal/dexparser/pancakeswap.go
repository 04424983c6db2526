// Package dexparser implements the DEX trade parser (SPEC_FULL.md §4.5 /
// spec.md C5): it recognizes a router's multicall(bytes[] data) wrapper,
// dispatches each inner call to a per-method decoder, and reconstructs
// whichever of amount_in/amount_out isn't an exact value from ERC-20
// Transfer logs in the receipt.
//
// Grounded entirely on original_source's
// watcher/dex_tracker/pancake_swap/pancake.rs (the dispatch + multicall +
// log-reconstruction algorithm) and the v2.rs/v3/{single_hop,multi_hop}.rs
// per-method decoders, and on watcher/dex_tracker/parse.rs (chain -> dex
// registry dispatch, with UniSwap/SushiSwap explicitly unsupported —
// carried forward unchanged here). PancakeSwap is the only implemented
// router family; the Dex enum is left open for future values.
package dexparser

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/txfetcher"
	"github.com/copytradeengine/engine/pkg/contractclient"
)

// Dex identifies the router family a trade was executed through.
type Dex int

const (
	DexUnknown Dex = iota
	DexPancakeSwap
)

// Version tags which PancakeSwap calling convention a single inner call
// used, preserved per-call for audit (SPEC_FULL.md §4.5: "all inner calls
// preserved for audit").
type Version int

const (
	VersionUnknown Version = iota
	VersionV2
	VersionV3SingleHop
	VersionV3MultiHop
)

// PathKind tags which shape DexPath.Hops/TokenIn/TokenOut/Fee holds.
type PathKind int

const (
	PathKindV2 PathKind = iota
	PathKindV3SingleHop
	PathKindV3MultiHop
)

// Hop is one (token, fee, token) segment of a V3 multi-hop path.
type Hop struct {
	TokenIn  common.Address
	Fee      uint32
	TokenOut common.Address
}

// DexPath normalizes the three path shapes PancakeSwap uses (a plain
// address list for V2, a single (in, fee, out) for V3 single-hop, and a
// sequence of hops for V3 multi-hop) into one type, matching
// original_source's DexPath enum.
type DexPath struct {
	Kind PathKind
	V2   []common.Address
	Hops []Hop
}

// Swap is one decoded inner call of a multicall, before amount
// reconstruction. Fields mirror original_source's Swap struct exactly:
// whichever of AmountIn/AmountOut is nil was specified only as a
// minimum/maximum and must be reconstructed from Transfer logs.
type Swap struct {
	Recipient          common.Address
	TokenIn            common.Address
	TokenOut           common.Address
	AmountIn           *big.Int
	AmountOut          *big.Int
	AmountOutMinimum   *big.Int
	AmountInMaximum    *big.Int
	Path               DexPath
}

// decodedSwap bundles a Swap with the version tag and underlying decoded
// call, since SwapCalls must be preserved per SPEC_FULL.md §4.5.
type decodedSwap struct {
	swap    Swap
	version Version
	call    *contractclient.Call
}

// PaidInNativeFlag is the sentinel recipient address PancakeSwap's router
// uses internally when the user is paid out in the chain's native asset
// rather than an ERC-20: the router, not the user, receives the wrapped
// token transfer. Ported verbatim from original_source's
// paid_in_native_flag constant.
var PaidInNativeFlag = common.HexToAddress("0x0000000000000000000000000000000000000002")

// erc20TransferSignature duplicates txfetcher's constant; kept local so
// this package doesn't need to reach into txfetcher internals for a value
// it only uses to pass through.
var erc20TransferSignature = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Trade is the normalized result of parsing a router transaction: one
// overall token_in -> token_out trade, with every inner swap call preserved
// for audit, matching SPEC_FULL.md §3's DexTrade.
type Trade struct {
	Chain          chain.Chain
	RouterContract common.Address
	Dex            Dex
	TokenIn        common.Address
	TokenOut       common.Address
	Caller         common.Address
	AmountIn       *big.Int
	AmountOut      *big.Int
	SwapCalls      []*contractclient.Call
	Paths          []DexPath
	DexVersions    []Version
}

// methodDecoder decodes one inner call into a Swap plus its version tag.
type methodDecoder func(call *contractclient.Call) (Swap, Version, error)

var methodDispatch = map[string]methodDecoder{
	"swapExactTokensForTokens": decodeSwapExactTokensForTokens,
	"swapTokensForExactTokens": decodeSwapTokensForExactTokens,
	"exactInputSingle":         decodeExactInputSingle,
	"exactOutputSingle":        decodeExactOutputSingle,
	"exactInput":               decodeExactInput,
	"exactOutput":              decodeExactOutput,
}

// ParseTrade recognizes tx as a PancakeSwap smart-router multicall and
// decodes it into a Trade. tx must be a ReadyTransaction (Successful, with
// body and receipt populated) per SPEC_FULL.md §3.
func ParseTrade(c chain.Chain, tx *txfetcher.ReadyTransaction, routerABI abi.ABI) (*Trade, error) {
	to := tx.To()
	if to == nil {
		return nil, fmt.Errorf("dexparser: transaction has no recipient (contract creation)")
	}
	caller, err := tx.From()
	if err != nil {
		return nil, fmt.Errorf("dexparser: recover caller: %w", err)
	}

	outer, err := contractclient.FromInputs(routerABI, tx.InputData())
	if err != nil {
		return nil, fmt.Errorf("dexparser: decode outer call: %w", err)
	}
	if outer.Name() != "multicall" {
		return nil, fmt.Errorf("dexparser: unsupported outer method %q (only multicall is supported)", outer.Name())
	}

	innerDataRaw, err := outer.Param("data")
	if err != nil {
		return nil, err
	}
	innerData, ok := innerDataRaw.([][]byte)
	if !ok {
		return nil, fmt.Errorf("dexparser: multicall \"data\" param has unexpected type %T", innerDataRaw)
	}

	decoded := make([]decodedSwap, 0, len(innerData))
	for i, raw := range innerData {
		innerCall, err := contractclient.FromInputs(routerABI, raw)
		if err != nil {
			return nil, fmt.Errorf("dexparser: decode multicall entry %d: %w", i, err)
		}
		decoder, ok := methodDispatch[innerCall.Name()]
		if !ok {
			return nil, fmt.Errorf("dexparser: unsupported inner method %q", innerCall.Name())
		}
		swap, version, err := decoder(innerCall)
		if err != nil {
			return nil, fmt.Errorf("dexparser: decode inner call %q: %w", innerCall.Name(), err)
		}
		decoded = append(decoded, decodedSwap{swap: swap, version: version, call: innerCall})
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("dexparser: multicall contained no swap calls")
	}

	nativeValue := tx.Value()

	for i := range decoded {
		s := &decoded[i].swap
		if s.AmountOut == nil {
			var recipient common.Address
			if s.Recipient == PaidInNativeFlag {
				recipient = *to
			} else {
				recipient = s.Recipient
			}
			amount, found := tx.AmountOfTokenReceived(s.TokenOut, recipient)
			if !found {
				return nil, fmt.Errorf("dexparser: could not reconstruct amount_out for token %s recipient %s", s.TokenOut, recipient)
			}
			s.AmountOut = amount
		}
		if s.AmountIn == nil {
			var sender common.Address
			if nativeValue != nil && nativeValue.Sign() != 0 {
				sender = *to
			} else {
				sender = caller
			}
			amount, found := tx.AmountOfTokenSent(s.TokenIn, sender)
			if !found {
				return nil, fmt.Errorf("dexparser: could not reconstruct amount_in for token %s sender %s", s.TokenIn, sender)
			}
			s.AmountIn = amount
		}
	}

	first := decoded[0].swap
	last := decoded[len(decoded)-1].swap

	calls := make([]*contractclient.Call, 0, len(decoded))
	paths := make([]DexPath, 0, len(decoded))
	versions := make([]Version, 0, len(decoded))
	for _, d := range decoded {
		calls = append(calls, d.call)
		paths = append(paths, d.swap.Path)
		versions = append(versions, d.version)
	}

	return &Trade{
		Chain:          c,
		RouterContract: *to,
		Dex:            DexPancakeSwap,
		TokenIn:        first.TokenIn,
		TokenOut:       last.TokenOut,
		Caller:         caller,
		AmountIn:       first.AmountIn,
		AmountOut:      last.AmountOut,
		SwapCalls:      calls,
		Paths:          paths,
		DexVersions:    versions,
	}, nil
}

func decodeSwapExactTokensForTokens(call *contractclient.Call) (Swap, Version, error) {
	amountIn, err := paramBigInt(call, "amountIn")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	amountOutMin, err := paramBigInt(call, "amountOutMin")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	path, err := paramAddressPath(call, "path")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	to, err := paramAddress(call, "to")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}

	return Swap{
		Recipient:        to,
		TokenIn:          path[0],
		TokenOut:         path[len(path)-1],
		AmountIn:         amountIn,
		AmountOutMinimum: amountOutMin,
		Path:             DexPath{Kind: PathKindV2, V2: path},
	}, VersionV2, nil
}

func decodeSwapTokensForExactTokens(call *contractclient.Call) (Swap, Version, error) {
	amountOut, err := paramBigInt(call, "amountOut")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	amountInMax, err := paramBigInt(call, "amountInMax")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	path, err := paramAddressPath(call, "path")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	to, err := paramAddress(call, "to")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}

	return Swap{
		Recipient:       to,
		TokenIn:         path[0],
		TokenOut:        path[len(path)-1],
		AmountOut:       amountOut,
		AmountInMaximum: amountInMax,
		Path:            DexPath{Kind: PathKindV2, V2: path},
	}, VersionV2, nil
}

// singleHopParams is the shared tuple shape of exactInputSingle/
// exactOutputSingle's sole "params" argument.
type singleHopParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              *big.Int
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOut        *big.Int
	AmountOutMinimum *big.Int
	AmountInMaximum  *big.Int
}

func decodeExactInputSingle(call *contractclient.Call) (Swap, Version, error) {
	p, err := extractSingleHopParams(call)
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	return Swap{
		Recipient:        p.Recipient,
		TokenIn:          p.TokenIn,
		TokenOut:         p.TokenOut,
		AmountIn:         p.AmountIn,
		AmountOutMinimum: p.AmountOutMinimum,
		Path: DexPath{
			Kind: PathKindV3SingleHop,
			Hops: []Hop{{TokenIn: p.TokenIn, Fee: uint32(p.Fee.Uint64()), TokenOut: p.TokenOut}},
		},
	}, VersionV3SingleHop, nil
}

func decodeExactOutputSingle(call *contractclient.Call) (Swap, Version, error) {
	p, err := extractSingleHopParams(call)
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	return Swap{
		Recipient:       p.Recipient,
		TokenIn:         p.TokenIn,
		TokenOut:        p.TokenOut,
		AmountOut:       p.AmountOut,
		AmountInMaximum: p.AmountInMaximum,
		Path: DexPath{
			Kind: PathKindV3SingleHop,
			Hops: []Hop{{TokenIn: p.TokenIn, Fee: uint32(p.Fee.Uint64()), TokenOut: p.TokenOut}},
		},
	}, VersionV3SingleHop, nil
}

// tupleField reads a named field off an ABI-tuple value. go-ethereum's
// abi.Arguments.UnpackIntoMap builds tuple results as reflect-constructed
// structs (via reflect.StructOf), so a static Go struct type can never
// type-assert against them; reflection by field name is the only stable
// way to read one back out.
func tupleField(raw interface{}, name string) (reflect.Value, bool) {
	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	f := v.FieldByName(name)
	if !f.IsValid() {
		return reflect.Value{}, false
	}
	return f, true
}

func tupleAddress(raw interface{}, name string) (common.Address, error) {
	f, ok := tupleField(raw, name)
	if !ok {
		return common.Address{}, fmt.Errorf("dexparser: tuple field %q missing", name)
	}
	a, ok := f.Interface().(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("dexparser: tuple field %q is not an address (got %s)", name, f.Type())
	}
	return a, nil
}

func tupleBigInt(raw interface{}, name string) (*big.Int, error) {
	f, ok := tupleField(raw, name)
	if !ok {
		return nil, fmt.Errorf("dexparser: tuple field %q missing", name)
	}
	n, ok := f.Interface().(*big.Int)
	if !ok {
		return nil, fmt.Errorf("dexparser: tuple field %q is not a uint256 (got %s)", name, f.Type())
	}
	return n, nil
}

func tupleBytes(raw interface{}, name string) ([]byte, error) {
	f, ok := tupleField(raw, name)
	if !ok {
		return nil, fmt.Errorf("dexparser: tuple field %q missing", name)
	}
	b, ok := f.Interface().([]byte)
	if !ok {
		return nil, fmt.Errorf("dexparser: tuple field %q is not bytes (got %s)", name, f.Type())
	}
	return b, nil
}

func extractSingleHopParams(call *contractclient.Call) (singleHopParams, error) {
	raw, err := call.Param("params")
	if err != nil {
		return singleHopParams{}, err
	}

	tokenIn, err := tupleAddress(raw, "TokenIn")
	if err != nil {
		return singleHopParams{}, err
	}
	tokenOut, err := tupleAddress(raw, "TokenOut")
	if err != nil {
		return singleHopParams{}, err
	}
	fee, err := tupleBigInt(raw, "Fee")
	if err != nil {
		return singleHopParams{}, err
	}
	recipient, err := tupleAddress(raw, "Recipient")
	if err != nil {
		return singleHopParams{}, err
	}

	p := singleHopParams{TokenIn: tokenIn, TokenOut: tokenOut, Fee: fee, Recipient: recipient}

	if v, err := tupleBigInt(raw, "AmountIn"); err == nil {
		p.AmountIn = v
	}
	if v, err := tupleBigInt(raw, "AmountOut"); err == nil {
		p.AmountOut = v
	}
	if v, err := tupleBigInt(raw, "AmountOutMinimum"); err == nil {
		p.AmountOutMinimum = v
	}
	if v, err := tupleBigInt(raw, "AmountInMaximum"); err == nil {
		p.AmountInMaximum = v
	}

	return p, nil
}

func decodeExactInput(call *contractclient.Call) (Swap, Version, error) {
	raw, err := call.Param("params")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	pathBytes, err := tupleBytes(raw, "Path")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	recipient, err := tupleAddress(raw, "Recipient")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	amountIn, err := tupleBigInt(raw, "AmountIn")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	amountOutMin, err := tupleBigInt(raw, "AmountOutMinimum")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}

	hops, err := HopsFromBytes(pathBytes)
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	return Swap{
		Recipient:        recipient,
		TokenIn:          hops[0].TokenIn,
		TokenOut:         hops[len(hops)-1].TokenOut,
		AmountIn:         amountIn,
		AmountOutMinimum: amountOutMin,
		Path:             DexPath{Kind: PathKindV3MultiHop, Hops: hops},
	}, VersionV3MultiHop, nil
}

func decodeExactOutput(call *contractclient.Call) (Swap, Version, error) {
	raw, err := call.Param("params")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	pathBytes, err := tupleBytes(raw, "Path")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	recipient, err := tupleAddress(raw, "Recipient")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	amountOut, err := tupleBigInt(raw, "AmountOut")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	amountInMax, err := tupleBigInt(raw, "AmountInMaximum")
	if err != nil {
		return Swap{}, VersionUnknown, err
	}

	hops, err := HopsFromBytes(pathBytes)
	if err != nil {
		return Swap{}, VersionUnknown, err
	}
	return Swap{
		Recipient:       recipient,
		TokenIn:         hops[0].TokenIn,
		TokenOut:        hops[len(hops)-1].TokenOut,
		AmountOut:       amountOut,
		AmountInMaximum: amountInMax,
		Path:            DexPath{Kind: PathKindV3MultiHop, Hops: hops},
	}, VersionV3MultiHop, nil
}

// HopsFromBytes parses a V3 multi-hop path: the first 20 bytes are the
// first token, then every following 23-byte chunk is (3-byte fee, 20-byte
// token). Ported verbatim from original_source's
// MultiHopPath::from_bytes.
func HopsFromBytes(path []byte) ([]Hop, error) {
	if len(path) < 43 {
		return nil, fmt.Errorf("dexparser: multi-hop path too short (%d bytes, need >= 43)", len(path))
	}
	if (len(path)-20)%23 != 0 {
		return nil, fmt.Errorf("dexparser: multi-hop path length %d is not 20 + 23*n", len(path))
	}

	firstToken := common.BytesToAddress(path[0:20])
	hopCount := (len(path) - 20) / 23

	hops := make([]Hop, 0, hopCount)
	prevToken := firstToken
	for i := 0; i < hopCount; i++ {
		start := 20 + i*23
		fee := uint32(path[start])<<16 | uint32(path[start+1])<<8 | uint32(path[start+2])
		nextToken := common.BytesToAddress(path[start+3 : start+23])
		hops = append(hops, Hop{TokenIn: prevToken, Fee: fee, TokenOut: nextToken})
		prevToken = nextToken
	}
	return hops, nil
}

func paramBigInt(call *contractclient.Call, name string) (*big.Int, error) {
	v, err := call.Param(name)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("dexparser: param %q is not a uint256 (got %T)", name, v)
	}
	return n, nil
}

func paramAddress(call *contractclient.Call, name string) (common.Address, error) {
	v, err := call.Param(name)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("dexparser: param %q is not an address (got %T)", name, v)
	}
	return a, nil
}

func paramAddressPath(call *contractclient.Call, name string) ([]common.Address, error) {
	v, err := call.Param(name)
	if err != nil {
		return nil, err
	}
	path, ok := v.([]common.Address)
	if !ok || len(path) < 2 {
		return nil, fmt.Errorf("dexparser: param %q is not a >=2-element address path (got %T)", name, v)
	}
	return path, nil
}
