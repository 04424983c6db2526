// Package rpcpool implements the engine's RPC connection pool (SPEC_FULL.md
// §4.1 / spec.md C1): a per-chain, bounded-concurrency pool of EVM JSON-RPC
// clients, transport chosen by URL scheme.
//
// Grounded on original_source's two RPC pool variants
// (eth-sdk/rpc_provider/pool.rs, a deadpool-managed pool, and
// trade_watcher/rpc_provider/{pool,connection}.rs, a raw
// Semaphore+OwnedSemaphorePermit pool). Go has neither deadpool nor an
// async-aware connection-pool crate in the teacher's stack, so this package
// follows the simpler semaphore-guard shape: one *ethclient.Client per
// chain (go-ethereum's client is already safe for concurrent use across
// goroutines) gated by a weighted semaphore sized to
// max_concurrent_requests, using golang.org/x/sync/semaphore exactly as
// it is already an indirect dependency of go-ethereum.
package rpcpool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/semaphore"

	"github.com/copytradeengine/engine/internal/chain"
)

// ChainPool is a bounded-concurrency handle to a single chain's RPC
// endpoint. Acquisition returns a Guard; Go has no RAII, so callers must
// explicitly Release (typically via defer).
type ChainPool struct {
	chain  chain.Chain
	client *ethclient.Client
	sem    *semaphore.Weighted
}

// Guard wraps an acquired client slot. Release must be called exactly once.
type Guard struct {
	Client *ethclient.Client
	sem    *semaphore.Weighted
	once   sync.Once
}

// Release returns the slot to the pool. Safe to call more than once; only
// the first call has an effect.
func (g *Guard) Release() {
	g.once.Do(func() {
		g.sem.Release(1)
	})
}

// NewChainPool dials rpcURL with a transport chosen by scheme
// (http(s)/ws(s)) and bounds concurrent acquisitions to maxConcurrent.
func NewChainPool(ctx context.Context, c chain.Chain, rpcURL string, maxConcurrent int64) (*ChainPool, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("rpcpool: max_concurrent_requests must be positive, got %d", maxConcurrent)
	}
	if !isSupportedScheme(rpcURL) {
		return nil, fmt.Errorf("rpcpool: unsupported RPC URL scheme in %q (want http(s):// or ws(s)://)", rpcURL)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("rpcpool: dial %s: %w", rpcURL, err)
	}

	return &ChainPool{
		chain:  c,
		client: client,
		sem:    semaphore.NewWeighted(maxConcurrent),
	}, nil
}

func isSupportedScheme(url string) bool {
	for _, scheme := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

// Acquire blocks until a slot is available or ctx is cancelled.
func (p *ChainPool) Acquire(ctx context.Context) (*Guard, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("rpcpool: acquire guard for %s: %w", p.chain, err)
	}
	return &Guard{Client: p.client, sem: p.sem}, nil
}

// Close releases the underlying client. The pool must not be used after
// Close.
func (p *ChainPool) Close() {
	p.client.Close()
}

// Pool is the top-level, multi-chain RPC pool populated at startup from a
// (Chain -> URL) mapping (SPEC_FULL.md §6 configuration).
type Pool struct {
	mu     sync.RWMutex
	chains map[chain.Chain]*ChainPool
}

// NewPool constructs an empty multi-chain pool.
func NewPool() *Pool {
	return &Pool{chains: make(map[chain.Chain]*ChainPool)}
}

// Register adds a chain's pool, dialing its RPC endpoint.
func (p *Pool) Register(ctx context.Context, c chain.Chain, rpcURL string, maxConcurrent int64) error {
	cp, err := NewChainPool(ctx, c, rpcURL, maxConcurrent)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chains[c] = cp
	return nil
}

// Acquire returns a guard for the given chain's pool.
func (p *Pool) Acquire(ctx context.Context, c chain.Chain) (*Guard, error) {
	p.mu.RLock()
	cp, ok := p.chains[c]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rpcpool: no pool registered for chain %s", c)
	}
	return cp.Acquire(ctx)
}

// Close tears down every registered chain pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cp := range p.chains {
		cp.Close()
	}
}
