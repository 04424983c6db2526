package rpcpool

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/chain"
)

// newTestChainPool builds a ChainPool with a nil client, since we cannot
// dial a real RPC endpoint in unit tests. The semaphore-guard behaviour
// under test does not depend on a live client.
func newTestChainPool(capacity int64) *ChainPool {
	return &ChainPool{
		chain: chain.LocalNet,
		sem:   semaphore.NewWeighted(capacity),
	}
}

func TestAcquireBoundsConcurrency(t *testing.T) {
	pool := newTestChainPool(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	_, err = pool.Acquire(ctx)
	assert.Error(t, err, "second acquire must block until the first is released")

	first.Release()

	second, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	second.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	pool := newTestChainPool(1)

	guard, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	guard.Release()
	assert.NotPanics(t, func() { guard.Release() })

	// a slot must be available again after the single logical release
	second, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	second.Release()
}

func TestIsSupportedScheme(t *testing.T) {
	assert.True(t, isSupportedScheme("http://localhost:8545"))
	assert.True(t, isSupportedScheme("https://rpc.example.com"))
	assert.True(t, isSupportedScheme("ws://localhost:8546"))
	assert.True(t, isSupportedScheme("wss://rpc.example.com"))
	assert.False(t, isSupportedScheme("ftp://nope"))
}

func TestMultiChainPoolUnregisteredChain(t *testing.T) {
	p := NewPool()
	_, err := p.Acquire(context.Background(), chain.BscMainnet)
	assert.Error(t, err)
}
