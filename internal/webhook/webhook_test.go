package webhook

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/dexparser"
)

func TestRouterRegistryLookupMatchesChainAndAddress(t *testing.T) {
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")
	reg := NewRouterRegistry([]RouterEntry{
		{Chain: chain.BscMainnet, Address: router, Dex: dexparser.DexPancakeSwap},
	})

	dex, ok := reg.Lookup(chain.BscMainnet, router)
	require.True(t, ok)
	require.Equal(t, dexparser.DexPancakeSwap, dex)

	_, ok = reg.Lookup(chain.EthereumMainnet, router)
	require.False(t, ok, "same address on a different chain must not match")
}

func TestRouterRegistryLookupMissUnknownAddress(t *testing.T) {
	reg := NewRouterRegistry(nil)
	_, ok := reg.Lookup(chain.BscMainnet, common.HexToAddress("0x2"))
	require.False(t, ok)
}

func TestMarkSeenDeduplicatesWithinWindow(t *testing.T) {
	d := NewDispatcher(time.Minute)
	hash := common.HexToHash("0xaaaa")

	require.False(t, d.markSeen(hash), "first sighting must not be treated as a duplicate")
	require.True(t, d.markSeen(hash), "second sighting within the window must be deduplicated")
}

func TestMarkSeenAllowsReplayAfterWindowExpires(t *testing.T) {
	d := NewDispatcher(time.Millisecond)
	hash := common.HexToHash("0xbbbb")

	require.False(t, d.markSeen(hash))
	time.Sleep(5 * time.Millisecond)
	require.False(t, d.markSeen(hash), "a hash seen again after the dedup window should be treated as fresh")
}
