package resequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/dexparser"
)

func TestDrainReleasesInBlockThenTxIndexOrder(t *testing.T) {
	s := NewSequencer(0) // zero window: everything eligible immediately

	s.Submit("bsc:0xwallet", &Item{BlockNumber: 10, TxIndex: 2, Trade: &dexparser.Trade{}})
	s.Submit("bsc:0xwallet", &Item{BlockNumber: 9, TxIndex: 5, Trade: &dexparser.Trade{}})
	s.Submit("bsc:0xwallet", &Item{BlockNumber: 10, TxIndex: 0, Trade: &dexparser.Trade{}})

	items := s.Drain("bsc:0xwallet")
	require.Len(t, items, 3)
	require.Equal(t, uint64(9), items[0].BlockNumber)
	require.Equal(t, uint64(10), items[1].BlockNumber)
	require.Equal(t, uint(0), items[1].TxIndex)
	require.Equal(t, uint64(10), items[2].BlockNumber)
	require.Equal(t, uint(2), items[2].TxIndex)
}

func TestDrainWithholdsItemsStillWithinWindow(t *testing.T) {
	s := NewSequencer(time.Hour)
	s.Submit("bsc:0xwallet", &Item{BlockNumber: 1, TxIndex: 0, Trade: &dexparser.Trade{}})

	items := s.Drain("bsc:0xwallet")
	require.Empty(t, items, "an item inserted just now should not be released under a long flush window")
}

func TestDrainReleasesAfterWindowElapses(t *testing.T) {
	s := NewSequencer(5 * time.Millisecond)
	s.Submit("bsc:0xwallet", &Item{BlockNumber: 1, TxIndex: 0, Trade: &dexparser.Trade{}})

	time.Sleep(10 * time.Millisecond)
	items := s.Drain("bsc:0xwallet")
	require.Len(t, items, 1)
}

func TestDrainIsolatesWalletsIndependently(t *testing.T) {
	s := NewSequencer(0)
	s.Submit("bsc:0xa", &Item{BlockNumber: 1, TxIndex: 0, Trade: &dexparser.Trade{}})
	s.Submit("bsc:0xb", &Item{BlockNumber: 1, TxIndex: 0, Trade: &dexparser.Trade{}})

	require.Len(t, s.Drain("bsc:0xa"), 1)
	require.Empty(t, s.Drain("bsc:0xa"), "draining again with nothing new buffered should return nothing")
	require.Len(t, s.Drain("bsc:0xb"), 1)
}

func TestDrainAllOnlyReturnsNonEmptyWallets(t *testing.T) {
	s := NewSequencer(0)
	s.Submit("bsc:0xa", &Item{BlockNumber: 1, TxIndex: 0, Trade: &dexparser.Trade{}})

	out := s.DrainAll()
	require.Contains(t, out, "bsc:0xa")
	require.Len(t, out["bsc:0xa"], 1)
}
