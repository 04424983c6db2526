package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/chain"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	bus.Publish(EscrowLedgerChange{Kind: KindDepositAccepted, UserID: 1, Chain: chain.BscMainnet, Amount: "100", TxHash: "0x1"})

	select {
	case event := <-ch:
		require.Equal(t, KindDepositAccepted, event.Kind)
		require.Equal(t, uint64(1), event.UserID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	bus.Publish(EscrowLedgerChange{Kind: KindBack, UserID: 1})
	bus.Publish(EscrowLedgerChange{Kind: KindExit, UserID: 2})

	event := <-ch
	require.Equal(t, KindBack, event.Kind)

	select {
	case <-ch:
		t.Fatal("expected second event to have been dropped")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
}
