// Package events implements the engine's event subscription fan-out
// (SPEC_FULL.md §6, "Event subscriptions — concrete shape"): C9
// (internal/copytrade) publishes an EscrowLedgerChange value for each
// settled copy-trade, which any number of subscribers — the webhook HTTP
// layer chief among them, though that layer is out of scope per spec.md
// §1 — can drain. The deposit (C10) and exit (C11) pipelines publish
// nothing.
//
// Grounded on no single teacher file (neither the teacher nor the rest of
// the retrieval pack carries a generic pub/sub bus); built directly from
// SPEC_FULL.md's description of a "small fan-out publisher (buffered
// channel per subscriber)" using stdlib channels and a mutex-guarded
// subscriber list, the same shape internal/rpcpool already uses for its
// own concurrency primitives.
package events

import (
	"sync"

	"github.com/copytradeengine/engine/internal/chain"
)

// Kind distinguishes what changed about a user's ledger position.
type Kind int

const (
	KindUnknown Kind = iota
	KindDepositAccepted
	KindDepositRejected
	KindBack
	KindCopyTrade
	KindExit
)

// EscrowLedgerChange describes one change to a user-visible balance. Only
// C9 publishes it, with KindCopyTrade; no code in this tree publishes the
// other Kind values.
type EscrowLedgerChange struct {
	Kind       Kind
	UserID     uint64
	StrategyID uint64
	Chain      chain.Chain
	Amount     string
	TxHash     string
}

// Bus fans out published events to every currently-registered subscriber.
// A subscriber that falls behind (its channel fills) has new events
// dropped for it rather than blocking the publisher — matching the
// "buffered channel per subscriber" shape SPEC_FULL.md describes.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan EscrowLedgerChange
	nextID      int
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]chan EscrowLedgerChange)}
}

// Subscribe registers a new subscriber with the given channel buffer size
// and returns the channel plus an unsubscribe function.
func (b *Bus) Subscribe(bufferSize int) (<-chan EscrowLedgerChange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan EscrowLedgerChange, bufferSize)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			close(existing)
			delete(b.subscribers, id)
		}
	}
	return ch, unsubscribe
}

// Publish fans event out to every subscriber, dropping it for any
// subscriber whose buffer is currently full.
func (b *Bus) Publish(event EscrowLedgerChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
