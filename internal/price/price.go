// Package price declares the engine's asset-price collaborator interface
// (spec.md §6: "Asset-price collaborator"). Price discovery itself is an
// explicit Non-goal ("prices come from an external collaborator"), so this
// package holds only the read-only contract C10's back-strategy action
// depends on, not an implementation — the same way spec.md treats the
// request/response gateway and price-oracle population as out of scope,
// appearing only through the minimal interface it specifies.
//
// Grounded on original_source's src/service/shared/api/cmc.rs
// (CoinMarketCap::get_top_25_coins/get_latest_quotes), the one concrete
// price-source client in the retrieval pack, for the symbol-keyed f64
// quote shape — without porting its HTTP client, since that client is the
// very external collaborator spec.md excludes.
package price

import "context"

// Source is the minimal read-only price feed spec.md §6 names:
// GetUSDPriceLatest(symbols) -> {symbol -> price}. Absence of a price for a
// traded symbol is a fatal error on any USD-valued path (spec.md §6).
type Source interface {
	GetUSDPriceLatest(ctx context.Context, symbols []string) (map[string]float64, error)
}

// PeriodQuote is one symbol's latest price plus trailing-window quotes,
// spec.md §6's get_usd_price_period shape.
type PeriodQuote struct {
	Latest float64
	OneDay float64
	SevenDay float64
	ThirtyDay float64
}

// PeriodSource is the richer half of the asset-price collaborator, used by
// reporting paths outside this engine's scope; declared here only so a
// single adapter can satisfy both interfaces.
type PeriodSource interface {
	GetUSDPricePeriod(ctx context.Context, symbols []string) (map[string]PeriodQuote, error)
}
