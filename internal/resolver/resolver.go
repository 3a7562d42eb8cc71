// Package resolver answers whether a symbol exists, what it is called and
// which kind of instrument it names.
package resolver

import (
	"context"
	"slices"
)

type Kind int

const (
	Currency Kind = iota + 1
	Security
)

func (k Kind) String() string {
	switch k {
	case Currency:
		return "currency"
	case Security:
		return "security"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Instrument is a resolved symbol. It is derived per query and never stored.
type Instrument struct {
	Symbol      string `json:"symbol"`
	Kind        Kind   `json:"kind"`
	DisplayName string `json:"display_name"`
}

// Catalog is the view of the instrument catalog the resolver reads.
type Catalog interface {
	AllCurrencyCodes(ctx context.Context) []string
	AllActiveTickers(ctx context.Context) []string
	CurrencyDisplayNames(ctx context.Context) map[string]string
	TickerDisplayNames(ctx context.Context) map[string]string
}

type Resolver struct {
	catalog Catalog
}

func New(c Catalog) *Resolver {
	return &Resolver{catalog: c}
}

func (r *Resolver) Exists(ctx context.Context, symbol string, kind Kind) bool {
	switch kind {
	case Currency:
		return contains(r.catalog.AllCurrencyCodes(ctx), symbol)
	case Security:
		return contains(r.catalog.AllActiveTickers(ctx), symbol)
	}
	return false
}

// DisplayName returns the name of symbol, or symbol itself when unnamed.
func (r *Resolver) DisplayName(ctx context.Context, symbol string, kind Kind) string {
	var names map[string]string
	switch kind {
	case Currency:
		names = r.catalog.CurrencyDisplayNames(ctx)
	case Security:
		names = r.catalog.TickerDisplayNames(ctx)
	}
	if name, ok := names[symbol]; ok && name != "" {
		return name
	}
	return symbol
}

// AllInstrumentSymbols returns currency codes followed by active tickers.
func (r *Resolver) AllInstrumentSymbols(ctx context.Context) []string {
	codes := r.catalog.AllCurrencyCodes(ctx)
	tickers := r.catalog.AllActiveTickers(ctx)
	return slices.Concat(codes, tickers)
}

// Names maps every known symbol to its display name. Currency names win
// over ticker names for the same symbol.
func (r *Resolver) Names(ctx context.Context) map[string]string {
	currencies := r.catalog.CurrencyDisplayNames(ctx)
	tickers := r.catalog.TickerDisplayNames(ctx)
	names := make(map[string]string, len(currencies)+len(tickers))
	for sym, name := range tickers {
		names[sym] = name
	}
	for sym, name := range currencies {
		names[sym] = name
	}
	return names
}

// Instrument resolves symbol, trying currencies first.
func (r *Resolver) Instrument(ctx context.Context, symbol string) (Instrument, bool) {
	for _, kind := range []Kind{Currency, Security} {
		if r.Exists(ctx, symbol, kind) {
			return Instrument{Symbol: symbol, Kind: kind, DisplayName: r.DisplayName(ctx, symbol, kind)}, true
		}
	}
	return Instrument{}, false
}

// codes are sorted by the catalog
func contains(sorted []string, s string) bool {
	_, ok := slices.BinarySearch(sorted, s)
	return ok
}
