package search

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// popular is served for a blank autocomplete query without touching any source.
var popular = []string{
	"USD", "EUR", "CNY", "JPY", "GBP",
	"SBER", "GAZP", "LKOH", "GMKN", "ROSN",
	"VTBR", "TATN", "CHMF", "NLMK", "MAGN",
}

// Popular returns a copy of the curated popular instrument list.
func Popular() []string { return slices.Clone(popular) }

type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeCurrencies Scope = "currencies"
	ScopeTickers    Scope = "tickers"
)

// ParseScope accepts the scope names case-insensitively. Empty means all.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ScopeAll, nil
	case "currencies", "currency":
		return ScopeCurrencies, nil
	case "tickers", "ticker", "stocks":
		return ScopeTickers, nil
	}
	return "", fmt.Errorf("unknown search scope %q", s)
}

// Index supplies the full universe and its display names.
type Index interface {
	AllInstrumentSymbols(ctx context.Context) []string
	Names(ctx context.Context) map[string]string
}

// Lists supplies the per-kind symbol lists.
type Lists interface {
	AllCurrencyCodes(ctx context.Context) []string
	AllActiveTickers(ctx context.Context) []string
}

type Engine struct {
	index Index
	lists Lists
}

func NewEngine(index Index, lists Lists) *Engine {
	return &Engine{index: index, lists: lists}
}

// Autocomplete suggests at most maxResults symbols for query.
func (e *Engine) Autocomplete(ctx context.Context, query string, maxResults int) []string {
	if maxResults <= 0 {
		return []string{}
	}
	if strings.TrimSpace(query) == "" {
		return truncate(Popular(), maxResults)
	}
	return truncate(Search(e.index.AllInstrumentSymbols(ctx), query, e.index.Names(ctx)), maxResults)
}

// Search ranks the symbols of scope against query.
func (e *Engine) Search(ctx context.Context, scope Scope, query string) []string {
	var universe []string
	switch scope {
	case ScopeCurrencies:
		universe = e.lists.AllCurrencyCodes(ctx)
	case ScopeTickers:
		universe = e.lists.AllActiveTickers(ctx)
	default:
		universe = e.index.AllInstrumentSymbols(ctx)
	}
	if strings.TrimSpace(query) == "" {
		return slices.Clone(universe)
	}
	return Search(universe, query, e.index.Names(ctx))
}

func truncate(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
