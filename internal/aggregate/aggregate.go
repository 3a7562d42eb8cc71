// Package aggregate is the query API consumed by the front ends. Symbols are
// trimmed and uppercased on entry; outages surface as absent values.
package aggregate

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finref/internal/provider"
	"finref/internal/resolver"
	"finref/internal/search"
)

// Catalog is the part of the instrument catalog the service reads.
type Catalog interface {
	resolver.Catalog
	Rate(ctx context.Context, code string) (provider.CurrencyRate, bool)
	SharePrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error)
	SharePrices(ctx context.Context) map[string]decimal.Decimal
}

type Service struct {
	catalog  Catalog
	resolver *resolver.Resolver
	engine   *search.Engine
	now      func() time.Time
	log      zerolog.Logger
}

func New(c Catalog, log zerolog.Logger) *Service {
	r := resolver.New(c)
	return &Service{
		catalog:  c,
		resolver: r,
		engine:   search.NewEngine(r, c),
		now:      time.Now,
		log:      log.With().Str("component", "aggregate").Logger(),
	}
}

// Normalize trims and uppercases a symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *Service) ListCurrencies(ctx context.Context) []string {
	return s.catalog.AllCurrencyCodes(ctx)
}

func (s *Service) ListActiveTickers(ctx context.Context) []string {
	return s.catalog.AllActiveTickers(ctx)
}

// CurrencyRate returns today's rate of code for its nominal.
func (s *Service) CurrencyRate(ctx context.Context, code string) (decimal.Decimal, bool) {
	r, ok := s.catalog.Rate(ctx, Normalize(code))
	return r.Rate, ok
}

// NormalizedCurrencyRate returns today's rate of code per single unit.
func (s *Service) NormalizedCurrencyRate(ctx context.Context, code string) (decimal.Decimal, bool) {
	r, ok := s.catalog.Rate(ctx, Normalize(code))
	return r.NormalizedRate, ok
}

// TickerPrice returns the last price of ticker. Source failures are logged
// and reported as an absent price.
func (s *Service) TickerPrice(ctx context.Context, ticker string) (decimal.Decimal, bool) {
	ticker = Normalize(ticker)
	p, ok, err := s.catalog.SharePrice(ctx, ticker)
	if err != nil {
		if !errors.Is(err, provider.ErrInvalidTicker) {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("price unavailable")
		}
		return decimal.Decimal{}, false
	}
	return p, ok
}

func (s *Service) SharePrices(ctx context.Context) map[string]decimal.Decimal {
	return s.catalog.SharePrices(ctx)
}

func (s *Service) CurrencyExists(ctx context.Context, code string) bool {
	return s.resolver.Exists(ctx, Normalize(code), resolver.Currency)
}

func (s *Service) TickerExists(ctx context.Context, ticker string) bool {
	return s.resolver.Exists(ctx, Normalize(ticker), resolver.Security)
}

func (s *Service) CurrencyName(ctx context.Context, code string) string {
	return s.resolver.DisplayName(ctx, Normalize(code), resolver.Currency)
}

func (s *Service) TickerName(ctx context.Context, ticker string) string {
	return s.resolver.DisplayName(ctx, Normalize(ticker), resolver.Security)
}

// AllInstruments returns currency codes followed by active tickers.
func (s *Service) AllInstruments(ctx context.Context) []string {
	return s.resolver.AllInstrumentSymbols(ctx)
}

// Names maps every known symbol to its display name.
func (s *Service) Names(ctx context.Context) map[string]string {
	return s.resolver.Names(ctx)
}

func (s *Service) Autocomplete(ctx context.Context, query string, maxResults int) []string {
	return s.engine.Autocomplete(ctx, query, maxResults)
}

func (s *Service) Search(ctx context.Context, scope search.Scope, query string) []string {
	return s.engine.Search(ctx, scope, query)
}

// Page and TotalPages paginate any result list.
func Page(list []string, pageIndex, pageSize int) []string {
	return search.Page(list, pageIndex, pageSize)
}

func TotalPages(n, pageSize int) int { return search.TotalPages(n, pageSize) }

// Description is a resolved instrument with its current value.
type Description struct {
	Symbol         string           `json:"symbol"`
	Kind           resolver.Kind    `json:"kind"`
	Name           string           `json:"name"`
	Nominal        int              `json:"nominal,omitempty"`
	Rate           *decimal.Decimal `json:"rate,omitempty"`
	NormalizedRate *decimal.Decimal `json:"normalized_rate,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Date           *time.Time       `json:"date,omitempty"`
}

// Describe resolves symbol, currencies first, and attaches today's rate or
// the last price when known.
func (s *Service) Describe(ctx context.Context, symbol string) (Description, bool) {
	in, ok := s.resolver.Instrument(ctx, Normalize(symbol))
	if !ok {
		return Description{}, false
	}
	d := Description{Symbol: in.Symbol, Kind: in.Kind, Name: in.DisplayName}
	switch in.Kind {
	case resolver.Currency:
		if r, ok := s.catalog.Rate(ctx, in.Symbol); ok {
			d.Nominal = r.Nominal
			d.Rate = &r.Rate
			d.NormalizedRate = &r.NormalizedRate
			d.Date = &r.Date
		}
	case resolver.Security:
		if p, ok := s.TickerPrice(ctx, in.Symbol); ok {
			d.Price = &p
		}
	}
	return d, true
}

// Quote is one row of a price snapshot.
type Quote struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	AsOf     time.Time       `json:"as_of"`
}

// Snapshot returns the batch prices of all active tickers as quotes sorted
// by symbol.
func (s *Service) Snapshot(ctx context.Context) []Quote {
	prices := s.catalog.SharePrices(ctx)
	names := s.catalog.TickerDisplayNames(ctx)
	now := s.now().UTC()

	out := make([]Quote, 0, len(prices))
	for sym, p := range prices {
		out = append(out, Quote{Symbol: sym, Name: names[sym], Price: p, Currency: "RUB", AsOf: now})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
