// Package catalog normalizes raw source data into the instrument lists,
// name maps and prices served to queries. It holds no data itself; every
// call reads through the caches it was given.
package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finref/internal/provider"
	"finref/internal/provider/cache"
)

const (
	// Cache keys of the single-entry datasets.
	CurrenciesKey = "all_currencies"
	SecuritiesKey = "securities"

	// rate sheets are keyed by calendar day so they roll over at midnight
	dateKeyLayout = "2006-01-02"

	DefaultParallelism = 4
)

// Caches are the freshness caches the catalog reads through, one per dataset.
type Caches struct {
	Currencies *cache.Cache[[]provider.CurrencyInfo]
	Rates      *cache.Cache[[]provider.CurrencyRate]
	Securities *cache.Cache[[]provider.SecurityRecord]
	Prices     *cache.Cache[provider.SharePrice]
}

// CacheTTLs configures NewCaches. Zero durations take the defaults.
type CacheTTLs struct {
	Currencies    time.Duration
	Rates         time.Duration
	Securities    time.Duration
	Prices        time.Duration
	PriceCapacity int

	// CBRLoad and MOEXLoad bound one load against each source. Zero leaves
	// loads unbounded.
	CBRLoad  time.Duration
	MOEXLoad time.Duration
}

// NewCaches builds the dataset caches with the given TTLs.
func NewCaches(ttl CacheTTLs, opts ...cache.Option) Caches {
	if ttl.Currencies <= 0 {
		ttl.Currencies = 24 * time.Hour
	}
	if ttl.Rates <= 0 {
		ttl.Rates = 24 * time.Hour
	}
	if ttl.Securities <= 0 {
		ttl.Securities = 10 * time.Minute
	}
	if ttl.Prices <= 0 {
		ttl.Prices = 10 * time.Minute
	}
	if ttl.PriceCapacity <= 0 {
		ttl.PriceCapacity = 1000
	}
	with := func(extra ...cache.Option) []cache.Option {
		return append(slices.Clone(opts), extra...)
	}
	return Caches{
		Currencies: cache.New[[]provider.CurrencyInfo]("currencies", ttl.Currencies,
			with(cache.WithCapacity(2), cache.WithLoadTimeout(ttl.CBRLoad))...),
		Rates: cache.New[[]provider.CurrencyRate]("rates", ttl.Rates,
			with(cache.WithCapacity(2), cache.WithLoadTimeout(ttl.CBRLoad))...),
		Securities: cache.New[[]provider.SecurityRecord]("securities", ttl.Securities,
			with(cache.WithCapacity(2), cache.WithLoadTimeout(ttl.MOEXLoad))...),
		Prices: cache.New[provider.SharePrice]("prices", ttl.Prices,
			with(cache.WithCapacity(ttl.PriceCapacity), cache.WithLoadTimeout(ttl.MOEXLoad))...),
	}
}

// BatchStats summarizes the last SharePrices run.
type BatchStats struct {
	Candidates int       `json:"candidates"`
	Priced     int       `json:"priced"`
	Absent     int       `json:"absent"`
	Failed     int       `json:"failed"`
	Finished   time.Time `json:"finished"`
}

type Catalog struct {
	rates       provider.RateSource
	securities  provider.SecuritySource
	caches      Caches
	now         func() time.Time
	parallelism int
	log         zerolog.Logger

	mu   sync.Mutex
	last BatchStats
}

type Option func(*Catalog)

// WithClock sets the clock used to pick the rate sheet date.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithParallelism bounds concurrent price fetches in SharePrices.
func WithParallelism(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

func New(rates provider.RateSource, securities provider.SecuritySource, caches Caches, opts ...Option) *Catalog {
	c := &Catalog{
		rates:       rates,
		securities:  securities,
		caches:      caches,
		now:         time.Now,
		parallelism: DefaultParallelism,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("component", "catalog").Logger()
	return c
}

func (c *Catalog) currencies(ctx context.Context) ([]provider.CurrencyInfo, error) {
	return c.caches.Currencies.LoadOrFetch(ctx, CurrenciesKey, c.rates.CurrencyDictionary)
}

func (c *Catalog) todayRates(ctx context.Context) ([]provider.CurrencyRate, error) {
	today := c.now()
	return c.caches.Rates.LoadOrFetch(ctx, today.Format(dateKeyLayout), func(ctx context.Context) ([]provider.CurrencyRate, error) {
		return c.rates.DailyRates(ctx, today)
	})
}

// activeSecurities applies the listing rules even when the source already
// did, so every consumer sees the same set.
func (c *Catalog) activeSecurities(ctx context.Context) ([]provider.SecurityRecord, error) {
	records, err := c.caches.Securities.LoadOrFetch(ctx, SecuritiesKey, c.securities.ActiveSecurities)
	if err != nil {
		return nil, err
	}
	return provider.ActiveSecurities(records), nil
}

func (c *Catalog) degraded(err error, dataset string) {
	c.log.Warn().Err(err).Str("dataset", dataset).Msg("source unavailable, serving empty result")
}

// AllCurrencyCodes returns the sorted distinct currency codes.
func (c *Catalog) AllCurrencyCodes(ctx context.Context) []string {
	infos, err := c.currencies(ctx)
	if err != nil {
		c.degraded(err, "currencies")
		return []string{}
	}
	codes := make([]string, 0, len(infos))
	for _, ci := range infos {
		codes = append(codes, ci.CharCode)
	}
	return sortedDistinct(codes)
}

// AllActiveTickers returns the sorted distinct tickers of active securities.
func (c *Catalog) AllActiveTickers(ctx context.Context) []string {
	records, err := c.activeSecurities(ctx)
	if err != nil {
		c.degraded(err, "securities")
		return []string{}
	}
	tickers := make([]string, 0, len(records))
	for _, r := range records {
		tickers = append(tickers, r.SecID)
	}
	return sortedDistinct(tickers)
}

// TickerDisplayNames maps active tickers to their full names. The first
// record seen for a ticker wins.
func (c *Catalog) TickerDisplayNames(ctx context.Context) map[string]string {
	records, err := c.activeSecurities(ctx)
	if err != nil {
		c.degraded(err, "securities")
		return map[string]string{}
	}
	names := make(map[string]string, len(records))
	for _, r := range records {
		if r.SecID == "" {
			continue
		}
		if _, ok := names[r.SecID]; !ok {
			names[r.SecID] = r.SecName
		}
	}
	return names
}

// CurrencyDisplayNames maps currency codes to names. The first entry seen
// for a code wins.
func (c *Catalog) CurrencyDisplayNames(ctx context.Context) map[string]string {
	infos, err := c.currencies(ctx)
	if err != nil {
		c.degraded(err, "currencies")
		return map[string]string{}
	}
	names := make(map[string]string, len(infos))
	for _, ci := range infos {
		if ci.CharCode == "" {
			continue
		}
		if _, ok := names[ci.CharCode]; !ok {
			names[ci.CharCode] = ci.Name
		}
	}
	return names
}

// Rate returns today's rate record of code.
func (c *Catalog) Rate(ctx context.Context, code string) (provider.CurrencyRate, bool) {
	rates, err := c.todayRates(ctx)
	if err != nil {
		c.degraded(err, "rates")
		return provider.CurrencyRate{}, false
	}
	for _, r := range rates {
		if r.CharCode == code {
			return r, true
		}
	}
	return provider.CurrencyRate{}, false
}

// CurrencyRate returns today's rate of code for its nominal.
func (c *Catalog) CurrencyRate(ctx context.Context, code string) (decimal.Decimal, bool) {
	r, ok := c.Rate(ctx, code)
	return r.Rate, ok
}

// CurrencyNormalizedRate returns today's rate of code per single unit.
func (c *Catalog) CurrencyNormalizedRate(ctx context.Context, code string) (decimal.Decimal, bool) {
	r, ok := c.Rate(ctx, code)
	return r.NormalizedRate, ok
}

// SharePrice returns the last price of ticker. ok is false when the
// exchange knows no price.
func (c *Catalog) SharePrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	if ticker == "" {
		return decimal.Decimal{}, false, provider.ErrInvalidTicker
	}
	sp, err := c.caches.Prices.LoadOrFetch(ctx, ticker, func(ctx context.Context) (provider.SharePrice, error) {
		return c.securities.TickerPrice(ctx, ticker)
	})
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return sp.LastPrice.Decimal, sp.LastPrice.Valid, nil
}

// LastBatchStats returns the counters of the most recent SharePrices call.
func (c *Catalog) LastBatchStats() BatchStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func sortedDistinct(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
