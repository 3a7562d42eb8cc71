package moexadapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"finref/internal/provider"
	"finref/internal/provider/moex"
)

// Client is the part of the ISS client the adapter needs.
type Client interface {
	Securities(ctx context.Context) (moex.Table, error)
	MarketData(ctx context.Context, ticker string) (moex.Table, error)
}

type Config struct {
	Name string // display name, default: moex
}

// Adapter turns raw ISS tables into typed records and implements
// provider.SecuritySource.
type Adapter struct {
	cfg    Config
	client Client
	log    zerolog.Logger

	// unknown columns already reported, keyed by table and column
	mu       sync.Mutex
	reported map[string]struct{}
}

var _ provider.SecuritySource = (*Adapter)(nil)

func New(cfg Config, client Client, log zerolog.Logger) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "moex"
	}
	return &Adapter{
		cfg:      cfg,
		client:   client,
		log:      log.With().Str("component", cfg.Name).Logger(),
		reported: make(map[string]struct{}),
	}
}

func (a *Adapter) Name() string { return a.cfg.Name }

// Securities returns every decodable security row, active or not.
func (a *Adapter) Securities(ctx context.Context) ([]provider.SecurityRecord, error) {
	t, err := a.client.Securities(ctx)
	if err != nil {
		return nil, provider.Unavailable(a.cfg.Name, fmt.Errorf("securities: %w", err))
	}
	records, recErrs := DecodeSecurities(t)
	a.reportColumns("securities", t.Columns, securityColumns)
	for _, e := range recErrs {
		a.log.Warn().Err(e).Msg("skipping malformed security row")
	}
	return records, nil
}

// ActiveSecurities returns the securities passing the listing rules.
func (a *Adapter) ActiveSecurities(ctx context.Context) ([]provider.SecurityRecord, error) {
	records, err := a.Securities(ctx)
	if err != nil {
		return nil, err
	}
	active := provider.ActiveSecurities(records)
	a.log.Debug().Int("total", len(records)).Int("active", len(active)).Msg("securities loaded")
	return active, nil
}

// TickerPrice returns the last price of ticker, falling back to the market
// price. An unknown ticker yields an absent price, not an error.
func (a *Adapter) TickerPrice(ctx context.Context, ticker string) (provider.SharePrice, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return provider.SharePrice{}, provider.ErrInvalidTicker
	}
	t, err := a.client.MarketData(ctx, ticker)
	if err != nil {
		return provider.SharePrice{Ticker: ticker}, provider.Unavailable(a.cfg.Name, fmt.Errorf("market data %s: %w", ticker, err))
	}
	rows, recErrs := DecodeMarketData(t)
	a.reportColumns("marketdata", t.Columns, marketDataColumns)
	for _, e := range recErrs {
		a.log.Warn().Err(e).Str("ticker", ticker).Msg("malformed market data row")
	}
	return provider.PriceFromMarketData(ticker, rows), nil
}

func (a *Adapter) reportColumns(table string, columns []string, known map[string]struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range columns {
		name := strings.ToLower(c)
		if _, ok := known[name]; ok {
			continue
		}
		key := table + "." + name
		if _, ok := a.reported[key]; ok {
			continue
		}
		a.reported[key] = struct{}{}
		a.log.Debug().Str("table", table).Str("column", c).Msg("ignoring unknown column")
	}
}
