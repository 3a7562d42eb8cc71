// Package app wires sources, caches and the query service from config.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"finref/internal/aggregate"
	"finref/internal/catalog"
	"finref/internal/config"
	"finref/internal/httpx"
	"finref/internal/provider"
	"finref/internal/provider/cache"
	"finref/internal/provider/cbr"
	"finref/internal/provider/moex"
	"finref/internal/provider/moexadapter"
	"finref/internal/provider/ratelimit"
)

// App holds the wired query service and the parts exposed for diagnostics.
type App struct {
	Service *aggregate.Service
	Catalog *catalog.Catalog
	Caches  catalog.Caches
}

// Status is a diagnostics snapshot. A growing LoadFailures count on a cache
// means the catalog is serving empty results for that dataset.
type Status struct {
	Caches map[string]cache.Stats `json:"caches"`
	Batch  catalog.BatchStats     `json:"last_batch"`
}

// New builds the CBR and MOEX sources described by cfg and the service on top.
func New(cfg config.Config, log zerolog.Logger) (*App, error) {
	cbrHTTP := httpx.New(cfg.CBR.FetchTimeout())
	cbrHTTP.Log = log
	var rates provider.RateSource = cbr.New(cbr.Config{
		DictionaryURL: cfg.CBR.DictionaryURL,
		DailyURL:      cfg.CBR.DailyURL,
	}, cbrHTTP, log)
	if cfg.CBR.MaxRequestsPerSecond > 0 {
		rates = &ratelimit.RateSource{P: rates, TB: ratelimit.NewTokenBucket(cfg.CBR.MaxRequestsPerSecond, cfg.CBR.Burst)}
	}

	moexHTTP := httpx.New(cfg.MOEX.FetchTimeout())
	moexHTTP.Log = log
	client, err := moex.NewISSClient(
		moex.WithBaseURL(cfg.MOEX.BaseURL),
		moex.WithHTTPClient(moexHTTP),
		moex.WithBoard(cfg.MOEX.Board),
	)
	if err != nil {
		return nil, fmt.Errorf("moex client: %w", err)
	}
	var securities provider.SecuritySource = moexadapter.New(moexadapter.Config{}, client, log)
	if cfg.MOEX.MaxRequestsPerSecond > 0 {
		securities = &ratelimit.SecuritySource{P: securities, TB: ratelimit.NewTokenBucket(cfg.MOEX.MaxRequestsPerSecond, cfg.MOEX.Burst)}
	}

	return Wire(rates, securities, cfg, log), nil
}

// Wire builds the caches, catalog and service over the given sources.
func Wire(rates provider.RateSource, securities provider.SecuritySource, cfg config.Config, log zerolog.Logger) *App {
	caches := catalog.NewCaches(catalog.CacheTTLs{
		Currencies:    cfg.Cache.CurrenciesTTL(),
		Rates:         cfg.Cache.RatesTTL(),
		Securities:    cfg.Cache.SecuritiesTTL(),
		Prices:        cfg.Cache.PricesTTL(),
		PriceCapacity: cfg.Cache.PricesMaxItems,
		CBRLoad:       cfg.CBR.FetchTimeout(),
		MOEXLoad:      cfg.MOEX.FetchTimeout(),
	}, cache.WithLogger(log))
	cat := catalog.New(rates, securities, caches,
		catalog.WithParallelism(cfg.MOEX.MaxConcurrency),
		catalog.WithLogger(log),
	)
	return &App{
		Service: aggregate.New(cat, log),
		Catalog: cat,
		Caches:  caches,
	}
}

func (a *App) Status() Status {
	return Status{
		Caches: map[string]cache.Stats{
			a.Caches.Currencies.Name(): a.Caches.Currencies.Stats(),
			a.Caches.Rates.Name():      a.Caches.Rates.Stats(),
			a.Caches.Securities.Name(): a.Caches.Securities.Stats(),
			a.Caches.Prices.Name():     a.Caches.Prices.Stats(),
		},
		Batch: a.Catalog.LastBatchStats(),
	}
}
