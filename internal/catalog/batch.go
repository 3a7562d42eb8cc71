package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// SharePrices fetches prices for every active ticker with bounded
// parallelism. Tickers that fail or have no price are left out.
func (c *Catalog) SharePrices(ctx context.Context) map[string]decimal.Decimal {
	tickers := c.AllActiveTickers(ctx)

	var (
		mu     sync.Mutex
		out    = make(map[string]decimal.Decimal, len(tickers))
		stats  = BatchStats{Candidates: len(tickers)}
		sem    = make(chan struct{}, c.parallelism)
		wg     sync.WaitGroup
		ctxErr error
	)

loop:
	for _, ticker := range tickers {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break loop
		}
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer func() { <-sem }()

			price, ok, err := c.SharePrice(ctx, ticker)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
				if !errors.Is(err, context.Canceled) {
					c.log.Warn().Err(err).Str("ticker", ticker).Msg("price fetch failed")
				}
			case !ok:
				stats.Absent++
			default:
				stats.Priced++
				out[ticker] = price
			}
		}(ticker)
	}
	wg.Wait()

	stats.Finished = c.now()
	c.mu.Lock()
	c.last = stats
	c.mu.Unlock()

	ev := c.log.Info()
	if ctxErr != nil {
		ev = c.log.Warn().Err(ctxErr)
	}
	ev.Int("candidates", stats.Candidates).
		Int("priced", stats.Priced).
		Int("absent", stats.Absent).
		Int("failed", stats.Failed).
		Msg("batch prices")
	return out
}
