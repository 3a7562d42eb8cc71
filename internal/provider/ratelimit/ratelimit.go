package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"finref/internal/provider"
)

// SecuritySource wraps a provider.SecuritySource and gates every call on a
// shared limiter. Callers wait for a token or return early when ctx ends.
type SecuritySource struct {
	P  provider.SecuritySource
	TB *rate.Limiter
}

var _ provider.SecuritySource = (*SecuritySource)(nil)

func (s *SecuritySource) ActiveSecurities(ctx context.Context) ([]provider.SecurityRecord, error) {
	if err := wait(ctx, s.TB); err != nil {
		return nil, err
	}
	return s.P.ActiveSecurities(ctx)
}

func (s *SecuritySource) TickerPrice(ctx context.Context, ticker string) (provider.SharePrice, error) {
	if err := wait(ctx, s.TB); err != nil {
		return provider.SharePrice{Ticker: ticker}, err
	}
	return s.P.TickerPrice(ctx, ticker)
}

// RateSource is the same gate for a provider.RateSource.
type RateSource struct {
	P  provider.RateSource
	TB *rate.Limiter
}

var _ provider.RateSource = (*RateSource)(nil)

func (s *RateSource) CurrencyDictionary(ctx context.Context) ([]provider.CurrencyInfo, error) {
	if err := wait(ctx, s.TB); err != nil {
		return nil, err
	}
	return s.P.CurrencyDictionary(ctx)
}

func (s *RateSource) DailyRates(ctx context.Context, date time.Time) ([]provider.CurrencyRate, error) {
	if err := wait(ctx, s.TB); err != nil {
		return nil, err
	}
	return s.P.DailyRates(ctx, date)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
