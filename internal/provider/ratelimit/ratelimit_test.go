package ratelimit_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finref/internal/provider"
	"finref/internal/provider/ratelimit"
)

type countingSource struct {
	calls atomic.Int32
}

func (c *countingSource) ActiveSecurities(context.Context) ([]provider.SecurityRecord, error) {
	c.calls.Add(1)
	return nil, nil
}

func (c *countingSource) TickerPrice(_ context.Context, ticker string) (provider.SharePrice, error) {
	c.calls.Add(1)
	return provider.SharePrice{Ticker: ticker}, nil
}

func TestSecuritySource_BurstPassesThenWaits(t *testing.T) {
	t.Parallel()

	// Arrange: burst of 2, then one token every 50ms
	inner := &countingSource{}
	src := &ratelimit.SecuritySource{P: inner, TB: ratelimit.NewTokenBucket(20, 2)}

	// Act
	start := time.Now()
	for range 3 {
		_, err := src.TickerPrice(t.Context(), "SBER")
		require.NoError(t, err)
	}

	// Assert: the third call had to wait for a refill
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.EqualValues(t, 3, inner.calls.Load())
}

func TestSecuritySource_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	inner := &countingSource{}
	src := &ratelimit.SecuritySource{P: inner, TB: ratelimit.NewTokenBucket(0.001, 1)}

	_, err := src.ActiveSecurities(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = src.TickerPrice(ctx, "SBER")
	require.Error(t, err)
	require.EqualValues(t, 1, inner.calls.Load())
}

func TestNewTokenBucket_DisabledForNonPositiveRate(t *testing.T) {
	t.Parallel()

	inner := &countingSource{}
	src := &ratelimit.SecuritySource{P: inner, TB: ratelimit.NewTokenBucket(0, 0)}
	for range 100 {
		_, err := src.TickerPrice(t.Context(), "SBER")
		require.NoError(t, err)
	}
	require.EqualValues(t, 100, inner.calls.Load())
}
