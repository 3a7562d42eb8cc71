package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finref/internal/app"
	"finref/internal/config"
	"finref/internal/provider"
)

type stubRates struct{}

func (stubRates) CurrencyDictionary(context.Context) ([]provider.CurrencyInfo, error) {
	return []provider.CurrencyInfo{{CharCode: "USD", Name: "Доллар США"}, {CharCode: "EUR", Name: "Евро"}}, nil
}

func (stubRates) DailyRates(context.Context, time.Time) ([]provider.CurrencyRate, error) {
	return []provider.CurrencyRate{{CharCode: "USD", Nominal: 1, Rate: decimal.RequireFromString("80"), NormalizedRate: decimal.RequireFromString("80")}}, nil
}

type stubSecurities struct{}

func (stubSecurities) ActiveSecurities(context.Context) ([]provider.SecurityRecord, error) {
	return []provider.SecurityRecord{{SecID: "SBER", SecName: "Сбербанк", Status: "A", ISIN: "RU0009029540", ListLevel: "1", BoardID: "SPEQ"}}, nil
}

func (stubSecurities) TickerPrice(_ context.Context, ticker string) (provider.SharePrice, error) {
	return provider.SharePrice{Ticker: ticker, LastPrice: decimal.NewNullDecimal(decimal.RequireFromString("301.5"))}, nil
}

func runJSON(t *testing.T, opts options) (any, error) {
	t.Helper()
	a := app.Wire(stubRates{}, stubSecurities{}, config.Default(), zerolog.Nop())
	var buf bytes.Buffer
	if err := run(t.Context(), a.Service, opts, &buf); err != nil {
		return nil, err
	}
	var v any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
	return v, nil
}

func TestRun(t *testing.T) {
	t.Parallel()

	v, err := runJSON(t, options{currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"symbol": "USD", "name": "Доллар США", "rate": "80", "normalized_rate": "80"}, v)

	v, err = runJSON(t, options{ticker: "sber"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"symbol": "SBER", "name": "Сбербанк", "price": "301.5"}, v)

	v, err = runJSON(t, options{query: "", n: 2})
	require.NoError(t, err)
	require.Equal(t, []any{"USD", "EUR"}, v)

	v, err = runJSON(t, options{query: "сбер", scope: "all", search: true})
	require.NoError(t, err)
	require.Equal(t, []any{"SBER"}, v)

	v, err = runJSON(t, options{})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"currencies": []any{"EUR", "USD"}, "tickers": []any{"SBER"}}, v)

	_, err = runJSON(t, options{currency: "XXX"})
	require.ErrorContains(t, err, "unknown currency XXX")

	_, err = runJSON(t, options{search: true, scope: "bonds"})
	require.Error(t, err)
}
