package provider

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyInfo is one entry of the central bank currency dictionary.
type CurrencyInfo struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	EnglishName    string `json:"english_name"`
	Nominal        int    `json:"nominal"`
	NumericISOCode int    `json:"numeric_iso_code"`
	CharCode       string `json:"char_code"`
}

// CurrencyRate is the official rate of one currency for a calendar day.
// Rate is quoted for Nominal units; NormalizedRate is per single unit.
type CurrencyRate struct {
	CharCode       string          `json:"char_code"`
	NumericISOCode int             `json:"numeric_iso_code"`
	Nominal        int             `json:"nominal"`
	Name           string          `json:"name"`
	Rate           decimal.Decimal `json:"rate"`
	NormalizedRate decimal.Decimal `json:"normalized_rate"`
	Date           time.Time       `json:"date"`
}

// NormalizeRate returns rate divided by nominal, or zero when nominal is not positive.
func NormalizeRate(rate decimal.Decimal, nominal int) decimal.Decimal {
	if nominal <= 0 {
		return decimal.Zero
	}
	return rate.Div(decimal.NewFromInt(int64(nominal)))
}

// SecurityRecord is one row of exchange security metadata.
type SecurityRecord struct {
	SecID      string `json:"secid"`
	BoardID    string `json:"boardid"`
	ShortName  string `json:"shortname"`
	SecName    string `json:"secname"`
	Status     string `json:"status"`
	ISIN       string `json:"isin"`
	ListLevel  string `json:"listlevel"`
	LotSize    int    `json:"lotsize"`
	CurrencyID string `json:"currencyid"`
}

// Eligibility rules for an active security.
const (
	ActiveStatus    = "A"
	ActiveListLevel = "1"
	ActiveBoard     = "SPEQ"
)

// IsActive reports whether the security passes the listing rules:
// status A, non-empty ISIN, first list level, SPEQ board.
func (s SecurityRecord) IsActive() bool {
	return s.Status == ActiveStatus &&
		strings.TrimSpace(s.ISIN) != "" &&
		s.ListLevel == ActiveListLevel &&
		s.BoardID == ActiveBoard
}

// ActiveSecurities keeps only records passing IsActive, preserving order.
func ActiveSecurities(records []SecurityRecord) []SecurityRecord {
	out := make([]SecurityRecord, 0, len(records))
	for _, r := range records {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out
}

// MarketDataRow is one row of exchange market data for a ticker.
type MarketDataRow struct {
	SecID       string              `json:"secid"`
	BoardID     string              `json:"boardid"`
	Last        decimal.NullDecimal `json:"last"`
	MarketPrice decimal.NullDecimal `json:"marketprice"`
	UpdateTime  string              `json:"updatetime"`
}

// SharePrice is the resolved last price of a ticker. LastPrice.Valid is false
// when neither the last trade nor the market price is known.
type SharePrice struct {
	Ticker    string              `json:"ticker"`
	LastPrice decimal.NullDecimal `json:"last_price"`
}

// PriceFromMarketData resolves a share price from the first market-data row:
// the last trade price, falling back to the market price.
func PriceFromMarketData(ticker string, rows []MarketDataRow) SharePrice {
	sp := SharePrice{Ticker: ticker}
	if len(rows) == 0 {
		return sp
	}
	first := rows[0]
	if first.Last.Valid {
		sp.LastPrice = first.Last
		return sp
	}
	sp.LastPrice = first.MarketPrice
	return sp
}

// RateSource fetches currency reference data from the central bank.
type RateSource interface {
	CurrencyDictionary(ctx context.Context) ([]CurrencyInfo, error)
	DailyRates(ctx context.Context, date time.Time) ([]CurrencyRate, error)
}

// SecuritySource fetches security metadata and prices from the exchange.
type SecuritySource interface {
	ActiveSecurities(ctx context.Context) ([]SecurityRecord, error)
	TickerPrice(ctx context.Context, ticker string) (SharePrice, error)
}
