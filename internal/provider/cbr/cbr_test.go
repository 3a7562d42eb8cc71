package cbr_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"finref/internal/httpx"
	"finref/internal/provider"
	"finref/internal/provider/cbr"
)

const dictionaryXML = `<?xml version="1.0" encoding="windows-1251"?>
<Valuta name="Foreign Currency Market Lib">
  <Item ID="R01235">
    <Name>Доллар США</Name>
    <EngName>US Dollar</EngName>
    <Nominal>1</Nominal>
    <ParentCode>R01235    </ParentCode>
    <ISO_Num_Code>840</ISO_Num_Code>
    <ISO_Char_Code>USD</ISO_Char_Code>
  </Item>
  <Item ID="R01375">
    <Name>Китайский юань</Name>
    <EngName>China Yuan</EngName>
    <Nominal>1</Nominal>
    <ISO_Num_Code>156</ISO_Num_Code>
    <ISO_Char_Code>cny</ISO_Char_Code>
  </Item>
  <Item ID="R01720">
    <Name>Украинская гривна</Name>
    <EngName>Ukrainian Hryvnia</EngName>
    <Nominal>x10</Nominal>
    <ISO_Num_Code>980</ISO_Num_Code>
    <ISO_Char_Code>UAH</ISO_Char_Code>
  </Item>
</Valuta>`

const dailyXML = `<?xml version="1.0" encoding="windows-1251"?>
<ValCurs Date="22.08.2025" name="Foreign Currency Market">
  <Valute ID="R01235">
    <NumCode>840</NumCode>
    <CharCode>USD</CharCode>
    <Nominal>1</Nominal>
    <Name>Доллар США</Name>
    <Value>80,0000</Value>
    <VunitRate>80</VunitRate>
  </Valute>
  <Valute ID="R01020A">
    <NumCode>944</NumCode>
    <CharCode>AZN</CharCode>
    <Nominal>1</Nominal>
    <Name>Азербайджанский манат</Name>
    <Value>oops</Value>
  </Valute>
  <Valute ID="R01815">
    <NumCode>410</NumCode>
    <CharCode>KRW</CharCode>
    <Nominal>1000</Nominal>
    <Name>Вон Республики Корея</Name>
    <Value>57,6543</Value>
  </Valute>
</ValCurs>`

func win1251(t *testing.T, s string) []byte {
	t.Helper()
	b, err := charmap.Windows1251.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return b
}

func TestParseDictionary(t *testing.T) {
	t.Parallel()

	out, recErrs, err := cbr.ParseDictionary(win1251(t, dictionaryXML))
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.Equal(t, provider.CurrencyInfo{
		Code: "R01235", Name: "Доллар США", EnglishName: "US Dollar",
		Nominal: 1, NumericISOCode: 840, CharCode: "USD",
	}, out[0])
	require.Equal(t, "CNY", out[1].CharCode)

	// the malformed nominal is isolated to its record
	require.Equal(t, "UAH", out[2].CharCode)
	require.Equal(t, 0, out[2].Nominal)
	require.Len(t, recErrs, 1)
	var pe *provider.ParseError
	require.ErrorAs(t, recErrs[0], &pe)
	require.Contains(t, pe.Record, "R01720")
}

func TestParseDictionary_Malformed(t *testing.T) {
	t.Parallel()

	_, _, err := cbr.ParseDictionary([]byte("<Valuta><Item>"))
	var pe *provider.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseDailyRates(t *testing.T) {
	t.Parallel()

	fallback := time.Date(2025, 8, 21, 15, 0, 0, 0, time.UTC)
	out, recErrs, err := cbr.ParseDailyRates(win1251(t, dailyXML), fallback)
	require.NoError(t, err)
	require.Len(t, out, 3)

	usd := out[0]
	require.Equal(t, "USD", usd.CharCode)
	require.Equal(t, "Доллар США", usd.Name)
	require.Equal(t, 840, usd.NumericISOCode)
	require.True(t, usd.Rate.Equal(mustDec("80.00")))
	require.True(t, usd.NormalizedRate.Equal(mustDec("80.00")))
	require.Equal(t, time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC), usd.Date)

	azn := out[1]
	require.True(t, azn.Rate.IsZero())
	require.True(t, azn.NormalizedRate.IsZero())

	krw := out[2]
	require.True(t, krw.NormalizedRate.Equal(krw.Rate.Div(mustDec("1000"))))
	require.True(t, krw.NormalizedRate.Equal(mustDec("0.0576543")))

	require.Len(t, recErrs, 1)
}

func TestParseDailyRates_MissingDateUsesFallback(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0" encoding="utf-8"?><ValCurs><Valute><CharCode>EUR</CharCode><Nominal>1</Nominal><Value>93,5</Value></Valute></ValCurs>`
	out, _, err := cbr.ParseDailyRates([]byte(doc), time.Date(2025, 8, 22, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC), out[0].Date)
	require.True(t, out[0].Rate.Equal(mustDec("93.5")))
}

func TestProvider_FetchesOverHTTP(t *testing.T) {
	t.Parallel()

	// Arrange: a fake CBR serving windows-1251 XML
	var dailyQuery atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/scripts/XML_valFull.asp", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=windows-1251")
		_, _ = w.Write(win1251(t, dictionaryXML))
	})
	mux.HandleFunc("/scripts/XML_daily.asp", func(w http.ResponseWriter, r *http.Request) {
		dailyQuery.Store(r.URL.Query().Get("date_req"))
		_, _ = w.Write(win1251(t, dailyXML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := cbr.New(cbr.Config{
		DictionaryURL: srv.URL + "/scripts/XML_valFull.asp",
		DailyURL:      srv.URL + "/scripts/XML_daily.asp",
	}, httpx.New(5*time.Second), zerolog.Nop())

	// Act
	dict, err := p.CurrencyDictionary(t.Context())
	require.NoError(t, err)
	rates, err := p.DailyRates(t.Context(), time.Date(2025, 8, 22, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Assert
	require.Len(t, dict, 3)
	require.Equal(t, "Доллар США", dict[0].Name)
	require.Len(t, rates, 3)
	require.Equal(t, "22/08/2025", dailyQuery.Load())
	require.Equal(t, "cbr", p.Name())
}

func TestProvider_UnavailableOnServerError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hc := httpx.New(5 * time.Second)
	hc.Backoff = backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond}
	p := cbr.New(cbr.Config{DictionaryURL: srv.URL, DailyURL: srv.URL}, hc, zerolog.Nop())

	_, err := p.CurrencyDictionary(t.Context())
	require.ErrorIs(t, err, provider.ErrSourceUnavailable)
	require.EqualValues(t, 3, hits.Load())
}

func mustDec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
