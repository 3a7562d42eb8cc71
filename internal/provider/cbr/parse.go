package cbr

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"finref/internal/provider"
)

const (
	// ValCurs/@Date, e.g. 22.08.2025
	sheetDateLayout = "02.01.2006"
	// date_req query parameter, e.g. 22/08/2025
	requestDateLayout = "02/01/2006"
)

// <Valuta><Item ID="R01235"><Name>Доллар США</Name>...<ISO_Char_Code>USD</ISO_Char_Code></Item></Valuta>
type valuta struct {
	Items []valutaItem `xml:"Item"`
}

type valutaItem struct {
	ID          string `xml:"ID,attr"`
	Name        string `xml:"Name"`
	EngName     string `xml:"EngName"`
	Nominal     string `xml:"Nominal"`
	ISONumCode  string `xml:"ISO_Num_Code"`
	ISOCharCode string `xml:"ISO_Char_Code"`
}

// <ValCurs Date="22.08.2025"><Valute ID="R01235"><NumCode>840</NumCode>...<Value>80,0000</Value></Valute></ValCurs>
type valCurs struct {
	Date    string   `xml:"Date,attr"`
	Valutes []valute `xml:"Valute"`
}

type valute struct {
	ID        string `xml:"ID,attr"`
	NumCode   string `xml:"NumCode"`
	CharCode  string `xml:"CharCode"`
	Nominal   string `xml:"Nominal"`
	Name      string `xml:"Name"`
	Value     string `xml:"Value"`
	VunitRate string `xml:"VunitRate"`
}

// ParseDictionary decodes an XML_valFull document. Malformed fields are
// reported in recErrs and zeroed; the record itself is kept.
func ParseDictionary(body []byte) (out []provider.CurrencyInfo, recErrs []error, err error) {
	var doc valuta
	if err := decode(body, &doc); err != nil {
		return nil, nil, &provider.ParseError{Source: "cbr", Record: "currency dictionary", Err: err}
	}
	out = make([]provider.CurrencyInfo, 0, len(doc.Items))
	for _, it := range doc.Items {
		record := "item " + it.ID
		info := provider.CurrencyInfo{
			Code:        strings.TrimSpace(it.ID),
			Name:        strings.TrimSpace(it.Name),
			EnglishName: strings.TrimSpace(it.EngName),
			CharCode:    strings.ToUpper(strings.TrimSpace(it.ISOCharCode)),
		}
		info.Nominal, recErrs = parseInt(it.Nominal, record+" Nominal", recErrs)
		info.NumericISOCode, recErrs = parseInt(it.ISONumCode, record+" ISO_Num_Code", recErrs)
		out = append(out, info)
	}
	return out, recErrs, nil
}

// ParseDailyRates decodes an XML_daily document. When the sheet carries no
// date, fallback is used. A malformed Value yields a zero rate and a zero
// normalized rate for that currency only.
func ParseDailyRates(body []byte, fallback time.Time) (out []provider.CurrencyRate, recErrs []error, err error) {
	var doc valCurs
	if err := decode(body, &doc); err != nil {
		return nil, nil, &provider.ParseError{Source: "cbr", Record: "daily rates", Err: err}
	}

	date := dateOnly(fallback)
	if s := strings.TrimSpace(doc.Date); s != "" {
		d, err := time.Parse(sheetDateLayout, s)
		if err != nil {
			recErrs = append(recErrs, &provider.ParseError{Source: "cbr", Record: "ValCurs Date", Err: err})
		} else {
			date = d
		}
	}

	out = make([]provider.CurrencyRate, 0, len(doc.Valutes))
	for _, v := range doc.Valutes {
		code := strings.ToUpper(strings.TrimSpace(v.CharCode))
		record := "valute " + code
		r := provider.CurrencyRate{
			CharCode: code,
			Name:     strings.TrimSpace(v.Name),
			Date:     date,
		}
		r.NumericISOCode, recErrs = parseInt(v.NumCode, record+" NumCode", recErrs)
		r.Nominal, recErrs = parseInt(v.Nominal, record+" Nominal", recErrs)

		rate, perr := parseDecimal(v.Value)
		if perr != nil {
			recErrs = append(recErrs, &provider.ParseError{Source: "cbr", Record: record + " Value", Err: perr})
			r.Rate = decimal.Zero
			r.NormalizedRate = decimal.Zero
		} else {
			r.Rate = rate
			r.NormalizedRate = provider.NormalizeRate(rate, r.Nominal)
		}
		out = append(out, r)
	}
	return out, recErrs, nil
}

func decode(body []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charsetReader
	return dec.Decode(v)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "windows-1251", "cp1251", "x-cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "utf-8", "utf8", "":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

var errEmpty = errors.New("empty value")

// parseDecimal accepts the CBR decimal comma form ("80,0000").
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errEmpty
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}

func parseInt(s, record string, errs []error) (int, []error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, append(errs, &provider.ParseError{Source: "cbr", Record: record, Err: err})
	}
	return n, errs
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
