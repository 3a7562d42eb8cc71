package moexadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"finref/internal/provider"
	"finref/internal/provider/moex"
)

var (
	securityColumns = columnSet(
		"secid", "boardid", "shortname", "secname", "status",
		"isin", "listlevel", "lotsize", "currencyid",
	)
	marketDataColumns = columnSet("secid", "boardid", "last", "marketprice", "updatetime")
)

func columnSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// row gives access to one table row by lowercased column name.
type row struct {
	index map[string]int
	cells []json.RawMessage
}

func columnIndex(columns []string) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		name := strings.ToLower(c)
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func (r row) raw(col string) json.RawMessage {
	i, ok := r.index[col]
	if !ok || i >= len(r.cells) {
		return nil
	}
	return r.cells[i]
}

var errNotScalar = errors.New("not a scalar")

// text reads a cell as a string. Numbers are kept in their JSON form so
// that a numeric LISTLEVEL of 1 reads as "1".
func (r row) text(col string) (string, error) {
	b := bytes.TrimSpace(r.raw(col))
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", fmt.Errorf("%s: %w", col, err)
		}
		return strings.TrimSpace(s), nil
	case '{', '[':
		return "", fmt.Errorf("%s: %w", col, errNotScalar)
	}
	return string(b), nil
}

// decimal reads a cell as an optional decimal. JSON null, an empty string
// and the literal string "null" are absent.
func (r row) decimal(col string) (decimal.NullDecimal, error) {
	s, err := r.text(col)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if s == "" || strings.EqualFold(s, "null") {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", col, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func (r row) integer(col string) (int, error) {
	s, err := r.text(col)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", col, err)
	}
	return n, nil
}

// DecodeSecurities maps a securities table to records. Rows that fail to
// decode are returned as *provider.ParseError and left out.
func DecodeSecurities(t moex.Table) ([]provider.SecurityRecord, []error) {
	idx := columnIndex(t.Columns)
	out := make([]provider.SecurityRecord, 0, len(t.Data))
	var errs []error
	for i, cells := range t.Data {
		r := row{index: idx, cells: cells}
		rec, err := decodeSecurity(r)
		if err != nil {
			errs = append(errs, &provider.ParseError{Source: "moex", Record: fmt.Sprintf("securities row %d", i), Err: err})
			continue
		}
		out = append(out, rec)
	}
	return out, errs
}

func decodeSecurity(r row) (provider.SecurityRecord, error) {
	var (
		rec  provider.SecurityRecord
		errs []error
		err  error
	)
	str := func(col string, dst *string) {
		*dst, err = r.text(col)
		errs = append(errs, err)
	}
	str("secid", &rec.SecID)
	str("boardid", &rec.BoardID)
	str("shortname", &rec.ShortName)
	str("secname", &rec.SecName)
	str("status", &rec.Status)
	str("isin", &rec.ISIN)
	str("listlevel", &rec.ListLevel)
	str("currencyid", &rec.CurrencyID)
	rec.LotSize, err = r.integer("lotsize")
	errs = append(errs, err)
	return rec, errors.Join(errs...)
}

// DecodeMarketData maps a marketdata table to rows. A malformed price cell
// leaves the row out; any other malformed cell is blanked and the row kept.
// Both are returned as *provider.ParseError.
func DecodeMarketData(t moex.Table) ([]provider.MarketDataRow, []error) {
	idx := columnIndex(t.Columns)
	out := make([]provider.MarketDataRow, 0, len(t.Data))
	var errs []error
	for i, cells := range t.Data {
		r := row{index: idx, cells: cells}
		md, priceErr, otherErr := decodeMarketData(r)
		record := fmt.Sprintf("marketdata row %d", i)
		if err := errors.Join(priceErr, otherErr); err != nil {
			errs = append(errs, &provider.ParseError{Source: "moex", Record: record, Err: err})
		}
		if priceErr != nil {
			continue
		}
		out = append(out, md)
	}
	return out, errs
}

func decodeMarketData(r row) (md provider.MarketDataRow, priceErr, otherErr error) {
	var err1, err2, err3, err4, err5 error
	md.Last, err1 = r.decimal("last")
	md.MarketPrice, err2 = r.decimal("marketprice")
	md.SecID, err3 = r.text("secid")
	md.BoardID, err4 = r.text("boardid")
	md.UpdateTime, err5 = r.text("updatetime")
	return md, errors.Join(err1, err2), errors.Join(err3, err4, err5)
}
