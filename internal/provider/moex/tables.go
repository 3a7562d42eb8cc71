package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
)

// Table is one ISS data block: column names and positional rows.
// Cells are kept raw; typing them is the caller's job.
type Table struct {
	Columns []string            `json:"columns"`
	Data    [][]json.RawMessage `json:"data"`
}

// Securities retrieves the shares market securities list.
func (c *ISSClient) Securities(ctx context.Context) (Table, error) {
	return c.getTable(ctx, "/engines/stock/markets/shares/securities.json", "securities")
}

// MarketData retrieves the market data rows for one ticker on the client board.
func (c *ISSClient) MarketData(ctx context.Context, ticker string) (Table, error) {
	path := fmt.Sprintf("/engines/stock/markets/shares/boards/%s/securities/%s.json",
		url.PathEscape(c.board), url.PathEscape(ticker))
	return c.getTable(ctx, path, "marketdata")
}

func (c *ISSClient) getTable(ctx context.Context, path, block string) (Table, error) {
	query := maps.Clone(c.query)
	query.Set("iss.only", block)

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return Table{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Table{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return Table{}, fmt.Errorf("not found: %s", path)

	case http.StatusTooManyRequests:
		return Table{}, fmt.Errorf("rate limited")

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return Table{}, fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, string(b))
	}

	var body map[string]Table
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return Table{}, fmt.Errorf("decoding %s response: %w", block, err)
	}
	t, ok := body[block]
	if !ok {
		return Table{}, fmt.Errorf("decoding %s response: block missing", block)
	}
	return t, nil
}
