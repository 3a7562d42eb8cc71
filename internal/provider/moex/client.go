package moex

import (
	"net/http"
	"net/url"
)

const (
	// baseURL is the ISS root of the Moscow Exchange.
	baseURL = "https://iss.moex.com/iss"
	// defaultBoard is the main trading board for shares.
	defaultBoard = "TQBR"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=moex_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ISSClient is a client for the MOEX ISS API.
type ISSClient struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
	// board is the trading board used for market data.
	board string
}

// ISSClientOption is a configuration option for the ISS client.
type ISSClientOption func(*ISSClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ISSClientOption {
	return func(c *ISSClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ISSClientOption {
	return func(c *ISSClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ISSClientOption {
	return func(c *ISSClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithBoard sets the trading board used for per-ticker market data.
func WithBoard(board string) ISSClientOption {
	return func(c *ISSClient) {
		if board != "" {
			c.board = board
		}
	}
}

// NewISSClient creates a new ISS client.
func NewISSClient(options ...ISSClientOption) (*ISSClient, error) {
	var client = &ISSClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{"Accept": []string{"application/json"}},
		query:      url.Values{},
		board:      defaultBoard,
	}
	// metadata blocks are not used and roughly double the payload
	client.query.Set("iss.meta", "off")
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Board returns the trading board used for market data.
func (c *ISSClient) Board() string { return c.board }
