package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finref/internal/aggregate"
	"finref/internal/app"
	"finref/internal/config"
	"finref/internal/search"
)

type server struct {
	app *app.App
	svc *aggregate.Service
	cfg config.Server
	log zerolog.Logger
}

func newRouter(a *app.App, cfg config.Server, log zerolog.Logger) http.Handler {
	s := &server{app: a, svc: a.Service, cfg: cfg, log: log.With().Str("component", "server").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	if t := cfg.RequestTimeout(); t > 0 {
		r.Use(middleware.Timeout(t))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/currencies", s.handleCurrencies)
		r.Get("/currencies/{code}", s.handleCurrency)
		r.Get("/tickers", s.handleTickers)
		r.Get("/tickers/{ticker}", s.handleTicker)
		r.Get("/prices", s.handlePrices)
		r.Get("/instruments", s.handleInstruments)
		r.Get("/instruments/{symbol}", s.handleInstrument)
		r.Get("/search", s.handleSearch)
		r.Get("/autocomplete", s.handleAutocomplete)
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

type pageResponse struct {
	Items any `json:"items"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

type namedSymbol struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type currencyResponse struct {
	Symbol         string           `json:"symbol"`
	Name           string           `json:"name"`
	Rate           *decimal.Decimal `json:"rate"`
	NormalizedRate *decimal.Decimal `json:"normalized_rate"`
}

type tickerResponse struct {
	Symbol string           `json:"symbol"`
	Name   string           `json:"name"`
	Price  *decimal.Decimal `json:"price"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Status())
}

func (s *server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, r, s.svc.ListCurrencies(r.Context()), nil)
}

func (s *server) handleCurrency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := aggregate.Normalize(chi.URLParam(r, "code"))
	if !s.svc.CurrencyExists(ctx, code) {
		writeError(w, http.StatusNotFound, "unknown currency "+code)
		return
	}
	resp := currencyResponse{Symbol: code, Name: s.svc.CurrencyName(ctx, code)}
	if v, ok := s.svc.CurrencyRate(ctx, code); ok {
		resp.Rate = &v
	}
	if v, ok := s.svc.NormalizedCurrencyRate(ctx, code); ok {
		resp.NormalizedRate = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleTickers(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, r, s.svc.ListActiveTickers(r.Context()), nil)
}

func (s *server) handleTicker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := aggregate.Normalize(chi.URLParam(r, "ticker"))
	if !s.svc.TickerExists(ctx, ticker) {
		writeError(w, http.StatusNotFound, "unknown ticker "+ticker)
		return
	}
	resp := tickerResponse{Symbol: ticker, Name: s.svc.TickerName(ctx, ticker)}
	if v, ok := s.svc.TickerPrice(ctx, ticker); ok {
		resp.Price = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"prices": s.svc.SharePrices(r.Context()),
		"stats":  s.app.Catalog.LastBatchStats(),
	})
}

func (s *server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, r, s.svc.AllInstruments(r.Context()), nil)
}

func (s *server) handleInstrument(w http.ResponseWriter, r *http.Request) {
	d, ok := s.svc.Describe(r.Context(), chi.URLParam(r, "symbol"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown instrument")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := search.ParseScope(q.Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	s.writePage(w, r, s.svc.Search(ctx, scope, q.Get("q")), s.svc.Names(ctx))
}

func (s *server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": withNames(s.svc.Autocomplete(ctx, r.URL.Query().Get("q"), n), s.svc.Names(ctx)),
	})
}

// writePage pages list by the page and size query parameters. When names
// is non-nil, items carry display names.
func (s *server) writePage(w http.ResponseWriter, r *http.Request, list []string, names map[string]string) {
	page, err := intParam(r, "page", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size, err := intParam(r, "size", s.cfg.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.MaxPageSize > 0 && size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}

	items := aggregate.Page(list, page, size)
	resp := pageResponse{Items: items, Page: page, Pages: aggregate.TotalPages(len(list), size), Total: len(list)}
	if names != nil {
		resp.Items = withNames(items, names)
	}
	writeJSON(w, http.StatusOK, resp)
}

func withNames(symbols []string, names map[string]string) []namedSymbol {
	out := make([]namedSymbol, 0, len(symbols))
	for _, sym := range symbols {
		name := names[sym]
		if name == "" {
			name = sym
		}
		out = append(out, namedSymbol{Symbol: sym, Name: name})
	}
	return out
}

func intParam(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &paramError{key: key, value: v}
	}
	return n, nil
}

type paramError struct{ key, value string }

func (e *paramError) Error() string {
	return "invalid " + e.key + " query param: " + strconv.Quote(e.value)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
