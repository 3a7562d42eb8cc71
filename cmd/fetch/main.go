// Command fetch runs one query against the live sources and prints JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finref/internal/aggregate"
	"finref/internal/app"
	"finref/internal/config"
	"finref/internal/logger"
	"finref/internal/search"
)

type options struct {
	currency string
	ticker   string
	query    string
	scope    string
	n        int
	search   bool
}

func main() {
	var (
		opts       options
		configPath string
		timeout    int
		verbose    bool
	)
	flag.StringVar(&opts.currency, "currency", "", "currency code to describe (e.g. USD)")
	flag.StringVar(&opts.ticker, "ticker", "", "ticker to describe (e.g. SBER)")
	flag.StringVar(&opts.query, "search", "", "free-text search query")
	flag.StringVar(&opts.scope, "scope", "all", "search scope: all, currencies, tickers")
	flag.IntVar(&opts.n, "n", 0, "autocomplete mode: return at most n suggestions for -search")
	flag.IntVar(&timeout, "timeout", 60, "overall timeout seconds")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml or config.json (optional)")
	flag.BoolVar(&verbose, "v", false, "log to stderr")
	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "search" {
			opts.search = true
		}
	})

	log := zerolog.Nop()
	if verbose {
		log = logger.NewWithWriter(logger.Config{Level: "debug", Pretty: true}, os.Stderr)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	a, err := app.New(cfg, log)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if err := run(ctx, a.Service, opts, os.Stdout); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, svc *aggregate.Service, opts options, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	switch {
	case opts.currency != "":
		code := aggregate.Normalize(opts.currency)
		if !svc.CurrencyExists(ctx, code) {
			return fmt.Errorf("unknown currency %s", code)
		}
		d := map[string]any{"symbol": code, "name": svc.CurrencyName(ctx, code)}
		if v, ok := svc.CurrencyRate(ctx, code); ok {
			d["rate"] = v
		}
		if v, ok := svc.NormalizedCurrencyRate(ctx, code); ok {
			d["normalized_rate"] = v
		}
		return enc.Encode(d)

	case opts.ticker != "":
		ticker := aggregate.Normalize(opts.ticker)
		if !svc.TickerExists(ctx, ticker) {
			return fmt.Errorf("unknown ticker %s", ticker)
		}
		d := map[string]any{"symbol": ticker, "name": svc.TickerName(ctx, ticker)}
		if v, ok := svc.TickerPrice(ctx, ticker); ok {
			d["price"] = v
		}
		return enc.Encode(d)

	case opts.n > 0:
		return enc.Encode(svc.Autocomplete(ctx, opts.query, opts.n))

	case opts.search:
		scope, err := search.ParseScope(opts.scope)
		if err != nil {
			return err
		}
		return enc.Encode(svc.Search(ctx, scope, opts.query))
	}

	return enc.Encode(map[string]any{
		"currencies": svc.ListCurrencies(ctx),
		"tickers":    svc.ListActiveTickers(ctx),
	})
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "fetch:", strings.TrimSpace(err.Error()))
	os.Exit(1)
}
