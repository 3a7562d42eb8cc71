// Command prices_dump fetches the last price of every active ticker and
// writes the snapshot to a JSON file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finref/internal/aggregate"
	"finref/internal/app"
	"finref/internal/config"
	"finref/internal/logger"
)

type dump struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Count       int               `json:"count"`
	Quotes      []aggregate.Quote `json:"quotes"`
}

func main() {
	var (
		outPath     string
		cfgPath     string
		concurrency int
		timeoutSec  int
	)
	flag.StringVar(&outPath, "out", "moex_prices.json", "output JSON file path")
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml or config.json (optional)")
	flag.IntVar(&concurrency, "concurrency", 0, "parallel price requests (0 = config value)")
	flag.IntVar(&timeoutSec, "timeout", 600, "overall timeout seconds")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: true})
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if concurrency > 0 {
		cfg.MOEX.MaxConcurrency = concurrency
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	start := time.Now()
	quotes := a.Service.Snapshot(ctx)
	stats := a.Catalog.LastBatchStats()
	if stats.Candidates == 0 {
		log.Fatal().Msg("no active tickers; is the exchange reachable?")
	}

	if err := writeDump(outPath, dump{GeneratedAt: time.Now().UTC(), Count: len(quotes), Quotes: quotes}); err != nil {
		log.Fatal().Err(err).Msg("write")
	}
	log.Info().
		Str("out", outPath).
		Int("priced", stats.Priced).
		Int("absent", stats.Absent).
		Int("failed", stats.Failed).
		Dur("took", time.Since(start)).
		Msg("prices dumped")
}

// writeDump writes to a temp file next to path and renames it into place.
func writeDump(path string, d dump) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
