package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string   `json:"port" yaml:"port"`
	RequestTimeoutSec int      `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	AllowedOrigins    []string `json:"allowed_origins" yaml:"allowed_origins"`
	DefaultPageSize   int      `json:"default_page_size" yaml:"default_page_size"`
	MaxPageSize       int      `json:"max_page_size" yaml:"max_page_size"`
}

type Log struct {
	Level      string `json:"level" yaml:"level"`
	Pretty     bool   `json:"pretty" yaml:"pretty"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

type CBR struct {
	DictionaryURL        string  `json:"dictionary_url" yaml:"dictionary_url"`
	DailyURL             string  `json:"daily_url" yaml:"daily_url"`
	FetchTimeoutSec      int     `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
	MaxRequestsPerSecond float64 `json:"max_requests_per_second" yaml:"max_requests_per_second"`
	Burst                int     `json:"burst" yaml:"burst"`
}

type MOEX struct {
	BaseURL              string  `json:"base_url" yaml:"base_url"`
	Board                string  `json:"board" yaml:"board"`
	FetchTimeoutSec      int     `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
	MaxRequestsPerSecond float64 `json:"max_requests_per_second" yaml:"max_requests_per_second"`
	Burst                int     `json:"burst" yaml:"burst"`
	MaxConcurrency       int     `json:"max_concurrency" yaml:"max_concurrency"`
}

type Cache struct {
	CurrenciesTTLSec int `json:"currencies_ttl_sec" yaml:"currencies_ttl_sec"`
	RatesTTLSec      int `json:"rates_ttl_sec" yaml:"rates_ttl_sec"`
	SecuritiesTTLSec int `json:"securities_ttl_sec" yaml:"securities_ttl_sec"`
	PricesTTLSec     int `json:"prices_ttl_sec" yaml:"prices_ttl_sec"`
	PricesMaxItems   int `json:"prices_max_items" yaml:"prices_max_items"`
}

type Config struct {
	Server Server `json:"server" yaml:"server"`
	Log    Log    `json:"log" yaml:"log"`
	CBR    CBR    `json:"cbr" yaml:"cbr"`
	MOEX   MOEX   `json:"moex" yaml:"moex"`
	Cache  Cache  `json:"cache" yaml:"cache"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			RequestTimeoutSec: 35,
			AllowedOrigins:    []string{"*"},
			DefaultPageSize:   10,
			MaxPageSize:       100,
		},
		Log: Log{Level: "info", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 14},
		CBR: CBR{
			DictionaryURL:   "https://www.cbr.ru/scripts/XML_valFull.asp",
			DailyURL:        "https://www.cbr.ru/scripts/XML_daily.asp",
			FetchTimeoutSec: 30,
		},
		MOEX: MOEX{
			BaseURL:              "https://iss.moex.com/iss",
			Board:                "TQBR",
			FetchTimeoutSec:      30,
			MaxRequestsPerSecond: 10,
			Burst:                5,
			MaxConcurrency:       4,
		},
		Cache: Cache{
			CurrenciesTTLSec: 24 * 60 * 60,
			RatesTTLSec:      24 * 60 * 60,
			SecuritiesTTLSec: 10 * 60,
			PricesTTLSec:     10 * 60,
			PricesMaxItems:   1000,
		},
	}
}

// defaultPaths are tried in order when Load is given no path.
var defaultPaths = []string{"config.yaml", "config.yml", "config.json"}

// Load reads the config from path, as YAML or JSON by extension. With an
// empty path the first existing default file is used; a missing file gives
// defaults. A .env file, when present, is loaded first, and environment
// variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := unmarshal(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func unmarshal(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	envBool("LOG_PRETTY", &cfg.Log.Pretty)
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	if v := os.Getenv("CBR_DICTIONARY_URL"); v != "" {
		cfg.CBR.DictionaryURL = v
	}
	if v := os.Getenv("CBR_DAILY_URL"); v != "" {
		cfg.CBR.DailyURL = v
	}
	envInt("CBR_FETCH_TIMEOUT_SEC", &cfg.CBR.FetchTimeoutSec, 1)

	if v := os.Getenv("MOEX_BASE_URL"); v != "" {
		cfg.MOEX.BaseURL = v
	}
	if v := os.Getenv("MOEX_BOARD"); v != "" {
		cfg.MOEX.Board = strings.ToUpper(v)
	}
	envInt("MOEX_FETCH_TIMEOUT_SEC", &cfg.MOEX.FetchTimeoutSec, 1)
	envFloat("MOEX_MAX_RPS", &cfg.MOEX.MaxRequestsPerSecond)
	envInt("MOEX_BURST", &cfg.MOEX.Burst, 1)
	envInt("MOEX_MAX_CONCURRENCY", &cfg.MOEX.MaxConcurrency, 1)

	envInt("CACHE_CURRENCIES_TTL_SEC", &cfg.Cache.CurrenciesTTLSec, 1)
	envInt("CACHE_RATES_TTL_SEC", &cfg.Cache.RatesTTLSec, 1)
	envInt("CACHE_SECURITIES_TTL_SEC", &cfg.Cache.SecuritiesTTLSec, 1)
	envInt("CACHE_PRICES_TTL_SEC", &cfg.Cache.PricesTTLSec, 1)
	envInt("CACHE_PRICES_MAX_ITEMS", &cfg.Cache.PricesMaxItems, 1)
}

// envInt sets *dst from key when it parses to a value >= floor.
func envInt(key string, dst *int, floor int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if x, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && x >= floor {
		*dst = x
	}
}

func envFloat(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if x, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && x >= 0 {
		*dst = x
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (s Server) RequestTimeout() time.Duration { return seconds(s.RequestTimeoutSec) }
func (c CBR) FetchTimeout() time.Duration      { return seconds(c.FetchTimeoutSec) }
func (m MOEX) FetchTimeout() time.Duration     { return seconds(m.FetchTimeoutSec) }

func (c Cache) CurrenciesTTL() time.Duration { return seconds(c.CurrenciesTTLSec) }
func (c Cache) RatesTTL() time.Duration      { return seconds(c.RatesTTLSec) }
func (c Cache) SecuritiesTTL() time.Duration { return seconds(c.SecuritiesTTLSec) }
func (c Cache) PricesTTL() time.Duration     { return seconds(c.PricesTTLSec) }
