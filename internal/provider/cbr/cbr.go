// Package cbr fetches the currency dictionary and daily official rates from
// the Central Bank of Russia XML scripts.
package cbr

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"finref/internal/httpx"
	"finref/internal/provider"
)

const (
	DefaultDictionaryURL = "https://www.cbr.ru/scripts/XML_valFull.asp"
	DefaultDailyURL      = "https://www.cbr.ru/scripts/XML_daily.asp"
)

// Config controls the CBR provider behavior.
type Config struct {
	Name          string
	DictionaryURL string
	DailyURL      string
}

// Provider implements provider.RateSource over the CBR XML scripts.
type Provider struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger
}

func New(cfg Config, hc *httpx.Client, log zerolog.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "cbr"
	}
	if cfg.DictionaryURL == "" {
		cfg.DictionaryURL = DefaultDictionaryURL
	}
	if cfg.DailyURL == "" {
		cfg.DailyURL = DefaultDailyURL
	}
	return &Provider{cfg: cfg, client: hc, log: log.With().Str("source", cfg.Name).Logger()}
}

func (p *Provider) Name() string { return p.cfg.Name }

var xmlHeader = http.Header{"Accept": []string{"application/xml, text/xml"}}

// CurrencyDictionary fetches the full currency dictionary.
func (p *Provider) CurrencyDictionary(ctx context.Context) ([]provider.CurrencyInfo, error) {
	body, err := p.client.GetBody(ctx, p.cfg.DictionaryURL, xmlHeader)
	if err != nil {
		return nil, provider.Unavailable(p.cfg.Name, err)
	}
	out, recErrs, err := ParseDictionary(body)
	if err != nil {
		p.log.Error().Err(err).Str("sample", sample(body)).Msg("currency dictionary unreadable")
		return nil, err
	}
	p.logRecordErrors(recErrs)
	p.log.Info().Int("currencies", len(out)).Msg("currency dictionary fetched")
	return out, nil
}

// DailyRates fetches the official rates for date.
func (p *Provider) DailyRates(ctx context.Context, date time.Time) ([]provider.CurrencyRate, error) {
	u, err := url.Parse(p.cfg.DailyURL)
	if err != nil {
		return nil, provider.Unavailable(p.cfg.Name, err)
	}
	q := u.Query()
	q.Set("date_req", date.Format(requestDateLayout))
	u.RawQuery = q.Encode()

	body, err := p.client.GetBody(ctx, u.String(), xmlHeader)
	if err != nil {
		return nil, provider.Unavailable(p.cfg.Name, err)
	}
	out, recErrs, err := ParseDailyRates(body, date)
	if err != nil {
		p.log.Error().Err(err).Str("sample", sample(body)).Msg("daily rates unreadable")
		return nil, err
	}
	p.logRecordErrors(recErrs)
	p.log.Info().Int("rates", len(out)).Str("date", date.Format(time.DateOnly)).Msg("daily rates fetched")
	return out, nil
}

func (p *Provider) logRecordErrors(errs []error) {
	for _, err := range errs {
		p.log.Warn().Err(err).Msg("skipping malformed field")
	}
}

func sample(b []byte) string {
	if len(b) > 1000 {
		b = b[:1000]
	}
	return string(b)
}
