// Package price quotes coins in fiat via a cryptocompare-style HTTP API,
// with a short TTL cache so repeated lookups do not hammer the endpoint.
package price

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinledger/internal/money"
)

var log = logrus.WithField("component", "price")

const (
	defaultBaseURL = "https://min-api.cryptocompare.com"
	defaultTimeout = 10 * time.Second
	defaultTTL     = 5 * time.Second
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	// TTL bounds how long a quote is served from cache.
	TTL time.Duration
}

// Service fetches spot fiat prices. Quotes are cached per (coin, fiat)
// for the configured TTL.
type Service struct {
	http  *resty.Client
	cache *ristretto.Cache[string, decimal.Decimal]
	ttl   time.Duration
}

func New(opts Options) (*Service, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, decimal.Decimal]{
		NumCounters: 1e4,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "price cache")
	}
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	return &Service{http: hc, cache: cache, ttl: ttl}, nil
}

func (s *Service) Close() {
	s.cache.Close()
}

func cacheKey(coin, fiat string) string {
	return strings.ToUpper(coin) + "/" + strings.ToUpper(fiat)
}

// Get returns the current price of coin in fiat.
func (s *Service) Get(ctx context.Context, coin, fiat string) (decimal.Decimal, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	fiat = strings.ToUpper(strings.TrimSpace(fiat))
	if coin == "" || fiat == "" {
		return decimal.Zero, errors.New("price: coin and fiat are required")
	}

	key := cacheKey(coin, fiat)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	quote, err := s.fetch(ctx, coin, fiat)
	if err != nil {
		return decimal.Zero, err
	}
	s.cache.SetWithTTL(key, quote, 1, s.ttl)
	s.cache.Wait()
	return quote, nil
}

// GetFormatted returns the price as a fixed 10-digit string.
func (s *Service) GetFormatted(ctx context.Context, coin, fiat string) (string, error) {
	quote, err := s.Get(ctx, coin, fiat)
	if err != nil {
		return "", err
	}
	return money.FormatQty(quote), nil
}

func (s *Service) fetch(ctx context.Context, coin, fiat string) (decimal.Decimal, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fsym":  coin,
			"tsyms": fiat,
		}).
		Get("/data/price")
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch %s/%s price", coin, fiat)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, errors.Errorf("fetch %s/%s price: status %d", coin, fiat, resp.StatusCode())
	}

	// The API answers {"USD": 123.45}; decode through json.Number so the
	// quote lands in a decimal without a float round trip.
	var body map[string]json.Number
	dec := json.NewDecoder(strings.NewReader(string(resp.Body())))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, errors.Wrapf(err, "decode %s/%s price", coin, fiat)
	}
	raw, ok := body[fiat]
	if !ok {
		return decimal.Zero, errors.Errorf("fetch %s/%s price: no quote in response", coin, fiat)
	}
	quote, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s/%s price %q", coin, fiat, raw)
	}
	if quote.Sign() <= 0 {
		return decimal.Zero, errors.Errorf("fetch %s/%s price: non-positive quote %s", coin, fiat, quote)
	}
	log.WithFields(logrus.Fields{"coin": coin, "fiat": fiat, "price": quote}).Debug("fetched price")
	return quote, nil
}
