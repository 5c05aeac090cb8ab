package poloniex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinledger/internal/core"
)

var log = logrus.WithField("component", "poloniex")

const (
	defaultBaseURL = "https://api.poloniex.com"
	defaultTimeout = 30 * time.Second
)

// Client talks to the Poloniex spot API. Private calls are signed with
// HMAC-SHA256 over the canonical request; order submissions carry a
// generated client order id so a retried request cannot double-place.
type Client struct {
	http      *resty.Client
	apiKey    string
	apiSecret string
	quote     string
	newID     func() string
	now       func() time.Time
}

type Options struct {
	BaseURL   string
	APIKey    string
	APISecret string
	// Quote is the currency pairs are denominated in, BTC by default.
	Quote   string
	Timeout time.Duration
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	quote := strings.ToUpper(strings.TrimSpace(opts.Quote))
	if quote == "" {
		quote = "BTC"
	}
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// Never retry writes: a retried order or withdrawal after an
			// ambiguous failure is exactly the double-spend to avoid.
			if resp != nil && resp.Request != nil && resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || (resp != nil && resp.StatusCode() == http.StatusTooManyRequests)
		})
	return &Client{
		http:      hc,
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		quote:     quote,
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

func (c *Client) Name() string { return "poloniex" }

// symbol converts an engine pair ("XMR/BTC") to venue form ("XMR_BTC").
func symbol(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "/", "_")
}

func (c *Client) pairFor(coin string) string {
	return strings.ToUpper(coin) + "_" + c.quote
}

func (c *Client) PlaceLimitBuy(ctx context.Context, coin string, units, price decimal.Decimal) (string, error) {
	return c.placeOrder(ctx, coin, "BUY", units, price)
}

func (c *Client) PlaceLimitSell(ctx context.Context, coin string, amount, rate decimal.Decimal) (string, error) {
	return c.placeOrder(ctx, coin, "SELL", amount, rate)
}

func (c *Client) placeOrder(ctx context.Context, coin, side string, qty, price decimal.Decimal) (string, error) {
	req := placeOrderRequest{
		Symbol:        c.pairFor(coin),
		Side:          side,
		Type:          "LIMIT",
		Quantity:      qty.String(),
		Price:         price.String(),
		ClientOrderID: c.newID(),
	}
	log.WithFields(logrus.Fields{
		"symbol": req.Symbol, "side": side,
		"qty": req.Quantity, "price": req.Price, "client_id": req.ClientOrderID,
	}).Info("place limit order")

	var resp placeOrderResponse
	if err := c.doPrivate(ctx, http.MethodPost, "/orders", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.Errorf("place order: empty order id for %s %s", side, req.Symbol)
	}
	return resp.ID, nil
}

func (c *Client) Withdraw(ctx context.Context, coin string, amount decimal.Decimal, address string) (string, error) {
	req := withdrawRequest{
		Currency: strings.ToUpper(coin),
		Amount:   amount.String(),
		Address:  address,
	}
	log.WithFields(logrus.Fields{
		"currency": req.Currency, "amount": req.Amount, "address": address,
	}).Info("withdraw")

	var resp withdrawResponse
	if err := c.doPrivate(ctx, http.MethodPost, "/wallets/withdraw", req, &resp); err != nil {
		return "", err
	}
	if resp.WithdrawalRequestID == 0 {
		return "", errors.New("withdraw: empty withdrawal request id")
	}
	return fmt.Sprintf("%d", resp.WithdrawalRequestID), nil
}

func (c *Client) FetchOrderBook(ctx context.Context, pair string) (core.OrderBook, error) {
	var resp orderBookResponse
	err := c.doPublic(ctx, "/markets/"+symbol(pair)+"/orderBook", map[string]string{"limit": "10"}, &resp)
	if err != nil {
		return core.OrderBook{}, err
	}
	bids, err := parseBookSide(resp.Bids)
	if err != nil {
		return core.OrderBook{}, errors.Wrap(err, "order book bids")
	}
	asks, err := parseBookSide(resp.Asks)
	if err != nil {
		return core.OrderBook{}, errors.Wrap(err, "order book asks")
	}
	return core.OrderBook{Bids: bids, Asks: asks}, nil
}

func (c *Client) FetchTickers(ctx context.Context) (map[string]core.Ticker, error) {
	var resp []tickerEntry
	if err := c.doPublic(ctx, "/markets/ticker24h", nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]core.Ticker, len(resp))
	for _, entry := range resp {
		base, quote, ok := splitSymbol(entry.Symbol)
		if !ok {
			continue
		}
		tick, err := entry.ticker()
		if err != nil {
			log.WithField("symbol", entry.Symbol).WithError(err).Warn("skip unparsable ticker")
			continue
		}
		out[base+"/"+quote] = tick
	}
	return out, nil
}

func (c *Client) FetchCurrencies(ctx context.Context) (map[string]core.Currency, error) {
	var resp map[string]currencyEntry
	if err := c.doPublic(ctx, "/currencies", nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]core.Currency, len(resp))
	for sym, entry := range resp {
		cur, err := entry.currency(sym)
		if err != nil {
			log.WithField("currency", sym).WithError(err).Warn("skip unparsable currency")
			continue
		}
		out[strings.ToUpper(sym)] = cur
	}
	return out, nil
}

func (c *Client) doPublic(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	return c.decode(resp, path, out)
}

func (c *Client) doPrivate(ctx context.Context, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "%s %s: encode body", method, path)
	}
	ts := fmt.Sprintf("%d", c.now().UnixMilli())
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("key", c.apiKey).
		SetHeader("signTimestamp", ts).
		SetHeader("signature", c.sign(method, path, string(payload), ts)).
		SetBody(string(payload)).
		Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	return c.decode(resp, path, out)
}

func (c *Client) decode(resp *resty.Response, path string, out any) error {
	if resp.StatusCode() >= 400 {
		return parseAPIError(resp.StatusCode(), resp.Body())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}
