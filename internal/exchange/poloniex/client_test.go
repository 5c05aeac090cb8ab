package poloniex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		BaseURL:   srv.URL,
		APIKey:    "key-1",
		APISecret: "secret-1",
		Quote:     "BTC",
		Timeout:   5 * time.Second,
	})
	c.newID = func() string { return "client-id-1" }
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestPlaceLimitBuySignsAndParses(t *testing.T) {
	var gotBody string
	var gotSig, gotTS, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("request = %s %s, want POST /orders", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSig = r.Header.Get("signature")
		gotTS = r.Header.Get("signTimestamp")
		gotKey = r.Header.Get("key")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "338765568", "clientOrderId": "client-id-1"})
	})

	id, err := c.PlaceLimitBuy(context.Background(), "XMR",
		decimal.NewFromInt(10), decimal.RequireFromString("0.01"))
	if err != nil {
		t.Fatalf("PlaceLimitBuy() error = %v", err)
	}
	if id != "338765568" {
		t.Fatalf("PlaceLimitBuy() id = %q, want %q", id, "338765568")
	}

	var req placeOrderRequest
	if err := json.Unmarshal([]byte(gotBody), &req); err != nil {
		t.Fatalf("request body not json: %v", err)
	}
	if req.Symbol != "XMR_BTC" || req.Side != "BUY" || req.Type != "LIMIT" {
		t.Fatalf("request = %+v, want XMR_BTC BUY LIMIT", req)
	}
	if req.Quantity != "10" || req.Price != "0.01" {
		t.Fatalf("request qty/price = %s/%s, want 10/0.01", req.Quantity, req.Price)
	}
	if req.ClientOrderID != "client-id-1" {
		t.Fatalf("request client id = %q, want deterministic id", req.ClientOrderID)
	}

	if gotKey != "key-1" {
		t.Fatalf("key header = %q, want key-1", gotKey)
	}
	if gotTS != "1700000000000" {
		t.Fatalf("signTimestamp = %q, want 1700000000000", gotTS)
	}
	payload := "POST\n/orders\n" + gotBody + "&signTimestamp=" + gotTS
	mac := hmac.New(sha256.New, []byte("secret-1"))
	mac.Write([]byte(payload))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}
}

func TestWithdrawReturnsRequestID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallets/withdraw" {
			t.Errorf("path = %s, want /wallets/withdraw", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"withdrawalRequestsId": 33})
	})

	id, err := c.Withdraw(context.Background(), "XMR", decimal.NewFromInt(5), "addr-1")
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if id != "33" {
		t.Fatalf("Withdraw() id = %q, want %q", id, "33")
	}
}

func TestFetchOrderBookParsesFlatLevels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/XMR_BTC/orderBook" {
			t.Errorf("path = %s, want /markets/XMR_BTC/orderBook", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"bids":["0.0119","4.5","0.0118","1"],"asks":["0.0121","2.25"]}`))
	})

	book, err := c.FetchOrderBook(context.Background(), "XMR/BTC")
	if err != nil {
		t.Fatalf("FetchOrderBook() error = %v", err)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("book sides = %d bids, %d asks, want 2/1", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(decimal.RequireFromString("0.0119")) {
		t.Fatalf("top bid price = %s, want 0.0119", book.Bids[0].Price)
	}
	if !book.Asks[0].Quantity.Equal(decimal.RequireFromString("2.25")) {
		t.Fatalf("top ask qty = %s, want 2.25", book.Asks[0].Quantity)
	}
}

func TestFetchOrderBookRejectsOddLevelArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bids":["0.0119"],"asks":[]}`))
	})
	if _, err := c.FetchOrderBook(context.Background(), "XMR/BTC"); err == nil {
		t.Fatalf("FetchOrderBook() error = nil, want odd-array parse error")
	}
}

func TestFetchTickersKeysByPair(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol":"XMR_BTC","ask":"0.0121","bid":"0.0119","close":"0.012"},
			{"symbol":"ETH_USDT","ask":"2001","bid":"1999","close":"2000"},
			{"symbol":"BROKEN","ask":"1","bid":"1","close":"1"}
		]`))
	})

	tickers, err := c.FetchTickers(context.Background())
	if err != nil {
		t.Fatalf("FetchTickers() error = %v", err)
	}
	if len(tickers) != 2 {
		t.Fatalf("FetchTickers() len = %d, want 2 (symbol without underscore skipped)", len(tickers))
	}
	xmr, ok := tickers["XMR/BTC"]
	if !ok {
		t.Fatalf("FetchTickers() missing XMR/BTC key, got %v", tickers)
	}
	if !xmr.Last.Equal(decimal.RequireFromString("0.012")) {
		t.Fatalf("XMR/BTC last = %s, want 0.012", xmr.Last)
	}
}

func TestFetchCurrenciesMapsWalletState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"XMR": {"delisted":false,"walletState":"ENABLED","withdrawalFee":"0.0001"},
			"DGB": {"delisted":false,"walletState":"DISABLED","withdrawalFee":"0.2"},
			"POT": {"delisted":true,"walletState":"ENABLED","withdrawalFee":"0.1"}
		}`))
	})

	currencies, err := c.FetchCurrencies(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrencies() error = %v", err)
	}
	xmr := currencies["XMR"]
	if xmr.Disabled || xmr.Delisted || !xmr.TxFee.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("XMR = %+v, want enabled with fee 0.0001", xmr)
	}
	if !currencies["DGB"].Disabled {
		t.Fatalf("DGB.Disabled = false, want true")
	}
	if !currencies["POT"].Delisted {
		t.Fatalf("POT.Delisted = false, want true")
	}
}

func TestParseAPIError(t *testing.T) {
	err := parseAPIError(http.StatusBadRequest, []byte(`{"code":21721,"message":"Insufficient balance"}`))
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("parseAPIError() type = %T, want APIError", err)
	}
	if apiErr.Code != 21721 || apiErr.Msg != "Insufficient balance" {
		t.Fatalf("apiErr = %+v, want code 21721", apiErr)
	}

	err = parseAPIError(http.StatusBadGateway, []byte("bad gateway"))
	if _, ok := AsAPIError(err); ok {
		t.Fatalf("parseAPIError(non-json) unexpectedly returned APIError: %v", err)
	}
	if !strings.Contains(err.Error(), "http error 502") {
		t.Fatalf("parseAPIError(non-json) = %v, want http error", err)
	}
}

func TestPlaceOrderSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21721,"message":"Insufficient balance"}`))
	})
	_, err := c.PlaceLimitSell(context.Background(), "XMR", decimal.NewFromInt(1), decimal.NewFromInt(1))
	if err == nil {
		t.Fatalf("PlaceLimitSell() error = nil, want APIError")
	}
	if _, ok := AsAPIError(err); !ok {
		t.Fatalf("PlaceLimitSell() error = %v, want APIError in chain", err)
	}
}
