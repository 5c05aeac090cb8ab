package market

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"coinledger/internal/core"
	"coinledger/internal/ledger"
	"coinledger/internal/store"
)

type fakeGateway struct {
	buyID       string
	sellID      string
	withdrawID  string
	buyErr      error
	sellErr     error
	withdrawErr error

	book       core.OrderBook
	bookErr    error
	tickers    map[string]core.Ticker
	currencies map[string]core.Currency

	buyCalls        int
	sellCalls       int
	withdrawCalls   int
	currenciesCalls int

	lastCoin  string
	lastQty   decimal.Decimal
	lastPrice decimal.Decimal
	lastAddr  string
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) PlaceLimitBuy(ctx context.Context, coin string, units, price decimal.Decimal) (string, error) {
	f.buyCalls++
	f.lastCoin, f.lastQty, f.lastPrice = coin, units, price
	if f.buyErr != nil {
		return "", f.buyErr
	}
	return f.buyID, nil
}

func (f *fakeGateway) PlaceLimitSell(ctx context.Context, coin string, amount, rate decimal.Decimal) (string, error) {
	f.sellCalls++
	f.lastCoin, f.lastQty, f.lastPrice = coin, amount, rate
	if f.sellErr != nil {
		return "", f.sellErr
	}
	return f.sellID, nil
}

func (f *fakeGateway) Withdraw(ctx context.Context, coin string, amount decimal.Decimal, address string) (string, error) {
	f.withdrawCalls++
	f.lastCoin, f.lastQty, f.lastAddr = coin, amount, address
	if f.withdrawErr != nil {
		return "", f.withdrawErr
	}
	return f.withdrawID, nil
}

func (f *fakeGateway) FetchOrderBook(ctx context.Context, pair string) (core.OrderBook, error) {
	if f.bookErr != nil {
		return core.OrderBook{}, f.bookErr
	}
	return f.book, nil
}

func (f *fakeGateway) FetchTickers(ctx context.Context) (map[string]core.Ticker, error) {
	return f.tickers, nil
}

func (f *fakeGateway) FetchCurrencies(ctx context.Context) (map[string]core.Currency, error) {
	f.currenciesCalls++
	return f.currencies, nil
}

type alertSpy struct {
	mu     sync.Mutex
	events []string
}

func (a *alertSpy) Important(event string, fields map[string]string) {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
}

func (a *alertSpy) has(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

type testMarket struct {
	market *Market
	gw     *fakeGateway
	ledger *ledger.Ledger
	store  *store.Store
	alerts *alertSpy
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%q) error = %v", s, err)
	}
	return d
}

// newTestMarket builds a Poloniex-named market over a fake gateway with
// maker 0.15%, taker 0.25%, and XMR withdrawable at 0.0001 (BTC 0.0005).
func newTestMarket(t *testing.T) *testMarket {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	gw := &fakeGateway{
		buyID:      "order-buy-1",
		sellID:     "order-sell-1",
		withdrawID: "wd-1",
		currencies: map[string]core.Currency{
			"BTC": {Symbol: "BTC", TxFee: dec(t, "0.0005")},
			"XMR": {Symbol: "XMR", TxFee: dec(t, "0.0001")},
		},
	}
	spy := &alertSpy{}
	l := ledger.New(st)
	rec := store.MarketRecord{
		Name:     "Poloniex",
		Driver:   "fake",
		MakerFee: dec(t, "0.15"),
		TakerFee: dec(t, "0.25"),
	}
	m := New(rec, "BTC", l, st, gw, spy)
	if err := m.RefreshCurrencies(context.Background()); err != nil {
		t.Fatalf("RefreshCurrencies() error = %v", err)
	}
	return &testMarket{market: m, gw: gw, ledger: l, store: st, alerts: spy}
}

func (tm *testMarket) fund(t *testing.T, coin, balance string) {
	t.Helper()
	w, err := tm.ledger.GetOrCreate("Poloniex", coin, nil)
	if err != nil {
		t.Fatalf("GetOrCreate(%s) error = %v", coin, err)
	}
	w.Balance = dec(t, balance)
	if err := tm.ledger.Persist(&w); err != nil {
		t.Fatalf("Persist(%s) error = %v", coin, err)
	}
}

func (tm *testMarket) balance(t *testing.T, coin string) decimal.Decimal {
	t.Helper()
	w, found, err := tm.ledger.Get("Poloniex", coin)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", coin, err)
	}
	if !found {
		return decimal.Zero
	}
	return w.Balance
}

func (tm *testMarket) transactions(t *testing.T) []core.Transaction {
	t.Helper()
	txs, err := tm.ledger.Transactions("Poloniex", store.TxFilter{})
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	return txs
}
