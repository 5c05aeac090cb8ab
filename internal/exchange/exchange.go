package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"coinledger/internal/core"
)

// Gateway is the trading venue's API surface the engines consume. Every
// call takes a context so the single slow external step of each operation
// can be cancelled independently of the ledger work around it.
type Gateway interface {
	Name() string
	PlaceLimitBuy(ctx context.Context, coin string, units, price decimal.Decimal) (string, error)
	PlaceLimitSell(ctx context.Context, coin string, amount, rate decimal.Decimal) (string, error)
	Withdraw(ctx context.Context, coin string, amount decimal.Decimal, address string) (string, error)
	FetchOrderBook(ctx context.Context, pair string) (core.OrderBook, error)
	FetchTickers(ctx context.Context) (map[string]core.Ticker, error)
	FetchCurrencies(ctx context.Context) (map[string]core.Currency, error)
}

// Streamer is the optional push side of a gateway: live ticker updates
// over a websocket. Engines discover it by type assertion; venues without
// a stream simply don't implement it.
type Streamer interface {
	StreamTickers(ctx context.Context, wsURL string, fn func(pair string, tick core.Ticker)) error
}
