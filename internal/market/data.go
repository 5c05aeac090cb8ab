package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"coinledger/internal/core"
	"coinledger/internal/exchange"
	"coinledger/internal/money"
)

// OrderBook returns the top of book for coin versus the quote currency.
func (m *Market) OrderBook(ctx context.Context, coin string) (core.OrderBookTop, error) {
	pair := strings.ToUpper(coin) + "/" + m.Quote
	book, err := m.Gateway.FetchOrderBook(ctx, pair)
	if err != nil {
		return core.OrderBookTop{}, m.gatewayFailure("fetch_order_book", coin, err)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return core.OrderBookTop{}, fmt.Errorf("%w: %s on %s", core.ErrEmptyOrderBook, pair, m.Name)
	}
	bid := book.Bids[0]
	ask := book.Asks[0]
	return core.OrderBookTop{
		BidRate:     bid.Price,
		AskRate:     ask.Price,
		BidQuantity: money.FormatQty(bid.Quantity),
		AskQuantity: money.FormatQty(ask.Quantity),
	}, nil
}

// RefreshTickers rewrites the market's coin snapshots from the venue's
// ticker list, keeping only pairs denominated in the quote currency.
func (m *Market) RefreshTickers(ctx context.Context) error {
	tickers, err := m.Gateway.FetchTickers(ctx)
	if err != nil {
		return m.gatewayFailure("fetch_tickers", "", err)
	}
	suffix := "/" + m.Quote
	coins := make([]core.Coin, 0, len(tickers))
	for pair, tick := range tickers {
		if !strings.HasSuffix(pair, suffix) {
			continue
		}
		coins = append(coins, core.Coin{
			Market: m.Name,
			Name:   strings.TrimSuffix(pair, suffix),
			Ask:    tick.Ask,
			Bid:    tick.Bid,
			Last:   tick.Last,
		})
	}
	if err := m.Store.ReplaceCoins(m.Name, coins); err != nil {
		return err
	}
	m.log.WithField("coins", len(coins)).Info("tickers refreshed")
	return nil
}

// WatchTickers follows the venue's live ticker stream until ctx is
// cancelled, upserting each quote-denominated update into the stored coin
// snapshots and passing it to fn. fn may be nil.
func (m *Market) WatchTickers(ctx context.Context, fn func(coin string, tick core.Ticker)) error {
	streamer, ok := m.Gateway.(exchange.Streamer)
	if !ok {
		return fmt.Errorf("%w: %s gateway has no ticker stream", core.ErrNotImplemented, m.Name)
	}
	if m.WSURL == "" {
		return fmt.Errorf("no ws_url configured for %s", m.Name)
	}
	suffix := "/" + m.Quote
	return streamer.StreamTickers(ctx, m.WSURL, func(pair string, tick core.Ticker) {
		if !strings.HasSuffix(pair, suffix) {
			return
		}
		coin := strings.TrimSuffix(pair, suffix)
		snap := core.Coin{Market: m.Name, Name: coin, Ask: tick.Ask, Bid: tick.Bid, Last: tick.Last}
		if err := m.Store.PutCoin(snap); err != nil {
			m.log.WithField("coin", coin).WithError(err).Warn("ticker snapshot not saved")
			return
		}
		if fn != nil {
			fn(coin, tick)
		}
	})
}

// LastPrice returns the last trade price from the stored ticker snapshot.
func (m *Market) LastPrice(coin string) (decimal.Decimal, error) {
	snap, found, err := m.Store.GetCoin(m.Name, coin)
	if err != nil {
		return decimal.Zero, err
	}
	if !found || snap.Last.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("no last price for %s on %s", coin, m.Name)
	}
	return snap.Last, nil
}

// RefreshCurrencies reloads the fee policy's withdrawal-fee table from the
// venue's currency list.
func (m *Market) RefreshCurrencies(ctx context.Context) error {
	currencies, err := m.Gateway.FetchCurrencies(ctx)
	if err != nil {
		return m.gatewayFailure("fetch_currencies", "", err)
	}
	m.Fees.Refresh(currencies)
	m.log.WithField("currencies", len(currencies)).Info("currencies refreshed")
	return nil
}
