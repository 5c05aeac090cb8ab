package poloniex

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"coinledger/internal/core"
)

type placeOrderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price"`
	ClientOrderID string `json:"clientOrderId"`
}

type placeOrderResponse struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"clientOrderId"`
}

type withdrawRequest struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	Address  string `json:"address"`
}

type withdrawResponse struct {
	WithdrawalRequestID int64 `json:"withdrawalRequestsId"`
}

// orderBookResponse carries each side as a flat price/quantity string
// array: ["price1","qty1","price2","qty2",...].
type orderBookResponse struct {
	Bids []string `json:"bids"`
	Asks []string `json:"asks"`
}

func parseBookSide(flat []string) ([]core.OrderBookLevel, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("odd level array length %d", len(flat))
	}
	levels := make([]core.OrderBookLevel, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		price, err := decimal.NewFromString(flat[i])
		if err != nil {
			return nil, fmt.Errorf("level %d price %q: %w", i/2, flat[i], err)
		}
		qty, err := decimal.NewFromString(flat[i+1])
		if err != nil {
			return nil, fmt.Errorf("level %d quantity %q: %w", i/2, flat[i+1], err)
		}
		levels = append(levels, core.OrderBookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

type tickerEntry struct {
	Symbol string `json:"symbol"`
	Ask    string `json:"ask"`
	Bid    string `json:"bid"`
	Close  string `json:"close"`
}

func (t tickerEntry) ticker() (core.Ticker, error) {
	ask, err := decimal.NewFromString(t.Ask)
	if err != nil {
		return core.Ticker{}, fmt.Errorf("ask %q: %w", t.Ask, err)
	}
	bid, err := decimal.NewFromString(t.Bid)
	if err != nil {
		return core.Ticker{}, fmt.Errorf("bid %q: %w", t.Bid, err)
	}
	last, err := decimal.NewFromString(t.Close)
	if err != nil {
		return core.Ticker{}, fmt.Errorf("close %q: %w", t.Close, err)
	}
	return core.Ticker{Ask: ask, Bid: bid, Last: last}, nil
}

func splitSymbol(sym string) (base, quote string, ok bool) {
	parts := strings.SplitN(strings.ToUpper(sym), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type currencyEntry struct {
	Delisted      bool   `json:"delisted"`
	WalletState   string `json:"walletState"`
	WithdrawalFee string `json:"withdrawalFee"`
}

func (e currencyEntry) currency(symbol string) (core.Currency, error) {
	fee := decimal.Zero
	if e.WithdrawalFee != "" {
		parsed, err := decimal.NewFromString(e.WithdrawalFee)
		if err != nil {
			return core.Currency{}, fmt.Errorf("withdrawal fee %q: %w", e.WithdrawalFee, err)
		}
		fee = parsed
	}
	return core.Currency{
		Symbol:   strings.ToUpper(symbol),
		Disabled: !strings.EqualFold(e.WalletState, "ENABLED"),
		Delisted: e.Delisted,
		TxFee:    fee,
	}, nil
}
