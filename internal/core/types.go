package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxBuy      TransactionType = "buy"
	TxSell     TransactionType = "sell"
	TxWithdraw TransactionType = "withdraw"
	TxDeposit  TransactionType = "deposit"
	TxTransfer TransactionType = "transfer"
)

// Transaction is one immutable money movement. For buy, sell, and withdraw
// the ExternalID is the venue's order or withdrawal id and is never empty;
// a transaction is only appended after the venue call returned it.
type Transaction struct {
	ID               uint64          `json:"id"`
	Market           string          `json:"market"`
	Coin             string          `json:"coin"`
	Type             TransactionType `json:"type"`
	Debit            decimal.Decimal `json:"debit"`
	Credit           decimal.Decimal `json:"credit"`
	Rate             decimal.Decimal `json:"rate"`
	Fee              decimal.Decimal `json:"fee"`
	Net              decimal.Decimal `json:"net"`
	ReceivingAddress string          `json:"receiving_address,omitempty"`
	ExternalID       string          `json:"external_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Wallet is the balance record for one (market, coin) pair. Exactly one
// exists per pair; it is created lazily with a zero balance and its balance
// is mutated only through the ledger.
type Wallet struct {
	Market    string          `json:"market"`
	Coin      string          `json:"coin"`
	Balance   decimal.Decimal `json:"balance"`
	Address   string          `json:"address,omitempty"`
	Info      string          `json:"info,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Coin is a ticker snapshot for one quote-denominated pair. Informational
// only, rewritten wholesale on every ticker refresh.
type Coin struct {
	Market string          `json:"market"`
	Name   string          `json:"name"`
	Ask    decimal.Decimal `json:"ask"`
	Bid    decimal.Decimal `json:"bid"`
	Last   decimal.Decimal `json:"last"`
}

// Currency is one entry of the venue's currency list.
type Currency struct {
	Symbol   string
	Disabled bool
	Delisted bool
	TxFee    decimal.Decimal
}

// Ticker is one entry of the venue's ticker list.
type Ticker struct {
	Ask  decimal.Decimal
	Bid  decimal.Decimal
	Last decimal.Decimal
}

// OrderBookTop is the best bid and ask for a pair. Quantities are
// preformatted to ten fractional digits.
type OrderBookTop struct {
	BidRate     decimal.Decimal
	AskRate     decimal.Decimal
	BidQuantity string
	AskQuantity string
}

// OrderBookLevel is one (price, quantity) level as returned by the venue.
type OrderBookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is the venue's order book for a pair.
type OrderBook struct {
	Bids []OrderBookLevel
	Asks []OrderBookLevel
}
