package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinledger/internal/core"
	"coinledger/internal/money"
)

// Buy purchases units of coin at price, settled in the quote currency with
// the maker fee added to the cost. The quote wallet is debited by the
// fee-inclusive cost and the coin wallet credited by units; both land in
// the store only after the venue accepted the order. Returns the cost.
func (m *Market) Buy(ctx context.Context, coin string, units, price decimal.Decimal) (decimal.Decimal, error) {
	if units.Sign() <= 0 || price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: buy %s %s at %s", core.ErrInvalidAmount, units, coin, price)
	}
	// Trading the quote against itself would alias both wallets onto one
	// record and let the second write clobber the first.
	if strings.EqualFold(coin, m.Quote) {
		return decimal.Zero, fmt.Errorf("%w: cannot buy %s with itself", core.ErrUnsupportedCoin, m.Quote)
	}

	fee := m.Fees.MakerFee
	feeAmount := money.FeeAmount(price, units, fee)
	cost := money.Cost(price, units, fee)
	m.log.WithFields(logrus.Fields{
		"coin": coin, "units": units.String(), "rate": price.String(),
		"fee": feeAmount.String(), "cost": cost.String(),
	}).Info("buy")

	release := m.Ledger.Acquire(m.Name, m.Quote, coin)
	defer release()

	quoteWallet, err := m.Ledger.GetOrCreate(m.Name, m.Quote, m.supported)
	if err != nil {
		return decimal.Zero, err
	}
	coinWallet, err := m.Ledger.GetOrCreate(m.Name, coin, m.supported)
	if err != nil {
		return decimal.Zero, err
	}

	if quoteWallet.Balance.Cmp(cost) < 0 {
		return decimal.Zero, fmt.Errorf("%w: need %s %s on %s to buy %s %s, balance %s",
			core.ErrInsufficientFunds, cost, m.Quote, m.Name, units, coin, quoteWallet.Balance)
	}

	// Optimistic: the in-memory records move before the venue confirms.
	// They become durable only after the order id is back, so a definite
	// rejection leaves the stored ledger untouched.
	if err := m.Ledger.Debit(&quoteWallet, cost); err != nil {
		return decimal.Zero, err
	}
	m.Ledger.Credit(&coinWallet, units)

	orderID, err := m.Gateway.PlaceLimitBuy(ctx, coin, units, price)
	if err != nil {
		return decimal.Zero, m.gatewayFailure("place_limit_buy", coin, err)
	}

	if err := m.Ledger.Persist(&quoteWallet, &coinWallet); err != nil {
		return decimal.Zero, fmt.Errorf("persist buy wallets: %w", err)
	}
	tx := &core.Transaction{
		Market:     m.Name,
		Coin:       coin,
		Type:       core.TxBuy,
		Credit:     units,
		Rate:       price,
		Fee:        feeAmount,
		Net:        cost.Neg(),
		ExternalID: orderID,
	}
	if err := m.Ledger.Record(tx); err != nil {
		return decimal.Zero, fmt.Errorf("record buy transaction: %w", err)
	}
	return cost, nil
}

// Sell sells amount of coin at rate. The coin wallet is debited by the
// full amount and the quote wallet credited with the proceeds net of the
// taker fee. Returns the net proceeds.
func (m *Market) Sell(ctx context.Context, coin string, amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 || rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: sell %s %s at %s", core.ErrInvalidAmount, amount, coin, rate)
	}
	if strings.EqualFold(coin, m.Quote) {
		return decimal.Zero, fmt.Errorf("%w: cannot sell %s for itself", core.ErrUnsupportedCoin, m.Quote)
	}

	fee := m.Fees.TakerFee
	gross := rate.Mul(amount)
	feeAmount := money.Round(gross.Mul(money.FeeRate(fee)))
	net := money.Proceeds(rate, amount, fee)
	m.log.WithFields(logrus.Fields{
		"coin": coin, "amount": amount.String(), "rate": rate.String(),
		"fee": feeAmount.String(), "net": net.String(),
	}).Info("sell")

	release := m.Ledger.Acquire(m.Name, m.Quote, coin)
	defer release()

	quoteWallet, err := m.Ledger.GetOrCreate(m.Name, m.Quote, m.supported)
	if err != nil {
		return decimal.Zero, err
	}
	coinWallet, err := m.Ledger.GetOrCreate(m.Name, coin, m.supported)
	if err != nil {
		return decimal.Zero, err
	}

	if coinWallet.Balance.Cmp(amount) < 0 {
		return decimal.Zero, fmt.Errorf("%w: need %s %s on %s to sell, balance %s",
			core.ErrInsufficientFunds, amount, coin, m.Name, coinWallet.Balance)
	}

	if err := m.Ledger.Debit(&coinWallet, amount); err != nil {
		return decimal.Zero, err
	}
	m.Ledger.Credit(&quoteWallet, net)

	orderID, err := m.Gateway.PlaceLimitSell(ctx, coin, amount, rate)
	if err != nil {
		return decimal.Zero, m.gatewayFailure("place_limit_sell", coin, err)
	}

	if err := m.Ledger.Persist(&quoteWallet, &coinWallet); err != nil {
		return decimal.Zero, fmt.Errorf("persist sell wallets: %w", err)
	}
	tx := &core.Transaction{
		Market:     m.Name,
		Coin:       coin,
		Type:       core.TxSell,
		Debit:      amount,
		Rate:       rate,
		Fee:        feeAmount.Abs(),
		Net:        net,
		ExternalID: orderID,
	}
	if err := m.Ledger.Record(tx); err != nil {
		return decimal.Zero, fmt.Errorf("record sell transaction: %w", err)
	}
	return net, nil
}
