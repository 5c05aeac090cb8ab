package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinledger/internal/core"
)

// Withdraw sends amount of coin to address. The wallet is debited by the
// full amount; the venue keeps the minimum fee, so the caller receives
// amount minus fee, which is returned.
//
// The funds guard is strictly greater-than: withdrawing the entire
// balance is deliberately rejected, the wallet must retain a remainder.
func (m *Market) Withdraw(ctx context.Context, coin string, amount decimal.Decimal, address string) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: withdraw %s %s", core.ErrInvalidAmount, amount, coin)
	}

	release := m.Ledger.Acquire(m.Name, coin)
	defer release()

	wallet, found, err := m.Ledger.Get(m.Name, coin)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, fmt.Errorf("%w: no %s wallet on %s", core.ErrUnsupportedCoin, coin, m.Name)
	}

	if wallet.Balance.Cmp(amount) <= 0 {
		return decimal.Zero, fmt.Errorf("%w: withdraw %s %s from %s, balance %s",
			core.ErrInsufficientFunds, amount, coin, m.Name, wallet.Balance)
	}

	fee, err := m.Fees.WithdrawFee(coin)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: no withdrawal fee for %s on %s", core.ErrUnsupportedCoin, coin, m.Name)
	}
	if amount.Cmp(fee) < 0 {
		return decimal.Zero, fmt.Errorf("%w: cannot withdraw %s %s below the minimum fee %s",
			core.ErrBelowMinimumFee, amount, coin, fee)
	}

	m.log.WithFields(logrus.Fields{
		"coin": coin, "amount": amount.String(), "fee": fee.String(), "address": address,
	}).Info("withdraw")

	externalID, err := m.Gateway.Withdraw(ctx, coin, amount, address)
	if err != nil {
		return decimal.Zero, m.gatewayFailure("withdraw", coin, err)
	}

	if err := m.Ledger.Debit(&wallet, amount); err != nil {
		return decimal.Zero, err
	}
	if err := m.Ledger.Persist(&wallet); err != nil {
		return decimal.Zero, fmt.Errorf("persist withdraw wallet: %w", err)
	}

	net := decimal.Zero
	if strings.EqualFold(coin, m.Quote) {
		net = amount.Sub(fee)
	}
	tx := &core.Transaction{
		Market:           m.Name,
		Coin:             coin,
		Type:             core.TxWithdraw,
		Debit:            amount,
		Fee:              fee,
		Net:              net,
		ReceivingAddress: address,
		ExternalID:       externalID,
	}
	if err := m.Ledger.Record(tx); err != nil {
		return decimal.Zero, fmt.Errorf("record withdraw transaction: %w", err)
	}
	return amount.Sub(fee), nil
}
