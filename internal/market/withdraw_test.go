package market

import (
	"context"
	"errors"
	"testing"

	"coinledger/internal/core"
)

func TestWithdrawReturnsAmountMinusFee(t *testing.T) {
	tm := newTestMarket(t)
	tm.gw.currencies["XMR"] = core.Currency{Symbol: "XMR", TxFee: dec(t, "0.25")}
	if err := tm.market.RefreshCurrencies(context.Background()); err != nil {
		t.Fatalf("RefreshCurrencies() error = %v", err)
	}
	tm.fund(t, "XMR", "10")

	got, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, "5"), "addr-1")
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if !got.Equal(dec(t, "4.75")) {
		t.Fatalf("Withdraw() = %s, want 4.75", got)
	}
	if !tm.balance(t, "XMR").Equal(dec(t, "5")) {
		t.Fatalf("XMR balance = %s, want 5 (full amount debited)", tm.balance(t, "XMR"))
	}

	txs := tm.transactions(t)
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	tx := txs[0]
	if tx.Type != core.TxWithdraw || !tx.Debit.Equal(dec(t, "5")) {
		t.Fatalf("tx = %+v, want withdraw with debit 5", tx)
	}
	if tx.ReceivingAddress != "addr-1" {
		t.Fatalf("tx receiving address = %q, want addr-1", tx.ReceivingAddress)
	}
	if !tx.Fee.Equal(dec(t, "0.25")) {
		t.Fatalf("tx fee = %s, want 0.25", tx.Fee)
	}
	// XMR is not the quote currency, so the quote-denominated net is zero.
	if !tx.Net.IsZero() {
		t.Fatalf("tx net = %s, want 0 for non-quote coin", tx.Net)
	}
	if tx.ExternalID == "" {
		t.Fatalf("tx external id empty")
	}
}

func TestWithdrawQuoteCoinNetIsAmountMinusFee(t *testing.T) {
	tm := newTestMarket(t)
	tm.fund(t, "BTC", "2")

	if _, err := tm.market.Withdraw(context.Background(), "BTC", dec(t, "1"), "addr-q"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	txs := tm.transactions(t)
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	if !txs[0].Net.Equal(dec(t, "0.9995")) {
		t.Fatalf("tx net = %s, want 0.9995 for quote coin", txs[0].Net)
	}
}

func TestWithdrawFullBalanceFails(t *testing.T) {
	tm := newTestMarket(t)
	tm.fund(t, "XMR", "10")

	// The guard is strictly greater-than: balance == amount is rejected.
	_, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, "10"), "addr-1")
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("Withdraw(balance == amount) error = %v, want ErrInsufficientFunds", err)
	}
	if tm.gw.withdrawCalls != 0 {
		t.Fatalf("gateway withdraw calls = %d, want 0", tm.gw.withdrawCalls)
	}
	if !tm.balance(t, "XMR").Equal(dec(t, "10")) {
		t.Fatalf("XMR balance = %s, want unchanged 10", tm.balance(t, "XMR"))
	}
	if len(tm.transactions(t)) != 0 {
		t.Fatalf("transactions recorded on guard failure")
	}

	// One unit above the amount passes the same guard.
	tm.fund(t, "XMR", "10.0000000000000001")
	if _, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, "10"), "addr-1"); err != nil {
		t.Fatalf("Withdraw(balance > amount) error = %v", err)
	}
}

func TestWithdrawInvalidAmount(t *testing.T) {
	tm := newTestMarket(t)
	tm.fund(t, "XMR", "10")

	for _, amount := range []string{"0", "-5"} {
		_, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, amount), "addr-1")
		if !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("Withdraw(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if len(tm.transactions(t)) != 0 {
		t.Fatalf("transactions recorded on guard failure")
	}
}

func TestWithdrawWithoutWalletIsUnsupported(t *testing.T) {
	tm := newTestMarket(t)

	// XMR is a known currency but no wallet was ever created for it.
	_, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, "1"), "addr-1")
	if !errors.Is(err, core.ErrUnsupportedCoin) {
		t.Fatalf("Withdraw(no wallet) error = %v, want ErrUnsupportedCoin", err)
	}
}

func TestWithdrawUnknownFeeIsUnsupported(t *testing.T) {
	tm := newTestMarket(t)
	// A wallet exists but the coin vanished from the currency list.
	tm.fund(t, "XMR", "10")
	delete(tm.gw.currencies, "XMR")
	if err := tm.market.RefreshCurrencies(context.Background()); err != nil {
		t.Fatalf("RefreshCurrencies() error = %v", err)
	}

	_, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, "1"), "addr-1")
	if !errors.Is(err, core.ErrUnsupportedCoin) {
		t.Fatalf("Withdraw(no fee entry) error = %v, want ErrUnsupportedCoin", err)
	}
	if !tm.balance(t, "XMR").Equal(dec(t, "10")) {
		t.Fatalf("XMR balance = %s, want unchanged 10", tm.balance(t, "XMR"))
	}
}

func TestWithdrawBelowMinimumFee(t *testing.T) {
	tm := newTestMarket(t)
	tm.gw.currencies["XMR"] = core.Currency{Symbol: "XMR", TxFee: dec(t, "0.25")}
	if err := tm.market.RefreshCurrencies(context.Background()); err != nil {
		t.Fatalf("RefreshCurrencies() error = %v", err)
	}
	tm.fund(t, "XMR", "10")

	_, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, "0.1"), "addr-1")
	if !errors.Is(err, core.ErrBelowMinimumFee) {
		t.Fatalf("Withdraw(below fee) error = %v, want ErrBelowMinimumFee", err)
	}
	if tm.gw.withdrawCalls != 0 {
		t.Fatalf("gateway withdraw calls = %d, want 0", tm.gw.withdrawCalls)
	}
}

func TestWithdrawGatewayFailureLeavesBalance(t *testing.T) {
	tm := newTestMarket(t)
	tm.fund(t, "XMR", "10")
	tm.gw.withdrawErr = errors.New("venue unavailable")

	_, err := tm.market.Withdraw(context.Background(), "XMR", dec(t, "5"), "addr-1")
	var ge *core.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("Withdraw() error = %v, want GatewayError", err)
	}
	if !tm.balance(t, "XMR").Equal(dec(t, "10")) {
		t.Fatalf("XMR balance = %s, want unchanged 10 after gateway failure", tm.balance(t, "XMR"))
	}
	if len(tm.transactions(t)) != 0 {
		t.Fatalf("transactions recorded despite gateway failure")
	}
	if !tm.alerts.has("gateway_failure") {
		t.Fatalf("no gateway_failure alert raised")
	}
}
