package market

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinledger/internal/alert"
	"coinledger/internal/core"
	"coinledger/internal/exchange"
	"coinledger/internal/fees"
	"coinledger/internal/ledger"
	"coinledger/internal/store"
)

// Trader is the capability set a resolved market exposes.
type Trader interface {
	Buy(ctx context.Context, coin string, units, price decimal.Decimal) (decimal.Decimal, error)
	Sell(ctx context.Context, coin string, amount, rate decimal.Decimal) (decimal.Decimal, error)
	Deposit(ctx context.Context, coin string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, coin string, amount decimal.Decimal, address string) (decimal.Decimal, error)
	Transfer(ctx context.Context, coin string, amount decimal.Decimal, toMarket string, includeFee bool) error
	OrderBook(ctx context.Context, coin string) (core.OrderBookTop, error)
	RefreshTickers(ctx context.Context) error
	RefreshCurrencies(ctx context.Context) error
}

// Market binds one venue to a fee policy, the shared wallet ledger, and a
// gateway. Each trading call is a short synchronous sequence: read balance,
// compute, guard, mutate, call the venue, persist, record.
type Market struct {
	Name  string
	URL   string
	WSURL string
	Quote string

	Fees    *fees.Policy
	Ledger  *ledger.Ledger
	Gateway exchange.Gateway
	Store   *store.Store
	Alerts  alert.Alerter

	log *logrus.Entry
}

func New(rec store.MarketRecord, quote string, l *ledger.Ledger, st *store.Store, gw exchange.Gateway, alerts alert.Alerter) *Market {
	return &Market{
		Name:    rec.Name,
		URL:     rec.URL,
		WSURL:   rec.WSURL,
		Quote:   strings.ToUpper(quote),
		Fees:    fees.NewPolicy(rec.MakerFee, rec.TakerFee),
		Ledger:  l,
		Gateway: gw,
		Store:   st,
		Alerts:  alerts,
		log:     logrus.WithFields(logrus.Fields{"component": "market", "market": rec.Name}),
	}
}

// supported reports whether the market has any notion of the coin. The
// quote currency is always supported; everything else must have appeared
// in the last currency refresh.
func (m *Market) supported(coin string) bool {
	if strings.EqualFold(coin, m.Quote) {
		return true
	}
	return m.Fees.Supports(coin)
}

// Deposit is part of the trader contract; the venue wiring for it does not
// exist yet.
func (m *Market) Deposit(ctx context.Context, coin string, amount decimal.Decimal) error {
	return fmt.Errorf("%w: deposit on %s", core.ErrNotImplemented, m.Name)
}

// Transfer moves funds to another market; contract only, like Deposit.
func (m *Market) Transfer(ctx context.Context, coin string, amount decimal.Decimal, toMarket string, includeFee bool) error {
	return fmt.Errorf("%w: transfer from %s to %s", core.ErrNotImplemented, m.Name, toMarket)
}

// gatewayFailure wraps a venue error, distinguishing definite failures
// from unknown outcomes, and raises the matching alert. It fires after a
// guard has already passed, which is why it is never folded into the
// validation errors.
func (m *Market) gatewayFailure(op, coin string, err error) error {
	ge := &core.GatewayError{Op: op, Err: err, Unknown: outcomeUnknown(err)}
	fields := map[string]string{
		"market": m.Name,
		"coin":   coin,
		"op":     op,
		"error":  err.Error(),
	}
	m.log.WithField("op", op).WithError(err).Error("gateway call failed")
	if m.Alerts != nil {
		m.Alerts.Important("gateway_failure", fields)
		if ge.Unknown {
			// The venue may have accepted the request; the stored ledger
			// was not mutated, so the two can now disagree.
			m.Alerts.Important("reconcile_required", fields)
		}
	}
	return ge
}

func outcomeUnknown(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
