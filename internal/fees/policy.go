package fees

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"coinledger/internal/core"
)

// Policy holds one market's maker/taker percentage rates and its coin to
// minimum-withdrawal-fee table. The table is replaced wholesale by Refresh
// from the venue's currency list; disabled and delisted entries are skipped.
type Policy struct {
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal

	mu           sync.RWMutex
	withdrawFees map[string]decimal.Decimal
}

func NewPolicy(makerFee, takerFee decimal.Decimal) *Policy {
	return &Policy{
		MakerFee:     makerFee,
		TakerFee:     takerFee,
		withdrawFees: make(map[string]decimal.Decimal),
	}
}

// Refresh replaces the withdrawal-fee table from a venue currency list.
func (p *Policy) Refresh(currencies map[string]core.Currency) {
	next := make(map[string]decimal.Decimal, len(currencies))
	for symbol, cur := range currencies {
		if cur.Disabled || cur.Delisted {
			continue
		}
		next[normalize(symbol)] = cur.TxFee
	}
	p.mu.Lock()
	p.withdrawFees = next
	p.mu.Unlock()
}

// WithdrawFee returns the minimum withdrawal fee for coin.
func (p *Policy) WithdrawFee(coin string) (decimal.Decimal, error) {
	p.mu.RLock()
	fee, ok := p.withdrawFees[normalize(coin)]
	p.mu.RUnlock()
	if !ok {
		return decimal.Zero, core.ErrUnsupportedCoin
	}
	return fee, nil
}

// Supports reports whether the market has any notion of coin, i.e. the
// coin appeared in the last currency refresh.
func (p *Policy) Supports(coin string) bool {
	p.mu.RLock()
	_, ok := p.withdrawFees[normalize(coin)]
	p.mu.RUnlock()
	return ok
}

// Coins returns the supported coin symbols in no particular order.
func (p *Policy) Coins() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	coins := make([]string, 0, len(p.withdrawFees))
	for c := range p.withdrawFees {
		coins = append(coins, c)
	}
	return coins
}

func normalize(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin))
}
