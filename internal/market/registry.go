package market

import (
	"context"
	"fmt"
	"sync"

	"coinledger/internal/alert"
	"coinledger/internal/core"
	"coinledger/internal/exchange"
	"coinledger/internal/ledger"
	"coinledger/internal/store"
)

// GatewayFactory builds a venue gateway for one catalog entry.
type GatewayFactory func(rec store.MarketRecord, quote string) (exchange.Gateway, error)

// Registry resolves market names to trading adapters. The set of valid
// names is whatever the catalog holds; drivers are registered by key and
// matched against the catalog entry's driver field. Resolution refreshes
// the adapter's currency list so its fee policy is populated before first
// use.
type Registry struct {
	store  *store.Store
	ledger *ledger.Ledger
	quote  string
	alerts alert.Alerter

	mu        sync.RWMutex
	factories map[string]GatewayFactory
}

func NewRegistry(st *store.Store, l *ledger.Ledger, quote string, alerts alert.Alerter) *Registry {
	return &Registry{
		store:     st,
		ledger:    l,
		quote:     quote,
		alerts:    alerts,
		factories: make(map[string]GatewayFactory),
	}
}

// RegisterDriver makes a gateway implementation available under key.
func (r *Registry) RegisterDriver(key string, factory GatewayFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
}

// Resolve maps a market name to a ready adapter.
func (r *Registry) Resolve(ctx context.Context, name string) (*Market, error) {
	rec, found, err := r.store.GetMarket(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidMarket, name)
	}

	r.mu.RLock()
	factory, ok := r.factories[rec.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q has no driver %q", core.ErrInvalidMarket, rec.Name, rec.Driver)
	}

	gw, err := factory(rec, r.quote)
	if err != nil {
		return nil, fmt.Errorf("build %s gateway: %w", rec.Name, err)
	}

	m := New(rec, r.quote, r.ledger, r.store, gw, r.alerts)
	if err := m.RefreshCurrencies(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
