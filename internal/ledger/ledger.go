package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinledger/internal/core"
	"coinledger/internal/store"
)

var log = logrus.WithField("component", "ledger")

// Ledger is the only mutation path for wallet balances. Engines acquire
// the involved (market, coin) keys for the whole read-compute-mutate
// sequence, mutate in-memory records through Credit/Debit, and make the
// result durable with Persist. Record appends to the transaction log.
type Ledger struct {
	store *store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st *store.Store) *Ledger {
	return &Ledger{
		store: st,
		locks: make(map[string]*sync.Mutex),
	}
}

// Acquire locks the given coins of a market and returns the release func.
// Keys are always taken in sorted order so two operations touching the
// same pair of wallets cannot deadlock each other.
func (l *Ledger) Acquire(market string, coins ...string) func() {
	keys := make([]string, 0, len(coins))
	seen := make(map[string]struct{}, len(coins))
	for _, coin := range coins {
		key := market + "/" + coin
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		mu := l.keyLock(key)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (l *Ledger) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[key] = mu
	}
	return mu
}

// GetOrCreate returns the wallet for (market, coin), creating a
// zero-balance record on first access. A coin the market has no notion of
// fails with ErrUnsupportedCoin; that is distinct from a wallet that
// merely has not been created yet.
func (l *Ledger) GetOrCreate(market, coin string, supported func(string) bool) (core.Wallet, error) {
	if supported != nil && !supported(coin) {
		return core.Wallet{}, fmt.Errorf("%w: %s has no %s", core.ErrUnsupportedCoin, market, coin)
	}
	w, found, err := l.store.GetWallet(market, coin)
	if err != nil {
		return core.Wallet{}, err
	}
	if !found {
		w = core.Wallet{Market: market, Coin: coin, Balance: decimal.Zero}
		log.WithFields(logrus.Fields{"market": market, "coin": coin}).Info("wallet created")
	}
	return w, nil
}

// Get returns the wallet only if it already exists.
func (l *Ledger) Get(market, coin string) (core.Wallet, bool, error) {
	return l.store.GetWallet(market, coin)
}

// Credit increases the wallet balance by an exact-decimal delta.
func (l *Ledger) Credit(w *core.Wallet, amount decimal.Decimal) {
	before := w.Balance
	w.Balance = w.Balance.Add(amount)
	log.WithFields(logrus.Fields{
		"market": w.Market, "coin": w.Coin,
		"before": before.String(), "credit": amount.String(), "after": w.Balance.String(),
	}).Info("wallet credit")
}

// Debit decreases the wallet balance. Engines guard funds before calling;
// the non-negativity check here is the ledger's own invariant, not a
// substitute for that guard.
func (l *Ledger) Debit(w *core.Wallet, amount decimal.Decimal) error {
	next := w.Balance.Sub(amount)
	if next.IsNegative() {
		return fmt.Errorf("%w: debit %s %s would leave %s balance %s",
			core.ErrInsufficientFunds, amount, w.Coin, w.Market, next)
	}
	before := w.Balance
	w.Balance = next
	log.WithFields(logrus.Fields{
		"market": w.Market, "coin": w.Coin,
		"before": before.String(), "debit": amount.String(), "after": w.Balance.String(),
	}).Info("wallet debit")
	return nil
}

// Persist writes mutated wallets in one store transaction.
func (l *Ledger) Persist(wallets ...*core.Wallet) error {
	now := time.Now().UTC()
	records := make([]core.Wallet, 0, len(wallets))
	for _, w := range wallets {
		w.UpdatedAt = now
		records = append(records, *w)
	}
	return l.store.PutWallets(records...)
}

// Record appends a transaction to the log, stamping the creation time.
func (l *Ledger) Record(tx *core.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return l.store.AppendTransaction(tx)
}

// Transactions lists a market's transaction trail.
func (l *Ledger) Transactions(market string, filter store.TxFilter) ([]core.Transaction, error) {
	return l.store.Transactions(market, filter)
}

// Wallets lists a market's wallets.
func (l *Ledger) Wallets(market string) ([]core.Wallet, error) {
	return l.store.Wallets(market)
}
