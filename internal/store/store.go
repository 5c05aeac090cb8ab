package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"

	"coinledger/internal/core"
)

// Store is the keyed ledger store: wallets, the append-only transaction
// log, ticker snapshots, and the market catalog. Records are JSON values
// under prefixed keys; there is no relationship traversal, callers join by
// key.
type Store struct {
	db    *badger.DB
	txSeq *badger.Sequence
}

const (
	walletPrefix = "wallet/"
	txPrefix     = "tx/"
	coinPrefix   = "coin/"
	marketPrefix = "market/"

	txSeqKey       = "seq/tx"
	txSeqBandwidth = 64
)

func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("state dir required")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	seq, err := db.GetSequence([]byte(txSeqKey), txSeqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open tx sequence: %w", err)
	}
	return &Store{db: db, txSeq: seq}, nil
}

func (s *Store) Close() error {
	if s.txSeq != nil {
		_ = s.txSeq.Release()
	}
	return s.db.Close()
}

func walletKey(market, coin string) []byte {
	return []byte(walletPrefix + strings.ToLower(market) + "/" + strings.ToUpper(coin))
}

func coinKey(market, name string) []byte {
	return []byte(coinPrefix + strings.ToLower(market) + "/" + strings.ToUpper(name))
}

func marketKey(name string) []byte {
	return []byte(marketPrefix + strings.ToLower(name))
}

func txKey(market string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", txPrefix, strings.ToLower(market), id))
}

// GetWallet returns the wallet for (market, coin) if one has been created.
func (s *Store) GetWallet(market, coin string) (core.Wallet, bool, error) {
	var w core.Wallet
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(walletKey(market, coin))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &w)
		})
	})
	if err != nil {
		return core.Wallet{}, false, fmt.Errorf("get wallet %s/%s: %w", market, coin, err)
	}
	return w, found, nil
}

// PutWallets writes the given wallets in a single transaction, so a buy's
// two balance mutations land atomically.
func (s *Store) PutWallets(wallets ...core.Wallet) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, w := range wallets {
			val, err := json.Marshal(w)
			if err != nil {
				return err
			}
			if err := txn.Set(walletKey(w.Market, w.Coin), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put wallets: %w", err)
	}
	return nil
}

// Wallets lists every wallet of a market.
func (s *Store) Wallets(market string) ([]core.Wallet, error) {
	prefix := []byte(walletPrefix + strings.ToLower(market) + "/")
	var out []core.Wallet
	err := s.scan(prefix, func(val []byte) error {
		var w core.Wallet
		if err := json.Unmarshal(val, &w); err != nil {
			return err
		}
		out = append(out, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return out, nil
}

// AppendTransaction assigns the next sequence id and writes the record.
// The record is never updated afterwards.
func (s *Store) AppendTransaction(tx *core.Transaction) error {
	id, err := s.txSeq.Next()
	if err != nil {
		return fmt.Errorf("next tx id: %w", err)
	}
	tx.ID = id + 1
	val, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(txKey(tx.Market, tx.ID), val)
	})
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// TxFilter narrows a transaction listing. Zero values match everything.
type TxFilter struct {
	Coin string
	Type core.TransactionType
}

// Transactions lists a market's transactions in append order.
func (s *Store) Transactions(market string, filter TxFilter) ([]core.Transaction, error) {
	prefix := []byte(txPrefix + strings.ToLower(market) + "/")
	var out []core.Transaction
	err := s.scan(prefix, func(val []byte) error {
		var tx core.Transaction
		if err := json.Unmarshal(val, &tx); err != nil {
			return err
		}
		if filter.Coin != "" && !strings.EqualFold(filter.Coin, tx.Coin) {
			return nil
		}
		if filter.Type != "" && filter.Type != tx.Type {
			return nil
		}
		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// ReplaceCoins rewrites a market's ticker snapshots wholesale.
func (s *Store) ReplaceCoins(market string, coins []core.Coin) error {
	prefix := []byte(coinPrefix + strings.ToLower(market) + "/")
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace coins: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, c := range coins {
			val, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := txn.Set(coinKey(c.Market, c.Name), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace coins: %w", err)
	}
	return nil
}

// PutCoin upserts a single ticker snapshot, leaving the rest of the
// market's snapshots alone. Streaming updates land here; bulk refreshes go
// through ReplaceCoins.
func (s *Store) PutCoin(c core.Coin) error {
	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode coin: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(coinKey(c.Market, c.Name), val)
	})
	if err != nil {
		return fmt.Errorf("put coin %s/%s: %w", c.Market, c.Name, err)
	}
	return nil
}

// GetCoin returns one ticker snapshot.
func (s *Store) GetCoin(market, name string) (core.Coin, bool, error) {
	var c core.Coin
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(coinKey(market, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	if err != nil {
		return core.Coin{}, false, fmt.Errorf("get coin %s/%s: %w", market, name, err)
	}
	return c, found, nil
}

// Coins lists a market's ticker snapshots.
func (s *Store) Coins(market string) ([]core.Coin, error) {
	prefix := []byte(coinPrefix + strings.ToLower(market) + "/")
	var out []core.Coin
	err := s.scan(prefix, func(val []byte) error {
		var c core.Coin
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list coins: %w", err)
	}
	return out, nil
}

// MarketRecord is one catalog entry. The catalog is data, not code: the
// set of resolvable market names is whatever has been seeded here.
type MarketRecord struct {
	Name     string          `json:"name"`
	Driver   string          `json:"driver"`
	URL      string          `json:"url"`
	WSURL    string          `json:"ws_url,omitempty"`
	MakerFee decimal.Decimal `json:"maker_fee"`
	TakerFee decimal.Decimal `json:"taker_fee"`
}

// SeedMarkets upserts catalog entries.
func (s *Store) SeedMarkets(records []MarketRecord) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range records {
			val, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(marketKey(rec.Name), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed markets: %w", err)
	}
	return nil
}

// GetMarket looks a catalog entry up by name, case-insensitively.
func (s *Store) GetMarket(name string) (MarketRecord, bool, error) {
	var rec MarketRecord
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(marketKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return MarketRecord{}, false, fmt.Errorf("get market %s: %w", name, err)
	}
	return rec, found, nil
}

// MarketNames lists the catalog's market names.
func (s *Store) MarketNames() ([]string, error) {
	var out []string
	err := s.scan([]byte(marketPrefix), func(val []byte) error {
		var rec MarketRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return out, nil
}

func (s *Store) scan(prefix []byte, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
