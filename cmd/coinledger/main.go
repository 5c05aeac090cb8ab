package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"coinledger/internal/alert"
	"coinledger/internal/config"
	"coinledger/internal/core"
	"coinledger/internal/exchange"
	"coinledger/internal/exchange/poloniex"
	"coinledger/internal/ledger"
	"coinledger/internal/market"
	"coinledger/internal/money"
	"coinledger/internal/price"
	"coinledger/internal/store"
)

const usage = `usage: coinledger [flags] <operation>

operations:
  buy           place a limit buy   (-market -coin -units -price)
  sell          place a limit sell  (-market -coin -amount -rate)
  withdraw      withdraw to address (-market -coin -amount -address)
  orderbook     top of book         (-market -coin)
  tickers       refresh and list ticker snapshots (-market)
  watch         follow the live ticker stream (-market)
  currencies    list supported coins and withdrawal fees (-market)
  price         fiat price quote    (-coin [-fiat])
  balance       list wallet balances (-market [-coin])
  transactions  list the transaction log (-market [-coin] [-type])
`

func main() {
	var (
		configPath string
		marketName string
		coin       string
		unitsStr   string
		priceStr   string
		amountStr  string
		rateStr    string
		address    string
		fiat       string
		txType     string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&marketName, "market", "", "market name from the catalog")
	flag.StringVar(&coin, "coin", "", "coin symbol")
	flag.StringVar(&unitsStr, "units", "", "units to buy")
	flag.StringVar(&priceStr, "price", "", "limit price for buy")
	flag.StringVar(&amountStr, "amount", "", "amount to sell or withdraw")
	flag.StringVar(&rateStr, "rate", "", "limit rate for sell")
	flag.StringVar(&address, "address", "", "receiving address for withdraw")
	flag.StringVar(&fiat, "fiat", "", "fiat currency for price quotes")
	flag.StringVar(&txType, "type", "", "transaction type filter")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	op := strings.ToLower(flag.Arg(0))

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.WarnLevel)
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// API credentials live in the environment, optionally via .env.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	alerts := buildAlertManager(cfg)
	if alerts != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
			}
		}()
	}

	if op == "price" {
		if err := runPrice(ctx, cfg, coin, fiat); err != nil {
			fatal(err.Error())
		}
		return
	}

	st, err := store.Open(cfg.State.Dir)
	if err != nil {
		fatal(err.Error())
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close store failed: %v\n", err)
		}
	}()
	if err := st.SeedMarkets(catalogRecords(cfg)); err != nil {
		fatal(err.Error())
	}

	if marketName == "" {
		fatal("-market is required for " + op)
	}

	l := ledger.New(st)
	switch op {
	case "balance":
		err = runBalance(st, marketName, coin)
	case "transactions":
		err = runTransactions(st, marketName, coin, txType)
	case "buy", "sell", "withdraw", "orderbook", "tickers", "watch", "currencies":
		registry := market.NewRegistry(st, l, cfg.Quote, alerts)
		registry.RegisterDriver("poloniex", poloniexFactory())
		var m *market.Market
		m, err = registry.Resolve(ctx, marketName)
		if err != nil {
			break
		}
		err = runMarketOp(ctx, m, st, op, tradeArgs{
			coin:    coin,
			units:   unitsStr,
			price:   priceStr,
			amount:  amountStr,
			rate:    rateStr,
			address: address,
		})
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "canceled")
			os.Exit(1)
		}
		fatal(err.Error())
	}
}

type tradeArgs struct {
	coin    string
	units   string
	price   string
	amount  string
	rate    string
	address string
}

func runMarketOp(ctx context.Context, m *market.Market, st *store.Store, op string, args tradeArgs) error {
	switch op {
	case "buy":
		units := mustDecimal("-units", args.units)
		limit := mustDecimal("-price", args.price)
		cost, err := m.Buy(ctx, mustCoin(args.coin), units, limit)
		if err != nil {
			return err
		}
		fmt.Printf("bought %s %s at %s, cost %s %s\n",
			money.FormatQty(units), strings.ToUpper(args.coin), limit, cost, m.Quote)
	case "sell":
		amount := mustDecimal("-amount", args.amount)
		rate := mustDecimal("-rate", args.rate)
		net, err := m.Sell(ctx, mustCoin(args.coin), amount, rate)
		if err != nil {
			return err
		}
		fmt.Printf("sold %s %s at %s, net %s %s\n",
			money.FormatQty(amount), strings.ToUpper(args.coin), rate, net, m.Quote)
	case "withdraw":
		amount := mustDecimal("-amount", args.amount)
		if args.address == "" {
			fatal("-address is required for withdraw")
		}
		sent, err := m.Withdraw(ctx, mustCoin(args.coin), amount, args.address)
		if err != nil {
			return err
		}
		fmt.Printf("withdrew %s %s to %s (fee deducted, %s sent)\n",
			amount, strings.ToUpper(args.coin), args.address, sent)
	case "orderbook":
		top, err := m.OrderBook(ctx, mustCoin(args.coin))
		if err != nil {
			return err
		}
		fmt.Printf("bid %s x %s\nask %s x %s\n",
			top.BidRate, top.BidQuantity, top.AskRate, top.AskQuantity)
	case "tickers":
		if err := m.RefreshTickers(ctx); err != nil {
			return err
		}
		coins, err := st.Coins(m.Name)
		if err != nil {
			return err
		}
		sort.Slice(coins, func(i, j int) bool { return coins[i].Name < coins[j].Name })
		for _, c := range coins {
			fmt.Printf("%-8s bid=%s ask=%s last=%s\n", c.Name, c.Bid, c.Ask, c.Last)
		}
	case "watch":
		err := m.WatchTickers(ctx, func(coin string, tick core.Ticker) {
			fmt.Printf("%-8s bid=%s ask=%s last=%s\n", coin, tick.Bid, tick.Ask, tick.Last)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case "currencies":
		coins := m.Fees.Coins()
		sort.Strings(coins)
		for _, c := range coins {
			fee, err := m.Fees.WithdrawFee(c)
			if err != nil {
				continue
			}
			fmt.Printf("%-8s withdrawal_fee=%s\n", c, fee)
		}
	}
	return nil
}

func runPrice(ctx context.Context, cfg config.Config, coin, fiat string) error {
	if fiat == "" {
		fiat = cfg.Price.Fiat
	}
	svc, err := price.New(price.Options{
		BaseURL: cfg.Price.BaseURL,
		Timeout: time.Duration(cfg.Price.TimeoutSec) * time.Second,
		TTL:     time.Duration(cfg.Price.CacheSec) * time.Second,
	})
	if err != nil {
		return err
	}
	defer svc.Close()
	quote, err := svc.GetFormatted(ctx, mustCoin(coin), fiat)
	if err != nil {
		return err
	}
	fmt.Printf("%s/%s %s\n", strings.ToUpper(coin), strings.ToUpper(fiat), quote)
	return nil
}

func runBalance(st *store.Store, marketName, coin string) error {
	if coin != "" {
		w, found, err := st.GetWallet(marketName, coin)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no %s wallet on %s", strings.ToUpper(coin), marketName)
		}
		fmt.Printf("%-8s %s\n", w.Coin, w.Balance)
		return nil
	}
	wallets, err := st.Wallets(marketName)
	if err != nil {
		return err
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Coin < wallets[j].Coin })
	for _, w := range wallets {
		fmt.Printf("%-8s %s\n", w.Coin, w.Balance)
	}
	return nil
}

func runTransactions(st *store.Store, marketName, coin, txType string) error {
	filter := store.TxFilter{
		Coin: strings.ToUpper(coin),
		Type: core.TransactionType(strings.ToLower(txType)),
	}
	txs, err := st.Transactions(marketName, filter)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		fmt.Printf("%d %s %s %-8s debit=%s credit=%s rate=%s fee=%s net=%s external=%s\n",
			tx.ID, tx.CreatedAt.Format(time.RFC3339), tx.Type, tx.Coin,
			tx.Debit, tx.Credit, tx.Rate, tx.Fee, tx.Net, tx.ExternalID)
	}
	return nil
}

func catalogRecords(cfg config.Config) []store.MarketRecord {
	records := make([]store.MarketRecord, 0, len(cfg.Markets))
	for _, m := range cfg.Markets {
		records = append(records, store.MarketRecord{
			Name:     m.Name,
			Driver:   m.Driver,
			URL:      m.URL,
			WSURL:    m.WSURL,
			MakerFee: m.MakerFee.Decimal,
			TakerFee: m.TakerFee.Decimal,
		})
	}
	return records
}

func poloniexFactory() market.GatewayFactory {
	return func(rec store.MarketRecord, quote string) (exchange.Gateway, error) {
		key, secret := credentials(rec.Name)
		return poloniex.NewClient(poloniex.Options{
			BaseURL:   rec.URL,
			APIKey:    key,
			APISecret: secret,
			Quote:     quote,
		}), nil
	}
}

// credentials reads <NAME>_API_KEY / <NAME>_API_SECRET from the environment.
func credentials(marketName string) (string, string) {
	prefix := strings.ToUpper(strings.ReplaceAll(marketName, "-", "_"))
	return os.Getenv(prefix + "_API_KEY"), os.Getenv(prefix + "_API_SECRET")
}

func buildAlertManager(cfg config.Config) *alert.Manager {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier := alert.NewTelegramNotifier(
		tg.BotToken,
		tg.ChatID,
		tg.APIBaseURL,
		time.Duration(tg.TimeoutSec)*time.Second,
	)
	return alert.NewManager(notifier)
}

func mustCoin(coin string) string {
	if strings.TrimSpace(coin) == "" {
		fatal("-coin is required")
	}
	return coin
}

func mustDecimal(name, value string) decimal.Decimal {
	if strings.TrimSpace(value) == "" {
		fatal(name + " is required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		fatal(fmt.Sprintf("%s: invalid decimal %q", name, value))
	}
	return d
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
