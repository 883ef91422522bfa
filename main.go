package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"strategy-core/internal/api"
	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/monitor"
	"strategy-core/internal/notify"
	"strategy-core/internal/order"
	"strategy-core/internal/persistence"
	"strategy-core/internal/rpc"
	"strategy-core/internal/schedule"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/cache"
	"strategy-core/pkg/config"
	"strategy-core/pkg/db"
	"strategy-core/pkg/i18n"
	"strategy-core/pkg/market/binance"
	"strategy-core/pkg/node"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.M().ConfigLoadFailed, err)
	}
	i18n.SetLanguage(i18n.Language(cfg.Language))

	if f, err := openLogFile(cfg.LogDir); err != nil {
		log.Printf("file logging disabled: %v", err)
	} else {
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Println(i18n.M().Starting)
	log.Println(i18n.M().ConfigLoaded)
	log.Printf(i18n.M().UsingDBPath, cfg.DBPath)

	session, err := buildSession(cfg)
	if err != nil {
		log.Fatalf(i18n.M().InvalidSession, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Core services
	bus := events.NewBus()
	defer bus.Close()
	metrics := monitor.NewSystemMetrics()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.M().DBInitFailed, err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.M().DBMigrationsFailed, err)
	}

	// Strategy YAML is the source of truth; the table keeps runtime status.
	if configs, err := strategy.LoadConfig(cfg.StrategiesFile); err != nil {
		log.Printf(i18n.M().StrategyConfigLoadFailed, err)
	} else if err := strategy.SyncConfigToDB(ctx, database, configs); err != nil {
		log.Printf(i18n.M().StrategySyncFailed, err)
	}

	// Market data
	symbols := universe(ctx, database, cfg.BinanceSymbols)
	prices := cache.NewShardedPriceCache()
	clock := schedule.RealClock{}
	var provider market.HistoryProvider
	if cfg.UseMockFeed {
		store := market.NewBarStore()
		feed := &market.MockFeed{Store: store, Prices: prices, Bus: bus, Symbols: symbols, Backfill: 20 * 24 * time.Hour}
		feed.Seed(clock.Now())
		feed.Start(ctx)
		provider = market.NewStoreProvider(store, clock, session.Location())
		log.Printf(i18n.M().MockFeedStarted, symbols)
	} else {
		client := binance.NewClient(cfg.BinanceTestnet)
		feed := &market.Feed{
			Client:  client,
			Stream:  binance.NewStreamClient(cfg.BinanceTestnet),
			Prices:  prices,
			Bus:     bus,
			Symbols: symbols,
		}
		feed.Start(ctx)
		provider = market.NewBinanceProvider(client, prices, clock, 2*time.Minute)
		log.Printf(i18n.M().BinanceFeedStarted, symbols)
	}

	// Paper execution
	queue := order.NewQueue(256)
	broker := order.NewPaperBroker(order.PaperConfig{
		InitialCapital: cfg.InitialCapital,
		FeeRate:        cfg.FeeRate,
		SlippageBps:    cfg.SlippageBps,
		MinQty:         cfg.MinQty,
	}, provider)
	broker.DB, broker.Bus, broker.Metrics = database, bus, metrics
	go broker.Run(ctx, queue)

	sink := order.NewQueueSink(queue, clock)
	sink.Metrics = metrics

	// Strategies
	sched := schedule.New(session, clock)
	sched.SetObserver(metrics.ObserveCallback)
	journal := persistence.NewBatchWriter(database, 50, time.Second)
	engine := strategy.NewEngine(sched, provider, sink, bus, database)
	engine.Metrics = metrics
	engine.Journal = journal
	if err := engine.LoadFromDB(ctx); err != nil {
		log.Printf(i18n.M().StrategyConfigLoadFailed, err)
	}
	if err := sched.Register("record_equity", func(ctx context.Context, tick schedule.Tick) {
		for _, id := range engine.IDs() {
			snap, err := broker.RecordEquity(ctx, id, tick.Time)
			if err != nil {
				log.Printf("[%s] %v", id, err)
				continue
			}
			log.Printf(i18n.M().EquityRecorded, id, snap.Equity, snap.Cash)
		}
	}, schedule.EveryDay(), schedule.MarketClose(0)); err != nil {
		log.Fatalf("register equity recorder: %v", err)
	}

	// Notifications
	if cfg.TelegramToken == "" {
		log.Println(i18n.M().TelegramDisabled)
	} else if tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatIDs); err != nil {
		log.Printf("telegram: %v", err)
		log.Println(i18n.M().TelegramDisabled)
	} else {
		mon := &monitor.Monitor{Bus: bus, Sink: tg}
		mon.Start(ctx)
		log.Printf(i18n.M().TelegramEnabled, len(cfg.TelegramChatIDs))
	}

	// gRPC health
	health := rpc.NewHealthServer(engine)
	health.Follow(ctx, bus)
	go func() {
		log.Printf(i18n.M().GRPCListening, cfg.GRPCPort)
		if err := health.ListenAndServe(":" + cfg.GRPCPort); err != nil {
			log.Printf("gRPC health server: %v", err)
		}
	}()

	// HTTP API
	nodeID := node.ID("strategy-core")
	log.Printf("node id %s", nodeID)
	server := api.NewServer(bus, database, engine, metrics, queue, api.SystemMeta{
		Feed:     feedName(cfg.UseMockFeed),
		Symbols:  symbols,
		Session:  fmt.Sprintf("%s-%s %s", cfg.MarketOpen, cfg.MarketClose, cfg.MarketTZ),
		Language: cfg.Language,
		Version:  version,
		NodeID:   nodeID,
	}, cfg.JWTSecret)
	server.Journal = journal
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: server.Router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf(i18n.M().ServerListening, cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf(i18n.M().APIServerError, err)
		}
	}()

	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println(i18n.M().ShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	health.Stop()
	queue.Close()
	journal.Close()
}

func openLogFile(dir string) (*os.File, error) {
	if dir == "" {
		return nil, errors.New("LOG_DIR is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, time.Now().Format("20060102-150405")+".log")
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func buildSession(cfg *config.Config) (schedule.Session, error) {
	loc, err := time.LoadLocation(cfg.MarketTZ)
	if err != nil {
		return schedule.Session{}, err
	}
	session, err := schedule.NewSession(cfg.MarketOpen, cfg.MarketClose, loc)
	if err != nil {
		return schedule.Session{}, err
	}
	if cfg.MarketWeekends {
		session = session.WithWeekends()
	}
	return session, nil
}

// universe merges the configured feed symbols with every symbol an active
// strategy trades.
func universe(ctx context.Context, database *db.Database, configured []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(sym string) {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" && !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for _, s := range configured {
		add(s)
	}
	rows, err := database.ListStrategyInstances(ctx, true)
	if err != nil {
		log.Printf("list strategies: %v", err)
		return out
	}
	for _, inst := range rows {
		for _, s := range strategy.SplitSymbols(inst.Symbols) {
			add(s)
		}
	}
	return out
}

func feedName(mock bool) string {
	if mock {
		return "mock"
	}
	return "binance"
}
