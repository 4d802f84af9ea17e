package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"grid-engine-go/internal/bot"
	"grid-engine-go/internal/config"
	"grid-engine-go/internal/downloader"
	"grid-engine-go/internal/exchange"
	"grid-engine-go/internal/logger"
	"grid-engine-go/internal/models"
	"grid-engine-go/internal/monitoring"
	"grid-engine-go/internal/notification"
	"grid-engine-go/internal/order"
	"grid-engine-go/internal/persistence"
	"grid-engine-go/internal/reporter"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	dataPath := flag.String("data", "", "path to historical data file for backtesting")
	startDate := flag.String("start", "", "backtest start date (YYYY-MM-DD), downloads data when set with -end")
	endDate := flag.String("end", "", "backtest end date (YYYY-MM-DD)")
	exportPath := flag.String("export", "", "write the trade journal to this xlsx file after a backtest")
	flag.Parse()

	// Bootstrap logging so config loading itself can log; reconfigured from
	// the file below.
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("No .env file found, reading credentials from the environment")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("Failed to load config: %v", err)
	}

	logger.InitLogger(cfg.Log)
	defer logger.S().Sync()

	journal, err := openJournal(cfg)
	if err != nil {
		logger.S().Fatalf("Failed to open trade journal: %v", err)
	}
	defer journal.Close()

	notifier := newNotifier(cfg)
	defer notifier.Close()

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	if cfg.MonitoringAddr != "" {
		srv := monitoring.NewServer(cfg.MonitoringAddr, registry, logger.S())
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	switch cfg.TradingMode() {
	case models.ModeBacktest:
		runBacktest(cfg, journal, notifier, metrics, *dataPath, *startDate, *endDate, *exportPath)
	case models.ModePaper, models.ModeLive:
		runLive(cfg, journal, notifier, metrics)
	}
}

func openJournal(cfg *models.Config) (persistence.TradeJournal, error) {
	if cfg.JournalPath == "" {
		return persistence.NewMemoryJournal(), nil
	}
	return persistence.NewBadgerJournal(cfg.JournalPath)
}

func newNotifier(cfg *models.Config) *notification.Notifier {
	var sink notification.Sink = notification.NoopSink{}
	if cfg.WebhookURL != "" && cfg.TradingMode() != models.ModeBacktest {
		sink = notification.NewWebhookSink(cfg.WebhookURL)
	}
	return notification.NewNotifier(sink, 2, 64, logger.S())
}

func runLive(cfg *models.Config, journal persistence.TradeJournal, notifier order.Notifier, metrics *monitoring.Metrics) {
	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		logger.S().Fatal("BINANCE_API_KEY and BINANCE_SECRET_KEY must be set")
	}

	baseURL, wsURL := cfg.LiveAPIURL, cfg.LiveWSURL
	if cfg.TradingMode() == models.ModePaper {
		baseURL, wsURL = cfg.TestnetAPIURL, cfg.TestnetWSURL
		logger.S().Info("Paper trading against the exchange testnet")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex, err := exchange.NewLiveExchange(ctx, apiKey, secretKey, baseURL, wsURL, cfg.Symbol, logger.S())
	if err != nil {
		logger.S().Fatalf("Failed to initialize exchange: %v", err)
	}

	strategy := order.NewLiveExecutionStrategy(ex, cfg, logger.S())
	gridBot := bot.New(cfg, ex, strategy, journal, notifier, metrics, logger.S())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.S().Info("Received shutdown signal")
		gridBot.Stop()
	}()

	if err := gridBot.Start(ctx); err != nil {
		logger.S().Fatalf("Bot stopped with error: %v", err)
	}
	logger.S().Info("Bot stopped")
}

func runBacktest(cfg *models.Config, journal persistence.TradeJournal, notifier order.Notifier, metrics *monitoring.Metrics, dataPath, startDate, endDate, exportPath string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	finalPath, err := resolveBacktestData(ctx, cfg.Symbol, dataPath, startDate, endDate)
	if err != nil {
		logger.S().Fatal(err)
	}

	klines, err := downloader.LoadKlines(finalPath)
	if err != nil {
		logger.S().Fatalf("Failed to load market data: %v", err)
	}

	sim := exchange.NewSimulatedExchange(cfg.Symbol, cfg.InitialBalance, cfg.InitialCryptoBalance, logger.S())
	strategy := order.NewSimulatedExecutionStrategy(sim, cfg.Symbol, logger.S())
	gridBot := bot.New(cfg, sim, strategy, journal, notifier, metrics, logger.S())

	if err := gridBot.RunBacktest(ctx, sim, klines); err != nil {
		logger.S().Fatalf("Backtest failed: %v", err)
	}

	trades, err := journal.Trades()
	if err != nil {
		logger.S().Fatalf("Failed to read trade journal: %v", err)
	}

	finalBalance := gridBot.Balances().TotalBalanceValue(gridBot.LastPrice())
	m := reporter.CalculateMetrics(trades, gridBot.EquityCurve(), cfg.InitialBalance, finalBalance)
	reporter.RenderTable(m, os.Stdout)

	if exportPath != "" {
		if err := reporter.ExportTrades(trades, exportPath); err != nil {
			logger.S().Errorf("Failed to export trades: %v", err)
		} else {
			logger.S().Infof("Exported %d trades to %s", len(trades), exportPath)
		}
	}
}

// resolveBacktestData returns the CSV to replay, downloading it first when a
// date range was given instead of a file.
func resolveBacktestData(ctx context.Context, symbol, dataPath, startDate, endDate string) (string, error) {
	if startDate != "" && endDate != "" {
		startTime, err1 := time.Parse("2006-01-02", startDate)
		endTime, err2 := time.Parse("2006-01-02", endDate)
		if err1 != nil || err2 != nil {
			return "", fmt.Errorf("dates must be YYYY-MM-DD: start=%v end=%v", err1, err2)
		}

		fileName := filepath.Join("data", fmt.Sprintf("%s-%s-%s.csv", symbol, startDate, endDate))
		dl := downloader.NewKlineDownloader(logger.S())
		if err := dl.DownloadKlines(ctx, symbol, fileName, startTime, endTime); err != nil {
			return "", fmt.Errorf("failed to download market data: %w", err)
		}
		return fileName, nil
	}

	if dataPath == "" {
		return "", fmt.Errorf("backtest mode needs either -data or -start/-end")
	}
	return dataPath, nil
}
