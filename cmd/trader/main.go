package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/config"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/engine"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/logger"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/monitoring"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/notifications"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/store"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., trader.json)")
		envFile    = flag.String("env", ".env", "Environment file path")
		dataDir    = flag.String("data", "", "CSV candle directory; overrides the live market feed")
		dryRun     = flag.Bool("dry-run", false, "Compute and log decisions without placing orders")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	fmt.Println("🚀 Trader Starting...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dryRun {
		cfg.Engine.DryRun = true
		cfg.Execution.DryRun = true
		cfg.Position.DryRun = true
	}

	fileLog, err := logger.NewLoggerWithDebug(cfg.Account, *debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer fileLog.Close()

	b, provider, err := buildBrokerAndFeed(cfg, *dataDir)
	if err != nil {
		log.Fatalf("Failed to set up broker: %v", err)
	}

	st, err := store.NewFileStore(cfg.StoreDir, fileLog)
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}

	eng, err := engine.New(cfg, engine.Deps{
		Broker:   b,
		Provider: provider,
		Notifier: buildNotifier(),
		Store:    st,
		Logger:   fileLog,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	if cfg.MetricsPort > 0 {
		go serveMonitoring(cfg.MetricsPort, eng)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		fmt.Println("\n🛑 Shutdown signal received...")
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		log.Fatalf("Engine stopped with error: %v", err)
	}
	fmt.Println("✅ Trader stopped successfully")
}

// buildBrokerAndFeed wires the venue and the market data source per config
func buildBrokerAndFeed(cfg *config.TraderConfig, dataDir string) (broker.Broker, market.Provider, error) {
	var provider market.Provider

	switch strings.ToLower(cfg.Broker.Name) {
	case "paper":
		if dataDir == "" {
			// Paper trading still wants real candles
			provider = market.NewBybitProvider(false, "linear")
		}
		pb := broker.NewPaperBroker(cfg.Broker.StartingCash)
		if dataDir != "" {
			provider = market.NewCSVProvider(dataDir)
		}
		return pb, provider, nil

	case "bybit":
		bc := cfg.Broker.Bybit
		if bc == nil {
			bc = &config.BybitConfig{Demo: true}
		}
		inner := broker.NewBybitBroker(broker.BybitConfig{
			APIKey:    os.Getenv("BYBIT_API_KEY"),
			APISecret: os.Getenv("BYBIT_API_SECRET"),
			Category:  bc.Category,
			Testnet:   bc.Testnet,
			Demo:      bc.Demo,
		})
		provider = market.NewBybitProvider(bc.Testnet, bc.Category)
		if dataDir != "" {
			provider = market.NewCSVProvider(dataDir)
		}
		return broker.NewProtectedBroker(inner), provider, nil

	default:
		return nil, nil, fmt.Errorf("unknown broker %q", cfg.Broker.Name)
	}
}

// buildNotifier creates the Telegram notifier when credentials are present
func buildNotifier() notifications.Notifier {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chat := os.Getenv("TELEGRAM_CHAT_ID")
	if token == "" || chat == "" {
		return nil
	}
	return notifications.NewTelegramNotifier(token, chat)
}

// serveMonitoring exposes the metrics and health endpoints
func serveMonitoring(port int, eng *engine.TradingEngine) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", eng.Health())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("Monitoring server stopped: %v", err)
	}
}

// loadEnvFile loads environment variables from a file
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}
