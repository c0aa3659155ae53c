package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/spotex/params"
	"github.com/uhyunpark/spotex/pkg/api"
	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/settlement"
	"github.com/uhyunpark/spotex/pkg/app/spot"
	"github.com/uhyunpark/spotex/pkg/events"
	"github.com/uhyunpark/spotex/pkg/storage"
	"github.com/uhyunpark/spotex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (console, plus a file when LOG_FILE is set)
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Markets ----
	file := market.DefaultFile()
	if cfg.Storage.MarketsFile != "" {
		file, err = market.LoadFile(cfg.Storage.MarketsFile)
		if err != nil {
			sugar.Fatalw("markets_load_failed", "file", cfg.Storage.MarketsFile, "err", err)
		}
	}
	markets, err := file.Build()
	if err != nil {
		sugar.Fatalw("markets_invalid", "err", err)
	}

	// ---- Storage ----
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "dir", cfg.Storage.DataDir, "err", err)
	}
	defer store.Close()

	// ---- Event publishers ----
	hub := api.NewHub(sugar.Named("ws"))
	publishers := events.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, sugar)
		defer kafka.Close()
		publishers = append(publishers, kafka)
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- App ----
	app := spot.New(store, markets, spot.Options{
		Settlement: settlement.Config{
			MaxRetries:      cfg.Settlement.MaxRetries,
			RetryInitial:    cfg.Settlement.RetryInitial,
			RetryMax:        cfg.Settlement.RetryMax,
			RetryMultiplier: cfg.Settlement.RetryMultiplier,
			RetryJitter:     cfg.Settlement.RetryJitter,
		},
		Publisher: publishers,
		Logger:    sugar.Named("spot"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Settlement.AuditInterval > 0 {
		go runAudits(ctx, app, cfg.Settlement.AuditInterval, sugar)
	}

	server := api.NewServer(app, hub, api.Config{
		CORSOrigins:   cfg.API.CORSOrigins,
		FundingAPIKey: cfg.API.FundingAPIKey,
		AuthMode:      api.AuthMode(cfg.API.AuthMode),
		ChainID:       cfg.API.ChainID,
	}, sugar.Named("api"))

	sugar.Infow("exchange_starting",
		"data_dir", cfg.Storage.DataDir,
		"markets", len(markets.Markets()),
		"auth_mode", cfg.API.AuthMode,
		"funding_enabled", cfg.API.FundingAPIKey != "")

	if err := server.Start(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
		return
	}
	sugar.Info("exchange_stopped")
}

// runAudits runs the reconciliation audit every interval until ctx is done.
// Violations are logged by the app itself.
func runAudits(ctx context.Context, app *spot.App, interval time.Duration, sugar *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := app.Reconcile()
			if err != nil {
				sugar.Warnw("audit_failed", "err", err)
				continue
			}
			sugar.Debugw("audit_completed",
				"ok", report.OK(),
				"accounts", report.Accounts,
				"open_orders", report.OpenOrders)
		}
	}
}
