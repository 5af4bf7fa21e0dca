package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	alpacabroker "tradedesk/internal/broker/alpaca"

	"tradedesk/internal/audit"
	"tradedesk/internal/broker"
	"tradedesk/internal/config"
	cronrunner "tradedesk/internal/cron"
	"tradedesk/internal/db"
	"tradedesk/internal/execution"
	"tradedesk/internal/generator"
	"tradedesk/internal/lifecycle"
	"tradedesk/internal/logger"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/repository"
	gormrepository "tradedesk/internal/repository/gorm"
	"tradedesk/internal/risk"
	"tradedesk/internal/taxledger"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("TRADER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("TRADER_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	quotes := marketdata.NewAlpacaProvider()

	auditor := &audit.Recorder{Repo: store, Logger: log}
	killSwitch := &risk.KillSwitch{Repo: store, Logger: log, Audit: auditor}
	gate := &risk.Gate{
		Config: cfg.Risk,
		Repo:   store,
		Switch: killSwitch,
		Logger: log,
		Audit:  auditor,
	}
	ledger := &taxledger.Engine{
		Config: cfg.Tax,
		Repo:   store,
		Quotes: quotes,
		Logger: log,
	}
	life := &lifecycle.Engine{
		Config: cfg,
		Repo:   store,
		Quotes: quotes,
		Logger: log,
		Audit:  auditor,
	}

	gen := &generator.Generator{
		Config:  cfg.Generator,
		RiskCfg: cfg.Risk,
		Repo:    store,
		Quotes:  quotes,
		Gate:    gate,
		Life:    life,
		Logger:  log,
	}

	brk := buildBroker(cfg.Broker, quotes, log)
	matcher := &execution.Matcher{Repo: store, Ledger: ledger, Logger: log, Audit: auditor}
	executor := &execution.Executor{
		Repo:    store,
		Broker:  brk,
		Matcher: matcher,
		Ledger:  ledger,
		Gate:    gate,
		Logger:  log,
	}

	snapshotter := &portfolio.Snapshotter{Repo: store, Quotes: quotes, Logger: log}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		runner := cronrunner.New(log, ctx)

		if _, err := runner.Add(cfg.Cron.GeneratorScan, func(ctx context.Context) {
			if _, err := gen.Scan(ctx); err != nil {
				log.Warn("thesis scan failed", zap.Error(err))
			}
		}); err != nil {
			log.Warn("cron register thesis scan failed", zap.Error(err))
		}

		if _, err := runner.Add(cfg.Cron.SignalExpiry, func(ctx context.Context) {
			if _, err := life.ExpirePending(ctx); err != nil {
				log.Warn("signal expiry failed", zap.Error(err))
			}
		}); err != nil {
			log.Warn("cron register signal expiry failed", zap.Error(err))
		}

		if _, err := runner.Add(cfg.Cron.Snapshot, func(ctx context.Context) {
			if _, err := snapshotter.Take(ctx); err != nil {
				log.Warn("portfolio snapshot failed", zap.Error(err))
			}
		}); err != nil {
			log.Warn("cron register snapshot failed", zap.Error(err))
		}

		if _, err := runner.Add("@every 1m", func(ctx context.Context) {
			if err := executeApproved(ctx, store, executor, log); err != nil {
				log.Warn("approved signal sweep failed", zap.Error(err))
			}
		}); err != nil {
			log.Warn("cron register execution sweep failed", zap.Error(err))
		}

		if _, err := runner.Add("@every 6h", func(ctx context.Context) {
			if _, err := life.ReplayWhatIf(ctx, repository.ListWhatIfParams{Limit: 200}); err != nil {
				log.Warn("what-if replay failed", zap.Error(err))
			}
		}); err != nil {
			log.Warn("cron register what-if replay failed", zap.Error(err))
		}

		runner.Start()
		defer runner.Stop()
	}

	log.Info("trader started",
		zap.String("env", cfg.App.Env),
		zap.String("broker_mode", cfg.Broker.Mode),
	)

	<-ctx.Done()
	log.Info("shutdown requested")
}

// executeApproved picks up signals a human approved since the last sweep and
// pushes them through the broker. A failed execution is logged and retried on
// the next sweep; the signal stays APPROVED until a fill is booked.
func executeApproved(ctx context.Context, store repository.Repository, executor *execution.Executor, log *zap.Logger) error {
	status := models.SignalApproved
	signals, err := store.ListSignals(ctx, repository.ListSignalsParams{Status: &status, Limit: 50})
	if err != nil {
		return err
	}
	for _, sig := range signals {
		pnl, err := executor.Execute(ctx, sig.ID)
		if err != nil {
			log.Warn("signal execution failed", zap.Uint64("signal_id", sig.ID), zap.Error(err))
			continue
		}
		log.Info("signal executed",
			zap.Uint64("signal_id", sig.ID),
			zap.String("symbol", sig.Symbol),
			zap.String("realized_pnl", pnl.String()),
		)
	}
	return nil
}

func buildBroker(cfg config.BrokerConfig, quotes marketdata.QuoteProvider, log *zap.Logger) broker.Broker {
	policy := broker.Policy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.BaseDelay,
		JitterFrac:  cfg.JitterFrac,
	}
	if strings.EqualFold(cfg.Mode, "alpaca") {
		return alpacabroker.New(alpacabroker.OptsFromEnv(), policy, log)
	}
	return broker.NewSimulator(quotes, decimal.NewFromInt(100_000), log)
}
