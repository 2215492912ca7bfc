// Curvesniper - momentum sniper for newly-launched bonding-curve tokens.
//
// Architecture: Ingest → Engine → Execution
// - Ingest streams pool-creation and price events from the upstream feeds
// - Engine admits tokens, tracks rolling momentum features, and emits
//   BUY/SELL trade signals
// - Execution forwards signals to the configured venue and dashboard
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/curvesniper/internal/config"
	"github.com/web3guy0/curvesniper/internal/devexit"
	"github.com/web3guy0/curvesniper/internal/engine"
	"github.com/web3guy0/curvesniper/internal/execution"
	"github.com/web3guy0/curvesniper/internal/featurestore"
	"github.com/web3guy0/curvesniper/internal/gbm"
	"github.com/web3guy0/curvesniper/internal/ingest"
	"github.com/web3guy0/curvesniper/internal/metrics"
	"github.com/web3guy0/curvesniper/internal/notify"
	"github.com/web3guy0/curvesniper/internal/persist"
	"github.com/web3guy0/curvesniper/internal/risk"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.DebugFilters {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("curvesniper starting")

	persistence, err := persist.Open(cfg.PersistDriver, cfg.PersistDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open persistence store")
	}

	var features, predictions *featurestore.Store
	if cfg.FeatureLogging {
		features, err = featurestore.Open(cfg.FeatureLogPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open feature log")
		}
	}
	if cfg.PredLogging {
		predictions, err = featurestore.Open(cfg.PredLogPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open prediction log")
		}
	}

	var riskAssessor *risk.Assessor
	if cfg.EnableTaxBundlerFilter {
		riskAssessor, err = risk.New(cfg.SolanaRPCURL, cfg.MaxRiskConcurrency, cfg.BundlerPrograms)
		if err != nil {
			log.Error().Err(err).Msg("failed to init risk assessor, running without transfer-fee/bundler gating")
			riskAssessor = nil
		}
	}

	var devProber *devexit.Prober
	if cfg.RequireDevSold {
		devProber, err = devexit.New(cfg.SolanaRPCURL)
		if err != nil {
			log.Error().Err(err).Msg("failed to init dev-exit prober, require_dev_sold will never clear")
			devProber = nil
		}
	}

	var buyModel, sellModel *gbm.Model
	if cfg.LGBMEnabled {
		buyModel, err = gbm.Load(filepath.Join(cfg.LGBMModelDir, "buy.json"))
		if err != nil {
			log.Error().Err(err).Msg("failed to load buy model, falling back to heuristic entry")
			buyModel = nil
		}
		sellModel, err = gbm.Load(filepath.Join(cfg.LGBMModelDir, "sell.json"))
		if err != nil {
			log.Error().Err(err).Msg("failed to load sell model, falling back to heuristic exit")
			sellModel = nil
		}
	}

	poolSource := ingest.NewPoolSource(cfg.PoolStreamURL)
	priceSource := ingest.NewPriceSource(cfg.PriceStreamURL)

	execSink := execution.NewHTTPSink(cfg.ExecutionSinkURL)

	var telegramSink *notify.TelegramSink
	if cfg.TelegramToken != "" {
		telegramSink, err = notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error().Err(err).Msg("failed to init telegram sink, dashboard notifications disabled")
			telegramSink = nil
		}
	}

	signals := &signalFanout{execSink: execSink, dashboard: telegramSink}

	// A nil *notify.TelegramSink boxed directly into the PnLSink interface
	// would be a non-nil interface wrapping a nil pointer, so e.pnl != nil
	// checks in the engine would misfire. Only box it when it's real.
	var pnl engine.PnLSink
	if telegramSink != nil {
		pnl = telegramSink
	}

	eng := engine.New(
		*cfg,
		riskAssessor,
		devProber,
		buyModel, sellModel,
		features, predictions,
		persistence,
		signals,
		pnl,
		poolSource.Events(),
		priceSource.Events(),
	)
	eng.PriceSubscriber = priceSource

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go poolSource.Run(ctx)
	go priceSource.Run(ctx)
	go eng.Run(ctx)
	if telegramSink != nil {
		go telegramSink.Run(ctx)
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics: serving /metrics")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics: server failed")
		}
	}()

	log.Info().Msg("all services started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	_ = metricsSrv.Close()
	if features != nil {
		_ = features.Close()
	}
	if predictions != nil {
		_ = predictions.Close()
	}

	log.Info().Msg("goodbye")
}
