package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stratflow/config"
	"stratflow/decision"
	"stratflow/internal/channel"
	"stratflow/internal/dashboard"
	"stratflow/internal/engine"
	"stratflow/internal/metrics"
	"stratflow/internal/symbols"
	"stratflow/logger"
	"stratflow/models"
	"stratflow/reader"
	"stratflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	mode := flag.String("mode", "", "Run mode (backtest or paper), overrides the configured mode")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Simulation.Mode = strings.ToLower(strings.TrimSpace(*mode))
	}
	if cfg.Simulation.Mode != config.ModeBacktest && cfg.Simulation.Mode != config.ModePaper {
		log.WithFields(logger.Fields{"mode": cfg.Simulation.Mode}).Error("Unknown run mode")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	pair := symbols.Canonical(cfg.Source.Exchange, cfg.Simulation.Pair)

	log.WithFields(logger.Fields{
		"service":   cfg.Stratflow.Name,
		"version":   cfg.Stratflow.Version,
		"env":       config.AppEnvironment(),
		"mode":      cfg.Simulation.Mode,
		"exchange":  cfg.Source.Exchange,
		"pair":      pair,
		"timeframe": cfg.Simulation.Timeframe.String(),
	}).Info("starting stratflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Metrics.Prometheus {
		metrics.Init()
	}

	supplier, err := reader.NewSupplier(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to create candle supplier")
		os.Exit(1)
	}

	var provider decision.Provider
	if cfg.Decision.Endpoint != "" {
		provider = decision.NewHTTPProvider(cfg.Decision, log)
	} else {
		provider = decision.NewRuleProvider(log)
		log.WithComponent("main").Info("no decision endpoint configured, using the built-in rule provider")
	}

	var bus *channel.Bus
	if cfg.Dashboard.Enabled {
		bus = channel.NewBus(cfg.Dashboard.UpdateBuffer, pair, cfg.Simulation.Mode, log)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, cfg.Storage.ResultsDir, bus, log)
	if err != nil {
		log.WithError(err).Error("Failed to create dashboard server")
		os.Exit(1)
	}
	if dash != nil {
		go func() {
			if err := dash.Run(ctx, cfg.Stratflow.Name); err != nil {
				log.WithError(err).Warn("dashboard server stopped")
			}
		}()
	}

	resultWriter, err := writer.NewResultWriter(cfg.Storage, log)
	if err != nil {
		log.WithError(err).Error("Failed to create result writer")
		os.Exit(1)
	}

	driver := engine.NewDriver(cfg, supplier, provider, bus, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch cfg.Simulation.Mode {
	case config.ModeBacktest:
		go func() {
			sig := <-sigChan
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			cancel()
		}()

		result, err := driver.RunBacktest(ctx)
		if err != nil {
			log.WithError(err).Error("Backtest failed")
			os.Exit(1)
		}
		persistResult(ctx, resultWriter, result, log)

	case config.ModePaper:
		if err := driver.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start paper session")
			os.Exit(1)
		}

		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		log.Info("starting graceful shutdown")

		done := make(chan struct{})
		go func() {
			defer close(done)
			if result := driver.Stop(); result != nil {
				// The parent context is about to be cancelled; persist with a
				// fresh one so the result always lands on disk.
				persistResult(context.Background(), resultWriter, result, log)
			}
		}()

		select {
		case <-done:
			log.Info("graceful shutdown completed")
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timeout exceeded")
		}
		cancel()
	}

	if bus != nil {
		bus.Close()
	}

	log.Info("stratflow stopped")
}

func persistResult(ctx context.Context, w *writer.ResultWriter, result *models.RunResult, log *logger.Log) {
	path, err := w.Write(ctx, result)
	if err != nil {
		log.WithError(err).Error("Failed to persist run result")
		return
	}
	log.WithComponent("main").WithFields(logger.Fields{
		"path":         path,
		"total_trades": result.Stats.TotalTrades,
		"total_pnl":    result.Stats.TotalPnL,
		"win_rate":     result.Stats.WinRate,
	}).Info("run result persisted")
}
