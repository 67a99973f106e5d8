// Package main is the entry point for the core compute/routing engine: the
// event bus, multi-tier cache, regime detector, indicator engine, risk
// manager, order router, and data orchestrator wired together behind a thin
// HTTP surface.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quanta-engine/core/internal/api"
	"github.com/quanta-engine/core/internal/cache"
	"github.com/quanta-engine/core/internal/data"
	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/internal/indicators"
	"github.com/quanta-engine/core/internal/orchestrator"
	"github.com/quanta-engine/core/internal/regime"
	"github.com/quanta-engine/core/internal/risk"
	"github.com/quanta-engine/core/internal/router"
	"github.com/quanta-engine/core/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (YAML/JSON/TOML, viper-discovered if empty)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	config := loadConfig(*configPath, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(logger)
	store := cache.New(config.Cache, cache.NullStore{}, logger)
	regimeConfig := regime.DefaultConfig()
	regimeConfig.HoldInterval = config.Orchestrator.RegimeHoldInterval
	regimeDetector := regime.New(logger, regimeConfig)
	indicatorEngine := indicators.New(logger, indicators.FromTypesConfig(config.Indicator))
	riskManager := risk.New(logger, config.Risk, bus)

	exchangeClient := data.NewBinanceClient(logger, data.BinanceConfig{
		APIKey:    os.Getenv("BINANCE_API_KEY"),
		APISecret: os.Getenv("BINANCE_API_SECRET"),
		Testnet:   os.Getenv("BINANCE_TESTNET") != "",
	})

	orderRouter := router.New(logger, config.Router, bus, map[string]router.ExchangeAdapter{
		exchangeClient.ID(): exchangeClient,
	})

	dataOrchestrator := orchestrator.New(
		logger,
		config.Orchestrator,
		bus,
		store,
		regimeDetector,
		indicatorEngine,
		riskManager,
		exchangeClient,
		orderRouter,
	)

	snapshot := &engineSnapshot{
		orchestrator: dataOrchestrator,
		router:       orderRouter,
		risk:         riskManager,
		indicator:    indicatorEngine,
	}
	httpServer := api.New(logger, config.Server, snapshot)

	indicatorEngine.Start(ctx)

	if err := exchangeClient.Connect(ctx); err != nil {
		logger.Warn("exchange connect failed, continuing in degraded mode", zap.Error(err))
	}

	symbols := defaultSymbols()
	dataOrchestrator.StartContinuous(ctx, symbols, config.Orchestrator.UpdateInterval)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("engine started",
		zap.String("addr", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Strings("symbols", symbols),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	dataOrchestrator.StopContinuous()
	indicatorEngine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}

	logger.Info("engine stopped")
}

func defaultSymbols() []string {
	return []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
}

// engineSnapshot adapts the engine's subsystems to api.Snapshot.
type engineSnapshot struct {
	orchestrator *orchestrator.Orchestrator
	router       *router.Router
	risk         *risk.Manager
	indicator    *indicators.Engine
}

func (s *engineSnapshot) GetMarketData(symbols ...string) []types.MarketDataPoint {
	return s.orchestrator.GetMarketData(symbols...)
}

func (s *engineSnapshot) GetRegime() types.MarketRegime {
	return s.orchestrator.GetRegime()
}

func (s *engineSnapshot) OrchestratorMetrics() interface{} { return s.orchestrator.GetMetrics() }
func (s *engineSnapshot) RouterMetrics() interface{}       { return s.router.Metrics() }
func (s *engineSnapshot) IndicatorMetrics() interface{}    { return s.indicator.Stats() }
func (s *engineSnapshot) RiskMetrics() interface{}         { return s.risk.Stats() }

func loadConfig(path string, logger *zap.Logger) *types.EngineConfig {
	v := viper.New()
	v.SetConfigName("engine")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("QUANTA")
	v.AutomaticEnv()

	config := types.DefaultEngineConfig()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Warn("failed to read config file, using defaults", zap.Error(err))
		}
		return config
	}

	if err := v.Unmarshal(config); err != nil {
		logger.Warn("failed to unmarshal config, using defaults", zap.Error(err))
		return types.DefaultEngineConfig()
	}

	return config
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
