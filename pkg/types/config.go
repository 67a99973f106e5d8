package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EngineConfig is the single root configuration struct enumerating every
// tunable of the core engine. It is populated by viper (see cmd/server) and
// passed down to each subsystem's constructor; subsystems never read global
// config state directly.
type EngineConfig struct {
	Server       ServerConfig       `mapstructure:"server"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Indicator    IndicatorConfig    `mapstructure:"indicator"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Router       RouterConfig       `mapstructure:"router"`
	Cache        CacheConfig        `mapstructure:"cache"`
}

// ServerConfig configures the thin HTTP surface.
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	EnableMetrics bool   `mapstructure:"enableMetrics"`
}

// OrchestratorConfig configures the Data Orchestrator.
type OrchestratorConfig struct {
	WeightMaxPerWindow      int           `mapstructure:"weightMaxPerWindow"`
	WeightWindow            time.Duration `mapstructure:"weightWindow"`
	CircuitFailureThreshold int           `mapstructure:"circuitFailureThreshold"`
	CircuitOpenDuration     time.Duration `mapstructure:"circuitOpenDuration"`
	CacheDuration           time.Duration `mapstructure:"cacheDuration"`
	KlinesLimit             int           `mapstructure:"klinesLimit"`
	UpdateInterval          time.Duration `mapstructure:"updateInterval"`
	HistoricalBatchSize     int           `mapstructure:"historicalBatchSize"`
	RegimeHoldInterval      time.Duration `mapstructure:"regimeHoldInterval"`

	// Regime-aware filtering thresholds (Open Question #5: named, configurable,
	// not intrinsic constants).
	TrendingChangeThreshold decimal.Decimal `mapstructure:"trendingChangeThreshold"`
	TrendingVolumeThreshold decimal.Decimal `mapstructure:"trendingVolumeThreshold"`
	VolatileVolumeThreshold decimal.Decimal `mapstructure:"volatileVolumeThreshold"`
	VolatileChangeCeiling   decimal.Decimal `mapstructure:"volatileChangeCeiling"`
	ThinLiquidityVolume     decimal.Decimal `mapstructure:"thinLiquidityVolume"`
}

// DefaultOrchestratorConfig returns spec-mandated defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		WeightMaxPerWindow:      6000,
		WeightWindow:            60 * time.Second,
		CircuitFailureThreshold: 5,
		CircuitOpenDuration:     60 * time.Second,
		CacheDuration:           300 * time.Second,
		KlinesLimit:             100,
		UpdateInterval:          30 * time.Second,
		HistoricalBatchSize:     10,
		RegimeHoldInterval:      5 * time.Minute,
		TrendingChangeThreshold: decimal.NewFromFloat(0.02),
		TrendingVolumeThreshold: decimal.NewFromFloat(1_000_000),
		VolatileVolumeThreshold: decimal.NewFromFloat(5_000_000),
		VolatileChangeCeiling:   decimal.NewFromFloat(0.10),
		ThinLiquidityVolume:     decimal.NewFromFloat(100_000),
	}
}

// IndicatorConfig configures the Indicator Engine's worker pool and scoring.
type IndicatorConfig struct {
	WorkerCount            int           `mapstructure:"workerCount"`
	BatchSize              int           `mapstructure:"batchSize"`
	WorkerTimeout          time.Duration `mapstructure:"workerTimeout"`
	DrainCadence           time.Duration `mapstructure:"drainCadence"`
	MaxQueueDepth          int           `mapstructure:"maxQueueDepth"`
	RankingConfidenceFloor float64       `mapstructure:"rankingConfidenceFloor"`
}

// DefaultIndicatorConfig returns spec-mandated defaults. WorkerCount is left
// unset and is not read: the indicator pool sizes itself to
// min(2*NumCPU, 16) with a floor of 4.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		BatchSize:              10,
		WorkerTimeout:          30 * time.Second,
		DrainCadence:           100 * time.Millisecond,
		MaxQueueDepth:          1000,
		RankingConfidenceFloor: 0.6,
	}
}

// RiskConfig configures the Risk Manager's admission-control limits and
// trading circuit breaker.
type RiskConfig struct {
	MaxPositionSize         decimal.Decimal `mapstructure:"maxPositionSize"`
	MaxTotalExposure        decimal.Decimal `mapstructure:"maxTotalExposure"`
	MaxSymbolExposure       decimal.Decimal `mapstructure:"maxSymbolExposure"`
	MaxDailyDrawdown        decimal.Decimal `mapstructure:"maxDailyDrawdown"`
	MaxTotalDrawdown        decimal.Decimal `mapstructure:"maxTotalDrawdown"`
	MaxVolatility           decimal.Decimal `mapstructure:"maxVolatility"`
	MaxCorrelation          decimal.Decimal `mapstructure:"maxCorrelation"`
	MaxLeverage             decimal.Decimal `mapstructure:"maxLeverage"`
	TradingCircuitThreshold decimal.Decimal `mapstructure:"tradingCircuitThreshold"`
	TradingCircuitDuration  time.Duration   `mapstructure:"tradingCircuitDuration"`
	KellyFraction           decimal.Decimal `mapstructure:"kellyFraction"`
	ReturnsWindow           int             `mapstructure:"returnsWindow"`
	LiquidityCapacity       decimal.Decimal `mapstructure:"liquidityCapacity"`
}

// DefaultRiskConfig returns spec-mandated defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositionSize:         decimal.NewFromFloat(0.05),
		MaxTotalExposure:        decimal.NewFromFloat(0.80),
		MaxSymbolExposure:       decimal.NewFromFloat(0.10),
		MaxDailyDrawdown:        decimal.NewFromFloat(0.05),
		MaxTotalDrawdown:        decimal.NewFromFloat(0.15),
		MaxVolatility:           decimal.NewFromFloat(0.5),
		MaxCorrelation:          decimal.NewFromFloat(0.85),
		MaxLeverage:             decimal.NewFromFloat(3.0),
		TradingCircuitThreshold: decimal.NewFromFloat(0.10),
		TradingCircuitDuration:  30 * time.Minute,
		KellyFraction:           decimal.NewFromFloat(0.25),
		ReturnsWindow:           252,
		LiquidityCapacity:       decimal.NewFromFloat(1_000_000),
	}
}

// RouterConfig configures the Order Router's scoring thresholds.
type RouterConfig struct {
	MinConfidence         float64 `mapstructure:"minConfidence"`
	MaxLatencyThresholdMs float64 `mapstructure:"maxLatencyThresholdMs"`
	MaxSlippageThreshold  float64 `mapstructure:"maxSlippageThreshold"`
	TelemetryAlpha        float64 `mapstructure:"telemetryAlpha"`
	HistoryCapacity       int     `mapstructure:"historyCapacity"`
}

// DefaultRouterConfig returns spec-mandated defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		MinConfidence:         0.60,
		MaxLatencyThresholdMs: 500,
		MaxSlippageThreshold:  0.002,
		TelemetryAlpha:        0.1,
		HistoryCapacity:       1000,
	}
}

// RetentionPolicy is the L1/L2 TTL pair for one timeframe.
type RetentionPolicy struct {
	L1TTL time.Duration
	L2TTL time.Duration
}

// CacheConfig configures the multi-tier cache's per-timeframe retention.
type CacheConfig struct {
	L1MaxEntries int                           `mapstructure:"l1MaxEntries"`
	Retention    map[Timeframe]RetentionPolicy `mapstructure:"-"`
}

// DefaultCacheConfig returns the spec-mandated per-timeframe retention table.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		L1MaxEntries: 10000,
		Retention: map[Timeframe]RetentionPolicy{
			Timeframe1m:  {L1TTL: 6 * time.Hour, L2TTL: 7 * 24 * time.Hour},
			Timeframe5m:  {L1TTL: 24 * time.Hour, L2TTL: 30 * 24 * time.Hour},
			Timeframe15m: {L1TTL: 3 * 24 * time.Hour, L2TTL: 90 * 24 * time.Hour},
			Timeframe1h:  {L1TTL: 7 * 24 * time.Hour, L2TTL: 2 * 365 * 24 * time.Hour},
		},
	}
}

// DefaultEngineConfig composes all subsystem defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Server: ServerConfig{
			Host:          "localhost",
			Port:          8080,
			EnableMetrics: true,
		},
		Orchestrator: DefaultOrchestratorConfig(),
		Indicator:    DefaultIndicatorConfig(),
		Risk:         DefaultRiskConfig(),
		Router:       DefaultRouterConfig(),
		Cache:        DefaultCacheConfig(),
	}
}
