package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Stratflow  StratflowConfig  `yaml:"stratflow"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Simulation SimulationConfig `yaml:"simulation"`
	Risk       RiskConfig       `yaml:"risk"`
	Indicators IndicatorConfig  `yaml:"indicators"`
	Source     SourceConfig     `yaml:"source"`
	Decision   DecisionConfig   `yaml:"decision"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type StratflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type SimulationConfig struct {
	Mode            string         `yaml:"mode"`
	Pair            string         `yaml:"pair"`
	Timeframe       Timeframe      `yaml:"timeframe"`
	InitialCapital  float64        `yaml:"initial_capital"`
	TakerFee        float64        `yaml:"taker_fee"`
	Slippage        float64        `yaml:"slippage"`
	HistoryLimit    int            `yaml:"history_limit"`
	ContinueOnFault bool           `yaml:"continue_on_fault"`
	Backtest        BacktestConfig `yaml:"backtest"`
	Paper           PaperConfig    `yaml:"paper"`
}

type BacktestConfig struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

type PaperConfig struct {
	WarmupCandles int           `yaml:"warmup_candles"`
	PollDelay     time.Duration `yaml:"poll_delay"`
}

type RiskConfig struct {
	MaxRiskPerTrade      float64 `yaml:"max_risk_per_trade"`
	MaxPositionFraction  float64 `yaml:"max_position_fraction"`
	StopLossPct          float64 `yaml:"stop_loss_pct"`
	TakeProfitPct        float64 `yaml:"take_profit_pct"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	DailyLossLimit       float64 `yaml:"daily_loss_limit"`
	MaxDrawdownLimit     float64 `yaml:"max_drawdown_limit"`
	RecoveryMinutes      int     `yaml:"recovery_minutes"`
	MinSharpe            float64 `yaml:"min_sharpe"`
}

type IndicatorConfig struct {
	RSIPeriod         int     `yaml:"rsi_period"`
	EMAFast           int     `yaml:"ema_fast"`
	EMASlow           int     `yaml:"ema_slow"`
	MACDSignalFactor  float64 `yaml:"macd_signal_factor"`
	BollingerPeriod   int     `yaml:"bollinger_period"`
	BollingerStdDev   float64 `yaml:"bollinger_std_dev"`
	KeltnerPeriod     int     `yaml:"keltner_period"`
	KeltnerMultiplier float64 `yaml:"keltner_multiplier"`
	ProfileBuckets    int     `yaml:"profile_buckets"`
	ProfileDepth      int     `yaml:"profile_depth"`
	DeltaDepth        int     `yaml:"delta_depth"`
	VWAPBands         bool    `yaml:"vwap_bands"`
	Keltner           bool    `yaml:"keltner"`
	Squeeze           bool    `yaml:"squeeze"`
	VolumeProfile     bool    `yaml:"volume_profile"`
	MarketDelta       bool    `yaml:"market_delta"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type SourceConfig struct {
	Exchange  string              `yaml:"exchange"`
	Timeout   time.Duration       `yaml:"timeout"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
	Binance   BinanceSourceConfig `yaml:"binance"`
	Bybit     BybitSourceConfig   `yaml:"bybit"`
	Kucoin    KucoinSourceConfig  `yaml:"kucoin"`
}

type BinanceSourceConfig struct {
	URL            string               `yaml:"url"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type BybitSourceConfig struct {
	URL            string               `yaml:"url"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type KucoinSourceConfig struct {
	URL            string               `yaml:"url"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type DecisionConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	UpdateBuffer    int           `yaml:"update_buffer"`
	LogHistory      int           `yaml:"log_history"`
	ChartHistory    int           `yaml:"chart_history"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type StorageConfig struct {
	ResultsDir string   `yaml:"results_dir"`
	S3         S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string                 `yaml:"level"`
	Format string                 `yaml:"format"`
	Output string                 `yaml:"output"`
	MaxAge int                    `yaml:"max_age"`
	Fields map[string]interface{} `yaml:"fields"`
}

// Timeframe is a candle interval in the exchange-conventional short form
// ("1m", "5m", "1h", "1d"). Readers translate it to each venue's native
// interval token.
type Timeframe string

var timeframeMinutes = map[Timeframe]int{
	"1m": 1, "3m": 3, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240, "6h": 360, "8h": 480, "12h": 720,
	"1d": 1440,
}

func (t Timeframe) Valid() bool {
	_, ok := timeframeMinutes[t]
	return ok
}

// Minutes returns the interval length in minutes, or 0 for an unknown token.
func (t Timeframe) Minutes() int {
	return timeframeMinutes[t]
}

func (t Timeframe) Duration() time.Duration {
	return time.Duration(timeframeMinutes[t]) * time.Minute
}

func (t Timeframe) String() string {
	return string(t)
}

const (
	ModeBacktest = "backtest"
	ModePaper    = "paper"
)

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Simulation: SimulationConfig{
			Mode:            ModeBacktest,
			InitialCapital:  10000,
			HistoryLimit:    500,
			ContinueOnFault: true,
			Paper: PaperConfig{
				WarmupCandles: 100,
				PollDelay:     2 * time.Second,
			},
		},
		Risk: RiskConfig{
			MaxRiskPerTrade:      0.02,
			MaxPositionFraction:  0.25,
			StopLossPct:          0.02,
			TakeProfitPct:        0.04,
			MaxConsecutiveLosses: 3,
			DailyLossLimit:       0.05,
			MaxDrawdownLimit:     0.20,
			RecoveryMinutes:      60,
			MinSharpe:            0.5,
		},
		Indicators: IndicatorConfig{
			RSIPeriod:         14,
			EMAFast:           12,
			EMASlow:           26,
			MACDSignalFactor:  0.9,
			BollingerPeriod:   20,
			BollingerStdDev:   2.0,
			KeltnerPeriod:     20,
			KeltnerMultiplier: 1.5,
			ProfileBuckets:    20,
			ProfileDepth:      50,
			DeltaDepth:        20,
		},
		Source: SourceConfig{
			Exchange: "binance",
			Timeout:  10 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				BurstSize:         10,
			},
		},
		Decision: DecisionConfig{
			Timeout: 10 * time.Second,
		},
		Dashboard: DashboardConfig{
			Address:         ":8080",
			UpdateBuffer:    64,
			LogHistory:      200,
			ChartHistory:    500,
			RefreshInterval: 5 * time.Second,
		},
		Storage: StorageConfig{
			ResultsDir: "results",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override decision endpoint from the environment if available
	if v := os.Getenv("DECISION_ENDPOINT"); v != "" {
		config.Decision.Endpoint = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	// Validate configuration
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	config.Simulation.Pair = strings.ToUpper(strings.TrimSpace(config.Simulation.Pair))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Stratflow.Name == "" {
		return fmt.Errorf("stratflow.name is required")
	}

	if cfg.Stratflow.Version == "" {
		return fmt.Errorf("stratflow.version is required")
	}

	if cfg.Simulation.Mode != ModeBacktest && cfg.Simulation.Mode != ModePaper {
		return fmt.Errorf("simulation.mode must be %q or %q", ModeBacktest, ModePaper)
	}
	if cfg.Simulation.Pair == "" {
		return fmt.Errorf("simulation.pair is required")
	}
	if !cfg.Simulation.Timeframe.Valid() {
		return fmt.Errorf("simulation.timeframe '%s' is not a supported interval", cfg.Simulation.Timeframe)
	}
	if cfg.Simulation.InitialCapital <= 0 {
		return fmt.Errorf("simulation.initial_capital must be greater than 0")
	}
	if cfg.Simulation.TakerFee < 0 || cfg.Simulation.TakerFee >= 1 {
		return fmt.Errorf("simulation.taker_fee must be a fraction in [0, 1)")
	}
	if cfg.Simulation.Slippage < 0 || cfg.Simulation.Slippage >= 1 {
		return fmt.Errorf("simulation.slippage must be a fraction in [0, 1)")
	}
	if cfg.Simulation.HistoryLimit <= 0 {
		return fmt.Errorf("simulation.history_limit must be greater than 0")
	}
	if cfg.Simulation.Mode == ModeBacktest {
		if cfg.Simulation.Backtest.Start.IsZero() || cfg.Simulation.Backtest.End.IsZero() {
			return fmt.Errorf("simulation.backtest.start and simulation.backtest.end are required in backtest mode")
		}
		if !cfg.Simulation.Backtest.End.After(cfg.Simulation.Backtest.Start) {
			return fmt.Errorf("simulation.backtest.end must be after simulation.backtest.start")
		}
	}

	if cfg.Risk.MaxRiskPerTrade <= 0 || cfg.Risk.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be a fraction in (0, 1)")
	}
	if cfg.Risk.MaxPositionFraction <= 0 || cfg.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("risk.max_position_fraction must be a fraction in (0, 1]")
	}
	if cfg.Risk.StopLossPct <= 0 {
		return fmt.Errorf("risk.stop_loss_pct must be greater than 0")
	}
	if cfg.Risk.TakeProfitPct <= 0 {
		return fmt.Errorf("risk.take_profit_pct must be greater than 0")
	}
	if cfg.Risk.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("risk.max_consecutive_losses must be greater than 0")
	}
	if cfg.Risk.DailyLossLimit <= 0 || cfg.Risk.DailyLossLimit > 1 {
		return fmt.Errorf("risk.daily_loss_limit must be a fraction in (0, 1]")
	}
	if cfg.Risk.MaxDrawdownLimit <= 0 || cfg.Risk.MaxDrawdownLimit > 1 {
		return fmt.Errorf("risk.max_drawdown_limit must be a fraction in (0, 1]")
	}
	if cfg.Risk.RecoveryMinutes < 0 {
		return fmt.Errorf("risk.recovery_minutes must not be negative")
	}

	if cfg.Indicators.RSIPeriod <= 0 {
		return fmt.Errorf("indicators.rsi_period must be greater than 0")
	}
	if cfg.Indicators.EMAFast <= 0 || cfg.Indicators.EMASlow <= cfg.Indicators.EMAFast {
		return fmt.Errorf("indicators.ema_fast and indicators.ema_slow must satisfy 0 < fast < slow")
	}
	if cfg.Indicators.MACDSignalFactor <= 0 || cfg.Indicators.MACDSignalFactor > 1 {
		return fmt.Errorf("indicators.macd_signal_factor must be in (0, 1]")
	}
	if cfg.Indicators.BollingerPeriod <= 1 {
		return fmt.Errorf("indicators.bollinger_period must be greater than 1")
	}
	if cfg.Indicators.BollingerStdDev <= 0 {
		return fmt.Errorf("indicators.bollinger_std_dev must be greater than 0")
	}
	if cfg.Indicators.KeltnerPeriod <= 0 {
		return fmt.Errorf("indicators.keltner_period must be greater than 0")
	}
	if cfg.Indicators.KeltnerMultiplier <= 0 {
		return fmt.Errorf("indicators.keltner_multiplier must be greater than 0")
	}
	if cfg.Indicators.ProfileBuckets <= 0 {
		return fmt.Errorf("indicators.profile_buckets must be greater than 0")
	}
	if cfg.Indicators.ProfileDepth <= 0 {
		return fmt.Errorf("indicators.profile_depth must be greater than 0")
	}
	if cfg.Indicators.DeltaDepth <= 0 {
		return fmt.Errorf("indicators.delta_depth must be greater than 0")
	}
	if cfg.Indicators.Squeeze && !cfg.Indicators.Keltner {
		return fmt.Errorf("indicators.squeeze requires indicators.keltner to be enabled")
	}

	switch cfg.Source.Exchange {
	case "binance", "bybit", "kucoin":
	default:
		return fmt.Errorf("source.exchange '%s' is not supported", cfg.Source.Exchange)
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be greater than 0")
	}
	if cfg.Source.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("source.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Source.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("source.rate_limit.burst_size must be greater than 0")
	}

	if cfg.Decision.Timeout <= 0 {
		return fmt.Errorf("decision.timeout must be greater than 0")
	}

	if cfg.Dashboard.Enabled {
		if cfg.Dashboard.Address == "" {
			return fmt.Errorf("dashboard.address is required when the dashboard is enabled")
		}
		if cfg.Dashboard.UpdateBuffer <= 0 {
			return fmt.Errorf("dashboard.update_buffer must be greater than 0")
		}
	}

	if cfg.Storage.ResultsDir == "" {
		return fmt.Errorf("storage.results_dir is required")
	}
	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
