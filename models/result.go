package models

import (
	"time"
)

// Run modes.
const (
	ModeBacktest = "backtest"
	ModePaper    = "paper"
)

// RiskState is the circuit-breaker state owned by the risk manager. Reason
// and Since are meaningful only while Halted is true.
type RiskState struct {
	Halted bool      `json:"halted"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

// RunConfig is the configuration snapshot embedded in a persisted run result
// so a result file is interpretable on its own.
type RunConfig struct {
	Pair                 string  `json:"pair"`
	Timeframe            string  `json:"timeframe"`
	InitialCapital       float64 `json:"initial_capital"`
	TakerFee             float64 `json:"taker_fee"`
	Slippage             float64 `json:"slippage"`
	MaxRiskPerTrade      float64 `json:"max_risk_per_trade"`
	MaxPositionFraction  float64 `json:"max_position_fraction"`
	StopLossPct          float64 `json:"stop_loss_pct"`
	TakeProfitPct        float64 `json:"take_profit_pct"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	DailyLossLimit       float64 `json:"daily_loss_limit"`
	MaxDrawdownLimit     float64 `json:"max_drawdown_limit"`
	RecoveryMinutes      int     `json:"recovery_minutes"`
	MACDSignalFactor     float64 `json:"macd_signal_factor"`
}

// RunResult is the single persisted artifact of a simulation run: the
// configuration snapshot, final statistics, full trade and decision logs and
// the equity curve.
type RunResult struct {
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	Pair      string    `json:"pair"`
	Timeframe string    `json:"timeframe"`
	Config    RunConfig `json:"config"`

	Stats       PerformanceStats `json:"stats"`
	Trades      []TradeRecord    `json:"trades"`
	Decisions   []DecisionRecord `json:"decisions"`
	EquityCurve []EquityPoint    `json:"equity_curve"`

	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Duration  time.Duration `json:"duration"`

	CandlesProcessed  int64 `json:"candles_processed"`
	Faults            int64 `json:"faults"`
	FallbackDecisions int64 `json:"fallback_decisions"`
	RiskRejections    int64 `json:"risk_rejections"`
}

// DashboardUpdate is the fire-and-forget payload pushed to the dashboard bus
// after each processed candle.
type DashboardUpdate struct {
	Timestamp time.Time        `json:"timestamp"`
	Pair      string           `json:"pair"`
	Price     float64          `json:"price"`
	Equity    float64          `json:"equity"`
	Stats     PerformanceStats `json:"stats"`
	Risk      RiskState        `json:"risk"`
	Position  *Position        `json:"position,omitempty"`
	LastTrade *TradeRecord     `json:"last_trade,omitempty"`
	Context   *MarketContext   `json:"market_context,omitempty"`
}
