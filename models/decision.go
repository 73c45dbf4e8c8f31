package models

import (
	"time"
)

// TradeAction is the action proposed by a decision provider.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

// TradeDecision is a proposed action returned by a decision provider. The
// optional fields are suggestions only; the risk manager validates or
// replaces them before execution.
type TradeDecision struct {
	Action     TradeAction `json:"action"`
	Confidence float64     `json:"confidence"`
	// Quantity is a suggested cash fraction in [0,1], zero when the provider
	// leaves sizing to the risk manager.
	Quantity   float64 `json:"quantity,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// DecisionRequest is the full market/portfolio context handed to a decision
// provider for one candle.
type DecisionRequest struct {
	Pair         string             `json:"pair"`
	Timeframe    string             `json:"timeframe"`
	Timestamp    time.Time          `json:"timestamp"`
	Price        float64            `json:"price"`
	Candle       Candle             `json:"candle"`
	Indicators   *IndicatorSnapshot `json:"indicators"`
	Context      MarketContext      `json:"market_context"`
	Portfolio    PortfolioState     `json:"portfolio"`
	OpenPosition *Position          `json:"open_position,omitempty"`
	Stats        PerformanceStats   `json:"stats"`
	RecentTrades []TradeRecord      `json:"recent_trades,omitempty"`
}

// DecisionRecord is the audit entry kept for every decision obtained during
// a run, including substituted fallbacks.
type DecisionRecord struct {
	Timestamp  time.Time   `json:"timestamp"`
	Action     TradeAction `json:"action"`
	Confidence float64     `json:"confidence"`
	Price      float64     `json:"price"`
	Reasoning  string      `json:"reasoning,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
}
