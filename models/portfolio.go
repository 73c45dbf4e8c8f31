package models

import (
	"time"
)

// PositionSide distinguishes long from short positions. The simulator only
// opens long positions today; the side is carried so stop/target derivation
// stays sign-correct.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Position is the single open position owned by the execution simulator.
// It is created on an accepted BUY, marked to market on every candle while
// open, and converted into the closed half of a TradeRecord on close.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	EntryPrice    float64      `json:"entry_price"`
	Quantity      float64      `json:"quantity"`
	EntryTime     time.Time    `json:"entry_time"`
	StopLoss      float64      `json:"stop_loss"`
	TakeProfit    float64      `json:"take_profit"`
	CurrentPrice  float64      `json:"current_price"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
}

// PortfolioState is the single mutable cash/holdings aggregate owned by the
// execution simulator. TotalEquity is cash plus the mark-to-market value of
// any open position.
type PortfolioState struct {
	Cash        float64            `json:"cash"`
	Holdings    map[string]float64 `json:"holdings"`
	TotalEquity float64            `json:"total_equity"`
	Timestamp   time.Time          `json:"timestamp"`
}

// EquityPoint is one sample of the append-only equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}
