package models

import (
	"time"
)

// Reasons recorded on the closed half of a TradeRecord.
const (
	CloseReasonSignal     = "signal"
	CloseReasonStopLoss   = "stop_loss"
	CloseReasonTakeProfit = "take_profit"
	CloseReasonEndOfRun   = "end_of_run"
)

// TradeRecord is the immutable record of one simulated trade. The open half
// is filled when a position is opened; the exit fields are filled once on
// close and the record never changes afterwards.
type TradeRecord struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Symbol     string      `json:"symbol"`
	Action     TradeAction `json:"action"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price"`
	Value      float64     `json:"value"`
	Fee        float64     `json:"fee"`
	StopLoss   float64     `json:"stop_loss,omitempty"`
	TakeProfit float64     `json:"take_profit,omitempty"`
	Reasoning  string      `json:"reasoning,omitempty"`

	ExitTime      time.Time     `json:"exit_time,omitempty"`
	ExitPrice     float64       `json:"exit_price,omitempty"`
	ExitFee       float64       `json:"exit_fee,omitempty"`
	PnL           float64       `json:"pnl"`
	PnLPercent    float64       `json:"pnl_percent"`
	HoldingPeriod time.Duration `json:"holding_period,omitempty"`
	IsWin         bool          `json:"is_win"`
	Reason        string        `json:"reason,omitempty"`
}

// Closed reports whether the exit half of the record has been filled.
func (t TradeRecord) Closed() bool {
	return !t.ExitTime.IsZero()
}
