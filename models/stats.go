package models

// PerformanceStats is the aggregate recomputed from the trade log and equity
// curve after every trade close and every equity tick. Callers never mutate
// it directly.
type PerformanceStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalPnL    float64 `json:"total_pnl"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"`
	// ProfitFactor is grossProfit/grossLoss, zero when there are no losses.
	ProfitFactor float64 `json:"profit_factor"`

	// SharpeRatio is the mean of per-trade pnl percentages over their
	// population standard deviation. It is zero with fewer than two trades
	// or zero dispersion, and is not annualized.
	SharpeRatio float64 `json:"sharpe_ratio"`

	CurrentDrawdown float64 `json:"current_drawdown"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	PeakEquity      float64 `json:"peak_equity"`
	CurrentEquity   float64 `json:"current_equity"`

	ConsecutiveWins   int `json:"consecutive_wins"`
	ConsecutiveLosses int `json:"consecutive_losses"`
	MaxWinStreak      int `json:"max_win_streak"`
	MaxLossStreak     int `json:"max_loss_streak"`

	Expectancy        float64 `json:"expectancy"`
	AverageWin        float64 `json:"average_win"`
	AverageLoss       float64 `json:"average_loss"`
	AverageRiskReward float64 `json:"average_risk_reward"`
}
