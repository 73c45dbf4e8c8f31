package perf

import (
	"math"
	"time"

	"stratflow/logger"
	"stratflow/models"
)

// Tracker owns the trade log, the equity curve and the aggregate statistics
// derived from them. It is fed by the driver after every trade close and
// every hold tick; readers only ever see value copies.
type Tracker struct {
	log *logger.Entry

	initialCapital float64
	trades         []models.TradeRecord
	curve          []models.EquityPoint
	stats          models.PerformanceStats
}

// NewTracker seeds the equity curve with the starting capital so drawdown is
// measured against it from the first candle.
func NewTracker(initialCapital float64, start time.Time, log *logger.Log) *Tracker {
	t := &Tracker{
		log:            log.WithComponent("perf"),
		initialCapital: initialCapital,
		curve:          []models.EquityPoint{{Timestamp: start, Equity: initialCapital}},
	}
	t.stats.PeakEquity = initialCapital
	t.stats.CurrentEquity = initialCapital
	return t
}

// RecordTrade appends a completed trade and the post-trade equity, then
// recomputes every aggregate.
func (t *Tracker) RecordTrade(trade models.TradeRecord, equity float64, ts time.Time) {
	t.trades = append(t.trades, trade)
	t.curve = append(t.curve, models.EquityPoint{Timestamp: ts, Equity: equity})
	t.recomputeTradeStats()
	t.updateEquityStats(equity)

	t.log.WithFields(logger.Fields{
		"trade_id": trade.ID,
		"pnl":      trade.PnL,
		"trades":   t.stats.TotalTrades,
		"win_rate": t.stats.WinRate,
		"equity":   equity,
	}).Debug("trade recorded")
}

// RecordEquity appends a hold-tick equity point and refreshes the drawdown
// figures.
func (t *Tracker) RecordEquity(ts time.Time, equity float64) {
	t.curve = append(t.curve, models.EquityPoint{Timestamp: ts, Equity: equity})
	t.updateEquityStats(equity)
}

// Stats returns a copy of the current aggregates.
func (t *Tracker) Stats() models.PerformanceStats {
	return t.stats
}

// Trades returns a copy of the full trade log in close order.
func (t *Tracker) Trades() []models.TradeRecord {
	out := make([]models.TradeRecord, len(t.trades))
	copy(out, t.trades)
	return out
}

// RecentTrades returns up to n most recent trades, oldest first.
func (t *Tracker) RecentTrades(n int) []models.TradeRecord {
	if n <= 0 || len(t.trades) == 0 {
		return nil
	}
	if n > len(t.trades) {
		n = len(t.trades)
	}
	out := make([]models.TradeRecord, n)
	copy(out, t.trades[len(t.trades)-n:])
	return out
}

// EquityCurve returns a copy of the equity curve including the seed point.
func (t *Tracker) EquityCurve() []models.EquityPoint {
	out := make([]models.EquityPoint, len(t.curve))
	copy(out, t.curve)
	return out
}

func (t *Tracker) updateEquityStats(equity float64) {
	t.stats.CurrentEquity = equity
	if equity > t.stats.PeakEquity {
		t.stats.PeakEquity = equity
	}
	if t.stats.PeakEquity > 0 {
		t.stats.CurrentDrawdown = (t.stats.PeakEquity - equity) / t.stats.PeakEquity
	} else {
		t.stats.CurrentDrawdown = 0
	}
	if t.stats.CurrentDrawdown > t.stats.MaxDrawdown {
		t.stats.MaxDrawdown = t.stats.CurrentDrawdown
	}
}

func (t *Tracker) recomputeTradeStats() {
	var (
		wins, losses           int
		grossProfit, grossLoss float64
		totalPnL               float64
		sumWin, sumLoss        float64
		winStreak, lossStreak  int
		maxWin, maxLoss        int
	)
	pcts := make([]float64, 0, len(t.trades))

	for _, trade := range t.trades {
		totalPnL += trade.PnL
		pcts = append(pcts, trade.PnLPercent)
		if trade.PnL > 0 {
			wins++
			grossProfit += trade.PnL
			sumWin += trade.PnL
			winStreak++
			lossStreak = 0
			if winStreak > maxWin {
				maxWin = winStreak
			}
		} else {
			losses++
			grossLoss += -trade.PnL
			sumLoss += trade.PnL
			lossStreak++
			winStreak = 0
			if lossStreak > maxLoss {
				maxLoss = lossStreak
			}
		}
	}

	total := len(t.trades)
	t.stats.TotalTrades = total
	t.stats.WinningTrades = wins
	t.stats.LosingTrades = losses
	t.stats.TotalPnL = totalPnL
	t.stats.GrossProfit = grossProfit
	t.stats.GrossLoss = grossLoss
	t.stats.ConsecutiveWins = winStreak
	t.stats.ConsecutiveLosses = lossStreak
	t.stats.MaxWinStreak = maxWin
	t.stats.MaxLossStreak = maxLoss

	t.stats.WinRate = 0
	t.stats.ProfitFactor = 0
	t.stats.Expectancy = 0
	t.stats.AverageWin = 0
	t.stats.AverageLoss = 0
	t.stats.AverageRiskReward = 0
	if total > 0 {
		t.stats.WinRate = float64(wins) / float64(total) * 100
		t.stats.Expectancy = totalPnL / float64(total)
	}
	if grossLoss > 0 {
		t.stats.ProfitFactor = grossProfit / grossLoss
	}
	if wins > 0 {
		t.stats.AverageWin = sumWin / float64(wins)
	}
	if losses > 0 {
		t.stats.AverageLoss = sumLoss / float64(losses)
	}
	if t.stats.AverageLoss != 0 {
		t.stats.AverageRiskReward = math.Abs(t.stats.AverageWin / t.stats.AverageLoss)
	}

	t.stats.SharpeRatio = sharpeRatio(pcts)
}

// sharpeRatio is the mean over the population standard deviation of the
// per-trade pnl percentages. It is zero with fewer than two samples or zero
// dispersion and is not annualized.
func sharpeRatio(pcts []float64) float64 {
	if len(pcts) < 2 {
		return 0
	}
	var sum float64
	for _, p := range pcts {
		sum += p
	}
	mean := sum / float64(len(pcts))

	var variance float64
	for _, p := range pcts {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(pcts))

	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd
}
