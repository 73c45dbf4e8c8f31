package risk

import (
	"fmt"
	"math"
	"time"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

// sharpeMinTrades is how many closed trades must exist before the Sharpe
// ratio is considered meaningful enough to warn about.
const sharpeMinTrades = 20

// Verdict is the outcome of a trade check. Quantity carries the clamped
// position size for an allowed BUY and the full position size for an allowed
// SELL.
type Verdict struct {
	Allowed  bool
	Reason   string
	Quantity float64
}

// Manager is the circuit breaker and position sizer. It is a two-state
// machine (active or halted) mutated only by the driver's sequential
// pipeline, and all time arithmetic uses candle timestamps so backtests stay
// reproducible.
type Manager struct {
	cfg      config.RiskConfig
	takerFee float64
	log      *logger.Entry
	state    models.RiskState
	// tripTrades is the closed-trade count recorded when the breaker last
	// tripped, -1 before the first trip. Halt conditions are consulted again
	// only once TotalTrades has moved past it.
	tripTrades int
}

func NewManager(cfg config.RiskConfig, takerFee float64, log *logger.Log) *Manager {
	return &Manager{
		cfg:        cfg,
		takerFee:   takerFee,
		log:        log.WithComponent("risk"),
		tripTrades: -1,
	}
}

// State returns the current halt state.
func (m *Manager) State() models.RiskState {
	return m.state
}

// Resume clears a halt. This is the explicit external recovery path used
// when no automatic recovery window is configured.
func (m *Manager) Resume() {
	if !m.state.Halted {
		return
	}
	m.log.WithFields(logger.Fields{"reason": m.state.Reason}).Info("trading resumed manually")
	m.state = models.RiskState{}
}

// recoveryDue reports whether the halt cooldown has elapsed at the given
// candle time. A zero recovery window never recovers automatically.
func (m *Manager) recoveryDue(now time.Time) bool {
	if !m.state.Halted || m.cfg.RecoveryMinutes <= 0 {
		return false
	}
	return now.Sub(m.state.Since) >= time.Duration(m.cfg.RecoveryMinutes)*time.Minute
}

// CheckTrade gates a BUY or SELL decision against the circuit breaker and the
// active-mode constraints. The price is the close of the candle under
// evaluation and now is that candle's timestamp.
func (m *Manager) CheckTrade(decision models.TradeDecision, portfolio models.PortfolioState, stats models.PerformanceStats, position *models.Position, price float64, now time.Time) Verdict {
	if m.recoveryDue(now) {
		m.log.WithFields(logger.Fields{
			"reason":       m.state.Reason,
			"halted_since": m.state.Since,
		}).Info("recovery window elapsed, resuming trading")
		m.state = models.RiskState{}
	}

	// While halted no entry opens, so the stats that tripped the breaker are
	// typically unchanged when the recovery window elapses. The trigger is
	// re-armed by a trade closed after the trip, not by the stale breach.
	if !m.state.Halted && stats.TotalTrades > m.tripTrades {
		if reason, tripped := m.haltTrigger(stats); tripped {
			m.state = models.RiskState{Halted: true, Reason: reason, Since: now}
			m.tripTrades = stats.TotalTrades
			m.log.WithFields(logger.Fields{"reason": reason, "since": now}).Warn("circuit breaker tripped")
			return Verdict{Reason: reason}
		}
	}

	if m.state.Halted {
		return Verdict{Reason: fmt.Sprintf("trading halted since %s: %s", m.state.Since.Format(time.RFC3339), m.state.Reason)}
	}

	if stats.TotalTrades >= sharpeMinTrades && stats.SharpeRatio < m.cfg.MinSharpe {
		m.log.WithFields(logger.Fields{
			"sharpe":     stats.SharpeRatio,
			"min_sharpe": m.cfg.MinSharpe,
			"trades":     stats.TotalTrades,
		}).Warn("sharpe ratio below minimum, trading continues")
	}

	switch decision.Action {
	case models.ActionBuy:
		if position != nil {
			return Verdict{Reason: "a position is already open"}
		}
		qty := m.PositionSize(decision, portfolio, price)
		if qty <= 0 {
			return Verdict{Reason: "insufficient equity for a position"}
		}
		required := qty * price * (1 + m.takerFee)
		if portfolio.Cash < required {
			return Verdict{Reason: fmt.Sprintf("insufficient cash: need %.2f, have %.2f", required, portfolio.Cash)}
		}
		return Verdict{Allowed: true, Quantity: qty}

	case models.ActionSell:
		if position == nil {
			return Verdict{Reason: "no open position to sell"}
		}
		return Verdict{Allowed: true, Quantity: position.Quantity}

	default:
		return Verdict{Reason: fmt.Sprintf("action %s does not require a trade", decision.Action)}
	}
}

// haltTrigger evaluates the halt conditions in priority order.
func (m *Manager) haltTrigger(stats models.PerformanceStats) (string, bool) {
	if stats.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses {
		return fmt.Sprintf("%d consecutive losses", stats.ConsecutiveLosses), true
	}
	if stats.CurrentDrawdown >= m.cfg.DailyLossLimit {
		return fmt.Sprintf("drawdown %.2f%% over the daily loss limit", stats.CurrentDrawdown*100), true
	}
	if stats.MaxDrawdown >= m.cfg.MaxDrawdownLimit {
		return fmt.Sprintf("max drawdown %.2f%% over the ceiling", stats.MaxDrawdown*100), true
	}
	return "", false
}

// PositionSize returns the BUY quantity: the smallest of the risk-based
// ceiling, the equity-fraction ceiling and the provider's suggested cash
// fraction when one was given. The result is a clamp, never a rejection.
func (m *Manager) PositionSize(decision models.TradeDecision, portfolio models.PortfolioState, price float64) float64 {
	if price <= 0 {
		return 0
	}

	equity := portfolio.TotalEquity

	stopDistance := price * m.cfg.StopLossPct
	if decision.StopLoss > 0 {
		if d := math.Abs(price - decision.StopLoss); d > 0 {
			stopDistance = d
		}
	}

	qty := m.cfg.MaxRiskPerTrade * equity / stopDistance
	if ceiling := m.cfg.MaxPositionFraction * equity / price; ceiling < qty {
		qty = ceiling
	}
	if decision.Quantity > 0 {
		if suggested := decision.Quantity * portfolio.Cash / price; suggested < qty {
			qty = suggested
		}
	}

	if qty < 0 {
		return 0
	}
	return qty
}

// StopLoss returns the stop level for a new position. A provider-suggested
// level is honoured only when it sits on the protective side of entry and
// its distance stays within half to twice the configured stop distance.
func (m *Manager) StopLoss(decision models.TradeDecision, entry float64, side models.PositionSide) float64 {
	configured := entry * m.cfg.StopLossPct

	if decision.StopLoss > 0 {
		distance := math.Abs(entry - decision.StopLoss)
		protective := (side == models.SideLong && decision.StopLoss < entry) ||
			(side == models.SideShort && decision.StopLoss > entry)
		if protective && distance >= 0.5*configured && distance <= 2*configured {
			return decision.StopLoss
		}
	}

	if side == models.SideShort {
		return entry + configured
	}
	return entry - configured
}

// TakeProfit mirrors StopLoss with the wider 0.5x..3x acceptance window.
func (m *Manager) TakeProfit(decision models.TradeDecision, entry float64, side models.PositionSide) float64 {
	configured := entry * m.cfg.TakeProfitPct

	if decision.TakeProfit > 0 {
		distance := math.Abs(entry - decision.TakeProfit)
		profitable := (side == models.SideLong && decision.TakeProfit > entry) ||
			(side == models.SideShort && decision.TakeProfit < entry)
		if profitable && distance >= 0.5*configured && distance <= 3*configured {
			return decision.TakeProfit
		}
	}

	if side == models.SideShort {
		return entry - configured
	}
	return entry + configured
}
