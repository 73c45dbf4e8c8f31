package sim

import (
	"fmt"

	"github.com/google/uuid"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

// Simulator executes accepted decisions against a single-position paper
// portfolio. Fills are deterministic: slippage and taker fee are fixed
// multiplicative constants applied on both sides of a trade, entries fill at
// the candle close shifted against the order and exits at the close shifted
// the other way.
type Simulator struct {
	pair     string
	takerFee float64
	slippage float64
	log      *logger.Entry

	portfolio models.PortfolioState
	position  *models.Position
	open      *models.TradeRecord
}

func NewSimulator(cfg config.SimulationConfig, log *logger.Log) *Simulator {
	return &Simulator{
		pair:     cfg.Pair,
		takerFee: cfg.TakerFee,
		slippage: cfg.Slippage,
		log:      log.WithComponent("sim"),
		portfolio: models.PortfolioState{
			Cash:        cfg.InitialCapital,
			Holdings:    map[string]float64{},
			TotalEquity: cfg.InitialCapital,
		},
	}
}

// Portfolio returns a snapshot of the current portfolio state.
func (s *Simulator) Portfolio() models.PortfolioState {
	p := s.portfolio
	p.Holdings = make(map[string]float64, len(s.portfolio.Holdings))
	for k, v := range s.portfolio.Holdings {
		p.Holdings[k] = v
	}
	return p
}

// Position returns a copy of the open position, or nil when flat.
func (s *Simulator) Position() *models.Position {
	if s.position == nil {
		return nil
	}
	p := *s.position
	return &p
}

// Open fills an accepted BUY at the candle close plus slippage, debits cash
// by value plus fee and records the open half of the trade. The risk gate
// owns cash sufficiency; a residual overdraw from the slippage shift is
// carried as-is rather than rejected here.
func (s *Simulator) Open(decision models.TradeDecision, candle models.Candle, qty, stop, take float64) (*models.TradeRecord, error) {
	if s.position != nil {
		return nil, fmt.Errorf("open %s: a position is already open", s.pair)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("open %s: quantity %v is not positive", s.pair, qty)
	}

	entry := candle.Close * (1 + s.slippage)
	value := entry * qty
	fee := value * s.takerFee

	s.portfolio.Cash -= value + fee
	s.portfolio.Holdings[s.pair] += qty

	s.position = &models.Position{
		Symbol:       s.pair,
		Side:         models.SideLong,
		EntryPrice:   entry,
		Quantity:     qty,
		EntryTime:    candle.Timestamp,
		StopLoss:     stop,
		TakeProfit:   take,
		CurrentPrice: entry,
	}
	s.open = &models.TradeRecord{
		ID:         uuid.New().String(),
		Timestamp:  candle.Timestamp,
		Symbol:     s.pair,
		Action:     models.ActionBuy,
		Quantity:   qty,
		Price:      entry,
		Value:      value,
		Fee:        fee,
		StopLoss:   stop,
		TakeProfit: take,
		Reasoning:  decision.Reasoning,
	}
	s.refreshEquity(candle)

	s.log.WithFields(logger.Fields{
		"trade_id": s.open.ID,
		"pair":     s.pair,
		"qty":      qty,
		"entry":    entry,
		"stop":     stop,
		"take":     take,
	}).Info("position opened")
	logger.IncrementTradeOpened()

	rec := *s.open
	return &rec, nil
}

// CheckExits closes the open position when the candle close crosses its stop
// or target. The stop is checked first. It returns the completed record and
// true when an exit fired.
func (s *Simulator) CheckExits(candle models.Candle) (*models.TradeRecord, bool) {
	if s.position == nil {
		return nil, false
	}
	if candle.Close <= s.position.StopLoss {
		rec, err := s.Close(candle, models.CloseReasonStopLoss)
		if err != nil {
			return nil, false
		}
		return rec, true
	}
	if candle.Close >= s.position.TakeProfit {
		rec, err := s.Close(candle, models.CloseReasonTakeProfit)
		if err != nil {
			return nil, false
		}
		return rec, true
	}
	return nil, false
}

// Close fills the exit at the candle close minus slippage, credits cash net
// of the exit fee and completes the trade record. Realized pnl nets out both
// fees, so a zero-movement zero-slippage round trip loses exactly the fees.
func (s *Simulator) Close(candle models.Candle, reason string) (*models.TradeRecord, error) {
	if s.position == nil || s.open == nil {
		return nil, fmt.Errorf("close %s: no open position", s.pair)
	}

	qty := s.position.Quantity
	exit := candle.Close * (1 - s.slippage)
	exitValue := exit * qty
	exitFee := exitValue * s.takerFee

	s.portfolio.Cash += exitValue - exitFee
	delete(s.portfolio.Holdings, s.pair)

	rec := *s.open
	rec.ExitTime = candle.Timestamp
	rec.ExitPrice = exit
	rec.ExitFee = exitFee
	rec.PnL = exitValue - exitFee - (rec.Value + rec.Fee)
	rec.PnLPercent = rec.PnL / rec.Value * 100
	rec.HoldingPeriod = candle.Timestamp.Sub(rec.Timestamp)
	rec.IsWin = rec.PnL > 0
	rec.Reason = reason

	s.position = nil
	s.open = nil
	s.refreshEquity(candle)

	s.log.WithFields(logger.Fields{
		"trade_id":    rec.ID,
		"pair":        s.pair,
		"exit":        exit,
		"pnl":         rec.PnL,
		"pnl_percent": rec.PnLPercent,
		"held":        rec.HoldingPeriod.String(),
		"reason":      reason,
	}).Info("position closed")
	logger.IncrementTradeClosed()

	return &rec, nil
}

// MarkToMarket revalues the open position and the portfolio at the candle
// close.
func (s *Simulator) MarkToMarket(candle models.Candle) {
	if s.position != nil {
		s.position.CurrentPrice = candle.Close
		s.position.UnrealizedPnL = (candle.Close - s.position.EntryPrice) * s.position.Quantity
	}
	s.refreshEquity(candle)
}

func (s *Simulator) refreshEquity(candle models.Candle) {
	equity := s.portfolio.Cash
	if s.position != nil {
		equity += s.position.Quantity * candle.Close
	}
	s.portfolio.TotalEquity = equity
	s.portfolio.Timestamp = candle.Timestamp
}
