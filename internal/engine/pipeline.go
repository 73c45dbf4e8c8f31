package engine

import (
	"context"
	"fmt"

	"stratflow/decision"
	"stratflow/internal/metrics"
	"stratflow/logger"
	"stratflow/models"
)

// recentTradeCount is how many closed trades ride along on every decision
// request so a provider can see its own recent performance.
const recentTradeCount = 5

// step runs one candle through the pipeline and applies the fault policy:
// a faulted candle is counted and skipped when continue_on_fault is set,
// otherwise it ends the run.
func (d *Driver) step(ctx context.Context, window []models.Candle) error {
	err := d.processCandle(ctx, window)
	if err == nil {
		return nil
	}

	d.faults++
	logger.IncrementPipelineFault()
	metrics.IncrementPipelineFault()
	d.log.WithFields(logger.Fields{
		"candle": window[len(window)-1].Timestamp,
	}).WithError(err).Error("candle pipeline fault")

	if d.cfg.Simulation.ContinueOnFault {
		return nil
	}
	return fmt.Errorf("candle pipeline: %w", err)
}

// processCandle evaluates the newest candle of the window: mark to market,
// protective exits, indicators, market context, the strategy decision, the
// risk gate and finally execution and bookkeeping. A panic anywhere inside
// surfaces as an ordinary error so one poisoned candle cannot take down a
// long replay.
func (d *Driver) processCandle(ctx context.Context, window []models.Candle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	candle := window[len(window)-1]

	d.sim.MarkToMarket(candle)

	tradeRecorded := false
	if trade, closed := d.sim.CheckExits(candle); closed {
		d.perf.RecordTrade(*trade, d.sim.Portfolio().TotalEquity, candle.Timestamp)
		metrics.IncrementTradeClosed(trade.Reason)
		tradeRecorded = true
	}

	snapshot, err := d.indicators.Compute(window)
	if err != nil {
		return fmt.Errorf("compute indicators: %w", err)
	}
	marketCtx := d.classifier.Classify(snapshot, window)

	request := d.buildRequest(candle, snapshot, marketCtx)
	dec, fallback := d.decide(ctx, request)

	if dec.Action == models.ActionBuy || dec.Action == models.ActionSell {
		if d.execute(dec, candle) {
			tradeRecorded = true
		}
	}

	if !tradeRecorded {
		d.perf.RecordEquity(candle.Timestamp, d.sim.Portfolio().TotalEquity)
	}
	metrics.SetEquity(d.sim.Portfolio().TotalEquity)

	d.publish(candle, marketCtx)

	d.decisions = append(d.decisions, models.DecisionRecord{
		Timestamp:  candle.Timestamp,
		Action:     dec.Action,
		Confidence: dec.Confidence,
		Price:      candle.Close,
		Reasoning:  dec.Reasoning,
		Fallback:   fallback,
	})

	if d.firstCandle.IsZero() {
		d.firstCandle = candle.Timestamp
	}
	d.lastProcessed = candle.Timestamp
	d.candles++
	logger.IncrementCandleProcessed()
	metrics.IncrementCandlesProcessed()
	return nil
}

// decide asks the provider for a verdict under the configured timeout. Any
// provider failure degrades to a flat HOLD so the pipeline never trades on
// a guess.
func (d *Driver) decide(ctx context.Context, request models.DecisionRequest) (models.TradeDecision, bool) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Decision.Timeout)
	defer cancel()

	logger.IncrementDecisionCall()
	dec, err := d.provider.Decide(callCtx, request)
	if err != nil {
		d.fallbacks++
		logger.IncrementFallbackDecision()
		metrics.IncrementFallbackDecision()
		d.log.WithFields(logger.Fields{
			"provider": d.provider.Name(),
			"candle":   request.Timestamp,
		}).WithError(err).Warn("decision provider failed, holding")
		return decision.FallbackHold(err), true
	}

	metrics.IncrementDecision(string(dec.Action))
	return dec, false
}

// execute pushes a buy or sell through the risk gate and the simulator. It
// reports whether a trade was closed, in which case the tracker already has
// an equity point for this candle.
func (d *Driver) execute(dec models.TradeDecision, candle models.Candle) bool {
	portfolio := d.sim.Portfolio()
	stats := d.perf.Stats()
	position := d.sim.Position()
	price := candle.Close

	verdict := d.risk.CheckTrade(dec, portfolio, stats, position, price, candle.Timestamp)
	if !verdict.Allowed {
		d.rejections++
		logger.IncrementRiskRejection()
		metrics.IncrementRiskRejection()
		d.log.WithFields(logger.Fields{
			"action": dec.Action,
			"candle": candle.Timestamp,
			"reason": verdict.Reason,
		}).Info("trade rejected by risk gate")
		return false
	}

	switch dec.Action {
	case models.ActionBuy:
		stop := d.risk.StopLoss(dec, price, models.SideLong)
		take := d.risk.TakeProfit(dec, price, models.SideLong)
		if _, err := d.sim.Open(dec, candle, verdict.Quantity, stop, take); err != nil {
			d.log.WithError(err).Warn("simulator refused to open position")
		}
		return false

	case models.ActionSell:
		trade, err := d.sim.Close(candle, models.CloseReasonSignal)
		if err != nil {
			d.log.WithError(err).Warn("simulator refused to close position")
			return false
		}
		d.perf.RecordTrade(*trade, d.sim.Portfolio().TotalEquity, candle.Timestamp)
		metrics.IncrementTradeClosed(models.CloseReasonSignal)
		return true
	}
	return false
}

func (d *Driver) buildRequest(candle models.Candle, snapshot *models.IndicatorSnapshot, marketCtx models.MarketContext) models.DecisionRequest {
	return models.DecisionRequest{
		Pair:         d.cfg.Simulation.Pair,
		Timeframe:    d.cfg.Simulation.Timeframe.String(),
		Timestamp:    candle.Timestamp,
		Price:        candle.Close,
		Candle:       candle,
		Indicators:   snapshot,
		Context:      marketCtx,
		Portfolio:    d.sim.Portfolio(),
		OpenPosition: d.sim.Position(),
		Stats:        d.perf.Stats(),
		RecentTrades: d.perf.RecentTrades(recentTradeCount),
	}
}

// publish offers a dashboard snapshot without ever blocking the pipeline.
func (d *Driver) publish(candle models.Candle, marketCtx models.MarketContext) {
	if d.bus == nil {
		return
	}

	update := models.DashboardUpdate{
		Timestamp: candle.Timestamp,
		Pair:      d.cfg.Simulation.Pair,
		Price:     candle.Close,
		Equity:    d.sim.Portfolio().TotalEquity,
		Stats:     d.perf.Stats(),
		Risk:      d.risk.State(),
		Position:  d.sim.Position(),
		Context:   &marketCtx,
	}
	if recent := d.perf.RecentTrades(1); len(recent) > 0 {
		update.LastTrade = &recent[0]
	}
	d.bus.Publish(update)
}
