package decision

import (
	"context"
	"fmt"

	"stratflow/logger"
	"stratflow/models"
)

// Thresholds for the built-in mean-reversion rules.
const (
	ruleOversoldRSI   = 30.0
	ruleOverboughtRSI = 70.0
)

// RuleProvider is the built-in strategy used when no external endpoint is
// configured, so a run works fully self-contained. It trades mean reversion
// at the Bollinger extremes confirmed by RSI: buy an oversold close under
// the lower band, exit on an overbought RSI or a close over the upper band.
type RuleProvider struct {
	log *logger.Entry
}

func NewRuleProvider(log *logger.Log) *RuleProvider {
	return &RuleProvider{log: log.WithComponent("decision_rule")}
}

func (p *RuleProvider) Name() string { return "rule" }

func (p *RuleProvider) Decide(_ context.Context, req models.DecisionRequest) (models.TradeDecision, error) {
	snap := req.Indicators
	if snap == nil {
		return models.TradeDecision{Action: models.ActionHold, Reasoning: "no indicator snapshot"}, nil
	}

	if req.OpenPosition == nil {
		if snap.RSI < ruleOversoldRSI && req.Price < snap.Bollinger.Lower {
			return models.TradeDecision{
				Action:     models.ActionBuy,
				Confidence: clampUnit(0.5 + (ruleOversoldRSI-snap.RSI)/60),
				Reasoning:  fmt.Sprintf("rsi %.1f oversold with close %.2f under the lower band %.2f", snap.RSI, req.Price, snap.Bollinger.Lower),
			}, nil
		}
		return models.TradeDecision{Action: models.ActionHold, Confidence: 0.5, Reasoning: "no entry signal"}, nil
	}

	if snap.RSI > ruleOverboughtRSI {
		return models.TradeDecision{
			Action:     models.ActionSell,
			Confidence: clampUnit(0.5 + (snap.RSI-ruleOverboughtRSI)/60),
			Reasoning:  fmt.Sprintf("rsi %.1f overbought", snap.RSI),
		}, nil
	}
	if req.Price > snap.Bollinger.Upper {
		return models.TradeDecision{
			Action:     models.ActionSell,
			Confidence: 0.6,
			Reasoning:  fmt.Sprintf("close %.2f over the upper band %.2f", req.Price, snap.Bollinger.Upper),
		}, nil
	}

	return models.TradeDecision{Action: models.ActionHold, Confidence: 0.5, Reasoning: "holding, no exit signal"}, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
