// Package decision obtains trade decisions for fully assembled market
// snapshots, either from an external strategy service or from the built-in
// rule provider.
package decision

import (
	"context"
	"fmt"

	"stratflow/models"
)

// Provider produces a trade decision for one candle's market context.
// Implementations must be safe for sequential reuse across candles.
type Provider interface {
	Decide(ctx context.Context, req models.DecisionRequest) (models.TradeDecision, error)
	Name() string
}

// FallbackHold is the substitute used when a provider fails: a HOLD with
// zero confidence whose reasoning names the failure so the audit trail shows
// why no real decision was taken.
func FallbackHold(err error) models.TradeDecision {
	return models.TradeDecision{
		Action:     models.ActionHold,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("fallback hold: %v", err),
	}
}

// validate normalizes a provider response in place: the action must be one
// of BUY/SELL/HOLD and the confidence is clamped into [0,1].
func validate(d *models.TradeDecision) error {
	switch d.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		return fmt.Errorf("decision: unknown action %q", d.Action)
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	} else if d.Confidence > 1 {
		d.Confidence = 1
	}
	return nil
}
