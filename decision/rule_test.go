package decision

import (
	"context"
	"testing"

	"stratflow/logger"
	"stratflow/models"
)

func ruleRequest(rsi, price, lower, upper float64, position *models.Position) models.DecisionRequest {
	return models.DecisionRequest{
		Pair:  "BTCUSDT",
		Price: price,
		Indicators: &models.IndicatorSnapshot{
			RSI:       rsi,
			Bollinger: models.BollingerBands{Upper: upper, Middle: (upper + lower) / 2, Lower: lower},
		},
		OpenPosition: position,
	}
}

func TestRuleProviderDecisions(t *testing.T) {
	p := NewRuleProvider(logger.Logger())
	open := &models.Position{Symbol: "BTCUSDT", Side: models.SideLong, Quantity: 1}

	tests := []struct {
		name string
		req  models.DecisionRequest
		want models.TradeAction
	}{
		{
			name: "oversold under lower band buys",
			req:  ruleRequest(25, 48500, 49000, 51000, nil),
			want: models.ActionBuy,
		},
		{
			name: "oversold inside the bands holds",
			req:  ruleRequest(25, 49500, 49000, 51000, nil),
			want: models.ActionHold,
		},
		{
			name: "under lower band with neutral rsi holds",
			req:  ruleRequest(45, 48500, 49000, 51000, nil),
			want: models.ActionHold,
		},
		{
			name: "overbought rsi exits",
			req:  ruleRequest(75, 50500, 49000, 51000, open),
			want: models.ActionSell,
		},
		{
			name: "close over upper band exits",
			req:  ruleRequest(55, 51500, 49000, 51000, open),
			want: models.ActionSell,
		},
		{
			name: "open position without exit signal holds",
			req:  ruleRequest(55, 50000, 49000, 51000, open),
			want: models.ActionHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := p.Decide(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("decide: %v", err)
			}
			if d.Action != tt.want {
				t.Fatalf("action = %s, want %s (%s)", d.Action, tt.want, d.Reasoning)
			}
			if d.Confidence < 0 || d.Confidence > 1 {
				t.Fatalf("confidence %v outside [0,1]", d.Confidence)
			}
		})
	}
}

func TestRuleProviderIsDeterministic(t *testing.T) {
	p := NewRuleProvider(logger.Logger())
	req := ruleRequest(25, 48500, 49000, 51000, nil)

	first, err := p.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	second, err := p.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if first != second {
		t.Fatalf("same input produced different decisions: %+v vs %+v", first, second)
	}
}

func TestRuleProviderWithoutSnapshotHolds(t *testing.T) {
	p := NewRuleProvider(logger.Logger())
	d, err := p.Decide(context.Background(), models.DecisionRequest{Pair: "BTCUSDT", Price: 100})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != models.ActionHold {
		t.Fatalf("action = %s, want HOLD when no snapshot is available", d.Action)
	}
}
