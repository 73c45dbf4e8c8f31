package decision

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

// HTTPProvider posts the decision request as JSON to an external strategy
// service. The configured timeout bounds every call in addition to the
// caller's context.
type HTTPProvider struct {
	client   *resty.Client
	endpoint string
	log      *logger.Entry
}

func NewHTTPProvider(cfg config.DecisionConfig, log *logger.Log) *HTTPProvider {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPProvider{
		client:   client,
		endpoint: cfg.Endpoint,
		log:      log.WithComponent("decision_http"),
	}
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) Decide(ctx context.Context, req models.DecisionRequest) (models.TradeDecision, error) {
	var decision models.TradeDecision

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&decision).
		Post(p.endpoint)
	if err != nil {
		return models.TradeDecision{}, fmt.Errorf("decision request: %w", err)
	}
	if resp.IsError() {
		return models.TradeDecision{}, fmt.Errorf("decision request: %s returned %s", p.endpoint, resp.Status())
	}
	if err := validate(&decision); err != nil {
		return models.TradeDecision{}, err
	}

	p.log.WithFields(logger.Fields{
		"action":     decision.Action,
		"confidence": decision.Confidence,
		"elapsed_ms": resp.Time().Milliseconds(),
	}).Debug("decision received")

	return decision, nil
}
