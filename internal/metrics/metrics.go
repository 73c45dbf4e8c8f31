// Registers:
//
//	#StratFlow_candles_processed_total
//	#StratFlow_decisions_total
//	#StratFlow_trades_closed_total
//	#go_* and process_* system metrics
//
// Exposes them through Handler for the dashboard router at /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once              sync.Once
	candlesProcessed  prometheus.Counter
	decisionsTotal    *prometheus.CounterVec
	fallbackDecisions prometheus.Counter
	tradesClosed      *prometheus.CounterVec
	riskRejections    prometheus.Counter
	pipelineFaults    prometheus.Counter
	equityGauge       prometheus.Gauge
)

func Init() {
	once.Do(func() {
		candlesProcessed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "StratFlow_candles_processed_total",
				Help: "Number of candles run through the evaluation pipeline",
			},
		)

		decisionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "StratFlow_decisions_total",
				Help: "Number of decisions returned by the provider, by action",
			},
			[]string{"action"},
		)

		fallbackDecisions = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "StratFlow_fallback_decisions_total",
				Help: "Number of HOLD decisions substituted after provider failures",
			},
		)

		tradesClosed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "StratFlow_trades_closed_total",
				Help: "Number of closed trades, by close reason",
			},
			[]string{"reason"},
		)

		riskRejections = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "StratFlow_risk_rejections_total",
				Help: "Number of trades rejected by the risk manager",
			},
		)

		pipelineFaults = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "StratFlow_pipeline_faults_total",
				Help: "Number of recovered per-candle pipeline faults",
			},
		)

		equityGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "StratFlow_equity",
				Help: "Current total equity of the simulated portfolio",
			},
		)

		_ = prometheus.Register(candlesProcessed)
		_ = prometheus.Register(decisionsTotal)
		_ = prometheus.Register(fallbackDecisions)
		_ = prometheus.Register(tradesClosed)
		_ = prometheus.Register(riskRejections)
		_ = prometheus.Register(pipelineFaults)
		_ = prometheus.Register(equityGauge)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the Prometheus scrape handler. The dashboard server mounts
// it at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncrementCandlesProcessed() {
	if candlesProcessed != nil {
		candlesProcessed.Inc()
	}
}

func IncrementDecision(action string) {
	if decisionsTotal != nil {
		decisionsTotal.WithLabelValues(action).Inc()
	}
}

func IncrementFallbackDecision() {
	if fallbackDecisions != nil {
		fallbackDecisions.Inc()
	}
}

func IncrementTradeClosed(reason string) {
	if tradesClosed != nil {
		tradesClosed.WithLabelValues(reason).Inc()
	}
}

func IncrementRiskRejection() {
	if riskRejections != nil {
		riskRejections.Inc()
	}
}

func IncrementPipelineFault() {
	if pipelineFaults != nil {
		pipelineFaults.Inc()
	}
}

func SetEquity(equity float64) {
	if equityGauge != nil {
		equityGauge.Set(equity)
	}
}
