package market

import (
	"math"

	"stratflow/logger"
	"stratflow/models"
)

// supportWindow is the trailing candle count inspected for support and
// resistance levels. These are coarse extremes, not pivot detection.
const supportWindow = 20

// Classifier derives the qualitative market regime from an indicator
// snapshot and the trailing candle window.
type Classifier struct {
	log *logger.Entry
}

func NewClassifier(log *logger.Log) *Classifier {
	return &Classifier{log: log.WithComponent("market")}
}

func (c *Classifier) Classify(snap *models.IndicatorSnapshot, candles []models.Candle) models.MarketContext {
	ctx := models.MarketContext{
		Volatility: classifyVolatility(snap.Bollinger),
		Trend:      classifyTrend(snap.SMA20, snap.SMA50),
		Momentum:   classifyMomentum(snap),
	}

	if len(candles) > 0 {
		window := candles
		if len(window) > supportWindow {
			window = window[len(window)-supportWindow:]
		}
		support := window[0].Low
		resistance := window[0].High
		for _, k := range window[1:] {
			if k.Low < support {
				support = k.Low
			}
			if k.High > resistance {
				resistance = k.High
			}
		}
		ctx.Support = &support
		ctx.Resistance = &resistance
	}

	return ctx
}

func classifyVolatility(bb models.BollingerBands) models.VolatilityLevel {
	ratio := 0.0
	if bb.Middle != 0 {
		ratio = (bb.Upper - bb.Lower) / bb.Middle
	}
	switch {
	case ratio < 0.02:
		return models.VolatilityLow
	case ratio < 0.05:
		return models.VolatilityMedium
	default:
		return models.VolatilityHigh
	}
}

// classifyTrend compares the short and long SMAs with a 1% hysteresis band so
// the regime does not flap around the crossover.
func classifyTrend(sma20, sma50 float64) models.TrendDirection {
	switch {
	case sma20 > 1.01*sma50:
		return models.TrendBullish
	case sma20 < 0.99*sma50:
		return models.TrendBearish
	default:
		return models.TrendSideways
	}
}

// classifyMomentum is strong only when the histogram is a meaningful share of
// the MACD line and RSI has left the 40..60 neutral zone; weak when neither
// holds.
func classifyMomentum(snap *models.IndicatorSnapshot) models.MomentumStrength {
	histStrong := math.Abs(snap.MACD.Histogram) > 0.1*math.Abs(snap.MACD.Value)
	rsiOutside := snap.RSI < 40 || snap.RSI > 60

	switch {
	case histStrong && rsiOutside:
		return models.MomentumStrong
	case !histStrong && !rsiOutside:
		return models.MomentumWeak
	default:
		return models.MomentumNeutral
	}
}
