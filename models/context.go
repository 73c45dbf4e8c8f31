package models

// VolatilityLevel classifies Bollinger band width relative to the middle
// band.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityMedium VolatilityLevel = "medium"
	VolatilityHigh   VolatilityLevel = "high"
)

// TrendDirection classifies the SMA20/SMA50 relationship with a 1%
// hysteresis band.
type TrendDirection string

const (
	TrendBullish  TrendDirection = "bullish"
	TrendBearish  TrendDirection = "bearish"
	TrendSideways TrendDirection = "sideways"
)

// MomentumStrength classifies the MACD histogram and RSI agreement.
type MomentumStrength string

const (
	MomentumStrong  MomentumStrength = "strong"
	MomentumNeutral MomentumStrength = "neutral"
	MomentumWeak    MomentumStrength = "weak"
)

// MarketContext is the qualitative market regime derived from an indicator
// snapshot and the recent candle window. Support and resistance are optional
// price levels.
type MarketContext struct {
	Volatility VolatilityLevel  `json:"volatility"`
	Trend      TrendDirection   `json:"trend"`
	Momentum   MomentumStrength `json:"momentum"`
	Support    *float64         `json:"support,omitempty"`
	Resistance *float64         `json:"resistance,omitempty"`
}
