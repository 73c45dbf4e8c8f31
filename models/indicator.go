package models

import (
	"time"
)

// SqueezeIntensity classifies how tightly the Bollinger Bands sit inside the
// Keltner Channels while a squeeze is active.
type SqueezeIntensity string

const (
	SqueezeHigh   SqueezeIntensity = "high"
	SqueezeMedium SqueezeIntensity = "medium"
	SqueezeLow    SqueezeIntensity = "low"
)

// VolumeImbalance classifies the buy/sell volume delta over the trailing
// market-delta window.
type VolumeImbalance string

const (
	ImbalanceStrongBuy  VolumeImbalance = "strong_buy"
	ImbalanceBuy        VolumeImbalance = "buy"
	ImbalanceNeutral    VolumeImbalance = "neutral"
	ImbalanceSell       VolumeImbalance = "sell"
	ImbalanceStrongSell VolumeImbalance = "strong_sell"
)

// MACDResult holds the MACD line, its signal line and the histogram. The
// signal line is a configurable fraction of the MACD value rather than a
// true 9-period EMA of MACD; see indicators.macd_signal_factor.
type MACDResult struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerBands holds the SMA middle band and the ±2σ outer bands.
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// VWAPBands holds the full-window volume weighted average price and its
// standard-deviation envelopes.
type VWAPBands struct {
	VWAP       float64 `json:"vwap"`
	UpperBand1 float64 `json:"upper_band_1"`
	LowerBand1 float64 `json:"lower_band_1"`
	UpperBand2 float64 `json:"upper_band_2"`
	LowerBand2 float64 `json:"lower_band_2"`
}

// KeltnerChannels holds the EMA middle line and the ATR-based envelopes.
type KeltnerChannels struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	ATR    float64 `json:"atr"`
}

// SqueezeState reports whether the Bollinger Bands currently sit inside the
// Keltner Channels, signalling volatility compression.
type SqueezeState struct {
	Active    bool             `json:"active"`
	Intensity SqueezeIntensity `json:"intensity"`
}

// ProfileBucket is a single price bucket of the volume profile.
type ProfileBucket struct {
	PriceLow  float64 `json:"price_low"`
	PriceHigh float64 `json:"price_high"`
	Volume    float64 `json:"volume"`
}

// VolumeProfile summarises where volume traded across the profiled window.
type VolumeProfile struct {
	POC           float64         `json:"poc"`
	ValueAreaHigh float64         `json:"value_area_high"`
	ValueAreaLow  float64         `json:"value_area_low"`
	TotalVolume   float64         `json:"total_volume"`
	Buckets       []ProfileBucket `json:"buckets,omitempty"`
}

// MarketDelta summarises buy versus sell volume over the trailing delta
// window.
type MarketDelta struct {
	BuyVolume  float64         `json:"buy_volume"`
	SellVolume float64         `json:"sell_volume"`
	Delta      float64         `json:"delta"`
	DeltaPct   float64         `json:"delta_pct"`
	Imbalance  VolumeImbalance `json:"imbalance"`
}

// IndicatorSnapshot is the read-only result of one indicator computation
// over a candle window. The mandatory core is always populated; the optional
// blocks are nil pointers when the corresponding computation is disabled so
// downstream logic can distinguish "not computed" from "computed as zero".
type IndicatorSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Close     float64        `json:"close"`
	RSI       float64        `json:"rsi"`
	SMA20     float64        `json:"sma_20"`
	SMA50     float64        `json:"sma_50"`
	EMA12     float64        `json:"ema_12"`
	EMA26     float64        `json:"ema_26"`
	MACD      MACDResult     `json:"macd"`
	Bollinger BollingerBands `json:"bollinger"`

	VWAP    *VWAPBands       `json:"vwap,omitempty"`
	Keltner *KeltnerChannels `json:"keltner,omitempty"`
	Squeeze *SqueezeState    `json:"squeeze,omitempty"`
	Profile *VolumeProfile   `json:"volume_profile,omitempty"`
	Delta   *MarketDelta     `json:"market_delta,omitempty"`
}
