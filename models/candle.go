package models

import (
	"time"
)

// Candle represents a single OHLCV aggregate for a fixed time bucket.
// Candles are immutable once produced and are supplied to the engine in
// strictly increasing timestamp order; the engine never reorders or
// de-duplicates them.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TypicalPrice returns (high+low+close)/3, the per-candle price used by the
// VWAP computation.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// MidPrice returns (high+low)/2, the representative price used when
// assigning a candle's volume to a volume-profile bucket.
func (c Candle) MidPrice() float64 {
	return (c.High + c.Low) / 2
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}
