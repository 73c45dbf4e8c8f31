// Package reader fetches OHLCV candles from exchange REST APIs and
// normalizes them into ascending, closed-only models.Candle sequences for
// the evaluation engine. One supplier exists per venue; all of them apply
// the configured rate limit and drop the still-forming final candle so the
// engine never evaluates a bucket that can still change.
package reader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

// CandleSupplier provides closed candles for one trading pair. Both methods
// return candles in strictly ascending timestamp order without duplicates.
type CandleSupplier interface {
	// Historical returns all closed candles whose open time falls within
	// [start, end].
	Historical(ctx context.Context, pair string, timeframe config.Timeframe, start, end time.Time) ([]models.Candle, error)
	// Latest returns up to limit of the most recent closed candles.
	Latest(ctx context.Context, pair string, timeframe config.Timeframe, limit int) ([]models.Candle, error)
}

// NewSupplier selects the candle supplier for the configured exchange.
func NewSupplier(cfg *config.Config, log *logger.Log) (CandleSupplier, error) {
	switch strings.ToLower(cfg.Source.Exchange) {
	case "binance":
		return NewBinanceSupplier(cfg, log), nil
	case "bybit":
		return NewBybitSupplier(cfg, log), nil
	case "kucoin":
		return NewKucoinSupplier(cfg, log), nil
	default:
		return nil, fmt.Errorf("exchange %q has no candle supplier", cfg.Source.Exchange)
	}
}

// bybitIntervals maps timeframe tokens to Bybit v5 kline interval strings.
// Bybit does not serve an 8h interval.
var bybitIntervals = map[config.Timeframe]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D",
}

func bybitInterval(timeframe config.Timeframe) (string, error) {
	interval, ok := bybitIntervals[timeframe]
	if !ok {
		return "", fmt.Errorf("bybit does not serve %s klines", timeframe)
	}
	return interval, nil
}

// kucoinGranularities maps timeframe tokens to the kline granularities (in
// minutes) accepted by KuCoin futures. KuCoin does not serve 3m or 6h.
var kucoinGranularities = map[config.Timeframe]int{
	"1m": 1, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240, "8h": 480, "12h": 720,
	"1d": 1440,
}

func kucoinGranularity(timeframe config.Timeframe) (int, error) {
	granularity, ok := kucoinGranularities[timeframe]
	if !ok {
		return 0, fmt.Errorf("kucoin does not serve %s klines", timeframe)
	}
	return granularity, nil
}

// binanceInterval validates the timeframe for Binance futures, which accepts
// the engine's interval tokens verbatim.
func binanceInterval(timeframe config.Timeframe) (string, error) {
	if !timeframe.Valid() {
		return "", fmt.Errorf("binance does not serve %s klines", timeframe)
	}
	return timeframe.String(), nil
}

// dropUnclosed trims trailing candles whose bucket has not finished by now.
// Kline endpoints include the forming candle in their responses.
func dropUnclosed(candles []models.Candle, interval time.Duration, now time.Time) []models.Candle {
	for len(candles) > 0 {
		last := candles[len(candles)-1]
		if !last.Timestamp.Add(interval).After(now) {
			break
		}
		candles = candles[:len(candles)-1]
	}
	return candles
}

func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
