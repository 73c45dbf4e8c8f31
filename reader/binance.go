package reader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"stratflow/config"
	"stratflow/internal/symbols"
	"stratflow/logger"
	"stratflow/models"
)

// binanceKlineLimit is the largest kline page Binance futures returns per
// request.
const binanceKlineLimit = 1500

// BinanceSupplier reads USD-M futures klines from Binance.
type BinanceSupplier struct {
	client  *futures.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

// NewBinanceSupplier creates a supplier backed by the binance-go futures
// client with the configured connection pool and timeout.
func NewBinanceSupplier(cfg *config.Config, log *logger.Log) *BinanceSupplier {
	pool := cfg.Source.Binance.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
		DisableCompression:  false,
	}

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.Source.Timeout,
	}
	if cfg.Source.Binance.URL != "" {
		client.SetApiEndpoint(cfg.Source.Binance.URL)
	}

	supplier := &BinanceSupplier{
		client:  client,
		limiter: newLimiter(cfg.Source.RateLimit),
		log:     log.WithComponent("binance_supplier"),
	}

	supplier.log.WithFields(logger.Fields{
		"endpoint": cfg.Source.Binance.URL,
		"timeout":  cfg.Source.Timeout.String(),
	}).Info("binance candle supplier initialized")

	return supplier
}

// Historical pages through the klines endpoint until every closed candle in
// [start, end] has been collected.
func (s *BinanceSupplier) Historical(ctx context.Context, pair string, timeframe config.Timeframe, start, end time.Time) ([]models.Candle, error) {
	interval, err := binanceInterval(timeframe)
	if err != nil {
		return nil, err
	}
	symbol := symbols.ForExchange("binance", pair)
	step := timeframe.Duration()

	var out []models.Candle
	cursor := start
	for !cursor.After(end) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		reqStart := time.Now()
		klines, err := s.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
		}
		logger.LogPerformanceEntry(s.log, "binance_supplier", "api_request", time.Since(reqStart), logger.Fields{"symbol": symbol})
		if len(klines) == 0 {
			break
		}
		page, err := convertBinanceKlines(klines)
		if err != nil {
			return nil, err
		}
		logger.IncrementCandleRead(len(page))
		out = append(out, page...)
		if len(klines) < binanceKlineLimit {
			break
		}
		cursor = page[len(page)-1].Timestamp.Add(step)
	}

	out = dropUnclosed(out, step, time.Now().UTC())
	s.log.WithFields(logger.Fields{
		"pair":    pair,
		"symbol":  symbol,
		"candles": len(out),
	}).Debug("historical candles fetched")
	logger.LogDataFlowEntry(s.log, "binance_api", "pipeline", len(out), "candles")
	return out, nil
}

// Latest fetches the most recent klines and returns up to limit closed
// candles.
func (s *BinanceSupplier) Latest(ctx context.Context, pair string, timeframe config.Timeframe, limit int) ([]models.Candle, error) {
	interval, err := binanceInterval(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("binance klines %s: limit %d is not positive", pair, limit)
	}
	symbol := symbols.ForExchange("binance", pair)

	// Over-fetch by one so the forming candle does not eat into the limit.
	fetch := limit + 1
	if fetch > binanceKlineLimit {
		fetch = binanceKlineLimit
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	reqStart := time.Now()
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(fetch).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}
	logger.LogPerformanceEntry(s.log, "binance_supplier", "api_request", time.Since(reqStart), logger.Fields{"symbol": symbol})
	candles, err := convertBinanceKlines(klines)
	if err != nil {
		return nil, err
	}
	candles = dropUnclosed(candles, timeframe.Duration(), time.Now().UTC())
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	logger.IncrementCandleRead(len(candles))
	return candles, nil
}

func convertBinanceKlines(klines []*futures.Kline) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
		var values [5]float64
		for i, raw := range fields {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed binance kline at %d: %w", k.OpenTime, err)
			}
			values[i] = v
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return candles, nil
}
