package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"

	"stratflow/config"
	"stratflow/internal/symbols"
	"stratflow/logger"
	"stratflow/models"
)

// bybitKlineLimit is the largest kline page the Bybit v5 market endpoint
// returns per request.
const bybitKlineLimit = 1000

const bybitDefaultURL = "https://api.bybit.com"

// BybitSupplier reads linear futures klines from the Bybit v5 market API.
type BybitSupplier struct {
	client  *bybit.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

// bybitKlineResult is the typed shape of the v5 kline payload. List rows
// carry [startMs, open, high, low, close, volume, turnover] as strings,
// newest first.
type bybitKlineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// NewBybitSupplier creates a supplier backed by the official bybit.go.api
// client with the configured connection pool and timeout.
func NewBybitSupplier(cfg *config.Config, log *logger.Log) *BybitSupplier {
	pool := cfg.Source.Bybit.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
		DisableCompression:  false,
	}

	base := cfg.Source.Bybit.URL
	if base == "" {
		base = bybitDefaultURL
	}

	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.Source.Timeout,
	}

	supplier := &BybitSupplier{
		client:  client,
		limiter: newLimiter(cfg.Source.RateLimit),
		log:     log.WithComponent("bybit_supplier"),
	}

	supplier.log.WithFields(logger.Fields{
		"endpoint": base,
		"timeout":  cfg.Source.Timeout.String(),
	}).Info("bybit candle supplier initialized")

	return supplier
}

// Historical pages backwards through the kline endpoint, which returns the
// newest candles of a range first, until the start bound is reached.
func (s *BybitSupplier) Historical(ctx context.Context, pair string, timeframe config.Timeframe, start, end time.Time) ([]models.Candle, error) {
	interval, err := bybitInterval(timeframe)
	if err != nil {
		return nil, err
	}
	symbol := symbols.ForExchange("bybit", pair)

	var out []models.Candle
	endCursor := end
	for {
		page, err := s.fetchPage(ctx, symbol, interval, start, endCursor, bybitKlineLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		logger.IncrementCandleRead(len(page))
		out = append(page, out...)
		oldest := page[0].Timestamp
		if !oldest.After(start) || len(page) < bybitKlineLimit {
			break
		}
		endCursor = oldest.Add(-time.Millisecond)
	}

	out = dropUnclosed(out, timeframe.Duration(), time.Now().UTC())
	s.log.WithFields(logger.Fields{
		"pair":    pair,
		"symbol":  symbol,
		"candles": len(out),
	}).Debug("historical candles fetched")
	logger.LogDataFlowEntry(s.log, "bybit_api", "pipeline", len(out), "candles")
	return out, nil
}

// Latest fetches the most recent klines and returns up to limit closed
// candles.
func (s *BybitSupplier) Latest(ctx context.Context, pair string, timeframe config.Timeframe, limit int) ([]models.Candle, error) {
	interval, err := bybitInterval(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("bybit kline %s: limit %d is not positive", pair, limit)
	}
	symbol := symbols.ForExchange("bybit", pair)

	// Over-fetch by one so the forming candle does not eat into the limit.
	fetch := limit + 1
	if fetch > bybitKlineLimit {
		fetch = bybitKlineLimit
	}
	candles, err := s.fetchPage(ctx, symbol, interval, time.Time{}, time.Time{}, fetch)
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

func (s *BybitSupplier) fetchPage(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]models.Candle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": "linear",
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}
	if !start.IsZero() {
		params["start"] = start.UnixMilli()
	}
	if !end.IsZero() {
		params["end"] = end.UnixMilli()
	}

	reqStart := time.Now()
	resp, err := s.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("bybit kline %s %s: %w", symbol, interval, err)
	}
	logger.LogPerformanceEntry(s.log, "bybit_supplier", "api_request", time.Since(reqStart), logger.Fields{"symbol": symbol})
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit kline %s %s: %s (code %d)", symbol, interval, resp.RetMsg, resp.RetCode)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("bybit kline payload: %w", err)
	}
	var result bybitKlineResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("bybit kline payload: %w", err)
	}

	return convertBybitRows(result.List)
}

// convertBybitRows turns newest-first string rows into ascending candles.
func convertBybitRows(rows [][]string) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("bybit kline row has %d fields, want at least 6", len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed bybit kline start %q: %w", row[0], err)
		}
		var values [5]float64
		for j := range values {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("malformed bybit kline at %d: %w", ms, err)
			}
			values[j] = v
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(ms).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return candles, nil
}
