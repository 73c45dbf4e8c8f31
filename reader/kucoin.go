package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	sdkapi "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"golang.org/x/time/rate"

	"stratflow/config"
	"stratflow/internal/symbols"
	"stratflow/logger"
	"stratflow/models"
)

const (
	kucoinDefaultURL = "https://api-futures.kucoin.com"
	kucoinOKCode     = "200000"
)

// KucoinSupplier reads linear futures klines from KuCoin. Contract metadata
// goes through the universal SDK; the kline query itself is a plain REST
// call because its response is a bare numeric matrix.
type KucoinSupplier struct {
	baseURL    string
	httpClient *http.Client
	marketAPI  futuresmarket.MarketAPI
	limiter    *rate.Limiter
	log        *logger.Entry

	mu      sync.Mutex
	checked map[string]bool
}

// NewKucoinSupplier creates a supplier for KuCoin futures with the
// configured connection pool and timeout.
func NewKucoinSupplier(cfg *config.Config, log *logger.Log) *KucoinSupplier {
	base := cfg.Source.Kucoin.URL
	if base == "" {
		base = kucoinDefaultURL
	}
	pool := cfg.Source.Kucoin.ConnectionPool

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetMaxIdleConns(pool.MaxIdleConns).
		SetMaxIdleConnsPerHost(pool.MaxIdleConns).
		SetMaxConnsPerHost(pool.MaxConnsPerHost).
		SetIdleConnTimeout(pool.IdleConnTimeout).
		SetTimeout(cfg.Source.Timeout).
		Build()

	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(base).
		WithTransportOption(transportOpt).
		Build()

	client := sdkapi.NewClient(option)

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        pool.MaxIdleConns,
			MaxIdleConnsPerHost: pool.MaxIdleConns,
			MaxConnsPerHost:     pool.MaxConnsPerHost,
			IdleConnTimeout:     pool.IdleConnTimeout,
			DisableCompression:  false,
		},
		Timeout: cfg.Source.Timeout,
	}

	supplier := &KucoinSupplier{
		baseURL:    base,
		httpClient: httpClient,
		marketAPI:  client.RestService().GetFuturesService().GetMarketAPI(),
		limiter:    newLimiter(cfg.Source.RateLimit),
		log:        log.WithComponent("kucoin_supplier"),
		checked:    map[string]bool{},
	}

	supplier.log.WithFields(logger.Fields{
		"endpoint": base,
		"timeout":  cfg.Source.Timeout.String(),
	}).Info("kucoin candle supplier initialized")

	return supplier
}

// Historical pages forward through the kline endpoint until every closed
// candle in [start, end] has been collected.
func (s *KucoinSupplier) Historical(ctx context.Context, pair string, timeframe config.Timeframe, start, end time.Time) ([]models.Candle, error) {
	granularity, err := kucoinGranularity(timeframe)
	if err != nil {
		return nil, err
	}
	symbol := s.contract(ctx, pair)
	step := timeframe.Duration()

	var out []models.Candle
	cursor := start
	for !cursor.After(end) {
		rows, err := s.fetchKlines(ctx, symbol, granularity, cursor, end)
		if err != nil {
			return nil, err
		}
		fresh := 0
		for _, candle := range rows {
			if len(out) > 0 && !candle.Timestamp.After(out[len(out)-1].Timestamp) {
				continue
			}
			out = append(out, candle)
			fresh++
		}
		if fresh == 0 {
			break
		}
		logger.IncrementCandleRead(fresh)
		cursor = out[len(out)-1].Timestamp.Add(step)
	}

	out = dropUnclosed(out, step, time.Now().UTC())
	s.log.WithFields(logger.Fields{
		"pair":    pair,
		"symbol":  symbol,
		"candles": len(out),
	}).Debug("historical candles fetched")
	logger.LogDataFlowEntry(s.log, "kucoin_api", "pipeline", len(out), "candles")
	return out, nil
}

// Latest fetches a recent window of klines and returns up to limit closed
// candles.
func (s *KucoinSupplier) Latest(ctx context.Context, pair string, timeframe config.Timeframe, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("kucoin kline %s: limit %d is not positive", pair, limit)
	}
	step := timeframe.Duration()
	now := time.Now().UTC()

	// Over-fetch by one interval so the forming candle does not eat into
	// the limit.
	start := now.Add(-time.Duration(limit+1) * step)
	candles, err := s.Historical(ctx, pair, timeframe, start, now)
	if err != nil {
		return nil, err
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// contract maps a canonical pair to its KuCoin contract name and verifies
// the contract exists on first use. The lookup is advisory: a mistyped pair
// surfaces early with a clear message, but lookup failures never block the
// kline query, which reports its own errors.
func (s *KucoinSupplier) contract(ctx context.Context, pair string) string {
	symbol := symbols.ForExchange("kucoin", pair)

	s.mu.Lock()
	checked := s.checked[pair]
	if !checked {
		s.checked[pair] = true
	}
	s.mu.Unlock()
	if checked {
		return symbol
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return symbol
	}
	req := futuresmarket.NewGetSymbolReqBuilder().SetSymbol(symbol).Build()
	resp, err := s.marketAPI.GetSymbol(req, ctx)
	switch {
	case err != nil:
		s.log.WithFields(logger.Fields{"pair": pair, "symbol": symbol}).WithError(err).Warn("kucoin contract lookup failed")
	case resp == nil || symbols.Canonical("kucoin", resp.Symbol) != pair:
		s.log.WithFields(logger.Fields{"pair": pair, "symbol": symbol}).Warn("kucoin contract lookup returned a different instrument")
	default:
		s.log.WithFields(logger.Fields{"pair": pair, "symbol": resp.Symbol}).Info("kucoin contract resolved")
	}
	return symbol
}

func (s *KucoinSupplier) fetchKlines(ctx context.Context, symbol string, granularity int, from, to time.Time) ([]models.Candle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(s.baseURL + "/api/v1/kline/query")
	if err != nil {
		return nil, fmt.Errorf("kucoin kline url: %w", err)
	}
	q := reqURL.Query()
	q.Set("symbol", symbol)
	q.Set("granularity", strconv.Itoa(granularity))
	q.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("kucoin kline request: %w", err)
	}
	reqStart := time.Now()
	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kucoin kline %s: %w", symbol, err)
	}
	defer res.Body.Close()
	logger.LogPerformanceEntry(s.log, "kucoin_supplier", "api_request", time.Since(reqStart), logger.Fields{"symbol": symbol})

	var resp struct {
		Code string      `json:"code"`
		Msg  string      `json:"msg"`
		Data [][]float64 `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("kucoin kline %s: decode: %w", symbol, err)
	}
	if resp.Code != kucoinOKCode {
		return nil, fmt.Errorf("kucoin kline %s: %s (code %s)", symbol, resp.Msg, resp.Code)
	}

	return convertKucoinRows(resp.Data)
}

// convertKucoinRows turns [timeMs, open, high, low, close, volume] rows into
// candles. KuCoin already returns them oldest first.
func convertKucoinRows(rows [][]float64) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kucoin kline row has %d fields, want at least 6", len(row))
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(int64(row[0])).UTC(),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return candles, nil
}
