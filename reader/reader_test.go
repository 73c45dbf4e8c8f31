package reader

import (
	"testing"
	"time"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

func testSourceConfig(exchange, url string) *config.Config {
	cfg := &config.Config{}
	cfg.Source.Exchange = exchange
	cfg.Source.Timeout = 5 * time.Second
	cfg.Source.RateLimit.RequestsPerSecond = 100
	cfg.Source.RateLimit.BurstSize = 100
	switch exchange {
	case "binance":
		cfg.Source.Binance.URL = url
	case "bybit":
		cfg.Source.Bybit.URL = url
	case "kucoin":
		cfg.Source.Kucoin.URL = url
	}
	return cfg
}

func TestNewSupplierSelectsExchange(t *testing.T) {
	log := logger.Logger()

	for _, exchange := range []string{"binance", "bybit", "kucoin"} {
		supplier, err := NewSupplier(testSourceConfig(exchange, ""), log)
		if err != nil {
			t.Fatalf("NewSupplier(%s): %v", exchange, err)
		}
		if supplier == nil {
			t.Fatalf("NewSupplier(%s) returned nil supplier", exchange)
		}
	}

	if _, err := NewSupplier(testSourceConfig("okx", ""), log); err == nil {
		t.Fatal("expected an error for an unsupported exchange")
	}
}

func TestIntervalMappings(t *testing.T) {
	binanceCases := map[config.Timeframe]string{
		"1m": "1m", "3m": "3m", "1h": "1h", "8h": "8h", "1d": "1d",
	}
	for timeframe, want := range binanceCases {
		got, err := binanceInterval(timeframe)
		if err != nil {
			t.Fatalf("binanceInterval(%s): %v", timeframe, err)
		}
		if got != want {
			t.Errorf("binanceInterval(%s) = %s, want %s", timeframe, got, want)
		}
	}
	if _, err := binanceInterval("7m"); err == nil {
		t.Error("binanceInterval accepted an unknown timeframe")
	}

	bybitCases := map[config.Timeframe]string{
		"1m": "1", "3m": "3", "30m": "30", "1h": "60", "4h": "240", "12h": "720", "1d": "D",
	}
	for timeframe, want := range bybitCases {
		got, err := bybitInterval(timeframe)
		if err != nil {
			t.Fatalf("bybitInterval(%s): %v", timeframe, err)
		}
		if got != want {
			t.Errorf("bybitInterval(%s) = %s, want %s", timeframe, got, want)
		}
	}
	if _, err := bybitInterval("8h"); err == nil {
		t.Error("bybitInterval accepted 8h, which Bybit does not serve")
	}

	kucoinCases := map[config.Timeframe]int{
		"1m": 1, "5m": 5, "1h": 60, "4h": 240, "8h": 480, "1d": 1440,
	}
	for timeframe, want := range kucoinCases {
		got, err := kucoinGranularity(timeframe)
		if err != nil {
			t.Fatalf("kucoinGranularity(%s): %v", timeframe, err)
		}
		if got != want {
			t.Errorf("kucoinGranularity(%s) = %d, want %d", timeframe, got, want)
		}
	}
	for _, timeframe := range []config.Timeframe{"3m", "6h"} {
		if _, err := kucoinGranularity(timeframe); err == nil {
			t.Errorf("kucoinGranularity accepted %s, which KuCoin does not serve", timeframe)
		}
	}
}

func TestDropUnclosed(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hourly := func(hours ...int) []models.Candle {
		candles := make([]models.Candle, 0, len(hours))
		for _, h := range hours {
			candles = append(candles, models.Candle{Timestamp: base.Add(time.Duration(h) * time.Hour)})
		}
		return candles
	}

	tests := []struct {
		name string
		in   []models.Candle
		now  time.Time
		want int
	}{
		{"all closed", hourly(0, 1, 2), base.Add(4 * time.Hour), 3},
		{"bucket closing exactly now is closed", hourly(0, 1, 2), base.Add(3 * time.Hour), 3},
		{"forming candle dropped", hourly(0, 1, 2), base.Add(2*time.Hour + 30*time.Minute), 2},
		{"everything still forming", hourly(5, 6), base.Add(5 * time.Hour), 0},
		{"empty input", nil, base, 0},
	}

	for _, tt := range tests {
		got := dropUnclosed(tt.in, time.Hour, tt.now)
		if len(got) != tt.want {
			t.Errorf("%s: kept %d candles, want %d", tt.name, len(got), tt.want)
		}
		for i, candle := range got {
			if !candle.Timestamp.Equal(tt.in[i].Timestamp) {
				t.Errorf("%s: candle %d reordered", tt.name, i)
			}
		}
	}
}
