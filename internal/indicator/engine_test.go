package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

func testIndicatorConfig() config.IndicatorConfig {
	return config.IndicatorConfig{
		RSIPeriod:         14,
		EMAFast:           12,
		EMASlow:           26,
		MACDSignalFactor:  0.9,
		BollingerPeriod:   20,
		BollingerStdDev:   2.0,
		KeltnerPeriod:     20,
		KeltnerMultiplier: 1.5,
		ProfileBuckets:    20,
		ProfileDepth:      50,
		DeltaDepth:        20,
		VWAPBands:         true,
		Keltner:           true,
		Squeeze:           true,
		VolumeProfile:     true,
		MarketDelta:       true,
	}
}

func newTestEngine(cfg config.IndicatorConfig) *Engine {
	return NewEngine(cfg, logger.Logger())
}

// makeCandles builds n candles whose close follows the price function, with a
// 1% high/low spread and unit volume.
func makeCandles(n int, price func(i int) float64) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		p := price(i)
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      p,
			High:      p * 1.01,
			Low:       p * 0.99,
			Close:     p,
			Volume:    100,
		}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeRejectsShortWindow(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	_, err := e.Compute(makeCandles(MinimumCandles-1, func(int) float64 { return 100 }))
	if err == nil {
		t.Fatal("expected error for short window")
	}

	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("unexpected error type: %v", err)
	}
	if insufficient.Have != MinimumCandles-1 || insufficient.Need != MinimumCandles {
		t.Errorf("unexpected error detail: %+v", insufficient)
	}
}

func TestComputeConstantSeries(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	snap, err := e.Compute(makeCandles(60, func(int) float64 { return 100 }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !almostEqual(snap.SMA20, 100) || !almostEqual(snap.SMA50, 100) {
		t.Errorf("SMA of constant series should be the constant: %v / %v", snap.SMA20, snap.SMA50)
	}
	if !almostEqual(snap.EMA12, 100) || !almostEqual(snap.EMA26, 100) {
		t.Errorf("EMA of constant series should be the constant: %v / %v", snap.EMA12, snap.EMA26)
	}
	if !almostEqual(snap.MACD.Value, 0) || !almostEqual(snap.MACD.Signal, 0) || !almostEqual(snap.MACD.Histogram, 0) {
		t.Errorf("MACD of constant series should be zero: %+v", snap.MACD)
	}
	// No losing close means RSI pegs at 100.
	if snap.RSI != 100 {
		t.Errorf("RSI of constant series should be 100, got %v", snap.RSI)
	}
	if !almostEqual(snap.Bollinger.Upper, 100) || !almostEqual(snap.Bollinger.Lower, 100) {
		t.Errorf("Bollinger bands of constant series should collapse: %+v", snap.Bollinger)
	}
}

func TestSMAUsesTrailingWindow(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	snap, err := e.Compute(makeCandles(60, func(i int) float64 { return float64(i + 1) }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	// Closes are 1..60, so the trailing means are (41+60)/2 and (11+60)/2.
	if !almostEqual(snap.SMA20, 50.5) {
		t.Errorf("SMA20 = %v, want 50.5", snap.SMA20)
	}
	if !almostEqual(snap.SMA50, 35.5) {
		t.Errorf("SMA50 = %v, want 35.5", snap.SMA50)
	}
}

func TestRSIBounds(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	rising, err := e.Compute(makeCandles(60, func(i int) float64 { return 100 + float64(i) }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if rising.RSI != 100 {
		t.Errorf("RSI of strictly rising series should be 100, got %v", rising.RSI)
	}

	falling, err := e.Compute(makeCandles(60, func(i int) float64 { return 200 - float64(i) }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if falling.RSI != 0 {
		t.Errorf("RSI of strictly falling series should be 0, got %v", falling.RSI)
	}

	mixed, err := e.Compute(makeCandles(60, func(i int) float64 { return 100 + 3*math.Sin(float64(i)) }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if mixed.RSI <= 0 || mixed.RSI >= 100 {
		t.Errorf("RSI of mixed series should sit strictly inside (0,100), got %v", mixed.RSI)
	}
}

func TestBollingerSymmetry(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	snap, err := e.Compute(makeCandles(60, func(i int) float64 { return 100 + 5*math.Sin(float64(i)/3) }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	bb := snap.Bollinger
	if !almostEqual(bb.Upper-bb.Middle, bb.Middle-bb.Lower) {
		t.Errorf("bands not symmetric around the middle: %+v", bb)
	}
	if bb.Upper < bb.Middle || bb.Lower > bb.Middle {
		t.Errorf("band ordering violated: %+v", bb)
	}
}

func TestMACDSignalFactor(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	snap, err := e.Compute(makeCandles(60, func(i int) float64 { return 100 + float64(i) }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	m := snap.MACD
	if !almostEqual(m.Value, snap.EMA12-snap.EMA26) {
		t.Errorf("MACD value should be fast minus slow EMA: %+v", m)
	}
	if !almostEqual(m.Signal, 0.9*m.Value) {
		t.Errorf("signal should be 0.9x MACD: %+v", m)
	}
	if !almostEqual(m.Histogram, m.Value-m.Signal) {
		t.Errorf("histogram should be MACD minus signal: %+v", m)
	}
}

func TestEMADegradesToSMA(t *testing.T) {
	values := []float64{1, 2, 3}
	if got := ema(values, 5); !almostEqual(got, 2) {
		t.Errorf("short input should degrade to plain average, got %v", got)
	}
}

func TestVWAPSingleCandle(t *testing.T) {
	c := models.Candle{High: 10, Low: 8, Close: 9, Volume: 5}
	bands := vwapBands([]models.Candle{c})

	if !almostEqual(bands.VWAP, c.TypicalPrice()) {
		t.Errorf("single-candle VWAP should equal the typical price: %v vs %v", bands.VWAP, c.TypicalPrice())
	}
	if !almostEqual(bands.UpperBand1, bands.VWAP) || !almostEqual(bands.LowerBand2, bands.VWAP) {
		t.Errorf("single-candle bands should collapse onto the VWAP: %+v", bands)
	}
}

func TestSqueezeRequiresBandsInsideChannels(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	cases := []struct {
		name   string
		bb     models.BollingerBands
		kc     models.KeltnerChannels
		active bool
	}{
		{
			name:   "inside",
			bb:     models.BollingerBands{Upper: 101, Middle: 100, Lower: 99},
			kc:     models.KeltnerChannels{Upper: 102, Middle: 100, Lower: 98},
			active: true,
		},
		{
			name:   "wider than channels",
			bb:     models.BollingerBands{Upper: 103, Middle: 100, Lower: 97},
			kc:     models.KeltnerChannels{Upper: 102, Middle: 100, Lower: 98},
			active: false,
		},
		{
			name:   "equal bounds",
			bb:     models.BollingerBands{Upper: 102, Middle: 100, Lower: 98},
			kc:     models.KeltnerChannels{Upper: 102, Middle: 100, Lower: 98},
			active: false,
		},
	}

	for _, c := range cases {
		if got := e.squeeze(c.bb, c.kc); got.Active != c.active {
			t.Errorf("%s: squeeze active = %v, want %v", c.name, got.Active, c.active)
		}
	}
}

func TestSqueezeIntensity(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())
	kc := models.KeltnerChannels{Upper: 200, Middle: 100, Lower: 0}

	cases := []struct {
		width     float64
		intensity models.SqueezeIntensity
	}{
		{1.0, models.SqueezeHigh},    // 1% of middle
		{2.0, models.SqueezeMedium},  // 2%
		{4.0, models.SqueezeLow},     // 4%
	}
	for _, c := range cases {
		bb := models.BollingerBands{Upper: 100 + c.width/2, Middle: 100, Lower: 100 - c.width/2}
		if got := e.squeeze(bb, kc); got.Intensity != c.intensity {
			t.Errorf("width %v: intensity = %s, want %s", c.width, got.Intensity, c.intensity)
		}
	}
}

func TestComputeOptionalBlocksDisabled(t *testing.T) {
	cfg := testIndicatorConfig()
	cfg.VWAPBands = false
	cfg.Keltner = false
	cfg.Squeeze = false
	cfg.VolumeProfile = false
	cfg.MarketDelta = false
	e := newTestEngine(cfg)

	snap, err := e.Compute(makeCandles(60, func(int) float64 { return 100 }))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if snap.VWAP != nil || snap.Keltner != nil || snap.Squeeze != nil || snap.Profile != nil || snap.Delta != nil {
		t.Errorf("disabled blocks should stay nil: %+v", snap)
	}
}

func TestATRFlatSeries(t *testing.T) {
	candles := make([]models.Candle, 30)
	for i := range candles {
		candles[i] = models.Candle{Open: 100, High: 100, Low: 100, Close: 100, Volume: 1}
	}
	if got := atr(candles, 20); got != 0 {
		t.Errorf("flat series should have zero ATR, got %v", got)
	}
}
