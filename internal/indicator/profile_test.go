package indicator

import (
	"testing"
	"time"

	"stratflow/models"
)

func TestVolumeProfileSinglePeak(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	// Every candle spans 100..120 with its representative price at 110, so
	// all volume lands in one bucket.
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      110,
			High:      120,
			Low:       100,
			Close:     110,
			Volume:    10,
		}
	}

	p := e.volumeProfile(candles)

	if p.TotalVolume != 500 {
		t.Errorf("profile should cover the trailing 50 candles: total volume %v", p.TotalVolume)
	}
	// Range 100..120 over 20 buckets puts 110 in bucket [110,111).
	if !almostEqual(p.POC, 110.5) {
		t.Errorf("unexpected POC: %v", p.POC)
	}
	if !almostEqual(p.ValueAreaLow, 110) || !almostEqual(p.ValueAreaHigh, 111) {
		t.Errorf("value area should be the single populated bucket: [%v, %v]", p.ValueAreaLow, p.ValueAreaHigh)
	}
	if len(p.Buckets) != 20 {
		t.Errorf("unexpected bucket count: %d", len(p.Buckets))
	}
}

func TestVolumeProfileValueAreaCoverage(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	// Spread representative prices across the range so the value area has to
	// expand over several buckets.
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 60)
	for i := range candles {
		p := 100 + float64(i%10)
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
			Volume:    10,
		}
	}

	profile := e.volumeProfile(candles)

	var enclosed float64
	for _, b := range profile.Buckets {
		if b.PriceLow >= profile.ValueAreaLow-1e-9 && b.PriceHigh <= profile.ValueAreaHigh+1e-9 {
			enclosed += b.Volume
		}
	}
	if enclosed < 0.7*profile.TotalVolume {
		t.Errorf("value area encloses %v of %v volume", enclosed, profile.TotalVolume)
	}
	if profile.ValueAreaLow > profile.POC || profile.ValueAreaHigh < profile.POC {
		t.Errorf("POC %v outside value area [%v, %v]", profile.POC, profile.ValueAreaLow, profile.ValueAreaHigh)
	}
}

func TestVolumeProfileFlatWindow(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i] = models.Candle{Open: 100, High: 100, Low: 100, Close: 100, Volume: 5}
	}

	p := e.volumeProfile(candles)

	if p.POC != 100 || p.ValueAreaHigh != 100 || p.ValueAreaLow != 100 {
		t.Errorf("flat window should collapse to the single price: %+v", p)
	}
	if p.TotalVolume != 250 {
		t.Errorf("unexpected total volume: %v", p.TotalVolume)
	}
}

func TestMarketDeltaClassification(t *testing.T) {
	cases := []struct {
		pct       float64
		imbalance models.VolumeImbalance
	}{
		{35, models.ImbalanceStrongBuy},
		{30, models.ImbalanceBuy},
		{15, models.ImbalanceBuy},
		{10, models.ImbalanceNeutral},
		{0, models.ImbalanceNeutral},
		{-10, models.ImbalanceSell},
		{-29, models.ImbalanceSell},
		{-30, models.ImbalanceStrongSell},
		{-50, models.ImbalanceStrongSell},
	}
	for _, c := range cases {
		if got := classifyImbalance(c.pct); got != c.imbalance {
			t.Errorf("classifyImbalance(%v) = %s, want %s", c.pct, got, c.imbalance)
		}
	}
}

func TestMarketDeltaWindow(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	// 15 bullish and 5 bearish candles in the trailing 20.
	candles := make([]models.Candle, 60)
	for i := range candles {
		c := models.Candle{Open: 100, High: 101, Low: 99, Volume: 10}
		if i%4 == 3 {
			c.Close = 99 // bearish
		} else {
			c.Close = 101 // bullish
		}
		candles[i] = c
	}

	d := e.marketDelta(candles)

	if d.BuyVolume != 150 || d.SellVolume != 50 {
		t.Errorf("unexpected buy/sell split: %v / %v", d.BuyVolume, d.SellVolume)
	}
	if !almostEqual(d.DeltaPct, 50) {
		t.Errorf("unexpected delta pct: %v", d.DeltaPct)
	}
	if d.Imbalance != models.ImbalanceStrongBuy {
		t.Errorf("unexpected imbalance: %s", d.Imbalance)
	}
}

func TestMarketDeltaZeroVolume(t *testing.T) {
	e := newTestEngine(testIndicatorConfig())

	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i] = models.Candle{Open: 100, High: 100, Low: 100, Close: 100}
	}

	d := e.marketDelta(candles)
	if d.DeltaPct != 0 || d.Imbalance != models.ImbalanceNeutral {
		t.Errorf("zero-volume window should be neutral: %+v", d)
	}
}
