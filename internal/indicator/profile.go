package indicator

import (
	"math"

	"stratflow/models"
)

// volumeProfile buckets the trailing profile_depth candles into
// profile_buckets equal price slices and derives the point of control plus
// the 70% value area. Each candle's volume lands in the bucket holding its
// (high+low)/2 representative price.
func (e *Engine) volumeProfile(candles []models.Candle) models.VolumeProfile {
	depth := e.cfg.ProfileDepth
	if depth <= 0 || depth > len(candles) {
		depth = len(candles)
	}
	window := candles[len(candles)-depth:]

	low := math.MaxFloat64
	high := -math.MaxFloat64
	total := 0.0
	for _, c := range window {
		low = math.Min(low, math.Min(c.Low, math.Min(c.High, c.Close)))
		high = math.Max(high, math.Max(c.High, math.Max(c.Low, c.Close)))
		total += c.Volume
	}

	// A window that never moved collapses to a single price level.
	if high <= low {
		return models.VolumeProfile{
			POC:           low,
			ValueAreaHigh: low,
			ValueAreaLow:  low,
			TotalVolume:   total,
			Buckets: []models.ProfileBucket{
				{PriceLow: low, PriceHigh: low, Volume: total},
			},
		}
	}

	n := e.cfg.ProfileBuckets
	size := (high - low) / float64(n)
	buckets := make([]models.ProfileBucket, n)
	for i := range buckets {
		buckets[i].PriceLow = low + float64(i)*size
		buckets[i].PriceHigh = low + float64(i+1)*size
	}
	for _, c := range window {
		idx := int((c.MidPrice() - low) / size)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		buckets[idx].Volume += c.Volume
	}

	poc := 0
	for i := range buckets {
		if buckets[i].Volume > buckets[poc].Volume {
			poc = i
		}
	}

	// Expand outward from the point of control, always absorbing the
	// higher-volume neighbour, until the area holds at least 70% of volume.
	lowIdx, highIdx := poc, poc
	enclosed := buckets[poc].Volume
	target := total * 0.7
	for enclosed < target && (lowIdx > 0 || highIdx < n-1) {
		above, below := -1.0, -1.0
		if highIdx < n-1 {
			above = buckets[highIdx+1].Volume
		}
		if lowIdx > 0 {
			below = buckets[lowIdx-1].Volume
		}
		if above >= below {
			highIdx++
			enclosed += above
		} else {
			lowIdx--
			enclosed += below
		}
	}

	return models.VolumeProfile{
		POC:           buckets[poc].PriceLow + size/2,
		ValueAreaHigh: buckets[highIdx].PriceHigh,
		ValueAreaLow:  buckets[lowIdx].PriceLow,
		TotalVolume:   total,
		Buckets:       buckets,
	}
}

// marketDelta splits the trailing delta_depth candles into buy volume
// (close above open) and sell volume and classifies the imbalance.
func (e *Engine) marketDelta(candles []models.Candle) models.MarketDelta {
	depth := e.cfg.DeltaDepth
	if depth <= 0 || depth > len(candles) {
		depth = len(candles)
	}

	var buy, sell float64
	for _, c := range candles[len(candles)-depth:] {
		if c.Bullish() {
			buy += c.Volume
		} else {
			sell += c.Volume
		}
	}

	delta := buy - sell
	pct := 0.0
	if buy+sell > 0 {
		pct = delta / (buy + sell) * 100
	}

	return models.MarketDelta{
		BuyVolume:  buy,
		SellVolume: sell,
		Delta:      delta,
		DeltaPct:   pct,
		Imbalance:  classifyImbalance(pct),
	}
}

func classifyImbalance(pct float64) models.VolumeImbalance {
	switch {
	case pct > 30:
		return models.ImbalanceStrongBuy
	case pct > 10:
		return models.ImbalanceBuy
	case pct > -10:
		return models.ImbalanceNeutral
	case pct > -30:
		return models.ImbalanceSell
	default:
		return models.ImbalanceStrongSell
	}
}
