package indicator

import (
	"fmt"
	"math"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

// MinimumCandles is the history floor for a snapshot. RSI, SMA50 and the
// volume profile all need this much depth, so shorter windows are rejected
// instead of producing partially meaningful values.
const MinimumCandles = 50

// InsufficientDataError is returned by Compute when the supplied window is
// shorter than MinimumCandles.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient candle history: have %d candles, need %d", e.Have, e.Need)
}

// Engine computes indicator snapshots from candle windows. Compute is pure;
// the engine carries only immutable configuration.
type Engine struct {
	cfg config.IndicatorConfig
	log *logger.Entry
}

func NewEngine(cfg config.IndicatorConfig, log *logger.Log) *Engine {
	e := &Engine{
		cfg: cfg,
		log: log.WithComponent("indicator"),
	}
	e.log.WithFields(logger.Fields{
		"vwap_bands":     cfg.VWAPBands,
		"keltner":        cfg.Keltner,
		"squeeze":        cfg.Squeeze,
		"volume_profile": cfg.VolumeProfile,
		"market_delta":   cfg.MarketDelta,
	}).Debug("indicator engine initialised")
	return e
}

// Compute derives a snapshot from the supplied ascending candle window. The
// optional blocks are populated only when enabled in configuration, so a nil
// block always means "not computed" rather than "computed as zero".
func (e *Engine) Compute(candles []models.Candle) (*models.IndicatorSnapshot, error) {
	if len(candles) < MinimumCandles {
		return nil, &InsufficientDataError{Have: len(candles), Need: MinimumCandles}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := candles[len(candles)-1]

	emaFast := ema(closes, e.cfg.EMAFast)
	emaSlow := ema(closes, e.cfg.EMASlow)

	snap := &models.IndicatorSnapshot{
		Timestamp: last.Timestamp,
		Close:     last.Close,
		RSI:       rsi(closes, e.cfg.RSIPeriod),
		SMA20:     sma(closes, 20),
		SMA50:     sma(closes, 50),
		EMA12:     emaFast,
		EMA26:     emaSlow,
		MACD:      e.macd(emaFast, emaSlow),
		Bollinger: e.bollinger(closes),
	}

	if e.cfg.VWAPBands {
		v := vwapBands(candles)
		snap.VWAP = &v
	}
	if e.cfg.Keltner {
		k := e.keltner(candles, closes)
		snap.Keltner = &k
		if e.cfg.Squeeze {
			s := e.squeeze(snap.Bollinger, k)
			snap.Squeeze = &s
		}
	}
	if e.cfg.VolumeProfile {
		p := e.volumeProfile(candles)
		snap.Profile = &p
	}
	if e.cfg.MarketDelta {
		d := e.marketDelta(candles)
		snap.Delta = &d
	}

	return snap, nil
}

// sma returns the simple moving average of the trailing period values. When
// fewer values exist the whole input is averaged.
func sma(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 || period > len(values) {
		period = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// ema returns the exponential moving average seeded with the simple average
// of the first period values. Inputs shorter than the period degrade to a
// plain average of everything available.
func ema(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 || len(values) < period {
		return sma(values, len(values))
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	result := seed / float64(period)

	mult := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		result = (v-result)*mult + result
	}
	return result
}

// rsi implements Wilder-style RSI with simple averaging of the trailing
// period's gains and losses. A window without losses reads 100.
func rsi(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}

	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// stddev returns the population standard deviation around the given mean.
func stddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// macd builds the MACD result from the fast and slow EMAs. The signal line is
// macd_signal_factor x MACD, a deliberate approximation of the conventional
// 9-period EMA of MACD kept for strategy compatibility.
func (e *Engine) macd(emaFast, emaSlow float64) models.MACDResult {
	value := emaFast - emaSlow
	signal := e.cfg.MACDSignalFactor * value
	return models.MACDResult{
		Value:     value,
		Signal:    signal,
		Histogram: value - signal,
	}
}

func (e *Engine) bollinger(closes []float64) models.BollingerBands {
	period := e.cfg.BollingerPeriod
	if period <= 0 || period > len(closes) {
		period = len(closes)
	}
	middle := sma(closes, period)
	sd := stddev(closes[len(closes)-period:], middle)
	k := e.cfg.BollingerStdDev

	return models.BollingerBands{
		Upper:  middle + k*sd,
		Middle: middle,
		Lower:  middle - k*sd,
	}
}

// vwapBands computes the full-window volume weighted average price and its
// standard-deviation envelopes from the dispersion of typical prices around
// the VWAP. A window without volume degrades to the unweighted mean.
func vwapBands(candles []models.Candle) models.VWAPBands {
	var weighted, volume float64
	for _, c := range candles {
		weighted += c.TypicalPrice() * c.Volume
		volume += c.Volume
	}

	var vwap float64
	if volume > 0 {
		vwap = weighted / volume
	} else {
		for _, c := range candles {
			vwap += c.TypicalPrice()
		}
		vwap /= float64(len(candles))
	}

	var sum float64
	for _, c := range candles {
		d := c.TypicalPrice() - vwap
		sum += d * d
	}
	sd := math.Sqrt(sum / float64(len(candles)))

	return models.VWAPBands{
		VWAP:       vwap,
		UpperBand1: vwap + sd,
		LowerBand1: vwap - sd,
		UpperBand2: vwap + 2*sd,
		LowerBand2: vwap - 2*sd,
	}
}

// atr returns the mean true range over the trailing period candles. The true
// range uses the previous close when one exists, so gaps count toward range.
func atr(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if period <= 0 || period > len(candles) {
		period = len(candles)
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		c := candles[i]
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			if d := math.Abs(c.High - prev); d > tr {
				tr = d
			}
			if d := math.Abs(c.Low - prev); d > tr {
				tr = d
			}
		}
		sum += tr
	}
	return sum / float64(period)
}

func (e *Engine) keltner(candles []models.Candle, closes []float64) models.KeltnerChannels {
	middle := ema(closes, e.cfg.KeltnerPeriod)
	rangeAvg := atr(candles, e.cfg.KeltnerPeriod)
	offset := e.cfg.KeltnerMultiplier * rangeAvg

	return models.KeltnerChannels{
		Upper:  middle + offset,
		Middle: middle,
		Lower:  middle - offset,
		ATR:    rangeAvg,
	}
}

// squeeze is active when both Bollinger Bands sit inside the Keltner
// Channels. Intensity grades the compression by band width relative to the
// middle band.
func (e *Engine) squeeze(bb models.BollingerBands, kc models.KeltnerChannels) models.SqueezeState {
	active := bb.Upper < kc.Upper && bb.Lower > kc.Lower

	ratio := 0.0
	if bb.Middle != 0 {
		ratio = (bb.Upper - bb.Lower) / bb.Middle
	}

	intensity := models.SqueezeLow
	switch {
	case ratio < 0.015:
		intensity = models.SqueezeHigh
	case ratio < 0.025:
		intensity = models.SqueezeMedium
	}

	return models.SqueezeState{Active: active, Intensity: intensity}
}
