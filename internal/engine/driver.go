// Package engine drives candle evaluation. A single Driver owns the
// indicator engine, the market classifier, the risk manager, the execution
// simulator and the performance tracker, and feeds them candles either from
// a historical replay (backtest) or from a polling loop (paper trading).
// Both modes funnel every candle through the same pipeline, so a strategy
// behaves identically whichever clock drives it.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stratflow/config"
	"stratflow/decision"
	"stratflow/internal/channel"
	"stratflow/internal/indicator"
	"stratflow/internal/market"
	"stratflow/internal/metrics"
	"stratflow/internal/perf"
	"stratflow/internal/risk"
	"stratflow/internal/sim"
	"stratflow/logger"
	"stratflow/models"
	"stratflow/reader"
)

// paperPollBatch is how many closed candles each paper tick requests. One
// would do on a healthy schedule; a few extra bridge short outages so the
// rolling history has no holes.
const paperPollBatch = 5

// Driver evaluates one strategy run. It is not safe for concurrent use and
// drives a single run: construct a fresh Driver per backtest or paper
// session.
type Driver struct {
	cfg      *config.Config
	supplier reader.CandleSupplier
	provider decision.Provider
	bus      *channel.Bus

	indicators *indicator.Engine
	classifier *market.Classifier
	risk       *risk.Manager
	sim        *sim.Simulator
	perf       *perf.Tracker

	baseLog *logger.Log
	log     *logger.Entry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Pipeline state, touched only by the goroutine that owns the run.
	runID         string
	mode          string
	startedAt     time.Time
	firstCandle   time.Time
	lastProcessed time.Time
	history       []models.Candle
	decisions     []models.DecisionRecord
	candles       int64
	faults        int64
	fallbacks     int64
	rejections    int64
}

// NewDriver wires the evaluation pipeline around the given candle supplier
// and decision provider. The bus may be nil when no dashboard is attached.
func NewDriver(cfg *config.Config, supplier reader.CandleSupplier, provider decision.Provider, bus *channel.Bus, log *logger.Log) *Driver {
	d := &Driver{
		cfg:        cfg,
		supplier:   supplier,
		provider:   provider,
		bus:        bus,
		indicators: indicator.NewEngine(cfg.Indicators, log),
		classifier: market.NewClassifier(log),
		risk:       risk.NewManager(cfg.Risk, cfg.Simulation.TakerFee, log),
		sim:        sim.NewSimulator(cfg.Simulation, log),
		perf:       perf.NewTracker(cfg.Simulation.InitialCapital, time.Now().UTC(), log),
		baseLog:    log,
		log:        log.WithComponent("engine"),
	}

	d.log.WithFields(logger.Fields{
		"pair":      cfg.Simulation.Pair,
		"timeframe": cfg.Simulation.Timeframe.String(),
		"provider":  provider.Name(),
	}).Info("evaluation driver initialized")

	return d
}

// beginRun stamps the run identity and resets the stateful components so
// their clocks start at the first candle of the run rather than at
// construction time.
func (d *Driver) beginRun(mode string, firstCandle time.Time) {
	d.runID = uuid.New().String()
	d.mode = mode
	d.startedAt = time.Now().UTC()
	d.firstCandle = firstCandle

	seed := firstCandle
	if seed.IsZero() {
		seed = d.startedAt
	}
	d.risk = risk.NewManager(d.cfg.Risk, d.cfg.Simulation.TakerFee, d.baseLog)
	d.sim = sim.NewSimulator(d.cfg.Simulation, d.baseLog)
	d.perf = perf.NewTracker(d.cfg.Simulation.InitialCapital, seed, d.baseLog)
}

// RunBacktest replays the configured historical range through the pipeline
// and returns the finished run. Any position still open after the final
// candle is closed at that candle's price.
func (d *Driver) RunBacktest(ctx context.Context) (*models.RunResult, error) {
	simCfg := d.cfg.Simulation
	log := d.log.WithFields(logger.Fields{
		"pair":  simCfg.Pair,
		"start": simCfg.Backtest.Start,
		"end":   simCfg.Backtest.End,
	})

	log.Info("fetching backtest history")
	candles, err := d.supplier.Historical(ctx, simCfg.Pair, simCfg.Timeframe, simCfg.Backtest.Start, simCfg.Backtest.End)
	if err != nil {
		return nil, fmt.Errorf("fetch backtest history: %w", err)
	}
	if len(candles) < indicator.MinimumCandles {
		return nil, fmt.Errorf("backtest needs at least %d candles, got %d", indicator.MinimumCandles, len(candles))
	}

	d.beginRun(models.ModeBacktest, candles[0].Timestamp)
	log.WithFields(logger.Fields{"run_id": d.runID, "candles": len(candles)}).Info("backtest started")

	for i := indicator.MinimumCandles; i <= len(candles); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := d.step(ctx, candles[:i]); err != nil {
			return nil, err
		}
	}

	d.closeDangling(candles[len(candles)-1])

	result := d.snapshotResult()
	log.WithFields(logger.Fields{
		"run_id":    result.RunID,
		"processed": result.CandlesProcessed,
		"trades":    len(result.Trades),
		"faults":    result.Faults,
	}).Info("backtest complete")
	return result, nil
}

// Start launches the paper-trading loop. The loop seeds its history with the
// most recent closed candles, evaluates the newest immediately and then
// wakes shortly after every timeframe boundary.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("paper session is already running")
	}
	d.running = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	d.beginRun(models.ModePaper, time.Time{})

	simCfg := d.cfg.Simulation
	warmup := simCfg.Paper.WarmupCandles
	if limit := simCfg.HistoryLimit; limit > 0 && warmup > limit {
		warmup = limit
	}
	seed, err := d.supplier.Latest(runCtx, simCfg.Pair, simCfg.Timeframe, warmup)
	if err != nil {
		d.log.WithError(err).Warn("warmup fetch failed, starting with empty history")
	} else {
		d.extendHistory(seed)
	}

	d.log.WithFields(logger.Fields{
		"run_id":     d.runID,
		"pair":       simCfg.Pair,
		"timeframe":  simCfg.Timeframe.String(),
		"warmup":     len(d.history),
		"poll_delay": simCfg.Paper.PollDelay,
	}).Info("paper session started")

	d.wg.Add(1)
	go d.pollLoop(runCtx)
	return nil
}

// Stop cancels the paper loop, waits for it to drain, closes any open
// position against the last seen candle and returns the finished run. It
// returns nil when the driver was never started.
func (d *Driver) Stop() *models.RunResult {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	cancel := d.cancel
	d.mu.Unlock()

	d.log.Info("stopping paper session")
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	if len(d.history) > 0 {
		d.closeDangling(d.history[len(d.history)-1])
	}

	result := d.snapshotResult()
	d.log.WithFields(logger.Fields{
		"run_id":    result.RunID,
		"processed": result.CandlesProcessed,
		"trades":    len(result.Trades),
	}).Info("paper session stopped")
	return result
}

// pollLoop is the single goroutine that advances a paper session. It polls
// once immediately so the newest closed candle is evaluated at startup, then
// aligns wakeups to the timeframe boundary plus the configured delay, which
// gives the exchange time to finalize the bucket.
func (d *Driver) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	interval := d.cfg.Simulation.Timeframe.Duration()
	delay := d.cfg.Simulation.Paper.PollDelay
	log := d.log.WithFields(logger.Fields{"operation": "pollLoop"})

	if err := d.pollOnce(ctx); err != nil {
		log.WithError(err).Error("paper session aborted")
		return
	}

	now := time.Now()
	next := now.Truncate(interval).Add(interval).Add(delay)
	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("paper loop stopped")
			return
		case <-timer.C:
			start := time.Now()
			if err := d.pollOnce(ctx); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Error("paper session aborted")
				}
				return
			}
			if elapsed := time.Since(start); elapsed > interval {
				log.WithFields(logger.Fields{
					"duration_ms": elapsed.Milliseconds(),
				}).Warn("tick took longer than the timeframe interval")
			}
			next = start.Truncate(interval).Add(interval).Add(delay)
			timer.Reset(time.Until(next))
		}
	}
}

// pollOnce fetches the latest closed candles and evaluates the newest one.
// Fetch failures are transient and only logged; a non-nil return means the
// pipeline faulted with continue_on_fault disabled and the session must end.
func (d *Driver) pollOnce(ctx context.Context) error {
	simCfg := d.cfg.Simulation

	candles, err := d.supplier.Latest(ctx, simCfg.Pair, simCfg.Timeframe, paperPollBatch)
	if err != nil {
		if ctx.Err() == nil {
			d.log.WithError(err).Warn("candle poll failed")
		}
		return nil
	}
	if len(candles) == 0 {
		return nil
	}
	d.extendHistory(candles)

	newest := d.history[len(d.history)-1]
	if !newest.Timestamp.After(d.lastProcessed) {
		d.log.WithFields(logger.Fields{"candle": newest.Timestamp}).Debug("no new closed candle yet")
		return nil
	}
	if len(d.history) < indicator.MinimumCandles {
		d.log.WithFields(logger.Fields{
			"have": len(d.history),
			"need": indicator.MinimumCandles,
		}).Info("warming up, not enough history to evaluate")
		return nil
	}
	return d.step(ctx, d.history)
}

// extendHistory appends candles that are strictly newer than the current
// tail and trims the window to the configured history limit.
func (d *Driver) extendHistory(candles []models.Candle) {
	for _, candle := range candles {
		if len(d.history) > 0 && !candle.Timestamp.After(d.history[len(d.history)-1].Timestamp) {
			continue
		}
		d.history = append(d.history, candle)
	}
	if limit := d.cfg.Simulation.HistoryLimit; limit > 0 && len(d.history) > limit {
		d.history = d.history[len(d.history)-limit:]
	}
}

// closeDangling closes any position still open at the end of a run so the
// result accounts for every unit of capital.
func (d *Driver) closeDangling(candle models.Candle) {
	if d.sim.Position() == nil {
		return
	}
	trade, err := d.sim.Close(candle, models.CloseReasonEndOfRun)
	if err != nil {
		d.log.WithError(err).Warn("could not close position at end of run")
		return
	}
	d.perf.RecordTrade(*trade, d.sim.Portfolio().TotalEquity, candle.Timestamp)
	metrics.IncrementTradeClosed(models.CloseReasonEndOfRun)
}

func (d *Driver) snapshotResult() *models.RunResult {
	return &models.RunResult{
		RunID:             d.runID,
		Mode:              d.mode,
		Pair:              d.cfg.Simulation.Pair,
		Timeframe:         d.cfg.Simulation.Timeframe.String(),
		Config:            newRunConfig(d.cfg),
		Stats:             d.perf.Stats(),
		Trades:            d.perf.Trades(),
		Decisions:         append([]models.DecisionRecord(nil), d.decisions...),
		EquityCurve:       d.perf.EquityCurve(),
		StartDate:         d.firstCandle,
		EndDate:           d.lastProcessed,
		Duration:          time.Since(d.startedAt),
		CandlesProcessed:  d.candles,
		Faults:            d.faults,
		FallbackDecisions: d.fallbacks,
		RiskRejections:    d.rejections,
	}
}

func newRunConfig(cfg *config.Config) models.RunConfig {
	return models.RunConfig{
		Pair:                 cfg.Simulation.Pair,
		Timeframe:            cfg.Simulation.Timeframe.String(),
		InitialCapital:       cfg.Simulation.InitialCapital,
		TakerFee:             cfg.Simulation.TakerFee,
		Slippage:             cfg.Simulation.Slippage,
		MaxRiskPerTrade:      cfg.Risk.MaxRiskPerTrade,
		MaxPositionFraction:  cfg.Risk.MaxPositionFraction,
		StopLossPct:          cfg.Risk.StopLossPct,
		TakeProfitPct:        cfg.Risk.TakeProfitPct,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		DailyLossLimit:       cfg.Risk.DailyLossLimit,
		MaxDrawdownLimit:     cfg.Risk.MaxDrawdownLimit,
		RecoveryMinutes:      cfg.Risk.RecoveryMinutes,
		MACDSignalFactor:     cfg.Indicators.MACDSignalFactor,
	}
}
