package channel

import (
	"sync"

	"stratflow/internal/metrics"
	"stratflow/logger"
	"stratflow/models"
)

// BusStats counts publishes on the dashboard bus.
type BusStats struct {
	Sent    int64
	Dropped int64
}

// Bus is the fire-and-forget handoff between the engine pipeline and the
// dashboard. Publish never blocks: when the consumer falls behind, updates
// are dropped and counted instead of stalling candle processing.
type Bus struct {
	Updates chan models.DashboardUpdate

	pair string
	mode string

	stats      BusStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewBus(bufferSize int, pair, mode string, log *logger.Log) *Bus {
	b := &Bus{
		Updates: make(chan models.DashboardUpdate, bufferSize),
		pair:    pair,
		mode:    mode,
		log:     log,
	}

	log.WithComponent("dashboard_bus").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("dashboard bus initialized")

	return b
}

// Publish offers an update to the dashboard without blocking the pipeline.
// It reports whether the update was enqueued.
func (b *Bus) Publish(update models.DashboardUpdate) bool {
	select {
	case b.Updates <- update:
		b.incrementSent()
		logger.RecordChannelMessage("dashboard_updates", 1)
		return true
	default:
		b.incrementDropped()
		metrics.EmitDropMetric(b.log, metrics.DropMetricDashboardUpdate, b.pair, b.mode, "publish")
		return false
	}
}

// Close releases the channel so a draining consumer terminates.
func (b *Bus) Close() {
	close(b.Updates)
	b.log.WithComponent("dashboard_bus").Info("dashboard bus closed")
}

func (b *Bus) incrementSent() {
	b.statsMutex.Lock()
	b.stats.Sent++
	b.statsMutex.Unlock()
}

func (b *Bus) incrementDropped() {
	b.statsMutex.Lock()
	b.stats.Dropped++
	b.statsMutex.Unlock()
}

func (b *Bus) GetStats() BusStats {
	b.statsMutex.RLock()
	defer b.statsMutex.RUnlock()
	return b.stats
}
