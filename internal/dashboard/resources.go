package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"stratflow/logger"
)

// resourceSnapshot is one sample of host utilisation taken while a run is
// being served.
type resourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
}

// resourceSampler keeps a bounded trail of host samples for the resources
// panel. Disk usage tracks the volume the run artifacts land on, not the
// root filesystem.
type resourceSampler struct {
	mu       sync.RWMutex
	items    []resourceSnapshot
	limit    int
	interval time.Duration
	diskPath string

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Entry
}

var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

func newResourceSampler(limit int, interval time.Duration, resultsDir string, log *logger.Log) *resourceSampler {
	if limit <= 0 {
		limit = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &resourceSampler{
		limit:    limit,
		interval: interval,
		diskPath: watchPath(resultsDir),
		log:      log.WithComponent("resource_sampler"),
	}
}

// watchPath resolves the deepest existing ancestor of the results directory.
// The directory itself is only created by the first result write, but its
// volume is worth watching from the start of the session.
func watchPath(dir string) string {
	if dir == "" {
		return "/"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "/"
	}
	p := abs
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

// path reports the directory whose volume the disk gauge describes.
func (s *resourceSampler) path() string {
	if s == nil {
		return ""
	}
	return s.diskPath
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil {
		return
	}
	if s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if cancel := s.cancel; cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *resourceSampler) snapshot() []resourceSnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resourceSnapshot, len(s.items))
	copy(out, s.items)
	return out
}

func (s *resourceSampler) append(snapshot resourceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snapshot)
	if len(s.items) > s.limit {
		s.items = append([]resourceSnapshot(nil), s.items[len(s.items)-s.limit:]...)
	}
}

// run samples until the context ends. The cpu reading blocks for the sample
// interval, which also paces the loop.
func (s *resourceSampler) run(ctx context.Context) {
	defer s.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cpuSamples, err := cpuPercentFn(ctx, s.interval)
		if err != nil {
			s.log.WithError(err).Debug("cpu sample failed")
			continue
		}
		cpuPct := 0.0
		if len(cpuSamples) > 0 {
			cpuPct = cpuSamples[0]
		}

		memStats, err := memoryStatsFn(ctx)
		if err != nil {
			s.log.WithError(err).Debug("memory sample failed")
			continue
		}

		diskStats, err := diskUsageFn(ctx, s.diskPath)
		if err != nil {
			s.log.WithError(err).Debug("disk sample failed")
			continue
		}

		s.append(resourceSnapshot{
			Timestamp:   time.Now(),
			CPUPercent:  cpuPct,
			MemoryUsed:  memStats.Used,
			MemoryTotal: memStats.Total,
			MemoryPct:   memStats.UsedPercent,
			DiskUsed:    diskStats.Used,
			DiskTotal:   diskStats.Total,
			DiskPct:     diskStats.UsedPercent,
		})
	}
}
