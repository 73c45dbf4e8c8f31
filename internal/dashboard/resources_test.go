package dashboard

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"stratflow/logger"
)

func TestWatchPathResolvesDeepestExistingAncestor(t *testing.T) {
	existing := t.TempDir()

	if got := watchPath(existing); got != existing {
		t.Fatalf("watchPath(existing) = %q, want %q", got, existing)
	}

	// The results directory is created by the first write, so before that the
	// sampler falls back to its nearest existing parent.
	pending := filepath.Join(existing, "results", "2024")
	if got := watchPath(pending); got != existing {
		t.Fatalf("watchPath(pending) = %q, want %q", got, existing)
	}

	if got := watchPath(""); got != "/" {
		t.Fatalf("watchPath(\"\") = %q, want /", got)
	}
}

func TestResourceSamplerCollectsBoundedSamples(t *testing.T) {
	resultsDir := t.TempDir()
	sampler := newResourceSampler(2, time.Millisecond, resultsDir, logger.Logger())

	// Stub the collectors so the test never touches the host.
	originalCPU := cpuPercentFn
	originalMem := memoryStatsFn
	originalDisk := diskUsageFn
	t.Cleanup(func() {
		cpuPercentFn = originalCPU
		memoryStatsFn = originalMem
		diskUsageFn = originalDisk
	})

	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return []float64{17.25}, nil
	}
	memoryStatsFn = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 3 << 20, Total: 8 << 20, UsedPercent: 37.5}, nil
	}
	var gaugedPath atomic.Value
	diskUsageFn = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		gaugedPath.Store(path)
		return &disk.UsageStat{Used: 6 << 30, Total: 10 << 30, UsedPercent: 60}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler.start(ctx)

	deadline := time.Now().Add(250 * time.Millisecond)
	for len(sampler.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("resource sampler did not collect samples in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	sampler.stop()

	snapshots := sampler.snapshot()
	if len(snapshots) == 0 || len(snapshots) > 2 {
		t.Fatalf("snapshot count = %d, want 1..2", len(snapshots))
	}

	latest := snapshots[len(snapshots)-1]
	if latest.CPUPercent != 17.25 || latest.MemoryPct != 37.5 || latest.DiskPct != 60 {
		t.Fatalf("unexpected snapshot data: %#v", latest)
	}

	if got := gaugedPath.Load(); got != resultsDir {
		t.Fatalf("disk usage gauged %v, want the artifact directory %q", got, resultsDir)
	}
	if sampler.path() != resultsDir {
		t.Fatalf("sampler path = %q, want %q", sampler.path(), resultsDir)
	}
}
