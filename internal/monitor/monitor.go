// Package monitor collects the local health snapshot behind the doctor
// command: host CPU and load, this process's footprint, and disk headroom for
// the state directory.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/process"
)

const snapshotTTL = 2 * time.Second

// Snapshot is one point-in-time view of the machine running the client.
type Snapshot struct {
	CPUUsagePercent float64   `json:"cpu_usage_percent"`
	CPUCores        int       `json:"cpu_cores"`
	LoadAverage     []float64 `json:"load_average,omitempty"`

	ProcessRSSBytes   uint64  `json:"process_rss_bytes"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`

	StateDiskTotalBytes uint64  `json:"state_disk_total_bytes"`
	StateDiskFreeBytes  uint64  `json:"state_disk_free_bytes"`
	StateDiskUsedPct    float64 `json:"state_disk_used_pct"`

	Platform    string `json:"platform"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Service caches snapshots briefly so repeated probes do not hammer the
// kernel counters.
type Service struct {
	log      *slog.Logger
	stateDir string

	mu      sync.Mutex
	hasSnap bool
	snap    Snapshot
	taken   time.Time
}

func NewService(log *slog.Logger, stateDir string) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log, stateDir: stateDir}
}

// Snapshot returns the cached snapshot when fresh, collecting a new one
// otherwise. Collection is best effort: a probe that fails leaves its fields
// zero and the rest of the snapshot stands.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	if s.hasSnap && time.Since(s.taken) < snapshotTTL {
		snap := s.snap
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	snap := s.collect(ctx)

	s.mu.Lock()
	s.snap = snap
	s.taken = time.Now()
	s.hasSnap = true
	s.mu.Unlock()
	return snap
}

func (s *Service) collect(ctx context.Context) Snapshot {
	snap := Snapshot{
		CPUCores:    runtime.NumCPU(),
		Platform:    runtime.GOOS,
		TimestampMs: time.Now().UnixMilli(),
	}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.log.Debug("cpu probe failed", "error", err)
	} else if len(pcts) > 0 {
		snap.CPUUsagePercent = pcts[0]
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		s.log.Debug("load probe failed", "error", err)
	} else if avg != nil {
		snap.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			snap.ProcessRSSBytes = mem.RSS
		}
		if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
			snap.ProcessCPUPercent = pct
		}
	}

	if s.stateDir != "" {
		if usage, err := disk.UsageWithContext(ctx, s.stateDir); err != nil {
			s.log.Debug("disk probe failed", "path", s.stateDir, "error", err)
		} else if usage != nil {
			snap.StateDiskTotalBytes = usage.Total
			snap.StateDiskFreeBytes = usage.Free
			snap.StateDiskUsedPct = usage.UsedPercent
		}
	}

	return snap
}
