package sessionsrv

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// runStatsLogger implements SPEC_FULL.md §11.5: sample process CPU/RSS and
// a handful of server-internal gauges every StatsInterval, logged at debug
// level. Started alongside the reaper; a sampling failure just skips that
// tick rather than taking the server down.
func (s *Server) runStatsLogger(ctx context.Context) {
	interval := s.cfg.StatsInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.Warn("stats logger: cannot open self process handle", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logStats(proc)
		}
	}
}

func (s *Server) logStats(proc *process.Process) {
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		slog.Debug("stats logger: cpu sample failed", "error", err)
		cpuPercent = -1
	}
	memInfo, err := proc.MemoryInfo()
	var rssBytes uint64
	if err != nil {
		slog.Debug("stats logger: memory sample failed", "error", err)
	} else {
		rssBytes = memInfo.RSS
	}

	slog.Debug("resource stats",
		"cpu_percent", cpuPercent,
		"rss_bytes", rssBytes,
		"goroutines", runtime.NumGoroutine(),
		"active_rooms", s.rooms.count(),
		"active_players", s.players.Count(),
	)
}
