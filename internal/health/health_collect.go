package health

import (
	"fmt"
	"runtime"
	"time"
)

// Collect returns a health snapshot for the current process. The status is
// "degraded" when the record store does not answer.
func Collect(opts Options) Snapshot {
	opts = opts.normalize()
	now := time.Now()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	zoneName, zoneOffsetSeconds := now.Zone()

	s := Snapshot{
		Status:     "healthy",
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryInfo{
			AllocMB:      float64(mem.Alloc) / 1024 / 1024,
			TotalAllocMB: float64(mem.TotalAlloc) / 1024 / 1024,
			SysMB:        float64(mem.Sys) / 1024 / 1024,
			NumGC:        mem.NumGC,
		},
		Runtime: RuntimeInfo{
			Version: runtime.Version(),
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			CPUs:    runtime.NumCPU(),
		},
		Time: TimeInfo{
			Local:     now.Format(time.RFC3339),
			UTC:       now.UTC().Format(time.RFC3339),
			Timezone:  zoneName,
			UTCOffset: formatUTCOffset(zoneOffsetSeconds),
			Unix:      now.Unix(),
		},
		Timestamp: now.Format(time.RFC3339),
		Bridge:    opts.Bridge,
		Sweep:     opts.Sweep,
	}

	if opts.StorePing != nil || opts.StorePath != "" {
		s.Store = &StoreInfo{Path: opts.StorePath, Reachable: true}
		if opts.StorePing != nil {
			if err := opts.StorePing(); err != nil {
				s.Store.Reachable = false
				s.Store.Error = err.Error()
				s.Status = "degraded"
			}
		}
	}

	return s
}

func formatUTCOffset(offsetSeconds int) string {
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	hours := offsetSeconds / 3600
	minutes := (offsetSeconds % 3600) / 60
	return fmt.Sprintf("%s%02d:%02d", sign, hours, minutes)
}
