package health

import "strings"

// Snapshot is a runtime health snapshot of the current process.
type Snapshot struct {
	Status     string      `json:"status"`
	Goroutines int         `json:"goroutines"`
	Memory     MemoryInfo  `json:"memory"`
	Runtime    RuntimeInfo `json:"runtime"`
	Time       TimeInfo    `json:"time"`
	Timestamp  string      `json:"timestamp"`
	Bridge     *BridgeInfo `json:"bridge,omitempty"`
	Store      *StoreInfo  `json:"store,omitempty"`
	Sweep      *SweepInfo  `json:"sweep,omitempty"`
}

// MemoryInfo contains memory statistics in MB.
type MemoryInfo struct {
	AllocMB      float64 `json:"allocMB"`
	TotalAllocMB float64 `json:"totalAllocMB"`
	SysMB        float64 `json:"sysMB"`
	NumGC        uint32  `json:"numGC"`
}

// RuntimeInfo contains Go runtime metadata.
type RuntimeInfo struct {
	Version string `json:"version"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	CPUs    int    `json:"cpus"`
}

// TimeInfo contains current process time and timezone diagnostics.
type TimeInfo struct {
	Local     string `json:"local"`
	UTC       string `json:"utc"`
	Timezone  string `json:"timezone"`
	UTCOffset string `json:"utcOffset"`
	Unix      int64  `json:"unix"`
}

// BridgeInfo summarizes correlation state.
type BridgeInfo struct {
	Employees           int  `json:"employees"`
	ConfiguredEmployees int  `json:"configuredEmployees"`
	BoundThreads        int  `json:"boundThreads"`
	PendingToolCalls    int  `json:"pendingToolCalls"`
	StrictIsolation     bool `json:"strictIsolation"`
}

// StoreInfo reports record store reachability.
type StoreInfo struct {
	Path      string `json:"path,omitempty"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// SweepInfo describes the expiry sweep schedule.
type SweepInfo struct {
	Schedule      string `json:"schedule"`
	MaxPendingAge string `json:"maxPendingAge"`
	NextRun       string `json:"nextRun,omitempty"`
}

// Options controls optional health details. Nil sources are omitted.
type Options struct {
	Bridge    *BridgeInfo
	StorePath string
	StorePing func() error
	Sweep     *SweepInfo
}

func (o Options) normalize() Options {
	o.StorePath = strings.TrimSpace(o.StorePath)
	return o
}
