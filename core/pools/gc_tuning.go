package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters
type GCConfig struct {
	// GOGC sets the garbage collection target percentage
	// Default is 100. Lower values = more frequent GC but less memory
	GOGC int

	// MemoryLimit sets soft memory limit in bytes
	// 0 = no limit
	MemoryLimit int64
}

// DefaultGCConfig returns GC settings tuned for connection churn: buffers
// and slab slots recycle outside the GC, so collections can run rarely.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		GOGC:        200, // Less frequent GC (default 100)
		MemoryLimit: 0,   // No hard limit
	}
}

// ApplyGCConfig applies GC tuning to reduce GC pressure
func ApplyGCConfig(cfg GCConfig) {
	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}

	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	LastPause    time.Duration `json:"last_pause_ns"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	TotalAlloc   uint64        `json:"total_alloc"`
	Sys          uint64        `json:"sys"`
	NumGoroutine int           `json:"num_goroutine"`
}

// ReadGCStats returns current GC statistics
func ReadGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		HeapAlloc:    ms.Alloc,
		TotalAlloc:   ms.TotalAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}

	return stats
}
