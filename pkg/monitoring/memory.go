/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: memory.go
Description: Memory usage sampling for crashprobe sessions. Reports the fuzzer's own
heap and goroutine counts and the peak resident size reached by any target child,
which ends up in fuzzer_stats as peak_rss_mb.
*/

package monitoring

import (
	"runtime"
	"time"
)

// MemorySnapshot represents a memory usage sample
type MemorySnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	HeapAlloc    uint64    `json:"heap_alloc"`
	HeapInuse    uint64    `json:"heap_inuse"`
	NumGC        uint32    `json:"num_gc"`
	Goroutines   int       `json:"goroutines"`
	ChildPeakRSS int64     `json:"child_peak_rss"` // bytes, 0 when unknown
}

// PeakRSSMB returns the child peak resident size in whole megabytes
func (m MemorySnapshot) PeakRSSMB() int64 {
	return m.ChildPeakRSS >> 20
}

// HeapMB returns the fuzzer heap in megabytes
func (m MemorySnapshot) HeapMB() float64 {
	return float64(m.HeapAlloc) / (1 << 20)
}

// SampleMemory takes a memory usage snapshot
func SampleMemory() MemorySnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemorySnapshot{
		Timestamp:    time.Now(),
		HeapAlloc:    m.HeapAlloc,
		HeapInuse:    m.HeapInuse,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		ChildPeakRSS: childPeakRSS(),
	}
}
