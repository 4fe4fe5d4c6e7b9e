/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Session statistics for the crashprobe engine. Counters are updated from
several workers at once and use atomic operations throughout.
*/

package core

import (
	"sync/atomic"
	"time"
)

// FuzzerStats tracks overall session statistics
type FuzzerStats struct {
	StartTime time.Time

	executions    atomic.Int64
	uniqueCrashes atomic.Int64
	uniqueHangs   atomic.Int64
	imported      atomic.Int64
	execsAtCrash  atomic.Int64
	lastPathUnix  atomic.Int64
	lastCrashUnix atomic.Int64
	lastHangUnix  atomic.Int64
}

// NewFuzzerStats creates stats starting now
func NewFuzzerStats() *FuzzerStats {
	return &FuzzerStats{StartTime: time.Now()}
}

// IncrementExecutions atomically increments the execution counter and returns the new total
func (s *FuzzerStats) IncrementExecutions() int64 {
	return s.executions.Add(1)
}

// RecordCrash counts a unique crash
func (s *FuzzerStats) RecordCrash() {
	s.uniqueCrashes.Add(1)
	s.execsAtCrash.Store(s.executions.Load())
	s.lastCrashUnix.Store(time.Now().Unix())
}

// RecordHang counts a unique hang
func (s *FuzzerStats) RecordHang() {
	s.uniqueHangs.Add(1)
	s.lastHangUnix.Store(time.Now().Unix())
}

// RecordPath notes the time a new path was found
func (s *FuzzerStats) RecordPath() {
	s.lastPathUnix.Store(time.Now().Unix())
}

// RecordImport counts a seed imported while running
func (s *FuzzerStats) RecordImport() {
	s.imported.Add(1)
}

// Executions returns the total number of executions
func (s *FuzzerStats) Executions() int64 { return s.executions.Load() }

// UniqueCrashes returns the number of saved crashes
func (s *FuzzerStats) UniqueCrashes() int64 { return s.uniqueCrashes.Load() }

// UniqueHangs returns the number of saved hangs
func (s *FuzzerStats) UniqueHangs() int64 { return s.uniqueHangs.Load() }

// Imported returns the number of seeds imported while running
func (s *FuzzerStats) Imported() int64 { return s.imported.Load() }

// ExecsSinceCrash returns executions since the last unique crash
func (s *FuzzerStats) ExecsSinceCrash() int64 {
	return s.executions.Load() - s.execsAtCrash.Load()
}

// LastPath returns when the last new path was found, zero if never
func (s *FuzzerStats) LastPath() time.Time { return unixOrZero(s.lastPathUnix.Load()) }

// LastCrash returns when the last unique crash was found, zero if never
func (s *FuzzerStats) LastCrash() time.Time { return unixOrZero(s.lastCrashUnix.Load()) }

// LastHang returns when the last unique hang was found, zero if never
func (s *FuzzerStats) LastHang() time.Time { return unixOrZero(s.lastHangUnix.Load()) }

// ExecutionsPerSecond returns the average execution rate since start
func (s *FuzzerStats) ExecutionsPerSecond() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.executions.Load()) / elapsed
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
