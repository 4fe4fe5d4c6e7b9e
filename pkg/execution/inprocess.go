/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: inprocess.go
Description: In-process executor. Runs a Go target function directly against an in-memory
coverage map, with the same classification rules as the process executor. Used by the
check command and by tests that need a deterministic target without spawning processes.
*/

package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/kleascm/crashprobe/pkg/target"
)

// TargetFunc is an in-process target. It consumes input, may write
// diagnostics to stderr, records edges on cov and returns an exit code.
type TargetFunc func(input []byte, stderr io.Writer, cov *coverage.MemoryMap) int

// Edge ids recorded by ScannerTarget
const (
	EdgeScanEntry   = 0x0100
	EdgeScanEmpty   = 0x0101
	EdgeScanMatch   = 0x0200 // plus the matched offset
	EdgeScanTrigger = 0x0300
)

// ScannerTarget runs the input scanner and records one edge per branch it
// takes, the way an instrumented build of the target would
func ScannerTarget(input []byte, stderr io.Writer, cov *coverage.MemoryMap) int {
	cov.Hit(EdgeScanEntry)
	if len(input) == 0 {
		cov.Hit(EdgeScanEmpty)
	}
	for i := 0; i < len(target.Pattern) && i < len(input) && i < target.BufferSize; i++ {
		if input[i] != target.Pattern[i] {
			break
		}
		cov.Hit(EdgeScanMatch + i)
	}

	code := target.Scan(bytes.NewReader(input), stderr)
	if code == target.ExitTriggered {
		cov.Hit(EdgeScanTrigger)
	}
	return code
}

// InProcessExecutor implements the Executor interface for a TargetFunc
type InProcessExecutor struct {
	fn         TargetFunc
	cov        *coverage.MemoryMap
	crashCodes map[int]struct{}
}

// NewInProcessExecutor wraps fn as an executor
func NewInProcessExecutor(fn TargetFunc) *InProcessExecutor {
	return &InProcessExecutor{fn: fn}
}

// Initialize allocates the coverage map and crash exit codes
func (e *InProcessExecutor) Initialize(config *interfaces.FuzzerConfig) error {
	if e.fn == nil {
		return errors.New("no target function")
	}
	size := coverage.MapSize
	var codes []int
	if config != nil {
		if config.MapSize > 0 {
			size = config.MapSize
		}
		codes = config.CrashExitCodes
	}
	e.cov = coverage.NewMemoryMap(size)
	e.crashCodes = crashCodeSet(codes)
	return nil
}

// Execute runs the target function on the test case data
func (e *InProcessExecutor) Execute(ctx context.Context, testCase *interfaces.TestCase) (*interfaces.ExecutionResult, error) {
	if e.cov == nil {
		return nil, errors.New("executor not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.cov.Reset(); err != nil {
		return nil, err
	}

	var stderr limitedBuffer
	stderr.limit = maxStderr

	start := time.Now()
	code := e.fn(testCase.Data, &stderr, e.cov)
	result := &interfaces.ExecutionResult{
		TestCaseID: testCase.ID,
		ExitCode:   code,
		Duration:   time.Since(start),
		Status:     interfaces.StatusSuccess,
		Stderr:     stderr.Bytes(),
	}
	if _, ok := e.crashCodes[code]; ok {
		result.Status = interfaces.StatusCrash
		result.Reason = fmt.Sprintf("exit%d", code)
	}

	bitmap, err := e.cov.Snapshot()
	if err != nil {
		return nil, err
	}
	result.Bitmap = bitmap
	result.BitmapHash = coverage.Hash(bitmap)
	return result, nil
}

// Cleanup is a no-op
func (e *InProcessExecutor) Cleanup() error { return nil }
