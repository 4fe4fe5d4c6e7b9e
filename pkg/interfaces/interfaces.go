/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Shared types and interfaces for crashprobe. Defines test cases, execution
results and the fuzzer configuration used across packages, and keeps the executor
and mutator contracts in one place to break import cycles.
*/

package interfaces

import (
	"context"
	"time"
)

// TestCase represents a single input for the target
type TestCase struct {
	ID         string
	Data       []byte
	ParentID   string
	Generation int
	CreatedAt  time.Time
	Executions int64
	ExecTime   time.Duration // Duration of the run that admitted it to the corpus
	Favored    bool
	Metadata   map[string]interface{}
}

// Clone returns a deep copy of the test case data and metadata
func (tc *TestCase) Clone() *TestCase {
	c := *tc
	c.Data = append([]byte(nil), tc.Data...)
	c.Metadata = make(map[string]interface{}, len(tc.Metadata))
	for k, v := range tc.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// ExecutionResult represents the result of executing a test case
type ExecutionResult struct {
	TestCaseID string
	ExitCode   int
	Signal     int
	Duration   time.Duration
	Stderr     []byte
	Status     ExecutionStatus
	Reason     string // sig<N>, exit<N> or timeout; empty for clean runs
	Bitmap     []byte // Coverage map snapshot, nil when no map is attached
	BitmapHash string
}

// ExecutionStatus represents the status of an execution
type ExecutionStatus int

const (
	StatusSuccess ExecutionStatus = iota
	StatusError
	StatusCrash
	StatusHang
)

// String returns the lowercase name of the status
func (s ExecutionStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCrash:
		return "crash"
	case StatusHang:
		return "hang"
	default:
		return "unknown"
	}
}

// Input modes for delivering test cases to the target
const (
	InputModeStdin = "stdin"
	InputModeFile  = "file"
)

// FuzzerConfig represents the configuration for a fuzzing session
type FuzzerConfig struct {
	TargetPath string
	TargetArgs []string // May contain "@@" as the input file placeholder
	TargetEnv  []string
	InputMode  string

	Workers        int
	ExecTimeout    time.Duration // Per-execution limit; exceeding it is a hang
	SessionTimeout time.Duration // Whole-session limit

	SeedDir        string
	WatchSeeds     bool
	OutputDir      string
	DictionaryPath string

	MapSize        int
	UseSharedMem   bool
	CrashExitCodes []int
	MaxCrashes     int // Zero means unlimited

	LogLevel string
}

// Executor runs test cases against a target
type Executor interface {
	Initialize(config *FuzzerConfig) error
	Execute(ctx context.Context, testCase *TestCase) (*ExecutionResult, error)
	Cleanup() error
}

// Mutator derives a new test case from an existing one
type Mutator interface {
	Mutate(testCase *TestCase) (*TestCase, error)
	Name() string
	Description() string
}
