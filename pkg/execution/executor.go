/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: executor.go
Description: Process executor for crashprobe. Runs the target once per test case with the
input on stdin or in a per-worker file, enforces the execution timeout, captures stderr,
snapshots the coverage map and classifies the run as clean, crash or hang.
*/

package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// InputPlaceholder in target arguments is replaced with the input file path
const InputPlaceholder = "@@"

// DefaultExecTimeout applies when the config leaves ExecTimeout unset
const DefaultExecTimeout = 100 * time.Millisecond

// maxStderr bounds how much target stderr is kept per execution
const maxStderr = 4096

// ProcessExecutor implements the Executor interface for external targets
type ProcessExecutor struct {
	workerID   int
	cov        coverage.Map
	config     *interfaces.FuzzerConfig
	args       []string
	inputPath  string
	crashCodes map[int]struct{}
}

// NewProcessExecutor creates an executor for one worker. cov may be nil when
// the target is run without a coverage map.
func NewProcessExecutor(workerID int, cov coverage.Map) *ProcessExecutor {
	return &ProcessExecutor{workerID: workerID, cov: cov}
}

// Initialize resolves the target and prepares the argument list
func (e *ProcessExecutor) Initialize(config *interfaces.FuzzerConfig) error {
	if config == nil {
		return errors.New("executor config is nil")
	}
	if config.TargetPath == "" {
		return errors.New("no target specified")
	}
	if _, err := exec.LookPath(config.TargetPath); err != nil {
		return fmt.Errorf("target %q is not executable: %w", config.TargetPath, err)
	}

	e.config = config
	e.crashCodes = crashCodeSet(config.CrashExitCodes)

	// stdin targets still get the file when an argument names it
	if config.InputMode == interfaces.InputModeFile || HasPlaceholder(config.TargetArgs) {
		e.inputPath = InputFilePath(filepath.Base(config.TargetPath), e.workerID)
		e.args = SubstituteInput(config.TargetArgs, e.inputPath)
	} else {
		e.args = append([]string(nil), config.TargetArgs...)
	}
	return nil
}

// Execute runs a test case and returns the execution result. Crashes and
// hangs are reported through the result; an error means the target could not
// be run at all or ctx was cancelled.
func (e *ProcessExecutor) Execute(ctx context.Context, testCase *interfaces.TestCase) (*interfaces.ExecutionResult, error) {
	if e.config == nil {
		return nil, errors.New("executor not initialized")
	}
	if e.cov != nil {
		if err := e.cov.Reset(); err != nil {
			return nil, fmt.Errorf("failed to reset coverage map: %w", err)
		}
	}

	timeout := e.config.ExecTimeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.config.TargetPath, e.args...)
	cmd.WaitDelay = timeout
	cmd.Stdout = io.Discard
	stderr := &limitedBuffer{limit: maxStderr}
	cmd.Stderr = stderr
	cmd.Env = e.environ()

	if e.inputPath != "" {
		if err := os.WriteFile(e.inputPath, testCase.Data, 0600); err != nil {
			return nil, fmt.Errorf("failed to write input file: %w", err)
		}
	}
	if e.config.InputMode == interfaces.InputModeStdin {
		cmd.Stdin = bytes.NewReader(testCase.Data)
	}

	start := time.Now()
	runErr := cmd.Run()
	result := &interfaces.ExecutionResult{
		TestCaseID: testCase.ID,
		Duration:   time.Since(start),
		Status:     interfaces.StatusSuccess,
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.Status = interfaces.StatusHang
		result.Reason = "timeout"
		result.ExitCode = -1
	} else if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to run target: %w", runErr)
		}
	}
	if result.Status != interfaces.StatusHang && cmd.ProcessState != nil {
		e.classify(cmd.ProcessState, result)
	}

	result.Stderr = stderr.Bytes()
	if e.cov != nil {
		bitmap, err := e.cov.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("failed to read coverage map: %w", err)
		}
		result.Bitmap = bitmap
		result.BitmapHash = coverage.Hash(bitmap)
	}
	return result, nil
}

// classify sets status and reason from the exit state of the target
func (e *ProcessExecutor) classify(state *os.ProcessState, result *interfaces.ExecutionResult) {
	result.ExitCode = state.ExitCode()
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		result.Signal = int(ws.Signal())
		result.Status = interfaces.StatusCrash
		result.Reason = fmt.Sprintf("sig%d", result.Signal)
		return
	}
	if _, ok := e.crashCodes[result.ExitCode]; ok {
		result.Status = interfaces.StatusCrash
		result.Reason = fmt.Sprintf("exit%d", result.ExitCode)
	}
}

func (e *ProcessExecutor) environ() []string {
	env := append(os.Environ(), e.config.TargetEnv...)
	if kv := coverage.Env(e.cov); kv != "" {
		env = append(env, kv)
	}
	return env
}

// Cleanup removes the input file and releases the coverage map
func (e *ProcessExecutor) Cleanup() error {
	if e.inputPath != "" {
		if err := os.Remove(e.inputPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove input file: %w", err)
		}
	}
	if e.cov != nil {
		if err := e.cov.Close(); err != nil {
			return fmt.Errorf("failed to release coverage map: %w", err)
		}
		e.cov = nil
	}
	return nil
}

// InputFilePath picks the per-worker input file, preferring tmpfs
func InputFilePath(targetName string, workerID int) string {
	dir := os.TempDir()
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		dir = "/dev/shm"
	}
	return filepath.Join(dir, fmt.Sprintf(".cur_input_%s_%d_%d", targetName, os.Getpid(), workerID))
}

// HasPlaceholder reports whether any argument contains "@@"
func HasPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, InputPlaceholder) {
			return true
		}
	}
	return false
}

// SubstituteInput replaces "@@" inside every argument with path, or appends
// path when no argument contains a placeholder
func SubstituteInput(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	for _, a := range args {
		out = append(out, strings.ReplaceAll(a, InputPlaceholder, path))
	}
	if !HasPlaceholder(args) {
		out = append(out, path)
	}
	return out
}

// ParseCommand splits a target command line into the program and its
// arguments using shell quoting rules
func ParseCommand(command string) (string, []string, error) {
	parts, err := shlex.Split(command)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("empty target command")
	}
	return parts[0], parts[1:], nil
}

func crashCodeSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// limitedBuffer keeps the first limit bytes written and discards the rest
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	if b.buf.Len() == 0 {
		return nil
	}
	return append([]byte(nil), b.buf.Bytes()...)
}
