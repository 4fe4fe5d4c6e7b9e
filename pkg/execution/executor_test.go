//go:build linux

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: executor_test.go
Description: Tests for the process executor. The test binary doubles as the target: with
the helper variable set it behaves as the scanner, a hanging program, a program killed
by a signal or a file reader, depending on the requested mode.
*/

package execution

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/kleascm/crashprobe/pkg/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "CRASHPROBE_EXEC_HELPER"

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "scan":
		os.Exit(target.Scan(os.Stdin, os.Stderr))
	case "file":
		f, err := os.Open(os.Args[len(os.Args)-1])
		if err != nil {
			os.Exit(2)
		}
		os.Exit(target.Scan(f, os.Stderr))
	case "flagfile":
		f, err := os.Open(strings.TrimPrefix(os.Args[len(os.Args)-1], "--input="))
		if err != nil {
			os.Exit(2)
		}
		os.Exit(target.Scan(f, os.Stderr))
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "kill":
		syscall.Kill(os.Getpid(), syscall.SIGKILL)
		time.Sleep(time.Second)
		os.Exit(0)
	}
	os.Exit(3)
}

func helperConfig(mode, inputMode string) *interfaces.FuzzerConfig {
	return &interfaces.FuzzerConfig{
		TargetPath:     os.Args[0],
		TargetArgs:     []string{"-test.run=^$"},
		TargetEnv:      []string{helperEnv + "=" + mode},
		InputMode:      inputMode,
		ExecTimeout:    2 * time.Second,
		CrashExitCodes: []int{target.ExitTriggered},
	}
}

func run(t *testing.T, cfg *interfaces.FuzzerConfig, data string) *interfaces.ExecutionResult {
	t.Helper()
	e := NewProcessExecutor(0, coverage.NewMemoryMap(64))
	require.NoError(t, e.Initialize(cfg))
	t.Cleanup(func() { e.Cleanup() })

	res, err := e.Execute(context.Background(), &interfaces.TestCase{ID: "tc", Data: []byte(data)})
	require.NoError(t, err)
	return res
}

func TestProcessExecutorStdin(t *testing.T) {
	cfg := helperConfig("scan", interfaces.InputModeStdin)

	res := run(t, cfg, "crash")
	assert.Equal(t, interfaces.StatusCrash, res.Status)
	assert.Equal(t, "exit66", res.Reason)
	assert.Equal(t, target.ExitTriggered, res.ExitCode)
	assert.Equal(t, target.TriggerMessage, string(res.Stderr))
	assert.Len(t, res.Bitmap, 64)
	assert.Equal(t, coverage.Hash(res.Bitmap), res.BitmapHash)
	assert.Equal(t, "tc", res.TestCaseID)

	res = run(t, cfg, "hello")
	assert.Equal(t, interfaces.StatusSuccess, res.Status)
	assert.Empty(t, res.Reason)
	assert.Zero(t, res.ExitCode)

	res = run(t, cfg, "")
	assert.Equal(t, interfaces.StatusSuccess, res.Status)
	assert.Equal(t, target.ExitReadError, res.ExitCode)
}

func TestProcessExecutorFile(t *testing.T) {
	res := run(t, helperConfig("file", interfaces.InputModeFile), "crash!")
	assert.Equal(t, interfaces.StatusCrash, res.Status)
	assert.Equal(t, "exit66", res.Reason)
}

func TestProcessExecutorEmbeddedPlaceholder(t *testing.T) {
	for _, mode := range []string{interfaces.InputModeFile, interfaces.InputModeStdin} {
		cfg := helperConfig("flagfile", mode)
		cfg.TargetArgs = append(cfg.TargetArgs, "--input=@@")

		res := run(t, cfg, "crash!")
		assert.Equal(t, interfaces.StatusCrash, res.Status, mode)
		assert.Equal(t, "exit66", res.Reason, mode)
	}
}

func TestProcessExecutorHang(t *testing.T) {
	cfg := helperConfig("hang", interfaces.InputModeStdin)
	cfg.ExecTimeout = 200 * time.Millisecond

	start := time.Now()
	res := run(t, cfg, "x")
	assert.Equal(t, interfaces.StatusHang, res.Status)
	assert.Equal(t, "timeout", res.Reason)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessExecutorSignal(t *testing.T) {
	res := run(t, helperConfig("kill", interfaces.InputModeStdin), "x")
	assert.Equal(t, interfaces.StatusCrash, res.Status)
	assert.Equal(t, int(syscall.SIGKILL), res.Signal)
	assert.Equal(t, fmt.Sprintf("sig%d", syscall.SIGKILL), res.Reason)
}

func TestProcessExecutorCancelled(t *testing.T) {
	e := NewProcessExecutor(0, nil)
	require.NoError(t, e.Initialize(helperConfig("hang", interfaces.InputModeStdin)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Execute(ctx, &interfaces.TestCase{Data: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInitializeErrors(t *testing.T) {
	e := NewProcessExecutor(0, nil)
	assert.Error(t, e.Initialize(nil))
	assert.Error(t, e.Initialize(&interfaces.FuzzerConfig{}))
	assert.Error(t, e.Initialize(&interfaces.FuzzerConfig{TargetPath: "/nonexistent/crashprobe-target"}))
}
