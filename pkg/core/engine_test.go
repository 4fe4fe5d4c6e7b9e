/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine_test.go
Description: End-to-end engine tests against the in-process scanner target. The engine must
find the trigger, lay out the AFL output directory and leave no goroutines behind.
*/

package core

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kleascm/crashprobe/pkg/execution"
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/kleascm/crashprobe/pkg/monitoring"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func scannerFactory(int) (interfaces.Executor, error) {
	return execution.NewInProcessExecutor(execution.ScannerTarget), nil
}

type recordingReporter struct {
	mu      sync.Mutex
	paths   int
	crashes []string
}

func (r *recordingReporter) OnNewPath(*interfaces.TestCase, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths++
}

func (r *recordingReporter) OnCrash(_ *interfaces.ExecutionResult, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crashes = append(r.crashes, path)
}

func engineConfig(t *testing.T) *interfaces.FuzzerConfig {
	t.Helper()
	dir := t.TempDir()
	seeds := filepath.Join(dir, "seeds")
	require.NoError(t, os.Mkdir(seeds, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(seeds, "seed1"), []byte("xxxxx"), 0644))

	dict := filepath.Join(dir, "crash.dict")
	require.NoError(t, os.WriteFile(dict, []byte("kw=\"crash\"\n"), 0644))

	return &interfaces.FuzzerConfig{
		TargetPath:     "/usr/local/bin/scanner",
		InputMode:      interfaces.InputModeStdin,
		Workers:        2,
		SessionTimeout: 60 * time.Second,
		SeedDir:        seeds,
		OutputDir:      filepath.Join(dir, "out"),
		DictionaryPath: dict,
		MaxCrashes:     1,
	}
}

func TestEngineFindsCrash(t *testing.T) {
	cfg := engineConfig(t)
	engine := NewEngine(cfg, quietLogger())
	engine.SetExecutorFactory(scannerFactory)
	reporter := &recordingReporter{}
	engine.AddReporter(reporter)
	require.NoError(t, engine.Initialize())

	require.NoError(t, engine.Run(context.Background()))

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.UniqueCrashes())
	assert.Positive(t, stats.Executions())
	assert.Equal(t, []int{66}, cfg.CrashExitCodes)

	layout := engine.Layout()
	crashes, err := os.ReadDir(layout.Crashes)
	require.NoError(t, err)
	require.Len(t, crashes, 1)
	assert.True(t, strings.Contains(crashes[0].Name(), ",sig:exit66,src:000000,op:havoc,rep:1,hash:"))

	data, err := os.ReadFile(filepath.Join(layout.Crashes, crashes[0].Name()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "crash"))

	reporter.mu.Lock()
	assert.Len(t, reporter.crashes, 1)
	assert.Positive(t, reporter.paths)
	reporter.mu.Unlock()

	queue, err := os.ReadDir(layout.Queue)
	require.NoError(t, err)
	assert.NotEmpty(t, queue)
	assert.Greater(t, engine.Corpus().Size(), 1)

	csv, err := os.ReadFile(layout.StatsCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csv), monitoring.CSVHeader))
	assert.Equal(t, filepath.Join(cfg.OutputDir, "stats_scanner.csv"), layout.StatsCSV)

	stat, err := os.ReadFile(layout.FuzzerStats)
	require.NoError(t, err)
	assert.Contains(t, string(stat), "unique_crashes    : 1\n")

	metrics, err := os.ReadDir(filepath.Join(layout.TargetDir, "metrics", "session"))
	require.NoError(t, err)
	assert.Len(t, metrics, 1)

	summary := engine.Summary()
	assert.Equal(t, "scanner", summary.Target)
	assert.Equal(t, int64(1), summary.UniqueCrashes)
}

func TestEngineStopsOnContext(t *testing.T) {
	cfg := engineConfig(t)
	cfg.DictionaryPath = ""
	cfg.SeedDir = ""
	cfg.MaxCrashes = 0

	engine := NewEngine(cfg, quietLogger())
	engine.SetExecutorFactory(scannerFactory)
	require.NoError(t, engine.Initialize())
	assert.Equal(t, "_Z1fv", string(engine.Corpus().Get(0).Data))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, engine.Run(ctx))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Positive(t, engine.Stats().Executions())
}

func TestEngineSessionTimeout(t *testing.T) {
	cfg := engineConfig(t)
	cfg.MaxCrashes = 0
	cfg.SessionTimeout = 200 * time.Millisecond

	engine := NewEngine(cfg, quietLogger())
	engine.SetExecutorFactory(scannerFactory)
	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.Run(context.Background()))
}

func TestEngineMissingSeedDir(t *testing.T) {
	cfg := engineConfig(t)
	cfg.SeedDir = filepath.Join(t.TempDir(), "nope")

	engine := NewEngine(cfg, quietLogger())
	require.NoError(t, engine.Initialize())
	assert.Equal(t, 1, engine.Corpus().Size())
}

func TestEngineErrors(t *testing.T) {
	assert.Error(t, NewEngine(nil, quietLogger()).Initialize())

	cfg := engineConfig(t)
	cfg.DictionaryPath = filepath.Join(t.TempDir(), "missing.dict")
	assert.Error(t, NewEngine(cfg, quietLogger()).Initialize())

	assert.Error(t, NewEngine(engineConfig(t), quietLogger()).Run(context.Background()))
}

func TestSeedImporterPartialWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing"), []byte("old"), 0644))

	si, err := NewSeedImporter(dir, quietLogger())
	require.NoError(t, err)
	defer si.watcher.Close()

	var got []string
	onSeed := func(data []byte, name string) { got = append(got, name+"="+string(data)) }

	seed := filepath.Join(dir, "slow")
	require.NoError(t, os.WriteFile(seed, []byte("cr"), 0644))
	si.handle(seed, onSeed)
	require.NoError(t, os.WriteFile(seed, []byte("crash!"), 0644))
	si.handle(seed, onSeed)
	si.handle(seed, onSeed)
	si.handle(filepath.Join(dir, "existing"), onSeed)

	assert.Equal(t, []string{"slow=cr", "slow=crash!"}, got)
}

func TestApplyDefaultsEmptyExitCodes(t *testing.T) {
	config := &interfaces.FuzzerConfig{CrashExitCodes: []int{}}
	applyDefaults(config)
	assert.Equal(t, []int{DefaultCrashExitCode}, config.CrashExitCodes)

	config = &interfaces.FuzzerConfig{CrashExitCodes: []int{1}}
	applyDefaults(config)
	assert.Equal(t, []int{1}, config.CrashExitCodes)
}

func TestSeedImporter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing"), []byte("old"), 0644))

	si, err := NewSeedImporter(dir, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- si.Run(ctx, func(data []byte, name string) { got <- name + "=" + string(data) })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh"), []byte("new"), 0644))
	select {
	case v := <-got:
		assert.Equal(t, "fresh=new", v)
	case <-time.After(5 * time.Second):
		t.Fatal("seed was not imported")
	}

	cancel()
	require.NoError(t, <-done)
}
