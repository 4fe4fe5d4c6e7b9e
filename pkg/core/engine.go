/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Main fuzzer engine for crashprobe. Owns the corpus, scheduler, global
coverage and crash store, runs one worker per configured executor through an errgroup,
and keeps the AFL output directory and statistics files current until the session ends.
*/

package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/crashprobe/pkg/analysis"
	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/kleascm/crashprobe/pkg/execution"
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/kleascm/crashprobe/pkg/monitoring"
	"github.com/kleascm/crashprobe/pkg/strategies"
	"github.com/kleascm/crashprobe/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Version is reported in session metrics
const Version = "1.0.0"

// Engine defaults
const (
	DefaultSessionTimeout = 24 * time.Hour
	DefaultCrashExitCode  = 66
	heartbeatInterval     = time.Second
)

// ExecutorFactory creates the executor used by one worker
type ExecutorFactory func(workerID int) (interfaces.Executor, error)

// ProcessExecutorFactory returns a factory of process executors, each with
// its own coverage map. When shared memory is unavailable the executors run
// without coverage.
func ProcessExecutorFactory(config *interfaces.FuzzerConfig, logger *logrus.Logger) ExecutorFactory {
	return func(workerID int) (interfaces.Executor, error) {
		if !config.UseSharedMem {
			return execution.NewProcessExecutor(workerID, nil), nil
		}
		shm, err := coverage.NewSharedMemory(config.MapSize)
		if errors.Is(err, coverage.ErrUnsupported) {
			logger.Warn("Shared memory coverage unavailable, fuzzing without feedback")
			return execution.NewProcessExecutor(workerID, nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", workerID, err)
		}
		return execution.NewProcessExecutor(workerID, shm), nil
	}
}

// SessionSummary is written to the metrics directory when a session ends
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	Target        string    `json:"target"`
	StartTime     time.Time `json:"start_time"`
	Duration      string    `json:"duration"`
	Executions    int64     `json:"executions"`
	ExecsPerSec   float64   `json:"execs_per_sec"`
	Paths         int       `json:"paths_total"`
	Favored       int       `json:"paths_favored"`
	Imported      int64     `json:"paths_imported"`
	CoveredEdges  int       `json:"covered_edges"`
	UniqueCrashes int64     `json:"unique_crashes"`
	UniqueHangs   int64     `json:"unique_hangs"`
}

// Engine runs a fuzzing session
type Engine struct {
	config *interfaces.FuzzerConfig
	logger *logrus.Logger

	sessionID   string
	stats       *FuzzerStats
	corpus      *Corpus
	scheduler   *Scheduler
	tracker     *coverage.Tracker
	dictionary  strategies.Dictionary
	crashes     *analysis.CrashStore
	layout      monitoring.Layout
	statsWriter *monitoring.StatsWriter
	commandLine string

	newExecutor ExecutorFactory
	reporters   []Reporter

	// pathMu serializes edge merging with corpus admission
	pathMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewEngine creates a new fuzzer engine instance
func NewEngine(config *interfaces.FuzzerConfig, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	corpus := NewCorpus()
	e := &Engine{
		config:    config,
		logger:    logger,
		sessionID: uuid.New().String(),
		stats:     NewFuzzerStats(),
		corpus:    corpus,
		scheduler: NewScheduler(corpus),
		tracker:   coverage.NewTracker(),
	}
	e.newExecutor = ProcessExecutorFactory(config, logger)
	return e
}

// SetExecutorFactory replaces the default process executor factory
func (e *Engine) SetExecutorFactory(factory ExecutorFactory) {
	e.newExecutor = factory
}

// AddReporter registers a Reporter for engine events
func (e *Engine) AddReporter(reporter Reporter) {
	e.reporters = append(e.reporters, reporter)
}

// Initialize applies defaults, creates the output layout and loads the
// dictionary and seeds
func (e *Engine) Initialize() error {
	if e.config == nil {
		return errors.New("engine config is nil")
	}
	applyDefaults(e.config)

	targetName := filepath.Base(e.config.TargetPath)
	if targetName == "." || targetName == string(filepath.Separator) {
		return fmt.Errorf("invalid target path %q", e.config.TargetPath)
	}
	e.layout = monitoring.NewLayout(e.config.OutputDir, targetName)
	if err := e.layout.Create(); err != nil {
		return err
	}

	if e.config.DictionaryPath != "" {
		dict, err := strategies.LoadDictionary(e.config.DictionaryPath)
		if err != nil {
			return err
		}
		e.dictionary = dict
		e.logger.WithField("tokens", len(dict)).Info("Loaded dictionary")
	}

	if err := e.loadSeeds(); err != nil {
		return err
	}

	e.commandLine = strings.Join(append([]string{e.config.TargetPath}, e.config.TargetArgs...), " ")
	writer, err := monitoring.NewStatsWriter(e.layout, e.commandLine)
	if err != nil {
		return err
	}
	e.statsWriter = writer
	e.crashes = analysis.NewCrashStore(e.layout.Crashes, e.layout.Hangs, e.logger)

	e.logger.WithFields(logrus.Fields{
		"session": e.sessionID,
		"target":  targetName,
		"mode":    e.config.InputMode,
		"workers": e.config.Workers,
		"output":  e.layout.TargetDir,
	}).Info("Fuzzer engine initialized")
	return nil
}

func applyDefaults(config *interfaces.FuzzerConfig) {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.ExecTimeout <= 0 {
		config.ExecTimeout = execution.DefaultExecTimeout
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = DefaultSessionTimeout
	}
	if config.MapSize <= 0 {
		config.MapSize = coverage.MapSize
	}
	if config.InputMode == "" {
		config.InputMode = interfaces.InputModeFile
	}
	if config.OutputDir == "" {
		config.OutputDir = "out"
	}
	if len(config.CrashExitCodes) == 0 {
		config.CrashExitCodes = []int{DefaultCrashExitCode}
	}
}

func (e *Engine) loadSeeds() error {
	if e.config.SeedDir != "" {
		n, err := e.corpus.LoadDir(e.config.SeedDir)
		switch {
		case errors.Is(err, os.ErrNotExist):
			e.logger.Warnf("Seed directory %s does not exist", e.config.SeedDir)
		case err != nil:
			return err
		default:
			e.logger.Infof("Loaded %d seeds from %s", n, e.config.SeedDir)
		}
	}
	if e.corpus.Size() == 0 {
		e.corpus.Add(NewSeed(append([]byte(nil), DefaultSeed...), "default"))
		e.logger.Info("No seeds available, using default seed")
	}
	return nil
}

// Run fuzzes until ctx is cancelled, the session timeout expires or the
// crash limit is reached
func (e *Engine) Run(ctx context.Context) error {
	if e.statsWriter == nil {
		return errors.New("engine not initialized")
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, e.config.SessionTimeout)
	defer cancelTimeout()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	executors := make([]interfaces.Executor, 0, e.config.Workers)
	for i := 0; i < e.config.Workers; i++ {
		executor, err := e.newExecutor(i)
		if err == nil {
			err = executor.Initialize(e.config)
		}
		if err != nil {
			for _, ex := range executors {
				ex.Cleanup()
			}
			return fmt.Errorf("failed to create executor: %w", err)
		}
		executors = append(executors, executor)
	}

	e.logger.Infof("Starting %d workers", len(executors))
	g, gctx := errgroup.WithContext(ctx)
	for i, executor := range executors {
		worker := NewWorker(i, e, executor)
		g.Go(func() error { return worker.Run(gctx) })
	}
	g.Go(func() error { return e.heartbeat(gctx) })

	if e.config.WatchSeeds && e.config.SeedDir != "" {
		importer, err := NewSeedImporter(e.config.SeedDir, e.logger)
		if err != nil {
			e.logger.Warnf("Seed watching disabled: %v", err)
		} else {
			g.Go(func() error { return importer.Run(gctx, e.importSeed) })
		}
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	e.writeStats()
	if path, werr := utils.WriteMetricsResult(filepath.Join(e.layout.TargetDir, "metrics"), "session", Version, e.Summary()); werr != nil {
		e.logger.Warnf("Failed to write session metrics: %v", werr)
	} else {
		e.logger.WithField("file", path).Debug("Session metrics written")
	}

	e.logger.WithFields(logrus.Fields{
		"executions": e.stats.Executions(),
		"paths":      e.corpus.Size(),
		"coverage":   e.tracker.Count(),
		"crashes":    e.stats.UniqueCrashes(),
		"hangs":      e.stats.UniqueHangs(),
	}).Info("Fuzzing session finished")
	return err
}

// Stop ends a running session
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// process runs one candidate and folds the result into the session
func (e *Engine) process(ctx context.Context, executor interfaces.Executor, tc *interfaces.TestCase) error {
	result, err := executor.Execute(ctx, tc)
	if err != nil {
		return err
	}
	tc.Executions++
	tc.ExecTime = result.Duration
	execs := e.stats.IncrementExecutions()

	if result.Status == interfaces.StatusCrash || result.Status == interfaces.StatusHang {
		e.recordFinding(tc, result, execs)
	}

	if result.Bitmap == nil {
		return nil
	}
	edges := coverage.Edges(result.Bitmap)

	e.pathMu.Lock()
	if e.tracker.Merge(edges) == 0 {
		e.pathMu.Unlock()
		return nil
	}
	idx := e.corpus.Add(tc)
	e.corpus.UpdateScore(idx, edges)
	cov := e.tracker.Count()
	e.pathMu.Unlock()

	e.stats.RecordPath()
	if _, err := SaveEntry(e.layout.Queue, idx, tc.Data); err != nil {
		e.logger.Warnf("Failed to save queue entry: %v", err)
	}
	for _, r := range e.reporters {
		r.OnNewPath(tc, cov)
	}
	e.writeStats()
	return nil
}

func (e *Engine) recordFinding(tc *interfaces.TestCase, result *interfaces.ExecutionResult, execs int64) {
	rec, err := e.crashes.Save(tc.Data, result, execs)
	if err != nil {
		e.logger.Errorf("Failed to save finding: %v", err)
		return
	}
	if rec == nil {
		return
	}

	if result.Status == interfaces.StatusHang {
		e.stats.RecordHang()
	} else {
		e.stats.RecordCrash()
	}
	for _, r := range e.reporters {
		r.OnCrash(result, rec.Path)
	}

	if e.config.MaxCrashes > 0 && e.stats.UniqueCrashes() >= int64(e.config.MaxCrashes) {
		e.logger.Infof("Reached %d unique crashes, stopping", e.config.MaxCrashes)
		e.Stop()
	}
}

func (e *Engine) importSeed(data []byte, name string) {
	tc := NewSeed(data, name)
	tc.Metadata["imported"] = true
	e.corpus.Add(tc)
	e.stats.RecordImport()
}

// heartbeat refreshes the statistics files once per interval
func (e *Engine) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.writeStats()
			e.logger.WithFields(logrus.Fields{
				"execs":   e.stats.Executions(),
				"map":     e.tracker.Count(),
				"speed":   fmt.Sprintf("%.0f/s", e.stats.ExecutionsPerSecond()),
				"crashes": e.stats.UniqueCrashes(),
				"paths":   e.corpus.Size(),
			}).Debug("Fuzzing")
		}
	}
}

func (e *Engine) writeStats() {
	s := e.snapshot()
	if err := e.statsWriter.AppendCSV(s); err != nil {
		e.logger.Warnf("Failed to update stats csv: %v", err)
	}
	if err := e.statsWriter.Update(s); err != nil {
		e.logger.Warnf("Failed to update fuzzer_stats: %v", err)
	}
}

func (e *Engine) snapshot() monitoring.Snapshot {
	return monitoring.Snapshot{
		StartTime:       e.stats.StartTime,
		Now:             time.Now(),
		PID:             os.Getpid(),
		Executions:      e.stats.Executions(),
		ExecsPerSec:     e.stats.ExecutionsPerSecond(),
		PathsTotal:      e.corpus.Size(),
		PathsFavored:    len(e.corpus.Favored()),
		PathsImported:   e.stats.Imported(),
		CoveredEdges:    e.tracker.Count(),
		MapSize:         e.config.MapSize,
		UniqueCrashes:   e.stats.UniqueCrashes(),
		UniqueHangs:     e.stats.UniqueHangs(),
		LastPath:        e.stats.LastPath(),
		LastCrash:       e.stats.LastCrash(),
		LastHang:        e.stats.LastHang(),
		ExecsSinceCrash: e.stats.ExecsSinceCrash(),
		ExecTimeout:     e.config.ExecTimeout,
		PeakRSSMB:       monitoring.SampleMemory().PeakRSSMB(),
		Banner:          e.layout.Target,
		CommandLine:     e.commandLine,
	}
}

// Summary returns the current session totals
func (e *Engine) Summary() SessionSummary {
	return SessionSummary{
		SessionID:     e.sessionID,
		Target:        e.layout.Target,
		StartTime:     e.stats.StartTime,
		Duration:      time.Since(e.stats.StartTime).Round(time.Millisecond).String(),
		Executions:    e.stats.Executions(),
		ExecsPerSec:   e.stats.ExecutionsPerSecond(),
		Paths:         e.corpus.Size(),
		Favored:       len(e.corpus.Favored()),
		Imported:      e.stats.Imported(),
		CoveredEdges:  e.tracker.Count(),
		UniqueCrashes: e.stats.UniqueCrashes(),
		UniqueHangs:   e.stats.UniqueHangs(),
	}
}

// Stats returns the live session statistics
func (e *Engine) Stats() *FuzzerStats { return e.stats }

// Corpus returns the session corpus
func (e *Engine) Corpus() *Corpus { return e.corpus }

// Layout returns the output directory layout
func (e *Engine) Layout() monitoring.Layout { return e.layout }
