/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reproducibility.go
Description: Reproducibility harness for crashprobe. Replays a saved crash input several
times and reports how often it reproduces, with a breakdown of the statuses and reasons
observed, to separate deterministic bugs from flaky ones.
*/

package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// ReproducibilityConfig configures the reproducibility harness
type ReproducibilityConfig struct {
	Attempts int // Number of replays
}

// ReproducibilityResult contains the results of crash reproduction
type ReproducibilityResult struct {
	Attempts         int
	Reproductions    int
	ReproductionRate float64 // 0.0-1.0
	Reproducible     bool
	StatusCounts     map[string]int
	ReasonCounts     map[string]int
	Stderr           []byte // From the first reproducing run
	Duration         time.Duration
}

// ReproducibilityHarness replays crash inputs
type ReproducibilityHarness struct {
	config   *ReproducibilityConfig
	executor interfaces.Executor
	logger   *logrus.Logger
}

// NewReproducibilityHarness creates a new reproducibility harness
func NewReproducibilityHarness(config *ReproducibilityConfig, executor interfaces.Executor, logger *logrus.Logger) *ReproducibilityHarness {
	if config == nil || config.Attempts <= 0 {
		config = &ReproducibilityConfig{Attempts: 10}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReproducibilityHarness{config: config, executor: executor, logger: logger}
}

// Reproduce replays data and counts crashing or hanging runs
func (h *ReproducibilityHarness) Reproduce(ctx context.Context, data []byte) (*ReproducibilityResult, error) {
	if h.executor == nil {
		return nil, errors.New("no executor configured")
	}

	start := time.Now()
	result := &ReproducibilityResult{
		StatusCounts: make(map[string]int),
		ReasonCounts: make(map[string]int),
	}

	for i := 0; i < h.config.Attempts; i++ {
		res, err := h.executor.Execute(ctx, &interfaces.TestCase{
			ID:   fmt.Sprintf("repro-%d", i),
			Data: data,
		})
		if err != nil {
			return nil, fmt.Errorf("attempt %d: %w", i+1, err)
		}
		result.Attempts++
		result.StatusCounts[res.Status.String()]++

		if isFinding(res) {
			result.Reproductions++
			result.ReasonCounts[res.Reason]++
			if result.Stderr == nil {
				result.Stderr = res.Stderr
			}
		}

		h.logger.WithFields(logrus.Fields{
			"attempt": i + 1,
			"status":  res.Status,
			"reason":  res.Reason,
		}).Debug("Reproduction attempt")
	}

	result.ReproductionRate = float64(result.Reproductions) / float64(result.Attempts)
	result.Reproducible = result.Reproductions > 0
	result.Duration = time.Since(start)
	return result, nil
}

func isFinding(res *interfaces.ExecutionResult) bool {
	return res.Status == interfaces.StatusCrash || res.Status == interfaces.StatusHang
}
