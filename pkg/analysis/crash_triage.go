/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: crash_triage.go
Description: Crash minimization and naming helpers. The minimizer shrinks a crashing input
while the target keeps failing for the same reason: first by cutting the tail, then by
removing chunks of halving size from anywhere in the input.
*/

package analysis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// ErrNotReproducible is returned when the input to minimize does not crash
var ErrNotReproducible = errors.New("input does not reproduce a crash")

// DefaultMaxRuns bounds the executions spent on one minimization
const DefaultMaxRuns = 4096

// Minimizer shrinks crashing inputs
type Minimizer struct {
	executor interfaces.Executor
	logger   *logrus.Logger
	MaxRuns  int
	runs     int
}

// MinimizeResult describes a minimization
type MinimizeResult struct {
	Data         []byte
	Reason       string
	OriginalSize int
	Runs         int
}

// NewMinimizer creates a minimizer over an initialized executor
func NewMinimizer(executor interfaces.Executor, logger *logrus.Logger) *Minimizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Minimizer{executor: executor, logger: logger, MaxRuns: DefaultMaxRuns}
}

// Minimize returns the smallest input found that fails with the same reason
// as data
func (m *Minimizer) Minimize(ctx context.Context, data []byte) (*MinimizeResult, error) {
	m.runs = 0
	reason, ok, err := m.reproduces(ctx, data, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotReproducible
	}

	current := append([]byte(nil), data...)

	// Cut the tail in halving steps
	for step := len(current) / 2; step > 0 && m.budget(); {
		candidate := current[:len(current)-step]
		_, ok, err := m.reproduces(ctx, candidate, reason)
		if err != nil {
			return nil, err
		}
		if ok && len(candidate) > 0 {
			current = candidate
			if step > len(current)/2 {
				step = len(current) / 2
			}
			continue
		}
		step /= 2
	}

	// Remove chunks anywhere in the input
	for chunk := len(current) / 2; chunk > 0 && m.budget(); chunk /= 2 {
		for pos := 0; pos+chunk <= len(current) && len(current) > chunk && m.budget(); {
			candidate := make([]byte, 0, len(current)-chunk)
			candidate = append(candidate, current[:pos]...)
			candidate = append(candidate, current[pos+chunk:]...)

			_, ok, err := m.reproduces(ctx, candidate, reason)
			if err != nil {
				return nil, err
			}
			if ok {
				current = candidate
				continue
			}
			pos += chunk
		}
	}

	m.logger.WithFields(logrus.Fields{
		"original":  len(data),
		"minimized": len(current),
		"runs":      m.runs,
	}).Info("Minimization complete")

	return &MinimizeResult{
		Data:         current,
		Reason:       reason,
		OriginalSize: len(data),
		Runs:         m.runs,
	}, nil
}

func (m *Minimizer) budget() bool {
	return m.MaxRuns <= 0 || m.runs < m.MaxRuns
}

// reproduces runs data and reports whether it fails. With want set, the
// failure must carry the same reason.
func (m *Minimizer) reproduces(ctx context.Context, data []byte, want string) (string, bool, error) {
	m.runs++
	res, err := m.executor.Execute(ctx, &interfaces.TestCase{
		ID:   fmt.Sprintf("min-%d", m.runs),
		Data: data,
	})
	if err != nil {
		return "", false, err
	}
	if !isFinding(res) {
		return "", false, nil
	}
	if want != "" && res.Reason != want {
		return res.Reason, false, nil
	}
	return res.Reason, true, nil
}

// ReasonFromFileName extracts the sig field of an AFL crash file name, or ""
func ReasonFromFileName(name string) string {
	for _, field := range strings.Split(name, ",") {
		if v, ok := strings.CutPrefix(field, "sig:"); ok {
			return v
		}
	}
	return ""
}

// SignalName returns the conventional name for a signal number
func SignalName(signal int) string {
	names := map[int]string{
		1:  "SIGHUP",
		2:  "SIGINT",
		3:  "SIGQUIT",
		4:  "SIGILL",
		5:  "SIGTRAP",
		6:  "SIGABRT",
		7:  "SIGBUS",
		8:  "SIGFPE",
		9:  "SIGKILL",
		11: "SIGSEGV",
		13: "SIGPIPE",
		14: "SIGALRM",
		15: "SIGTERM",
	}
	if name, ok := names[signal]; ok {
		return name
	}
	return "SIG" + strconv.Itoa(signal)
}

// DescribeReason expands a reason such as sig11 or exit66 for display
func DescribeReason(reason string) string {
	switch {
	case reason == "timeout":
		return "hang (execution timeout)"
	case strings.HasPrefix(reason, "sig"):
		if n, err := strconv.Atoi(reason[3:]); err == nil {
			return fmt.Sprintf("killed by %s", SignalName(n))
		}
	case strings.HasPrefix(reason, "exit"):
		return fmt.Sprintf("exit status %s", reason[4:])
	}
	return reason
}
