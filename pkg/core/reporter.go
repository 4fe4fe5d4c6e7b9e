/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter hooks for crashprobe. Lets the engine notify listeners about new
paths, crashes and hangs; LoggerReporter writes them through logrus.
*/

package core

import (
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// Reporter receives engine events
type Reporter interface {
	// OnNewPath is called when a test case reaches new edges
	OnNewPath(tc *interfaces.TestCase, coverage int)
	// OnCrash is called for every unique crash or hang that was saved
	OnCrash(result *interfaces.ExecutionResult, path string)
}

// LoggerReporter logs engine events
type LoggerReporter struct {
	logger *logrus.Logger
}

// NewLoggerReporter creates a new LoggerReporter
func NewLoggerReporter(logger *logrus.Logger) *LoggerReporter {
	return &LoggerReporter{logger: logger}
}

// OnNewPath logs a new path
func (r *LoggerReporter) OnNewPath(tc *interfaces.TestCase, coverage int) {
	r.logger.WithFields(logrus.Fields{
		"id":       tc.ID,
		"len":      len(tc.Data),
		"coverage": coverage,
		"stage":    tc.Metadata["stage"],
	}).Info("New path")
}

// OnCrash logs a saved crash or hang
func (r *LoggerReporter) OnCrash(result *interfaces.ExecutionResult, path string) {
	entry := r.logger.WithFields(logrus.Fields{
		"testcase": result.TestCaseID,
		"reason":   result.Reason,
		"file":     path,
	})
	if result.Status == interfaces.StatusHang {
		entry.Warn("Hang saved")
		return
	}
	entry.Error("Found new crash")
}
