/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: metrics_writer.go
Description: Writes session results as JSON into a metrics directory. Files are named by
timestamp, result type and version so runs sort chronologically and never overwrite
each other.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// now is replaced in tests
var now = time.Now

// MetricsFileName returns the file name for a result written at t
func MetricsFileName(t time.Time, resultType, version string) string {
	return fmt.Sprintf("%s_%s_v%s.json", t.Format("2006-01-02_15-04-05"), resultType, version)
}

// WriteMetricsResult writes result under baseDir/<resultType>/ and returns the
// file path
func WriteMetricsResult(baseDir, resultType, version string, result interface{}) (string, error) {
	metricsDir := filepath.Join(baseDir, resultType)
	if err := os.MkdirAll(metricsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create metrics directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	filePath := filepath.Join(metricsDir, MetricsFileName(now(), resultType, version))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write metrics file: %w", err)
	}
	return filePath, nil
}
