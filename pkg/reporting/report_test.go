/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report_test.go
Description: Tests for stats parsing and report generation.
*/

package reporting

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeStats(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestParseStats(t *testing.T) {
	stats, err := ParseStats("target1", strings.NewReader("time,cov,total_execs\n0.50,3,10\n1.75,7,250\n"))
	require.NoError(t, err)

	want := []Sample{{Time: 0.5, Coverage: 3, Executions: 10}, {Time: 1.75, Coverage: 7, Executions: 250}}
	if diff := cmp.Diff(want, stats.Samples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 7, stats.MaxCoverage())
	assert.Equal(t, 1.75, stats.TotalTime())
	assert.Equal(t, int64(250), stats.TotalExecutions())

	_, err = ParseStats("bad", strings.NewReader("time,cov,total_execs\nx,1,1\n"))
	assert.Error(t, err)
	_, err = ParseStats("short", strings.NewReader("1.0,2\n"))
	assert.Error(t, err)
}

func TestTargetName(t *testing.T) {
	assert.Equal(t, "target3", TargetName("/out/stats_target3.csv"))
}

func TestLoadStatsNoFiles(t *testing.T) {
	_, err := LoadStats(t.TempDir(), "")
	assert.ErrorIs(t, err, ErrNoStats)

	_, err = NewReportGenerator(t.TempDir(), "", quietLogger()).Generate()
	assert.ErrorIs(t, err, ErrNoStats)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	writeStats(t, dir, "stats_target2.csv", "time,cov,total_execs\n0.10,2,5\n2.00,4,100\n")
	writeStats(t, dir, "stats_target1.csv", "time,cov,total_execs\n0.10,1,5\n3.25,9,400\n")
	writeStats(t, dir, "stats_target9.csv", "time,cov,total_execs\n")
	writeStats(t, dir, "stats_other.csv", "time,cov,total_execs\n1.00,50,1\n")

	report, err := NewReportGenerator(dir, "", quietLogger()).Generate()
	require.NoError(t, err)

	require.Len(t, report.Summary.Targets, 2)
	assert.Equal(t, "target1", report.Summary.Targets[0].Target)
	assert.Equal(t, 9, report.Summary.Targets[0].MaxCoverage)
	assert.Equal(t, "target2", report.Summary.Targets[1].Target)

	md, err := os.ReadFile(report.MarkdownPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "| target1 | 9 | 3.25 | 400 |\n")
	assert.Contains(t, string(md), "| target2 | 4 | 2.00 | 100 |\n")
	assert.NotContains(t, string(md), "other")
	assert.Contains(t, string(md), "(multi_target_comparison.html)")

	html, err := os.ReadFile(report.ChartPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "coverageChart")
	assert.Contains(t, string(html), `"label":"target1"`)

	raw, err := os.ReadFile(report.SummaryPath)
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, yaml.Unmarshal(raw, &summary))
	assert.Equal(t, report.Summary.Targets, summary.Targets)
}

func TestGenerateCustomPattern(t *testing.T) {
	dir := t.TempDir()
	writeStats(t, dir, "stats_scanner.csv", "time,cov,total_execs\n1.00,3,10\n")

	report, err := NewReportGenerator(dir, "stats_*.csv", quietLogger()).Generate()
	require.NoError(t, err)
	require.Len(t, report.Summary.Targets, 1)
	assert.Equal(t, "scanner", report.Summary.Targets[0].Target)
}
