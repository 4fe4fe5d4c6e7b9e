/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: Multi-target experiment report for crashprobe. Reads the per-target coverage
CSV files from an output directory and produces a Markdown summary, an interactive
coverage comparison chart and a YAML summary for further processing.
*/

package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPattern selects the stats files included in a report
const DefaultPattern = "stats_target*.csv"

// Report file names
const (
	MarkdownFile = "experiment_report.md"
	ChartFile    = "multi_target_comparison.html"
	SummaryFile  = "summary.yaml"
)

// ErrNoStats is returned when the output directory has no stats files
var ErrNoStats = errors.New("no stats files found")

// Sample is one row of a stats file
type Sample struct {
	Time       float64
	Coverage   int
	Executions int64
}

// TargetStats holds the samples recorded for one target
type TargetStats struct {
	Name    string
	Samples []Sample
}

// MaxCoverage returns the highest edge count recorded
func (t *TargetStats) MaxCoverage() int {
	best := 0
	for _, s := range t.Samples {
		best = max(best, s.Coverage)
	}
	return best
}

// TotalTime returns the latest sample time in seconds
func (t *TargetStats) TotalTime() float64 {
	var last float64
	for _, s := range t.Samples {
		last = max(last, s.Time)
	}
	return last
}

// TotalExecutions returns the highest execution count recorded
func (t *TargetStats) TotalExecutions() int64 {
	var n int64
	for _, s := range t.Samples {
		n = max(n, s.Executions)
	}
	return n
}

// TargetSummary is the per-target entry of summary.yaml
type TargetSummary struct {
	Target          string  `yaml:"target"`
	MaxCoverage     int     `yaml:"max_coverage"`
	TotalTime       float64 `yaml:"total_time_seconds"`
	TotalExecutions int64   `yaml:"total_execs"`
	Samples         int     `yaml:"samples"`
}

// Summary is written to summary.yaml
type Summary struct {
	GeneratedAt time.Time       `yaml:"generated_at"`
	OutputDir   string          `yaml:"output_dir"`
	Targets     []TargetSummary `yaml:"targets"`
}

// Report lists the generated files
type Report struct {
	MarkdownPath string
	ChartPath    string
	SummaryPath  string
	Summary      *Summary
}

// ParseStats reads a stats CSV stream with a time,cov,total_execs header
func ParseStats(name string, r io.Reader) (*TargetStats, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	stats := &TargetStats{Name: name}
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == "time" {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("%s line %d: expected 3 fields, got %d", name, i+1, len(rec))
		}
		t, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad time: %w", name, i+1, err)
		}
		cov, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad coverage: %w", name, i+1, err)
		}
		execs, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad execution count: %w", name, i+1, err)
		}
		stats.Samples = append(stats.Samples, Sample{Time: t, Coverage: cov, Executions: execs})
	}
	return stats, nil
}

// TargetName derives the target name from a stats file path
func TargetName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	return strings.TrimPrefix(name, "stats_")
}

// LoadStats reads every stats file in dir matching pattern, sorted by file
// name. Files without samples are skipped.
func LoadStats(dir, pattern string) ([]*TargetStats, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrNoStats, pattern, dir)
	}
	sort.Strings(files)

	var all []*TargetStats
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open stats file: %w", err)
		}
		stats, err := ParseStats(TargetName(path), f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if len(stats.Samples) == 0 {
			continue
		}
		all = append(all, stats)
	}
	return all, nil
}

// ReportGenerator writes experiment reports into an output directory
type ReportGenerator struct {
	outDir    string
	pattern   string
	logger    *logrus.Logger
	templates *template.Template
}

// NewReportGenerator creates a generator for outDir. An empty pattern uses
// DefaultPattern.
func NewReportGenerator(outDir, pattern string, logger *logrus.Logger) *ReportGenerator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReportGenerator{
		outDir:    outDir,
		pattern:   pattern,
		logger:    logger,
		templates: template.Must(template.New("chart").Parse(chartTemplate)),
	}
}

// Generate builds all report files
func (g *ReportGenerator) Generate() (*Report, error) {
	targets, err := LoadStats(g.outDir, g.pattern)
	if err != nil {
		return nil, err
	}

	summary := &Summary{GeneratedAt: time.Now().UTC(), OutputDir: g.outDir}
	for _, t := range targets {
		summary.Targets = append(summary.Targets, TargetSummary{
			Target:          t.Name,
			MaxCoverage:     t.MaxCoverage(),
			TotalTime:       t.TotalTime(),
			TotalExecutions: t.TotalExecutions(),
			Samples:         len(t.Samples),
		})
	}

	report := &Report{
		MarkdownPath: filepath.Join(g.outDir, MarkdownFile),
		ChartPath:    filepath.Join(g.outDir, ChartFile),
		SummaryPath:  filepath.Join(g.outDir, SummaryFile),
		Summary:      summary,
	}

	if err := os.WriteFile(report.MarkdownPath, []byte(RenderMarkdown(summary)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write markdown report: %w", err)
	}
	if err := g.writeChart(report.ChartPath, targets); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(report.SummaryPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"targets": len(targets),
		"report":  report.MarkdownPath,
		"chart":   report.ChartPath,
	}).Info("Experiment report generated")
	return report, nil
}

// RenderMarkdown formats the summary table
func RenderMarkdown(summary *Summary) string {
	var b strings.Builder
	b.WriteString("# Multi-Target Fuzzing Report\n\n")
	b.WriteString("## 1. Summary\n\n")
	b.WriteString("| Target | Max Coverage | Total Time (s) | Executions |\n")
	b.WriteString("| :--- | :--- | :--- | :--- |\n")
	for _, t := range summary.Targets {
		fmt.Fprintf(&b, "| %s | %d | %.2f | %d |\n", t.Target, t.MaxCoverage, t.TotalTime, t.TotalExecutions)
	}
	b.WriteString("\n\n## 2. Coverage Growth\n\n")
	fmt.Fprintf(&b, "[Coverage Comparison](%s)\n", ChartFile)
	return b.String()
}

// chartPoint is one point of a Chart.js scatter line
type chartPoint struct {
	X float64 `json:"x"`
	Y int     `json:"y"`
}

type chartDataset struct {
	Label       string       `json:"label"`
	Data        []chartPoint `json:"data"`
	ShowLine    bool         `json:"showLine"`
	BorderWidth float64      `json:"borderWidth"`
	PointRadius int          `json:"pointRadius"`
}

type chartPage struct {
	Title       string
	GeneratedAt string
	Datasets    []chartDataset
}

func (g *ReportGenerator) writeChart(path string, targets []*TargetStats) error {
	page := chartPage{
		Title:       "Multi-Target Fuzzing Coverage Comparison",
		GeneratedAt: time.Now().Format(time.RFC1123),
	}
	for _, t := range targets {
		ds := chartDataset{Label: t.Name, ShowLine: true, BorderWidth: 1.5}
		for _, s := range t.Samples {
			ds.Data = append(ds.Data, chartPoint{X: s.Time, Y: s.Coverage})
		}
		page.Datasets = append(page.Datasets, ds)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart: %w", err)
	}
	defer f.Close()
	if err := g.templates.Execute(f, page); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
