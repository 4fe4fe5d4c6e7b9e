/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: afl_stats.go
Description: Session statistics files for crashprobe. Writes the AFL fuzzer_stats and
plot_data files that afl-whatsup and afl-plot understand, plus a compact per-target CSV
(time, coverage, executions) used for multi-target reports.
*/

package monitoring

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// AFLVersion is reported in fuzzer_stats for tooling compatibility
const AFLVersion = "4.07c"

// Header lines
const (
	CSVHeader      = "time,cov,total_execs\n"
	PlotDataHeader = "# unix_time, cycles_done, cur_path, paths_total, pending_total, pending_favs, map_size, unique_crashes, unique_hangs, max_depth, execs_per_sec\n"
)

// Snapshot is the state written on each stats update
type Snapshot struct {
	StartTime       time.Time
	Now             time.Time
	PID             int
	Executions      int64
	ExecsPerSec     float64
	PathsTotal      int
	PathsFavored    int
	PathsImported   int64
	CoveredEdges    int
	MapSize         int
	UniqueCrashes   int64
	UniqueHangs     int64
	LastPath        time.Time
	LastCrash       time.Time
	LastHang        time.Time
	ExecsSinceCrash int64
	ExecTimeout     time.Duration
	PeakRSSMB       int64
	Banner          string
	CommandLine     string
}

// Elapsed returns seconds since the session start
func (s Snapshot) Elapsed() float64 {
	return s.Now.Sub(s.StartTime).Seconds()
}

// StatsWriter maintains the statistics files of one session
type StatsWriter struct {
	layout Layout
	mu     sync.Mutex
}

// NewStatsWriter truncates the CSV and plot_data files and writes their
// headers together with the cmdline file
func NewStatsWriter(layout Layout, commandLine string) (*StatsWriter, error) {
	if err := os.WriteFile(layout.StatsCSV, []byte(CSVHeader), 0644); err != nil {
		return nil, fmt.Errorf("failed to create stats csv: %w", err)
	}
	if err := os.WriteFile(layout.PlotData, []byte(PlotDataHeader), 0644); err != nil {
		return nil, fmt.Errorf("failed to create plot_data: %w", err)
	}
	if err := os.WriteFile(layout.Cmdline, []byte(commandLine), 0644); err != nil {
		return nil, fmt.Errorf("failed to write cmdline: %w", err)
	}
	return &StatsWriter{layout: layout}, nil
}

// AppendCSV adds a coverage sample to the per-target CSV
func (w *StatsWriter) AppendCSV(s Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	line := fmt.Sprintf("%.2f,%d,%d\n", s.Elapsed(), s.CoveredEdges, s.Executions)
	return appendFile(w.layout.StatsCSV, line)
}

// Update rewrites fuzzer_stats atomically and appends a plot_data row
func (w *StatsWriter) Update(s Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := renameio.WriteFile(w.layout.FuzzerStats, []byte(FormatFuzzerStats(s)), 0644); err != nil {
		return fmt.Errorf("failed to write fuzzer_stats: %w", err)
	}

	row := fmt.Sprintf("%d, 0, 0, %d, 0, 0, %d, %d, %d, 0, %.2f\n",
		s.Now.Unix(), s.PathsTotal, s.CoveredEdges, s.UniqueCrashes, s.UniqueHangs, s.ExecsPerSec)
	return appendFile(w.layout.PlotData, row)
}

// FormatFuzzerStats renders the AFL key/value stats block
func FormatFuzzerStats(s Snapshot) string {
	cvg := 0.0
	if s.MapSize > 0 {
		cvg = float64(s.CoveredEdges) * 100 / float64(s.MapSize)
	}

	fields := []struct {
		key   string
		value interface{}
	}{
		{"start_time", s.StartTime.Unix()},
		{"last_update", s.Now.Unix()},
		{"fuzzer_pid", s.PID},
		{"cycles_done", 0},
		{"execs_done", s.Executions},
		{"execs_per_sec", fmt.Sprintf("%.2f", s.ExecsPerSec)},
		{"paths_total", s.PathsTotal},
		{"paths_favored", s.PathsFavored},
		{"paths_found", s.PathsTotal - int(s.PathsImported)},
		{"paths_imported", s.PathsImported},
		{"max_depth", 0},
		{"cur_path", 0},
		{"pending_favs", 0},
		{"pending_total", 0},
		{"variable_paths", 0},
		{"stability", "100.00%"},
		{"bitmap_cvg", fmt.Sprintf("%.2f%%", cvg)},
		{"unique_crashes", s.UniqueCrashes},
		{"unique_hangs", s.UniqueHangs},
		{"last_path", unixOrZero(s.LastPath)},
		{"last_crash", unixOrZero(s.LastCrash)},
		{"last_hang", unixOrZero(s.LastHang)},
		{"execs_since_crash", s.ExecsSinceCrash},
		{"exec_timeout", s.ExecTimeout.Milliseconds()},
		{"peak_rss_mb", s.PeakRSSMB},
		{"afl_banner", s.Banner},
		{"afl_version", AFLVersion},
		{"target_mode", "default"},
		{"command_line", s.CommandLine},
	}

	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "%-18s: %v\n", f.key, f.value)
	}
	return b.String()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func appendFile(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}
