/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: layout.go
Description: AFL-style output directory layout for crashprobe sessions.
*/

package monitoring

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is the set of paths used by one session. Root holds the per-target
// CSV; everything else lives under Root/<target>.
type Layout struct {
	Root        string
	Target      string
	TargetDir   string
	Queue       string
	Crashes     string
	Hangs       string
	FuzzerStats string
	PlotData    string
	Cmdline     string
	StatsCSV    string
}

// NewLayout computes the layout for targetName under root
func NewLayout(root, targetName string) Layout {
	targetDir := filepath.Join(root, targetName)
	return Layout{
		Root:        root,
		Target:      targetName,
		TargetDir:   targetDir,
		Queue:       filepath.Join(targetDir, "queue"),
		Crashes:     filepath.Join(targetDir, "crashes"),
		Hangs:       filepath.Join(targetDir, "hangs"),
		FuzzerStats: filepath.Join(targetDir, "fuzzer_stats"),
		PlotData:    filepath.Join(targetDir, "plot_data"),
		Cmdline:     filepath.Join(targetDir, "cmdline"),
		StatsCSV:    filepath.Join(root, fmt.Sprintf("stats_%s.csv", targetName)),
	}
}

// Create makes all directories of the layout
func (l Layout) Create() error {
	for _, dir := range []string{l.Root, l.Queue, l.Crashes, l.Hangs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
