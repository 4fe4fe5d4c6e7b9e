/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Log directory maintenance for crashprobe: gzip compression of finished log
files, retention by file count and directory statistics.
*/

package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogManager maintains a log directory
type LogManager struct {
	logDir   string
	maxFiles int
	maxSize  int64
	compress bool
}

// NewLogManager creates a new log manager
func NewLogManager(logDir string, maxFiles int, maxSize int64, compress bool) *LogManager {
	return &LogManager{
		logDir:   logDir,
		maxFiles: maxFiles,
		maxSize:  maxSize,
		compress: compress,
	}
}

func (lm *LogManager) files(suffix string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(lm.logDir, filePrefix+"*.log"+suffix))
	if err != nil {
		return nil, fmt.Errorf("failed to glob log files: %w", err)
	}
	return files, nil
}

// CompressOldLogs gzips every plain log file except keep
func (lm *LogManager) CompressOldLogs(keep string) error {
	files, err := lm.files("")
	if err != nil {
		return err
	}
	for _, file := range files {
		if file == keep {
			continue
		}
		if err := compressFile(file); err != nil {
			return fmt.Errorf("failed to compress %s: %w", file, err)
		}
	}
	return nil
}

func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// CleanupOldLogs removes the oldest log files beyond maxFiles
func (lm *LogManager) CleanupOldLogs() error {
	files, err := lm.files("*")
	if err != nil {
		return err
	}
	if lm.maxFiles <= 0 || len(files) <= lm.maxFiles {
		return nil
	}

	// File names embed their creation time
	sort.Strings(files)
	for _, file := range files[:len(files)-lm.maxFiles] {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove file %s: %w", file, err)
		}
	}
	return nil
}

// GetLogStats returns statistics about log files
func (lm *LogManager) GetLogStats() (*LogStats, error) {
	files, err := lm.files("*")
	if err != nil {
		return nil, err
	}

	stats := &LogStats{TotalFiles: len(files)}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		stats.TotalSize += info.Size()
		if info.Size() > lm.maxSize && lm.maxSize > 0 {
			stats.OversizedFiles++
		}
		if stats.OldestFile.IsZero() || info.ModTime().Before(stats.OldestFile) {
			stats.OldestFile = info.ModTime()
		}
		if info.ModTime().After(stats.NewestFile) {
			stats.NewestFile = info.ModTime()
		}
		if strings.HasSuffix(file, ".gz") {
			stats.CompressedFiles++
		} else {
			stats.UncompressedFiles++
		}
	}
	return stats, nil
}

// LogStats holds statistics about log files
type LogStats struct {
	TotalFiles        int       `json:"total_files"`
	TotalSize         int64     `json:"total_size"`
	CompressedFiles   int       `json:"compressed_files"`
	UncompressedFiles int       `json:"uncompressed_files"`
	OversizedFiles    int       `json:"oversized_files"`
	OldestFile        time.Time `json:"oldest_file"`
	NewestFile        time.Time `json:"newest_file"`
}
