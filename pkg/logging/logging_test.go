/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logging_test.go
Description: Tests for the logger setup, the custom formatter and log directory
maintenance.
*/

package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFormatter(t *testing.T) {
	f := &CustomFormatter{}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 6, 11, 1, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "Found new crash",
		Data: logrus.Fields{
			"reason": "exit66",
			"data":   []byte("crash"),
			"took":   1500 * time.Millisecond,
			"err":    errors.New("boom"),
		},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "WARNING Found new crash data=6372617368 err=boom reason=exit66 took=1.5s\n", string(out))

	f.Timestamp = true
	out, err = f.Format(entry)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "2024-06-11 01:30:00.000 WARNING "))

	f.Colors = true
	out, err = f.Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "\033[33mWARNING\033[0m")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, strings.Repeat("x", 50)+"...", formatValue(strings.Repeat("x", 60)))
	assert.Equal(t, "[21 bytes]", formatValue(make([]byte, 21)))
	assert.Equal(t, "42", formatValue(42))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxFiles = 0
	assert.Error(t, cfg.Validate())

	cfg.OutputDir = ""
	assert.NoError(t, cfg.Validate())
}

func TestNewLoggerWritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.OutputDir = dir
	cfg.Colors = false
	cfg.Console = &console

	l, err := NewLogger(cfg)
	require.NoError(t, err)
	l.GetLogger().WithField("execs", 10).Info("Fuzzing")
	l.LogStats(10, 1, 0, 5)
	path := l.FilePath()
	require.NoError(t, l.Close())

	assert.Contains(t, console.String(), "Fuzzing execs=10")
	assert.Contains(t, console.String(), "Statistics update")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Fuzzing execs=10")
	assert.True(t, strings.HasPrefix(filepath.Base(path), "crashprobe_"))
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	cfg := &LoggerConfig{Level: LogLevelDebug, Format: LogFormatJSON, Console: &console}
	l, err := NewLogger(cfg)
	require.NoError(t, err)
	l.GetLogger().Debug("hello")
	assert.Contains(t, console.String(), `"msg":"hello"`)
	assert.Empty(t, l.FilePath())
	assert.NoError(t, l.Close())
}

func TestLogManager(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"crashprobe_2024-01-01_00-00-00.000.log",
		"crashprobe_2024-01-02_00-00-00.000.log",
		"crashprobe_2024-01-03_00-00-00.000.log",
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("line\n"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))

	lm := NewLogManager(dir, 2, 1024, true)
	require.NoError(t, lm.CompressOldLogs(filepath.Join(dir, names[2])))

	stats, err := lm.GetLogStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.CompressedFiles)
	assert.Equal(t, 1, stats.UncompressedFiles)

	require.NoError(t, lm.CleanupOldLogs())
	_, err = os.Stat(filepath.Join(dir, names[0]+".gz"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, names[1]+".gz"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "unrelated.txt"))
	assert.NoError(t, err)
}
