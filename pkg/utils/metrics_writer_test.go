/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: metrics_writer_test.go
Description: Tests for the metrics writer.
*/

package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMetricsResult(t *testing.T) {
	fixed := time.Date(2024, 6, 11, 1, 30, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	dir := t.TempDir()
	path, err := WriteMetricsResult(dir, "session", "1.0.0", map[string]int{"executions": 42})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "session", "2024-06-11_01-30-00_session_v1.0.0.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 42, got["executions"])
}

func TestWriteMetricsResultUnmarshalable(t *testing.T) {
	_, err := WriteMetricsResult(t.TempDir(), "session", "1.0.0", make(chan int))
	assert.Error(t, err)
}
