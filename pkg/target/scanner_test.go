/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scanner_test.go
Description: Tests for the input scanner. Covers the trigger, mismatch, short, empty and
failing inputs, the single-read contract, and the real process exit statuses.
*/

package target

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "CRASHPROBE_TARGET_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(Scan(os.Stdin, os.Stderr))
	}
	os.Exit(m.Run())
}

func TestScan(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     int
		wantDiag bool
	}{
		{"exact trigger", "crash", ExitTriggered, true},
		{"trigger prefix", "crashing now", ExitTriggered, true},
		{"short mismatch", "crab", ExitOK, false},
		{"uppercase", "CRASH", ExitOK, false},
		{"prefix only", "cras", ExitOK, false},
		{"single byte", "a", ExitOK, false},
		{"late mismatch", "crasH", ExitOK, false},
		{"empty", "", ExitReadError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			got := Scan(strings.NewReader(tt.input), &stderr)
			assert.Equal(t, tt.want, got)
			if tt.wantDiag {
				assert.Equal(t, TriggerMessage, stderr.String())
			} else {
				assert.Empty(t, stderr.String())
			}
		})
	}
}

func TestScanReadError(t *testing.T) {
	var stderr bytes.Buffer
	got := Scan(iotest.ErrReader(errors.New("closed")), &stderr)
	assert.Equal(t, ExitReadError, got)
	assert.Empty(t, stderr.String())
}

func TestScanAcceptsDataWithError(t *testing.T) {
	// A positive count wins over the accompanying error.
	var stderr bytes.Buffer
	got := Scan(iotest.DataErrReader(strings.NewReader("crash")), &stderr)
	assert.Equal(t, ExitTriggered, got)
}

func TestScanSingleRead(t *testing.T) {
	// A reader that hands out one byte per call only ever contributes "c".
	var stderr bytes.Buffer
	got := Scan(iotest.OneByteReader(strings.NewReader("crash")), &stderr)
	assert.Equal(t, ExitOK, got)
	assert.Empty(t, stderr.String())
}

type recordingReader struct {
	r     *strings.Reader
	calls int
	asked []int
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	rr.calls++
	rr.asked = append(rr.asked, len(p))
	return rr.r.Read(p)
}

func TestScanBoundedRead(t *testing.T) {
	input := strings.Repeat("x", 150)
	rr := &recordingReader{r: strings.NewReader(input)}

	got := Scan(rr, &bytes.Buffer{})
	assert.Equal(t, ExitOK, got)
	assert.Equal(t, 1, rr.calls)
	assert.Equal(t, []int{BufferSize}, rr.asked)
	assert.Equal(t, 50, rr.r.Len(), "bytes past the buffer stay unread")
}

func TestTriggered(t *testing.T) {
	assert.True(t, Triggered([]byte("crash\x00\x00")))
	assert.False(t, Triggered([]byte("cras")))
	assert.False(t, Triggered(make([]byte, BufferSize)))
}

func TestTargetProcessExitStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns the test binary")
	}

	tests := []struct {
		input    string
		want     int
		wantDiag bool
	}{
		{"crash", ExitTriggered, true},
		{"crashing now", ExitTriggered, true},
		{"crab", ExitOK, false},
		{"CRASH", ExitOK, false},
		{"", ExitReadError, false},
		{strings.Repeat("z", 300), ExitOK, false},
	}

	for _, tt := range tests {
		cmd := exec.Command(os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(), helperEnv+"=1")
		cmd.Stdin = strings.NewReader(tt.input)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			require.ErrorAs(t, err, &exitErr)
			code = exitErr.ExitCode()
		}

		assert.Equal(t, tt.want, code, "input %q", tt.input)
		assert.Empty(t, stdout.String())
		if tt.wantDiag {
			assert.Contains(t, stderr.String(), "CRASH CONDITION TRIGGERED")
		} else {
			assert.Empty(t, stderr.String())
		}
	}
}
