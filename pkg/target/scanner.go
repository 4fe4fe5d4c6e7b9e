/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scanner.go
Description: Input scanner for the crashprobe demo target. Performs one bounded read
from an input stream and reports whether the input starts with the trigger pattern.
Exit statuses are chosen so that fuzzers can tell a clean run, an empty input and a
detected trigger apart without instrumentation.
*/

package target

import (
	"io"
)

// BufferSize is the capacity of the input buffer. Only one read of at most
// this many bytes is attempted.
const BufferSize = 100

// Exit statuses returned by Scan.
const (
	ExitOK        = 0
	ExitReadError = 1
	ExitTriggered = 66
)

// TriggerMessage is written to the error stream when the pattern matches.
const TriggerMessage = "\n[!!!] CRASH CONDITION TRIGGERED! [!!!]\n"

// Pattern is the prefix that fires the trigger.
var Pattern = [...]byte{'c', 'r', 'a', 's', 'h'}

// Scan reads once from r into a zeroed buffer and returns the process exit
// status. Short reads are accepted as-is; there is no read loop.
func Scan(r io.Reader, stderr io.Writer) int {
	var buf [BufferSize]byte

	n, _ := r.Read(buf[:])
	if n <= 0 {
		return ExitReadError
	}

	if !Triggered(buf[:]) {
		return ExitOK
	}

	io.WriteString(stderr, TriggerMessage)
	return ExitTriggered
}

// Triggered reports whether buf starts with Pattern. Bytes are compared left to
// right and the check stops at the first mismatch.
func Triggered(buf []byte) bool {
	if len(buf) < len(Pattern) {
		return false
	}
	return buf[0] == Pattern[0] &&
		buf[1] == Pattern[1] &&
		buf[2] == Pattern[2] &&
		buf[3] == Pattern[3] &&
		buf[4] == Pattern[4]
}
