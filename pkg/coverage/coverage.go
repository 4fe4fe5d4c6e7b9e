/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: coverage.go
Description: Coverage collection for AFL-instrumented targets. Defines the Map interface
over the edge bitmap shared with the target, helpers for extracting edges and hashing a
bitmap for crash deduplication, and a Tracker holding the global set of visited edges.
*/

package coverage

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// MapSize is the AFL edge bitmap size
const MapSize = 65536

// EnvVar tells an instrumented target which shared memory segment to write to
const EnvVar = "__AFL_SHM_ID"

// ErrUnsupported is returned where shared memory maps are not available
var ErrUnsupported = errors.New("coverage: shared memory maps require linux")

// Map is a coverage bitmap that a target writes during one execution
type Map interface {
	// ID is the shared memory id exported to the target, or -1 for maps the
	// target cannot see
	ID() int
	// Reset zeroes the bitmap before an execution
	Reset() error
	// Snapshot copies the bitmap after an execution
	Snapshot() ([]byte, error)
	// Close releases the map
	Close() error
}

// Env returns the environment entry pointing a target at m, or "" when m has
// no shared id
func Env(m Map) string {
	if m == nil || m.ID() < 0 {
		return ""
	}
	return fmt.Sprintf("%s=%d", EnvVar, m.ID())
}

// Edges returns the indices of all non-zero bytes in the bitmap
func Edges(bitmap []byte) []int {
	edges := make([]int, 0, 16)
	for i, v := range bitmap {
		if v > 0 {
			edges = append(edges, i)
		}
	}
	return edges
}

// Hash returns the md5 hex digest of the bitmap, or "" for a nil bitmap
func Hash(bitmap []byte) string {
	if bitmap == nil {
		return ""
	}
	sum := md5.Sum(bitmap)
	return hex.EncodeToString(sum[:])
}

// MemoryMap is an in-process Map. Targets cannot write to it, so it is used
// for uninstrumented targets and in tests.
type MemoryMap struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryMap creates an in-process map of the given size
func NewMemoryMap(size int) *MemoryMap {
	if size <= 0 {
		size = MapSize
	}
	return &MemoryMap{data: make([]byte, size)}
}

// ID returns -1 since the map is not shared
func (m *MemoryMap) ID() int { return -1 }

// Reset zeroes the map
func (m *MemoryMap) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.data)
	return nil
}

// Snapshot returns a copy of the map
func (m *MemoryMap) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...), nil
}

// Hit marks an edge as visited
func (m *MemoryMap) Hit(edge int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if edge >= 0 && edge < len(m.data) {
		m.data[edge]++
	}
}

// Close is a no-op
func (m *MemoryMap) Close() error { return nil }

// Tracker holds the union of edges seen across all executions
type Tracker struct {
	mu      sync.RWMutex
	visited map[int]struct{}
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{visited: make(map[int]struct{})}
}

// Merge adds edges to the visited set and returns how many were new
func (t *Tracker) Merge(edges []int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, e := range edges {
		if _, ok := t.visited[e]; !ok {
			t.visited[e] = struct{}{}
			added++
		}
	}
	return added
}

// Count returns the number of distinct edges seen
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.visited)
}
