/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: corpus.go
Description: Corpus management for crashprobe. Stores seeds in discovery order together
with the AFL top-rated table: for every edge the smallest and fastest entry covering it
wins and is marked favored. Safe for concurrent use by workers.
*/

package core

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// DefaultSeed is used when no seeds are available
var DefaultSeed = []byte("_Z1fv")

// seedExecTime is assumed for seeds that have not been timed
const seedExecTime = time.Millisecond

type topRated struct {
	factor int64
	index  int
}

// Corpus manages the collection of test cases
type Corpus struct {
	mu       sync.RWMutex
	entries  []*interfaces.TestCase
	topRated map[int]topRated
}

// NewCorpus creates an empty corpus
func NewCorpus() *Corpus {
	return &Corpus{topRated: make(map[int]topRated)}
}

// NewSeed wraps data as a favored generation-zero test case
func NewSeed(data []byte, source string) *interfaces.TestCase {
	return &interfaces.TestCase{
		ID:        uuid.New().String(),
		Data:      data,
		CreatedAt: time.Now(),
		ExecTime:  seedExecTime,
		Favored:   true,
		Metadata:  map[string]interface{}{"source": source},
	}
}

// Add appends a test case and returns its index
func (c *Corpus) Add(testCase *interfaces.TestCase) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, testCase)
	return len(c.entries) - 1
}

// Get returns the entry at index i, or nil
func (c *Corpus) Get(i int) *interfaces.TestCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return nil
	}
	return c.entries[i]
}

// Size returns the number of entries
func (c *Corpus) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Random returns a uniformly random entry, or nil when empty
func (c *Corpus) Random() *interfaces.TestCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[rand.Intn(len(c.entries))]
}

// RandomData returns the data of a random entry
func (c *Corpus) RandomData() []byte {
	if tc := c.Random(); tc != nil {
		return tc.Data
	}
	return nil
}

// Favored returns the indices of favored entries
func (c *Corpus) Favored() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := make([]int, 0, len(c.entries))
	for i, tc := range c.entries {
		if tc.Favored {
			idx = append(idx, i)
		}
	}
	return idx
}

// UpdateScore lets entry i compete for each edge it covers. The score is
// len(data) * exec time in microseconds; a strictly smaller score takes the
// edge and the entry becomes favored.
func (c *Corpus) UpdateScore(i int, edges []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.entries) || len(edges) == 0 {
		return
	}

	tc := c.entries[i]
	factor := int64(len(tc.Data)) * tc.ExecTime.Microseconds()
	for _, e := range edges {
		prev, ok := c.topRated[e]
		if ok && factor >= prev.factor {
			continue
		}
		c.topRated[e] = topRated{factor: factor, index: i}
		tc.Favored = true
	}
}

// TopRated returns the index of the entry holding edge e
func (c *Corpus) TopRated(e int) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tr, ok := c.topRated[e]
	return tr.index, ok
}

// LoadDir adds every non-empty regular file in dir as a seed. A missing
// directory is reported through os.ErrNotExist.
func (c *Corpus) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || len(data) == 0 {
			continue
		}
		c.Add(NewSeed(data, name))
		count++
	}
	return count, nil
}

// SaveEntry writes an entry to the queue directory using AFL naming
func SaveEntry(queueDir string, id int, data []byte) (string, error) {
	name := fmt.Sprintf("id:%06d,src:000000,op:havoc,rep:1", id)
	path := filepath.Join(queueDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save queue entry: %w", err)
	}
	return path, nil
}
