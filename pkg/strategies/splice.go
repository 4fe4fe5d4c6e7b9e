/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: splice.go
Description: Splice mutation. Joins the head of a test case with the tail of another
corpus entry at a shared cut point.
*/

package strategies

import (
	"math/rand"

	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// Source provides corpus entries to splice with
type Source interface {
	// Size returns the number of entries
	Size() int
	// RandomData returns the data of a random entry
	RandomData() []byte
}

// Splice returns data[:cut] + other[cut:] for a random cut no longer than
// either input
func Splice(data, other []byte) []byte {
	if len(data) == 0 || len(other) == 0 {
		return data
	}
	cut := rand.Intn(min(len(data), len(other)) + 1)
	res := make([]byte, 0, len(other))
	res = append(res, data[:cut]...)
	return append(res, other[cut:]...)
}

// SpliceMutator splices test cases with random corpus entries
type SpliceMutator struct {
	source Source
}

// NewSpliceMutator creates a splice mutator drawing from source
func NewSpliceMutator(source Source) *SpliceMutator {
	return &SpliceMutator{source: source}
}

// Apply splices data with a random entry. Corpora with fewer than two
// entries leave data unchanged.
func (m *SpliceMutator) Apply(data []byte) []byte {
	if m.source == nil || m.source.Size() < 2 {
		return data
	}
	return Splice(data, m.source.RandomData())
}

// Mutate splices the test case with a random corpus entry
func (m *SpliceMutator) Mutate(testCase *interfaces.TestCase) (*interfaces.TestCase, error) {
	return derive(testCase, m.Apply(testCase.Data), m.Name()), nil
}

// Name returns the name of this mutator
func (m *SpliceMutator) Name() string { return "SpliceMutator" }

// Description returns a description of this mutator
func (m *SpliceMutator) Description() string {
	return "Combines the head of one test case with the tail of another"
}
