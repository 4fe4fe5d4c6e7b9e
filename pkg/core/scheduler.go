/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scheduler.go
Description: Seed scheduling for crashprobe. Favored entries are picked most of the time;
otherwise the shortest of a few random picks is explored. Energy decides how many
mutations a picked seed receives and favors short inputs.
*/

package core

import (
	"math/rand"

	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// Scheduling constants
const (
	FavoredProbability = 0.9
	explorationSample  = 5
	MinEnergy          = 5
	MaxEnergy          = 100
	energyBudget       = 500
	energyMinLen       = 10
)

// Scheduler picks the next seed to mutate
type Scheduler struct {
	corpus *Corpus
	roll   func() float64
}

// NewScheduler creates a scheduler over corpus
func NewScheduler(corpus *Corpus) *Scheduler {
	return &Scheduler{corpus: corpus, roll: rand.Float64}
}

// Next returns the next seed, or nil when the corpus is empty
func (s *Scheduler) Next() *interfaces.TestCase {
	favored := s.corpus.Favored()
	if len(favored) > 0 && s.roll() < FavoredProbability {
		return s.corpus.Get(favored[rand.Intn(len(favored))])
	}

	if s.corpus.Size() <= explorationSample {
		return s.corpus.Random()
	}

	var best *interfaces.TestCase
	for i := 0; i < explorationSample; i++ {
		tc := s.corpus.Random()
		if best == nil || len(tc.Data) < len(best.Data) {
			best = tc
		}
	}
	return best
}

// Energy returns the number of mutations for a seed: 500/max(10, len),
// clamped to [5, 100]
func Energy(data []byte) int {
	energy := energyBudget / max(energyMinLen, len(data))
	return min(max(MinEnergy, energy), MaxEnergy)
}
