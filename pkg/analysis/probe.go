/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: probe.go
Description: Coverage probe. Runs a handful of inputs against a target and compares the
edges they reach, which is the quickest way to confirm that instrumentation works and
that the target distinguishes interesting inputs from boring ones.
*/

package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// DefaultProbeInputs are a boring input and the scanner trigger
var DefaultProbeInputs = []string{"a", "crash"}

// ProbeResult is the outcome of running one input
type ProbeResult struct {
	Input    []byte
	Status   interfaces.ExecutionStatus
	ExitCode int
	Reason   string
	Stderr   []byte
	Edges    []int
	Hash     string
}

// Probe runs inputs through an initialized executor
type Probe struct {
	executor interfaces.Executor
}

// NewProbe creates a probe over executor
func NewProbe(executor interfaces.Executor) *Probe {
	return &Probe{executor: executor}
}

// Run executes each input once, in order
func (p *Probe) Run(ctx context.Context, inputs [][]byte) ([]*ProbeResult, error) {
	results := make([]*ProbeResult, 0, len(inputs))
	for i, input := range inputs {
		res, err := p.executor.Execute(ctx, &interfaces.TestCase{
			ID:   fmt.Sprintf("probe-%d", i),
			Data: input,
		})
		if err != nil {
			return nil, fmt.Errorf("probe input %q: %w", input, err)
		}
		results = append(results, &ProbeResult{
			Input:    input,
			Status:   res.Status,
			ExitCode: res.ExitCode,
			Reason:   res.Reason,
			Stderr:   res.Stderr,
			Edges:    coverage.Edges(res.Bitmap),
			Hash:     res.BitmapHash,
		})
	}
	return results, nil
}

// Compare returns the edges reached by other but not by base, sorted
func Compare(base, other *ProbeResult) []int {
	seen := make(map[int]struct{}, len(base.Edges))
	for _, e := range base.Edges {
		seen[e] = struct{}{}
	}
	var added []int
	for _, e := range other.Edges {
		if _, ok := seen[e]; !ok {
			added = append(added, e)
		}
	}
	sort.Ints(added)
	return added
}
