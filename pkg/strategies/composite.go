/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: composite.go
Description: Composite mutation stages. HavocMutator stacks several random operators on one
input; ScheduleMutator picks a single stage per call with AFL-like weights and is the
mutator the engine drives.
*/

package strategies

import (
	"bytes"
	"math/rand"

	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// Havoc stacking bounds
const (
	HavocMinStack = 4
	HavocMaxStack = 16
)

// EmptySeed replaces empty inputs before mutation
var EmptySeed = bytes.Repeat([]byte("a"), 10)

// HavocMutator applies a random stack of operators
type HavocMutator struct {
	dict   Dictionary
	splice *SpliceMutator
}

// NewHavocMutator creates a havoc stage. The dictionary and splice source are
// optional and only join the operator pool when usable.
func NewHavocMutator(dict Dictionary, source Source) *HavocMutator {
	return &HavocMutator{dict: dict, splice: NewSpliceMutator(source)}
}

// Apply stacks 4 to 16 random operators on data
func (m *HavocMutator) Apply(data []byte) []byte {
	ops := []Operator{BitFlip, ByteFlip, Arith, Interesting, BlockOp}
	if len(m.dict) > 0 {
		ops = append(ops, m.dict.Apply)
	}
	if m.splice.source != nil && m.splice.source.Size() > 1 {
		ops = append(ops, m.splice.Apply)
	}

	res := data
	for i := randRange(HavocMinStack, HavocMaxStack); i > 0; i-- {
		res = ops[rand.Intn(len(ops))](res)
	}
	return res
}

// Mutate applies a havoc stack to the test case
func (m *HavocMutator) Mutate(testCase *interfaces.TestCase) (*interfaces.TestCase, error) {
	return derive(testCase, m.Apply(testCase.Data), m.Name()), nil
}

// Name returns the name of this mutator
func (m *HavocMutator) Name() string { return "HavocMutator" }

// Description returns a description of this mutator
func (m *HavocMutator) Description() string {
	return "Stacks 4-16 random operators, including dictionary and splice when available"
}

// ScheduleMutator picks one mutation stage per call:
// 5% bit flip, 5% byte flip, 10% arithmetic, 10% interesting values,
// 10% block operations, 15% dictionary (only with a dictionary loaded),
// 10% splice and havoc for the remainder.
type ScheduleMutator struct {
	dict   Dictionary
	splice *SpliceMutator
	havoc  *HavocMutator

	// roll returns a value in [0, 1); replaced in tests
	roll func() float64
}

// NewScheduleMutator creates the default stage scheduler
func NewScheduleMutator(dict Dictionary, source Source) *ScheduleMutator {
	return &ScheduleMutator{
		dict:   dict,
		splice: NewSpliceMutator(source),
		havoc:  NewHavocMutator(dict, source),
		roll:   rand.Float64,
	}
}

// Apply mutates data with one stage and returns the result and stage name
func (m *ScheduleMutator) Apply(data []byte) ([]byte, string) {
	if len(data) == 0 {
		return clone(EmptySeed), "empty"
	}

	r := m.roll()
	switch {
	case r < 0.05:
		return BitFlip(data), "bitflip"
	case r < 0.10:
		return ByteFlip(data), "byteflip"
	case r < 0.20:
		return Arith(data), "arith"
	case r < 0.30:
		return Interesting(data), "interest"
	case r < 0.40:
		return BlockOp(data), "block"
	case r < 0.55 && len(m.dict) > 0:
		return m.dict.Apply(data), "dict"
	case r < 0.65:
		return m.splice.Apply(data), "splice"
	default:
		return m.havoc.Apply(data), "havoc"
	}
}

// Splice exposes the splice stage for pre-mutation splicing
func (m *ScheduleMutator) Splice(data []byte) []byte {
	return m.splice.Apply(data)
}

// Mutate applies one scheduled stage to the test case
func (m *ScheduleMutator) Mutate(testCase *interfaces.TestCase) (*interfaces.TestCase, error) {
	data, stage := m.Apply(testCase.Data)
	child := derive(testCase, data, m.Name())
	child.Metadata["stage"] = stage
	return child, nil
}

// Name returns the name of this mutator
func (m *ScheduleMutator) Name() string { return "ScheduleMutator" }

// Description returns a description of this mutator
func (m *ScheduleMutator) Description() string {
	return "Selects one weighted mutation stage per test case; havoc by default"
}

// Catalog returns every mutator with its description, for listing
func Catalog() []interfaces.Mutator {
	return []interfaces.Mutator{
		NewBitFlipMutator(),
		NewByteFlipMutator(),
		NewArithmeticMutator(),
		NewInterestingValueMutator(),
		NewBlockMutator(),
		NewDictionaryMutator(nil),
		NewSpliceMutator(nil),
		NewHavocMutator(nil, nil),
		NewScheduleMutator(nil, nil),
	}
}
