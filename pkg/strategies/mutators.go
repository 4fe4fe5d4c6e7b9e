/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mutators.go
Description: AFL-style mutation operators for crashprobe. Implements bit flips, byte flips,
small arithmetic, interesting-value substitution and block operations (delete, clone,
memset). Every operator works on a copy and leaves its input untouched.
*/

package strategies

import (
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/crashprobe/pkg/interfaces"
)

// Interesting values, as used by AFL
var (
	Interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	Interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767, -1}
	Interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65536, 100000, 2147483647}
)

// arithMax bounds the delta applied by Arith
const arithMax = 35

// maxBlock bounds the length of block operations
const maxBlock = 128

// Operator transforms input bytes into a new slice
type Operator func(data []byte) []byte

// randRange returns a uniform int in [lo, hi]
func randRange(lo, hi int) int {
	return lo + rand.Intn(hi-lo+1)
}

// BitFlip flips one random bit
func BitFlip(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	res := clone(data)
	res[rand.Intn(len(res))] ^= 1 << rand.Intn(8)
	return res
}

// ByteFlip inverts one random byte
func ByteFlip(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	res := clone(data)
	res[rand.Intn(len(res))] ^= 0xFF
	return res
}

// Arith adds a delta in [-35, 35] to one random byte, wrapping around
func Arith(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	res := clone(data)
	idx := rand.Intn(len(res))
	res[idx] = byte(int(res[idx]) + randRange(-arithMax, arithMax))
	return res
}

// Interesting overwrites an 8, 16 or 32 bit window with an interesting value
// in random endianness. Inputs too short for the chosen width are returned
// unchanged.
func Interesting(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	res := clone(data)
	var order binary.ByteOrder = binary.LittleEndian
	if rand.Intn(2) == 1 {
		order = binary.BigEndian
	}

	switch rand.Intn(3) {
	case 0:
		res[rand.Intn(len(res))] = byte(Interesting8[rand.Intn(len(Interesting8))])
	case 1:
		if len(res) < 2 {
			return res
		}
		idx := rand.Intn(len(res) - 1)
		order.PutUint16(res[idx:], uint16(Interesting16[rand.Intn(len(Interesting16))]))
	case 2:
		if len(res) < 4 {
			return res
		}
		idx := rand.Intn(len(res) - 3)
		order.PutUint32(res[idx:], uint32(Interesting32[rand.Intn(len(Interesting32))]))
	}
	return res
}

// Block operation kinds
const (
	BlockDelete = iota
	BlockClone
	BlockMemset
)

// BlockOp applies a random block delete, clone or memset
func BlockOp(data []byte) []byte {
	return blockOp(data, rand.Intn(3))
}

func blockOp(data []byte, op int) []byte {
	if len(data) == 0 {
		return data
	}
	start := rand.Intn(len(data))
	length := randRange(1, min(len(data)-start, maxBlock))

	switch op {
	case BlockDelete:
		if len(data) <= 1 {
			return data
		}
		res := make([]byte, 0, len(data)-length)
		res = append(res, data[:start]...)
		return append(res, data[start+length:]...)

	case BlockClone:
		block := data[start : start+length]
		pos := rand.Intn(len(data) + 1)
		res := make([]byte, 0, len(data)+length)
		res = append(res, data[:pos]...)
		res = append(res, block...)
		return append(res, data[pos:]...)

	default:
		res := clone(data)
		val := byte(rand.Intn(256))
		for i := start; i < start+length; i++ {
			res[i] = val
		}
		return res
	}
}

func clone(data []byte) []byte {
	return append([]byte(nil), data...)
}

// derive builds a child test case carrying the mutated data
func derive(parent *interfaces.TestCase, data []byte, mutator string) *interfaces.TestCase {
	child := &interfaces.TestCase{
		ID:         uuid.New().String(),
		Data:       data,
		ParentID:   parent.ID,
		Generation: parent.Generation + 1,
		CreatedAt:  time.Now(),
		Metadata:   make(map[string]interface{}),
	}
	child.Metadata["mutator"] = mutator
	return child
}

// OperatorMutator adapts a single Operator to the Mutator interface
type OperatorMutator struct {
	name        string
	description string
	op          Operator
}

// Mutate applies the operator to a copy of the test case data
func (m *OperatorMutator) Mutate(testCase *interfaces.TestCase) (*interfaces.TestCase, error) {
	return derive(testCase, m.op(testCase.Data), m.name), nil
}

// Name returns the name of this mutator
func (m *OperatorMutator) Name() string { return m.name }

// Description returns a description of this mutator
func (m *OperatorMutator) Description() string { return m.description }

// NewBitFlipMutator creates a mutator flipping a single bit
func NewBitFlipMutator() *OperatorMutator {
	return &OperatorMutator{"BitFlipMutator", "Flips a single random bit in the test case", BitFlip}
}

// NewByteFlipMutator creates a mutator inverting a single byte
func NewByteFlipMutator() *OperatorMutator {
	return &OperatorMutator{"ByteFlipMutator", "Inverts a single random byte (xor 0xFF)", ByteFlip}
}

// NewArithmeticMutator creates a mutator adding small deltas to a byte
func NewArithmeticMutator() *OperatorMutator {
	return &OperatorMutator{"ArithmeticMutator", "Adds a small arithmetic delta (±35) to one byte", Arith}
}

// NewInterestingValueMutator creates a mutator writing AFL interesting values
func NewInterestingValueMutator() *OperatorMutator {
	return &OperatorMutator{"InterestingValueMutator", "Overwrites 8/16/32-bit windows with boundary values", Interesting}
}

// NewBlockMutator creates a mutator deleting, cloning or memsetting a block
func NewBlockMutator() *OperatorMutator {
	return &OperatorMutator{"BlockMutator", "Deletes, clones or memsets a block of up to 128 bytes", BlockOp}
}
