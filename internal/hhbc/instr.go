package hhbc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// MaxCount bounds the element count of NewTuple and the argument count of FCall.
const MaxCount = 1 << 16

// Instr is one decoded bytecode instruction.
type Instr struct {
	Op     Op
	Offset jitapi.Offset
	// Imms holds the immediates in encoding order. Doubles are stored as their IEEE 754
	// bits and branch targets as absolute offsets.
	Imms []int64
	// Next is the offset of the instruction that follows in the bytecode stream.
	Next jitapi.Offset
}

// Imm returns the i-th immediate.
func (in *Instr) Imm(i int) int64 {
	if i >= len(in.Imms) {
		panic(fmt.Sprintf("BUG: %s at %s has no immediate #%d", in.Op, in.Offset, i))
	}
	return in.Imms[i]
}

// Dbl returns the i-th immediate as a double.
func (in *Instr) Dbl(i int) float64 {
	return math.Float64frombits(uint64(in.Imm(i)))
}

// ID returns the i-th immediate as a local, iterator, string or array id.
func (in *Instr) ID(i int) uint32 {
	return uint32(in.Imm(i))
}

// Target returns the branch target of a branch instruction.
func (in *Instr) Target() jitapi.Offset {
	for i, k := range in.Op.Immediates() {
		if k == ImmBA {
			return jitapi.Offset(in.Imm(i))
		}
	}
	panic(fmt.Sprintf("BUG: %s has no branch target", in.Op))
}

// NumParams returns the argument count of an FPush* or FCall instruction.
func (in *Instr) NumParams() uint32 {
	if !in.Op.Is(FlagFPush) && !in.Op.Is(FlagFCall) {
		panic(fmt.Sprintf("BUG: %s has no argument count", in.Op))
	}
	return in.ID(0)
}

// Pops returns the number of cells this instruction pops.
func (in *Instr) Pops() int {
	switch in.Op {
	case OpNewTuple:
		return int(in.Imm(0))
	case OpFCall:
		return int(in.Imm(0)) + ActRecCells
	}
	return ops[in.Op].pops
}

// Pushes returns the number of cells this instruction pushes.
func (in *Instr) Pushes() int {
	return ops[in.Op].pushes
}

// String implements fmt.Stringer.
func (in *Instr) String() string {
	var sb strings.Builder
	sb.WriteString(in.Offset.String())
	sb.WriteString(": ")
	sb.WriteString(in.Op.String())
	kinds := in.Op.Immediates()
	for i, imm := range in.Imms {
		sb.WriteByte(' ')
		if i < len(kinds) {
			switch kinds[i] {
			case ImmDA:
				sb.WriteString(strconv.FormatFloat(math.Float64frombits(uint64(imm)), 'g', -1, 64))
				continue
			case ImmBA:
				sb.WriteString(jitapi.Offset(imm).String())
				continue
			case ImmLA:
				sb.WriteByte('L')
			case ImmIA:
				sb.WriteByte('I')
			}
		}
		sb.WriteString(strconv.FormatInt(imm, 10))
	}
	return sb.String()
}

// Validate checks that the immediates match the opcode.
func (in *Instr) Validate() error {
	if !in.Op.Valid() {
		return fmt.Errorf("%s: %w", in.Op, ErrUnknownOp)
	}
	if n := len(in.Op.Immediates()); n != len(in.Imms) {
		return fmt.Errorf("%s at %s: want %d immediates, got %d: %w", in.Op, in.Offset, n, len(in.Imms), ErrImmediate)
	}
	if (in.Op == OpNewTuple || in.Op == OpFCall) && (in.Imm(0) < 0 || in.Imm(0) > MaxCount) {
		return fmt.Errorf("%s at %s: count %d out of range: %w", in.Op, in.Offset, in.Imm(0), ErrImmediate)
	}
	for i, k := range in.Op.Immediates() {
		if k == ImmBA && (in.Imms[i] < 0 || in.Imms[i] > math.MaxInt32) {
			return fmt.Errorf("%s at %s: branch target %d out of range: %w", in.Op, in.Offset, in.Imms[i], ErrImmediate)
		}
	}
	return nil
}
