package translator

import (
	"strings"

	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/unit"
)

// EvalStack is the window of the VM evaluation stack that is modeled symbolically,
// i.e. the values pushed since the last spill that are not in memory yet.
// Index 0 is the top of the stack.
type EvalStack struct {
	// values is bottom first.
	values []ir.Value
}

// Push pushes v on top.
func (s *EvalStack) Push(v ir.Value) {
	s.values = append(s.values, v)
}

// Pop removes the top value. ok is false if the window is empty.
func (s *EvalStack) Pop() (v ir.Value, ok bool) {
	n := len(s.values)
	if n == 0 {
		return ir.ValueInvalid, false
	}
	v = s.values[n-1]
	s.values = s.values[:n-1]
	return v, true
}

// Top returns the value `offset` slots below the top. ok is false if the slot is
// below the window.
func (s *EvalStack) Top(offset uint32) (v ir.Value, ok bool) {
	if int(offset) >= len(s.values) {
		return ir.ValueInvalid, false
	}
	return s.values[len(s.values)-1-int(offset)], true
}

// Replace overwrites the slot `offset` slots below the top.
func (s *EvalStack) Replace(offset uint32, v ir.Value) {
	if int(offset) >= len(s.values) {
		panic("BUG: replacing a slot below the window")
	}
	s.values[len(s.values)-1-int(offset)] = v
}

// pushBottom widens the window by one slot at the bottom.
func (s *EvalStack) pushBottom(v ir.Value) {
	s.values = append(s.values, ir.ValueInvalid)
	copy(s.values[1:], s.values)
	s.values[0] = v
}

// Len returns the number of slots in the window.
func (s *EvalStack) Len() int {
	return len(s.values)
}

// CellCount returns the width of the window in cells.
func (s *EvalStack) CellCount() uint32 {
	var ret uint32
	for _, v := range s.values {
		ret += uint32(v.Type().CellWidth())
	}
	return ret
}

// Values returns the values of the window, top first.
func (s *EvalStack) Values() []ir.Value {
	ret := make([]ir.Value, len(s.values))
	for i, v := range s.values {
		ret[len(ret)-1-i] = v
	}
	return ret
}

// Clear empties the window.
func (s *EvalStack) Clear() {
	s.values = s.values[:0]
}

// Format returns the window, bottom first, for debugging.
func (s *EvalStack) Format(b ir.Builder) string {
	parts := make([]string, len(s.values))
	for i, v := range s.values {
		parts[i] = v.Format(b) + ":" + v.Type().String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// fpiRecord is the call being prepared between an FPush* instruction and its FCall.
type fpiRecord struct {
	// ar is the activation record, ValueInvalid if it was built by the interpreter.
	ar ir.Value
	// fn is the callee, ValueInvalid if it must be loaded from the activation record.
	fn        ir.Value
	numParams uint32
	// callee is the metadata of the function called, nil if it is only known at run time.
	callee *unit.Func
}

// FpiStack brackets call preparation: one push per FPush* instruction and one pop
// per FCall, nested calls popping in LIFO order.
type FpiStack struct {
	records []fpiRecord
}

func (s *FpiStack) push(r fpiRecord) {
	s.records = append(s.records, r)
}

func (s *FpiStack) pop() (r fpiRecord, ok bool) {
	n := len(s.records)
	if n == 0 {
		return fpiRecord{}, false
	}
	r = s.records[n-1]
	s.records = s.records[:n-1]
	return r, true
}

func (s *FpiStack) top() (r fpiRecord, ok bool) {
	if n := len(s.records); n > 0 {
		return s.records[n-1], true
	}
	return fpiRecord{}, false
}

// Len returns the number of calls being prepared.
func (s *FpiStack) Len() int {
	return len(s.records)
}
