package ir

import (
	"fmt"
	"strings"

	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// TraceID is the identifier of a Trace, unique within a Builder session.
// The main trace is always 0.
type TraceID uint32

// Trace is a straight-line sequence of instructions with a single entry. The main trace
// is the translation of a tracelet; every other trace is an exit trace reachable only
// through a guard, a check or a branch of the main trace.
type Trace struct {
	id TraceID
	// kind is ExitKindInvalid for the main trace.
	kind jitapi.ExitKind
	// off is the tracelet's start offset for the main trace, and the offset execution
	// resumes at for an exit trace.
	off        jitapi.Offset
	root, tail *Instruction
	// guardTail is the last instruction of the entry guard block of the main trace.
	guardTail  *Instruction
	length     int
	terminated bool
}

// ID returns the TraceID of this trace.
func (t *Trace) ID() TraceID {
	return t.id
}

// IsMain returns true if this is the main trace of the session.
func (t *Trace) IsMain() bool {
	return t.id == 0
}

// Kind returns the ExitKind of an exit trace.
func (t *Trace) Kind() jitapi.ExitKind {
	return t.kind
}

// Offset returns the start offset of the main trace or the resume offset of an exit trace.
func (t *Trace) Offset() jitapi.Offset {
	return t.off
}

// Root returns the first instruction of this trace.
func (t *Trace) Root() *Instruction {
	return t.root
}

// Tail returns the last instruction of this trace.
func (t *Trace) Tail() *Instruction {
	return t.tail
}

// Len returns the number of instructions in this trace.
func (t *Trace) Len() int {
	return t.length
}

// Terminated returns true if this trace ends with a terminal instruction.
func (t *Trace) Terminated() bool {
	return t.terminated
}

// Instructions returns the instructions of this trace in order.
func (t *Trace) Instructions() []*Instruction {
	ret := make([]*Instruction, 0, t.length)
	for cur := t.root; cur != nil; cur = cur.next {
		ret = append(ret, cur)
	}
	return ret
}

// Count returns the number of instructions with the given opcode.
func (t *Trace) Count(op Opcode) (n int) {
	for cur := t.root; cur != nil; cur = cur.next {
		if cur.opcode == op {
			n++
		}
	}
	return
}

// Name returns the name of this trace used in formatted output.
func (t *Trace) Name() string {
	if t.IsMain() {
		return "main"
	}
	return fmt.Sprintf("T%d", t.id)
}

// FormatHeader returns the header line of this trace in formatted output.
func (t *Trace) FormatHeader() string {
	if t.IsMain() {
		return fmt.Sprintf("main (%s):", t.off)
	}
	return fmt.Sprintf("%s (%s -> %s):", t.Name(), t.kind, t.off)
}

// Format returns the debugging string of this trace.
func (t *Trace) Format(b Builder) string {
	str := strings.Builder{}
	str.WriteString(t.FormatHeader())
	str.WriteByte('\n')
	for cur := t.root; cur != nil; cur = cur.next {
		str.WriteByte('\t')
		str.WriteString(cur.Format(b))
		str.WriteByte('\n')
	}
	return str.String()
}

func (t *Trace) reset() {
	*t = Trace{off: jitapi.InvalidOffset}
}

// append links instr at the end of this trace.
func (t *Trace) append(instr *Instruction) {
	if t.tail == nil {
		t.root = instr
	} else {
		t.tail.next = instr
		instr.prev = t.tail
	}
	t.tail = instr
	t.length++
	if instr.IsTerminal() {
		t.terminated = true
	}
}

// insertAfter links instr right after `at`, or at the head of this trace if `at` is nil.
func (t *Trace) insertAfter(at, instr *Instruction) {
	if at == nil {
		instr.next = t.root
		if t.root != nil {
			t.root.prev = instr
		} else {
			t.tail = instr
		}
		t.root = instr
	} else {
		next := at.next
		at.next, instr.prev = instr, at
		instr.next = next
		if next != nil {
			next.prev = instr
		} else {
			t.tail = instr
		}
	}
	t.length++
}
