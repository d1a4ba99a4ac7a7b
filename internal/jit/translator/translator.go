// Package translator translates the bytecode instructions of one tracelet into the IR
// of a main trace and its exit traces.
//
// The translator simulates the VM evaluation stack symbolically: values pushed by an
// instruction are handed to the next one without touching memory, until a call, an
// exit or an interpreted instruction needs the stack in memory. Type assumptions the
// translation depends on are recorded as guards checked once at trace entry.
package translator

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
	"github.com/vmjit/hhir/internal/unit"
)

var log = commonlog.GetLogger("hhir.translator")

// Lookup resolves the ids found in bytecode immediates. Implementations are shared by
// concurrent sessions and must be safe for concurrent reads.
type Lookup interface {
	LitStr(id uint32) string
	Array(id uint32) string
	Func(id uint32) *unit.Func
	PreClass(id uint32) *unit.PreClass
	NamedEntityPair(id uint32) unit.NamedEntityPair
	// LookupFunc returns the function if it is known to be defined, nil otherwise.
	LookupFunc(name string) *unit.Func
	// LookupClass returns the class if it is known to be defined, nil otherwise.
	LookupClass(name string) *unit.Class
}

var _ Lookup = (*unit.Unit)(nil)

// Translator is the working state of one tracelet translation session. It must not be
// reused for another tracelet nor shared between goroutines.
type Translator struct {
	b      ir.Builder
	lookup Lookup
	fn     *unit.Func
	opts   Options

	start         jitapi.Offset
	off           jitapi.Offset
	offNextTrace  jitapi.Offset
	lastOff       bool
	hasRet        bool
	closed        bool
	thisAvailable bool

	evalStack EvalStack
	// deficit is the number of cells popped below the window since the last spill.
	deficit uint32
	fpi     FpiStack

	guards guardLedger
	// entryExit is taken when a guard fails at trace entry.
	entryExit *ir.Trace
	// dirtyLocals are the locals stored to by the trace.
	dirtyLocals map[uint32]struct{}

	// boundary is the stack state at the start of the current instruction.
	boundary snapshot
	// exits caches the exit traces resuming at the current instruction.
	exits map[jitapi.ExitKind]*ir.Trace
}

// New starts a translation session for the tracelet of fn starting at `start`.
// initialSpOffset is the depth of the VM stack in cells, relative to the frame, at
// trace entry. The builder is reinitialized for the session.
func New(b ir.Builder, lookup Lookup, fn *unit.Func, start jitapi.Offset, initialSpOffset uint32, opts Options) *Translator {
	b.Init(start, int32(initialSpOffset))
	t := &Translator{
		b:            b,
		lookup:       lookup,
		fn:           fn,
		opts:         opts,
		start:        start,
		off:          jitapi.InvalidOffset,
		offNextTrace: jitapi.InvalidOffset,
		dirtyLocals:  map[uint32]struct{}{},
		exits:        map[jitapi.ExitKind]*ir.Trace{},
	}
	t.guards.init()
	t.entryExit = t.newExit(jitapi.ExitKindGuardFailure, start, snapshot{valid: true})
	log.Debugf("translating %s from %s, sp=%d", fn.FullName(), start, initialSpOffset)
	return t
}

// SetOffset advances the session to the instruction at off, which is the last one of
// the tracelet if isLast is set. Offsets must be strictly increasing.
func (t *Translator) SetOffset(off jitapi.Offset, isLast bool) {
	if t.closed {
		panic(fmt.Sprintf("BUG: %s: translating after the trace was closed at %s", off, t.off))
	}
	if !off.Valid() || (t.off.Valid() && off <= t.off) {
		panic(fmt.Sprintf("BUG: offset %s does not follow %s", off, t.off))
	}
	t.off, t.lastOff = off, isLast
	t.b.AllocateInstruction().AsMarker(off, t.StackDepth()).Insert(t.b)
	t.boundary = snapshot{values: t.evalStack.Values(), deficit: t.deficit, valid: true}
	for k := range t.exits {
		delete(t.exits, k)
	}
	if jitapi.PrintEvalStack {
		fmt.Printf("%s: %s deficit=%d\n", off, t.evalStack.Format(t.b), t.deficit)
	}
}

// Offset returns the offset of the instruction being translated.
func (t *Translator) Offset() jitapi.Offset {
	return t.off
}

// SetOffsetNextTrace records where execution continues after the tracelet.
func (t *Translator) SetOffsetNextTrace(off jitapi.Offset) {
	t.offNextTrace = off
}

// OffsetNextTrace returns the offset recorded by SetOffsetNextTrace.
func (t *Translator) OffsetNextTrace() jitapi.Offset {
	return t.offNextTrace
}

// StackDepth returns the depth of the VM stack in cells at this point of the trace.
func (t *Translator) StackDepth() int32 {
	return t.b.SpOffset() - int32(t.deficit) + int32(t.evalStack.CellCount())
}

// CheckStackDepth compares the simulated stack depth with the statically known height
// of the bytecode stack at the current instruction.
func (t *Translator) CheckStackDepth(expected int32) {
	if !t.opts.ValidateStackDepth {
		return
	}
	if d := t.StackDepth(); d != expected {
		panic(fmt.Sprintf("BUG: %s: stack depth %d, expected %d: %s deficit=%d",
			t.off, d, expected, t.evalStack.Format(t.b), t.deficit))
	}
}

// Closed returns true once the main trace is terminated.
func (t *Translator) Closed() bool {
	return t.closed
}

// HasRet returns true if the tracelet returns from the function.
func (t *Translator) HasRet() bool {
	return t.hasRet
}

// EvalStack returns the symbolic window of the stack.
func (t *Translator) EvalStack() *EvalStack {
	return &t.evalStack
}

// Deficit returns the number of cells popped below the window since the last spill.
func (t *Translator) Deficit() uint32 {
	return t.deficit
}

// FpiDepth returns the number of calls being prepared.
func (t *Translator) FpiDepth() int {
	return t.fpi.Len()
}

// Trace returns the main trace.
func (t *Translator) Trace() *ir.Trace {
	return t.b.MainTrace()
}

// End finishes the session. Unless the trace was already terminated, the stack is
// spilled and the trace exits to nextOff.
func (t *Translator) End(nextOff jitapi.Offset) *ir.Trace {
	if !t.closed {
		if !nextOff.Valid() {
			t.bug("trace falls through to invalid offset %d", int32(nextOff))
		}
		sp := t.spill()
		t.b.AllocateInstruction().AsExitTrace(sp, jitapi.ExitKindNormal, nextOff).Insert(t.b)
		t.close()
	}
	t.guards.seal()
	if jitapi.TraceValidationEnabled {
		if err := t.b.Verify(); err != nil {
			panic(fmt.Sprintf("BUG: %s: %v\n%s", t.start, err, t.b.Format()))
		}
	}
	if jitapi.PrintTrace {
		fmt.Println(t.b.Format())
	}
	log.Debugf("translated %s from %s: %d instructions, %d exits, %d guards",
		t.fn.FullName(), t.start, t.b.MainTrace().Len(), len(t.b.ExitTraces()), len(t.guards.guards))
	return t.b.MainTrace()
}

func (t *Translator) close() {
	t.closed = true
	t.boundary.valid = false
}

// bug panics with the state of the session.
func (t *Translator) bug(format string, args ...any) {
	panic(fmt.Sprintf("BUG: %s: %s: %s deficit=%d",
		t.off, fmt.Sprintf(format, args...), t.evalStack.Format(t.b), t.deficit))
}

func (t *Translator) emit(instr *ir.Instruction) ir.Value {
	if t.closed {
		t.bug("emitting %s into a closed trace", instr.Opcode())
	}
	t.b.InsertInstruction(instr)
	return instr.Return()
}

func (t *Translator) instr() *ir.Instruction {
	return t.b.AllocateInstruction()
}
