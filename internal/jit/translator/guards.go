package translator

import (
	"fmt"

	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// GuardKind is the kind of slot a TypeGuard is about.
type GuardKind byte

const (
	GuardLocal GuardKind = iota
	GuardStack
	GuardIter
)

// String implements fmt.Stringer.
func (k GuardKind) String() string {
	switch k {
	case GuardLocal:
		return "local"
	case GuardStack:
		return "stack"
	case GuardIter:
		return "iter"
	}
	return fmt.Sprintf("GuardKind(%d)", byte(k))
}

// TypeGuard is a speculative assumption about the type of a slot at trace entry.
// Stack indices count cells below the stack pointer at trace entry.
type TypeGuard struct {
	Kind  GuardKind
	Index uint32
	Type  ir.Type
}

// String implements fmt.Stringer.
func (g TypeGuard) String() string {
	return fmt.Sprintf("%s %d: %s", g.Kind, g.Index, g.Type)
}

// guardLedger is the append-only list of the guards of a session.
type guardLedger struct {
	guards []TypeGuard
	seen   map[TypeGuard]struct{}
	sealed bool
}

func (l *guardLedger) init() {
	l.seen = map[TypeGuard]struct{}{}
}

// add appends g and returns true, or returns false if g was already recorded.
func (l *guardLedger) add(g TypeGuard) bool {
	if l.sealed {
		panic("BUG: guard recorded after the trace was finished: " + g.String())
	}
	if _, ok := l.seen[g]; ok {
		return false
	}
	l.seen[g] = struct{}{}
	l.guards = append(l.guards, g)
	return true
}

func (l *guardLedger) seal() {
	l.sealed = true
}

// Guards returns the guards recorded so far, in recording order.
func (t *Translator) Guards() []TypeGuard {
	return append([]TypeGuard(nil), t.guards.guards...)
}

// GuardTypeLocal assumes local `id` holds a value of type typ at trace entry. If the
// trace already stored to the local, the type is checked where the trace is instead.
func (t *Translator) GuardTypeLocal(id uint32, typ ir.Type) {
	if _, dirty := t.dirtyLocals[id]; dirty {
		t.CheckTypeLocal(id, typ)
		return
	}
	g := TypeGuard{Kind: GuardLocal, Index: id, Type: typ}
	if !t.guards.add(g) {
		return
	}
	log.Debugf("%s: guard %s", t.start, g)
	t.b.InsertEntryGuard(t.instr().AsGuardLoc(t.b.FramePointer(), id, typ, t.entryExit))
}

// GuardTypeStack assumes the stack slot `index` cells below the stack pointer at trace
// entry holds a value of type typ. It returns the exit taken if it does not.
func (t *Translator) GuardTypeStack(index uint32, typ ir.Type) *ir.Trace {
	if int32(index) >= t.b.EntrySpOffset() {
		t.bug("guarding stack slot %d of a stack of %d cells", index, t.b.EntrySpOffset())
	}
	t.guardStack(index, typ)
	return t.entryExit
}

func (t *Translator) guardStack(index uint32, typ ir.Type) {
	g := TypeGuard{Kind: GuardStack, Index: index, Type: typ}
	if !t.guards.add(g) {
		return
	}
	log.Debugf("%s: guard %s", t.start, g)
	t.b.InsertEntryGuard(t.instr().AsGuardStk(t.b.EntryStackPointer(), index, typ, t.entryExit))
}

// GuardTypeIterator assumes the base of iterator `id` is of type typ at trace entry.
func (t *Translator) GuardTypeIterator(id uint32, typ ir.Type) {
	g := TypeGuard{Kind: GuardIter, Index: id, Type: typ}
	if !t.guards.add(g) {
		return
	}
	log.Debugf("%s: guard %s", t.start, g)
	t.b.InsertEntryGuard(t.instr().AsGuardIter(t.b.FramePointer(), id, typ, t.entryExit))
}

// GuardRefs assumes the callee of the activation record entryArDelta cells below the
// stack pointer at trace entry takes its parameters by reference where vals says so,
// for the parameters selected by mask. It must be installed before any instruction is
// translated and returns the exit taken if the assumption does not hold.
func (t *Translator) GuardRefs(entryArDelta uint32, mask, vals []bool) *ir.Trace {
	if t.off.Valid() {
		t.bug("by-reference guard installed after translation started")
	}
	if len(mask) != len(vals) || len(mask) > 64 {
		t.bug("by-reference guard with %d mask and %d value bits", len(mask), len(vals))
	}
	var m, v uint64
	for i := range mask {
		if mask[i] {
			m |= 1 << i
		}
		if vals[i] {
			v |= 1 << i
		}
	}
	fn := t.emit(t.instr().AsLdARFuncPtr(t.b.EntryStackPointer(), entryArDelta))
	t.emit(t.instr().AsGuardRefs(fn, uint32(len(mask)), m, v, t.entryExit))
	return t.entryExit
}

// AssertTypeLocal records that local `id` is known to be of type typ here.
func (t *Translator) AssertTypeLocal(id uint32, typ ir.Type) {
	t.emit(t.instr().AsAssertLoc(id, typ))
}

// AssertTypeStack records that stack slot `index`, counted from the top, is known to
// be of type typ here.
func (t *Translator) AssertTypeStack(index uint32, typ ir.Type) {
	if v, ok := t.evalStack.Top(index); ok {
		if !v.Type().SubtypeOf(typ) {
			t.replace(index, t.emit(t.instr().AsAssertType(v, typ)))
		}
		return
	}
	t.extend(index, typ, reloadAssert)
}

// CheckTypeLocal checks that local `id` is of type typ here, leaving the trace through
// an exit resuming at the current instruction if it is not.
func (t *Translator) CheckTypeLocal(id uint32, typ ir.Type) {
	if t.b.LocalType(id).SubtypeOf(typ) {
		return
	}
	t.emit(t.instr().AsCheckLoc(t.b.FramePointer(), id, typ, t.exitAtBoundary(jitapi.ExitKindCheckFailure)))
}

// CheckTypeTopOfStack checks that the value on top of the stack, produced by the
// current instruction, is of type typ, leaving the trace to nextOff if it is not.
// A top still in memory, e.g. left there by InterpOne, is checked in place.
func (t *Translator) CheckTypeTopOfStack(typ ir.Type, nextOff jitapi.Offset) {
	if t.evalStack.Len() == 0 {
		if t.StackDepth() <= 0 {
			t.bug("checking the top of an empty stack")
		}
		if t.topType(0).SubtypeOf(typ) {
			return
		}
		exit := t.exitTo(jitapi.ExitKindCheckFailure, nextOff)
		t.emit(t.instr().AsCheckStk(t.b.StackPointer(), t.deficit, typ, exit))
		return
	}
	v := t.top(0, ir.TypeGen)
	if v.Type().SubtypeOf(typ) {
		return
	}
	exit := t.exitTo(jitapi.ExitKindCheckFailure, nextOff)
	t.replace(0, t.emit(t.instr().AsCheckType(v, typ, exit)))
}

// SetThisAvailable records that $this is known to be bound in the current frame.
func (t *Translator) SetThisAvailable() {
	t.thisAvailable = true
}
