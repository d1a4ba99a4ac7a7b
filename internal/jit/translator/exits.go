package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// snapshot is a state of the stack an exit trace materializes before leaving.
type snapshot struct {
	// values is the window, top first.
	values  []ir.Value
	deficit uint32
	// valid is false once the memory stack no longer matches the state.
	valid bool
}

// newExit builds an exit trace that spills the stack state s and resumes at off.
func (t *Translator) newExit(kind jitapi.ExitKind, off jitapi.Offset, s snapshot) *ir.Trace {
	if !s.valid {
		t.bug("exit to %s from an unknown stack state", off)
	}
	if !off.Valid() {
		t.bug("%s exit to invalid offset %d", kind, int32(off))
	}
	exit := t.b.AllocateExitTrace(kind, off)
	cur := t.b.CurrentTrace()
	t.b.SetCurrentTrace(exit)
	sp := t.b.StackPointer()
	if len(s.values) > 0 || s.deficit > 0 {
		sp = t.instr().AsSpillStack(sp, s.deficit, s.values).Insert(t.b).Return()
	}
	t.instr().AsExitTrace(sp, kind, off).Insert(t.b)
	t.b.SetCurrentTrace(cur)
	log.Debugf("%s: exit %s", t.off, exit.FormatHeader())
	return exit
}

// exitAtBoundary returns an exit resuming at the current instruction with the stack as
// it was when the instruction started.
func (t *Translator) exitAtBoundary(kind jitapi.ExitKind) *ir.Trace {
	if !t.off.Valid() {
		t.bug("%s exit before the first instruction", kind)
	}
	if exit, ok := t.exits[kind]; ok {
		return exit
	}
	exit := t.newExit(kind, t.off, t.boundary)
	t.exits[kind] = exit
	return exit
}

// exitTo returns an exit resuming at off with the current stack.
func (t *Translator) exitTo(kind jitapi.ExitKind, off jitapi.Offset) *ir.Trace {
	return t.newExit(kind, off, snapshot{values: t.spillValues(), deficit: t.deficit, valid: true})
}

// exitToOffset returns the exit continuing at off, e.g. the target of a branch.
func (t *Translator) exitToOffset(off jitapi.Offset) *ir.Trace {
	return t.exitTo(jitapi.ExitKindNormal, off)
}

// slowExit returns the exit that executes the current instruction in the interpreter.
func (t *Translator) slowExit() *ir.Trace {
	return t.exitAtBoundary(jitapi.ExitKindSlow)
}

// InterpOne spills the stack and interprets the current instruction, which pops `pops`
// and pushes `pushes` cells, the top one of type typ. Translation continues afterwards.
func (t *Translator) InterpOne(typ ir.Type, pops, pushes uint32) {
	log.Debugf("%s: interpreting one instruction", t.off)
	sp := t.spill()
	if !t.boundary.valid {
		t.bug("interpreting an instruction that was partially translated")
	}
	t.emit(t.instr().AsInterpOne(sp, t.off, pops, pushes, typ))
	t.boundary.valid = false
}

// InterpOneOrPunt interprets the current instruction if the options allow it and
// abandons the tracelet otherwise.
func (t *Translator) InterpOneOrPunt(typ ir.Type, pops, pushes uint32) {
	if t.opts.InterpOneEnabled {
		t.InterpOne(typ, pops, pushes)
	} else {
		t.Punt()
	}
}

// Punt abandons native translation at the current instruction: the stack is spilled
// and the trace continues in the interpreter from the current instruction on.
func (t *Translator) Punt() {
	log.Debugf("%s: punting", t.off)
	t.spill()
	exit := t.exitAtBoundary(jitapi.ExitKindPunt)
	t.emit(t.instr().AsJmp(exit))
	t.close()
}
