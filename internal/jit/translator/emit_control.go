package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// EmitJmp translates an unconditional jump. Jumps inside the tracelet need no code;
// a jump leaving it ends the trace.
func (t *Translator) EmitJmp(target jitapi.Offset, breakTracelet bool) {
	if !breakTracelet {
		return
	}
	if !target.Valid() {
		t.bug("jump to invalid offset %d", int32(target))
	}
	sp := t.spill()
	t.emit(t.instr().AsExitTrace(sp, jitapi.ExitKindNormal, target))
	t.close()
}

// EmitJmpZ branches to target when the cell on top of the stack is falsy. The trace
// continues with the fall-through path.
func (t *Translator) EmitJmpZ(target jitapi.Offset) {
	t.emitCondJmp(target, false)
}

// EmitJmpNZ pops the condition and branches to target when it is truthy.
func (t *Translator) EmitJmpNZ(target jitapi.Offset) {
	t.emitCondJmp(target, true)
}

func (t *Translator) emitCondJmp(target jitapi.Offset, nz bool) {
	cond := t.toBool(t.popC())
	exit := t.exitToOffset(target)
	if nz {
		t.emit(t.instr().AsJmpNZ(cond, exit))
	} else {
		t.emit(t.instr().AsJmpZ(cond, exit))
	}
}

// EmitRetC returns the cell on top of the stack, which must then be empty.
func (t *Translator) EmitRetC() {
	t.emitRet(t.popC())
}

// EmitRetV returns the value inside the box on top of the stack.
func (t *Translator) EmitRetV() {
	box := t.popV()
	v := t.incRef(t.emit(t.instr().AsLdRef(box, ir.TypeCell)))
	t.decRef(box)
	t.emitRet(v)
}

// emitRet releases the frame and returns v to the caller.
func (t *Translator) emitRet(v ir.Value) {
	if t.evalStack.Len() > 0 {
		t.bug("returning with %d values on the stack", t.evalStack.Len())
	}
	fp := t.b.FramePointer()
	if t.fn.NumLocals > 0 {
		t.emit(t.instr().AsDecRefLocals(fp, t.fn.NumLocals))
	}
	if t.fn.MayHaveThis() {
		t.emit(t.instr().AsDecRefThis(fp))
	}
	t.emit(t.instr().AsRetVal(fp, v))
	t.emit(t.instr().AsRetCtrl(t.b.StackPointer(), fp))
	t.hasRet = true
	t.close()
}
