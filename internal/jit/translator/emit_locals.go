package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// IncDecL operations, as encoded in the OA immediate.
const (
	incDecPreInc = iota
	incDecPostInc
	incDecPreDec
	incDecPostDec
)

// ldLoc loads local id without unboxing it.
func (t *Translator) ldLoc(id uint32) ir.Value {
	return t.emit(t.instr().AsLdLoc(t.b.FramePointer(), id, t.b.LocalType(id)))
}

// ldLocInner loads the cell held by local id, looking through a box.
func (t *Translator) ldLocInner(id uint32) ir.Value {
	v := t.ldLoc(id)
	switch typ := v.Type(); {
	case typ.IsBoxed():
		return t.emit(t.instr().AsLdRef(v, ir.TypeCell))
	case !typ.MaybeBoxed():
		return v
	case t.opts.UnboxPtrs:
		return t.emit(t.instr().AsUnbox(v))
	default:
		return t.emit(t.instr().AsCheckType(v, ir.TypeCell, t.slowExit()))
	}
}

// ldLocWarn is ldLocInner for reads that raise a notice on uninitialized locals.
func (t *Translator) ldLocWarn(id uint32) ir.Value {
	v := t.ldLocInner(id)
	switch typ := v.Type(); {
	case typ.SubtypeOf(ir.TypeUninit):
		t.emit(t.instr().AsRaiseUninitWarning(id))
		return t.cnsNull()
	case typ.Maybe(ir.TypeUninit):
		return t.emit(t.instr().AsCheckType(v, ir.TypeCell&^ir.TypeUninit, t.slowExit()))
	default:
		return v
	}
}

func (t *Translator) stLoc(id uint32, v ir.Value) {
	t.emit(t.instr().AsStLoc(t.b.FramePointer(), id, v))
	t.dirtyLocals[id] = struct{}{}
}

// ldLocOld loads the value local id holds before it is overwritten, if it needs to be
// released afterwards.
func (t *Translator) ldLocOld(id uint32) (ir.Value, bool) {
	if !t.b.LocalType(id).IsCounted() {
		return ir.ValueInvalid, false
	}
	return t.ldLoc(id), true
}

func (t *Translator) EmitCGetL(id uint32) {
	t.pushIncRef(t.ldLocWarn(id))
}

// EmitCGetL2 pushes local id below the cell on top of the stack.
func (t *Translator) EmitCGetL2(id uint32) {
	top := t.popC()
	t.pushIncRef(t.ldLocWarn(id))
	t.push(top)
}

// EmitVGetL pushes the box of local id, boxing the local first if needed.
func (t *Translator) EmitVGetL(id uint32) {
	v := t.ldLoc(id)
	switch typ := v.Type(); {
	case typ.IsBoxed():
		t.pushIncRef(v)
	case !typ.MaybeBoxed():
		if typ.SubtypeOf(ir.TypeUninit) {
			v = t.cnsNull()
		}
		box := t.emit(t.instr().AsBox(v))
		t.stLoc(id, box)
		t.pushIncRef(box)
	default:
		t.InterpOneOrPunt(ir.TypeBoxedCell, 0, 1)
	}
}

// EmitSetL stores the cell on top of the stack to local id. The cell stays on the stack.
func (t *Translator) EmitSetL(id uint32) {
	localType := t.b.LocalType(id)
	if localType.IsBoxed() {
		// Stores through references are left to the interpreter.
		t.InterpOneOrPunt(ir.TypeCell, 1, 1)
		return
	}
	if localType.MaybeBoxed() {
		t.emit(t.instr().AsCheckLoc(t.b.FramePointer(), id, ir.TypeCell, t.slowExit()))
	}
	v := t.popC()
	old, release := t.ldLocOld(id)
	t.stLoc(id, v)
	if release {
		t.decRef(old)
	}
	t.pushIncRef(v)
}

// EmitBindL binds local id to the box on top of the stack, which stays there.
func (t *Translator) EmitBindL(id uint32) {
	box := t.popV()
	old, release := t.ldLocOld(id)
	t.stLoc(id, box)
	if release {
		t.decRef(old)
	}
	t.pushIncRef(box)
}

// EmitUnsetL releases local id. The stack is unchanged.
func (t *Translator) EmitUnsetL(id uint32) {
	old, release := t.ldLocOld(id)
	t.stLoc(id, t.cnsUninit())
	if release {
		t.decRef(old)
	}
}

// EmitUninitLoc marks local id uninitialized without releasing what it held. Used on
// function entry, when the frame's locals hold garbage.
func (t *Translator) EmitUninitLoc(id uint32) {
	t.stLoc(id, t.cnsUninit())
}

func (t *Translator) EmitIssetL(id uint32) {
	t.push(t.isType(t.ldLocInner(id), ir.TypeCell&^ir.TypeNull))
}

func (t *Translator) EmitEmptyL(id uint32) {
	v := t.ldLocInner(id)
	if !v.Type().SubtypeOf(ir.TypeBool) {
		v = t.emit(t.instr().AsUnary(ir.OpcodeConvToBool, v))
	}
	t.push(t.emit(t.instr().AsUnary(ir.OpcodeNot, v)))
}

// EmitIncDecL updates an Int local in place and pushes its old or new value, per op.
func (t *Translator) EmitIncDecL(id uint32, op int64) {
	if !t.b.LocalType(id).SubtypeOf(ir.TypeInt) {
		t.InterpOneOrPunt(ir.TypeInt|ir.TypeDbl|ir.TypeNull|ir.TypeStr, 0, 1)
		return
	}
	arith := ir.OpcodeAdd
	switch op {
	case incDecPreInc, incDecPostInc:
	case incDecPreDec, incDecPostDec:
		arith = ir.OpcodeSub
	default:
		t.bug("IncDecL with operation %d", op)
	}
	v := t.ldLoc(id)
	res := t.emit(t.instr().AsBinary(arith, v, t.cnsInt(1)))
	t.stLoc(id, res)
	if op == incDecPreInc || op == incDecPreDec {
		t.push(res)
	} else {
		t.push(v)
	}
}

// EmitVerifyParamType checks parameter id against its class type hint. Scalar hints
// and failed checks are left to the interpreter.
func (t *Translator) EmitVerifyParamType(id uint32) {
	constraint := t.fn.ParamConstraint(id)
	switch {
	case constraint == "":
		return
	case !t.b.LocalType(id).Maybe(ir.TypeObj):
		t.InterpOneOrPunt(ir.TypeNone, 0, 0)
		return
	}
	t.emit(t.instr().AsVerifyParamType(t.b.FramePointer(), id, constraint, t.exitAtBoundary(jitapi.ExitKindSlow)))
}
