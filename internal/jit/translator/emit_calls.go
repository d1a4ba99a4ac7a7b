package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
	"github.com/vmjit/hhir/internal/unit"
)

// pushActRec defines the activation record of a call of fn with context ctx and opens
// its FPI region.
func (t *Translator) pushActRec(fn, ctx ir.Value, numParams uint32, callee *unit.Func) {
	ar := t.emit(t.instr().AsDefActRec(fn, ctx, numParams, ""))
	t.push(ar)
	t.fpi.push(fpiRecord{ar: ar, fn: fn, numParams: numParams, callee: callee})
}

// interpFPush interprets an FPush* instruction popping `pops` cells. The activation
// record only exists in memory afterwards.
func (t *Translator) interpFPush(numParams, pops uint32) {
	t.InterpOneOrPunt(ir.TypeNone, pops, ir.NumActRecCells)
	if !t.closed {
		t.fpi.push(fpiRecord{ar: ir.ValueInvalid, fn: ir.ValueInvalid, numParams: numParams})
	}
}

func (t *Translator) funcPtr(fn *unit.Func) ir.Value {
	return t.emit(t.instr().AsDefConstStr(ir.TypeFuncPtr, fn.FullName()))
}

func (t *Translator) clsPtr(cls *unit.Class) ir.Value {
	return t.emit(t.instr().AsDefConstStr(ir.TypeClassPtr, cls.Name))
}

// ldCls returns the class named name, at translation time if it is known to be defined.
func (t *Translator) ldCls(name string) (ir.Value, *unit.Class) {
	if cls := t.lookup.LookupClass(name); cls != nil {
		return t.clsPtr(cls), cls
	}
	return t.emit(t.instr().AsLdCls(t.cnsStr(name))), nil
}

// EmitFPushFuncD pushes the activation record of a call of the named function, bound
// at translation time when the unit defines it.
func (t *Translator) EmitFPushFuncD(numParams, nameID uint32) {
	name := t.lookup.LitStr(nameID)
	var fn ir.Value
	callee := t.lookup.LookupFunc(name)
	if callee != nil {
		fn = t.funcPtr(callee)
	} else {
		fn = t.emit(t.instr().AsLdFunc(t.cnsStr(name)))
	}
	t.pushActRec(fn, ir.ValueInvalid, numParams, callee)
}

// EmitFPushFunc prepares a call of the function named by the string on top of the
// stack. Closures and invokable objects are handled by the interpreter.
func (t *Translator) EmitFPushFunc(numParams uint32) {
	if !t.topType(0).SubtypeOf(ir.TypeStr) {
		t.interpFPush(numParams, 1)
		return
	}
	name := t.popC()
	fn := t.emit(t.instr().AsLdFunc(name))
	t.decRef(name)
	t.pushActRec(fn, ir.ValueInvalid, numParams, nil)
}

// EmitFPushObjMethodD pops the object and pushes the activation record of a call of
// its method.
func (t *Translator) EmitFPushObjMethodD(numParams, nameID uint32) {
	if !t.topType(0).SubtypeOf(ir.TypeObj) {
		t.interpFPush(numParams, 1)
		return
	}
	obj := t.popC()
	fn := t.emit(t.instr().AsLdObjMethod(obj, t.lookup.LitStr(nameID)))
	// The activation record takes over the reference of the stack.
	t.pushActRec(fn, obj, numParams, nil)
}

// EmitFPushClsMethodD pushes the activation record of a static method call. Nothing is popped.
func (t *Translator) EmitFPushClsMethodD(numParams, methNameID, pairID uint32) {
	pair := t.lookup.NamedEntityPair(pairID)
	name := t.lookup.LitStr(methNameID)
	if cls := t.lookup.LookupClass(pair.Name); cls != nil {
		if m := cls.Method(name, t.lookup.LookupClass); m != nil && m.Static {
			t.pushActRec(t.funcPtr(m), t.clsPtr(cls), numParams, m)
			return
		}
	}
	cls, _ := t.ldCls(pair.Name)
	fn := t.emit(t.instr().AsLdClsMethod(cls, name))
	t.pushActRec(fn, cls, numParams, nil)
}

// EmitFPushCtorD allocates an instance of the named class and prepares the call of its
// constructor. The instance stays on the stack below the activation record.
func (t *Translator) EmitFPushCtorD(numParams, clsNameID uint32) {
	clsV, cls := t.ldCls(t.lookup.LitStr(clsNameID))
	t.emitFPushCtor(numParams, clsV, cls)
}

// EmitFPushCtor is EmitFPushCtorD for the class on top of the stack, which it pops.
func (t *Translator) EmitFPushCtor(numParams uint32) {
	if !t.topType(0).SubtypeOf(ir.TypeClassPtr) {
		t.interpFPush(numParams, 1)
		return
	}
	t.emitFPushCtor(numParams, t.popA(), nil)
}

func (t *Translator) emitFPushCtor(numParams uint32, clsV ir.Value, cls *unit.Class) {
	var callee *unit.Func
	if cls != nil {
		callee = cls.Method("__construct", t.lookup.LookupClass)
	}
	obj := t.emit(t.instr().AsNewObj(clsV))
	fn := t.emit(t.instr().AsLdCtor(clsV))
	t.push(obj)
	t.pushActRec(fn, t.incRef(obj), numParams, callee)
}

// EmitFPassC passes the cell on top of the stack as parameter i. Passing a temporary
// to a by-reference parameter is left to the interpreter, which raises the error.
func (t *Translator) EmitFPassC(i uint32) {
	rec, ok := t.fpi.top()
	if !ok {
		t.bug("FPassC outside of an FPI region")
	}
	if rec.callee == nil || !rec.callee.ByRef(i) {
		return
	}
	t.InterpOneOrPunt(ir.TypeGen, 1, 1)
}

// EmitFPassR passes the result of a call as parameter i, unboxed unless the callee
// takes it by reference.
func (t *Translator) EmitFPassR(i uint32) {
	rec, ok := t.fpi.top()
	if !ok {
		t.bug("FPassR outside of an FPI region")
	}
	switch {
	case rec.callee == nil:
		t.InterpOneOrPunt(ir.TypeGen, 1, 1)
	case !rec.callee.ByRef(i):
		t.EmitUnboxR()
	}
}

// EmitFCall closes the innermost FPI region: the stack is spilled and the callee runs,
// returning to returnOff with its result pushed.
func (t *Translator) EmitFCall(numParams uint32, returnOff jitapi.Offset) {
	rec, ok := t.fpi.pop()
	if !ok {
		t.bug("FCall without a matching FPush")
	}
	if rec.numParams != numParams {
		t.bug("FCall with %d parameters for an activation record of %d", numParams, rec.numParams)
	}
	sp := t.spill()
	fn := rec.fn
	if !fn.Valid() {
		fn = t.emit(t.instr().AsLdARFuncPtr(sp, numParams))
	}
	res := t.emit(t.instr().AsCall(sp, fn, numParams, returnOff))
	t.boundary.valid = false
	t.push(res)
}
