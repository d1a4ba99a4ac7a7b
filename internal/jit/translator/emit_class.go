package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// ldThis loads $this, checking it is bound unless that is already known.
func (t *Translator) ldThis() ir.Value {
	var exit *ir.Trace
	if !t.thisAvailable {
		exit = t.slowExit()
	}
	this := t.emit(t.instr().AsLdThis(t.b.FramePointer(), exit))
	t.thisAvailable = true
	return this
}

func (t *Translator) EmitThis() {
	if !t.fn.IsMethod() {
		// Fatal outside of a class.
		t.InterpOneOrPunt(ir.TypeObj, 0, 1)
		return
	}
	t.pushIncRef(t.ldThis())
}

// EmitCheckThis leaves the trace if $this is not bound. The stack is unchanged.
func (t *Translator) EmitCheckThis() {
	if t.thisAvailable {
		return
	}
	if !t.fn.IsMethod() {
		t.InterpOneOrPunt(ir.TypeNone, 0, 0)
		return
	}
	t.ldThis()
}

// EmitBareThis pushes $this, or null if it is not bound. A non-zero notice asks for
// a notice when it is not.
func (t *Translator) EmitBareThis(notice int64) {
	switch {
	case !t.fn.MayHaveThis() && notice == 0:
		t.push(t.cnsNull())
	case t.thisAvailable:
		t.pushIncRef(t.ldThis())
	default:
		t.InterpOneOrPunt(ir.TypeObj|ir.TypeInitNull, 0, 1)
	}
}

// EmitInitThisLoc stores $this to local id, or Uninit where there is no $this.
func (t *Translator) EmitInitThisLoc(id uint32) {
	switch {
	case !t.fn.MayHaveThis():
		old, release := t.ldLocOld(id)
		t.stLoc(id, t.cnsUninit())
		if release {
			t.decRef(old)
		}
	case t.thisAvailable:
		old, release := t.ldLocOld(id)
		t.stLoc(id, t.incRef(t.ldThis()))
		if release {
			t.decRef(old)
		}
	default:
		t.InterpOneOrPunt(ir.TypeNone, 0, 0)
	}
}

// EmitSelf, EmitParent and EmitLateBoundCls push a class.
func (t *Translator) EmitSelf() {
	if !t.fn.IsMethod() {
		t.InterpOneOrPunt(ir.TypeClassPtr, 0, 1)
		return
	}
	t.push(t.emit(t.instr().AsLdClsCtx(t.b.FramePointer())))
}

func (t *Translator) EmitParent() {
	if t.fn.IsMethod() {
		if cls := t.lookup.LookupClass(t.fn.Class); cls != nil && cls.Parent != "" {
			parent, _ := t.ldCls(cls.Parent)
			t.push(parent)
			return
		}
	}
	t.InterpOneOrPunt(ir.TypeClassPtr, 0, 1)
}

func (t *Translator) EmitLateBoundCls() {
	t.InterpOneOrPunt(ir.TypeClassPtr, 0, 1)
}

// EmitAGetC replaces the class name on top of the stack with the class.
func (t *Translator) EmitAGetC() {
	if !t.topType(0).SubtypeOf(ir.TypeStr) {
		t.InterpOneOrPunt(ir.TypeClassPtr, 1, 1)
		return
	}
	name := t.popC()
	cls := t.emit(t.instr().AsLdCls(name))
	t.decRef(name)
	t.push(cls)
}

// EmitAGetL pushes the class named by local id.
func (t *Translator) EmitAGetL(id uint32) {
	if !t.b.LocalType(id).SubtypeOf(ir.TypeStr) {
		t.InterpOneOrPunt(ir.TypeClassPtr, 0, 1)
		return
	}
	t.push(t.emit(t.instr().AsLdCls(t.ldLocInner(id))))
}

func (t *Translator) EmitDefFunc(id uint32) {
	t.emit(t.instr().AsDefFunc(t.lookup.Func(id).FullName()))
}

// EmitDefCls defines pre-class id. The interpreter resumes at after if the parent
// class has to be autoloaded.
func (t *Translator) EmitDefCls(id uint32, after jitapi.Offset) {
	t.emit(t.instr().AsDefCls(t.lookup.PreClass(id).Name, after))
}

// EmitInstanceOfD replaces the top of the stack with whether it is an instance of the
// named class.
func (t *Translator) EmitInstanceOfD(nameID uint32) {
	typ := t.topType(0)
	if !typ.Maybe(ir.TypeObj) {
		t.popDecRef(ir.TypeCell)
		t.push(t.cnsBool(false))
		return
	}
	name := t.lookup.LitStr(nameID)
	cls := t.lookup.LookupClass(name)
	if !typ.SubtypeOf(ir.TypeObj) || cls == nil {
		t.InterpOneOrPunt(ir.TypeBool, 1, 1)
		return
	}
	obj := t.popC()
	res := t.emit(t.instr().AsInstanceOfD(obj, t.clsPtr(cls)))
	t.decRef(obj)
	t.push(res)
}
