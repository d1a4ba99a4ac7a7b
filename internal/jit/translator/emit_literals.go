package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
)

func (t *Translator) cnsInt(v int64) ir.Value {
	return t.emit(t.instr().AsDefConstInt(v))
}

func (t *Translator) cnsBool(v bool) ir.Value {
	return t.emit(t.instr().AsDefConstBool(v))
}

func (t *Translator) cnsNull() ir.Value {
	return t.emit(t.instr().AsDefConstNull(ir.TypeInitNull))
}

func (t *Translator) cnsUninit() ir.Value {
	return t.emit(t.instr().AsDefConstNull(ir.TypeUninit))
}

func (t *Translator) cnsStr(s string) ir.Value {
	return t.emit(t.instr().AsDefConstStr(ir.TypeStaticStr, s))
}

func (t *Translator) EmitInt(v int64) {
	t.push(t.cnsInt(v))
}

func (t *Translator) EmitDouble(v float64) {
	t.push(t.emit(t.instr().AsDefConstDbl(v)))
}

func (t *Translator) EmitString(strID uint32) {
	t.push(t.cnsStr(t.lookup.LitStr(strID)))
}

func (t *Translator) EmitArray(arrID uint32) {
	t.push(t.emit(t.instr().AsDefConstStr(ir.TypeStaticArr, t.lookup.Array(arrID))))
}

func (t *Translator) EmitNull() {
	t.push(t.cnsNull())
}

func (t *Translator) EmitTrue() {
	t.push(t.cnsBool(true))
}

func (t *Translator) EmitFalse() {
	t.push(t.cnsBool(false))
}

func (t *Translator) EmitNewArray(capacity uint32) {
	t.push(t.emit(t.instr().AsNewArray(capacity)))
}

// EmitNewTuple builds an array of the n values on top of the stack, the deepest first.
// The array takes over the references of the stack.
func (t *Translator) EmitNewTuple(n uint32) {
	if int64(n) > int64(t.StackDepth()) {
		t.bug("NewTuple of %d elements on a stack of %d cells", n, t.StackDepth())
	}
	values := make([]ir.Value, n)
	for i := int(n) - 1; i >= 0; i-- {
		values[i] = t.popC()
	}
	t.push(t.emit(t.instr().AsNewTuple(values)))
}

// EmitAddElemC pops a value, a key and an array, and pushes the array with the element set.
func (t *Translator) EmitAddElemC() {
	if !t.topType(2).SubtypeOf(ir.TypeArr) || !t.topType(1).SubtypeOf(ir.TypeInt|ir.TypeStr) {
		t.InterpOneOrPunt(ir.TypeArr, 3, 1)
		return
	}
	v := t.popC()
	key := t.popC()
	arr := t.popC()
	res := t.emit(t.instr().AsAddElem(arr, key, v))
	t.decRef(key)
	t.push(res)
}

// EmitAddNewElemC pops a value and an array, and pushes the array with the value appended.
func (t *Translator) EmitAddNewElemC() {
	if !t.topType(1).SubtypeOf(ir.TypeArr) {
		t.InterpOneOrPunt(ir.TypeArr, 2, 1)
		return
	}
	v := t.popC()
	arr := t.popC()
	t.push(t.emit(t.instr().AsAddNewElem(arr, v)))
}

// EmitCns pushes the value of a global constant. Undefined constants are handled by
// the interpreter, which raises a notice.
func (t *Translator) EmitCns(nameID uint32) {
	exit := t.slowExit()
	t.push(t.emit(t.instr().AsLdCns(t.lookup.LitStr(nameID), exit)))
}

// EmitDefCns replaces the value on top of the stack with whether the constant got defined.
func (t *Translator) EmitDefCns(nameID uint32) {
	v := t.popC()
	res := t.emit(t.instr().AsDefCns(t.lookup.LitStr(nameID), v))
	t.decRef(v)
	t.push(res)
}

// EmitClsCnsD pushes a class constant. Missing classes go to the interpreter.
func (t *Translator) EmitClsCnsD(cnsNameID, clsNameID uint32) {
	exit := t.slowExit()
	t.push(t.emit(t.instr().AsLdClsCns(t.lookup.LitStr(clsNameID), t.lookup.LitStr(cnsNameID), exit)))
}

// EmitConcat pops two cells and pushes their concatenation.
func (t *Translator) EmitConcat() {
	if !t.topType(0).SubtypeOf(ir.TypeStr|ir.TypeInt) ||
		!t.topType(1).SubtypeOf(ir.TypeStr|ir.TypeInt) {
		t.InterpOneOrPunt(ir.TypeStr, 2, 1)
		return
	}
	y := t.popC()
	x := t.popC()
	res := t.emit(t.instr().AsBinary(ir.OpcodeConcat, x, y))
	t.decRef(x)
	t.decRef(y)
	t.push(res)
}
