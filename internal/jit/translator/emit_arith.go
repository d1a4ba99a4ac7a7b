package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
)

const typeNumeric = ir.TypeInt | ir.TypeBool | ir.TypeDbl

// EmitAdd pops two cells and pushes their sum. Two arrays are unioned instead.
func (t *Translator) EmitAdd() {
	if t.topType(0).SubtypeOf(ir.TypeArr) && t.topType(1).SubtypeOf(ir.TypeArr) {
		y := t.popC()
		x := t.popC()
		res := t.emit(t.instr().AsArrayAdd(x, y))
		t.decRef(y)
		t.push(res)
		return
	}
	t.emitBinaryArith(ir.OpcodeAdd)
}

// EmitSub and EmitMul pop two numbers and push the result, the deeper cell being the
// left operand.
func (t *Translator) EmitSub() { t.emitBinaryArith(ir.OpcodeSub) }
func (t *Translator) EmitMul() { t.emitBinaryArith(ir.OpcodeMul) }

// Bitwise operators pop two cells and push one.
func (t *Translator) EmitBitAnd() { t.emitBitOp(ir.OpcodeBitAnd) }
func (t *Translator) EmitBitOr()  { t.emitBitOp(ir.OpcodeBitOr) }
func (t *Translator) EmitBitXor() { t.emitBitOp(ir.OpcodeBitXor) }

func (t *Translator) emitBinaryArith(op ir.Opcode) {
	if !t.topType(0).SubtypeOf(typeNumeric) || !t.topType(1).SubtypeOf(typeNumeric) {
		t.InterpOneOrPunt(ir.TypeInt|ir.TypeDbl|ir.TypeArr, 2, 1)
		return
	}
	y := t.pop(typeNumeric)
	x := t.pop(typeNumeric)
	t.push(t.emit(t.instr().AsBinary(op, x, y)))
}

func (t *Translator) emitBitOp(op ir.Opcode) {
	if !t.topType(0).SubtypeOf(ir.TypeInt|ir.TypeBool) || !t.topType(1).SubtypeOf(ir.TypeInt|ir.TypeBool) {
		t.InterpOneOrPunt(ir.TypeInt|ir.TypeStr, 2, 1)
		return
	}
	y := t.popC()
	x := t.popC()
	t.push(t.emit(t.instr().AsBinary(op, x, y)))
}

// EmitBitNot replaces the top of the stack with its complement.
func (t *Translator) EmitBitNot() {
	if !t.topType(0).SubtypeOf(ir.TypeInt) {
		t.InterpOneOrPunt(ir.TypeInt|ir.TypeStr, 1, 1)
		return
	}
	t.push(t.emit(t.instr().AsUnary(ir.OpcodeBitNot, t.popC())))
}

// toBool converts v to a boolean, consuming its reference.
func (t *Translator) toBool(v ir.Value) ir.Value {
	if v.Type().SubtypeOf(ir.TypeBool) {
		return v
	}
	b := t.emit(t.instr().AsUnary(ir.OpcodeConvToBool, v))
	t.decRef(v)
	return b
}

// EmitXor pops two cells, converts each to a boolean and pushes their exclusive or.
func (t *Translator) EmitXor() {
	y := t.toBool(t.popC())
	x := t.toBool(t.popC())
	t.push(t.emit(t.instr().AsBinary(ir.OpcodeLogicXor, x, y)))
}

func (t *Translator) EmitNot() {
	t.push(t.emit(t.instr().AsUnary(ir.OpcodeNot, t.toBool(t.popC()))))
}

// Comparisons pop two cells and push a Bool.
func (t *Translator) EmitGt()    { t.emitCmp(ir.OpcodeGt) }
func (t *Translator) EmitGte()   { t.emitCmp(ir.OpcodeGte) }
func (t *Translator) EmitLt()    { t.emitCmp(ir.OpcodeLt) }
func (t *Translator) EmitLte()   { t.emitCmp(ir.OpcodeLte) }
func (t *Translator) EmitEq()    { t.emitCmp(ir.OpcodeEq) }
func (t *Translator) EmitNeq()   { t.emitCmp(ir.OpcodeNeq) }
func (t *Translator) EmitSame()  { t.emitCmp(ir.OpcodeSame) }
func (t *Translator) EmitNSame() { t.emitCmp(ir.OpcodeNSame) }

// comparable returns true if loose comparisons between x and y can be translated inline.
func comparable(x, y ir.Type) bool {
	scalar := typeNumeric | ir.TypeNull
	return x.SubtypeOf(scalar) && y.SubtypeOf(scalar) ||
		x.SubtypeOf(ir.TypeStr) && y.SubtypeOf(ir.TypeStr)
}

func (t *Translator) emitCmp(op ir.Opcode) {
	strict := op == ir.OpcodeSame || op == ir.OpcodeNSame
	if !strict && !comparable(t.topType(1), t.topType(0)) {
		t.InterpOneOrPunt(ir.TypeBool, 2, 1)
		return
	}
	y := t.popC()
	x := t.popC()
	res := t.emit(t.instr().AsBinary(op, x, y))
	t.decRef(x)
	t.decRef(y)
	t.push(res)
}

// isType returns whether v is of type typ, as a constant if it is statically known.
func (t *Translator) isType(v ir.Value, typ ir.Type) ir.Value {
	switch {
	case v.Type().SubtypeOf(typ):
		return t.cnsBool(true)
	case !v.Type().Maybe(typ):
		return t.cnsBool(false)
	default:
		return t.emit(t.instr().AsIsType(v, typ))
	}
}

func (t *Translator) emitIsTypeC(typ ir.Type) {
	v := t.popC()
	res := t.isType(v, typ)
	t.decRef(v)
	t.push(res)
}

func (t *Translator) emitIsTypeL(id uint32, typ ir.Type) {
	t.push(t.isType(t.ldLocInner(id), typ))
}

// The C forms pop the tested cell, the L forms leave the stack alone. Both push a Bool.
func (t *Translator) EmitIsNullC()   { t.emitIsTypeC(ir.TypeNull) }
func (t *Translator) EmitIsBoolC()   { t.emitIsTypeC(ir.TypeBool) }
func (t *Translator) EmitIsIntC()    { t.emitIsTypeC(ir.TypeInt) }
func (t *Translator) EmitIsDoubleC() { t.emitIsTypeC(ir.TypeDbl) }
func (t *Translator) EmitIsStringC() { t.emitIsTypeC(ir.TypeStr) }
func (t *Translator) EmitIsArrayC()  { t.emitIsTypeC(ir.TypeArr) }
func (t *Translator) EmitIsObjectC() { t.emitIsTypeC(ir.TypeObj) }

func (t *Translator) EmitIsNullL(id uint32)   { t.emitIsTypeL(id, ir.TypeNull) }
func (t *Translator) EmitIsBoolL(id uint32)   { t.emitIsTypeL(id, ir.TypeBool) }
func (t *Translator) EmitIsIntL(id uint32)    { t.emitIsTypeL(id, ir.TypeInt) }
func (t *Translator) EmitIsDoubleL(id uint32) { t.emitIsTypeL(id, ir.TypeDbl) }
func (t *Translator) EmitIsStringL(id uint32) { t.emitIsTypeL(id, ir.TypeStr) }
func (t *Translator) EmitIsArrayL(id uint32)  { t.emitIsTypeL(id, ir.TypeArr) }
func (t *Translator) EmitIsObjectL(id uint32) { t.emitIsTypeL(id, ir.TypeObj) }

// emitConv converts the top of the stack with op unless it is already of type typ.
func (t *Translator) emitConv(op ir.Opcode, typ ir.Type) {
	if t.topType(0).SubtypeOf(typ) {
		return
	}
	v := t.popC()
	res := t.emit(t.instr().AsUnary(op, v))
	t.decRef(v)
	t.push(res)
}

func (t *Translator) EmitCastBool() {
	t.emitConv(ir.OpcodeConvToBool, ir.TypeBool)
}

func (t *Translator) EmitCastInt() {
	t.emitConv(ir.OpcodeConvToInt, ir.TypeInt)
}

func (t *Translator) EmitCastDouble() {
	t.emitConv(ir.OpcodeConvToDbl, ir.TypeDbl)
}

// EmitCastString is a no-op if the top is a string already.
func (t *Translator) EmitCastString() {
	// Objects convert through __toString, which may run arbitrary code.
	if t.topType(0).Maybe(ir.TypeObj) {
		t.InterpOneOrPunt(ir.TypeStr, 1, 1)
		return
	}
	t.emitConv(ir.OpcodeConvToStr, ir.TypeStr)
}

func (t *Translator) EmitCastArray() {
	t.InterpOneOrPunt(ir.TypeArr, 1, 1)
}

func (t *Translator) EmitCastObject() {
	t.InterpOneOrPunt(ir.TypeObj, 1, 1)
}

// EmitPrint pops the cell it prints and pushes 1.
func (t *Translator) EmitPrint() {
	if !t.topType(0).SubtypeOf(ir.TypeUncountedInit | ir.TypeStr) {
		t.InterpOneOrPunt(ir.TypeInt, 1, 1)
		return
	}
	v := t.popC()
	t.emit(t.instr().AsPrint(v))
	t.decRef(v)
	t.push(t.cnsInt(1))
}

func (t *Translator) EmitStrlen() {
	if !t.topType(0).SubtypeOf(ir.TypeStr) {
		t.InterpOneOrPunt(ir.TypeInt|ir.TypeInitNull, 1, 1)
		return
	}
	v := t.popC()
	res := t.emit(t.instr().AsUnary(ir.OpcodeStrLen, v))
	t.decRef(v)
	t.push(res)
}

// EmitIncStat bumps a runtime counter. The stack is not touched.
func (t *Translator) EmitIncStat(counter uint32, delta int64) {
	t.emit(t.instr().AsIncStat(counter, delta))
}
