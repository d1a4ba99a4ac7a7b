package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// Opcode represents an IR instruction.
type Opcode uint32

// Instruction represents an instruction whose opcode is specified by
// Opcode. Since Go doesn't have union type, we use this flattened type
// for all instructions, and therefore each field has different meaning
// depending on Opcode.
type Instruction struct {
	opcode Opcode
	u64    uint64
	u64b   uint64
	idx    uint32
	off    jitapi.Offset
	str    string
	v      Value
	v2     Value
	vs     []Value
	typ    Type
	// target is the exit trace this instruction may transfer control to.
	target     *Trace
	prev, next *Instruction

	rValue Value
	// folded is set by the Builder when the instruction was simplified away:
	// rValue then refers to an already existing value and the instruction is
	// not linked into any trace.
	folded bool
}

// Opcode returns the opcode of this instruction.
func (i *Instruction) Opcode() Opcode {
	return i.opcode
}

// reset resets this instruction to the initial state.
func (i *Instruction) reset() {
	*i = Instruction{}
	i.v = ValueInvalid
	i.v2 = ValueInvalid
	i.rValue = ValueInvalid
	i.off = jitapi.InvalidOffset
}

// Return returns the Value produced by this instruction, or ValueInvalid if there's none.
func (i *Instruction) Return() Value {
	return i.rValue
}

// Args returns the arguments to this instruction.
func (i *Instruction) Args() (v1, v2 Value, vs []Value) {
	return i.v, i.v2, i.vs
}

// Arg returns the first argument to this instruction.
func (i *Instruction) Arg() Value {
	return i.v
}

// Type returns the type immediate of this instruction: the guarded or checked type for
// guards and checks, the loaded type for loads.
func (i *Instruction) Type() Type {
	return i.typ
}

// Index returns the local, stack, iterator or parameter index immediate.
func (i *Instruction) Index() uint32 {
	return i.idx
}

// Offset returns the bytecode offset immediate.
func (i *Instruction) Offset() jitapi.Offset {
	return i.off
}

// Target returns the exit trace this instruction may branch to, or nil.
func (i *Instruction) Target() *Trace {
	return i.target
}

// Folded returns true if the Builder simplified this instruction to an existing value.
func (i *Instruction) Folded() bool {
	return i.folded
}

// Next returns the next instruction in the trace.
func (i *Instruction) Next() *Instruction {
	return i.next
}

// Prev returns the previous instruction in the trace.
func (i *Instruction) Prev() *Instruction {
	return i.prev
}

// Insert inserts this instruction into the Builder's current trace and returns itself.
func (i *Instruction) Insert(b Builder) *Instruction {
	b.InsertInstruction(i)
	return i
}

// IsTerminal returns true if nothing may follow this instruction in its trace.
func (i *Instruction) IsTerminal() bool {
	switch i.opcode {
	case OpcodeExitTrace, OpcodeRetCtrl, OpcodeJmp:
		return true
	default:
		return false
	}
}

// IsGuard returns true if this instruction checks a speculative type assumption.
func (i *Instruction) IsGuard() bool {
	switch i.opcode {
	case OpcodeGuardLoc, OpcodeGuardStk, OpcodeGuardIter, OpcodeGuardRefs:
		return true
	default:
		return false
	}
}

const (
	OpcodeInvalid Opcode = iota

	// OpcodeDefFP defines the frame pointer on trace entry: `fp = DefFP`.
	OpcodeDefFP
	// OpcodeDefSP defines the stack pointer on trace entry: `sp = DefSP spOffset`.
	OpcodeDefSP
	// OpcodeMarker records the bytecode offset and stack depth of the following instructions.
	OpcodeMarker
	// OpcodeDefConst defines a constant: `v = DefConst type, payload`.
	OpcodeDefConst

	// OpcodeLdLoc loads a local: `v = LdLoc fp, L#`.
	OpcodeLdLoc
	// OpcodeStLoc stores a local: `StLoc fp, L#, v`.
	OpcodeStLoc
	// OpcodeLdStack loads a cell from the memory stack: `v = LdStack sp, S#`.
	// If the target is set the loaded type is checked and the target taken on mismatch.
	OpcodeLdStack
	// OpcodeSpillStack writes the given values (top first) to the memory stack after
	// dropping `deficit` cells: `sp' = SpillStack sp, deficit, values...`.
	OpcodeSpillStack
	// OpcodeLdRef loads the cell held by a box: `v = LdRef box`.
	OpcodeLdRef
	// OpcodeUnbox is LdRef if the value is a box, and the value itself otherwise.
	OpcodeUnbox
	// OpcodeBox boxes a cell: `box = Box v`.
	OpcodeBox

	// OpcodeGuardLoc checks the type of a local at trace entry.
	OpcodeGuardLoc
	// OpcodeGuardStk checks the type of a stack slot at trace entry.
	OpcodeGuardStk
	// OpcodeGuardIter checks the type of the base of an iterator at trace entry.
	OpcodeGuardIter
	// OpcodeGuardRefs checks by-reference parameter passing of a pending call's callee.
	OpcodeGuardRefs
	// OpcodeCheckLoc checks the type of a local in the middle of a trace.
	OpcodeCheckLoc
	// OpcodeCheckStk checks the type of a memory stack slot in the middle of a trace.
	OpcodeCheckStk
	// OpcodeCheckType checks the type of a value and produces the narrowed value.
	OpcodeCheckType
	// OpcodeAssertLoc records a derived fact about the type of a local. Not checked.
	OpcodeAssertLoc
	// OpcodeAssertType records a derived fact about the type of a value. Not checked.
	// The result is the same value with the narrowed type.
	OpcodeAssertType

	OpcodeIncRef
	OpcodeDecRef
	OpcodeDecRefLocals
	OpcodeDecRefThis

	OpcodeAdd
	OpcodeSub
	OpcodeMul
	OpcodeBitAnd
	OpcodeBitOr
	OpcodeBitXor
	OpcodeBitNot
	OpcodeLogicXor
	OpcodeNot
	OpcodeConcat

	OpcodeGt
	OpcodeGte
	OpcodeLt
	OpcodeLte
	OpcodeEq
	OpcodeNeq
	OpcodeSame
	OpcodeNSame
	// OpcodeIsType tests whether a value has the type immediate: `b = IsType v, type`.
	OpcodeIsType
	OpcodeInstanceOfD

	OpcodeConvToBool
	OpcodeConvToInt
	OpcodeConvToDbl
	OpcodeConvToStr

	// OpcodeJmpZ branches to the target trace if the value is falsy.
	OpcodeJmpZ
	// OpcodeJmpNZ branches to the target trace if the value is truthy.
	OpcodeJmpNZ
	// OpcodeJmp unconditionally continues in the target trace.
	OpcodeJmp
	// OpcodeExitTrace leaves native code: `ExitTrace sp, kind, bc#`.
	OpcodeExitTrace
	// OpcodeInterpOne interprets a single bytecode instruction on the materialized stack.
	OpcodeInterpOne

	OpcodeDefActRec
	OpcodeLdFunc
	OpcodeLdObjMethod
	OpcodeLdClsMethod
	OpcodeLdCtor
	OpcodeLdARFuncPtr
	OpcodeNewObj
	OpcodeCall
	OpcodeRetVal
	OpcodeRetCtrl

	OpcodeLdThis
	OpcodeLdClsCtx
	OpcodeLdCls
	OpcodeLdClsCns
	OpcodeLdCns
	OpcodeDefCns
	OpcodeDefFunc
	OpcodeDefCls

	OpcodeNewArray
	OpcodeNewTuple
	OpcodeArrayAdd
	OpcodeAddElem
	OpcodeAddNewElem

	OpcodeIterInit
	OpcodeIterNext

	OpcodePrint
	OpcodeStrLen
	OpcodeIncStat
	OpcodeVerifyParamType
	OpcodeRaiseUninitWarning

	opcodeEnd
)

var opcodeNames = [opcodeEnd]string{
	OpcodeInvalid:            "Invalid",
	OpcodeDefFP:              "DefFP",
	OpcodeDefSP:              "DefSP",
	OpcodeMarker:             "Marker",
	OpcodeDefConst:           "DefConst",
	OpcodeLdLoc:              "LdLoc",
	OpcodeStLoc:              "StLoc",
	OpcodeLdStack:            "LdStack",
	OpcodeSpillStack:         "SpillStack",
	OpcodeLdRef:              "LdRef",
	OpcodeUnbox:              "Unbox",
	OpcodeBox:                "Box",
	OpcodeGuardLoc:           "GuardLoc",
	OpcodeGuardStk:           "GuardStk",
	OpcodeGuardIter:          "GuardIter",
	OpcodeGuardRefs:          "GuardRefs",
	OpcodeCheckLoc:           "CheckLoc",
	OpcodeCheckStk:           "CheckStk",
	OpcodeCheckType:          "CheckType",
	OpcodeAssertLoc:          "AssertLoc",
	OpcodeAssertType:         "AssertType",
	OpcodeIncRef:             "IncRef",
	OpcodeDecRef:             "DecRef",
	OpcodeDecRefLocals:       "DecRefLocals",
	OpcodeDecRefThis:         "DecRefThis",
	OpcodeAdd:                "Add",
	OpcodeSub:                "Sub",
	OpcodeMul:                "Mul",
	OpcodeBitAnd:             "BitAnd",
	OpcodeBitOr:              "BitOr",
	OpcodeBitXor:             "BitXor",
	OpcodeBitNot:             "BitNot",
	OpcodeLogicXor:           "LogicXor",
	OpcodeNot:                "Not",
	OpcodeConcat:             "Concat",
	OpcodeGt:                 "Gt",
	OpcodeGte:                "Gte",
	OpcodeLt:                 "Lt",
	OpcodeLte:                "Lte",
	OpcodeEq:                 "Eq",
	OpcodeNeq:                "Neq",
	OpcodeSame:               "Same",
	OpcodeNSame:              "NSame",
	OpcodeIsType:             "IsType",
	OpcodeInstanceOfD:        "InstanceOfD",
	OpcodeConvToBool:         "ConvToBool",
	OpcodeConvToInt:          "ConvToInt",
	OpcodeConvToDbl:          "ConvToDbl",
	OpcodeConvToStr:          "ConvToStr",
	OpcodeJmpZ:               "JmpZ",
	OpcodeJmpNZ:              "JmpNZ",
	OpcodeJmp:                "Jmp",
	OpcodeExitTrace:          "ExitTrace",
	OpcodeInterpOne:          "InterpOne",
	OpcodeDefActRec:          "DefActRec",
	OpcodeLdFunc:             "LdFunc",
	OpcodeLdObjMethod:        "LdObjMethod",
	OpcodeLdClsMethod:        "LdClsMethod",
	OpcodeLdCtor:             "LdCtor",
	OpcodeLdARFuncPtr:        "LdARFuncPtr",
	OpcodeNewObj:             "NewObj",
	OpcodeCall:               "Call",
	OpcodeRetVal:             "RetVal",
	OpcodeRetCtrl:            "RetCtrl",
	OpcodeLdThis:             "LdThis",
	OpcodeLdClsCtx:           "LdClsCtx",
	OpcodeLdCls:              "LdCls",
	OpcodeLdClsCns:           "LdClsCns",
	OpcodeLdCns:              "LdCns",
	OpcodeDefCns:             "DefCns",
	OpcodeDefFunc:            "DefFunc",
	OpcodeDefCls:             "DefCls",
	OpcodeNewArray:           "NewArray",
	OpcodeNewTuple:           "NewTuple",
	OpcodeArrayAdd:           "ArrayAdd",
	OpcodeAddElem:            "AddElem",
	OpcodeAddNewElem:         "AddNewElem",
	OpcodeIterInit:           "IterInit",
	OpcodeIterNext:           "IterNext",
	OpcodePrint:              "Print",
	OpcodeStrLen:             "StrLen",
	OpcodeIncStat:            "IncStat",
	OpcodeVerifyParamType:    "VerifyParamType",
	OpcodeRaiseUninitWarning: "RaiseUninitWarning",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if o < opcodeEnd {
		if name := opcodeNames[o]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("Opcode(%d)", uint32(o))
}

// AsMarker initializes this instruction as a Marker for the given offset and stack depth.
func (i *Instruction) AsMarker(off jitapi.Offset, spOffset int32) *Instruction {
	i.opcode = OpcodeMarker
	i.off = off
	i.u64 = uint64(uint32(spOffset))
	return i
}

// MarkerData returns the offset and stack depth of a Marker.
func (i *Instruction) MarkerData() (off jitapi.Offset, spOffset int32) {
	return i.off, int32(uint32(i.u64))
}

// AsDefConstInt initializes this instruction as an integer constant.
func (i *Instruction) AsDefConstInt(v int64) *Instruction {
	i.opcode, i.typ, i.u64 = OpcodeDefConst, TypeInt, uint64(v)
	return i
}

// AsDefConstDbl initializes this instruction as a double constant.
func (i *Instruction) AsDefConstDbl(v float64) *Instruction {
	i.opcode, i.typ, i.u64 = OpcodeDefConst, TypeDbl, math.Float64bits(v)
	return i
}

// AsDefConstBool initializes this instruction as a boolean constant.
func (i *Instruction) AsDefConstBool(v bool) *Instruction {
	i.opcode, i.typ = OpcodeDefConst, TypeBool
	if v {
		i.u64 = 1
	}
	return i
}

// AsDefConstNull initializes this instruction as the constant null (TypeInitNull)
// or the uninitialized value (TypeUninit).
func (i *Instruction) AsDefConstNull(typ Type) *Instruction {
	if typ != TypeInitNull && typ != TypeUninit {
		panic("BUG: null constant of type " + typ.String())
	}
	i.opcode, i.typ = OpcodeDefConst, typ
	return i
}

// AsDefConstStr initializes this instruction as a constant of a named entity: a static
// string, a static array (by its literal id), a function or a class.
func (i *Instruction) AsDefConstStr(typ Type, s string) *Instruction {
	switch typ {
	case TypeStaticStr, TypeStaticArr, TypeFuncPtr, TypeClassPtr:
	default:
		panic("BUG: named constant of type " + typ.String())
	}
	i.opcode, i.typ, i.str = OpcodeDefConst, typ, s
	return i
}

// ConstantData returns the payload of a DefConst.
func (i *Instruction) ConstantData() (typ Type, bits uint64, s string) {
	return i.typ, i.u64, i.str
}

// AsLdLoc initializes this instruction as a load of local `id` with at most the given type.
func (i *Instruction) AsLdLoc(fp Value, id uint32, typ Type) *Instruction {
	i.opcode, i.v, i.idx, i.typ = OpcodeLdLoc, fp, id, typ
	return i
}

// AsStLoc initializes this instruction as a store of v into local `id`.
func (i *Instruction) AsStLoc(fp Value, id uint32, v Value) *Instruction {
	i.opcode, i.v, i.idx, i.v2 = OpcodeStLoc, fp, id, v
	return i
}

// AsLdStack initializes this instruction as a load of the cell `offset` cells below sp.
// A non-nil exit makes it a checked load.
func (i *Instruction) AsLdStack(sp Value, offset uint32, typ Type, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.typ, i.target = OpcodeLdStack, sp, offset, typ, exit
	return i
}

// AsSpillStack initializes this instruction as a spill of values (top first) after
// dropping deficit cells from sp.
func (i *Instruction) AsSpillStack(sp Value, deficit uint32, values []Value) *Instruction {
	i.opcode, i.v, i.idx = OpcodeSpillStack, sp, deficit
	i.vs = append(i.vs[:0], values...)
	return i
}

// SpillStackData returns the arguments of a SpillStack.
func (i *Instruction) SpillStackData() (sp Value, deficit uint32, values []Value) {
	return i.v, i.idx, i.vs
}

// AsLdRef initializes this instruction as a load of the cell held by a box.
func (i *Instruction) AsLdRef(box Value, typ Type) *Instruction {
	i.opcode, i.v, i.typ = OpcodeLdRef, box, typ
	return i
}

// AsUnbox initializes this instruction as an unbox of a possibly boxed value.
func (i *Instruction) AsUnbox(v Value) *Instruction {
	i.opcode, i.v = OpcodeUnbox, v
	return i
}

// AsBox initializes this instruction as a box of v.
func (i *Instruction) AsBox(v Value) *Instruction {
	i.opcode, i.v = OpcodeBox, v
	return i
}

// AsGuardLoc initializes this instruction as an entry guard on local `id`.
func (i *Instruction) AsGuardLoc(fp Value, id uint32, typ Type, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.typ, i.target = OpcodeGuardLoc, fp, id, typ, exit
	return i
}

// AsGuardStk initializes this instruction as an entry guard on the stack slot `index`
// cells below the entry stack pointer.
func (i *Instruction) AsGuardStk(sp Value, index uint32, typ Type, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.typ, i.target = OpcodeGuardStk, sp, index, typ, exit
	return i
}

// AsGuardIter initializes this instruction as an entry guard on iterator `id`.
func (i *Instruction) AsGuardIter(fp Value, id uint32, typ Type, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.typ, i.target = OpcodeGuardIter, fp, id, typ, exit
	return i
}

// AsGuardRefs initializes this instruction as a guard that the callee `funcPtr` takes
// the parameters selected by mask by reference exactly where vals has a set bit.
func (i *Instruction) AsGuardRefs(funcPtr Value, numParams uint32, mask, vals uint64, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.u64, i.u64b, i.target = OpcodeGuardRefs, funcPtr, numParams, mask, vals, exit
	return i
}

// GuardRefsData returns the bit sets of a GuardRefs.
func (i *Instruction) GuardRefsData() (mask, vals uint64) {
	return i.u64, i.u64b
}

// AsCheckLoc initializes this instruction as a check of local `id` inside the trace.
func (i *Instruction) AsCheckLoc(fp Value, id uint32, typ Type, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.typ, i.target = OpcodeCheckLoc, fp, id, typ, exit
	return i
}

// AsCheckStk initializes this instruction as a check of the memory stack slot `offset` inside the trace.
func (i *Instruction) AsCheckStk(sp Value, offset uint32, typ Type, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.typ, i.target = OpcodeCheckStk, sp, offset, typ, exit
	return i
}

// AsCheckType initializes this instruction as a check of v's type.
func (i *Instruction) AsCheckType(v Value, typ Type, exit *Trace) *Instruction {
	i.opcode, i.v, i.typ, i.target = OpcodeCheckType, v, typ, exit
	return i
}

// AsAssertLoc initializes this instruction as an assertion on local `id`'s type.
func (i *Instruction) AsAssertLoc(id uint32, typ Type) *Instruction {
	i.opcode, i.idx, i.typ = OpcodeAssertLoc, id, typ
	return i
}

// AsAssertType initializes this instruction as an assertion on v's type.
func (i *Instruction) AsAssertType(v Value, typ Type) *Instruction {
	i.opcode, i.v, i.typ = OpcodeAssertType, v, typ
	return i
}

// AsIncRef initializes this instruction as an increment of v's reference count.
func (i *Instruction) AsIncRef(v Value) *Instruction {
	i.opcode, i.v = OpcodeIncRef, v
	return i
}

// AsDecRef initializes this instruction as a decrement of v's reference count.
func (i *Instruction) AsDecRef(v Value) *Instruction {
	i.opcode, i.v = OpcodeDecRef, v
	return i
}

// AsDecRefLocals initializes this instruction as a release of all locals of the frame.
func (i *Instruction) AsDecRefLocals(fp Value, numLocals uint32) *Instruction {
	i.opcode, i.v, i.idx = OpcodeDecRefLocals, fp, numLocals
	return i
}

// AsDecRefThis initializes this instruction as a release of the frame's $this, if any.
func (i *Instruction) AsDecRefThis(fp Value) *Instruction {
	i.opcode, i.v = OpcodeDecRefThis, fp
	return i
}

// AsBinary initializes this instruction as one of the binary arithmetic, bitwise,
// boolean, concatenation or comparison opcodes.
func (i *Instruction) AsBinary(op Opcode, x, y Value) *Instruction {
	switch op {
	case OpcodeAdd, OpcodeSub, OpcodeMul, OpcodeBitAnd, OpcodeBitOr, OpcodeBitXor,
		OpcodeLogicXor, OpcodeConcat,
		OpcodeGt, OpcodeGte, OpcodeLt, OpcodeLte, OpcodeEq, OpcodeNeq, OpcodeSame, OpcodeNSame:
	default:
		panic("BUG: not a binary opcode: " + op.String())
	}
	i.opcode, i.v, i.v2 = op, x, y
	return i
}

// BinaryData returns the operands of a binary instruction.
func (i *Instruction) BinaryData() (x, y Value) {
	return i.v, i.v2
}

// AsUnary initializes this instruction as one of BitNot, Not, the conversions or StrLen.
func (i *Instruction) AsUnary(op Opcode, x Value) *Instruction {
	switch op {
	case OpcodeBitNot, OpcodeNot, OpcodeConvToBool, OpcodeConvToInt, OpcodeConvToDbl, OpcodeConvToStr, OpcodeStrLen:
	default:
		panic("BUG: not a unary opcode: " + op.String())
	}
	i.opcode, i.v = op, x
	return i
}

// AsIsType initializes this instruction as a test of whether v is of type typ.
func (i *Instruction) AsIsType(v Value, typ Type) *Instruction {
	i.opcode, i.v, i.typ = OpcodeIsType, v, typ
	return i
}

// AsInstanceOfD initializes this instruction as an instanceof test against a known class.
func (i *Instruction) AsInstanceOfD(obj, cls Value) *Instruction {
	i.opcode, i.v, i.v2 = OpcodeInstanceOfD, obj, cls
	return i
}

// AsJmpZ initializes this instruction as a branch to exit taken when v is falsy.
func (i *Instruction) AsJmpZ(v Value, exit *Trace) *Instruction {
	i.opcode, i.v, i.target = OpcodeJmpZ, v, exit
	return i
}

// AsJmpNZ initializes this instruction as a branch to exit taken when v is truthy.
func (i *Instruction) AsJmpNZ(v Value, exit *Trace) *Instruction {
	i.opcode, i.v, i.target = OpcodeJmpNZ, v, exit
	return i
}

// AsJmp initializes this instruction as an unconditional jump to exit.
func (i *Instruction) AsJmp(exit *Trace) *Instruction {
	i.opcode, i.target = OpcodeJmp, exit
	return i
}

// AsExitTrace initializes this instruction as an exit to the runtime which resumes at off.
func (i *Instruction) AsExitTrace(sp Value, kind jitapi.ExitKind, off jitapi.Offset) *Instruction {
	i.opcode, i.v, i.u64, i.off = OpcodeExitTrace, sp, uint64(kind), off
	return i
}

// ExitTraceData returns the kind and resume offset of an ExitTrace.
func (i *Instruction) ExitTraceData() (kind jitapi.ExitKind, off jitapi.Offset) {
	return jitapi.ExitKind(i.u64), i.off
}

// AsInterpOne initializes this instruction as the interpretation of the instruction at off,
// which pops `pops` cells and pushes `pushes` cells, the top one of type typ.
func (i *Instruction) AsInterpOne(sp Value, off jitapi.Offset, pops, pushes uint32, typ Type) *Instruction {
	i.opcode, i.v, i.off, i.idx, i.u64, i.typ = OpcodeInterpOne, sp, off, pops, uint64(pushes), typ
	return i
}

// InterpOneData returns the stack effect of an InterpOne.
func (i *Instruction) InterpOneData() (pops, pushes uint32, typ Type) {
	return i.idx, uint32(i.u64), i.typ
}

// AsDefActRec initializes this instruction as an activation record for a call of fn
// with the given $this or class context (ValueInvalid if none).
func (i *Instruction) AsDefActRec(fn, ctx Value, numParams uint32, invName string) *Instruction {
	i.opcode, i.v, i.v2, i.idx, i.str = OpcodeDefActRec, fn, ctx, numParams, invName
	return i
}

// AsLdFunc initializes this instruction as a lookup of a function by a runtime name.
func (i *Instruction) AsLdFunc(name Value) *Instruction {
	i.opcode, i.v = OpcodeLdFunc, name
	return i
}

// AsLdObjMethod initializes this instruction as a lookup of a method on an object.
func (i *Instruction) AsLdObjMethod(obj Value, method string) *Instruction {
	i.opcode, i.v, i.str = OpcodeLdObjMethod, obj, method
	return i
}

// AsLdClsMethod initializes this instruction as a lookup of a static method on a class.
func (i *Instruction) AsLdClsMethod(cls Value, method string) *Instruction {
	i.opcode, i.v, i.str = OpcodeLdClsMethod, cls, method
	return i
}

// AsLdCtor initializes this instruction as a lookup of the constructor of a class.
func (i *Instruction) AsLdCtor(cls Value) *Instruction {
	i.opcode, i.v = OpcodeLdCtor, cls
	return i
}

// AsLdARFuncPtr initializes this instruction as a load of the callee of the
// activation record `offset` cells below sp.
func (i *Instruction) AsLdARFuncPtr(sp Value, offset uint32) *Instruction {
	i.opcode, i.v, i.idx = OpcodeLdARFuncPtr, sp, offset
	return i
}

// AsNewObj initializes this instruction as an allocation of an instance of cls.
func (i *Instruction) AsNewObj(cls Value) *Instruction {
	i.opcode, i.v = OpcodeNewObj, cls
	return i
}

// AsCall initializes this instruction as a call of the function whose activation record
// and numParams arguments have been spilled below sp. Execution continues at returnOff
// when the callee returns.
func (i *Instruction) AsCall(sp, fn Value, numParams uint32, returnOff jitapi.Offset) *Instruction {
	i.opcode, i.v, i.v2, i.idx, i.off = OpcodeCall, sp, fn, numParams, returnOff
	return i
}

// CallData returns the arguments of a Call.
func (i *Instruction) CallData() (sp, fn Value, numParams uint32, returnOff jitapi.Offset) {
	return i.v, i.v2, i.idx, i.off
}

// AsRetVal initializes this instruction as the store of the return value into the frame.
func (i *Instruction) AsRetVal(fp, v Value) *Instruction {
	i.opcode, i.v, i.v2 = OpcodeRetVal, fp, v
	return i
}

// AsRetCtrl initializes this instruction as the return of control to the caller.
func (i *Instruction) AsRetCtrl(sp, fp Value) *Instruction {
	i.opcode, i.v, i.v2 = OpcodeRetCtrl, sp, fp
	return i
}

// AsLdThis initializes this instruction as a load of $this. A non-nil exit is taken
// when the frame has no $this.
func (i *Instruction) AsLdThis(fp Value, exit *Trace) *Instruction {
	i.opcode, i.v, i.target = OpcodeLdThis, fp, exit
	return i
}

// AsLdClsCtx initializes this instruction as a load of the late bound class of the frame.
func (i *Instruction) AsLdClsCtx(fp Value) *Instruction {
	i.opcode, i.v = OpcodeLdClsCtx, fp
	return i
}

// AsLdCls initializes this instruction as a lookup of a class by a runtime name.
func (i *Instruction) AsLdCls(name Value) *Instruction {
	i.opcode, i.v = OpcodeLdCls, name
	return i
}

// AsLdClsCns initializes this instruction as a load of class constant cls::cns.
func (i *Instruction) AsLdClsCns(cls, cns string, exit *Trace) *Instruction {
	i.opcode, i.str, i.target = OpcodeLdClsCns, cls+"::"+cns, exit
	return i
}

// AsLdCns initializes this instruction as a load of a global constant.
// The exit is taken when the constant is not defined yet.
func (i *Instruction) AsLdCns(name string, exit *Trace) *Instruction {
	i.opcode, i.str, i.target = OpcodeLdCns, name, exit
	return i
}

// AsDefCns initializes this instruction as the definition of a global constant.
func (i *Instruction) AsDefCns(name string, v Value) *Instruction {
	i.opcode, i.str, i.v = OpcodeDefCns, name, v
	return i
}

// AsDefFunc initializes this instruction as the definition of a function.
func (i *Instruction) AsDefFunc(name string) *Instruction {
	i.opcode, i.str = OpcodeDefFunc, name
	return i
}

// AsDefCls initializes this instruction as the definition of a class.
func (i *Instruction) AsDefCls(name string, after jitapi.Offset) *Instruction {
	i.opcode, i.str, i.off = OpcodeDefCls, name, after
	return i
}

// AsNewArray initializes this instruction as an allocation of an empty array.
func (i *Instruction) AsNewArray(capacity uint32) *Instruction {
	i.opcode, i.idx = OpcodeNewArray, capacity
	return i
}

// AsNewTuple initializes this instruction as an array holding values (bottom first).
func (i *Instruction) AsNewTuple(values []Value) *Instruction {
	i.opcode = OpcodeNewTuple
	i.vs = append(i.vs[:0], values...)
	return i
}

// AsArrayAdd initializes this instruction as the union of two arrays.
func (i *Instruction) AsArrayAdd(x, y Value) *Instruction {
	i.opcode, i.v, i.v2 = OpcodeArrayAdd, x, y
	return i
}

// AsAddElem initializes this instruction as arr[key] = v.
func (i *Instruction) AsAddElem(arr, key, v Value) *Instruction {
	i.opcode = OpcodeAddElem
	i.vs = append(i.vs[:0], arr, key, v)
	return i
}

// AsAddNewElem initializes this instruction as arr[] = v.
func (i *Instruction) AsAddNewElem(arr, v Value) *Instruction {
	i.opcode, i.v, i.v2 = OpcodeAddNewElem, arr, v
	return i
}

// AsIterInit initializes this instruction as the initialization of iterator `id` over src,
// storing the first value (and key, if keyLocal is valid) into locals.
func (i *Instruction) AsIterInit(fp, src Value, id, valLocal uint32, keyLocal int64) *Instruction {
	i.opcode, i.v, i.v2, i.idx, i.u64, i.u64b = OpcodeIterInit, fp, src, id, uint64(valLocal), uint64(keyLocal)
	return i
}

// AsIterNext initializes this instruction as the advance of iterator `id`.
func (i *Instruction) AsIterNext(fp Value, id, valLocal uint32, keyLocal int64) *Instruction {
	i.opcode, i.v, i.idx, i.u64, i.u64b = OpcodeIterNext, fp, id, uint64(valLocal), uint64(keyLocal)
	return i
}

// IterData returns the iterator id and locals of IterInit and IterNext. keyLocal is
// negative if the key is not stored.
func (i *Instruction) IterData() (id, valLocal uint32, keyLocal int64) {
	return i.idx, uint32(i.u64), int64(i.u64b)
}

// AsPrint initializes this instruction as an echo of v.
func (i *Instruction) AsPrint(v Value) *Instruction {
	i.opcode, i.v = OpcodePrint, v
	return i
}

// AsIncStat initializes this instruction as an increment of a runtime counter.
func (i *Instruction) AsIncStat(counter uint32, delta int64) *Instruction {
	i.opcode, i.idx, i.u64 = OpcodeIncStat, counter, uint64(delta)
	return i
}

// AsVerifyParamType initializes this instruction as the check of parameter `id`
// against a class type hint. The exit is the slow path raising the recoverable error.
func (i *Instruction) AsVerifyParamType(fp Value, id uint32, constraint string, exit *Trace) *Instruction {
	i.opcode, i.v, i.idx, i.str, i.target = OpcodeVerifyParamType, fp, id, constraint, exit
	return i
}

// AsRaiseUninitWarning initializes this instruction as the notice for reading an
// uninitialized local.
func (i *Instruction) AsRaiseUninitWarning(id uint32) *Instruction {
	i.opcode, i.idx = OpcodeRaiseUninitWarning, id
	return i
}

// HasSideEffects returns true if this instruction must not be removed even if its
// result is unused.
func (i *Instruction) HasSideEffects() bool {
	switch i.opcode {
	case OpcodeDefConst, OpcodeLdLoc, OpcodeLdRef, OpcodeUnbox, OpcodeAssertType,
		OpcodeAdd, OpcodeSub, OpcodeMul, OpcodeBitAnd, OpcodeBitOr, OpcodeBitXor, OpcodeBitNot,
		OpcodeLogicXor, OpcodeNot, OpcodeGt, OpcodeGte, OpcodeLt, OpcodeLte, OpcodeEq, OpcodeNeq,
		OpcodeSame, OpcodeNSame, OpcodeIsType, OpcodeConvToBool, OpcodeConvToInt, OpcodeConvToDbl,
		OpcodeLdClsCtx, OpcodeLdFunc, OpcodeStrLen, OpcodeDefFP, OpcodeDefSP:
		return false
	case OpcodeLdStack:
		return i.target != nil
	default:
		return true
	}
}

// Format returns a string representation of this instruction with the given builder.
// For debugging purposes only.
func (i *Instruction) Format(b Builder) string {
	var instSuffix string
	switch i.opcode {
	case OpcodeDefFP:
	case OpcodeDefSP:
		instSuffix = " " + strconv.Itoa(int(int32(uint32(i.u64))))
	case OpcodeMarker:
		off, sp := i.MarkerData()
		instSuffix = fmt.Sprintf(" %s, sp=%d", off, sp)
	case OpcodeDefConst:
		instSuffix = " " + i.formatConstant()
	case OpcodeLdLoc, OpcodeGuardLoc, OpcodeCheckLoc:
		instSuffix = fmt.Sprintf(" %s, L%d", i.v.Format(b), i.idx)
	case OpcodeStLoc:
		instSuffix = fmt.Sprintf(" %s, L%d, %s", i.v.Format(b), i.idx, i.v2.Format(b))
	case OpcodeLdStack, OpcodeGuardStk, OpcodeCheckStk, OpcodeLdARFuncPtr:
		instSuffix = fmt.Sprintf(" %s, S%d", i.v.Format(b), i.idx)
	case OpcodeGuardIter:
		instSuffix = fmt.Sprintf(" %s, I%d", i.v.Format(b), i.idx)
	case OpcodeGuardRefs:
		instSuffix = fmt.Sprintf(" %s, %d, mask=%#x, vals=%#x", i.v.Format(b), i.idx, i.u64, i.u64b)
	case OpcodeAssertLoc:
		instSuffix = fmt.Sprintf(" L%d", i.idx)
	case OpcodeSpillStack:
		vs := make([]string, 0, len(i.vs)+2)
		vs = append(vs, i.v.Format(b), strconv.Itoa(int(i.idx)))
		for _, v := range i.vs {
			vs = append(vs, v.Format(b))
		}
		instSuffix = " " + strings.Join(vs, ", ")
	case OpcodeDecRefLocals:
		instSuffix = fmt.Sprintf(" %s, %d", i.v.Format(b), i.idx)
	case OpcodeExitTrace:
		kind, off := i.ExitTraceData()
		instSuffix = fmt.Sprintf(" %s, %s, %s", i.v.Format(b), kind, off)
	case OpcodeInterpOne:
		pops, pushes, _ := i.InterpOneData()
		instSuffix = fmt.Sprintf(" %s, %s, pops=%d, pushes=%d", i.v.Format(b), i.off, pops, pushes)
	case OpcodeDefActRec:
		ctx := "null"
		if i.v2.Valid() {
			ctx = i.v2.Format(b)
		}
		instSuffix = fmt.Sprintf(" %s, %s, %d", i.v.Format(b), ctx, i.idx)
		if i.str != "" {
			instSuffix += ", " + strconv.Quote(i.str)
		}
	case OpcodeLdObjMethod, OpcodeLdClsMethod:
		instSuffix = fmt.Sprintf(" %s, %q", i.v.Format(b), i.str)
	case OpcodeCall:
		instSuffix = fmt.Sprintf(" %s, %s, %d, ret=%s", i.v.Format(b), i.v2.Format(b), i.idx, i.off)
	case OpcodeLdClsCns, OpcodeLdCns, OpcodeDefFunc:
		instSuffix = " " + strconv.Quote(i.str)
	case OpcodeDefCls:
		instSuffix = fmt.Sprintf(" %q, %s", i.str, i.off)
	case OpcodeDefCns:
		instSuffix = fmt.Sprintf(" %q, %s", i.str, i.v.Format(b))
	case OpcodeNewArray:
		instSuffix = " " + strconv.Itoa(int(i.idx))
	case OpcodeNewTuple, OpcodeAddElem:
		vs := make([]string, len(i.vs))
		for j, v := range i.vs {
			vs[j] = v.Format(b)
		}
		instSuffix = " " + strings.Join(vs, ", ")
	case OpcodeIterInit, OpcodeIterNext:
		id, valLocal, keyLocal := i.IterData()
		args := ""
		if i.opcode == OpcodeIterInit {
			args = i.v2.Format(b) + ", "
		}
		instSuffix = fmt.Sprintf(" %sI%d, L%d", args, id, valLocal)
		if keyLocal >= 0 {
			instSuffix += fmt.Sprintf(", L%d", keyLocal)
		}
	case OpcodeIncStat:
		instSuffix = fmt.Sprintf(" %d, %d", i.idx, int64(i.u64))
	case OpcodeVerifyParamType:
		instSuffix = fmt.Sprintf(" %s, L%d, %q", i.v.Format(b), i.idx, i.str)
	case OpcodeRaiseUninitWarning:
		instSuffix = fmt.Sprintf(" L%d", i.idx)
	default:
		var args []string
		for _, v := range []Value{i.v, i.v2} {
			if v.Valid() {
				args = append(args, v.Format(b))
			}
		}
		for _, v := range i.vs {
			args = append(args, v.Format(b))
		}
		if len(args) > 0 {
			instSuffix = " " + strings.Join(args, ", ")
		}
	}

	switch i.opcode {
	case OpcodeGuardLoc, OpcodeGuardStk, OpcodeGuardIter, OpcodeCheckLoc, OpcodeCheckStk,
		OpcodeCheckType, OpcodeAssertLoc, OpcodeAssertType, OpcodeIsType:
		instSuffix += ", " + i.typ.String()
	}
	if i.target != nil {
		instSuffix += " -> " + i.target.Name()
	}

	instr := i.opcode.String() + instSuffix
	if i.rValue.Valid() {
		return i.rValue.formatWithType(b) + " = " + instr
	}
	return instr
}

func (i *Instruction) formatConstant() string {
	switch i.typ {
	case TypeInt:
		return strconv.FormatInt(int64(i.u64), 10)
	case TypeDbl:
		return strconv.FormatFloat(math.Float64frombits(i.u64), 'g', -1, 64)
	case TypeBool:
		return strconv.FormatBool(i.u64 != 0)
	case TypeInitNull:
		return "null"
	case TypeUninit:
		return "uninit"
	default:
		return strconv.Quote(i.str)
	}
}

// constKey identifies a DefConst for common subexpression elimination.
type constKey struct {
	typ  Type
	bits uint64
	str  string
}

func (i *Instruction) constKey() constKey {
	return constKey{typ: i.typ, bits: i.u64, str: i.str}
}
