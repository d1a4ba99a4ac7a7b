// Package hhbc describes decoded bytecode instructions of the stack-based VM: their
// opcodes, their immediates and their effect on the evaluation stack.
package hhbc

import "fmt"

// Op is a bytecode opcode.
type Op uint16

// ImmKind is the kind of an immediate operand.
type ImmKind byte

const (
	// ImmIVA is a variable-length integer, e.g. an argument count.
	ImmIVA ImmKind = iota + 1
	// ImmI64A is a 64-bit integer literal.
	ImmI64A
	// ImmDA is a double literal.
	ImmDA
	// ImmSA is an id in the unit's literal string table.
	ImmSA
	// ImmAA is an id in the unit's static array table.
	ImmAA
	// ImmBA is a branch target, decoded to an absolute offset.
	ImmBA
	// ImmLA is a local variable id.
	ImmLA
	// ImmIA is an iterator id.
	ImmIA
	// ImmOA is a one-byte sub-opcode.
	ImmOA
)

// String implements fmt.Stringer.
func (k ImmKind) String() string {
	switch k {
	case ImmIVA:
		return "IVA"
	case ImmI64A:
		return "I64A"
	case ImmDA:
		return "DA"
	case ImmSA:
		return "SA"
	case ImmAA:
		return "AA"
	case ImmBA:
		return "BA"
	case ImmLA:
		return "LA"
	case ImmIA:
		return "IA"
	case ImmOA:
		return "OA"
	}
	return fmt.Sprintf("ImmKind(%d)", byte(k))
}

// Variable marks a stack effect that depends on the immediates.
const Variable = -1

// Flags describe how an opcode interacts with control flow and call sequencing.
type Flags byte

const (
	// FlagTerminal marks opcodes after which the tracelet cannot continue.
	FlagTerminal Flags = 1 << iota
	// FlagBranch marks opcodes with a branch target.
	FlagBranch
	// FlagFPush marks opcodes that start call preparation.
	FlagFPush
	// FlagFCall marks opcodes that complete call preparation.
	FlagFCall
)

type opInfo struct {
	name string
	imms []ImmKind
	// pops and pushes count cells, an activation record counting as ActRecCells.
	pops, pushes int
	flags        Flags
}

// ActRecCells is the width in cells of the activation record pushed by FPush* opcodes.
const ActRecCells = 3

const (
	OpInvalid Op = iota
	OpNop
	OpPopC
	OpPopV
	OpPopR
	OpDup
	OpUnboxR
	OpNull
	OpTrue
	OpFalse
	OpInt
	OpDouble
	OpString
	OpArray
	OpNewArray
	OpNewTuple
	OpAddElemC
	OpAddNewElemC
	OpCns
	OpDefCns
	OpClsCnsD
	OpClsCns
	OpConcat
	OpAdd
	OpSub
	OpMul
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpXor
	OpNot
	OpGt
	OpGte
	OpLt
	OpLte
	OpEq
	OpNeq
	OpSame
	OpNSame
	OpCastBool
	OpCastInt
	OpCastDouble
	OpCastString
	OpCastArray
	OpCastObject
	OpPrint
	OpStrlen
	OpJmp
	OpJmpZ
	OpJmpNZ
	OpRetC
	OpRetV
	OpCGetL
	OpCGetL2
	OpVGetL
	OpSetL
	OpBindL
	OpUnsetL
	OpIssetL
	OpEmptyL
	OpIncDecL
	OpIsNullL
	OpIsBoolL
	OpIsIntL
	OpIsDoubleL
	OpIsStringL
	OpIsArrayL
	OpIsObjectL
	OpIsNullC
	OpIsBoolC
	OpIsIntC
	OpIsDoubleC
	OpIsStringC
	OpIsArrayC
	OpIsObjectC
	OpThis
	OpCheckThis
	OpBareThis
	OpInitThisLoc
	OpSelf
	OpParent
	OpLateBoundCls
	OpAGetC
	OpAGetL
	OpFPushFuncD
	OpFPushFunc
	OpFPushObjMethodD
	OpFPushClsMethodD
	OpFPushCtorD
	OpFPushCtor
	OpFPassC
	OpFPassR
	OpFCall
	OpIterInit
	OpIterInitK
	OpIterNext
	OpIterNextK
	OpDefFunc
	OpDefCls
	OpInstanceOfD
	OpVerifyParamType
	OpIncStat
	OpCGetG
	OpVGetG
	OpSetG
	OpUnsetG
	OpCGetS
	OpSetS
	OpIssetS
	OpEmptyS
	OpStaticLocInit
	OpClassExists
	OpReqDoc
	OpCreateCont
	OpContNext
	OpContSend
	OpNativeImpl

	opEnd
)

var ops = [opEnd]opInfo{
	OpNop:             {name: "Nop"},
	OpPopC:            {name: "PopC", pops: 1},
	OpPopV:            {name: "PopV", pops: 1},
	OpPopR:            {name: "PopR", pops: 1},
	OpDup:             {name: "Dup", pops: 1, pushes: 2},
	OpUnboxR:          {name: "UnboxR", pops: 1, pushes: 1},
	OpNull:            {name: "Null", pushes: 1},
	OpTrue:            {name: "True", pushes: 1},
	OpFalse:           {name: "False", pushes: 1},
	OpInt:             {name: "Int", imms: []ImmKind{ImmI64A}, pushes: 1},
	OpDouble:          {name: "Double", imms: []ImmKind{ImmDA}, pushes: 1},
	OpString:          {name: "String", imms: []ImmKind{ImmSA}, pushes: 1},
	OpArray:           {name: "Array", imms: []ImmKind{ImmAA}, pushes: 1},
	OpNewArray:        {name: "NewArray", imms: []ImmKind{ImmIVA}, pushes: 1},
	OpNewTuple:        {name: "NewTuple", imms: []ImmKind{ImmIVA}, pops: Variable, pushes: 1},
	OpAddElemC:        {name: "AddElemC", pops: 3, pushes: 1},
	OpAddNewElemC:     {name: "AddNewElemC", pops: 2, pushes: 1},
	OpCns:             {name: "Cns", imms: []ImmKind{ImmSA}, pushes: 1},
	OpDefCns:          {name: "DefCns", imms: []ImmKind{ImmSA}, pops: 1, pushes: 1},
	OpClsCnsD:         {name: "ClsCnsD", imms: []ImmKind{ImmSA, ImmSA}, pushes: 1},
	OpClsCns:          {name: "ClsCns", imms: []ImmKind{ImmSA}, pops: 1, pushes: 1},
	OpConcat:          {name: "Concat", pops: 2, pushes: 1},
	OpAdd:             {name: "Add", pops: 2, pushes: 1},
	OpSub:             {name: "Sub", pops: 2, pushes: 1},
	OpMul:             {name: "Mul", pops: 2, pushes: 1},
	OpBitAnd:          {name: "BitAnd", pops: 2, pushes: 1},
	OpBitOr:           {name: "BitOr", pops: 2, pushes: 1},
	OpBitXor:          {name: "BitXor", pops: 2, pushes: 1},
	OpBitNot:          {name: "BitNot", pops: 1, pushes: 1},
	OpXor:             {name: "Xor", pops: 2, pushes: 1},
	OpNot:             {name: "Not", pops: 1, pushes: 1},
	OpGt:              {name: "Gt", pops: 2, pushes: 1},
	OpGte:             {name: "Gte", pops: 2, pushes: 1},
	OpLt:              {name: "Lt", pops: 2, pushes: 1},
	OpLte:             {name: "Lte", pops: 2, pushes: 1},
	OpEq:              {name: "Eq", pops: 2, pushes: 1},
	OpNeq:             {name: "Neq", pops: 2, pushes: 1},
	OpSame:            {name: "Same", pops: 2, pushes: 1},
	OpNSame:           {name: "NSame", pops: 2, pushes: 1},
	OpCastBool:        {name: "CastBool", pops: 1, pushes: 1},
	OpCastInt:         {name: "CastInt", pops: 1, pushes: 1},
	OpCastDouble:      {name: "CastDouble", pops: 1, pushes: 1},
	OpCastString:      {name: "CastString", pops: 1, pushes: 1},
	OpCastArray:       {name: "CastArray", pops: 1, pushes: 1},
	OpCastObject:      {name: "CastObject", pops: 1, pushes: 1},
	OpPrint:           {name: "Print", pops: 1, pushes: 1},
	OpStrlen:          {name: "Strlen", pops: 1, pushes: 1},
	OpJmp:             {name: "Jmp", imms: []ImmKind{ImmBA}, flags: FlagBranch},
	OpJmpZ:            {name: "JmpZ", imms: []ImmKind{ImmBA}, pops: 1, flags: FlagBranch},
	OpJmpNZ:           {name: "JmpNZ", imms: []ImmKind{ImmBA}, pops: 1, flags: FlagBranch},
	OpRetC:            {name: "RetC", pops: 1, flags: FlagTerminal},
	OpRetV:            {name: "RetV", pops: 1, flags: FlagTerminal},
	OpCGetL:           {name: "CGetL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpCGetL2:          {name: "CGetL2", imms: []ImmKind{ImmLA}, pops: 1, pushes: 2},
	OpVGetL:           {name: "VGetL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpSetL:            {name: "SetL", imms: []ImmKind{ImmLA}, pops: 1, pushes: 1},
	OpBindL:           {name: "BindL", imms: []ImmKind{ImmLA}, pops: 1, pushes: 1},
	OpUnsetL:          {name: "UnsetL", imms: []ImmKind{ImmLA}},
	OpIssetL:          {name: "IssetL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpEmptyL:          {name: "EmptyL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIncDecL:         {name: "IncDecL", imms: []ImmKind{ImmLA, ImmOA}, pushes: 1},
	OpIsNullL:         {name: "IsNullL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIsBoolL:         {name: "IsBoolL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIsIntL:          {name: "IsIntL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIsDoubleL:       {name: "IsDoubleL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIsStringL:       {name: "IsStringL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIsArrayL:        {name: "IsArrayL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIsObjectL:       {name: "IsObjectL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpIsNullC:         {name: "IsNullC", pops: 1, pushes: 1},
	OpIsBoolC:         {name: "IsBoolC", pops: 1, pushes: 1},
	OpIsIntC:          {name: "IsIntC", pops: 1, pushes: 1},
	OpIsDoubleC:       {name: "IsDoubleC", pops: 1, pushes: 1},
	OpIsStringC:       {name: "IsStringC", pops: 1, pushes: 1},
	OpIsArrayC:        {name: "IsArrayC", pops: 1, pushes: 1},
	OpIsObjectC:       {name: "IsObjectC", pops: 1, pushes: 1},
	OpThis:            {name: "This", pushes: 1},
	OpCheckThis:       {name: "CheckThis"},
	OpBareThis:        {name: "BareThis", imms: []ImmKind{ImmOA}, pushes: 1},
	OpInitThisLoc:     {name: "InitThisLoc", imms: []ImmKind{ImmLA}},
	OpSelf:            {name: "Self", pushes: 1},
	OpParent:          {name: "Parent", pushes: 1},
	OpLateBoundCls:    {name: "LateBoundCls", pushes: 1},
	OpAGetC:           {name: "AGetC", pops: 1, pushes: 1},
	OpAGetL:           {name: "AGetL", imms: []ImmKind{ImmLA}, pushes: 1},
	OpFPushFuncD:      {name: "FPushFuncD", imms: []ImmKind{ImmIVA, ImmSA}, pushes: ActRecCells, flags: FlagFPush},
	OpFPushFunc:       {name: "FPushFunc", imms: []ImmKind{ImmIVA}, pops: 1, pushes: ActRecCells, flags: FlagFPush},
	OpFPushObjMethodD: {name: "FPushObjMethodD", imms: []ImmKind{ImmIVA, ImmSA}, pops: 1, pushes: ActRecCells, flags: FlagFPush},
	OpFPushClsMethodD: {name: "FPushClsMethodD", imms: []ImmKind{ImmIVA, ImmSA, ImmSA}, pushes: ActRecCells, flags: FlagFPush},
	OpFPushCtorD:      {name: "FPushCtorD", imms: []ImmKind{ImmIVA, ImmSA}, pushes: 1 + ActRecCells, flags: FlagFPush},
	OpFPushCtor:       {name: "FPushCtor", imms: []ImmKind{ImmIVA}, pops: 1, pushes: 1 + ActRecCells, flags: FlagFPush},
	OpFPassC:          {name: "FPassC", imms: []ImmKind{ImmIVA}, pops: 1, pushes: 1},
	OpFPassR:          {name: "FPassR", imms: []ImmKind{ImmIVA}, pops: 1, pushes: 1},
	OpFCall:           {name: "FCall", imms: []ImmKind{ImmIVA}, pops: Variable, pushes: 1, flags: FlagFCall},
	OpIterInit:        {name: "IterInit", imms: []ImmKind{ImmIA, ImmBA, ImmLA}, pops: 1, flags: FlagBranch},
	OpIterInitK:       {name: "IterInitK", imms: []ImmKind{ImmIA, ImmBA, ImmLA, ImmLA}, pops: 1, flags: FlagBranch},
	OpIterNext:        {name: "IterNext", imms: []ImmKind{ImmIA, ImmBA, ImmLA}, flags: FlagBranch},
	OpIterNextK:       {name: "IterNextK", imms: []ImmKind{ImmIA, ImmBA, ImmLA, ImmLA}, flags: FlagBranch},
	OpDefFunc:         {name: "DefFunc", imms: []ImmKind{ImmIVA}},
	OpDefCls:          {name: "DefCls", imms: []ImmKind{ImmIVA}},
	OpInstanceOfD:     {name: "InstanceOfD", imms: []ImmKind{ImmSA}, pops: 1, pushes: 1},
	OpVerifyParamType: {name: "VerifyParamType", imms: []ImmKind{ImmLA}},
	OpIncStat:         {name: "IncStat", imms: []ImmKind{ImmIVA, ImmIVA}},
	OpCGetG:           {name: "CGetG", pops: 1, pushes: 1},
	OpVGetG:           {name: "VGetG", pops: 1, pushes: 1},
	OpSetG:            {name: "SetG", pops: 2, pushes: 1},
	OpUnsetG:          {name: "UnsetG", pops: 1},
	OpCGetS:           {name: "CGetS", pops: 2, pushes: 1},
	OpSetS:            {name: "SetS", pops: 3, pushes: 1},
	OpIssetS:          {name: "IssetS", pops: 2, pushes: 1},
	OpEmptyS:          {name: "EmptyS", pops: 2, pushes: 1},
	OpStaticLocInit:   {name: "StaticLocInit", imms: []ImmKind{ImmLA, ImmSA}, pops: 1},
	OpClassExists:     {name: "ClassExists", pops: 2, pushes: 1},
	OpReqDoc:          {name: "ReqDoc", pops: 1, pushes: 1},
	OpCreateCont:      {name: "CreateCont", imms: []ImmKind{ImmIVA, ImmSA}, pushes: 1},
	OpContNext:        {name: "ContNext"},
	OpContSend:        {name: "ContSend", pops: 1},
	OpNativeImpl:      {name: "NativeImpl", flags: FlagTerminal},
}

var opsByName = func() map[string]Op {
	ret := make(map[string]Op, opEnd)
	for op := OpNop; op < opEnd; op++ {
		ret[ops[op].name] = op
	}
	return ret
}()

// String implements fmt.Stringer.
func (op Op) String() string {
	if op.Valid() {
		return ops[op].name
	}
	return fmt.Sprintf("Op(%d)", uint16(op))
}

// Valid returns true if op is a defined opcode.
func (op Op) Valid() bool {
	return op > OpInvalid && op < opEnd
}

// Immediates returns the kinds of op's immediates in encoding order.
func (op Op) Immediates() []ImmKind {
	return ops[op].imms
}

// Flags returns op's control flow flags.
func (op Op) Flags() Flags {
	return ops[op].flags
}

// Is returns true if op has every flag in f.
func (op Op) Is(f Flags) bool {
	return ops[op].flags&f == f
}

// LookupOp returns the opcode with the given mnemonic.
func LookupOp(name string) (Op, bool) {
	op, ok := opsByName[name]
	return op, ok
}
