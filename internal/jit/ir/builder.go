package ir

import (
	"fmt"
	"strings"

	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// Builder builds the main trace of one tracelet and its exit traces.
//
// Besides owning the instructions and values, the Builder keeps what is statically
// known about the frame while instructions are inserted into the main trace: the
// latest value and type of each local, the values and types of memory stack slots
// written or checked by the trace, and the current stack depth. It uses that knowledge
// to fold loads of known values and to share constants.
type Builder interface {
	// Init must be called to reuse this builder for the next tracelet.
	// initialSpOffset is the stack depth in cells, relative to the frame, at trace entry.
	Init(start jitapi.Offset, initialSpOffset int32)

	// MainTrace returns the main trace of the current session.
	MainTrace() *Trace

	// CurrentTrace returns the trace instructions are currently inserted into.
	CurrentTrace() *Trace

	// SetCurrentTrace sets the instruction insertion target to the trace `t`.
	SetCurrentTrace(t *Trace)

	// AllocateExitTrace creates an empty exit trace resuming at `off`.
	AllocateExitTrace(kind jitapi.ExitKind, off jitapi.Offset) *Trace

	// ExitTraces returns the exit traces in allocation order.
	ExitTraces() []*Trace

	// AllocateInstruction returns a new Instruction.
	AllocateInstruction() *Instruction

	// InsertInstruction appends the instruction to the current trace. On the main
	// trace the instruction may instead be folded to an existing value, see Instruction.Folded.
	InsertInstruction(instr *Instruction)

	// InsertEntryGuard appends the guard to the entry guard block of the main trace,
	// which precedes every other instruction but the frame and stack pointer definitions.
	InsertEntryGuard(instr *Instruction)

	// FramePointer returns the frame pointer value.
	FramePointer() Value

	// StackPointer returns the latest stack pointer value of the main trace.
	StackPointer() Value

	// EntryStackPointer returns the stack pointer value at trace entry.
	EntryStackPointer() Value

	// SpOffset returns the current depth of the memory stack in cells.
	SpOffset() int32

	// EntrySpOffset returns the depth of the memory stack in cells at trace entry.
	EntrySpOffset() int32

	// EntryStackIndex returns the index, relative to the entry stack pointer, of the
	// memory slot `offset` cells below the current stack pointer, provided that slot has
	// not been written or clobbered since trace entry.
	EntryStackIndex(offset uint32) (index uint32, ok bool)

	// StackSlot returns what is known about the memory slot `offset` cells below the
	// current stack pointer: its value if the trace wrote or loaded it, and its type.
	// The type is TypeGen|TypeActRec if nothing is known.
	StackSlot(offset uint32) (v Value, typ Type)

	// LocalType returns the known type of a local, TypeGen if nothing is known.
	LocalType(id uint32) Type

	// AnnotateValue is for debugging purpose.
	AnnotateValue(value Value, annotation string)

	// Verify checks the structural invariants of the traces built so far.
	Verify() error

	// Format returns the debugging string of the main trace followed by the exit traces.
	Format() string
}

// NewBuilder returns a new Builder implementation.
func NewBuilder() Builder {
	return &builder{
		instructionsPool: jitapi.NewPool[Instruction](),
		tracesPool:       jitapi.NewPool[Trace](),
		valueAnnotations: make(map[ValueID]string),
		constants:        make(map[constKey]Value),
		locals:           make(map[uint32]knownSlot),
		stack:            make(map[int32]knownSlot),
	}
}

// knownSlot is what is known about a local or a memory stack slot.
type knownSlot struct {
	value Value
	typ   Type
}

// unknownStackType is the type of a stack slot nothing is known about.
const unknownStackType = TypeGen | TypeActRec

// builder implements Builder interface.
type builder struct {
	instructionsPool jitapi.Pool[Instruction]
	tracesPool       jitapi.Pool[Trace]
	main, current    *Trace

	// nextValueID is used by builder.allocateValue.
	nextValueID      ValueID
	valueAnnotations map[ValueID]string

	fp, sp, entrySp Value
	spOffset        int32
	entrySpOffset   int32
	// lowWater is the lowest stack depth written or clobbered by the main trace.
	// Slots below it still hold what they held at trace entry.
	lowWater int32

	constants map[constKey]Value
	locals    map[uint32]knownSlot
	// stack is keyed by stack depth: the slot `o` cells below sp is at depth spOffset-1-o.
	stack map[int32]knownSlot
}

// Init implements Builder.Init.
func (b *builder) Init(start jitapi.Offset, initialSpOffset int32) {
	b.instructionsPool.Reset()
	b.tracesPool.Reset()
	b.nextValueID = 0
	for k := range b.valueAnnotations {
		delete(b.valueAnnotations, k)
	}
	for k := range b.constants {
		delete(b.constants, k)
	}
	for k := range b.locals {
		delete(b.locals, k)
	}
	for k := range b.stack {
		delete(b.stack, k)
	}

	b.main = b.allocateTrace(jitapi.ExitKindInvalid, start)
	b.current = b.main
	b.spOffset, b.entrySpOffset, b.lowWater = initialSpOffset, initialSpOffset, initialSpOffset

	fp := b.AllocateInstruction()
	fp.opcode = OpcodeDefFP
	b.InsertInstruction(fp)
	b.fp = fp.Return()
	b.AnnotateValue(b.fp, "fp")

	b.entrySp = b.defineSP()
	b.AnnotateValue(b.entrySp, "sp")
	b.main.guardTail = b.main.tail
}

// defineSP appends a DefSP for the current stack depth to the main trace.
func (b *builder) defineSP() Value {
	sp := b.AllocateInstruction()
	sp.opcode = OpcodeDefSP
	sp.u64 = uint64(uint32(b.spOffset))
	b.InsertInstruction(sp)
	b.sp = sp.Return()
	return b.sp
}

// MainTrace implements Builder.MainTrace.
func (b *builder) MainTrace() *Trace {
	return b.main
}

// CurrentTrace implements Builder.CurrentTrace.
func (b *builder) CurrentTrace() *Trace {
	return b.current
}

// SetCurrentTrace implements Builder.SetCurrentTrace.
func (b *builder) SetCurrentTrace(t *Trace) {
	b.current = t
}

// AllocateExitTrace implements Builder.AllocateExitTrace.
func (b *builder) AllocateExitTrace(kind jitapi.ExitKind, off jitapi.Offset) *Trace {
	if !kind.Valid() {
		panic("BUG: exit trace of invalid kind")
	}
	return b.allocateTrace(kind, off)
}

func (b *builder) allocateTrace(kind jitapi.ExitKind, off jitapi.Offset) *Trace {
	id := TraceID(b.tracesPool.Allocated())
	t := b.tracesPool.Allocate()
	t.reset()
	t.id, t.kind, t.off = id, kind, off
	return t
}

// ExitTraces implements Builder.ExitTraces.
func (b *builder) ExitTraces() []*Trace {
	n := b.tracesPool.Allocated()
	ret := make([]*Trace, 0, n)
	for i := 1; i < n; i++ {
		ret = append(ret, b.tracesPool.View(i))
	}
	return ret
}

// AllocateInstruction implements Builder.AllocateInstruction.
func (b *builder) AllocateInstruction() *Instruction {
	instr := b.instructionsPool.Allocate()
	instr.reset()
	return instr
}

// AnnotateValue implements Builder.AnnotateValue.
func (b *builder) AnnotateValue(value Value, a string) {
	b.valueAnnotations[value.ID()] = a
}

// FramePointer implements Builder.FramePointer.
func (b *builder) FramePointer() Value {
	return b.fp
}

// StackPointer implements Builder.StackPointer.
func (b *builder) StackPointer() Value {
	return b.sp
}

// EntryStackPointer implements Builder.EntryStackPointer.
func (b *builder) EntryStackPointer() Value {
	return b.entrySp
}

// SpOffset implements Builder.SpOffset.
func (b *builder) SpOffset() int32 {
	return b.spOffset
}

// EntrySpOffset implements Builder.EntrySpOffset.
func (b *builder) EntrySpOffset() int32 {
	return b.entrySpOffset
}

func (b *builder) depth(offset uint32) int32 {
	return b.spOffset - 1 - int32(offset)
}

// EntryStackIndex implements Builder.EntryStackIndex.
func (b *builder) EntryStackIndex(offset uint32) (uint32, bool) {
	d := b.depth(offset)
	if d < 0 || d >= b.lowWater {
		return 0, false
	}
	return uint32(b.entrySpOffset - 1 - d), true
}

// StackSlot implements Builder.StackSlot.
func (b *builder) StackSlot(offset uint32) (Value, Type) {
	if s, ok := b.stack[b.depth(offset)]; ok {
		return s.value, s.typ
	}
	return ValueInvalid, unknownStackType
}

// LocalType implements Builder.LocalType.
func (b *builder) LocalType(id uint32) Type {
	if l, ok := b.locals[id]; ok {
		return l.typ
	}
	return TypeGen
}

// allocateValue allocates an unused Value.
func (b *builder) allocateValue(typ Type) (v Value) {
	v = Value(b.nextValueID)
	v = v.setType(typ)
	b.nextValueID++
	return
}

// InsertInstruction implements Builder.InsertInstruction.
func (b *builder) InsertInstruction(instr *Instruction) {
	t := b.current
	if jitapi.TraceValidationEnabled && t.terminated {
		panic(fmt.Sprintf("BUG: inserting %s into terminated trace %s", instr.opcode, t.Name()))
	}

	onMain := t == b.main
	if onMain && b.fold(instr) {
		return
	}

	if instr.opcode == OpcodeAssertType {
		// Same value, narrowed type.
		instr.rValue = instr.v.setType(narrow(instr.v.Type(), instr.typ))
	} else if typ := b.resultType(instr); typ != TypeNone {
		instr.rValue = b.allocateValue(typ)
	}
	t.append(instr)

	if onMain {
		b.track(instr)
	}
}

// InsertEntryGuard implements Builder.InsertEntryGuard.
func (b *builder) InsertEntryGuard(instr *Instruction) {
	if !instr.IsGuard() {
		panic("BUG: not a guard: " + instr.opcode.String())
	}
	b.main.insertAfter(b.main.guardTail, instr)
	b.main.guardTail = instr
	b.track(instr)
}

// narrow returns the intersection of the two types, or `to` if they are disjoint.
func narrow(from, to Type) Type {
	if t := from.Intersect(to); t != TypeNone {
		return t
	}
	return to
}

// fold tries to simplify instr to a value that already exists on the main trace.
func (b *builder) fold(instr *Instruction) bool {
	var v Value
	switch instr.opcode {
	case OpcodeDefConst:
		existing, ok := b.constants[instr.constKey()]
		if !ok {
			return false
		}
		v = existing
	case OpcodeLdLoc:
		l, ok := b.locals[instr.idx]
		if !ok || !l.value.Valid() {
			return false
		}
		v = l.value
	case OpcodeLdStack:
		s, ok := b.stack[b.depth(instr.idx)]
		if !ok || !s.value.Valid() {
			return false
		}
		if instr.target != nil && !s.value.Type().SubtypeOf(instr.typ) {
			// Keep the check.
			return false
		}
		v = s.value
	default:
		return false
	}
	instr.rValue = v
	instr.folded = true
	return true
}

// track updates what is known about the frame after instr was added to the main trace.
func (b *builder) track(instr *Instruction) {
	switch instr.opcode {
	case OpcodeDefConst:
		b.constants[instr.constKey()] = instr.rValue
	case OpcodeLdLoc:
		b.locals[instr.idx] = knownSlot{value: instr.rValue, typ: instr.rValue.Type()}
	case OpcodeStLoc:
		b.locals[instr.idx] = knownSlot{value: instr.v2, typ: instr.v2.Type()}
	case OpcodeGuardLoc, OpcodeCheckLoc, OpcodeAssertLoc:
		l, ok := b.locals[instr.idx]
		if !ok {
			l = knownSlot{value: ValueInvalid, typ: TypeGen}
		}
		l.typ = narrow(l.typ, instr.typ)
		if l.value.Valid() {
			l.value = l.value.setType(narrow(l.value.Type(), instr.typ))
		}
		b.locals[instr.idx] = l
	case OpcodeLdStack:
		b.stack[b.depth(instr.idx)] = knownSlot{value: instr.rValue, typ: instr.rValue.Type()}
	case OpcodeGuardStk:
		d := b.entrySpOffset - 1 - int32(instr.idx)
		b.narrowStack(d, instr.typ)
	case OpcodeCheckStk:
		b.narrowStack(b.depth(instr.idx), instr.typ)
	case OpcodeSpillStack:
		base := b.spOffset - int32(instr.idx)
		b.clobberStack(base)
		for i := len(instr.vs) - 1; i >= 0; i-- {
			v := instr.vs[i]
			b.stack[base] = knownSlot{value: v, typ: v.Type()}
			for k := 1; k < v.Type().CellWidth(); k++ {
				b.stack[base+int32(k)] = knownSlot{value: ValueInvalid, typ: TypeActRec}
			}
			base += int32(v.Type().CellWidth())
		}
		b.spOffset = base
		b.sp = instr.rValue
	case OpcodeInterpOne:
		pops, pushes, typ := instr.InterpOneData()
		base := b.spOffset - int32(pops)
		b.clobberStack(base)
		b.spOffset = base + int32(pushes)
		if pushes > 0 && typ != TypeNone {
			b.stack[b.spOffset-1] = knownSlot{value: ValueInvalid, typ: typ}
		}
		// The interpreted instruction may have written any local.
		for k := range b.locals {
			delete(b.locals, k)
		}
		b.sp = instr.rValue
	case OpcodeIterInit, OpcodeIterNext:
		_, valLocal, keyLocal := instr.IterData()
		delete(b.locals, valLocal)
		if keyLocal >= 0 {
			delete(b.locals, uint32(keyLocal))
		}
	case OpcodeCall:
		_, _, numParams, _ := instr.CallData()
		b.spOffset -= int32(numParams) + NumActRecCells
		b.clobberStack(b.spOffset)
		b.defineSP()
	}
}

func (b *builder) narrowStack(d int32, typ Type) {
	s, ok := b.stack[d]
	if !ok {
		s = knownSlot{value: ValueInvalid, typ: unknownStackType}
	}
	s.typ = narrow(s.typ, typ)
	if s.value.Valid() {
		s.value = s.value.setType(narrow(s.value.Type(), typ))
	}
	b.stack[d] = s
}

// clobberStack forgets everything at or above depth `from` and records that the
// slots there no longer hold their entry values.
func (b *builder) clobberStack(from int32) {
	for d := range b.stack {
		if d >= from {
			delete(b.stack, d)
		}
	}
	if from < b.lowWater {
		b.lowWater = from
	}
}

// resultType returns the type of the value produced by instr, TypeNone if there's none.
func (b *builder) resultType(instr *Instruction) Type {
	switch instr.opcode {
	case OpcodeDefFP, OpcodeDefSP, OpcodeSpillStack, OpcodeInterpOne:
		return TypeStkPtr
	case OpcodeDefConst:
		return instr.typ
	case OpcodeLdLoc:
		if l, ok := b.locals[instr.idx]; ok && b.current == b.main {
			return narrow(l.typ, instr.typ)
		}
		return instr.typ
	case OpcodeLdStack:
		if s, ok := b.stack[b.depth(instr.idx)]; ok && b.current == b.main {
			return narrow(s.typ, instr.typ)
		}
		return instr.typ
	case OpcodeLdRef:
		return instr.typ
	case OpcodeCheckType:
		return narrow(instr.v.Type(), instr.typ)
	case OpcodeUnbox:
		return instr.v.Type().Unbox()
	case OpcodeBox:
		return TypeBoxedCell
	case OpcodeIncRef:
		return instr.v.Type()
	case OpcodeAdd, OpcodeSub, OpcodeMul:
		return arithResultType(instr.v.Type(), instr.v2.Type())
	case OpcodeBitAnd, OpcodeBitOr, OpcodeBitXor, OpcodeBitNot, OpcodeConvToInt, OpcodeStrLen:
		return TypeInt
	case OpcodeLogicXor, OpcodeNot, OpcodeGt, OpcodeGte, OpcodeLt, OpcodeLte, OpcodeEq, OpcodeNeq,
		OpcodeSame, OpcodeNSame, OpcodeIsType, OpcodeInstanceOfD, OpcodeConvToBool, OpcodeDefCns,
		OpcodeIterInit, OpcodeIterNext:
		return TypeBool
	case OpcodeConvToDbl:
		return TypeDbl
	case OpcodeConcat:
		return TypeCountedStr
	case OpcodeConvToStr:
		return TypeStr
	case OpcodeDefActRec:
		return TypeActRec
	case OpcodeLdFunc, OpcodeLdObjMethod, OpcodeLdClsMethod, OpcodeLdCtor, OpcodeLdARFuncPtr:
		return TypeFuncPtr
	case OpcodeNewObj, OpcodeLdThis:
		return TypeObj
	case OpcodeCall:
		return TypeGen
	case OpcodeLdClsCtx, OpcodeLdCls:
		return TypeClassPtr
	case OpcodeLdClsCns, OpcodeLdCns:
		return TypeCell &^ TypeUninit
	case OpcodeNewArray, OpcodeNewTuple, OpcodeArrayAdd, OpcodeAddElem, OpcodeAddNewElem:
		return TypeArr
	default:
		return TypeNone
	}
}

// arithResultType returns the type of x+y, x-y and x*y on numeric operands.
func arithResultType(x, y Type) Type {
	u := x.Union(y)
	switch {
	case u.SubtypeOf(TypeInt | TypeBool):
		return TypeInt
	case u.SubtypeOf(TypeInt|TypeBool|TypeDbl) && (x.SubtypeOf(TypeDbl) || y.SubtypeOf(TypeDbl)):
		return TypeDbl
	default:
		return TypeInt | TypeDbl
	}
}

// Verify implements Builder.Verify.
func (b *builder) Verify() error {
	for _, t := range b.ExitTraces() {
		if !t.terminated {
			return fmt.Errorf("exit trace %s is not terminated", t.Name())
		}
	}
	for cur := b.main.root; cur != nil; cur = cur.next {
		if cur.IsTerminal() && cur.next != nil {
			return fmt.Errorf("%s follows terminal %s in main trace", cur.next.opcode, cur.opcode)
		}
		if t := cur.target; t != nil && t.IsMain() {
			return fmt.Errorf("%s targets the main trace", cur.opcode)
		}
	}
	return nil
}

// Format implements Builder.Format.
func (b *builder) Format() string {
	str := strings.Builder{}
	str.WriteString(b.main.Format(b))
	for _, t := range b.ExitTraces() {
		str.WriteByte('\n')
		str.WriteString(t.Format(b))
	}
	return str.String()
}
