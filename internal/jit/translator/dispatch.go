package translator

import (
	"github.com/vmjit/hhir/internal/hhbc"
	"github.com/vmjit/hhir/internal/jit/ir"
)

// interpTypes is the type of the cell pushed by instructions that are always
// interpreted. Instructions missing here push nothing the trace can rely on.
var interpTypes = map[hhbc.Op]ir.Type{
	hhbc.OpClsCns:      ir.TypeCell &^ ir.TypeUninit,
	hhbc.OpCGetG:       ir.TypeCell &^ ir.TypeUninit,
	hhbc.OpVGetG:       ir.TypeBoxedCell,
	hhbc.OpSetG:        ir.TypeCell &^ ir.TypeUninit,
	hhbc.OpCGetS:       ir.TypeCell &^ ir.TypeUninit,
	hhbc.OpSetS:        ir.TypeCell &^ ir.TypeUninit,
	hhbc.OpIssetS:      ir.TypeBool,
	hhbc.OpEmptyS:      ir.TypeBool,
	hhbc.OpClassExists: ir.TypeBool,
	hhbc.OpReqDoc:      ir.TypeCell &^ ir.TypeUninit,
	hhbc.OpCreateCont:  ir.TypeObj,
}

// Translate translates one instruction at the current offset, which must have been
// set with SetOffset.
func (t *Translator) Translate(in *hhbc.Instr) {
	if in.Offset != t.off {
		t.bug("translating %s at offset %s", in, t.off)
	}
	switch in.Op {
	case hhbc.OpNop:
		t.EmitNop()
	case hhbc.OpPopC:
		t.EmitPopC()
	case hhbc.OpPopV:
		t.EmitPopV()
	case hhbc.OpPopR:
		t.EmitPopR()
	case hhbc.OpDup:
		t.EmitDup()
	case hhbc.OpUnboxR:
		t.EmitUnboxR()

	case hhbc.OpNull:
		t.EmitNull()
	case hhbc.OpTrue:
		t.EmitTrue()
	case hhbc.OpFalse:
		t.EmitFalse()
	case hhbc.OpInt:
		t.EmitInt(in.Imm(0))
	case hhbc.OpDouble:
		t.EmitDouble(in.Dbl(0))
	case hhbc.OpString:
		t.EmitString(in.ID(0))
	case hhbc.OpArray:
		t.EmitArray(in.ID(0))
	case hhbc.OpNewArray:
		t.EmitNewArray(in.ID(0))
	case hhbc.OpNewTuple:
		t.EmitNewTuple(in.ID(0))
	case hhbc.OpAddElemC:
		t.EmitAddElemC()
	case hhbc.OpAddNewElemC:
		t.EmitAddNewElemC()
	case hhbc.OpCns:
		t.EmitCns(in.ID(0))
	case hhbc.OpDefCns:
		t.EmitDefCns(in.ID(0))
	case hhbc.OpClsCnsD:
		t.EmitClsCnsD(in.ID(0), in.ID(1))
	case hhbc.OpConcat:
		t.EmitConcat()

	case hhbc.OpAdd:
		t.EmitAdd()
	case hhbc.OpSub:
		t.EmitSub()
	case hhbc.OpMul:
		t.EmitMul()
	case hhbc.OpBitAnd:
		t.EmitBitAnd()
	case hhbc.OpBitOr:
		t.EmitBitOr()
	case hhbc.OpBitXor:
		t.EmitBitXor()
	case hhbc.OpBitNot:
		t.EmitBitNot()
	case hhbc.OpXor:
		t.EmitXor()
	case hhbc.OpNot:
		t.EmitNot()
	case hhbc.OpGt:
		t.EmitGt()
	case hhbc.OpGte:
		t.EmitGte()
	case hhbc.OpLt:
		t.EmitLt()
	case hhbc.OpLte:
		t.EmitLte()
	case hhbc.OpEq:
		t.EmitEq()
	case hhbc.OpNeq:
		t.EmitNeq()
	case hhbc.OpSame:
		t.EmitSame()
	case hhbc.OpNSame:
		t.EmitNSame()
	case hhbc.OpCastBool:
		t.EmitCastBool()
	case hhbc.OpCastInt:
		t.EmitCastInt()
	case hhbc.OpCastDouble:
		t.EmitCastDouble()
	case hhbc.OpCastString:
		t.EmitCastString()
	case hhbc.OpCastArray:
		t.EmitCastArray()
	case hhbc.OpCastObject:
		t.EmitCastObject()
	case hhbc.OpPrint:
		t.EmitPrint()
	case hhbc.OpStrlen:
		t.EmitStrlen()
	case hhbc.OpIncStat:
		t.EmitIncStat(in.ID(0), in.Imm(1))

	case hhbc.OpIsNullC:
		t.EmitIsNullC()
	case hhbc.OpIsBoolC:
		t.EmitIsBoolC()
	case hhbc.OpIsIntC:
		t.EmitIsIntC()
	case hhbc.OpIsDoubleC:
		t.EmitIsDoubleC()
	case hhbc.OpIsStringC:
		t.EmitIsStringC()
	case hhbc.OpIsArrayC:
		t.EmitIsArrayC()
	case hhbc.OpIsObjectC:
		t.EmitIsObjectC()
	case hhbc.OpIsNullL:
		t.EmitIsNullL(in.ID(0))
	case hhbc.OpIsBoolL:
		t.EmitIsBoolL(in.ID(0))
	case hhbc.OpIsIntL:
		t.EmitIsIntL(in.ID(0))
	case hhbc.OpIsDoubleL:
		t.EmitIsDoubleL(in.ID(0))
	case hhbc.OpIsStringL:
		t.EmitIsStringL(in.ID(0))
	case hhbc.OpIsArrayL:
		t.EmitIsArrayL(in.ID(0))
	case hhbc.OpIsObjectL:
		t.EmitIsObjectL(in.ID(0))

	case hhbc.OpCGetL:
		t.EmitCGetL(in.ID(0))
	case hhbc.OpCGetL2:
		t.EmitCGetL2(in.ID(0))
	case hhbc.OpVGetL:
		t.EmitVGetL(in.ID(0))
	case hhbc.OpSetL:
		t.EmitSetL(in.ID(0))
	case hhbc.OpBindL:
		t.EmitBindL(in.ID(0))
	case hhbc.OpUnsetL:
		t.EmitUnsetL(in.ID(0))
	case hhbc.OpIssetL:
		t.EmitIssetL(in.ID(0))
	case hhbc.OpEmptyL:
		t.EmitEmptyL(in.ID(0))
	case hhbc.OpIncDecL:
		t.EmitIncDecL(in.ID(0), in.Imm(1))
	case hhbc.OpVerifyParamType:
		t.EmitVerifyParamType(in.ID(0))

	case hhbc.OpJmp:
		target := in.Target()
		t.EmitJmp(target, t.lastOff || target != in.Next)
	case hhbc.OpJmpZ:
		t.EmitJmpZ(in.Target())
	case hhbc.OpJmpNZ:
		t.EmitJmpNZ(in.Target())
	case hhbc.OpRetC:
		t.EmitRetC()
	case hhbc.OpRetV:
		t.EmitRetV()

	case hhbc.OpThis:
		t.EmitThis()
	case hhbc.OpCheckThis:
		t.EmitCheckThis()
	case hhbc.OpBareThis:
		t.EmitBareThis(in.Imm(0))
	case hhbc.OpInitThisLoc:
		t.EmitInitThisLoc(in.ID(0))
	case hhbc.OpSelf:
		t.EmitSelf()
	case hhbc.OpParent:
		t.EmitParent()
	case hhbc.OpLateBoundCls:
		t.EmitLateBoundCls()
	case hhbc.OpAGetC:
		t.EmitAGetC()
	case hhbc.OpAGetL:
		t.EmitAGetL(in.ID(0))

	case hhbc.OpFPushFuncD:
		t.EmitFPushFuncD(in.NumParams(), in.ID(1))
	case hhbc.OpFPushFunc:
		t.EmitFPushFunc(in.NumParams())
	case hhbc.OpFPushObjMethodD:
		t.EmitFPushObjMethodD(in.NumParams(), in.ID(1))
	case hhbc.OpFPushClsMethodD:
		t.EmitFPushClsMethodD(in.NumParams(), in.ID(1), in.ID(2))
	case hhbc.OpFPushCtorD:
		t.EmitFPushCtorD(in.NumParams(), in.ID(1))
	case hhbc.OpFPushCtor:
		t.EmitFPushCtor(in.NumParams())
	case hhbc.OpFPassC:
		t.EmitFPassC(in.ID(0))
	case hhbc.OpFPassR:
		t.EmitFPassR(in.ID(0))
	case hhbc.OpFCall:
		t.EmitFCall(in.NumParams(), in.Next)

	case hhbc.OpIterInit:
		t.EmitIterInit(in.ID(0), in.Target(), in.ID(2))
	case hhbc.OpIterInitK:
		t.EmitIterInitK(in.ID(0), in.Target(), in.ID(2), in.ID(3))
	case hhbc.OpIterNext:
		t.EmitIterNext(in.ID(0), in.Target(), in.ID(2))
	case hhbc.OpIterNextK:
		t.EmitIterNextK(in.ID(0), in.Target(), in.ID(2), in.ID(3))

	case hhbc.OpDefFunc:
		t.EmitDefFunc(in.ID(0))
	case hhbc.OpDefCls:
		t.EmitDefCls(in.ID(0), in.Next)
	case hhbc.OpInstanceOfD:
		t.EmitInstanceOfD(in.ID(0))

	default:
		t.translateUnsupported(in)
	}
}

// translateUnsupported interprets in, or punts if in transfers control.
func (t *Translator) translateUnsupported(in *hhbc.Instr) {
	log.Debugf("%s: no translation for %s", t.off, in.Op)
	if in.Op.Is(hhbc.FlagTerminal) || in.Op.Is(hhbc.FlagBranch) {
		t.Punt()
		return
	}
	typ := ir.TypeNone
	if in.Pushes() > 0 {
		typ = interpTypes[in.Op]
	}
	t.InterpOneOrPunt(typ, uint32(in.Pops()), uint32(in.Pushes()))
}
