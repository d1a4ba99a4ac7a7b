package translator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/hhir/internal/hhbc"
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
	"github.com/vmjit/hhir/internal/unit"
)

func newTestTranslator(u *unit.Unit, fn *unit.Func, initialSpOffset uint32, opts Options) *Translator {
	return New(ir.NewBuilder(), u, fn, 0, initialSpOffset, opts)
}

// translateListing translates the instructions of the listing in order, checking the
// stack depth at each of them against the bytecode stack effects.
func translateListing(t *testing.T, tr *Translator, u *unit.Unit, src string) []hhbc.Instr {
	code, err := hhbc.ParseListing(src, u.InternLitStr)
	require.NoError(t, err)
	depth := tr.StackDepth()
	for i := range code {
		in := &code[i]
		tr.SetOffset(in.Offset, i == len(code)-1)
		tr.CheckStackDepth(depth)
		tr.Translate(in)
		if tr.Closed() {
			break
		}
		depth += int32(in.Pushes() - in.Pops())
		require.Equal(t, depth, tr.StackDepth(), "after %s", in)
	}
	return code
}

func TestTranslator_StraightArithmetic(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: Int 2
1: Int 3
2: Add
`)
	require.Equal(t, 1, tr.EvalStack().Len())
	require.Zero(t, tr.Deficit())
	require.Empty(t, tr.Guards())

	tr.End(3)
	require.True(t, tr.Closed())
	require.Equal(t, `main (bc0):
	fp:StkPtr = DefFP
	sp:StkPtr = DefSP 0
	Marker bc0, sp=0
	v2:Int = DefConst 2
	Marker bc1, sp=1
	v3:Int = DefConst 3
	Marker bc2, sp=2
	v4:Int = Add v2, v3
	v5:StkPtr = SpillStack sp, 0, v4
	ExitTrace v5, normal, bc3

T1 (guard_failure -> bc0):
	ExitTrace sp, guard_failure, bc0
`, tr.b.Format())
}

func TestTranslator_BranchAndReturn(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main", NumLocals: 1}, 0, DefaultOptions())
	tr.GuardTypeLocal(0, ir.TypeBool)
	translateListing(t, tr, u, `
0: CGetL L0
2: JmpZ bc10
4: Int 1
6: RetC
`)
	require.True(t, tr.Closed())
	require.True(t, tr.HasRet())
	tr.End(jitapi.InvalidOffset)
	require.Equal(t, `main (bc0):
	fp:StkPtr = DefFP
	sp:StkPtr = DefSP 0
	GuardLoc fp, L0, Bool -> T1
	Marker bc0, sp=0
	v2:Bool = LdLoc fp, L0
	Marker bc2, sp=1
	JmpZ v2 -> T2
	Marker bc4, sp=0
	v3:Int = DefConst 1
	Marker bc6, sp=1
	DecRefLocals fp, 1
	RetVal fp, v3
	RetCtrl sp, fp

T1 (guard_failure -> bc0):
	ExitTrace sp, guard_failure, bc0

T2 (normal -> bc10):
	ExitTrace sp, normal, bc10
`, tr.b.Format())
}

func TestTranslator_Punt(t *testing.T) {
	u := unit.New("test.php")
	opts := DefaultOptions()
	opts.InterpOneEnabled = false
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, opts)
	translateListing(t, tr, u, `
0: Int 1
2: CGetG
`)
	// The stack is in memory before the trace leaves.
	require.True(t, tr.Closed())
	require.Zero(t, tr.EvalStack().Len())
	require.Zero(t, tr.Deficit())

	tr.End(3)
	require.Equal(t, `main (bc0):
	fp:StkPtr = DefFP
	sp:StkPtr = DefSP 0
	Marker bc0, sp=0
	v2:Int = DefConst 1
	Marker bc2, sp=1
	v3:StkPtr = SpillStack sp, 0, v2
	Jmp -> T2

T1 (guard_failure -> bc0):
	ExitTrace sp, guard_failure, bc0

T2 (punt -> bc2):
	ExitTrace v3, punt, bc2
`, tr.b.Format())
}

func TestTranslator_PuntOnBranch(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	tr.SetOffset(0, true)
	// Branches are never interpreted one at a time.
	tr.Translate(&hhbc.Instr{Op: hhbc.OpNativeImpl, Offset: 0, Next: 1})
	require.True(t, tr.Closed())
	main := tr.Trace()
	require.Equal(t, ir.OpcodeJmp, main.Tail().Opcode())
	require.Equal(t, jitapi.ExitKindPunt, main.Tail().Target().Kind())
}

func TestTranslator_InterpOne(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: String "g"
2: CGetG
3: PopC
`)
	require.False(t, tr.Closed())
	main := tr.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeInterpOne))
	require.Equal(t, 1, main.Count(ir.OpcodeSpillStack))
	// The result of the interpreted instruction is of a known type: no guard and no check.
	require.Equal(t, 1, main.Count(ir.OpcodeLdStack))
	for _, instr := range main.Instructions() {
		if instr.Opcode() == ir.OpcodeLdStack {
			require.Nil(t, instr.Target())
		}
	}
	require.Empty(t, tr.Guards())
	require.Equal(t, 1, len(tr.b.ExitTraces()))
	tr.End(4)
}

func TestTranslator_PopBelowWindow(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 2, DefaultOptions())
	tr.SetOffset(0, false)

	x := tr.popC()
	require.Equal(t, uint32(1), tr.Deficit())
	y := tr.popC()
	require.Equal(t, uint32(2), tr.Deficit())
	require.Equal(t, int32(0), tr.StackDepth())
	require.Equal(t, []TypeGuard{
		{Kind: GuardStack, Index: 0, Type: ir.TypeCell},
		{Kind: GuardStack, Index: 1, Type: ir.TypeCell},
	}, tr.Guards())
	require.Equal(t, 2, tr.Trace().Count(ir.OpcodeGuardStk))
	require.Equal(t, 2, tr.Trace().Count(ir.OpcodeLdStack))

	// Pushing the values back restores the stack.
	tr.push(y)
	tr.push(x)
	require.Equal(t, []ir.Value{x, y}, tr.EvalStack().Values())
	require.Equal(t, int32(2), tr.StackDepth())
}

func TestTranslator_PopPushSymmetry(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	tr.SetOffset(0, false)
	tr.EmitInt(1)
	tr.EmitString(u.InternLitStr("s"))
	before := tr.EvalStack().Values()

	a := tr.popC()
	b := tr.popC()
	tr.push(b)
	tr.push(a)
	require.Equal(t, before, tr.EvalStack().Values())
	require.Zero(t, tr.Deficit())
}

func TestTranslator_PopWithGuardedType(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 2, DefaultOptions())
	tr.GuardTypeStack(0, ir.TypeInt)
	tr.GuardTypeStack(1, ir.TypeInt)
	translateListing(t, tr, u, `0: Add`)

	// The guards make the types known: no other guard is needed.
	require.Len(t, tr.Guards(), 2)
	main := tr.Trace()
	require.Equal(t, 2, main.Count(ir.OpcodeLdStack))
	require.Equal(t, 1, main.Count(ir.OpcodeAdd))
	require.Zero(t, main.Count(ir.OpcodeInterpOne))
	top, ok := tr.EvalStack().Top(0)
	require.True(t, ok)
	require.Equal(t, ir.TypeInt, top.Type())
}

func TestTranslator_SpillThenReload(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	tr.SetOffset(0, false)
	tr.EmitInt(1)
	tr.EmitInt(2)
	spilled := tr.EvalStack().Values()

	tr.spill()
	require.Zero(t, tr.EvalStack().Len())
	require.Equal(t, int32(2), tr.StackDepth())

	// Reading the spilled slots back yields the spilled values, not fresh loads.
	v := tr.top(1, ir.TypeCell)
	require.True(t, v.Same(spilled[1]))
	require.Equal(t, spilled, tr.EvalStack().Values())
	require.Zero(t, tr.Trace().Count(ir.OpcodeLdStack))
	require.Empty(t, tr.Guards())
	require.Equal(t, int32(2), tr.StackDepth())
}

func TestTranslator_ReadPastWindow(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 2, DefaultOptions())
	tr.SetOffset(0, false)

	tr.top(0, ir.TypeCell)
	require.Equal(t, 1, tr.EvalStack().Len())
	require.Equal(t, 1, tr.Trace().Count(ir.OpcodeLdStack))
	depth := tr.StackDepth()

	// Slot 0 is in the window already, so reading slot 1 loads exactly one slot.
	v := tr.top(1, ir.TypeInt)
	require.Equal(t, ir.TypeInt, v.Type())
	require.Equal(t, 2, tr.EvalStack().Len())
	require.Equal(t, 2, tr.Trace().Count(ir.OpcodeLdStack))
	require.Equal(t, depth, tr.StackDepth())
	require.Equal(t, []TypeGuard{
		{Kind: GuardStack, Index: 0, Type: ir.TypeCell},
		{Kind: GuardStack, Index: 1, Type: ir.TypeInt},
	}, tr.Guards())
}

func TestTranslator_GuardsAreShared(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main", NumLocals: 2}, 1, DefaultOptions())

	tr.GuardTypeLocal(0, ir.TypeInt)
	tr.GuardTypeLocal(0, ir.TypeInt)
	tr.GuardTypeIterator(0, ir.TypeArr)
	e1 := tr.GuardTypeStack(0, ir.TypeStr)
	e2 := tr.GuardTypeStack(0, ir.TypeStr)
	require.Same(t, e1, e2)
	require.Equal(t, jitapi.ExitKindGuardFailure, e1.Kind())

	require.Equal(t, []TypeGuard{
		{Kind: GuardLocal, Index: 0, Type: ir.TypeInt},
		{Kind: GuardIter, Index: 0, Type: ir.TypeArr},
		{Kind: GuardStack, Index: 0, Type: ir.TypeStr},
	}, tr.Guards())
	main := tr.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeGuardLoc))
	require.Equal(t, 1, main.Count(ir.OpcodeGuardStk))
	for _, instr := range main.Instructions() {
		if instr.IsGuard() {
			require.Same(t, e1, instr.Target())
		}
	}
	require.Len(t, tr.b.ExitTraces(), 1)
	require.Equal(t, "stack 0: Str", tr.Guards()[2].String())

	require.Panics(t, func() { tr.GuardTypeStack(1, ir.TypeInt) })

	tr.SetOffset(0, true)
	tr.End(1)
	require.Panics(t, func() { tr.GuardTypeLocal(1, ir.TypeInt) })
}

func TestTranslator_GuardAfterStore(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main", NumLocals: 1}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: Int 1
2: SetL L0
4: PopC
`)
	tr.GuardTypeLocal(0, ir.TypeInt)
	tr.GuardTypeLocal(0, ir.TypeDbl)
	require.Empty(t, tr.Guards())
	main := tr.Trace()
	require.Zero(t, main.Count(ir.OpcodeGuardLoc))
	// One check before the store, made by SetL, and one for the Dbl assumption.
	require.Equal(t, 2, main.Count(ir.OpcodeCheckLoc))
	require.Equal(t, jitapi.ExitKindCheckFailure, main.Tail().Target().Kind())
}

func TestTranslator_GuardRefs(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 4, DefaultOptions())
	exit := tr.GuardRefs(1, []bool{true, true}, []bool{false, true})
	require.Equal(t, jitapi.ExitKindGuardFailure, exit.Kind())
	require.Equal(t, 1, tr.Trace().Count(ir.OpcodeGuardRefs))
	require.Equal(t, 1, tr.Trace().Count(ir.OpcodeLdARFuncPtr))

	require.Panics(t, func() { tr.GuardRefs(1, []bool{true}, nil) })
	tr.SetOffset(0, false)
	require.Panics(t, func() { tr.GuardRefs(1, nil, nil) })
}

func TestTranslator_AssertAndCheck(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main", NumLocals: 1}, 1, DefaultOptions())
	tr.SetOffset(0, false)

	tr.AssertTypeStack(0, ir.TypeInt)
	v, ok := tr.EvalStack().Top(0)
	require.True(t, ok)
	require.Equal(t, ir.TypeInt, v.Type())
	require.Empty(t, tr.Guards())

	tr.EmitInt(7)
	tr.EmitCastDouble()
	tr.AssertTypeStack(0, ir.TypeDbl)
	require.Zero(t, tr.Trace().Count(ir.OpcodeAssertType))

	tr.AssertTypeLocal(0, ir.TypeStr)
	require.Equal(t, ir.TypeStr, tr.b.LocalType(0))
	tr.CheckTypeLocal(0, ir.TypeStr)
	require.Zero(t, tr.Trace().Count(ir.OpcodeCheckLoc))

	tr.SetOffset(2, false)
	tr.EmitCGetL(0)
	tr.EmitStrlen()
	tr.CheckTypeTopOfStack(ir.TypeInt, 4)
	require.Zero(t, tr.Trace().Count(ir.OpcodeCheckType))
	tr.EmitPopC()
	tr.EmitCGetL(0)
	tr.CheckTypeTopOfStack(ir.TypeStaticStr, 4)
	require.Equal(t, 1, tr.Trace().Count(ir.OpcodeCheckType))
	top, _ := tr.EvalStack().Top(0)
	require.Equal(t, ir.TypeStaticStr, top.Type())
}

func TestTranslator_Calls(t *testing.T) {
	u := unit.New("test.php")
	u.AddFunc(&unit.Func{Name: "foo", NumParams: 1})
	u.AddFunc(&unit.Func{Name: "bar"})
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: FPushFuncD 1 "foo"
3: FPushFuncD 0 "bar"
6: FCall 0
8: FPassR 0
10: FCall 1
12: UnboxR
13: RetC
`)
	require.Zero(t, tr.FpiDepth())
	require.True(t, tr.HasRet())
	main := tr.Trace()
	require.Equal(t, 2, main.Count(ir.OpcodeCall))
	require.Equal(t, 2, main.Count(ir.OpcodeDefActRec))
	require.Zero(t, main.Count(ir.OpcodeLdFunc))
	require.Zero(t, main.Count(ir.OpcodeInterpOne))
	tr.End(jitapi.InvalidOffset)
}

func TestTranslator_CallOfUnknownFunction(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: String "f"
2: FPushFunc 0
4: FCall 0
6: PopR
`)
	main := tr.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeLdFunc))
	require.Equal(t, 1, main.Count(ir.OpcodeCall))
	require.Zero(t, tr.FpiDepth())
	require.Zero(t, tr.StackDepth())
}

func TestTranslator_CallAfterInterpretedFPush(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: Int 1
2: FPushFunc 0
4: FCall 0
`)
	main := tr.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeInterpOne))
	// The callee is read from the activation record built by the interpreter.
	require.Equal(t, 1, main.Count(ir.OpcodeLdARFuncPtr))
	require.Equal(t, 1, main.Count(ir.OpcodeCall))
	require.Zero(t, tr.FpiDepth())
}

func TestTranslator_FCallWithoutFPush(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 3, DefaultOptions())
	tr.SetOffset(0, true)
	require.Panics(t, func() { tr.EmitFCall(0, 2) })
}

func TestTranslator_Methods(t *testing.T) {
	u := unit.New("test.php")
	u.AddClass(&unit.Class{Name: "Base", Methods: map[string]*unit.Func{
		"make": {Name: "make", Class: "Base", Static: true},
	}})
	u.AddClass(&unit.Class{Name: "C", Parent: "Base"})
	u.NamedEntityPairs = append(u.NamedEntityPairs, unit.NamedEntityPair{Name: "C", Key: "c"})
	fn := &unit.Func{Name: "run", Class: "C", NumLocals: 1}
	tr := newTestTranslator(u, fn, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: FPushClsMethodD 0 "make" 0
4: FCall 0
6: PopR
7: This
8: CheckThis
9: FPushObjMethodD 0 "go"
12: FCall 0
14: PopR
`)
	main := tr.Trace()
	require.Equal(t, 0, main.Count(ir.OpcodeLdClsMethod))
	require.Equal(t, 1, main.Count(ir.OpcodeLdObjMethod))
	require.Equal(t, 1, main.Count(ir.OpcodeLdThis))
	require.Equal(t, 2, main.Count(ir.OpcodeCall))
	// $this is loaded once, checked through the slow exit.
	var ldThis *ir.Instruction
	for _, instr := range main.Instructions() {
		if instr.Opcode() == ir.OpcodeLdThis {
			ldThis = instr
		}
	}
	require.NotNil(t, ldThis.Target())
	require.Equal(t, jitapi.ExitKindSlow, ldThis.Target().Kind())
}

func TestTranslator_Constructor(t *testing.T) {
	u := unit.New("test.php")
	u.AddClass(&unit.Class{Name: "Point", Methods: map[string]*unit.Func{
		"__construct": {Name: "__construct", Class: "Point", NumParams: 1},
	}})
	tr := newTestTranslator(u, &unit.Func{Name: "main", NumLocals: 1}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: FPushCtorD 1 "Point"
3: Int 1
5: FPassC 0
7: FCall 1
9: PopR
10: SetL L0
12: PopC
`)
	main := tr.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeNewObj))
	require.Equal(t, 1, main.Count(ir.OpcodeLdCtor))
	require.Zero(t, main.Count(ir.OpcodeLdCls))
	require.Equal(t, ir.TypeObj, tr.b.LocalType(0))
}

func TestTranslator_ResidentTypeMismatch(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	tr.SetOffset(0, false)
	tr.EmitInt(1)
	require.Panics(t, func() { tr.popV() })
}

func TestTranslator_StackUnderflow(t *testing.T) {
	tests := []struct {
		name    string
		sp      uint32
		setup   func(tr *Translator)
		corrupt func(tr *Translator)
	}{
		{
			name:    "pop of an empty stack",
			corrupt: func(tr *Translator) { tr.popC() },
		},
		{
			name:    "pop past the entry stack",
			sp:      1,
			setup:   func(tr *Translator) { tr.popC() },
			corrupt: func(tr *Translator) { tr.popC() },
		},
		{
			name:    "read past the entry stack",
			sp:      1,
			corrupt: func(tr *Translator) { tr.top(1, ir.TypeCell) },
		},
		{
			name:    "tuple larger than the stack",
			sp:      1,
			corrupt: func(tr *Translator) { tr.EmitNewTuple(1 << 31) },
		},
		{
			name:    "check of an empty stack",
			corrupt: func(tr *Translator) { tr.CheckTypeTopOfStack(ir.TypeInt, 2) },
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestTranslator(unit.New("test.php"), &unit.Func{Name: "main"}, tc.sp, DefaultOptions())
			tr.SetOffset(0, false)
			if tc.setup != nil {
				tc.setup(tr)
			}
			require.Panics(t, func() { tc.corrupt(tr) })
		})
	}
}

func TestTranslator_InvalidExitOffset(t *testing.T) {
	tests := []struct {
		name string
		exit func(tr *Translator)
	}{
		{name: "branch exit", exit: func(tr *Translator) { tr.exitToOffset(jitapi.InvalidOffset) }},
		{name: "jump", exit: func(tr *Translator) { tr.EmitJmp(jitapi.InvalidOffset, true) }},
		{name: "fall through", exit: func(tr *Translator) { tr.End(jitapi.InvalidOffset) }},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestTranslator(unit.New("test.php"), &unit.Func{Name: "main"}, 0, DefaultOptions())
			tr.SetOffset(0, false)
			tr.EmitInt(1)
			require.Panics(t, func() { tc.exit(tr) })
		})
	}
}

func TestTranslator_CheckInterpretedTop(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	tr.SetOffset(0, false)
	tr.InterpOne(ir.TypeCell, 0, 1)
	require.Zero(t, tr.EvalStack().Len())

	// The result stays in memory: it is checked there rather than loaded.
	tr.CheckTypeTopOfStack(ir.TypeInt, 2)
	require.Equal(t, 1, tr.Trace().Count(ir.OpcodeCheckStk))
	require.Zero(t, tr.Trace().Count(ir.OpcodeLdStack))
	require.Equal(t, ir.TypeInt, tr.topType(0))

	exits := tr.b.ExitTraces()
	require.Equal(t, jitapi.ExitKindCheckFailure, exits[len(exits)-1].Kind())
	require.Equal(t, jitapi.Offset(2), exits[len(exits)-1].Offset())

	// Known now, so a second check is free.
	tr.CheckTypeTopOfStack(ir.TypeInt, 2)
	require.Equal(t, 1, tr.Trace().Count(ir.OpcodeCheckStk))
	tr.End(2)
}

func TestTranslator_CheckStackDepth(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 1, DefaultOptions())
	tr.SetOffset(0, false)
	tr.CheckStackDepth(1)
	require.Panics(t, func() { tr.CheckStackDepth(2) })

	opts := DefaultOptions()
	opts.ValidateStackDepth = false
	tr = newTestTranslator(u, &unit.Func{Name: "main"}, 1, opts)
	tr.SetOffset(0, false)
	tr.CheckStackDepth(2)
}

func TestTranslator_SetOffset(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	require.Panics(t, func() { tr.EmitCns(u.InternLitStr("C")) })
	tr.SetOffset(4, false)
	require.Equal(t, jitapi.Offset(4), tr.Offset())
	require.Panics(t, func() { tr.SetOffset(4, false) })
	require.Panics(t, func() { tr.SetOffset(2, false) })

	tr.SetOffsetNextTrace(9)
	require.Equal(t, jitapi.Offset(9), tr.OffsetNextTrace())

	tr.End(5)
	require.Panics(t, func() { tr.SetOffset(6, false) })
}

func TestTranslator_Locals(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main", NumLocals: 3}, 0, DefaultOptions())
	tr.GuardTypeLocal(0, ir.TypeInt)
	tr.GuardTypeLocal(1, ir.TypeUninit)
	tr.GuardTypeLocal(2, ir.TypeInitNull)
	translateListing(t, tr, u, `
0: IncDecL L0 1
3: CGetL L0
5: Add
6: CGetL L1
8: IssetL L0
10: EmptyL L0
12: IsIntL L0
14: VGetL L2
16: BindL L1
18: UnsetL L2
20: PopV
21: PopC
22: PopC
23: PopC
24: PopC
25: PopC
`)
	main := tr.Trace()
	// IncDecL leaves the local an Int, so Add is translated.
	require.Equal(t, 2, main.Count(ir.OpcodeAdd))
	require.Equal(t, 1, main.Count(ir.OpcodeRaiseUninitWarning))
	require.Equal(t, 1, main.Count(ir.OpcodeBox))
	require.Zero(t, main.Count(ir.OpcodeInterpOne))
	require.Equal(t, ir.TypeUninit, tr.b.LocalType(2))
	require.Equal(t, ir.TypeBoxedCell, tr.b.LocalType(1))
	require.Zero(t, tr.StackDepth())
}

func TestTranslator_TypeTests(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: Int 1
2: IsIntC
3: Null
4: IsStringC
5: Same
6: Not
7: String "a"
9: String "b"
11: Concat
13: Strlen
14: Int 3
16: Gt
17: Xor
18: CastInt
19: CastString
20: Print
`)
	main := tr.Trace()
	// Both type tests fold to constants.
	require.Zero(t, main.Count(ir.OpcodeIsType))
	require.Equal(t, 1, main.Count(ir.OpcodeLogicXor))
	require.Equal(t, 1, main.Count(ir.OpcodeConvToInt))
	require.Equal(t, 1, main.Count(ir.OpcodeConvToStr))
	require.Equal(t, 1, main.Count(ir.OpcodePrint))
	require.Zero(t, main.Count(ir.OpcodeInterpOne))
	top, _ := tr.EvalStack().Top(0)
	require.Equal(t, ir.TypeInt, top.Type())
}

func TestTranslator_Unsupported(t *testing.T) {
	for _, tc := range []struct {
		name    string
		listing string
		typ     ir.Type
	}{
		{name: "cast array", listing: "0: Int 1\n2: CastArray", typ: ir.TypeArr},
		{name: "concat objects", listing: "0: Int 1\n2: CastObject\n3: Int 2\n5: Concat", typ: ir.TypeStr},
		{name: "late static binding", listing: "0: LateBoundCls", typ: ir.TypeClassPtr},
		{name: "isset static", listing: "0: String \"C\"\n2: AGetC\n3: String \"p\"\n5: IssetS", typ: ir.TypeBool},
	} {
		t.Run(tc.name, func(t *testing.T) {
			u := unit.New("test.php")
			tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
			translateListing(t, tr, u, tc.listing)
			require.False(t, tr.Closed())
			last := tr.Trace().Tail()
			require.Equal(t, ir.OpcodeInterpOne, last.Opcode())
			_, _, typ := last.InterpOneData()
			require.Equal(t, tc.typ, typ)
			require.Zero(t, tr.EvalStack().Len())
			tr.End(10)
		})
	}
}

func TestTranslator_Iterators(t *testing.T) {
	u := unit.New("test.php")
	u.Arrays = append(u.Arrays, "[1, 2]")
	tr := newTestTranslator(u, &unit.Func{Name: "main", NumLocals: 2, NumIters: 1}, 0, DefaultOptions())
	tr.GuardTypeLocal(0, ir.TypeInt)
	translateListing(t, tr, u, `
0: Array 0
2: IterInitK I0 bc20 L0 L1
7: CGetL L0
9: PopC
10: IterNext I0 bc7 L0
`)
	main := tr.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeIterInit))
	require.Equal(t, 1, main.Count(ir.OpcodeIterNext))
	require.Equal(t, 1, main.Count(ir.OpcodeJmpZ))
	require.Equal(t, 1, main.Count(ir.OpcodeJmpNZ))
	// The iterator overwrote the guarded local.
	require.Equal(t, ir.TypeGen, tr.b.LocalType(0))
	// Entry guard failure, loop exit, slow path of CGetL, loop back edge.
	exits := tr.b.ExitTraces()
	require.Len(t, exits, 4)
	require.Equal(t, jitapi.Offset(20), exits[1].Offset())
	require.Equal(t, jitapi.ExitKindSlow, exits[2].Kind())
	require.Equal(t, jitapi.ExitKindNormal, exits[3].Kind())
	require.Equal(t, jitapi.Offset(7), exits[3].Offset())
}

func TestTranslator_JmpLeavingTracelet(t *testing.T) {
	u := unit.New("test.php")
	tr := newTestTranslator(u, &unit.Func{Name: "main"}, 0, DefaultOptions())
	translateListing(t, tr, u, `
0: Int 1
2: Jmp bc4
4: Int 2
6: Jmp bc30
`)
	require.True(t, tr.Closed())
	main := tr.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeExitTrace))
	_, off := main.Tail().ExitTraceData()
	require.Equal(t, jitapi.Offset(30), off)
	tr.End(8)
}
