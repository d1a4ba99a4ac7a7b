package unit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/hhir/internal/hhbc"
)

func TestUnit_Lookup(t *testing.T) {
	u := New("test.php")
	require.Equal(t, uint32(0), u.InternLitStr("foo"))
	require.Equal(t, uint32(1), u.InternLitStr("bar"))
	require.Equal(t, uint32(0), u.InternLitStr("foo"))
	require.Equal(t, "bar", u.LitStr(1))
	require.Panics(t, func() { u.LitStr(2) })

	fn := &Func{Name: "Strlen", NumParams: 1}
	u.AddFunc(fn)
	require.Same(t, fn, u.LookupFunc("strlen"))
	require.Nil(t, u.LookupFunc("nope"))

	base := &Class{Name: "Base", Methods: map[string]*Func{"run": {Name: "run", Class: "Base"}}}
	derived := &Class{Name: "Derived", Parent: "Base"}
	u.AddClass(base)
	u.AddClass(derived)
	require.Same(t, derived, u.LookupClass("DERIVED"))
	m := derived.Method("Run", u.LookupClass)
	require.NotNil(t, m)
	require.Equal(t, "Base::run", m.FullName())
	require.Nil(t, derived.Method("walk", u.LookupClass))
}

func TestFunc(t *testing.T) {
	f := &Func{Name: "f", RefParams: 0b10, ParamConstraints: []string{"", "Foo"}}
	require.False(t, f.ByRef(0))
	require.True(t, f.ByRef(1))
	require.False(t, f.ByRef(100))
	require.Equal(t, "Foo", f.ParamConstraint(1))
	require.Equal(t, "", f.ParamConstraint(5))
	require.False(t, f.MayHaveThis())

	m := &Func{Name: "m", Class: "C"}
	require.True(t, m.MayHaveThis())
	m.Static = true
	require.False(t, m.MayHaveThis())
}

func TestUnit_Resolve(t *testing.T) {
	u := New("test.php")
	u.InternLitStr("f")
	u.NamedEntityPairs = []NamedEntityPair{{Name: "C", Key: "c"}}

	for _, tc := range []struct {
		name string
		in   hhbc.Instr
		ok   bool
	}{
		{name: "string", in: hhbc.Instr{Op: hhbc.OpString, Imms: []int64{0}}, ok: true},
		{name: "string out of range", in: hhbc.Instr{Op: hhbc.OpString, Imms: []int64{1}}},
		{name: "array", in: hhbc.Instr{Op: hhbc.OpArray, Imms: []int64{0}}},
		{name: "cls method", in: hhbc.Instr{Op: hhbc.OpFPushClsMethodD, Imms: []int64{0, 0, 0}}, ok: true},
		{name: "cls method pair out of range", in: hhbc.Instr{Op: hhbc.OpFPushClsMethodD, Imms: []int64{0, 0, 1}}},
		{name: "def func", in: hhbc.Instr{Op: hhbc.OpDefFunc, Imms: []int64{0}}},
		{name: "local", in: hhbc.Instr{Op: hhbc.OpCGetL, Imms: []int64{7}}, ok: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := u.Resolve(&tc.in)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrUnresolved)
			}
		})
	}
}
