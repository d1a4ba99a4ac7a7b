package tracelet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/hhir/internal/hhbc"
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
	"github.com/vmjit/hhir/internal/jit/translator"
	"github.com/vmjit/hhir/internal/unit"
)

func TestCompile_Inc(t *testing.T) {
	d, err := Load("testdata/inc.toml")
	require.NoError(t, err)
	require.Equal(t, "inc", d.Func.Name)

	res, err := Compile(d, translator.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 4, res.Translated)
	require.True(t, res.HasRet)
	require.Equal(t, []translator.TypeGuard{{Kind: translator.GuardLocal, Index: 0, Type: ir.TypeInt}}, res.Guards)

	main := res.Trace()
	require.Equal(t, 1, main.Count(ir.OpcodeGuardLoc))
	require.Equal(t, 1, main.Count(ir.OpcodeAdd))
	require.Equal(t, 1, main.Count(ir.OpcodeRetCtrl))
	require.Zero(t, main.Count(ir.OpcodeExitTrace))
	// Only the entry guard exit.
	require.Equal(t, 1, len(res.ExitTraces()))
	require.Contains(t, res.Format(), "T1 (guard_failure -> bc0):")
}

func TestCompile_InterpOne(t *testing.T) {
	d, err := Load("testdata/globals.toml")
	require.NoError(t, err)

	t.Run("enabled", func(t *testing.T) {
		res, err := Compile(d, translator.DefaultOptions())
		require.NoError(t, err)
		require.Equal(t, 4, res.Translated)
		require.False(t, res.HasRet)
		require.Equal(t, jitapi.Offset(4), res.Next)
		require.Equal(t, 1, res.Trace().Count(ir.OpcodeInterpOne))
		require.Equal(t, 1, res.Trace().Count(ir.OpcodeExitTrace))
	})
	t.Run("disabled", func(t *testing.T) {
		c, err := LoadConfig("testdata/options.toml")
		require.NoError(t, err)
		res, err := Compile(d, c.Options())
		require.NoError(t, err)
		// The tracelet ends at CGetG.
		require.Equal(t, 2, res.Translated)
		require.Zero(t, res.Trace().Count(ir.OpcodeInterpOne))
		require.Equal(t, ir.OpcodeJmp, res.Trace().Tail().Opcode())

		var kinds []jitapi.ExitKind
		for _, e := range res.ExitTraces() {
			kinds = append(kinds, e.Kind())
		}
		require.Equal(t, []jitapi.ExitKind{jitapi.ExitKindGuardFailure, jitapi.ExitKindPunt}, kinds)
		require.Equal(t, jitapi.Offset(1), res.ExitTraces()[1].Offset())
	})
}

func TestCompile_EntryState(t *testing.T) {
	d, err := Parse([]byte(`
sp_offset = 4
this_available = true
code = """
0: PopC
1: Nop
"""

[func]
name = "m"
class = "C"

[[guards]]
kind = "stack"
index = 0
type = "Int"

[[guards]]
kind = "stack"
index = 0
type = "Int"

[refs]
ar_delta = 1
mask = [true, true]
vals = [true, false]
`), "entry.toml")
	require.NoError(t, err)

	res, err := Compile(d, translator.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, res.Translated)
	require.Equal(t, []translator.TypeGuard{{Kind: translator.GuardStack, Index: 0, Type: ir.TypeInt}}, res.Guards)
	require.Equal(t, 1, res.Trace().Count(ir.OpcodeGuardStk))
	require.Equal(t, 1, res.Trace().Count(ir.OpcodeGuardRefs))
	// Popping an Int needs no DecRef.
	require.Zero(t, res.Trace().Count(ir.OpcodeDecRef))
}

func TestCompile_Heights(t *testing.T) {
	src := `
code = """
0: Int 1
1: Int 2
2: Add
"""
`
	t.Run("matching", func(t *testing.T) {
		d, err := Parse([]byte(src+"heights = [0, 1, 2]\n"), "heights.toml")
		require.NoError(t, err)
		_, err = Compile(d, translator.DefaultOptions())
		require.NoError(t, err)
	})
	t.Run("count", func(t *testing.T) {
		d, err := Parse([]byte(src+"heights = [0, 1]\n"), "heights.toml")
		require.NoError(t, err)
		_, err = Compile(d, translator.DefaultOptions())
		require.ErrorIs(t, err, ErrDescription)
	})
	t.Run("mismatch", func(t *testing.T) {
		d, err := Parse([]byte(src+"heights = [0, 1, 3]\n"), "heights.toml")
		require.NoError(t, err)
		require.Panics(t, func() { _, _ = Compile(d, translator.DefaultOptions()) })

		opts := translator.DefaultOptions()
		opts.ValidateStackDepth = false
		_, err = Compile(d, opts)
		require.NoError(t, err)
	})
}

func TestCompile_Unit(t *testing.T) {
	d, err := Parse([]byte(`
code = """
0: FPushClsMethodD 0 "make" 0
1: FCall 0
2: PopR
3: FPushFuncD 1 "helper"
4: Int 3
5: FPassC 0
6: FCall 1
7: PopR
"""

[unit]
pairs = [{ name = "Factory" }]

[[unit.defined]]
name = "helper"
num_params = 1

[[unit.classes]]
name = "Factory"

[[unit.classes.methods]]
name = "Make"
static = true
`), "unit.toml")
	require.NoError(t, err)

	u, fn, err := d.BuildUnit()
	require.NoError(t, err)
	require.Equal(t, "main", fn.Name)
	require.Equal(t, "factory", u.NamedEntityPair(0).Key)
	require.Equal(t, "Factory::Make", u.LookupClass("factory").Method("make", u.LookupClass).FullName())
	require.NotNil(t, u.LookupFunc("HELPER"))

	res, err := Compile(d, translator.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 8, res.Translated)
	require.Equal(t, 2, res.Trace().Count(ir.OpcodeCall))
	// Both callees are known, so neither is looked up at run time.
	require.Zero(t, res.Trace().Count(ir.OpcodeLdFunc))
	require.Zero(t, res.Trace().Count(ir.OpcodeLdClsMethod))
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  error
	}{
		{
			name: "unknown opcode",
			src:  "code = \"Frobnicate\"",
			err:  hhbc.ErrUnknownOp,
		},
		{
			name: "unresolved string",
			src:  "code = \"String 3\"",
			err:  unit.ErrUnresolved,
		},
		{
			name: "unknown guard type",
			src:  "code = \"Nop\"\nsp_offset = 1\n[[guards]]\nkind = \"stack\"\ntype = \"Integer\"",
			err:  ErrDescription,
		},
		{
			name: "unknown guard kind",
			src:  "code = \"Nop\"\nsp_offset = 1\n[[guards]]\nkind = \"global\"\ntype = \"Int\"",
			err:  ErrDescription,
		},
		{
			name: "stack guard below the stack",
			src:  "code = \"Nop\"\nsp_offset = 1\n[[guards]]\nkind = \"stack\"\nindex = 1\ntype = \"Int\"",
			err:  ErrDescription,
		},
		{
			name: "local guard out of range",
			src:  "code = \"Nop\"\n[[guards]]\nkind = \"local\"\nindex = 0\ntype = \"Int\"",
			err:  ErrDescription,
		},
		{
			name: "refs without an activation record",
			src:  "code = \"Nop\"\nsp_offset = 2\n[refs]\nmask = [true]\nvals = [true]",
			err:  ErrDescription,
		},
		{
			name: "ref parameter out of range",
			src:  "code = \"Nop\"\n[func]\nname = \"f\"\nref_params = [0]",
			err:  ErrDescription,
		},
		{
			name: "pop below the entry stack",
			src:  "code = \"PopC\"",
			err:  ErrDescription,
		},
		{
			name: "binary op on one cell",
			src:  "code = \"Int 1\\nAdd\"\nsp_offset = 0",
			err:  ErrDescription,
		},
		{
			name: "tuple larger than the stack",
			src:  "code = \"NewTuple 3\"\nsp_offset = 2",
			err:  ErrDescription,
		},
		{
			name: "huge tuple",
			src:  "code = \"NewTuple 4000000000\"",
			err:  hhbc.ErrImmediate,
		},
		{
			name: "negative next",
			src:  "code = \"Nop\"\nnext = -1",
			err:  ErrDescription,
		},
		{
			name: "start",
			src:  "code = \"3: Nop\"\nstart = 0",
			err:  ErrDescription,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			d, err := Parse([]byte(tc.src), "bad.toml")
			require.NoError(t, err)
			_, err = Compile(d, translator.DefaultOptions())
			require.ErrorIs(t, err, tc.err)
			require.Contains(t, err.Error(), "bad.toml")
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("code = "), "bad.toml")
	require.Error(t, err)

	_, err = Parse([]byte("start = 0\n"), "bad.toml")
	require.ErrorIs(t, err, ErrDescription)

	_, err = Parse([]byte("code = \"Nop\"\nsp_ofset = 1\n"), "bad.toml")
	require.ErrorIs(t, err, ErrDescription)
	require.Contains(t, err.Error(), "sp_ofset")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig(t *testing.T) {
	c, err := ParseConfig(nil, "empty.toml")
	require.NoError(t, err)
	require.Equal(t, translator.DefaultOptions(), c.Options())
	require.Zero(t, c.Log.Verbosity)

	c, err = LoadConfig("testdata/options.toml")
	require.NoError(t, err)
	require.Equal(t, 2, c.Log.Verbosity)
	opts := c.Options()
	require.False(t, opts.InterpOneEnabled)
	require.True(t, opts.UnboxPtrs)
	require.True(t, opts.ValidateStackDepth)

	c, err = ParseConfig([]byte("[log]\nverbosity = -10\n"), "quiet.toml")
	require.NoError(t, err)
	require.Equal(t, -4, c.Log.Verbosity)

	_, err = ParseConfig([]byte("[translator]\ninterp = true\n"), "bad.toml")
	require.ErrorIs(t, err, ErrConfig)

	_, err = ParseConfig([]byte("[translator]\ninterp_one = 1\n"), "bad.toml")
	require.Error(t, err)
}
