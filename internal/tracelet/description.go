// Package tracelet loads tracelet descriptions and drives a translation session over
// their instructions.
//
// A description is a TOML document holding the function being translated, the unit
// tables its immediates refer to, the entry state of the trace and the bytecode listing:
//
//	start = 0
//	sp_offset = 1
//	code = """
//	0: CGetL L0
//	1: Add
//	"""
//
//	[func]
//	name = "add1"
//	num_locals = 1
//
//	[[guards]]
//	kind = "local"
//	index = 0
//	type = "Int"
package tracelet

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/translator"
	"github.com/vmjit/hhir/internal/unit"
)

// ErrDescription is returned when a tracelet description is inconsistent.
var ErrDescription = errors.New("invalid tracelet description")

// Description is a tracelet to translate.
type Description struct {
	Func Func `toml:"func"`
	Unit Unit `toml:"unit"`
	// Start is the offset of the first instruction. It defaults to the offset of the
	// first instruction of Code.
	Start *int32 `toml:"start"`
	// SpOffset is the depth of the stack in cells at trace entry.
	SpOffset uint32 `toml:"sp_offset"`
	// Next is where execution continues after the tracelet. It defaults to the offset
	// following the last instruction of Code.
	Next          *int32  `toml:"next"`
	ThisAvailable bool    `toml:"this_available"`
	Guards        []Guard `toml:"guards"`
	Refs          *Refs   `toml:"refs"`
	Code          string  `toml:"code"`
	// Heights are the expected stack heights at each instruction. Without them the
	// heights are derived from the stack effects of the instructions.
	Heights []int32 `toml:"heights"`

	// Path is the file the description was read from (set at load time).
	Path string `toml:"-"`
}

// Func describes a function or method.
type Func struct {
	Name      string `toml:"name"`
	Class     string `toml:"class"`
	Static    bool   `toml:"static"`
	NumParams uint32 `toml:"num_params"`
	NumLocals uint32 `toml:"num_locals"`
	NumIters  uint32 `toml:"num_iters"`
	// RefParams lists the parameters passed by reference.
	RefParams        []uint32 `toml:"ref_params"`
	ParamConstraints []string `toml:"param_constraints"`
}

// Unit describes the tables of the unit the function belongs to.
type Unit struct {
	Strings    []string   `toml:"strings"`
	Arrays     []string   `toml:"arrays"`
	Funcs      []Func     `toml:"funcs"`
	PreClasses []PreClass `toml:"preclasses"`
	Pairs      []Pair     `toml:"pairs"`
	// Defined are the functions known to be defined when the unit runs.
	Defined []Func `toml:"defined"`
	// Classes are the classes known to be defined when the unit runs.
	Classes []Class `toml:"classes"`
}

// PreClass describes a class declaration.
type PreClass struct {
	Name   string `toml:"name"`
	Parent string `toml:"parent"`
}

// Pair describes a named entity pair. Key defaults to the lower-cased name.
type Pair struct {
	Name string `toml:"name"`
	Key  string `toml:"key"`
}

// Class describes a class known at translation time.
type Class struct {
	Name      string   `toml:"name"`
	Parent    string   `toml:"parent"`
	Methods   []Func   `toml:"methods"`
	Constants []string `toml:"constants"`
}

// Guard is a type assumption about a slot at trace entry.
type Guard struct {
	// Kind is one of "local", "stack" or "iter".
	Kind  string `toml:"kind"`
	Index uint32 `toml:"index"`
	// Type is a type name or a union of them, such as "Int|Dbl".
	Type string `toml:"type"`
}

// Refs is a by-reference guard on the callee of a pending call.
type Refs struct {
	ArDelta uint32 `toml:"ar_delta"`
	Mask    []bool `toml:"mask"`
	Vals    []bool `toml:"vals"`
}

// Load reads the description at path.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes a description. path is only used in errors.
func Parse(data []byte, path string) (*Description, error) {
	var d Description
	md, err := toml.Decode(string(data), &d)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q: %w", path, undecoded[0].String(), ErrDescription)
	}
	d.Path = path
	if d.Func.Name == "" {
		d.Func.Name = "main"
	}
	if strings.TrimSpace(d.Code) == "" {
		return nil, fmt.Errorf("%s: no code: %w", path, ErrDescription)
	}
	return &d, nil
}

// BuildUnit returns the unit and the function the description refers to.
func (d *Description) BuildUnit() (*unit.Unit, *unit.Func, error) {
	u := unit.New(d.Path)
	u.LitStrs = append(u.LitStrs, d.Unit.Strings...)
	u.Arrays = append(u.Arrays, d.Unit.Arrays...)
	for i := range d.Unit.Funcs {
		fn, err := d.Unit.Funcs[i].build("")
		if err != nil {
			return nil, nil, d.errorf("funcs[%d]: %v", i, err)
		}
		u.Funcs = append(u.Funcs, fn)
	}
	for _, pc := range d.Unit.PreClasses {
		u.PreClasses = append(u.PreClasses, &unit.PreClass{Name: pc.Name, Parent: pc.Parent})
	}
	for _, p := range d.Unit.Pairs {
		key := p.Key
		if key == "" {
			key = strings.ToLower(p.Name)
		}
		u.NamedEntityPairs = append(u.NamedEntityPairs, unit.NamedEntityPair{Name: p.Name, Key: key})
	}
	for i := range d.Unit.Defined {
		fn, err := d.Unit.Defined[i].build("")
		if err != nil {
			return nil, nil, d.errorf("defined[%d]: %v", i, err)
		}
		u.AddFunc(fn)
	}
	for _, c := range d.Unit.Classes {
		if c.Name == "" {
			return nil, nil, d.errorf("class without a name")
		}
		cls := &unit.Class{Name: c.Name, Parent: c.Parent, Methods: map[string]*unit.Func{}, Constants: c.Constants}
		for i := range c.Methods {
			m, err := c.Methods[i].build(c.Name)
			if err != nil {
				return nil, nil, d.errorf("%s methods[%d]: %v", c.Name, i, err)
			}
			cls.Methods[strings.ToLower(m.Name)] = m
		}
		u.AddClass(cls)
	}

	fn, err := d.Func.build("")
	if err != nil {
		return nil, nil, d.errorf("func: %v", err)
	}
	return u, fn, nil
}

func (f *Func) build(class string) (*unit.Func, error) {
	if f.Name == "" {
		return nil, errors.New("function without a name")
	}
	if f.Class != "" {
		class = f.Class
	}
	fn := &unit.Func{
		Name:             f.Name,
		NumParams:        f.NumParams,
		NumLocals:        f.NumLocals,
		NumIters:         f.NumIters,
		Class:            class,
		Static:           f.Static,
		ParamConstraints: f.ParamConstraints,
	}
	if fn.NumLocals < fn.NumParams {
		fn.NumLocals = fn.NumParams
	}
	for _, i := range f.RefParams {
		if i >= 64 || i >= f.NumParams {
			return nil, fmt.Errorf("by-reference parameter %d out of range", i)
		}
		fn.RefParams |= 1 << i
	}
	return fn, nil
}

// installGuards records the guards and the by-reference guard of d in the session.
func (d *Description) installGuards(tr *translator.Translator, fn *unit.Func) error {
	for i, g := range d.Guards {
		typ, ok := ir.ParseType(g.Type)
		if !ok || typ == ir.TypeNone {
			return d.errorf("guards[%d]: unknown type %q", i, g.Type)
		}
		switch g.Kind {
		case "local":
			if g.Index >= fn.NumLocals {
				return d.errorf("guards[%d]: local %d of a function with %d locals", i, g.Index, fn.NumLocals)
			}
			tr.GuardTypeLocal(g.Index, typ)
		case "stack":
			if g.Index >= d.SpOffset {
				return d.errorf("guards[%d]: stack slot %d of a stack of %d cells", i, g.Index, d.SpOffset)
			}
			tr.GuardTypeStack(g.Index, typ)
		case "iter":
			if g.Index >= fn.NumIters {
				return d.errorf("guards[%d]: iterator %d of a function with %d iterators", i, g.Index, fn.NumIters)
			}
			tr.GuardTypeIterator(g.Index, typ)
		default:
			return d.errorf("guards[%d]: unknown kind %q", i, g.Kind)
		}
	}
	if r := d.Refs; r != nil {
		if len(r.Mask) != len(r.Vals) || len(r.Mask) > 64 {
			return d.errorf("refs: %d mask and %d value bits", len(r.Mask), len(r.Vals))
		}
		if int(r.ArDelta)+ir.TypeActRec.CellWidth() > int(d.SpOffset) {
			return d.errorf("refs: activation record at %d of a stack of %d cells", r.ArDelta, d.SpOffset)
		}
		tr.GuardRefs(r.ArDelta, r.Mask, r.Vals)
	}
	if d.ThisAvailable {
		tr.SetThisAvailable()
	}
	return nil
}

func (d *Description) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s: %w", d.Path, fmt.Sprintf(format, args...), ErrDescription)
}
