// Package unit holds the read-only metadata of a compilation unit that bytecode
// immediates refer to: literal strings, static arrays, functions and classes.
//
// A Unit is filled before translation starts and only read afterwards, so it can be
// shared by translation sessions running on different goroutines.
package unit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vmjit/hhir/internal/hhbc"
)

// ErrUnresolved is returned when an immediate refers to an id the unit does not define.
var ErrUnresolved = errors.New("unresolved id")

// Func is the metadata of a function or method.
type Func struct {
	Name      string
	NumParams uint32
	NumLocals uint32
	NumIters  uint32
	// Class is the name of the class declaring a method, empty for free functions.
	Class  string
	Static bool
	// RefParams has bit i set if parameter i is passed by reference. Only the first
	// 64 parameters can be described, later ones are passed by value.
	RefParams uint64
	// ParamConstraints holds the class name each parameter is declared with, if any.
	ParamConstraints []string
}

// FullName returns "Class::name" for methods and the plain name otherwise.
func (f *Func) FullName() string {
	if f.Class == "" {
		return f.Name
	}
	return f.Class + "::" + f.Name
}

// ByRef returns true if the i-th parameter is passed by reference.
func (f *Func) ByRef(i uint32) bool {
	return i < 64 && f.RefParams&(1<<i) != 0
}

// IsMethod returns true if f is declared by a class.
func (f *Func) IsMethod() bool {
	return f.Class != ""
}

// MayHaveThis returns true if $this may be bound when f runs.
func (f *Func) MayHaveThis() bool {
	return f.IsMethod() && !f.Static
}

// ParamConstraint returns the class constraint of the i-th parameter, empty if none.
func (f *Func) ParamConstraint(i uint32) string {
	if int(i) < len(f.ParamConstraints) {
		return f.ParamConstraints[i]
	}
	return ""
}

// PreClass is a class declaration of the unit that is defined at run time by DefCls.
type PreClass struct {
	Name   string
	Parent string
}

// Class is a class whose definition is known at translation time.
type Class struct {
	Name   string
	Parent string
	// Methods maps lower-cased method names to their metadata.
	Methods map[string]*Func
	// Constants lists the names of class constants.
	Constants []string
}

// Method returns the named method, looking through the parents known to lookup.
func (c *Class) Method(name string, lookup func(string) *Class) *Func {
	for cls, depth := c, 0; cls != nil && depth < 64; depth++ {
		if m, ok := cls.Methods[strings.ToLower(name)]; ok {
			return m
		}
		if cls.Parent == "" || lookup == nil {
			break
		}
		cls = lookup(cls.Parent)
	}
	return nil
}

// NamedEntityPair is a class name as written in the source paired with its
// normalized lookup key.
type NamedEntityPair struct {
	Name string
	Key  string
}

// Unit is a compilation unit.
type Unit struct {
	Path             string
	LitStrs          []string
	Arrays           []string
	Funcs            []*Func
	PreClasses       []*PreClass
	NamedEntityPairs []NamedEntityPair
	// Classes maps lower-cased names to the classes defined when the unit runs.
	Classes map[string]*Class
	// Defined maps lower-cased names to functions that are defined when the unit runs.
	Defined map[string]*Func
}

// New returns an empty Unit.
func New(path string) *Unit {
	return &Unit{
		Path:    path,
		Classes: map[string]*Class{},
		Defined: map[string]*Func{},
	}
}

// InternLitStr returns the id of s in the literal string table, adding it if absent.
func (u *Unit) InternLitStr(s string) uint32 {
	for i, l := range u.LitStrs {
		if l == s {
			return uint32(i)
		}
	}
	u.LitStrs = append(u.LitStrs, s)
	return uint32(len(u.LitStrs) - 1)
}

// AddClass makes cls known to LookupClass.
func (u *Unit) AddClass(cls *Class) {
	u.Classes[strings.ToLower(cls.Name)] = cls
}

// AddFunc makes fn known to LookupFunc.
func (u *Unit) AddFunc(fn *Func) {
	u.Defined[strings.ToLower(fn.Name)] = fn
}

// LitStr returns the literal string with the given id.
func (u *Unit) LitStr(id uint32) string {
	if int(id) >= len(u.LitStrs) {
		panic(fmt.Sprintf("BUG: %s: no literal string #%d", u.Path, id))
	}
	return u.LitStrs[id]
}

// Array returns the static array with the given id.
func (u *Unit) Array(id uint32) string {
	if int(id) >= len(u.Arrays) {
		panic(fmt.Sprintf("BUG: %s: no static array #%d", u.Path, id))
	}
	return u.Arrays[id]
}

// Func returns the function with the given id.
func (u *Unit) Func(id uint32) *Func {
	if int(id) >= len(u.Funcs) {
		panic(fmt.Sprintf("BUG: %s: no function #%d", u.Path, id))
	}
	return u.Funcs[id]
}

// PreClass returns the class declaration with the given id.
func (u *Unit) PreClass(id uint32) *PreClass {
	if int(id) >= len(u.PreClasses) {
		panic(fmt.Sprintf("BUG: %s: no class declaration #%d", u.Path, id))
	}
	return u.PreClasses[id]
}

// NamedEntityPair returns the class name pair with the given id.
func (u *Unit) NamedEntityPair(id uint32) NamedEntityPair {
	if int(id) >= len(u.NamedEntityPairs) {
		panic(fmt.Sprintf("BUG: %s: no named entity #%d", u.Path, id))
	}
	return u.NamedEntityPairs[id]
}

// LookupFunc returns the function with the given name if it is known to be defined.
func (u *Unit) LookupFunc(name string) *Func {
	return u.Defined[strings.ToLower(name)]
}

// LookupClass returns the class with the given name if it is known to be defined.
func (u *Unit) LookupClass(name string) *Class {
	return u.Classes[strings.ToLower(name)]
}

// Resolve checks that every id referenced by the immediates of in is defined.
func (u *Unit) Resolve(in *hhbc.Instr) error {
	for i, k := range in.Op.Immediates() {
		id := in.Imm(i)
		var n int
		switch {
		case k == hhbc.ImmSA && in.Op == hhbc.OpFPushClsMethodD && i == 2:
			n = len(u.NamedEntityPairs)
		case k == hhbc.ImmSA:
			n = len(u.LitStrs)
		case k == hhbc.ImmAA:
			n = len(u.Arrays)
		case in.Op == hhbc.OpDefFunc:
			n = len(u.Funcs)
		case in.Op == hhbc.OpDefCls:
			n = len(u.PreClasses)
		default:
			continue
		}
		if id < 0 || id >= int64(n) {
			return fmt.Errorf("%s: %s immediate #%d: %d: %w", u.Path, in, i, id, ErrUnresolved)
		}
	}
	return nil
}
