package ir

import (
	"strings"
)

// Type is the static type of a Value. Types form a lattice represented as a bit set:
// each primitive type is one bit and union types are the OR of their members, so
// subtyping is set inclusion.
type Type uint32

const (
	TypeNone Type = 0

	TypeUninit Type = 1 << iota
	TypeInitNull
	TypeBool
	TypeInt
	TypeDbl
	TypeStaticStr
	TypeCountedStr
	TypeStaticArr
	TypeCountedArr
	TypeObj
	// TypeBoxedCell is a reference-counted box holding a cell.
	TypeBoxedCell
	TypeClassPtr
	TypeFuncPtr
	// TypeActRec is an activation record pushed by call preparation. It occupies
	// NumActRecCells cells on the VM stack.
	TypeActRec
	TypeStkPtr
	TypeIter

	TypeNull          = TypeUninit | TypeInitNull
	TypeStr           = TypeStaticStr | TypeCountedStr
	TypeArr           = TypeStaticArr | TypeCountedArr
	TypeUncountedInit = TypeInitNull | TypeBool | TypeInt | TypeDbl | TypeStaticStr | TypeStaticArr
	TypeUncounted     = TypeUninit | TypeUncountedInit
	TypeCell          = TypeNull | TypeBool | TypeInt | TypeDbl | TypeStr | TypeArr | TypeObj
	TypeGen           = TypeCell | TypeBoxedCell
)

// NumActRecCells is the width of an activation record in stack cells.
const NumActRecCells = 3

var typeNames = [...]struct {
	t    Type
	name string
}{
	// Unions come first so that the longest match wins in String.
	{TypeGen, "Gen"},
	{TypeCell, "Cell"},
	{TypeUncounted, "Uncounted"},
	{TypeUncountedInit, "UncountedInit"},
	{TypeNull, "Null"},
	{TypeStr, "Str"},
	{TypeArr, "Arr"},
	{TypeUninit, "Uninit"},
	{TypeInitNull, "InitNull"},
	{TypeBool, "Bool"},
	{TypeInt, "Int"},
	{TypeDbl, "Dbl"},
	{TypeStaticStr, "StaticStr"},
	{TypeCountedStr, "CountedStr"},
	{TypeStaticArr, "StaticArr"},
	{TypeCountedArr, "CountedArr"},
	{TypeObj, "Obj"},
	{TypeBoxedCell, "BoxedCell"},
	{TypeClassPtr, "ClassPtr"},
	{TypeFuncPtr, "FuncPtr"},
	{TypeActRec, "ActRec"},
	{TypeStkPtr, "StkPtr"},
	{TypeIter, "Iter"},
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t == TypeNone {
		return "None"
	}
	var parts []string
	rest := t
	for _, n := range typeNames {
		if rest&n.t == n.t {
			parts = append(parts, n.name)
			rest &^= n.t
		}
		if rest == 0 {
			break
		}
	}
	return strings.Join(parts, "|")
}

// ParseType returns the Type whose String is name. Unions of named types are
// written with "|", e.g. "Int|Dbl".
func ParseType(name string) (Type, bool) {
	if name == "None" {
		return TypeNone, true
	}
	var ret Type
	for _, part := range strings.Split(name, "|") {
		found := false
		for _, n := range typeNames {
			if n.name == part {
				ret |= n.t
				found = true
				break
			}
		}
		if !found {
			return TypeNone, false
		}
	}
	return ret, true
}

// SubtypeOf returns true if every value of t is also a value of other.
func (t Type) SubtypeOf(other Type) bool {
	return t&^other == 0
}

// Maybe returns true if t and other have a value in common.
func (t Type) Maybe(other Type) bool {
	return t&other != 0
}

// Intersect returns the greatest type that is a subtype of both.
func (t Type) Intersect(other Type) Type {
	return t & other
}

// Union returns the least type that both are subtypes of.
func (t Type) Union(other Type) Type {
	return t | other
}

// IsBoxed returns true if a value of this type is always a box.
func (t Type) IsBoxed() bool {
	return t != TypeNone && t.SubtypeOf(TypeBoxedCell)
}

// MaybeBoxed returns true if a value of this type may be a box.
func (t Type) MaybeBoxed() bool {
	return t.Maybe(TypeBoxedCell)
}

// Unbox returns the type of the cell held by a value of this type once boxes are
// stripped. A box's contents are not tracked, so any box unboxes to Cell.
func (t Type) Unbox() Type {
	if t.MaybeBoxed() {
		return (t &^ TypeBoxedCell) | TypeCell
	}
	return t
}

// IsCounted returns true if a value of this type may need reference counting.
func (t Type) IsCounted() bool {
	return t.Maybe(TypeCountedStr | TypeCountedArr | TypeObj | TypeBoxedCell)
}

// IsStatic returns true if the exact runtime representation of a value of this
// type is known, which is the case for every primitive (single bit) type.
func (t Type) IsStatic() bool {
	return t != TypeNone && t&(t-1) == 0
}

// CellWidth returns the number of VM stack cells a value of this type occupies.
func (t Type) CellWidth() int {
	if t == TypeActRec {
		return NumActRecCells
	}
	return 1
}
