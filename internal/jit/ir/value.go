package ir

import (
	"fmt"
	"math"
)

// Value represents an SSA value with a type information. Values are handles into
// the Builder that produced them: the translator only holds them while composing
// instructions and never owns what they refer to.
//
// Higher 32-bit is used to store Type for this value.
type Value uint64

// ValueID is the lower 32bit of Value, which is the pure identifier of Value without type info.
// Two Values are the same value iff their IDs are equal, even if one of them carries a
// narrower Type after a type assertion.
type ValueID uint32

const (
	valueIDInvalid ValueID = math.MaxUint32
	ValueInvalid   Value   = Value(valueIDInvalid)
)

// Format creates a debug string for this Value using the data stored in Builder.
func (v Value) Format(b Builder) string {
	if annotation, ok := b.(*builder).valueAnnotations[v.ID()]; ok {
		return annotation
	}
	return fmt.Sprintf("v%d", v.ID())
}

func (v Value) formatWithType(b Builder) string {
	if annotation, ok := b.(*builder).valueAnnotations[v.ID()]; ok {
		return annotation + ":" + v.Type().String()
	}
	return fmt.Sprintf("v%d:%s", v.ID(), v.Type())
}

// Valid returns true if this value is valid.
func (v Value) Valid() bool {
	return v.ID() != valueIDInvalid
}

// Type returns the Type of this value.
func (v Value) Type() Type {
	return Type(v >> 32)
}

// ID returns the valueID of this value.
func (v Value) ID() ValueID {
	return ValueID(v)
}

// Same returns true if v and other refer to the same value.
func (v Value) Same(other Value) bool {
	return v.ID() == other.ID()
}

// setType sets a type to this Value and returns the updated Value.
func (v Value) setType(typ Type) Value {
	return Value(v.ID()) | Value(typ)<<32
}
