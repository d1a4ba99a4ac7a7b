package jitapi

import "strconv"

// Offset is a bytecode offset relative to the start of the unit's bytecode.
type Offset int32

// InvalidOffset marks an offset that is not known (yet).
const InvalidOffset Offset = -1

// Valid returns true if this is a real bytecode offset.
func (o Offset) Valid() bool {
	return o >= 0
}

// String implements fmt.Stringer.
func (o Offset) String() string {
	if !o.Valid() {
		return "bc?"
	}
	return "bc" + strconv.Itoa(int(o))
}
