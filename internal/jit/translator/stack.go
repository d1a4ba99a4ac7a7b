package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// reloadMode says how the type of a stack slot loaded from memory is established.
type reloadMode byte

const (
	// reloadGuard makes the type a speculative assumption: a guard at trace entry for
	// slots that hold their entry value, a checked load otherwise.
	reloadGuard reloadMode = iota
	// reloadAssert trusts the type.
	reloadAssert
)

func (t *Translator) push(v ir.Value) {
	if !v.Valid() {
		t.bug("pushing an invalid value")
	}
	t.evalStack.Push(v)
}

// pushIncRef pushes v, which the stack owns a new reference to.
func (t *Translator) pushIncRef(v ir.Value) {
	t.push(t.incRef(v))
}

// pop pops the top of the stack, which must be of type typ. A slot below the window is
// loaded from memory with typ assumed.
func (t *Translator) pop(typ ir.Type) ir.Value {
	if v, ok := t.evalStack.Pop(); ok {
		t.checkResident(v, typ)
		return v
	}
	return t.reload(typ, reloadGuard)
}

func (t *Translator) popC() ir.Value { return t.pop(ir.TypeCell) }
func (t *Translator) popV() ir.Value { return t.pop(ir.TypeBoxedCell) }
func (t *Translator) popR() ir.Value { return t.pop(ir.TypeGen) }
func (t *Translator) popA() ir.Value { return t.pop(ir.TypeClassPtr) }

// popDecRef pops the top of the stack and releases it.
func (t *Translator) popDecRef(typ ir.Type) {
	t.decRef(t.pop(typ))
}

// top returns the slot `offset` slots below the top, widening the window if needed.
func (t *Translator) top(offset uint32, typ ir.Type) ir.Value {
	if v, ok := t.evalStack.Top(offset); ok {
		t.checkResident(v, typ)
		return v
	}
	t.extend(offset, typ, reloadGuard)
	v, _ := t.evalStack.Top(offset)
	return v
}

// topType returns what is known about the type of slot `offset` slots below the top,
// without loading it if it is below the window.
func (t *Translator) topType(offset uint32) ir.Type {
	if v, ok := t.evalStack.Top(offset); ok {
		return v.Type()
	}
	_, typ := t.b.StackSlot(t.deficit + offset - uint32(t.evalStack.Len()))
	return typ
}

// topC returns the cell on top of the stack without popping it.
func (t *Translator) topC() ir.Value {
	return t.top(0, ir.TypeCell)
}

func (t *Translator) replace(offset uint32, v ir.Value) {
	t.evalStack.Replace(offset, v)
}

// extend widens the window downwards until it holds slot `index`, which is loaded as typ.
// Slots in between are loaded as whatever is known about them, TypeGen otherwise.
func (t *Translator) extend(index uint32, typ ir.Type, mode reloadMode) {
	for uint32(t.evalStack.Len()) <= index {
		slotType := ir.TypeGen
		if uint32(t.evalStack.Len()) == index {
			slotType = typ
		} else if _, known := t.b.StackSlot(t.deficit); known.SubtypeOf(ir.TypeGen) {
			slotType = known
		}
		t.evalStack.pushBottom(t.reload(slotType, mode))
	}
}

// reload loads the cell right below the window from memory.
func (t *Translator) reload(typ ir.Type, mode reloadMode) ir.Value {
	if typ == ir.TypeActRec || typ == ir.TypeNone {
		t.bug("reloading a stack slot of type %s", typ)
	}
	offset := t.deficit
	if t.b.SpOffset()-1-int32(offset) < 0 {
		t.bug("reloading slot %d of a stack of %d cells", offset, t.b.SpOffset())
	}
	_, known := t.b.StackSlot(offset)
	var exit *ir.Trace
	if mode == reloadGuard && !known.SubtypeOf(typ) {
		if index, ok := t.b.EntryStackIndex(offset); ok {
			t.guardStack(index, typ)
		} else {
			exit = t.exitAtBoundary(jitapi.ExitKindCheckFailure)
		}
	}
	v := t.emit(t.instr().AsLdStack(t.b.StackPointer(), offset, typ, exit))
	t.deficit++
	return v
}

// checkResident validates the type of a value popped or read from the window.
func (t *Translator) checkResident(v ir.Value, typ ir.Type) {
	if jitapi.StackTypeValidationEnabled && !v.Type().Maybe(typ) {
		t.bug("%s on the stack where %s is expected", v.Type(), typ)
	}
}

// spillValues returns the values a spill at this point writes to memory, top first.
func (t *Translator) spillValues() []ir.Value {
	return t.evalStack.Values()
}

// spill writes the window to memory and returns the stack pointer afterwards.
func (t *Translator) spill() ir.Value {
	if t.evalStack.Len() == 0 && t.deficit == 0 {
		return t.b.StackPointer()
	}
	values := t.spillValues()
	if t.boundary.valid {
		if t.boundary.deficit == t.deficit && sameValues(t.boundary.values, values) {
			// Nothing happened since the instruction started but the spill itself.
			t.boundary = snapshot{valid: true}
		} else {
			t.boundary.valid = false
		}
	}
	for k := range t.exits {
		delete(t.exits, k)
	}
	sp := t.emit(t.instr().AsSpillStack(t.b.StackPointer(), t.deficit, values))
	t.evalStack.Clear()
	t.deficit = 0
	return sp
}

func sameValues(a, b []ir.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Same(b[i]) {
			return false
		}
	}
	return true
}

func (t *Translator) incRef(v ir.Value) ir.Value {
	if !v.Type().IsCounted() {
		return v
	}
	return t.emit(t.instr().AsIncRef(v))
}

func (t *Translator) decRef(v ir.Value) {
	if v.Type().IsCounted() {
		t.emit(t.instr().AsDecRef(v))
	}
}
