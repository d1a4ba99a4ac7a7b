package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
)

func (t *Translator) EmitNop() {}

func (t *Translator) EmitPopC() { t.popDecRef(ir.TypeCell) }
func (t *Translator) EmitPopV() { t.popDecRef(ir.TypeBoxedCell) }
func (t *Translator) EmitPopR() { t.popDecRef(ir.TypeGen) }

// EmitDup pushes a second reference to the top cell.
func (t *Translator) EmitDup() {
	t.pushIncRef(t.topC())
}

// EmitUnboxR replaces a box on top of the stack with the cell it holds.
func (t *Translator) EmitUnboxR() {
	v := t.popR()
	if !v.Type().MaybeBoxed() {
		t.push(v)
		return
	}
	cell := t.emit(t.instr().AsUnbox(v))
	t.pushIncRef(cell)
	t.decRef(v)
}
