package translator

import (
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// noKey is the key local of iterators over values only.
const noKey = -1

// EmitIterInit starts iterator id over the array on top of the stack, storing the first
// element into valLocal. An empty array branches to target.
func (t *Translator) EmitIterInit(id uint32, target jitapi.Offset, valLocal uint32) {
	t.emitIterInit(id, target, valLocal, noKey)
}

// EmitIterInitK is EmitIterInit that also stores the first key into keyLocal.
func (t *Translator) EmitIterInitK(id uint32, target jitapi.Offset, valLocal, keyLocal uint32) {
	t.emitIterInit(id, target, valLocal, int64(keyLocal))
}

func (t *Translator) emitIterInit(id uint32, target jitapi.Offset, valLocal uint32, keyLocal int64) {
	if !t.topType(0).SubtypeOf(ir.TypeArr) {
		// Objects iterate through user code.
		t.Punt()
		return
	}
	src := t.popC()
	res := t.emit(t.instr().AsIterInit(t.b.FramePointer(), src, id, valLocal, keyLocal))
	t.markIterLocals(valLocal, keyLocal)
	t.emit(t.instr().AsJmpZ(res, t.exitToOffset(target)))
}

// EmitIterNext advances iterator id, branching to target while elements remain.
func (t *Translator) EmitIterNext(id uint32, target jitapi.Offset, valLocal uint32) {
	t.emitIterNext(id, target, valLocal, noKey)
}

// EmitIterNextK is EmitIterNext also storing the key to local keyLocal.
func (t *Translator) EmitIterNextK(id uint32, target jitapi.Offset, valLocal, keyLocal uint32) {
	t.emitIterNext(id, target, valLocal, int64(keyLocal))
}

func (t *Translator) emitIterNext(id uint32, target jitapi.Offset, valLocal uint32, keyLocal int64) {
	res := t.emit(t.instr().AsIterNext(t.b.FramePointer(), id, valLocal, keyLocal))
	t.markIterLocals(valLocal, keyLocal)
	t.emit(t.instr().AsJmpNZ(res, t.exitToOffset(target)))
}

func (t *Translator) markIterLocals(valLocal uint32, keyLocal int64) {
	t.dirtyLocals[valLocal] = struct{}{}
	if keyLocal != noKey {
		t.dirtyLocals[uint32(keyLocal)] = struct{}{}
	}
}
