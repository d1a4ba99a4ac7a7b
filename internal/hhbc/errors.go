package hhbc

import "errors"

var (
	// ErrUnknownOp is returned for an opcode mnemonic or number that is not defined.
	ErrUnknownOp = errors.New("unknown opcode")
	// ErrImmediate is returned when immediates don't match their opcode.
	ErrImmediate = errors.New("invalid immediate")
	// ErrOffset is returned when instruction offsets are not strictly increasing.
	ErrOffset = errors.New("non-increasing offset")
)
