package translator

// Options configure a translation session.
type Options struct {
	// UnboxPtrs makes loads of possibly boxed locals unbox the value inline. Otherwise
	// such loads leave the trace through the slow exit when the local is a box.
	UnboxPtrs bool
	// InterpOneEnabled makes unsupported instructions interpret one instruction and
	// continue translating after it. Otherwise they abandon the rest of the tracelet.
	InterpOneEnabled bool
	// ValidateStackDepth makes CheckStackDepth compare the simulated stack depth with
	// the statically known height of the bytecode stack.
	ValidateStackDepth bool
}

// DefaultOptions returns the Options used unless configured otherwise.
func DefaultOptions() Options {
	return Options{
		UnboxPtrs:          true,
		InterpOneEnabled:   true,
		ValidateStackDepth: true,
	}
}
