package jitapi

// These consts are used various places in the translator and the trace builder.
// Instead of defining them in each file, we define them here so that we can quickly iterate on
// debugging without spending "where do we have debug output?" time.

// ----- Output prints -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	// PrintTrace prints the main trace and every exit trace when a session ends.
	PrintTrace = false
	// PrintEvalStack prints the symbolic stack after every translated instruction.
	PrintEvalStack = false
)

// ----- Validations -----
// These consts must be enabled by default until we reach the point where we can disable them.

const (
	// TraceValidationEnabled checks the structural invariants of every finished trace:
	// exit traces end with an exit instruction, and nothing follows a terminal instruction.
	TraceValidationEnabled = true
	// StackTypeValidationEnabled checks that values popped from the symbolic stack
	// are compatible with the type the handler expects.
	StackTypeValidationEnabled = true
)
