package jitapi

// ExitKind is the reason a trace hands control back to the runtime.
type ExitKind uint32

const (
	ExitKindInvalid ExitKind = iota
	// ExitKindNormal continues execution at a bytecode offset, typically the
	// target of a branch or the instruction following the tracelet.
	ExitKindNormal
	// ExitKindSlow re-executes the current instruction through the interpreter's
	// slow path, e.g. when a local may be uninitialized and a warning is needed.
	ExitKindSlow
	// ExitKindGuardFailure is taken when a type guard at trace entry fails.
	// Execution resumes at the tracelet's start without the failed assumption.
	ExitKindGuardFailure
	// ExitKindCheckFailure is taken when a type check inside the trace fails.
	// Execution resumes at the offset of the instruction that was being translated.
	ExitKindCheckFailure
	// ExitKindPunt abandons native translation of the rest of the tracelet and
	// interprets from the punted instruction onward.
	ExitKindPunt

	exitKindMax
)

// String implements fmt.Stringer.
func (e ExitKind) String() string {
	switch e {
	case ExitKindNormal:
		return "normal"
	case ExitKindSlow:
		return "slow"
	case ExitKindGuardFailure:
		return "guard_failure"
	case ExitKindCheckFailure:
		return "check_failure"
	case ExitKindPunt:
		return "punt"
	}
	return "invalid"
}

// Valid returns true if this is one of the defined exit kinds.
func (e ExitKind) Valid() bool {
	return e > ExitKindInvalid && e < exitKindMax
}
