package tracelet

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/vmjit/hhir/internal/hhbc"
	"github.com/vmjit/hhir/internal/jit/ir"
	"github.com/vmjit/hhir/internal/jit/jitapi"
	"github.com/vmjit/hhir/internal/jit/translator"
)

var log = commonlog.GetLogger("hhir.tracelet")

// Result is a translated tracelet.
type Result struct {
	// Code is the decoded listing. Instructions after Translated were not reached.
	Code       []hhbc.Instr
	Translated int
	Guards     []translator.TypeGuard
	HasRet     bool
	// Next is the offset the main trace exits to when it runs to the end.
	Next jitapi.Offset

	b ir.Builder
}

// Trace returns the main trace.
func (r *Result) Trace() *ir.Trace {
	return r.b.MainTrace()
}

// ExitTraces returns the exit traces in creation order.
func (r *Result) ExitTraces() []*ir.Trace {
	return r.b.ExitTraces()
}

// Format returns the textual form of the main trace followed by its exit traces.
func (r *Result) Format() string {
	return r.b.Format()
}

// Compile translates the tracelet of d with the given options.
//
// Errors are returned for descriptions that cannot be translated. Inconsistencies
// found while translating a valid description are bugs and panic.
func Compile(d *Description, opts translator.Options) (*Result, error) {
	u, fn, err := d.BuildUnit()
	if err != nil {
		return nil, err
	}
	code, err := hhbc.ParseListing(d.Code, u.InternLitStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Path, err)
	}
	if len(code) == 0 {
		return nil, d.errorf("no instructions")
	}
	for i := range code {
		if err := u.Resolve(&code[i]); err != nil {
			return nil, err
		}
	}
	if len(d.Heights) > 0 && len(d.Heights) != len(code) {
		return nil, d.errorf("%d heights for %d instructions", len(d.Heights), len(code))
	}

	start := code[0].Offset
	if d.Start != nil && jitapi.Offset(*d.Start) != start {
		return nil, d.errorf("start %s is not the first instruction %s", jitapi.Offset(*d.Start), start)
	}
	next := code[len(code)-1].Next
	if d.Next != nil {
		if next = jitapi.Offset(*d.Next); !next.Valid() {
			return nil, d.errorf("next %d is not a bytecode offset", *d.Next)
		}
	}

	b := ir.NewBuilder()
	tr := translator.New(b, u, fn, start, d.SpOffset, opts)
	if err := d.installGuards(tr, fn); err != nil {
		return nil, err
	}
	tr.SetOffsetNextTrace(next)

	res := &Result{Code: code, Next: next, b: b}
	depth := int32(d.SpOffset)
	for i := range code {
		in := &code[i]
		if len(d.Heights) > 0 {
			depth = d.Heights[i]
		}
		if depth < int32(in.Pops()) {
			return nil, d.errorf("%s pops %d cells from a stack of %d", in, in.Pops(), depth)
		}
		tr.SetOffset(in.Offset, i == len(code)-1)
		tr.CheckStackDepth(depth)
		tr.Translate(in)
		res.Translated++
		if tr.Closed() {
			if i < len(code)-1 {
				log.Infof("%s: tracelet ends at %s, %d instructions left", d.Path, in, len(code)-1-i)
			}
			break
		}
		depth += int32(in.Pushes() - in.Pops())
	}
	tr.End(next)

	res.Guards = tr.Guards()
	res.HasRet = tr.HasRet()
	log.Infof("%s: translated %d instructions of %s: %d exits, %d guards",
		d.Path, res.Translated, fn.FullName(), len(b.ExitTraces()), len(res.Guards))
	return res, nil
}
