package hhbc

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmjit/hhir/internal/jit/jitapi"
)

// ParseListing decodes a textual listing of instructions, one per line:
//
//	[offset:] Mnemonic imm...
//
// Lines may carry a trailing "#" comment. Without an explicit offset an instruction is
// placed right after the previous one, each opcode and immediate taking one byte.
// Immediates are written as integers, except doubles (2.5), branch targets (bc12 or 12),
// locals (L3 or 3), iterators (I0 or 0) and strings, which are either literal ids or
// quoted text passed to intern to obtain an id.
func ParseListing(src string, intern func(string) uint32) ([]Instr, error) {
	var ret []Instr
	next := jitapi.Offset(0)
	sc := bufio.NewScanner(strings.NewReader(src))
	for line := 1; sc.Scan(); line++ {
		toks, err := tokenize(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(toks) == 0 {
			continue
		}

		off := next
		if head := toks[0]; strings.HasSuffix(head, ":") {
			n, err := strconv.ParseInt(strings.TrimSuffix(head, ":"), 10, 32)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("line %d: bad offset %q: %w", line, head, ErrOffset)
			}
			off = jitapi.Offset(n)
			toks = toks[1:]
		}
		if len(ret) > 0 && off <= ret[len(ret)-1].Offset {
			return nil, fmt.Errorf("line %d: %s after %s: %w", line, off, ret[len(ret)-1].Offset, ErrOffset)
		}
		if len(toks) == 0 {
			return nil, fmt.Errorf("line %d: missing opcode: %w", line, ErrUnknownOp)
		}

		op, ok := LookupOp(toks[0])
		if !ok {
			return nil, fmt.Errorf("line %d: %q: %w", line, toks[0], ErrUnknownOp)
		}
		in := Instr{Op: op, Offset: off}
		kinds := op.Immediates()
		if len(toks)-1 != len(kinds) {
			return nil, fmt.Errorf("line %d: %s wants %d immediates, got %d: %w", line, op, len(kinds), len(toks)-1, ErrImmediate)
		}
		for i, k := range kinds {
			imm, err := parseImm(k, toks[i+1], intern)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s immediate #%d: %w", line, op, i, err)
			}
			in.Imms = append(in.Imms, imm)
		}
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if next = off + jitapi.Offset(1+len(kinds)); next < off {
			return nil, fmt.Errorf("line %d: %s runs past the last offset: %w", line, off, ErrOffset)
		}
		ret = append(ret, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for i := range ret {
		if i+1 < len(ret) {
			ret[i].Next = ret[i+1].Offset
		} else {
			ret[i].Next = next
		}
	}
	return ret, nil
}

func parseImm(k ImmKind, tok string, intern func(string) uint32) (int64, error) {
	switch k {
	case ImmDA:
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", tok, ErrImmediate)
		}
		return int64(math.Float64bits(f)), nil
	case ImmSA:
		if strings.HasPrefix(tok, `"`) {
			s, err := strconv.Unquote(tok)
			if err != nil || intern == nil {
				return 0, fmt.Errorf("%s: %w", tok, ErrImmediate)
			}
			return int64(intern(s)), nil
		}
	case ImmBA:
		tok = strings.TrimPrefix(tok, "bc")
	case ImmLA:
		tok = strings.TrimPrefix(tok, "L")
	case ImmIA:
		tok = strings.TrimPrefix(tok, "I")
	}
	n, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", tok, ErrImmediate)
	}
	switch k {
	case ImmI64A:
	case ImmBA:
		if n < 0 || n > math.MaxInt32 {
			return 0, fmt.Errorf("branch target %d out of range: %w", n, ErrImmediate)
		}
	case ImmOA:
		if n < 0 || n > math.MaxUint8 {
			return 0, fmt.Errorf("%d out of range: %w", n, ErrImmediate)
		}
	default:
		if n < 0 || n > math.MaxUint32 {
			return 0, fmt.Errorf("%d out of range: %w", n, ErrImmediate)
		}
	}
	return n, nil
}

// tokenize splits a line on white space, keeping quoted strings whole and dropping comments.
func tokenize(line string) ([]string, error) {
	var toks []string
	for i := 0; i < len(line); {
		switch c := line[i]; {
		case c == '#':
			return toks, nil
		case c == ' ' || c == '\t' || c == ',':
			i++
		case c == '"':
			j := i + 1
			for ; j < len(line) && line[j] != '"'; j++ {
				if line[j] == '\\' {
					j++
				}
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated string: %w", ErrImmediate)
			}
			toks = append(toks, line[i:j+1])
			i = j + 1
		default:
			j := i
			for ; j < len(line) && !strings.ContainsRune(" \t,#", rune(line[j])); j++ {
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}
