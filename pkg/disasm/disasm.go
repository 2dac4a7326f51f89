// Package disasm decodes x86-64 machine code one instruction at a
// time. The profiler needs exactly three facts about an instruction:
// whether control can fall through to the next one, whether it
// branches, and where a branch statically lands. Everything else about
// the instruction set stays behind golang.org/x/arch.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/ja7ad/causalprof/pkg/types"
)

// Code is a run of machine code bytes mapped at a known runtime
// address. The byte slice is a copy taken from the on-disk image, so
// decoding never touches live text pages.
type Code struct {
	base  types.Addr
	bytes []byte
}

// NewCode wraps code bytes mapped at base.
func NewCode(base types.Addr, b []byte) Code {
	return Code{base: base, bytes: b}
}

// Inst is one decoded instruction at its runtime address.
type Inst struct {
	Addr types.Addr
	Len  int
	raw  x86asm.Inst
}

// Decode decodes the instruction at p. p must fall inside the wrapped
// range; decoding past the end or on a byte sequence the decoder
// rejects returns an error.
func (c Code) Decode(p types.Addr) (Inst, error) {
	if p < c.base || p >= c.base+types.Addr(len(c.bytes)) {
		return Inst{}, fmt.Errorf("%w: %s", ErrOutOfRange, p)
	}
	raw, err := x86asm.Decode(c.bytes[p-c.base:], 64)
	if err != nil {
		return Inst{}, fmt.Errorf("%w at %s: %v", ErrUndecodable, p, err)
	}
	return Inst{Addr: p, Len: raw.Len, raw: raw}, nil
}

// Next returns the address of the instruction following i.
func (i Inst) Next() types.Addr {
	return i.Addr + types.Addr(i.Len)
}

// FallsThrough reports whether execution can continue at Next after
// this instruction. Returns, unconditional jumps, and traps terminate
// straight-line code; everything else (including calls and conditional
// jumps) falls through.
func (i Inst) FallsThrough() bool {
	switch i.raw.Op {
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ,
		x86asm.JMP, x86asm.LJMP, x86asm.UD1, x86asm.UD2, x86asm.HLT:
		return false
	}
	return true
}

// Branches reports whether the instruction transfers control to a
// branch target: an unconditional jump or any of the Jcc/LOOP family.
// Calls are not branches for block discovery; the callee is a different
// function and control returns to the fall-through address.
func (i Inst) Branches() bool {
	switch i.raw.Op {
	case x86asm.JMP,
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ,
		x86asm.JE, x86asm.JECXZ, x86asm.JG, x86asm.JGE, x86asm.JL,
		x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS,
		x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true
	}
	return false
}

// Target returns the static target of a branch instruction. The second
// result is false when the target is dynamic (register or memory
// operand, e.g. a jump table); callers log and ignore those edges.
func (i Inst) Target() (types.Addr, bool) {
	if !i.Branches() || i.raw.Args[0] == nil {
		return 0, false
	}
	rel, ok := i.raw.Args[0].(x86asm.Rel)
	if !ok {
		return 0, false
	}
	// Relative targets are computed from the end of the instruction.
	return i.Addr + types.Addr(i.Len) + types.Addr(int64(rel)), true
}

// String renders the instruction in GNU syntax for diagnostics.
func (i Inst) String() string {
	return fmt.Sprintf("%s: %s", i.Addr, x86asm.GNUSyntax(i.raw, uint64(i.Addr), nil))
}
