//go:build linux

// Package codemap is the on-demand code model: files, functions, and
// basic blocks keyed by address range, with sample counters at every
// level so orphaned samples still land somewhere attributable. The
// model is owned by the profiler thread; nothing here is safe for
// concurrent use and nothing here may run in the overflow hook.
package codemap

import (
	"github.com/ja7ad/causalprof/pkg/disasm"
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/types"
)

// Bin counts samples of each kind. Files and functions embed it so a
// sample that resolves no further than a file or an unpartitioned
// function is still counted there.
type Bin struct {
	cycles uint64
	insts  uint64
}

// AddSample records one sample of kind k.
func (b *Bin) AddSample(k engine.Kind) {
	if k == engine.KindCycle {
		b.cycles++
	} else {
		b.insts++
	}
}

// CycleSamples returns the cycle-counter sample count.
func (b *Bin) CycleSamples() uint64 { return b.cycles }

// InstructionSamples returns the instruction-counter sample count.
func (b *Bin) InstructionSamples() uint64 { return b.insts }

// File is one loaded text segment. Created at init from the loader's
// view of mapped images; never destroyed while the process lives.
type File struct {
	Bin
	Name  string
	Range interval.Interval
}

// Function is one symbol-table function. Range is as stored in the
// symbol table; LoadOffset shifts it to the runtime location for
// position-independent images. The offset is recorded here, at
// creation, so lookups never re-derive it.
type Function struct {
	Bin
	Name       string
	Range      interval.Interval
	LoadOffset types.Addr

	code      disasm.Code
	processed bool
	blocks    []*Block
}

// NewFunction tracks a function whose code bytes are already mapped at
// the runtime range.
func NewFunction(name string, rng interval.Interval, loadOffset types.Addr, code disasm.Code) *Function {
	return &Function{Name: name, Range: rng, LoadOffset: loadOffset, code: code}
}

// LoadedRange returns the function's runtime address range.
func (f *Function) LoadedRange() interval.Interval {
	return f.Range.Shift(f.LoadOffset)
}

// Processed reports whether block discovery has run. Once processed,
// the function's block set is immutable.
func (f *Function) Processed() bool { return f.processed }

// Blocks returns the discovered blocks in ascending address order.
// Empty until the function has been processed.
func (f *Function) Blocks() []*Block { return f.blocks }

// Block is one basic block: a range disjoint from every other block of
// the same function, the entry flag, and the instruction count
// computed once at creation. Blocks do not point back at their owning
// function; printing resolves the owner through the function map.
type Block struct {
	Bin
	Range  interval.Interval
	Entry  bool
	Length int
}
