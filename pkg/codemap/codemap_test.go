//go:build linux

package codemap

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/causalprof/pkg/disasm"
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/types"
)

const fnBase = types.Addr(0x400500)

// branchy assembles the dump-mode scenario: 64 bytes with a single
// conditional branch from the top to 0x400530.
//
//	400500: je 0x400530
//	400502: nop ×46
//	400530: nop ×15
//	40053f: ret
func branchy() []byte {
	code := []byte{0x74, 0x2e}
	for i := 0; i < 46; i++ {
		code = append(code, 0x90)
	}
	for i := 0; i < 15; i++ {
		code = append(code, 0x90)
	}
	return append(code, 0xc3)
}

// indirect assembles a function ending in a register jump:
//
//	nop; jmp rax; nop; ret
func indirect() []byte {
	return []byte{0x90, 0xff, 0xe0, 0x90, 0xc3}
}

func newTestMap(t *testing.T) (*Map, *bytes.Buffer) {
	t.Helper()
	var logBuf bytes.Buffer
	return New(slog.New(slog.NewTextHandler(&logBuf, nil))), &logBuf
}

func addFn(t *testing.T, m *Map, name string, base types.Addr, code []byte) *Function {
	t.Helper()
	rng := interval.New(base, base+types.Addr(len(code)))
	f := NewFunction(name, rng, 0, disasm.NewCode(base, code))
	require.NoError(t, m.AddFunction(f))
	return f
}

func TestDiscoverConditionalBranchPartition(t *testing.T) {
	m, _ := newTestMap(t)
	f := addFn(t, m, "f", fnBase, branchy())

	res := m.Resolve(fnBase + 0x10)
	require.Equal(t, ResBlock, res.Kind, "first sample triggers discovery")
	require.True(t, f.Processed())

	blocks := f.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, interval.New(0x400500, 0x400530), blocks[0].Range)
	assert.True(t, blocks[0].Entry)
	assert.Equal(t, 47, blocks[0].Length, "je + 46 nops")
	assert.Equal(t, interval.New(0x400530, 0x400540), blocks[1].Range)
	assert.False(t, blocks[1].Entry)
	assert.Equal(t, 16, blocks[1].Length, "15 nops + ret")
}

func TestBlocksPartitionWithoutGapsOrOverlaps(t *testing.T) {
	m, _ := newTestMap(t)
	f := addFn(t, m, "f", fnBase, branchy())
	m.Resolve(fnBase)

	rng := f.LoadedRange()
	cursor := rng.Base
	for _, b := range f.Blocks() {
		assert.Equal(t, cursor, b.Range.Base, "no gap before %s", b.Range)
		cursor = b.Range.Limit
	}
	assert.Equal(t, rng.Limit, cursor, "last block ends at the function limit")
}

func TestBoundaryAttribution(t *testing.T) {
	m, _ := newTestMap(t)
	f := addFn(t, m, "f", fnBase, branchy())
	rng := f.LoadedRange()

	res := m.Resolve(rng.Base)
	require.Equal(t, ResBlock, res.Kind)
	assert.True(t, res.Block.Entry, "sample at base hits the entry block")

	res = m.Resolve(rng.Limit - 1)
	require.Equal(t, ResBlock, res.Kind)
	assert.Equal(t, f.Blocks()[len(f.Blocks())-1], res.Block, "limit-1 hits the last block")

	res = m.Resolve(rng.Limit)
	assert.NotEqual(t, ResBlock, res.Kind, "limit falls outside the function")
	assert.NotEqual(t, ResFunction, res.Kind)
}

func TestDynamicBranchDegradesGracefully(t *testing.T) {
	m, logBuf := newTestMap(t)
	f := addFn(t, m, "jumper", fnBase, indirect())

	res := m.Resolve(fnBase + 1)
	require.Equal(t, ResBlock, res.Kind)
	require.Len(t, f.Blocks(), 1, "the dynamic edge is not followed")
	assert.Equal(t, f.LoadedRange(), f.Blocks()[0].Range, "partition still covers the range")
	assert.Equal(t, 4, f.Blocks()[0].Length)
	assert.Contains(t, logBuf.String(), "dynamic branch", "the ignored edge is logged")
}

func TestResolveFallbackChain(t *testing.T) {
	m, _ := newTestMap(t)
	_, err := m.AddFile("libwork.so", interval.New(0x400000, 0x500000))
	require.NoError(t, err)
	addFn(t, m, "f", fnBase, branchy())

	assert.Equal(t, ResBlock, m.Resolve(fnBase).Kind)
	assert.Equal(t, ResFile, m.Resolve(0x400000).Kind, "in file, outside any function")
	assert.Equal(t, ResOrphan, m.Resolve(0x900000).Kind)
}

func TestAddSampleBumpsTheRightBin(t *testing.T) {
	m, _ := newTestMap(t)
	_, err := m.AddFile("libwork.so", interval.New(0x400000, 0x500000))
	require.NoError(t, err)
	f := addFn(t, m, "f", fnBase, branchy())

	m.AddSample(engine.KindCycle, fnBase)
	m.AddSample(engine.KindInstruction, fnBase)
	b := f.Blocks()[0]
	assert.Equal(t, uint64(1), b.CycleSamples())
	assert.Equal(t, uint64(1), b.InstructionSamples())

	m.AddSample(engine.KindCycle, 0x400010)
	fl, ok := m.FileAt(0x400010)
	require.True(t, ok)
	assert.Equal(t, uint64(1), fl.CycleSamples())

	m.AddSample(engine.KindInstruction, 0x900000)
	assert.Equal(t, uint64(1), m.Orphan().InstructionSamples())
}

func TestOverlappingFilesRejected(t *testing.T) {
	m, _ := newTestMap(t)
	_, err := m.AddFile("a", interval.New(0x1000, 0x2000))
	require.NoError(t, err)
	_, err = m.AddFile("b", interval.New(0x1800, 0x2800))
	require.Error(t, err, "overlapping text segments are a configuration error")
}

func TestLoadOffsetShiftsLookup(t *testing.T) {
	m, _ := newTestMap(t)
	const off = types.Addr(0x550000000000)

	// Symbol table says [0x500, 0x540); the image is loaded at off.
	rng := interval.New(0x500, 0x540)
	f := NewFunction("pie_fn", rng, off, disasm.NewCode(off+0x500, branchy()))
	require.NoError(t, m.AddFunction(f))

	res := m.Resolve(off + 0x510)
	assert.Equal(t, ResBlock, res.Kind, "runtime address resolves through the load offset")
	_, ok := m.FunctionAt(0x510)
	assert.False(t, ok, "unshifted address is not in the map")
}

func TestDumpFunctions(t *testing.T) {
	m, _ := newTestMap(t)
	addFn(t, m, "f", fnBase, branchy())

	var out bytes.Buffer
	m.DumpFunctions(&out)
	s := out.String()
	assert.Contains(t, s, "f [0x400500,0x400540)")
	assert.Contains(t, s, "block [0x400500,0x400530)")
	assert.Contains(t, s, "block [0x400530,0x400540)")
	assert.Equal(t, 1, strings.Count(s, "entry"))
}

func TestWriteBlockStats(t *testing.T) {
	m, _ := newTestMap(t)
	_, err := m.AddFile("a.out", interval.New(0x400000, 0x500000))
	require.NoError(t, err)
	addFn(t, m, "f", fnBase, branchy())

	m.AddSample(engine.KindCycle, fnBase)
	m.AddSample(engine.KindInstruction, 0x400535)

	var out bytes.Buffer
	m.WriteBlockStats(&out)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "blockstats\ta.out\tf\t[0x400500,0x400530)\t47\t1\t0", lines[0])
	assert.Equal(t, "blockstats\ta.out\tf\t[0x400530,0x400540)\t16\t0\t1", lines[1])
}

func TestProcessedFunctionIsImmutable(t *testing.T) {
	m, _ := newTestMap(t)
	f := addFn(t, m, "f", fnBase, branchy())
	m.Resolve(fnBase)
	before := f.Blocks()

	m.Resolve(fnBase + 1)
	assert.Equal(t, before, f.Blocks(), "re-resolving does not re-partition")
}
