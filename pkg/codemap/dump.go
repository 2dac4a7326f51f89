//go:build linux

package codemap

import (
	"fmt"
	"io"
)

// DumpFunctions forces block discovery on every known function and
// writes each function's block partition. This is the verification
// interface behind dump mode.
func (m *Map) DumpFunctions(w io.Writer) {
	m.EachFunction(func(f *Function) {
		m.discover(f)
		fmt.Fprintf(w, "%s %s\n", f.Name, f.LoadedRange())
		for _, b := range f.Blocks() {
			tag := ""
			if b.Entry {
				tag = " entry"
			}
			fmt.Fprintf(w, "  block %s length %d%s\n", b.Range, b.Length, tag)
		}
	})
}

// WriteBlockStats writes one tab-separated blockstats line per
// discovered block:
//
//	blockstats <file> <function> <range> <length> <cycle_samples> <inst_samples>
//
// Unprocessed functions are skipped; a function nothing sampled in has
// no partition to report.
func (m *Map) WriteBlockStats(w io.Writer) {
	m.EachFunction(func(f *Function) {
		if !f.processed {
			return
		}
		fileName := "?"
		if fl, ok := m.FileAt(f.LoadedRange().Base); ok {
			fileName = fl.Name
		}
		for _, b := range f.Blocks() {
			fmt.Fprintf(w, "blockstats\t%s\t%s\t%s\t%d\t%d\t%d\n",
				fileName, f.Name, b.Range, b.Length,
				b.CycleSamples(), b.InstructionSamples())
		}
	})
}
