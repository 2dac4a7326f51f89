//go:build linux

package codemap

import (
	"fmt"
	"log/slog"

	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/types"
)

// Map resolves sampled addresses to blocks, functions, and files.
// Three ordered maps are kept; resolution proceeds block, function,
// file, first hit wins. Samples that hit nothing are attributed to a
// single orphan sink.
type Map struct {
	files  interval.Map[*File]
	funcs  interval.Map[*Function]
	blocks interval.Map[*Block]
	orphan Bin
	log    *slog.Logger
}

func New(log *slog.Logger) *Map {
	if log == nil {
		log = slog.Default()
	}
	return &Map{log: log}
}

// AddFile registers a loaded text segment. Overlapping file ranges are
// a fatal configuration error surfaced to the caller.
func (m *Map) AddFile(name string, rng interval.Interval) (*File, error) {
	f := &File{Name: name, Range: rng}
	if err := m.files.Insert(rng, f); err != nil {
		return nil, fmt.Errorf("add file %s: %w", name, err)
	}
	return f, nil
}

// AddFunction registers a function at its loaded range.
func (m *Map) AddFunction(f *Function) error {
	if err := m.funcs.Insert(f.LoadedRange(), f); err != nil {
		return fmt.Errorf("add function %s: %w", f.Name, err)
	}
	return nil
}

// ResKind tags which level of the model a sample resolved to.
type ResKind uint8

const (
	ResOrphan ResKind = iota
	ResFile
	ResFunction
	ResBlock
)

// Resolution is the result of resolving one sampled address: the first
// hit walking block, function, file. Exactly one of the pointers
// matching Kind is non-nil.
type Resolution struct {
	Kind     ResKind
	Block    *Block
	Function *Function
	File     *File
}

// Resolve maps a sampled address to the innermost known container. A
// block miss over an unprocessed function triggers block discovery
// synchronously (this runs on the profiler thread, never in the
// overflow hook) and retries the block lookup.
func (m *Map) Resolve(p types.Addr) Resolution {
	if b, ok := m.blocks.Lookup(p); ok {
		return Resolution{Kind: ResBlock, Block: b}
	}
	if f, ok := m.funcs.Lookup(p); ok {
		if !f.processed {
			m.discover(f)
			if b, ok := m.blocks.Lookup(p); ok {
				return Resolution{Kind: ResBlock, Block: b}
			}
		}
		return Resolution{Kind: ResFunction, Function: f}
	}
	if fl, ok := m.files.Lookup(p); ok {
		return Resolution{Kind: ResFile, File: fl}
	}
	return Resolution{Kind: ResOrphan}
}

// AddSample resolves p and bumps the counter of whatever it resolved
// to, returning the resolution.
func (m *Map) AddSample(k engine.Kind, p types.Addr) Resolution {
	res := m.Resolve(p)
	switch res.Kind {
	case ResBlock:
		res.Block.AddSample(k)
	case ResFunction:
		res.Function.AddSample(k)
	case ResFile:
		res.File.AddSample(k)
	default:
		m.orphan.AddSample(k)
	}
	return res
}

// FunctionAt returns the function whose loaded range contains p.
func (m *Map) FunctionAt(p types.Addr) (*Function, bool) {
	return m.funcs.Lookup(p)
}

// FileAt returns the file whose range contains p.
func (m *Map) FileAt(p types.Addr) (*File, bool) {
	return m.files.Lookup(p)
}

// Orphan returns the sink for samples that resolved nowhere.
func (m *Map) Orphan() *Bin {
	return &m.orphan
}

// EachFunction visits every function in ascending address order.
func (m *Map) EachFunction(fn func(*Function)) {
	m.funcs.Each(func(_ interval.Interval, f *Function) { fn(f) })
}

// Files returns the number of registered files.
func (m *Map) Files() int { return m.files.Len() }

// Functions returns the number of registered functions.
func (m *Map) Functions() int { return m.funcs.Len() }
