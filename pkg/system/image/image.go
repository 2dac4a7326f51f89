//go:build linux

// Package image reads the loader's view of the process: which
// executable images are mapped where, and what functions their symbol
// tables declare. It is the initialization-time input to the code map;
// nothing here runs after init.
package image

import (
	"debug/elf"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/types"
)

// Func is one symbol-table function: its link-time range and a copy of
// its machine code taken from the on-disk file. The copy means block
// discovery never reads live text pages.
type Func struct {
	Name  string
	Range interval.Interval
	Code  []byte
}

// Image is one loaded executable mapping with its parsed symbols.
type Image struct {
	Path string
	// Text is the runtime address range of the executable mapping.
	Text interval.Interval
	// LoadOffset shifts symbol-table addresses to runtime addresses.
	// Zero for fixed-position executables.
	LoadOffset types.Addr
	Funcs      []Func
}

// Self enumerates the executable mappings of the current process and
// parses each one's symbols. Mappings whose path contains any of the
// exclude substrings, pseudo-files ([vdso] and friends), and images
// that fail to parse are skipped; skipping is logged and degrades
// attribution for that image only.
func Self(log *slog.Logger, exclude []string) ([]*Image, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, fmt.Errorf("open maps: %w", err)
	}
	defer f.Close()

	mm, err := profile.ParseProcMaps(f)
	if err != nil {
		return nil, fmt.Errorf("parse maps: %w", err)
	}

	var images []*Image
	for _, m := range mm {
		if m.File == "" || strings.HasPrefix(m.File, "[") {
			continue
		}
		if excluded(m.File, exclude) {
			log.Debug("excluding image", "path", m.File)
			continue
		}
		img, err := Load(m.File, types.Addr(m.Start), types.Addr(m.Limit), types.Addr(m.Offset))
		if err != nil {
			log.Warn("skipping unparseable image", "path", m.File, "err", err)
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

func excluded(path string, exclude []string) bool {
	for _, e := range exclude {
		if e != "" && strings.Contains(path, e) {
			return true
		}
	}
	return false
}

// Load parses one ELF image mapped at [start, limit) with file offset
// off and returns its functions. The load offset for
// position-independent images is computed here, once, from the
// PT_LOAD segment backing the mapping.
func Load(path string, start, limit, off types.Addr) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotELF, path, err)
	}
	defer f.Close()

	loadOffset, err := loadBias(f, start, off)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	funcs, err := functions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Image{
		Path:       path,
		Text:       interval.New(start, limit),
		LoadOffset: loadOffset,
		Funcs:      funcs,
	}, nil
}

// OpenFile loads an on-disk binary as if it were mapped at its
// link-time addresses. Used by the dump tool, which inspects binaries
// that are not running.
func OpenFile(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotELF, path, err)
	}
	defer f.Close()

	text := f.Section(".text")
	if text == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoText, path)
	}

	funcs, err := functions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Image{
		Path:       path,
		Text:       interval.New(types.Addr(text.Addr), types.Addr(text.Addr+text.Size)),
		LoadOffset: 0,
		Funcs:      funcs,
	}, nil
}

// loadBias returns the difference between runtime and link-time
// addresses for the executable segment backing the mapping. Fixed
// executables load where they were linked, so the bias is zero.
func loadBias(f *elf.File, start, off types.Addr) (types.Addr, error) {
	if f.Type != elf.ET_DYN {
		return 0, nil
	}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Flags&elf.PF_X == 0 {
			continue
		}
		if uint64(off) >= p.Off && uint64(off) < p.Off+p.Filesz {
			return start - off - types.Addr(p.Vaddr-p.Off), nil
		}
	}
	return 0, ErrNoLoadSegment
}

// functions collects STT_FUNC symbols with a defined value and size,
// sorted by address, each with a copy of its code bytes.
func functions(f *elf.File) ([]Func, error) {
	syms, err := f.Symbols()
	if err != nil {
		// Stripped binaries keep their dynamic symbols; fall back.
		syms, err = f.DynamicSymbols()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSymbols, err)
		}
	}

	text := f.Section(".text")
	if text == nil {
		return nil, ErrNoText
	}
	data, err := text.Data()
	if err != nil {
		return nil, fmt.Errorf("read .text: %w", err)
	}

	var out []Func
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 || s.Size == 0 {
			continue
		}
		// Only functions whose bytes live in .text; anything else
		// (plt stubs, init/fini) is skipped.
		if s.Value < text.Addr || s.Value+s.Size > text.Addr+text.Size {
			continue
		}
		lo := s.Value - text.Addr
		out = append(out, Func{
			Name:  s.Name,
			Range: interval.New(types.Addr(s.Value), types.Addr(s.Value+s.Size)),
			Code:  data[lo : lo+s.Size],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Base < out[j].Range.Base })
	return out, nil
}
