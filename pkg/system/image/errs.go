//go:build linux

package image

import "errors"

var (
	// ErrNotELF indicates a mapped file that is not a parseable ELF
	// image. The image is skipped; its samples become orphans.
	ErrNotELF = errors.New("image: not an elf file")

	// ErrNoText indicates an ELF image without a .text section.
	ErrNoText = errors.New("image: no .text section")

	// ErrNoSymbols indicates an image with neither a symbol table nor
	// dynamic symbols.
	ErrNoSymbols = errors.New("image: no symbols")

	// ErrNoLoadSegment indicates a PIE mapping whose file offset
	// matches no executable PT_LOAD segment.
	ErrNoLoadSegment = errors.New("image: no matching load segment")
)
