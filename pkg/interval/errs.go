package interval

import "errors"

var (
	// ErrOverlap indicates an insert whose range overlaps an existing
	// entry. Overlapping code ranges mean a broken symbol table, so
	// callers treat this as a fatal configuration error.
	ErrOverlap = errors.New("interval: overlapping ranges")

	// ErrEmptyRange indicates an insert with limit <= base.
	ErrEmptyRange = errors.New("interval: empty range")
)
