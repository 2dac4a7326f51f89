package disasm

import "errors"

var (
	// ErrOutOfRange indicates a decode at an address outside the
	// wrapped code bytes.
	ErrOutOfRange = errors.New("disasm: address out of range")

	// ErrUndecodable indicates bytes the decoder rejected. Block
	// discovery stops the current walk there and keeps whatever
	// partition it has; attribution degrades but never fails.
	ErrUndecodable = errors.New("disasm: undecodable instruction")
)
