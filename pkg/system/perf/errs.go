//go:build linux

package perf

import "errors"

var (
	// ErrUnavailable means no perf event source is usable on this
	// machine. Profiling cannot start; this is fatal at init.
	ErrUnavailable = errors.New("perf: no usable event source")

	// ErrBadPeriod means a zero sample period was configured.
	ErrBadPeriod = errors.New("perf: sample period must be > 0")
)
