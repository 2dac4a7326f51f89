//go:build linux

package profiler

import "errors"

var (
	// ErrBadMode indicates an unparseable CAUSAL_MODE value.
	ErrBadMode = errors.New("profiler: invalid mode")

	// ErrNoImages means no mapped image could be parsed at init, so
	// there is nothing to attribute samples to.
	ErrNoImages = errors.New("profiler: no parseable images")

	// ErrNotStarted is returned by operations that need a running
	// profiler.
	ErrNotStarted = errors.New("profiler: not started")
)
