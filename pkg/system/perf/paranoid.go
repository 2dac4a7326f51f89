//go:build linux

package perf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Paranoid returns the kernel's perf_event_paranoid level. Levels at
// or below 2 allow unprivileged per-thread profiling of the process's
// own threads.
func Paranoid() (int, error) {
	b, err := os.ReadFile("/proc/sys/kernel/perf_event_paranoid")
	if err != nil {
		return 0, fmt.Errorf("read perf_event_paranoid: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse perf_event_paranoid: %w", err)
	}
	return v, nil
}

// Detect chooses the event source for this machine and returns a
// human-readable detail string.
//
// Hardware counters are preferred; when the PMU is absent or the probe
// open fails, the software clock events are used instead. Only a
// kernel that refuses perf entirely is an error — that is a fatal
// configuration problem for the profiler.
func Detect() (Source, string, error) {
	level, err := Paranoid()
	if err != nil {
		return Software, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if level > 2 {
		return Software, "", fmt.Errorf("%w: perf_event_paranoid=%d", ErrUnavailable, level)
	}

	if Available(Hardware) {
		return Hardware, fmt.Sprintf("PMU available (paranoid=%d)", level), nil
	}
	if Available(Software) {
		return Software, fmt.Sprintf("no PMU, falling back to clock events (paranoid=%d)", level), nil
	}
	return Software, "", fmt.Errorf("%w: no event source usable", ErrUnavailable)
}
