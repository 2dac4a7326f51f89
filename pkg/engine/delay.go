//go:build linux

package engine

import "golang.org/x/sys/unix"

// Now returns the monotonic clock in nanoseconds. Safe to call from
// the overflow hook; clock_gettime does not allocate.
func Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}

// Wait sleeps for nanos on the monotonic clock and returns the actual
// elapsed nanoseconds. An early wake-up (EINTR) resumes with the
// remaining time, so the full duration always elapses. The delay runs
// on the calling thread by design: the point of sampling is the point
// where the work happened, and deferring the pause would break the
// causal attribution.
func Wait(nanos int64) int64 {
	if nanos <= 0 {
		return 0
	}
	start := Now()
	req := unix.NsecToTimespec(nanos)
	var rem unix.Timespec
	for {
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, 0, &req, &rem)
		if err == nil {
			break
		}
		if err != unix.EINTR {
			break
		}
		req = rem
	}
	return Now() - start
}
