//go:build linux

// Package engine implements the perturbation experiments: literal
// slowdown of a target address range, and virtual speedup realized by
// delaying every thread except the one that sampled inside the range.
//
// All mutable state lives here behind atomic accessors because the
// overflow hook has no calling context to thread it through. The
// profiler thread drives transitions; application threads read the
// mode and target and advance only the per-round delay counters.
package engine

import (
	"sync/atomic"

	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/types"
)

// Engine is the global perturbation state machine.
//
// Write ordering on a round transition: target range and delay are
// stored first, then the per-round counters are zeroed, then the round
// number is advanced, then the mode. Hooks read in the opposite order
// (mode, round, then target), so a hook that observes the new mode is
// guaranteed to see the new round's target.
type Engine struct {
	mode  atomic.Uint32
	round atomic.Uint64

	delaysRequested atomic.Uint64
	delaysExecuted  atomic.Uint64

	base  atomic.Uint64
	limit atomic.Uint64
	delay atomic.Int64
}

func New() *Engine {
	return &Engine{}
}

// Mode returns the mode currently in effect.
func (e *Engine) Mode() Mode {
	return Mode(e.mode.Load())
}

// Round returns the current round number. Rounds increase strictly on
// every StartSlowdown/StartSpeedup and never decrease.
func (e *Engine) Round() uint64 {
	return e.round.Load()
}

// Target returns the current round's address range and delay size.
func (e *Engine) Target() (interval.Interval, int64) {
	r := interval.New(types.Addr(e.base.Load()), types.Addr(e.limit.Load()))
	return r, e.delay.Load()
}

// DelaysRequested returns the number of delays requested so far in the
// current round.
func (e *Engine) DelaysRequested() uint64 {
	return e.delaysRequested.Load()
}

// DelaysExecuted returns the largest delay count that some thread has
// fully caught up to in the current round (in slowdown, the number of
// delays executed). It is not a minimum across threads: a thread that
// has not run its hook since the last requests may still owe delays.
func (e *Engine) DelaysExecuted() uint64 {
	return e.delaysExecuted.Load()
}

// StartSlowdown begins a slowdown round: every instruction sample
// inside r executes a delay of delayNs on the sampling thread. Returns
// the new round number.
func (e *Engine) StartSlowdown(r interval.Interval, delayNs int64) uint64 {
	return e.start(Slowdown, r, delayNs)
}

// StartSpeedup begins a virtual speedup round: every instruction
// sample inside r charges one delay of delayNs to every other thread.
// Returns the new round number.
func (e *Engine) StartSpeedup(r interval.Interval, delayNs int64) uint64 {
	return e.start(Speedup, r, delayNs)
}

func (e *Engine) start(m Mode, r interval.Interval, delayNs int64) uint64 {
	e.base.Store(uint64(r.Base))
	e.limit.Store(uint64(r.Limit))
	e.delay.Store(delayNs)
	e.delaysRequested.Store(0)
	e.delaysExecuted.Store(0)
	round := e.round.Add(1)
	e.mode.Store(uint32(m))
	return round
}

// Reset returns the engine to Normal. The round number is left alone;
// it only advances when an experiment starts.
func (e *Engine) Reset() {
	e.mode.Store(uint32(Normal))
}

// noteExecuted publishes a thread's fully-executed delay count. The
// compare-exchange only moves the counter forward, so it records the
// largest count some thread has completely caught up to; it can never
// pass delaysRequested.
func (e *Engine) noteExecuted(applied uint64) {
	for {
		cur := e.delaysExecuted.Load()
		if cur >= applied {
			return
		}
		if e.delaysExecuted.CompareAndSwap(cur, applied) {
			return
		}
	}
}
