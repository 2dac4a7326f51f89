//go:build linux

package engine

import "github.com/ja7ad/causalprof/pkg/types"

// ThreadState is one thread's delay bookkeeping. It belongs to exactly
// one instrumented thread and is only touched from that thread's
// overflow hook, so none of its fields need synchronization.
type ThreadState struct {
	e       *Engine
	round   uint64
	applied uint64
}

// NewThread registers a thread with the engine. The local delay count
// is inherited from the current delaysExecuted so a freshly spawned
// thread does not catch up on delays accumulated before it existed.
func (e *Engine) NewThread() *ThreadState {
	return &ThreadState{
		e:       e,
		round:   e.round.Load(),
		applied: e.delaysExecuted.Load(),
	}
}

// Perturb runs the engine's side of one overflow sample on the calling
// thread and returns the nanoseconds of delay actually executed.
//
// Slowdown: only the sampling thread pays, and only for instruction
// samples inside the target range.
//
// Speedup: an in-range instruction sample charges one delay to every
// other thread. The sampling thread credits its own local counter
// before publishing the request, so it never delays itself in its own
// round; everyone else catches up to delaysRequested with waits of the
// round's delay size.
func (t *ThreadState) Perturb(k Kind, addr types.Addr) int64 {
	e := t.e
	mode := e.Mode()
	if mode == Normal {
		t.observeRound()
		return 0
	}

	t.observeRound()
	target, delay := e.Target()

	switch mode {
	case Slowdown:
		if k == KindInstruction && target.Contains(addr) {
			e.delaysRequested.Add(1)
			elapsed := Wait(delay)
			e.delaysExecuted.Add(1)
			return elapsed
		}
		return 0

	case Speedup:
		if k == KindInstruction && target.Contains(addr) {
			// Before-bump: credit ourselves, then publish the request.
			t.applied++
			e.delaysRequested.Add(1)
		}
		var elapsed int64
		for t.applied < e.delaysRequested.Load() {
			elapsed += Wait(delay)
			t.applied++
			e.noteExecuted(t.applied)
		}
		return elapsed
	}
	return 0
}

// observeRound lazily notices a round transition. The local counter is
// re-seeded from delaysExecuted rather than zero so a thread that
// slept across the transition is treated like a new arrival.
func (t *ThreadState) observeRound() {
	round := t.e.round.Load()
	if round != t.round {
		t.round = round
		t.applied = t.e.delaysExecuted.Load()
	}
}

// Applied returns the thread's local delay count for the current round.
func (t *ThreadState) Applied() uint64 {
	return t.applied
}

// Kind distinguishes which hardware counter overflowed. It lives here
// rather than in the sample package because the perturbation step
// needs it and the sample pipeline already depends on the engine for
// mode stamps.
type Kind uint8

const (
	KindCycle Kind = iota
	KindInstruction
)

func (k Kind) String() string {
	switch k {
	case KindCycle:
		return "cycle"
	case KindInstruction:
		return "instruction"
	default:
		return "unknown"
	}
}
