//go:build linux

package sample

import (
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/types"
)

// Local is one thread's view of the sample pipeline: the block it is
// currently filling plus the queue it publishes to. Each instrumented
// thread owns exactly one Local; nothing here is shared, so Add runs
// without synchronization until a publish touches the queue mutex.
type Local struct {
	q     *Queue
	block *Block
}

func NewLocal(q *Queue) *Local {
	return &Local{q: q}
}

// Add records a sample under the given engine stamp. The current block
// is sealed and published when it fills or when the stamp diverges
// from the one the block was opened with; either way a fresh block
// opens with the current stamp, so a sealed block never mixes modes.
func (l *Local) Add(now int64, mode engine.Mode, round uint64, k engine.Kind, addr types.Addr) {
	if l.block == nil {
		l.open(mode, round, now)
	} else if l.block.Mode != mode || l.block.Round != round {
		l.publish(now)
		l.open(mode, round, now)
	}
	l.block.Add(k, addr)
	if l.block.Full() {
		l.publish(now)
		l.open(mode, round, now)
	}
}

// Flush publishes the current block if it holds any samples. Called on
// thread shutdown and during profiler drain.
func (l *Local) Flush(now int64) {
	if l.block == nil || l.block.Empty() {
		return
	}
	l.publish(now)
	l.block = nil
}

func (l *Local) open(mode engine.Mode, round uint64, now int64) {
	b := l.q.Get()
	b.reset(mode, round, now)
	l.block = b
}

func (l *Local) publish(now int64) {
	l.block.Seal(now)
	l.q.Put(l.block)
	l.block = nil
}
