//go:build linux

package sample

import (
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/types"
)

// BlockCap is the number of samples a block holds before it must be
// published. Kept a small power of two: at 16 bytes a sample a block
// holds 16 KiB of samples, and sealing happens often enough for mode
// changes to be observed promptly.
const BlockCap = 1024

// Block is a thread-local buffer of samples. It is stamped with the
// engine mode and round in effect when it was opened; every sample
// inside a sealed block was recorded under that stamp (the producer
// seals early when the engine moves on).
//
// Ownership: the producing thread owns an open block exclusively.
// Publishing transfers it to the queue, dequeueing to the profiler
// thread, which recycles it after use.
type Block struct {
	Mode  engine.Mode
	Round uint64

	// Open and seal times, nanoseconds on the monotonic clock.
	Start int64
	End   int64

	count   int
	samples [BlockCap]Sample
}

func (b *Block) reset(mode engine.Mode, round uint64, now int64) {
	b.Mode = mode
	b.Round = round
	b.Start = now
	b.End = 0
	b.count = 0
}

// Add records one sample. Called from the overflow hook: it writes
// into the fixed array and bumps the index, nothing else. Adding to a
// full block drops the sample; the owner checks Full after every Add
// and publishes before the next one.
func (b *Block) Add(k engine.Kind, addr types.Addr) {
	if b.count >= BlockCap {
		return
	}
	b.samples[b.count] = Sample{Kind: k, Addr: addr}
	b.count++
}

// Full reports whether the block must be published.
func (b *Block) Full() bool {
	return b.count >= BlockCap
}

// Empty reports whether the block holds no samples.
func (b *Block) Empty() bool {
	return b.count == 0
}

// Seal stamps the end time. The block must not be added to afterwards.
func (b *Block) Seal(now int64) {
	b.End = now
}

// Samples returns the recorded samples. Valid only after the block has
// been sealed and dequeued; the slice aliases the block's array.
func (b *Block) Samples() []Sample {
	return b.samples[:b.count]
}

// Duration returns the wall time the block was open, in nanoseconds.
func (b *Block) Duration() int64 {
	return b.End - b.Start
}
