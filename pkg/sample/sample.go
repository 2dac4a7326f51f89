//go:build linux

// Package sample carries overflow samples from application threads to
// the profiler thread. Each thread fills a fixed-capacity block and
// publishes it to one global queue; the profiler thread drains blocks
// in FIFO order. The producer side is called from the overflow hook.
// It takes the queue mutex only to publish a block and to take a fresh
// one; it allocates a new block only when the freelist is empty.
package sample

import (
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/types"
)

// Sample is one overflow event: the kind of counter and the address of
// the interrupted instruction. Samples are plain values; producing one
// performs no allocation.
type Sample struct {
	Kind engine.Kind
	Addr types.Addr
}
