//go:build linux

// Package causal is the application-facing surface of the profiler:
// declare progress counters, run workers on instrumented threads, and
// start or stop profiling for the process.
//
// Typical use:
//
//	var done = causal.DeclareProgress()
//
//	func main() {
//		if err := causal.Start(); err != nil { ... }
//		defer causal.Stop()
//		causal.Go(worker)
//		...
//	}
//
//	func worker() {
//		for item := range queue {
//			handle(item)
//			done.Tick()
//		}
//	}
package causal

import (
	"runtime"
	"sync/atomic"

	"github.com/ja7ad/causalprof/pkg/counter"
	"github.com/ja7ad/causalprof/pkg/profiler"
)

// Start attaches the profiler to the current process, configured from
// the CAUSAL_MODE environment variable. Calling Start twice is a
// no-op. Programs that never call Start run uninstrumented: counters
// still count, Go still spawns workers, nothing registers or samples.
func Start() error {
	cfg, err := profiler.FromEnv()
	if err != nil {
		return err
	}
	return profiler.Start(cfg)
}

// StartWith attaches the profiler with an explicit configuration.
func StartWith(cfg profiler.Config) error {
	return profiler.Start(cfg)
}

// Stop detaches the profiler and writes the final report.
func Stop() {
	profiler.Stop()
}

// Go runs fn on its own instrumented OS thread: the goroutine is
// locked to the thread, sampling is armed on entry and disarmed on
// exit. The worker's loop should call a counter's Tick (or Poll) often
// enough for overflow samples to be drained promptly.
func Go(fn func()) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := profiler.ArmCurrentThread(); err == nil {
			defer profiler.DisarmCurrentThread()
		}
		fn()
	}()
}

// Poll runs the overflow hook for the calling thread: pending overflow
// samples are recorded and any owed perturbation delays execute here,
// on this thread. Tight loops without a counter call site should call
// Poll directly.
func Poll() {
	profiler.Poll()
}

// Counter is one declared application counter. The zero value is not
// usable; declare counters with DeclareProgress, DeclareBegin, or
// DeclareEnd at package scope so the call site is captured once.
type Counter struct {
	kind       counter.Kind
	file       string
	line       int
	registered atomic.Bool
	value      uint64
}

// DeclareProgress declares a progress counter owned by the calling
// source line. Tick it once per unit of application-meaningful work.
func DeclareProgress() *Counter { return declare(counter.Progress) }

// DeclareBegin declares a transaction-begin counter.
func DeclareBegin() *Counter { return declare(counter.Begin) }

// DeclareEnd declares a transaction-end counter.
func DeclareEnd() *Counter { return declare(counter.End) }

func declare(k counter.Kind) *Counter {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "?", 0
	}
	return &Counter{kind: k, file: file, line: line}
}

// Tick increments the counter and runs the overflow hook. The first
// Tick after the profiler starts registers the counter; ticking
// without a profiler just counts, the way a program linked without
// the runtime would.
func (c *Counter) Tick() {
	if !c.registered.Load() && profiler.Started() {
		if c.registered.CompareAndSwap(false, true) {
			profiler.Register(c.kind, c.file, c.line, &c.value)
		}
	}
	atomic.AddUint64(&c.value, 1)
	profiler.Poll()
}

// Value returns the counter's current value.
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.value)
}
