//go:build linux

package profiler

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/causalprof/pkg/counter"
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/sample"
	"github.com/ja7ad/causalprof/pkg/system/perf"
	"github.com/ja7ad/causalprof/pkg/types"
)

// The global profiler instance. Signal-context-free in Go terms: the
// overflow hook has no calling context to thread a handle through, so
// the one mutable global lives here behind atomic accessors and is
// never handed out by reference.
var (
	global  atomic.Pointer[Profiler]
	startMu sync.Mutex

	// threads maps OS thread ids to their per-thread sampling state.
	threads sync.Map // int -> *Thread
)

// Start initializes the profiler once per process: detects the
// hardware-counter substrate, builds the code map from the loaded
// images, and launches the profiler thread. Calling Start again in the
// same process is a no-op; calling it in a duplicated process (the pid
// changed underneath a live instance) clears state and re-initializes.
//
// In dump mode Start prints every function's block partition and the
// process exits with status zero; that is the documented interface for
// verifying block discovery.
func Start(cfg Config) error {
	startMu.Lock()
	defer startMu.Unlock()

	pid := os.Getpid()
	if p := global.Load(); p != nil {
		if p.pid == pid {
			return nil
		}
		// Duplicated process: the parent's threads, queue, and rounds
		// do not exist here. Drop them and start over.
		global.Store(nil)
		threads.Range(func(k, _ any) bool { threads.Delete(k); return true })
	}

	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}

	if cfg.Mode == Dump {
		p := newProfiler(cfg, perf.Software, pid)
		if err := p.populate(); err != nil {
			return err
		}
		p.cmap.DumpFunctions(cfg.Out)
		os.Exit(0)
	}

	src, detail, err := perf.Detect()
	if err != nil {
		return fmt.Errorf("initialize counters: %w", err)
	}

	p := newProfiler(cfg, src, pid)
	if err := p.populate(); err != nil {
		return err
	}
	p.log.Info("profiler starting", "source", src.String(), "detail", detail, "mode", cfg.Mode.String())

	writeHeader(cfg.Out, basename(os.Args[0]), cfg.Periods.CyclePeriod, cfg.Periods.InstructionPeriod)

	go p.run()
	global.Store(p)
	return nil
}

// Stop tears the profiler down: stops accepting perturbations, lets
// the profiler thread drain the queue and exit, then writes the
// summary and block statistics. Once Stop has begun, Poll on a thread
// that is still armed returns at once: it neither records samples nor
// perturbs. Such threads disarm on their own exit path.
func Stop() {
	startMu.Lock()
	defer startMu.Unlock()

	p := global.Swap(nil)
	if p == nil {
		return
	}
	p.eng.Reset()
	p.queue.Close()
	<-p.done

	writeSummary(p.cfg.Out, p.acc)
	p.cmap.WriteBlockStats(p.cfg.Out)
}

// Started reports whether a profiler instance is live.
func Started() bool {
	return global.Load() != nil
}

// Register declares an application counter with the running profiler.
// Safe to call before Start; the registration is simply dropped then,
// matching the weak-symbol behavior of uninstrumented runs.
func Register(k counter.Kind, file string, line int, addr *uint64) {
	if p := global.Load(); p != nil {
		p.reg.Register(k, file, line, addr)
	}
}

// Thread is one OS thread's sampling state: its armed counter pair,
// its delay bookkeeping, and its current sample buffer.
type Thread struct {
	events *perf.Events
	ts     *engine.ThreadState
	local  *sample.Local
}

// ArmCurrentThread arms sampling on the calling thread. The caller
// must be locked to its OS thread and must call DisarmCurrentThread
// from the same thread before exiting.
func ArmCurrentThread() error {
	p := global.Load()
	if p == nil {
		return ErrNotStarted
	}
	tid := unix.Gettid()
	if _, ok := threads.Load(tid); ok {
		return nil
	}
	ev, err := perf.Arm(p.src, p.cfg.Periods, 0)
	if err != nil {
		return fmt.Errorf("arm thread %d: %w", tid, err)
	}
	threads.Store(tid, &Thread{
		events: ev,
		ts:     p.eng.NewThread(),
		local:  sample.NewLocal(p.queue),
	})
	return nil
}

// DisarmCurrentThread stops sampling on the calling thread, drains the
// last pending overflows, and flushes its sample buffer.
func DisarmCurrentThread() {
	tid := unix.Gettid()
	v, ok := threads.LoadAndDelete(tid)
	if !ok {
		return
	}
	t := v.(*Thread)
	if p := global.Load(); p != nil {
		t.poll(p)
		t.local.Flush(engine.Now())
	}
	t.events.Stop()
}

// Poll is the overflow hook: it drains the calling thread's pending
// overflow samples into its buffer and executes the perturbation step
// for each. Threads that are not armed return immediately. The hook
// takes the queue mutex on every call to read the shutdown flag, and
// again when it publishes a full buffer and takes a fresh one.
func Poll() {
	p := global.Load()
	if p == nil {
		return
	}
	v, ok := threads.Load(unix.Gettid())
	if !ok {
		return
	}
	v.(*Thread).poll(p)
}

func (t *Thread) poll(p *Profiler) {
	// During shutdown samples still land in the buffer, but no new
	// perturbation runs; pending delays have already completed.
	perturb := p.queue.Active()
	t.events.Drain(func(instruction bool, ip uint64) {
		k := engine.KindCycle
		if instruction {
			k = engine.KindInstruction
		}
		addr := types.Addr(ip)
		t.local.Add(engine.Now(), p.eng.Mode(), p.eng.Round(), k, addr)
		if perturb {
			t.ts.Perturb(k, addr)
		}
	})
}
