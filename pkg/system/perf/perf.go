//go:build linux

// Package perf arms the per-thread overflow counters the profiler
// samples with: one CPU-cycle event and one retired-instruction event,
// each configured with a sample period and an mmap'd ring the thread
// drains from its overflow hook. On machines without a usable PMU
// (VMs, locked-down kernels) the same pair is approximated with the
// kernel's software clock events.
package perf

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Config holds the sample periods: one sample is delivered every
// CyclePeriod cycles and every InstructionPeriod retired instructions.
type Config struct {
	CyclePeriod       uint64
	InstructionPeriod uint64
}

// DefaultConfig matches the periods the profiler was tuned with.
func DefaultConfig() Config {
	return Config{
		CyclePeriod:       10_000_000,
		InstructionPeriod: 10_000_000,
	}
}

// Source selects which event pair backs the samplers.
type Source int

const (
	// Hardware counts real cycles and retired instructions.
	Hardware Source = iota
	// Software approximates both with kernel clock events; periods
	// are interpreted as nanoseconds.
	Software
)

func (s Source) String() string {
	if s == Hardware {
		return "hardware counters"
	}
	return "software clock events"
}

// attrs builds the perf_event_attr pair for a source. Split out so the
// exact attribute layout is testable without opening events.
func attrs(src Source, cfg Config) (cycle, inst unix.PerfEventAttr) {
	common := unix.PerfEventAttr{
		Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Sample_type: unix.PERF_SAMPLE_IP,
		// Start disabled; armed explicitly after the ring is mapped.
		Bits:   unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
		Wakeup: 1,
	}

	cycle, inst = common, common
	switch src {
	case Hardware:
		cycle.Type = unix.PERF_TYPE_HARDWARE
		cycle.Config = unix.PERF_COUNT_HW_CPU_CYCLES
		inst.Type = unix.PERF_TYPE_HARDWARE
		inst.Config = unix.PERF_COUNT_HW_INSTRUCTIONS
	default:
		cycle.Type = unix.PERF_TYPE_SOFTWARE
		cycle.Config = unix.PERF_COUNT_SW_CPU_CLOCK
		inst.Type = unix.PERF_TYPE_SOFTWARE
		inst.Config = unix.PERF_COUNT_SW_TASK_CLOCK
	}
	cycle.Sample = cfg.CyclePeriod
	inst.Sample = cfg.InstructionPeriod
	return cycle, inst
}

// Events is one thread's armed counter pair. It belongs to the thread
// it was armed on and must be drained and stopped from that thread.
type Events struct {
	cycle *event
	inst  *event
}

// Arm opens and enables the event pair on the given thread. tid 0
// means the calling thread.
func Arm(src Source, cfg Config, tid int) (*Events, error) {
	if cfg.CyclePeriod == 0 || cfg.InstructionPeriod == 0 {
		return nil, ErrBadPeriod
	}
	cycleAttr, instAttr := attrs(src, cfg)

	cycle, err := open(&cycleAttr, tid)
	if err != nil {
		return nil, fmt.Errorf("open cycle event: %w", err)
	}
	inst, err := open(&instAttr, tid)
	if err != nil {
		cycle.close()
		return nil, fmt.Errorf("open instruction event: %w", err)
	}

	e := &Events{cycle: cycle, inst: inst}
	if err := e.enable(); err != nil {
		e.Stop()
		return nil, err
	}
	return e, nil
}

func (e *Events) enable() error {
	if err := unix.IoctlSetInt(e.cycle.fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		return fmt.Errorf("enable cycle event: %w", err)
	}
	if err := unix.IoctlSetInt(e.inst.fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		return fmt.Errorf("enable instruction event: %w", err)
	}
	return nil
}

// Drain pulls pending overflow samples from both rings, newest last
// within each counter, and hands each interrupted instruction pointer
// to fn. It allocates nothing and is the only part of this package the
// overflow hook may call. Returns the number of samples delivered.
func (e *Events) Drain(fn func(instruction bool, ip uint64)) int {
	n := e.cycle.drain(false, fn)
	n += e.inst.drain(true, fn)
	return n
}

// Stop disables and tears down both events.
func (e *Events) Stop() {
	_ = unix.IoctlSetInt(e.cycle.fd, unix.PERF_EVENT_IOC_DISABLE, 0)
	_ = unix.IoctlSetInt(e.inst.fd, unix.PERF_EVENT_IOC_DISABLE, 0)
	e.cycle.close()
	e.inst.close()
}

// ringPages is the size of each event's data ring, in pages. Must be a
// power of two.
const ringPages = 8

// open opens one event on a thread and maps its ring.
func open(attr *unix.PerfEventAttr, tid int) (*event, error) {
	fd, err := unix.PerfEventOpen(attr, tid, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, err
	}

	pageSize := unix.Getpagesize()
	size := (1 + ringPages) * pageSize
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("map ring: %w", err)
	}

	return &event{
		fd:   fd,
		mem:  mem,
		meta: (*unix.PerfEventMmapPage)(unsafe.Pointer(&mem[0])),
		data: mem[pageSize:],
	}, nil
}

// Available probes whether a source can actually deliver events by
// opening and immediately closing a pair on the calling thread.
func Available(src Source) bool {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	e, err := Arm(src, DefaultConfig(), 0)
	if err != nil {
		return false
	}
	e.Stop()
	return true
}
