//go:build linux

// Package profiler owns the background analysis thread and the
// process-wide lifecycle. The profiler thread drains the sample queue,
// attributes samples through the code map (disassembling functions on
// demand), and periodically perturbs the program through the engine to
// run one experiment round at a time.
package profiler

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ja7ad/causalprof/pkg/codemap"
	"github.com/ja7ad/causalprof/pkg/counter"
	"github.com/ja7ad/causalprof/pkg/disasm"
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/sample"
	"github.com/ja7ad/causalprof/pkg/system/image"
	"github.com/ja7ad/causalprof/pkg/system/perf"
)

// Profiler ties the sampling pipeline, the code model, the
// perturbation engine, and the counter registry together.
type Profiler struct {
	cfg   Config
	src   perf.Source
	eng   *engine.Engine
	queue *sample.Queue
	cmap  *codemap.Map
	reg   *counter.Registry
	acc   *Accumulator
	log   *slog.Logger

	pid  int
	done chan struct{}

	// lastRoundEnd gates the pause between experiment rounds.
	lastRoundEnd int64
}

func newProfiler(cfg Config, src perf.Source, pid int) *Profiler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Profiler{
		cfg:   cfg,
		src:   src,
		eng:   engine.New(),
		queue: sample.NewQueue(),
		cmap:  codemap.New(log),
		reg:   counter.NewRegistry(log),
		acc:   NewAccumulator(),
		log:   log,
		pid:   pid,
		done:  make(chan struct{}),
	}
}

// populate builds the file and function maps from the loader's view of
// the process. Individual image failures degrade (logged inside
// image.Self); ending up with nothing at all is fatal.
func (p *Profiler) populate() error {
	images, err := image.Self(p.log, p.cfg.Exclude)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return ErrNoImages
	}

	funcs := 0
	for _, img := range images {
		if _, err := p.cmap.AddFile(img.Path, img.Text); err != nil {
			p.log.Warn("skipping image with colliding text range", "path", img.Path, "err", err)
			continue
		}
		for _, fn := range img.Funcs {
			runtimeBase := fn.Range.Base + img.LoadOffset
			f := codemap.NewFunction(fn.Name, fn.Range, img.LoadOffset,
				disasm.NewCode(runtimeBase, fn.Code))
			if err := p.cmap.AddFunction(f); err != nil {
				// Overlapping symbols (aliases, ifuncs) keep the first owner.
				p.log.Debug("skipping overlapping function symbol", "name", fn.Name, "err", err)
				continue
			}
			funcs++
		}
	}
	p.log.Info("code map populated", "files", p.cmap.Files(), "functions", funcs)
	return nil
}

// run is the profiler thread's loop: drain the oldest buffer,
// attribute its samples, maybe run an experiment, release the buffer.
// A nil dequeue means the queue is closed and drained.
func (p *Profiler) run() {
	defer close(p.done)
	for {
		b := p.queue.Take()
		if b == nil {
			return
		}
		first := p.process(b)
		bufMode := b.Mode
		p.queue.Recycle(b)
		p.maybeExperiment(bufMode, first)
	}
}

// process attributes every sample in a buffer and returns the first
// instruction sample, which the adaptive policy uses as an experiment
// seed.
func (p *Profiler) process(b *sample.Block) (first sample.Sample) {
	for _, s := range b.Samples() {
		p.cmap.AddSample(s.Kind, s.Addr)
		if first.Addr == 0 && s.Kind == engine.KindInstruction {
			first = s
		}
	}
	return first
}

// maybeExperiment starts one round when the engine is idle, the
// inter-round pause has elapsed, and a target is available. Policy
// only; the engine applies whatever is chosen and reports what
// actually ran.
func (p *Profiler) maybeExperiment(bufMode engine.Mode, seed sample.Sample) {
	if p.eng.Mode() != engine.Normal || bufMode != engine.Normal {
		return
	}
	if now := engine.Now(); now-p.lastRoundEnd < int64(p.cfg.Pause) {
		return
	}

	var (
		mode   engine.Mode
		target interval.Interval
		delay  int64
	)
	switch p.cfg.Mode {
	case FixedSlowdown:
		mode, target, delay = engine.Slowdown, p.cfg.Target, p.cfg.Delay
	case FixedSpeedup:
		mode, target, delay = engine.Speedup, p.cfg.Target, p.cfg.Delay
	case Adaptive:
		blk, ok := p.chooseBlock(seed)
		if !ok {
			return
		}
		mode, target, delay = engine.Speedup, blk.Range, p.cfg.Delay
	default:
		return
	}
	p.runRound(mode, target, delay)
}

// chooseBlock picks an experiment target from the seed sample: the
// containing basic block, as long as it is long enough for in-range
// samples to be plausible within one window.
func (p *Profiler) chooseBlock(seed sample.Sample) (*codemap.Block, bool) {
	if seed.Addr == 0 {
		return nil, false
	}
	res := p.cmap.Resolve(seed.Addr)
	if res.Kind != codemap.ResBlock || res.Block.Length < 2 {
		return nil, false
	}
	return res.Block, true
}

// runRound executes one experiment: snapshot counters, switch the
// engine, sleep out the window, reset, snapshot again, report.
func (p *Profiler) runRound(mode engine.Mode, target interval.Interval, delay int64) {
	before := p.reg.Snapshot()
	start := engine.Now()

	var round uint64
	if mode == engine.Slowdown {
		round = p.eng.StartSlowdown(target, delay)
	} else {
		round = p.eng.StartSpeedup(target, delay)
	}

	p.sleepWindow()

	requested := p.eng.DelaysRequested()
	executed := p.eng.DelaysExecuted()
	p.eng.Reset()

	elapsed := engine.Now() - start
	after := p.reg.Snapshot()
	p.lastRoundEnd = engine.Now()

	res := p.acc.Apply(RoundSnapshot{
		Number:    round,
		Mode:      mode,
		Range:     target,
		Delay:     delay,
		Requested: requested,
		Executed:  executed,
		ElapsedNs: elapsed,
		Before:    before,
		After:     after,
	})
	writeResult(p.cfg.Out, res)
}

// sleepWindow waits out the experiment window as a bounded sleep with
// periodic re-reads of the shutdown flag, so a closing queue cuts the
// round short instead of blocking teardown.
func (p *Profiler) sleepWindow() {
	const slice = 10 * time.Millisecond
	deadline := time.Now().Add(p.cfg.Window)
	for time.Now().Before(deadline) {
		if !p.queue.Active() {
			return
		}
		d := time.Until(deadline)
		if d > slice {
			d = slice
		}
		time.Sleep(d)
	}
}

// basename returns the report header's program name.
func basename(argv0 string) string {
	return filepath.Base(argv0)
}
