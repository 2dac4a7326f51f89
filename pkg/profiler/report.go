//go:build linux

package profiler

import (
	"fmt"
	"io"
	"time"

	"github.com/ja7ad/causalprof/pkg/counter"
	"github.com/ja7ad/causalprof/pkg/engine"
	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/system/util"
)

// RoundSnapshot captures everything measured across one experiment
// round: what ran, for how long, and the counter values bracketing it.
type RoundSnapshot struct {
	Number    uint64
	Mode      engine.Mode
	Range     interval.Interval
	Delay     int64
	Requested uint64
	Executed  uint64
	ElapsedNs int64
	Before    []counter.Value
	After     []counter.Value
}

// CounterRate is one counter's movement over a round.
type CounterRate struct {
	Counter *counter.Counter
	Delta   uint64
	Hz      float64
}

// Result is the computed outcome of one round. AdjustedNs is the
// elapsed time with the inserted delay credited back in speedup mode;
// rates are computed against it so a successful virtual speedup shows
// up as a higher progress rate.
type Result struct {
	RoundSnapshot
	AdjustedNs int64
	Rates      []CounterRate
	// SmoothedHz is the running smoothed progress rate across rounds.
	SmoothedHz float64
}

// Accumulator turns round snapshots into results and keeps running
// aggregates for the end-of-run summary.
type Accumulator struct {
	count        int
	totalDelayNs int64
	sumHz        float64
	smoothed     *util.EMA
}

func NewAccumulator() *Accumulator {
	return &Accumulator{smoothed: util.NewEMA(0.5)}
}

// Apply computes one round's result and folds it into the aggregates.
func (a *Accumulator) Apply(s RoundSnapshot) Result {
	adjusted := s.ElapsedNs
	if s.Mode == engine.Speedup {
		adjusted -= int64(s.Executed) * s.Delay
		if adjusted < 0 {
			adjusted = 0
		}
	}

	res := Result{RoundSnapshot: s, AdjustedNs: adjusted}
	seconds := float64(adjusted) / float64(time.Second)

	var progressHz float64
	for i, after := range s.After {
		if i >= len(s.Before) || after.Counter != s.Before[i].Counter {
			continue
		}
		delta := util.DeltaU64(after.Value, s.Before[i].Value)
		hz := util.SafeDiv(float64(delta), seconds)
		res.Rates = append(res.Rates, CounterRate{Counter: after.Counter, Delta: delta, Hz: hz})
		if after.Counter.Kind == counter.Progress {
			progressHz += hz
		}
	}

	a.count++
	a.totalDelayNs += int64(s.Executed) * s.Delay
	a.sumHz += progressHz
	res.SmoothedHz = a.smoothed.Next(progressHz)
	return res
}

// Rounds returns how many rounds have been applied.
func (a *Accumulator) Rounds() int { return a.count }

// TotalDelay returns the cumulative delay inserted across all rounds.
func (a *Accumulator) TotalDelay() time.Duration {
	return time.Duration(a.totalDelayNs)
}

// AverageProgressHz returns the mean progress rate over all rounds.
func (a *Accumulator) AverageProgressHz() float64 {
	return util.SafeDiv(a.sumHz, float64(a.count))
}

// writeHeader writes the artifact preamble once at startup.
func writeHeader(w io.Writer, basename string, cyclePeriod, instPeriod uint64) {
	fmt.Fprintf(w, "basename\t%s\n", basename)
	fmt.Fprintf(w, "cycle period\t%d\n", cyclePeriod)
	fmt.Fprintf(w, "instruction period\t%d\n", instPeriod)
}

// writeResult writes one round's human-readable report.
func writeResult(w io.Writer, r Result) {
	fmt.Fprintf(w, "round %d %s %s delay %dns requested %d executed %d elapsed %s adjusted %s\n",
		r.Number, r.Mode, r.Range, r.Delay, r.Requested, r.Executed,
		time.Duration(r.ElapsedNs), time.Duration(r.AdjustedNs))
	for _, rate := range r.Rates {
		fmt.Fprintf(w, "  %s %s:%d delta %d rate %s\n",
			rate.Counter.Kind, rate.Counter.File, rate.Counter.Line,
			rate.Delta, util.FmtHz(rate.Hz))
	}
}

// writeSummary writes the end-of-run aggregate lines.
func writeSummary(w io.Writer, a *Accumulator) {
	fmt.Fprintf(w, "rounds\t%d\n", a.Rounds())
	fmt.Fprintf(w, "total inserted delay\t%s\n", a.TotalDelay())
	fmt.Fprintf(w, "average progress rate\t%s\n", util.FmtHz(a.AverageProgressHz()))
}
