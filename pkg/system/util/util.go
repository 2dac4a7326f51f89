//go:build linux

package util

import (
	"fmt"
	"strings"

	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/types"
)

// EMA is an exponential moving average, used to smooth the baseline
// progress rate between experiment rounds.
type EMA struct {
	alpha, prev float64
	ok          bool
}

func NewEMA(alpha float64) *EMA { return &EMA{alpha: alpha} }
func (e *EMA) Next(v float64) float64 {
	if !e.ok {
		e.prev, e.ok = v, true
		return v
	}
	e.prev = e.alpha*v + (1-e.alpha)*e.prev
	return e.prev
}

func DeltaU64(now, prev uint64) uint64 {
	if now >= prev {
		return now - prev
	}
	// counter wrapped or prev unset
	return 0
}

func SafeDiv(n, d float64) float64 {
	const eps = 1e-12
	if d > eps || d < -eps {
		return n / d
	}
	return 0
}

// ParseHexRange parses an address range of the form "0xBASE-0xLIMIT".
// The 0x prefixes are optional; the range must be non-empty.
func ParseHexRange(s string) (interval.Interval, error) {
	base, limit, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return interval.Interval{}, fmt.Errorf("range %q: want BASE-LIMIT", s)
	}
	b, err := types.ParseAddr(base)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("range %q: %w", s, err)
	}
	l, err := types.ParseAddr(limit)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("range %q: %w", s, err)
	}
	if l <= b {
		return interval.Interval{}, fmt.Errorf("range %q: limit must be above base", s)
	}
	return interval.New(b, l), nil
}

// FmtHz renders an events-per-second rate for the round report.
func FmtHz(v float64) string {
	return fmt.Sprintf("%.2f Hz", v)
}
