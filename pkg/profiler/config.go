//go:build linux

package profiler

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/system/perf"
	"github.com/ja7ad/causalprof/pkg/system/util"
)

// EnvMode is the environment variable selecting the experiment mode.
const EnvMode = "CAUSAL_MODE"

// Mode selects how the profiler chooses experiments.
type Mode int

const (
	// Adaptive picks experiment targets from incoming samples.
	Adaptive Mode = iota
	// Dump prints every function's basic-block partition and exits.
	Dump
	// FixedSlowdown runs slowdown rounds on a configured range.
	FixedSlowdown
	// FixedSpeedup runs speedup rounds on a configured range.
	FixedSpeedup
)

func (m Mode) String() string {
	switch m {
	case Adaptive:
		return "adaptive"
	case Dump:
		return "dump"
	case FixedSlowdown:
		return "slowdown"
	case FixedSpeedup:
		return "speedup"
	default:
		return "unknown"
	}
}

// Config carries everything the profiler needs at start.
type Config struct {
	Mode   Mode
	Target interval.Interval
	Delay  int64

	Periods perf.Config
	// Window is how long one experiment round runs.
	Window time.Duration
	// Pause is the idle gap between rounds.
	Pause time.Duration
	// Exclude filters mapped images by path substring.
	Exclude []string

	// Out receives round reports and block statistics.
	Out io.Writer
	Log *slog.Logger
}

// DefaultConfig returns the adaptive-mode defaults.
func DefaultConfig() Config {
	return Config{
		Mode:    Adaptive,
		Delay:   int64(time.Millisecond),
		Periods: perf.DefaultConfig(),
		Window:  500 * time.Millisecond,
		Pause:   500 * time.Millisecond,
		Out:     os.Stderr,
		Log:     slog.Default(),
	}
}

// FromEnv builds a Config from CAUSAL_MODE. The accepted forms are:
//
//	(unset)                     adaptive experiments
//	dump                        dump block partitions and exit
//	+ 0xBASE-0xLIMIT DELAY_NS   fixed speedup experiments
//	- 0xBASE-0xLIMIT DELAY_NS   fixed slowdown experiments
//
// A malformed value is a fatal configuration error.
func FromEnv() (Config, error) {
	return parseMode(DefaultConfig(), os.Getenv(EnvMode))
}

func parseMode(cfg Config, s string) (Config, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return cfg, nil
	}
	if s == "dump" {
		cfg.Mode = Dump
		return cfg, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 3 {
		return cfg, fmt.Errorf("%w: %q: want {+|-} 0xBASE-0xLIMIT DELAY_NS", ErrBadMode, s)
	}
	switch fields[0] {
	case "+":
		cfg.Mode = FixedSpeedup
	case "-":
		cfg.Mode = FixedSlowdown
	default:
		return cfg, fmt.Errorf("%w: %q: leading sign must be + or -", ErrBadMode, s)
	}

	rng, err := util.ParseHexRange(fields[1])
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrBadMode, err)
	}
	cfg.Target = rng

	delay, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || delay <= 0 {
		return cfg, fmt.Errorf("%w: %q: delay must be a positive nanosecond count", ErrBadMode, fields[2])
	}
	cfg.Delay = delay
	return cfg, nil
}
