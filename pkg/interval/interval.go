// Package interval provides the half-open address range used as the
// key for every code map in the profiler. Two intervals are treated as
// equal for lookup purposes when they overlap, so a unit interval
// built from a sampled pointer finds whichever range contains it.
package interval

import (
	"fmt"

	"github.com/ja7ad/causalprof/pkg/types"
)

// Interval is a half-open address range [Base, Limit).
type Interval struct {
	Base  types.Addr
	Limit types.Addr
}

// New returns the interval [base, limit).
func New(base, limit types.Addr) Interval {
	return Interval{Base: base, Limit: limit}
}

// Point returns the unit interval [p, p+1), used to look up the range
// containing a sampled pointer.
func Point(p types.Addr) Interval {
	return Interval{Base: p, Limit: p + 1}
}

// Contains reports whether p falls inside the interval.
func (i Interval) Contains(p types.Addr) bool {
	return p >= i.Base && p < i.Limit
}

// Len returns the size of the interval in bytes.
func (i Interval) Len() uint64 {
	return uint64(i.Limit - i.Base)
}

// Before reports whether i sorts strictly below other. Intervals are
// totally ordered by Limit <= other.Base; neither-before means the two
// ranges overlap and compare equal for map lookup.
func (i Interval) Before(other Interval) bool {
	return i.Limit <= other.Base
}

// Overlaps reports whether the two intervals share at least one address.
func (i Interval) Overlaps(other Interval) bool {
	return !i.Before(other) && !other.Before(i)
}

// Shift returns the interval displaced by off. Used to move symbol
// table ranges to their runtime location in position-independent
// images.
func (i Interval) Shift(off types.Addr) Interval {
	return Interval{Base: i.Base + off, Limit: i.Limit + off}
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s,%s)", i.Base, i.Limit)
}
