package interval

import (
	"fmt"
	"sort"

	"github.com/ja7ad/causalprof/pkg/types"
)

// Map is an ordered map keyed by pairwise-disjoint intervals. Entries
// are kept sorted by base address and looked up with a binary search,
// which is sufficient because disjointness makes overlap-equality
// unambiguous: at most one stored range can contain a given point.
//
// Map is not safe for concurrent use. The profiler writes it only from
// the profiler thread (after a single batch of inserts at init), so no
// locking is required there.
type Map[V any] struct {
	entries []entry[V]
}

type entry[V any] struct {
	key Interval
	val V
}

// Insert adds a range to the map. Ranges must be pairwise disjoint;
// inserting a range that overlaps an existing entry returns ErrOverlap
// and leaves the map unchanged.
func (m *Map[V]) Insert(key Interval, val V) error {
	if key.Limit <= key.Base {
		return fmt.Errorf("%w: %s", ErrEmptyRange, key)
	}
	i := sort.Search(len(m.entries), func(i int) bool {
		return !m.entries[i].key.Before(key)
	})
	if i < len(m.entries) && m.entries[i].key.Overlaps(key) {
		return fmt.Errorf("%w: %s overlaps %s", ErrOverlap, key, m.entries[i].key)
	}
	m.entries = append(m.entries, entry[V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[V]{key: key, val: val}
	return nil
}

// Lookup returns the value whose range contains p, or the zero value
// and false if p is not covered.
func (m *Map[V]) Lookup(p types.Addr) (V, bool) {
	key := Point(p)
	i := sort.Search(len(m.entries), func(i int) bool {
		return !m.entries[i].key.Before(key)
	})
	if i < len(m.entries) && m.entries[i].key.Contains(p) {
		return m.entries[i].val, true
	}
	var zero V
	return zero, false
}

// Len returns the number of stored ranges.
func (m *Map[V]) Len() int {
	return len(m.entries)
}

// Each calls fn for every entry in ascending base order.
func (m *Map[V]) Each(fn func(Interval, V)) {
	for _, e := range m.entries {
		fn(e.key, e.val)
	}
}
