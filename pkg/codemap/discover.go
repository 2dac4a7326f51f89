//go:build linux

package codemap

import (
	"errors"
	"sort"

	"github.com/ja7ad/causalprof/pkg/disasm"
	"github.com/ja7ad/causalprof/pkg/interval"
	"github.com/ja7ad/causalprof/pkg/types"
)

// discover partitions f's loaded range into basic blocks by a
// work-list forward walk from known entry points. Dynamic branch
// targets are logged and ignored, so the partition may merge code only
// reachable indirectly into its textual predecessor; attribution stays
// correct because it is address based.
func (m *Map) discover(f *Function) {
	if f.processed {
		return
	}
	rng := f.LoadedRange()

	entries := map[types.Addr]struct{}{}
	work := []types.Addr{rng.Base}

	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		if p == 0 {
			continue
		}
		if _, seen := entries[p]; seen {
			continue
		}
		entries[p] = struct{}{}

		// Walk forward from the new entry while instructions decode,
		// stay inside the function, and fall through.
		for cur := p; rng.Contains(cur); {
			inst, err := f.code.Decode(cur)
			if err != nil {
				if !errors.Is(err, disasm.ErrOutOfRange) {
					m.log.Warn("stopping block walk on undecodable instruction",
						"function", f.Name, "addr", cur.String(), "err", err)
				}
				break
			}
			if inst.Branches() {
				if t, ok := inst.Target(); !ok {
					m.log.Warn("ignoring dynamic branch target",
						"function", f.Name, "inst", inst.String())
				} else if rng.Contains(t) {
					work = append(work, t)
				}
			}
			if !inst.FallsThrough() {
				break
			}
			cur = inst.Next()
		}
	}

	// Sorted entry addresses become the block boundaries; consecutive
	// entries bound each block and the last block ends at the limit.
	sorted := make([]types.Addr, 0, len(entries))
	for p := range entries {
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	blocks := make([]*Block, 0, len(sorted))
	for i, base := range sorted {
		limit := rng.Limit
		if i+1 < len(sorted) {
			limit = sorted[i+1]
		}
		b := &Block{
			Range:  interval.New(base, limit),
			Entry:  i == 0,
			Length: f.countInstructions(interval.New(base, limit)),
		}
		if err := m.blocks.Insert(b.Range, b); err != nil {
			// Ranges from one partition are disjoint by construction;
			// a collision means two functions overlap in the symbol
			// table. Keep the earlier owner.
			m.log.Warn("skipping colliding block range",
				"function", f.Name, "range", b.Range.String(), "err", err)
			continue
		}
		blocks = append(blocks, b)
	}

	f.blocks = blocks
	f.processed = true
}

// countInstructions disassembles a block range once and returns how
// many instructions it holds.
func (f *Function) countInstructions(rng interval.Interval) int {
	n := 0
	for cur := rng.Base; rng.Contains(cur); {
		inst, err := f.code.Decode(cur)
		if err != nil {
			break
		}
		n++
		cur = inst.Next()
	}
	return n
}
