//go:build linux

// Package counter stores the progress and transaction counters the
// application declares. Counters are registered once per call site
// during startup and incremented lock-free by application code; the
// profiler reads them with atomic snapshots across a round.
package counter

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind distinguishes the declared counter flavors.
type Kind uint8

const (
	Progress Kind = iota + 1
	Begin
	End
)

func (k Kind) String() string {
	switch k {
	case Progress:
		return "progress"
	case Begin:
		return "transaction begin"
	case End:
		return "transaction end"
	default:
		return "unknown"
	}
}

// Counter is one declared counter. The value lives in application
// memory; the registry only keeps the pointer. Counters are immortal
// for the process's lifetime.
type Counter struct {
	Kind Kind
	File string
	Line int

	value *uint64
}

// Value atomically reads the counter's current value.
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(c.value)
}

func (c *Counter) String() string {
	return fmt.Sprintf("%s counter at %s:%d", c.Kind, c.File, c.Line)
}

// Registry owns all declared counters, grouped by kind.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*Counter
	kind map[Kind][]*Counter
	log  *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		byID: map[string]*Counter{},
		kind: map[Kind][]*Counter{},
		log:  log,
	}
}

// Register declares a counter for the given call site. Registration is
// idempotent per (kind, file, line): repeated calls return the
// original counter, so racing first increments at one site register
// exactly once.
func (r *Registry) Register(k Kind, file string, line int, addr *uint64) *Counter {
	id := fmt.Sprintf("%d:%s:%d", k, file, line)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		return c
	}
	c := &Counter{Kind: k, File: file, Line: line, value: addr}
	r.byID[id] = c
	r.kind[k] = append(r.kind[k], c)
	r.log.Info("found counter", "kind", k.String(), "site", fmt.Sprintf("%s:%d", file, line))
	return c
}

// Counters returns the registered counters of one kind, in
// registration order.
func (r *Registry) Counters(k Kind) []*Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Counter, len(r.kind[k]))
	copy(out, r.kind[k])
	return out
}

// Len returns the total number of registered counters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Value pairs a counter with a value read at snapshot time.
type Value struct {
	Counter *Counter
	Value   uint64
}

// Snapshot atomically reads every counter. Two snapshots bracket a
// round; their differences are the round's counter deltas.
func (r *Registry) Snapshot() []Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Value, 0, len(r.byID))
	for _, k := range []Kind{Progress, Begin, End} {
		for _, c := range r.kind[k] {
			out = append(out, Value{Counter: c, Value: c.Value()})
		}
	}
	return out
}
