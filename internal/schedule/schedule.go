// Package schedule implements the delayed-effect queue used by the backends.
//
// Ticks are bucketed in a ring of NumSlots slots, one per upcoming tick; each
// slot holds one FIFO per priority. A node has at most one live entry: a new
// Schedule for the same node supersedes the previous one, which stays in its
// slot as a stale entry and is skipped on drain.
package schedule

import (
	"fmt"
	"math/bits"

	"github.com/roach88/redpiler/internal/world"
)

// NumSlots is the ring size; delays range over 1..NumSlots.
const NumSlots = 16

var _ [-int(NumSlots & (NumSlots - 1))]byte // power of two

type entry struct {
	node uint32
	gen  uint32
}

type slot [world.NumPriorities][]entry

// Entry is a live scheduled effect returned by Drain.
type Entry struct {
	Node     uint32
	Priority world.TickPriority
}

// Pending is a live scheduled effect with its remaining delay.
type Pending struct {
	Node     uint32
	Delay    uint32
	Priority world.TickPriority
}

// Scheduler holds the delayed effects for a fixed set of nodes.
//
// Not safe for concurrent use; it belongs to the single goroutine driving
// the backend.
type Scheduler struct {
	slots    [NumSlots]slot
	occupied uint16 // bit i set when slot i holds any entry, live or stale
	pos      uint32
	gens     []uint32
	live     []bool
	pending  int
}

// New creates a scheduler for nodes 0..n-1.
func New(n int) *Scheduler {
	return &Scheduler{
		gens: make([]uint32, n),
		live: make([]bool, n),
	}
}

// Schedule arranges for node to fire on the delay-th upcoming Drain,
// replacing any entry the node already has. Delay 0 or above NumSlots is a
// caller bug and panics.
func (s *Scheduler) Schedule(node uint32, delay uint32, priority world.TickPriority) {
	if delay == 0 || delay > NumSlots {
		panic(fmt.Sprintf("schedule: delay %d outside 1..%d", delay, NumSlots))
	}
	if priority >= world.NumPriorities {
		panic(fmt.Sprintf("schedule: invalid priority %d", priority))
	}
	s.gens[node]++
	if !s.live[node] {
		s.live[node] = true
		s.pending++
	}
	idx := (s.pos + delay - 1) % NumSlots
	s.slots[idx][priority] = append(s.slots[idx][priority], entry{node: node, gen: s.gens[node]})
	s.occupied |= 1 << idx
}

// Cancel drops the node's live entry, if any.
func (s *Scheduler) Cancel(node uint32) {
	if !s.live[node] {
		return
	}
	s.gens[node]++
	s.live[node] = false
	s.pending--
}

// IsScheduled reports whether node has a live entry.
func (s *Scheduler) IsScheduled(node uint32) bool {
	return s.live[node]
}

// HasPending reports whether any live entry remains.
func (s *Scheduler) HasPending() bool {
	return s.pending > 0
}

// Len returns the number of live entries.
func (s *Scheduler) Len() int {
	return s.pending
}

// Drain removes the live entries of the current tick, appends them to buf
// in priority order (FIFO within a priority) and advances to the next tick.
// The drained nodes are no longer scheduled when Drain returns.
func (s *Scheduler) Drain(buf []Entry) []Entry {
	idx := s.pos
	s.pos = (s.pos + 1) % NumSlots
	if s.occupied&(1<<idx) == 0 {
		return buf
	}
	sl := &s.slots[idx]
	for p := range sl {
		for _, e := range sl[p] {
			if !s.live[e.node] || s.gens[e.node] != e.gen {
				continue
			}
			s.live[e.node] = false
			s.pending--
			buf = append(buf, Entry{Node: e.node, Priority: world.TickPriority(p)})
		}
		sl[p] = sl[p][:0]
	}
	s.occupied &^= 1 << idx
	return buf
}

// NextDelay returns the delay until the nearest slot holding entries, or 0
// if the ring is empty. Stale entries can make it report a slot that
// drains nothing.
func (s *Scheduler) NextDelay() uint32 {
	if s.occupied == 0 {
		return 0
	}
	rotated := bits.RotateLeft16(s.occupied, -int(s.pos))
	return uint32(bits.TrailingZeros16(rotated)) + 1
}

// Pending lists the live entries in firing order with their remaining
// delay, where delay 1 fires on the next Drain.
func (s *Scheduler) Pending() []Pending {
	var out []Pending
	for d := uint32(0); d < NumSlots; d++ {
		idx := (s.pos + d) % NumSlots
		if s.occupied&(1<<idx) == 0 {
			continue
		}
		for p, q := range s.slots[idx] {
			for _, e := range q {
				if s.live[e.node] && s.gens[e.node] == e.gen {
					out = append(out, Pending{Node: e.node, Delay: d + 1, Priority: world.TickPriority(p)})
				}
			}
		}
	}
	return out
}
