// Package world defines the external world collaborator the backends
// synchronize with, plus an in-memory implementation used by the engine,
// the CLI and tests.
package world

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/redpiler/internal/blocks"
)

// TickPriority orders scheduled ticks that fall on the same tick.
// Lower values run first.
type TickPriority uint8

const (
	PriorityHighest TickPriority = iota
	PriorityHigher
	PriorityHigh
	PriorityNormal
)

// NumPriorities is the number of distinct tick priorities.
const NumPriorities = 4

var priorityNames = [NumPriorities]string{"highest", "higher", "high", "normal"}

func (p TickPriority) String() string {
	if int(p) < NumPriorities {
		return priorityNames[p]
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// ParsePriority resolves a priority name; empty means normal.
func ParsePriority(s string) (TickPriority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	for i, n := range priorityNames {
		if strings.EqualFold(n, s) {
			return TickPriority(i), nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown tick priority %q", s)
}

func (p TickPriority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *TickPriority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// TickEntry is a block update scheduled in the world, expressed relative to
// the current tick.
type TickEntry struct {
	TicksLeft uint32          `json:"ticks_left"`
	Priority  TickPriority    `json:"priority"`
	Pos       blocks.BlockPos `json:"pos"`
}

// World is the externally owned block store the backends read at compile
// time and write on flush and reset.
type World interface {
	// Block returns the block at pos; Air if nothing is there.
	Block(pos blocks.BlockPos) blocks.Block
	// SetBlock stores b at pos and reports whether the stored value changed.
	SetBlock(pos blocks.BlockPos, b blocks.Block) bool
	// ScheduleTick asks the world to update pos after delay ticks.
	ScheduleTick(pos blocks.BlockPos, delay uint32, priority TickPriority)
}

// Change records one SetBlock that altered the world.
type Change struct {
	Pos   blocks.BlockPos `json:"pos"`
	Block blocks.Block    `json:"block"`
}

// MemWorld is a map-backed World. It remembers the changes made since the
// last TakeChanges call and the ticks handed to it by ScheduleTick.
type MemWorld struct {
	blocks  map[blocks.BlockPos]blocks.Block
	changes []Change
	ticks   []TickEntry
}

// NewMemWorld creates an empty world.
func NewMemWorld() *MemWorld {
	return &MemWorld{blocks: make(map[blocks.BlockPos]blocks.Block)}
}

// Block implements World.
func (w *MemWorld) Block(pos blocks.BlockPos) blocks.Block {
	return w.blocks[pos]
}

// SetBlock implements World.
func (w *MemWorld) SetBlock(pos blocks.BlockPos, b blocks.Block) bool {
	if old, ok := w.blocks[pos]; ok && old == b {
		return false
	}
	w.blocks[pos] = b
	w.changes = append(w.changes, Change{Pos: pos, Block: b})
	return true
}

// ScheduleTick implements World.
func (w *MemWorld) ScheduleTick(pos blocks.BlockPos, delay uint32, priority TickPriority) {
	w.ticks = append(w.ticks, TickEntry{TicksLeft: delay, Priority: priority, Pos: pos})
}

// TakeChanges returns and forgets the changes recorded since the last call.
func (w *MemWorld) TakeChanges() []Change {
	c := w.changes
	w.changes = nil
	return c
}

// ScheduledTicks returns the ticks handed back to the world, in call order.
func (w *MemWorld) ScheduledTicks() []TickEntry {
	return w.ticks
}

// Snapshot returns every non-air block sorted by position.
func (w *MemWorld) Snapshot() []Change {
	out := make([]Change, 0, len(w.blocks))
	for pos, b := range w.blocks {
		if b.Kind == blocks.Air {
			continue
		}
		out = append(out, Change{Pos: pos, Block: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}

// Load replaces the world's blocks with the given snapshot without
// recording changes.
func (w *MemWorld) Load(snapshot []Change) {
	w.blocks = make(map[blocks.BlockPos]blocks.Block, len(snapshot))
	for _, c := range snapshot {
		w.blocks[c.Pos] = c.Block
	}
	w.changes = nil
}
