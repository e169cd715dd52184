// Package direct is the interpreting backend: it flattens a compiled graph
// into an arena of fixed-size node records joined by packed links and
// simulates it tick by tick.
//
// Inputs are never rescanned. Each node keeps a per-strength histogram of
// what its incoming links deliver, so a change on one link re-buckets one
// counter and the effective level is read from an occupancy mask.
//
// The backend is single-threaded. Every call runs to completion on the
// caller's goroutine, and within a call changes propagate in a fixed order:
// a node's new output reaches all of its links before any target is
// re-evaluated.
package direct

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/schedule"
	"github.com/roach88/redpiler/internal/world"
)

var (
	// ErrNotCompiled is returned by calls that need a compiled circuit.
	ErrNotCompiled = errors.New("backend not compiled")
	// ErrAlreadyCompiled is returned by Compile before the previous circuit was reset.
	ErrAlreadyCompiled = errors.New("backend already compiled; reset first")
	// ErrUnknownPosition is returned for a position no node was built from.
	ErrUnknownPosition = errors.New("no node at position")
	// ErrNotInteractive is returned when a block cannot be used or pressed.
	ErrNotInteractive = errors.New("block is not interactive")
)

// ButtonDelay is how long a pressed button stays down.
const ButtonDelay = 10

type blockSlot struct {
	pos   blocks.BlockPos
	block blocks.Block
	ok    bool
}

// Backend is the direct interpreter. The zero value is an uncompiled
// backend ready for Compile.
type Backend struct {
	nodes  Nodes
	blocks []blockSlot
	isIO   []bool
	posMap map[blocks.BlockPos]NodeID
	sched  *schedule.Scheduler

	worklist []NodeID
	queued   []bool
	drained  []schedule.Entry

	compiled bool
}

// New creates an uncompiled backend.
func New() *Backend {
	return &Backend{}
}

// Compiled reports whether a circuit is loaded.
func (b *Backend) Compiled() bool {
	return b.compiled
}

// Nodes exposes the arena. Empty when not compiled.
func (b *Backend) Nodes() *Nodes {
	return &b.nodes
}

// NodeAt returns the node built from the block at pos.
func (b *Backend) NodeAt(pos blocks.BlockPos) (NodeID, bool) {
	id, ok := b.posMap[pos]
	return id, ok
}

// IsIO reports whether the node is synchronized by an io-only flush.
func (b *Backend) IsIO(id NodeID) bool {
	return b.isIO[id]
}

// OnUseBlock applies a player interaction with the block at pos: a lever
// toggles, an unpressed button presses and releases after ButtonDelay ticks.
func (b *Backend) OnUseBlock(pos blocks.BlockPos) error {
	id, err := b.lookup(pos)
	if err != nil {
		return err
	}
	node := b.nodes.At(id)
	switch node.Type.Kind {
	case graph.Button:
		if node.Powered {
			return nil
		}
		b.setNode(id, true, 15)
		b.schedule(id, ButtonDelay, world.PriorityNormal)
	case graph.Lever:
		b.setNode(id, !node.Powered, boolPower(!node.Powered))
	default:
		return fmt.Errorf("use %s (%s): %w", pos, node.Type, ErrNotInteractive)
	}
	b.propagate()
	return nil
}

// SetPressurePlate forces the pressure plate at pos on or off.
func (b *Backend) SetPressurePlate(pos blocks.BlockPos, powered bool) error {
	id, err := b.lookup(pos)
	if err != nil {
		return err
	}
	node := b.nodes.At(id)
	if node.Type.Kind != graph.PressurePlate {
		return fmt.Errorf("press %s (%s): %w", pos, node.Type, ErrNotInteractive)
	}
	if node.Powered != powered {
		b.setNode(id, powered, boolPower(powered))
		b.propagate()
	}
	return nil
}

// Flush writes the state of changed nodes back to w. With ioOnly, only
// boundary nodes are written; the others stay marked as changed.
func (b *Backend) Flush(w world.World, ioOnly bool) {
	if !b.compiled {
		return
	}
	nodes := b.nodes.Inner()
	for i := range nodes {
		node := &nodes[i]
		if !node.Changed {
			continue
		}
		slot := &b.blocks[i]
		if !slot.ok {
			node.Changed = false
			continue
		}
		if ioOnly && !b.isIO[i] {
			continue
		}
		slot.block = node.Type.Kind.StateBlock(slot.block, node.Powered, node.Locked, node.OutputPower)
		w.SetBlock(slot.pos, slot.block)
		node.Changed = false
	}
}

// Reset tears down the compiled circuit. With a non-nil world the node
// state is flushed first (honoring ioOnly) and pending ticks are handed
// back to the world. Reset on an uncompiled backend does nothing.
func (b *Backend) Reset(w world.World, ioOnly bool) {
	if !b.compiled {
		return
	}
	if w != nil {
		b.Flush(w, ioOnly)
		handed := 0
		for _, p := range b.sched.Pending() {
			slot := b.blocks[p.Node]
			if !slot.ok {
				continue
			}
			w.ScheduleTick(slot.pos, p.Delay, p.Priority)
			handed++
		}
		slog.Debug("pending ticks handed back", "count", handed)
	}
	slog.Info("direct backend reset", "nodes", b.nodes.Len(), "io_only", ioOnly)
	*b = Backend{}
}

// Inspection is a read-only view of one node.
type Inspection struct {
	Pos          blocks.BlockPos `json:"pos"`
	Node         int             `json:"node"`
	Type         string          `json:"type"`
	Powered      bool            `json:"powered"`
	Locked       bool            `json:"locked,omitempty"`
	OutputPower  uint8           `json:"output_power"`
	DefaultLevel uint8           `json:"default_level"`
	SideLevel    uint8           `json:"side_level"`
	DefaultCount [16]uint8       `json:"default_counts"`
	SideCount    [16]uint8       `json:"side_counts"`
	Links        int             `json:"links"`
	FacingDiode  bool            `json:"facing_diode,omitempty"`
	PendingTick  bool            `json:"pending_tick,omitempty"`
	Changed      bool            `json:"changed,omitempty"`
	IO           bool            `json:"io,omitempty"`
}

// Inspect describes the node at pos without changing anything.
func (b *Backend) Inspect(pos blocks.BlockPos) (Inspection, error) {
	id, err := b.lookup(pos)
	if err != nil {
		return Inspection{}, err
	}
	node := b.nodes.At(id)
	in := Inspection{
		Pos:          pos,
		Node:         id.Index(),
		Type:         node.Type.String(),
		Powered:      node.Powered,
		Locked:       node.Locked,
		OutputPower:  node.OutputPower,
		DefaultLevel: node.DefaultInputs.Level(),
		SideLevel:    node.SideInputs.Level(),
		DefaultCount: node.DefaultInputs.Counts(),
		SideCount:    node.SideInputs.Counts(),
		Links:        len(node.Updates),
		FacingDiode:  node.FacingDiode,
		PendingTick:  node.PendingTick,
		Changed:      node.Changed,
		IO:           b.isIO[id],
	}
	slog.Debug("inspect",
		"pos", pos.String(),
		"node", in.Node,
		"type", in.Type,
		"powered", in.Powered,
		"output", in.OutputPower,
		"default_level", in.DefaultLevel,
		"side_level", in.SideLevel,
		"pending_tick", in.PendingTick,
	)
	return in, nil
}

func (b *Backend) lookup(pos blocks.BlockPos) (NodeID, error) {
	if !b.compiled {
		return 0, ErrNotCompiled
	}
	id, ok := b.posMap[pos]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPosition, pos)
	}
	return id, nil
}

func boolPower(on bool) uint8 {
	if on {
		return 15
	}
	return 0
}
