// Package graph holds the compiled circuit graph handed to the backends.
//
// The graph is produced upstream: block classification, position-to-node
// mapping and weight clamping have already happened. This package only
// describes the shape, validates the structural contract the backends rely
// on, and analyzes combinational cycles.
package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/redpiler/internal/blocks"
)

// NodeKind is the simulated component type of a node.
type NodeKind uint8

const (
	Repeater NodeKind = iota
	SimpleRepeater
	Torch
	Comparator
	Lamp
	Button
	Lever
	PressurePlate
	Trapdoor
	Wire
	Constant
)

var nodeKindNames = [...]string{
	Repeater:       "repeater",
	SimpleRepeater: "simple_repeater",
	Torch:          "torch",
	Comparator:     "comparator",
	Lamp:           "lamp",
	Button:         "button",
	Lever:          "lever",
	PressurePlate:  "pressure_plate",
	Trapdoor:       "trapdoor",
	Wire:           "wire",
	Constant:       "constant",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("node_kind(%d)", uint8(k))
}

// ParseNodeKind resolves a node kind name.
func ParseNodeKind(s string) (NodeKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range nodeKindNames {
		if n == s {
			return NodeKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown node type %q", s)
}

func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *NodeKind) UnmarshalText(text []byte) error {
	v, err := ParseNodeKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// IsRepeater reports whether the kind is a (possibly non-locking) repeater.
func (k NodeKind) IsRepeater() bool {
	return k == Repeater || k == SimpleRepeater
}

// Propagates reports whether the node's output is recomputed from its inputs
// within the same tick. Only these kinds can form combinational loops.
func (k NodeKind) Propagates() bool {
	return k == Wire || k == Torch || k == Comparator
}

// IsIO reports whether the kind is always a world boundary component.
func (k NodeKind) IsIO() bool {
	switch k {
	case Lamp, Button, Lever, Trapdoor, PressurePlate:
		return true
	}
	return false
}

// BlockKind is the world block a node of this kind is flushed as.
func (k NodeKind) BlockKind() blocks.Kind {
	switch k {
	case Repeater, SimpleRepeater:
		return blocks.Repeater
	case Torch:
		return blocks.Torch
	case Comparator:
		return blocks.Comparator
	case Lamp:
		return blocks.Lamp
	case Button:
		return blocks.Button
	case Lever:
		return blocks.Lever
	case PressurePlate:
		return blocks.PressurePlate
	case Trapdoor:
		return blocks.Trapdoor
	case Wire:
		return blocks.RedstoneWire
	default:
		return blocks.RedstoneBlock
	}
}

// NodeType is a node kind plus its kind-specific parameter: the delay in
// ticks for repeaters, the mode for comparators.
type NodeType struct {
	Kind  NodeKind
	Delay uint8
	Mode  blocks.ComparatorMode
}

func (t NodeType) String() string {
	switch {
	case t.Kind.IsRepeater():
		return fmt.Sprintf("%s(%d)", t.Kind, t.Delay)
	case t.Kind == Comparator:
		return fmt.Sprintf("%s(%s)", t.Kind, t.Mode)
	default:
		return t.Kind.String()
	}
}

// BlockRef ties a node to the world block it was built from.
type BlockRef struct {
	Pos   blocks.BlockPos
	Block blocks.Block
}

// NodeState is the node's state at compile time.
type NodeState struct {
	Powered        bool
	RepeaterLocked bool
	OutputStrength uint8
}

// Node is one component of the compiled graph.
type Node struct {
	Type NodeType
	// Block is nil for nodes with no world counterpart (e.g. constants
	// synthesized by the upstream compiler).
	Block       *BlockRef
	State       NodeState
	FacingDiode bool
	// ComparatorFarInput, when set, replaces a comparator's rear input level.
	ComparatorFarInput *uint8
}

// LinkType selects which input of the target an edge feeds.
type LinkType uint8

const (
	LinkDefault LinkType = iota
	LinkSide
)

func (t LinkType) String() string {
	if t == LinkSide {
		return "side"
	}
	return "default"
}

// Edge carries the source's output to the target, reduced by Weight.
type Edge struct {
	Source int
	Target int
	Type   LinkType
	Weight uint8
}

// Graph is the compiled circuit. Node indices are positions in Nodes.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Outgoing groups edge indices by source node, preserving edge order.
func (g *Graph) Outgoing() [][]int {
	out := make([][]int, len(g.Nodes))
	for i, e := range g.Edges {
		if e.Source >= 0 && e.Source < len(g.Nodes) {
			out[e.Source] = append(out[e.Source], i)
		}
	}
	return out
}

// Incoming groups edge indices by target node, preserving edge order.
func (g *Graph) Incoming() [][]int {
	in := make([][]int, len(g.Nodes))
	for i, e := range g.Edges {
		if e.Target >= 0 && e.Target < len(g.Nodes) {
			in[e.Target] = append(in[e.Target], i)
		}
	}
	return in
}

// IsIO reports whether node i is a world boundary node: its block is a dot
// or its kind is one of the interactive or visible components.
func (g *Graph) IsIO(i int) bool {
	n := &g.Nodes[i]
	if n.Block != nil && blocks.IsDot(n.Block.Block) {
		return true
	}
	return n.Type.Kind.IsIO()
}

// StateBlock returns base updated to reflect a node of kind k with the given
// runtime state. Properties the kind does not drive are left untouched.
func (k NodeKind) StateBlock(base blocks.Block, powered, locked bool, power uint8) blocks.Block {
	b := base
	switch k {
	case Repeater, SimpleRepeater:
		b.Powered = powered
		b.Locked = locked
	case Comparator:
		b.Powered = power > 0
		b.Power = power
	case Torch, Lamp:
		b.Lit = powered
	case Wire:
		b.Power = power
	case Button, Lever, PressurePlate, Trapdoor:
		b.Powered = powered
	}
	return b
}
