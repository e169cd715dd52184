package direct

import (
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
)

// ErrOutOfBounds is returned by Nodes.Get for an index the arena does not hold.
var ErrOutOfBounds = errors.New("node index out of bounds")

// NodeID is a handle to a node in one Nodes arena.
//
// A NodeID is only meaningful for the arena that issued it. Using it with
// another arena is not detected: At indexes the backing slice directly, so a
// foreign handle either aliases an unrelated node or trips the runtime bounds
// check.
type NodeID uint32

// Index returns the handle's position in its arena.
func (id NodeID) Index() int {
	return int(id)
}

// Nodes owns the node records of one compiled circuit. Its length is fixed
// at construction.
type Nodes struct {
	nodes []Node
}

// NewNodes takes ownership of nodes.
func NewNodes(nodes []Node) Nodes {
	return Nodes{nodes: nodes}
}

// Get returns the handle for idx, or ErrOutOfBounds. This is the only
// checked way to obtain a NodeID.
func (ns *Nodes) Get(idx int) (NodeID, error) {
	if idx < 0 || idx >= len(ns.nodes) {
		return 0, fmt.Errorf("%w: %d (len %d)", ErrOutOfBounds, idx, len(ns.nodes))
	}
	return NodeID(idx), nil
}

// At returns the node behind id. id must come from this arena.
func (ns *Nodes) At(id NodeID) *Node {
	return &ns.nodes[id]
}

// Len returns the number of nodes.
func (ns *Nodes) Len() int {
	return len(ns.nodes)
}

// Inner exposes the backing slice for whole-arena passes.
func (ns *Nodes) Inner() []Node {
	return ns.nodes
}

// ForwardLink is a packed edge: target index in bits 5..31, side flag in
// bit 4, weight in bits 0..3.
type ForwardLink struct {
	data uint32
}

// MaxLinkTarget is one past the largest target index a ForwardLink can hold.
const MaxLinkTarget = 1 << 27

// NewForwardLink packs a link. A target at or beyond MaxLinkTarget or a
// weight above 15 means the graph was not clamped upstream; it panics.
func NewForwardLink(id NodeID, side bool, ss uint8) ForwardLink {
	if id.Index() >= MaxLinkTarget {
		panic(fmt.Sprintf("forward link target %d out of range", id))
	}
	if ss >= 16 {
		panic(fmt.Sprintf("forward link weight %d out of range", ss))
	}
	data := uint32(id)<<5 | uint32(ss)
	if side {
		data |= 1 << 4
	}
	return ForwardLink{data: data}
}

// Node returns the link target.
func (l ForwardLink) Node() NodeID {
	return NodeID(l.data >> 5)
}

// Side reports whether the link feeds the target's side input.
func (l ForwardLink) Side() bool {
	return l.data&(1<<4) != 0
}

// SS returns the strength lost across the link.
func (l ForwardLink) SS() uint8 {
	return uint8(l.data & 0b1111)
}

func (l ForwardLink) String() string {
	return fmt.Sprintf("->%d(side=%t,ss=%d)", l.Node(), l.Side(), l.SS())
}

// NodeType is the node kind with its delay or comparator mode.
type NodeType struct {
	Kind  graph.NodeKind
	Delay uint8
	Mode  blocks.ComparatorMode
}

// IsIOBlock reports whether a node of this type built from block must be
// kept in sync with the world.
func (t NodeType) IsIOBlock(block blocks.Block) bool {
	if blocks.IsDot(block) {
		return true
	}
	return t.Kind.IsIO()
}

func (t NodeType) String() string {
	return graph.NodeType(t).String()
}

// NodeInput counts, for each signal strength, how many incoming links
// currently deliver it. mask has bit k set while counts[k] > 0.
type NodeInput struct {
	counts [16]uint8
	mask   uint16
}

// Add counts one more link delivering ss.
func (in *NodeInput) Add(ss uint8) {
	in.counts[ss]++
	in.mask |= 1 << ss
}

// Remove forgets one link delivering ss.
func (in *NodeInput) Remove(ss uint8) {
	in.counts[ss]--
	if in.counts[ss] == 0 {
		in.mask &^= 1 << ss
	}
}

// Move re-buckets one link from old to new strength.
func (in *NodeInput) Move(old, new uint8) {
	in.Remove(old)
	in.Add(new)
}

// Level returns the strongest delivered signal, 0 if none.
func (in *NodeInput) Level() uint8 {
	if in.mask <= 1 {
		return 0
	}
	return uint8(bits.Len16(in.mask) - 1)
}

// Count returns how many links deliver ss.
func (in *NodeInput) Count(ss uint8) uint8 {
	return in.counts[ss]
}

// Counts returns a copy of all buckets.
func (in *NodeInput) Counts() [16]uint8 {
	return in.counts
}

// Total returns the number of links counted.
func (in *NodeInput) Total() int {
	t := 0
	for _, c := range in.counts {
		t += int(c)
	}
	return t
}

// Node is the runtime record of one component, padded to 128 bytes on
// 64-bit targets so records tile cache lines.
//
// Outgoing links live in one slice shared by the whole arena; Updates is a
// window into it.
type Node struct {
	Updates       []ForwardLink
	DefaultInputs NodeInput
	SideInputs    NodeInput
	Type          NodeType

	FacingDiode        bool
	ComparatorFarInput uint8
	HasFarInput        bool

	// Powered or lit
	Powered bool
	// Only for repeaters
	Locked      bool
	OutputPower uint8
	// Changed marks state not yet flushed to the world.
	Changed     bool
	PendingTick bool

	_ [57]byte
}

var _ [128 - unsafe.Sizeof(Node{})]byte

// FarInput returns the comparator far-input override, if any.
func (n *Node) FarInput() (uint8, bool) {
	return n.ComparatorFarInput, n.HasFarInput
}
