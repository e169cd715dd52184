package testutil

import (
	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
)

// Circuit builds small compiled graphs for tests. Node i sits at (i, 0, 0).
//
// Builder methods return the new node's index so tests can wire edges by
// name:
//
//	c := testutil.NewCircuit()
//	lever := c.Lever()
//	lamp := c.Lamp(false)
//	c.Link(lever, lamp, 0)
type Circuit struct {
	g graph.Graph
}

// NewCircuit creates an empty circuit.
func NewCircuit() *Circuit {
	return &Circuit{}
}

// Pos returns the position of node i.
func Pos(i int) blocks.BlockPos {
	return blocks.Pos(int32(i), 0, 0)
}

// Add appends a node with a block matching its kind and returns its index.
func (c *Circuit) Add(t graph.NodeType, state graph.NodeState) int {
	i := len(c.g.Nodes)
	block := t.Kind.StateBlock(blocks.Block{Kind: t.Kind.BlockKind(), Delay: t.Delay, Mode: t.Mode},
		state.Powered, state.RepeaterLocked, state.OutputStrength)
	c.g.Nodes = append(c.g.Nodes, graph.Node{
		Type:  t,
		Block: &graph.BlockRef{Pos: Pos(i), Block: block},
		State: state,
	})
	return i
}

func (c *Circuit) Lever() int {
	return c.Add(graph.NodeType{Kind: graph.Lever}, graph.NodeState{})
}

func (c *Circuit) Button() int {
	return c.Add(graph.NodeType{Kind: graph.Button}, graph.NodeState{})
}

func (c *Circuit) Plate() int {
	return c.Add(graph.NodeType{Kind: graph.PressurePlate}, graph.NodeState{})
}

func (c *Circuit) Lamp(lit bool) int {
	return c.Add(graph.NodeType{Kind: graph.Lamp}, graph.NodeState{Powered: lit})
}

// Torch adds a torch; lit torches output 15.
func (c *Circuit) Torch(lit bool) int {
	return c.Add(graph.NodeType{Kind: graph.Torch}, graph.NodeState{Powered: lit, OutputStrength: power(lit)})
}

// Wire adds a dot (a wire with no connections).
func (c *Circuit) Wire(level uint8) int {
	return c.Add(graph.NodeType{Kind: graph.Wire}, graph.NodeState{Powered: level > 0, OutputStrength: level})
}

// ConnectedWire adds a wire that is not a dot.
func (c *Circuit) ConnectedWire(level uint8) int {
	i := c.Wire(level)
	c.g.Nodes[i].Block.Block.Connections = 0b0101
	return i
}

func (c *Circuit) Repeater(delay uint8) int {
	return c.Add(graph.NodeType{Kind: graph.Repeater, Delay: delay}, graph.NodeState{})
}

func (c *Circuit) SimpleRepeater(delay uint8) int {
	return c.Add(graph.NodeType{Kind: graph.SimpleRepeater, Delay: delay}, graph.NodeState{})
}

func (c *Circuit) Comparator(mode blocks.ComparatorMode, output uint8) int {
	return c.Add(graph.NodeType{Kind: graph.Comparator, Mode: mode}, graph.NodeState{Powered: output > 0, OutputStrength: output})
}

// Constant adds a fixed source with no world block.
func (c *Circuit) Constant(strength uint8) int {
	i := len(c.g.Nodes)
	c.g.Nodes = append(c.g.Nodes, graph.Node{
		Type:  graph.NodeType{Kind: graph.Constant},
		State: graph.NodeState{Powered: strength > 0, OutputStrength: strength},
	})
	return i
}

// Link adds a default-input edge.
func (c *Circuit) Link(src, dst int, weight uint8) {
	c.g.Edges = append(c.g.Edges, graph.Edge{Source: src, Target: dst, Type: graph.LinkDefault, Weight: weight})
}

// Side adds a side-input edge.
func (c *Circuit) Side(src, dst int, weight uint8) {
	c.g.Edges = append(c.g.Edges, graph.Edge{Source: src, Target: dst, Type: graph.LinkSide, Weight: weight})
}

// Node gives access to node i for tweaks not covered by the builders.
func (c *Circuit) Node(i int) *graph.Node {
	return &c.g.Nodes[i]
}

// Graph returns a copy of the circuit's graph; later builder calls do not
// affect it.
func (c *Circuit) Graph() *graph.Graph {
	g := &graph.Graph{
		Nodes: make([]graph.Node, len(c.g.Nodes)),
		Edges: append([]graph.Edge(nil), c.g.Edges...),
	}
	for i, n := range c.g.Nodes {
		if n.Block != nil {
			ref := *n.Block
			n.Block = &ref
		}
		g.Nodes[i] = n
	}
	return g
}

func power(on bool) uint8 {
	if on {
		return 15
	}
	return 0
}
