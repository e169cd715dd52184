package graphio

import (
	"errors"
	"fmt"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/trace"
	"github.com/roach88/redpiler/internal/world"
)

// Circuit is a loaded graph plus the names its file gave the nodes.
type Circuit struct {
	Name  string
	Graph *graph.Graph
	Ticks []world.TickEntry

	ids   []string
	index map[string]int
}

// Stats summarizes a circuit for reports.
type Stats struct {
	Nodes     int `json:"nodes"`
	Edges     int `json:"edges"`
	SideEdges int `json:"side_edges"`
	IONodes   int `json:"io_nodes"`
	Ticks     int `json:"initial_ticks"`
}

// Build resolves node ids and produces the graph. The result has passed
// graph.Validate.
func Build(f *File) (*Circuit, error) {
	if len(f.Nodes) == 0 {
		return nil, &LoadError{Code: ErrCodeNoNodes, Message: "circuit has no nodes"}
	}

	c := &Circuit{
		Name:  f.Name,
		Graph: &graph.Graph{Nodes: make([]graph.Node, 0, len(f.Nodes))},
		ids:   make([]string, 0, len(f.Nodes)),
		index: make(map[string]int, len(f.Nodes)),
	}
	for i, spec := range f.Nodes {
		if prev, dup := c.index[spec.ID]; dup {
			return nil, &LoadError{
				Code:    ErrCodeDuplicateID,
				Message: fmt.Sprintf("nodes[%d]: id %q already used by nodes[%d]", i, spec.ID, prev),
			}
		}
		node, err := buildNode(spec)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("nodes[%d] (%s): %v", i, spec.ID, err), Err: err}
		}
		c.index[spec.ID] = i
		c.ids = append(c.ids, spec.ID)
		c.Graph.Nodes = append(c.Graph.Nodes, node)
	}

	for i, e := range f.Edges {
		src, ok := c.index[e.From]
		if !ok {
			return nil, &LoadError{Code: ErrCodeUnknownNode, Message: fmt.Sprintf("edges[%d]: unknown node %q", i, e.From)}
		}
		dst, ok := c.index[e.To]
		if !ok {
			return nil, &LoadError{Code: ErrCodeUnknownNode, Message: fmt.Sprintf("edges[%d]: unknown node %q", i, e.To)}
		}
		typ := graph.LinkDefault
		if e.Side {
			typ = graph.LinkSide
		}
		c.Graph.Edges = append(c.Graph.Edges, graph.Edge{Source: src, Target: dst, Type: typ, Weight: e.Weight})
	}

	for i, t := range f.Ticks {
		p, err := world.ParsePriority(t.Priority)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("ticks[%d]: %v", i, err), Err: err}
		}
		c.Ticks = append(c.Ticks, world.TickEntry{TicksLeft: t.TicksLeft, Priority: p, Pos: t.Pos})
	}

	if errs := graph.Validate(c.Graph); len(errs) > 0 {
		verr := graph.ValidationErrors(errs)
		return nil, &LoadError{Code: ErrCodeInvalidGraph, Message: verr.Error(), Err: verr}
	}
	return c, nil
}

func buildNode(spec NodeSpec) (graph.Node, error) {
	kind, err := graph.ParseNodeKind(spec.Type)
	if err != nil {
		return graph.Node{}, err
	}
	t := graph.NodeType{Kind: kind}
	switch {
	case kind.IsRepeater():
		t.Delay = spec.Delay
	case kind == graph.Comparator:
		if t.Mode, err = blocks.ParseComparatorMode(spec.Mode); err != nil {
			return graph.Node{}, err
		}
	}

	state := graph.NodeState{
		Powered:        spec.Powered,
		RepeaterLocked: spec.Locked && kind == graph.Repeater,
		OutputStrength: defaultOutput(kind, spec.Powered),
	}
	if spec.Output != nil {
		state.OutputStrength = *spec.Output
		if kind == graph.Wire || kind == graph.Comparator || kind == graph.Constant {
			state.Powered = state.OutputStrength > 0
		}
	}

	node := graph.Node{Type: t, State: state, FacingDiode: spec.FacingDiode, ComparatorFarInput: spec.FarInput}
	if spec.Pos != nil {
		base := blocks.Block{Kind: kind.BlockKind(), Delay: t.Delay, Mode: t.Mode}
		if kind == graph.Wire {
			base.Connections = spec.Connections
		}
		node.Block = &graph.BlockRef{
			Pos:   *spec.Pos,
			Block: kind.StateBlock(base, state.Powered, state.RepeaterLocked, state.OutputStrength),
		}
	}
	return node, nil
}

// defaultOutput is the strength a powered source emits when the file does
// not say. Lamps and trapdoors never emit.
func defaultOutput(kind graph.NodeKind, powered bool) uint8 {
	if !powered {
		return 0
	}
	switch kind {
	case graph.Lamp, graph.Trapdoor, graph.Wire, graph.Comparator, graph.Constant:
		return 0
	}
	return 15
}

// Node returns the index of the node with id.
func (c *Circuit) Node(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// ID returns the id of node i.
func (c *Circuit) ID(i int) string {
	if i < 0 || i >= len(c.ids) {
		return ""
	}
	return c.ids[i]
}

// ErrNoBlock is returned by PosOf for nodes without a world block.
var ErrNoBlock = errors.New("node has no block")

// PosOf returns the world position of the node with id.
func (c *Circuit) PosOf(id string) (blocks.BlockPos, error) {
	i, ok := c.index[id]
	if !ok {
		return blocks.BlockPos{}, &LoadError{Code: ErrCodeUnknownNode, Message: fmt.Sprintf("unknown node %q", id)}
	}
	ref := c.Graph.Nodes[i].Block
	if ref == nil {
		return blocks.BlockPos{}, fmt.Errorf("%s: %w", id, ErrNoBlock)
	}
	return ref.Pos, nil
}

// IONodes lists the ids of world boundary nodes in graph order.
func (c *Circuit) IONodes() []string {
	var out []string
	for i := range c.Graph.Nodes {
		if c.Graph.IsIO(i) {
			out = append(out, c.ids[i])
		}
	}
	return out
}

// World returns an in-memory world holding every node's block.
func (c *Circuit) World() *world.MemWorld {
	w := world.NewMemWorld()
	snapshot := make([]world.Change, 0, len(c.Graph.Nodes))
	for _, n := range c.Graph.Nodes {
		if n.Block != nil {
			snapshot = append(snapshot, world.Change{Pos: n.Block.Pos, Block: n.Block.Block})
		}
	}
	w.Load(snapshot)
	return w
}

// Stats counts the circuit's parts.
func (c *Circuit) Stats() Stats {
	s := Stats{Nodes: len(c.Graph.Nodes), Edges: len(c.Graph.Edges), Ticks: len(c.Ticks)}
	for _, e := range c.Graph.Edges {
		if e.Type == graph.LinkSide {
			s.SideEdges++
		}
	}
	for i := range c.Graph.Nodes {
		if c.Graph.IsIO(i) {
			s.IONodes++
		}
	}
	return s
}

// Hash fingerprints the graph and its initial ticks. Node ids and the
// circuit name do not take part.
func (c *Circuit) Hash() (string, error) {
	nodes := make([]any, len(c.Graph.Nodes))
	for i, n := range c.Graph.Nodes {
		obj := map[string]any{
			"type":         n.Type.String(),
			"powered":      n.State.Powered,
			"locked":       n.State.RepeaterLocked,
			"output":       n.State.OutputStrength,
			"facing_diode": n.FacingDiode,
		}
		if n.Block != nil {
			obj["pos"] = trace.PosValue(n.Block.Pos)
			obj["block"] = trace.BlockValue(n.Block.Block)
		}
		if n.ComparatorFarInput != nil {
			obj["far_input"] = *n.ComparatorFarInput
		}
		nodes[i] = obj
	}
	edges := make([]any, len(c.Graph.Edges))
	for i, e := range c.Graph.Edges {
		edges[i] = map[string]any{
			"source": e.Source,
			"target": e.Target,
			"type":   e.Type.String(),
			"weight": e.Weight,
		}
	}
	ticks := make([]any, len(c.Ticks))
	for i, t := range c.Ticks {
		ticks[i] = map[string]any{
			"pos":        trace.PosValue(t.Pos),
			"ticks_left": t.TicksLeft,
			"priority":   t.Priority.String(),
		}
	}
	fp, err := trace.Hash(trace.DomainGraph, map[string]any{"nodes": nodes, "edges": edges, "ticks": ticks})
	if err != nil {
		return "", fmt.Errorf("hash circuit: %w", err)
	}
	return trace.FormatFingerprint(fp), nil
}
