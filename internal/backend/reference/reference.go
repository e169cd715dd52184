//go:build !noreference

// Package reference is a deliberately plain backend: it keeps no input
// histograms and re-derives every input by scanning incoming edges, walking
// the combinational part of the circuit in topological order after each
// applied effect. It exists to cross-check the direct backend and requires
// a circuit without combinational loops.
//
// Build with -tags noreference to leave it out.
package reference

import (
	"fmt"
	"log/slog"

	"github.com/roach88/redpiler/internal/backend/direct"
	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/monitor"
	"github.com/roach88/redpiler/internal/schedule"
	"github.com/roach88/redpiler/internal/world"
)

// Errors are shared with the direct backend so callers can match either.
var (
	ErrNotCompiled     = direct.ErrNotCompiled
	ErrAlreadyCompiled = direct.ErrAlreadyCompiled
	ErrUnknownPosition = direct.ErrUnknownPosition
	ErrNotInteractive  = direct.ErrNotInteractive
)

type state struct {
	powered bool
	locked  bool
	power   uint8
	changed bool
	// last front/side input seen by a repeater
	front, side bool
}

// Backend is the reference evaluator. The zero value is uncompiled.
type Backend struct {
	g        *graph.Graph
	incoming [][]int
	outgoing [][]int
	order    []int // propagating nodes, topologically sorted
	sinks    []int // lamps and trapdoors
	repeat   []int // repeaters
	states   []state
	blocks   []blocks.Block
	posMap   map[blocks.BlockPos]int
	sched    *schedule.Scheduler
	drained  []schedule.Entry
	compiled bool

	// scratch for settle
	moved   []bool
	reached []bool
	walk    []int
	react   []int
}

// New creates an uncompiled backend.
func New() *Backend {
	return &Backend{}
}

// Compiled reports whether a circuit is loaded.
func (b *Backend) Compiled() bool {
	return b.compiled
}

// Compile loads g. Any combinational loop is an error.
func (b *Backend) Compile(g *graph.Graph, ticks []world.TickEntry, mon *monitor.TaskMonitor) error {
	if b.compiled {
		return ErrAlreadyCompiled
	}
	if mon == nil {
		mon = monitor.New()
	}
	mon.SetMessage("validating graph")
	if err := graph.Check(g, graph.RequireAcyclic); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	if err := mon.Check(); err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	mon.SetMessage("ordering nodes")
	mon.SetMaxProgress(len(g.Nodes))
	nb := &Backend{
		g:        g,
		incoming: g.Incoming(),
		outgoing: g.Outgoing(),
		states:   make([]state, len(g.Nodes)),
		moved:    make([]bool, len(g.Nodes)),
		reached:  make([]bool, len(g.Nodes)),
		blocks:   make([]blocks.Block, len(g.Nodes)),
		posMap:   make(map[blocks.BlockPos]int, len(g.Nodes)),
		sched:    schedule.New(len(g.Nodes)),
	}
	nb.order = topoOrder(g)
	for i, n := range g.Nodes {
		nb.states[i] = state{
			powered: n.State.Powered,
			locked:  n.Type.Kind == graph.Repeater && n.State.RepeaterLocked,
			power:   n.State.OutputStrength,
		}
		switch {
		case n.Type.Kind == graph.Lamp || n.Type.Kind == graph.Trapdoor:
			nb.sinks = append(nb.sinks, i)
		case n.Type.Kind.IsRepeater():
			nb.repeat = append(nb.repeat, i)
		}
		if n.Block != nil {
			nb.blocks[i] = n.Block.Block
			nb.posMap[n.Block.Pos] = i
		}
		mon.IncProgress()
	}
	for _, i := range nb.repeat {
		nb.states[i].front = nb.level(i, graph.LinkDefault) > 0
		nb.states[i].side = nb.level(i, graph.LinkSide) > 0
	}
	for _, t := range ticks {
		i, ok := nb.posMap[t.Pos]
		if !ok {
			return fmt.Errorf("compile: initial tick at %s: %w", t.Pos, ErrUnknownPosition)
		}
		if t.TicksLeft > schedule.NumSlots {
			return fmt.Errorf("compile: initial tick at %s: delay %d exceeds %d", t.Pos, t.TicksLeft, schedule.NumSlots)
		}
		nb.sched.Schedule(uint32(i), max(t.TicksLeft, 1), t.Priority)
	}
	nb.compiled = true
	*b = *nb

	slog.Info("reference backend compiled", "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// topoOrder sorts the propagating nodes so every node follows the
// propagating nodes feeding it. Ties resolve by node index.
func topoOrder(g *graph.Graph) []int {
	indeg := make([]int, len(g.Nodes))
	adj := make([][]int, len(g.Nodes))
	for _, e := range g.Edges {
		if g.Nodes[e.Source].Type.Kind.Propagates() && g.Nodes[e.Target].Type.Kind.Propagates() {
			adj[e.Source] = append(adj[e.Source], e.Target)
			indeg[e.Target]++
		}
	}
	var queue, order []int
	for i, n := range g.Nodes {
		if n.Type.Kind.Propagates() && indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range adj[v] {
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
	}
	return order
}

// level scans the edges into i of the given type for the strongest signal.
func (b *Backend) level(i int, typ graph.LinkType) uint8 {
	var lvl uint8
	for _, ei := range b.incoming[i] {
		e := b.g.Edges[ei]
		if e.Type != typ {
			continue
		}
		if p := b.states[e.Source].power; p > e.Weight && p-e.Weight > lvl {
			lvl = p - e.Weight
		}
	}
	return lvl
}

func (b *Backend) set(i int, powered bool, power uint8) {
	s := &b.states[i]
	s.powered = powered
	s.power = power
	s.changed = true
}

// settle recomputes every combinational node in order after origin changed,
// then lets sinks and repeaters react to their settled inputs.
func (b *Backend) settle(origin int) {
	clear(b.moved)
	for _, i := range b.order {
		n := &b.g.Nodes[i]
		s := &b.states[i]
		var out uint8
		switch n.Type.Kind {
		case graph.Wire:
			out = max(b.level(i, graph.LinkDefault), b.level(i, graph.LinkSide))
		case graph.Torch:
			if b.level(i, graph.LinkDefault) == 0 {
				out = 15
			}
		case graph.Comparator:
			front := b.level(i, graph.LinkDefault)
			if n.ComparatorFarInput != nil {
				front = *n.ComparatorFarInput
			}
			out = n.Type.Mode.Output(front, b.level(i, graph.LinkSide))
		}
		if out != s.power {
			b.set(i, out > 0, out)
			b.moved[i] = true
		}
	}
	for _, i := range b.reactOrder(origin) {
		if b.g.Nodes[i].Type.Kind.IsRepeater() {
			b.reactRepeater(i)
			continue
		}
		powered := b.level(i, graph.LinkDefault) > 0
		if powered != b.states[i].powered {
			b.set(i, powered, 0)
		}
	}
}

// reactOrder lists the sinks and repeaters in the order a change at origin
// reaches them: origin's links in edge order, then breadth first through the
// combinational nodes whose output moved. Repeaters scheduled for the same
// tick and priority fire in this order, so it must match the direct
// backend's propagation queue. Nodes the walk misses follow in index order.
func (b *Backend) reactOrder(origin int) []int {
	clear(b.reached)
	b.react = b.react[:0]
	b.walk = append(b.walk[:0], origin)
	b.reached[origin] = true
	for q := 0; q < len(b.walk); q++ {
		for _, ei := range b.outgoing[b.walk[q]] {
			t := b.g.Edges[ei].Target
			if b.reached[t] {
				continue
			}
			switch kind := b.g.Nodes[t].Type.Kind; {
			case kind.Propagates():
				if b.moved[t] {
					b.reached[t] = true
					b.walk = append(b.walk, t)
				}
			case kind.IsRepeater() || kind == graph.Lamp || kind == graph.Trapdoor:
				b.reached[t] = true
				b.react = append(b.react, t)
			}
		}
	}
	for _, group := range [][]int{b.sinks, b.repeat} {
		for _, i := range group {
			if !b.reached[i] {
				b.react = append(b.react, i)
			}
		}
	}
	return b.react
}

func (b *Backend) reactRepeater(i int) {
	n := &b.g.Nodes[i]
	s := &b.states[i]
	front := b.level(i, graph.LinkDefault) > 0
	side := b.level(i, graph.LinkSide) > 0
	frontMoved, sideMoved := front != s.front, side != s.side
	s.front, s.side = front, side
	if !frontMoved && !sideMoved {
		return
	}
	if n.Type.Kind == graph.Repeater {
		if side != s.locked {
			s.locked = side
			s.changed = true
		}
		if s.locked {
			return
		}
	} else if !frontMoved {
		return
	}
	if front != s.powered {
		b.sched.Schedule(uint32(i), uint32(n.Type.Delay), priority(n.FacingDiode, front))
	}
}

func priority(facingDiode, turningOn bool) world.TickPriority {
	switch {
	case facingDiode:
		return world.PriorityHighest
	case !turningOn:
		return world.PriorityHigher
	default:
		return world.PriorityHigh
	}
}

// Tick applies the effects due now, settling after each one.
func (b *Backend) Tick() {
	if !b.compiled {
		return
	}
	b.drained = b.sched.Drain(b.drained[:0])
	for _, e := range b.drained {
		i := int(e.Node)
		n := &b.g.Nodes[i]
		s := &b.states[i]
		switch {
		case n.Type.Kind.IsRepeater():
			if n.Type.Kind == graph.Repeater && s.locked {
				break
			}
			front := b.level(i, graph.LinkDefault) > 0
			if s.powered && !front {
				b.set(i, false, 0)
			} else if !s.powered {
				b.set(i, true, 15)
				if !front {
					b.sched.Schedule(uint32(i), uint32(n.Type.Delay), priority(n.FacingDiode, false))
				}
			}
		case n.Type.Kind == graph.Button:
			if s.powered {
				b.set(i, false, 0)
			}
		}
		b.settle(i)
	}
}

// HasPendingTicks reports whether any delayed effect is outstanding.
func (b *Backend) HasPendingTicks() bool {
	return b.compiled && b.sched.HasPending()
}

// OnUseBlock toggles a lever or presses a button.
func (b *Backend) OnUseBlock(pos blocks.BlockPos) error {
	i, err := b.lookup(pos)
	if err != nil {
		return err
	}
	s := &b.states[i]
	switch b.g.Nodes[i].Type.Kind {
	case graph.Button:
		if s.powered {
			return nil
		}
		b.set(i, true, 15)
		b.sched.Schedule(uint32(i), direct.ButtonDelay, world.PriorityNormal)
	case graph.Lever:
		on := !s.powered
		b.set(i, on, power(on))
	default:
		return fmt.Errorf("use %s: %w", pos, ErrNotInteractive)
	}
	b.settle(i)
	return nil
}

// SetPressurePlate forces a pressure plate on or off.
func (b *Backend) SetPressurePlate(pos blocks.BlockPos, powered bool) error {
	i, err := b.lookup(pos)
	if err != nil {
		return err
	}
	if b.g.Nodes[i].Type.Kind != graph.PressurePlate {
		return fmt.Errorf("press %s: %w", pos, ErrNotInteractive)
	}
	if b.states[i].powered != powered {
		b.set(i, powered, power(powered))
		b.settle(i)
	}
	return nil
}

// Flush writes changed nodes to w; with ioOnly only boundary nodes.
func (b *Backend) Flush(w world.World, ioOnly bool) {
	if !b.compiled {
		return
	}
	for i := range b.states {
		s := &b.states[i]
		if !s.changed {
			continue
		}
		n := &b.g.Nodes[i]
		if n.Block == nil {
			s.changed = false
			continue
		}
		if ioOnly && !b.g.IsIO(i) {
			continue
		}
		b.blocks[i] = n.Type.Kind.StateBlock(b.blocks[i], s.powered, s.locked, s.power)
		w.SetBlock(n.Block.Pos, b.blocks[i])
		s.changed = false
	}
}

// Reset flushes (when w is non-nil), returns pending ticks to the world and
// unloads the circuit.
func (b *Backend) Reset(w world.World, ioOnly bool) {
	if !b.compiled {
		return
	}
	if w != nil {
		b.Flush(w, ioOnly)
		for _, p := range b.sched.Pending() {
			if n := b.g.Nodes[p.Node]; n.Block != nil {
				w.ScheduleTick(n.Block.Pos, p.Delay, p.Priority)
			}
		}
	}
	slog.Info("reference backend reset", "nodes", len(b.states), "io_only", ioOnly)
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
	PendingTick  bool            `json:"pending_tick,omitempty"`
}

// Inspect describes the node at pos.
func (b *Backend) Inspect(pos blocks.BlockPos) (Inspection, error) {
	i, err := b.lookup(pos)
	if err != nil {
		return Inspection{}, err
	}
	s := b.states[i]
	in := Inspection{
		Pos:          pos,
		Node:         i,
		Type:         b.g.Nodes[i].Type.String(),
		Powered:      s.powered,
		Locked:       s.locked,
		OutputPower:  s.power,
		DefaultLevel: b.level(i, graph.LinkDefault),
		SideLevel:    b.level(i, graph.LinkSide),
		PendingTick:  b.sched.IsScheduled(uint32(i)),
	}
	slog.Debug("inspect", "pos", pos.String(), "node", i, "type", in.Type, "output", in.OutputPower)
	return in, nil
}

func (b *Backend) lookup(pos blocks.BlockPos) (int, error) {
	if !b.compiled {
		return 0, ErrNotCompiled
	}
	i, ok := b.posMap[pos]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPosition, pos)
	}
	return i, nil
}

func power(on bool) uint8 {
	if on {
		return 15
	}
	return 0
}
