package direct

import (
	"fmt"
	"log/slog"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/monitor"
	"github.com/roach88/redpiler/internal/schedule"
	"github.com/roach88/redpiler/internal/world"
)

// cancelCheckInterval is how many nodes are built between monitor checks.
const cancelCheckInterval = 1024

// Compile builds the arena for g and schedules the initial ticks. On error
// the backend stays uncompiled.
//
// Loops through torches or comparators are rejected, as are wire loops with
// a weight-0 link. Other wire loops are accepted because they always drain.
func (b *Backend) Compile(g *graph.Graph, ticks []world.TickEntry, mon *monitor.TaskMonitor) error {
	if b.compiled {
		return ErrAlreadyCompiled
	}
	if mon == nil {
		mon = monitor.New()
	}

	mon.SetMessage("validating graph")
	if err := graph.Check(g, graph.AllowMonotoneLoops); err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	mon.SetMessage("building nodes")
	mon.SetMaxProgress(len(g.Nodes) + len(ticks))

	out := g.Outgoing()
	links := make([]ForwardLink, 0, len(g.Edges))
	nodes := make([]Node, len(g.Nodes))
	slots := make([]blockSlot, len(g.Nodes))
	isIO := make([]bool, len(g.Nodes))
	posMap := make(map[blocks.BlockPos]NodeID, len(g.Nodes))

	for i := range g.Nodes {
		if i%cancelCheckInterval == 0 {
			if err := mon.Check(); err != nil {
				return fmt.Errorf("compile: %w", err)
			}
		}
		src := &g.Nodes[i]
		node := &nodes[i]
		node.Type = NodeType(src.Type)
		node.FacingDiode = src.FacingDiode
		if src.ComparatorFarInput != nil {
			node.ComparatorFarInput = *src.ComparatorFarInput
			node.HasFarInput = true
		}
		node.Powered = src.State.Powered
		node.Locked = src.Type.Kind == graph.Repeater && src.State.RepeaterLocked
		node.OutputPower = src.State.OutputStrength

		start := len(links)
		for _, ei := range out[i] {
			e := g.Edges[ei]
			links = append(links, NewForwardLink(NodeID(e.Target), e.Type == graph.LinkSide, e.Weight))
		}
		node.Updates = links[start:len(links):len(links)]

		if src.Block != nil {
			slots[i] = blockSlot{pos: src.Block.Pos, block: src.Block.Block, ok: true}
			posMap[src.Block.Pos] = NodeID(i)
			isIO[i] = node.Type.IsIOBlock(src.Block.Block)
		} else {
			isIO[i] = node.Type.Kind.IsIO()
		}
		mon.IncProgress()
	}

	// Seed every input histogram with what its links deliver right now.
	for _, e := range g.Edges {
		ss := decay(g.Nodes[e.Source].State.OutputStrength, e.Weight)
		target := &nodes[e.Target]
		if e.Type == graph.LinkSide {
			target.SideInputs.Add(ss)
		} else {
			target.DefaultInputs.Add(ss)
		}
	}

	mon.SetMessage("scheduling ticks")
	sched := schedule.New(len(nodes))
	for _, t := range ticks {
		id, ok := posMap[t.Pos]
		if !ok {
			return fmt.Errorf("compile: initial tick at %s: %w", t.Pos, ErrUnknownPosition)
		}
		if t.TicksLeft > schedule.NumSlots {
			return fmt.Errorf("compile: initial tick at %s: delay %d exceeds %d", t.Pos, t.TicksLeft, schedule.NumSlots)
		}
		sched.Schedule(uint32(id), max(t.TicksLeft, 1), t.Priority)
		nodes[id].PendingTick = true
		mon.IncProgress()
	}

	*b = Backend{
		nodes:    NewNodes(nodes),
		blocks:   slots,
		isIO:     isIO,
		posMap:   posMap,
		sched:    sched,
		worklist: make([]NodeID, 0, 64),
		queued:   make([]bool, len(nodes)),
		compiled: true,
	}
	mon.SetMessage("compiled")

	slog.Info("direct backend compiled",
		"nodes", len(nodes),
		"links", len(links),
		"ticks", len(ticks),
	)
	return nil
}

// decay is the strength delivered across a link of weight w.
func decay(power, w uint8) uint8 {
	if power > w {
		return power - w
	}
	return 0
}
