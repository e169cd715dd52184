package direct

import (
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/world"
)

// setNode changes a node's output and pushes the difference through its
// links. All links are re-bucketed before any target is evaluated; targets
// whose effective input moved are queued for propagate.
func (b *Backend) setNode(id NodeID, powered bool, power uint8) {
	node := b.nodes.At(id)
	old := node.OutputPower
	node.Powered = powered
	node.OutputPower = power
	node.Changed = true
	if old == power {
		return
	}

	for _, link := range node.Updates {
		w := link.SS()
		oldSS, newSS := decay(old, w), decay(power, w)
		if oldSS == newSS {
			continue
		}
		targetID := link.Node()
		target := b.nodes.At(targetID)
		in := &target.DefaultInputs
		if link.Side() {
			in = &target.SideInputs
		}
		before := in.Level()
		in.Move(oldSS, newSS)
		after := in.Level()
		if before == after {
			continue
		}
		// Repeaters only care whether an input is on.
		if target.Type.Kind.IsRepeater() && (before > 0) == (after > 0) {
			continue
		}
		b.enqueue(targetID)
	}
}

func (b *Backend) enqueue(id NodeID) {
	if b.queued[id] {
		return
	}
	b.queued[id] = true
	b.worklist = append(b.worklist, id)
}

// propagate evaluates queued nodes until none remain. Nodes queued while
// draining are appended and handled in the same pass.
func (b *Backend) propagate() {
	for i := 0; i < len(b.worklist); i++ {
		id := b.worklist[i]
		b.queued[id] = false
		b.updateNode(id)
	}
	b.worklist = b.worklist[:0]
}

func (b *Backend) schedule(id NodeID, delay uint8, priority world.TickPriority) {
	b.sched.Schedule(uint32(id), uint32(delay), priority)
	b.nodes.At(id).PendingTick = true
}

// updateNode reacts to an input change on id.
func (b *Backend) updateNode(id NodeID) {
	node := b.nodes.At(id)
	switch node.Type.Kind {
	case graph.Repeater:
		shouldLock := node.SideInputs.Level() > 0
		if shouldLock != node.Locked {
			node.Locked = shouldLock
			node.Changed = true
		}
		if node.Locked {
			return
		}
		b.updateRepeater(id, node)
	case graph.SimpleRepeater:
		b.updateRepeater(id, node)
	case graph.Torch:
		lit := node.DefaultInputs.Level() == 0
		if lit != node.Powered {
			b.setNode(id, lit, boolPower(lit))
		}
	case graph.Comparator:
		out := comparatorOutput(node)
		if out != node.OutputPower {
			b.setNode(id, out > 0, out)
		}
	case graph.Lamp, graph.Trapdoor:
		powered := node.DefaultInputs.Level() > 0
		if powered != node.Powered {
			b.setNode(id, powered, 0)
		}
	case graph.Wire:
		out := max(node.DefaultInputs.Level(), node.SideInputs.Level())
		if out != node.OutputPower {
			b.setNode(id, out > 0, out)
		}
	case graph.Button, graph.Lever, graph.PressurePlate, graph.Constant:
		// Driven only by interactions.
	}
}

// updateRepeater schedules the output flip when the front input disagrees
// with the output. A newer request replaces a pending one.
func (b *Backend) updateRepeater(id NodeID, node *Node) {
	shouldBePowered := node.DefaultInputs.Level() > 0
	if shouldBePowered == node.Powered {
		return
	}
	b.schedule(id, node.Type.Delay, repeaterPriority(node.FacingDiode, shouldBePowered))
}

func repeaterPriority(facingDiode, turningOn bool) world.TickPriority {
	switch {
	case facingDiode:
		return world.PriorityHighest
	case !turningOn:
		return world.PriorityHigher
	default:
		return world.PriorityHigh
	}
}

func comparatorOutput(node *Node) uint8 {
	front := node.DefaultInputs.Level()
	if far, ok := node.FarInput(); ok {
		front = far
	}
	return node.Type.Mode.Output(front, node.SideInputs.Level())
}
