package direct

import "github.com/roach88/redpiler/internal/graph"

// Tick advances the circuit by one tick: every effect due now is applied in
// priority order and its consequences propagate to quiescence before the
// next effect. Effects scheduled during the tick land on later ticks.
func (b *Backend) Tick() {
	if !b.compiled {
		return
	}
	b.drained = b.sched.Drain(b.drained[:0])
	for _, e := range b.drained {
		id := NodeID(e.Node)
		b.nodes.At(id).PendingTick = false
		b.tickNode(id)
		b.propagate()
	}
}

// HasPendingTicks reports whether any delayed effect is outstanding.
func (b *Backend) HasPendingTicks() bool {
	return b.compiled && b.sched.HasPending()
}

func (b *Backend) tickNode(id NodeID) {
	node := b.nodes.At(id)
	switch node.Type.Kind {
	case graph.Repeater:
		if node.Locked {
			return
		}
		b.tickRepeater(id, node)
	case graph.SimpleRepeater:
		b.tickRepeater(id, node)
	case graph.Button:
		if node.Powered {
			b.setNode(id, false, 0)
		}
	default:
		// Ticks handed over by the world for combinational nodes just
		// re-evaluate them.
		b.updateNode(id)
	}
}

// tickRepeater applies a repeater's delayed flip. A repeater that turns on
// stays on for at least its delay, so a pulse shorter than the delay is
// stretched.
func (b *Backend) tickRepeater(id NodeID, node *Node) {
	shouldBePowered := node.DefaultInputs.Level() > 0
	if node.Powered && !shouldBePowered {
		b.setNode(id, false, 0)
	} else if !node.Powered {
		b.setNode(id, true, 15)
		if !shouldBePowered {
			b.schedule(id, node.Type.Delay, repeaterPriority(node.FacingDiode, false))
		}
	}
}
