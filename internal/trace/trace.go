package trace

import (
	"bytes"
	"fmt"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/world"
)

// Event is the set of changes flushed at one tick.
type Event struct {
	Tick    int64
	Changes []world.Change
}

// Trace accumulates events in tick order.
type Trace struct {
	Events []Event
}

// Add appends the changes flushed at tick. Empty flushes are dropped.
func (t *Trace) Add(tick int64, changes []world.Change) {
	if len(changes) == 0 {
		return
	}
	t.Events = append(t.Events, Event{Tick: tick, Changes: append([]world.Change(nil), changes...)})
}

// Len returns the number of recorded events.
func (t *Trace) Len() int {
	return len(t.Events)
}

// MarshalLines renders one canonical JSON object per event, each followed
// by a newline.
func (t *Trace) MarshalLines() ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range t.Events {
		line, err := MarshalCanonical(EventValue(ev))
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", ev.Tick, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// EventValue is the canonical object form of an event.
func EventValue(ev Event) map[string]any {
	return map[string]any{
		"tick":    ev.Tick,
		"changes": ChangesValue(ev.Changes),
	}
}

// ChangesValue is the canonical array form of a change list.
func ChangesValue(changes []world.Change) []any {
	out := make([]any, len(changes))
	for i, c := range changes {
		out[i] = map[string]any{
			"pos":   PosValue(c.Pos),
			"block": BlockValue(c.Block),
		}
	}
	return out
}

// PosValue is the canonical object form of a position.
func PosValue(p blocks.BlockPos) map[string]any {
	return map[string]any{"x": p.X, "y": p.Y, "z": p.Z}
}

// BlockValue keeps only the properties meaningful to the block's kind, so
// two blocks that render the same also encode the same.
func BlockValue(b blocks.Block) map[string]any {
	obj := map[string]any{"kind": b.Kind.String()}
	switch b.Kind {
	case blocks.RedstoneWire:
		obj["power"] = b.Power
		obj["connections"] = b.Connections
	case blocks.Repeater:
		obj["delay"] = b.Delay
		obj["locked"] = b.Locked
		obj["powered"] = b.Powered
	case blocks.Comparator:
		obj["mode"] = b.Mode.String()
		obj["powered"] = b.Powered
		obj["power"] = b.Power
	case blocks.Torch, blocks.Lamp:
		obj["lit"] = b.Lit
	case blocks.Button, blocks.Lever, blocks.PressurePlate, blocks.Trapdoor:
		obj["powered"] = b.Powered
	}
	return obj
}
