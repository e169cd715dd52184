package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/world"
)

func lampAt(x int32, lit bool) world.Change {
	return world.Change{Pos: blocks.Pos(x, 0, 0), Block: blocks.Block{Kind: blocks.Lamp, Lit: lit}}
}

func TestTrace_MarshalLines(t *testing.T) {
	var tr Trace
	tr.Add(1, []world.Change{lampAt(2, true)})
	tr.Add(2, nil)
	tr.Add(3, []world.Change{
		lampAt(2, false),
		{Pos: blocks.Pos(0, 1, -1), Block: blocks.Block{Kind: blocks.RedstoneWire, Power: 14, Connections: 5}},
	})
	require.Equal(t, 2, tr.Len(), "empty flushes are dropped")

	got, err := tr.MarshalLines()
	require.NoError(t, err)
	want := `{"changes":[{"block":{"kind":"redstone_lamp","lit":true},"pos":{"x":2,"y":0,"z":0}}],"tick":1}` + "\n" +
		`{"changes":[{"block":{"kind":"redstone_lamp","lit":false},"pos":{"x":2,"y":0,"z":0}},` +
		`{"block":{"connections":5,"kind":"redstone_wire","power":14},"pos":{"x":0,"y":1,"z":-1}}],"tick":3}` + "\n"
	assert.Equal(t, want, string(got))
}

func TestTrace_AddCopiesChanges(t *testing.T) {
	changes := []world.Change{lampAt(0, true)}
	var tr Trace
	tr.Add(1, changes)
	changes[0] = lampAt(9, false)
	assert.Equal(t, lampAt(0, true), tr.Events[0].Changes[0])
}

func TestBlockValue_KindProperties(t *testing.T) {
	tests := []struct {
		name  string
		block blocks.Block
		want  map[string]any
	}{
		{"repeater", blocks.Block{Kind: blocks.Repeater, Delay: 2, Powered: true, Lit: true},
			map[string]any{"kind": "repeater", "delay": uint8(2), "locked": false, "powered": true}},
		{"comparator", blocks.Block{Kind: blocks.Comparator, Mode: blocks.Subtract, Power: 3},
			map[string]any{"kind": "comparator", "mode": blocks.Subtract.String(), "powered": false, "power": uint8(3)}},
		{"torch", blocks.Block{Kind: blocks.Torch, Lit: true, Power: 15},
			map[string]any{"kind": "redstone_torch", "lit": true}},
		{"lever", blocks.Block{Kind: blocks.Lever, Powered: true},
			map[string]any{"kind": "lever", "powered": true}},
		{"solid", blocks.Block{Kind: blocks.Solid, Powered: true},
			map[string]any{"kind": "stone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BlockValue(tt.block))
		})
	}
}
