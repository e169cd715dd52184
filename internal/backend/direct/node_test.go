package direct

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
)

func TestForwardLink_RoundTrip(t *testing.T) {
	tests := []struct {
		id   NodeID
		side bool
		ss   uint8
	}{
		{0, false, 0},
		{1, true, 1},
		{42, false, 15},
		{MaxLinkTarget - 1, true, 15},
		{1 << 20, false, 7},
	}
	for _, tt := range tests {
		l := NewForwardLink(tt.id, tt.side, tt.ss)
		assert.Equal(t, tt.id, l.Node(), "node of %s", l)
		assert.Equal(t, tt.side, l.Side(), "side of %s", l)
		assert.Equal(t, tt.ss, l.SS(), "ss of %s", l)
	}
}

func TestForwardLink_Packing(t *testing.T) {
	l := NewForwardLink(3, true, 5)
	assert.Equal(t, uint32(3<<5|1<<4|5), l.data)
	assert.Equal(t, "->3(side=true,ss=5)", l.String())
}

func TestForwardLink_PanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { NewForwardLink(MaxLinkTarget, false, 0) })
	assert.Panics(t, func() { NewForwardLink(0, false, 16) })
	assert.NotPanics(t, func() { NewForwardLink(0, false, 15) })
}

func TestNodes_GetChecksBounds(t *testing.T) {
	ns := NewNodes(make([]Node, 3))

	id, err := ns.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 2, id.Index())

	_, err = ns.Get(3)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = ns.Get(-1)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	ns.At(id).OutputPower = 9
	assert.Equal(t, uint8(9), ns.Inner()[2].OutputPower)
	assert.Equal(t, 3, ns.Len())
}

func TestNodeInput_Level(t *testing.T) {
	var in NodeInput
	assert.Equal(t, uint8(0), in.Level())

	in.Add(0)
	in.Add(0)
	assert.Equal(t, uint8(0), in.Level(), "zero-strength links do not raise the level")
	assert.Equal(t, uint8(2), in.Count(0))

	in.Add(7)
	in.Add(12)
	assert.Equal(t, uint8(12), in.Level())

	in.Move(12, 3)
	assert.Equal(t, uint8(7), in.Level())

	in.Remove(7)
	assert.Equal(t, uint8(3), in.Level())
	assert.Equal(t, 3, in.Total())

	in.Move(3, 0)
	assert.Equal(t, uint8(0), in.Level())
	assert.Equal(t, uint8(3), in.Count(0))
}

func TestNodeInput_SharedBucket(t *testing.T) {
	var in NodeInput
	in.Add(15)
	in.Add(15)
	in.Remove(15)
	assert.Equal(t, uint8(15), in.Level(), "one link still delivers 15")
	in.Remove(15)
	assert.Equal(t, uint8(0), in.Level())
	assert.Equal(t, [16]uint8{}, in.Counts())
}

func TestNode_Size(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("layout is tuned for 64-bit targets")
	}
	assert.Equal(t, uintptr(128), unsafe.Sizeof(Node{}))
}

func TestNodeType_IsIOBlock(t *testing.T) {
	dot := blocks.Block{Kind: blocks.RedstoneWire}
	line := blocks.Block{Kind: blocks.RedstoneWire, Connections: 0b0011}

	assert.True(t, NodeType{Kind: graph.Wire}.IsIOBlock(dot))
	assert.False(t, NodeType{Kind: graph.Wire}.IsIOBlock(line))
	assert.True(t, NodeType{Kind: graph.Lamp}.IsIOBlock(blocks.Block{Kind: blocks.Lamp}))
	assert.True(t, NodeType{Kind: graph.Lever}.IsIOBlock(blocks.Block{Kind: blocks.Lever}))
	assert.False(t, NodeType{Kind: graph.Repeater, Delay: 1}.IsIOBlock(blocks.Block{Kind: blocks.Repeater}))
	assert.False(t, NodeType{Kind: graph.Torch}.IsIOBlock(blocks.Block{Kind: blocks.Torch}))
}

func TestComparatorOutput(t *testing.T) {
	far := func(v uint8) *uint8 { return &v }
	tests := []struct {
		name  string
		mode  blocks.ComparatorMode
		front uint8
		side  uint8
		far   *uint8
		want  uint8
	}{
		{"compare passes front", blocks.Compare, 10, 5, nil, 10},
		{"compare equal passes", blocks.Compare, 7, 7, nil, 7},
		{"compare blocked by side", blocks.Compare, 5, 10, nil, 0},
		{"subtract", blocks.Subtract, 10, 5, nil, 5},
		{"subtract floors at zero", blocks.Subtract, 5, 10, nil, 0},
		{"far input replaces front", blocks.Compare, 3, 5, far(12), 12},
		{"far input subtract", blocks.Subtract, 15, 4, far(6), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Node
			n.Type = NodeType{Kind: graph.Comparator, Mode: tt.mode}
			n.DefaultInputs.Add(tt.front)
			n.SideInputs.Add(tt.side)
			if tt.far != nil {
				n.ComparatorFarInput, n.HasFarInput = *tt.far, true
			}
			assert.Equal(t, tt.want, comparatorOutput(&n))
		})
	}
}
