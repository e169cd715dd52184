package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
)

func TestCircuit_NodesArePlacedByIndex(t *testing.T) {
	c := NewCircuit()
	lever := c.Lever()
	lamp := c.Lamp(false)
	c.Link(lever, lamp, 0)

	g := c.Graph()
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, blocks.Pos(0, 0, 0), g.Nodes[lever].Block.Pos)
	assert.Equal(t, blocks.Pos(1, 0, 0), g.Nodes[lamp].Block.Pos)
	assert.Equal(t, blocks.Lamp, g.Nodes[lamp].Block.Block.Kind)
	assert.Equal(t, []graph.Edge{{Source: lever, Target: lamp}}, g.Edges)
	assert.Empty(t, graph.Validate(g))
}

func TestCircuit_BlocksReflectInitialState(t *testing.T) {
	c := NewCircuit()
	torch := c.Torch(true)
	wire := c.ConnectedWire(9)
	rep := c.Repeater(3)

	g := c.Graph()
	assert.True(t, g.Nodes[torch].Block.Block.Lit)
	assert.Equal(t, uint8(15), g.Nodes[torch].State.OutputStrength)
	assert.Equal(t, uint8(9), g.Nodes[wire].Block.Block.Power)
	assert.False(t, blocks.IsDot(g.Nodes[wire].Block.Block))
	assert.Equal(t, uint8(3), g.Nodes[rep].Block.Block.Delay)
}

func TestCircuit_GraphIsACopy(t *testing.T) {
	c := NewCircuit()
	w := c.Wire(0)
	g := c.Graph()

	c.Node(w).Block.Block.Power = 7
	c.Lamp(false)

	assert.Len(t, g.Nodes, 1)
	assert.Equal(t, uint8(0), g.Nodes[w].Block.Block.Power)
}

func TestCircuit_ConstantHasNoBlock(t *testing.T) {
	c := NewCircuit()
	k := c.Constant(4)
	g := c.Graph()
	assert.Nil(t, g.Nodes[k].Block)
	assert.True(t, g.Nodes[k].State.Powered)
}
