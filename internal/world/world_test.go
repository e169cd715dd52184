package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/blocks"
)

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGHER")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigher, p)

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestMemWorld_RecordsOnlyRealChanges(t *testing.T) {
	w := NewMemWorld()
	lamp := blocks.Block{Kind: blocks.Lamp}
	lit := blocks.Block{Kind: blocks.Lamp, Lit: true}

	assert.True(t, w.SetBlock(blocks.Pos(0, 0, 0), lamp))
	assert.False(t, w.SetBlock(blocks.Pos(0, 0, 0), lamp))
	assert.True(t, w.SetBlock(blocks.Pos(0, 0, 0), lit))

	assert.Equal(t, []Change{
		{Pos: blocks.Pos(0, 0, 0), Block: lamp},
		{Pos: blocks.Pos(0, 0, 0), Block: lit},
	}, w.TakeChanges())
	assert.Empty(t, w.TakeChanges())
	assert.Equal(t, lit, w.Block(blocks.Pos(0, 0, 0)))
	assert.Equal(t, blocks.Air, w.Block(blocks.Pos(9, 9, 9)).Kind)
}

func TestMemWorld_SnapshotAndLoad(t *testing.T) {
	w := NewMemWorld()
	w.SetBlock(blocks.Pos(2, 0, 0), blocks.Block{Kind: blocks.Lever})
	w.SetBlock(blocks.Pos(1, 0, 0), blocks.Block{Kind: blocks.Lamp})
	w.SetBlock(blocks.Pos(3, 0, 0), blocks.Block{Kind: blocks.Air})

	snap := w.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, blocks.Pos(1, 0, 0), snap[0].Pos)

	other := NewMemWorld()
	other.Load(snap)
	assert.Equal(t, snap, other.Snapshot())
	assert.Empty(t, other.TakeChanges())
}

func TestMemWorld_ScheduleTick(t *testing.T) {
	w := NewMemWorld()
	w.ScheduleTick(blocks.Pos(1, 2, 3), 4, PriorityHigh)
	assert.Equal(t, []TickEntry{{TicksLeft: 4, Priority: PriorityHigh, Pos: blocks.Pos(1, 2, 3)}}, w.ScheduledTicks())
}
