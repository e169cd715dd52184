package blocks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("minecraft:redstone_wire")
	require.NoError(t, err)
	assert.Equal(t, RedstoneWire, k)

	k, err = ParseKind(" Lever ")
	require.NoError(t, err)
	assert.Equal(t, Lever, k)

	_, err = ParseKind("piston")
	assert.Error(t, err)
}

func TestComparatorMode_Output(t *testing.T) {
	assert.Equal(t, uint8(9), Compare.Output(9, 9))
	assert.Equal(t, uint8(0), Compare.Output(8, 9))
	assert.Equal(t, uint8(0), Subtract.Output(9, 9))
	assert.Equal(t, uint8(14), Subtract.Output(15, 1))
}

func TestIsDot(t *testing.T) {
	assert.True(t, IsDot(Block{Kind: RedstoneWire}))
	assert.False(t, IsDot(Block{Kind: RedstoneWire, Connections: 1}))
	assert.False(t, IsDot(Block{Kind: Lamp}))
}

func TestBlock_String(t *testing.T) {
	assert.Equal(t, "redstone_wire[power=7]", Block{Kind: RedstoneWire, Power: 7}.String())
	assert.Equal(t, "repeater[delay=2,locked=false,powered=true]", Block{Kind: Repeater, Delay: 2, Powered: true}.String())
	assert.Equal(t, "redstone_lamp[lit=true]", Block{Kind: Lamp, Lit: true}.String())
	assert.Equal(t, "stone", Block{Kind: Solid}.String())
}

func TestBlock_JSONUsesNames(t *testing.T) {
	data, err := json.Marshal(Block{Kind: Comparator, Mode: Subtract, Power: 3, Powered: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"comparator","mode":"subtract","power":3,"powered":true}`, string(data))

	var b Block
	require.NoError(t, json.Unmarshal(data, &b))
	assert.Equal(t, Block{Kind: Comparator, Mode: Subtract, Power: 3, Powered: true}, b)
}

func TestBlockPos_Less(t *testing.T) {
	assert.True(t, Pos(0, 5, 5).Less(Pos(1, 0, 0)))
	assert.True(t, Pos(1, 0, 5).Less(Pos(1, 1, 0)))
	assert.False(t, Pos(1, 1, 1).Less(Pos(1, 1, 1)))
	assert.Equal(t, "1,-2,3", Pos(1, -2, 3).String())
}
