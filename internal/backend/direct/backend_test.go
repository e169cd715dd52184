package direct

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/monitor"
	"github.com/roach88/redpiler/internal/testutil"
	"github.com/roach88/redpiler/internal/world"
)

func compile(t *testing.T, c *testutil.Circuit, ticks ...world.TickEntry) *Backend {
	t.Helper()
	b := New()
	require.NoError(t, b.Compile(c.Graph(), ticks, nil))
	return b
}

func inspect(t *testing.T, b *Backend, i int) Inspection {
	t.Helper()
	in, err := b.Inspect(testutil.Pos(i))
	require.NoError(t, err)
	return in
}

func ticks(b *Backend, n int) {
	for range n {
		b.Tick()
	}
}

// recount rebuilds every input histogram from current outputs and compares
// it with the incrementally maintained one.
func recount(t *testing.T, b *Backend, g *graph.Graph) {
	t.Helper()
	want := make([][2][16]uint8, len(g.Nodes))
	nodes := b.Nodes().Inner()
	for _, e := range g.Edges {
		ss := decay(nodes[e.Source].OutputPower, e.Weight)
		want[e.Target][e.Type][ss]++
	}
	for i := range nodes {
		assert.Equal(t, want[i][0], nodes[i].DefaultInputs.Counts(), "default inputs of node %d", i)
		assert.Equal(t, want[i][1], nodes[i].SideInputs.Counts(), "side inputs of node %d", i)
	}
}

func TestWire_DecaysAlongLinks(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	w1 := c.Wire(0)
	w2 := c.Wire(0)
	c.Link(lever, w1, 0)
	c.Link(w1, w2, 1)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))

	assert.Equal(t, uint8(15), inspect(t, b, w1).OutputPower)
	assert.Equal(t, uint8(14), inspect(t, b, w2).OutputPower)
	assert.True(t, inspect(t, b, w2).Powered)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.Equal(t, uint8(0), inspect(t, b, w2).OutputPower)
}

func TestWire_TakesStrongestOfDefaultAndSide(t *testing.T) {
	c := testutil.NewCircuit()
	a := c.Lever()
	s := c.Lever()
	w := c.Wire(0)
	c.Link(a, w, 6)
	c.Side(s, w, 2)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(a)))
	assert.Equal(t, uint8(9), inspect(t, b, w).OutputPower)

	require.NoError(t, b.OnUseBlock(testutil.Pos(s)))
	assert.Equal(t, uint8(13), inspect(t, b, w).OutputPower)
	assert.Equal(t, uint8(9), inspect(t, b, w).DefaultLevel)
	assert.Equal(t, uint8(13), inspect(t, b, w).SideLevel)
}

func TestTorch_Inverts(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	torch := c.Torch(true)
	lamp := c.Lamp(true)
	c.Link(lever, torch, 0)
	c.Link(torch, lamp, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.False(t, inspect(t, b, torch).Powered)
	assert.False(t, inspect(t, b, lamp).Powered)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.Equal(t, uint8(15), inspect(t, b, torch).OutputPower)
	assert.True(t, inspect(t, b, lamp).Powered)
}

func TestComparator_SubtractsSideFromWeightedFront(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	side := c.Constant(5)
	comp := c.Comparator(blocks.Subtract, 0)
	c.Link(lever, comp, 3)
	c.Side(side, comp, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	in := inspect(t, b, comp)
	assert.Equal(t, uint8(12), in.DefaultLevel)
	assert.Equal(t, uint8(5), in.SideLevel)
	assert.Equal(t, uint8(7), in.OutputPower)
}

func TestComparator_FarInputOverridesFront(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	comp := c.Comparator(blocks.Compare, 0)
	far := uint8(4)
	c.Node(comp).ComparatorFarInput = &far
	c.Side(lever, comp, 13)
	b := compile(t, c)

	// Side rises to 2; the far input (4) still passes.
	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.Equal(t, uint8(4), inspect(t, b, comp).OutputPower)
}

func TestRepeater_DelaysSignal(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	rep := c.Repeater(2)
	lamp := c.Lamp(false)
	c.Link(lever, rep, 0)
	c.Link(rep, lamp, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.True(t, inspect(t, b, rep).PendingTick)

	b.Tick()
	assert.False(t, inspect(t, b, lamp).Powered)
	b.Tick()
	assert.True(t, inspect(t, b, rep).Powered)
	assert.True(t, inspect(t, b, lamp).Powered)
	assert.False(t, b.HasPendingTicks())
}

func TestRepeater_LockHoldsOutput(t *testing.T) {
	c := testutil.NewCircuit()
	input := c.Lever()
	lock := c.Lever()
	rep := c.Repeater(1)
	c.Link(input, rep, 0)
	c.Side(lock, rep, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lock)))
	assert.True(t, inspect(t, b, rep).Locked)

	require.NoError(t, b.OnUseBlock(testutil.Pos(input)))
	ticks(b, 5)
	assert.False(t, inspect(t, b, rep).Powered, "locked repeater ignores its input")
	assert.False(t, b.HasPendingTicks())

	require.NoError(t, b.OnUseBlock(testutil.Pos(lock)))
	assert.False(t, inspect(t, b, rep).Locked)
	b.Tick()
	assert.True(t, inspect(t, b, rep).Powered)
}

func TestRepeater_LockedWhilePendingIgnoresTick(t *testing.T) {
	c := testutil.NewCircuit()
	input := c.Lever()
	lock := c.Lever()
	rep := c.Repeater(3)
	c.Link(input, rep, 0)
	c.Side(lock, rep, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(input)))
	b.Tick()
	require.NoError(t, b.OnUseBlock(testutil.Pos(lock)))
	ticks(b, 3)
	assert.False(t, inspect(t, b, rep).Powered)
}

func TestRepeater_StretchesShortPulse(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	rep := c.Repeater(3)
	c.Link(lever, rep, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	b.Tick()
	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))

	ticks(b, 2)
	assert.True(t, inspect(t, b, rep).Powered, "on after its delay")
	ticks(b, 2)
	assert.True(t, inspect(t, b, rep).Powered, "held for a full delay")
	b.Tick()
	assert.False(t, inspect(t, b, rep).Powered)
}

func TestSimpleRepeater_IgnoresSide(t *testing.T) {
	c := testutil.NewCircuit()
	input := c.Lever()
	lock := c.Lever()
	rep := c.SimpleRepeater(1)
	c.Link(input, rep, 0)
	c.Side(lock, rep, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lock)))
	require.NoError(t, b.OnUseBlock(testutil.Pos(input)))
	b.Tick()
	assert.True(t, inspect(t, b, rep).Powered)
	assert.False(t, inspect(t, b, rep).Locked)
}

func TestButton_ReleasesAfterDelay(t *testing.T) {
	c := testutil.NewCircuit()
	button := c.Button()
	lamp := c.Lamp(false)
	c.Link(button, lamp, 0)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(button)))
	assert.True(t, inspect(t, b, lamp).Powered)

	// Pressing again while down changes nothing.
	require.NoError(t, b.OnUseBlock(testutil.Pos(button)))

	ticks(b, ButtonDelay-1)
	assert.True(t, inspect(t, b, button).Powered)
	b.Tick()
	assert.False(t, inspect(t, b, button).Powered)
	assert.False(t, inspect(t, b, lamp).Powered)
}

func TestPressurePlate(t *testing.T) {
	c := testutil.NewCircuit()
	plate := c.Plate()
	lamp := c.Lamp(false)
	lever := c.Lever()
	c.Link(plate, lamp, 0)
	b := compile(t, c)

	require.NoError(t, b.SetPressurePlate(testutil.Pos(plate), true))
	assert.True(t, inspect(t, b, lamp).Powered)
	require.NoError(t, b.SetPressurePlate(testutil.Pos(plate), true))
	require.NoError(t, b.SetPressurePlate(testutil.Pos(plate), false))
	assert.False(t, inspect(t, b, lamp).Powered)

	err := b.SetPressurePlate(testutil.Pos(lever), true)
	assert.ErrorIs(t, err, ErrNotInteractive)
}

func TestInteractionErrors(t *testing.T) {
	b := New()
	assert.ErrorIs(t, b.OnUseBlock(testutil.Pos(0)), ErrNotCompiled)
	_, err := b.Inspect(testutil.Pos(0))
	assert.ErrorIs(t, err, ErrNotCompiled)

	c := testutil.NewCircuit()
	c.Lamp(false)
	b = compile(t, c)
	assert.ErrorIs(t, b.OnUseBlock(testutil.Pos(0)), ErrNotInteractive)
	assert.ErrorIs(t, b.OnUseBlock(testutil.Pos(9)), ErrUnknownPosition)
	assert.ErrorIs(t, b.Compile(c.Graph(), nil, nil), ErrAlreadyCompiled)
}

func TestCompile_RejectsTorchLoop(t *testing.T) {
	c := testutil.NewCircuit()
	a := c.Torch(true)
	w := c.Wire(0)
	c.Link(a, w, 0)
	c.Link(w, a, 0)

	b := New()
	err := b.Compile(c.Graph(), nil, nil)
	require.Error(t, err)
	assert.True(t, graph.HasCode(err, graph.ErrCombinationalLoop))
	assert.False(t, b.Compiled())
}

func TestCompile_AcceptsWireLoop(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	w1 := c.Wire(0)
	w2 := c.Wire(0)
	c.Link(lever, w1, 0)
	c.Link(w1, w2, 1)
	c.Link(w2, w1, 1)
	b := compile(t, c)

	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.Equal(t, uint8(15), inspect(t, b, w1).OutputPower)
	assert.Equal(t, uint8(14), inspect(t, b, w2).OutputPower)

	// Without the lever the loop drains one step per hop down to zero.
	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.Equal(t, uint8(0), inspect(t, b, w1).OutputPower)
	assert.Equal(t, uint8(0), inspect(t, b, w2).OutputPower)
}

func TestCompile_RejectsZeroWeightWireLoop(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	w1 := c.Wire(0)
	w2 := c.Wire(0)
	c.Link(lever, w1, 0)
	c.Link(w1, w2, 0)
	c.Link(w2, w1, 0)

	// Such a loop would hold full power after the lever turns off.
	b := New()
	err := b.Compile(c.Graph(), nil, nil)
	require.Error(t, err)
	assert.True(t, graph.HasCode(err, graph.ErrCombinationalLoop))
	assert.False(t, b.Compiled())
}

func TestCompile_ValidationErrors(t *testing.T) {
	c := testutil.NewCircuit()
	c.Repeater(0)
	b := New()
	err := b.Compile(c.Graph(), nil, nil)
	assert.True(t, graph.HasCode(err, graph.ErrInvalidDelay))

	c = testutil.NewCircuit()
	c.Lamp(false)
	err = b.Compile(c.Graph(), []world.TickEntry{{TicksLeft: 1, Pos: testutil.Pos(5)}}, nil)
	assert.ErrorIs(t, err, ErrUnknownPosition)
	assert.False(t, b.Compiled())
}

func TestCompile_Cancelled(t *testing.T) {
	c := testutil.NewCircuit()
	c.Lamp(false)
	mon := monitor.New()
	mon.Cancel()

	b := New()
	err := b.Compile(c.Graph(), nil, mon)
	assert.ErrorIs(t, err, monitor.ErrCancelled)
	assert.False(t, b.Compiled())
}

func TestCompile_ReportsProgress(t *testing.T) {
	c := testutil.NewCircuit()
	c.Lever()
	c.Lamp(false)
	mon := monitor.New()

	b := New()
	require.NoError(t, b.Compile(c.Graph(), nil, mon))
	done, total := mon.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, total)
	assert.Equal(t, "compiled", mon.Message())
}

func TestCompile_InitialTicks(t *testing.T) {
	c := testutil.NewCircuit()
	rep := c.Repeater(1)
	b := compile(t, c, world.TickEntry{TicksLeft: 0, Priority: world.PriorityHigh, Pos: testutil.Pos(rep)})

	assert.True(t, b.HasPendingTicks())
	b.Tick()
	// No input: the repeater pulses on for one delay, then off.
	assert.True(t, inspect(t, b, rep).Powered)
	b.Tick()
	assert.False(t, inspect(t, b, rep).Powered)
}

func TestHistogramsMatchRecount(t *testing.T) {
	c := testutil.NewCircuit()
	l1 := c.Lever()
	l2 := c.Lever()
	w := c.Wire(0)
	torch := c.Torch(true)
	rep := c.Repeater(2)
	comp := c.Comparator(blocks.Compare, 0)
	lamp := c.Lamp(false)
	c.Link(l1, w, 0)
	c.Side(l2, w, 4)
	c.Link(w, torch, 2)
	c.Link(torch, rep, 0)
	c.Link(w, comp, 1)
	c.Side(rep, comp, 5)
	c.Link(comp, lamp, 0)
	c.Link(rep, lamp, 0)
	g := c.Graph()

	b := New()
	require.NoError(t, b.Compile(g, nil, nil))
	recount(t, b, g)

	ops := []int{l1, -1, l2, -1, -1, l1, -1, l2, -1, -1, -1}
	for _, op := range ops {
		if op < 0 {
			b.Tick()
		} else {
			require.NoError(t, b.OnUseBlock(testutil.Pos(op)))
		}
		recount(t, b, g)
	}
}

func TestFlush_IOOnlyIsSubsetOfFull(t *testing.T) {
	build := func() *Backend {
		c := testutil.NewCircuit()
		lever := c.Lever()
		w := c.ConnectedWire(0)
		dot := c.Wire(0)
		lamp := c.Lamp(false)
		c.Link(lever, w, 0)
		c.Link(w, dot, 1)
		c.Link(dot, lamp, 0)
		b := compile(t, c)
		require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
		return b
	}

	ioWorld := world.NewMemWorld()
	build().Flush(ioWorld, true)
	fullWorld := world.NewMemWorld()
	build().Flush(fullWorld, false)

	io := ioWorld.TakeChanges()
	full := fullWorld.TakeChanges()
	assert.Len(t, io, 3, "lever, dot and lamp")
	assert.Len(t, full, 4)
	for _, ch := range io {
		assert.Contains(t, full, ch)
	}
	assert.Equal(t, blocks.Block{Kind: blocks.RedstoneWire, Power: 14}, fullWorld.Block(testutil.Pos(2)))
	assert.Equal(t, blocks.Block{Kind: blocks.Lamp, Lit: true}, ioWorld.Block(testutil.Pos(3)))
}

func TestFlush_KeepsUnwrittenNodesDirty(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	w := c.ConnectedWire(0)
	c.Link(lever, w, 0)
	b := compile(t, c)
	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))

	mw := world.NewMemWorld()
	b.Flush(mw, true)
	assert.True(t, inspect(t, b, w).Changed)
	assert.False(t, inspect(t, b, lever).Changed)

	b.Flush(mw, false)
	assert.False(t, inspect(t, b, w).Changed)
	assert.Len(t, mw.TakeChanges(), 2)

	b.Flush(mw, false)
	assert.Empty(t, mw.TakeChanges())
}

func TestReset_HandsBackPendingTicks(t *testing.T) {
	c := testutil.NewCircuit()
	button := c.Button()
	lamp := c.Lamp(false)
	c.Link(button, lamp, 0)
	b := compile(t, c)
	require.NoError(t, b.OnUseBlock(testutil.Pos(button)))
	ticks(b, 3)

	mw := world.NewMemWorld()
	b.Reset(mw, false)

	assert.False(t, b.Compiled())
	assert.Equal(t, []world.TickEntry{
		{TicksLeft: ButtonDelay - 3, Priority: world.PriorityNormal, Pos: testutil.Pos(button)},
	}, mw.ScheduledTicks())
	assert.Equal(t, blocks.Block{Kind: blocks.Button, Powered: true}, mw.Block(testutil.Pos(button)))
	assert.Equal(t, blocks.Block{Kind: blocks.Lamp, Lit: true}, mw.Block(testutil.Pos(lamp)))

	// Resetting again, or without a world, is harmless.
	b.Reset(mw, false)
	b.Reset(nil, false)
	assert.Len(t, mw.ScheduledTicks(), 1)
}

func TestReset_ThenRecompile(t *testing.T) {
	c := testutil.NewCircuit()
	lever := c.Lever()
	b := compile(t, c)
	b.Reset(nil, true)
	require.NoError(t, b.Compile(c.Graph(), nil, nil))
	require.NoError(t, b.OnUseBlock(testutil.Pos(lever)))
	assert.True(t, inspect(t, b, lever).Powered)
}

func TestDeterminism(t *testing.T) {
	// run records every node after each operation of a fixed sequence of
	// interactions and ticks.
	run := func() [][]Inspection {
		c := testutil.NewCircuit()
		l := c.Lever()
		btn := c.Button()
		plate := c.Plate()
		w := c.Wire(0)
		r1 := c.Repeater(1)
		r2 := c.Repeater(2)
		torch := c.Torch(true)
		lamp := c.Lamp(false)
		c.Link(l, w, 0)
		c.Link(btn, w, 3)
		c.Link(plate, w, 1)
		c.Link(w, r1, 0)
		c.Link(r1, r2, 0)
		c.Side(w, r2, 10)
		c.Link(r2, torch, 0)
		c.Link(torch, lamp, 0)
		c.Link(plate, lamp, 0)
		b := compile(t, c)

		steps := []func(){
			func() { require.NoError(t, b.OnUseBlock(testutil.Pos(l))) },
			b.Tick,
			b.Tick,
			func() { require.NoError(t, b.SetPressurePlate(testutil.Pos(plate), true)) },
			b.Tick,
			func() { require.NoError(t, b.OnUseBlock(testutil.Pos(btn))) },
			func() { require.NoError(t, b.OnUseBlock(testutil.Pos(l))) },
			b.Tick,
			b.Tick,
			func() { require.NoError(t, b.SetPressurePlate(testutil.Pos(plate), false)) },
		}
		for range 12 {
			steps = append(steps, b.Tick)
		}

		nodes := len(c.Graph().Nodes)
		var out [][]Inspection
		for _, step := range steps {
			step()
			var state []Inspection
			for i := range nodes {
				state = append(state, inspect(t, b, i))
			}
			out = append(out, state)
		}
		return out
	}

	first := run()
	second := run()
	require.Len(t, second, len(first))
	for i := range first {
		if diff := cmp.Diff(first[i], second[i]); diff != "" {
			t.Errorf("runs diverged after step %d (-first +second):\n%s", i, diff)
		}
	}
}
