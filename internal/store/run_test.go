package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/engine"
	"github.com/roach88/redpiler/internal/testutil"
	"github.com/roach88/redpiler/internal/trace"
	"github.com/roach88/redpiler/internal/world"
)

var _ engine.Recorder = (*Run)(nil)

func TestOpenRun_AssignsV7ID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct", GraphHash: "abc", IOOnly: true, Label: "smoke"})
	require.NoError(t, err)

	id, err := uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	info, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunMeta{Backend: "direct", GraphHash: "abc", IOOnly: true, Label: "smoke"}, info.RunMeta)
	assert.False(t, info.StartedAt.IsZero())
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_StartOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, label := range []string{"a", "b", "c"} {
		run, err := s.OpenRun(ctx, RunMeta{Backend: "direct", Label: label})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, r := range runs {
		assert.Equal(t, ids[i], r.ID)
	}
}

func TestRecordChanges_ReadBackInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	wire := world.Change{Pos: blocks.Pos(1, 2, 3), Block: blocks.Block{Kind: blocks.RedstoneWire, Power: 13, Connections: 5}}
	comp := world.Change{Pos: blocks.Pos(-4, 0, 9), Block: blocks.Block{Kind: blocks.Comparator, Mode: blocks.Subtract, Power: 2, Powered: true}}

	require.NoError(t, run.RecordChanges(ctx, 1, []world.Change{lamp(0, true), wire}))
	require.NoError(t, run.RecordChanges(ctx, 1, []world.Change{comp}))
	require.NoError(t, run.RecordChanges(ctx, 4, nil))
	require.NoError(t, run.RecordChanges(ctx, 5, []world.Change{lamp(0, false)}))

	got, err := s.ReadChanges(ctx, run.ID)
	require.NoError(t, err)
	want := []RecordedChange{
		{Seq: 0, Tick: 1, Change: lamp(0, true)},
		{Seq: 1, Tick: 1, Change: wire},
		{Seq: 2, Tick: 1, Change: comp},
		{Seq: 3, Tick: 5, Change: lamp(0, false)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadChanges mismatch (-want +got):\n%s", diff)
	}
}

func TestReadChanges_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	got, err := s.ReadChanges(ctx, run.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReadBlockHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	require.NoError(t, run.RecordChanges(ctx, 1, []world.Change{lamp(0, true), lamp(1, true)}))
	require.NoError(t, run.RecordChanges(ctx, 3, []world.Change{lamp(0, false)}))

	got, err := s.ReadBlockHistory(ctx, run.ID, blocks.Pos(0, 0, 0))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Tick)
	assert.Equal(t, int64(3), got[1].Tick)
	assert.False(t, got[1].Block.Lit)
}

func TestReadTrace_GroupsByTick(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	require.NoError(t, run.RecordChanges(ctx, 2, []world.Change{lamp(0, true)}))
	require.NoError(t, run.RecordChanges(ctx, 2, []world.Change{lamp(1, true)}))
	require.NoError(t, run.RecordChanges(ctx, 7, []world.Change{lamp(0, false)}))

	got, err := s.ReadTrace(ctx, run.ID)
	require.NoError(t, err)

	var want trace.Trace
	want.Add(2, []world.Change{lamp(0, true), lamp(1, true)})
	want.Add(7, []world.Change{lamp(0, false)})
	assert.Equal(t, want.Events, got.Events)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	w := world.NewMemWorld()
	for x := int32(0); x < 64; x++ {
		w.SetBlock(blocks.Pos(x, 0, 0), blocks.Block{Kind: blocks.RedstoneWire, Power: uint8(x % 16), Connections: 5})
	}
	w.SetBlock(blocks.Pos(0, 1, 0), blocks.Block{Kind: blocks.Lamp, Lit: true})
	snap := w.Snapshot()

	fp, err := run.SaveSnapshot(ctx, 10, snap)
	require.NoError(t, err)

	got, stored, err := s.LoadSnapshot(ctx, run.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, trace.FormatFingerprint(fp), stored)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	latest, err := s.LatestSnapshotTick(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), latest)
}

func TestSnapshot_ReplaceAtSameTick(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	_, err = run.SaveSnapshot(ctx, 3, []world.Change{lamp(0, false)})
	require.NoError(t, err)
	_, err = run.SaveSnapshot(ctx, 3, []world.Change{lamp(0, true)})
	require.NoError(t, err)

	got, _, err := s.LoadSnapshot(ctx, run.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []world.Change{lamp(0, true)}, got)
}

func TestSnapshot_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	_, _, err = s.LoadSnapshot(ctx, run.ID, 1)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = s.LatestSnapshotTick(ctx, run.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSnapshot_DetectsCorruption(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	_, err = run.SaveSnapshot(ctx, 1, []world.Change{lamp(0, true)})
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE snapshots SET fingerprint = '0000000000000000'`)
	require.NoError(t, err)

	_, _, err = s.LoadSnapshot(ctx, run.ID, 1)
	assert.ErrorContains(t, err, "fingerprint")
}

func TestRun_AsSessionRecorder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, err := s.OpenRun(ctx, RunMeta{Backend: "direct"})
	require.NoError(t, err)

	c := testutil.NewCircuit()
	button := c.Button()
	c.Link(button, c.Lamp(false), 0)

	sess, err := engine.New(world.NewMemWorld(), engine.WithFlushEveryTick(true), engine.WithRecorder(run))
	require.NoError(t, err)
	require.NoError(t, sess.Compile(ctx, c.Graph(), nil))
	require.NoError(t, sess.Submit(engine.Use(testutil.Pos(button))))
	_, err = sess.RunUntilIdle(ctx, 20)
	require.NoError(t, err)

	got, err := s.ReadChanges(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, int64(1), got[0].Tick)
	assert.Equal(t, int64(10), got[3].Tick)
}
