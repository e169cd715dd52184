package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/blocks"
)

func TestInteractionQueue_FIFO(t *testing.T) {
	q := newInteractionQueue()
	require.True(t, q.Enqueue(Use(blocks.Pos(1, 0, 0))))
	require.True(t, q.Enqueue(Plate(blocks.Pos(2, 0, 0), true)))
	require.True(t, q.Enqueue(Use(blocks.Pos(3, 0, 0))))
	assert.Equal(t, 3, q.Len())

	got := q.TakeAll(nil)
	assert.Equal(t, []Interaction{
		{Type: InteractionUse, Pos: blocks.Pos(1, 0, 0)},
		{Type: InteractionPlate, Pos: blocks.Pos(2, 0, 0), Powered: true},
		{Type: InteractionUse, Pos: blocks.Pos(3, 0, 0)},
	}, got)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.TakeAll(nil))
}

func TestInteractionQueue_SignalCoalesces(t *testing.T) {
	q := newInteractionQueue()
	q.Enqueue(Use(blocks.Pos(0, 0, 0)))
	q.Enqueue(Use(blocks.Pos(0, 0, 0)))

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestInteractionQueue_Close(t *testing.T) {
	q := newInteractionQueue()
	q.Close()
	q.Close()
	assert.False(t, q.Enqueue(Use(blocks.Pos(0, 0, 0))))
	_, open := <-q.Wait()
	assert.False(t, open, "closed queue wakes waiters")
}

func TestInteractionQueue_ConcurrentEnqueue(t *testing.T) {
	q := newInteractionQueue()
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				q.Enqueue(Use(blocks.Pos(int32(g), int32(i), 0)))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, q.TakeAll(nil), 400)
}

func TestInteractionType_String(t *testing.T) {
	assert.Equal(t, "use", InteractionUse.String())
	assert.Equal(t, "plate", InteractionPlate.String())
	assert.Equal(t, "interaction(9)", InteractionType(9).String())
}
