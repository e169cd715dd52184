package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/redpiler/internal/blocks"
)

// InteractionType distinguishes player interactions.
type InteractionType int

const (
	// InteractionUse is a right click: toggles a lever, presses a button.
	InteractionUse InteractionType = iota + 1
	// InteractionPlate sets a pressure plate on or off.
	InteractionPlate
)

func (t InteractionType) String() string {
	switch t {
	case InteractionUse:
		return "use"
	case InteractionPlate:
		return "plate"
	default:
		return fmt.Sprintf("interaction(%d)", int(t))
	}
}

// Interaction is one queued player action.
type Interaction struct {
	Type    InteractionType `json:"type"`
	Pos     blocks.BlockPos `json:"pos"`
	Powered bool            `json:"powered,omitempty"`
}

// Use builds a use interaction.
func Use(pos blocks.BlockPos) Interaction {
	return Interaction{Type: InteractionUse, Pos: pos}
}

// Plate builds a pressure plate interaction.
func Plate(pos blocks.BlockPos, powered bool) Interaction {
	return Interaction{Type: InteractionPlate, Pos: pos, Powered: powered}
}

// interactionQueue is a thread-safe FIFO of pending interactions.
//
// The signal channel (buffered, size 1) lets Serve wake up early when an
// interaction arrives; it is closed by Close.
type interactionQueue struct {
	mu     sync.Mutex
	items  []Interaction
	closed bool
	signal chan struct{}
}

func newInteractionQueue() *interactionQueue {
	return &interactionQueue{
		items:  make([]Interaction, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends i. Returns false once the queue is closed.
func (q *interactionQueue) Enqueue(i Interaction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, i)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TakeAll removes and returns every queued interaction, appending to buf.
func (q *interactionQueue) TakeAll(buf []Interaction) []Interaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	buf = append(buf, q.items...)
	clear(q.items)
	q.items = q.items[:0]
	return buf
}

// Wait returns a channel that receives when interactions may be queued.
func (q *interactionQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *interactionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further interactions and wakes waiters.
func (q *interactionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
