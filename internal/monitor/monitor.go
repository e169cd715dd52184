// Package monitor provides the progress and cancellation channel between a
// long-running compile and whoever started it.
//
// TaskMonitor is the only state a compile shares with concurrent callers, so
// every method is safe for concurrent use.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by operations that observed a cancelled monitor.
var ErrCancelled = errors.New("compile cancelled")

// TaskMonitor tracks progress of a task and carries a cancellation flag.
type TaskMonitor struct {
	cancelled atomic.Bool
	progress  atomic.Int64
	max       atomic.Int64

	mu      sync.Mutex
	message string
}

// New creates a monitor with no progress and no message.
func New() *TaskMonitor {
	return &TaskMonitor{}
}

// Cancel asks the task to stop at its next check.
func (m *TaskMonitor) Cancel() {
	m.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (m *TaskMonitor) Cancelled() bool {
	return m.cancelled.Load()
}

// Check returns ErrCancelled once the monitor is cancelled.
func (m *TaskMonitor) Check() error {
	if m.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// CancelOnDone cancels the monitor when ctx is done. The returned stop
// function releases the watcher; call it once the task finishes.
func (m *TaskMonitor) CancelOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, m.Cancel)
}

// SetMaxProgress sets the total amount of work and resets progress.
func (m *TaskMonitor) SetMaxProgress(total int) {
	m.max.Store(int64(total))
	m.progress.Store(0)
}

// IncProgress records one unit of completed work.
func (m *TaskMonitor) IncProgress() {
	m.progress.Add(1)
}

// Progress returns completed and total work.
func (m *TaskMonitor) Progress() (done, total int) {
	return int(m.progress.Load()), int(m.max.Load())
}

// SetMessage describes the current phase.
func (m *TaskMonitor) SetMessage(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.message = msg
}

// Message returns the current phase description.
func (m *TaskMonitor) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.message
}
