package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/redpiler/internal/backend"
	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/monitor"
	"github.com/roach88/redpiler/internal/world"
)

// Recorder receives the block changes of every flush.
// Implemented by store.Run.
type Recorder interface {
	RecordChanges(ctx context.Context, tick int64, changes []world.Change) error
}

type config struct {
	backend        backend.Kind
	ioOnly         bool
	flushEveryTick bool
	recorder       Recorder
	logger         *slog.Logger
	clock          *Clock
}

// Option configures a Session.
type Option func(*config)

// WithBackend selects the backend. Default: backend.Direct.
func WithBackend(k backend.Kind) Option {
	return func(c *config) {
		c.backend = k
	}
}

// WithIOOnly limits flushes to world boundary nodes (levers, lamps, dots...).
func WithIOOnly(ioOnly bool) Option {
	return func(c *config) {
		c.ioOnly = ioOnly
	}
}

// WithFlushEveryTick flushes to the world after every tick instead of only
// on Flush and Reset.
func WithFlushEveryTick(on bool) Option {
	return func(c *config) {
		c.flushEveryTick = on
	}
}

// WithRecorder sends every flush to r.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithClock resumes tick numbering from an existing clock.
func WithClock(clock *Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// Session drives one compiled circuit against one world.
//
// Thread-safety model:
//   - Submit, Clock and Close: safe from any goroutine
//   - everything else: the single goroutine driving the session
type Session struct {
	cfg     config
	backend *backend.Dispatcher
	world   *recordingWorld
	clock   *Clock
	queue   *interactionQueue
	batch   []Interaction
	log     *slog.Logger

	closeOnce sync.Once
}

// New creates a session over w. The circuit is loaded with Compile.
func New(w world.World, opts ...Option) (*Session, error) {
	cfg := config{backend: backend.Direct}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}

	d, err := backend.New(cfg.backend)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return &Session{
		cfg:     cfg,
		backend: d,
		world:   &recordingWorld{World: w},
		clock:   cfg.clock,
		queue:   newInteractionQueue(),
		log:     cfg.logger.With("backend", cfg.backend.String()),
	}, nil
}

// Backend returns the active backend kind.
func (s *Session) Backend() backend.Kind {
	return s.backend.Kind()
}

// Clock returns the session's tick clock.
func (s *Session) Clock() *Clock {
	return s.clock
}

// Compiled reports whether a circuit is loaded.
func (s *Session) Compiled() bool {
	return s.backend.Compiled()
}

// Compile loads g and its initial ticks. Cancelling ctx aborts the compile.
func (s *Session) Compile(ctx context.Context, g *graph.Graph, ticks []world.TickEntry) error {
	return s.compile(ctx, monitor.New(), g, ticks)
}

// CompileTask is a compile running in the background.
type CompileTask struct {
	// Monitor reports progress and can cancel the compile.
	Monitor *monitor.TaskMonitor
	group   *errgroup.Group
}

// Wait blocks until the compile finishes and returns its error.
func (t *CompileTask) Wait() error {
	return t.group.Wait()
}

// CompileAsync starts Compile on another goroutine. The session must not be
// driven until Wait returns.
func (s *Session) CompileAsync(ctx context.Context, g *graph.Graph, ticks []world.TickEntry) *CompileTask {
	group, gctx := errgroup.WithContext(ctx)
	task := &CompileTask{Monitor: monitor.New(), group: group}
	group.Go(func() error {
		return s.compile(gctx, task.Monitor, g, ticks)
	})
	return task
}

func (s *Session) compile(ctx context.Context, mon *monitor.TaskMonitor, g *graph.Graph, ticks []world.TickEntry) error {
	if ctx.Err() != nil {
		mon.Cancel()
	}
	stop := mon.CancelOnDone(ctx)
	defer stop()

	start := time.Now()
	err := s.backend.Compile(g, ticks, mon)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	compileDuration.WithLabelValues(s.backend.Kind().String(), outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Error("compile failed", "error", err)
		return err
	}
	s.log.Info("circuit compiled",
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"initial_ticks", len(ticks),
		"duration", time.Since(start),
	)
	return nil
}

// Submit queues an interaction for the start of the next tick.
func (s *Session) Submit(i Interaction) error {
	if !s.queue.Enqueue(i) {
		return ErrClosed
	}
	return nil
}

// Interact applies an interaction immediately, outside the tick cycle.
func (s *Session) Interact(i Interaction) error {
	if !s.backend.Compiled() {
		return ErrNotCompiled
	}
	return s.apply(i)
}

func (s *Session) apply(i Interaction) error {
	var err error
	switch i.Type {
	case InteractionUse:
		err = s.backend.OnUseBlock(i.Pos)
	case InteractionPlate:
		err = s.backend.SetPressurePlate(i.Pos, i.Powered)
	default:
		err = fmt.Errorf("unknown interaction type %d", i.Type)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		pos := i.Pos
		err = &RuntimeError{Code: ErrCodeInteraction, Tick: s.clock.Current(), Pos: &pos, Err: err}
	}
	interactionsTotal.WithLabelValues(i.Type.String(), outcome).Inc()
	s.log.Debug("interaction applied",
		"type", i.Type.String(),
		"pos", i.Pos.String(),
		"tick", s.clock.Current(),
		"outcome", outcome,
	)
	return err
}

// Step runs one tick: queued interactions first, then the backend tick,
// then a flush when flushing every tick. A failed interaction is logged
// and skipped; the tick still runs and the failures are returned together.
func (s *Session) Step(ctx context.Context) error {
	if !s.backend.Compiled() {
		return ErrNotCompiled
	}

	var errs []error
	s.batch = s.queue.TakeAll(s.batch[:0])
	for _, i := range s.batch {
		if err := s.apply(i); err != nil {
			s.log.Warn("interaction failed", "error", err)
			errs = append(errs, err)
		}
	}

	kind := s.backend.Kind().String()
	timer := prometheus.NewTimer(tickDuration.WithLabelValues(kind))
	s.backend.Tick()
	timer.ObserveDuration()
	tick := s.clock.Next()
	ticksTotal.WithLabelValues(kind).Inc()

	if s.cfg.flushEveryTick {
		if _, err := s.flushAt(ctx, tick); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run steps n ticks, checking ctx between ticks.
func (s *Session) Run(ctx context.Context, n int) error {
	for range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunUntilIdle steps until nothing is scheduled or queued, at most limit
// ticks. It returns the number of ticks run.
func (s *Session) RunUntilIdle(ctx context.Context, limit int) (int, error) {
	for n := 0; n < limit; n++ {
		if s.Idle() {
			return n, nil
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := s.Step(ctx); err != nil {
			return n + 1, err
		}
	}
	return limit, nil
}

// Idle reports whether no tick is scheduled and no interaction is queued.
func (s *Session) Idle() bool {
	return !s.backend.HasPendingTicks() && s.queue.Len() == 0
}

// Serve ticks once per period until ctx is cancelled or Close is called.
// Tick failures are logged and serving continues.
func (s *Session) Serve(ctx context.Context, period time.Duration) error {
	if !s.backend.Compiled() {
		return ErrNotCompiled
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	s.log.Info("session serving", "period", period)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("session stopping: context cancelled")
			return ctx.Err()
		case _, open := <-s.queue.Wait():
			if !open {
				s.log.Info("session stopping: closed")
				return nil
			}
		case <-ticker.C:
			if err := s.Step(ctx); err != nil {
				s.log.Error("tick failed", "tick", s.clock.Current(), "error", err)
			}
		}
	}
}

// Flush writes changed node state to the world and returns the changes.
func (s *Session) Flush(ctx context.Context) ([]world.Change, error) {
	if !s.backend.Compiled() {
		return nil, ErrNotCompiled
	}
	return s.flushAt(ctx, s.clock.Current())
}

func (s *Session) flushAt(ctx context.Context, tick int64) ([]world.Change, error) {
	s.backend.Flush(s.world, s.cfg.ioOnly)
	return s.record(ctx, tick)
}

func (s *Session) record(ctx context.Context, tick int64) ([]world.Change, error) {
	changes := s.world.take()
	flushedBlocksTotal.Add(float64(len(changes)))
	if s.cfg.recorder == nil || len(changes) == 0 {
		return changes, nil
	}
	if err := s.cfg.recorder.RecordChanges(ctx, tick, changes); err != nil {
		return changes, &RuntimeError{Code: ErrCodeRecorder, Tick: tick, Err: err}
	}
	return changes, nil
}

// Inspect describes the node at pos.
func (s *Session) Inspect(pos blocks.BlockPos) (backend.Inspection, error) {
	return s.backend.Inspect(pos)
}

// Reset writes the circuit state back to the world, returns pending ticks
// to it and unloads the circuit. The final changes are returned.
func (s *Session) Reset(ctx context.Context) ([]world.Change, error) {
	if !s.backend.Compiled() {
		return nil, nil
	}
	s.backend.Reset(s.world, s.cfg.ioOnly)
	s.log.Info("session reset", "tick", s.clock.Current())
	return s.record(ctx, s.clock.Current())
}

// Close rejects further submissions and stops Serve.
func (s *Session) Close() {
	s.closeOnce.Do(s.queue.Close)
}

// recordingWorld passes writes through and remembers the ones that changed
// something.
type recordingWorld struct {
	world.World
	changes []world.Change
}

func (w *recordingWorld) SetBlock(pos blocks.BlockPos, b blocks.Block) bool {
	changed := w.World.SetBlock(pos, b)
	if changed {
		w.changes = append(w.changes, world.Change{Pos: pos, Block: b})
	}
	return changed
}

func (w *recordingWorld) take() []world.Change {
	c := w.changes
	w.changes = nil
	return c
}
