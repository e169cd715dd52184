package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/redpiler/internal/backend"
	"github.com/roach88/redpiler/internal/engine"
	"github.com/roach88/redpiler/internal/graphio"
	"github.com/roach88/redpiler/internal/trace"
	"github.com/roach88/redpiler/internal/world"
)

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string `json:"scenario"`
	Backend  string `json:"backend"`
	// Pass is true when no expectation failed and no step errored.
	Pass   bool     `json:"pass"`
	Ticks  int64    `json:"ticks"`
	Errors []string `json:"errors,omitempty"`
	// Trace holds every flushed change in tick order.
	Trace *trace.Trace `json:"-"`
	// HandedBack are the ticks a reset step returned to the world.
	HandedBack []world.TickEntry `json:"handed_back,omitempty"`
}

// NewResult creates a passing result.
func NewResult(scenario string, kind backend.Kind) *Result {
	return &Result{
		Scenario: scenario,
		Backend:  kind.String(),
		Pass:     true,
		Errors:   []string{},
		Trace:    &trace.Trace{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

type config struct {
	backend *backend.Kind
	logger  *slog.Logger
}

// Option configures Run.
type Option func(*config)

// WithBackend overrides the scenario's backend.
func WithBackend(k backend.Kind) Option {
	return func(c *config) {
		c.backend = &k
	}
}

// WithLogger sets the session logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// traceRecorder collects flushes into a trace.
type traceRecorder struct {
	mu    sync.Mutex
	trace *trace.Trace
}

func (r *traceRecorder) RecordChanges(_ context.Context, tick int64, changes []world.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.Add(tick, changes)
	return nil
}

// runner executes one scenario's steps.
type runner struct {
	circuit *graphio.Circuit
	world   *world.MemWorld
	session *engine.Session
	result  *Result
}

// Run executes a scenario in a fresh world. Failed expectations and step
// errors land in the result; the returned error is for runs that could not
// start (unreadable circuit, failed compile) or were cancelled.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	kind := backend.Direct
	if cfg.backend != nil {
		kind = *cfg.backend
	} else if sc.Backend != "" {
		k, err := backend.ParseKind(sc.Backend)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		kind = k
	}

	circuit, err := graphio.LoadFile(sc.Circuit)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	result := NewResult(sc.Name, kind)
	w := circuit.World()
	sess, err := engine.New(w,
		engine.WithBackend(kind),
		engine.WithIOOnly(sc.IOOnly),
		engine.WithFlushEveryTick(true),
		engine.WithRecorder(&traceRecorder{trace: result.Trace}),
		engine.WithLogger(cfg.logger.With("scenario", sc.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	if err := sess.Compile(ctx, circuit.Graph, circuit.Ticks); err != nil {
		return nil, fmt.Errorf("scenario %s: compile: %w", sc.Name, err)
	}

	r := &runner{circuit: circuit, world: w, session: sess, result: result}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.execute(ctx, i, step); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.kind(), err))
		}
	}
	result.Ticks = sess.Clock().Current()
	result.HandedBack = w.ScheduledTicks()
	return result, nil
}

func (r *runner) execute(ctx context.Context, i int, step Step) error {
	switch {
	case step.Use != "":
		pos, err := r.circuit.PosOf(step.Use)
		if err != nil {
			return err
		}
		return r.session.Submit(engine.Use(pos))
	case step.Plate != nil:
		pos, err := r.circuit.PosOf(step.Plate.Node)
		if err != nil {
			return err
		}
		return r.session.Submit(engine.Plate(pos, step.Plate.Powered))
	case step.Tick > 0:
		var errs []error
		for range step.Tick {
			if err := r.step(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case step.Settle > 0:
		var errs []error
		for range step.Settle {
			if r.session.Idle() {
				return errors.Join(errs...)
			}
			if err := r.step(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if !r.session.Idle() {
			errs = append(errs, fmt.Errorf("still busy after %d ticks", step.Settle))
		}
		return errors.Join(errs...)
	case step.Flush:
		_, err := r.session.Flush(ctx)
		return err
	case step.Reset:
		_, err := r.session.Reset(ctx)
		return err
	case step.Expect != nil:
		for _, aerr := range r.check(i, step.Expect) {
			r.result.AddError(aerr.Error())
		}
		return nil
	}
	return fmt.Errorf("empty step")
}

func (r *runner) step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.session.Step(ctx)
}

// CrossCheck runs sc on every backend in the build and returns a diff of
// the first trace against each other one. An empty diff means they agree.
func CrossCheck(ctx context.Context, sc *Scenario, opts ...Option) (string, error) {
	kinds := backend.Available()
	var base *Result
	var diffs string
	for _, k := range kinds {
		res, err := Run(ctx, sc, append(opts, WithBackend(k))...)
		if err != nil {
			return "", fmt.Errorf("%s: %w", k, err)
		}
		if base == nil {
			base = res
			continue
		}
		if d := cmp.Diff(base.Trace.Events, res.Trace.Events); d != "" {
			diffs += fmt.Sprintf("%s vs %s (-%s +%s):\n%s", base.Backend, res.Backend, base.Backend, res.Backend, d)
		}
	}
	return diffs, nil
}
