package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/redpiler/internal/engine"
	"github.com/roach88/redpiler/internal/graphio"
	"github.com/roach88/redpiler/internal/store"
	"github.com/roach88/redpiler/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Ticks    int
	Settle   int
	Serve    time.Duration
	Use      []string
	Plate    []string
	IOOnly   bool
	Database string
	Label    string
}

// NodeReport is the final state of one I/O node.
type NodeReport struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Pos     string `json:"pos"`
	Block   string `json:"block"`
	Powered bool   `json:"powered"`
	Power   uint8  `json:"power"`
	Pending bool   `json:"pending_tick,omitempty"`
}

// RunReport is the result of a simulation run.
type RunReport struct {
	Circuit     string       `json:"circuit"`
	Backend     string       `json:"backend"`
	Ticks       int64        `json:"ticks"`
	Idle        bool         `json:"idle"`
	Fingerprint string       `json:"fingerprint"`
	RunID       string       `json:"run_id,omitempty"`
	Nodes       []NodeReport `json:"nodes"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <circuit>",
		Short: "Simulate a circuit",
		Long: `Compile a circuit and simulate it.

Interactions given with --use and --plate are queued before the first
tick. After --ticks ticks, --settle keeps ticking until nothing is
scheduled (at most that many more ticks). --serve ticks in real time at
the given period until interrupted.

With --db every flushed block change is recorded in a SQLite run log and
the final world is saved as a snapshot.

Examples:
  redpiler run ./circuits/door.yaml --use lever --ticks 20
  redpiler run ./circuits/door.yaml --plate plate=on --settle 100 --db ./runs.db
  redpiler run ./circuits/clock.cue --serve 50ms --db ./runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Ticks, "ticks", 1, "number of ticks to run")
	cmd.Flags().IntVar(&opts.Settle, "settle", 0, "after --ticks, run until idle for at most this many ticks")
	cmd.Flags().DurationVar(&opts.Serve, "serve", 0, "tick in real time at this period until interrupted")
	cmd.Flags().StringSliceVar(&opts.Use, "use", nil, "node to use (toggle lever, press button) before the first tick")
	cmd.Flags().StringSliceVar(&opts.Plate, "plate", nil, "pressure plate to set before the first tick, as <node>=on|off")
	cmd.Flags().BoolVar(&opts.IOOnly, "io-only", false, "only write I/O blocks back to the world")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label stored with the recorded run")

	return cmd
}

func runSimulation(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	log := opts.Logger()

	if opts.Ticks < 0 || opts.Settle < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "--ticks and --settle must not be negative", nil)
	}
	kind, err := opts.BackendKind()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid backend", err)
	}

	c, err := graphio.LoadFile(path)
	if err != nil {
		return formatter.FailLoad(err)
	}
	queued, err := interactions(c, opts.Use, opts.Plate)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid interaction", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := c.World()
	sessionOpts := []engine.Option{
		engine.WithBackend(kind),
		engine.WithIOOnly(opts.IOOnly),
		engine.WithLogger(log),
	}

	var run *store.Run
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "opening database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		hash, err := c.Hash()
		if err != nil {
			return formatter.Fail(ExitCommandError, graphio.ErrCodeGeneric, "hashing circuit", err)
		}
		run, err = st.OpenRun(ctx, store.RunMeta{
			Backend:   kind.String(),
			GraphHash: hash,
			IOOnly:    opts.IOOnly,
			Label:     opts.Label,
		})
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "opening run", err)
		}
		log.Info("recording run", "run", run.ID, "db", opts.Database)
		sessionOpts = append(sessionOpts, engine.WithRecorder(run), engine.WithFlushEveryTick(true))
	}

	session, err := engine.New(w, sessionOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "creating session", err)
	}
	defer session.Close()

	if err := session.Compile(ctx, c.Graph, c.Ticks); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "compiling circuit", err)
	}
	for _, i := range queued {
		if err := session.Submit(i); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeRuntime, "queueing interaction", err)
		}
	}

	if err := simulate(ctx, opts, session); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRuntime, "simulation failed", err)
	}
	// --serve ends on cancellation; the final flush and snapshot still run.
	done := context.WithoutCancel(ctx)
	if _, err := session.Flush(done); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRuntime, "flushing", err)
	}

	report := RunReport{
		Circuit: c.Name,
		Backend: kind.String(),
		Ticks:   session.Clock().Current(),
		Idle:    session.Idle(),
		Nodes:   []NodeReport{},
	}
	snapshot := w.Snapshot()
	fp, err := trace.StateFingerprint(snapshot)
	if err != nil {
		return formatter.Fail(ExitFailure, graphio.ErrCodeGeneric, "fingerprinting world", err)
	}
	report.Fingerprint = trace.FormatFingerprint(fp)

	if run != nil {
		if _, err := run.SaveSnapshot(done, report.Ticks, snapshot); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeStore, "saving snapshot", err)
		}
		report.RunID = run.ID
	}

	for _, id := range c.IONodes() {
		pos, err := c.PosOf(id)
		if err != nil {
			continue
		}
		in, err := session.Inspect(pos)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeRuntime, "inspecting "+id, err)
		}
		report.Nodes = append(report.Nodes, NodeReport{
			ID:      id,
			Type:    in.Type,
			Pos:     pos.String(),
			Block:   w.Block(pos).String(),
			Powered: in.Powered,
			Power:   in.OutputPower,
			Pending: in.PendingTick,
		})
	}

	if formatter.JSON() {
		return formatter.Success(report)
	}
	printRunReport(formatter, report)
	return nil
}

// simulate runs the configured ticks, then settles or serves.
func simulate(ctx context.Context, opts *RunOptions, session *engine.Session) error {
	if err := session.Run(ctx, opts.Ticks); err != nil {
		return err
	}
	if opts.Settle > 0 {
		if _, err := session.RunUntilIdle(ctx, opts.Settle); err != nil {
			return err
		}
	}
	if opts.Serve > 0 {
		err := session.Serve(ctx, opts.Serve)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return nil
}

func printRunReport(f *OutputFormatter, r RunReport) {
	name := r.Circuit
	if name == "" {
		name = "circuit"
	}
	state := "busy"
	if r.Idle {
		state = "idle"
	}
	fmt.Fprintf(f.Writer, "✓ Ran %s for %d tick(s) on %s backend (%s)\n\n", name, r.Ticks, r.Backend, state)

	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	for _, n := range r.Nodes {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", n.ID, n.Pos, n.Block)
	}
	_ = tw.Flush()

	fmt.Fprintf(f.Writer, "\nfingerprint: %s\n", r.Fingerprint)
	if r.RunID != "" {
		fmt.Fprintf(f.Writer, "run:         %s\n", r.RunID)
	}
}
