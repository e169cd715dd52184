package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/redpiler/internal/store"
	"github.com/roach88/redpiler/internal/trace"
	"github.com/roach88/redpiler/internal/world"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Pos      string // optional - history of one block
	Snapshot bool   // show the latest snapshot instead of the change log
}

// TraceResult is the change log of a recorded run.
type TraceResult struct {
	Run         store.RunInfo `json:"run"`
	Fingerprint string        `json:"fingerprint"`
	Events      []any         `json:"events"`
}

// HistoryResult is the change history of one block.
type HistoryResult struct {
	Run     store.RunInfo          `json:"run"`
	Pos     string                 `json:"pos"`
	Changes []store.RecordedChange `json:"changes"`
}

// SnapshotResult is a stored world snapshot.
type SnapshotResult struct {
	Run         store.RunInfo  `json:"run"`
	Tick        int64          `json:"tick"`
	Fingerprint string         `json:"fingerprint"`
	Blocks      []world.Change `json:"blocks"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Show what a recorded run changed",
		Long: `Show the block changes of a recorded run, one canonical JSON line per
tick, followed by the trace fingerprint. Two runs with the same
fingerprint changed the same blocks in the same ticks.

Examples:
  redpiler trace 0192f7a4-... --db ./runs.db
  redpiler trace 0192f7a4-... --db ./runs.db --pos 2,0,0
  redpiler trace 0192f7a4-... --db ./runs.db --snapshot --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Pos, "pos", "", "only show changes of the block at x,y,z")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "show the run's latest world snapshot")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if opts.Pos != "" && opts.Snapshot {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "--pos and --snapshot are exclusive", nil)
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "opening database", err)
	}
	defer st.Close()

	info, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "run not found: "+runID, nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "reading run", err)
	}

	switch {
	case opts.Pos != "":
		return showHistory(formatter, st, cmd, info, opts.Pos)
	case opts.Snapshot:
		return showSnapshot(formatter, st, cmd, info)
	}

	tr, err := st.ReadTrace(ctx, runID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "reading trace", err)
	}
	fp, err := tr.Fingerprint()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "fingerprinting trace", err)
	}

	if formatter.JSON() {
		result := TraceResult{Run: info, Fingerprint: trace.FormatFingerprint(fp), Events: []any{}}
		for _, ev := range tr.Events {
			result.Events = append(result.Events, trace.EventValue(ev))
		}
		return formatter.Success(result)
	}

	lines, err := tr.MarshalLines()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "encoding trace", err)
	}
	fmt.Fprintf(formatter.Writer, "run %s (%s backend, %d changed tick(s))\n\n", info.ID, info.Backend, tr.Len())
	_, _ = formatter.Writer.Write(lines)
	fmt.Fprintf(formatter.Writer, "\nfingerprint: %s\n", trace.FormatFingerprint(fp))
	return nil
}

func showHistory(f *OutputFormatter, st *store.Store, cmd *cobra.Command, info store.RunInfo, posArg string) error {
	pos, err := parsePos(posArg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeArgs, "invalid --pos", err)
	}
	changes, err := st.ReadBlockHistory(cmd.Context(), info.ID, pos)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "reading block history", err)
	}

	if f.JSON() {
		return f.Success(HistoryResult{Run: info, Pos: pos.String(), Changes: changes})
	}
	if len(changes) == 0 {
		fmt.Fprintf(f.Writer, "No changes at %s.\n", pos)
		return nil
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	for _, c := range changes {
		fmt.Fprintf(tw, "tick %d\t%s\n", c.Tick, c.Block)
	}
	return tw.Flush()
}

func showSnapshot(f *OutputFormatter, st *store.Store, cmd *cobra.Command, info store.RunInfo) error {
	ctx := cmd.Context()
	tick, err := st.LatestSnapshotTick(ctx, info.ID)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "run has no snapshot", nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "finding snapshot", err)
	}
	snapshot, fp, err := st.LoadSnapshot(ctx, info.ID, tick)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "loading snapshot", err)
	}

	if f.JSON() {
		return f.Success(SnapshotResult{Run: info, Tick: tick, Fingerprint: fp, Blocks: snapshot})
	}
	fmt.Fprintf(f.Writer, "snapshot of %s at tick %d (%s)\n\n", info.ID, tick, fp)
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	for _, c := range snapshot {
		fmt.Fprintf(tw, "  %s\t%s\n", c.Pos, c.Block)
	}
	return tw.Flush()
}
