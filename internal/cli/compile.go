package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/redpiler/internal/engine"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/graphio"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Strict bool // reject every combinational loop
}

// CompileReport is the result of a successful compile.
type CompileReport struct {
	Circuit  string        `json:"circuit"`
	Backend  string        `json:"backend"`
	Hash     string        `json:"hash"`
	Stats    graphio.Stats `json:"stats"`
	IONodes  []string      `json:"io_nodes"`
	Loops    int           `json:"combinational_loops"`
	Duration time.Duration `json:"duration_ns"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <circuit>",
		Short: "Load a circuit and compile it into a backend",
		Long: `Load a circuit file, validate it against the circuit schema and
compile it into the selected backend.

Reports node, edge and I/O counts, the number of combinational loops and
the graph hash used to tag recorded runs.

Examples:
  redpiler compile ./circuits/adder.yaml
  redpiler compile ./circuits/adder.cue --strict --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on any combinational loop, including monotone wire loops")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	log := opts.Logger()

	kind, err := opts.BackendKind()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid backend", err)
	}

	formatter.VerboseLog("Loading %s", path)
	c, err := graphio.LoadFile(path)
	if err != nil {
		return formatter.FailLoad(err)
	}

	loops := graph.CombinationalLoops(c.Graph)
	if opts.Strict {
		if err := graph.Check(c.Graph, graph.RequireAcyclic); err != nil {
			return formatter.Fail(ExitCommandError, graphio.ErrCodeInvalidGraph, "strict check failed", err)
		}
	}

	hash, err := c.Hash()
	if err != nil {
		return formatter.Fail(ExitCommandError, graphio.ErrCodeGeneric, "hashing circuit", err)
	}

	session, err := engine.New(c.World(), engine.WithBackend(kind), engine.WithLogger(log))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "creating session", err)
	}
	defer session.Close()

	start := time.Now()
	if err := session.Compile(cmd.Context(), c.Graph, c.Ticks); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "compiling circuit", err)
	}

	report := CompileReport{
		Circuit:  c.Name,
		Backend:  kind.String(),
		Hash:     hash,
		Stats:    c.Stats(),
		IONodes:  c.IONodes(),
		Loops:    len(loops),
		Duration: time.Since(start),
	}
	if report.IONodes == nil {
		report.IONodes = []string{}
	}
	log.Debug("compile finished", "circuit", report.Circuit, "hash", hash, "duration", report.Duration)

	if formatter.JSON() {
		return formatter.Success(report)
	}
	printCompileReport(formatter, report)
	return nil
}

func printCompileReport(f *OutputFormatter, r CompileReport) {
	name := r.Circuit
	if name == "" {
		name = "circuit"
	}
	fmt.Fprintf(f.Writer, "✓ Compiled %s (%s backend)\n\n", name, r.Backend)
	fmt.Fprintf(f.Writer, "  nodes:         %d\n", r.Stats.Nodes)
	fmt.Fprintf(f.Writer, "  edges:         %d (%d side)\n", r.Stats.Edges, r.Stats.SideEdges)
	if len(r.IONodes) > 0 {
		fmt.Fprintf(f.Writer, "  io nodes:      %d (%s)\n", r.Stats.IONodes, strings.Join(r.IONodes, ", "))
	} else {
		fmt.Fprintf(f.Writer, "  io nodes:      0\n")
	}
	fmt.Fprintf(f.Writer, "  initial ticks: %d\n", r.Stats.Ticks)
	fmt.Fprintf(f.Writer, "  loops:         %d\n", r.Loops)
	fmt.Fprintf(f.Writer, "  hash:          %s\n", r.Hash)
	fmt.Fprintf(f.Writer, "  compiled in:   %s\n", r.Duration.Round(time.Microsecond))
}
