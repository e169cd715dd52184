package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/redpiler/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter     string // scenario name filter (glob pattern)
	Golden     string // directory of <scenario>.golden trace files
	Update     bool   // rewrite golden files instead of comparing
	CrossCheck bool   // also compare traces across every backend
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Backend string   `json:"backend"`
	Pass    bool     `json:"pass"`
	Ticks   int64    `json:"ticks"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files",
		Long: `Run every scenario file in a directory.

Each scenario names a circuit and a list of steps (use, plate, tick,
settle, flush, reset, expect). A scenario passes when every expectation
holds and, with --golden, its trace matches <golden>/<name>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable scenarios, etc.)

Examples:
  redpiler test ./scenarios
  redpiler test ./scenarios --filter "repeater*"
  redpiler test ./scenarios --golden ./golden --update
  redpiler test ./scenarios --cross-check --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by name glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().BoolVar(&opts.CrossCheck, "cross-check", false, "compare traces across all compiled-in backends")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if _, err := os.Stat(dir); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScenario, "scenarios directory not found: "+dir, nil)
	}
	if opts.Update && opts.Golden == "" {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "--update requires --golden", nil)
	}
	if opts.Filter != "" {
		if _, err := path.Match(opts.Filter, ""); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid --filter", err)
		}
	}

	scenarios, err := harness.LoadScenarios(dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScenario, "loading scenarios", err)
	}

	runOpts := []harness.Option{harness.WithLogger(opts.Logger())}
	if cmd.Flags().Changed("backend") {
		kind, err := opts.BackendKind()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid backend", err)
		}
		runOpts = append(runOpts, harness.WithBackend(kind))
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, sc := range scenarios {
		if opts.Filter != "" {
			if ok, _ := path.Match(opts.Filter, sc.Name); !ok {
				continue
			}
		}
		formatter.VerboseLog("Running scenario %s", sc.Name)
		res, err := runScenario(ctx, opts, sc, runOpts)
		if errors.Is(err, context.Canceled) {
			return formatter.Fail(ExitCommandError, ErrCodeRuntime, "interrupted", err)
		}
		result.Scenarios = append(result.Scenarios, res)
		result.Total++
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printTestResult(formatter, result)
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

// runScenario runs one scenario and folds golden and cross-check failures
// into its result.
func runScenario(ctx context.Context, opts *TestOptions, sc *harness.Scenario, runOpts []harness.Option) (ScenarioResult, error) {
	out := ScenarioResult{Name: sc.Name, Backend: sc.Backend}
	res, err := harness.Run(ctx, sc, runOpts...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return out, err
		}
		out.Errors = []string{err.Error()}
		return out, nil
	}
	out.Backend = res.Backend
	out.Ticks = res.Ticks
	out.Errors = append(out.Errors, res.Errors...)

	if opts.Golden != "" {
		if msg := checkGolden(opts, sc.Name, res); msg != "" {
			out.Errors = append(out.Errors, msg)
		}
	}
	if opts.CrossCheck {
		diff, err := harness.CrossCheck(ctx, sc, runOpts...)
		switch {
		case err != nil:
			out.Errors = append(out.Errors, "cross-check: "+err.Error())
		case diff != "":
			out.Errors = append(out.Errors, "cross-check: backends disagree:\n"+diff)
		}
	}
	out.Pass = len(out.Errors) == 0
	return out, nil
}

// checkGolden compares (or with --update rewrites) the scenario's golden
// trace. It returns a failure message, or "" when the trace matches.
func checkGolden(opts *TestOptions, name string, res *harness.Result) string {
	got, err := res.Trace.MarshalLines()
	if err != nil {
		return "golden: " + err.Error()
	}
	file := filepath.Join(opts.Golden, name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return "golden: " + err.Error()
		}
		if err := os.WriteFile(file, got, 0o644); err != nil {
			return "golden: " + err.Error()
		}
		return ""
	}
	want, err := os.ReadFile(file)
	if err != nil {
		return fmt.Sprintf("golden: %v (run with --update to create it)", err)
	}
	if bytes.Equal(want, got) {
		return ""
	}
	return fmt.Sprintf("golden: trace differs from %s (-want +got):\n%s", file, cmp.Diff(string(want), string(got)))
}

func printTestResult(f *OutputFormatter, r TestResult) {
	if r.Total == 0 {
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(f.Writer, "%s %s (%s, %d ticks)\n", mark, s.Name, s.Backend, s.Ticks)
		for _, e := range s.Errors {
			fmt.Fprintf(f.Writer, "    %s\n", e)
		}
	}
	fmt.Fprintf(f.Writer, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
}
