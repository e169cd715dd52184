package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/redpiler/internal/backend"
)

// AssertionError is a failed expectation.
type AssertionError struct {
	Step     int
	Node     string
	Field    string
	Tick     int64
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "steps[%d] expect %s.%s at tick %d", e.Step, e.Node, e.Field, e.Tick)
	fmt.Fprintf(&buf, ": expected %s, actual %s", e.Expected, e.Actual)
	return buf.String()
}

// check evaluates one expectation. Node state comes from the backend;
// Block comes from the world, so it only sees flushed state.
func (r *runner) check(step int, e *Expectation) []*AssertionError {
	tick := r.session.Clock().Current()
	fail := func(field, expected, actual string) *AssertionError {
		return &AssertionError{Step: step, Node: e.Node, Field: field, Tick: tick, Expected: expected, Actual: actual}
	}

	pos, err := r.circuit.PosOf(e.Node)
	if err != nil {
		return []*AssertionError{fail("pos", "a block", err.Error())}
	}

	var errs []*AssertionError
	if e.Block != "" {
		if got := r.world.Block(pos).String(); got != e.Block {
			errs = append(errs, fail("block", e.Block, got))
		}
	}
	if e.Powered == nil && e.Power == nil && e.Locked == nil && e.Pending == nil {
		return errs
	}

	in, err := r.session.Inspect(pos)
	if err != nil {
		return append(errs, fail("state", "a compiled node", err.Error()))
	}
	errs = append(errs, compareInspection(e, in, fail)...)
	return errs
}

func compareInspection(e *Expectation, in backend.Inspection, fail func(field, expected, actual string) *AssertionError) []*AssertionError {
	var errs []*AssertionError
	if e.Powered != nil && *e.Powered != in.Powered {
		errs = append(errs, fail("powered", fmt.Sprint(*e.Powered), fmt.Sprint(in.Powered)))
	}
	if e.Power != nil && *e.Power != in.OutputPower {
		errs = append(errs, fail("power", fmt.Sprint(*e.Power), fmt.Sprint(in.OutputPower)))
	}
	if e.Locked != nil && *e.Locked != in.Locked {
		errs = append(errs, fail("locked", fmt.Sprint(*e.Locked), fmt.Sprint(in.Locked)))
	}
	if e.Pending != nil && *e.Pending != in.PendingTick {
		errs = append(errs, fail("pending", fmt.Sprint(*e.Pending), fmt.Sprint(in.PendingTick)))
	}
	return errs
}
