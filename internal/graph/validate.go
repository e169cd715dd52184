package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/redpiler/internal/blocks"
)

// Validation error codes (E200-E299)
const (
	ErrDanglingEdge      = "E201" // edge endpoint is not a node index
	ErrDuplicatePosition = "E203" // two nodes claim the same block
	ErrInvalidDelay      = "E204" // repeater delay outside 1..15
	ErrInputOverflow     = "E205" // too many edges into one input
	ErrInvalidStrength   = "E206" // output strength above 15
	ErrCombinationalLoop = "E207" // cycle the backend cannot settle
	ErrFarInputRange     = "E208" // comparator far input above 15
)

// MaxInputDegree bounds the edges feeding one input of one node. Histogram
// buckets are 8-bit counters.
const MaxInputDegree = 255

// MaxDelay is the longest delay the tick scheduler can hold.
const MaxDelay = 15

// ValidationError describes one structural problem in a graph.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is a non-empty list of validation failures.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(es), strings.Join(parts, "; "))
}

// HasCode reports whether err carries a validation error with the given code.
func HasCode(err error, code string) bool {
	var es ValidationErrors
	if errors.As(err, &es) {
		for _, e := range es {
			if e.Code == code {
				return true
			}
		}
		return false
	}
	var ve ValidationError
	return errors.As(err, &ve) && ve.Code == code
}

// Validate checks the structural contract every backend relies on.
// Returns all errors found (does not fail-fast). Edge weights are not
// checked here; clamping them is the upstream compiler's job.
func Validate(g *Graph) []ValidationError {
	var errs []ValidationError
	n := len(g.Nodes)

	seen := make(map[blocks.BlockPos]int)
	for i, node := range g.Nodes {
		if node.Type.Kind.IsRepeater() && (node.Type.Delay < 1 || node.Type.Delay > MaxDelay) {
			errs = append(errs, ValidationError{
				Code:    ErrInvalidDelay,
				Field:   fmt.Sprintf("nodes[%d].delay", i),
				Message: fmt.Sprintf("repeater delay %d outside 1..%d", node.Type.Delay, MaxDelay),
			})
		}
		if node.State.OutputStrength > 15 {
			errs = append(errs, ValidationError{
				Code:    ErrInvalidStrength,
				Field:   fmt.Sprintf("nodes[%d].output_strength", i),
				Message: fmt.Sprintf("output strength %d above 15", node.State.OutputStrength),
			})
		}
		if node.ComparatorFarInput != nil && *node.ComparatorFarInput > 15 {
			errs = append(errs, ValidationError{
				Code:    ErrFarInputRange,
				Field:   fmt.Sprintf("nodes[%d].far_input", i),
				Message: fmt.Sprintf("far input %d above 15", *node.ComparatorFarInput),
			})
		}
		if node.Block == nil {
			continue
		}
		if prev, dup := seen[node.Block.Pos]; dup {
			errs = append(errs, ValidationError{
				Code:    ErrDuplicatePosition,
				Field:   fmt.Sprintf("nodes[%d].pos", i),
				Message: fmt.Sprintf("position %s already used by node %d", node.Block.Pos, prev),
			})
			continue
		}
		seen[node.Block.Pos] = i
	}

	degree := make([][2]int, n)
	for i, e := range g.Edges {
		if e.Source < 0 || e.Source >= n || e.Target < 0 || e.Target >= n {
			errs = append(errs, ValidationError{
				Code:    ErrDanglingEdge,
				Field:   fmt.Sprintf("edges[%d]", i),
				Message: fmt.Sprintf("edge %d -> %d references a node outside 0..%d", e.Source, e.Target, n-1),
			})
			continue
		}
		degree[e.Target][e.Type&1]++
	}
	for i, d := range degree {
		for side, count := range d {
			if count > MaxInputDegree {
				errs = append(errs, ValidationError{
					Code:    ErrInputOverflow,
					Field:   fmt.Sprintf("nodes[%d].%s_inputs", i, LinkType(side)),
					Message: fmt.Sprintf("%d edges exceed the limit of %d", count, MaxInputDegree),
				})
			}
		}
	}

	return errs
}

// Check runs Validate and CheckCycles and returns them as a single error,
// or nil if the graph is usable under the given cycle policy.
func Check(g *Graph, policy CyclePolicy) error {
	errs := Validate(g)
	if len(errs) > 0 {
		// Cycle analysis needs a structurally sound graph.
		return ValidationErrors(errs)
	}
	errs = CheckCycles(g, policy)
	if len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}
