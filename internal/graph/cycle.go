package graph

import (
	"fmt"
	"sort"
	"strings"
)

// CyclePolicy says which combinational loops a backend can settle.
type CyclePolicy uint8

const (
	// AllowMonotoneLoops accepts loops made only of wires whose internal
	// links all have weight 1 or more. Such a loop loses strength on every
	// hop, so it drains once its sources turn off. A weight-0 link lets the
	// loop hold its own power, and a torch or comparator can oscillate
	// forever within a tick.
	AllowMonotoneLoops CyclePolicy = iota
	// RequireAcyclic rejects every combinational loop.
	RequireAcyclic
)

// CombinationalLoops returns the strongly connected components of the
// combinational subgraph that form loops (size > 1 or a self edge).
//
// The combinational subgraph keeps the nodes whose output is recomputed
// within a tick (wires, torches, comparators) and the edges between them.
// Repeaters delay their effect and interactive components ignore their
// inputs, so both break loops.
//
// Each component is returned sorted by node index; components are sorted by
// their first node.
func CombinationalLoops(g *Graph) [][]int {
	adj := make([][]int, len(g.Nodes))
	selfLoop := make([]bool, len(g.Nodes))
	for _, e := range g.Edges {
		if !g.Nodes[e.Source].Type.Kind.Propagates() || !g.Nodes[e.Target].Type.Kind.Propagates() {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
		if e.Source == e.Target {
			selfLoop[e.Source] = true
		}
	}

	var loops [][]int
	for _, scc := range tarjanSCC(adj) {
		if len(scc) > 1 || selfLoop[scc[0]] {
			sort.Ints(scc)
			loops = append(loops, scc)
		}
	}
	sort.Slice(loops, func(i, j int) bool { return loops[i][0] < loops[j][0] })
	return loops
}

// CheckCycles reports the loops the policy forbids.
func CheckCycles(g *Graph, policy CyclePolicy) []ValidationError {
	var errs []ValidationError
	for _, loop := range CombinationalLoops(g) {
		if policy == AllowMonotoneLoops && monotone(g, loop) {
			continue
		}
		errs = append(errs, ValidationError{
			Code:    ErrCombinationalLoop,
			Field:   fmt.Sprintf("nodes[%d]", loop[0]),
			Message: "combinational loop through " + describeLoop(g, loop),
		})
	}
	return errs
}

func monotone(g *Graph, loop []int) bool {
	in := make(map[int]bool, len(loop))
	for _, i := range loop {
		if g.Nodes[i].Type.Kind != Wire {
			return false
		}
		in[i] = true
	}
	for _, e := range g.Edges {
		if in[e.Source] && in[e.Target] && e.Weight == 0 {
			return false
		}
	}
	return true
}

func describeLoop(g *Graph, loop []int) string {
	parts := make([]string, len(loop))
	for i, idx := range loop {
		parts[i] = fmt.Sprintf("%d:%s", idx, g.Nodes[idx].Type)
	}
	return strings.Join(parts, " ")
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in index order so the result is deterministic.
func tarjanSCC(adj [][]int) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(adj))
		lowlink = make([]int, len(adj))
		onStack = make([]bool, len(adj))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component: pop it
		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for v := range adj {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}
	return sccs
}
