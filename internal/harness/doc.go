// Package harness runs YAML scenarios against a compiled circuit.
//
// A scenario names a circuit file and a list of steps. Each step does one
// thing:
//
//	steps:
//	  - use: lever                       # queue a right-click for next tick
//	  - plate: {node: plate, powered: true}
//	  - tick: 2                          # run two ticks
//	  - settle: 50                       # run until idle, at most 50 ticks
//	  - flush: true                      # flush outside the tick cycle
//	  - reset: true                      # reset the backend
//	  - expect: {node: lamp, powered: true}
//
// Interactions are queued and apply at the start of the next tick. The
// session flushes after every tick, so the recorded trace holds every block
// change with the tick it became visible. Traces are compared to golden
// files with RunWithGolden; CrossCheck runs a scenario on every backend in
// the build and diffs their traces.
package harness
