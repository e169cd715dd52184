// Package blocks describes the world-side view of circuit components.
//
// A Block is the minimal state the simulator reads from and writes back to
// the world: which kind of component sits at a position and its powered,
// lit, locked and signal-strength properties. Blocks are plain values; the
// world owns them and the backends copy them in at compile time and out on
// flush.
package blocks
